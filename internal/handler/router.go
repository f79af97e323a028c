package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/vibecheck/backend/internal/handler/analysis"
	"github.com/zhouzirui/vibecheck/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/vibecheck/backend/internal/middleware"
	"github.com/zhouzirui/vibecheck/backend/internal/observe"
	"github.com/zhouzirui/vibecheck/backend/internal/service/session"
	"github.com/zhouzirui/vibecheck/backend/pkg/utils"
)

// Options 配置路由依赖
type Options struct {
	MaxUploadBytes int64
	Metrics        *observe.Metrics
	UploadLimiter  *middlewarePkg.RateLimiter
}

// NewRouter wires HTTP routes to core services.
func NewRouter(store *session.Store, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": store.Len(),
		})
	})
	r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())

	var upload []func(http.Handler) http.Handler
	if opts.UploadLimiter != nil {
		upload = append(upload, opts.UploadLimiter.Middleware)
	}

	analysisHandler := analysis.New(store, opts.MaxUploadBytes, opts.Metrics)
	streamHandler := stream.New(store)

	r.Route("/api", func(api chi.Router) {
		analysisHandler.RegisterRoutes(api, upload...)
		streamHandler.RegisterRoutes(api)
	})

	return r
}
