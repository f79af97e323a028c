package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/vibecheck/backend/internal/analysis/anonymize"
	"github.com/zhouzirui/vibecheck/backend/internal/analysis/metrics"
	"github.com/zhouzirui/vibecheck/backend/internal/analysis/transcript"
	"github.com/zhouzirui/vibecheck/backend/internal/analysis/vibe"
	"github.com/zhouzirui/vibecheck/backend/internal/config"
	"github.com/zhouzirui/vibecheck/backend/internal/handler"
	"github.com/zhouzirui/vibecheck/backend/internal/logging"
	middlewarePkg "github.com/zhouzirui/vibecheck/backend/internal/middleware"
	"github.com/zhouzirui/vibecheck/backend/internal/observe"
	"github.com/zhouzirui/vibecheck/backend/internal/service/sentiment"
	"github.com/zhouzirui/vibecheck/backend/internal/service/session"
)

var log = logging.NewLogger("api")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.WithError(err).Warn("failed to load .env file, continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	m := observe.New(nil)

	store := session.NewStore(
		transcript.New(),
		anonymize.New(
			anonymize.WithPseudonyms(cfg.Privacy.Pseudonymize),
			anonymize.WithRedaction(cfg.Privacy.Redact),
		),
		metrics.New(cfg.Metrics, newScorer(ctx, cfg.Vibe, m)),
		session.WithTTL(cfg.Session.TTL),
		session.WithCapacity(cfg.Session.Capacity),
		session.WithMaxTranscriptBytes(cfg.Session.MaxTranscriptLen),
		session.WithMetrics(m),
	)
	go store.Run(ctx, cfg.Session.SweepInterval)

	limiter := middlewarePkg.NewRateLimiter(middlewarePkg.RateLimitOptions{
		Limit: rate.Limit(cfg.RateLimit.RPS),
		Burst: cfg.RateLimit.Burst,
	}, m)
	go limiter.Run(ctx, time.Minute)

	router := handler.NewRouter(store, handler.Options{
		MaxUploadBytes: cfg.Session.MaxTranscriptLen,
		Metrics:        m,
		UploadLimiter:  limiter,
	})

	startServer(ctx, cfg.Server, router)
}

// newScorer 在配置了 Ark 凭证时使用大模型打分，否则使用词典
func newScorer(ctx context.Context, cfg config.VibeConfig, m *observe.Metrics) vibe.Scorer {
	if !cfg.Enabled() {
		if cfg.LLMEnabled {
			log.Warn("Ark 凭证或模型未配置，使用词典打分")
		}
		return vibe.Default()
	}

	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to initialize chat model, using lexicon scorer")
		return vibe.Default()
	}

	svc, err := sentiment.NewService(ctx, chatModel, sentiment.Config{
		Enabled:       true,
		Timeout:       cfg.Timeout,
		ReportTimeout: cfg.ReportTimeout,
		MaxCalls:      cfg.MaxCalls,
		RPS:           cfg.RPS,
	}, vibe.Default(), m)
	if err != nil {
		log.WithError(err).Warn("failed to initialize llm scorer, using lexicon scorer")
		return vibe.Default()
	}

	log.WithFields(logrus.Fields{
		"model":     cfg.Model,
		"rps":       cfg.RPS,
		"max_calls": cfg.MaxCalls,
	}).Info("llm vibe scorer enabled")
	return svc
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.WithField("addr", addr).Info("vibecheck backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.WithError(err).Fatal("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
