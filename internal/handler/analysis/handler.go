package analysis

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/vibecheck/backend/internal/analysis/metrics"
	"github.com/zhouzirui/vibecheck/backend/internal/handler/apierr"
	"github.com/zhouzirui/vibecheck/backend/internal/logging"
	"github.com/zhouzirui/vibecheck/backend/internal/model/chat"
	"github.com/zhouzirui/vibecheck/backend/internal/observe"
	"github.com/zhouzirui/vibecheck/backend/internal/service/ingest"
	"github.com/zhouzirui/vibecheck/backend/pkg/utils"
)

// multipart 边界与表单字段的额外开销
const multipartSlack = 1 << 20

// Sessions 是处理器依赖的会话存储。
type Sessions interface {
	Create(ctx context.Context, raw string) (chat.Session, error)
	Session(ctx context.Context, id string) (chat.Session, error)
	Report(ctx context.Context, id string) (*metrics.Report, error)
	Metric(ctx context.Context, id, name string) (any, error)
	Compare(ctx context.Context, id, self string) (*metrics.Comparison, error)
	Delete(id string) error
}

// Handler 分析服务的HTTP处理器
type Handler struct {
	sessions  Sessions
	maxUpload int64
	metrics   *observe.Metrics
	log       *logrus.Entry
}

// New 创建分析处理器。maxUpload 限制上传体积，0 表示不限制。
func New(sessions Sessions, maxUpload int64, m *observe.Metrics) *Handler {
	return &Handler{
		sessions:  sessions,
		maxUpload: maxUpload,
		metrics:   m,
		log:       logging.NewLogger("upload"),
	}
}

// RegisterRoutes 注册分析相关的路由，upload 中间件只作用于上传接口
func (h *Handler) RegisterRoutes(r chi.Router, upload ...func(http.Handler) http.Handler) {
	r.With(upload...).Post("/upload", h.handleUpload)
	r.Get("/sessions/{sessionID}", h.handleSession)
	r.Delete("/sessions/{sessionID}", h.handleDelete)
	r.Get("/sessions/{sessionID}/report", h.handleReport)
	r.Get("/sessions/{sessionID}/metrics/{name}", h.handleMetric)
	r.Get("/sessions/{sessionID}/compare", h.handleCompare)
}

// handleUpload 接收 multipart 的 file 字段或原始请求体
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	name, data, err := h.readUpload(w, r)
	if err != nil {
		if _, known := apierr.Status(err); !known {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		apierr.Respond(w, err)
		return
	}
	if len(data) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "upload is empty")
		return
	}

	text, err := ingest.Decode(name, data, h.maxUpload)
	if err != nil {
		h.log.WithError(err).Info("upload rejected")
		apierr.Respond(w, err)
		return
	}

	session, err := h.sessions.Create(r.Context(), text)
	if err != nil {
		h.log.WithError(err).Info("transcript rejected")
		apierr.Respond(w, err)
		return
	}

	h.metrics.UploadAccepted(len(text))
	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		body := r.Body
		if h.maxUpload > 0 {
			body = http.MaxBytesReader(w, r.Body, h.maxUpload)
		}
		data, err := io.ReadAll(body)
		return r.URL.Query().Get("filename"), data, err
	}

	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartSlack)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return "", nil, err
		}
		return "", nil, errors.New("multipart field \"file\" is required")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	return header.Filename, data, err
}

// handleSession 返回会话元数据
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Session(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		apierr.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

// handleDelete 立即清除会话
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(chi.URLParam(r, "sessionID")); err != nil {
		apierr.Respond(w, err)
		return
	}
	utils.NoContent(w)
}

// handleReport 返回完整报告
func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.sessions.Report(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		apierr.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, report)
}

// handleMetric 返回单个指标；comparison 需要 self 参数
func (h *Handler) handleMetric(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	name := chi.URLParam(r, "name")

	if name == metrics.NameComparison {
		if self := strings.TrimSpace(r.URL.Query().Get("self")); self != "" {
			h.compare(w, r, id, self)
			return
		}
	}

	section, err := h.sessions.Metric(r.Context(), id, name)
	if err != nil {
		apierr.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, section)
}

// handleCompare 把 self 与其他参与者对比
func (h *Handler) handleCompare(w http.ResponseWriter, r *http.Request) {
	self := strings.TrimSpace(r.URL.Query().Get("self"))
	if self == "" {
		apierr.Respond(w, metrics.ErrSelfRequired)
		return
	}
	h.compare(w, r, chi.URLParam(r, "sessionID"), self)
}

func (h *Handler) compare(w http.ResponseWriter, r *http.Request, id, self string) {
	cmp, err := h.sessions.Compare(r.Context(), id, self)
	if err != nil {
		apierr.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, cmp)
}
