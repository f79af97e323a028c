package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/vibecheck/backend/internal/analysis/metrics"
	"github.com/zhouzirui/vibecheck/backend/internal/handler/apierr"
	"github.com/zhouzirui/vibecheck/backend/internal/logging"
	"github.com/zhouzirui/vibecheck/backend/internal/model/chat"
	"github.com/zhouzirui/vibecheck/backend/pkg/utils"
)

const writeWait = 10 * time.Second

// Reports 是流式推送依赖的会话存储。
type Reports interface {
	Session(ctx context.Context, id string) (chat.Session, error)
	Report(ctx context.Context, id string) (*metrics.Report, error)
}

// Frame 是推送给客户端的一段报告
type Frame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Name      string `json:"name,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Handler 通过 SSE 或 WebSocket 逐段推送报告
type Handler struct {
	reports  Reports
	upgrader websocket.Upgrader
	log      *logrus.Entry
}

// New 创建流式处理器
func New(reports Reports) *Handler {
	return &Handler{
		reports: reports,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		log: logging.NewLogger("stream"),
	}
}

// RegisterRoutes 注册流式路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/stream", h.handleSSE)
	r.Get("/sessions/{sessionID}/ws", h.handleWebSocket)
}

// frames 按报告顺序生成 session、各指标与 done 帧
func (h *Handler) frames(ctx context.Context, id string) ([]Frame, error) {
	session, err := h.reports.Session(ctx, id)
	if err != nil {
		return nil, err
	}
	report, err := h.reports.Report(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	names := metrics.Names()
	out := make([]Frame, 0, len(names)+2)
	out = append(out, Frame{Type: "session", SessionID: id, Data: session, Timestamp: now})
	for _, name := range names {
		section, err := report.Section(name)
		if err != nil {
			return nil, err
		}
		out = append(out, Frame{Type: "section", SessionID: id, Name: name, Data: section, Timestamp: now})
	}
	out = append(out, Frame{Type: "done", SessionID: id, Timestamp: now})
	return out, nil
}

// handleSSE 每个指标一个 SSE 事件，事件名为 session、指标名或 done
func (h *Handler) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	id := chi.URLParam(r, "sessionID")
	frames, err := h.frames(r.Context(), id)
	if err != nil {
		apierr.Respond(w, err)
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	for _, f := range frames {
		if r.Context().Err() != nil {
			return
		}
		event := f.Type
		if f.Name != "" {
			event = f.Name
		}
		if err := utils.SendSSEEvent(w, flusher, event, f); err != nil {
			h.log.WithError(err).WithField("session", id).Warn("sse write failed")
			return
		}
	}
}

// handleWebSocket 每个指标一帧，发送完毕后正常关闭
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	frames, err := h.frames(r.Context(), id)
	if err != nil {
		apierr.Respond(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	for _, f := range frames {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(f); err != nil {
			h.log.WithError(err).WithField("session", id).Warn("websocket write failed")
			return
		}
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "report complete")
	if err := conn.WriteMessage(websocket.CloseMessage, closeMsg); err != nil {
		h.log.WithError(err).Debug("websocket close failed")
	}
}
