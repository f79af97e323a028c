package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zhouzirui/vibecheck/backend/internal/analysis/anonymize"
	"github.com/zhouzirui/vibecheck/backend/internal/analysis/metrics"
	"github.com/zhouzirui/vibecheck/backend/internal/analysis/transcript"
	"github.com/zhouzirui/vibecheck/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/vibecheck/backend/internal/middleware"
	"github.com/zhouzirui/vibecheck/backend/internal/observe"
	"github.com/zhouzirui/vibecheck/backend/internal/service/session"
)

const sampleTranscript = "[01/02/2024, 10:00:00] Alice: hey, great to see you\n" +
	"[01/02/2024, 10:01:00] Bob: hi! look https://example.com\n" +
	"[01/02/2024, 10:02:00] Alice: how are you doing\n" +
	"[01/02/2024, 10:05:00] Bob: good thanks\n"

func setupRouter(t *testing.T, opts Options) (http.Handler, *session.Store) {
	t.Helper()
	if opts.Metrics == nil {
		opts.Metrics = observe.New(prometheus.NewRegistry())
	}
	store := session.NewStore(
		transcript.New(),
		anonymize.New(),
		metrics.New(metrics.DefaultConfig(), nil),
		session.WithMetrics(opts.Metrics),
	)
	return NewRouter(store, opts), store
}

func do(r http.Handler, method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func upload(t *testing.T, r http.Handler) string {
	t.Helper()
	resp := do(r, http.MethodPost, "/api/upload", []byte(sampleTranscript), "text/plain")
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var payload struct {
		SessionID     string `json:"sessionId"`
		TotalMessages int    `json:"totalMessages"`
		Participants  int    `json:"participants"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if payload.SessionID == "" || payload.TotalMessages != 4 || payload.Participants != 2 {
		t.Fatalf("unexpected session payload %+v", payload)
	}
	return payload.SessionID
}

func multipartBody(t *testing.T, filename, content string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes(), mw.FormDataContentType()
}

func TestHealth(t *testing.T) {
	r, _ := setupRouter(t, Options{})
	resp := do(r, http.MethodGet, "/health", nil, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestUploadRawBody(t *testing.T) {
	r, store := setupRouter(t, Options{})
	upload(t, r)
	if store.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", store.Len())
	}
}

func TestUploadMultipart(t *testing.T) {
	r, _ := setupRouter(t, Options{})

	body, ct := multipartBody(t, "WhatsApp Chat.txt", sampleTranscript)
	resp := do(r, http.MethodPost, "/api/upload", body, ct)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestUploadRejections(t *testing.T) {
	r, _ := setupRouter(t, Options{})

	pdf, pdfType := multipartBody(t, "chat.pdf", sampleTranscript)
	missing, missingType := func() ([]byte, string) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		_ = mw.WriteField("other", "x")
		_ = mw.Close()
		return buf.Bytes(), mw.FormDataContentType()
	}()

	tests := []struct {
		name        string
		body        []byte
		contentType string
	}{
		{name: "empty body", body: nil, contentType: "text/plain"},
		{name: "no message lines", body: []byte("just some notes\nwithout timestamps"), contentType: "text/plain"},
		{name: "unsupported extension", body: pdf, contentType: pdfType},
		{name: "missing file field", body: missing, contentType: missingType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(r, http.MethodPost, "/api/upload", tt.body, tt.contentType)
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", resp.Code, resp.Body.String())
			}
			if !strings.Contains(resp.Body.String(), `"error"`) {
				t.Fatalf("expected error body, got %s", resp.Body.String())
			}
		})
	}
}

func TestUploadTooLarge(t *testing.T) {
	r, _ := setupRouter(t, Options{MaxUploadBytes: 32})

	resp := do(r, http.MethodPost, "/api/upload", []byte(sampleTranscript), "text/plain")
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.Code)
	}
}

func TestUploadRateLimited(t *testing.T) {
	m := observe.New(prometheus.NewRegistry())
	limiter := middlewarePkg.NewRateLimiter(middlewarePkg.RateLimitOptions{Limit: 0.001, Burst: 1}, m)
	r, _ := setupRouter(t, Options{Metrics: m, UploadLimiter: limiter})

	upload(t, r)
	resp := do(r, http.MethodPost, "/api/upload", []byte(sampleTranscript), "text/plain")
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}

	// 限流只作用于上传
	if resp := do(r, http.MethodGet, "/health", nil, ""); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 from health, got %d", resp.Code)
	}
}

func TestSessionAndReport(t *testing.T) {
	r, _ := setupRouter(t, Options{})
	id := upload(t, r)

	if resp := do(r, http.MethodGet, "/api/sessions/"+id, nil, ""); resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	resp := do(r, http.MethodGet, "/api/sessions/"+id+"/report", nil, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var report map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	for _, name := range metrics.Names() {
		if _, ok := report[name]; !ok {
			t.Errorf("report missing section %q", name)
		}
	}
}

func TestMetricEndpoint(t *testing.T) {
	r, _ := setupRouter(t, Options{})
	id := upload(t, r)

	resp := do(r, http.MethodGet, "/api/sessions/"+id+"/metrics/volume", nil, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var volume metrics.Volume
	if err := json.Unmarshal(resp.Body.Bytes(), &volume); err != nil {
		t.Fatalf("decode volume: %v", err)
	}
	if volume.Total != 4 {
		t.Fatalf("expected 4 messages, got %d", volume.Total)
	}
	for _, s := range volume.Senders {
		if s.Sender == "Alice" || s.Sender == "Bob" {
			t.Fatalf("raw sender name leaked: %q", s.Sender)
		}
	}

	resp = do(r, http.MethodGet, "/api/sessions/"+id+"/metrics/comparison?self=alice", nil, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for comparison, got %d: %s", resp.Code, resp.Body.String())
	}
	var cmp metrics.Comparison
	if err := json.Unmarshal(resp.Body.Bytes(), &cmp); err != nil {
		t.Fatalf("decode comparison: %v", err)
	}
	if cmp.Self != "Participant 1" {
		t.Fatalf("expected self to resolve to Participant 1, got %q", cmp.Self)
	}
}

func TestEmojiMetricEndpoint(t *testing.T) {
	r, _ := setupRouter(t, Options{})
	raw := "[01/02/2024, 10:00:00] Alice: morning \u2600\ufe0f\n" +
		"[01/02/2024, 10:01:00] Bob: \U0001f602\U0001f602 lol\n"
	resp := do(r, http.MethodPost, "/api/upload", []byte(raw), "text/plain")
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var info struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode session: %v", err)
	}

	resp = do(r, http.MethodGet, "/api/sessions/"+info.SessionID+"/metrics/emojis", nil, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var emojis metrics.Emojis
	if err := json.Unmarshal(resp.Body.Bytes(), &emojis); err != nil {
		t.Fatalf("decode emojis: %v", err)
	}
	if emojis.Total != 3 || len(emojis.Top) != 2 || emojis.Top[0].Emoji != "\U0001f602" {
		t.Fatalf("unexpected emoji section %+v", emojis)
	}
	if emojis.Champion == nil || emojis.Champion.Emojis != 2 {
		t.Fatalf("unexpected champion %+v", emojis.Champion)
	}
}

func TestStatusMapping(t *testing.T) {
	r, _ := setupRouter(t, Options{})
	id := upload(t, r)

	tests := []struct {
		target string
		status int
	}{
		{target: "/api/sessions/missing", status: http.StatusNotFound},
		{target: "/api/sessions/missing/report", status: http.StatusNotFound},
		{target: "/api/sessions/" + id + "/metrics/bogus", status: http.StatusNotFound},
		{target: "/api/sessions/" + id + "/metrics/comparison", status: http.StatusBadRequest},
		{target: "/api/sessions/" + id + "/compare", status: http.StatusBadRequest},
		{target: "/api/sessions/" + id + "/compare?self=Zed", status: http.StatusNotFound},
		{target: "/api/sessions/" + id + "/compare?self=Bob", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			resp := do(r, http.MethodGet, tt.target, nil, "")
			if resp.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, resp.Code, resp.Body.String())
			}
		})
	}
}

func TestDeleteSession(t *testing.T) {
	r, store := setupRouter(t, Options{})
	id := upload(t, r)

	if resp := do(r, http.MethodDelete, "/api/sessions/"+id, nil, ""); resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty store, got %d", store.Len())
	}
	if resp := do(r, http.MethodGet, "/api/sessions/"+id, nil, ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.Code)
	}
	if resp := do(r, http.MethodDelete, "/api/sessions/"+id, nil, ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", resp.Code)
	}
}

func TestMetricsExposition(t *testing.T) {
	r, _ := setupRouter(t, Options{})
	upload(t, r)

	resp := do(r, http.MethodGet, "/metrics", nil, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "vibecheck_sessions_created_total 1") {
		t.Fatalf("expected sessions counter in exposition")
	}
}

func TestStreamSSE(t *testing.T) {
	r, _ := setupRouter(t, Options{})
	id := upload(t, r)

	resp := do(r, http.MethodGet, "/api/sessions/"+id+"/stream", nil, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	body := resp.Body.String()
	events := append(append([]string{"session"}, metrics.Names()...), "done")
	last := -1
	for _, name := range events {
		idx := strings.Index(body, "event: "+name+"\n")
		if idx < 0 {
			t.Fatalf("missing event %q", name)
		}
		if idx < last {
			t.Fatalf("event %q out of order", name)
		}
		last = idx
	}
}

func TestStreamSSEUnknownSession(t *testing.T) {
	r, _ := setupRouter(t, Options{})
	if resp := do(r, http.MethodGet, "/api/sessions/missing/stream", nil, ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestStreamWebSocket(t *testing.T) {
	r, _ := setupRouter(t, Options{})
	id := upload(t, r)

	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var frames []stream.Frame
	for {
		var f stream.Frame
		if err := conn.ReadJSON(&f); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) || closeErr.Code != websocket.CloseNormalClosure {
				t.Fatalf("unexpected read error: %v", err)
			}
			break
		}
		frames = append(frames, f)
	}

	want := len(metrics.Names()) + 2
	if len(frames) != want {
		t.Fatalf("expected %d frames, got %d", want, len(frames))
	}
	if frames[0].Type != "session" || frames[len(frames)-1].Type != "done" {
		t.Fatalf("unexpected frame order: first %q last %q", frames[0].Type, frames[len(frames)-1].Type)
	}
	for i, name := range metrics.Names() {
		if frames[i+1].Name != name {
			t.Fatalf("frame %d: expected %q, got %q", i+1, name, frames[i+1].Name)
		}
	}
}

func TestStreamWebSocketUnknownSession(t *testing.T) {
	r, _ := setupRouter(t, Options{})
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 handshake response, got %+v", resp)
	}
}
