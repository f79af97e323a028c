package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zhouzirui/vibecheck/backend/internal/analysis/metrics"
	"github.com/zhouzirui/vibecheck/backend/internal/analysis/transcript"
	"github.com/zhouzirui/vibecheck/backend/internal/service/ingest"
	"github.com/zhouzirui/vibecheck/backend/internal/service/session"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{err: &transcript.ParseError{Reason: "empty"}, status: http.StatusBadRequest},
		{err: fmt.Errorf("upload: %w", ingest.ErrUnsupportedFile), status: http.StatusBadRequest},
		{err: ingest.ErrNoTranscript, status: http.StatusBadRequest},
		{err: metrics.ErrSelfRequired, status: http.StatusBadRequest},
		{err: ingest.ErrTooLarge, status: http.StatusRequestEntityTooLarge},
		{err: fmt.Errorf("%w: 10 bytes", session.ErrTranscriptTooLarge), status: http.StatusRequestEntityTooLarge},
		{err: &http.MaxBytesError{Limit: 1}, status: http.StatusRequestEntityTooLarge},
		{err: session.ErrSessionNotFound, status: http.StatusNotFound},
		{err: fmt.Errorf("%w: %q", metrics.ErrUnknownMetric, "x"), status: http.StatusNotFound},
		{err: metrics.ErrUnknownSender, status: http.StatusNotFound},
		{err: errors.New("disk on fire"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got, _ := Status(tt.err); got != tt.status {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.status, got)
		}
	}
}

func TestRespondHidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	Respond(rec, errors.New("secret detail"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret detail") {
		t.Fatalf("internal error leaked: %s", rec.Body.String())
	}
}
