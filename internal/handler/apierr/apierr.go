// Package apierr maps domain errors onto HTTP status codes.
package apierr

import (
	"errors"
	"net/http"

	"github.com/zhouzirui/vibecheck/backend/internal/analysis/metrics"
	"github.com/zhouzirui/vibecheck/backend/internal/analysis/transcript"
	"github.com/zhouzirui/vibecheck/backend/internal/service/ingest"
	"github.com/zhouzirui/vibecheck/backend/internal/service/session"
	"github.com/zhouzirui/vibecheck/backend/pkg/utils"
)

// Status returns the status code for err and whether err is a known client error.
func Status(err error) (int, bool) {
	var parseErr *transcript.ParseError
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.As(err, &maxBytesErr),
		errors.Is(err, ingest.ErrTooLarge),
		errors.Is(err, session.ErrTranscriptTooLarge):
		return http.StatusRequestEntityTooLarge, true
	case errors.As(err, &parseErr),
		errors.Is(err, ingest.ErrUnsupportedFile),
		errors.Is(err, ingest.ErrNoTranscript),
		errors.Is(err, metrics.ErrSelfRequired):
		return http.StatusBadRequest, true
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, metrics.ErrUnknownMetric),
		errors.Is(err, metrics.ErrUnknownSender):
		return http.StatusNotFound, true
	default:
		return http.StatusInternalServerError, false
	}
}

// Respond writes err as a JSON error body. Unknown errors are reported
// without their message.
func Respond(w http.ResponseWriter, err error) {
	status, known := Status(err)
	msg := http.StatusText(status)
	if known {
		msg = err.Error()
	}
	utils.RespondError(w, status, msg)
}
