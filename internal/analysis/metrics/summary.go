package metrics

import (
	"time"

	"github.com/zhouzirui/vibecheck/backend/internal/model/chat"
)

// Summary describes the transcript as a whole.
type Summary struct {
	Start              *time.Time `json:"start,omitempty"`
	End                *time.Time `json:"end,omitempty"`
	SpanDays           int        `json:"spanDays"`
	TotalMessages      int        `json:"totalMessages"`
	AttributedMessages int        `json:"attributedMessages"`
	SystemMessages     int        `json:"systemMessages"`
	MediaMessages      int        `json:"mediaMessages"`
	DuplicateMessages  int        `json:"duplicateMessages"`
	MessagesPerDay     float64    `json:"messagesPerDay"`
	Participants       []string   `json:"participants"`
}

// Summarize counts message kinds and the calendar span.
func Summarize(msgs []chat.Message) *Summary {
	s := &Summary{TotalMessages: len(msgs), Participants: senderOrder(msgs)}
	if s.Participants == nil {
		s.Participants = []string{}
	}
	for _, m := range msgs {
		switch {
		case m.Duplicate:
			s.DuplicateMessages++
		case m.System:
			s.SystemMessages++
		case m.Attributed():
			s.AttributedMessages++
			if m.Media {
				s.MediaMessages++
			}
		}
	}
	if len(msgs) == 0 {
		return s
	}

	start, end := msgs[0].Timestamp, msgs[len(msgs)-1].Timestamp
	s.Start, s.End = &start, &end
	s.SpanDays = calendarDays(start, end)
	s.MessagesPerDay = round(float64(s.AttributedMessages)/float64(s.SpanDays), 2)
	return s
}

// calendarDays counts the dates touched between start and end, inclusive.
func calendarDays(start, end time.Time) int {
	from := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	days := int(to.Sub(from).Hours()/24) + 1
	if days < 1 {
		return 1
	}
	return days
}
