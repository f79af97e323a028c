package chat

import "time"

// Session captures a transient, anonymous analysis session.
type Session struct {
	ID           string     `json:"sessionId"`
	CreatedAt    time.Time  `json:"createdAt"`
	Messages     int        `json:"totalMessages"`
	Participants int        `json:"participants"`
	DroppedLines int        `json:"droppedLines"`
	DateOrder    string     `json:"dateOrder"`
	Start        *time.Time `json:"start,omitempty"`
	End          *time.Time `json:"end,omitempty"`
}
