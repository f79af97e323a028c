package chat

import "time"

// Message is one parsed transcript entry. It is never mutated after the parse pass.
type Message struct {
	Index             int       `json:"index"`
	Line              int       `json:"line"`
	Timestamp         time.Time `json:"timestamp"`
	TimestampInferred bool      `json:"timestampInferred,omitempty"`
	Sender            string    `json:"sender,omitempty"`
	Text              string    `json:"text"`
	System            bool      `json:"system,omitempty"`
	Media             bool      `json:"media,omitempty"`
	Duplicate         bool      `json:"duplicate,omitempty"`
	Words             int       `json:"words"`
	Chars             int       `json:"chars"`
	HasLink           bool      `json:"hasLink,omitempty"`
}

// Attributed reports whether the message counts toward per-sender statistics.
func (m Message) Attributed() bool {
	return !m.System && !m.Duplicate && m.Sender != ""
}

// Eligible reports whether the message body can feed text analyzers
// (sentiment, word frequency, length).
func (m Message) Eligible() bool {
	if !m.Attributed() || m.Media {
		return false
	}
	for _, r := range m.Text {
		if r != ' ' && r != '\n' && r != '\t' && r != '\r' {
			return true
		}
	}
	return false
}
