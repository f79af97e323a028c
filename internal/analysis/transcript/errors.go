package transcript

import (
	"errors"
	"fmt"
)

// ErrNoMessages is wrapped by every ParseError.
var ErrNoMessages = errors.New("no line matches the transcript grammar")

// ParseError rejects input in which no line opens a message.
type ParseError struct {
	Lines  int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("transcript: %s (%d lines read)", e.Reason, e.Lines)
}

func (e *ParseError) Unwrap() error {
	return ErrNoMessages
}
