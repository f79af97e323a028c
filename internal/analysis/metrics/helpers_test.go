package metrics

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/vibecheck/backend/internal/analysis/transcript"
	"github.com/zhouzirui/vibecheck/backend/internal/model/chat"
)

// at returns a January 2024 timestamp; the 1st is a Monday.
func at(day, hour, minute int) time.Time {
	return time.Date(2024, time.January, day, hour, minute, 0, 0, time.UTC)
}

func msg(sender string, ts time.Time, text string) chat.Message {
	return chat.Message{
		Timestamp: ts,
		Sender:    sender,
		Text:      text,
		Words:     len(strings.Fields(text)),
		Chars:     utf8.RuneCountInString(text),
		HasLink:   transcript.LinkPattern.MatchString(text),
	}
}

func system(ts time.Time, text string) chat.Message {
	return chat.Message{Timestamp: ts, System: true, Text: text}
}

func media(sender string, ts time.Time) chat.Message {
	return chat.Message{Timestamp: ts, Sender: sender, Media: true}
}

func seq(msgs ...chat.Message) []chat.Message {
	for i := range msgs {
		msgs[i].Index = i
	}
	return msgs
}

func parse(t *testing.T, raw string) []chat.Message {
	t.Helper()
	res, err := transcript.Parse(raw)
	require.NoError(t, err)
	return res.Messages
}

const scenario = "[1/2/24, 9:00:00 AM] Alice: hey\n" +
	"[1/2/24, 9:00:05 AM] Alice: you there?\n" +
	"[1/2/24, 9:05:00 AM] Bob: yes!\n"

const badgeTranscript = "[01/01/2024, 06:00:00] A: morning all\n" +
	"[01/01/2024, 06:01:00] A: anyone up\n" +
	"[01/01/2024, 06:02:00] A: hello?\n" +
	"[01/01/2024, 06:10:00] B: love it, great\n" +
	"[02/01/2024, 01:00:00] B: cannot sleep, terrible\n"
