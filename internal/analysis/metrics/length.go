package metrics

import (
	"unicode/utf8"

	"github.com/zhouzirui/vibecheck/backend/internal/model/chat"
)

// Length classes.
const (
	ClassNovelist = "novelist"
	ClassOneLiner = "one-liner"
	ClassBalanced = "balanced"
)

const previewRunes = 200

// SenderLength is one sender's message length profile.
type SenderLength struct {
	Sender      string  `json:"sender"`
	Messages    int     `json:"messages"`
	MeanWords   float64 `json:"meanWords"`
	MedianWords float64 `json:"medianWords"`
	MeanChars   float64 `json:"meanChars"`
	MedianChars float64 `json:"medianChars"`
	Class       string  `json:"class"`
}

// LongestMessage points at the longest eligible message.
type LongestMessage struct {
	Sender  string `json:"sender"`
	Index   int    `json:"index"`
	Words   int    `json:"words"`
	Chars   int    `json:"chars"`
	Preview string `json:"preview"`
}

// Length is the message length section.
type Length struct {
	NovelistWords float64         `json:"novelistWords"`
	OneLinerWords float64         `json:"oneLinerWords"`
	Senders       []SenderLength  `json:"senders"`
	Longest       *LongestMessage `json:"longest,omitempty"`
}

// AnalyzeLength profiles word and character counts of eligible messages.
// A sender whose mean word count reaches the novelist percentile of all
// message word counts is a novelist; one at or under the one-liner
// percentile is a one-liner. When the two thresholds coincide every sender
// is balanced.
func AnalyzeLength(msgs []chat.Message, cfg Config) *Length {
	cfg = cfg.Normalize()
	l := &Length{Senders: []SenderLength{}}

	words := make(map[string][]float64)
	chars := make(map[string][]float64)
	var order []string
	var all []float64
	var longest *chat.Message

	for i := range msgs {
		m := &msgs[i]
		if !m.Eligible() {
			continue
		}
		if _, ok := words[m.Sender]; !ok {
			order = append(order, m.Sender)
		}
		words[m.Sender] = append(words[m.Sender], float64(m.Words))
		chars[m.Sender] = append(chars[m.Sender], float64(m.Chars))
		all = append(all, float64(m.Words))
		if longest == nil || m.Chars > longest.Chars {
			longest = m
		}
	}
	if len(all) == 0 {
		return l
	}

	l.NovelistWords = round(percentile(all, cfg.NovelistPercentile), 2)
	l.OneLinerWords = round(percentile(all, cfg.OneLinerPercentile), 2)
	spread := l.NovelistWords > l.OneLinerWords

	for _, sender := range order {
		sl := SenderLength{
			Sender:      sender,
			Messages:    len(words[sender]),
			MeanWords:   round(mean(words[sender]), 2),
			MedianWords: round(median(words[sender]), 2),
			MeanChars:   round(mean(chars[sender]), 2),
			MedianChars: round(median(chars[sender]), 2),
			Class:       ClassBalanced,
		}
		switch {
		case !spread:
		case sl.MeanWords >= l.NovelistWords:
			sl.Class = ClassNovelist
		case sl.MeanWords <= l.OneLinerWords:
			sl.Class = ClassOneLiner
		}
		l.Senders = append(l.Senders, sl)
	}

	l.Longest = &LongestMessage{
		Sender:  longest.Sender,
		Index:   longest.Index,
		Words:   longest.Words,
		Chars:   longest.Chars,
		Preview: preview(longest.Text, previewRunes),
	}
	return l
}

func preview(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + "..."
}
