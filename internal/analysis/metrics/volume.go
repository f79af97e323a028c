package metrics

import (
	"sort"

	"github.com/zhouzirui/vibecheck/backend/internal/model/chat"
)

// SenderVolume is one sender's share of attributed messages.
type SenderVolume struct {
	Sender   string  `json:"sender"`
	Messages int     `json:"messages"`
	Share    float64 `json:"share"`
}

// Volume ranks senders by message count.
type Volume struct {
	Total        int            `json:"total"`
	Senders      []SenderVolume `json:"senders"`
	Top          *SenderVolume  `json:"top,omitempty"`
	SystemEvents int            `json:"systemEvents"`
}

// AnalyzeVolume counts attributed messages per sender. Senders are sorted by
// count descending, ties in first-seen order. Share is a percentage.
func AnalyzeVolume(msgs []chat.Message) *Volume {
	v := &Volume{Senders: []SenderVolume{}}
	counts := make(map[string]int)
	for _, m := range msgs {
		switch {
		case m.Attributed():
			counts[m.Sender]++
			v.Total++
		case m.System && !m.Duplicate:
			v.SystemEvents++
		}
	}

	for _, sender := range senderOrder(msgs) {
		v.Senders = append(v.Senders, SenderVolume{
			Sender:   sender,
			Messages: counts[sender],
			Share:    round(float64(counts[sender])/float64(v.Total)*100, 2),
		})
	}
	sort.SliceStable(v.Senders, func(i, j int) bool {
		return v.Senders[i].Messages > v.Senders[j].Messages
	})
	if len(v.Senders) > 0 {
		top := v.Senders[0]
		v.Top = &top
	}
	return v
}

// counts returns sender -> messages.
func (v *Volume) counts() map[string]int {
	out := make(map[string]int)
	if v == nil {
		return out
	}
	for _, s := range v.Senders {
		out[s.Sender] = s.Messages
	}
	return out
}
