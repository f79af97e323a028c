package metrics

import (
	"sort"

	"github.com/zhouzirui/vibecheck/backend/internal/model/chat"
)

// SenderLinks counts messages carrying a URL.
type SenderLinks struct {
	Sender string `json:"sender"`
	Links  int    `json:"links"`
}

// Links is the link sharer section.
type Links struct {
	Total   int           `json:"total"`
	Senders []SenderLinks `json:"senders"`
	Top     *SenderLinks  `json:"top,omitempty"`
}

// CountLinks tallies attributed messages with a URL per sender. Senders
// without a link are omitted.
func CountLinks(msgs []chat.Message) *Links {
	l := &Links{Senders: []SenderLinks{}}
	idx := make(map[string]int)
	for _, m := range msgs {
		if !m.Attributed() || !m.HasLink {
			continue
		}
		i, ok := idx[m.Sender]
		if !ok {
			i = len(l.Senders)
			idx[m.Sender] = i
			l.Senders = append(l.Senders, SenderLinks{Sender: m.Sender})
		}
		l.Senders[i].Links++
		l.Total++
	}
	sort.SliceStable(l.Senders, func(i, j int) bool {
		return l.Senders[i].Links > l.Senders[j].Links
	})
	if len(l.Senders) > 0 {
		top := l.Senders[0]
		l.Top = &top
	}
	return l
}
