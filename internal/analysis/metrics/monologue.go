package metrics

import (
	"github.com/zhouzirui/vibecheck/backend/internal/model/chat"
)

// Run is a maximal sequence of consecutive attributed messages by one
// sender. Start and End are message indexes.
type Run struct {
	Sender   string   `json:"sender"`
	Start    int      `json:"start"`
	End      int      `json:"end"`
	Length   int      `json:"length"`
	Duration Duration `json:"duration"`
}

// SenderMonologues tallies one sender's runs.
type SenderMonologues struct {
	Sender   string `json:"sender"`
	Runs     int    `json:"runs"`
	Longest  int    `json:"longest"`
	Messages int    `json:"messages"`
}

// Monologues is the monologue section.
type Monologues struct {
	Threshold int                `json:"threshold"`
	Runs      []Run              `json:"runs"`
	Senders   []SenderMonologues `json:"senders"`
	Top       *SenderMonologues  `json:"top,omitempty"`
}

// FindMonologues records every run of at least cfg.MonologueThreshold
// messages. System messages do not interrupt a run.
func FindMonologues(msgs []chat.Message, cfg Config) *Monologues {
	cfg = cfg.Normalize()
	mono := &Monologues{Threshold: cfg.MonologueThreshold, Runs: []Run{}, Senders: []SenderMonologues{}}

	var first, last *chat.Message
	length := 0
	flush := func() {
		if first == nil || length < cfg.MonologueThreshold {
			return
		}
		mono.Runs = append(mono.Runs, Run{
			Sender:   first.Sender,
			Start:    first.Index,
			End:      last.Index,
			Length:   length,
			Duration: Duration(last.Timestamp.Sub(first.Timestamp)),
		})
	}

	for i := range msgs {
		m := &msgs[i]
		if !m.Attributed() {
			continue
		}
		if first != nil && first.Sender == m.Sender {
			last = m
			length++
			continue
		}
		flush()
		first, last, length = m, m, 1
	}
	flush()

	idx := make(map[string]int)
	for _, r := range mono.Runs {
		i, ok := idx[r.Sender]
		if !ok {
			i = len(mono.Senders)
			idx[r.Sender] = i
			mono.Senders = append(mono.Senders, SenderMonologues{Sender: r.Sender})
		}
		s := &mono.Senders[i]
		s.Runs++
		s.Messages += r.Length
		if r.Length > s.Longest {
			s.Longest = r.Length
		}
	}

	if len(mono.Senders) > 0 {
		best := 0
		for i, s := range mono.Senders {
			b := mono.Senders[best]
			if s.Runs > b.Runs || (s.Runs == b.Runs && s.Longest > b.Longest) {
				best = i
			}
		}
		top := mono.Senders[best]
		mono.Top = &top
	}
	return mono
}
