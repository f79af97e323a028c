package metrics

import (
	"time"

	"github.com/zhouzirui/vibecheck/backend/internal/model/chat"
)

// SenderLatency is one sender's reply latency distribution.
type SenderLatency struct {
	Sender   string   `json:"sender"`
	Replies  int      `json:"replies"`
	Mean     Duration `json:"mean"`
	Median   Duration `json:"median"`
	Min      Duration `json:"min"`
	Max      Duration `json:"max"`
	StdDev   Duration `json:"stdDev"`
	CV       float64  `json:"cv"`
	Rereader bool     `json:"rereader"`
}

// Ghost is the response latency section.
type Ghost struct {
	Cutoff     Duration        `json:"cutoff"`
	Replies    int             `json:"replies"`
	Boundaries int             `json:"boundaries"`
	Mean       Duration        `json:"mean"`
	Senders    []SenderLatency `json:"senders"`
	Fastest    *SenderLatency  `json:"fastest,omitempty"`
	Slowest    *SenderLatency  `json:"slowest,omitempty"`
}

// AnalyzeGhost measures the gap before every attributed message whose sender
// differs from the previous attributed message's sender. Gaps longer than
// cfg.LatencyCutoff are conversation boundaries and are only counted.
func AnalyzeGhost(msgs []chat.Message, cfg Config) *Ghost {
	cfg = cfg.Normalize()
	g := &Ghost{Cutoff: Duration(cfg.LatencyCutoff), Senders: []SenderLatency{}}

	bySender := make(map[string][]float64)
	var order []string
	var all []float64
	var prev *chat.Message

	for i := range msgs {
		m := &msgs[i]
		if !m.Attributed() {
			continue
		}
		if prev != nil && prev.Sender != m.Sender {
			gap := m.Timestamp.Sub(prev.Timestamp)
			if gap < 0 {
				gap = 0
			}
			if gap > cfg.LatencyCutoff {
				g.Boundaries++
			} else {
				if _, ok := bySender[m.Sender]; !ok {
					order = append(order, m.Sender)
				}
				bySender[m.Sender] = append(bySender[m.Sender], float64(gap))
				all = append(all, float64(gap))
			}
		}
		prev = m
	}

	g.Replies = len(all)
	if g.Replies == 0 {
		return g
	}
	g.Mean = Duration(time.Duration(mean(all)))

	for _, sender := range order {
		lat := bySender[sender]
		avg := mean(lat)
		sd := stddev(lat)
		sl := SenderLatency{
			Sender:  sender,
			Replies: len(lat),
			Mean:    Duration(time.Duration(avg)),
			Median:  Duration(time.Duration(median(lat))),
			Min:     Duration(time.Duration(percentile(lat, 0))),
			Max:     Duration(time.Duration(percentile(lat, 1))),
			StdDev:  Duration(time.Duration(sd)),
		}
		if avg > 0 {
			sl.CV = round(sd/avg, 4)
		}
		sl.Rereader = sl.Replies >= cfg.RereaderMinReplies && sl.CV > cfg.RereaderCV
		g.Senders = append(g.Senders, sl)
	}

	fast, slow := 0, 0
	for i, s := range g.Senders {
		if s.Mean < g.Senders[fast].Mean {
			fast = i
		}
		if s.Mean > g.Senders[slow].Mean {
			slow = i
		}
	}
	f, s := g.Senders[fast], g.Senders[slow]
	g.Fastest, g.Slowest = &f, &s
	return g
}
