package metrics

import (
	"time"

	"github.com/zhouzirui/vibecheck/backend/internal/model/chat"
)

// Segment is a span of attributed messages without a silence longer than
// the configured gap.
type Segment struct {
	Start     int       `json:"start"`
	End       int       `json:"end"`
	Messages  int       `json:"messages"`
	Starter   string    `json:"starter"`
	LastWord  string    `json:"lastWord"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// SenderRoles tallies how often a sender opened or closed a segment.
type SenderRoles struct {
	Sender    string `json:"sender"`
	Starts    int    `json:"starts"`
	LastWords int    `json:"lastWords"`
}

// Roles is the conversation roles section.
type Roles struct {
	Gap        Duration      `json:"gap"`
	Segments   []Segment     `json:"segments"`
	Senders    []SenderRoles `json:"senders"`
	TopStarter *SenderRoles  `json:"topStarter,omitempty"`
	TopEnder   *SenderRoles  `json:"topEnder,omitempty"`
}

// AnalyzeRoles splits attributed messages wherever consecutive timestamps are
// more than cfg.SegmentGap apart.
func AnalyzeRoles(msgs []chat.Message, cfg Config) *Roles {
	cfg = cfg.Normalize()
	roles := &Roles{Gap: Duration(cfg.SegmentGap), Segments: []Segment{}, Senders: []SenderRoles{}}

	var cur *Segment
	var prev *chat.Message
	for i := range msgs {
		m := &msgs[i]
		if !m.Attributed() {
			continue
		}
		if prev == nil || m.Timestamp.Sub(prev.Timestamp) > cfg.SegmentGap {
			roles.Segments = append(roles.Segments, Segment{
				Start:     m.Index,
				Starter:   m.Sender,
				StartTime: m.Timestamp,
			})
			cur = &roles.Segments[len(roles.Segments)-1]
		}
		cur.End = m.Index
		cur.LastWord = m.Sender
		cur.EndTime = m.Timestamp
		cur.Messages++
		prev = m
	}

	idx := make(map[string]int)
	for _, sender := range senderOrder(msgs) {
		idx[sender] = len(roles.Senders)
		roles.Senders = append(roles.Senders, SenderRoles{Sender: sender})
	}
	for _, seg := range roles.Segments {
		roles.Senders[idx[seg.Starter]].Starts++
		roles.Senders[idx[seg.LastWord]].LastWords++
	}

	if len(roles.Senders) > 0 {
		starter, ender := 0, 0
		for i, s := range roles.Senders {
			if s.Starts > roles.Senders[starter].Starts {
				starter = i
			}
			if s.LastWords > roles.Senders[ender].LastWords {
				ender = i
			}
		}
		st, en := roles.Senders[starter], roles.Senders[ender]
		roles.TopStarter, roles.TopEnder = &st, &en
	}
	return roles
}
