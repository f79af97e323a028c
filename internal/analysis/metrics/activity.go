package metrics

import (
	"time"

	"github.com/zhouzirui/vibecheck/backend/internal/model/chat"
)

// Weekdays lists day names Monday first, matching Activity.Days.
var Weekdays = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// SenderActivity is one sender's hour-of-day histogram.
type SenderActivity struct {
	Sender   string  `json:"sender"`
	Messages int     `json:"messages"`
	Hours    [24]int `json:"hours"`
}

// Activity is the time-of-day section.
type Activity struct {
	Total    int              `json:"total"`
	Hours    [24]int          `json:"hours"`
	Days     [7]int           `json:"days"`
	PeakHour *int             `json:"peakHour,omitempty"`
	PeakDay  *string          `json:"peakDay,omitempty"`
	Weekday  int              `json:"weekday"`
	Weekend  int              `json:"weekend"`
	Senders  []SenderActivity `json:"senders"`
}

// AnalyzeActivity builds hour and day histograms over attributed messages.
// Peaks favour the earliest hour and Monday on ties.
func AnalyzeActivity(msgs []chat.Message) *Activity {
	a := &Activity{Senders: []SenderActivity{}}
	idx := make(map[string]int)

	for _, m := range msgs {
		if !m.Attributed() {
			continue
		}
		hour := m.Timestamp.Hour()
		day := mondayIndex(m.Timestamp.Weekday())
		a.Total++
		a.Hours[hour]++
		a.Days[day]++
		if m.Timestamp.Weekday() == time.Saturday || m.Timestamp.Weekday() == time.Sunday {
			a.Weekend++
		} else {
			a.Weekday++
		}

		i, ok := idx[m.Sender]
		if !ok {
			i = len(a.Senders)
			idx[m.Sender] = i
			a.Senders = append(a.Senders, SenderActivity{Sender: m.Sender})
		}
		a.Senders[i].Messages++
		a.Senders[i].Hours[hour]++
	}
	if a.Total == 0 {
		return a
	}

	peakHour := argmax(a.Hours[:])
	peakDay := Weekdays[argmax(a.Days[:])]
	a.PeakHour, a.PeakDay = &peakHour, &peakDay
	return a
}

// InWindow counts the sender's messages with an hour in [start, end).
func (s SenderActivity) InWindow(start, end int) int {
	n := 0
	for h := range s.Hours {
		if inWindow(h, start, end) {
			n += s.Hours[h]
		}
	}
	return n
}

func argmax(xs []int) int {
	best := 0
	for i, x := range xs {
		if x > xs[best] {
			best = i
		}
	}
	return best
}
