package metrics

import (
	"fmt"
	"time"

	"github.com/zhouzirui/vibecheck/backend/internal/analysis/vibe"
	"github.com/zhouzirui/vibecheck/backend/internal/model/chat"
)

// VibeStat aggregates scores in [-1, 1].
type VibeStat struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// SenderVibe is one sender's sentiment.
type SenderVibe struct {
	Sender string `json:"sender"`
	VibeStat
}

// BucketVibe is the sentiment of one calendar bucket.
type BucketVibe struct {
	Bucket string    `json:"bucket"`
	Start  time.Time `json:"start"`
	VibeStat
}

// Vibe is the sentiment section.
type Vibe struct {
	Overall      float64      `json:"overall"`
	Scored       int          `json:"scored"`
	Granularity  Bucket       `json:"granularity"`
	Senders      []SenderVibe `json:"senders"`
	Buckets      []BucketVibe `json:"buckets"`
	MostPositive *SenderVibe  `json:"mostPositive,omitempty"`
	MostNegative *SenderVibe  `json:"mostNegative,omitempty"`
}

// AnalyzeVibe scores every eligible message. Scorer output is clamped to
// [-1, 1]. Overall is the message-count-weighted mean of sender means.
func AnalyzeVibe(msgs []chat.Message, cfg Config, scorer vibe.Scorer) *Vibe {
	cfg = cfg.Normalize()
	if scorer == nil {
		scorer = vibe.Default()
	}

	v := &Vibe{Granularity: cfg.VibeBucket, Senders: []SenderVibe{}, Buckets: []BucketVibe{}}
	bySender := make(map[string][]float64)
	var order []string

	type bucketAcc struct {
		start  time.Time
		scores []float64
	}
	var buckets []*bucketAcc
	bucketIdx := make(map[string]int)
	var bucketKeys []string

	for _, m := range msgs {
		if !m.Eligible() {
			continue
		}
		score := vibe.Clamp(scorer.Score(m.Text))
		if _, ok := bySender[m.Sender]; !ok {
			order = append(order, m.Sender)
		}
		bySender[m.Sender] = append(bySender[m.Sender], score)

		key, start := bucketOf(m.Timestamp, cfg.VibeBucket)
		i, ok := bucketIdx[key]
		if !ok {
			i = len(buckets)
			bucketIdx[key] = i
			bucketKeys = append(bucketKeys, key)
			buckets = append(buckets, &bucketAcc{start: start})
		}
		buckets[i].scores = append(buckets[i].scores, score)
		v.Scored++
	}
	if v.Scored == 0 {
		return v
	}

	weighted := 0.0
	for _, sender := range order {
		scores := bySender[sender]
		sv := SenderVibe{Sender: sender, VibeStat: statOf(scores)}
		weighted += mean(scores) * float64(len(scores))
		v.Senders = append(v.Senders, sv)
	}
	v.Overall = round(weighted/float64(v.Scored), 4)

	for i, b := range buckets {
		v.Buckets = append(v.Buckets, BucketVibe{Bucket: bucketKeys[i], Start: b.start, VibeStat: statOf(b.scores)})
	}

	best, worst := 0, 0
	for i, s := range v.Senders {
		if s.Mean > v.Senders[best].Mean {
			best = i
		}
		if s.Mean < v.Senders[worst].Mean {
			worst = i
		}
	}
	pos, neg := v.Senders[best], v.Senders[worst]
	v.MostPositive, v.MostNegative = &pos, &neg
	return v
}

func statOf(scores []float64) VibeStat {
	return VibeStat{
		Count:  len(scores),
		Mean:   round(mean(scores), 4),
		Median: round(median(scores), 4),
	}
}

func bucketOf(t time.Time, b Bucket) (string, time.Time) {
	switch b {
	case BucketDay:
		start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		return start.Format("2006-01-02"), start
	case BucketWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		start := day.AddDate(0, 0, -mondayIndex(day.Weekday()))
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week), start
	default:
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
		return start.Format("2006-01"), start
	}
}

// mondayIndex maps Monday to 0 and Sunday to 6.
func mondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}
