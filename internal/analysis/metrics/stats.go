package metrics

import (
	"math"
	"sort"
	"strconv"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/zhouzirui/vibecheck/backend/internal/model/chat"
)

// Duration is a time.Duration that serializes as seconds.
type Duration time.Duration

// MarshalJSON encodes d as a number of seconds.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(round(time.Duration(d).Seconds(), 3), 'f', -1, 64)), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

func median(xs []float64) float64 {
	return percentile(xs, 0.5)
}

// percentile interpolates linearly between closest ranks; p is in [0, 1].
// gonum's LinInterp is the p·n estimator, so p is shifted onto it.
func percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := float64(len(sorted))
	switch {
	case p <= 0:
		return sorted[0]
	case p >= 1:
		return sorted[len(sorted)-1]
	}
	q := math.Min((p*(n-1)+1)/n, 1)
	return stat.Quantile(q, stat.LinInterp, sorted, nil)
}

// stddev is the population standard deviation.
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return math.Sqrt(stat.PopVariance(xs, nil))
}

// percentRank is (below + equal/2) / n * 100.
func percentRank(xs []float64, v float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	below, equal := 0, 0
	for _, x := range xs {
		switch {
		case x < v:
			below++
		case x == v:
			equal++
		}
	}
	return (float64(below) + 0.5*float64(equal)) / float64(len(xs)) * 100
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// senderOrder lists attributed senders in first-seen order.
func senderOrder(msgs []chat.Message) []string {
	seen := make(map[string]struct{})
	var order []string
	for _, m := range msgs {
		if !m.Attributed() {
			continue
		}
		if _, ok := seen[m.Sender]; ok {
			continue
		}
		seen[m.Sender] = struct{}{}
		order = append(order, m.Sender)
	}
	return order
}
