package metrics

import (
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"
)

// fuzzyThreshold is the minimum Jaro-Winkler similarity for a fuzzy match.
const fuzzyThreshold = 0.85

// Comparison metric keys.
const (
	CompareMessages      = "messages"
	CompareShare         = "share"
	CompareVibe          = "vibe"
	CompareLatency       = "meanLatencySeconds"
	CompareWords         = "meanWords"
	CompareChars         = "meanChars"
	CompareLinks         = "links"
	CompareEmojis        = "emojis"
	CompareMonologues    = "monologueRuns"
	CompareConversations = "conversationsStarted"
)

// MetricComparison places self within the group for one metric.
type MetricComparison struct {
	Metric     string  `json:"metric"`
	Available  bool    `json:"available"`
	Self       float64 `json:"self"`
	Mean       float64 `json:"mean"`
	Median     float64 `json:"median"`
	Delta      float64 `json:"delta"`
	Percentile float64 `json:"percentile"`
	Senders    int     `json:"senders"`
}

// Comparison is the self-versus-group section.
type Comparison struct {
	Self    string             `json:"self"`
	Metrics []MetricComparison `json:"metrics"`
}

// ResolveSender matches name against senders exactly, then ignoring case,
// then by Jaro-Winkler similarity. The best fuzzy score wins; ties keep the
// earlier sender.
func ResolveSender(senders []string, name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	for _, s := range senders {
		if s == name {
			return s, true
		}
	}
	for _, s := range senders {
		if strings.EqualFold(s, name) {
			return s, true
		}
	}

	best, bestScore := "", 0.0
	lowered := strings.ToLower(name)
	for _, s := range senders {
		score := matchr.JaroWinkler(strings.ToLower(s), lowered, false)
		if score >= fuzzyThreshold && score > bestScore {
			best, bestScore = s, score
		}
	}
	return best, best != ""
}

// Compare derives self-versus-group figures from a computed report.
func Compare(r *Report, self string) (*Comparison, error) {
	if strings.TrimSpace(self) == "" {
		return nil, ErrSelfRequired
	}
	if r == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSender, self)
	}
	order := participants(r)
	resolved, ok := ResolveSender(order, self)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSender, self)
	}

	cmp := &Comparison{Self: resolved}
	for _, series := range comparisonSeries(r, order) {
		cmp.Metrics = append(cmp.Metrics, compareOne(series.name, order, series.values, resolved))
	}
	return cmp, nil
}

type series struct {
	name   string
	values map[string]float64
}

func comparisonSeries(r *Report, order []string) []series {
	withZeros := func() map[string]float64 {
		m := make(map[string]float64, len(order))
		for _, s := range order {
			m[s] = 0
		}
		return m
	}

	messages, share := withZeros(), withZeros()
	if r.Volume != nil {
		for _, s := range r.Volume.Senders {
			messages[s.Sender] = float64(s.Messages)
			share[s.Sender] = s.Share
		}
	}

	vibes := map[string]float64{}
	if r.Vibe != nil {
		for _, s := range r.Vibe.Senders {
			vibes[s.Sender] = s.Mean
		}
	}

	latency := map[string]float64{}
	if r.Ghost != nil {
		for _, s := range r.Ghost.Senders {
			latency[s.Sender] = s.Mean.Std().Seconds()
		}
	}

	words, chars := map[string]float64{}, map[string]float64{}
	if r.Length != nil {
		for _, s := range r.Length.Senders {
			words[s.Sender] = s.MeanWords
			chars[s.Sender] = s.MeanChars
		}
	}

	links := withZeros()
	if r.Links != nil {
		for _, s := range r.Links.Senders {
			links[s.Sender] = float64(s.Links)
		}
	}

	emojis := withZeros()
	if r.Emojis != nil {
		for _, s := range r.Emojis.Senders {
			emojis[s.Sender] = float64(s.Emojis)
		}
	}

	runs := withZeros()
	if r.Monologues != nil {
		for _, s := range r.Monologues.Senders {
			runs[s.Sender] = float64(s.Runs)
		}
	}

	starts := withZeros()
	if r.Roles != nil {
		for _, s := range r.Roles.Senders {
			starts[s.Sender] = float64(s.Starts)
		}
	}

	return []series{
		{CompareMessages, messages},
		{CompareShare, share},
		{CompareVibe, vibes},
		{CompareLatency, latency},
		{CompareWords, words},
		{CompareChars, chars},
		{CompareLinks, links},
		{CompareEmojis, emojis},
		{CompareMonologues, runs},
		{CompareConversations, starts},
	}
}

func compareOne(name string, order []string, values map[string]float64, self string) MetricComparison {
	mc := MetricComparison{Metric: name}
	selfValue, ok := values[self]
	if !ok {
		return mc
	}

	var group []float64
	for _, s := range order {
		if v, ok := values[s]; ok {
			group = append(group, v)
		}
	}
	avg := mean(group)
	mc.Available = true
	mc.Senders = len(group)
	mc.Self = round(selfValue, 4)
	mc.Mean = round(avg, 4)
	mc.Median = round(median(group), 4)
	mc.Delta = round(selfValue-avg, 4)
	mc.Percentile = round(percentRank(group, selfValue), 2)
	return mc
}
