package metrics

import (
	"fmt"
	"strings"
	"time"
)

// Bucket is the time granularity of the vibe timeline.
type Bucket string

const (
	BucketDay   Bucket = "day"
	BucketWeek  Bucket = "week"
	BucketMonth Bucket = "month"
)

// Config holds analyzer thresholds. Zero fields fall back to DefaultConfig
// when passed through Normalize.
type Config struct {
	LatencyCutoff      time.Duration `yaml:"latency_cutoff" json:"latencyCutoff"`
	RereaderCV         float64       `yaml:"rereader_cv" json:"rereaderCv"`
	RereaderMinReplies int           `yaml:"rereader_min_replies" json:"rereaderMinReplies"`
	MonologueThreshold int           `yaml:"monologue_threshold" json:"monologueThreshold"`
	SegmentGap         time.Duration `yaml:"segment_gap" json:"segmentGap"`
	TopWords           int           `yaml:"top_words" json:"topWords"`
	MinWordLength      int           `yaml:"min_word_length" json:"minWordLength"`
	TopEmojis          int           `yaml:"top_emojis" json:"topEmojis"`
	ExtraStopwords     []string      `yaml:"extra_stopwords" json:"extraStopwords,omitempty"`
	VibeBucket         Bucket        `yaml:"vibe_bucket" json:"vibeBucket"`
	EarlyBirdStart     int           `yaml:"early_bird_start" json:"earlyBirdStart"`
	EarlyBirdEnd       int           `yaml:"early_bird_end" json:"earlyBirdEnd"`
	NightOwlStart      int           `yaml:"night_owl_start" json:"nightOwlStart"`
	NightOwlEnd        int           `yaml:"night_owl_end" json:"nightOwlEnd"`
	NovelistPercentile float64       `yaml:"novelist_percentile" json:"novelistPercentile"`
	OneLinerPercentile float64       `yaml:"one_liner_percentile" json:"oneLinerPercentile"`
	BadgePercentile    float64       `yaml:"badge_percentile" json:"badgePercentile"`
	BadgeMinReplies    int           `yaml:"badge_min_replies" json:"badgeMinReplies"`
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		LatencyCutoff:      24 * time.Hour,
		RereaderCV:         1.0,
		RereaderMinReplies: 3,
		MonologueThreshold: 3,
		SegmentGap:         3 * time.Hour,
		TopWords:           50,
		MinWordLength:      3,
		TopEmojis:          10,
		VibeBucket:         BucketMonth,
		EarlyBirdStart:     5,
		EarlyBirdEnd:       8,
		NightOwlStart:      0,
		NightOwlEnd:        5,
		NovelistPercentile: 0.75,
		OneLinerPercentile: 0.25,
		BadgePercentile:    0.9,
		BadgeMinReplies:    3,
	}
}

// Normalize fills unset fields from DefaultConfig. Hour windows are only
// replaced when both bounds are zero, so a window starting at midnight
// survives.
func (c Config) Normalize() Config {
	d := DefaultConfig()
	if c.LatencyCutoff <= 0 {
		c.LatencyCutoff = d.LatencyCutoff
	}
	if c.RereaderCV <= 0 {
		c.RereaderCV = d.RereaderCV
	}
	if c.RereaderMinReplies <= 0 {
		c.RereaderMinReplies = d.RereaderMinReplies
	}
	if c.MonologueThreshold <= 0 {
		c.MonologueThreshold = d.MonologueThreshold
	}
	if c.SegmentGap <= 0 {
		c.SegmentGap = d.SegmentGap
	}
	if c.TopWords <= 0 {
		c.TopWords = d.TopWords
	}
	if c.MinWordLength <= 0 {
		c.MinWordLength = d.MinWordLength
	}
	if c.TopEmojis <= 0 {
		c.TopEmojis = d.TopEmojis
	}
	c.VibeBucket = Bucket(strings.ToLower(strings.TrimSpace(string(c.VibeBucket))))
	if c.VibeBucket == "" {
		c.VibeBucket = d.VibeBucket
	}
	if c.EarlyBirdStart == 0 && c.EarlyBirdEnd == 0 {
		c.EarlyBirdStart, c.EarlyBirdEnd = d.EarlyBirdStart, d.EarlyBirdEnd
	}
	if c.NightOwlStart == 0 && c.NightOwlEnd == 0 {
		c.NightOwlStart, c.NightOwlEnd = d.NightOwlStart, d.NightOwlEnd
	}
	if c.NovelistPercentile <= 0 {
		c.NovelistPercentile = d.NovelistPercentile
	}
	if c.OneLinerPercentile <= 0 {
		c.OneLinerPercentile = d.OneLinerPercentile
	}
	if c.BadgePercentile <= 0 {
		c.BadgePercentile = d.BadgePercentile
	}
	if c.BadgeMinReplies <= 0 {
		c.BadgeMinReplies = d.BadgeMinReplies
	}
	return c
}

// Validate reports values Normalize cannot repair.
func (c Config) Validate() error {
	switch c.VibeBucket {
	case BucketDay, BucketWeek, BucketMonth:
	default:
		return fmt.Errorf("metrics: unknown vibe bucket %q", c.VibeBucket)
	}
	for name, h := range map[string]int{
		"early_bird_start": c.EarlyBirdStart,
		"early_bird_end":   c.EarlyBirdEnd,
		"night_owl_start":  c.NightOwlStart,
		"night_owl_end":    c.NightOwlEnd,
	} {
		if h < 0 || h > 24 {
			return fmt.Errorf("metrics: %s must be within 0-24, got %d", name, h)
		}
	}
	if c.EarlyBirdStart >= c.EarlyBirdEnd {
		return fmt.Errorf("metrics: early bird window %d-%d is empty", c.EarlyBirdStart, c.EarlyBirdEnd)
	}
	if c.NightOwlStart >= c.NightOwlEnd {
		return fmt.Errorf("metrics: night owl window %d-%d is empty", c.NightOwlStart, c.NightOwlEnd)
	}
	for name, p := range map[string]float64{
		"novelist_percentile":  c.NovelistPercentile,
		"one_liner_percentile": c.OneLinerPercentile,
		"badge_percentile":     c.BadgePercentile,
	} {
		if p <= 0 || p > 1 {
			return fmt.Errorf("metrics: %s must be within (0, 1], got %g", name, p)
		}
	}
	if c.OneLinerPercentile > c.NovelistPercentile {
		return fmt.Errorf("metrics: one_liner_percentile %g exceeds novelist_percentile %g", c.OneLinerPercentile, c.NovelistPercentile)
	}
	return nil
}

func inWindow(hour, start, end int) bool {
	return hour >= start && hour < end
}
