// Package vibe defines the sentiment scoring capability used by the metric
// engine and ships a keyword lexicon implementation.
package vibe

import (
	"context"
	"math"
)

// Scorer rates a message body on [-1, 1]; negative is hostile or sad,
// positive is warm or excited, 0 is neutral.
type Scorer interface {
	Score(text string) float64
}

// Budgeter is a Scorer with per-report limits. ForReport returns the scorer
// to use for one report; release must be called once the report is done.
type Budgeter interface {
	Scorer
	ForReport(ctx context.Context) (scorer Scorer, release func())
}

// ForReport returns s bound to ctx when s is a Budgeter, s itself otherwise.
func ForReport(ctx context.Context, s Scorer) (Scorer, func()) {
	if b, ok := s.(Budgeter); ok {
		return b.ForReport(ctx)
	}
	return s, func() {}
}

// ScorerFunc adapts a plain function to Scorer.
type ScorerFunc func(text string) float64

// Score calls f.
func (f ScorerFunc) Score(text string) float64 { return f(text) }

// Clamp bounds v to [-1, 1]. NaN maps to 0.
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	case v < -1:
		return -1
	default:
		return v
	}
}
