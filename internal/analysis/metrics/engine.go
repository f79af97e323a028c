// Package metrics derives behavioral statistics from a normalized message
// sequence. Every analyzer is a pure function of the messages and the
// Config; Engine runs them concurrently and assembles a Report.
package metrics

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/vibecheck/backend/internal/analysis/vibe"
	"github.com/zhouzirui/vibecheck/backend/internal/model/chat"
)

// Engine is safe for concurrent use.
type Engine struct {
	cfg    Config
	scorer vibe.Scorer
}

// New returns an Engine. A nil scorer selects the built-in lexicon.
func New(cfg Config, scorer vibe.Scorer) *Engine {
	if scorer == nil {
		scorer = vibe.Default()
	}
	return &Engine{cfg: cfg.Normalize(), scorer: scorer}
}

// Config returns the normalized configuration in use.
func (e *Engine) Config() Config {
	return e.cfg
}

// Compute runs every analyzer over msgs. It only fails when ctx is done.
func (e *Engine) Compute(ctx context.Context, msgs []chat.Message) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{}
	g, gctx := errgroup.WithContext(ctx)
	run := func(fn func()) {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn()
			return nil
		})
	}

	run(func() { report.Summary = Summarize(msgs) })
	run(func() { report.Volume = AnalyzeVolume(msgs) })
	run(func() {
		scorer, release := vibe.ForReport(gctx, e.scorer)
		defer release()
		report.Vibe = AnalyzeVibe(msgs, e.cfg, scorer)
	})
	run(func() { report.Ghost = AnalyzeGhost(msgs, e.cfg) })
	run(func() { report.Monologues = FindMonologues(msgs, e.cfg) })
	run(func() { report.Roles = AnalyzeRoles(msgs, e.cfg) })
	run(func() { report.Activity = AnalyzeActivity(msgs) })
	run(func() { report.Words = CountWords(msgs, e.cfg) })
	run(func() { report.Emojis = AnalyzeEmojis(msgs, e.cfg) })
	run(func() { report.Links = CountLinks(msgs) })
	run(func() { report.Length = AnalyzeLength(msgs, e.cfg) })

	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Badges = EvaluateBadges(report, e.cfg)
	return report, nil
}
