package metrics

import "fmt"

// Badge names in evaluation order.
const (
	BadgeChatterbox = "Chatterbox"
	BadgeProfessor  = "Professor"
	BadgeEarlyBird  = "Early Bird"
	BadgeNightOwl   = "Night Owl"
	BadgeLightning  = "Lightning"
	BadgeGhost      = "Ghost"
	BadgeIgniter    = "Igniter"
	BadgeMicDrop    = "Mic Drop"
	BadgeMonologuer = "Monologuer"
	BadgeNewsSource = "News Source"
	BadgeComedian   = "Comedian"
	BadgeSunshine   = "Sunshine"
	BadgeStormCloud = "Storm Cloud"
)

// Award is one granted badge.
type Award struct {
	Badge  string  `json:"badge"`
	Sender string  `json:"sender"`
	Value  float64 `json:"value"`
	Reason string  `json:"reason"`
}

// Badges is the badge section.
type Badges struct {
	Awards   []Award             `json:"awards"`
	BySender map[string][]string `json:"bySender"`
}

type candidate struct {
	sender string
	value  float64
}

// badgeRule grants badge to the best candidate. Candidates come in
// first-seen sender order; the first of equal values wins.
type badgeRule struct {
	badge         string
	lowest        bool
	minCandidates int
	candidates    func(r *Report, cfg Config) []candidate
	reason        func(cfg Config, value float64) string
}

var badgeRules = []badgeRule{
	{
		badge: BadgeChatterbox,
		candidates: func(r *Report, cfg Config) []candidate {
			counts := make(map[string]float64)
			for sender, n := range r.Volume.counts() {
				counts[sender] = float64(n)
			}
			return topShare(participants(r), counts, cfg.BadgePercentile)
		},
		reason: func(_ Config, v float64) string { return fmt.Sprintf("sent %.0f messages", v) },
	},
	{
		badge: BadgeProfessor,
		candidates: func(r *Report, cfg Config) []candidate {
			if r.Length == nil {
				return nil
			}
			chars := make(map[string]float64, len(r.Length.Senders))
			for _, s := range r.Length.Senders {
				chars[s.Sender] = s.MeanChars
			}
			return topShare(participants(r), chars, cfg.BadgePercentile)
		},
		reason: func(_ Config, v float64) string { return fmt.Sprintf("averages %.1f characters per message", v) },
	},
	{
		badge: BadgeEarlyBird,
		candidates: func(r *Report, cfg Config) []candidate {
			return windowCandidates(r, cfg.EarlyBirdStart, cfg.EarlyBirdEnd)
		},
		reason: func(cfg Config, v float64) string {
			return fmt.Sprintf("%.0f messages between %02d:00 and %02d:00", v, cfg.EarlyBirdStart, cfg.EarlyBirdEnd)
		},
	},
	{
		badge: BadgeNightOwl,
		candidates: func(r *Report, cfg Config) []candidate {
			return windowCandidates(r, cfg.NightOwlStart, cfg.NightOwlEnd)
		},
		reason: func(cfg Config, v float64) string {
			return fmt.Sprintf("%.0f messages between %02d:00 and %02d:00", v, cfg.NightOwlStart, cfg.NightOwlEnd)
		},
	},
	{
		badge:         BadgeLightning,
		lowest:        true,
		minCandidates: 2,
		candidates:    latencyCandidates,
		reason:        func(_ Config, v float64) string { return fmt.Sprintf("replies in %.0fs on average", v) },
	},
	{
		badge:         BadgeGhost,
		minCandidates: 2,
		candidates:    latencyCandidates,
		reason:        func(_ Config, v float64) string { return fmt.Sprintf("takes %.0fs to reply on average", v) },
	},
	{
		badge: BadgeIgniter,
		candidates: func(r *Report, _ Config) []candidate {
			if r.Roles == nil {
				return nil
			}
			var out []candidate
			for _, s := range r.Roles.Senders {
				if s.Starts > 0 {
					out = append(out, candidate{s.Sender, float64(s.Starts)})
				}
			}
			return out
		},
		reason: func(_ Config, v float64) string { return fmt.Sprintf("started %.0f conversations", v) },
	},
	{
		badge: BadgeMicDrop,
		candidates: func(r *Report, _ Config) []candidate {
			if r.Roles == nil {
				return nil
			}
			var out []candidate
			for _, s := range r.Roles.Senders {
				if s.LastWords > 0 {
					out = append(out, candidate{s.Sender, float64(s.LastWords)})
				}
			}
			return out
		},
		reason: func(_ Config, v float64) string { return fmt.Sprintf("had the last word %.0f times", v) },
	},
	{
		badge: BadgeMonologuer,
		candidates: func(r *Report, _ Config) []candidate {
			if r.Monologues == nil {
				return nil
			}
			runs := make(map[string]float64)
			for _, s := range r.Monologues.Senders {
				runs[s.Sender] = float64(s.Runs)
			}
			return positive(participants(r), runs)
		},
		reason: func(_ Config, v float64) string { return fmt.Sprintf("%.0f monologues", v) },
	},
	{
		badge: BadgeNewsSource,
		candidates: func(r *Report, _ Config) []candidate {
			if r.Links == nil {
				return nil
			}
			links := make(map[string]float64)
			for _, s := range r.Links.Senders {
				links[s.Sender] = float64(s.Links)
			}
			return positive(participants(r), links)
		},
		reason: func(_ Config, v float64) string { return fmt.Sprintf("shared %.0f links", v) },
	},
	{
		badge: BadgeComedian,
		candidates: func(r *Report, _ Config) []candidate {
			if r.Emojis == nil {
				return nil
			}
			ratios := make(map[string]float64, len(r.Emojis.Senders))
			for _, s := range r.Emojis.Senders {
				ratios[s.Sender] = s.Ratio
			}
			return positive(participants(r), ratios)
		},
		reason: func(_ Config, v float64) string { return fmt.Sprintf("%.3f emojis per character", v) },
	},
	{
		badge: BadgeSunshine,
		candidates: func(r *Report, _ Config) []candidate {
			return vibeCandidates(r, func(m float64) bool { return m > 0 })
		},
		reason: func(_ Config, v float64) string { return fmt.Sprintf("average vibe %+.2f", v) },
	},
	{
		badge:  BadgeStormCloud,
		lowest: true,
		candidates: func(r *Report, _ Config) []candidate {
			return vibeCandidates(r, func(m float64) bool { return m < 0 })
		},
		reason: func(_ Config, v float64) string { return fmt.Sprintf("average vibe %+.2f", v) },
	},
}

// BadgeNames lists badges in evaluation order.
func BadgeNames() []string {
	out := make([]string, len(badgeRules))
	for i, rule := range badgeRules {
		out[i] = rule.badge
	}
	return out
}

// EvaluateBadges applies the rule table to an already computed report.
// Rules whose preconditions fail are skipped.
func EvaluateBadges(r *Report, cfg Config) *Badges {
	cfg = cfg.Normalize()
	b := &Badges{Awards: []Award{}, BySender: map[string][]string{}}
	if r == nil {
		return b
	}

	for _, rule := range badgeRules {
		cands := rule.candidates(r, cfg)
		if len(cands) == 0 || len(cands) < rule.minCandidates {
			continue
		}
		best := cands[0]
		for _, c := range cands[1:] {
			if (rule.lowest && c.value < best.value) || (!rule.lowest && c.value > best.value) {
				best = c
			}
		}
		b.Awards = append(b.Awards, Award{
			Badge:  rule.badge,
			Sender: best.sender,
			Value:  round(best.value, 4),
			Reason: rule.reason(cfg, best.value),
		})
		b.BySender[best.sender] = append(b.BySender[best.sender], rule.badge)
	}
	return b
}

func participants(r *Report) []string {
	if r.Summary == nil {
		return nil
	}
	return r.Summary.Participants
}

// topShare keeps senders whose value reaches the p-th percentile of all
// values. It needs at least two senders with a value.
func topShare(order []string, values map[string]float64, p float64) []candidate {
	var all []float64
	for _, s := range order {
		if v, ok := values[s]; ok {
			all = append(all, v)
		}
	}
	if len(all) < 2 {
		return nil
	}
	threshold := percentile(all, p)
	return ordered(order, values, func(v float64) bool { return v >= threshold })
}

func windowCandidates(r *Report, start, end int) []candidate {
	if r.Activity == nil {
		return nil
	}
	counts := make(map[string]float64, len(r.Activity.Senders))
	for _, s := range r.Activity.Senders {
		counts[s.Sender] = float64(s.InWindow(start, end))
	}
	return positive(participants(r), counts)
}

func latencyCandidates(r *Report, cfg Config) []candidate {
	if r.Ghost == nil {
		return nil
	}
	means := make(map[string]float64, len(r.Ghost.Senders))
	for _, s := range r.Ghost.Senders {
		if s.Replies >= cfg.BadgeMinReplies {
			means[s.Sender] = s.Mean.Std().Seconds()
		}
	}
	return ordered(participants(r), means, func(float64) bool { return true })
}

func vibeCandidates(r *Report, keep func(float64) bool) []candidate {
	if r.Vibe == nil {
		return nil
	}
	means := make(map[string]float64, len(r.Vibe.Senders))
	for _, s := range r.Vibe.Senders {
		means[s.Sender] = s.Mean
	}
	return ordered(participants(r), means, keep)
}

func positive(order []string, values map[string]float64) []candidate {
	return ordered(order, values, func(v float64) bool { return v > 0 })
}

// ordered lists senders present in values and accepted by keep, in order.
func ordered(order []string, values map[string]float64, keep func(float64) bool) []candidate {
	var out []candidate
	for _, s := range order {
		if v, ok := values[s]; ok && keep(v) {
			out = append(out, candidate{s, v})
		}
	}
	return out
}
