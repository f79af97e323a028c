package metrics

import (
	"errors"
	"fmt"
)

// Section names addressable on a Report.
const (
	NameSummary    = "summary"
	NameVolume     = "volume"
	NameVibe       = "vibe"
	NameGhost      = "ghost"
	NameMonologues = "monologues"
	NameRoles      = "roles"
	NameActivity   = "activity"
	NameWords      = "words"
	NameEmojis     = "emojis"
	NameLinks      = "links"
	NameLength     = "length"
	NameBadges     = "badges"
	NameComparison = "comparison"
)

var (
	// ErrUnknownMetric is returned for a section name the engine does not produce.
	ErrUnknownMetric = errors.New("unknown metric")
	// ErrSelfRequired is returned when comparison is requested without a sender.
	ErrSelfRequired = errors.New("comparison requires a self sender")
	// ErrUnknownSender is returned when the comparison sender cannot be resolved.
	ErrUnknownSender = errors.New("unknown sender")
)

var sectionNames = []string{
	NameSummary, NameVolume, NameVibe, NameGhost, NameMonologues, NameRoles,
	NameActivity, NameWords, NameEmojis, NameLinks, NameLength, NameBadges,
}

// Names returns the cached section names in report order. Comparison is not
// included since it is derived per request.
func Names() []string {
	return append([]string(nil), sectionNames...)
}

// Known reports whether name addresses a metric, comparison included.
func Known(name string) bool {
	if name == NameComparison {
		return true
	}
	for _, n := range sectionNames {
		if n == name {
			return true
		}
	}
	return false
}

// Report holds every analyzer result for one session.
type Report struct {
	Summary    *Summary    `json:"summary"`
	Volume     *Volume     `json:"volume"`
	Vibe       *Vibe       `json:"vibe"`
	Ghost      *Ghost      `json:"ghost"`
	Monologues *Monologues `json:"monologues"`
	Roles      *Roles      `json:"roles"`
	Activity   *Activity   `json:"activity"`
	Words      *Words      `json:"words"`
	Emojis     *Emojis     `json:"emojis"`
	Links      *Links      `json:"links"`
	Length     *Length     `json:"length"`
	Badges     *Badges     `json:"badges"`
}

// Section returns the result stored under name.
func (r *Report) Section(name string) (any, error) {
	switch name {
	case NameSummary:
		return r.Summary, nil
	case NameVolume:
		return r.Volume, nil
	case NameVibe:
		return r.Vibe, nil
	case NameGhost:
		return r.Ghost, nil
	case NameMonologues:
		return r.Monologues, nil
	case NameRoles:
		return r.Roles, nil
	case NameActivity:
		return r.Activity, nil
	case NameWords:
		return r.Words, nil
	case NameEmojis:
		return r.Emojis, nil
	case NameLinks:
		return r.Links, nil
	case NameLength:
		return r.Length, nil
	case NameBadges:
		return r.Badges, nil
	case NameComparison:
		return nil, ErrSelfRequired
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
}
