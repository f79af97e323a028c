// Package anonymize rewrites sender identifiers to stable pseudonyms and
// redacts personal data found in message bodies.
package anonymize

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/zhouzirui/vibecheck/backend/internal/model/chat"
)

// RedactionToken replaces every redacted span. It contains no letters or
// digits, so tokenizers skip it.
const RedactionToken = "\u2588\u2588\u2588\u2588"

const defaultLabelPrefix = "Participant"

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\(?\d[\d\s\-.()]{5,}\d`)
	datePattern  = regexp.MustCompile(`\b\d{1,4}[-./]\d{1,2}[-./]\d{2,4}\b`)
	yearsPattern = regexp.MustCompile(`^(?:(?:19|20)\d{2}\s+)*(?:19|20)\d{2}$`)
)

const (
	minPhoneDigits     = 7
	ungroupedMinDigits = 9
)

// Mapping is a one-to-one map between raw sender identifiers and labels.
type Mapping struct {
	labels map[string]string
	raws   map[string]string
	order  []string
}

func newMapping() *Mapping {
	return &Mapping{labels: make(map[string]string), raws: make(map[string]string)}
}

// Label returns the label assigned to raw.
func (m *Mapping) Label(raw string) (string, bool) {
	if m == nil {
		return "", false
	}
	l, ok := m.labels[raw]
	return l, ok
}

// Raw returns the raw identifier behind label.
func (m *Mapping) Raw(label string) (string, bool) {
	if m == nil {
		return "", false
	}
	r, ok := m.raws[label]
	return r, ok
}

// Len returns the number of mapped senders.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.order)
}

// Senders returns raw identifiers in first-seen order.
func (m *Mapping) Senders() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.order...)
}

func (m *Mapping) add(raw, label string) {
	m.labels[raw] = label
	m.raws[label] = raw
	m.order = append(m.order, raw)
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithPseudonyms toggles sender relabelling. Default: on.
func WithPseudonyms(enabled bool) Option {
	return func(n *Normalizer) { n.pseudonyms = enabled }
}

// WithRedaction toggles phone and email redaction. Default: on.
func WithRedaction(enabled bool) Option {
	return func(n *Normalizer) { n.redact = enabled }
}

// WithLabelPrefix changes the pseudonym prefix ("Participant 1").
func WithLabelPrefix(prefix string) Option {
	return func(n *Normalizer) {
		if p := strings.TrimSpace(prefix); p != "" {
			n.prefix = p
		}
	}
}

// Normalizer is stateless between calls and safe for concurrent use.
type Normalizer struct {
	pseudonyms bool
	redact     bool
	prefix     string
}

// New returns a Normalizer with pseudonyms and redaction enabled.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{pseudonyms: true, redact: true, prefix: defaultLabelPrefix}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Normalize returns a rewritten copy of msgs and the sender mapping used.
// The input slice is not modified. With pseudonyms disabled the mapping is
// the identity.
func (n *Normalizer) Normalize(msgs []chat.Message) ([]chat.Message, *Mapping) {
	mapping := newMapping()
	for _, m := range msgs {
		if m.Sender == "" {
			continue
		}
		if _, ok := mapping.labels[m.Sender]; ok {
			continue
		}
		label := m.Sender
		if n.pseudonyms {
			label = fmt.Sprintf("%s %d", n.prefix, len(mapping.order)+1)
		}
		mapping.add(m.Sender, label)
	}

	var names *strings.Replacer
	if n.pseudonyms && mapping.Len() > 0 {
		names = nameReplacer(mapping)
	}

	out := make([]chat.Message, len(msgs))
	for i, m := range msgs {
		if m.Sender != "" {
			m.Sender = mapping.labels[m.Sender]
		}
		if n.redact {
			m.Text = Redact(m.Text)
		}
		if m.System && names != nil {
			m.Text = names.Replace(m.Text)
		}
		out[i] = m
	}
	return out, mapping
}

// nameReplacer rewrites raw names inside notices, longest name first so
// "Ann Lee" is not split by "Ann".
func nameReplacer(m *Mapping) *strings.Replacer {
	raws := m.Senders()
	sort.SliceStable(raws, func(i, j int) bool { return len(raws[i]) > len(raws[j]) })
	pairs := make([]string, 0, len(raws)*2)
	for _, r := range raws {
		pairs = append(pairs, r, m.labels[r])
	}
	return strings.NewReplacer(pairs...)
}

// Redact replaces email addresses and phone numbers in text with
// RedactionToken. Candidates that do not look like a phone number are kept.
func Redact(text string) string {
	if text == "" {
		return text
	}
	text = emailPattern.ReplaceAllString(text, RedactionToken)
	return phonePattern.ReplaceAllStringFunc(text, func(candidate string) string {
		if !phoneLike(candidate) {
			return candidate
		}
		return RedactionToken
	})
}

// phoneLike rejects dates and year lists. Without a leading + a number needs
// either separators or ungroupedMinDigits digits.
func phoneLike(candidate string) bool {
	digits := countDigits(candidate)
	if digits < minPhoneDigits {
		return false
	}
	if datePattern.MatchString(candidate) || yearsPattern.MatchString(candidate) {
		return false
	}
	if strings.HasPrefix(candidate, "+") || digits >= ungroupedMinDigits {
		return true
	}
	return digits != len(candidate)
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
