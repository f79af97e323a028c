package metrics

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/zhouzirui/vibecheck/backend/internal/analysis/anonymize"
	"github.com/zhouzirui/vibecheck/backend/internal/analysis/transcript"
	"github.com/zhouzirui/vibecheck/backend/internal/model/chat"
)

// Term is one ranked token.
type Term struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// Words is the word frequency section.
type Words struct {
	Tokens int    `json:"tokens"`
	Unique int    `json:"unique"`
	Top    []Term `json:"top"`
}

var defaultStopwords = []string{
	"a", "about", "after", "again", "all", "also", "am", "an", "and", "any", "are", "as", "at",
	"be", "because", "been", "before", "being", "but", "by", "can", "could", "did", "do", "does",
	"doing", "don't", "for", "from", "get", "got", "had", "has", "have", "he", "her", "here",
	"him", "his", "how", "i", "i'm", "if", "in", "into", "is", "it", "it's", "its", "just",
	"like", "me", "more", "my", "no", "not", "now", "of", "off", "oh", "ok", "okay", "on", "one",
	"only", "or", "our", "out", "over", "she", "so", "some", "than", "that", "that's", "the",
	"their", "them", "then", "there", "these", "they", "this", "those", "to", "too", "up", "us",
	"was", "we", "were", "what", "when", "where", "which", "who", "why", "will", "with", "would",
	"yeah", "yes", "you", "you're", "your",
}

// CountWords ranks tokens from eligible message bodies. Links and redaction
// tokens are stripped, tokens are case-folded, and short tokens, numbers and
// stopwords are dropped. Ties rank alphabetically.
func CountWords(msgs []chat.Message, cfg Config) *Words {
	cfg = cfg.Normalize()
	fold := cases.Fold()

	stop := make(map[string]struct{}, len(defaultStopwords)+len(cfg.ExtraStopwords))
	for _, w := range defaultStopwords {
		stop[w] = struct{}{}
	}
	for _, w := range cfg.ExtraStopwords {
		if w = strings.TrimSpace(w); w != "" {
			stop[fold.String(w)] = struct{}{}
		}
	}

	counts := make(map[string]int)
	w := &Words{Top: []Term{}}
	for _, m := range msgs {
		if !m.Eligible() {
			continue
		}
		text := transcript.LinkPattern.ReplaceAllString(m.Text, " ")
		text = strings.ReplaceAll(text, anonymize.RedactionToken, " ")
		for _, tok := range strings.FieldsFunc(text, isWordBreak) {
			tok = strings.Trim(fold.String(tok), "'\u2019")
			if utf8.RuneCountInString(tok) < cfg.MinWordLength || isNumber(tok) {
				continue
			}
			if _, ok := stop[tok]; ok {
				continue
			}
			counts[tok]++
			w.Tokens++
		}
	}

	w.Unique = len(counts)
	for term, n := range counts {
		w.Top = append(w.Top, Term{Term: term, Count: n})
	}
	sort.Slice(w.Top, func(i, j int) bool {
		if w.Top[i].Count != w.Top[j].Count {
			return w.Top[i].Count > w.Top[j].Count
		}
		return w.Top[i].Term < w.Top[j].Term
	})
	if len(w.Top) > cfg.TopWords {
		w.Top = w.Top[:cfg.TopWords]
	}
	return w
}

func isWordBreak(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '\u2019'
}

func isNumber(tok string) bool {
	for _, r := range tok {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return tok != ""
}
