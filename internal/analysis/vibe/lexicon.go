package vibe

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// normalizeAlpha controls how fast raw keyword totals approach ±1.
const normalizeAlpha = 15.0

const (
	keywordWeight     = 2.0
	intensifierFactor = 1.5
	negationFactor    = -0.75
	exclamationBoost  = 0.3
	maxExclamations   = 3
	negationWindow    = 3
)

var positiveWords = []string{
	"love", "loved", "lovely", "great", "awesome", "amazing", "good", "nice", "happy", "glad",
	"thanks", "thank", "thx", "cool", "fun", "funny", "haha", "hahaha", "lol", "lmao", "yay",
	"perfect", "excellent", "fantastic", "beautiful", "congrats", "congratulations", "wonderful",
	"best", "cute", "sweet", "excited", "exciting", "brilliant", "enjoy", "enjoyed", "wow", "yes",
	"agree", "proud", "hug", "hugs",
}

var negativeWords = []string{
	"hate", "hated", "bad", "awful", "terrible", "horrible", "sad", "angry", "mad", "annoyed",
	"annoying", "upset", "hurt", "sorry", "worst", "sucks", "stupid", "boring", "tired", "ugh",
	"cry", "crying", "depressed", "disappointed", "furious", "pissed", "sick", "wrong", "fail",
	"failed", "lonely", "scared", "worried", "stress", "stressed", "ridiculous", "unfortunately",
}

// cjkBuckets are matched as substrings since CJK text carries no spaces.
var cjkBuckets = map[string]float64{
	"开心": keywordWeight, "高兴": keywordWeight, "哈哈": keywordWeight,
	"太棒了": keywordWeight, "喜欢": keywordWeight, "谢谢": keywordWeight,
	"难过": -keywordWeight, "伤心": -keywordWeight, "生气": -keywordWeight,
	"烦死": -keywordWeight, "失望": -keywordWeight, "愤怒": -keywordWeight,
}

var emoticons = map[string]float64{
	":)": keywordWeight, ":-)": keywordWeight, "<3": keywordWeight, ";)": 1,
	":(": -keywordWeight, ":-(": -keywordWeight, ":'(": -keywordWeight, ">:(": -keywordWeight,
	"\U0001f602": keywordWeight, "\U0001f60d": keywordWeight, "\u2764": keywordWeight,
	"\U0001f60a": keywordWeight, "\U0001f44d": 1, "\U0001f389": keywordWeight,
	"\U0001f622": -keywordWeight, "\U0001f62d": -keywordWeight, "\U0001f621": -keywordWeight,
	"\U0001f620": -keywordWeight, "\U0001f44e": -1,
}

// emoticonOrder lists emoticons longest first so ">:(" is consumed before ":(".
var emoticonOrder = func() []string {
	out := make([]string, 0, len(emoticons))
	for emo := range emoticons {
		out = append(out, emo)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}()

var negators = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "don't": {}, "dont": {}, "didn't": {}, "didnt": {},
	"isn't": {}, "isnt": {}, "wasn't": {}, "wasnt": {}, "can't": {}, "cant": {}, "won't": {},
	"wont": {}, "aren't": {}, "nothing": {}, "hardly": {},
}

var intensifiers = map[string]struct{}{
	"very": {}, "really": {}, "so": {}, "super": {}, "extremely": {}, "totally": {},
	"absolutely": {}, "incredibly": {}, "too": {},
}

// Lexicon is a keyword bucket scorer. The zero value is not usable; call
// NewLexicon.
type Lexicon struct {
	weights map[string]float64
}

// NewLexicon returns the built-in lexicon, extended by extra word weights
// (positive or negative, any magnitude).
func NewLexicon(extra map[string]float64) *Lexicon {
	l := &Lexicon{weights: make(map[string]float64, len(positiveWords)+len(negativeWords)+len(extra))}
	for _, w := range positiveWords {
		l.weights[w] = keywordWeight
	}
	for _, w := range negativeWords {
		l.weights[w] = -keywordWeight
	}
	for w, v := range extra {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			l.weights[w] = v
		}
	}
	return l
}

var defaultLexicon = NewLexicon(nil)

// Default returns the shared built-in lexicon.
func Default() *Lexicon { return defaultLexicon }

// Score implements Scorer.
func (l *Lexicon) Score(text string) float64 {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return 0
	}

	total := 0.0
	tokens := tokenize(normalized)
	for i, tok := range tokens {
		w, ok := l.weights[tok]
		if !ok {
			continue
		}
		if i > 0 {
			if _, boosted := intensifiers[tokens[i-1]]; boosted {
				w *= intensifierFactor
			}
		}
		if negatedAt(tokens, i) {
			w *= negationFactor
		}
		total += w
	}

	for kw, w := range cjkBuckets {
		total += w * float64(strings.Count(normalized, kw))
	}
	total += emoticonTotal(normalized)

	// 感叹号放大已有情绪，不单独产生倾向。
	if total != 0 {
		bangs := strings.Count(text, "!")
		if bangs > maxExclamations {
			bangs = maxExclamations
		}
		total += math.Copysign(float64(bangs)*exclamationBoost, total)
	}

	if total == 0 {
		return 0
	}
	return Clamp(total / math.Sqrt(total*total+normalizeAlpha))
}

func emoticonTotal(s string) float64 {
	total := 0.0
	for _, emo := range emoticonOrder {
		n := strings.Count(s, emo)
		if n == 0 {
			continue
		}
		total += emoticons[emo] * float64(n)
		s = strings.ReplaceAll(s, emo, " ")
	}
	return total
}

func negatedAt(tokens []string, i int) bool {
	start := i - negationWindow
	if start < 0 {
		start = 0
	}
	for _, t := range tokens[start:i] {
		if _, ok := negators[t]; ok {
			return true
		}
	}
	return false
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}
