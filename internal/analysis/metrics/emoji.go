package metrics

import (
	"sort"
	"strings"
	"unicode"

	"github.com/rivo/uniseg"

	"github.com/zhouzirui/vibecheck/backend/internal/model/chat"
)

// senderTopEmojis bounds each sender's signature list.
const senderTopEmojis = 5

// EmojiCount is one ranked emoji.
type EmojiCount struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

// SenderEmojis is one sender's emoji usage. Ratio is the mean of
// emojis / (chars + 1) over the sender's eligible messages.
type SenderEmojis struct {
	Sender     string       `json:"sender"`
	Emojis     int          `json:"emojis"`
	PerMessage float64      `json:"perMessage"`
	Ratio      float64      `json:"ratio"`
	Primary    string       `json:"primary,omitempty"`
	Top        []EmojiCount `json:"top"`
}

// Emojis is the emoji section.
type Emojis struct {
	Total      int            `json:"total"`
	PerMessage float64        `json:"perMessage"`
	Top        []EmojiCount   `json:"top"`
	Senders    []SenderEmojis `json:"senders"`
	Champion   *SenderEmojis  `json:"champion,omitempty"`
}

// pictographic covers the emoji presentation blocks. Keycaps and flags are
// handled per grapheme cluster in isEmoji.
var pictographic = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x00a9, Hi: 0x00ae, Stride: 5},
		{Lo: 0x203c, Hi: 0x203c, Stride: 1},
		{Lo: 0x2049, Hi: 0x2049, Stride: 1},
		{Lo: 0x2122, Hi: 0x2122, Stride: 1},
		{Lo: 0x2139, Hi: 0x2139, Stride: 1},
		{Lo: 0x2194, Hi: 0x2199, Stride: 1},
		{Lo: 0x21a9, Hi: 0x21aa, Stride: 1},
		{Lo: 0x231a, Hi: 0x231b, Stride: 1},
		{Lo: 0x2328, Hi: 0x2328, Stride: 1},
		{Lo: 0x23cf, Hi: 0x23cf, Stride: 1},
		{Lo: 0x23e9, Hi: 0x23f3, Stride: 1},
		{Lo: 0x23f8, Hi: 0x23fa, Stride: 1},
		{Lo: 0x24c2, Hi: 0x24c2, Stride: 1},
		{Lo: 0x25aa, Hi: 0x25ab, Stride: 1},
		{Lo: 0x25b6, Hi: 0x25b6, Stride: 1},
		{Lo: 0x25c0, Hi: 0x25c0, Stride: 1},
		{Lo: 0x25fb, Hi: 0x25fe, Stride: 1},
		{Lo: 0x2600, Hi: 0x27bf, Stride: 1},
		{Lo: 0x2934, Hi: 0x2935, Stride: 1},
		{Lo: 0x2b05, Hi: 0x2b07, Stride: 1},
		{Lo: 0x2b1b, Hi: 0x2b1c, Stride: 1},
		{Lo: 0x2b50, Hi: 0x2b50, Stride: 1},
		{Lo: 0x2b55, Hi: 0x2b55, Stride: 1},
		{Lo: 0x3030, Hi: 0x3030, Stride: 1},
		{Lo: 0x303d, Hi: 0x303d, Stride: 1},
		{Lo: 0x3297, Hi: 0x3297, Stride: 1},
		{Lo: 0x3299, Hi: 0x3299, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x1f000, Hi: 0x1faff, Stride: 1},
	},
	LatinOffset: 1,
}

// ExtractEmojis returns the emoji grapheme clusters of text in order.
// Variation selectors are dropped so text and emoji presentation of the
// same symbol count together; skin tones and ZWJ sequences stay whole.
func ExtractEmojis(text string) []string {
	var out []string
	gr := uniseg.NewGraphemes(text)
	for gr.Next() {
		runes := gr.Runes()
		if !isEmoji(runes) {
			continue
		}
		out = append(out, strings.Map(dropVariation, gr.Str()))
	}
	return out
}

func isEmoji(cluster []rune) bool {
	if len(cluster) == 0 {
		return false
	}
	for _, r := range cluster {
		if r == 0x20e3 {
			return true
		}
	}
	return unicode.Is(pictographic, cluster[0])
}

func dropVariation(r rune) rune {
	if r == 0xfe0e || r == 0xfe0f {
		return -1
	}
	return r
}

// AnalyzeEmojis counts emojis in eligible messages. Senders are ordered by
// emoji count, then first appearance; emoji ties rank by first use.
func AnalyzeEmojis(msgs []chat.Message, cfg Config) *Emojis {
	cfg = cfg.Normalize()

	type acc struct {
		messages int
		ratioSum float64
		counts   *emojiCounter
	}
	overall := newEmojiCounter()
	bySender := make(map[string]*acc)
	var order []string
	eligible := 0

	for _, m := range msgs {
		if !m.Eligible() {
			continue
		}
		a, ok := bySender[m.Sender]
		if !ok {
			a = &acc{counts: newEmojiCounter()}
			bySender[m.Sender] = a
			order = append(order, m.Sender)
		}
		found := ExtractEmojis(m.Text)
		for _, e := range found {
			overall.add(e)
			a.counts.add(e)
		}
		a.messages++
		a.ratioSum += float64(len(found)) / float64(m.Chars+1)
		eligible++
	}

	e := &Emojis{Total: overall.total, Top: overall.top(cfg.TopEmojis), Senders: []SenderEmojis{}}
	if eligible > 0 {
		e.PerMessage = round(float64(overall.total)/float64(eligible), 4)
	}

	for _, sender := range order {
		a := bySender[sender]
		s := SenderEmojis{
			Sender:     sender,
			Emojis:     a.counts.total,
			PerMessage: round(float64(a.counts.total)/float64(a.messages), 4),
			Ratio:      round(a.ratioSum/float64(a.messages), 4),
			Top:        a.counts.top(senderTopEmojis),
		}
		if len(s.Top) > 0 {
			s.Primary = s.Top[0].Emoji
		}
		e.Senders = append(e.Senders, s)
	}
	sort.SliceStable(e.Senders, func(i, j int) bool {
		return e.Senders[i].Emojis > e.Senders[j].Emojis
	})

	if len(e.Senders) > 0 && e.Senders[0].Emojis > 0 {
		champ := e.Senders[0]
		e.Champion = &champ
	}
	return e
}

type emojiCounter struct {
	total int
	seen  []string
	count map[string]int
}

func newEmojiCounter() *emojiCounter {
	return &emojiCounter{count: make(map[string]int)}
}

func (c *emojiCounter) add(e string) {
	if _, ok := c.count[e]; !ok {
		c.seen = append(c.seen, e)
	}
	c.count[e]++
	c.total++
}

func (c *emojiCounter) top(limit int) []EmojiCount {
	out := make([]EmojiCount, 0, len(c.seen))
	for _, e := range c.seen {
		out = append(out, EmojiCount{Emoji: e, Count: c.count[e]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
