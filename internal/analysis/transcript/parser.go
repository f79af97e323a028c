// Package transcript turns an exported chat transcript into an ordered
// sequence of messages.
//
// Each physical line either opens a new message (a timestamp prefix in one of
// the bracket or dash variants, optionally followed by "Sender: ") or
// continues the most recently opened one. Lines seen before any message has
// been opened are dropped and counted.
package transcript

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zhouzirui/vibecheck/backend/internal/model/chat"
)

const (
	datePart = `(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{2,4})`
	timePart = `(\d{1,2}):(\d{2})(?::(\d{2}))?(?:\s*([AaPp])\.?\s*[Mm]\.?)?`

	maxSenderRunes = 64
)

// headerPatterns share one capture layout: day/month fields, year, hour,
// minute, optional seconds, optional a/p marker, remainder.
var headerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\[` + datePart + `(?:,\s*|\s+)` + timePart + `\]\s*(.*)$`),
	regexp.MustCompile(`^` + datePart + `,?\s+` + timePart + `\s+[-\x{2013}]\s+(.*)$`),
}

// noticePattern spots Android group notices whose payload carries ": ",
// e.g. `Alice changed the subject to "Trip: Rome"`.
var noticePattern = regexp.MustCompile(`(?i)["\x{201c}\x{201d}]|\s(?:changed (?:the (?:subject|group)|this group['\x{2019}]s|their phone number|to)|created (?:group|this group)|added|removed|left|joined using|pinned a message|deleted this group['\x{2019}]s|turned (?:on|off) disappearing|reset this group['\x{2019}]s)\b`)

// LinkPattern matches URL-shaped substrings.
var LinkPattern = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"]+`)

var defaultMediaMarkers = []string{
	"<media omitted>",
	"image omitted",
	"video omitted",
	"audio omitted",
	"sticker omitted",
	"gif omitted",
	"document omitted",
	"contact card omitted",
	"this message was deleted",
	"you deleted this message",
}

var invisibleReplacer = strings.NewReplacer(
	"\ufeff", "",
	"\u200e", "",
	"\u200f", "",
	"\u202a", "",
	"\u202b", "",
	"\u202c", "",
	"\u202d", "",
	"\u202e", "",
)

// spaceReplacer folds the no-break spaces recent exports put before AM/PM.
var spaceReplacer = strings.NewReplacer("\u00a0", " ", "\u202f", " ", "\u2007", " ")

const leadingNoise = " \t\ufeff\u200e\u200f"

// Result is the outcome of a parse pass.
type Result struct {
	Messages           []chat.Message
	DateOrder          DateOrder
	HeaderLines        int
	ContinuationLines  int
	DroppedLines       int
	InferredTimestamps int
	Duplicates         int
}

// Option configures a Parser.
type Option func(*Parser)

// WithLocation sets the reference clock timestamps are read in. Default: UTC.
func WithLocation(loc *time.Location) Option {
	return func(p *Parser) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// WithDateOrder forces the numeric date order instead of detecting it.
func WithDateOrder(order DateOrder) Option {
	return func(p *Parser) {
		p.order = order
	}
}

// WithMediaMarkers adds bodies that mark omitted media.
func WithMediaMarkers(markers ...string) Option {
	return func(p *Parser) {
		for _, m := range markers {
			if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
				p.media[m] = struct{}{}
			}
		}
	}
}

// Parser is safe for concurrent use once constructed.
type Parser struct {
	loc   *time.Location
	order DateOrder
	media map[string]struct{}
}

// New returns a Parser configured with opts.
func New(opts ...Option) *Parser {
	p := &Parser{
		loc:   time.UTC,
		media: make(map[string]struct{}, len(defaultMediaMarkers)),
	}
	for _, m := range defaultMediaMarkers {
		p.media[m] = struct{}{}
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Parse parses raw with the default Parser.
func Parse(raw string) (*Result, error) {
	return New().Parse(raw)
}

// entry is a message under construction, before date resolution.
type entry struct {
	line   int
	header header
	sender string
	body   []string
	marked bool
}

// Parse scans raw line by line. It fails with *ParseError when no line
// matches the header grammar.
func (p *Parser) Parse(raw string) (*Result, error) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")

	res := &Result{}
	entries := make([]*entry, 0, len(lines)/2)
	var open *entry

	for i, rawLine := range lines {
		line := strings.TrimRight(rawLine, "\r")
		if e, ok := p.matchHeader(line, i+1); ok {
			open = e
			entries = append(entries, e)
			res.HeaderLines++
			continue
		}
		if open == nil {
			if strings.TrimSpace(invisibleReplacer.Replace(line)) != "" {
				res.DroppedLines++
			}
			continue
		}
		open.body = append(open.body, line)
		res.ContinuationLines++
	}

	if len(entries) == 0 {
		reason := "no message lines found"
		if strings.TrimSpace(raw) == "" {
			reason = "transcript is empty"
		}
		return nil, &ParseError{Lines: len(lines), Reason: reason}
	}

	headers := make([]header, len(entries))
	for i, e := range entries {
		headers[i] = e.header
	}
	res.DateOrder = p.order
	if res.DateOrder != DayFirst && res.DateOrder != MonthFirst {
		res.DateOrder = resolveOrder(headers, p.loc)
	}

	res.Messages = p.assemble(entries, res)
	return res, nil
}

func (p *Parser) matchHeader(line string, lineNo int) (*entry, bool) {
	cleaned := strings.TrimLeft(spaceReplacer.Replace(line), leadingNoise)
	for _, re := range headerPatterns {
		m := re.FindStringSubmatch(cleaned)
		if m == nil {
			continue
		}
		h := header{
			d1:     atoi(m[1]),
			d2:     atoi(m[2]),
			year:   atoi(m[3]),
			hour:   atoi(m[4]),
			minute: atoi(m[5]),
			sec:    atoi(m[6]),
		}
		switch strings.ToLower(m[7]) {
		case "a":
			h.meridiem = ante
		case "p":
			h.meridiem = post
		}

		e := &entry{line: lineNo, header: h}
		e.sender, e.body, e.marked = splitSender(m[8])
		return e, true
	}
	return nil, false
}

// splitSender separates "Sender: text". marked reports a body that starts
// with a left-to-right mark, which iOS exports use for notices and media.
func splitSender(rest string) (sender string, body []string, marked bool) {
	idx := strings.Index(rest, ": ")
	sep := 2
	if idx < 0 && strings.HasSuffix(rest, ":") {
		idx, sep = len(rest)-1, 1
	}
	if idx < 0 {
		return "", []string{invisibleReplacer.Replace(rest)}, false
	}

	sender = strings.TrimSpace(invisibleReplacer.Replace(rest[:idx]))
	text := rest[idx+sep:]
	if sender == "" || utf8.RuneCountInString(sender) > maxSenderRunes || noticePattern.MatchString(sender) {
		return "", []string{invisibleReplacer.Replace(rest)}, false
	}
	return sender, []string{invisibleReplacer.Replace(text)}, strings.HasPrefix(text, "\u200e")
}

func (p *Parser) assemble(entries []*entry, res *Result) []chat.Message {
	stamps := make([]time.Time, len(entries))
	valid := make([]bool, len(entries))
	firstValid := -1
	for i, e := range entries {
		stamps[i], valid[i] = e.header.timestamp(res.DateOrder, p.loc)
		if valid[i] && firstValid < 0 {
			firstValid = i
		}
	}

	var carry time.Time
	if firstValid >= 0 {
		carry = stamps[firstValid]
	}

	messages := make([]chat.Message, 0, len(entries))
	for i, e := range entries {
		inferred := !valid[i]
		if inferred {
			stamps[i] = carry
			res.InferredTimestamps++
		} else {
			carry = stamps[i]
		}

		msg := p.buildMessage(e, stamps[i])
		msg.TimestampInferred = inferred
		if n := len(messages); n > 0 && sameContent(messages[n-1], msg) {
			msg.Duplicate = true
			res.Duplicates++
		}
		messages = append(messages, msg)
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
	for i := range messages {
		messages[i].Index = i
	}
	return messages
}

func (p *Parser) buildMessage(e *entry, ts time.Time) chat.Message {
	body := e.body
	for len(body) > 1 && strings.TrimSpace(body[len(body)-1]) == "" {
		body = body[:len(body)-1]
	}
	text := strings.Join(body, "\n")

	msg := chat.Message{
		Line:      e.line,
		Timestamp: ts,
		Sender:    e.sender,
	}

	switch {
	case e.sender == "":
		msg.System = true
	case p.isMedia(text):
		msg.Media = true
		return msg
	case e.marked:
		// "Group: \u200eAlice added Bob" style notice.
		msg.System = true
		msg.Sender = ""
	}

	msg.Text = text
	msg.Words = len(strings.Fields(text))
	msg.Chars = utf8.RuneCountInString(text)
	msg.HasLink = LinkPattern.MatchString(text)
	return msg
}

func (p *Parser) isMedia(text string) bool {
	normalized := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(text)), ".")
	if _, ok := p.media[normalized]; ok {
		return true
	}
	return strings.HasPrefix(normalized, "<attached:") && strings.HasSuffix(normalized, ">")
}

func sameContent(a, b chat.Message) bool {
	return a.Timestamp.Equal(b.Timestamp) &&
		a.Sender == b.Sender &&
		a.System == b.System &&
		a.Media == b.Media &&
		a.Text == b.Text
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
