// Package pattern wraps a backtracking regular expression engine with the
// calls the runner needs: compile with flags, find every non-overlapping
// match, read positional and named groups, and substitute \N references.
package pattern

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

// Flags select matching behaviour at compile time.
type Flags uint

const (
	// Multiline makes ^ and $ match at line boundaries.
	Multiline Flags = 1 << iota
	// IgnoreCase matches letters case-insensitively.
	IgnoreCase
	// DotAll lets . match newlines.
	DotAll
	// Extended ignores unescaped whitespace and allows # comments.
	Extended
	// Unicode rejects subjects that are not valid UTF-8 and enables Unicode
	// class semantics.
	Unicode
)

// None is the zero flag set.
const None Flags = 0

func (f Flags) engineOptions() regexp2.RegexOptions {
	opts := regexp2.RegexOptions(regexp2.None)
	if f&Multiline != 0 {
		opts |= regexp2.Multiline
	}
	if f&IgnoreCase != 0 {
		opts |= regexp2.IgnoreCase
	}
	if f&DotAll != 0 {
		opts |= regexp2.Singleline
	}
	if f&Extended != 0 {
		opts |= regexp2.IgnorePatternWhitespace
	}
	if f&Unicode != 0 {
		opts |= regexp2.Unicode
	}
	return opts
}

// Option tunes a compiled Pattern.
type Option func(*Pattern)

// WithMatchTimeout bounds the time a single match attempt may take before it
// fails with KindMatchLimit. Zero disables the limit.
func WithMatchTimeout(d time.Duration) Option {
	return func(p *Pattern) {
		if d > 0 {
			p.re.MatchTimeout = d
		}
	}
}

// Pattern is a compiled expression. It is safe for concurrent use.
type Pattern struct {
	source  string
	flags   Flags
	re      *regexp2.Regexp
	numbers []int
	names   map[string]int
}

// Compile parses pattern with the given flags.
func Compile(pattern string, flags Flags, opts ...Option) (*Pattern, error) {
	re, err := regexp2.Compile(pattern, flags.engineOptions())
	if err != nil {
		return nil, &Error{Kind: KindBadPattern, Pattern: pattern, Msg: err.Error(), Err: err}
	}

	p := &Pattern{
		source:  pattern,
		flags:   flags,
		re:      re,
		numbers: re.GetGroupNumbers(),
		names:   make(map[string]int),
	}
	for _, name := range re.GetGroupNames() {
		if num := re.GroupNumberFromName(name); num >= 0 && !isNumeric(name) {
			p.names[name] = num
		}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(pattern string, flags Flags, opts ...Option) *Pattern {
	p, err := Compile(pattern, flags, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// Valid reports whether pattern compiles under flags.
func Valid(pattern string, flags Flags) bool {
	_, err := Compile(pattern, flags)
	return err == nil
}

func (p *Pattern) String() string { return p.source }

// Flags returns the flags the pattern was compiled with.
func (p *Pattern) Flags() Flags { return p.flags }

// GroupNames returns the named groups in the pattern, sorted.
func (p *Pattern) GroupNames() []string {
	names := make([]string, 0, len(p.names))
	for name := range p.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FindAll returns every non-overlapping match in text, leftmost first. A
// subject with no matches yields an empty slice and no error.
func (p *Pattern) FindAll(text string) ([]*Match, error) {
	return p.FindN(text, -1)
}

// FindN is FindAll limited to at most n matches; n < 0 means no limit.
func (p *Pattern) FindN(text string, n int) ([]*Match, error) {
	subject, err := p.subject(text)
	if err != nil {
		return nil, err
	}

	runes := []rune(subject)
	offsets := byteOffsets(runes)

	var out []*Match
	m, err := p.re.FindRunesMatch(runes)
	for {
		if err != nil {
			return nil, classify(p.source, err)
		}
		if m == nil || (n >= 0 && len(out) >= n) {
			break
		}
		out = append(out, p.newMatch(subject, offsets, m))
		m, err = p.re.FindNextMatch(m)
	}
	if out == nil {
		out = []*Match{}
	}
	return out, nil
}

// Search returns the first match in text or an error of KindNoMatch.
func (p *Pattern) Search(text string) (*Match, error) {
	matches, err := p.FindN(text, 1)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, &Error{Kind: KindNoMatch, Pattern: p.source}
	}
	return matches[0], nil
}

// Match returns the first match if it spans the whole of text, otherwise an
// error of KindNoMatch.
func (p *Pattern) Match(text string) (*Match, error) {
	m, err := p.Search(text)
	if err != nil {
		return nil, err
	}
	if start, end := m.Range(); start != 0 || end != len(m.subject) {
		return nil, &Error{Kind: KindNoMatch, Pattern: p.source}
	}
	return m, nil
}

// Replace substitutes template for up to count matches in text (count <= 0
// replaces all). \N in template expands to group N of each match.
func (p *Pattern) Replace(text, template string, count int) (string, error) {
	n := -1
	if count > 0 {
		n = count
	}
	matches, err := p.FindN(text, n)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return text, nil
	}

	subject := matches[0].subject
	var out strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m.Range()
		out.WriteString(subject[last:start])
		out.WriteString(m.Expand(template))
		last = end
	}
	out.WriteString(subject[last:])
	return out.String(), nil
}

func (p *Pattern) subject(text string) (string, error) {
	if utf8.ValidString(text) {
		return text, nil
	}
	if p.flags&Unicode != 0 {
		return "", &Error{Kind: KindBadUTF8, Pattern: p.source, Msg: "subject is not valid UTF-8"}
	}
	return strings.ToValidUTF8(text, string(utf8.RuneError)), nil
}

func (p *Pattern) newMatch(subject string, offsets []int, m *regexp2.Match) *Match {
	spans := make(map[int]span, len(p.numbers))
	for _, num := range p.numbers {
		g := m.GroupByNumber(num)
		if g == nil || len(g.Captures) == 0 {
			continue
		}
		spans[num] = span{
			start: offsets[g.Index],
			end:   offsets[g.Index+g.Length],
		}
	}
	return &Match{
		subject: subject,
		spans:   spans,
		count:   len(p.numbers),
		names:   p.names,
	}
}

// byteOffsets maps rune index i to its byte offset in the source string;
// the final entry is the total byte length.
func byteOffsets(runes []rune) []int {
	offsets := make([]int, len(runes)+1)
	pos := 0
	for i, r := range runes {
		offsets[i] = pos
		pos += utf8.RuneLen(r)
	}
	offsets[len(runes)] = pos
	return offsets
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
