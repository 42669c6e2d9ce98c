package pattern

import "strings"

type span struct {
	start, end int
}

// Match is one match of a Pattern against a subject. Offsets are byte
// offsets into Subject().
type Match struct {
	subject string
	spans   map[int]span
	count   int
	names   map[string]int
}

// Subject returns the text the match was taken from.
func (m *Match) Subject() string { return m.subject }

// Range returns the byte range of the whole match.
func (m *Match) Range() (start, end int) {
	s := m.spans[0]
	return s.start, s.end
}

// String returns the text of the whole match.
func (m *Match) String() string {
	s := m.spans[0]
	return m.subject[s.start:s.end]
}

// GroupCount returns the number of groups including group 0.
func (m *Match) GroupCount() int { return m.count }

// Group returns the text of group i. The boolean is false when the group
// does not exist or did not participate in the match.
func (m *Match) Group(i int) (string, bool) {
	s, ok := m.spans[i]
	if !ok {
		return "", false
	}
	return m.subject[s.start:s.end], true
}

// GroupRange returns the byte range of group i.
func (m *Match) GroupRange(i int) (start, end int, ok bool) {
	s, ok := m.spans[i]
	if !ok {
		return -1, -1, false
	}
	return s.start, s.end, true
}

// Named returns the text of the named group.
func (m *Match) Named(name string) (string, bool) {
	num, ok := m.names[name]
	if !ok {
		return "", false
	}
	return m.Group(num)
}

// Expand renders template for this match. \N is replaced by group N, where
// N is the longest run of digits naming a group of the pattern, so with
// fewer than ten groups \10 is group 1 followed by "0". A reference to a
// missing or non-participating group is kept verbatim and \\ yields a
// literal backslash.
func (m *Match) Expand(template string) string {
	var out strings.Builder
	out.Grow(len(template))

	for i := 0; i < len(template); i++ {
		c := template[i]
		if c != '\\' || i+1 == len(template) {
			out.WriteByte(c)
			continue
		}
		next := template[i+1]
		switch {
		case next == '\\':
			out.WriteByte('\\')
			i++
		case isDigit(next):
			num, width := m.groupRef(template[i+1:])
			if g, ok := m.Group(num); ok {
				out.WriteString(g)
			} else {
				out.WriteString(template[i : i+1+width])
			}
			i += width
		default:
			out.WriteByte('\\')
			out.WriteByte(next)
			i++
		}
	}
	return out.String()
}

// groupRef reads the group number at the start of digits. It takes the
// longest digit run below GroupCount, and always at least one digit.
func (m *Match) groupRef(digits string) (num, width int) {
	num, width = int(digits[0]-'0'), 1
	if num == 0 {
		return 0, 1
	}
	n := num
	for w := 2; w <= len(digits) && isDigit(digits[w-1]); w++ {
		n = n*10 + int(digits[w-1]-'0')
		if n >= m.count {
			break
		}
		num, width = n, w
	}
	return num, width
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// Replace returns the subject with this match replaced by the expanded
// template.
func (m *Match) Replace(template string) string {
	start, end := m.Range()
	return m.subject[:start] + m.Expand(template) + m.subject[end:]
}
