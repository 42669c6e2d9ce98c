package pattern

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testOutput = `./main.go:10: undefined: foo
some noise
pkg/util.go:3:7: missing return
FAIL`
	locationRegex = `^([^:\s]+):(\d+)(?::\d+)?:\s*(.*)$`
)

func TestCompileRejectsBadPattern(t *testing.T) {
	_, err := Compile(`(unclosed`, None)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadPattern))

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, KindBadPattern, perr.Kind)
	assert.Equal(t, `(unclosed`, perr.Pattern)

	assert.False(t, Valid(`[a-`, None))
	assert.True(t, Valid(`[a-z]+`, None))
}

func TestFindAllLocations(t *testing.T) {
	p := MustCompile(locationRegex, Multiline)

	matches, err := p.FindAll(testOutput)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	file, _ := matches[0].Group(1)
	line, _ := matches[0].Group(2)
	msg, _ := matches[0].Group(3)
	assert.Equal(t, "./main.go", file)
	assert.Equal(t, "10", line)
	assert.Equal(t, "undefined: foo", msg)

	file, _ = matches[1].Group(1)
	msg, _ = matches[1].Group(3)
	assert.Equal(t, "pkg/util.go", file)
	assert.Equal(t, "missing return", msg)
}

func TestFindAllNoMatchesIsEmpty(t *testing.T) {
	p := MustCompile(`zzz`, None)
	matches, err := p.FindAll("abc")
	require.NoError(t, err)
	assert.NotNil(t, matches)
	assert.Empty(t, matches)
}

func TestFindAllEmptyMatchesTerminate(t *testing.T) {
	p := MustCompile(`x*`, None)
	matches, err := p.FindAll("abc")
	require.NoError(t, err)
	assert.Len(t, matches, 4)
}

func TestFindN(t *testing.T) {
	p := MustCompile(`\d`, None)
	matches, err := p.FindN("1 2 3 4", 2)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestOptionalGroupUnset(t *testing.T) {
	p := MustCompile(`(a)(b)?`, None)
	m, err := p.Search("a")
	require.NoError(t, err)

	g, ok := m.Group(1)
	assert.True(t, ok)
	assert.Equal(t, "a", g)

	_, ok = m.Group(2)
	assert.False(t, ok)

	_, ok = m.Group(7)
	assert.False(t, ok)
	assert.Equal(t, 3, m.GroupCount())
}

func TestNamedGroups(t *testing.T) {
	p := MustCompile(`(?<file>\w+\.go):(?<line>\d+)`, None)
	assert.Equal(t, []string{"file", "line"}, p.GroupNames())

	m, err := p.Search("see main.go:42 now")
	require.NoError(t, err)

	file, ok := m.Named("file")
	assert.True(t, ok)
	assert.Equal(t, "main.go", file)

	line, ok := m.Named("line")
	assert.True(t, ok)
	assert.Equal(t, "42", line)

	_, ok = m.Named("column")
	assert.False(t, ok)
}

func TestSearchAndMatch(t *testing.T) {
	p := MustCompile(`b+`, None)

	m, err := p.Search("abbbc")
	require.NoError(t, err)
	start, end := m.Range()
	assert.Equal(t, 1, start)
	assert.Equal(t, 4, end)
	assert.Equal(t, "bbb", m.String())

	_, err = p.Match("abbbc")
	assert.True(t, errors.Is(err, ErrNoMatch))

	m, err = p.Match("bbb")
	require.NoError(t, err)
	assert.Equal(t, "bbb", m.String())

	_, err = p.Search("xyz")
	assert.True(t, errors.Is(err, ErrNoMatch))
}

func TestByteOffsetsWithMultibyteText(t *testing.T) {
	p := MustCompile(`(\d+)`, None)
	m, err := p.Search("héllo wörld 123")
	require.NoError(t, err)

	start, end, ok := m.GroupRange(1)
	require.True(t, ok)
	assert.Equal(t, "123", m.Subject()[start:end])
}

func TestFlags(t *testing.T) {
	_, err := MustCompile(`hello`, None).Search("HELLO")
	assert.True(t, errors.Is(err, ErrNoMatch))

	_, err = MustCompile(`hello`, IgnoreCase).Search("HELLO")
	assert.NoError(t, err)

	_, err = MustCompile(`a.b`, None).Search("a\nb")
	assert.True(t, errors.Is(err, ErrNoMatch))

	_, err = MustCompile(`a.b`, DotAll).Search("a\nb")
	assert.NoError(t, err)

	_, err = MustCompile(`a b # comment`, Extended).Search("ab")
	assert.NoError(t, err)

	matches, err := MustCompile(`^\w+$`, None).FindAll("one\ntwo")
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = MustCompile(`^\w+$`, Multiline).FindAll("one\ntwo")
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestInvalidUTF8(t *testing.T) {
	bad := "ok \xff line"

	_, err := MustCompile(`line`, Unicode).FindAll(bad)
	assert.True(t, errors.Is(err, ErrBadUTF8))

	matches, err := MustCompile(`line`, None).FindAll(bad)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "line", matches[0].String())
}

func TestMatchTimeout(t *testing.T) {
	p := MustCompile(`(a+)+$`, None, WithMatchTimeout(5*time.Millisecond))
	_, err := p.FindAll(strings.Repeat("a", 40) + "!")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMatchLimit))
}

func TestExpand(t *testing.T) {
	p := MustCompile(`(\w+)@(\w+)`, None)
	m, err := p.Search("mail bob@example now")
	require.NoError(t, err)

	tests := []struct {
		template string
		want     string
	}{
		{`\2:\1`, "example:bob"},
		{`\0`, "bob@example"},
		{`\9`, `\9`},
		{`a\\b`, `a\b`},
		{`\x`, `\x`},
		{`end\`, `end\`},
		{`\10`, "bob0"},
		{`\20x`, "example0x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.Expand(tt.template), tt.template)
	}

	assert.Equal(t, "mail example:bob now", m.Replace(`\2:\1`))
}

func TestExpandMultiDigitGroups(t *testing.T) {
	p := MustCompile(`(a)(b)(c)(d)(e)(f)(g)(h)(i)(j)(k)`, None)
	m, err := p.Search("abcdefghijk")
	require.NoError(t, err)
	require.Equal(t, 12, m.GroupCount())

	tests := []struct {
		template string
		want     string
	}{
		{`\10`, "j"},
		{`\11`, "k"},
		{`\110`, "k0"},
		{`\12`, "a2"},
		{`\01`, "abcdefghijk1"},
		{`\1\0`, "aabcdefghijk"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.Expand(tt.template), tt.template)
	}
}

func TestPatternReplace(t *testing.T) {
	p := MustCompile(`(\d+)`, None)

	out, err := p.Replace("a1 b22 c333", `<\1>`, 0)
	require.NoError(t, err)
	assert.Equal(t, "a<1> b<22> c<333>", out)

	out, err = p.Replace("a1 b22 c333", `#`, 2)
	require.NoError(t, err)
	assert.Equal(t, "a# b# c333", out)

	out, err = p.Replace("none here", `#`, 0)
	require.NoError(t, err)
	assert.Equal(t, "none here", out)
}

func TestErrorKinds(t *testing.T) {
	err := &Error{Kind: KindMatchLimit, Pattern: "x", Msg: "boom"}
	assert.True(t, errors.Is(err, ErrMatchLimit))
	assert.False(t, errors.Is(err, ErrNoMatch))
	assert.Contains(t, err.Error(), "match_limit")
}

func TestLocationErrorBlocks(t *testing.T) {
	output := `=== RUN   TestA
    a_test.go:12:
        	Error Trace:	ignored
    Location:   /src/pkg/a_test.go:12
    Error:      expected 1, got 2
--- FAIL: TestA
    Location:   /src/pkg/b_test.go:40
    Error:      nil pointer
FAIL`
	p := MustCompile(`Location:\s+(?<path>[^:]+):(?<line>\d+)$\s+Error:\s+(?<message>[^\n]+)`, Multiline)

	matches, err := p.FindAll(output)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	want := []struct{ path, line, message string }{
		{"/src/pkg/a_test.go", "12", "expected 1, got 2"},
		{"/src/pkg/b_test.go", "40", "nil pointer"},
	}
	for i, w := range want {
		path, ok := matches[i].Named("path")
		require.True(t, ok)
		line, _ := matches[i].Named("line")
		message, _ := matches[i].Named("message")
		assert.Equal(t, w.path, path)
		assert.Equal(t, w.line, line)
		assert.Equal(t, w.message, message)
	}
}
