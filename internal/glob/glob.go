// Package glob implements the path-glob mini-language used to select which
// changed files trigger a watch.
//
// A single "*" matches any run of characters except "/", a doubled "**"
// matches any run of characters including "/", and "?" matches exactly one
// character other than "/". Every other character matches itself. Patterns
// match the complete candidate string.
package glob

import (
	"fmt"
	"regexp"
	"strings"
)

// Glob is a compiled glob pattern. It is safe for concurrent use.
type Glob struct {
	pattern string
	re      *regexp.Regexp
}

// Translate converts a glob pattern into an unanchored regular expression.
func Translate(pattern string) string {
	var out strings.Builder
	star := false
	for _, ch := range pattern {
		if ch == '*' {
			if star {
				out.WriteString(".*")
				star = false
			} else {
				star = true
			}
			continue
		}
		if star {
			out.WriteString("[^/]*")
			star = false
		}
		if ch == '?' {
			out.WriteString("[^/]")
			continue
		}
		out.WriteString(regexp.QuoteMeta(string(ch)))
	}
	if star {
		out.WriteString("[^/]*")
	}
	return out.String()
}

// Compile translates and compiles pattern.
func Compile(pattern string) (*Glob, error) {
	if pattern == "" {
		return nil, fmt.Errorf("glob pattern is empty")
	}
	re, err := regexp.Compile("^(?:" + Translate(pattern) + ")$")
	if err != nil {
		return nil, fmt.Errorf("compile glob %q: %w", pattern, err)
	}
	return &Glob{pattern: pattern, re: re}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(pattern string) *Glob {
	g, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return g
}

// Match reports whether path matches the whole glob.
func (g *Glob) Match(path string) bool {
	return g.re.MatchString(path)
}

// String returns the source pattern.
func (g *Glob) String() string {
	return g.pattern
}

// Match compiles pattern and matches it against path. An invalid pattern
// never matches.
func Match(pattern, path string) bool {
	g, err := Compile(pattern)
	if err != nil {
		return false
	}
	return g.Match(path)
}

// Valid reports whether pattern is a usable glob.
func Valid(pattern string) bool {
	_, err := Compile(pattern)
	return err == nil
}
