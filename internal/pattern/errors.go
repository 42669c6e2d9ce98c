package pattern

import (
	"fmt"
	"strings"
)

// Kind classifies pattern failures so callers can branch on them.
type Kind int

const (
	// KindBadPattern means the expression did not compile.
	KindBadPattern Kind = iota + 1
	// KindNoMatch means a single-match lookup found nothing.
	KindNoMatch
	// KindBadUTF8 means the subject was not valid UTF-8 under the Unicode flag.
	KindBadUTF8
	// KindMatchLimit means matching exceeded the configured match timeout.
	KindMatchLimit
	// KindInternal covers any other engine failure.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindBadPattern:
		return "bad_pattern"
	case KindNoMatch:
		return "no_match"
	case KindBadUTF8:
		return "bad_utf8"
	case KindMatchLimit:
		return "match_limit"
	case KindInternal:
		return "internal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned by every fallible operation in this package.
type Error struct {
	Kind    Kind
	Pattern string
	Msg     string
	Err     error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("pattern %q: %s", e.Pattern, e.Kind)
	}
	return fmt.Sprintf("pattern %q: %s: %s", e.Pattern, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind, so errors.Is(err, ErrNoMatch)
// works regardless of pattern or message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrBadPattern = &Error{Kind: KindBadPattern}
	ErrNoMatch    = &Error{Kind: KindNoMatch}
	ErrBadUTF8    = &Error{Kind: KindBadUTF8}
	ErrMatchLimit = &Error{Kind: KindMatchLimit}
	ErrInternal   = &Error{Kind: KindInternal}
)

// classify maps an engine run error onto a Kind. regexp2 reports timeouts as
// plain errors, so the message is the only signal.
func classify(source string, err error) *Error {
	kind := KindInternal
	if strings.Contains(err.Error(), "match timeout") {
		kind = KindMatchLimit
	}
	return &Error{Kind: kind, Pattern: source, Msg: err.Error(), Err: err}
}
