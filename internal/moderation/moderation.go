// Package moderation screens player input before it reaches the judge.
package moderation

import (
	"regexp"
	"slices"
	"strings"

	goaway "github.com/TwiN/go-away"
)

// Reasons reported for flagged input.
const (
	ReasonProfanity  = "contains inappropriate language"
	ReasonDisallowed = "contains a disallowed word"
	ReasonViolent    = "describes harm to others"
)

var defaultDisallowed = []string{"slur", "explicit", "offensive"}

var violentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(^|\s)kill(\s|$|ing|ed)`),
	regexp.MustCompile(`(^|\s)harm(\s|$|ing|ed)`),
	regexp.MustCompile(`(^|\s)hurt(\s|$|ing|ed)`),
	regexp.MustCompile(`(^|\s)injure(\s|$|ing|ed)`),
}

// Screener is a pure predicate over text; it holds no per-call state and is
// safe for concurrent use.
type Screener struct {
	profanity  *goaway.ProfanityDetector
	disallowed []string
}

// Option customizes a Screener.
type Option func(*Screener)

// WithDisallowed adds whole words that are always rejected.
func WithDisallowed(words ...string) Option {
	return func(s *Screener) {
		for _, w := range words {
			if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
				s.disallowed = append(s.disallowed, w)
			}
		}
	}
}

// New returns a Screener with the built-in word lists.
func New(opts ...Option) *Screener {
	s := &Screener{
		profanity:  goaway.NewProfanityDetector(),
		disallowed: slices.Clone(defaultDisallowed),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Screen reports whether text must be rejected and, if so, why.
func (s *Screener) Screen(text string) (flagged bool, reason string) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return false, ""
	}

	if s.profanity.IsProfane(lower) {
		return true, ReasonProfanity
	}
	for _, field := range strings.Fields(lower) {
		if slices.Contains(s.disallowed, field) {
			return true, ReasonDisallowed
		}
	}
	for _, re := range violentPatterns {
		if re.MatchString(lower) {
			return true, ReasonViolent
		}
	}
	return false, ""
}
