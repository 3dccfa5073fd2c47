package glob

import (
	"regexp"
	"strings"
)

// Pattern is a compiled `*` pattern. Text outside the stars matches literally.
type Pattern struct {
	source string
	re     *regexp.Regexp
}

// Compile turns a pattern such as "user.*" into an anchored matcher.
func Compile(pattern string) *Pattern {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return &Pattern{
		source: pattern,
		re:     regexp.MustCompile("^" + strings.Join(parts, ".*") + "$"),
	}
}

// HasWildcard reports whether s contains a `*`.
func HasWildcard(s string) bool {
	return strings.Contains(s, "*")
}

// Match compiles pattern and tests s against it in one step.
func Match(pattern, s string) bool {
	if !HasWildcard(pattern) {
		return pattern == s
	}
	return Compile(pattern).Match(s)
}

func (p *Pattern) Match(s string) bool {
	return p.re.MatchString(s)
}

// String returns the pattern as it was written.
func (p *Pattern) String() string {
	return p.source
}
