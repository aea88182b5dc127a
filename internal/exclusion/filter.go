// Package exclusion redacts window titles according to a static policy.
package exclusion

import (
	"regexp"

	"github.com/pkg/errors"

	"github.com/shotwatch/shotwatch/pkg/window"
)

// Redacted replaces any title matched by the policy.
const Redacted = "excluded"

// Policy is immutable once compiled.
type Policy struct {
	excludeAll bool
	patterns   []*regexp.Regexp
}

// PatternError reports a title pattern that failed to compile.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "invalid title pattern " + `"` + e.Pattern + `": ` + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// Compile builds a Policy. Patterns are matched case-insensitively anywhere
// in the title and are evaluated in the given order.
func Compile(excludeAll bool, patterns []string) (*Policy, error) {
	p := &Policy{excludeAll: excludeAll}
	for _, pattern := range patterns {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, errors.WithStack(&PatternError{Pattern: pattern, Err: err})
		}
		p.patterns = append(p.patterns, re)
	}
	return p, nil
}

// ExcludeAll reports whether every title is redacted.
func (p *Policy) ExcludeAll() bool {
	return p != nil && p.excludeAll
}

// Patterns returns the source of each compiled pattern in evaluation order.
func (p *Policy) Patterns() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.patterns))
	for i, re := range p.patterns {
		out[i] = re.String()[len("(?i)"):]
	}
	return out
}

// Excludes reports whether title is redacted by the policy.
func (p *Policy) Excludes(title string) bool {
	if p == nil {
		return false
	}
	if p.excludeAll {
		return true
	}
	for _, re := range p.patterns {
		if re.MatchString(title) {
			return true
		}
	}
	return false
}

// Apply returns a copy of w with its title redacted when the policy matches.
// A nil policy excludes nothing.
func (p *Policy) Apply(w window.WindowInfo) window.WindowInfo {
	if p.Excludes(w.WindowTitle) {
		w.WindowTitle = Redacted
	}
	return w
}
