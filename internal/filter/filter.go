package filter

import (
	"regexp"
	"strings"
)

// Step transforms a single string field.
type Step func(string) string

// Chain runs sanitization steps in order.
type Chain struct {
	steps []Step
}

// NewChain creates a sanitization chain from the given steps.
func NewChain(steps ...Step) *Chain {
	return &Chain{steps: steps}
}

// Apply runs every step over s.
func (c *Chain) Apply(s string) string {
	for _, step := range c.steps {
		s = step(s)
	}
	return s
}

var (
	controlPattern = regexp.MustCompile(`[\x{00}-\x{1f}\x{7f}-\x{9f}]`)
	tagPattern     = regexp.MustCompile(`<[^>]*>`)
)

// StripControl removes C0 and C1 control characters.
func StripControl(s string) string {
	return controlPattern.ReplaceAllString(s, "")
}

// StripTags removes anything shaped like <...>.
func StripTags(s string) string {
	return tagPattern.ReplaceAllString(s, "")
}

// TrimSpace removes leading and trailing whitespace.
func TrimSpace(s string) string {
	return strings.TrimSpace(s)
}

// Tags must go before trimming so whitespace left around a removed tag is trimmed too.
var defaultChain = NewChain(StripControl, StripTags, TrimSpace)

// Sanitize applies the default chain. It is idempotent.
func Sanitize(s string) string {
	return defaultChain.Apply(s)
}
