// Package masking redacts secret-shaped substrings from agent invocation
// payloads before they are logged, adapted from the teacher's regex-driven
// pattern masker.
package masking

import (
	"fmt"
	"regexp"
)

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// builtinPatterns covers the secret shapes most likely to leak through an
// agent's free-text input/output: bearer tokens, API keys, and the
// platform's own signed JWTs.
var builtinPatterns = []struct {
	name        string
	pattern     string
	replacement string
}{
	{"bearer_token", `(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`, "Bearer ***MASKED***"},
	{"jwt", `eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`, "***MASKED_JWT***"},
	{"api_key_assignment", `(?i)(api[_-]?key|secret|password|token)\s*[:=]\s*"?[A-Za-z0-9\-._~+/]{8,}"?`, "$1=***MASKED***"},
}

// Masker applies a fixed set of compiled patterns to a string, in order.
type Masker struct {
	patterns []*CompiledPattern
}

// New compiles the builtin pattern set. Invalid patterns would be a
// programming error in this file, not a runtime condition, so compilation
// failures panic rather than being swallowed.
func New() *Masker {
	m := &Masker{}
	for _, p := range builtinPatterns {
		m.patterns = append(m.patterns, &CompiledPattern{
			Name:        p.name,
			Regex:       regexp.MustCompile(p.pattern),
			Replacement: p.replacement,
		})
	}
	return m
}

// Mask applies every pattern to s and returns the redacted result.
func (m *Masker) Mask(s string) string {
	for _, p := range m.patterns {
		s = p.Regex.ReplaceAllString(s, p.Replacement)
	}
	return s
}

// MaskValue redacts a value of unknown shape for logging: strings are
// masked directly; everything else is rendered with fmt.Sprintf and then
// masked, since secrets can surface through %v on a struct just as easily
// as through a bare string.
func (m *Masker) MaskValue(v any) string {
	switch s := v.(type) {
	case string:
		return m.Mask(s)
	default:
		return m.Mask(fmt.Sprintf("%v", v))
	}
}

// MaskMap redacts every string-valued entry of a map in place and returns
// it, for logging agent Data payloads without constructing a second copy
// of a potentially large map.
func (m *Masker) MaskMap(in map[string]any) map[string]any {
	for k, v := range in {
		if s, ok := v.(string); ok {
			in[k] = m.Mask(s)
		}
	}
	return in
}
