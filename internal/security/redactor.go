// Package security keeps secrets out of logs and out of the chat client's
// environment.
package security

import (
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder is the replacement string for redacted values.
const RedactPlaceholder = "***REDACTED***"

// A pattern may name a "keep" group; its text survives the redaction.
const keepGroup = "${keep}"

// Redactor replaces sensitive values in strings. It matches regex patterns
// for values with a known shape and literal values registered at runtime.
// All methods are safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor returns a Redactor loaded with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// AddPattern adds a compiled regex pattern to the redactor.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
}

// AddLiteral adds a value that is redacted wherever it appears.
// Empty strings are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// Redact returns s with every pattern match and literal replaced.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns := r.patterns
	literals := r.literals
	r.mu.RUnlock()

	for _, p := range patterns {
		s = p.ReplaceAllString(s, keepGroup+RedactPlaceholder)
	}
	for _, lit := range literals {
		s = strings.ReplaceAll(s, lit, RedactPlaceholder)
	}
	return s
}

// DefaultPatterns returns the patterns every Redactor starts with:
// verification codes sent to users and HTTP credentials.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?P<keep>verification code is:\s*)\d+`),
		regexp.MustCompile(`(?P<keep>Bearer\s+)[A-Za-z0-9._~+/=-]{8,}`),
		regexp.MustCompile(`(?P<keep>Basic\s+)[A-Za-z0-9+/=]{8,}`),
	}
}

// PhonePattern matches international phone numbers as the client prints
// them: 10 to 15 digits.
func PhonePattern() *regexp.Regexp {
	return regexp.MustCompile(`\b\d{10,15}\b`)
}
