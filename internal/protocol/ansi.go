// Package protocol implements the request/response exchange with an
// interactive, prompt-driven line client: reading lines up to the prompt,
// serializing commands and decoding responses with ordered patterns.
package protocol

import (
	"regexp"
	"strings"
)

var csiPattern = regexp.MustCompile(`\x1B\[[0-9;]*[mK]`)

// StripANSI removes color and erase-line escape sequences and trims
// surrounding whitespace.
func StripANSI(s string) string {
	return strings.TrimSpace(csiPattern.ReplaceAllString(s, ""))
}
