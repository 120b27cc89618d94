// Package email holds small helpers for working with email-shaped strings.
package email

import (
	"strings"
	"unicode"
)

// LooksLike reports whether s resembles an email address: an "@" with at
// least one "." after the last one. Deliberately loose; callers use it for
// heuristic field discovery, not validation.
func LooksLike(s string) bool {
	at := strings.LastIndexByte(s, '@')
	return at >= 0 && strings.Contains(s[at+1:], ".")
}

// DeriveDisplayName builds a printable name from an address's local part:
// "jane.q-doe@x.edu" becomes "Jane Q Doe". Used as a last resort when a
// record carries no name field of its own.
func DeriveDisplayName(addr string) string {
	local := addr
	if at := strings.IndexByte(addr, '@'); at >= 0 {
		local = addr[:at]
	}

	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return ""
	}

	for i, p := range parts {
		parts[i] = capitalize(p)
	}
	return strings.Join(parts, " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
