package ingest

import (
	"sort"
	"strings"

	"certproof/pkg/email"
)

// emailKeywords are matched as substrings against column names, so variants
// like "Email Address" or "student_e-mail" all qualify.
var emailKeywords = []string{"email", "e-mail", "mail"}

// ExtractEmail heuristically finds the identity email in a row: named-field
// matches win over value sniffing, and both passes walk keys in sorted order
// so the result is deterministic for a given row. The returned email is
// trimmed and lowercased, ready for exact comparison. Absence is not an
// error; rows without one simply never match an existing record.
func ExtractEmail(data map[string]string) (string, bool) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		lower := strings.ToLower(strings.TrimSpace(key))
		for _, keyword := range emailKeywords {
			if strings.Contains(lower, keyword) {
				value := strings.TrimSpace(data[key])
				if value != "" && strings.Contains(value, "@") {
					return strings.ToLower(value), true
				}
			}
		}
	}

	// Fallback: any value that looks like an email.
	for _, key := range keys {
		value := strings.ToLower(strings.TrimSpace(data[key]))
		if email.LooksLike(value) {
			return value, true
		}
	}
	return "", false
}
