package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractEmail(t *testing.T) {
	tests := []struct {
		name  string
		data  map[string]string
		want  string
		found bool
	}{
		{
			name:  "plain email column",
			data:  map[string]string{"email": "A@X.edu", "name": "Alice"},
			want:  "a@x.edu",
			found: true,
		},
		{
			name:  "hyphenated column name",
			data:  map[string]string{"Student E-Mail": " b@y.edu ", "name": "Bob"},
			want:  "b@y.edu",
			found: true,
		},
		{
			name:  "mail substring matches",
			data:  map[string]string{"Email Address": "c@z.edu"},
			want:  "c@z.edu",
			found: true,
		},
		{
			name:  "named field wins over value sniffing",
			data:  map[string]string{"contact": "other@else.org", "email": "real@x.edu"},
			want:  "real@x.edu",
			found: true,
		},
		{
			name:  "value sniffing fallback",
			data:  map[string]string{"name": "Alice", "contact": "alice@uni.edu"},
			want:  "alice@uni.edu",
			found: true,
		},
		{
			name:  "at without dot after it is not an email",
			data:  map[string]string{"handle": "alice@localhost"},
			found: false,
		},
		{
			name:  "empty email column falls through to sniffing",
			data:  map[string]string{"email": "", "backup": "d@w.edu"},
			want:  "d@w.edu",
			found: true,
		},
		{
			name:  "no identity at all",
			data:  map[string]string{"name": "Alice", "degree": "BSc"},
			found: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, found := ExtractEmail(tc.data)
			assert.Equal(t, tc.found, found)
			if tc.found {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}
