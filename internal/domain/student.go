package domain

import (
	"time"

	"certproof/pkg/email"
)

// StudentRecord holds one ingested row. Data preserves the batch's column
// names exactly as uploaded; the identity email used for dedup is derived from
// it heuristically rather than stored.
type StudentRecord struct {
	ID         int64             `json:"id"`
	Data       map[string]string `json:"data"`
	UploadedBy string            `json:"uploaded_by"`
	CreatedAt  time.Time         `json:"created_at"`
}

// DisplayName makes a best-effort pick of a printable name from the row data.
// When no name column exists, one is derived from an email-shaped value
// before giving up.
func (s StudentRecord) DisplayName() string {
	for _, key := range []string{"name", "Name", "NAME", "full_name", "Full Name"} {
		if v, ok := s.Data[key]; ok && v != "" {
			return v
		}
	}
	for _, v := range s.Data {
		if email.LooksLike(v) {
			if derived := email.DeriveDisplayName(v); derived != "" {
				return derived
			}
		}
	}
	return "Unknown"
}
