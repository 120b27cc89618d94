package domain

import (
	"fmt"
	"time"
)

// Certificate describes an issued artifact. File is always relative to the
// storage root with forward-slash separators. At most one current certificate
// exists per student under the update policy; re-issuance keeps the CertID and
// regenerates the artifact.
type Certificate struct {
	CertID      int64      `json:"cert_id"`
	StudentID   int64      `json:"student_id"`
	File        string     `json:"file"`
	GeneratedAt time.Time  `json:"generated_at"`
	IssuedBy    string     `json:"issued_by"`
	EmailedTo   string     `json:"emailed_to,omitempty"`
	EmailedAt   *time.Time `json:"emailed_at,omitempty"`
}

// CertNumber renders the printable certificate number for a cert id.
func CertNumber(certID int64) string {
	return fmt.Sprintf("CERT-%06d", certID)
}
