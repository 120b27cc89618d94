package audit

import "time"

// EventCategory classifies audit events so sinks can apply different
// retention.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance: record
	// ingestion, certificate issuance, bulk clears.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine visibility events: verifications,
	// token issuance.
	CategoryOperations EventCategory = "operations"
)

// Action names what happened.
type Action string

const (
	ActionStudentIngested   Action = "student_ingested"
	ActionStudentUpdated    Action = "student_updated"
	ActionCertificateIssued Action = "certificate_issued"
	ActionProofAppended     Action = "proof_appended"
	ActionRecordsCleared    Action = "records_cleared"
	ActionVerificationRun   Action = "verification_run"
	ActionTokenIssued       Action = "token_issued"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory `json:"category"`
	Action    Action        `json:"action"`
	Timestamp time.Time     `json:"timestamp"`
	Issuer    string        `json:"issuer,omitempty"`
	StudentID int64         `json:"student_id,omitempty"`
	CertID    int64         `json:"cert_id,omitempty"`
	Detail    string        `json:"detail,omitempty"`
}
