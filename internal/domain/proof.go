package domain

import "time"

// Proof is one entry in the append-only integrity log for a student record.
// Seq is allocated by the store at append time; "latest" means highest Seq,
// never wall clock, so clock skew cannot reorder the log.
type Proof struct {
	Seq       int64     `json:"seq"`
	StudentID int64     `json:"student_id"`
	Hash      string    `json:"hash"`
	Timestamp time.Time `json:"timestamp"`
	AddedBy   string    `json:"added_by,omitempty"`
}
