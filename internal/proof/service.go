package proof

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"certproof/internal/canonical"
	"certproof/internal/domain"
	"certproof/internal/records"
	"certproof/pkg/platform/audit"
)

// ComputeHash returns the hex digest of a record's canonical byte form. Two
// maps with the same content always hash identically regardless of insertion
// order.
func ComputeHash(data map[string]string) string {
	sum := sha256.Sum256(canonical.Encode(data))
	return hex.EncodeToString(sum[:])
}

// Result is the outcome of an integrity check. A mismatch is a normal result,
// not an error; MissingRecord and MissingProof distinguish the two absence
// cases instead of collapsing them.
type Result struct {
	Valid         bool
	Expected      string
	Proof         *domain.Proof
	MissingRecord bool
	MissingProof  bool
}

// Service appends to and checks against the append-only proof log.
type Service struct {
	students records.Students
	proofs   records.Proofs
	auditor  *audit.Publisher
	now      func() time.Time
}

// Option configures optional Service dependencies.
type Option func(*Service)

// WithAudit attaches an audit publisher; every append is then recorded.
func WithAudit(auditor *audit.Publisher) Option {
	return func(s *Service) { s.auditor = auditor }
}

func NewService(students records.Students, proofs records.Proofs, opts ...Option) *Service {
	s := &Service{students: students, proofs: proofs, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append computes the hash of the record currently on file and appends it as a
// new proof. Prior entries are never touched; they remain for forensics.
func (s *Service) Append(ctx context.Context, studentID int64, addedBy string) (domain.Proof, error) {
	student, err := s.students.ByID(ctx, studentID)
	if err != nil {
		return domain.Proof{}, err
	}
	return s.AppendFor(ctx, student, addedBy)
}

// AppendFor is Append for a record the caller already holds, so ingestion does
// not re-read rows it just wrote.
func (s *Service) AppendFor(ctx context.Context, student domain.StudentRecord, addedBy string) (domain.Proof, error) {
	appended, err := s.proofs.Append(ctx, domain.Proof{
		StudentID: student.ID,
		Hash:      ComputeHash(student.Data),
		Timestamp: s.now().UTC(),
		AddedBy:   addedBy,
	})
	if err != nil {
		return domain.Proof{}, err
	}
	s.auditor.Emit(ctx, audit.Event{
		Category:  audit.CategoryCompliance,
		Action:    audit.ActionProofAppended,
		Issuer:    addedBy,
		StudentID: student.ID,
	})
	return appended, nil
}

// DeleteOrphans prunes proofs whose student record is gone.
func (s *Service) DeleteOrphans(ctx context.Context, surviving map[int64]bool) (int, error) {
	return s.proofs.DeleteOrphans(ctx, surviving)
}

// Latest returns the most recent proof for a student.
func (s *Service) Latest(ctx context.Context, studentID int64) (domain.Proof, error) {
	return s.proofs.Latest(ctx, studentID)
}

// Verify recomputes the record's canonical hash and compares it with the
// latest stored proof. Validity is solely a function of hash equality.
func (s *Service) Verify(ctx context.Context, studentID int64) (Result, error) {
	student, err := s.students.ByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return Result{MissingRecord: true}, nil
		}
		return Result{}, err
	}

	expected := ComputeHash(student.Data)
	latest, err := s.proofs.Latest(ctx, studentID)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return Result{Expected: expected, MissingProof: true}, nil
		}
		return Result{}, err
	}

	return Result{
		Valid:    latest.Hash == expected,
		Expected: expected,
		Proof:    &latest,
	}, nil
}
