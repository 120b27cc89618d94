package verify

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"certproof/internal/docstore"
	"certproof/internal/domain"
	"certproof/internal/proof"
	"certproof/internal/records"
	"certproof/internal/token"
	"certproof/internal/verify/metrics"
	dErrors "certproof/pkg/domain-errors"
	"certproof/pkg/platform/audit"
)

// searchConcurrency bounds per-record verification fan-out during search.
const searchConcurrency = 8

// TokenDecoder checks a token's signature and reports expiry separately, so
// an expired but authentic token can still drive an integrity check.
type TokenDecoder interface {
	Decode(tokenString string) (*token.Claims, bool, error)
}

// Verdict is the full outcome of one verification. Validity is solely a
// function of hash equality; token expiry is reported alongside, never
// folded into it.
type Verdict struct {
	Valid         bool                  `json:"valid"`
	Expected      string                `json:"expected_hash,omitempty"`
	Proof         *domain.Proof         `json:"proof,omitempty"`
	MissingRecord bool                  `json:"missing_record,omitempty"`
	MissingProof  bool                  `json:"missing_proof,omitempty"`
	Student       *domain.StudentRecord `json:"student,omitempty"`
	Certificate   *domain.Certificate   `json:"certificate,omitempty"`
	TokenExpired  bool                  `json:"token_expired,omitempty"`
}

// SearchResult pairs a matched record with its integrity verdict.
type SearchResult struct {
	Student domain.StudentRecord `json:"student"`
	Verdict Verdict              `json:"verdict"`
}

// Service answers verification requests by token, by raw student id, and by
// employer search.
type Service struct {
	students records.Students
	certs    records.Certificates
	proofs   *proof.Service
	tokens   TokenDecoder
	auditor  *audit.Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option configures optional Service dependencies.
type Option func(*Service)

// WithMetrics attaches verification metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(
	students records.Students,
	certs records.Certificates,
	proofs *proof.Service,
	tokens TokenDecoder,
	auditor *audit.Publisher,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		students: students,
		certs:    certs,
		proofs:   proofs,
		tokens:   tokens,
		auditor:  auditor,
		logger:   logger,
		tracer:   otel.Tracer("certproof/verify"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VerifyByStudent runs a direct record-integrity spot check.
func (s *Service) VerifyByStudent(ctx context.Context, studentID int64) (Verdict, error) {
	ctx, span := s.tracer.Start(ctx, "verify.ByStudent", trace.WithAttributes(
		attribute.Int64("student_id", studentID),
	))
	defer span.End()

	verdict, err := s.check(ctx, studentID)
	if err != nil {
		return Verdict{}, err
	}

	s.metrics.IncrementVerification("student", verdict.Valid)
	s.auditor.Emit(ctx, audit.Event{
		Category:  audit.CategoryOperations,
		Action:    audit.ActionVerificationRun,
		StudentID: studentID,
		Detail:    verdictLabel(verdict),
	})
	return verdict, nil
}

// VerifyByToken decodes a scanned token and verifies the bound record and
// certificate. A bad signature or malformed token is rejected outright; an
// expired but authentic one still gets an integrity check, with the expiry
// flagged on the verdict.
func (s *Service) VerifyByToken(ctx context.Context, tokenString string) (Verdict, error) {
	ctx, span := s.tracer.Start(ctx, "verify.ByToken")
	defer span.End()

	claims, expired, err := s.tokens.Decode(tokenString)
	if err != nil {
		s.metrics.IncrementVerification("token", false)
		return Verdict{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	verdict, err := s.check(ctx, claims.StudentID)
	if err != nil {
		return Verdict{}, err
	}
	verdict.TokenExpired = expired

	cert, err := s.certs.ByCertID(ctx, claims.CertID)
	switch {
	case err == nil:
		verdict.Certificate = &cert
	case !errors.Is(err, docstore.ErrNotFound):
		return Verdict{}, err
	}

	s.metrics.IncrementVerification("token", verdict.Valid)
	s.auditor.Emit(ctx, audit.Event{
		Category:  audit.CategoryOperations,
		Action:    audit.ActionVerificationRun,
		StudentID: claims.StudentID,
		CertID:    claims.CertID,
		Detail:    verdictLabel(verdict),
	})
	return verdict, nil
}

// Search finds records whose fields contain the query and verifies each match
// concurrently.
func (s *Service) Search(ctx context.Context, query string) ([]SearchResult, error) {
	ctx, span := s.tracer.Start(ctx, "verify.Search", trace.WithAttributes(
		attribute.String("query", query),
	))
	defer span.End()

	start := time.Now()
	defer func() { s.metrics.ObserveSearchLatency(time.Since(start)) }()

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "empty search query")
	}

	all, err := s.students.All(ctx)
	if err != nil {
		return nil, err
	}

	var matched []domain.StudentRecord
	for _, rec := range all {
		if recordMatches(rec, query) {
			matched = append(matched, rec)
		}
	}

	results := make([]SearchResult, len(matched))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(searchConcurrency)
	for i, rec := range matched {
		g.Go(func() error {
			verdict, err := s.check(gctx, rec.ID)
			if err != nil {
				return err
			}
			results[i] = SearchResult{Student: rec, Verdict: verdict}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Student.ID < results[j].Student.ID
	})
	return results, nil
}

func (s *Service) check(ctx context.Context, studentID int64) (Verdict, error) {
	res, err := s.proofs.Verify(ctx, studentID)
	if err != nil {
		return Verdict{}, err
	}

	verdict := Verdict{
		Valid:         res.Valid,
		Expected:      res.Expected,
		Proof:         res.Proof,
		MissingRecord: res.MissingRecord,
		MissingProof:  res.MissingProof,
	}
	if !res.MissingRecord {
		if student, err := s.students.ByID(ctx, studentID); err == nil {
			verdict.Student = &student
		}
	}
	return verdict, nil
}

func recordMatches(rec domain.StudentRecord, query string) bool {
	if strings.Contains(strconv.FormatInt(rec.ID, 10), query) {
		return true
	}
	for _, value := range rec.Data {
		if strings.Contains(strings.ToLower(value), query) {
			return true
		}
	}
	return false
}

func verdictLabel(v Verdict) string {
	switch {
	case v.MissingRecord:
		return "missing_record"
	case v.MissingProof:
		return "missing_proof"
	case v.Valid:
		return "valid"
	default:
		return "mismatch"
	}
}
