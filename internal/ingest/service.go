package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"certproof/internal/docstore"
	"certproof/internal/domain"
	"certproof/internal/ingest/metrics"
	"certproof/internal/proof"
	"certproof/internal/records"
	dErrors "certproof/pkg/domain-errors"
	"certproof/pkg/platform/audit"
)

// Policy controls what happens when an incoming row matches an existing
// record by email.
type Policy string

const (
	// PolicyUpdate overwrites the matched record's data in place, keeping its
	// id and original creation time.
	PolicyUpdate Policy = "update"

	// PolicySkip drops the incoming row entirely.
	PolicySkip Policy = "skip"
)

// ParsePolicy maps a raw request value to a Policy, defaulting to update.
func ParsePolicy(s string) Policy {
	if s == string(PolicySkip) {
		return PolicySkip
	}
	return PolicyUpdate
}

// Renderer generates the certificate artifact for one record.
type Renderer interface {
	Render(templatePath string, layout domain.Layout, student domain.StudentRecord, certID int64) (string, error)
}

// Request describes one batch ingestion.
type Request struct {
	Rows          []map[string]string
	Issuer        string
	TemplateID    string
	Policy        Policy
	ClearPrevious bool
}

// RowOutcome reports what happened to a single input row. Exactly one of
// Certificate or Error is set for rows that were not skipped.
type RowOutcome struct {
	Student      *domain.StudentRecord `json:"student,omitempty"`
	Proof        *domain.Proof         `json:"proof,omitempty"`
	Certificate  *domain.Certificate   `json:"certificate,omitempty"`
	Error        string                `json:"error,omitempty"`
	WasDuplicate bool                  `json:"was_duplicate"`
	Skipped      bool                  `json:"skipped,omitempty"`
}

// Stats aggregates a batch.
type Stats struct {
	TotalStudents int    `json:"total_students"`
	Created       int    `json:"created"`
	Updated       int    `json:"updated"`
	Skipped       int    `json:"skipped"`
	Failed        int    `json:"failed"`
	Processed     int    `json:"processed"`
	Policy        Policy `json:"policy"`
}

// Result is the full batch outcome: one entry per input row plus aggregates.
type Result struct {
	Rows  []RowOutcome `json:"rows"`
	Stats Stats        `json:"stats"`
}

// ClearResult counts what an issuer-scoped bulk clear removed.
type ClearResult struct {
	Certificates int `json:"certificates"`
	Students     int `json:"students"`
	Proofs       int `json:"proofs"`
}

// Service runs batch ingestion: dedup by email, proof appends, certificate
// rendering, and the issuer-scoped bulk clear.
type Service struct {
	students    records.Students
	proofs      *proof.Service
	certs       records.Certificates
	templates   records.Templates
	renderer    Renderer
	storageRoot string
	auditor     *audit.Publisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// Option configures optional Service dependencies.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics attaches ingestion metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(
	students records.Students,
	proofs *proof.Service,
	certs records.Certificates,
	templates records.Templates,
	renderer Renderer,
	storageRoot string,
	auditor *audit.Publisher,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		students:    students,
		proofs:      proofs,
		certs:       certs,
		templates:   templates,
		renderer:    renderer,
		storageRoot: storageRoot,
		auditor:     auditor,
		logger:      logger,
		tracer:      otel.Tracer("certproof/ingest"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ParseCSV reads a header-keyed CSV stream into row maps. Ragged rows keep
// whatever columns they have; a row shorter than the header simply omits the
// trailing keys.
func ParseCSV(r io.Reader) ([]map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, dErrors.New(dErrors.CodeBadRequest, "empty csv")
		}
		return nil, dErrors.New(dErrors.CodeBadRequest, "unreadable csv header")
	}

	var rows []map[string]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "malformed csv row")
		}
		row := make(map[string]string, len(header))
		for i, value := range record {
			if i >= len(header) {
				break
			}
			row[header[i]] = value
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Ingest runs one batch. Row failures are isolated: a bad row reports its
// error in its outcome and the rest of the batch proceeds.
func (s *Service) Ingest(ctx context.Context, req Request) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "ingest.Batch", trace.WithAttributes(
		attribute.Int("rows", len(req.Rows)),
		attribute.String("policy", string(req.Policy)),
	))
	defer span.End()

	start := s.now()
	defer func() { s.metrics.ObserveBatchLatency(time.Since(start)) }()

	if len(req.Rows) == 0 {
		return Result{}, dErrors.New(dErrors.CodeBadRequest, "no rows to ingest")
	}
	if req.Policy == "" {
		req.Policy = PolicyUpdate
	}

	// Resolve the template before touching any record so a bad template id
	// fails the whole request instead of half-ingesting.
	templatePath, layout, err := s.resolveTemplate(ctx, req.TemplateID)
	if err != nil {
		return Result{}, err
	}

	if req.ClearPrevious {
		if _, err := s.Clear(ctx, req.Issuer); err != nil {
			return Result{}, err
		}
	}

	index, err := s.buildEmailIndex(ctx)
	if err != nil {
		return Result{}, err
	}

	result := Result{Rows: make([]RowOutcome, 0, len(req.Rows)), Stats: Stats{Policy: req.Policy}}
	for _, row := range req.Rows {
		outcome := s.ingestRow(ctx, row, req, templatePath, layout, index)
		result.Rows = append(result.Rows, outcome)

		switch {
		case outcome.Skipped:
			result.Stats.Skipped++
			s.metrics.IncrementRow("skipped")
		case outcome.Error != "":
			result.Stats.Failed++
			s.metrics.IncrementRow("error")
		case outcome.WasDuplicate:
			result.Stats.Updated++
			result.Stats.Processed++
			s.metrics.IncrementRow("updated")
		default:
			result.Stats.Created++
			result.Stats.Processed++
			s.metrics.IncrementRow("created")
		}
	}

	all, err := s.students.All(ctx)
	if err != nil {
		return Result{}, err
	}
	result.Stats.TotalStudents = len(all)

	s.logger.InfoContext(ctx, "batch ingested",
		slog.String("issuer", req.Issuer),
		slog.Int("created", result.Stats.Created),
		slog.Int("updated", result.Stats.Updated),
		slog.Int("skipped", result.Stats.Skipped),
		slog.Int("failed", result.Stats.Failed))
	return result, nil
}

func (s *Service) resolveTemplate(ctx context.Context, templateID string) (string, domain.Layout, error) {
	if templateID == "" {
		return "", domain.DefaultLayout(), nil
	}
	tpl, err := s.templates.ByTemplateID(ctx, templateID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return "", domain.Layout{}, dErrors.New(dErrors.CodeNotFound, "template not found")
		}
		return "", domain.Layout{}, err
	}
	return filepath.Join(s.storageRoot, "templates", tpl.Filename), tpl.Layout, nil
}

// buildEmailIndex snapshots the current email-to-record mapping. The index is
// kept up to date during the batch so duplicates within one upload collapse
// the same way duplicates against the store do.
func (s *Service) buildEmailIndex(ctx context.Context) (map[string]domain.StudentRecord, error) {
	all, err := s.students.All(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[string]domain.StudentRecord, len(all))
	for _, rec := range all {
		if email, ok := ExtractEmail(rec.Data); ok {
			index[email] = rec
		}
	}
	return index, nil
}

func (s *Service) ingestRow(
	ctx context.Context,
	row map[string]string,
	req Request,
	templatePath string,
	layout domain.Layout,
	index map[string]domain.StudentRecord,
) RowOutcome {
	email, hasEmail := ExtractEmail(row)
	existing, isDuplicate := index[email]
	if !hasEmail {
		isDuplicate = false
	}

	if isDuplicate && req.Policy == PolicySkip {
		return RowOutcome{WasDuplicate: true, Skipped: true}
	}

	var rec domain.StudentRecord
	if isDuplicate {
		rec = existing
		rec.Data = row
		if err := s.students.Update(ctx, rec); err != nil {
			return RowOutcome{WasDuplicate: true, Error: err.Error()}
		}
		s.auditor.Emit(ctx, audit.Event{
			Category:  audit.CategoryCompliance,
			Action:    audit.ActionStudentUpdated,
			Issuer:    req.Issuer,
			StudentID: rec.ID,
		})
	} else {
		var err error
		rec, err = s.students.Insert(ctx, domain.StudentRecord{
			Data:       row,
			UploadedBy: req.Issuer,
			CreatedAt:  s.now().UTC(),
		})
		if err != nil {
			return RowOutcome{Error: err.Error()}
		}
		s.auditor.Emit(ctx, audit.Event{
			Category:  audit.CategoryCompliance,
			Action:    audit.ActionStudentIngested,
			Issuer:    req.Issuer,
			StudentID: rec.ID,
		})
	}
	if hasEmail {
		index[email] = rec
	}

	outcome := RowOutcome{Student: &rec, WasDuplicate: isDuplicate}

	pf, err := s.proofs.AppendFor(ctx, rec, req.Issuer)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Proof = &pf

	cert, err := s.issueCertificate(ctx, rec, req, templatePath, layout)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Certificate = &cert
	return outcome
}

// issueCertificate renders the artifact and writes the certificate row. An
// updated record keeps its existing cert id; everything else draws a fresh,
// never-reused id from the sequence.
func (s *Service) issueCertificate(
	ctx context.Context,
	rec domain.StudentRecord,
	req Request,
	templatePath string,
	layout domain.Layout,
) (domain.Certificate, error) {
	var certID int64
	if prior, err := s.certs.ByStudent(ctx, rec.ID); err == nil {
		certID = prior.CertID
	} else if errors.Is(err, docstore.ErrNotFound) {
		certID, err = s.certs.NextCertID(ctx)
		if err != nil {
			return domain.Certificate{}, err
		}
	} else {
		return domain.Certificate{}, err
	}

	artifact, err := s.renderer.Render(templatePath, layout, rec, certID)
	if err != nil {
		return domain.Certificate{}, err
	}

	cert := domain.Certificate{
		CertID:      certID,
		StudentID:   rec.ID,
		File:        artifact,
		GeneratedAt: s.now().UTC(),
		IssuedBy:    req.Issuer,
	}
	if err := s.certs.Upsert(ctx, cert); err != nil {
		return domain.Certificate{}, err
	}

	s.metrics.IncrementCertificates()
	s.auditor.Emit(ctx, audit.Event{
		Category:  audit.CategoryCompliance,
		Action:    audit.ActionCertificateIssued,
		Issuer:    req.Issuer,
		StudentID: rec.ID,
		CertID:    certID,
	})
	return cert, nil
}

// Clear removes the issuer's certificates and uploaded records, then prunes
// proofs whose records no longer exist. Certificate ids are sequence-backed
// and are never handed out again after a clear.
func (s *Service) Clear(ctx context.Context, issuer string) (ClearResult, error) {
	ctx, span := s.tracer.Start(ctx, "ingest.Clear", trace.WithAttributes(
		attribute.String("issuer", issuer),
	))
	defer span.End()

	var res ClearResult
	var err error

	if res.Certificates, err = s.certs.DeleteByIssuer(ctx, issuer); err != nil {
		return res, err
	}
	if res.Students, err = s.students.DeleteByUploader(ctx, issuer); err != nil {
		return res, err
	}

	surviving := make(map[int64]bool)
	all, err := s.students.All(ctx)
	if err != nil {
		return res, err
	}
	for _, rec := range all {
		surviving[rec.ID] = true
	}
	if res.Proofs, err = s.proofs.DeleteOrphans(ctx, surviving); err != nil {
		return res, err
	}

	s.auditor.Emit(ctx, audit.Event{
		Category: audit.CategoryCompliance,
		Action:   audit.ActionRecordsCleared,
		Issuer:   issuer,
	})
	s.logger.InfoContext(ctx, "records cleared",
		slog.String("issuer", issuer),
		slog.Int("certificates", res.Certificates),
		slog.Int("students", res.Students),
		slog.Int("proofs", res.Proofs))
	return res, nil
}
