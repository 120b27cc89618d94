package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certproof/internal/docstore"
	"certproof/internal/domain"
	"certproof/internal/proof"
	"certproof/internal/records"
	dErrors "certproof/pkg/domain-errors"
	"certproof/pkg/platform/audit"
)

type stubRenderer struct {
	failFor map[int64]bool
}

func (r stubRenderer) Render(_ string, _ domain.Layout, student domain.StudentRecord, certID int64) (string, error) {
	if r.failFor[student.ID] {
		return "", fmt.Errorf("render failed for student %d", student.ID)
	}
	return fmt.Sprintf("certs/cert_%d.png", certID), nil
}

type fixture struct {
	svc   *Service
	sink  *audit.InMemorySink
	certs records.Certificates
	svcOf func(stubRenderer) *Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := docstore.NewMemory()
	students := records.NewStudents(store)
	proofs := records.NewProofs(store)
	certs := records.NewCertificates(store)
	templates := records.NewTemplates(store)
	sink := audit.NewInMemorySink()
	proofSvc := proof.NewService(students, proofs, proof.WithAudit(audit.NewPublisher(sink)))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	build := func(r stubRenderer) *Service {
		return NewService(students, proofSvc, certs, templates, r, t.TempDir(),
			audit.NewPublisher(sink), logger,
			WithClock(func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }))
	}
	return fixture{svc: build(stubRenderer{}), sink: sink, certs: certs, svcOf: build}
}

func rows(emails ...string) []map[string]string {
	out := make([]map[string]string, 0, len(emails))
	for i, e := range emails {
		out = append(out, map[string]string{
			"name":  fmt.Sprintf("Student %d", i+1),
			"email": e,
		})
	}
	return out
}

func TestParseCSV(t *testing.T) {
	t.Run("header keyed rows", func(t *testing.T) {
		got, err := ParseCSV(strings.NewReader("name,email\nAlice,a@x.edu\nBob,b@y.edu\n"))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, map[string]string{"name": "Alice", "email": "a@x.edu"}, got[0])
	})

	t.Run("ragged row keeps what it has", func(t *testing.T) {
		got, err := ParseCSV(strings.NewReader("name,email,degree\nAlice,a@x.edu\n"))
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"name": "Alice", "email": "a@x.edu"}, got[0])
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := ParseCSV(strings.NewReader(""))
		require.Error(t, err)
		var dErr dErrors.Error
		require.ErrorAs(t, err, &dErr)
		assert.Equal(t, dErrors.CodeBadRequest, dErr.Code)
	})
}

func TestIngestCreatesEverything(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Ingest(context.Background(), Request{
		Rows:   rows("a@x.edu", "b@y.edu"),
		Issuer: "registrar",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Stats.Created)
	assert.Equal(t, 0, res.Stats.Updated)
	assert.Equal(t, 2, res.Stats.TotalStudents)
	require.Len(t, res.Rows, 2)
	for _, row := range res.Rows {
		require.Empty(t, row.Error)
		require.NotNil(t, row.Student)
		require.NotNil(t, row.Proof)
		require.NotNil(t, row.Certificate)
		assert.False(t, row.WasDuplicate)
		assert.Equal(t, "registrar", row.Certificate.IssuedBy)
	}
	assert.NotEqual(t, res.Rows[0].Certificate.CertID, res.Rows[1].Certificate.CertID)
}

func TestIngestSameBatchTwiceUpdatePolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	batch := Request{Rows: rows("a@x.edu"), Issuer: "registrar", Policy: PolicyUpdate}

	first, err := f.svc.Ingest(ctx, batch)
	require.NoError(t, err)
	second, err := f.svc.Ingest(ctx, batch)
	require.NoError(t, err)

	// One student, one certificate with an unchanged id, two proofs.
	assert.Equal(t, 1, second.Stats.TotalStudents)
	assert.Equal(t, 1, second.Stats.Updated)
	assert.Equal(t, 0, second.Stats.Created)
	assert.True(t, second.Rows[0].WasDuplicate)
	assert.Equal(t, first.Rows[0].Student.ID, second.Rows[0].Student.ID)
	assert.Equal(t, first.Rows[0].Certificate.CertID, second.Rows[0].Certificate.CertID)
	assert.Greater(t, second.Rows[0].Proof.Seq, first.Rows[0].Proof.Seq)
}

func TestIngestSkipPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Ingest(ctx, Request{Rows: rows("a@x.edu"), Issuer: "registrar"})
	require.NoError(t, err)

	res, err := f.svc.Ingest(ctx, Request{
		Rows:   rows("a@x.edu", "b@y.edu"),
		Issuer: "registrar",
		Policy: PolicySkip,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Stats.Skipped)
	assert.Equal(t, 1, res.Stats.Created)
	assert.Equal(t, 2, res.Stats.TotalStudents)
	require.Len(t, res.Rows, 2)
	assert.True(t, res.Rows[0].Skipped)
	assert.Nil(t, res.Rows[0].Proof)
	assert.Nil(t, res.Rows[0].Certificate)
}

func TestIngestDuplicateWithinOneBatch(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Ingest(context.Background(), Request{
		Rows: []map[string]string{
			{"name": "Alice", "email": "a@x.edu"},
			{"name": "Alice Smith", "email": "a@x.edu"},
		},
		Issuer: "registrar",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Stats.Created)
	assert.Equal(t, 1, res.Stats.Updated)
	assert.Equal(t, 1, res.Stats.TotalStudents)
	assert.Equal(t, res.Rows[0].Student.ID, res.Rows[1].Student.ID)
	assert.Equal(t, "Alice Smith", res.Rows[1].Student.Data["name"])
}

func TestIngestRowFailureIsIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// First row's student gets id 1; make rendering fail for it only.
	svc := f.svcOf(stubRenderer{failFor: map[int64]bool{1: true}})
	res, err := svc.Ingest(ctx, Request{Rows: rows("a@x.edu", "b@y.edu"), Issuer: "registrar"})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Stats.Failed)
	assert.Contains(t, res.Rows[0].Error, "render failed")
	assert.NotNil(t, res.Rows[0].Proof, "proof still appended before the render step")
	assert.Nil(t, res.Rows[0].Certificate)
	assert.Empty(t, res.Rows[1].Error)
	assert.NotNil(t, res.Rows[1].Certificate)
}

func TestIngestUnknownTemplateFailsWhole(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Ingest(context.Background(), Request{
		Rows:       rows("a@x.edu"),
		Issuer:     "registrar",
		TemplateID: "9f0a1b2c-missing",
	})
	require.Error(t, err)
	var dErr dErrors.Error
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, dErrors.CodeNotFound, dErr.Code)
}

func TestClearScopedToIssuerAndCertIDsNeverReused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res1, err := f.svc.Ingest(ctx, Request{Rows: rows("a@x.edu"), Issuer: "registrar"})
	require.NoError(t, err)
	_, err = f.svc.Ingest(ctx, Request{Rows: rows("x@other.edu"), Issuer: "admissions"})
	require.NoError(t, err)

	cleared, err := f.svc.Clear(ctx, "registrar")
	require.NoError(t, err)
	assert.Equal(t, 1, cleared.Certificates)
	assert.Equal(t, 1, cleared.Students)
	assert.Equal(t, 1, cleared.Proofs)

	// The other issuer's certificate survived.
	remaining, err := f.certs.ByIssuer(ctx, "admissions")
	require.NoError(t, err)
	require.Len(t, remaining, 1)

	// New certificates draw fresh ids past everything ever issued.
	res2, err := f.svc.Ingest(ctx, Request{Rows: rows("c@z.edu"), Issuer: "registrar"})
	require.NoError(t, err)
	assert.Greater(t, res2.Rows[0].Certificate.CertID, res1.Rows[0].Certificate.CertID)
}

func TestIngestEmitsAuditTrail(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Ingest(context.Background(), Request{Rows: rows("a@x.edu"), Issuer: "registrar"})
	require.NoError(t, err)

	actions := make(map[audit.Action]int)
	for _, ev := range f.sink.Events() {
		actions[ev.Action]++
	}
	assert.Equal(t, 1, actions[audit.ActionStudentIngested])
	assert.Equal(t, 1, actions[audit.ActionProofAppended])
	assert.Equal(t, 1, actions[audit.ActionCertificateIssued])
}
