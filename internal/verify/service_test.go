package verify

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certproof/internal/docstore"
	"certproof/internal/domain"
	"certproof/internal/proof"
	"certproof/internal/records"
	"certproof/internal/token"
	dErrors "certproof/pkg/domain-errors"
	"certproof/pkg/platform/audit"
)

type fixture struct {
	svc      *Service
	students records.Students
	certs    records.Certificates
	proofs   *proof.Service
	tokens   *token.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := docstore.NewMemory()
	students := records.NewStudents(store)
	certs := records.NewCertificates(store)
	proofSvc := proof.NewService(students, records.NewProofs(store))
	tokens := token.NewService("test-secret", time.Hour)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(students, certs, proofSvc, tokens,
		audit.NewPublisher(audit.NewInMemorySink()), logger)
	return fixture{svc: svc, students: students, certs: certs, proofs: proofSvc, tokens: tokens}
}

func (f fixture) seedStudent(t *testing.T, data map[string]string) domain.StudentRecord {
	t.Helper()
	ctx := context.Background()
	rec, err := f.students.Insert(ctx, domain.StudentRecord{
		Data: data, UploadedBy: "registrar", CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	_, err = f.proofs.AppendFor(ctx, rec, "registrar")
	require.NoError(t, err)
	return rec
}

func TestVerifyByStudentValid(t *testing.T) {
	f := newFixture(t)
	rec := f.seedStudent(t, map[string]string{"name": "Alice", "email": "a@x.edu"})

	verdict, err := f.svc.VerifyByStudent(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.True(t, verdict.Valid)
	require.NotNil(t, verdict.Proof)
	assert.Equal(t, verdict.Expected, verdict.Proof.Hash)
	require.NotNil(t, verdict.Student)
}

func TestVerifyByStudentDetectsTampering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.seedStudent(t, map[string]string{"name": "Alice", "degree": "BSc"})

	rec.Data["degree"] = "PhD"
	require.NoError(t, f.students.Update(ctx, rec))

	verdict, err := f.svc.VerifyByStudent(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, verdict.Valid)
	require.NotNil(t, verdict.Proof)
	assert.NotEqual(t, verdict.Expected, verdict.Proof.Hash)
}

func TestVerifyByStudentMissingCases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	verdict, err := f.svc.VerifyByStudent(ctx, 404)
	require.NoError(t, err)
	assert.False(t, verdict.Valid)
	assert.True(t, verdict.MissingRecord)

	// Record without any proof.
	rec, err := f.students.Insert(ctx, domain.StudentRecord{
		Data: map[string]string{"name": "Bob"}, UploadedBy: "registrar", CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	verdict, err = f.svc.VerifyByStudent(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, verdict.Valid)
	assert.True(t, verdict.MissingProof)
	assert.NotEmpty(t, verdict.Expected)
}

func TestVerifyByToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.seedStudent(t, map[string]string{"name": "Alice", "email": "a@x.edu"})

	cert := domain.Certificate{
		CertID: 7, StudentID: rec.ID, File: "certs/cert_7.png",
		GeneratedAt: time.Now().UTC(), IssuedBy: "registrar",
	}
	require.NoError(t, f.certs.Upsert(ctx, cert))

	tok, err := f.tokens.Issue(rec.ID, cert.CertID)
	require.NoError(t, err)

	verdict, err := f.svc.VerifyByToken(ctx, tok)
	require.NoError(t, err)
	assert.True(t, verdict.Valid)
	assert.False(t, verdict.TokenExpired)
	require.NotNil(t, verdict.Certificate)
	assert.Equal(t, int64(7), verdict.Certificate.CertID)
}

func TestVerifyByTokenRejectsGarbage(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.VerifyByToken(context.Background(), "not-a-token")
	require.Error(t, err)
	var dErr dErrors.Error
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, dErrors.CodeUnauthorized, dErr.Code)
}

func TestVerifyByTokenExpiredStillChecksIntegrity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.seedStudent(t, map[string]string{"name": "Alice"})

	past := time.Now().Add(-48 * time.Hour)
	expiredIssuer := token.NewService("test-secret", time.Hour,
		token.WithClock(func() time.Time { return past }))
	tok, err := expiredIssuer.Issue(rec.ID, 1)
	require.NoError(t, err)

	verdict, err := f.svc.VerifyByToken(ctx, tok)
	require.NoError(t, err)
	assert.True(t, verdict.TokenExpired)
	assert.True(t, verdict.Valid, "hash integrity is independent of token expiry")
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := f.seedStudent(t, map[string]string{"name": "Alice Smith", "degree": "BSc Physics"})
	f.seedStudent(t, map[string]string{"name": "Bob Jones", "degree": "BA History"})
	tampered := f.seedStudent(t, map[string]string{"name": "Carol Smith", "degree": "BSc Maths"})
	tampered.Data["degree"] = "MSc Maths"
	require.NoError(t, f.students.Update(ctx, tampered))

	results, err := f.svc.Search(ctx, "smith")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, alice.ID, results[0].Student.ID)
	assert.True(t, results[0].Verdict.Valid)
	assert.Equal(t, tampered.ID, results[1].Student.ID)
	assert.False(t, results[1].Verdict.Valid)

	_, err = f.svc.Search(ctx, "   ")
	require.Error(t, err)
}

func TestSearchMatchesStudentID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := f.seedStudent(t, map[string]string{"name": "Alice"})
	f.seedStudent(t, map[string]string{"name": "Bob"})

	results, err := f.svc.Search(ctx, strconv.FormatInt(alice.ID, 10))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, alice.ID, results[0].Student.ID)
}
