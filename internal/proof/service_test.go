package proof

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certproof/internal/docstore"
	"certproof/internal/domain"
	"certproof/internal/records"
	"certproof/pkg/platform/audit"
)

func newFixture(t *testing.T) (*Service, records.Students) {
	t.Helper()
	store := docstore.NewMemory()
	students := records.NewStudents(store)
	return NewService(students, records.NewProofs(store)), students
}

func seedStudent(t *testing.T, students records.Students, data map[string]string) domain.StudentRecord {
	t.Helper()
	rec, err := students.Insert(context.Background(), domain.StudentRecord{
		Data:       data,
		UploadedBy: "registrar@u.edu",
		CreatedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
	return rec
}

func TestComputeHashOrderIndependent(t *testing.T) {
	a := ComputeHash(map[string]string{"name": "Alice", "email": "a@x.edu"})
	b := ComputeHash(map[string]string{"email": "a@x.edu", "name": "Alice"})
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestAppendEmitsAuditEvent(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	students := records.NewStudents(store)
	sink := audit.NewInMemorySink()
	svc := NewService(students, records.NewProofs(store), WithAudit(audit.NewPublisher(sink)))
	rec := seedStudent(t, students, map[string]string{"name": "Alice"})

	_, err := svc.Append(ctx, rec.ID, "registrar@u.edu")
	require.NoError(t, err)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionProofAppended, events[0].Action)
	assert.Equal(t, rec.ID, events[0].StudentID)
	assert.Equal(t, "registrar@u.edu", events[0].Issuer)
}

func TestVerifyValidAfterAppend(t *testing.T) {
	ctx := context.Background()
	svc, students := newFixture(t)
	rec := seedStudent(t, students, map[string]string{"name": "Alice"})

	appended, err := svc.Append(ctx, rec.ID, "registrar@u.edu")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, appended.StudentID)

	result, err := svc.Verify(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, appended.Hash, result.Expected)
	require.NotNil(t, result.Proof)
	assert.Equal(t, appended.Seq, result.Proof.Seq)
}

func TestVerifyDetectsTamper(t *testing.T) {
	ctx := context.Background()
	svc, students := newFixture(t)
	rec := seedStudent(t, students, map[string]string{"name": "Alice"})

	_, err := svc.Append(ctx, rec.ID, "registrar@u.edu")
	require.NoError(t, err)

	rec.Data["name"] = "Mallory"
	require.NoError(t, students.Update(ctx, rec))

	result, err := svc.Verify(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.NotNil(t, result.Proof)
	assert.NotEqual(t, result.Proof.Hash, result.Expected)
}

func TestVerifyDistinguishesMissingCases(t *testing.T) {
	ctx := context.Background()
	svc, students := newFixture(t)

	result, err := svc.Verify(ctx, 99)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.True(t, result.MissingRecord)
	assert.False(t, result.MissingProof)

	rec := seedStudent(t, students, map[string]string{"name": "Alice"})
	result, err = svc.Verify(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.False(t, result.MissingRecord)
	assert.True(t, result.MissingProof)
	assert.NotEmpty(t, result.Expected)
}

func TestLatestWinsAcrossAppends(t *testing.T) {
	ctx := context.Background()
	svc, students := newFixture(t)
	rec := seedStudent(t, students, map[string]string{"name": "Alice"})

	first, err := svc.Append(ctx, rec.ID, "registrar@u.edu")
	require.NoError(t, err)

	rec.Data["name"] = "Alicia"
	require.NoError(t, students.Update(ctx, rec))
	second, err := svc.Append(ctx, rec.ID, "registrar@u.edu")
	require.NoError(t, err)
	require.Greater(t, second.Seq, first.Seq)

	latest, err := svc.Latest(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, second.Seq, latest.Seq)

	result, err := svc.Verify(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, result.Valid, "latest proof matches the updated record")
}
