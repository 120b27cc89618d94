package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "certproof/pkg/domain-errors"
)

const testTTL = 7 * 24 * time.Hour

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	svc := NewService("test-signing-key", testTTL)

	tok, err := svc.Issue(42, 7)
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	claims, err := svc.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.StudentID)
	assert.Equal(t, int64(7), claims.CertID)
	assert.WithinDuration(t, time.Now().Add(testTTL), claims.ExpiresAt.Time, time.Minute)
}

func TestVerifyFailsClosedOnGarbage(t *testing.T) {
	svc := NewService("test-signing-key", testTTL)
	_, err := svc.Verify("not-a-token")
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
}

func TestVerifyFailsClosedOnWrongSecret(t *testing.T) {
	issuer := NewService("secret-one", testTTL)
	verifier := NewService("secret-two", testTTL)

	tok, err := issuer.Issue(1, 1)
	require.NoError(t, err)

	_, err = verifier.Verify(tok)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
}

func TestVerifyFailsClosedAfterExpiry(t *testing.T) {
	past := time.Now().Add(-8 * 24 * time.Hour)
	svc := NewService("test-signing-key", testTTL, WithClock(func() time.Time { return past }))

	tok, err := svc.Issue(1, 1)
	require.NoError(t, err)

	live := NewService("test-signing-key", testTTL)
	_, err = live.Verify(tok)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
}

func TestDecodeSurfacesExpirySeparately(t *testing.T) {
	past := time.Now().Add(-8 * 24 * time.Hour)
	issuer := NewService("test-signing-key", testTTL, WithClock(func() time.Time { return past }))

	tok, err := issuer.Issue(42, 7)
	require.NoError(t, err)

	live := NewService("test-signing-key", testTTL)
	claims, expired, err := live.Decode(tok)
	require.NoError(t, err, "signature is valid, expiry is a separate concern")
	assert.True(t, expired)
	assert.Equal(t, int64(42), claims.StudentID)

	_, _, err = live.Decode("garbage")
	assert.True(t, IsInvalid(err))
}
