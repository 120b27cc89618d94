package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "certproof/pkg/domain-errors"
)

// Claims bind a certificate to its student record. The pair is everything a
// scanned QR needs to start verification.
type Claims struct {
	StudentID int64 `json:"student_id"`
	CertID    int64 `json:"cert_id"`
	jwt.RegisteredClaims
}

// Service issues and checks the signed bearer tokens embedded on certificate
// artifacts. The signing secret is process-wide, read-only state resolved once
// at startup.
type Service struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock function for testability.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(signingKey string, ttl time.Duration, opts ...Option) *Service {
	s := &Service{
		signingKey: []byte(signingKey),
		ttl:        ttl,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Issue returns a signed token binding {student_id, cert_id} with the
// configured expiry attached.
func (s *Service) Issue(studentID, certID int64) (string, error) {
	now := s.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		StudentID: studentID,
		CertID:    certID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})
	signed, err := tok.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Verify checks signature and expiry and fails closed: bad signature,
// malformed structure, and expiry all collapse into the same "invalid token"
// error so callers cannot probe for the cause.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	claims, expired, err := s.Decode(tokenString)
	if err != nil || expired {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	return claims, nil
}

// Decode checks the signature but reports expiry as a separate outcome. The
// verification orchestrator uses this to surface token expiry independently of
// the hash-integrity verdict.
func (s *Service) Decode(tokenString string) (*Claims, bool, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, false, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, false, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	expired := claims.ExpiresAt == nil || s.now().After(claims.ExpiresAt.Time)
	return claims, expired, nil
}

// IsInvalid reports whether an error came from token validation rather than
// infrastructure.
func IsInvalid(err error) bool {
	var domainErr dErrors.Error
	return errors.As(err, &domainErr) && domainErr.Code == dErrors.CodeUnauthorized
}
