package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenTTL is the fixed lifetime of issued tokens. There is no refresh
// mechanism; clients log in again after expiry.
const TokenTTL = 30 * 24 * time.Hour

var (
	// ErrTokenInvalid covers malformed tokens and bad signatures.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired means the signature checked out but exp has passed.
	// Both errors surface as 401; they are kept distinct for diagnostics.
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the signed token payload: subject id and role, nothing else.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// TokenInfo is the decoded identity a verified token asserts.
type TokenInfo struct {
	SubjectID uuid.UUID
	Role      Role
}

// Issuer mints and verifies HS256-signed capability tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret []byte) *Issuer {
	return &Issuer{
		secret: secret,
		ttl:    TokenTTL,
		now:    time.Now,
	}
}

// Issue returns an opaque signed token embedding the subject id and role.
func (i *Issuer) Issue(subjectID uuid.UUID, role Role) (string, error) {
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Role: string(role),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify decodes and validates a token string. Expired-but-well-signed tokens
// fail with ErrTokenExpired; everything else fails with ErrTokenInvalid.
func (i *Issuer) Verify(tokenStr string) (TokenInfo, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(t *jwt.Token) (interface{}, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TokenInfo{}, ErrTokenExpired
		}
		return TokenInfo{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return TokenInfo{}, ErrTokenInvalid
	}

	subjectID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return TokenInfo{}, fmt.Errorf("%w: bad subject", ErrTokenInvalid)
	}
	role, err := ParseRole(claims.Role)
	if err != nil {
		return TokenInfo{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	return TokenInfo{SubjectID: subjectID, Role: role}, nil
}
