// Package auth issues and checks the bearer tokens that protect the
// mutating API routes.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. Client POSTs username/password to /api/login
//  2. AuthService verifies the bcrypt hash and asks TokenService for a JWT
//  3. Client sends "Authorization: Bearer <jwt>" on protected calls
//  4. RequireAuth hands the header to Gate.Authenticate, which parses it,
//     validates the JWT and looks the user up in the store
//  5. The resolved *model.User is stored in the request context
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"<user id>","iss":"teamrally","iat":...,"exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secret)
//
// The signature is checked before any claim, so a tampered token is always
// reported as invalid, never as expired.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/teamrally/internal/apperror"
	"github.com/sakif/teamrally/internal/clock"
)

const (
	// Issuer is written to and required in every token.
	Issuer = "teamrally"

	// DefaultTokenTTL is how long a token stays valid after issue.
	DefaultTokenTTL = 24 * time.Hour

	minSecretLen = 16

	// issuePrecision is the granularity of iat and exp. It is coarser than
	// the wire precision so a decoded exp can be rounded back exactly.
	issuePrecision = time.Millisecond
)

// NumericDate defaults to whole seconds on the wire. Microseconds keep a
// millisecond exp exact through the float decode.
func init() {
	jwt.TimePrecision = time.Microsecond
}

// TokenService handles JWT creation and validation.
//
// The secret is injected at construction. Changing it invalidates every
// token issued under the old one.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

// NewTokenService creates a TokenService signing with secret.
// The secret must be at least 16 bytes; production deployments should use
// 32 random bytes (JWT_SECRET=$(openssl rand -hex 32)).
func NewTokenService(secret []byte, ttl time.Duration, clk clock.Clock) (*TokenService, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d bytes", minSecretLen)
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token TTL must be positive")
	}
	return &TokenService{
		secret: append([]byte(nil), secret...),
		ttl:    ttl,
		clock:  clk,
	}, nil
}

// claims is the JWT payload. Subject carries the internal user ID.
type claims struct {
	jwt.RegisteredClaims
}

// GetExpirationTime rounds the decoded exp to issuePrecision. Decoding goes
// through a float64, which can land a microsecond short of the issued value.
func (c claims) GetExpirationTime() (*jwt.NumericDate, error) {
	if c.ExpiresAt == nil {
		return nil, nil
	}
	return &jwt.NumericDate{Time: c.ExpiresAt.Add(issuePrecision / 2).Truncate(issuePrecision)}, nil
}

// Issue signs a new token for userID and returns it with its issue time.
//
// The clock reading is kept to the millisecond. The returned time is exactly
// the iat written into the token, and the token stops validating at
// issuedAt + ttl.
func (s *TokenService) Issue(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("auth: cannot issue a token without a subject")
	}

	issuedAt := s.clock.Now().Truncate(issuePrecision)
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, issuedAt, nil
}

// Validate parses and verifies a JWT string and returns its subject.
//
// VALIDATION CHECKS (performed by the jwt library, in this order):
//   - Algorithm is HS256 (blocks "none" and RS/HS confusion)
//   - Signature matches the secret
//   - exp is present and strictly after the clock's now
//   - iss is "teamrally"
//
// Failures come back as apperror.ErrTokenExpired or apperror.ErrTokenInvalid.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", apperror.Unauthorized(apperror.ErrTokenExpired, "Token has expired")
		}
		return "", apperror.Unauthorized(apperror.ErrTokenInvalid, "Invalid token")
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid || c.Subject == "" {
		return "", apperror.Unauthorized(apperror.ErrTokenInvalid, "Invalid token")
	}
	return c.Subject, nil
}
