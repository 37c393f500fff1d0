package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/teamrally/internal/apperror"
	"github.com/sakif/teamrally/internal/clock"
)

var testSecret = []byte("test-secret-at-least-16-chars!!")

// newTestTokenService creates a TokenService on a Fixed clock so tests can
// move time around the expiry boundary.
func newTestTokenService(t *testing.T) (*TokenService, *clock.Fixed) {
	t.Helper()
	clk := clock.NewFixed(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	ts, err := NewTokenService(testSecret, DefaultTokenTTL, clk)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts, clk
}

// =========================================================================
// TOKEN SERVICE CONSTRUCTION TESTS
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService([]byte("short"), DefaultTokenTTL, clock.NewMonotonic())
	if err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 bytes")
	}
}

func TestNewTokenService_NonPositiveTTL(t *testing.T) {
	_, err := NewTokenService(testSecret, 0, clock.NewMonotonic())
	if err == nil {
		t.Fatal("NewTokenService() should reject a zero TTL")
	}
}

// =========================================================================
// ISSUE TESTS
// =========================================================================

func TestIssue_ClaimsShape(t *testing.T) {
	ts, clk := newTestTokenService(t)
	clk.Set(time.Date(2026, 3, 1, 12, 0, 0, 750_400_000, time.UTC))

	token, issuedAt, err := ts.Issue("user-123")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("Issue() token doesn't look like a JWT: %q", token)
	}

	wantIat := time.Date(2026, 3, 1, 12, 0, 0, 750_000_000, time.UTC)
	if !issuedAt.Equal(wantIat) {
		t.Errorf("issuedAt = %v, want %v (kept to the millisecond)", issuedAt, wantIat)
	}

	parsed := &claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, parsed); err != nil {
		t.Fatalf("ParseUnverified() error = %v", err)
	}
	if parsed.Subject != "user-123" {
		t.Errorf("sub = %q, want user-123", parsed.Subject)
	}
	if parsed.Issuer != Issuer {
		t.Errorf("iss = %q, want %q", parsed.Issuer, Issuer)
	}
	if d := parsed.IssuedAt.Time.Sub(wantIat); d < -time.Microsecond || d > time.Microsecond {
		t.Errorf("iat = %v, want %v", parsed.IssuedAt.Time, wantIat)
	}
	exp, err := parsed.GetExpirationTime()
	if err != nil {
		t.Fatalf("GetExpirationTime() error = %v", err)
	}
	if got := exp.Time.Sub(issuedAt); got != DefaultTokenTTL {
		t.Errorf("exp - issuedAt = %v, want %v", got, DefaultTokenTTL)
	}
}

func TestIssue_EmptySubject(t *testing.T) {
	ts, _ := newTestTokenService(t)

	if _, _, err := ts.Issue(""); err == nil {
		t.Fatal("Issue() should refuse an empty user ID")
	}
}

// =========================================================================
// VALIDATE TESTS
// =========================================================================

func TestValidate_RoundTrip(t *testing.T) {
	ts, _ := newTestTokenService(t)

	token, _, err := ts.Issue("user-abc-123")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	got, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got != "user-abc-123" {
		t.Errorf("Validate() userID = %q, want %q", got, "user-abc-123")
	}
}

// A token issued at t0 validates at every instant before t0+24h and is
// expired at t0+24h and after.
func TestValidate_ExpiryBoundary(t *testing.T) {
	ts, clk := newTestTokenService(t)

	token, t0, err := ts.Issue("user-123")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	tests := []struct {
		name    string
		at      time.Time
		wantErr error
	}{
		{"at issue", t0, nil},
		{"one hour in", t0.Add(time.Hour), nil},
		{"one nanosecond before expiry", t0.Add(DefaultTokenTTL - time.Nanosecond), nil},
		{"exactly at expiry", t0.Add(DefaultTokenTTL), apperror.ErrTokenExpired},
		{"one second after expiry", t0.Add(DefaultTokenTTL + time.Second), apperror.ErrTokenExpired},
		{"a week later", t0.Add(7 * 24 * time.Hour), apperror.ErrTokenExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk.Set(tt.at)
			_, err := ts.Validate(token)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() error = %v, want valid", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, apperror.ErrUnauthorized) {
				t.Error("expiry should also match ErrUnauthorized")
			}
		})
	}
}

// Tokens issued part way through a second keep their full lifetime.
func TestValidate_SubSecondIssue(t *testing.T) {
	issues := []time.Time{
		time.Date(2026, 3, 1, 9, 0, 0, 700_000_000, time.UTC),
		time.Date(2026, 3, 1, 9, 0, 0, 999_000_000, time.UTC),
		time.Date(2026, 3, 1, 9, 0, 0, 1_000_000, time.UTC),
		time.Date(2026, 12, 31, 23, 59, 59, 123_000_000, time.UTC),
	}

	for _, at := range issues {
		t.Run(at.Format(time.RFC3339Nano), func(t *testing.T) {
			ts, clk := newTestTokenService(t)
			clk.Set(at)

			token, t0, err := ts.Issue("user-123")
			if err != nil {
				t.Fatalf("Issue() error = %v", err)
			}
			if !t0.Equal(at) {
				t.Fatalf("issuedAt = %v, want %v", t0, at)
			}

			checks := []struct {
				at    time.Time
				valid bool
			}{
				{t0.Add(DefaultTokenTTL - 500*time.Millisecond), true},
				{t0.Add(DefaultTokenTTL - time.Millisecond), true},
				{t0.Add(DefaultTokenTTL - time.Nanosecond), true},
				{t0.Add(DefaultTokenTTL), false},
				{t0.Add(DefaultTokenTTL + time.Nanosecond), false},
			}
			for _, c := range checks {
				clk.Set(c.at)
				_, err := ts.Validate(token)
				if c.valid && err != nil {
					t.Errorf("Validate() at %v error = %v, want valid", c.at, err)
				}
				if !c.valid && !errors.Is(err, apperror.ErrTokenExpired) {
					t.Errorf("Validate() at %v error = %v, want ErrTokenExpired", c.at, err)
				}
			}
		})
	}
}

func TestValidate_TamperedToken(t *testing.T) {
	ts, clk := newTestTokenService(t)

	token, t0, _ := ts.Issue("user-123")

	// Corrupt the signature segment.
	tampered := token[:len(token)-3] + "xxx"

	// Even after expiry a bad signature is reported as invalid.
	clk.Set(t0.Add(48 * time.Hour))
	_, err := ts.Validate(tampered)
	if !errors.Is(err, apperror.ErrTokenInvalid) {
		t.Fatalf("Validate() error = %v, want ErrTokenInvalid", err)
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	clk := clock.NewFixed(time.Now())
	ts1, _ := NewTokenService([]byte("correct-secret-32-chars-long!!!!"), DefaultTokenTTL, clk)
	ts2, _ := NewTokenService([]byte("wrong-secret-32-chars-long!!!!!!"), DefaultTokenTTL, clk)

	token, _, _ := ts1.Issue("user-123")

	_, err := ts2.Validate(token)
	if !errors.Is(err, apperror.ErrTokenInvalid) {
		t.Fatalf("Validate() error = %v, want ErrTokenInvalid", err)
	}
}

func TestValidate_WrongIssuer(t *testing.T) {
	ts, clk := newTestTokenService(t)

	now := clk.Now()
	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-123",
		Issuer:    "someone-else",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	signed, err := foreign.SignedString(testSecret)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	_, err = ts.Validate(signed)
	if !errors.Is(err, apperror.ErrTokenInvalid) {
		t.Fatalf("Validate() error = %v, want ErrTokenInvalid", err)
	}
}

func TestValidate_NoneAlgorithm(t *testing.T) {
	ts, clk := newTestTokenService(t)

	now := clk.Now()
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-123",
		Issuer:    Issuer,
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	signed, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	_, err = ts.Validate(signed)
	if !errors.Is(err, apperror.ErrTokenInvalid) {
		t.Fatalf("Validate() error = %v, want ErrTokenInvalid", err)
	}
}

func TestValidate_Garbage(t *testing.T) {
	ts, _ := newTestTokenService(t)

	for _, in := range []string{"", "not.a.jwt.token", "abc"} {
		if _, err := ts.Validate(in); !errors.Is(err, apperror.ErrTokenInvalid) {
			t.Errorf("Validate(%q) error = %v, want ErrTokenInvalid", in, err)
		}
	}
}

func TestValidate_RotatedSecretInvalidatesTokens(t *testing.T) {
	ts, clk := newTestTokenService(t)
	token, _, _ := ts.Issue("user-123")

	rotated, err := NewTokenService([]byte("an-entirely-new-secret-value!!!!"), DefaultTokenTTL, clk)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	if _, err := rotated.Validate(token); !errors.Is(err, apperror.ErrTokenInvalid) {
		t.Errorf("Validate() after rotation error = %v, want ErrTokenInvalid", err)
	}
}
