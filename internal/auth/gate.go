package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sakif/teamrally/internal/apperror"
	"github.com/sakif/teamrally/internal/model"
)

// UserLookup is the slice of the user store the gate needs.
// repository.UserRepository satisfies it.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// Gate turns a raw Authorization header into a user identity.
type Gate struct {
	tokens *TokenService
	users  UserLookup
}

// NewGate creates a Gate backed by the given token service and user store.
func NewGate(tokens *TokenService, users UserLookup) *Gate {
	return &Gate{tokens: tokens, users: users}
}

// Authenticate resolves header (the full "Authorization" value) to a user.
//
// FAILURE KINDS (each wraps apperror.ErrUnauthorized):
//   - ErrMalformedAuthHeader: empty header, no space, or empty token
//   - ErrUnsupportedScheme:   scheme is not "Bearer" (case-insensitive)
//   - ErrTokenExpired:        exp has passed
//   - ErrTokenInvalid:        bad signature, format, issuer or algorithm
//   - ErrUnknownUser:         token is valid but the user is gone
//
// A storage failure during the user lookup is returned as a plain wrapped
// error so it surfaces as an internal error, not as an unknown user.
func (g *Gate) Authenticate(ctx context.Context, header string) (*model.User, error) {
	token, err := bearerToken(header)
	if err != nil {
		return nil, err
	}

	userID, err := g.tokens.Validate(token)
	if err != nil {
		return nil, err
	}

	user, err := g.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized(apperror.ErrUnknownUser, "User not found")
		}
		return nil, fmt.Errorf("auth: looking up token subject %s: %w", userID, err)
	}
	return user, nil
}

// bearerToken splits "<scheme> <token>" and checks the scheme.
func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", apperror.Unauthorized(apperror.ErrMalformedAuthHeader, "No Authorization header")
	}

	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return "", apperror.Unauthorized(apperror.ErrMalformedAuthHeader, `Invalid token format. Expected "Bearer <token>"`)
	}
	if !strings.EqualFold(scheme, "Bearer") {
		return "", apperror.Unauthorized(apperror.ErrUnsupportedScheme, `Invalid token type. Expected "Bearer"`)
	}
	return token, nil
}
