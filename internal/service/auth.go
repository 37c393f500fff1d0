package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/teamrally/internal/apperror"
	"github.com/sakif/teamrally/internal/auth"
	"github.com/sakif/teamrally/internal/model"
	"github.com/sakif/teamrally/internal/repository"
)

// MaxUsernameLength bounds usernames in characters.
const MaxUsernameLength = 80

// AuthService handles registration and login.
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                                 ↘ PasswordService (bcrypt)
//	                                 ↘ TokenService (JWT)
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	events    EventRecorder
	logger    *slog.Logger
}

// NewAuthService creates an AuthService. events may be nil.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	events EventRecorder,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		events:    recorderOrNoop(events),
		logger:    logger,
	}
}

// LoginResult bundles the issued token with the user it belongs to.
type LoginResult struct {
	User     *model.User
	Token    string
	IssuedAt time.Time
}

// Register creates a user with the given credentials. New users start with
// is_new set.
//
// A taken username is reported by the store's UNIQUE constraint as
// apperror.ErrConflict. There is no lookup beforehand, so two concurrent
// registrations of one name cannot both succeed.
func (s *AuthService) Register(ctx context.Context, username, password string) (*model.User, error) {
	username, err := validateCredentials(username, password)
	if err != nil {
		return nil, err
	}
	if len(password) > auth.MaxPasswordBytes {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Username:     username,
		PasswordHash: hash,
		IsNew:        true,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if !errors.Is(err, apperror.ErrConflict) {
			s.logger.Error("failed to create user",
				slog.String("username", username),
				slog.String("error", err.Error()),
			)
		}
		return nil, fmt.Errorf("service/auth: registering %q: %w", username, err)
	}

	s.events.RecordEvent(EventRegister)
	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// Login verifies username/password and issues a bearer token.
//
// Unknown username and wrong password both return the same
// apperror.InvalidCredentials. For an unknown username a dummy bcrypt
// comparison still runs so the two cases take the same time.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username, err := validateCredentials(username, password)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.passwords.VerifyDummy(password)
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: looking up %q: %w", username, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.InvalidCredentials()
		}
		// Corrupt stored hash: still a refusal, but worth an error log.
		s.logger.Error("stored password hash unusable",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, apperror.InvalidCredentials()
	}

	token, issuedAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for user %s: %w", user.ID, err)
	}

	s.events.RecordEvent(EventLogin)
	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return &LoginResult{User: user, Token: token, IssuedAt: issuedAt}, nil
}

// validateCredentials trims the username and checks both fields are present.
func validateCredentials(username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", apperror.ValidationFailed("username", "Username and password are required")
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return "", apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d characters or less", MaxUsernameLength))
	}
	return username, nil
}
