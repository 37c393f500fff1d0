package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/sakif/teamrally/internal/apperror"
	"github.com/sakif/teamrally/internal/repository"
)

// OperatorService holds the mutations that have no public API: changing a
// membership's weight and a user's is_new flag. rallyctl drives it.
type OperatorService struct {
	users  repository.UserRepository
	teams  repository.TeamRepository
	logger *slog.Logger
}

func NewOperatorService(users repository.UserRepository, teams repository.TeamRepository, logger *slog.Logger) *OperatorService {
	return &OperatorService{users: users, teams: teams, logger: logger}
}

// SetMemberWeight sets the weight of userID in teamID. Any finite value is
// accepted, including zero and negatives.
func (s *OperatorService) SetMemberWeight(ctx context.Context, teamID, userID string, weight float64) error {
	teamID, userID = strings.TrimSpace(teamID), strings.TrimSpace(userID)
	if teamID == "" || userID == "" {
		return apperror.ValidationFailed("team_id", "team ID and user ID are required")
	}
	if math.IsNaN(weight) || math.IsInf(weight, 0) {
		return apperror.ValidationFailed("weight", "weight must be a finite number")
	}

	if err := s.teams.SetMemberWeight(ctx, teamID, userID, weight); err != nil {
		return fmt.Errorf("service/operator: setting weight: %w", err)
	}
	s.logger.Info("member weight changed",
		slog.String("teamID", teamID),
		slog.String("userID", userID),
		slog.Float64("weight", weight),
	)
	return nil
}

// SetUserNew sets or clears a user's is_new flag.
func (s *OperatorService) SetUserNew(ctx context.Context, userID string, isNew bool) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return apperror.ValidationFailed("user_id", "user ID is required")
	}

	if err := s.users.SetUserNew(ctx, userID, isNew); err != nil {
		return fmt.Errorf("service/operator: setting is_new: %w", err)
	}
	s.logger.Info("user is_new changed",
		slog.String("userID", userID),
		slog.Bool("isNew", isNew),
	)
	return nil
}
