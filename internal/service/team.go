package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/teamrally/internal/apperror"
	"github.com/sakif/teamrally/internal/model"
	"github.com/sakif/teamrally/internal/repository"
)

const MaxTeamNameLength = 80

// TeamService creates teams and adds members to them.
type TeamService struct {
	teams  repository.TeamRepository
	events EventRecorder
	logger *slog.Logger
}

// NewTeamService creates a TeamService. events may be nil.
func NewTeamService(teams repository.TeamRepository, events EventRecorder, logger *slog.Logger) *TeamService {
	return &TeamService{
		teams:  teams,
		events: recorderOrNoop(events),
		logger: logger,
	}
}

// CreateTeam creates a team owned by userID. The owner becomes its first
// member with the default weight, in the same transaction.
func (s *TeamService) CreateTeam(ctx context.Context, userID, name string) (*model.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "Team name is required")
	}
	if utf8.RuneCountInString(name) > MaxTeamNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("team name must be %d characters or less", MaxTeamNameLength))
	}

	team := &model.Team{Name: name}
	if err := s.teams.CreateTeamWithOwner(ctx, team, userID); err != nil {
		s.logger.Error("failed to create team",
			slog.String("name", name),
			slog.String("ownerID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/team: creating %q: %w", name, err)
	}

	s.events.RecordEvent(EventCreateTeam)
	s.logger.Info("team created",
		slog.String("teamID", team.ID),
		slog.String("name", team.Name),
		slog.String("ownerID", userID),
	)
	return team, nil
}

// JoinTeam adds userID to teamID with the default weight and returns the
// team.
//
// The membership INSERT runs first and the store reports the outcome:
// apperror.ErrNotFound for a missing team, apperror.ErrConflict for an
// existing membership. Concurrent joins of the same pair leave one row.
func (s *TeamService) JoinTeam(ctx context.Context, userID, teamID string) (*model.Team, error) {
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return nil, apperror.ValidationFailed("team_id", "Team ID is required")
	}

	m := &model.Membership{
		TeamID: teamID,
		UserID: userID,
		Weight: model.DefaultMemberWeight,
	}
	if err := s.teams.AddMember(ctx, m); err != nil {
		if !errors.Is(err, apperror.ErrNotFound) && !errors.Is(err, apperror.ErrConflict) {
			s.logger.Error("failed to add team member",
				slog.String("teamID", teamID),
				slog.String("userID", userID),
				slog.String("error", err.Error()),
			)
		}
		return nil, fmt.Errorf("service/team: joining %s: %w", teamID, err)
	}

	// Teams are never deleted, so the team read after the insert is the
	// team that was joined.
	team, err := s.teams.GetTeamByID(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("service/team: reading joined team %s: %w", teamID, err)
	}

	s.events.RecordEvent(EventJoinTeam)
	s.logger.Info("team joined",
		slog.String("teamID", teamID),
		slog.String("userID", userID),
	)
	return team, nil
}
