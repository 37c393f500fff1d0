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

const MaxPostURLLength = 200

// CheckInService records check-ins.
type CheckInService struct {
	checkIns repository.CheckInRepository
	events   EventRecorder
	logger   *slog.Logger
}

// NewCheckInService creates a CheckInService. events may be nil.
func NewCheckInService(checkIns repository.CheckInRepository, events EventRecorder, logger *slog.Logger) *CheckInService {
	return &CheckInService{
		checkIns: checkIns,
		events:   recorderOrNoop(events),
		logger:   logger,
	}
}

// CheckIn records that userID checked in for teamID with postURL.
//
// The timestamp comes from the store's clock, never from the caller. The
// user does not have to be a member of the team.
func (s *CheckInService) CheckIn(ctx context.Context, userID, teamID, postURL string) (*model.CheckIn, error) {
	teamID = strings.TrimSpace(teamID)
	postURL = strings.TrimSpace(postURL)
	if teamID == "" {
		return nil, apperror.ValidationFailed("team_id", "Team ID is required")
	}
	if postURL == "" {
		return nil, apperror.ValidationFailed("post_url", "Post URL is required")
	}
	if utf8.RuneCountInString(postURL) > MaxPostURLLength {
		return nil, apperror.ValidationFailed("post_url",
			fmt.Sprintf("post URL must be %d characters or less", MaxPostURLLength))
	}

	c := &model.CheckIn{
		TeamID:  teamID,
		UserID:  userID,
		PostURL: postURL,
	}
	if err := s.checkIns.CreateCheckIn(ctx, c); err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			s.logger.Error("failed to record check-in",
				slog.String("teamID", teamID),
				slog.String("error", err.Error()),
			)
		}
		return nil, fmt.Errorf("service/checkin: team %s: %w", teamID, err)
	}

	s.events.RecordEvent(EventCheckIn)
	s.logger.Info("check-in recorded",
		slog.String("checkInID", c.ID),
		slog.String("teamID", teamID),
		slog.String("userID", userID),
	)
	return c, nil
}
