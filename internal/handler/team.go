package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/teamrally/internal/auth"
	"github.com/sakif/teamrally/internal/model"
)

// TeamManager is the part of service.TeamService the handler calls.
type TeamManager interface {
	CreateTeam(ctx context.Context, userID, name string) (*model.Team, error)
	JoinTeam(ctx context.Context, userID, teamID string) (*model.Team, error)
}

// CheckInRecorder is the part of service.CheckInService the handler calls.
type CheckInRecorder interface {
	CheckIn(ctx context.Context, userID, teamID, postURL string) (*model.CheckIn, error)
}

// TeamHandler serves the authenticated team mutations: create, join and
// check-in. Every route here sits behind auth.RequireAuth.
type TeamHandler struct {
	teams    TeamManager
	checkIns CheckInRecorder
	logger   *slog.Logger
}

// NewTeamHandler creates a TeamHandler.
func NewTeamHandler(teams TeamManager, checkIns CheckInRecorder, logger *slog.Logger) *TeamHandler {
	return &TeamHandler{teams: teams, checkIns: checkIns, logger: logger}
}

type createTeamRequest struct {
	Name string `json:"name"`
}

type CreateTeamResponse struct {
	TeamID  string `json:"team_id"`
	Message string `json:"message"`
}

type joinTeamRequest struct {
	TeamID string `json:"team_id"`
}

type JoinTeamResponse struct {
	TeamID   string `json:"team_id"`
	TeamName string `json:"team_name"`
	Message  string `json:"message"`
}

type checkInRequest struct {
	TeamID  string `json:"team_id"`
	PostURL string `json:"post_url"`
}

// HandleCreate creates a team with the caller as its first member.
//
// HTTP: POST /api/teams
// Auth: Required
// REQUEST BODY: {"name": "Red"}
func (h *TeamHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req createTeamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	team, err := h.teams.CreateTeam(r.Context(), user.ID, req.Name)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, CreateTeamResponse{
		TeamID:  team.ID,
		Message: "Team created successfully",
	})
}

// HandleJoin adds the caller to an existing team.
//
// HTTP: POST /api/teams/join
// Auth: Required
// REQUEST BODY: {"team_id": "..."}
func (h *TeamHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req joinTeamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	team, err := h.teams.JoinTeam(r.Context(), user.ID, req.TeamID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, JoinTeamResponse{
		TeamID:   team.ID,
		TeamName: team.Name,
		Message:  "Successfully joined the team",
	})
}

// HandleCheckIn records a check-in for a team. The server assigns the
// timestamp.
//
// HTTP: POST /api/checkin
// Auth: Required
// REQUEST BODY: {"team_id": "...", "post_url": "https://..."}
func (h *TeamHandler) HandleCheckIn(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req checkInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if _, err := h.checkIns.CheckIn(r.Context(), user.ID, req.TeamID, req.PostURL); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Check-in recorded successfully"})
}

// currentUser reads the user RequireAuth stored in the context. Reaching a
// handler without one means the route was wired without the middleware.
func (h *TeamHandler) currentUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.logger.Error("protected handler reached without an authenticated user",
			slog.String("path", r.URL.Path),
		)
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "No Authorization header",
			Reason:  "malformed_auth_header",
		})
		return nil, false
	}
	return user, true
}
