// Package repository declares the storage interfaces the services depend on.
//
// Implementations must enforce uniqueness (usernames, memberships) and
// referential integrity (memberships and check-ins point at real teams)
// inside the store itself, and must apply each mutation atomically.
package repository

import (
	"context"

	"github.com/sakif/teamrally/internal/model"
)

type UserRepository interface {
	// CreateUser inserts a user. Returns apperror.ErrConflict when the
	// username is taken.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	SetUserNew(ctx context.Context, id string, isNew bool) error
}

type TeamRepository interface {
	// CreateTeamWithOwner inserts the team and the owner's membership in
	// one transaction.
	CreateTeamWithOwner(ctx context.Context, team *model.Team, ownerID string) error
	GetTeamByID(ctx context.Context, id string) (*model.Team, error)
	// AddMember inserts a membership. Returns apperror.ErrNotFound when the
	// team does not exist and apperror.ErrConflict when the user is already
	// a member.
	AddMember(ctx context.Context, m *model.Membership) error
	SetMemberWeight(ctx context.Context, teamID, userID string, weight float64) error
	ListTeamIDs(ctx context.Context) ([]string, error)
}

type CheckInRepository interface {
	// CreateCheckIn appends a check-in. Returns apperror.ErrNotFound when
	// the team does not exist.
	CreateCheckIn(ctx context.Context, c *model.CheckIn) error
}

type SnapshotRepository interface {
	// TeamSnapshot reads a team's members and check-in stats in a single
	// read transaction.
	TeamSnapshot(ctx context.Context, teamID string) (*model.TeamSnapshot, error)
}
