package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"
	"github.com/sakif/teamrally/internal/apperror"
	"github.com/sakif/teamrally/internal/model"
	"github.com/sakif/teamrally/internal/repository"
)

var _ repository.TeamRepository = (*DB)(nil)

// CreateTeamWithOwner inserts a team and its creator's membership.
//
// Both rows go in one transaction: a client that disconnects mid-request
// leaves either a team with its owner or nothing at all. The transaction's
// first statement is a write, so it takes the write lock up front.
func (db *DB) CreateTeamWithOwner(ctx context.Context, team *model.Team, ownerID string) error {
	id := xid.New().String()
	now := db.clock.Now()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning team transaction: %w", err)
	}
	// Rollback after a successful Commit is a no-op.
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO teams (id, name, created_at) VALUES (?, ?, ?)`,
		id, team.Name, now,
	); err != nil {
		return fmt.Errorf("sqlite: inserting team %q: %w", team.Name, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO team_members (team_id, user_id, weight, joined_at) VALUES (?, ?, ?, ?)`,
		id, ownerID, model.DefaultMemberWeight, now,
	); err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("user", ownerID)
		}
		return fmt.Errorf("sqlite: adding owner %s to team %s: %w", ownerID, id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing team %q: %w", team.Name, err)
	}

	team.ID = id
	team.CreatedAt = now
	return nil
}

// GetTeamByID retrieves a team by ID.
// Returns apperror.ErrNotFound if no team exists with that ID.
func (db *DB) GetTeamByID(ctx context.Context, id string) (*model.Team, error) {
	var t model.Team
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM teams WHERE id = ?`,
		id,
	).Scan(&t.ID, &t.Name, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFoundMessage("Team not found")
		}
		return nil, fmt.Errorf("sqlite: getting team %s: %w", id, err)
	}
	return &t, nil
}

// AddMember inserts a membership in a single statement.
//
// The store decides both failure cases:
//   - FOREIGN KEY on team_id → the team does not exist (ErrNotFound)
//   - UNIQUE (team_id, user_id) → already a member (ErrConflict)
//
// so two concurrent joins by the same user produce exactly one row.
func (db *DB) AddMember(ctx context.Context, m *model.Membership) error {
	joinedAt := db.clock.Now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO team_members (team_id, user_id, weight, joined_at) VALUES (?, ?, ?, ?)`,
		m.TeamID, m.UserID, m.Weight, joinedAt,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return apperror.Conflict("User is already a team member")
		case isForeignKeyViolation(err):
			return apperror.NotFoundMessage("Team not found")
		}
		return fmt.Errorf("sqlite: adding user %s to team %s: %w", m.UserID, m.TeamID, err)
	}

	m.JoinedAt = joinedAt
	return nil
}

// SetMemberWeight changes a membership's weight. The value is stored as-is;
// zero and negative weights are accepted.
func (db *DB) SetMemberWeight(ctx context.Context, teamID, userID string, weight float64) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE team_members SET weight = ? WHERE team_id = ? AND user_id = ?`,
		weight, teamID, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating weight of %s in team %s: %w", userID, teamID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("membership", teamID+"/"+userID)
	}
	return nil
}

// ListTeamIDs returns every team ID in ascending order.
func (db *DB) ListTeamIDs(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM teams ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing teams: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning team id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating teams: %w", err)
	}
	return ids, nil
}
