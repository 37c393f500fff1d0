package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/teamrally/internal/apperror"
	"github.com/sakif/teamrally/internal/model"
	"github.com/sakif/teamrally/internal/repository"
)

var (
	_ repository.CheckInRepository  = (*DB)(nil)
	_ repository.SnapshotRepository = (*DB)(nil)
)

// CreateCheckIn appends a check-in stamped with the store's clock.
// Returns apperror.ErrNotFound when the team does not exist.
func (db *DB) CreateCheckIn(ctx context.Context, c *model.CheckIn) error {
	id := xid.New().String()
	at := db.clock.Now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO check_ins (id, team_id, user_id, post_url, checked_in_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, c.TeamID, nullString(c.UserID), c.PostURL, at.UnixNano(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFoundMessage("Team not found")
		}
		return fmt.Errorf("sqlite: recording check-in for team %s: %w", c.TeamID, err)
	}

	c.ID = id
	c.CheckedInAt = at
	return nil
}

// TeamSnapshot reads a team, its members and its check-in stats inside one
// read transaction. In WAL mode the transaction sees a single snapshot, so
// a concurrent join or check-in is either fully visible or not at all.
func (db *DB) TeamSnapshot(ctx context.Context, teamID string) (*model.TeamSnapshot, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning snapshot of team %s: %w", teamID, err)
	}
	defer tx.Rollback()

	snap := &model.TeamSnapshot{TeamID: teamID}

	err = tx.QueryRowContext(ctx, `SELECT name FROM teams WHERE id = ?`, teamID).Scan(&snap.TeamName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFoundMessage("Team not found")
		}
		return nil, fmt.Errorf("sqlite: reading team %s: %w", teamID, err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT m.user_id, m.weight, u.is_new
		 FROM team_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.team_id = ?
		 ORDER BY m.joined_at, m.user_id`,
		teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading members of team %s: %w", teamID, err)
	}
	for rows.Next() {
		var m model.MemberSnapshot
		if err := rows.Scan(&m.UserID, &m.Weight, &m.IsNew); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning member row: %w", err)
		}
		snap.Members = append(snap.Members, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating members of team %s: %w", teamID, err)
	}

	var first, last sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(checked_in_at), MAX(checked_in_at)
		 FROM check_ins WHERE team_id = ?`,
		teamID,
	).Scan(&snap.CheckIns.Count, &first, &last)
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading check-ins of team %s: %w", teamID, err)
	}
	if first.Valid {
		snap.CheckIns.First = time.Unix(0, first.Int64).UTC()
	}
	if last.Valid {
		snap.CheckIns.Last = time.Unix(0, last.Int64).UTC()
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: ending snapshot of team %s: %w", teamID, err)
	}
	return snap, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
