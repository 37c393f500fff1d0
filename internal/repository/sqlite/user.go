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

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// CreateUser inserts a new user and fills in its ID and CreatedAt.
//
// Two concurrent registrations of the same username both reach the INSERT;
// the UNIQUE constraint on users.username lets exactly one of them through
// and the other gets apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	id := xid.New().String()
	createdAt := db.clock.Now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, is_new, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id,
		user.Username,
		user.PasswordHash,
		user.IsNew,
		createdAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("Username already exists")
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}

	user.ID = id
	user.CreatedAt = createdAt
	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, username, password_hash, is_new, created_at
		 FROM users WHERE id = ?`,
		id,
	)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetUserByUsername retrieves a user by their unique username.
// Returns apperror.ErrNotFound if no user has that username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, username, password_hash, is_new, created_at
		 FROM users WHERE username = ?`,
		username,
	)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", username)
		}
		return nil, fmt.Errorf("sqlite: getting user by username %q: %w", username, err)
	}
	return u, nil
}

// SetUserNew changes a user's is_new flag. Nothing clears the flag
// automatically.
func (db *DB) SetUserNew(ctx context.Context, id string, isNew bool) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET is_new = ? WHERE id = ?`,
		isNew, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating is_new for user %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&u.IsNew,
		&u.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}
