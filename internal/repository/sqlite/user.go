package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"
	"github.com/sakif/exam-archive/internal/apperror"
	"github.com/sakif/exam-archive/internal/model"
	"github.com/sakif/exam-archive/internal/repository"
)

var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, google_id, email, name, avatar_url, created_at, updated_at`

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.GoogleID, &u.Email, &u.Name, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertByEmail creates the user on first sign-in. Later sign-ins keep the
// id and created_at and refresh what Google reports (sub, name, avatar).
// On return user holds the stored row.
func (db *DB) UpsertByEmail(ctx context.Context, user *model.User) error {
	now := db.now()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO users (id, google_id, email, name, avatar_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			google_id  = excluded.google_id,
			name       = excluded.name,
			avatar_url = excluded.avatar_url,
			updated_at = excluded.updated_at`,
		xid.New().String(), user.GoogleID, user.Email, user.Name, user.AvatarURL, now, now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting user %s: %w", user.Email, err)
	}

	stored, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, user.Email))
	if err != nil {
		return fmt.Errorf("sqlite: reading back user %s: %w", user.Email, err)
	}
	*user = *stored
	return nil
}

// GetUserByID returns apperror.ErrNotFound for an unknown id.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}
