package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vidtube/apiserver/types"
)

const userColumns = `id, username, email, full_name, avatar_url, cover_image_url, password_hash, refresh_token, created_at, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row *sql.Row) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FullName,
		&user.AvatarURL,
		&user.CoverImageURL,
		&user.PasswordHash,
		&user.RefreshToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, username))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

// GetByUsernameOrEmail resolves a login identifier against either
// unique column.
func (r *UserRepository) GetByUsernameOrEmail(ctx context.Context, identifier string) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1 OR email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, identifier))
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (username, email, full_name, avatar_url, cover_image_url, password_hash, refresh_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.FullName,
		user.AvatarURL,
		user.CoverImageURL,
		user.PasswordHash,
		user.RefreshToken,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, mapError(err)
	}
	return user, nil
}

// UpdateRefreshToken replaces the user's single refresh-token slot.
// An empty token revokes the active session.
func (r *UserRepository) UpdateRefreshToken(ctx context.Context, id int64, token string) error {
	return r.updateColumn(ctx, id, `refresh_token`, token)
}

// UpdatePasswordHash persists a new password hash for the user.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	return r.updateColumn(ctx, id, `password_hash`, hash)
}

// UpdateAvatarURL persists a new avatar URL for the user.
func (r *UserRepository) UpdateAvatarURL(ctx context.Context, id int64, url string) error {
	return r.updateColumn(ctx, id, `avatar_url`, url)
}

// UpdateCoverImageURL persists a new cover-image URL for the user.
func (r *UserRepository) UpdateCoverImageURL(ctx context.Context, id int64, url string) error {
	return r.updateColumn(ctx, id, `cover_image_url`, url)
}

// updateColumn writes one user column plus updated_at. Column names are
// fixed by the callers above, never caller input.
func (r *UserRepository) updateColumn(ctx context.Context, id int64, column, value string) error {
	query := `UPDATE users SET ` + column + ` = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, value, time.Now(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
