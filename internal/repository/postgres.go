package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallbiznis/echowrite/internal/domain"
)

// Compile-time interface assertions.
var (
	_ UserRepository = (*PostgresUserRepo)(nil)
	_ KeyRepository  = (*PostgresKeyRepo)(nil)
)

const (
	uniqueViolation = "23505"

	emailConstraint    = "users_email_key"
	usernameConstraint = "users_username_lower_key"
)

const userColumns = `id, email, username, name, COALESCE(password_hash, ''), verified, avatar_url, bio, followers_count, following_count, created_at, updated_at`

// PostgresUserRepo implements UserRepository.
type PostgresUserRepo struct {
	db *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{db: pool}
}

const getUserByEmailSQL = `SELECT ` + userColumns + ` FROM users WHERE email = $1`

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, getUserByEmailSQL, email))
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

const getUserByIDSQL = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

func (r *PostgresUserRepo) GetByID(ctx context.Context, id int64) (domain.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, getUserByIDSQL, id))
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

const usernameExistsSQL = `SELECT EXISTS (SELECT 1 FROM users WHERE lower(username) = lower($1) AND id <> $2)`

func (r *PostgresUserRepo) UsernameExists(ctx context.Context, username string, excludeID int64) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, usernameExistsSQL, username, excludeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("username exists: %w", err)
	}
	return exists, nil
}

const insertUserSQL = `INSERT INTO users (id, email, username, name, password_hash, verified, avatar_url, bio, followers_count, following_count)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10)
RETURNING ` + userColumns

func (r *PostgresUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	row := r.db.QueryRow(ctx, insertUserSQL,
		user.ID,
		user.Email,
		user.Username,
		user.Name,
		user.PasswordHash,
		user.Verified,
		user.AvatarURL,
		user.Bio,
		user.FollowersCount,
		user.FollowingCount,
	)
	created, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

const updateProfileSQL = `UPDATE users SET
	name = COALESCE($2, name),
	username = COALESCE($3, username),
	avatar_url = COALESCE($4, avatar_url),
	bio = COALESCE($5, bio),
	updated_at = NOW()
WHERE id = $1
RETURNING ` + userColumns

func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, id int64, update domain.ProfileUpdate) (domain.User, error) {
	row := r.db.QueryRow(ctx, updateProfileSQL, id, update.Name, update.Username, update.AvatarURL, update.Bio)
	user, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("update profile: %w", err)
	}
	return user, nil
}

const updatePasswordSQL = `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`

func (r *PostgresUserRepo) UpdatePassword(ctx context.Context, id int64, hash string) error {
	tag, err := r.db.Exec(ctx, updatePasswordSQL, id, hash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update password: %w", domain.ErrUserNotFound)
	}
	return nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Username,
		&u.Name,
		&u.PasswordHash,
		&u.Verified,
		&u.AvatarURL,
		&u.Bio,
		&u.FollowersCount,
		&u.FollowingCount,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, mapError(err)
	}
	return u, nil
}

// mapError translates driver errors into domain sentinels.
func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrUserNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case emailConstraint:
			return domain.ErrEmailTaken
		case usernameConstraint:
			return domain.ErrUsernameTaken
		}
	}
	return err
}

// PostgresKeyRepo implements KeyRepository.
type PostgresKeyRepo struct {
	db *pgxpool.Pool
}

func NewPostgresKeyRepo(pool *pgxpool.Pool) *PostgresKeyRepo {
	return &PostgresKeyRepo{db: pool}
}

const getActiveKeySQL = `SELECT id, kid, secret, algorithm, is_active, created_at FROM signing_keys WHERE is_active ORDER BY created_at DESC LIMIT 1`

func (r *PostgresKeyRepo) GetActiveKey(ctx context.Context) (domain.SigningKey, error) {
	var k domain.SigningKey
	err := r.db.QueryRow(ctx, getActiveKeySQL).Scan(&k.ID, &k.KID, &k.Secret, &k.Algorithm, &k.IsActive, &k.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SigningKey{}, domain.ErrKeyNotFound
	}
	if err != nil {
		return domain.SigningKey{}, fmt.Errorf("get active key: %w", err)
	}
	return k, nil
}

// Only one key may be active; a concurrent insert loses and reads the winner.
const insertKeySQL = `INSERT INTO signing_keys (kid, secret, algorithm, is_active)
VALUES ($1, $2, $3, $4)
ON CONFLICT DO NOTHING
RETURNING id, kid, secret, algorithm, is_active, created_at`

func (r *PostgresKeyRepo) CreateKey(ctx context.Context, key domain.SigningKey) (domain.SigningKey, error) {
	var k domain.SigningKey
	err := r.db.QueryRow(ctx, insertKeySQL, key.KID, key.Secret, key.Algorithm, key.IsActive).
		Scan(&k.ID, &k.KID, &k.Secret, &k.Algorithm, &k.IsActive, &k.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.GetActiveKey(ctx)
	}
	if err != nil {
		return domain.SigningKey{}, fmt.Errorf("create key: %w", err)
	}
	return k, nil
}
