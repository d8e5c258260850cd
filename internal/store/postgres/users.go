package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskhive/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UsersStore struct {
	pool *pgxpool.Pool
}

func NewUsersStore(pool *pgxpool.Pool) *UsersStore {
	return &UsersStore{pool: pool}
}

const userCols = `id, email, username, fullname, is_email_verified, created_at, updated_at`

const userSecretCols = userCols + `, password_hash, refresh_token,
	verification_token_hash, verification_token_expires_at,
	reset_token_hash, reset_token_expires_at`

func (s *UsersStore) CreateUser(ctx context.Context, email, username, passwordHash string) (domain.User, error) {
	const q = `
		INSERT INTO users (email, username, password_hash)
		VALUES ($1, $2, $3)
		RETURNING ` + userCols

	u, err := scanUser(s.pool.QueryRow(ctx, q, email, username, passwordHash))
	if err != nil {
		return domain.User{}, mapUserWriteError(err, "create user")
	}
	return u, nil
}

func (s *UsersStore) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE id = $1`

	u, err := scanUser(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

func (s *UsersStore) GetUserByEmail(ctx context.Context, email string) (domain.UserWithSecrets, error) {
	const q = `SELECT ` + userSecretCols + ` FROM users WHERE email = $1 LIMIT 1`
	return s.getUserWithSecrets(ctx, q, email, "get user by email")
}

func (s *UsersStore) GetUserWithSecretsByID(ctx context.Context, id string) (domain.UserWithSecrets, error) {
	const q = `SELECT ` + userSecretCols + ` FROM users WHERE id = $1`
	return s.getUserWithSecrets(ctx, q, id, "get user by id")
}

func (s *UsersStore) GetUserByVerificationTokenHash(ctx context.Context, tokenHash string) (domain.UserWithSecrets, error) {
	const q = `SELECT ` + userSecretCols + ` FROM users WHERE verification_token_hash = $1 LIMIT 1`
	return s.getUserWithSecrets(ctx, q, tokenHash, "get user by verification token")
}

func (s *UsersStore) GetUserByResetTokenHash(ctx context.Context, tokenHash string) (domain.UserWithSecrets, error) {
	const q = `SELECT ` + userSecretCols + ` FROM users WHERE reset_token_hash = $1 LIMIT 1`
	return s.getUserWithSecrets(ctx, q, tokenHash, "get user by reset token")
}

func (s *UsersStore) getUserWithSecrets(ctx context.Context, q string, arg any, op string) (domain.UserWithSecrets, error) {
	u, err := scanUserWithSecrets(s.pool.QueryRow(ctx, q, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserWithSecrets{}, domain.ErrNotFound
		}
		return domain.UserWithSecrets{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func (s *UsersStore) SetVerificationToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	const q = `
		UPDATE users
		SET verification_token_hash = $2, verification_token_expires_at = $3, updated_at = now()
		WHERE id = $1
	`
	return s.exec(ctx, q, "set verification token", userID, tokenHash, expiresAt)
}

func (s *UsersStore) ClearVerificationToken(ctx context.Context, userID string) error {
	const q = `
		UPDATE users
		SET verification_token_hash = NULL, verification_token_expires_at = NULL, updated_at = now()
		WHERE id = $1
	`
	return s.exec(ctx, q, "clear verification token", userID)
}

// MarkEmailVerified flips the verified flag and retires the token pair in
// one statement, so a consumed token can never be presented again.
func (s *UsersStore) MarkEmailVerified(ctx context.Context, userID string) error {
	const q = `
		UPDATE users
		SET is_email_verified = TRUE,
		    verification_token_hash = NULL,
		    verification_token_expires_at = NULL,
		    updated_at = now()
		WHERE id = $1
	`
	return s.exec(ctx, q, "mark email verified", userID)
}

func (s *UsersStore) SetResetToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	const q = `
		UPDATE users
		SET reset_token_hash = $2, reset_token_expires_at = $3, updated_at = now()
		WHERE id = $1
	`
	return s.exec(ctx, q, "set reset token", userID, tokenHash, expiresAt)
}

func (s *UsersStore) ClearResetToken(ctx context.Context, userID string) error {
	const q = `
		UPDATE users
		SET reset_token_hash = NULL, reset_token_expires_at = NULL, updated_at = now()
		WHERE id = $1
	`
	return s.exec(ctx, q, "clear reset token", userID)
}

func (s *UsersStore) SetRefreshToken(ctx context.Context, userID, token string) error {
	const q = `
		UPDATE users
		SET refresh_token = $2, updated_at = now()
		WHERE id = $1
	`
	return s.exec(ctx, q, "set refresh token", userID, token)
}

func (s *UsersStore) ClearRefreshToken(ctx context.Context, userID string) error {
	const q = `
		UPDATE users
		SET refresh_token = NULL, updated_at = now()
		WHERE id = $1
	`
	return s.exec(ctx, q, "clear refresh token", userID)
}

// UpdatePassword replaces the hash and retires the reset pair together
// with the active refresh token: a credential change ends the session.
func (s *UsersStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	const q = `
		UPDATE users
		SET password_hash = $2,
		    reset_token_hash = NULL,
		    reset_token_expires_at = NULL,
		    refresh_token = NULL,
		    updated_at = now()
		WHERE id = $1
	`
	return s.exec(ctx, q, "update password", userID, passwordHash)
}

func (s *UsersStore) UpdateUser(ctx context.Context, userID string, params domain.UpdateUserParams) (domain.User, error) {
	const q = `
		UPDATE users
		SET email = COALESCE($2, email),
		    username = COALESCE($3, username),
		    fullname = COALESCE($4, fullname),
		    password_hash = COALESCE($5, password_hash),
		    refresh_token = CASE WHEN $5::text IS NULL THEN refresh_token ELSE NULL END,
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + userCols

	u, err := scanUser(s.pool.QueryRow(ctx, q, userID, params.Email, params.Username, params.Fullname, params.PasswordHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, mapUserWriteError(err, "update user")
	}
	return u, nil
}

func (s *UsersStore) GetUserByExternalAccount(ctx context.Context, provider, providerID string) (domain.User, error) {
	const q = `
		SELECT ` + prefixedUserCols + `
		FROM users u
		JOIN external_accounts ea ON ea.user_id = u.id
		WHERE ea.provider = $1 AND ea.provider_id = $2
	`

	u, err := scanUser(s.pool.QueryRow(ctx, q, provider, providerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("get user by external account: %w", err)
	}
	return u, nil
}

const prefixedUserCols = `u.id, u.email, u.username, u.fullname, u.is_email_verified, u.created_at, u.updated_at`

// CreateUserWithExternalAccount inserts the user and its provider link in
// one transaction. Accounts created this way are email-verified up front:
// the provider already proved control of the address.
func (s *UsersStore) CreateUserWithExternalAccount(ctx context.Context, provider, providerID, email, username, passwordHash string) (domain.User, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.User{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertUser = `
		INSERT INTO users (email, username, password_hash, is_email_verified)
		VALUES ($1, $2, $3, TRUE)
		RETURNING ` + userCols

	u, err := scanUser(tx.QueryRow(ctx, insertUser, email, username, passwordHash))
	if err != nil {
		return domain.User{}, mapUserWriteError(err, "create external user")
	}

	const insertAccount = `
		INSERT INTO external_accounts (user_id, provider, provider_id, email)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := tx.Exec(ctx, insertAccount, u.ID, provider, providerID, nullIfEmpty(email)); err != nil {
		return domain.User{}, fmt.Errorf("create external account: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.User{}, fmt.Errorf("commit: %w", err)
	}
	return u, nil
}

func (s *UsersStore) LinkExternalAccount(ctx context.Context, userID, provider, providerID, email string) error {
	const q = `
		INSERT INTO external_accounts (user_id, provider, provider_id, email)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, provider_id) DO NOTHING
	`
	if _, err := s.pool.Exec(ctx, q, userID, provider, providerID, nullIfEmpty(email)); err != nil {
		return fmt.Errorf("link external account: %w", err)
	}
	return nil
}

func (s *UsersStore) exec(ctx context.Context, q, op string, args ...any) error {
	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		u        domain.User
		idUUID   pgtype.UUID
		fullname pgtype.Text
	)
	err := row.Scan(
		&idUUID,
		&u.Email,
		&u.Username,
		&fullname,
		&u.IsEmailVerified,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	u.ID = uuidOrEmpty(idUUID)
	u.Fullname = textOrEmpty(fullname)
	return u, nil
}

func scanUserWithSecrets(row pgx.Row) (domain.UserWithSecrets, error) {
	var (
		u                domain.UserWithSecrets
		idUUID           pgtype.UUID
		fullname         pgtype.Text
		refreshToken     pgtype.Text
		verifyHash       pgtype.Text
		verifyExpiresTS  pgtype.Timestamptz
		resetHash        pgtype.Text
		resetExpiresTS   pgtype.Timestamptz
	)
	err := row.Scan(
		&idUUID,
		&u.Email,
		&u.Username,
		&fullname,
		&u.IsEmailVerified,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.PasswordHash,
		&refreshToken,
		&verifyHash,
		&verifyExpiresTS,
		&resetHash,
		&resetExpiresTS,
	)
	if err != nil {
		return domain.UserWithSecrets{}, err
	}
	u.ID = uuidOrEmpty(idUUID)
	u.Fullname = textOrEmpty(fullname)
	u.RefreshToken = textOrEmpty(refreshToken)
	u.VerificationTokenHash = textOrEmpty(verifyHash)
	u.VerificationTokenExpiry = timestamptzPtr(verifyExpiresTS)
	u.ResetTokenHash = textOrEmpty(resetHash)
	u.ResetTokenExpiry = timestamptzPtr(resetExpiresTS)
	return u, nil
}

func mapUserWriteError(err error, op string) error {
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && pgerr.Code == "23505" {
		switch pgerr.ConstraintName {
		case "users_username_uq":
			return domain.ErrUsernameTaken
		case "users_email_uq":
			return domain.ErrEmailTaken
		default:
			return fmt.Errorf("unique violation (%s): %w", pgerr.ConstraintName, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
