package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"taskhive/internal/auth"
	"taskhive/internal/domain"
)

type UsersStore interface {
	CreateUser(ctx context.Context, email, username, passwordHash string) (domain.User, error)
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.UserWithSecrets, error)
	GetUserWithSecretsByID(ctx context.Context, id string) (domain.UserWithSecrets, error)
	GetUserByVerificationTokenHash(ctx context.Context, tokenHash string) (domain.UserWithSecrets, error)
	GetUserByResetTokenHash(ctx context.Context, tokenHash string) (domain.UserWithSecrets, error)
	SetVerificationToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	ClearVerificationToken(ctx context.Context, userID string) error
	MarkEmailVerified(ctx context.Context, userID string) error
	SetResetToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	ClearResetToken(ctx context.Context, userID string) error
	SetRefreshToken(ctx context.Context, userID, token string) error
	ClearRefreshToken(ctx context.Context, userID string) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateUser(ctx context.Context, userID string, params domain.UpdateUserParams) (domain.User, error)
	GetUserByExternalAccount(ctx context.Context, provider, providerID string) (domain.User, error)
	CreateUserWithExternalAccount(ctx context.Context, provider, providerID, email, username, passwordHash string) (domain.User, error)
	LinkExternalAccount(ctx context.Context, userID, provider, providerID, email string) error
}

type Mailer interface {
	SendVerificationEmail(ctx context.Context, toEmail, username, rawToken string) error
	SendPasswordResetEmail(ctx context.Context, toEmail, username, rawToken string) error
}

// AuthService owns the credential and token lifecycle: registration, login,
// email verification, password reset, refresh and profile changes. Mail
// delivery is a side channel; a failed send never rolls back a state change.
type AuthService struct {
	Users  UsersStore
	Codec  *auth.TokenCodec
	Mailer Mailer
	Logger *slog.Logger
	Now    func() time.Time
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *AuthService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *AuthService) Register(ctx context.Context, emailAddr, username, password string) (domain.User, error) {
	emailAddr = normalizeEmail(emailAddr)
	username = normalizeUsername(username)

	fields := map[string]string{}
	if emailAddr == "" {
		fields["email"] = "required"
	}
	if username == "" {
		fields["username"] = "required"
	}
	if password == "" {
		fields["password"] = "required"
	}
	if len(fields) > 0 {
		return domain.User{}, domain.NewValidationError(fields)
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}

	u, err := s.Users.CreateUser(ctx, emailAddr, username, passwordHash)
	if err != nil {
		return domain.User{}, err
	}

	if err := s.issueVerification(ctx, u); err != nil {
		// Registration already succeeded; the user can request a resend.
		s.logger().Error("issue verification failed", "user_id", u.ID, "err", err)
	}

	return u, nil
}

// issueVerification stores a fresh verification pair and mails the raw
// secret. Only the store write can fail the operation; send failures are
// logged and swallowed.
func (s *AuthService) issueVerification(ctx context.Context, u domain.User) error {
	tok, err := auth.NewOpaqueToken(s.now())
	if err != nil {
		return err
	}
	if err := s.Users.SetVerificationToken(ctx, u.ID, tok.Hash, tok.ExpiresAt); err != nil {
		return err
	}

	if s.Mailer == nil {
		s.logger().Warn("mailer not configured, skipping verification email", "user_id", u.ID)
		return nil
	}
	if err := s.Mailer.SendVerificationEmail(ctx, u.Email, u.Username, tok.Raw); err != nil {
		s.logger().Error("send verification email failed", "user_id", u.ID, "err", err)
	}
	return nil
}

func (s *AuthService) Login(ctx context.Context, emailAddr, password string) (domain.User, TokenPair, error) {
	emailAddr = normalizeEmail(emailAddr)

	u, err := s.Users.GetUserByEmail(ctx, emailAddr)
	if err != nil {
		return domain.User{}, TokenPair{}, err
	}

	ok, err := auth.VerifyPassword(u.PasswordHash, password)
	if err != nil {
		return domain.User{}, TokenPair{}, err
	}
	if !ok {
		return domain.User{}, TokenPair{}, domain.ErrInvalidCredentials
	}

	pair, err := s.issueSession(ctx, u.User)
	if err != nil {
		return domain.User{}, TokenPair{}, err
	}
	return u.User, pair, nil
}

// issueSession mints a fresh token pair and persists the refresh token,
// displacing whatever session held it before.
func (s *AuthService) issueSession(ctx context.Context, u domain.User) (TokenPair, error) {
	access, err := s.Codec.IssueAccessToken(u)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.Codec.IssueRefreshToken(u.ID)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.Users.SetRefreshToken(ctx, u.ID, refresh); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// consumeOpaqueToken is the single token-presentation state machine shared
// by email verification and password reset. A presented token is spent on
// every path: valid tokens are cleared by the caller's follow-up write,
// expired ones are cleared here before the error is returned, so a second
// presentation always reports invalid rather than expired.
func (s *AuthService) consumeOpaqueToken(
	ctx context.Context,
	raw string,
	lookup func(context.Context, string) (domain.UserWithSecrets, error),
	expiry func(domain.UserWithSecrets) *time.Time,
	clear func(context.Context, string) error,
) (domain.UserWithSecrets, error) {
	if strings.TrimSpace(raw) == "" {
		return domain.UserWithSecrets{}, domain.ErrTokenInvalid
	}

	u, err := lookup(ctx, auth.HashOpaqueToken(raw))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.UserWithSecrets{}, domain.ErrTokenInvalid
		}
		return domain.UserWithSecrets{}, err
	}

	exp := expiry(u)
	if exp == nil || !exp.After(s.now()) {
		if err := clear(ctx, u.ID); err != nil {
			return domain.UserWithSecrets{}, err
		}
		return domain.UserWithSecrets{}, domain.ErrTokenExpired
	}
	return u, nil
}

func (s *AuthService) VerifyEmail(ctx context.Context, rawToken string) error {
	u, err := s.consumeOpaqueToken(ctx, rawToken,
		s.Users.GetUserByVerificationTokenHash,
		func(u domain.UserWithSecrets) *time.Time { return u.VerificationTokenExpiry },
		s.Users.ClearVerificationToken,
	)
	if err != nil {
		return err
	}
	return s.Users.MarkEmailVerified(ctx, u.ID)
}

func (s *AuthService) ResendVerification(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)

	u, err := s.Users.GetUserByEmail(ctx, emailAddr)
	if err != nil {
		return err
	}
	if u.IsEmailVerified {
		return nil
	}
	return s.issueVerification(ctx, u.User)
}

func (s *AuthService) ForgotPassword(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)

	u, err := s.Users.GetUserByEmail(ctx, emailAddr)
	if err != nil {
		return err
	}

	// A new request always supersedes any pending reset pair.
	tok, err := auth.NewOpaqueToken(s.now())
	if err != nil {
		return err
	}
	if err := s.Users.SetResetToken(ctx, u.ID, tok.Hash, tok.ExpiresAt); err != nil {
		return err
	}

	if s.Mailer == nil {
		s.logger().Warn("mailer not configured, skipping reset email", "user_id", u.ID)
		return nil
	}
	if err := s.Mailer.SendPasswordResetEmail(ctx, u.Email, u.Username, tok.Raw); err != nil {
		s.logger().Error("send reset email failed", "user_id", u.ID, "err", err)
	}
	return nil
}

// ValidateResetToken reports whether a reset link is still usable without
// consuming it, so the GET form behind the emailed link can render before
// the POST spends the token.
func (s *AuthService) ValidateResetToken(ctx context.Context, rawToken string) error {
	if strings.TrimSpace(rawToken) == "" {
		return domain.ErrTokenInvalid
	}

	u, err := s.Users.GetUserByResetTokenHash(ctx, auth.HashOpaqueToken(rawToken))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrTokenInvalid
		}
		return err
	}
	if u.ResetTokenExpiry == nil || !u.ResetTokenExpiry.After(s.now()) {
		return domain.ErrTokenExpired
	}
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if newPassword == "" {
		return domain.NewValidationError(map[string]string{"password": "required"})
	}

	u, err := s.consumeOpaqueToken(ctx, rawToken,
		s.Users.GetUserByResetTokenHash,
		func(u domain.UserWithSecrets) *time.Time { return u.ResetTokenExpiry },
		s.Users.ClearResetToken,
	)
	if err != nil {
		return err
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.Users.UpdatePassword(ctx, u.ID, hash)
}

func (s *AuthService) RefreshAccessToken(ctx context.Context, presented string) (string, error) {
	if strings.TrimSpace(presented) == "" {
		return "", domain.NewValidationError(map[string]string{"refresh_token": "required"})
	}

	claims, err := s.Codec.VerifyRefreshToken(presented)
	if err != nil {
		return "", err
	}

	u, err := s.Users.GetUserWithSecretsByID(ctx, claims.UserID)
	if err != nil {
		return "", err
	}
	// Only the most recently issued refresh token is honored; anything
	// older belongs to a session displaced by a newer login or logout.
	if u.RefreshToken == "" || u.RefreshToken != presented {
		return "", domain.ErrUnauthorized
	}

	return s.Codec.IssueAccessToken(u.User)
}

func (s *AuthService) Logout(ctx context.Context, userID string) error {
	return s.Users.ClearRefreshToken(ctx, userID)
}

func (s *AuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return domain.NewValidationError(map[string]string{"old_password": "required", "new_password": "required"})
	}

	u, err := s.Users.GetUserWithSecretsByID(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := auth.VerifyPassword(u.PasswordHash, oldPassword)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInvalidCredentials
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.Users.UpdatePassword(ctx, userID, hash)
}

type UpdateProfileParams struct {
	Username *string
	Email    *string
	Fullname *string
	Password *string
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID string, params UpdateProfileParams) (domain.User, error) {
	if params.Username == nil && params.Email == nil && params.Fullname == nil && params.Password == nil {
		return domain.User{}, domain.NewValidationError(map[string]string{"body": "at least one field is required"})
	}

	update := domain.UpdateUserParams{Fullname: params.Fullname}
	if params.Username != nil {
		username := normalizeUsername(*params.Username)
		if username == "" {
			return domain.User{}, domain.NewValidationError(map[string]string{"username": "must not be empty"})
		}
		update.Username = &username
	}
	if params.Email != nil {
		emailAddr := normalizeEmail(*params.Email)
		if emailAddr == "" {
			return domain.User{}, domain.NewValidationError(map[string]string{"email": "must not be empty"})
		}
		update.Email = &emailAddr
	}
	if params.Password != nil {
		if *params.Password == "" {
			return domain.User{}, domain.NewValidationError(map[string]string{"password": "must not be empty"})
		}
		hash, err := auth.HashPassword(*params.Password)
		if err != nil {
			return domain.User{}, err
		}
		update.PasswordHash = &hash
	}

	return s.Users.UpdateUser(ctx, userID, update)
}

func (s *AuthService) GetUser(ctx context.Context, userID string) (domain.User, error) {
	return s.Users.GetUserByID(ctx, userID)
}

// LoginExternal signs in a Google/Apple identity, creating or linking the
// account on first contact. Accounts minted here carry an unguessable
// password hash; password login stays possible only after a reset.
func (s *AuthService) LoginExternal(ctx context.Context, identity auth.ExternalIdentity) (domain.User, TokenPair, error) {
	u, err := s.Users.GetUserByExternalAccount(ctx, identity.Provider, identity.ProviderID)
	if err == nil {
		pair, err := s.issueSession(ctx, u)
		if err != nil {
			return domain.User{}, TokenPair{}, err
		}
		return u, pair, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, TokenPair{}, err
	}

	emailAddr := normalizeEmail(identity.Email)
	if emailAddr == "" {
		return domain.User{}, TokenPair{}, domain.NewValidationError(map[string]string{"email": "provider did not share an email address"})
	}

	existing, err := s.Users.GetUserByEmail(ctx, emailAddr)
	switch {
	case err == nil:
		if err := s.Users.LinkExternalAccount(ctx, existing.ID, identity.Provider, identity.ProviderID, emailAddr); err != nil {
			return domain.User{}, TokenPair{}, err
		}
		u = existing.User
	case errors.Is(err, domain.ErrNotFound):
		u, err = s.createExternalUser(ctx, identity, emailAddr)
		if err != nil {
			return domain.User{}, TokenPair{}, err
		}
	default:
		return domain.User{}, TokenPair{}, err
	}

	pair, err := s.issueSession(ctx, u)
	if err != nil {
		return domain.User{}, TokenPair{}, err
	}
	return u, pair, nil
}

func (s *AuthService) createExternalUser(ctx context.Context, identity auth.ExternalIdentity, emailAddr string) (domain.User, error) {
	passwordHash, err := auth.HashPassword(randomSecret())
	if err != nil {
		return domain.User{}, err
	}

	username := usernameFromEmail(emailAddr)
	u, err := s.Users.CreateUserWithExternalAccount(ctx, identity.Provider, identity.ProviderID, emailAddr, username, passwordHash)
	if errors.Is(err, domain.ErrUsernameTaken) {
		u, err = s.Users.CreateUserWithExternalAccount(ctx, identity.Provider, identity.ProviderID, emailAddr, username+"_"+randomSuffix(), passwordHash)
	}
	return u, err
}

func normalizeEmail(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}

func normalizeUsername(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}

func usernameFromEmail(emailAddr string) string {
	local, _, _ := strings.Cut(emailAddr, "@")
	var b strings.Builder
	for _, r := range local {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == '.', r == '-':
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "user_" + randomSuffix()
	}
	return b.String()
}

func randomSecret() string {
	var buf [32]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}

func randomSuffix() string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}
