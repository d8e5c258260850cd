package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"taskhive/internal/auth"
	"taskhive/internal/domain"
	"taskhive/internal/service"
)

type userResponse struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	Username        string    `json:"username"`
	Fullname        string    `json:"fullname,omitempty"`
	IsEmailVerified bool      `json:"isEmailVerified"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:              u.ID,
		Email:           u.Email,
		Username:        u.Username,
		Fullname:        u.Fullname,
		IsEmailVerified: u.IsEmailVerified,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

type sessionResponse struct {
	User         userResponse `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *api) handleAuthRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	fields := map[string]string{}
	req.Username = normalizeUsername(req.Username)
	req.Email = normalizeEmail(req.Email)
	if !validEmail(req.Email) {
		fields["email"] = "must be a valid email"
	}
	if req.Username == "" || !validUsername(req.Username) {
		fields["username"] = "must be 3-24 chars [A-Za-z0-9_]"
	}
	if len(req.Password) < 8 {
		fields["password"] = "must be at least 8 characters"
	}
	if len(fields) > 0 {
		WriteDomainError(w, domain.NewValidationError(fields))
		return
	}

	u, err := a.authSvc.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, toUserResponse(u))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *api) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	req.Email = normalizeEmail(req.Email)
	if req.Email == "" || req.Password == "" {
		WriteDomainError(w, domain.NewValidationError(map[string]string{"email": "required", "password": "required"}))
		return
	}

	now := time.Now()
	ip := clientIP(r)
	if !a.loginLimiter.Allow("ip:"+ip, now) || !a.loginLimiter.Allow("email:"+req.Email, now) {
		WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
		return
	}

	u, pair, err := a.authSvc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	a.setSessionCookies(w, pair)
	WriteJSON(w, http.StatusOK, sessionResponse{
		User:         toUserResponse(u),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

type idTokenRequest struct {
	IDToken string `json:"idToken"`
}

func (a *api) handleAuthLoginGoogle(w http.ResponseWriter, r *http.Request) {
	a.handleExternalLogin(w, r, func(tokenString string) (*auth.ExternalIdentity, error) {
		return auth.VerifyGoogleIDToken(r.Context(), tokenString, a.googleClientID)
	})
}

func (a *api) handleAuthLoginApple(w http.ResponseWriter, r *http.Request) {
	a.handleExternalLogin(w, r, func(tokenString string) (*auth.ExternalIdentity, error) {
		return auth.VerifyAppleIDToken(r.Context(), tokenString, a.appleServiceID)
	})
}

func (a *api) handleExternalLogin(w http.ResponseWriter, r *http.Request, verify func(string) (*auth.ExternalIdentity, error)) {
	var req idTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}
	if strings.TrimSpace(req.IDToken) == "" {
		WriteDomainError(w, domain.NewValidationError(map[string]string{"idToken": "required"}))
		return
	}

	identity, err := verify(req.IDToken)
	if err != nil {
		a.logger.Info("id token rejected", "err", err)
		WriteDomainError(w, domain.ErrInvalidCredentials)
		return
	}

	u, pair, err := a.authSvc.LoginExternal(r.Context(), *identity)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	a.setSessionCookies(w, pair)
	WriteJSON(w, http.StatusOK, sessionResponse{
		User:         toUserResponse(u),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (a *api) handleAuthVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if err := a.authSvc.VerifyEmail(r.Context(), r.PathValue("token")); err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, messageResponse{Message: "Email verified successfully"})
}

func (a *api) handleAuthResendVerification(w http.ResponseWriter, r *http.Request) {
	emailAddr := normalizeEmail(r.URL.Query().Get("email"))
	if !validEmail(emailAddr) {
		WriteDomainError(w, domain.NewValidationError(map[string]string{"email": "must be a valid email"}))
		return
	}

	now := time.Now()
	if !a.resendLimiter.Allow("email:"+emailAddr, now) {
		WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
		return
	}

	if err := a.authSvc.ResendVerification(r.Context(), emailAddr); err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, messageResponse{Message: "Verification email sent"})
}

func (a *api) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	// The stored refresh token is the session; a failed clear means the
	// client is not actually logged out.
	if err := a.authSvc.Logout(r.Context(), u.ID); err != nil {
		WriteDomainError(w, err)
		return
	}
	auth.ClearTokenCookie(w, auth.AccessTokenCookieName, a.cookieSecure)
	auth.ClearTokenCookie(w, auth.RefreshTokenCookieName, a.cookieSecure)
	WriteJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

func (a *api) handleAuthCurrentUser(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}
	WriteJSON(w, http.StatusOK, toUserResponse(u))
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (a *api) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	presented := ""
	if c, err := r.Cookie(auth.RefreshTokenCookieName); err == nil {
		presented = c.Value
	}
	if presented == "" {
		var req refreshRequest
		if _, err := decodeJSONAllowEmpty(w, r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
			return
		}
		presented = strings.TrimSpace(req.RefreshToken)
	}

	accessToken, err := a.authSvc.RefreshAccessToken(r.Context(), presented)
	if err != nil {
		// A refresh token that fails verification means the session is
		// gone, not that the request was malformed.
		if errors.Is(err, domain.ErrTokenInvalid) || errors.Is(err, domain.ErrTokenExpired) {
			WriteDomainError(w, domain.ErrUnauthorized)
			return
		}
		WriteDomainError(w, err)
		return
	}

	auth.SetTokenCookie(w, auth.AccessTokenCookieName, accessToken, a.codec.AccessTTL, a.cookieSecure)
	WriteJSON(w, http.StatusOK, struct {
		AccessToken string `json:"accessToken"`
	}{AccessToken: accessToken})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (a *api) handleAuthForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	emailAddr := normalizeEmail(req.Email)
	if !validEmail(emailAddr) {
		WriteDomainError(w, domain.NewValidationError(map[string]string{"email": "must be a valid email"}))
		return
	}

	now := time.Now()
	ip := clientIP(r)
	if !a.forgotLimiter.Allow("ip:"+ip, now) || !a.forgotLimiter.Allow("email:"+emailAddr, now) {
		WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
		return
	}

	if err := a.authSvc.ForgotPassword(r.Context(), emailAddr); err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, messageResponse{Message: "Password reset email sent"})
}

func (a *api) handleAuthValidateResetToken(w http.ResponseWriter, r *http.Request) {
	if err := a.authSvc.ValidateResetToken(r.Context(), r.PathValue("token")); err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, messageResponse{Message: "Token is valid"})
}

type resetPasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

func (a *api) handleAuthResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}
	if len(req.NewPassword) < 8 {
		WriteDomainError(w, domain.NewValidationError(map[string]string{"newPassword": "must be at least 8 characters"}))
		return
	}

	if err := a.authSvc.ResetPassword(r.Context(), r.PathValue("token"), req.NewPassword); err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, messageResponse{Message: "Password reset successfully"})
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (a *api) handleAuthChangePassword(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}
	if req.OldPassword == "" {
		WriteDomainError(w, domain.NewValidationError(map[string]string{"oldPassword": "required"}))
		return
	}
	if len(req.NewPassword) < 8 {
		WriteDomainError(w, domain.NewValidationError(map[string]string{"newPassword": "must be at least 8 characters"}))
		return
	}

	if err := a.authSvc.ChangePassword(r.Context(), u.ID, req.OldPassword, req.NewPassword); err != nil {
		WriteDomainError(w, err)
		return
	}

	// The stored refresh token is gone; make the browser forget its copy too.
	auth.ClearTokenCookie(w, auth.RefreshTokenCookieName, a.cookieSecure)
	WriteJSON(w, http.StatusOK, messageResponse{Message: "Password changed successfully"})
}

type updateUserRequest struct {
	Email    *string `json:"email"`
	Username *string `json:"username"`
	Fullname *string `json:"fullname"`
	Password *string `json:"password"`
}

func (a *api) handleAuthUpdateUser(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	fields := map[string]string{}
	if req.Email != nil && !validEmail(normalizeEmail(*req.Email)) {
		fields["email"] = "must be a valid email"
	}
	if req.Username != nil && !validUsername(normalizeUsername(*req.Username)) {
		fields["username"] = "must be 3-24 chars [A-Za-z0-9_]"
	}
	if req.Password != nil && len(*req.Password) < 8 {
		fields["password"] = "must be at least 8 characters"
	}
	if len(fields) > 0 {
		WriteDomainError(w, domain.NewValidationError(fields))
		return
	}

	updated, err := a.authSvc.UpdateProfile(r.Context(), u.ID, service.UpdateProfileParams{
		Email:    req.Email,
		Username: req.Username,
		Fullname: req.Fullname,
		Password: req.Password,
	})
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	if req.Password != nil {
		auth.ClearTokenCookie(w, auth.RefreshTokenCookieName, a.cookieSecure)
	}
	WriteJSON(w, http.StatusOK, toUserResponse(updated))
}

func (a *api) setSessionCookies(w http.ResponseWriter, pair service.TokenPair) {
	auth.SetTokenCookie(w, auth.AccessTokenCookieName, pair.AccessToken, a.codec.AccessTTL, a.cookieSecure)
	auth.SetTokenCookie(w, auth.RefreshTokenCookieName, pair.RefreshToken, a.codec.RefreshTTL, a.cookieSecure)
}
