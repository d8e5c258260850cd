package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"taskhive/internal/auth"
	"taskhive/internal/domain"
)

type authCtxKey int

const authUserKey authCtxKey = iota

func (a *api) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := accessTokenFromRequest(r)
		if token == "" {
			WriteError(w, http.StatusUnauthorized, "unauthorized", "Access token is missing")
			return
		}

		claims, err := a.codec.VerifyAccessToken(token)
		if err != nil {
			if errors.Is(err, domain.ErrTokenExpired) {
				WriteError(w, http.StatusUnauthorized, "token_expired", "Access token expired")
				return
			}
			WriteError(w, http.StatusUnauthorized, "unauthorized", "Invalid access token")
			return
		}

		// The claims may outlive the account; look the user up fresh.
		u, err := a.authSvc.GetUser(r.Context(), claims.UserID)
		if err != nil {
			WriteDomainError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), authUserKey, u)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// accessTokenFromRequest prefers the Authorization header so API clients
// win over a stale browser cookie.
func accessTokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	if c, err := r.Cookie(auth.AccessTokenCookieName); err == nil {
		return c.Value
	}
	return ""
}

func CurrentUser(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(authUserKey).(domain.User)
	return u, ok
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
