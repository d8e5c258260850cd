package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"taskhive/internal/auth"
	"taskhive/internal/service"
)

type RouterOpts struct {
	Logger *slog.Logger
	IsProd bool

	DBPing func(context.Context) error

	Auth     *service.AuthService
	Projects *service.ProjectService

	Codec        *auth.TokenCodec
	CookieSecure bool
	CORSOrigin   string

	GoogleClientID string
	AppleServiceID string
}

func NewRouter(opts RouterOpts) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	api := &api{
		logger:         logger,
		isProd:         opts.IsProd,
		dbPing:         opts.DBPing,
		authSvc:        opts.Auth,
		projectSvc:     opts.Projects,
		codec:          opts.Codec,
		cookieSecure:   opts.CookieSecure,
		googleClientID: opts.GoogleClientID,
		appleServiceID: opts.AppleServiceID,
		loginLimiter:   newLoginRateLimiter(),
		forgotLimiter:  newForgotRateLimiter(),
		resendLimiter:  newResendRateLimiter(),
	}

	publicMux := http.NewServeMux()
	apiMux := http.NewServeMux()

	publicMux.HandleFunc("GET /", api.handleHome)
	publicMux.HandleFunc("GET /healthz", api.handleHealthz)

	apiMux.HandleFunc("GET /api/v1/health-check", api.handleHealthCheck)

	apiMux.HandleFunc("POST /api/v1/auth/register", api.handleAuthRegister)
	apiMux.HandleFunc("POST /api/v1/auth/login", api.handleAuthLogin)
	apiMux.HandleFunc("POST /api/v1/auth/google", api.handleAuthLoginGoogle)
	apiMux.HandleFunc("POST /api/v1/auth/apple", api.handleAuthLoginApple)
	apiMux.HandleFunc("GET /api/v1/auth/verify-email/{token}", api.handleAuthVerifyEmail)
	apiMux.HandleFunc("GET /api/v1/auth/resend-verification-email", api.handleAuthResendVerification)
	apiMux.HandleFunc("POST /api/v1/auth/refresh-token", api.handleAuthRefresh)
	apiMux.HandleFunc("POST /api/v1/auth/forget-password", api.handleAuthForgotPassword)
	apiMux.HandleFunc("GET /api/v1/auth/reset-password/{token}", api.handleAuthValidateResetToken)
	apiMux.HandleFunc("POST /api/v1/auth/reset-password/{token}", api.handleAuthResetPassword)

	apiMux.HandleFunc("POST /api/v1/auth/logout", api.requireAuth(api.handleAuthLogout))
	apiMux.HandleFunc("POST /api/v1/auth/current-user", api.requireAuth(api.handleAuthCurrentUser))
	apiMux.HandleFunc("POST /api/v1/auth/change-password", api.requireAuth(api.handleAuthChangePassword))
	apiMux.HandleFunc("POST /api/v1/auth/update-user", api.requireAuth(api.handleAuthUpdateUser))

	apiMux.HandleFunc("POST /api/v1/projects", api.requireAuth(api.handleProjectsCreate))
	apiMux.HandleFunc("GET /api/v1/projects", api.requireAuth(api.handleProjectsList))
	apiMux.HandleFunc("GET /api/v1/projects/{projectId}/members", api.requireAuth(api.handleMembersList))
	apiMux.HandleFunc("POST /api/v1/projects/{projectId}/members", api.requireAuth(api.handleMembersAdd))

	apiHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, pattern := apiMux.Handler(r)
		if pattern == "" {
			handleAPINotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})

	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/api" {
			apiHandler.ServeHTTP(w, r)
			return
		}
		publicMux.ServeHTTP(w, r)
	})

	var h http.Handler = root
	h = RequestLogger(logger)(h)
	h = RequestID()(h)
	h = CORS(opts.CORSOrigin)(h)
	h = Recoverer(logger, opts.IsProd)(h)
	return h
}

func handleAPINotFound(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotFound, "not_found", "not found")
}

type api struct {
	logger *slog.Logger
	isProd bool

	dbPing func(context.Context) error

	authSvc    *service.AuthService
	projectSvc *service.ProjectService

	codec          *auth.TokenCodec
	cookieSecure   bool
	googleClientID string
	appleServiceID string

	loginLimiter  *rateLimiter
	forgotLimiter *rateLimiter
	resendLimiter *rateLimiter
}

func (a *api) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	WriteJSON(w, http.StatusOK, messageResponse{Message: "Welcome to the TaskHive API"})
}

func (a *api) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if a.dbPing != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()
		if err := a.dbPing(ctx); err != nil {
			WriteError(w, http.StatusServiceUnavailable, "db_unavailable", "database unavailable")
			return
		}
	}
	WriteJSON(w, http.StatusOK, messageResponse{Message: "Server is healthy"})
}

func (a *api) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if a.dbPing != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()
		if err := a.dbPing(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db down"))
			return
		}
	}

	_, _ = w.Write([]byte("ok"))
}
