package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/shieldauth"
	"github.com/MrEthical07/shieldauth/middleware"
	"github.com/MrEthical07/shieldauth/subscription"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"golang.org/x/oauth2"
)

// Engine is the subset of *shieldauth.Engine served over HTTP.
type Engine interface {
	Register(ctx context.Context, in shieldauth.RegisterInput) (*shieldauth.LoginResult, error)
	Login(ctx context.Context, email, password, totpCode string, device shieldauth.DeviceInfo) (*shieldauth.LoginResult, error)
	LoginFederated(ctx context.Context, id shieldauth.FederatedIdentity, totpCode string, device shieldauth.DeviceInfo) (*shieldauth.LoginResult, error)
	Validate(ctx context.Context, token string) (*shieldauth.AuthResult, error)
	Logout(ctx context.Context, token string) error

	RequestOTP(ctx context.Context, address string, channel shieldauth.Channel) error
	VerifyOTP(ctx context.Context, address, code string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
	ChangePassword(ctx context.Context, accountID, currentSessionID, oldPassword, newPassword string) error

	EnrollTOTP(ctx context.Context, accountID string) (*shieldauth.TOTPEnrollment, error)
	ConfirmTOTP(ctx context.Context, accountID, code string) error
	VerifyTOTP(ctx context.Context, accountID, code string) error
	DisableTOTP(ctx context.Context, accountID, code string) error

	ListSessions(ctx context.Context, accountID, currentSessionID string) ([]shieldauth.SessionInfo, error)
	RevokeSession(ctx context.Context, accountID, sessionID string) error
	DeleteAccount(ctx context.Context, accountID, secret, totpCode string) error
	UpdatePhone(ctx context.Context, accountID, phone, smsCode string) error

	CreateSubscription(ctx context.Context, accountID string, plan shieldauth.Plan) (string, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) (subscription.Outcome, error)
	ExpireTrial(ctx context.Context, email string) error
	SuspendAccount(ctx context.Context, accountID string) error
	ReactivateAccount(ctx context.Context, accountID string) error

	Ping(ctx context.Context) error
}

var _ Engine = (*shieldauth.Engine)(nil)

// Config wires optional features into the router.
type Config struct {
	Cookie middleware.SessionCookie
	Logger *slog.Logger

	// Google enables /api/auth/google/*. UserInfoURL defaults to Google's
	// v2 userinfo endpoint.
	Google      *oauth2.Config
	UserInfoURL string
	// LoginRedirect is where the OAuth callback sends the browser.
	LoginRedirect string

	// CronSecret authorizes POST /api/admin/trials/expire for schedulers.
	CronSecret string

	// Metrics serves GET /metrics when set.
	Metrics http.Handler

	// AllowedOrigins enables CORS with credentials for the listed origins.
	AllowedOrigins []string

	RequestTimeout time.Duration
}

// Server holds the handlers. Build the router with NewRouter.
type Server struct {
	engine   Engine
	validate *validator.Validate
	cfg      Config
	logger   *slog.Logger
}

func NewServer(engine Engine, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = googleUserInfoURL
	}
	if cfg.LoginRedirect == "" {
		cfg.LoginRedirect = "/"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Server{
		engine:   engine,
		validate: newValidator(),
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "httpapi"),
	}
}

// Routes returns the full router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logging(s.logger))
	r.Use(chimiddleware.Recoverer)
	if len(s.cfg.AllowedOrigins) > 0 {
		r.Use(corsHandler(s.cfg.AllowedOrigins))
	}
	r.Use(Metrics())
	r.Use(clientContext)
	r.Use(chimiddleware.Timeout(s.cfg.RequestTimeout))

	r.Get("/healthz", s.Health)
	if s.cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.cfg.Metrics)
	}

	guard := middleware.Guard(s.engine, s.cfg.Cookie)

	r.Route("/api", func(r chi.Router) {
		r.Post("/webhooks/razorpay", s.RazorpayWebhook)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.Register)
			r.Post("/login", s.Login)
			r.Post("/otp/request", s.RequestOTP)
			r.Post("/otp/verify", s.VerifyOTP)
			r.Post("/password/forgot", s.ForgotPassword)
			r.Post("/password/reset", s.ResetPassword)

			if s.cfg.Google != nil {
				r.Get("/google/login", s.GoogleLogin)
				r.Get("/google/callback", s.GoogleCallback)
			}

			r.Group(func(r chi.Router) {
				r.Use(guard)
				r.Post("/logout", s.Logout)
				r.Get("/me", s.Me)
				r.Post("/password/change", s.ChangePassword)

				r.Post("/2fa/enroll", s.EnrollTOTP)
				r.Post("/2fa/confirm", s.ConfirmTOTP)
				r.Post("/2fa/verify", s.VerifyTOTP)
				r.Post("/2fa/disable", s.DisableTOTP)

				r.Get("/sessions", s.ListSessions)
				r.Delete("/sessions/{id}", s.RevokeSession)
				r.Delete("/account", s.DeleteAccount)
				r.Patch("/profile", s.UpdateProfile)
			})
		})

		r.With(guard).Post("/subscriptions", s.CreateSubscription)

		r.Route("/admin", func(r chi.Router) {
			r.With(s.cronOrAdmin(guard)).Post("/trials/expire", s.ExpireTrial)

			r.Group(func(r chi.Router) {
				r.Use(guard)
				r.Use(middleware.RequireRole(shieldauth.RoleAdmin))
				r.Post("/accounts/{id}/suspend", s.SuspendAccount)
				r.Post("/accounts/{id}/reactivate", s.ReactivateAccount)
			})
		})
	})

	return r
}

func clientContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := shieldauth.WithClientIP(r.Context(), clientIP(r))
		ctx = shieldauth.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
