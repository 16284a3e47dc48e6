package httpapi

import (
	"net/http"
	"time"

	"github.com/MrEthical07/shieldauth"
	"github.com/MrEthical07/shieldauth/internal/response"
	"github.com/MrEthical07/shieldauth/middleware"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=100"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Phone    string `json:"phone,omitempty" validate:"omitempty,len=10,numeric"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	TOTPCode string `json:"totp_code,omitempty" validate:"omitempty,numeric"`
}

type accountResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Phone       string `json:"phone,omitempty"`
	Role        string `json:"role"`
	Status      string `json:"status"`
	TOTPEnabled bool   `json:"totp_enabled"`
	Plan        string `json:"plan,omitempty"`
}

type loginResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	SessionID string           `json:"session_id"`
	Account   *accountResponse `json:"account,omitempty"`
}

func toAccountResponse(acc *shieldauth.Account) *accountResponse {
	if acc == nil {
		return nil
	}
	return &accountResponse{
		ID:          acc.ID,
		Email:       acc.Email,
		Name:        acc.Name,
		Phone:       acc.Phone,
		Role:        string(acc.Role),
		Status:      string(acc.Status),
		TOTPEnabled: acc.TOTPEnabled,
		Plan:        string(acc.Subscription.Plan),
	}
}

// startSession sets the cookie and writes the login body.
func (s *Server) startSession(w http.ResponseWriter, status int, res *shieldauth.LoginResult) {
	s.cfg.Cookie.Set(w, res.Token)
	response.JSON(w, status, loginResponse{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		SessionID: res.SessionID,
		Account:   toAccountResponse(res.Account),
	})
}

// Register handles POST /api/auth/register
func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.engine.Register(r.Context(), shieldauth.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Phone:    req.Phone,
	})
	if err != nil {
		response.Error(w, err)
		return
	}
	s.startSession(w, http.StatusCreated, res)
}

// Login handles POST /api/auth/login
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.engine.Login(r.Context(), req.Email, req.Password, req.TOTPCode, device(r))
	if err != nil {
		response.Error(w, err)
		return
	}
	s.startSession(w, http.StatusOK, res)
}

// Logout handles POST /api/auth/logout. The cookie is cleared even when
// the session is already gone.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.TokenFromContext(r.Context())
	err := s.engine.Logout(r.Context(), token)
	s.cfg.Cookie.Clear(w)
	if err != nil && shieldauth.KindOf(err) != shieldauth.KindNotFound {
		response.Error(w, err)
		return
	}
	response.NoContent(w)
}

// Me handles GET /api/auth/me
func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	res, ok := identity(w, r)
	if !ok {
		return
	}
	response.OK(w, map[string]any{
		"id":         res.AccountID,
		"email":      res.Email,
		"name":       res.Name,
		"role":       res.Role,
		"session_id": res.SessionID,
		"expires_at": res.ExpiresAt,
	})
}

// Health handles GET /healthz
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Ping(r.Context()); err != nil {
		s.logger.WarnContext(r.Context(), "health check failed", "error", err)
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]string{"status": "ok"})
}
