package httpapi

import (
	"net/http"
	"time"

	"github.com/MrEthical07/shieldauth/internal/response"
	"github.com/go-chi/chi/v5"
)

type sessionResponse struct {
	ID         string    `json:"id"`
	Device     string    `json:"device"`
	IP         string    `json:"ip"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
	ExpiresAt  time.Time `json:"expires_at"`
	Current    bool      `json:"current"`
}

// deleteAccountRequest carries the re-verification secret: the password,
// or an email code for accounts without one.
type deleteAccountRequest struct {
	Secret   string `json:"secret" validate:"required"`
	TOTPCode string `json:"totp_code,omitempty" validate:"omitempty,numeric"`
}

// updateProfileRequest changes the phone number. Code is the SMS code sent
// to the new number through /otp/request.
type updateProfileRequest struct {
	Phone string `json:"phone" validate:"required,numeric,len=10"`
	Code  string `json:"code" validate:"required,numeric,min=4,max=10"`
}

// ListSessions handles GET /api/auth/sessions
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	sessions, err := s.engine.ListSessions(r.Context(), id.AccountID, id.SessionID)
	if err != nil {
		response.Error(w, err)
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionResponse{
			ID:         sess.ID,
			Device:     sess.Device,
			IP:         sess.IP,
			CreatedAt:  sess.CreatedAt,
			LastActive: sess.LastActive,
			ExpiresAt:  sess.ExpiresAt,
			Current:    sess.Current,
		})
	}
	response.OK(w, out)
}

// RevokeSession handles DELETE /api/auth/sessions/{id}
func (s *Server) RevokeSession(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	sid := chi.URLParam(r, "id")
	if err := s.engine.RevokeSession(r.Context(), id.AccountID, sid); err != nil {
		response.Error(w, err)
		return
	}
	if sid == id.SessionID {
		s.cfg.Cookie.Clear(w)
	}
	response.NoContent(w)
}

// UpdateProfile handles PATCH /api/auth/profile
func (s *Server) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req updateProfileRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.UpdatePhone(r.Context(), id.AccountID, req.Phone, req.Code); err != nil {
		response.Error(w, err)
		return
	}
	response.NoContent(w)
}

// DeleteAccount handles DELETE /api/auth/account
func (s *Server) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req deleteAccountRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.DeleteAccount(r.Context(), id.AccountID, req.Secret, req.TOTPCode); err != nil {
		response.Error(w, err)
		return
	}
	s.cfg.Cookie.Clear(w)
	response.NoContent(w)
}
