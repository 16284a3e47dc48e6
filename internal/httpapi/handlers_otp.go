package httpapi

import (
	"net/http"

	"github.com/MrEthical07/shieldauth"
	"github.com/MrEthical07/shieldauth/internal/response"
)

type otpRequest struct {
	Address string `json:"address" validate:"required,max=254"`
	Channel string `json:"channel" validate:"required,oneof=email sms"`
}

type otpVerifyRequest struct {
	Address string `json:"address" validate:"required,max=254"`
	Code    string `json:"code" validate:"required,numeric,min=4,max=10"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required,numeric"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
}

// RequestOTP handles POST /api/auth/otp/request. Unknown email addresses
// get the same 202 as known ones.
func (s *Server) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.RequestOTP(r.Context(), req.Address, shieldauth.Channel(req.Channel)); err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// VerifyOTP handles POST /api/auth/otp/verify
func (s *Server) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req otpVerifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.VerifyOTP(r.Context(), req.Address, req.Code); err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]bool{"verified": true})
}

// ForgotPassword handles POST /api/auth/password/forgot
func (s *Server) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.RequestPasswordReset(r.Context(), req.Email); err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// ResetPassword handles POST /api/auth/password/reset
func (s *Server) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.ResetPassword(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		response.Error(w, err)
		return
	}
	s.cfg.Cookie.Clear(w)
	response.NoContent(w)
}

// ChangePassword handles POST /api/auth/password/change
func (s *Server) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.engine.ChangePassword(r.Context(), id.AccountID, id.SessionID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.NoContent(w)
}
