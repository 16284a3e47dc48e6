package httpapi

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/MrEthical07/shieldauth/internal/response"
	"github.com/skip2/go-qrcode"
)

type totpCodeRequest struct {
	Code string `json:"code" validate:"required,numeric,min=6,max=8"`
}

type totpEnrollResponse struct {
	Secret string `json:"secret"`
	URI    string `json:"otpauth_uri"`
	// QRCode is a PNG data URI of URI.
	QRCode string `json:"qr_code"`
}

// EnrollTOTP handles POST /api/auth/2fa/enroll
func (s *Server) EnrollTOTP(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	enrollment, err := s.engine.EnrollTOTP(r.Context(), id.AccountID)
	if err != nil {
		response.Error(w, err)
		return
	}
	png, err := qrcode.Encode(enrollment.URI, qrcode.Medium, 256)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "qr encode failed", "error", err)
		response.Error(w, err)
		return
	}
	response.Created(w, totpEnrollResponse{
		Secret: enrollment.Secret,
		URI:    enrollment.URI,
		QRCode: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	})
}

// ConfirmTOTP handles POST /api/auth/2fa/confirm
func (s *Server) ConfirmTOTP(w http.ResponseWriter, r *http.Request) {
	s.totpAction(w, r, s.engine.ConfirmTOTP)
}

// VerifyTOTP handles POST /api/auth/2fa/verify
func (s *Server) VerifyTOTP(w http.ResponseWriter, r *http.Request) {
	s.totpAction(w, r, s.engine.VerifyTOTP)
}

// DisableTOTP handles POST /api/auth/2fa/disable
func (s *Server) DisableTOTP(w http.ResponseWriter, r *http.Request) {
	s.totpAction(w, r, s.engine.DisableTOTP)
}

func (s *Server) totpAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, accountID, code string) error) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req totpCodeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := action(r.Context(), id.AccountID, req.Code); err != nil {
		response.Error(w, err)
		return
	}
	response.NoContent(w)
}
