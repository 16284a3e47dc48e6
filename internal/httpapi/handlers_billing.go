package httpapi

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/MrEthical07/shieldauth"
	"github.com/MrEthical07/shieldauth/internal/apierror"
	"github.com/MrEthical07/shieldauth/internal/response"
	"github.com/MrEthical07/shieldauth/middleware"
	"github.com/MrEthical07/shieldauth/subscription"
	"github.com/go-chi/chi/v5"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Razorpay-Signature"

type createSubscriptionRequest struct {
	Plan string `json:"plan" validate:"required,oneof=monthly yearly"`
}

type expireTrialRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// CreateSubscription handles POST /api/subscriptions
func (s *Server) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req createSubscriptionRequest
	if !s.decode(w, r, &req) {
		return
	}
	subID, err := s.engine.CreateSubscription(r.Context(), id.AccountID, shieldauth.Plan(req.Plan))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, map[string]string{"subscription_id": subID})
}

// RazorpayWebhook handles POST /api/webhooks/razorpay. It answers 200 for
// applied and ignored events, 400 for unauthentic or malformed bodies and
// 404 for unknown subscriptions. Other failures return 500 so the gateway
// retries.
func (s *Server) RazorpayWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	outcome, err := s.engine.HandleWebhook(r.Context(), body, r.Header.Get(SignatureHeader))
	switch {
	case err == nil:
		response.OK(w, map[string]string{"status": outcome.String()})
	case errors.Is(err, subscription.ErrInvalidSignature):
		s.logger.WarnContext(r.Context(), "webhook rejected", "reason", "signature")
		response.BadRequest(w, "Invalid webhook")
	case shieldauth.KindOf(err) == shieldauth.KindInvalidInput:
		response.BadRequest(w, "Malformed webhook payload")
	case shieldauth.KindOf(err) == shieldauth.KindNotFound:
		response.Error(w, apierror.ErrNotFound.WithMessage("Subscription not found"))
	default:
		s.logger.ErrorContext(r.Context(), "webhook failed", "error", err)
		response.Error(w, err)
	}
}

// ExpireTrial handles POST /api/admin/trials/expire
func (s *Server) ExpireTrial(w http.ResponseWriter, r *http.Request) {
	var req expireTrialRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.ExpireTrial(r.Context(), req.Email); err != nil {
		response.Error(w, err)
		return
	}
	response.NoContent(w)
}

// SuspendAccount handles POST /api/admin/accounts/{id}/suspend
func (s *Server) SuspendAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.SuspendAccount(r.Context(), chi.URLParam(r, "id")); err != nil {
		response.Error(w, err)
		return
	}
	response.NoContent(w)
}

// ReactivateAccount handles POST /api/admin/accounts/{id}/reactivate
func (s *Server) ReactivateAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ReactivateAccount(r.Context(), chi.URLParam(r, "id")); err != nil {
		response.Error(w, err)
		return
	}
	response.NoContent(w)
}

// cronOrAdmin admits a scheduler presenting the cron secret as a bearer
// token, otherwise falls back to an admin session.
func (s *Server) cronOrAdmin(guard func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		admin := guard(middleware.RequireRole(shieldauth.RoleAdmin)(next))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.cfg.CronSecret != "" {
				token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
				if ok && subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.CronSecret)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
			admin.ServeHTTP(w, r)
		})
	}
}
