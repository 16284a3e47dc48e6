package httpapi

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/MrEthical07/shieldauth"
	"golang.org/x/oauth2"
)

const (
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	oauthStateCookie  = "oauth_state"
)

type googleUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
}

// GoogleLogin handles GET /api/auth/google/login
func (s *Server) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := randomState()
	if err != nil {
		s.logger.ErrorContext(r.Context(), "oauth state generation failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/api/auth/google",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.cfg.Google.AuthCodeURL(state, oauth2.AccessTypeOffline), http.StatusFound)
}

// GoogleCallback handles GET /api/auth/google/callback. Failures redirect
// to the login page with an error code instead of rendering JSON.
func (s *Server) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stateCookie, err := r.Cookie(oauthStateCookie)
	state := r.URL.Query().Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(stateCookie.Value), []byte(state)) != 1 {
		s.oauthFailed(w, r, "invalid_state")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Path: "/api/auth/google", MaxAge: -1, HttpOnly: true})

	code := r.URL.Query().Get("code")
	if code == "" {
		s.oauthFailed(w, r, "missing_code")
		return
	}
	token, err := s.cfg.Google.Exchange(ctx, code)
	if err != nil {
		s.logger.WarnContext(ctx, "oauth token exchange failed", "error", err)
		s.oauthFailed(w, r, "exchange_failed")
		return
	}
	user, err := s.fetchGoogleUser(r, token)
	if err != nil {
		s.logger.WarnContext(ctx, "oauth userinfo failed", "error", err)
		s.oauthFailed(w, r, "userinfo_failed")
		return
	}

	res, err := s.engine.LoginFederated(ctx, shieldauth.FederatedIdentity{
		Provider:      "google",
		Subject:       user.ID,
		Email:         user.Email,
		EmailVerified: user.VerifiedEmail,
		Name:          user.Name,
	}, "", device(r))
	if err != nil {
		s.oauthFailed(w, r, shieldauth.KindOf(err).String())
		return
	}

	s.cfg.Cookie.Set(w, res.Token)
	http.Redirect(w, r, s.cfg.LoginRedirect, http.StatusFound)
}

func (s *Server) fetchGoogleUser(r *http.Request, token *oauth2.Token) (*googleUser, error) {
	client := oauth2.NewClient(r.Context(), oauth2.StaticTokenSource(token))
	resp, err := client.Get(s.cfg.UserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("fetch google user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google userinfo returned status %d", resp.StatusCode)
	}
	var u googleUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("decode google user: %w", err)
	}
	return &u, nil
}

func (s *Server) oauthFailed(w http.ResponseWriter, r *http.Request, reason string) {
	target := "/login?error=" + url.QueryEscape(reason)
	http.Redirect(w, r, target, http.StatusFound)
}

func randomState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
