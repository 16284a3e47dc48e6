package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrEthical07/shieldauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubValidator struct {
	tokens map[string]*shieldauth.AuthResult
	seen   []string
}

func (s *stubValidator) Validate(_ context.Context, token string) (*shieldauth.AuthResult, error) {
	s.seen = append(s.seen, token)
	if res, ok := s.tokens[token]; ok {
		return res, nil
	}
	return nil, shieldauth.ErrSessionNotFound
}

func newStub() *stubValidator {
	return &stubValidator{tokens: map[string]*shieldauth.AuthResult{
		"good":  {AccountID: "u1", Role: shieldauth.RoleCreator, SessionID: "s1"},
		"admin": {AccountID: "u2", Role: shieldauth.RoleAdmin, SessionID: "s2"},
	}}
}

func echoAccount(w http.ResponseWriter, r *http.Request) {
	res, _ := AuthResultFromContext(r.Context())
	tok, _ := TokenFromContext(r.Context())
	_, _ = w.Write([]byte(res.AccountID + ":" + tok))
}

func TestGuardAcceptsBearerAndCookie(t *testing.T) {
	v := newStub()
	h := Guard(v, SessionCookie{})(http.HandlerFunc(echoAccount))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1:good", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "good"})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1:good", rec.Body.String())
}

func TestGuardPrefersHeaderOverCookie(t *testing.T) {
	v := newStub()
	h := Guard(v, SessionCookie{})(http.HandlerFunc(echoAccount))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer admin")
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "good"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"admin"}, v.seen)
}

func TestGuardRejectsAndClearsBadCookie(t *testing.T) {
	h := Guard(newStub(), SessionCookie{Secure: true})(http.HandlerFunc(echoAccount))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "revoked"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, DefaultCookieName, cookies[0].Name)
	assert.Equal(t, -1, cookies[0].MaxAge)
	assert.True(t, cookies[0].Secure)
	assert.Contains(t, rec.Body.String(), `"code":"unauthorized"`)
}

func TestGuardRejectsMissingToken(t *testing.T) {
	h := Guard(newStub(), SessionCookie{})(http.HandlerFunc(echoAccount))

	for _, header := range []string{"", "Bearer ", "Basic Zm9vOmJhcg=="} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
		assert.Empty(t, rec.Result().Cookies())
	}
}

func TestRequireRole(t *testing.T) {
	h := Guard(newStub(), SessionCookie{})(RequireRole(shieldauth.RoleAdmin)(http.HandlerFunc(echoAccount)))

	req := httptest.NewRequest(http.MethodPost, "/admin", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin", nil)
	req.Header.Set("Authorization", "Bearer admin")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionCookieAttributes(t *testing.T) {
	rec := httptest.NewRecorder()
	SessionCookie{MaxAge: 5 * 24 * time.Hour}.Set(rec, "tok")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, "tok", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, 5*24*3600, c.MaxAge)
	assert.True(t, c.HttpOnly)
	assert.False(t, c.Secure)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
}
