package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/MrEthical07/shieldauth"
)

// Validator is the subset of *shieldauth.Engine used by Guard.
type Validator interface {
	Validate(ctx context.Context, token string) (*shieldauth.AuthResult, error)
}

type tokenContextKey struct{}

func AuthResultFromContext(ctx context.Context) (*shieldauth.AuthResult, bool) {
	return shieldauth.AuthResultFromContext(ctx)
}

// TokenFromContext returns the raw token that authenticated the request.
func TokenFromContext(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(tokenContextKey{}).(string)
	return tok, ok && tok != ""
}

// WithAuthResult stores res in ctx. Tests and custom guards only.
func WithAuthResult(ctx context.Context, res *shieldauth.AuthResult) context.Context {
	return shieldauth.WithAuthResult(ctx, res)
}

// Guard rejects requests without a valid session. A request carrying a
// cookie that fails validation gets the cookie cleared.
func Guard(v Validator, cookie SessionCookie) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				writeUnauthorized(w)
				return
			}

			token, fromCookie := requestToken(r, cookie)
			if token == "" {
				writeUnauthorized(w)
				return
			}

			res, err := v.Validate(r.Context(), token)
			if err != nil {
				if fromCookie {
					cookie.Clear(w)
				}
				writeUnauthorized(w)
				return
			}

			ctx := shieldauth.WithAuthResult(r.Context(), res)
			ctx = context.WithValue(ctx, tokenContextKey{}, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestToken(r *http.Request, cookie SessionCookie) (string, bool) {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token, false
	}
	if token := cookie.Read(r); token != "" {
		return token, true
	}
	return "", false
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeUnauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
}
