package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"reflect"
	"strings"

	"github.com/MrEthical07/shieldauth"
	"github.com/MrEthical07/shieldauth/internal/apierror"
	"github.com/MrEthical07/shieldauth/internal/response"
	"github.com/MrEthical07/shieldauth/middleware"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

// decode reads a JSON body into dst and runs struct validation.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		response.BadRequest(w, "Invalid request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		response.Error(w, validationError(err))
		return false
	}
	return true
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apierror.ErrBadRequest
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return apierror.NewValidationErrors(fields)
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// identity returns the guard's result. Routes using it are always guarded.
func identity(w http.ResponseWriter, r *http.Request) (*shieldauth.AuthResult, bool) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		response.Unauthorized(w)
		return nil, false
	}
	return res, true
}

func device(r *http.Request) shieldauth.DeviceInfo {
	return shieldauth.DeviceInfo{UserAgent: r.UserAgent(), IP: clientIP(r)}
}

// clientIP expects chi's RealIP to have rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
