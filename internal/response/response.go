// Package response writes the JSON envelope used by every API handler.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/MrEthical07/shieldauth/internal/apierror"
)

// Response is the standard envelope. Exactly one of Data and Error is set.
type Response struct {
	Data  any `json:"data,omitempty"`
	Error any `json:"error,omitempty"`
}

// JSON writes data with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(Response{Data: data}); err != nil {
		http.Error(w, `{"error":{"code":"internal_error","message":"Failed to encode response"}}`, http.StatusInternalServerError)
	}
}

// Error writes err mapped through apierror.AsAPIError.
func Error(w http.ResponseWriter, err error) {
	apiErr := apierror.AsAPIError(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.StatusCode)
	_ = json.NewEncoder(w).Encode(Response{Error: apiErr})
}

func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func BadRequest(w http.ResponseWriter, message string) {
	Error(w, apierror.ErrBadRequest.WithMessage(message))
}

func Unauthorized(w http.ResponseWriter) {
	Error(w, apierror.ErrUnauthorized)
}
