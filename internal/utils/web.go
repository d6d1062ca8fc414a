package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	internal_errors "github.com/readshelf/readshelf/internal/errors"
	"github.com/readshelf/readshelf/internal/logger"
)

type errorResponse struct {
	Message   string `json:"message"`
	ErrorCode string `json:"error_code,omitempty"`
}

// WriteErrorAndStatusCode renders an error as JSON. Errors carrying a status
// code keep it; anything else is a 500 with the details kept out of the
// response body.
func WriteErrorAndStatusCode(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if e, ok := err.(*internal_errors.ErrorWithStatusCode); ok {
		w.WriteHeader(e.StatusCode)
		json.NewEncoder(w).Encode(errorResponse{Message: e.Message, ErrorCode: e.Code})
		return
	}

	logger.Log.Error("unhandled error", "error", err)
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(errorResponse{Message: "Oops... Something went wrong", ErrorCode: "server_error"})
}

func GetIP(r *http.Request) (string, error) {
	// X-REAL-IP first
	ip := r.Header.Get("X-REAL-IP")
	if netIP := net.ParseIP(ip); netIP != nil {
		return ip, nil
	}

	// then X-FORWARDED-FOR
	ips := r.Header.Get("X-FORWARDED-FOR")
	for _, ip := range strings.Split(ips, ",") {
		ip = strings.TrimSpace(ip)
		if netIP := net.ParseIP(ip); netIP != nil {
			return ip, nil
		}
	}

	// fall back to RemoteAddr
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "", err
	}
	if netIP := net.ParseIP(ip); netIP != nil {
		return ip, nil
	}
	return "", fmt.Errorf("no valid ip found")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeValidate decodes a JSON body into dst and checks its validate tags.
// Both failure modes come back as 400s with a field-free message.
func DecodeValidate(r io.ReadCloser, dst any) error {
	if err := json.NewDecoder(r).Decode(dst); err != nil {
		return &internal_errors.ErrorWithStatusCode{Message: "Body is invalid json", StatusCode: http.StatusBadRequest, Code: "invalid_body"}
	}
	if err := validate.Struct(dst); err != nil {
		return &internal_errors.ErrorWithStatusCode{Message: "Required fields missing or invalid", StatusCode: http.StatusBadRequest, Code: "validation_error"}
	}
	return nil
}
