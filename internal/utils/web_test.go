package utils

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	internal_errors "github.com/readshelf/readshelf/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteErrorAndStatusCode(t *testing.T) {
	t.Run("status-coded error keeps its code", func(t *testing.T) {
		rr := httptest.NewRecorder()
		WriteErrorAndStatusCode(rr, internal_errors.TokenRevoked())

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

		var resp map[string]string
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "token_revoked", resp["error_code"])
		assert.NotEmpty(t, resp["message"])
	})

	t.Run("plain error becomes opaque 500", func(t *testing.T) {
		rr := httptest.NewRecorder()
		WriteErrorAndStatusCode(rr, assert.AnError)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), assert.AnError.Error())
	})
}

func TestDecodeValidate(t *testing.T) {
	type body struct {
		Email string `validate:"required,email" json:"email"`
	}

	t.Run("valid body", func(t *testing.T) {
		var b body
		err := DecodeValidate(io.NopCloser(strings.NewReader(`{"email":"a@b.com"}`)), &b)
		require.NoError(t, err)
		assert.Equal(t, "a@b.com", b.Email)
	})

	t.Run("invalid json", func(t *testing.T) {
		var b body
		err := DecodeValidate(io.NopCloser(strings.NewReader(`{broken`)), &b)
		require.Error(t, err)
		assert.True(t, internal_errors.IsStatus(err, http.StatusBadRequest))
	})

	t.Run("failing validation", func(t *testing.T) {
		var b body
		err := DecodeValidate(io.NopCloser(strings.NewReader(`{"email":"not-an-email"}`)), &b)
		require.Error(t, err)
		assert.True(t, internal_errors.IsStatus(err, http.StatusBadRequest))
	})
}

func TestGetIP(t *testing.T) {
	t.Run("x-real-ip", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-REAL-IP", "10.0.0.1")
		ip, err := GetIP(r)
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.1", ip)
	})

	t.Run("x-forwarded-for picks first valid", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-FORWARDED-FOR", "garbage, 10.0.0.2")
		ip, err := GetIP(r)
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.2", ip)
	})

	t.Run("remote addr fallback", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "192.168.1.5:12345"
		ip, err := GetIP(r)
		require.NoError(t, err)
		assert.Equal(t, "192.168.1.5", ip)
	})
}
