package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "ekyc/pkg/domain-errors"
)

type walletRequest struct {
	Address string `json:"address"`
}

func (r *walletRequest) Normalize() { r.Address = strings.ToLower(strings.TrimSpace(r.Address)) }

func (r *walletRequest) Validate() error {
	if r.Address == "" {
		return errors.New("address is required")
	}
	return nil
}

func decodeErr(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestWriteError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
		cause  string
	}{
		{"not found", dErrors.New(dErrors.CodeNotFound, "document not found"), http.StatusNotFound, "not_found", ""},
		{"forbidden", dErrors.New(dErrors.CodeForbidden, "institutions only"), http.StatusForbidden, "forbidden", ""},
		{"invalid signature", dErrors.New(dErrors.CodeInvalidSignature, "bad"), http.StatusUnauthorized, "invalid_signature", ""},
		{"upload failed", dErrors.New(dErrors.CodeUploadFailed, "pin failed"), http.StatusBadGateway, "upload_failed", ""},
		{
			"verification failed reports ledger cause",
			dErrors.Reclassify(dErrors.New(dErrors.CodeLedgerTimeout, "no receipt"), dErrors.CodeVerificationFailed, "rolled back"),
			http.StatusServiceUnavailable, "verification_failed", "ledger_timeout",
		},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "internal_error", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tc.err)
			assert.Equal(t, tc.status, rec.Code)
			body := decodeErr(t, rec)
			assert.Equal(t, tc.code, body.Error)
			assert.Equal(t, tc.cause, body.Cause)
		})
	}
}

func TestDecodeAndPrepare(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("normalizes then validates", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"address":"  0xABC "}`))
		out, ok := DecodeAndPrepare[walletRequest](rec, req, logger)
		require.True(t, ok)
		assert.Equal(t, "0xabc", out.Address)
	})

	t.Run("validation failure is 400", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"address":" "}`))
		_, ok := DecodeAndPrepare[walletRequest](rec, req, logger)
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation_failed", decodeErr(t, rec).Error)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
		_, ok := DecodeJSON[walletRequest](rec, req, logger)
		assert.False(t, ok)
		assert.Equal(t, "bad_request", decodeErr(t, rec).Error)
	})

	t.Run("unknown fields rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"address":"0x1","extra":1}`))
		_, ok := DecodeJSON[walletRequest](rec, req, logger)
		assert.False(t, ok)
	})
}
