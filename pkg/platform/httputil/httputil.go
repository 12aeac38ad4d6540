package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	id "ekyc/pkg/domain"
	dErrors "ekyc/pkg/domain-errors"
	"ekyc/pkg/requestcontext"
)

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; an encoding error cannot change the status.
	_ = json.NewEncoder(w).Encode(response)
}

// ErrorResponse is the JSON body of every non-2xx answer.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Cause       string `json:"cause,omitempty"`
}

// WriteError translates a domain error into an HTTP response. For
// verification_failed the wrapped ledger code is reported as cause.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if !errors.As(err, &domainErr) {
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: string(dErrors.CodeInternal)})
		return
	}

	resp := ErrorResponse{Error: string(domainErr.Code), Description: domainErr.Message}
	if inner := innerCode(domainErr); inner != "" && inner != domainErr.Code {
		resp.Cause = string(inner)
	}
	WriteJSON(w, DomainCodeToHTTPStatus(domainErr.Code), resp)
}

func innerCode(e *dErrors.Error) dErrors.Code {
	var inner *dErrors.Error
	if e.Err != nil && errors.As(e.Err, &inner) {
		return inner.Code
	}
	return ""
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeUnauthorized, dErrors.CodeInvalidSignature:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeStoreRejected, dErrors.CodeLedgerRejected, dErrors.CodeUploadFailed:
		return http.StatusBadGateway
	case dErrors.CodeUnavailable, dErrors.CodeStoreUnavailable, dErrors.CodeLedgerUnavailable, dErrors.CodeVerificationFailed:
		return http.StatusServiceUnavailable
	case dErrors.CodeTimeout, dErrors.CodeLedgerTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// RequireUserID extracts the authenticated user ID placed by the auth middleware.
func RequireUserID(ctx context.Context, logger *slog.Logger) (id.UserID, error) {
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		if logger != nil {
			logger.ErrorContext(ctx, "userID missing from context despite auth middleware",
				"request_id", requestcontext.RequestID(ctx))
		}
		return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return userID, nil
}
