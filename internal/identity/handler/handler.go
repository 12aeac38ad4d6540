package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ekyc/internal/identity/models"
	"ekyc/internal/platform/metrics"
	"ekyc/internal/signature"
	"ekyc/pkg/domain"
	dErrors "ekyc/pkg/domain-errors"
	"ekyc/pkg/platform/httputil"
	"ekyc/pkg/platform/privacy"
	"ekyc/pkg/requestcontext"
)

// Service defines the identity operations the handler needs.
type Service interface {
	BindOrCreate(ctx context.Context, wallet domain.WalletAddress, message string, signature []byte) (*models.Identity, bool, error)
	VerifySignature(message string, signature []byte, wallet domain.WalletAddress) bool
	Get(ctx context.Context, id domain.UserID) (*models.Identity, error)
}

// TokenIssuer mints access tokens for bound identities.
type TokenIssuer interface {
	GenerateAccessToken(ctx context.Context, userID domain.UserID, wallet domain.WalletAddress, institution bool) (string, error)
	TTL() time.Duration
}

type Handler struct {
	service Service
	tokens  TokenIssuer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Handler)

func WithMetrics(m *metrics.Metrics) Option { return func(h *Handler) { h.metrics = m } }

func New(service Service, tokens TokenIssuer, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, tokens: tokens, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the public wallet authentication routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/wallet", h.HandleWalletAuth)
	r.Post("/auth/verify-signature", h.HandleVerifySignature)
}

// RegisterAuthenticated registers routes that require a bearer token.
func (h *Handler) RegisterAuthenticated(r chi.Router) {
	r.Get("/auth/status", h.HandleStatus)
}

// HandleWalletAuth implements POST /auth/wallet.
//
// Input: { "wallet_address": "0x...", "message": "...", "signature": "0x..." }
// Output: { "access_token": "...", "new_account": true, "identity": {...} }
func (h *Handler) HandleWalletAuth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.WalletAuthRequest](w, r, h.logger)
	if !ok {
		return
	}
	wallet, err := domain.ParseWalletAddress(req.WalletAddress)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "wallet_address is invalid"))
		return
	}
	sig, err := signature.DecodeHex(req.Signature)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidSignature, "signature does not match wallet"))
		return
	}

	identity, isNew, err := h.service.BindOrCreate(ctx, wallet, req.Message, sig)
	if err != nil {
		h.metrics.IncrementAuthFailures(string(dErrors.CodeOf(err)))
		h.logger.WarnContext(ctx, "wallet authentication failed",
			"request_id", requestID,
			"wallet", privacy.MaskWallet(wallet.String()),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	token, err := h.tokens.GenerateAccessToken(ctx, identity.ID, identity.Wallet, identity.IsInstitution)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue access token",
			"request_id", requestID,
			"user_id", identity.ID.String(),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token"))
		return
	}
	if isNew {
		h.metrics.IncrementUsersCreated()
	}
	h.metrics.IncrementTokenRequests()

	httputil.WriteJSON(w, http.StatusOK, models.WalletAuthResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.tokens.TTL().Seconds()),
		NewAccount:  isNew,
		Identity:    models.ToIdentityResponse(identity),
	})
}

// HandleVerifySignature implements POST /auth/verify-signature. Malformed
// signatures are reported as invalid, never as errors.
func (h *Handler) HandleVerifySignature(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[models.VerifySignatureRequest](w, r, h.logger)
	if !ok {
		return
	}
	wallet, err := domain.ParseWalletAddress(req.WalletAddress)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "wallet_address is invalid"))
		return
	}
	message := req.Message
	if message == "" {
		message = signature.DefaultLoginMessage
	}

	valid := false
	if sig, err := signature.DecodeHex(req.Signature); err == nil {
		valid = h.service.VerifySignature(message, sig, wallet)
	}
	httputil.WriteJSON(w, http.StatusOK, models.VerifySignatureResponse{Valid: valid})
}

// HandleStatus implements GET /auth/status for the authenticated identity.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := httputil.RequireUserID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	identity, err := h.service.Get(ctx, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToIdentityResponse(identity))
}
