// Package service binds wallets to identities.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ekyc/internal/audit"
	"ekyc/internal/identity/models"
	"ekyc/pkg/domain"
	dErrors "ekyc/pkg/domain-errors"
	"ekyc/pkg/platform/sentinel"
)

// Store defines the persistence interface for identities.
// Error Contract:
// - Find* return sentinel.ErrNotFound when no identity matches
// - Create returns sentinel.ErrConflict when the wallet is already bound
type Store interface {
	Create(ctx context.Context, identity *models.Identity) error
	FindByID(ctx context.Context, id domain.UserID) (*models.Identity, error)
	FindByWallet(ctx context.Context, wallet domain.WalletAddress) (*models.Identity, error)
	SetInstitution(ctx context.Context, id domain.UserID, institution bool) error
}

// SignatureVerifier checks personal-message signatures.
type SignatureVerifier interface {
	Verify(message string, signature []byte, claimed domain.WalletAddress) bool
}

// maxBindAttempts bounds create/lookup rounds when racing another binder.
const maxBindAttempts = 3

type Service struct {
	store    Store
	verifier SignatureVerifier
	auditor  *audit.Publisher
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithAuditor(a *audit.Publisher) Option { return func(s *Service) { s.auditor = a } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(store Store, verifier SignatureVerifier, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		verifier: verifier,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BindOrCreate returns the identity bound to wallet, creating it on first
// login. The signature must prove ownership of wallet over message.
func (s *Service) BindOrCreate(ctx context.Context, wallet domain.WalletAddress, message string, signature []byte) (*models.Identity, bool, error) {
	if !s.verifier.Verify(message, signature, wallet) {
		return nil, false, dErrors.New(dErrors.CodeInvalidSignature, "signature does not match wallet")
	}

	for attempt := 0; attempt < maxBindAttempts; attempt++ {
		existing, err := s.store.FindByWallet(ctx, wallet)
		if err == nil {
			s.emit(ctx, audit.EventWalletLogin, existing)
			return existing, false, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up identity")
		}

		identity := models.NewWalletIdentity(wallet, s.now())
		err = s.store.Create(ctx, identity)
		if err == nil {
			s.logger.InfoContext(ctx, "identity created for wallet",
				"user_id", identity.ID.String(),
				"wallet", wallet.String(),
			)
			s.emit(ctx, audit.EventIdentityCreated, identity)
			return identity, true, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create identity")
		}
		// Lost the race to a concurrent first login; the winner's row is now visible.
		s.logger.DebugContext(ctx, "wallet bound concurrently, retrying lookup", "wallet", wallet.String())
	}
	return nil, false, dErrors.New(dErrors.CodeConflict, "wallet binding did not settle")
}

// VerifySignature reports whether signature proves wallet signed message.
func (s *Service) VerifySignature(message string, signature []byte, wallet domain.WalletAddress) bool {
	return s.verifier.Verify(message, signature, wallet)
}

func (s *Service) Get(ctx context.Context, id domain.UserID) (*models.Identity, error) {
	identity, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "identity not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity")
	}
	return identity, nil
}

// SetInstitution grants or revokes the verifier capability. Privileged.
func (s *Service) SetInstitution(ctx context.Context, id domain.UserID, institution bool) error {
	if err := s.store.SetInstitution(ctx, id, institution); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "identity not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update identity")
	}
	return nil
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, identity *models.Identity) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, audit.Event{
		UserID: identity.ID.String(),
		Wallet: identity.Wallet.String(),
		Action: string(action),
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", action, "error", err)
	}
}
