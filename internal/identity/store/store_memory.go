package store

import (
	"context"
	"sync"

	"ekyc/internal/identity/models"
	"ekyc/pkg/domain"
	"ekyc/pkg/platform/sentinel"
)

// InMemoryStore keeps identities in process. The wallet index plays the role
// of the unique constraint.
type InMemoryStore struct {
	mu       sync.RWMutex
	byID     map[domain.UserID]*models.Identity
	byWallet map[domain.WalletAddress]domain.UserID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		byID:     make(map[domain.UserID]*models.Identity),
		byWallet: make(map[domain.WalletAddress]domain.UserID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[identity.ID]; ok {
		return sentinel.ErrConflict
	}
	if identity.HasWallet() {
		if _, taken := s.byWallet[identity.Wallet]; taken {
			return sentinel.ErrConflict
		}
		s.byWallet[identity.Wallet] = identity.ID
	}
	cp := *identity
	s.byID[identity.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.UserID) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *identity
	return &cp, nil
}

func (s *InMemoryStore) FindByWallet(_ context.Context, wallet domain.WalletAddress) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byWallet[wallet]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *InMemoryStore) SetInstitution(_ context.Context, id domain.UserID, institution bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.byID[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	identity.IsInstitution = institution
	return nil
}

// Count returns the number of stored identities.
func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
