package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"ekyc/internal/document/models"
	"ekyc/pkg/domain"
	"ekyc/pkg/platform/sentinel"
)

// InMemoryStore keeps document records and verification events in process.
// Records are copied on the way in and out so callers never share state.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[domain.DocumentID]*models.DocumentRecord
	events  map[domain.DocumentID][]*models.VerificationEvent
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[domain.DocumentID]*models.DocumentRecord),
		events:  make(map[domain.DocumentID][]*models.VerificationEvent),
	}
}

func (s *InMemoryStore) Create(_ context.Context, record *models.DocumentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.ID]; ok {
		return sentinel.ErrConflict
	}
	for _, r := range s.records {
		if r.LedgerIndex == record.LedgerIndex {
			return sentinel.ErrConflict
		}
	}
	s.records[record.ID] = record.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.DocumentID) (*models.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *InMemoryStore) Update(_ context.Context, record *models.DocumentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.records[record.ID] = record.Clone()
	return nil
}

func (s *InMemoryStore) ListByOwner(_ context.Context, owner domain.UserID, filter models.ListFilter) ([]*models.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(filter.NameContains)
	var out []*models.DocumentRecord
	for _, r := range s.records {
		if r.OwnerID != owner {
			continue
		}
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		if filter.ExcludeStatus != nil && r.Status == *filter.ExcludeStatus {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(r.FileName), needle) {
			continue
		}
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out, nil
}

func (s *InMemoryStore) ListByStatus(_ context.Context, status models.Status) ([]*models.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.DocumentRecord
	for _, r := range s.records {
		if r.Status == status {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return out, nil
}

// ListUnanchored returns the records for contentID whose upload anchor was
// never recorded, oldest first.
func (s *InMemoryStore) ListUnanchored(_ context.Context, contentID string) ([]*models.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.DocumentRecord
	for _, r := range s.records {
		if r.ContentID == contentID && r.AnchorTxHash == "" {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return out, nil
}

func (s *InMemoryStore) FindByAnchorTx(_ context.Context, txHash string) (*models.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if txHash != "" && r.AnchorTxHash == txHash {
			return r.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) FindByChainSlot(_ context.Context, owner domain.WalletAddress, index uint64) (*models.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.HasChainSlot() && r.AnchorAddress.Equal(owner) && *r.ChainIndex == index {
			return r.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) AppendEvent(_ context.Context, event *models.VerificationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[event.DocumentID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *event
	s.events[event.DocumentID] = append(s.events[event.DocumentID], &cp)
	return nil
}

func (s *InMemoryStore) ListEvents(_ context.Context, documentID domain.DocumentID) ([]*models.VerificationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.VerificationEvent, 0, len(s.events[documentID]))
	for _, e := range s.events[documentID] {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}
