package contentstore

import (
	"context"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

const memoryBackend = "memory"

// MemoryStore keeps blobs in process, addressed by CIDv1 (raw codec,
// sha2-256), so identical bytes always map to the same identifier.
type MemoryStore struct {
	mu         sync.RWMutex
	blobs      map[string][]byte
	gatewayURL string
	failWith   error
}

func NewMemoryStore(gatewayURL string) *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte), gatewayURL: gatewayURL}
}

func (s *MemoryStore) Put(ctx context.Context, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", newError(KindUnavailable, memoryBackend, "context done", 0, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return "", s.failWith
	}

	id, err := ComputeCID(data)
	if err != nil {
		return "", newError(KindRejected, memoryBackend, "hash content", 0, err)
	}
	s.blobs[id] = append([]byte(nil), data...)
	return id, nil
}

func (s *MemoryStore) Resolve(contentID string) (string, error) {
	if contentID == "" {
		return "", ErrEmptyID
	}
	return s.gatewayURL + contentID, nil
}

// Get returns a copy of the stored blob.
func (s *MemoryStore) Get(contentID string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[contentID]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b...), true
}

// Len reports how many distinct blobs are held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// FailWith makes every subsequent Put return err until cleared with nil.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// ComputeCID returns the CIDv1 string for data.
func ComputeCID(data []byte) (string, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	return cid.NewCidV1(cid.Raw, mh).String(), nil
}
