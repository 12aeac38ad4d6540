package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"ekyc/pkg/domain"
	"ekyc/pkg/platform/sentinel"
)

// InMemoryStore keeps results in process until their TTL elapses.
type InMemoryStore struct {
	mu      sync.Mutex
	results map[domain.JobID]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	result    Result
	expiresAt time.Time
}

func NewInMemoryStore(ttl time.Duration) *InMemoryStore {
	return &InMemoryStore{results: make(map[domain.JobID]memoryEntry), ttl: ttl, now: time.Now}
}

func (s *InMemoryStore) Save(_ context.Context, result *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, e := range s.results {
		if now.After(e.expiresAt) {
			delete(s.results, id)
		}
	}
	s.results[result.ID] = memoryEntry{result: *result, expiresAt: now.Add(s.ttl)}
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id domain.JobID) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.results[id]
	if !ok || s.now().After(e.expiresAt) {
		return nil, sentinel.ErrNotFound
	}
	r := e.result
	return &r, nil
}

// RedisStore keeps results as JSON strings that expire after the TTL.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: "ekyc:job:", ttl: ttl}
}

func (s *RedisStore) Save(ctx context.Context, result *Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode job result: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+result.ID.String(), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save job result: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id domain.JobID) (*Result, error) {
	payload, err := s.client.Get(ctx, s.prefix+id.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("load job result: %w", err)
	}
	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode job result: %w", err)
	}
	return &result, nil
}
