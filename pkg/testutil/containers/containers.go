//go:build integration

// Package containers starts the backing services integration tests run
// against. Each service is started once per test binary and shared by every
// suite in it; Ryuk removes the containers when the process exits.
package containers

import (
	"sync"
	"testing"
)

type Manager struct {
	mu       sync.Mutex
	postgres *PostgresContainer
	kafka    *KafkaContainer
	redis    *RedisContainer
}

var (
	manager     *Manager
	managerOnce sync.Once
)

func GetManager() *Manager {
	managerOnce.Do(func() { manager = &Manager{} })
	return manager
}

// shared returns *slot, starting it with start on first use.
func shared[T any](m *Manager, t *testing.T, slot **T, start func(*testing.T) *T) *T {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if *slot == nil {
		*slot = start(t)
	}
	return *slot
}

// GetPostgres returns a migrated Postgres. Suites truncate between tests.
func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	return shared(m, t, &m.postgres, NewPostgresContainer)
}

// GetKafka returns a Redpanda broker with topic auto-creation enabled.
func (m *Manager) GetKafka(t *testing.T) *KafkaContainer {
	return shared(m, t, &m.kafka, NewKafkaContainer)
}

func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	return shared(m, t, &m.redis, NewRedisContainer)
}
