//go:build integration

package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ekyc/pkg/domain"
	"ekyc/pkg/platform/sentinel"
	"ekyc/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = NewRedisStore(s.redis.Client, time.Minute)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.Flush(context.Background()))
}

func (s *RedisStoreSuite) TestSaveAndGet() {
	ctx := context.Background()
	result := &Result{
		ID:        domain.NewJobID(),
		Kind:      "verify",
		Owner:     domain.NewUserID(),
		Status:    StatusSucceeded,
		Output:    []byte(`{"tx_hash":"0xabc"}`),
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	s.Require().NoError(s.store.Save(ctx, result))

	got, err := s.store.Get(ctx, result.ID)
	s.Require().NoError(err)
	s.Equal(result.Owner, got.Owner)
	s.Equal(StatusSucceeded, got.Status)
	s.JSONEq(`{"tx_hash":"0xabc"}`, string(got.Output))

	ttl, err := s.redis.Client.TTL(ctx, "ekyc:job:"+result.ID.String()).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
}

func (s *RedisStoreSuite) TestMissing() {
	_, err := s.store.Get(context.Background(), domain.NewJobID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}
