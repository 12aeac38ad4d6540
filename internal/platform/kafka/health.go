package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// HealthChecker checks Kafka broker connectivity through the admin API.
type HealthChecker struct {
	admin   *kadm.Client
	timeout time.Duration
}

// NewHealthChecker reuses an existing client's connections.
func NewHealthChecker(client *kgo.Client) *HealthChecker {
	return &HealthChecker{
		admin:   kadm.NewClient(client),
		timeout: 5 * time.Second,
	}
}

// Check returns nil if the cluster answers a metadata request with at least
// one broker.
func (h *HealthChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	brokers, err := h.admin.ListBrokers(ctx)
	if err != nil {
		return fmt.Errorf("kafka metadata: %w", err)
	}
	if len(brokers) == 0 {
		return fmt.Errorf("no kafka brokers reachable")
	}
	return nil
}

// Name returns the check name for health reporting.
func (h *HealthChecker) Name() string {
	return "kafka"
}
