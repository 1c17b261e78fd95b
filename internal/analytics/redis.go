// Package analytics records per-day run counters in Redis so operators
// can chart job health without querying the run history table.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/officina-hr/jobengine/internal/domain"
)

type RedisSink struct {
	client    *redis.Client
	retention time.Duration
	logger    *zap.Logger
}

func NewRedisSink(client *redis.Client, retention time.Duration, logger *zap.Logger) *RedisSink {
	return &RedisSink{
		client:    client,
		retention: retention,
		logger:    logger,
	}
}

// Record increments the daily counter for a run outcome. Counters are
// advisory; a failed write never affects job execution.
func (s *RedisSink) Record(ctx context.Context, event domain.RunEvent) error {
	key := buildKey(event.JobName, event.Outcome, event.FinishedAt)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.retention)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

// Consume drains the run-event channel until it is closed or the
// context is cancelled. Intended to run in its own goroutine.
func (s *RedisSink) Consume(ctx context.Context, events <-chan domain.RunEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := s.Record(ctx, event); err != nil {
				s.logger.Warn("failed to record run analytics",
					zap.String("job", event.JobName),
					zap.Error(err))
			}
		}
	}
}

func buildKey(jobName string, outcome domain.RunOutcome, t time.Time) string {
	return fmt.Sprintf("job:%s:%s:%s", jobName, outcome, t.UTC().Format("20060102"))
}
