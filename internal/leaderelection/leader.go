// Package leaderelection gates scheduling behind a Postgres advisory lock.
//
// Exactly one engine instance per database may drive the scheduler and the
// recovery sweep. The lock is session-scoped and held for the lifetime of a
// dedicated connection; Postgres releases it server-side if the connection
// dies. There is no renewal or TTL. The heartbeat ping only detects local
// connection death so a demoted leader stops its duties promptly.
package leaderelection

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// MetricsSink records leadership transitions. Implementations must be
// non-blocking and fire-and-forget.
type MetricsSink interface {
	LeaderStatusChanged(isLeader bool)
	LeaderAcquired()
	LeaderLost(reason string) // "shutdown", "conn_lost", "error"
}

// Elector competes for a Postgres advisory lock and runs leader duties
// while holding it.
type Elector struct {
	db                *sql.DB
	lockKey           int64
	retryInterval     time.Duration // follower: how often to attempt acquisition
	heartbeatInterval time.Duration // leader: how often to ping the held connection
	onElected         func(ctx context.Context)
	onDemoted         func()
	logger            *zap.Logger
	metrics           MetricsSink // optional, nil = disabled
}

// New creates an Elector.
//
// onElected runs in a new goroutine when the lock is acquired; its context
// is cancelled when leadership is lost. It should start leader duties
// (scheduler, recovery sweep) and return quickly.
//
// onDemoted is called synchronously on loss of leadership. It must stop
// leader duties, block until they are fully stopped, and be idempotent.
func New(
	db *sql.DB,
	lockKey int64,
	retryInterval, heartbeatInterval time.Duration,
	onElected func(ctx context.Context),
	onDemoted func(),
	logger *zap.Logger,
) *Elector {
	return &Elector{
		db:                db,
		lockKey:           lockKey,
		retryInterval:     retryInterval,
		heartbeatInterval: heartbeatInterval,
		onElected:         onElected,
		onDemoted:         onDemoted,
		logger:            logger,
	}
}

// WithMetrics attaches a metrics sink to the elector.
func (e *Elector) WithMetrics(sink MetricsSink) *Elector {
	e.metrics = sink
	return e
}

// Run drives the election loop. It blocks until ctx is cancelled.
func (e *Elector) Run(ctx context.Context) {
	e.logger.Info("starting leader election loop",
		zap.Int64("lock_key", e.lockKey),
		zap.Duration("retry_interval", e.retryInterval),
		zap.Duration("heartbeat_interval", e.heartbeatInterval))

	for {
		if ctx.Err() != nil {
			e.logger.Info("leader election loop stopped")
			return
		}

		reason := e.campaign(ctx)

		if ctx.Err() != nil {
			e.logger.Info("leader election loop stopped")
			return
		}

		if reason != "" {
			e.logger.Warn("lost leadership",
				zap.String("reason", reason),
				zap.Duration("retry_in", e.retryInterval))
		}

		select {
		case <-ctx.Done():
			e.logger.Info("leader election loop stopped")
			return
		case <-time.After(e.retryInterval):
		}
	}
}

// campaign attempts to acquire the advisory lock and hold it.
// Returns the reason leadership was lost, or "" if the lock was never held.
func (e *Elector) campaign(ctx context.Context) string {
	// Session-scoped lock: needs a dedicated connection, not the pool.
	conn, err := e.db.Conn(ctx)
	if err != nil {
		e.logger.Error("failed to acquire dedicated connection", zap.Error(err))
		return ""
	}
	defer conn.Close()

	var acquired bool
	err = conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", e.lockKey).Scan(&acquired)
	if err != nil {
		e.logger.Error("advisory lock query failed", zap.Error(err))
		return ""
	}
	if !acquired {
		e.logger.Debug("lock held by another instance", zap.Int64("lock_key", e.lockKey))
		return ""
	}

	e.logger.Info("acquired leadership", zap.Int64("lock_key", e.lockKey))
	if e.metrics != nil {
		e.metrics.LeaderStatusChanged(true)
		e.metrics.LeaderAcquired()
	}

	leaderCtx, cancelLeader := context.WithCancel(ctx)

	go e.onElected(leaderCtx)

	reason := e.holdLock(ctx, conn)

	cancelLeader()
	e.onDemoted()

	if e.metrics != nil {
		e.metrics.LeaderStatusChanged(false)
		e.metrics.LeaderLost(reason)
	}

	e.logger.Info("released leadership", zap.Int64("lock_key", e.lockKey))
	return reason
}

// holdLock blocks while pinging the dedicated connection. The ping does not
// renew the lock; it only detects that the holding connection has died.
func (e *Elector) holdLock(ctx context.Context, conn *sql.Conn) string {
	ticker := time.NewTicker(e.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "shutdown"
		case <-ticker.C:
			if err := conn.PingContext(ctx); err != nil {
				if ctx.Err() != nil {
					return "shutdown"
				}
				e.logger.Error("dedicated connection ping failed", zap.Error(err))
				return "conn_lost"
			}
		}
	}
}
