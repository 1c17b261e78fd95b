package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/officina-hr/jobengine/internal/domain"
	"github.com/officina-hr/jobengine/internal/testutil"
)

type mockStore struct {
	mu      sync.Mutex
	overdue []domain.JobTracker
	err     error
	calls   int
}

func (m *mockStore) FindOverdue(ctx context.Context, now time.Time) ([]domain.JobTracker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.overdue, m.err
}

type mockRunner struct {
	mu        sync.Mutex
	recovered []string
	results   map[string]domain.Result
}

func (m *mockRunner) Recover(ctx context.Context, tracker domain.JobTracker) domain.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recovered = append(m.recovered, tracker.JobName)
	if r, ok := m.results[tracker.JobName]; ok {
		return r
	}
	return domain.Success("", 0, time.Now())
}

func overdueTracker(name string) domain.JobTracker {
	return domain.JobTracker{
		JobName:          name,
		JobType:          domain.JobTypeDaily,
		NextScheduledRun: time.Date(2024, 4, 14, 0, 0, 0, 0, time.UTC),
		Enabled:          true,
	}
}

func TestRunCycle_DispatchesEveryOverdueJob(t *testing.T) {
	store := &mockStore{overdue: []domain.JobTracker{
		overdueTracker(domain.JobMonthlyAccrual),
		overdueTracker(domain.JobShiftGeneration),
		overdueTracker(domain.JobDeadlineNotification),
	}}
	runner := &mockRunner{}
	s := New(store, runner, time.Hour, zap.NewNop(),
		WithClock(testutil.NewFakeClock(time.Date(2024, 4, 15, 10, 0, 0, 0, time.UTC)).Now))

	s.runCycle(context.Background())

	if len(runner.recovered) != 3 {
		t.Fatalf("recovered = %v, want all 3 jobs", runner.recovered)
	}
}

func TestRunCycle_QueryFailureAbortsCycle(t *testing.T) {
	store := &mockStore{err: errors.New("connection refused")}
	runner := &mockRunner{}
	s := New(store, runner, time.Hour, zap.NewNop())

	s.runCycle(context.Background())

	if len(runner.recovered) != 0 {
		t.Errorf("nothing should be dispatched when the query fails, got %v", runner.recovered)
	}
}

func TestRunCycle_FailedRecoveryDoesNotStopOthers(t *testing.T) {
	store := &mockStore{overdue: []domain.JobTracker{
		overdueTracker(domain.JobMonthlyAccrual),
		overdueTracker(domain.JobShiftGeneration),
	}}
	runner := &mockRunner{results: map[string]domain.Result{
		domain.JobMonthlyAccrual: domain.Failed("balance table locked"),
	}}
	s := New(store, runner, time.Hour, zap.NewNop())

	s.runCycle(context.Background())

	if len(runner.recovered) != 2 {
		t.Errorf("recovered = %v, want both jobs attempted", runner.recovered)
	}
}

type sweepMetrics struct {
	mu         sync.Mutex
	sweeps     int
	errors     int
	dispatched int
	overdue    int
}

func (m *sweepMetrics) SweepCompleted(d time.Duration, dispatched int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweeps++
	m.dispatched += dispatched
	if err != nil {
		m.errors++
	}
}

func (m *sweepMetrics) OverdueJobsUpdate(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overdue = count
}

func TestRunCycle_ReportsMetrics(t *testing.T) {
	store := &mockStore{overdue: []domain.JobTracker{
		overdueTracker(domain.JobShiftGeneration),
	}}
	metrics := &sweepMetrics{}
	s := New(store, &mockRunner{}, time.Hour, zap.NewNop(), WithMetrics(metrics))

	s.runCycle(context.Background())

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if metrics.sweeps != 1 || metrics.dispatched != 1 || metrics.overdue != 1 {
		t.Errorf("metrics = %+v", metrics)
	}
}

func TestRun_FirstCycleIsImmediate(t *testing.T) {
	store := &mockStore{}
	s := New(store, &mockRunner{}, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	// The startup cycle must happen without waiting for the ticker.
	deadline := time.After(2 * time.Second)
	for {
		store.mu.Lock()
		calls := store.calls
		store.mu.Unlock()
		if calls >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("startup sweep never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}
