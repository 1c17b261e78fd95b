package channel

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/officina-hr/jobengine/internal/domain"
)

func newTestEvent(jobName string) domain.RunEvent {
	now := time.Now().UTC()
	return domain.RunEvent{
		RunID:      uuid.New(),
		JobName:    jobName,
		Outcome:    domain.RunOutcomeSuccess,
		StartedAt:  now.Add(-time.Second),
		FinishedAt: now,
	}
}

func TestRunEventBus_EmitAndReceive(t *testing.T) {
	bus := NewRunEventBus(10)
	event := newTestEvent(domain.JobMonthlyAccrual)

	if !bus.Emit(event) {
		t.Fatal("Emit rejected event with empty buffer")
	}

	select {
	case got := <-bus.Channel():
		if got.RunID != event.RunID {
			t.Errorf("RunID = %v, want %v", got.RunID, event.RunID)
		}
		if got.JobName != domain.JobMonthlyAccrual {
			t.Errorf("JobName = %q, want %q", got.JobName, domain.JobMonthlyAccrual)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event on channel")
	}
}

type countingMetrics struct {
	dropped atomic.Int64
}

func (m *countingMetrics) RunEventDropped() {
	m.dropped.Add(1)
}

func TestRunEventBus_BufferFullDropsEvent(t *testing.T) {
	metrics := &countingMetrics{}
	bus := NewRunEventBus(1, WithMetrics(metrics))

	if !bus.Emit(newTestEvent(domain.JobShiftGeneration)) {
		t.Fatal("first Emit should be accepted")
	}
	if bus.Emit(newTestEvent(domain.JobShiftGeneration)) {
		t.Error("second Emit should be dropped when buffer is full")
	}
	if got := metrics.dropped.Load(); got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}
}

func TestRunEventBus_ConcurrentEmit(t *testing.T) {
	const numGoroutines = 10
	const eventsPerGoroutine = 100

	bus := NewRunEventBus(numGoroutines * eventsPerGoroutine)

	var received atomic.Int64
	done := make(chan struct{})
	go func() {
		for range bus.Channel() {
			if received.Add(1) == numGoroutines*eventsPerGoroutine {
				close(done)
				return
			}
		}
	}()

	var wg sync.WaitGroup
	var rejected atomic.Int64
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				if !bus.Emit(newTestEvent(domain.JobDeadlineNotification)) {
					rejected.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("received %d of %d events", received.Load(), numGoroutines*eventsPerGoroutine)
	}

	if rejected.Load() > 0 {
		t.Errorf("had %d rejected events with a full-size buffer", rejected.Load())
	}
}

func TestRunEventBus_CloseEndsConsumers(t *testing.T) {
	bus := NewRunEventBus(1)
	bus.Close()

	select {
	case _, ok := <-bus.Channel():
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout reading closed channel")
	}
}
