package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/repository"
	"github.com/spec-kit/sla-engine/internal/scheduler"
	"github.com/spec-kit/sla-engine/internal/service"
)

var opened = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type stubTicketRepo struct {
	mu         sync.Mutex
	tickets    []domain.Ticket
	worklogErr map[string]error
	listErr    error
}

func (r *stubTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.tickets {
		if r.tickets[i].ID == id {
			copied := r.tickets[i]
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *stubTicketRepo) ListOpen(_ context.Context, _ *string) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	return append([]domain.Ticket{}, r.tickets...), nil
}

func (r *stubTicketRepo) ListStatusHistory(_ context.Context, _ string) ([]domain.StatusTransition, error) {
	return nil, nil
}

func (r *stubTicketRepo) ListWorklogs(_ context.Context, ticketID string) ([]domain.Worklog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.worklogErr[ticketID]; err != nil {
		return nil, err
	}
	return nil, nil
}

type stubPolicyRepo struct {
	policy *domain.SlaPolicy
}

func (r *stubPolicyRepo) FindActive(_ context.Context, _ string, _ domain.TicketCategory, _ domain.TicketPriority) (*domain.SlaPolicy, error) {
	return r.policy, nil
}

func (r *stubPolicyRepo) FindActiveByPriority(_ context.Context, _ string, _ domain.TicketPriority) (*domain.SlaPolicy, error) {
	return nil, nil
}

func (r *stubPolicyRepo) GetByID(_ context.Context, _ string) (*domain.SlaPolicy, error) {
	return nil, pgx.ErrNoRows
}

func (r *stubPolicyRepo) List(_ context.Context, _ string, _ repository.PolicyFilter) ([]domain.SlaPolicy, error) {
	return nil, nil
}

func (r *stubPolicyRepo) Create(_ context.Context, _ *domain.SlaPolicy) error { return nil }
func (r *stubPolicyRepo) Update(_ context.Context, _ *domain.SlaPolicy) error { return nil }

type stubMeasurementRepo struct {
	mu       sync.Mutex
	byTicket map[string]*domain.SlaMeasurement
}

func (r *stubMeasurementRepo) GetByTicket(_ context.Context, ticketID string) (*domain.SlaMeasurement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byTicket[ticketID]
	if !ok {
		return nil, nil
	}
	copied := *m
	return &copied, nil
}

func (r *stubMeasurementRepo) List(_ context.Context, _ string, _ repository.MeasurementFilter) ([]domain.SlaMeasurement, error) {
	return nil, nil
}

func (r *stubMeasurementRepo) Save(_ context.Context, m *domain.SlaMeasurement, _ bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byTicket == nil {
		r.byTicket = map[string]*domain.SlaMeasurement{}
	}
	copied := *m
	r.byTicket[m.TicketID] = &copied
	return nil
}

type schedFixture struct {
	tickets *stubTicketRepo
	clock   *testClock
	sched   *scheduler.Scheduler
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newSchedFixture(t *testing.T, interval time.Duration) *schedFixture {
	t.Helper()

	tickets := &stubTicketRepo{
		tickets: []domain.Ticket{{
			ID:            "ticket-1",
			TenantID:      "tenant-1",
			TicketNumber:  "TKT-0001",
			Category:      domain.TicketCategoryHardware,
			Priority:      domain.TicketPriorityHigh,
			CurrentStatus: domain.TicketStatusNew,
			OpenedAt:      opened,
		}},
		worklogErr: map[string]error{},
	}
	clock := &testClock{t: opened.Add(10 * time.Minute)}

	sla := service.NewSlaService(service.SlaDependencies{
		TicketRepo: tickets,
		PolicyRepo: &stubPolicyRepo{policy: &domain.SlaPolicy{
			ID:                    "policy-1",
			TenantID:              "tenant-1",
			Category:              domain.TicketCategoryHardware,
			Priority:              domain.TicketPriorityHigh,
			ResponseTimeMinutes:   30,
			ResolutionTimeMinutes: 240,
			IsActive:              true,
		}},
		MeasurementRepo: &stubMeasurementRepo{},
		Logger:          zap.NewNop(),
		Clock:           clock.Now,
	})

	return &schedFixture{
		tickets: tickets,
		clock:   clock,
		sched:   scheduler.New(sla, nil, zap.NewNop(), interval, scheduler.WithClock(clock.Now)),
	}
}

func TestTriggerNowUpdatesCounters(t *testing.T) {
	f := newSchedFixture(t, time.Hour)

	result, err := f.sched.TriggerNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalProcessed)
	assert.Empty(t, result.Errors)

	status := f.sched.Status()
	assert.Equal(t, int64(1), status.RunCount)
	assert.Equal(t, int64(0), status.ErrorCount)
	require.NotNil(t, status.LastRun)
	assert.Equal(t, f.clock.Now(), *status.LastRun)
}

func TestTriggerNowFetchFailureCountsError(t *testing.T) {
	f := newSchedFixture(t, time.Hour)
	f.tickets.listErr = errors.New("connection refused")

	_, err := f.sched.TriggerNow(context.Background())
	require.Error(t, err)

	status := f.sched.Status()
	assert.Equal(t, int64(0), status.RunCount)
	assert.Equal(t, int64(1), status.ErrorCount)
	assert.Nil(t, status.LastRun)
}

func TestTriggerNowIsolatesTicketFailures(t *testing.T) {
	f := newSchedFixture(t, time.Hour)
	f.tickets.worklogErr["ticket-1"] = errors.New("worklog query timeout")

	result, err := f.sched.TriggerNow(context.Background())
	require.NoError(t, err, "per-ticket failures never fail the run")
	assert.Equal(t, 0, result.TotalProcessed)
	assert.Len(t, result.Errors, 1)
	assert.Equal(t, int64(1), f.sched.Status().RunCount)
}

func TestStartStopLifecycle(t *testing.T) {
	f := newSchedFixture(t, time.Hour)

	assert.False(t, f.sched.Status().Running)

	f.sched.Start()
	assert.True(t, f.sched.Status().Running)

	// Second Start is a no-op, not a second loop.
	f.sched.Start()

	// Stop cancels the pending one-hour sleep instead of waiting it out.
	done := make(chan struct{})
	go func() {
		f.sched.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return while the loop was sleeping")
	}
	assert.False(t, f.sched.Status().Running)

	// Stopping again is harmless.
	f.sched.Stop()
}

func TestLoopRunsOnInterval(t *testing.T) {
	f := newSchedFixture(t, 5*time.Millisecond)

	f.sched.Start()
	defer f.sched.Stop()

	require.Eventually(t, func() bool {
		return f.sched.Status().RunCount >= 2
	}, 5*time.Second, time.Millisecond)
}

func TestStatusNextRun(t *testing.T) {
	f := newSchedFixture(t, time.Hour)

	// Not running: no projection.
	assert.Nil(t, f.sched.Status().NextRunInSeconds)

	f.sched.Start()
	defer f.sched.Stop()

	// Running but never run: still no projection.
	assert.Nil(t, f.sched.Status().NextRunInSeconds)

	_, err := f.sched.TriggerNow(context.Background())
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	status := f.sched.Status()
	require.NotNil(t, status.NextRunInSeconds)
	assert.Equal(t, 50*60, *status.NextRunInSeconds)

	// Past due clamps to zero.
	f.clock.Advance(2 * time.Hour)
	status = f.sched.Status()
	require.NotNil(t, status.NextRunInSeconds)
	assert.Equal(t, 0, *status.NextRunInSeconds)
}
