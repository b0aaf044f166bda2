package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/service"
)

// Scheduler drives periodic SLA recomputation over all open tickets. It is
// an explicitly constructed, owned component: build one in main, Start it
// after boot, Stop it on shutdown. There is no package-level instance.
type Scheduler struct {
	sla      *service.SlaService
	metrics  *observability.Metrics
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time

	mu         sync.Mutex
	running    bool
	stopCh     chan struct{}
	doneCh     chan struct{}
	lastRun    *time.Time
	runCount   int64
	errorCount int64
}

// Status reports scheduler bookkeeping for the operator surface.
type Status struct {
	Running          bool       `json:"running"`
	IntervalSeconds  int        `json:"interval_seconds"`
	LastRun          *time.Time `json:"last_run"`
	RunCount         int64      `json:"run_count"`
	ErrorCount       int64      `json:"error_count"`
	NextRunInSeconds *int       `json:"next_run_in_seconds"`
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) { s.now = clock }
}

// New builds a stopped scheduler.
func New(sla *service.SlaService, metrics *observability.Metrics, logger *zap.Logger, interval time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		sla:      sla,
		metrics:  metrics,
		logger:   logger,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the scheduler loop. Calling Start on a running scheduler
// is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("sla scheduler already running")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SchedulerRunning.Set(1)
	}
	s.logger.Info("sla scheduler started", zap.Duration("interval", s.interval))

	go s.loop(stopCh, doneCh)
}

// Stop requests shutdown and waits for the loop to exit. A pending sleep
// is cancelled immediately; a tick already in progress runs to completion.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.logger.Warn("sla scheduler is not running")
		return
	}
	s.running = false
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)
	<-doneCh

	if s.metrics != nil {
		s.metrics.SchedulerRunning.Set(0)
	}
	s.logger.Info("sla scheduler stopped")
}

func (s *Scheduler) loop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-timer.C:
		}

		// A stop request must not abort a tick mid-ticket, so the run gets
		// a fresh context rather than one tied to the stop signal.
		if _, err := s.runOnce(context.Background()); err != nil {
			s.logger.Error("sla scheduler tick failed", zap.Error(err))
		}

		timer.Reset(s.interval)
	}
}

// TriggerNow executes one recomputation pass outside the schedule. It is
// safe to call while the loop is running: per-ticket upserts are
// independent and idempotent, and the run counters share one mutex.
func (s *Scheduler) TriggerNow(ctx context.Context) (service.BatchResult, error) {
	return s.runOnce(ctx)
}

func (s *Scheduler) runOnce(ctx context.Context) (service.BatchResult, error) {
	start := s.now()
	result, err := s.sla.ProcessAllOpenTickets(ctx, nil)
	elapsed := s.now().Sub(start)

	s.mu.Lock()
	if err != nil {
		s.errorCount++
	} else {
		completedAt := s.now()
		s.lastRun = &completedAt
		s.runCount++
	}
	s.mu.Unlock()

	if err != nil {
		s.metrics.ObserveBatch("error", 0, 0, elapsed)
		return result, err
	}
	s.metrics.ObserveBatch("success", result.TotalProcessed, len(result.Errors), elapsed)

	if err := s.sla.CheckWarnings(ctx, nil); err != nil {
		s.logger.Warn("sla warning sweep failed", zap.Error(err))
	}
	return result, nil
}

// Status returns current scheduler bookkeeping.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		Running:         s.running,
		IntervalSeconds: int(s.interval / time.Second),
		LastRun:         s.lastRun,
		RunCount:        s.runCount,
		ErrorCount:      s.errorCount,
	}

	if s.running && s.lastRun != nil {
		elapsed := s.now().Sub(*s.lastRun)
		remaining := int((s.interval - elapsed) / time.Second)
		if remaining < 0 {
			remaining = 0
		}
		status.NextRunInSeconds = &remaining
	}
	return status
}
