package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/repository"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

const statusCachePrefix = "sla:status:"

// SlaService is the SLA computation-and-recomputation engine: it resolves
// policies, evaluates breaches and owns the measurement records.
type SlaService struct {
	tickets      repository.TicketRepository
	policies     repository.PolicyRepository
	measurements repository.MeasurementRepository
	dispatcher   events.Dispatcher
	cache        *redis.Client
	metrics      *observability.Metrics
	logger       *zap.Logger
	cacheTTL     time.Duration
	warningAfter time.Duration
	now          func() time.Time
}

// SlaDependencies bundles collaborators for the SLA service.
type SlaDependencies struct {
	TicketRepo      repository.TicketRepository
	PolicyRepo      repository.PolicyRepository
	MeasurementRepo repository.MeasurementRepository
	Dispatcher      events.Dispatcher
	Cache           *redis.Client
	Metrics         *observability.Metrics
	Logger          *zap.Logger
	CacheTTL        time.Duration
	WarningWindow   time.Duration
	Clock           func() time.Time
}

// BatchResult summarizes one recomputation pass over open tickets.
type BatchResult struct {
	TotalProcessed int           `json:"total_processed"`
	Breached       int           `json:"breached"`
	WithinSla      int           `json:"within_sla"`
	Errors         []string      `json:"errors"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
}

// BreachStatus is the point-in-time breach view of a single ticket.
type BreachStatus struct {
	TicketID                      string            `json:"ticket_id"`
	IsBreached                    bool              `json:"is_breached"`
	ResponseBreached              bool              `json:"response_breached"`
	ResolutionBreached            bool              `json:"resolution_breached"`
	BreachType                    domain.BreachType `json:"breach_type,omitempty"`
	TimeToResponseBreachMinutes   *float64          `json:"time_to_response_breach_minutes"`
	TimeToResolutionBreachMinutes *float64          `json:"time_to_resolution_breach_minutes"`
	OverallStatus                 domain.SlaStatus  `json:"overall_status"`
}

// TicketSlaStatus combines the stored measurement with a live calculation.
type TicketSlaStatus struct {
	TicketID      string                 `json:"ticket_id"`
	TicketNumber  string                 `json:"ticket_number"`
	CurrentStatus domain.TicketStatus    `json:"current_status"`
	Priority      domain.TicketPriority  `json:"priority"`
	Category      domain.TicketCategory  `json:"category"`
	OpenedAt      time.Time              `json:"opened_at"`
	ResolvedAt    *time.Time             `json:"resolved_at"`
	SlaBreached   bool                   `json:"sla_breached"`
	Policy        *domain.SlaPolicy      `json:"policy"`
	Measurement   *domain.SlaMeasurement `json:"measurement"`
	Calculation   *Evaluation            `json:"calculation"`
}

// NewSlaService constructs the engine.
func NewSlaService(deps SlaDependencies) *SlaService {
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &SlaService{
		tickets:      deps.TicketRepo,
		policies:     deps.PolicyRepo,
		measurements: deps.MeasurementRepo,
		dispatcher:   deps.Dispatcher,
		cache:        deps.Cache,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		cacheTTL:     deps.CacheTTL,
		warningAfter: deps.WarningWindow,
		now:          clock,
	}
}

// ResolvePolicy picks the best-matching active policy for a ticket: an
// exact (category, priority) match first, then the earliest-created active
// policy for the priority alone. A nil result is not an error; it means no
// SLA applies.
func (s *SlaService) ResolvePolicy(ctx context.Context, ticket *domain.Ticket) (*domain.SlaPolicy, error) {
	policy, err := s.policies.FindActive(ctx, ticket.TenantID, ticket.Category, ticket.Priority)
	if err != nil {
		return nil, err
	}
	if policy != nil {
		return policy, nil
	}
	return s.policies.FindActiveByPriority(ctx, ticket.TenantID, ticket.Priority)
}

// Calculate resolves the ticket's policy and evaluates it at the current
// time. The returned evaluation is nil when no policy applies.
func (s *SlaService) Calculate(ctx context.Context, ticket *domain.Ticket) (*domain.SlaPolicy, *Evaluation, error) {
	policy, err := s.ResolvePolicy(ctx, ticket)
	if err != nil {
		return nil, nil, err
	}
	if policy == nil {
		s.logger.Debug("no SLA policy applies", zap.String("ticket_id", ticket.ID))
		return nil, nil, nil
	}

	firstResponseAt, err := s.firstResponse(ctx, ticket)
	if err != nil {
		return nil, nil, err
	}

	eval := Evaluate(ticket, policy, firstResponseAt, s.now())
	return policy, &eval, nil
}

// UpsertMeasurement recomputes the ticket's SLA state and persists it
// together with the denormalized sla_breached flag. It returns nil when no
// policy applies; the ticket and any existing flag are left untouched.
func (s *SlaService) UpsertMeasurement(ctx context.Context, ticketID string) (*domain.SlaMeasurement, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	policy, eval, err := s.Calculate(ctx, ticket)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, nil
	}

	existing, err := s.measurements.GetByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	wasBreached := existing != nil && existing.Breached()

	measurement := s.mergeMeasurement(existing, ticket, policy, *eval, now)

	if err := s.measurements.Save(ctx, measurement, measurement.Breached()); err != nil {
		return nil, err
	}
	s.invalidateStatusCache(ctx, ticket.TenantID, ticketID)

	if !wasBreached && measurement.Breached() {
		s.publishBreach(ctx, ticket, measurement)
	}

	return measurement, nil
}

// mergeMeasurement applies the update rules: immutable fields are fixed at
// creation, breach flags only ever flip to true, breached_at is set once.
func (s *SlaService) mergeMeasurement(existing *domain.SlaMeasurement, ticket *domain.Ticket, policy *domain.SlaPolicy, eval Evaluation, now time.Time) *domain.SlaMeasurement {
	if existing == nil {
		m := &domain.SlaMeasurement{
			ID:                 uuid.NewString(),
			TicketID:           ticket.ID,
			PolicyID:           policy.ID,
			Status:             eval.OverallStatus,
			ResponseTargetAt:   eval.ResponseTargetAt,
			FirstResponseAt:    eval.FirstResponseAt,
			ResponseBreached:   eval.ResponseBreached,
			ResolutionTargetAt: eval.ResolutionTargetAt,
			ResolvedAt:         ticket.ResolvedAt,
			ResolutionBreached: eval.ResolutionBreached,
			StartedAt:          ticket.OpenedAt,
		}
		if m.Breached() {
			m.BreachedAt = &now
		}
		return m
	}

	m := *existing
	m.FirstResponseAt = eval.FirstResponseAt
	m.ResolvedAt = ticket.ResolvedAt
	m.ResponseBreached = existing.ResponseBreached || eval.ResponseBreached
	m.ResolutionBreached = existing.ResolutionBreached || eval.ResolutionBreached
	m.Status = overallFor(ticket.CurrentStatus, m.Breached())
	if m.Breached() && m.BreachedAt == nil {
		m.BreachedAt = &now
	}
	return &m
}

// InitializeForTicket bootstraps a measurement when a ticket is created.
// Returns nil when no policy applies.
func (s *SlaService) InitializeForTicket(ctx context.Context, ticket *domain.Ticket) (*domain.SlaMeasurement, error) {
	policy, err := s.ResolvePolicy(ctx, ticket)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		s.logger.Info("no SLA policy for new ticket", zap.String("ticket_id", ticket.ID))
		return nil, nil
	}

	responseTargetAt, resolutionTargetAt := ComputeTargets(ticket, policy)
	measurement := &domain.SlaMeasurement{
		ID:                 uuid.NewString(),
		TicketID:           ticket.ID,
		PolicyID:           policy.ID,
		Status:             domain.SlaStatusActive,
		ResponseTargetAt:   responseTargetAt,
		ResolutionTargetAt: resolutionTargetAt,
		StartedAt:          ticket.OpenedAt,
	}

	if err := s.measurements.Save(ctx, measurement, false); err != nil {
		return nil, err
	}

	s.logger.Info("initialized SLA measurement",
		zap.String("ticket_id", ticket.ID),
		zap.Time("response_target_at", responseTargetAt),
		zap.Time("resolution_target_at", resolutionTargetAt))
	return measurement, nil
}

// ProcessAllOpenTickets recomputes SLA state for every open ticket. One
// ticket's failure never aborts the pass; failures are collected as
// strings. Only a failure to fetch the open-ticket set is returned as an
// error.
func (s *SlaService) ProcessAllOpenTickets(ctx context.Context, tenantID *string) (BatchResult, error) {
	startedAt := s.now()
	result := BatchResult{StartedAt: startedAt, Errors: []string{}}

	openTickets, err := s.tickets.ListOpen(ctx, tenantID)
	if err != nil {
		return result, fmt.Errorf("list open tickets: %w", err)
	}

	for i := range openTickets {
		ticket := &openTickets[i]
		measurement, err := s.UpsertMeasurement(ctx, ticket.ID)
		if err != nil {
			errMsg := fmt.Sprintf("ticket %s: %v", ticket.ID, err)
			s.logger.Error("sla batch: ticket failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
			result.Errors = append(result.Errors, errMsg)
			continue
		}

		result.TotalProcessed++
		if measurement != nil && measurement.Breached() {
			result.Breached++
			s.logger.Warn("sla breach detected",
				zap.String("ticket_number", ticket.TicketNumber),
				zap.Bool("response_breached", measurement.ResponseBreached),
				zap.Bool("resolution_breached", measurement.ResolutionBreached))
		} else {
			result.WithinSla++
		}
	}

	result.Duration = s.now().Sub(startedAt)
	s.logger.Info("sla batch completed",
		zap.Int("processed", result.TotalProcessed),
		zap.Int("breached", result.Breached),
		zap.Int("within_sla", result.WithinSla),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// ProcessTickets recomputes a specific subset of tickets for a tenant,
// with the same per-ticket failure isolation as the full batch.
func (s *SlaService) ProcessTickets(ctx context.Context, tenantID string, ticketIDs []string) (BatchResult, error) {
	startedAt := s.now()
	result := BatchResult{StartedAt: startedAt, Errors: []string{}}

	for _, ticketID := range ticketIDs {
		if _, err := s.getTenantTicket(ctx, tenantID, ticketID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("ticket %s: %v", ticketID, err))
			continue
		}
		measurement, err := s.UpsertMeasurement(ctx, ticketID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("ticket %s: %v", ticketID, err))
			continue
		}

		result.TotalProcessed++
		if measurement != nil && measurement.Breached() {
			result.Breached++
		} else {
			result.WithinSla++
		}
	}

	result.Duration = s.now().Sub(startedAt)
	return result, nil
}

// CheckBreach returns the live breach view of a ticket, including minutes
// remaining until each unresolved target is missed.
func (s *SlaService) CheckBreach(ctx context.Context, tenantID, ticketID string) (*BreachStatus, error) {
	ticket, err := s.getTenantTicket(ctx, tenantID, ticketID)
	if err != nil {
		return nil, err
	}

	_, eval, err := s.Calculate(ctx, ticket)
	if err != nil {
		return nil, err
	}

	status := &BreachStatus{TicketID: ticketID, OverallStatus: domain.SlaStatusActive}
	if eval == nil {
		return status, nil
	}

	toResponse, toResolution := TimeToBreach(ticket, *eval, s.now())
	status.ResponseBreached = eval.ResponseBreached
	status.ResolutionBreached = eval.ResolutionBreached
	status.IsBreached = eval.Breached()
	status.BreachType = eval.BreachKind()
	status.TimeToResponseBreachMinutes = toResponse
	status.TimeToResolutionBreachMinutes = toResolution
	status.OverallStatus = eval.OverallStatus
	return status, nil
}

// GetStatusForTicket combines the stored measurement, its policy and a live
// calculation. Results are cached briefly when a cache client is wired.
func (s *SlaService) GetStatusForTicket(ctx context.Context, tenantID, ticketID string) (*TicketSlaStatus, error) {
	if cached := s.cachedStatus(ctx, tenantID, ticketID); cached != nil {
		return cached, nil
	}

	ticket, err := s.getTenantTicket(ctx, tenantID, ticketID)
	if err != nil {
		return nil, err
	}

	_, eval, err := s.Calculate(ctx, ticket)
	if err != nil {
		return nil, err
	}

	status := &TicketSlaStatus{
		TicketID:      ticket.ID,
		TicketNumber:  ticket.TicketNumber,
		CurrentStatus: ticket.CurrentStatus,
		Priority:      ticket.Priority,
		Category:      ticket.Category,
		OpenedAt:      ticket.OpenedAt,
		ResolvedAt:    ticket.ResolvedAt,
		SlaBreached:   ticket.SlaBreached,
		Calculation:   eval,
	}

	measurement, err := s.measurements.GetByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if measurement != nil {
		status.Measurement = measurement
		// The measurement's policy, not the one that would resolve today:
		// the contract is fixed at measurement creation.
		policy, err := s.policies.GetByID(ctx, measurement.PolicyID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		status.Policy = policy
	}

	s.storeStatusCache(ctx, tenantID, ticketID, status)
	return status, nil
}

// RecalcSingle recomputes one ticket on demand and returns its fresh
// status snapshot. Fails with NotFound when the ticket is unknown.
func (s *SlaService) RecalcSingle(ctx context.Context, tenantID, ticketID string) (*TicketSlaStatus, error) {
	if _, err := s.getTenantTicket(ctx, tenantID, ticketID); err != nil {
		return nil, err
	}
	if _, err := s.UpsertMeasurement(ctx, ticketID); err != nil {
		return nil, err
	}
	return s.GetStatusForTicket(ctx, tenantID, ticketID)
}

// ListMeasurements exposes stored measurements for the admin surface.
func (s *SlaService) ListMeasurements(ctx context.Context, tenantID string, filter repository.MeasurementFilter) ([]domain.SlaMeasurement, error) {
	return s.measurements.List(ctx, tenantID, filter)
}

// CheckWarnings sweeps open tickets and publishes a warning event for each
// one within the warning window of either target. Best effort.
func (s *SlaService) CheckWarnings(ctx context.Context, tenantID *string) error {
	if s.warningAfter <= 0 {
		return nil
	}
	openTickets, err := s.tickets.ListOpen(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("list open tickets: %w", err)
	}

	threshold := s.warningAfter.Minutes()
	for i := range openTickets {
		ticket := &openTickets[i]
		_, eval, err := s.Calculate(ctx, ticket)
		if err != nil {
			s.logger.Error("sla warning sweep: ticket failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
			continue
		}
		if eval == nil {
			continue
		}

		toResponse, toResolution := TimeToBreach(ticket, *eval, s.now())
		if toResponse != nil && *toResponse > 0 && *toResponse <= threshold {
			s.publishWarning(ctx, ticket, domain.BreachTypeResponse, *toResponse)
		}
		if toResolution != nil && *toResolution > 0 && *toResolution <= threshold {
			s.publishWarning(ctx, ticket, domain.BreachTypeResolution, *toResolution)
		}
	}
	return nil
}

func (s *SlaService) getTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}
	return ticket, nil
}

func (s *SlaService) getTenantTicket(ctx context.Context, tenantID, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.TenantID != tenantID {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return ticket, nil
}

func (s *SlaService) firstResponse(ctx context.Context, ticket *domain.Ticket) (*time.Time, error) {
	worklogs, err := s.tickets.ListWorklogs(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	history, err := s.tickets.ListStatusHistory(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	return FirstResponseAt(worklogs, history), nil
}

func (s *SlaService) publishBreach(ctx context.Context, ticket *domain.Ticket, m *domain.SlaMeasurement) {
	breachType := m.BreachKind()
	s.metrics.ObserveBreach(string(breachType))
	if s.dispatcher == nil {
		return
	}
	breachedAt := s.now()
	if m.BreachedAt != nil {
		breachedAt = *m.BreachedAt
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventSlaBreached,
		TicketID:  ticket.ID,
		Timestamp: s.now(),
		Payload: events.SlaBreachedPayload{
			TicketNumber:       ticket.TicketNumber,
			BreachType:         breachType,
			ResponseBreached:   m.ResponseBreached,
			ResolutionBreached: m.ResolutionBreached,
			ResponseTargetAt:   m.ResponseTargetAt,
			ResolutionTargetAt: m.ResolutionTargetAt,
			BreachedAt:         breachedAt,
		},
	})
}

func (s *SlaService) publishWarning(ctx context.Context, ticket *domain.Ticket, warningType domain.BreachType, minutesRemaining float64) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventSlaWarning,
		TicketID:  ticket.ID,
		Timestamp: s.now(),
		Payload: events.SlaWarningPayload{
			TicketNumber:     ticket.TicketNumber,
			WarningType:      warningType,
			MinutesRemaining: minutesRemaining,
		},
	})
}

func statusCacheKey(tenantID, ticketID string) string {
	return statusCachePrefix + tenantID + ":" + ticketID
}

func (s *SlaService) cachedStatus(ctx context.Context, tenantID, ticketID string) *TicketSlaStatus {
	if s.cache == nil || s.cacheTTL <= 0 {
		return nil
	}
	raw, err := s.cache.Get(ctx, statusCacheKey(tenantID, ticketID)).Bytes()
	if err != nil {
		return nil
	}
	var status TicketSlaStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil
	}
	return &status
}

func (s *SlaService) storeStatusCache(ctx context.Context, tenantID, ticketID string, status *TicketSlaStatus) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(status)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, statusCacheKey(tenantID, ticketID), raw, s.cacheTTL).Err(); err != nil {
		s.logger.Debug("sla status cache set failed", zap.Error(err))
	}
}

func (s *SlaService) invalidateStatusCache(ctx context.Context, tenantID, ticketID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, statusCacheKey(tenantID, ticketID)).Err(); err != nil {
		s.logger.Debug("sla status cache invalidation failed", zap.Error(err))
	}
}

func overallFor(status domain.TicketStatus, breached bool) domain.SlaStatus {
	switch {
	case status == domain.TicketStatusCancelled:
		return domain.SlaStatusCancelled
	case status == domain.TicketStatusResolved || status == domain.TicketStatusClosed:
		if breached {
			return domain.SlaStatusBreached
		}
		return domain.SlaStatusMet
	case breached:
		return domain.SlaStatusBreached
	default:
		return domain.SlaStatusActive
	}
}
