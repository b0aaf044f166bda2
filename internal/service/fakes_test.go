package service_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/repository"
)

// fakeClock is a settable time source shared between test and service.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type fakeTicketRepo struct {
	mu         sync.Mutex
	tickets    map[string]*domain.Ticket
	worklogs   map[string][]domain.Worklog
	history    map[string][]domain.StatusTransition
	worklogErr map[string]error
	listErr    error
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{
		tickets:    map[string]*domain.Ticket{},
		worklogs:   map[string][]domain.Worklog{},
		history:    map[string][]domain.StatusTransition{},
		worklogErr: map[string]error{},
	}
}

func (r *fakeTicketRepo) add(ticket *domain.Ticket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *ticket
	r.tickets[ticket.ID] = &copied
}

func (r *fakeTicketRepo) get(id string) *domain.Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tickets[id]
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *ticket
	return &copied, nil
}

func (r *fakeTicketRepo) ListOpen(_ context.Context, tenantID *string) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if !ticket.IsOpen() {
			continue
		}
		if tenantID != nil && ticket.TenantID != *tenantID {
			continue
		}
		result = append(result, *ticket)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].OpenedAt.Before(result[j].OpenedAt) })
	return result, nil
}

func (r *fakeTicketRepo) ListStatusHistory(_ context.Context, ticketID string) ([]domain.StatusTransition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history[ticketID], nil
}

func (r *fakeTicketRepo) ListWorklogs(_ context.Context, ticketID string) ([]domain.Worklog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.worklogErr[ticketID]; err != nil {
		return nil, err
	}
	return r.worklogs[ticketID], nil
}

type fakePolicyRepo struct {
	mu       sync.Mutex
	policies []domain.SlaPolicy
}

func (r *fakePolicyRepo) add(policy domain.SlaPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies = append(r.policies, policy)
}

func (r *fakePolicyRepo) FindActive(_ context.Context, tenantID string, category domain.TicketCategory, priority domain.TicketPriority) (*domain.SlaPolicy, error) {
	return r.earliest(func(p domain.SlaPolicy) bool {
		return p.IsActive && p.TenantID == tenantID && p.Category == category && p.Priority == priority
	}), nil
}

func (r *fakePolicyRepo) FindActiveByPriority(_ context.Context, tenantID string, priority domain.TicketPriority) (*domain.SlaPolicy, error) {
	return r.earliest(func(p domain.SlaPolicy) bool {
		return p.IsActive && p.TenantID == tenantID && p.Priority == priority
	}), nil
}

func (r *fakePolicyRepo) earliest(match func(domain.SlaPolicy) bool) *domain.SlaPolicy {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *domain.SlaPolicy
	for i := range r.policies {
		p := r.policies[i]
		if !match(p) {
			continue
		}
		if best == nil || p.CreatedAt.Before(best.CreatedAt) {
			copied := p
			best = &copied
		}
	}
	return best
}

func (r *fakePolicyRepo) GetByID(_ context.Context, id string) (*domain.SlaPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.policies {
		if r.policies[i].ID == id {
			copied := r.policies[i]
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakePolicyRepo) List(_ context.Context, tenantID string, filter repository.PolicyFilter) ([]domain.SlaPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.SlaPolicy
	for _, p := range r.policies {
		if p.TenantID != tenantID {
			continue
		}
		if filter.ActiveOnly && !p.IsActive {
			continue
		}
		if filter.Category != nil && p.Category != *filter.Category {
			continue
		}
		if filter.Priority != nil && p.Priority != *filter.Priority {
			continue
		}
		result = append(result, p)
	}
	return result, nil
}

func (r *fakePolicyRepo) Create(_ context.Context, policy *domain.SlaPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if policy.ID == "" {
		policy.ID = uuid.NewString()
	}
	if policy.CreatedAt.IsZero() {
		policy.CreatedAt = time.Now().UTC()
	}
	policy.UpdatedAt = policy.CreatedAt
	r.policies = append(r.policies, *policy)
	return nil
}

func (r *fakePolicyRepo) Update(_ context.Context, policy *domain.SlaPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.policies {
		if r.policies[i].ID == policy.ID {
			r.policies[i].ResponseTimeMinutes = policy.ResponseTimeMinutes
			r.policies[i].ResolutionTimeMinutes = policy.ResolutionTimeMinutes
			r.policies[i].IsActive = policy.IsActive
			return nil
		}
	}
	return pgx.ErrNoRows
}

// fakeMeasurementRepo mimics the transactional Save: the measurement row and
// the ticket's sla_breached flag are written together or not at all.
type fakeMeasurementRepo struct {
	mu       sync.Mutex
	byTicket map[string]*domain.SlaMeasurement
	tickets  *fakeTicketRepo
	saveErr  map[string]error
	saves    int
}

func newFakeMeasurementRepo(tickets *fakeTicketRepo) *fakeMeasurementRepo {
	return &fakeMeasurementRepo{
		byTicket: map[string]*domain.SlaMeasurement{},
		tickets:  tickets,
		saveErr:  map[string]error{},
	}
}

func (r *fakeMeasurementRepo) GetByTicket(_ context.Context, ticketID string) (*domain.SlaMeasurement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byTicket[ticketID]
	if !ok {
		return nil, nil
	}
	copied := *m
	return &copied, nil
}

func (r *fakeMeasurementRepo) List(_ context.Context, tenantID string, filter repository.MeasurementFilter) ([]domain.SlaMeasurement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.SlaMeasurement
	for _, m := range r.byTicket {
		ticket := r.tickets.get(m.TicketID)
		if ticket == nil || ticket.TenantID != tenantID {
			continue
		}
		if filter.Status != nil && m.Status != *filter.Status {
			continue
		}
		if filter.ResponseBreached != nil && m.ResponseBreached != *filter.ResponseBreached {
			continue
		}
		if filter.ResolutionBreached != nil && m.ResolutionBreached != *filter.ResolutionBreached {
			continue
		}
		result = append(result, *m)
	}
	return result, nil
}

func (r *fakeMeasurementRepo) Save(_ context.Context, measurement *domain.SlaMeasurement, slaBreached bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.saveErr[measurement.TicketID]; err != nil {
		return err
	}
	ticket := r.tickets.get(measurement.TicketID)
	if ticket == nil {
		return pgx.ErrNoRows
	}
	if measurement.ID == "" {
		measurement.ID = uuid.NewString()
	}
	copied := *measurement
	r.byTicket[measurement.TicketID] = &copied
	ticket.SlaBreached = slaBreached
	r.saves++
	return nil
}

func (r *fakeMeasurementRepo) seed(m domain.SlaMeasurement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byTicket[m.TicketID] = &m
}

func (r *fakeMeasurementRepo) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

type recordingDispatcher struct {
	mu        sync.Mutex
	published []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.published = append(d.published, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) byType(eventType events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var result []events.Event
	for _, e := range d.published {
		if e.Type == eventType {
			result = append(result, e)
		}
	}
	return result
}
