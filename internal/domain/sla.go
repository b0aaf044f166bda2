package domain

import "time"

// SlaStatus enumerates the overall state of a measurement.
type SlaStatus string

const (
	SlaStatusActive    SlaStatus = "ACTIVE"
	SlaStatusMet       SlaStatus = "MET"
	SlaStatusBreached  SlaStatus = "BREACHED"
	SlaStatusCancelled SlaStatus = "CANCELLED"
)

// BreachType identifies which SLA dimension was missed.
type BreachType string

const (
	BreachTypeResponse   BreachType = "response"
	BreachTypeResolution BreachType = "resolution"
	BreachTypeBoth       BreachType = "both"
)

// SlaPolicy maps a (category, priority) pair to time budgets for a tenant.
// Policies are deactivated rather than deleted so historical measurements
// keep a valid reference.
type SlaPolicy struct {
	ID                    string
	TenantID              string
	Category              TicketCategory
	Priority              TicketPriority
	ResponseTimeMinutes   int
	ResolutionTimeMinutes int
	IsActive              bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// SlaMeasurement is the durable per-ticket record of targets, actuals and
// breach state. One measurement per ticket.
//
// PolicyID, ResponseTargetAt, ResolutionTargetAt and StartedAt are fixed at
// creation: a ticket's SLA contract does not change even if policies do.
// ResponseBreached and ResolutionBreached only ever flip false->true.
// BreachedAt is set the first time either flag flips and never cleared.
type SlaMeasurement struct {
	ID                 string
	TicketID           string
	PolicyID           string
	Status             SlaStatus
	ResponseTargetAt   time.Time
	FirstResponseAt    *time.Time
	ResponseBreached   bool
	ResolutionTargetAt time.Time
	ResolvedAt         *time.Time
	ResolutionBreached bool
	StartedAt          time.Time
	BreachedAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Breached reports whether either SLA dimension has been missed.
func (m *SlaMeasurement) Breached() bool {
	return m.ResponseBreached || m.ResolutionBreached
}

// BreachKind returns which dimension breached, or empty when none has.
func (m *SlaMeasurement) BreachKind() BreachType {
	switch {
	case m.ResponseBreached && m.ResolutionBreached:
		return BreachTypeBoth
	case m.ResponseBreached:
		return BreachTypeResponse
	case m.ResolutionBreached:
		return BreachTypeResolution
	}
	return ""
}
