package events

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSlaBreached EventType = "sla_breached"
	EventSlaWarning  EventType = "sla_warning"
)

// Event represents a domain event emitted by the engine.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// SlaBreachedPayload describes a newly detected breach.
type SlaBreachedPayload struct {
	TicketNumber       string            `json:"ticket_number"`
	BreachType         domain.BreachType `json:"breach_type"`
	ResponseBreached   bool              `json:"response_breached"`
	ResolutionBreached bool              `json:"resolution_breached"`
	ResponseTargetAt   time.Time         `json:"response_target_at"`
	ResolutionTargetAt time.Time         `json:"resolution_target_at"`
	BreachedAt         time.Time         `json:"breached_at"`
}

// SlaWarningPayload describes a ticket approaching breach.
type SlaWarningPayload struct {
	TicketNumber     string            `json:"ticket_number"`
	WarningType      domain.BreachType `json:"warning_type"`
	MinutesRemaining float64           `json:"minutes_remaining"`
}
