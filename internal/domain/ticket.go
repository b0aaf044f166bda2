package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew             TicketStatus = "NEW"
	TicketStatusAssigned        TicketStatus = "ASSIGNED"
	TicketStatusInProgress      TicketStatus = "IN_PROGRESS"
	TicketStatusPendingCustomer TicketStatus = "PENDING_CUSTOMER"
	TicketStatusPendingVendor   TicketStatus = "PENDING_VENDOR"
	TicketStatusResolved        TicketStatus = "RESOLVED"
	TicketStatusClosed          TicketStatus = "CLOSED"
	TicketStatusCancelled       TicketStatus = "CANCELLED"
)

// IsTerminal reports whether a status ends the ticket lifecycle.
func (s TicketStatus) IsTerminal() bool {
	switch s {
	case TicketStatusResolved, TicketStatusClosed, TicketStatusCancelled:
		return true
	}
	return false
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityCritical TicketPriority = "CRITICAL"
	TicketPriorityHigh     TicketPriority = "HIGH"
	TicketPriorityMedium   TicketPriority = "MEDIUM"
	TicketPriorityLow      TicketPriority = "LOW"
)

// TicketCategory classifies the kind of issue reported.
type TicketCategory string

const (
	TicketCategoryHardware  TicketCategory = "HARDWARE"
	TicketCategorySoftware  TicketCategory = "SOFTWARE"
	TicketCategoryNetwork   TicketCategory = "NETWORK"
	TicketCategoryPower     TicketCategory = "POWER"
	TicketCategoryConnector TicketCategory = "CONNECTOR"
	TicketCategoryFirmware  TicketCategory = "FIRMWARE"
	TicketCategoryOther     TicketCategory = "OTHER"
)

// Ticket is the support-request aggregate this engine measures. Tickets are
// owned by the ticketing collaborator; the engine reads them and writes
// exactly one field back, SlaBreached.
type Ticket struct {
	ID            string
	TenantID      string
	TicketNumber  string
	Title         string
	Category      TicketCategory
	Priority      TicketPriority
	CurrentStatus TicketStatus
	OpenedAt      time.Time
	ResolvedAt    *time.Time
	ClosedAt      *time.Time
	SlaBreached   bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsOpen reports whether the ticket still counts toward SLA recomputation.
func (t *Ticket) IsOpen() bool {
	return !t.CurrentStatus.IsTerminal()
}

// StatusTransition is an immutable status-history entry.
type StatusTransition struct {
	ID         string
	TicketID   string
	FromStatus *TicketStatus
	ToStatus   TicketStatus
	Reason     string
	ChangedBy  string
	ChangedAt  time.Time
}
