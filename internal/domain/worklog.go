package domain

import "time"

// WorkType categorizes the work recorded in a worklog entry.
type WorkType string

const (
	WorkTypeDiagnosis     WorkType = "DIAGNOSIS"
	WorkTypeRepair        WorkType = "REPAIR"
	WorkTypeTesting       WorkType = "TESTING"
	WorkTypeCommunication WorkType = "COMMUNICATION"
	WorkTypeTravel        WorkType = "TRAVEL"
	WorkTypeWaiting       WorkType = "WAITING"
	WorkTypeOther         WorkType = "OTHER"
)

// Worklog records work performed on a ticket. Non-internal entries are
// visible to the customer and count as a first response.
type Worklog struct {
	ID               string
	TicketID         string
	Body             string
	WorkType         WorkType
	TimeSpentMinutes *int
	IsInternal       bool
	AuthorID         string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
