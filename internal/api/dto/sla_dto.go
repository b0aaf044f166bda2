package dto

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/service"
)

// CreatePolicyRequest payload.
type CreatePolicyRequest struct {
	Category              domain.TicketCategory `json:"category"`
	Priority              domain.TicketPriority `json:"priority"`
	ResponseTimeMinutes   int                   `json:"response_time_minutes"`
	ResolutionTimeMinutes int                   `json:"resolution_time_minutes"`
}

// UpdatePolicyRequest payload; absent fields leave the policy unchanged.
type UpdatePolicyRequest struct {
	ResponseTimeMinutes   *int  `json:"response_time_minutes"`
	ResolutionTimeMinutes *int  `json:"resolution_time_minutes"`
	IsActive              *bool `json:"is_active"`
}

// PolicyResponse representation.
type PolicyResponse struct {
	ID                    string                `json:"id"`
	TenantID              string                `json:"tenant_id"`
	Category              domain.TicketCategory `json:"category"`
	Priority              domain.TicketPriority `json:"priority"`
	ResponseTimeMinutes   int                   `json:"response_time_minutes"`
	ResolutionTimeMinutes int                   `json:"resolution_time_minutes"`
	IsActive              bool                  `json:"is_active"`
	CreatedAt             time.Time             `json:"created_at"`
	UpdatedAt             time.Time             `json:"updated_at"`
}

// PolicyListResponse wraps a policy listing.
type PolicyListResponse struct {
	Policies []PolicyResponse `json:"policies"`
	Total    int              `json:"total"`
}

// MeasurementResponse representation.
type MeasurementResponse struct {
	ID                 string           `json:"id"`
	TicketID           string           `json:"ticket_id"`
	PolicyID           string           `json:"policy_id"`
	Status             domain.SlaStatus `json:"status"`
	ResponseTargetAt   time.Time        `json:"response_target_at"`
	FirstResponseAt    *time.Time       `json:"first_response_at"`
	ResponseBreached   bool             `json:"response_breached"`
	ResolutionTargetAt time.Time        `json:"resolution_target_at"`
	ResolvedAt         *time.Time       `json:"resolved_at"`
	ResolutionBreached bool             `json:"resolution_breached"`
	StartedAt          time.Time        `json:"started_at"`
	BreachedAt         *time.Time       `json:"breached_at"`
}

// RecalculationRequest optionally restricts a batch run to specific tickets.
type RecalculationRequest struct {
	TicketIDs []string `json:"ticket_ids"`
}

// BatchResultResponse summarizes a recomputation pass.
type BatchResultResponse struct {
	TotalProcessed  int       `json:"total_processed"`
	Breached        int       `json:"breached"`
	WithinSla       int       `json:"within_sla"`
	Errors          []string  `json:"errors"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// FromPolicy maps a domain policy.
func FromPolicy(p *domain.SlaPolicy) PolicyResponse {
	return PolicyResponse{
		ID:                    p.ID,
		TenantID:              p.TenantID,
		Category:              p.Category,
		Priority:              p.Priority,
		ResponseTimeMinutes:   p.ResponseTimeMinutes,
		ResolutionTimeMinutes: p.ResolutionTimeMinutes,
		IsActive:              p.IsActive,
		CreatedAt:             p.CreatedAt,
		UpdatedAt:             p.UpdatedAt,
	}
}

// FromMeasurement maps a domain measurement.
func FromMeasurement(m *domain.SlaMeasurement) MeasurementResponse {
	return MeasurementResponse{
		ID:                 m.ID,
		TicketID:           m.TicketID,
		PolicyID:           m.PolicyID,
		Status:             m.Status,
		ResponseTargetAt:   m.ResponseTargetAt,
		FirstResponseAt:    m.FirstResponseAt,
		ResponseBreached:   m.ResponseBreached,
		ResolutionTargetAt: m.ResolutionTargetAt,
		ResolvedAt:         m.ResolvedAt,
		ResolutionBreached: m.ResolutionBreached,
		StartedAt:          m.StartedAt,
		BreachedAt:         m.BreachedAt,
	}
}

// FromBatchResult maps a batch summary.
func FromBatchResult(r service.BatchResult) BatchResultResponse {
	return BatchResultResponse{
		TotalProcessed:  r.TotalProcessed,
		Breached:        r.Breached,
		WithinSla:       r.WithinSla,
		Errors:          r.Errors,
		StartedAt:       r.StartedAt,
		DurationSeconds: r.Duration.Seconds(),
	}
}
