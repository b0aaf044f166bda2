package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/api/dto"
	"github.com/spec-kit/sla-engine/internal/auth"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/repository"
	"github.com/spec-kit/sla-engine/internal/scheduler"
	"github.com/spec-kit/sla-engine/internal/service"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

// SlaHandler exposes the SLA engine over HTTP.
type SlaHandler struct {
	sla       *service.SlaService
	policies  *service.PolicyService
	scheduler *scheduler.Scheduler
}

// NewSlaHandler constructs the handler.
func NewSlaHandler(sla *service.SlaService, policies *service.PolicyService, sched *scheduler.Scheduler) *SlaHandler {
	return &SlaHandler{sla: sla, policies: policies, scheduler: sched}
}

// ListPolicies returns the tenant's SLA policies.
func (h *SlaHandler) ListPolicies(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	filter := repository.PolicyFilter{ActiveOnly: c.QueryBool("active_only", true)}
	if category := c.Query("category"); category != "" {
		val := domain.TicketCategory(category)
		filter.Category = &val
	}
	if priority := c.Query("priority"); priority != "" {
		val := domain.TicketPriority(priority)
		filter.Priority = &val
	}

	policies, err := h.policies.List(c.UserContext(), principal.TenantID, filter)
	if err != nil {
		return apperrors.MapError(err)
	}

	out := make([]dto.PolicyResponse, 0, len(policies))
	for i := range policies {
		out = append(out, dto.FromPolicy(&policies[i]))
	}
	return c.JSON(dto.PolicyListResponse{Policies: out, Total: len(out)})
}

// CreatePolicy creates an active policy for a category/priority pair.
func (h *SlaHandler) CreatePolicy(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.CreatePolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}

	policy, err := h.policies.Create(c.UserContext(), principal.TenantID, service.PolicyCreateInput{
		Category:              req.Category,
		Priority:              req.Priority,
		ResponseTimeMinutes:   req.ResponseTimeMinutes,
		ResolutionTimeMinutes: req.ResolutionTimeMinutes,
	})
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.FromPolicy(policy))
}

// GetPolicy returns a single policy.
func (h *SlaHandler) GetPolicy(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	policy, err := h.policies.Get(c.UserContext(), principal.TenantID, c.Params("policy_id"))
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(dto.FromPolicy(policy))
}

// UpdatePolicy applies a partial update.
func (h *SlaHandler) UpdatePolicy(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.UpdatePolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}

	policy, err := h.policies.Update(c.UserContext(), principal.TenantID, c.Params("policy_id"), service.PolicyUpdate{
		ResponseTimeMinutes:   req.ResponseTimeMinutes,
		ResolutionTimeMinutes: req.ResolutionTimeMinutes,
		IsActive:              req.IsActive,
	})
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(dto.FromPolicy(policy))
}

// DeactivatePolicy soft-deletes a policy.
func (h *SlaHandler) DeactivatePolicy(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	if err := h.policies.Deactivate(c.UserContext(), principal.TenantID, c.Params("policy_id")); err != nil {
		return apperrors.MapError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// TicketStatus returns the combined SLA view of one ticket.
func (h *SlaHandler) TicketStatus(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	status, err := h.sla.GetStatusForTicket(c.UserContext(), principal.TenantID, c.Params("ticket_id"))
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(status)
}

// TicketBreach returns the live breach check for one ticket.
func (h *SlaHandler) TicketBreach(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	breach, err := h.sla.CheckBreach(c.UserContext(), principal.TenantID, c.Params("ticket_id"))
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(breach)
}

// RecalculateTicket recomputes one ticket on demand.
func (h *SlaHandler) RecalculateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	status, err := h.sla.RecalcSingle(c.UserContext(), principal.TenantID, c.Params("ticket_id"))
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(status)
}

// RecalculateBatch triggers a recomputation pass: all open tickets, or the
// requested subset.
func (h *SlaHandler) RecalculateBatch(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.RecalculationRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
	}

	if len(req.TicketIDs) > 0 {
		result, err := h.sla.ProcessTickets(c.UserContext(), principal.TenantID, req.TicketIDs)
		if err != nil {
			return apperrors.MapError(err)
		}
		return c.JSON(dto.FromBatchResult(result))
	}

	result, err := h.scheduler.TriggerNow(c.UserContext())
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(dto.FromBatchResult(result))
}

// SchedulerStatus returns the batch scheduler's bookkeeping.
func (h *SlaHandler) SchedulerStatus(c *fiber.Ctx) error {
	if _, ok := auth.PrincipalFromContext(c); !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	return c.JSON(h.scheduler.Status())
}

// ListMeasurements returns stored measurements with optional filters.
func (h *SlaHandler) ListMeasurements(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	filter := repository.MeasurementFilter{
		Limit:  c.QueryInt("limit", 100),
		Offset: c.QueryInt("skip", 0),
	}
	if status := c.Query("status"); status != "" {
		val := domain.SlaStatus(status)
		filter.Status = &val
	}
	if raw := c.Query("response_breached"); raw != "" {
		val := raw == "true"
		filter.ResponseBreached = &val
	}
	if raw := c.Query("resolution_breached"); raw != "" {
		val := raw == "true"
		filter.ResolutionBreached = &val
	}

	measurements, err := h.sla.ListMeasurements(c.UserContext(), principal.TenantID, filter)
	if err != nil {
		return apperrors.MapError(err)
	}

	out := make([]dto.MeasurementResponse, 0, len(measurements))
	for i := range measurements {
		out = append(out, dto.FromMeasurement(&measurements[i]))
	}
	return c.JSON(out)
}
