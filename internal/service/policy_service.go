package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/repository"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

// PolicyService manages the SLA policy catalog. Policies are soft-deleted
// (deactivated) so historical measurements keep a valid reference.
type PolicyService struct {
	policies repository.PolicyRepository
	logger   *zap.Logger
}

// PolicyCreateInput describes a new policy.
type PolicyCreateInput struct {
	Category              domain.TicketCategory
	Priority              domain.TicketPriority
	ResponseTimeMinutes   int
	ResolutionTimeMinutes int
}

// PolicyUpdate is an explicit partial-update record: only non-nil fields
// overwrite the target.
type PolicyUpdate struct {
	ResponseTimeMinutes   *int
	ResolutionTimeMinutes *int
	IsActive              *bool
}

// NewPolicyService constructs the service.
func NewPolicyService(policies repository.PolicyRepository, logger *zap.Logger) *PolicyService {
	return &PolicyService{policies: policies, logger: logger}
}

// Create validates and stores a new active policy. At most one active
// policy per (category, priority) pair is allowed per tenant.
func (s *PolicyService) Create(ctx context.Context, tenantID string, input PolicyCreateInput) (*domain.SlaPolicy, error) {
	if input.ResponseTimeMinutes <= 0 || input.ResolutionTimeMinutes <= 0 {
		return nil, apperrors.NewValidationError("time budgets must be positive minutes", map[string]any{
			"response_time_minutes":   input.ResponseTimeMinutes,
			"resolution_time_minutes": input.ResolutionTimeMinutes,
		})
	}

	existing, err := s.policies.FindActive(ctx, tenantID, input.Category, input.Priority)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.NewConflict("active SLA policy already exists for this category and priority", map[string]any{
			"category": input.Category,
			"priority": input.Priority,
		})
	}

	policy := &domain.SlaPolicy{
		TenantID:              tenantID,
		Category:              input.Category,
		Priority:              input.Priority,
		ResponseTimeMinutes:   input.ResponseTimeMinutes,
		ResolutionTimeMinutes: input.ResolutionTimeMinutes,
		IsActive:              true,
	}
	if err := s.policies.Create(ctx, policy); err != nil {
		return nil, err
	}

	s.logger.Info("created SLA policy",
		zap.String("tenant_id", tenantID),
		zap.String("category", string(input.Category)),
		zap.String("priority", string(input.Priority)),
		zap.Int("response_minutes", input.ResponseTimeMinutes),
		zap.Int("resolution_minutes", input.ResolutionTimeMinutes))
	return policy, nil
}

// Get returns a tenant's policy by ID.
func (s *PolicyService) Get(ctx context.Context, tenantID, policyID string) (*domain.SlaPolicy, error) {
	policy, err := s.policies.GetByID(ctx, policyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("SLA policy", map[string]any{"policy_id": policyID})
		}
		return nil, err
	}
	if policy.TenantID != tenantID {
		return nil, apperrors.NewNotFound("SLA policy", map[string]any{"policy_id": policyID})
	}
	return policy, nil
}

// List returns a tenant's policies.
func (s *PolicyService) List(ctx context.Context, tenantID string, filter repository.PolicyFilter) ([]domain.SlaPolicy, error) {
	return s.policies.List(ctx, tenantID, filter)
}

// Update applies a partial update to a policy.
func (s *PolicyService) Update(ctx context.Context, tenantID, policyID string, update PolicyUpdate) (*domain.SlaPolicy, error) {
	policy, err := s.Get(ctx, tenantID, policyID)
	if err != nil {
		return nil, err
	}

	if update.ResponseTimeMinutes != nil {
		if *update.ResponseTimeMinutes <= 0 {
			return nil, apperrors.NewValidationError("response_time_minutes must be positive", nil)
		}
		policy.ResponseTimeMinutes = *update.ResponseTimeMinutes
	}
	if update.ResolutionTimeMinutes != nil {
		if *update.ResolutionTimeMinutes <= 0 {
			return nil, apperrors.NewValidationError("resolution_time_minutes must be positive", nil)
		}
		policy.ResolutionTimeMinutes = *update.ResolutionTimeMinutes
	}
	if update.IsActive != nil {
		policy.IsActive = *update.IsActive
	}

	if err := s.policies.Update(ctx, policy); err != nil {
		return nil, err
	}
	return policy, nil
}

// Deactivate soft-deletes a policy.
func (s *PolicyService) Deactivate(ctx context.Context, tenantID, policyID string) error {
	inactive := false
	_, err := s.Update(ctx, tenantID, policyID, PolicyUpdate{IsActive: &inactive})
	return err
}
