package service

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// Evaluation is the outcome of evaluating a ticket against its policy at a
// point in time. It is pure data; nothing here touches storage.
type Evaluation struct {
	PolicyID                string
	ResponseTargetAt        time.Time
	ResolutionTargetAt      time.Time
	FirstResponseAt         *time.Time
	ActualResponseMinutes   *float64
	ActualResolutionMinutes *float64
	ResponseBreached        bool
	ResolutionBreached      bool
	OverallStatus           domain.SlaStatus
}

// Breached reports whether either dimension is breached.
func (e Evaluation) Breached() bool {
	return e.ResponseBreached || e.ResolutionBreached
}

// BreachKind returns which dimension breached, or empty when none has.
func (e Evaluation) BreachKind() domain.BreachType {
	switch {
	case e.ResponseBreached && e.ResolutionBreached:
		return domain.BreachTypeBoth
	case e.ResponseBreached:
		return domain.BreachTypeResponse
	case e.ResolutionBreached:
		return domain.BreachTypeResolution
	}
	return ""
}

// ComputeTargets derives both deadlines from the ticket open time and the
// policy budgets.
func ComputeTargets(ticket *domain.Ticket, policy *domain.SlaPolicy) (responseTargetAt, resolutionTargetAt time.Time) {
	responseTargetAt = ticket.OpenedAt.Add(time.Duration(policy.ResponseTimeMinutes) * time.Minute)
	resolutionTargetAt = ticket.OpenedAt.Add(time.Duration(policy.ResolutionTimeMinutes) * time.Minute)
	return responseTargetAt, resolutionTargetAt
}

// FirstResponseAt determines when the ticket first received a human
// response: the earliest non-internal worklog wins; failing that, the
// earliest status transition out of NEW counts (being assigned is a
// response even without a note). Returns nil when neither exists.
func FirstResponseAt(worklogs []domain.Worklog, history []domain.StatusTransition) *time.Time {
	var earliest *time.Time
	for i := range worklogs {
		if worklogs[i].IsInternal {
			continue
		}
		if earliest == nil || worklogs[i].CreatedAt.Before(*earliest) {
			earliest = &worklogs[i].CreatedAt
		}
	}
	if earliest != nil {
		return earliest
	}

	for i := range history {
		if history[i].FromStatus == nil || *history[i].FromStatus != domain.TicketStatusNew {
			continue
		}
		if earliest == nil || history[i].ChangedAt.Before(*earliest) {
			earliest = &history[i].ChangedAt
		}
	}
	return earliest
}

// Evaluate combines ticket state, policy targets, the first-response time
// and "now" into breach flags and an overall status.
//
// Breach flags are computed either from fixed historical timestamps or from
// a monotonically increasing now, so a flag that evaluates true can never
// evaluate false again for the same ticket.
func Evaluate(ticket *domain.Ticket, policy *domain.SlaPolicy, firstResponseAt *time.Time, now time.Time) Evaluation {
	responseTargetAt, resolutionTargetAt := ComputeTargets(ticket, policy)

	eval := Evaluation{
		PolicyID:           policy.ID,
		ResponseTargetAt:   responseTargetAt,
		ResolutionTargetAt: resolutionTargetAt,
		FirstResponseAt:    firstResponseAt,
	}

	if firstResponseAt != nil {
		eval.ResponseBreached = firstResponseAt.After(responseTargetAt)
		eval.ActualResponseMinutes = minutesBetween(ticket.OpenedAt, *firstResponseAt)
	} else {
		eval.ResponseBreached = now.After(responseTargetAt)
		if !eval.ResponseBreached {
			// Running value; becomes final only once a response occurs.
			eval.ActualResponseMinutes = minutesBetween(ticket.OpenedAt, now)
		}
	}

	switch {
	case ticket.ResolvedAt != nil:
		eval.ResolutionBreached = ticket.ResolvedAt.After(resolutionTargetAt)
		eval.ActualResolutionMinutes = minutesBetween(ticket.OpenedAt, *ticket.ResolvedAt)
	case ticket.CurrentStatus == domain.TicketStatusClosed || ticket.CurrentStatus == domain.TicketStatusCancelled:
		// Closed without an explicit resolution: the closing timestamp is
		// the resolution event; now when even that is missing.
		resolvedProxy := now
		if ticket.ClosedAt != nil {
			resolvedProxy = *ticket.ClosedAt
			eval.ActualResolutionMinutes = minutesBetween(ticket.OpenedAt, resolvedProxy)
		}
		eval.ResolutionBreached = resolvedProxy.After(resolutionTargetAt)
	default:
		eval.ResolutionBreached = now.After(resolutionTargetAt)
	}

	switch {
	case ticket.CurrentStatus == domain.TicketStatusCancelled:
		eval.OverallStatus = domain.SlaStatusCancelled
	case ticket.CurrentStatus == domain.TicketStatusResolved || ticket.CurrentStatus == domain.TicketStatusClosed:
		if eval.Breached() {
			eval.OverallStatus = domain.SlaStatusBreached
		} else {
			eval.OverallStatus = domain.SlaStatusMet
		}
	case eval.Breached():
		eval.OverallStatus = domain.SlaStatusBreached
	default:
		eval.OverallStatus = domain.SlaStatusActive
	}

	return eval
}

// TimeToBreach reports the minutes remaining before each target is missed.
// A dimension whose outcome is already settled (responded, or the ticket is
// terminal) yields nil; a negative value means the target has passed.
func TimeToBreach(ticket *domain.Ticket, eval Evaluation, now time.Time) (toResponse, toResolution *float64) {
	if eval.FirstResponseAt == nil {
		toResponse = minutesBetween(now, eval.ResponseTargetAt)
	}
	if ticket.IsOpen() {
		toResolution = minutesBetween(now, eval.ResolutionTargetAt)
	}
	return toResponse, toResolution
}

func minutesBetween(from, to time.Time) *float64 {
	minutes := to.Sub(from).Minutes()
	return &minutes
}
