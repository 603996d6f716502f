package waitlist

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var (
	// ErrInvalidTransition indicates the requested status change is not an allowed edge.
	ErrInvalidTransition = errors.New("waitlist: invalid status transition")
	// ErrTransitionConflict indicates a concurrent writer moved the party to a different status first.
	ErrTransitionConflict = errors.New("waitlist: concurrent status change")
)

var allowedTransitions = map[Status][]Status{
	StatusWaiting: {StatusReady, StatusNoShow},
	StatusReady:   {StatusSeated, StatusNoShow},
}

// CanTransition reports whether a party may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further status changes are possible.
func IsTerminal(status Status) bool {
	return len(allowedTransitions[status]) == 0
}

type transitionPlan struct {
	noop        bool
	from        Status
	to          Status
	assignments map[string]any
	notifyReady bool
}

// planTransition computes the row assignments for moving party to target at now.
// Requesting the current status yields a no-op plan.
func planTransition(party Party, target Status, now time.Time) (transitionPlan, error) {
	if party.Status == target {
		return transitionPlan{noop: true, from: party.Status, to: target}, nil
	}
	if IsTerminal(party.Status) {
		return transitionPlan{}, fmt.Errorf("%w: %s is final", ErrInvalidTransition, party.Status)
	}
	if !CanTransition(party.Status, target) {
		return transitionPlan{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, party.Status, target)
	}

	assignments := map[string]any{
		"status":     target,
		"updated_at": now,
		"version":    gorm.Expr("version + ?", 1),
	}
	plan := transitionPlan{from: party.Status, to: target, assignments: assignments}
	switch {
	case target == StatusReady:
		readyAt := now
		assignments["ready_at"] = &readyAt
		plan.notifyReady = party.HasPhone()
	case party.Status == StatusReady:
		assignments["ready_at"] = nil
	}
	return plan, nil
}
