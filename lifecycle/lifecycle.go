package lifecycle

import (
	"fmt"

	"github.com/harborpoint/policykit/entity"
)

// policyTransitions is the full set of legal policy status transitions.
// Anything not listed here is invalid, including self-transitions and skips.
var policyTransitions = map[entity.PolicyStatus][]entity.PolicyStatus{
	entity.PolicyDraft:     {entity.PolicySubmitted},
	entity.PolicySubmitted: {entity.PolicyInReview},
	entity.PolicyInReview:  {entity.PolicyApproved, entity.PolicyCancelled},
	entity.PolicyApproved:  {entity.PolicyBound},
	entity.PolicyBound:     {entity.PolicyActive},
	entity.PolicyActive:    {entity.PolicyCancelled, entity.PolicyExpired},
}

// underwritingTransitions is the full set of legal underwriting status
// transitions.
var underwritingTransitions = map[entity.UnderwritingStatus][]entity.UnderwritingStatus{
	entity.UnderwritingPendingReview: {entity.UnderwritingInReview},
	entity.UnderwritingInReview:      {entity.UnderwritingAutoApproved, entity.UnderwritingManualReview},
	entity.UnderwritingManualReview:  {entity.UnderwritingApproved, entity.UnderwritingDeclined},
}

// CanTransitionPolicy reports whether a policy may move from one status to
// another.
func CanTransitionPolicy(from, to entity.PolicyStatus) bool {
	for _, allowed := range policyTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CanTransitionUnderwriting reports whether an underwriting review may move
// from one status to another.
func CanTransitionUnderwriting(from, to entity.UnderwritingStatus) bool {
	for _, allowed := range underwritingTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CanTransition reports whether the given entity type may move between the
// two raw status strings. Entity types without a lifecycle table always
// return false.
func CanTransition(t entity.Type, from, to string) bool {
	switch t {
	case entity.TypePolicy:
		return CanTransitionPolicy(entity.PolicyStatus(from), entity.PolicyStatus(to))
	case entity.TypeRiskAssessment:
		return CanTransitionUnderwriting(entity.UnderwritingStatus(from), entity.UnderwritingStatus(to))
	default:
		return false
	}
}

// InvalidTransitionError reports a status transition that is not present in
// the lifecycle table.
type InvalidTransitionError struct {
	EntityType entity.Type
	From       string
	To         string
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("lifecycle: invalid %s transition %s -> %s", e.EntityType, e.From, e.To)
}

// Check validates a transition and returns an *InvalidTransitionError when it
// is not allowed.
func Check(t entity.Type, from, to string) error {
	if CanTransition(t, from, to) {
		return nil
	}
	return &InvalidTransitionError{EntityType: t, From: from, To: to}
}
