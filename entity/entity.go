package entity

import (
	"errors"
	"fmt"
	"time"
)

// Type identifies the kind of server entity held in the cache.
type Type int

const (
	// TypePolicy is an insurance policy.
	TypePolicy Type = iota
	// TypeRiskAssessment is an underwriting risk assessment.
	TypeRiskAssessment
	// TypeClaim is a filed claim.
	TypeClaim
	// TypeQueueSnapshot is a snapshot of the underwriting work queue.
	TypeQueueSnapshot
)

// String returns the wire name of the entity type.
func (t Type) String() string {
	switch t {
	case TypePolicy:
		return "policy"
	case TypeRiskAssessment:
		return "risk-assessment"
	case TypeClaim:
		return "claim"
	case TypeQueueSnapshot:
		return "queue-snapshot"
	default:
		return "unknown"
	}
}

// Sentinel errors for entity parsing.
var (
	ErrUnknownType = errors.New("entity: unknown entity type")
	ErrMissingID   = errors.New("entity: payload has no entity id")
)

// ParseType parses a wire entity-type name.
func ParseType(s string) (Type, error) {
	switch s {
	case "policy":
		return TypePolicy, nil
	case "risk-assessment":
		return TypeRiskAssessment, nil
	case "claim":
		return TypeClaim, nil
	case "queue-snapshot":
		return TypeQueueSnapshot, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

// Key identifies a single cached entity: (entityType, entityId).
type Key struct {
	Type Type
	ID   string
}

// String returns a stable representation suitable for map keys and logs.
func (k Key) String() string {
	return k.Type.String() + "/" + k.ID
}

// Entity is implemented by every cacheable domain value.
//
// Contract:
// - Values are treated as immutable once cached; mutations produce new values.
// - EntityKey must be derivable without I/O.
type Entity interface {
	EntityKey() Key
}

// PolicyStatus is the lifecycle status of a policy.
type PolicyStatus string

const (
	PolicyDraft     PolicyStatus = "Draft"
	PolicySubmitted PolicyStatus = "Submitted"
	PolicyInReview  PolicyStatus = "InReview"
	PolicyApproved  PolicyStatus = "Approved"
	PolicyCancelled PolicyStatus = "Cancelled"
	PolicyBound     PolicyStatus = "Bound"
	PolicyActive    PolicyStatus = "Active"
	PolicyExpired   PolicyStatus = "Expired"
)

// UnderwritingStatus is the lifecycle status of an underwriting review.
type UnderwritingStatus string

const (
	UnderwritingPendingReview UnderwritingStatus = "PendingReview"
	UnderwritingInReview      UnderwritingStatus = "InReview"
	UnderwritingAutoApproved  UnderwritingStatus = "AutoApproved"
	UnderwritingManualReview  UnderwritingStatus = "ManualReview"
	UnderwritingApproved      UnderwritingStatus = "Approved"
	UnderwritingDeclined      UnderwritingStatus = "Declined"
)

// ClaimStatus is the processing status of a claim.
type ClaimStatus string

const (
	ClaimFiled       ClaimStatus = "Filed"
	ClaimUnderReview ClaimStatus = "UnderReview"
	ClaimApproved    ClaimStatus = "Approved"
	ClaimDenied      ClaimStatus = "Denied"
	ClaimPaid        ClaimStatus = "Paid"
)

// Policy is an insurance policy as returned by the policy service.
type Policy struct {
	ID             string       `json:"id"`
	PolicyNumber   string       `json:"policyNumber"`
	Status         PolicyStatus `json:"status"`
	Holder         string       `json:"holder"`
	Premium        float64      `json:"premium"`
	EffectiveDate  time.Time    `json:"effectiveDate"`
	ExpirationDate time.Time    `json:"expirationDate"`
	Endorsements   []string     `json:"endorsements,omitempty"`
}

// EntityKey returns the cache key for the policy.
func (p Policy) EntityKey() Key { return Key{Type: TypePolicy, ID: p.ID} }

// RiskAssessment is the underwriting evaluation of a policy.
type RiskAssessment struct {
	ID         string             `json:"id"`
	PolicyID   string             `json:"policyId"`
	Score      float64            `json:"score"`
	Tier       string             `json:"tier"`
	Status     UnderwritingStatus `json:"status"`
	Factors    map[string]float64 `json:"factors,omitempty"`
	AssessedAt time.Time          `json:"assessedAt"`
}

// EntityKey returns the cache key for the risk assessment.
func (r RiskAssessment) EntityKey() Key { return Key{Type: TypeRiskAssessment, ID: r.ID} }

// Claim is a filed insurance claim.
type Claim struct {
	ID          string      `json:"id"`
	PolicyID    string      `json:"policyId"`
	Status      ClaimStatus `json:"status"`
	Amount      float64     `json:"amount"`
	Description string      `json:"description,omitempty"`
	FiledAt     time.Time   `json:"filedAt"`
}

// EntityKey returns the cache key for the claim.
func (c Claim) EntityKey() Key { return Key{Type: TypeClaim, ID: c.ID} }

// QueueItem is a single entry in the underwriting work queue.
type QueueItem struct {
	PolicyID   string             `json:"policyId"`
	Priority   int                `json:"priority"`
	Status     UnderwritingStatus `json:"status"`
	EnqueuedAt time.Time          `json:"enqueuedAt"`
}

// QueueSnapshot is a point-in-time view of the underwriting queue.
type QueueSnapshot struct {
	ID        string      `json:"id"`
	Items     []QueueItem `json:"items"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// EntityKey returns the cache key for the queue snapshot.
func (q QueueSnapshot) EntityKey() Key { return Key{Type: TypeQueueSnapshot, ID: q.ID} }
