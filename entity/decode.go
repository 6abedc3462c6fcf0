package entity

import (
	"encoding/json"
	"fmt"
)

// Decode parses a raw JSON payload into the concrete entity for the given
// type. Payloads are validated at this boundary so downstream layers never
// have to re-check shape: an unknown type or a payload without an id is an
// error, never a panic.
func Decode(t Type, payload json.RawMessage) (Entity, error) {
	switch t {
	case TypePolicy:
		var p Policy
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("entity: decode %s: %w", t, err)
		}
		if p.ID == "" {
			return nil, fmt.Errorf("entity: decode %s: %w", t, ErrMissingID)
		}
		return p, nil

	case TypeRiskAssessment:
		var r RiskAssessment
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("entity: decode %s: %w", t, err)
		}
		if r.ID == "" {
			return nil, fmt.Errorf("entity: decode %s: %w", t, ErrMissingID)
		}
		return r, nil

	case TypeClaim:
		var c Claim
		if err := json.Unmarshal(payload, &c); err != nil {
			return nil, fmt.Errorf("entity: decode %s: %w", t, err)
		}
		if c.ID == "" {
			return nil, fmt.Errorf("entity: decode %s: %w", t, ErrMissingID)
		}
		return c, nil

	case TypeQueueSnapshot:
		var q QueueSnapshot
		if err := json.Unmarshal(payload, &q); err != nil {
			return nil, fmt.Errorf("entity: decode %s: %w", t, err)
		}
		if q.ID == "" {
			return nil, fmt.Errorf("entity: decode %s: %w", t, ErrMissingID)
		}
		return q, nil

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, int(t))
	}
}
