package entity

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestTypeString_RoundTrip(t *testing.T) {
	types := []Type{TypePolicy, TypeRiskAssessment, TypeClaim, TypeQueueSnapshot}

	for _, typ := range types {
		parsed, err := ParseType(typ.String())
		if err != nil {
			t.Errorf("ParseType(%q) error = %v", typ.String(), err)
		}
		if parsed != typ {
			t.Errorf("ParseType(%q) = %v, want %v", typ.String(), parsed, typ)
		}
	}
}

func TestParseType_Unknown(t *testing.T) {
	_, err := ParseType("endorsement")
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("ParseType(unknown) error = %v, want ErrUnknownType", err)
	}
}

func TestKeyString(t *testing.T) {
	key := Key{Type: TypePolicy, ID: "P1"}
	if key.String() != "policy/P1" {
		t.Errorf("Key.String() = %q, want %q", key.String(), "policy/P1")
	}
}

func TestDecode_Policy(t *testing.T) {
	payload := json.RawMessage(`{"id":"P1","policyNumber":"POL-001","status":"Draft","holder":"Acme Corp","premium":1250.50}`)

	e, err := Decode(TypePolicy, payload)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	p, ok := e.(Policy)
	if !ok {
		t.Fatalf("Decode() returned %T, want Policy", e)
	}
	if p.ID != "P1" {
		t.Errorf("ID = %q, want P1", p.ID)
	}
	if p.Status != PolicyDraft {
		t.Errorf("Status = %q, want Draft", p.Status)
	}
	if p.EntityKey() != (Key{Type: TypePolicy, ID: "P1"}) {
		t.Errorf("EntityKey() = %v", p.EntityKey())
	}
}

func TestDecode_RiskAssessment(t *testing.T) {
	payload := json.RawMessage(`{"id":"RA1","policyId":"P1","score":0.82,"tier":"standard","status":"InReview"}`)

	e, err := Decode(TypeRiskAssessment, payload)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	r, ok := e.(RiskAssessment)
	if !ok {
		t.Fatalf("Decode() returned %T, want RiskAssessment", e)
	}
	if r.Score != 0.82 {
		t.Errorf("Score = %v, want 0.82", r.Score)
	}
	if r.Status != UnderwritingInReview {
		t.Errorf("Status = %q, want InReview", r.Status)
	}
}

func TestDecode_QueueSnapshot(t *testing.T) {
	payload := json.RawMessage(`{"id":"Q1","items":[{"policyId":"P1","priority":2,"status":"PendingReview"}]}`)

	e, err := Decode(TypeQueueSnapshot, payload)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	q := e.(QueueSnapshot)
	if len(q.Items) != 1 {
		t.Fatalf("len(Items) = %d, want 1", len(q.Items))
	}
	if q.Items[0].Priority != 2 {
		t.Errorf("Items[0].Priority = %d, want 2", q.Items[0].Priority)
	}
}

func TestDecode_MissingID(t *testing.T) {
	for _, typ := range []Type{TypePolicy, TypeRiskAssessment, TypeClaim, TypeQueueSnapshot} {
		_, err := Decode(typ, json.RawMessage(`{}`))
		if !errors.Is(err, ErrMissingID) {
			t.Errorf("Decode(%v, {}) error = %v, want ErrMissingID", typ, err)
		}
	}
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode(TypeClaim, json.RawMessage(`{"id":`))
	if err == nil {
		t.Error("Decode(malformed) error = nil, want parse error")
	}
}

func TestDecode_UnknownType(t *testing.T) {
	_, err := Decode(Type(99), json.RawMessage(`{"id":"X"}`))
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("Decode(unknown type) error = %v, want ErrUnknownType", err)
	}
}
