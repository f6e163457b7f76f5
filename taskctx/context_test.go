package taskctx

import (
	"testing"
	"time"
)

func TestGetSetMetadataRoundTrip(t *testing.T) {
	c := New()
	if _, ok := c.GetMetadata("missing"); ok {
		t.Fatalf("expected miss for unset key")
	}
	if err := c.SetMetadata("user", "alice"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	v, ok := c.GetMetadata("user")
	if !ok {
		t.Fatalf("expected hit after set")
	}
	if v.String() != "alice" {
		t.Fatalf("got %q, want alice", v.String())
	}
}

func TestGetSetNodeOutput(t *testing.T) {
	c := New()
	type payload struct {
		Count int `json:"count"`
	}
	if err := c.SetNodeOutput("fetch", payload{Count: 3}); err != nil {
		t.Fatalf("SetNodeOutput: %v", err)
	}
	v, ok := c.GetNodeOutput("fetch")
	if !ok {
		t.Fatalf("expected hit")
	}
	var got payload
	if err := v.As(&got); err != nil {
		t.Fatalf("As: %v", err)
	}
	if got.Count != 3 {
		t.Fatalf("got %d, want 3", got.Count)
	}
}

func TestMergeLastWriterWins(t *testing.T) {
	a := New()
	_ = a.SetMetadata("k", "a-value")
	_ = a.SetNodeOutput("n1", "a-out")

	b := New()
	_ = b.SetMetadata("k", "b-value")
	_ = b.SetMetadata("k2", "b-only")

	a.Merge(b)

	v, _ := a.GetMetadata("k")
	if v.String() != "b-value" {
		t.Fatalf("expected b to win on shared key, got %q", v.String())
	}
	if v2, ok := a.GetMetadata("k2"); !ok || v2.String() != "b-only" {
		t.Fatalf("expected b-only key to be merged in")
	}
	if v3, ok := a.GetNodeOutput("n1"); !ok || v3.String() != "a-out" {
		t.Fatalf("expected untouched node output to survive merge")
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	c := New()
	_ = c.SetMetadata("user", "bob")
	_ = c.SetNodeOutput("step1", map[string]any{"ok": true})

	data, err := c.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got.EventID != c.EventID {
		t.Fatalf("event id mismatch: %s != %s", got.EventID, c.EventID)
	}
	v, ok := got.GetMetadata("user")
	if !ok || v.String() != "bob" {
		t.Fatalf("metadata did not round-trip")
	}
	out, ok := got.GetNodeOutput("step1")
	if !ok {
		t.Fatalf("expected node output to round-trip")
	}
	var m map[string]any
	if err := out.As(&m); err != nil {
		t.Fatalf("As: %v", err)
	}
	if ok, _ := m["ok"].(bool); !ok {
		t.Fatalf("expected ok=true in round-tripped node output")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	c := New()
	_ = c.SetMetadata("k", "v1")
	clone := c.Clone()
	_ = c.SetMetadata("k", "v2")

	v, _ := clone.GetMetadata("k")
	if v.String() != "v1" {
		t.Fatalf("clone was mutated by original's later write: got %q", v.String())
	}
}

func TestMergeAdvancesUpdatedAt(t *testing.T) {
	a := New()
	b := New()
	b.UpdatedAt = a.UpdatedAt.Add(time.Hour)
	a.Merge(b)
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		t.Fatalf("expected UpdatedAt to advance to later timestamp")
	}
}
