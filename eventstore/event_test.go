package eventstore

import "testing"

func TestWithChecksumVerifies(t *testing.T) {
	e := NewEvent("evt-1", "agg-1", "workflow", "NodeCompleted", []byte(`{"ok":true}`))
	e = e.WithChecksum(1)
	if !e.VerifyChecksum() {
		t.Fatalf("expected checksum to verify")
	}
}

func TestVerifyChecksumFailsOnTamperedData(t *testing.T) {
	e := NewEvent("evt-1", "agg-1", "workflow", "NodeCompleted", []byte(`{"ok":true}`))
	e = e.WithChecksum(1)
	e.Data = []byte(`{"ok":false}`)
	if e.VerifyChecksum() {
		t.Fatalf("expected checksum mismatch after tampering")
	}
}

func TestChecksumHasStablePrefix(t *testing.T) {
	e := NewEvent("evt-1", "agg-1", "workflow", "NodeCompleted", []byte(`{}`))
	e = e.WithChecksum(1)
	if len(e.Checksum) < len("sha256:") || e.Checksum[:7] != "sha256:" {
		t.Fatalf("expected sha256: prefix, got %q", e.Checksum)
	}
}
