package idgen

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestUUIDv7_ParsesAsVersion7(t *testing.T) {
	id := UUIDv7()()
	u, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if u.Version() != 7 {
		t.Errorf("expected version 7, got %d", u.Version())
	}
}

func TestUUIDv7_Unique(t *testing.T) {
	gen := UUIDv7()
	seen := make(map[string]bool)
	for range 1000 {
		id := gen()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestHex_Length(t *testing.T) {
	id := Hex(10)()
	if len(id) != 20 {
		t.Errorf("expected 20 hex chars, got %d (%q)", len(id), id)
	}
}

func TestPrefixed(t *testing.T) {
	id := Prefixed("job_", Hex(4))()
	if !strings.HasPrefix(id, "job_") {
		t.Errorf("expected prefix job_, got %q", id)
	}
}
