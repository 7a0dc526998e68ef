package idgen

import (
	"strings"
	"testing"
)

func TestNanoID_Length(t *testing.T) {
	for _, length := range []int{8, 12, 16, 24} {
		id := NanoID(length)()
		if len(id) != length {
			t.Fatalf("NanoID(%d): got length %d", length, len(id))
		}
	}
}

func TestNanoID_Alphabet(t *testing.T) {
	id := NanoID(100)()
	for _, c := range id {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'z')) {
			t.Fatalf("NanoID: unexpected character %q in %q", c, id)
		}
	}
}

func TestPrefixed(t *testing.T) {
	gen := Prefixed("ver_", UUIDv7())
	id := gen()
	if !strings.HasPrefix(id, "ver_") {
		t.Fatalf("Prefixed: missing prefix in %q", id)
	}
	if len(id) != len("ver_")+36 {
		t.Fatalf("Prefixed: got length %d for %q", len(id), id)
	}
}

func TestTimestamped(t *testing.T) {
	id := Timestamped(NanoID(8))()
	if !strings.Contains(id, "T") || !strings.Contains(id, "Z_") {
		t.Fatalf("Timestamped: bad format %q", id)
	}
	if len(id) != len("20060102T150405Z_")+8 {
		t.Fatalf("Timestamped: got length %d for %q", len(id), id)
	}
}

func TestDefault_IsUUIDv7(t *testing.T) {
	id := New()
	if len(id) != 36 {
		t.Fatalf("New: expected length 36, got %d for %q", len(id), id)
	}
	if _, err := Parse(id); err != nil {
		t.Fatalf("New: default should produce valid UUIDv7: %v", err)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse("not-a-uuid"); err == nil {
		t.Fatal("Parse: expected error for invalid UUID")
	}
}

func TestParsePrefixed(t *testing.T) {
	id := Prefixed("ver_", UUIDv7())()

	got, err := ParsePrefixed("ver_", id)
	if err != nil {
		t.Fatalf("ParsePrefixed: %v", err)
	}
	if got != id {
		t.Fatalf("ParsePrefixed: got %q, want %q", got, id)
	}

	if _, err := ParsePrefixed("ver_", strings.TrimPrefix(id, "ver_")); err == nil {
		t.Fatal("ParsePrefixed: expected error without prefix")
	}
	if _, err := ParsePrefixed("ver_", "ver_nope"); err == nil {
		t.Fatal("ParsePrefixed: expected error for bad UUID")
	}
}
