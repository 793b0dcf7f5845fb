package idgen

import (
	"regexp"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestUUIDv7(t *testing.T) {
	id := New()
	u, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("parse %q: %v", id, err)
	}
	if u.Version() != 7 {
		t.Fatalf("version: got %d, want 7", u.Version())
	}
}

func TestPrefixed(t *testing.T) {
	id := Prefixed("sub_", Default)()
	if !strings.HasPrefix(id, "sub_") {
		t.Fatalf("prefix missing: %q", id)
	}
}

var jsIdent = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

func TestIdentifier(t *testing.T) {
	gen := Identifier("__domprobe_")
	a, b := gen(), gen()
	if a == b {
		t.Fatal("identifiers should be unique")
	}
	for _, id := range []string{a, b} {
		if !jsIdent.MatchString(id) {
			t.Errorf("not a JS identifier: %q", id)
		}
	}
}
