package authkit

import (
	"strings"
	"testing"
)

func TestFederatedPasswordSeedIsPrefixedAndUnique(t *testing.T) {
	t.Parallel()

	first, err := federatedPasswordSeed("google")
	if err != nil {
		t.Fatalf("seed error: %v", err)
	}
	second, err := federatedPasswordSeed("google")
	if err != nil {
		t.Fatalf("seed error: %v", err)
	}
	if !strings.HasPrefix(first, "google_") {
		t.Fatalf("expected provider prefix, got %q", first)
	}
	if first == second {
		t.Fatalf("expected distinct seeds")
	}
	if len(first) > 72 {
		t.Fatalf("seed %d bytes long exceeds bcrypt input limit", len(first))
	}
}
