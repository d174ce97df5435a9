package reputation

import (
	"testing"

	"tolma/api/internal/votes"
)

func TestHas(t *testing.T) {
	tests := []struct {
		name       string
		score      int64
		capability Capability
		want       bool
	}{
		{"newcomer cannot edit", 1, AddTranslation, false},
		{"threshold is inclusive", 3, AddTranslation, true},
		{"restore needs one more", 3, RestoreTranslation, false},
		{"approve at hundred", 100, ApproveTranslation, true},
		{"approve does not grant disapprove", 100, DisapproveTranslation, false},
		{"reviewer", 1000, ReviewTranslation, true},
		{"trustee", 1000000, Trustee, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Has(tc.score, tc.capability); got != tc.want {
				t.Fatalf("Has(%d, %s) = %v, want %v", tc.score, tc.capability, got, tc.want)
			}
		})
	}
}

func TestRolesForStrongestFirst(t *testing.T) {
	roles := RolesFor(1000000)
	if len(roles) != 3 {
		t.Fatalf("expected all three roles, got %v", roles)
	}
	if roles[0] != votes.RoleTrustee || roles[2] != votes.RoleTranslator {
		t.Fatalf("roles not ordered strongest first: %v", roles)
	}

	if got := RolesFor(1000); len(got) != 2 || got[0] != votes.RoleReviewer {
		t.Fatalf("reviewer score should grant reviewer and translator, got %v", got)
	}

	if got := RolesFor(DefaultScore); len(got) != 0 {
		t.Fatalf("default score grants no roles, got %v", got)
	}
}

func TestHasRole(t *testing.T) {
	if !HasRole(3, votes.RoleTranslator) {
		t.Fatalf("score 3 should qualify as translator")
	}
	if HasRole(999, votes.RoleReviewer) {
		t.Fatalf("score 999 must not qualify as reviewer")
	}
	if HasRole(1000000, "editor") {
		t.Fatalf("unknown role must never qualify")
	}
}

func TestCapabilitiesOrderedByThreshold(t *testing.T) {
	var last int64 = -1
	for _, c := range Capabilities {
		if Threshold(c) < last {
			t.Fatalf("capability %s out of order", c)
		}
		last = Threshold(c)
	}
}
