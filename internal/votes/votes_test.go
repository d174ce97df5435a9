package votes

import (
	"errors"
	"testing"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name       string
		prior      int
		setTo      int
		wantValue  int
		wantRevoke bool
		wantErr    error
	}{
		{"fresh approve", 0, 1, 1, false, nil},
		{"fresh disapprove", 0, -1, -1, false, nil},
		{"flip approve to disapprove", 1, -1, -2, false, nil},
		{"flip disapprove to approve", -1, 1, 2, false, nil},
		{"revoke approve", 1, 0, -1, true, nil},
		{"revoke disapprove", -1, 0, 1, true, nil},
		{"approve twice", 1, 1, 0, false, ErrAlreadyVoted},
		{"disapprove twice", -1, -1, 0, false, ErrAlreadyVoted},
		{"revoke nothing", 0, 0, 0, false, ErrNothingToRevoke},
		{"bad set_to", 0, 2, 0, false, ErrInvalidSetTo},
		{"bad prior", 3, 1, 0, false, ErrInvalidPrior},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			value, revoke, err := Transition(tc.prior, tc.setTo)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected error %v, got %v", tc.wantErr, err)
			}
			if value != tc.wantValue || revoke != tc.wantRevoke {
				t.Fatalf("Transition(%d, %d) = (%d, %v), want (%d, %v)",
					tc.prior, tc.setTo, value, revoke, tc.wantValue, tc.wantRevoke)
			}
		})
	}
}

// The ledger invariant: applying any legal transition keeps the user's net
// contribution in {-1, 0, +1}.
func TestTransitionKeepsContributionBounded(t *testing.T) {
	for _, prior := range []int{-1, 0, 1} {
		for _, setTo := range []int{-1, 0, 1} {
			value, _, err := Transition(prior, setTo)
			if err != nil {
				continue
			}
			next := prior + value
			if next < -1 || next > 1 {
				t.Fatalf("prior %d setTo %d leaves contribution %d", prior, setTo, next)
			}
			if next != setTo {
				t.Fatalf("prior %d setTo %d nets to %d", prior, setTo, next)
			}
		}
	}
}

func TestValidRole(t *testing.T) {
	for _, role := range Roles {
		if !ValidRole(role) {
			t.Fatalf("role %q should be valid", role)
		}
	}
	if ValidRole("editor") {
		t.Fatalf("unknown role accepted")
	}
}
