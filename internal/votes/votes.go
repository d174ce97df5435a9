// Package votes implements the vote transition table for the segment
// consensus ledger. Records are append-only; a user's current contribution
// for a (segment, role) is the signed sum of their record values and is
// kept in {-1, 0, +1} by construction.
package votes

import "errors"

type Role string

const (
	RoleTranslator Role = "translator"
	RoleReviewer   Role = "reviewer"
	RoleTrustee    Role = "trustee"
)

// Roles ordered strongest first, the order the editor checks eligibility in.
var Roles = []Role{RoleTrustee, RoleReviewer, RoleTranslator}

func ValidRole(r Role) bool {
	return r == RoleTranslator || r == RoleReviewer || r == RoleTrustee
}

var (
	// ErrAlreadyVoted: the user already holds the vote they are submitting.
	ErrAlreadyVoted = errors.New("already voted")
	// ErrNothingToRevoke: set_to = 0 with no standing vote to cancel.
	ErrNothingToRevoke = errors.New("nothing to revoke")
	// ErrInvalidSetTo: set_to outside {-1, 0, +1}.
	ErrInvalidSetTo = errors.New("set_to must be -1, 0 or +1")
	// ErrInvalidPrior: prior contribution outside {-1, 0, +1}.
	ErrInvalidPrior = errors.New("prior contribution out of range")
)

// Transition computes the (value, revoke) encoding of the next ledger record
// given the user's current contribution and the requested set_to.
//
// |value| = 1 is a fresh vote, |value| = 2 replaces an earlier opposite
// vote, revoke with value ±1 nets the contribution back to zero.
func Transition(prior, setTo int) (value int, revoke bool, err error) {
	if prior < -1 || prior > 1 {
		return 0, false, ErrInvalidPrior
	}
	switch setTo {
	case 0:
		switch prior {
		case 0:
			return 0, false, ErrNothingToRevoke
		case 1:
			return -1, true, nil
		default:
			return 1, true, nil
		}
	case 1:
		switch prior {
		case 1:
			return 0, false, ErrAlreadyVoted
		case -1:
			return 2, false, nil
		default:
			return 1, false, nil
		}
	case -1:
		switch prior {
		case -1:
			return 0, false, ErrAlreadyVoted
		case 1:
			return -2, false, nil
		default:
			return -1, false, nil
		}
	default:
		return 0, false, ErrInvalidSetTo
	}
}
