// Package reputation gates editing and voting capabilities on user scores.
package reputation

import "tolma/api/internal/votes"

type Capability string

const (
	AddTranslation        Capability = "add_translation"
	ChangeTranslation     Capability = "change_translation"
	DeleteTranslation     Capability = "delete_translation"
	RestoreTranslation    Capability = "restore_translation"
	ApproveTranslation    Capability = "approve_translation"
	DisapproveTranslation Capability = "disapprove_translation"
	ReviewTranslation     Capability = "review_translation"
	Trustee               Capability = "trustee"
)

var thresholds = map[Capability]int64{
	AddTranslation:        3,
	ChangeTranslation:     3,
	DeleteTranslation:     3,
	RestoreTranslation:    4,
	ApproveTranslation:    100,
	DisapproveTranslation: 150,
	ReviewTranslation:     1000,
	Trustee:               1000000,
}

// Capabilities in ascending threshold order.
var Capabilities = []Capability{
	AddTranslation,
	ChangeTranslation,
	DeleteTranslation,
	RestoreTranslation,
	ApproveTranslation,
	DisapproveTranslation,
	ReviewTranslation,
	Trustee,
}

// DefaultScore is the baseline created on first read for a user with no
// reputation row.
const DefaultScore int64 = 1

func Threshold(c Capability) int64 {
	return thresholds[c]
}

func Has(score int64, c Capability) bool {
	return score >= thresholds[c]
}

// RolesFor derives vote roles from a score, strongest first.
func RolesFor(score int64) []votes.Role {
	roles := make([]votes.Role, 0, 3)
	if Has(score, Trustee) {
		roles = append(roles, votes.RoleTrustee)
	}
	if Has(score, ReviewTranslation) {
		roles = append(roles, votes.RoleReviewer)
	}
	if Has(score, AddTranslation) {
		roles = append(roles, votes.RoleTranslator)
	}
	return roles
}

// HasRole reports whether a score qualifies the user for a role.
func HasRole(score int64, role votes.Role) bool {
	switch role {
	case votes.RoleTrustee:
		return Has(score, Trustee)
	case votes.RoleReviewer:
		return Has(score, ReviewTranslation)
	case votes.RoleTranslator:
		return Has(score, AddTranslation)
	default:
		return false
	}
}
