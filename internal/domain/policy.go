package domain

// conversePolicy lists, per initiator role, the target roles it may open a conversation with.
// Rows are read by initiator only; a rule added for one direction does not imply the other.
var conversePolicy = map[Role]map[Role]bool{
	RoleStudent: {
		RoleInstructor: true,
		RoleAdmin:      true,
	},
	RoleInstructor: {
		RoleStudent:    true,
		RoleInstructor: true,
		RoleAdmin:      true,
	},
}

// CanConverse reports whether initiator may converse with target. Unknown roles are denied.
func CanConverse(initiator, target Role) bool {
	if initiator == RoleAdmin {
		return true
	}
	return conversePolicy[initiator][target]
}
