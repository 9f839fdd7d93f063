package models

// Group is a reusable participant list that scopes expenses and carries
// its own pairwise balance set alongside the global one.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string

	// Name is the display name of the group.
	Name string

	// Members is the list of user IDs in this group.
	Members []string

	// SimplifyDebts enables the read-side debt simplification view
	// for this group's balances.
	SimplifyDebts bool

	// ArchivedAt is the Unix timestamp the group was archived, zero
	// while active. Expenses in an archived group are read-only.
	ArchivedAt int64

	// CreatedAt is the Unix timestamp when the group was created.
	CreatedAt int64
}

// Archived reports whether the group has been archived.
func (g *Group) Archived() bool {
	return g.ArchivedAt != 0
}

// Member reports whether userID belongs to the group.
func (g *Group) Member(userID string) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}
