// Package models defines the core domain types for the settlement ledger.
//
// All monetary amounts are signed integers counted in minor currency
// units (cents). Floating point is never used for money.
package models

// Participant is one user's stake in a single expense.
type Participant struct {
	// UserID identifies the participant.
	UserID string

	// Amount is the signed ledger delta in minor units once the
	// expense has been allocated: positive means the participant is
	// owed money, negative means they owe.
	Amount int64

	// Share is the strategy-specific input used during allocation:
	// an inclusion flag for equal splits, hundredths of a percent for
	// percentage splits, a x100 weight for share splits, an exact
	// amount in minor units, or a signed adjustment delta.
	Share int64
}

// Expense is a single allocated expense, settlement, or one leg of a
// currency conversion.
type Expense struct {
	// ID is the unique identifier (UUID format).
	ID string

	// Description is the human-readable label for the expense.
	Description string

	// PayerID is the participant who fronted the money.
	PayerID string

	// TotalAmount is the full expense amount in minor units.
	TotalAmount int64

	// CurrencyCode is the ISO 4217 code the amounts are counted in.
	CurrencyCode string

	// Strategy is the split rule the participant amounts were
	// allocated under.
	Strategy SplitStrategy

	// Participants holds the allocated per-user amounts. The signed
	// amounts of an allocated expense always sum to zero.
	Participants []Participant

	// GroupID scopes the expense to a group; empty for direct
	// (non-group) expenses.
	GroupID string

	// LinkedExpenseID cross-references the sibling leg of a currency
	// conversion pair; empty otherwise. Each leg points at the other.
	LinkedExpenseID string

	// CreatedBy / CreatedAt record the immutable creation metadata.
	CreatedBy string
	CreatedAt int64

	// UpdatedBy / UpdatedAt track the last edit, zero if never edited.
	UpdatedBy string
	UpdatedAt int64

	// DeletedBy / DeletedAt mark a soft delete. Expense rows are
	// never removed, only flagged.
	DeletedBy string
	DeletedAt int64
}

// Deleted reports whether the expense has been soft-deleted.
func (e *Expense) Deleted() bool {
	return e.DeletedAt != 0
}

// Participant returns the participant entry for userID, or nil.
func (e *Expense) Participant(userID string) *Participant {
	for i := range e.Participants {
		if e.Participants[i].UserID == userID {
			return &e.Participants[i]
		}
	}
	return nil
}
