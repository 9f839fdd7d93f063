package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure taxonomy. Callers branch with
// errors.Is; everything else surfaces as an opaque internal error after
// the enclosing transaction has rolled back.
var (
	// ErrNotFound covers missing expenses, groups, and missing
	// counterpart legs of a conversion pair.
	ErrNotFound = errors.New("not found")

	// ErrNotAuthorized is returned when the acting user is neither
	// the expense creator nor a participant with a non-zero amount.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrGroupArchived is returned when mutating an expense that
	// belongs to an archived group.
	ErrGroupArchived = errors.New("group is archived")

	// ErrUnsupportedSplitType is returned for a strategy outside the
	// closed set.
	ErrUnsupportedSplitType = errors.New("unsupported split type")

	// ErrIncompleteSplit is returned when share inputs do not
	// reconcile against the total under the chosen strategy.
	ErrIncompleteSplit = errors.New("split does not reconcile to total")

	// ErrInvalidExpense is returned for structurally invalid input:
	// a payer outside the participant list, a settlement without two
	// symmetric participants, and the like.
	ErrInvalidExpense = errors.New("invalid expense")

	// ErrLinkedConversion is returned when a single leg of a
	// currency-conversion pair is edited directly; both legs must
	// move together.
	ErrLinkedConversion = errors.New("expense is one leg of a currency conversion")
)

// ConsistencyError reports a mismatch between incrementally maintained
// balances and a full recalculation from expense history. It indicates
// a ledger bug and must never be silently swallowed.
type ConsistencyError struct {
	GroupID string
	Detail  string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("ledger inconsistency in group %s: %s", e.GroupID, e.Detail)
}
