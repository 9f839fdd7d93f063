// Package storage provides abstractions for persistent ledger storage.
package storage

import (
	"context"

	"settleup/internal/models"
)

// Store defines the persistence interface for expenses, groups, and the
// symmetric pairwise balance tables. Implementations must make every
// mutating method atomic: the expense rows and all balance increments
// it implies commit together or not at all, and balance writes are
// increments at the storage layer rather than read-modify-write, so
// concurrent operations on disjoint pairs never conflict.
type Store interface {
	// CreateExpense persists the expense, its participant rows, and
	// the pairwise balance deltas (global plus group-scoped when the
	// expense carries a group) in one transaction. ID and CreatedAt
	// are populated when unset.
	CreateExpense(ctx context.Context, exp *models.Expense) error

	// CreateConversionPair persists the two linked legs of a
	// currency conversion in one transaction, cross-referencing them
	// via LinkedExpenseID.
	CreateConversionPair(ctx context.Context, source, target *models.Expense) error

	// GetExpense retrieves an expense with its participant rows,
	// including soft-deleted expenses. Returns models.ErrNotFound if
	// no row exists.
	GetExpense(ctx context.Context, expenseID string) (*models.Expense, error)

	// UpdateExpense atomically reverses the stored participant
	// deltas, replaces the participant rows with exp.Participants,
	// updates the expense row, and applies the new deltas.
	UpdateExpense(ctx context.Context, exp *models.Expense) error

	// UpdateConversionPair applies UpdateExpense semantics to both
	// legs of a currency conversion in a single transaction.
	UpdateConversionPair(ctx context.Context, source, target *models.Expense) error

	// DeleteExpense soft-deletes the expense and reverses its stored
	// deltas in one transaction. A currency-conversion sibling is
	// deleted first within the same transaction.
	DeleteExpense(ctx context.Context, expenseID, deletedBy string, deletedAt int64) error

	// ListGroupExpenses returns the group's non-deleted expenses in
	// creation order.
	ListGroupExpenses(ctx context.Context, groupID string) ([]*models.Expense, error)

	// PairBalance reads one direction of a global pair balance;
	// missing rows read as zero.
	PairBalance(ctx context.Context, ownerID, counterpartyID, currency string) (int64, error)

	// BalancesForUser returns the user's non-zero global balances.
	BalancesForUser(ctx context.Context, userID string) ([]models.Balance, error)

	// BalancesForGroup returns the group's non-zero pair balances.
	BalancesForGroup(ctx context.Context, groupID string) ([]models.Balance, error)

	// ZeroGroupPair forces both directions of every group-scoped
	// balance between the two users in the given currency to exactly
	// zero, across all groups.
	ZeroGroupPair(ctx context.Context, userA, userB, currency string) error

	// RecalculateGroup zeroes every group-scoped balance in the
	// group and replays all non-deleted expenses' stored participant
	// amounts in creation order, in one transaction.
	RecalculateGroup(ctx context.Context, groupID string) error

	// CreateGroup persists a new group and its member rows.
	CreateGroup(ctx context.Context, group *models.Group) error

	// GetGroup retrieves a group with its members. Returns
	// models.ErrNotFound if no row exists.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// ArchiveGroup marks the group archived at the given timestamp.
	ArchiveGroup(ctx context.Context, groupID string, archivedAt int64) error

	// Close releases any resources held by the store.
	Close() error
}
