// Package service implements the balance ledger: it turns validated
// expenses into allocated participant amounts and durable pairwise
// balance deltas, and keeps the symmetric ledger consistent across
// creates, edits, deletes, and full rebuilds.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"settleup/internal/calculator"
	"settleup/internal/metrics"
	"settleup/internal/models"
	"settleup/internal/storage"
)

// Ledger coordinates the split allocator, the authorization rules, and
// the transactional balance store.
type Ledger struct {
	store storage.Store
}

// NewLedger creates a Ledger backed by the given store.
func NewLedger(store storage.Store) *Ledger {
	return &Ledger{store: store}
}

// CreateExpense allocates and persists a new expense on behalf of
// actorID, applying its balance deltas atomically. The returned expense
// carries the resolved per-participant amounts.
func (l *Ledger) CreateExpense(ctx context.Context, exp *models.Expense, actorID string) (*models.Expense, error) {
	start := time.Now()
	created, err := l.createExpense(ctx, exp, actorID)
	metrics.ObserveOp("create", start, err)
	if err != nil {
		slog.Error("CreateExpense failed", "actor", actorID, "error", err)
		return nil, err
	}
	slog.Info("Expense created",
		"expense_id", created.ID,
		"payer", created.PayerID,
		"total", created.TotalAmount,
		"currency", created.CurrencyCode,
		"strategy", created.Strategy.String(),
		"group_id", created.GroupID,
	)
	return created, nil
}

func (l *Ledger) createExpense(ctx context.Context, exp *models.Expense, actorID string) (*models.Expense, error) {
	if err := l.checkGroupActive(ctx, exp.GroupID); err != nil {
		return nil, err
	}
	if err := validateExpense(exp); err != nil {
		return nil, err
	}

	allocated, err := l.allocate(exp)
	if err != nil {
		return nil, err
	}
	allocated.CreatedBy = actorID

	if err := l.store.CreateExpense(ctx, allocated); err != nil {
		return nil, fmt.Errorf("persist expense: %w", err)
	}
	if err := l.reconcileZeroPairs(ctx, allocated); err != nil {
		return nil, err
	}
	return allocated, nil
}

// allocate runs the split allocator over the expense's share inputs and
// returns a copy with resolved amounts and pruned zero participants.
func (l *Ledger) allocate(exp *models.Expense) (*models.Expense, error) {
	alloc, err := calculator.Allocate(exp.TotalAmount, exp.Participants, exp.Strategy, exp.PayerID)
	if err != nil {
		return nil, err
	}
	if !alloc.IsComplete {
		return nil, fmt.Errorf("strategy %s over %d participants: %w",
			exp.Strategy, len(exp.Participants), models.ErrIncompleteSplit)
	}

	out := *exp
	out.Participants = pruneZeroParticipants(alloc.Participants)
	return &out, nil
}

// pruneZeroParticipants drops participants whose amount resolved to
// zero, unless that would leave the expense without any participant.
func pruneZeroParticipants(participants []models.Participant) []models.Participant {
	if len(participants) <= 1 {
		return participants
	}
	kept := participants[:0:0]
	for _, p := range participants {
		if p.Amount != 0 {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return participants[:1]
	}
	return kept
}

// UpdateExpense replaces an expense's allocation with a new one: the
// stored deltas are reversed and the new allocation applied inside one
// transaction, so a failure leaves the ledger untouched.
func (l *Ledger) UpdateExpense(ctx context.Context, expenseID string, exp *models.Expense, actorID string) (*models.Expense, error) {
	start := time.Now()
	updated, err := l.updateExpense(ctx, expenseID, exp, actorID)
	metrics.ObserveOp("update", start, err)
	if err != nil {
		slog.Error("UpdateExpense failed", "expense_id", expenseID, "actor", actorID, "error", err)
		return nil, err
	}
	slog.Info("Expense updated", "expense_id", expenseID, "actor", actorID)
	return updated, nil
}

func (l *Ledger) updateExpense(ctx context.Context, expenseID string, exp *models.Expense, actorID string) (*models.Expense, error) {
	old, err := l.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if old.Deleted() {
		return nil, fmt.Errorf("expense %s is deleted: %w", expenseID, models.ErrNotFound)
	}
	if old.LinkedExpenseID != "" {
		return nil, fmt.Errorf("expense %s: %w", expenseID, models.ErrLinkedConversion)
	}
	if err := authorize(old, actorID); err != nil {
		return nil, err
	}
	if err := l.checkGroupActive(ctx, old.GroupID); err != nil {
		return nil, err
	}
	if exp.GroupID != old.GroupID {
		if err := l.checkGroupActive(ctx, exp.GroupID); err != nil {
			return nil, err
		}
	}
	if err := validateExpense(exp); err != nil {
		return nil, err
	}

	updated, err := l.allocate(exp)
	if err != nil {
		return nil, err
	}
	updated.ID = old.ID
	updated.CreatedBy = old.CreatedBy
	updated.CreatedAt = old.CreatedAt
	updated.UpdatedBy = actorID
	updated.UpdatedAt = time.Now().Unix()

	if err := l.store.UpdateExpense(ctx, updated); err != nil {
		return nil, fmt.Errorf("persist expense update: %w", err)
	}

	// Both the old and the new allocation may have driven pairs to zero.
	if err := l.reconcileZeroPairs(ctx, old, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteExpense soft-deletes the expense and reverses its stored
// deltas. When the expense is one leg of a currency conversion, the
// sibling leg is deleted in the same transaction; if either leg cannot
// be deleted the whole operation fails.
func (l *Ledger) DeleteExpense(ctx context.Context, expenseID, actorID string) error {
	start := time.Now()
	err := l.deleteExpense(ctx, expenseID, actorID)
	metrics.ObserveOp("delete", start, err)
	if err != nil {
		slog.Error("DeleteExpense failed", "expense_id", expenseID, "actor", actorID, "error", err)
		return err
	}
	slog.Info("Expense deleted", "expense_id", expenseID, "actor", actorID)
	return nil
}

func (l *Ledger) deleteExpense(ctx context.Context, expenseID, actorID string) error {
	old, err := l.store.GetExpense(ctx, expenseID)
	if err != nil {
		return err
	}
	if old.Deleted() {
		return fmt.Errorf("expense %s is deleted: %w", expenseID, models.ErrNotFound)
	}
	if err := authorize(old, actorID); err != nil {
		return err
	}
	if err := l.checkGroupActive(ctx, old.GroupID); err != nil {
		return err
	}

	var sibling *models.Expense
	if old.LinkedExpenseID != "" {
		sibling, err = l.store.GetExpense(ctx, old.LinkedExpenseID)
		if err != nil {
			return fmt.Errorf("conversion sibling: %w", err)
		}
	}

	if err := l.store.DeleteExpense(ctx, expenseID, actorID, time.Now().Unix()); err != nil {
		return fmt.Errorf("persist expense delete: %w", err)
	}

	touched := []*models.Expense{old}
	if sibling != nil {
		touched = append(touched, sibling)
	}
	return l.reconcileZeroPairs(ctx, touched...)
}

// Recalculate rebuilds a group's balance table from its full expense
// history. Used for drift recovery; the result must be identical to
// incremental application.
func (l *Ledger) Recalculate(ctx context.Context, groupID string) error {
	if _, err := l.store.GetGroup(ctx, groupID); err != nil {
		return err
	}
	if err := l.store.RecalculateGroup(ctx, groupID); err != nil {
		return fmt.Errorf("recalculate group %s: %w", groupID, err)
	}
	metrics.Recalculations.Inc()
	slog.Info("Group balances recalculated", "group_id", groupID)
	return nil
}

// VerifyGroupBalances recomputes the group's balances from history in
// memory and compares them with the stored rows. A mismatch returns a
// ConsistencyError; it indicates a ledger bug, never user error. This
// is a verification harness for tests and migrations, not a request
// path dependency.
func (l *Ledger) VerifyGroupBalances(ctx context.Context, groupID string) error {
	expenses, err := l.store.ListGroupExpenses(ctx, groupID)
	if err != nil {
		return err
	}

	type key struct{ owner, counterparty, currency string }
	expected := make(map[key]int64)
	for _, exp := range expenses {
		for _, p := range exp.Participants {
			if p.UserID == exp.PayerID || p.Amount == 0 {
				continue
			}
			expected[key{exp.PayerID, p.UserID, exp.CurrencyCode}] -= p.Amount
			expected[key{p.UserID, exp.PayerID, exp.CurrencyCode}] += p.Amount
		}
	}

	stored, err := l.store.BalancesForGroup(ctx, groupID)
	if err != nil {
		return err
	}
	for _, b := range stored {
		k := key{b.OwnerID, b.CounterpartyID, b.CurrencyCode}
		if expected[k] != b.Amount {
			return &models.ConsistencyError{
				GroupID: groupID,
				Detail: fmt.Sprintf("pair %s/%s %s: stored %d, replayed %d",
					b.OwnerID, b.CounterpartyID, b.CurrencyCode, b.Amount, expected[k]),
			}
		}
		delete(expected, k)
	}
	for k, amount := range expected {
		if amount != 0 {
			return &models.ConsistencyError{
				GroupID: groupID,
				Detail: fmt.Sprintf("pair %s/%s %s: stored 0, replayed %d",
					k.owner, k.counterparty, k.currency, amount),
			}
		}
	}
	return nil
}

// GetExpense retrieves an expense by ID, including soft-deleted ones.
func (l *Ledger) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	return l.store.GetExpense(ctx, expenseID)
}

// BalancesForUser returns the user's non-zero global balances.
func (l *Ledger) BalancesForUser(ctx context.Context, userID string) ([]models.Balance, error) {
	return l.store.BalancesForUser(ctx, userID)
}

// GroupBalances returns a group's pair balances, simplified to the
// minimal equivalent transfer set when the group opts in. The
// simplified view is never written back.
func (l *Ledger) GroupBalances(ctx context.Context, groupID string) ([]models.Balance, error) {
	group, err := l.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	balances, err := l.store.BalancesForGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.SimplifyDebts {
		balances = calculator.Simplify(balances)
	}
	return balances, nil
}

// DeriveShares recovers the share inputs of a stored expense for
// editing, using the allocator's inverse transform.
func (l *Ledger) DeriveShares(ctx context.Context, expenseID string) ([]models.Participant, error) {
	exp, err := l.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	return calculator.DeriveShares(exp.TotalAmount, exp.Participants, exp.Strategy, exp.PayerID)
}

// CreateGroup persists a new group.
func (l *Ledger) CreateGroup(ctx context.Context, group *models.Group) (*models.Group, error) {
	if err := l.store.CreateGroup(ctx, group); err != nil {
		return nil, fmt.Errorf("persist group: %w", err)
	}
	slog.Info("Group created", "group_id", group.ID, "name", group.Name)
	return group, nil
}

// GetGroup retrieves a group by ID.
func (l *Ledger) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	return l.store.GetGroup(ctx, groupID)
}

// ArchiveGroup marks a group read-only.
func (l *Ledger) ArchiveGroup(ctx context.Context, groupID string) error {
	return l.store.ArchiveGroup(ctx, groupID, time.Now().Unix())
}

// reconcileZeroPairs runs the post-commit zero-reconciliation pass over
// every pair the given expenses touched: once the global balance of a
// pair returns to exactly zero, any group-scoped residue for the same
// pair and currency is forced to zero too. Without this a global
// settle-up performed outside a group would leave stale group balances
// behind.
func (l *Ledger) reconcileZeroPairs(ctx context.Context, expenses ...*models.Expense) error {
	type pairKey struct{ a, b, currency string }
	seen := make(map[pairKey]bool)

	for _, exp := range expenses {
		for _, p := range exp.Participants {
			if p.UserID == exp.PayerID || p.Amount == 0 {
				continue
			}
			k := pairKey{exp.PayerID, p.UserID, exp.CurrencyCode}
			if k.a > k.b {
				k.a, k.b = k.b, k.a
			}
			if seen[k] {
				continue
			}
			seen[k] = true

			balance, err := l.store.PairBalance(ctx, k.a, k.b, k.currency)
			if err != nil {
				return err
			}
			if balance != 0 {
				continue
			}
			if err := l.store.ZeroGroupPair(ctx, k.a, k.b, k.currency); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkGroupActive verifies the group exists and is not archived. An
// empty groupID (a non-group expense) passes.
func (l *Ledger) checkGroupActive(ctx context.Context, groupID string) error {
	if groupID == "" {
		return nil
	}
	group, err := l.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group.Archived() {
		return fmt.Errorf("group %s: %w", groupID, models.ErrGroupArchived)
	}
	return nil
}

// authorize enforces the mutation rule: the actor must be the expense's
// creator or a participant with a non-zero amount.
func authorize(exp *models.Expense, actorID string) error {
	if actorID == exp.CreatedBy {
		return nil
	}
	if p := exp.Participant(actorID); p != nil && p.Amount != 0 {
		return nil
	}
	return fmt.Errorf("user %s may not modify expense %s: %w", actorID, exp.ID, models.ErrNotAuthorized)
}

// validateExpense checks the structural rules that hold for every
// strategy before anything touches storage.
func validateExpense(exp *models.Expense) error {
	if exp.TotalAmount < 0 {
		return fmt.Errorf("negative total %d: %w", exp.TotalAmount, models.ErrInvalidExpense)
	}
	if exp.CurrencyCode == "" {
		return fmt.Errorf("missing currency: %w", models.ErrInvalidExpense)
	}
	if len(exp.Participants) > 0 && exp.Participant(exp.PayerID) == nil {
		return fmt.Errorf("payer %s is not a participant: %w", exp.PayerID, models.ErrInvalidExpense)
	}
	if exp.Strategy == models.SplitSettlement || exp.Strategy == models.SplitCurrencyConversion {
		if len(exp.Participants) != 2 {
			return fmt.Errorf("%s requires exactly two participants: %w", exp.Strategy, models.ErrInvalidExpense)
		}
		if exp.Participants[0].Amount+exp.Participants[1].Amount != 0 {
			return fmt.Errorf("%s amounts must be symmetric: %w", exp.Strategy, models.ErrInvalidExpense)
		}
	}
	return nil
}
