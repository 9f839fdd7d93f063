package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"settleup/internal/models"
)

// PairBalance reads one direction of a global pair balance. Rows are
// created lazily, so a missing row reads as zero.
func (s *SQLiteStore) PairBalance(ctx context.Context, ownerID, counterpartyID, currency string) (int64, error) {
	var amount int64
	err := s.db.QueryRowContext(ctx,
		"SELECT amount FROM pair_balances WHERE owner_id = ? AND counterparty_id = ? AND currency = ?",
		ownerID, counterpartyID, currency,
	).Scan(&amount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get pair balance: %w", err)
	}
	return amount, nil
}

// BalancesForUser returns the user's non-zero global balances.
func (s *SQLiteStore) BalancesForUser(ctx context.Context, userID string) ([]models.Balance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT owner_id, counterparty_id, currency, amount FROM pair_balances
		 WHERE owner_id = ? AND amount != 0
		 ORDER BY counterparty_id, currency`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	return scanBalances(rows)
}

// BalancesForGroup returns the group's non-zero pair balances, both
// directions.
func (s *SQLiteStore) BalancesForGroup(ctx context.Context, groupID string) ([]models.Balance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT owner_id, counterparty_id, currency, amount FROM group_pair_balances
		 WHERE group_id = ? AND amount != 0
		 ORDER BY owner_id, counterparty_id, currency`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list group balances: %w", err)
	}
	return scanBalances(rows)
}

func scanBalances(rows *sql.Rows) ([]models.Balance, error) {
	defer rows.Close()

	var balances []models.Balance
	for rows.Next() {
		var b models.Balance
		if err := rows.Scan(&b.OwnerID, &b.CounterpartyID, &b.CurrencyCode, &b.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate balances: %w", err)
	}
	return balances, nil
}

// ZeroGroupPair forces both directions of every group-scoped balance
// between the two users in the given currency to exactly zero, across
// all groups. Used by the post-commit zero-reconciliation pass once the
// global pair balance has returned to zero.
func (s *SQLiteStore) ZeroGroupPair(ctx context.Context, userA, userB, currency string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE group_pair_balances SET amount = 0
		 WHERE currency = ?
		   AND ((owner_id = ? AND counterparty_id = ?) OR (owner_id = ? AND counterparty_id = ?))`,
		currency, userA, userB, userB, userA,
	)
	if err != nil {
		return fmt.Errorf("failed to zero group pair: %w", err)
	}
	return nil
}

// RecalculateGroup rebuilds the group's balance table from scratch:
// zero every row, then replay each non-deleted expense's stored
// participant amounts in creation order. All inside one transaction so
// readers never observe a half-rebuilt table.
func (s *SQLiteStore) RecalculateGroup(ctx context.Context, groupID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE group_pair_balances SET amount = 0 WHERE group_id = ?", groupID,
	); err != nil {
		return fmt.Errorf("failed to zero group balances: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		selectExpenseColumns+` FROM expenses
		 WHERE group_id = ? AND deleted_at IS NULL
		 ORDER BY created_at, id`,
		groupID,
	)
	if err != nil {
		return fmt.Errorf("failed to list group expenses: %w", err)
	}

	var expenses []*models.Expense
	for rows.Next() {
		exp, err := scanExpense(rows)
		if err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, exp)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate expenses: %w", err)
	}

	for _, exp := range expenses {
		exp.Participants, err = queryParticipantsFrom(ctx, tx, exp.ID)
		if err != nil {
			return err
		}
		for _, p := range exp.Participants {
			if p.UserID == exp.PayerID || p.Amount == 0 {
				continue
			}
			if err := incrementGroupPair(ctx, tx, groupID, exp.PayerID, p.UserID, exp.CurrencyCode, -p.Amount); err != nil {
				return err
			}
			if err := incrementGroupPair(ctx, tx, groupID, p.UserID, exp.PayerID, exp.CurrencyCode, p.Amount); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
