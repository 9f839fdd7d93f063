package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"settleup/internal/models"
)

// CreateExpense persists the expense, its participant rows, and all
// pairwise balance increments in one transaction.
func (s *SQLiteStore) CreateExpense(ctx context.Context, exp *models.Expense) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertExpense(ctx, tx, exp); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateConversionPair persists the two linked legs of a currency
// conversion in one transaction, cross-referencing them both ways.
func (s *SQLiteStore) CreateConversionPair(ctx context.Context, source, target *models.Expense) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if source.ID == "" {
		source.ID = uuid.New().String()
	}
	if target.ID == "" {
		target.ID = uuid.New().String()
	}
	source.LinkedExpenseID = target.ID
	target.LinkedExpenseID = source.ID

	if err := insertExpense(ctx, tx, source); err != nil {
		return err
	}
	if err := insertExpense(ctx, tx, target); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// insertExpense writes the expense and participant rows and applies the
// balance deltas inside tx.
func insertExpense(ctx context.Context, tx *sql.Tx, exp *models.Expense) error {
	if exp.ID == "" {
		exp.ID = uuid.New().String()
	}
	if exp.CreatedAt == 0 {
		exp.CreatedAt = time.Now().Unix()
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO expenses
		 (id, description, payer_id, total_amount, currency, strategy, group_id, linked_expense_id, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exp.ID, exp.Description, exp.PayerID, exp.TotalAmount, exp.CurrencyCode,
		exp.Strategy.String(), nullString(exp.GroupID), nullString(exp.LinkedExpenseID),
		exp.CreatedBy, exp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}

	if err := insertParticipants(ctx, tx, exp.ID, exp.Participants); err != nil {
		return err
	}

	return applyExpenseDeltas(ctx, tx, exp, false)
}

func insertParticipants(ctx context.Context, tx *sql.Tx, expenseID string, participants []models.Participant) error {
	for _, p := range participants {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO expense_participants (expense_id, user_id, amount, share) VALUES (?, ?, ?, ?)",
			expenseID, p.UserID, p.Amount, p.Share,
		)
		if err != nil {
			return fmt.Errorf("failed to insert participant: %w", err)
		}
	}
	return nil
}

// GetExpense retrieves an expense with its participants, including
// soft-deleted expenses.
func (s *SQLiteStore) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	exp, err := scanExpense(s.db.QueryRowContext(ctx,
		selectExpenseColumns+" FROM expenses WHERE id = ?", expenseID,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("expense %s: %w", expenseID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}

	exp.Participants, err = queryParticipantsFrom(ctx, s.db, expenseID)
	if err != nil {
		return nil, err
	}
	return exp, nil
}

// UpdateExpense reverses the stored deltas, replaces the participant
// rows, updates the expense row, and applies the new deltas, all in one
// transaction.
func (s *SQLiteStore) UpdateExpense(ctx context.Context, exp *models.Expense) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := updateExpense(ctx, tx, exp); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateConversionPair updates both legs of a currency conversion in a
// single transaction, so either both move or neither does.
func (s *SQLiteStore) UpdateConversionPair(ctx context.Context, source, target *models.Expense) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := updateExpense(ctx, tx, source); err != nil {
		return err
	}
	if err := updateExpense(ctx, tx, target); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// updateExpense reverses the stored allocation, replaces the
// participant rows, and applies the new deltas inside tx.
func updateExpense(ctx context.Context, tx *sql.Tx, exp *models.Expense) error {
	stored, err := getExpenseTx(ctx, tx, exp.ID)
	if err != nil {
		return err
	}

	// Reverse the old allocation before the new one lands.
	if err := applyExpenseDeltas(ctx, tx, stored, true); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM expense_participants WHERE expense_id = ?", exp.ID,
	); err != nil {
		return fmt.Errorf("failed to delete old participants: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE expenses
		 SET description = ?, payer_id = ?, total_amount = ?, currency = ?, strategy = ?,
		     group_id = ?, updated_by = ?, updated_at = ?
		 WHERE id = ?`,
		exp.Description, exp.PayerID, exp.TotalAmount, exp.CurrencyCode, exp.Strategy.String(),
		nullString(exp.GroupID), exp.UpdatedBy, exp.UpdatedAt, exp.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}

	if err := insertParticipants(ctx, tx, exp.ID, exp.Participants); err != nil {
		return err
	}
	return applyExpenseDeltas(ctx, tx, exp, false)
}

// DeleteExpense soft-deletes the expense and reverses its stored
// deltas. A linked currency-conversion sibling is deleted first within
// the same transaction, so either both legs go or neither does.
func (s *SQLiteStore) DeleteExpense(ctx context.Context, expenseID, deletedBy string, deletedAt int64) error {
	if deletedAt == 0 {
		deletedAt = time.Now().Unix()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stored, err := getExpenseTx(ctx, tx, expenseID)
	if err != nil {
		return err
	}
	if stored.Deleted() {
		return nil
	}

	if stored.LinkedExpenseID != "" {
		sibling, err := getExpenseTx(ctx, tx, stored.LinkedExpenseID)
		if err != nil {
			return fmt.Errorf("conversion sibling: %w", err)
		}
		if !sibling.Deleted() {
			if err := softDelete(ctx, tx, sibling, deletedBy, deletedAt); err != nil {
				return err
			}
		}
	}

	if err := softDelete(ctx, tx, stored, deletedBy, deletedAt); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// softDelete flags the expense row and reverses its deltas. Participant
// rows stay in place so the delete remains invertible from history.
func softDelete(ctx context.Context, tx *sql.Tx, exp *models.Expense, deletedBy string, deletedAt int64) error {
	if _, err := tx.ExecContext(ctx,
		"UPDATE expenses SET deleted_by = ?, deleted_at = ? WHERE id = ?",
		deletedBy, deletedAt, exp.ID,
	); err != nil {
		return fmt.Errorf("failed to soft-delete expense: %w", err)
	}
	return applyExpenseDeltas(ctx, tx, exp, true)
}

// ListGroupExpenses returns the group's non-deleted expenses in
// creation order.
func (s *SQLiteStore) ListGroupExpenses(ctx context.Context, groupID string) ([]*models.Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		selectExpenseColumns+` FROM expenses
		 WHERE group_id = ? AND deleted_at IS NULL
		 ORDER BY created_at, id`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list group expenses: %w", err)
	}
	defer rows.Close()

	var expenses []*models.Expense
	for rows.Next() {
		exp, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}

	for _, exp := range expenses {
		exp.Participants, err = queryParticipantsFrom(ctx, s.db, exp.ID)
		if err != nil {
			return nil, err
		}
	}
	return expenses, nil
}

const selectExpenseColumns = `SELECT id, description, payer_id, total_amount, currency, strategy,
	group_id, linked_expense_id, created_by, created_at, updated_by, updated_at, deleted_by, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (*models.Expense, error) {
	exp := &models.Expense{}
	var (
		strategy  string
		groupID   sql.NullString
		linkedID  sql.NullString
		updatedBy sql.NullString
		updatedAt sql.NullInt64
		deletedBy sql.NullString
		deletedAt sql.NullInt64
	)
	err := row.Scan(&exp.ID, &exp.Description, &exp.PayerID, &exp.TotalAmount, &exp.CurrencyCode,
		&strategy, &groupID, &linkedID, &exp.CreatedBy, &exp.CreatedAt,
		&updatedBy, &updatedAt, &deletedBy, &deletedAt)
	if err != nil {
		return nil, err
	}

	exp.Strategy, err = models.ParseSplitStrategy(strategy)
	if err != nil {
		return nil, err
	}
	exp.GroupID = groupID.String
	exp.LinkedExpenseID = linkedID.String
	exp.UpdatedBy = updatedBy.String
	exp.UpdatedAt = updatedAt.Int64
	exp.DeletedBy = deletedBy.String
	exp.DeletedAt = deletedAt.Int64
	return exp, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getExpenseTx(ctx context.Context, tx *sql.Tx, expenseID string) (*models.Expense, error) {
	exp, err := scanExpense(tx.QueryRowContext(ctx,
		selectExpenseColumns+" FROM expenses WHERE id = ?", expenseID,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("expense %s: %w", expenseID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}

	exp.Participants, err = queryParticipantsFrom(ctx, tx, expenseID)
	if err != nil {
		return nil, err
	}
	return exp, nil
}

func queryParticipantsFrom(ctx context.Context, q querier, expenseID string) ([]models.Participant, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT user_id, amount, share FROM expense_participants WHERE expense_id = ? ORDER BY user_id",
		expenseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.UserID, &p.Amount, &p.Share); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}
	return participants, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
