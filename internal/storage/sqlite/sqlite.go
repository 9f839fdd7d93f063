// Package sqlite provides a SQLite-backed implementation of the
// storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"settleup/internal/models"
	"settleup/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path. It
// creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// applyExpenseDeltas applies the expense's participant amounts as
// pairwise balance increments inside tx. Every balance write is an
// upsert increment, never a read followed by a write. For each
// non-payer participant with a non-zero amount, -amount goes to the
// (payer, participant) direction and +amount to (participant, payer),
// keeping the two directions exact mirrors. When the expense carries a
// group, identical deltas go into the group-scoped table. Set reverse
// to flip every delta, which is the exact inverse used by edits and
// deletes.
func applyExpenseDeltas(ctx context.Context, tx *sql.Tx, exp *models.Expense, reverse bool) error {
	for _, p := range exp.Participants {
		if p.UserID == exp.PayerID || p.Amount == 0 {
			continue
		}
		delta := p.Amount
		if reverse {
			delta = -delta
		}
		if err := incrementPair(ctx, tx, exp.PayerID, p.UserID, exp.CurrencyCode, -delta); err != nil {
			return err
		}
		if err := incrementPair(ctx, tx, p.UserID, exp.PayerID, exp.CurrencyCode, delta); err != nil {
			return err
		}
		if exp.GroupID != "" {
			if err := incrementGroupPair(ctx, tx, exp.GroupID, exp.PayerID, p.UserID, exp.CurrencyCode, -delta); err != nil {
				return err
			}
			if err := incrementGroupPair(ctx, tx, exp.GroupID, p.UserID, exp.PayerID, exp.CurrencyCode, delta); err != nil {
				return err
			}
		}
	}
	return nil
}

func incrementPair(ctx context.Context, tx *sql.Tx, owner, counterparty, currency string, delta int64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO pair_balances (owner_id, counterparty_id, currency, amount)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(owner_id, counterparty_id, currency)
		 DO UPDATE SET amount = amount + excluded.amount`,
		owner, counterparty, currency, delta,
	)
	if err != nil {
		return fmt.Errorf("failed to increment pair balance: %w", err)
	}
	return nil
}

func incrementGroupPair(ctx context.Context, tx *sql.Tx, groupID, owner, counterparty, currency string, delta int64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO group_pair_balances (group_id, owner_id, counterparty_id, currency, amount)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(group_id, owner_id, counterparty_id, currency)
		 DO UPDATE SET amount = amount + excluded.amount`,
		groupID, owner, counterparty, currency, delta,
	)
	if err != nil {
		return fmt.Errorf("failed to increment group pair balance: %w", err)
	}
	return nil
}
