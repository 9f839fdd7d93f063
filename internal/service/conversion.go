package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"settleup/internal/metrics"
	"settleup/internal/models"
)

// BuildConversionLegs constructs the two linked expenses that move a
// debt from one currency into another: the source leg cancels `amount`
// of the debtor's obligation in the source currency, and the target leg
// recreates it in the target currency at the given rate, rounded
// half-up to minor units. The rate comes from an external provider and
// must be resolved before the ledger is touched.
func BuildConversionLegs(debtorID, creditorID string, amount int64, fromCurrency, toCurrency string, rate decimal.Decimal) (source, target *models.Expense, err error) {
	if amount <= 0 {
		return nil, nil, fmt.Errorf("conversion amount %d: %w", amount, models.ErrInvalidExpense)
	}
	if rate.Sign() <= 0 {
		return nil, nil, fmt.Errorf("conversion rate %s: %w", rate, models.ErrInvalidExpense)
	}
	if fromCurrency == toCurrency {
		return nil, nil, fmt.Errorf("conversion within %s: %w", fromCurrency, models.ErrInvalidExpense)
	}

	converted := decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()

	source = &models.Expense{
		Description:  fmt.Sprintf("Convert %s to %s", fromCurrency, toCurrency),
		PayerID:      debtorID,
		TotalAmount:  amount,
		CurrencyCode: fromCurrency,
		Strategy:     models.SplitCurrencyConversion,
		Participants: []models.Participant{
			{UserID: debtorID, Amount: amount},
			{UserID: creditorID, Amount: -amount},
		},
	}
	target = &models.Expense{
		Description:  fmt.Sprintf("Convert %s to %s", fromCurrency, toCurrency),
		PayerID:      creditorID,
		TotalAmount:  converted,
		CurrencyCode: toCurrency,
		Strategy:     models.SplitCurrencyConversion,
		Participants: []models.Participant{
			{UserID: creditorID, Amount: converted},
			{UserID: debtorID, Amount: -converted},
		},
	}
	return source, target, nil
}

// CreateConversion persists both legs of a currency conversion in one
// transaction, cross-referenced so that later edits and deletes cascade
// between them.
func (l *Ledger) CreateConversion(ctx context.Context, source, target *models.Expense, actorID string) error {
	start := time.Now()
	err := l.createConversion(ctx, source, target, actorID)
	metrics.ObserveOp("create_conversion", start, err)
	if err != nil {
		slog.Error("CreateConversion failed", "actor", actorID, "error", err)
		return err
	}
	slog.Info("Conversion created",
		"source_id", source.ID, "source_currency", source.CurrencyCode,
		"target_id", target.ID, "target_currency", target.CurrencyCode,
	)
	return nil
}

func (l *Ledger) createConversion(ctx context.Context, source, target *models.Expense, actorID string) error {
	for _, leg := range []*models.Expense{source, target} {
		if leg.Strategy != models.SplitCurrencyConversion {
			return fmt.Errorf("conversion leg has strategy %s: %w", leg.Strategy, models.ErrInvalidExpense)
		}
		if err := validateExpense(leg); err != nil {
			return err
		}
		if err := l.checkGroupActive(ctx, leg.GroupID); err != nil {
			return err
		}
		leg.CreatedBy = actorID
	}

	if err := l.store.CreateConversionPair(ctx, source, target); err != nil {
		return fmt.Errorf("persist conversion pair: %w", err)
	}
	return l.reconcileZeroPairs(ctx, source, target)
}

// UpdateConversion replaces both legs of an existing conversion pair
// atomically. The caller supplies the recomputed legs (typically via
// BuildConversionLegs with a fresh rate); a failure on either leg rolls
// the whole edit back.
func (l *Ledger) UpdateConversion(ctx context.Context, sourceID string, source, target *models.Expense, actorID string) error {
	start := time.Now()
	err := l.updateConversion(ctx, sourceID, source, target, actorID)
	metrics.ObserveOp("update_conversion", start, err)
	if err != nil {
		slog.Error("UpdateConversion failed", "source_id", sourceID, "actor", actorID, "error", err)
		return err
	}
	slog.Info("Conversion updated", "source_id", sourceID, "actor", actorID)
	return nil
}

func (l *Ledger) updateConversion(ctx context.Context, sourceID string, source, target *models.Expense, actorID string) error {
	oldSource, err := l.store.GetExpense(ctx, sourceID)
	if err != nil {
		return err
	}
	if oldSource.Deleted() {
		return fmt.Errorf("expense %s is deleted: %w", sourceID, models.ErrNotFound)
	}
	if oldSource.LinkedExpenseID == "" {
		return fmt.Errorf("expense %s is not a conversion leg: %w", sourceID, models.ErrInvalidExpense)
	}
	oldTarget, err := l.store.GetExpense(ctx, oldSource.LinkedExpenseID)
	if err != nil {
		return fmt.Errorf("conversion sibling: %w", err)
	}
	if err := authorize(oldSource, actorID); err != nil {
		return err
	}
	if err := l.checkGroupActive(ctx, oldSource.GroupID); err != nil {
		return err
	}

	now := time.Now().Unix()
	for _, leg := range []*models.Expense{source, target} {
		if err := validateExpense(leg); err != nil {
			return err
		}
	}
	source.ID = oldSource.ID
	source.LinkedExpenseID = oldTarget.ID
	source.CreatedBy = oldSource.CreatedBy
	source.CreatedAt = oldSource.CreatedAt
	target.ID = oldTarget.ID
	target.LinkedExpenseID = oldSource.ID
	target.CreatedBy = oldTarget.CreatedBy
	target.CreatedAt = oldTarget.CreatedAt
	source.UpdatedBy, source.UpdatedAt = actorID, now
	target.UpdatedBy, target.UpdatedAt = actorID, now

	if err := l.store.UpdateConversionPair(ctx, source, target); err != nil {
		return fmt.Errorf("persist conversion update: %w", err)
	}
	return l.reconcileZeroPairs(ctx, oldSource, oldTarget, source, target)
}

// RecordSettlement records a direct payment from one user to another,
// reducing the payer's outstanding debt by the paid amount.
func (l *Ledger) RecordSettlement(ctx context.Context, fromUserID, toUserID string, amount int64, currency, groupID, actorID string) (*models.Expense, error) {
	settlement := &models.Expense{
		Description:  "Settlement",
		PayerID:      fromUserID,
		TotalAmount:  amount,
		CurrencyCode: currency,
		Strategy:     models.SplitSettlement,
		GroupID:      groupID,
		Participants: []models.Participant{
			{UserID: fromUserID, Amount: amount},
			{UserID: toUserID, Amount: -amount},
		},
	}
	return l.CreateExpense(ctx, settlement, actorID)
}
