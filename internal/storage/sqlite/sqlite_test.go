package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"settleup/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func mustPairBalance(t *testing.T, store *SQLiteStore, owner, counterparty, currency string) int64 {
	t.Helper()
	amount, err := store.PairBalance(context.Background(), owner, counterparty, currency)
	if err != nil {
		t.Fatalf("PairBalance(%s, %s) failed: %v", owner, counterparty, err)
	}
	return amount
}

func dinnerExpense(groupID string) *models.Expense {
	return &models.Expense{
		Description:  "Dinner",
		PayerID:      "alice",
		TotalAmount:  30000,
		CurrencyCode: "USD",
		Strategy:     models.SplitEqual,
		GroupID:      groupID,
		CreatedBy:    "alice",
		Participants: []models.Participant{
			{UserID: "alice", Amount: 20000, Share: 1},
			{UserID: "bob", Amount: -10000, Share: 1},
			{UserID: "carol", Amount: -10000, Share: 1},
		},
	}
}

func TestCreateAndGetExpense(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	exp := dinnerExpense("")
	if err := store.CreateExpense(ctx, exp); err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}
	if exp.ID == "" {
		t.Error("expected expense ID to be generated")
	}
	if exp.CreatedAt == 0 {
		t.Error("expected CreatedAt to be set")
	}

	got, err := store.GetExpense(ctx, exp.ID)
	if err != nil {
		t.Fatalf("GetExpense failed: %v", err)
	}
	if got.PayerID != "alice" || got.TotalAmount != 30000 || got.Strategy != models.SplitEqual {
		t.Errorf("unexpected expense: %+v", got)
	}
	if len(got.Participants) != 3 {
		t.Fatalf("got %d participants, want 3", len(got.Participants))
	}
	if p := got.Participant("bob"); p == nil || p.Amount != -10000 {
		t.Errorf("bob participant = %+v", p)
	}
}

func TestGetExpenseNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetExpense(context.Background(), "nope")
	if err == nil {
		t.Fatal("expected error for missing expense")
	}
}

func TestCreateExpenseAppliesBalances(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateExpense(ctx, dinnerExpense("")); err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	if got := mustPairBalance(t, store, "alice", "bob", "USD"); got != 10000 {
		t.Errorf("alice/bob = %d, want 10000", got)
	}
	if got := mustPairBalance(t, store, "bob", "alice", "USD"); got != -10000 {
		t.Errorf("bob/alice = %d, want -10000", got)
	}
	if got := mustPairBalance(t, store, "alice", "carol", "USD"); got != 10000 {
		t.Errorf("alice/carol = %d, want 10000", got)
	}
	// No balance between the two non-payers.
	if got := mustPairBalance(t, store, "bob", "carol", "USD"); got != 0 {
		t.Errorf("bob/carol = %d, want 0", got)
	}
}

func TestGroupBalancesTrackGlobal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	group := &models.Group{Name: "Trip", Members: []string{"alice", "bob", "carol"}}
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	if err := store.CreateExpense(ctx, dinnerExpense(group.ID)); err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	balances, err := store.BalancesForGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("BalancesForGroup failed: %v", err)
	}
	if len(balances) != 4 {
		t.Fatalf("got %d group balance rows, want 4", len(balances))
	}
	for _, b := range balances {
		mirror := mustPairBalance(t, store, b.OwnerID, b.CounterpartyID, b.CurrencyCode)
		if mirror != b.Amount {
			t.Errorf("group balance %s/%s = %d, global = %d", b.OwnerID, b.CounterpartyID, b.Amount, mirror)
		}
	}
}

func TestUpdateExpenseReversesOldDeltas(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	exp := dinnerExpense("")
	if err := store.CreateExpense(ctx, exp); err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	// Bob now owes 20000 and carol nothing.
	updated := *exp
	updated.Participants = []models.Participant{
		{UserID: "alice", Amount: 20000, Share: 1},
		{UserID: "bob", Amount: -20000, Share: 1},
	}
	updated.UpdatedBy = "alice"
	updated.UpdatedAt = exp.CreatedAt + 60
	if err := store.UpdateExpense(ctx, &updated); err != nil {
		t.Fatalf("UpdateExpense failed: %v", err)
	}

	if got := mustPairBalance(t, store, "alice", "bob", "USD"); got != 20000 {
		t.Errorf("alice/bob = %d, want 20000", got)
	}
	if got := mustPairBalance(t, store, "alice", "carol", "USD"); got != 0 {
		t.Errorf("alice/carol = %d, want 0", got)
	}

	got, err := store.GetExpense(ctx, exp.ID)
	if err != nil {
		t.Fatalf("GetExpense failed: %v", err)
	}
	if len(got.Participants) != 2 {
		t.Errorf("got %d participants, want 2", len(got.Participants))
	}
	if got.UpdatedAt != updated.UpdatedAt {
		t.Errorf("UpdatedAt = %d, want %d", got.UpdatedAt, updated.UpdatedAt)
	}
}

func TestDeleteExpenseRestoresBalances(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	exp := dinnerExpense("")
	if err := store.CreateExpense(ctx, exp); err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}
	if err := store.DeleteExpense(ctx, exp.ID, "alice", exp.CreatedAt+60); err != nil {
		t.Fatalf("DeleteExpense failed: %v", err)
	}

	for _, counterparty := range []string{"bob", "carol"} {
		if got := mustPairBalance(t, store, "alice", counterparty, "USD"); got != 0 {
			t.Errorf("alice/%s = %d, want 0 after delete", counterparty, got)
		}
	}

	got, err := store.GetExpense(ctx, exp.ID)
	if err != nil {
		t.Fatalf("GetExpense failed after soft delete: %v", err)
	}
	if !got.Deleted() || got.DeletedBy != "alice" {
		t.Errorf("expense not soft-deleted: %+v", got)
	}
	if len(got.Participants) != 3 {
		t.Errorf("participant rows removed on soft delete")
	}
}

func TestDeleteConversionPairCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	source := &models.Expense{
		Description:  "FX out",
		PayerID:      "alice",
		TotalAmount:  10000,
		CurrencyCode: "USD",
		Strategy:     models.SplitCurrencyConversion,
		CreatedBy:    "alice",
		Participants: []models.Participant{
			{UserID: "alice", Amount: 10000},
			{UserID: "bob", Amount: -10000},
		},
	}
	target := &models.Expense{
		Description:  "FX in",
		PayerID:      "bob",
		TotalAmount:  9200,
		CurrencyCode: "EUR",
		Strategy:     models.SplitCurrencyConversion,
		CreatedBy:    "alice",
		Participants: []models.Participant{
			{UserID: "bob", Amount: 9200},
			{UserID: "alice", Amount: -9200},
		},
	}
	if err := store.CreateConversionPair(ctx, source, target); err != nil {
		t.Fatalf("CreateConversionPair failed: %v", err)
	}
	if source.LinkedExpenseID != target.ID || target.LinkedExpenseID != source.ID {
		t.Fatal("legs not cross-referenced")
	}

	// Deleting one leg removes the other in the same transaction.
	if err := store.DeleteExpense(ctx, target.ID, "alice", 0); err != nil {
		t.Fatalf("DeleteExpense failed: %v", err)
	}

	for _, id := range []string{source.ID, target.ID} {
		got, err := store.GetExpense(ctx, id)
		if err != nil {
			t.Fatalf("GetExpense(%s) failed: %v", id, err)
		}
		if !got.Deleted() {
			t.Errorf("leg %s not deleted", id)
		}
	}
	if got := mustPairBalance(t, store, "alice", "bob", "USD"); got != 0 {
		t.Errorf("alice/bob USD = %d, want 0", got)
	}
	if got := mustPairBalance(t, store, "bob", "alice", "EUR"); got != 0 {
		t.Errorf("bob/alice EUR = %d, want 0", got)
	}
}

func TestRecalculateGroupMatchesIncremental(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	group := &models.Group{Name: "Flat", Members: []string{"alice", "bob", "carol"}}
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	exps := []*models.Expense{dinnerExpense(group.ID), dinnerExpense(group.ID)}
	exps[1].PayerID = "bob"
	exps[1].Participants = []models.Participant{
		{UserID: "bob", Amount: 7000, Share: 1},
		{UserID: "alice", Amount: -7000, Share: 1},
	}
	exps[1].TotalAmount = 14000
	for i, exp := range exps {
		exp.CreatedAt = int64(1000 + i)
		if err := store.CreateExpense(ctx, exp); err != nil {
			t.Fatalf("CreateExpense %d failed: %v", i, err)
		}
	}

	incremental, err := store.BalancesForGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("BalancesForGroup failed: %v", err)
	}

	if err := store.RecalculateGroup(ctx, group.ID); err != nil {
		t.Fatalf("RecalculateGroup failed: %v", err)
	}

	rebuilt, err := store.BalancesForGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("BalancesForGroup after rebuild failed: %v", err)
	}

	if len(rebuilt) != len(incremental) {
		t.Fatalf("rebuilt %d rows, incremental %d", len(rebuilt), len(incremental))
	}
	for i := range rebuilt {
		if rebuilt[i] != incremental[i] {
			t.Errorf("row %d: rebuilt %+v, incremental %+v", i, rebuilt[i], incremental[i])
		}
	}
}

func TestZeroGroupPair(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	group := &models.Group{Name: "Trip", Members: []string{"alice", "bob", "carol"}}
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if err := store.CreateExpense(ctx, dinnerExpense(group.ID)); err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	if err := store.ZeroGroupPair(ctx, "alice", "bob", "USD"); err != nil {
		t.Fatalf("ZeroGroupPair failed: %v", err)
	}

	balances, err := store.BalancesForGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("BalancesForGroup failed: %v", err)
	}
	for _, b := range balances {
		if (b.OwnerID == "alice" && b.CounterpartyID == "bob") ||
			(b.OwnerID == "bob" && b.CounterpartyID == "alice") {
			t.Errorf("pair not zeroed: %+v", b)
		}
	}
	// The carol pair is untouched.
	found := false
	for _, b := range balances {
		if b.OwnerID == "alice" && b.CounterpartyID == "carol" && b.Amount == 10000 {
			found = true
		}
	}
	if !found {
		t.Error("alice/carol group balance lost")
	}
}

func TestGroupLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	group := &models.Group{Name: "Ski house", Members: []string{"alice", "bob"}, SimplifyDebts: true}
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	got, err := store.GetGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	if got.Name != "Ski house" || !got.SimplifyDebts || got.Archived() {
		t.Errorf("unexpected group: %+v", got)
	}
	if len(got.Members) != 2 {
		t.Errorf("got %d members, want 2", len(got.Members))
	}

	if err := store.ArchiveGroup(ctx, group.ID, 12345); err != nil {
		t.Fatalf("ArchiveGroup failed: %v", err)
	}
	got, err = store.GetGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	if !got.Archived() {
		t.Error("group not archived")
	}
}
