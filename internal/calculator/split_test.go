package calculator

import (
	"errors"
	"testing"

	"settleup/internal/models"
)

func sumAmounts(participants []models.Participant) int64 {
	var sum int64
	for _, p := range participants {
		sum += p.Amount
	}
	return sum
}

func amountOf(t *testing.T, participants []models.Participant, userID string) int64 {
	t.Helper()
	for _, p := range participants {
		if p.UserID == userID {
			return p.Amount
		}
	}
	t.Fatalf("participant %s missing from allocation", userID)
	return 0
}

func TestAllocate(t *testing.T) {
	tests := []struct {
		name         string
		total        int64
		participants []models.Participant
		strategy     models.SplitStrategy
		payerID      string
		wantComplete bool
		validate     func(t *testing.T, got []models.Participant)
	}{
		{
			name:  "equal three-way split",
			total: 30000,
			participants: []models.Participant{
				{UserID: "u1", Share: 1},
				{UserID: "u2", Share: 1},
				{UserID: "u3", Share: 1},
			},
			strategy:     models.SplitEqual,
			payerID:      "u1",
			wantComplete: true,
			validate: func(t *testing.T, got []models.Participant) {
				if a := amountOf(t, got, "u1"); a != 20000 {
					t.Errorf("payer amount = %d, want 20000", a)
				}
				for _, u := range []string{"u2", "u3"} {
					if a := amountOf(t, got, u); a != -10000 {
						t.Errorf("%s amount = %d, want -10000", u, a)
					}
				}
			},
		},
		{
			name:  "equal split with remainder",
			total: 10001,
			participants: []models.Participant{
				{UserID: "u1", Share: 1},
				{UserID: "u2", Share: 1},
				{UserID: "u3", Share: 1},
			},
			strategy:     models.SplitEqual,
			payerID:      "u1",
			wantComplete: true,
			validate: func(t *testing.T, got []models.Participant) {
				// Leftover pennies land on distinct participants, so
				// owed shares differ pairwise by at most one unit and
				// the payer keeps at least 6667.
				if a := amountOf(t, got, "u1"); a < 6667 {
					t.Errorf("payer amount = %d, want >= 6667", a)
				}
				owed := []int64{
					10001 - amountOf(t, got, "u1"),
					-amountOf(t, got, "u2"),
					-amountOf(t, got, "u3"),
				}
				for i, a := range owed {
					for j, b := range owed {
						if diff := a - b; diff > 1 || diff < -1 {
							t.Errorf("owed[%d]=%d and owed[%d]=%d differ by more than 1", i, a, j, b)
						}
					}
				}
			},
		},
		{
			name:  "equal split excludes zero-flag participants",
			total: 9000,
			participants: []models.Participant{
				{UserID: "u1", Share: 1},
				{UserID: "u2", Share: 0},
				{UserID: "u3", Share: 1},
			},
			strategy:     models.SplitEqual,
			payerID:      "u1",
			wantComplete: true,
			validate: func(t *testing.T, got []models.Participant) {
				if a := amountOf(t, got, "u2"); a != 0 {
					t.Errorf("excluded participant amount = %d, want 0", a)
				}
				if a := amountOf(t, got, "u3"); a != -4500 {
					t.Errorf("u3 amount = %d, want -4500", a)
				}
			},
		},
		{
			name:  "equal split with no eligible participants",
			total: 5000,
			participants: []models.Participant{
				{UserID: "u1", Share: 0},
				{UserID: "u2", Share: 0},
			},
			strategy:     models.SplitEqual,
			payerID:      "u1",
			wantComplete: false,
		},
		{
			name:  "percentage 50/30/20",
			total: 10000,
			participants: []models.Participant{
				{UserID: "u1", Share: 5000},
				{UserID: "u2", Share: 3000},
				{UserID: "u3", Share: 2000},
			},
			strategy:     models.SplitPercentage,
			payerID:      "u1",
			wantComplete: true,
			validate: func(t *testing.T, got []models.Participant) {
				if a := amountOf(t, got, "u1"); a != 5000 {
					t.Errorf("payer amount = %d, want 5000", a)
				}
				if a := amountOf(t, got, "u2"); a != -3000 {
					t.Errorf("u2 amount = %d, want -3000", a)
				}
				if a := amountOf(t, got, "u3"); a != -2000 {
					t.Errorf("u3 amount = %d, want -2000", a)
				}
			},
		},
		{
			name:  "percentage not summing to 100",
			total: 10000,
			participants: []models.Participant{
				{UserID: "u1", Share: 5000},
				{UserID: "u2", Share: 3000},
			},
			strategy:     models.SplitPercentage,
			payerID:      "u1",
			wantComplete: false,
		},
		{
			name:  "weighted shares",
			total: 6000,
			participants: []models.Participant{
				{UserID: "u1", Share: 200},
				{UserID: "u2", Share: 100},
			},
			strategy:     models.SplitShare,
			payerID:      "u1",
			wantComplete: true,
			validate: func(t *testing.T, got []models.Participant) {
				if a := amountOf(t, got, "u1"); a != 2000 {
					t.Errorf("payer amount = %d, want 2000", a)
				}
				if a := amountOf(t, got, "u2"); a != -2000 {
					t.Errorf("u2 amount = %d, want -2000", a)
				}
			},
		},
		{
			name:  "exact amounts matching total",
			total: 10000,
			participants: []models.Participant{
				{UserID: "u1", Share: 7000},
				{UserID: "u2", Share: 3000},
			},
			strategy:     models.SplitExact,
			payerID:      "u1",
			wantComplete: true,
			validate: func(t *testing.T, got []models.Participant) {
				if a := amountOf(t, got, "u1"); a != 3000 {
					t.Errorf("payer amount = %d, want 3000", a)
				}
				if a := amountOf(t, got, "u2"); a != -3000 {
					t.Errorf("u2 amount = %d, want -3000", a)
				}
			},
		},
		{
			name:  "exact amounts short of total",
			total: 10000,
			participants: []models.Participant{
				{UserID: "u1", Share: 5000},
				{UserID: "u2", Share: 2500},
				{UserID: "u3", Share: 1500},
			},
			strategy:     models.SplitExact,
			payerID:      "u1",
			wantComplete: false,
		},
		{
			name:  "adjustment deltas off an equal base",
			total: 9000,
			participants: []models.Participant{
				{UserID: "u1", Share: 0},
				{UserID: "u2", Share: 1500},
				{UserID: "u3", Share: -1500},
			},
			strategy:     models.SplitAdjustment,
			payerID:      "u1",
			wantComplete: true,
			validate: func(t *testing.T, got []models.Participant) {
				// Base is (9000-0)/3 = 3000; owed 3000/4500/1500.
				if a := amountOf(t, got, "u1"); a != 6000 {
					t.Errorf("payer amount = %d, want 6000", a)
				}
				if a := amountOf(t, got, "u2"); a != -4500 {
					t.Errorf("u2 amount = %d, want -4500", a)
				}
				if a := amountOf(t, got, "u3"); a != -1500 {
					t.Errorf("u3 amount = %d, want -1500", a)
				}
			},
		},
		{
			name:  "settlement passes amounts through",
			total: 2500,
			participants: []models.Participant{
				{UserID: "u1", Amount: 2500},
				{UserID: "u2", Amount: -2500},
			},
			strategy:     models.SplitSettlement,
			payerID:      "u2",
			wantComplete: true,
			validate: func(t *testing.T, got []models.Participant) {
				if a := amountOf(t, got, "u1"); a != 2500 {
					t.Errorf("u1 amount = %d, want 2500", a)
				}
			},
		},
		{
			name:         "zero total is a no-op",
			total:        0,
			participants: []models.Participant{{UserID: "u1", Share: 1}, {UserID: "u2", Share: 1}},
			strategy:     models.SplitEqual,
			payerID:      "u1",
			wantComplete: true,
		},
		{
			name:         "empty participants",
			total:        1000,
			participants: nil,
			strategy:     models.SplitEqual,
			payerID:      "u1",
			wantComplete: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Allocate(tt.total, tt.participants, tt.strategy, tt.payerID)
			if err != nil {
				t.Fatalf("Allocate() error = %v", err)
			}
			if got.IsComplete != tt.wantComplete {
				t.Errorf("IsComplete = %v, want %v", got.IsComplete, tt.wantComplete)
			}
			if sum := sumAmounts(got.Participants); sum != 0 {
				t.Errorf("amounts sum to %d, want 0", sum)
			}
			if tt.validate != nil {
				tt.validate(t, got.Participants)
			}
		})
	}
}

func TestAllocateUnsupportedStrategy(t *testing.T) {
	_, err := Allocate(1000, []models.Participant{{UserID: "u1", Share: 1}}, models.SplitStrategy(42), "u1")
	if !errors.Is(err, models.ErrUnsupportedSplitType) {
		t.Fatalf("Allocate() error = %v, want ErrUnsupportedSplitType", err)
	}
}

// TestAllocateZeroSum hammers the zero-sum invariant across strategies
// and awkward totals, incomplete inputs included.
func TestAllocateZeroSum(t *testing.T) {
	participants := func(shares ...int64) []models.Participant {
		out := make([]models.Participant, len(shares))
		for i, s := range shares {
			out[i] = models.Participant{UserID: string(rune('a' + i)), Share: s}
		}
		return out
	}

	cases := []struct {
		strategy models.SplitStrategy
		shares   []int64
	}{
		{models.SplitEqual, []int64{1, 1, 1, 1, 1, 1, 1}},
		{models.SplitEqual, []int64{1, 0, 1, 0, 1}},
		{models.SplitPercentage, []int64{3333, 3333, 3334}},
		{models.SplitPercentage, []int64{1000, 2000}}, // incomplete
		{models.SplitShare, []int64{150, 250, 100}},
		{models.SplitExact, []int64{1, 2, 3}}, // incomplete
		{models.SplitAdjustment, []int64{0, 1, -1, 7}},
	}

	totals := []int64{1, 7, 100, 10001, 99999, 1234567}
	for _, c := range cases {
		for _, total := range totals {
			got, err := Allocate(total, participants(c.shares...), c.strategy, "a")
			if err != nil {
				t.Fatalf("Allocate(%s, %d) error = %v", c.strategy, total, err)
			}
			if sum := sumAmounts(got.Participants); sum != 0 {
				t.Errorf("Allocate(%s, %d): amounts sum to %d, want 0", c.strategy, total, sum)
			}
		}
	}
}

func TestDeriveShares(t *testing.T) {
	t.Run("percentage round trip", func(t *testing.T) {
		in := []models.Participant{
			{UserID: "u1", Share: 5000},
			{UserID: "u2", Share: 3000},
			{UserID: "u3", Share: 2000},
		}
		alloc, err := Allocate(10000, in, models.SplitPercentage, "u1")
		if err != nil {
			t.Fatal(err)
		}
		got, err := DeriveShares(10000, alloc.Participants, models.SplitPercentage, "u1")
		if err != nil {
			t.Fatal(err)
		}
		for i, p := range got {
			if p.Share != in[i].Share {
				t.Errorf("%s share = %d, want %d", p.UserID, p.Share, in[i].Share)
			}
		}
	})

	t.Run("exact round trip", func(t *testing.T) {
		in := []models.Participant{
			{UserID: "u1", Share: 7000},
			{UserID: "u2", Share: 3000},
		}
		alloc, err := Allocate(10000, in, models.SplitExact, "u1")
		if err != nil {
			t.Fatal(err)
		}
		got, err := DeriveShares(10000, alloc.Participants, models.SplitExact, "u1")
		if err != nil {
			t.Fatal(err)
		}
		for i, p := range got {
			if p.Share != in[i].Share {
				t.Errorf("%s share = %d, want %d", p.UserID, p.Share, in[i].Share)
			}
		}
	})

	t.Run("share weights normalize to minimum ratio", func(t *testing.T) {
		in := []models.Participant{
			{UserID: "u1", Share: 400},
			{UserID: "u2", Share: 200},
		}
		alloc, err := Allocate(6000, in, models.SplitShare, "u1")
		if err != nil {
			t.Fatal(err)
		}
		got, err := DeriveShares(6000, alloc.Participants, models.SplitShare, "u1")
		if err != nil {
			t.Fatal(err)
		}
		// Owed 4000/2000 reduces to 2:1, scaled x100.
		if got[0].Share != 200 || got[1].Share != 100 {
			t.Errorf("shares = [%d %d], want [200 100]", got[0].Share, got[1].Share)
		}
	})

	t.Run("equal flags recovered", func(t *testing.T) {
		in := []models.Participant{
			{UserID: "u1", Share: 1},
			{UserID: "u2", Share: 0},
			{UserID: "u3", Share: 1},
		}
		alloc, err := Allocate(8000, in, models.SplitEqual, "u1")
		if err != nil {
			t.Fatal(err)
		}
		got, err := DeriveShares(8000, alloc.Participants, models.SplitEqual, "u1")
		if err != nil {
			t.Fatal(err)
		}
		want := []int64{1, 0, 1}
		for i, p := range got {
			if p.Share != want[i] {
				t.Errorf("%s flag = %d, want %d", p.UserID, p.Share, want[i])
			}
		}
	})

	t.Run("adjustment inverse is best-effort", func(t *testing.T) {
		// The remainder-distribution pass makes the adjustment
		// inverse inexact: with total 10000 over 3 the derived deltas
		// can be off by the distributed remainder. The round trip is
		// only guaranteed to stay within one minor unit per
		// participant; an exact match is not promised.
		in := []models.Participant{
			{UserID: "u1", Share: 0},
			{UserID: "u2", Share: 500},
			{UserID: "u3", Share: -500},
		}
		alloc, err := Allocate(10000, in, models.SplitAdjustment, "u1")
		if err != nil {
			t.Fatal(err)
		}
		got, err := DeriveShares(10000, alloc.Participants, models.SplitAdjustment, "u1")
		if err != nil {
			t.Fatal(err)
		}
		for i, p := range got {
			if diff := p.Share - in[i].Share; diff > 1 || diff < -1 {
				t.Errorf("%s derived delta = %d, want within 1 of %d", p.UserID, p.Share, in[i].Share)
			}
		}
	})
}
