// Package calculator holds the pure money math: split allocation, the
// share-derivation inverse, and debt simplification. Nothing in this
// package touches storage or shares mutable state, so every function is
// safe to call concurrently.
package calculator

import (
	"fmt"
	"math/rand/v2"

	"settleup/internal/models"
)

// PercentTotal is the share value representing 100.00% for percentage
// splits (shares are hundredths of a percent).
const PercentTotal = 10000

// ShareScale is the multiplier applied to share-split weights so that
// fractional shares stay integral (a weight of 1.5 is stored as 150).
const ShareScale = 100

// Allocation is the result of splitting an expense total.
type Allocation struct {
	// Participants carries the input participants with their signed
	// Amount fields resolved. The amounts always sum to zero.
	Participants []models.Participant

	// IsComplete reports whether the share inputs reconciled against
	// the total under the chosen strategy. It is a validation signal
	// for callers; the amounts sum to zero either way.
	IsComplete bool
}

// Allocate turns a total amount and per-participant share inputs into
// signed ledger deltas. Each participant's owed magnitude is computed
// under the strategy, then converted so the payer is credited with
// total minus their own share and every other participant carries the
// negation of theirs. A remainder-distribution pass runs afterwards so
// the returned amounts sum to exactly zero even when integer division
// left stray minor units.
func Allocate(total int64, participants []models.Participant, strategy models.SplitStrategy, payerID string) (Allocation, error) {
	out := make([]models.Participant, len(participants))
	copy(out, participants)

	if len(out) == 0 {
		return Allocation{Participants: out, IsComplete: false}, nil
	}
	if total == 0 {
		return Allocation{Participants: out, IsComplete: true}, nil
	}

	var complete bool
	switch strategy {
	case models.SplitSettlement, models.SplitCurrencyConversion:
		// Amounts are supplied directly by the caller.
		return Allocation{Participants: out, IsComplete: true}, nil

	case models.SplitEqual:
		var n int64
		for _, p := range out {
			if p.Share != 0 {
				n++
			}
		}
		complete = n > 0
		for i := range out {
			if n > 0 && out[i].Share != 0 {
				out[i].Amount = total / n
			} else {
				out[i].Amount = 0
			}
		}

	case models.SplitPercentage:
		var sum int64
		for i := range out {
			out[i].Amount = out[i].Share * total / PercentTotal
			sum += out[i].Share
		}
		complete = sum == PercentTotal

	case models.SplitShare:
		var sum int64
		for _, p := range out {
			sum += p.Share
		}
		complete = sum > 0
		for i := range out {
			if sum > 0 {
				out[i].Amount = out[i].Share * total / sum
			} else {
				out[i].Amount = 0
			}
		}

	case models.SplitExact:
		var sum int64
		for i := range out {
			out[i].Amount = out[i].Share
			sum += out[i].Share
		}
		complete = sum == total

	case models.SplitAdjustment:
		var deltas int64
		for _, p := range out {
			deltas += p.Share
		}
		base := (total - deltas) / int64(len(out))
		for i := range out {
			out[i].Amount = base + out[i].Share
		}
		complete = deltas <= total

	default:
		return Allocation{}, fmt.Errorf("%w: %s", models.ErrUnsupportedSplitType, strategy)
	}

	// Convert owed magnitudes into signed ledger deltas: the payer is
	// credited with whatever they fronted beyond their own share.
	for i := range out {
		if out[i].UserID == payerID {
			out[i].Amount = total - out[i].Amount
		} else {
			out[i].Amount = -out[i].Amount
		}
	}

	distributeRemainder(out)

	return Allocation{Participants: out, IsComplete: complete}, nil
}

// distributeRemainder drives the sum of the signed amounts to exactly
// zero, one minor unit at a time, over participants with a non-zero
// amount visited in a shuffled order. Shuffling avoids always burdening
// the same participant across repeated expenses with the same totals.
// This runs unconditionally, including for incomplete allocations.
func distributeRemainder(participants []models.Participant) {
	var leftover int64
	for _, p := range participants {
		leftover += p.Amount
	}
	if leftover == 0 {
		return
	}

	step := int64(1)
	if leftover < 0 {
		step = -1
	}

	order := rand.Perm(len(participants))
	for leftover != 0 {
		var eligible []int
		for _, idx := range order {
			if participants[idx].Amount != 0 {
				eligible = append(eligible, idx)
			}
		}
		if len(eligible) == 1 {
			participants[eligible[0]].Amount -= leftover
			return
		}
		for _, idx := range eligible {
			if leftover == 0 {
				break
			}
			participants[idx].Amount -= step
			leftover -= step
		}
	}
}
