package calculator

import (
	"fmt"

	"settleup/internal/models"
)

// DeriveShares recovers strategy-specific share inputs from the stored
// signed amounts of a previously allocated expense, for use when the
// expense is reopened for editing. The payer-credit step is undone
// first, turning each amount back into an owed magnitude.
//
// The inverse is lossy for share splits (weights normalize to their
// minimum integer ratio) and best-effort for adjustment splits, where
// the remainder-distribution pass makes an exact round trip impossible:
// the derived adjustment can be off by the distributed remainder,
// typically on the payer.
func DeriveShares(total int64, participants []models.Participant, strategy models.SplitStrategy, payerID string) ([]models.Participant, error) {
	out := make([]models.Participant, len(participants))
	copy(out, participants)

	if len(out) == 0 || total == 0 {
		return out, nil
	}

	// Undo the payer credit to recover per-participant owed magnitudes.
	owed := make([]int64, len(out))
	for i, p := range out {
		if p.UserID == payerID {
			owed[i] = total - p.Amount
		} else {
			owed[i] = -p.Amount
		}
	}

	switch strategy {
	case models.SplitEqual:
		for i := range out {
			if owed[i] != 0 {
				out[i].Share = 1
			} else {
				out[i].Share = 0
			}
		}

	case models.SplitPercentage:
		for i := range out {
			out[i].Share = owed[i] * PercentTotal / total
		}

	case models.SplitShare:
		var g int64
		for _, o := range owed {
			g = gcd(g, abs(o))
		}
		if g == 0 {
			g = 1
		}
		for i := range out {
			out[i].Share = owed[i] / g * ShareScale
		}

	case models.SplitExact:
		for i := range out {
			out[i].Share = owed[i]
		}

	case models.SplitAdjustment:
		base := total / int64(len(out))
		for i := range out {
			out[i].Share = owed[i] - base
		}

	case models.SplitSettlement, models.SplitCurrencyConversion:
		// Amounts pass through untouched; there are no share inputs.

	default:
		return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedSplitType, strategy)
	}

	return out, nil
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
