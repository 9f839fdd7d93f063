package models

import "fmt"

// SplitStrategy selects the rule used to divide an expense's total
// among its participants.
type SplitStrategy int

const (
	// SplitEqual divides the total evenly among participants whose
	// share flag is non-zero.
	SplitEqual SplitStrategy = iota

	// SplitPercentage interprets shares as hundredths of a percent
	// (0-10000 covering 0-100.00%).
	SplitPercentage

	// SplitShare interprets shares as arbitrary positive weights,
	// stored x100 to allow fractional shares.
	SplitShare

	// SplitExact interprets shares as owed amounts in minor units.
	SplitExact

	// SplitAdjustment interprets shares as signed deltas off an
	// equal split.
	SplitAdjustment

	// SplitSettlement marks a direct payment between two users;
	// amounts are supplied by the caller.
	SplitSettlement

	// SplitCurrencyConversion marks one leg of a linked
	// cross-currency expense pair; amounts are supplied by the caller.
	SplitCurrencyConversion
)

var strategyNames = map[SplitStrategy]string{
	SplitEqual:              "equal",
	SplitPercentage:         "percentage",
	SplitShare:              "share",
	SplitExact:              "exact",
	SplitAdjustment:         "adjustment",
	SplitSettlement:         "settlement",
	SplitCurrencyConversion: "currency_conversion",
}

func (s SplitStrategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// ParseSplitStrategy converts the stored text form back into a strategy.
func ParseSplitStrategy(name string) (SplitStrategy, error) {
	for s, n := range strategyNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedSplitType, name)
}
