package calculator

import (
	"sort"

	"settleup/internal/models"
)

// Simplify reduces one scope's pairwise balances to an equivalent set
// with fewer non-zero edges, preserving every user's net position.
//
// Algorithm: compute each user's net from the owner-side rows, split
// users into creditors (net > 0) and debtors (net < 0), then repeatedly
// transfer min(|creditor|, |debtor|) between the largest-magnitude
// creditor and the largest-magnitude debtor until every net is zero.
// Ties break on the smaller user ID so the output is deterministic.
//
// The result is a read-time view: it is never written back over the
// per-expense-derived balances. Input rows may span currencies; each
// currency nets independently.
func Simplify(balances []models.Balance) []models.Balance {
	// net[currency][user]
	nets := make(map[string]map[string]int64)
	for _, b := range balances {
		m := nets[b.CurrencyCode]
		if m == nil {
			m = make(map[string]int64)
			nets[b.CurrencyCode] = m
		}
		m[b.OwnerID] += b.Amount
	}

	currencies := make([]string, 0, len(nets))
	for c := range nets {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)

	var out []models.Balance
	for _, currency := range currencies {
		out = append(out, settleCurrency(currency, nets[currency])...)
	}
	return out
}

type netPosition struct {
	userID string
	amount int64 // positive remainder still to transfer
}

// settleCurrency runs the greedy netting for a single currency scope
// and returns the resulting edges in both ledger directions.
func settleCurrency(currency string, nets map[string]int64) []models.Balance {
	var creditors, debtors []netPosition
	for user, net := range nets {
		switch {
		case net > 0:
			creditors = append(creditors, netPosition{user, net})
		case net < 0:
			debtors = append(debtors, netPosition{user, -net})
		}
	}

	var out []models.Balance
	for len(creditors) > 0 && len(debtors) > 0 {
		ci := largest(creditors)
		di := largest(debtors)

		amount := creditors[ci].amount
		if debtors[di].amount < amount {
			amount = debtors[di].amount
		}

		out = append(out,
			models.Balance{
				OwnerID:        creditors[ci].userID,
				CounterpartyID: debtors[di].userID,
				CurrencyCode:   currency,
				Amount:         amount,
			},
			models.Balance{
				OwnerID:        debtors[di].userID,
				CounterpartyID: creditors[ci].userID,
				CurrencyCode:   currency,
				Amount:         -amount,
			},
		)

		creditors[ci].amount -= amount
		debtors[di].amount -= amount
		if creditors[ci].amount == 0 {
			creditors = append(creditors[:ci], creditors[ci+1:]...)
		}
		if debtors[di].amount == 0 {
			debtors = append(debtors[:di], debtors[di+1:]...)
		}
	}
	return out
}

// largest picks the position with the greatest remaining amount,
// breaking ties on the lexicographically smaller user ID.
func largest(positions []netPosition) int {
	best := 0
	for i := 1; i < len(positions); i++ {
		if positions[i].amount > positions[best].amount ||
			(positions[i].amount == positions[best].amount && positions[i].userID < positions[best].userID) {
			best = i
		}
	}
	return best
}
