package models

// Balance is one direction of a pairwise balance: the signed amount the
// counterparty owes the owner in one currency. The ledger keeps the
// symmetric invariant Balance(u,f,c) == -Balance(f,u,c) at all times.
type Balance struct {
	OwnerID        string
	CounterpartyID string
	CurrencyCode   string

	// Amount is positive when the counterparty owes the owner,
	// negative when the owner owes the counterparty.
	Amount int64
}

// Net sums the owner-side amounts of a user's balances in one currency,
// yielding the user's net position.
func Net(userID, currency string, balances []Balance) int64 {
	var net int64
	for _, b := range balances {
		if b.OwnerID == userID && b.CurrencyCode == currency {
			net += b.Amount
		}
	}
	return net
}
