package calculator

import "github.com/mmynk/splitledger/internal/models"

// position is a participant's remaining credit or debt, always positive.
type position struct {
	id     string
	amount int64
}

// SuggestSettlements converts net balances into peer-to-peer transfers.
//
// Greedy debt simplification: repeatedly pair the creditor with the largest
// remaining credit and the debtor with the largest remaining debt, transfer
// min(credit, debt), and drop whoever reaches zero. Equal magnitudes are
// resolved by the order of balances, so output is deterministic.
//
// This needs at most n-1 transfers for n non-zero participants, but it is not
// guaranteed to reach the theoretical minimum for every distribution (finding
// that is NP-hard). Residual rounding left on one side only is not settled.
func SuggestSettlements(balances []models.Balance) []models.SettlementTransfer {
	var creditors, debtors []position
	for _, b := range balances {
		switch {
		case b.Net > 0:
			creditors = append(creditors, position{id: b.ParticipantID, amount: b.Net})
		case b.Net < 0:
			debtors = append(debtors, position{id: b.ParticipantID, amount: -b.Net})
		}
	}

	var transfers []models.SettlementTransfer
	for len(creditors) > 0 && len(debtors) > 0 {
		ci := largest(creditors)
		di := largest(debtors)

		amount := min(creditors[ci].amount, debtors[di].amount)
		transfers = append(transfers, models.SettlementTransfer{
			From:   debtors[di].id,
			To:     creditors[ci].id,
			Amount: amount,
		})

		creditors[ci].amount -= amount
		debtors[di].amount -= amount
		if creditors[ci].amount == 0 {
			creditors = append(creditors[:ci], creditors[ci+1:]...)
		}
		if debtors[di].amount == 0 {
			debtors = append(debtors[:di], debtors[di+1:]...)
		}
	}
	return transfers
}

// largest returns the index of the first position with the maximum amount.
func largest(ps []position) int {
	best := 0
	for i := 1; i < len(ps); i++ {
		if ps[i].amount > ps[best].amount {
			best = i
		}
	}
	return best
}

// ApplyTransfers returns a copy of balances with the transfers recorded as paid:
// the sender's Paid and the receiver's Owed grow by the transfer amount.
// Transfers naming unknown participants are ignored.
func ApplyTransfers(balances []models.Balance, transfers []models.SettlementTransfer) []models.Balance {
	out := make([]models.Balance, len(balances))
	copy(out, balances)
	index := make(map[string]int, len(out))
	for i, b := range out {
		index[b.ParticipantID] = i
	}

	for _, t := range transfers {
		from, okFrom := index[t.From]
		to, okTo := index[t.To]
		if !okFrom || !okTo {
			continue
		}
		out[from].Paid += t.Amount
		out[to].Owed += t.Amount
	}
	for i := range out {
		out[i].Net = out[i].Paid - out[i].Owed
	}
	return out
}
