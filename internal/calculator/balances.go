// Package calculator turns recorded obligations into per-participant balances
// and settlement suggestions. Every function here is pure: no I/O, no hidden
// state, safe to call concurrently and to recompute on every read.
package calculator

import (
	"fmt"

	"github.com/mmynk/splitledger/internal/errs"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
)

// Aggregate folds obligations into balances, one per participant.
//
// Algorithm:
// - Every roster participant starts at {0, 0}
// - For each obligation: the payer's Paid grows by the full amount
// - For each share: the payee's Owed grows by the computed share
// - Net = Paid - Owed
//
// The result is ordered by roster position, followed by any participant that
// only appears in obligations, in order of first appearance. That order is the
// tie-break order of SuggestSettlements.
//
// Recurrence materialization must have run before the obligations were listed.
func Aggregate(roster []string, obligations []*models.Obligation) ([]models.Balance, error) {
	var order []string
	balances := make(map[string]*models.Balance)
	touch := func(id string) *models.Balance {
		if b, ok := balances[id]; ok {
			return b
		}
		b := &models.Balance{ParticipantID: id}
		balances[id] = b
		order = append(order, id)
		return b
	}

	for _, id := range roster {
		touch(id)
	}

	for _, o := range obligations {
		shares, err := ComputeShares(o)
		if err != nil {
			return nil, fmt.Errorf("failed to compute shares for obligation %s: %w", o.ID, err)
		}

		touch(o.PayerID).Paid += o.Amount
		for i, s := range o.Shares {
			touch(s.ParticipantID).Owed += shares[i]
		}
	}

	out := make([]models.Balance, len(order))
	for i, id := range order {
		b := balances[id]
		b.Net = b.Paid - b.Owed
		out[i] = *b
	}
	return out, nil
}

// ByParticipant indexes balances by participant ID.
func ByParticipant(balances []models.Balance) map[string]models.Balance {
	m := make(map[string]models.Balance, len(balances))
	for _, b := range balances {
		m[b.ParticipantID] = b
	}
	return m
}

// RoundingTolerance returns the largest |sum of nets| the given obligations can
// legitimately produce. Only EVENLY splits leave a residual: rounding each of n
// payees to the nearest unit is off by at most floor(n/2) units in total.
func RoundingTolerance(obligations []*models.Obligation) int64 {
	var tol int64
	for _, o := range obligations {
		if o.SplitPolicy == models.SplitEvenly {
			tol += int64(len(o.Shares) / 2)
		}
	}
	return tol
}

// CheckConsistency verifies that the nets of a group sum to zero within the
// rounding tolerance of its obligations.
func CheckConsistency(groupID string, balances []models.Balance, obligations []*models.Obligation) error {
	var residual int64
	for _, b := range balances {
		residual += b.Net
	}
	tol := RoundingTolerance(obligations)
	if !money.WithinTolerance(residual, tol) {
		return &errs.ConsistencyError{
			GroupID:   groupID,
			Reason:    "net balances do not sum to zero",
			Residual:  residual,
			Tolerance: tol,
		}
	}
	return nil
}
