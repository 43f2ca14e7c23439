package calculator

import (
	"math"
	"slices"

	"github.com/mmynk/splitledger/internal/errs"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
)

// ValidateShares checks an obligation's amount, policy and payee weights.
// It runs at obligation-write time; ComputeShares re-runs it so stored rows
// that were written by an older version fail loudly instead of skewing balances.
func ValidateShares(amount int64, policy models.SplitPolicy, shares []models.Share) error {
	if amount < 0 {
		return errs.Invalid("amount", "must not be negative, got %d", amount)
	}
	if !policy.Valid() {
		return errs.Invalid("split_policy", "unknown policy %q", policy)
	}
	if len(shares) == 0 {
		return errs.Invalid("shares", "at least one payee is required")
	}

	seen := make(map[string]bool, len(shares))
	var total int64
	for _, s := range shares {
		if s.ParticipantID == "" {
			return errs.Invalid("shares", "payee id is required")
		}
		if seen[s.ParticipantID] {
			return errs.Invalid("shares", "payee %s listed more than once", s.ParticipantID)
		}
		seen[s.ParticipantID] = true

		if s.Weight <= 0 {
			return errs.Invalid("shares", "weight for %s must be positive, got %d", s.ParticipantID, s.Weight)
		}
		if total > math.MaxInt64-s.Weight {
			return errs.Invalid("shares", "weights overflow")
		}
		total += s.Weight
	}

	switch policy {
	case models.SplitByAmount:
		if total != amount {
			return errs.Invalid("shares", "amounts sum to %d, want %d", total, amount)
		}
	case models.SplitByPercentage:
		if total != models.BasisPointsTotal {
			return errs.Invalid("shares", "basis points sum to %d, want %d", total, models.BasisPointsTotal)
		}
	}
	return nil
}

// ComputeShare computes one payee's share of an obligation using the plain
// per-payee formula:
//
//	EVENLY:        round(amount / payeeCount)
//	BY_SHARES:     round(amount * weight / totalWeight)
//	BY_AMOUNT:     weight
//	BY_PERCENTAGE: round(amount * weight / 10000)
//
// Rounding is to the nearest minor unit, halves up. The remainder is not
// redistributed here; ComputeShares does that for the weighted policies.
func ComputeShare(o *models.Obligation, weight int64) (int64, error) {
	if err := ValidateShares(o.Amount, o.SplitPolicy, o.Shares); err != nil {
		return 0, err
	}
	if weight <= 0 {
		return 0, errs.Invalid("weight", "must be positive, got %d", weight)
	}

	switch o.SplitPolicy {
	case models.SplitEvenly:
		return money.DivRound(o.Amount, int64(len(o.Shares))), nil
	case models.SplitByShares:
		total := totalWeight(o.Shares)
		if weight > total {
			return 0, errs.Invalid("weight", "%d exceeds total weight %d", weight, total)
		}
		return money.MulDivRound(o.Amount, weight, total), nil
	case models.SplitByAmount:
		return weight, nil
	default: // BY_PERCENTAGE
		if weight > models.BasisPointsTotal {
			return 0, errs.Invalid("weight", "%d exceeds %d basis points", weight, models.BasisPointsTotal)
		}
		return money.MulDivRound(o.Amount, weight, models.BasisPointsTotal), nil
	}
}

// ComputeShares allocates the whole obligation and returns one amount per
// entry of o.Shares, in the same order.
//
// BY_SHARES and BY_PERCENTAGE use largest-remainder allocation: every payee
// gets the floor of the exact quotient and the leftover minor units go to the
// largest remainders (earlier payees first on ties), so the shares always sum
// to the amount and each differs from ComputeShare by at most one unit.
// EVENLY keeps the per-payee rounding and may leave a residual of up to
// floor(payees/2) units; see RoundingTolerance.
func ComputeShares(o *models.Obligation) ([]int64, error) {
	if err := ValidateShares(o.Amount, o.SplitPolicy, o.Shares); err != nil {
		return nil, err
	}

	out := make([]int64, len(o.Shares))
	switch o.SplitPolicy {
	case models.SplitEvenly:
		each := money.DivRound(o.Amount, int64(len(o.Shares)))
		for i := range out {
			out[i] = each
		}
	case models.SplitByAmount:
		for i, s := range o.Shares {
			out[i] = s.Weight
		}
	case models.SplitByShares:
		allocate(out, o.Amount, o.Shares, totalWeight(o.Shares))
	case models.SplitByPercentage:
		allocate(out, o.Amount, o.Shares, models.BasisPointsTotal)
	}
	return out, nil
}

// allocate fills out with a largest-remainder split of amount by weight/total.
func allocate(out []int64, amount int64, shares []models.Share, total int64) {
	rems := make([]int64, len(shares))
	leftover := amount
	for i, s := range shares {
		out[i], rems[i] = money.MulDivFloor(amount, s.Weight, total)
		leftover -= out[i]
	}

	order := make([]int, len(shares))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case rems[a] > rems[b]:
			return -1
		case rems[a] < rems[b]:
			return 1
		}
		return 0
	})
	for _, i := range order[:leftover] {
		out[i]++
	}
}

func totalWeight(shares []models.Share) int64 {
	var total int64
	for _, s := range shares {
		total += s.Weight
	}
	return total
}
