// Package balance derives payout balances from an earnings snapshot and the
// user's withdrawal requests. It is the single place this derivation lives;
// stores and handlers project its output, never recompute their own.
package balance

import (
	"github.com/kitkatcodeskitty/LMS-sub001/internal/models"
	"github.com/shopspring/decimal"
)

// Compute derives the balance view for one user. Pure function: same inputs,
// same output, no I/O. Callers must pass a consistent snapshot of requests,
// meaning all of the user's requests read in a single transaction.
//
//	withdrawable = fraction * lifetime
//	totalWithdrawn = sum of approved amounts
//	pendingWithdrawals = sum of pending amounts
//	available = max(0, withdrawable - totalWithdrawn - pendingWithdrawals)
func Compute(snapshot models.EarningsSnapshot, requests []models.WithdrawalRequest, fraction decimal.Decimal) models.Balance {
	withdrawable := fraction.Mul(snapshot.Lifetime)

	totalWithdrawn := decimal.Zero
	pending := decimal.Zero
	for _, r := range requests {
		switch r.Status {
		case models.StatusApproved:
			totalWithdrawn = totalWithdrawn.Add(r.Amount)
		case models.StatusPending:
			pending = pending.Add(r.Amount)
		}
	}

	available := withdrawable.Sub(totalWithdrawn).Sub(pending)
	if available.IsNegative() {
		available = decimal.Zero
	}

	return models.Balance{
		Withdrawable:       withdrawable,
		TotalWithdrawn:     totalWithdrawn,
		PendingWithdrawals: pending,
		Available:          available,
	}
}
