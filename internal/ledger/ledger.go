// Package ledger reads a user's affiliate earnings from the referral
// earning records and summarizes them into time-windowed totals.
package ledger

import (
	"context"
	"time"

	"github.com/kitkatcodeskitty/LMS-sub001/internal/models"
	"github.com/shopspring/decimal"
)

// ReferralSource supplies the credited referral earnings for a user.
// Implemented by the repository; the ledger does not own these records.
type ReferralSource interface {
	GetReferralEarnings(ctx context.Context, userID int64) ([]models.ReferralEarning, error)
}

type Reader struct {
	referrals ReferralSource
	fraction  decimal.Decimal
	now       func() time.Time
}

func NewReader(referrals ReferralSource, fraction decimal.Decimal) *Reader {
	return &Reader{
		referrals: referrals,
		fraction:  fraction,
		now:       time.Now,
	}
}

// WithClock fixes the reader's notion of "now". Used by tests.
func (r *Reader) WithClock(now func() time.Time) *Reader {
	r.now = now
	return r
}

// Snapshot computes the earnings summary for a user. A user with no
// earnings gets a zero-valued snapshot, not an error; a failed read from
// the referral source propagates as an error so callers never confuse
// "nothing earned" with "could not fetch".
func (r *Reader) Snapshot(ctx context.Context, userID int64) (models.EarningsSnapshot, error) {
	earnings, err := r.referrals.GetReferralEarnings(ctx, userID)
	if err != nil {
		return models.EarningsSnapshot{}, err
	}

	now := r.now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	startOfWeekWindow := now.AddDate(0, 0, -7)
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	snapshot := models.EarningsSnapshot{
		Lifetime:      decimal.Zero,
		Today:         decimal.Zero,
		LastSevenDays: decimal.Zero,
		ThisMonth:     decimal.Zero,
	}

	for _, e := range earnings {
		snapshot.Lifetime = snapshot.Lifetime.Add(e.Amount)
		if !e.CreatedAt.Before(startOfDay) {
			snapshot.Today = snapshot.Today.Add(e.Amount)
		}
		if !e.CreatedAt.Before(startOfWeekWindow) {
			snapshot.LastSevenDays = snapshot.LastSevenDays.Add(e.Amount)
		}
		if !e.CreatedAt.Before(startOfMonth) {
			snapshot.ThisMonth = snapshot.ThisMonth.Add(e.Amount)
		}
	}

	snapshot.Withdrawable = r.fraction.Mul(snapshot.Lifetime)

	return snapshot, nil
}
