package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidTransition = errors.New("withdrawal already finalized")
	ErrDuplicateRequest  = errors.New("identical withdrawal request already pending")
	ErrNotFound          = errors.New("record not found")
	ErrNotAuthorized     = errors.New("actor may not transition withdrawal requests")
	ErrReasonRequired    = errors.New("rejection requires a non-empty reason")
	ErrUnknownReferral   = errors.New("referral code does not match any user")
)

// InsufficientBalanceError reports the balance the request was checked
// against so the user can self-correct without support.
type InsufficientBalanceError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("requested %s exceeds available balance %s",
		e.Requested.StringFixed(2), e.Available.StringFixed(2))
}

// IsInsufficientBalance reports whether err is an insufficient balance rejection.
func IsInsufficientBalance(err error) bool {
	var ib *InsufficientBalanceError
	return errors.As(err, &ib)
}
