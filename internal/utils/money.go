package utils

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DisplayRound rounds an amount to whole units for dashboard display.
// The stored value keeps full precision; only the rendering is rounded.
func DisplayRound(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

// ReferralCode generates a short shareable affiliate code.
func ReferralCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
