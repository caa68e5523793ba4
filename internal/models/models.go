package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID           int64     `json:"id"`
	Login        string    `json:"login"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	ReferralCode string    `json:"referralCode"`
	CreatedAt    time.Time `json:"createdAt"`
}

const (
	RoleUser     = "user"
	RoleAdmin    = "admin"
	RoleSubAdmin = "subadmin"
)

type Purchase struct {
	ID           string          `json:"id"`
	UserID       int64           `json:"userId"`
	CourseID     string          `json:"courseId"`
	Amount       decimal.Decimal `json:"amount"`
	ReferralCode string          `json:"referralCode,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

type ReferralEarning struct {
	ID         string          `json:"id"`
	UserID     int64           `json:"userId"`
	PurchaseID string          `json:"purchaseId"`
	Amount     decimal.Decimal `json:"amount"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// EarningsSnapshot is derived from referral earning records on every read;
// it is never persisted.
type EarningsSnapshot struct {
	Lifetime      decimal.Decimal `json:"lifetime"`
	Today         decimal.Decimal `json:"today"`
	LastSevenDays decimal.Decimal `json:"lastSevenDays"`
	ThisMonth     decimal.Decimal `json:"thisMonth"`
	Withdrawable  decimal.Decimal `json:"withdrawableBalance"`
}

type Balance struct {
	Withdrawable       decimal.Decimal `json:"withdrawableBalance"`
	TotalWithdrawn     decimal.Decimal `json:"totalWithdrawn"`
	PendingWithdrawals decimal.Decimal `json:"pendingWithdrawals"`
	Available          decimal.Decimal `json:"availableBalance"`
}

type BankTransferDetails struct {
	AccountName   string `json:"accountName"`
	AccountNumber string `json:"accountNumber"`
	BankName      string `json:"bankName"`
}

type MobileBankingDetails struct {
	AccountHolderName string `json:"accountHolderName"`
	MobileNumber      string `json:"mobileNumber"`
	Provider          string `json:"provider"`
}

type WithdrawalRequest struct {
	ID                   string                `json:"id"`
	UserID               int64                 `json:"userId"`
	Amount               decimal.Decimal       `json:"amount"`
	Method               string                `json:"method"`
	BankTransfer         *BankTransferDetails  `json:"bankTransferDetails,omitempty"`
	MobileBanking        *MobileBankingDetails `json:"mobileBankingDetails,omitempty"`
	Status               string                `json:"status"`
	RejectionReason      string                `json:"rejectionReason,omitempty"`
	TransactionReference string                `json:"transactionReference,omitempty"`
	CreatedAt            time.Time             `json:"createdAt"`
	ProcessedAt          *time.Time            `json:"processedAt,omitempty"`
}

const (
	MethodBankTransfer  = "bank_transfer"
	MethodMobileBanking = "mobile_banking"
)

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// MobileProviders lists the wallets accepted for mobile banking payouts.
var MobileProviders = []string{"eSewa", "Khalti", "IME Pay", "ConnectIPS", "Other"}

// PayoutPolicy carries the platform-wide business constants. Values are
// fixed per deployment, not per campaign.
type PayoutPolicy struct {
	WithdrawableFraction decimal.Decimal
	CommissionSplit      decimal.Decimal
	MinBankTransfer      decimal.Decimal
	MinMobileBanking     decimal.Decimal
	DuplicateWindow      time.Duration
}

// DefaultPolicy returns the observed platform constants: half of lifetime
// affiliate earnings is withdrawable, referrers earn 60% of a referred
// purchase, and minimum payouts are 500 (bank) / 100 (mobile).
func DefaultPolicy() PayoutPolicy {
	return PayoutPolicy{
		WithdrawableFraction: decimal.NewFromFloat(0.5),
		CommissionSplit:      decimal.NewFromFloat(0.6),
		MinBankTransfer:      decimal.NewFromInt(500),
		MinMobileBanking:     decimal.NewFromInt(100),
		DuplicateWindow:      5 * time.Minute,
	}
}

// MinimumFor returns the minimum payout amount for a withdrawal method.
func (p PayoutPolicy) MinimumFor(method string) decimal.Decimal {
	if method == MethodMobileBanking {
		return p.MinMobileBanking
	}
	return p.MinBankTransfer
}
