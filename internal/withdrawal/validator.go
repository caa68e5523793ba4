package withdrawal

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kitkatcodeskitty/LMS-sub001/internal/models"
	"github.com/shopspring/decimal"
)

var (
	accountNumberRe = regexp.MustCompile(`^[A-Za-z0-9]{8,20}$`)
	mobileNumberRe  = regexp.MustCompile(`^(98|97)\d{8}$`)
)

// Input is a withdrawal request as submitted, before it becomes a
// persisted WithdrawalRequest.
type Input struct {
	Amount        decimal.Decimal
	Method        string
	BankTransfer  *models.BankTransferDetails
	MobileBanking *models.MobileBankingDetails
}

// Validate checks an input against the payout policy and the available
// balance at the time of the call. All rules are independent: every
// violation is collected, none short-circuits. No state is touched, so
// repeated calls with the same input are safe.
//
// The available balance passed here may be stale by the time the request
// is persisted; the store re-checks it inside the insert transaction.
func Validate(in Input, available decimal.Decimal, policy models.PayoutPolicy) ValidationErrors {
	var errs ValidationErrors

	if in.Amount.LessThanOrEqual(decimal.Zero) {
		errs = append(errs, FieldError{
			Field:   "amount",
			Code:    CodeInvalidFormat,
			Message: "amount must be greater than 0",
		})
	}

	if in.Amount.GreaterThan(available) {
		errs = append(errs, FieldError{
			Field: "amount",
			Code:  CodeInsufficientBalance,
			Message: fmt.Sprintf("requested %s exceeds available balance %s",
				in.Amount.StringFixed(2), available.StringFixed(2)),
		})
	}

	switch in.Method {
	case models.MethodBankTransfer:
		errs = append(errs, validateMinimum(in.Amount, policy.MinBankTransfer)...)
		errs = append(errs, validateBankTransfer(in.BankTransfer)...)
	case models.MethodMobileBanking:
		errs = append(errs, validateMinimum(in.Amount, policy.MinMobileBanking)...)
		errs = append(errs, validateMobileBanking(in.MobileBanking)...)
	default:
		errs = append(errs, FieldError{
			Field:   "method",
			Code:    CodeInvalidFormat,
			Message: "method must be bank_transfer or mobile_banking",
		})
	}

	return errs
}

func validateMinimum(amount, minimum decimal.Decimal) ValidationErrors {
	if amount.GreaterThanOrEqual(minimum) {
		return nil
	}
	return ValidationErrors{{
		Field: "amount",
		Code:  CodeBelowMinimum,
		Message: fmt.Sprintf("minimum withdrawal is %s, got %s",
			minimum.StringFixed(2), amount.StringFixed(2)),
	}}
}

func validateBankTransfer(d *models.BankTransferDetails) ValidationErrors {
	if d == nil {
		return ValidationErrors{{
			Field:   "bankTransferDetails",
			Code:    CodeMissingField,
			Message: "bank transfer details are required",
		}}
	}

	var errs ValidationErrors
	if strings.TrimSpace(d.AccountName) == "" {
		errs = append(errs, FieldError{
			Field:   "accountName",
			Code:    CodeMissingField,
			Message: "account name is required",
		})
	}
	if strings.TrimSpace(d.BankName) == "" {
		errs = append(errs, FieldError{
			Field:   "bankName",
			Code:    CodeMissingField,
			Message: "bank name is required",
		})
	}
	if strings.TrimSpace(d.AccountNumber) == "" {
		errs = append(errs, FieldError{
			Field:   "accountNumber",
			Code:    CodeMissingField,
			Message: "account number is required",
		})
	} else if !accountNumberRe.MatchString(d.AccountNumber) {
		errs = append(errs, FieldError{
			Field:   "accountNumber",
			Code:    CodeInvalidFormat,
			Message: "account number must be 8-20 letters or digits",
		})
	}
	return errs
}

func validateMobileBanking(d *models.MobileBankingDetails) ValidationErrors {
	if d == nil {
		return ValidationErrors{{
			Field:   "mobileBankingDetails",
			Code:    CodeMissingField,
			Message: "mobile banking details are required",
		}}
	}

	var errs ValidationErrors
	if strings.TrimSpace(d.AccountHolderName) == "" {
		errs = append(errs, FieldError{
			Field:   "accountHolderName",
			Code:    CodeMissingField,
			Message: "account holder name is required",
		})
	}
	if strings.TrimSpace(d.MobileNumber) == "" {
		errs = append(errs, FieldError{
			Field:   "mobileNumber",
			Code:    CodeMissingField,
			Message: "mobile number is required",
		})
	} else if !mobileNumberRe.MatchString(d.MobileNumber) {
		errs = append(errs, FieldError{
			Field:   "mobileNumber",
			Code:    CodeInvalidFormat,
			Message: "mobile number must be 10 digits starting with 98 or 97",
		})
	}
	if !validProvider(d.Provider) {
		errs = append(errs, FieldError{
			Field:   "provider",
			Code:    CodeInvalidFormat,
			Message: fmt.Sprintf("provider must be one of: %s", strings.Join(models.MobileProviders, ", ")),
		})
	}
	return errs
}

func validProvider(provider string) bool {
	for _, p := range models.MobileProviders {
		if provider == p {
			return true
		}
	}
	return false
}
