package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/models"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var withdrawalColumns = []string{
	"id", "user_id", "amount", "method", "account_name", "account_number", "bank_name",
	"account_holder_name", "mobile_number", "provider", "status", "rejection_reason",
	"transaction_reference", "created_at", "processed_at",
}

func newMockRepo(t *testing.T) (*repository.PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return repository.NewPostgresRepositoryWithDB(db, models.DefaultPolicy()), mock
}

func pendingBankRequest(userID int64, amount int64) *models.WithdrawalRequest {
	return &models.WithdrawalRequest{
		ID:     "req-1",
		UserID: userID,
		Amount: decimal.NewFromInt(amount),
		Method: models.MethodBankTransfer,
		BankTransfer: &models.BankTransferDetails{
			AccountName:   "Asha Shrestha",
			AccountNumber: "AB123456",
			BankName:      "Global IME",
		},
		Status:    models.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

func TestCreateWithdrawalSuccess(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM users").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount\), 0\) FROM referral_earnings`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("10000"))
	mock.ExpectQuery("SELECT (.+) FROM withdrawal_requests").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(withdrawalColumns))
	mock.ExpectExec("INSERT INTO withdrawal_requests").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.CreateWithdrawal(ctx, pendingBankRequest(7, 2000))
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithdrawalInsufficientBalanceInsideTransaction(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	// Lifetime 1000 -> withdrawable 500; a request of 600 must fail the
	// re-check even though the earlier read outside the tx allowed it.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM users").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount\), 0\) FROM referral_earnings`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("1000"))
	mock.ExpectQuery("SELECT (.+) FROM withdrawal_requests").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(withdrawalColumns))
	mock.ExpectRollback()

	err := repo.CreateWithdrawal(ctx, pendingBankRequest(7, 600))
	require.Error(t, err)
	assert.True(t, models.IsInsufficientBalance(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithdrawalDuplicateWithinWindow(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM users").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.CreateWithdrawal(ctx, pendingBankRequest(7, 2000))
	assert.ErrorIs(t, err, models.ErrDuplicateRequest)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithdrawalUnknownUser(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM users").
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := repo.CreateWithdrawal(ctx, pendingBankRequest(404, 2000))
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionWithdrawalTerminalStateRejected(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM withdrawal_requests").
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(models.StatusApproved))
	mock.ExpectRollback()

	_, err := repo.TransitionWithdrawal(ctx, "req-1", models.StatusRejected, "late", "")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionWithdrawalApprovesPending(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	createdAt := time.Now().UTC().Add(-time.Hour)
	processedAt := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM withdrawal_requests").
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(models.StatusPending))
	mock.ExpectExec("UPDATE withdrawal_requests").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT (.+) FROM withdrawal_requests").
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows(withdrawalColumns).AddRow(
			"req-1", 7, "2000", models.MethodBankTransfer,
			"Asha Shrestha", "AB123456", "Global IME",
			"", "", "",
			models.StatusApproved, "", "TXN-9", createdAt, processedAt,
		))

	updated, err := repo.TransitionWithdrawal(ctx, "req-1", models.StatusApproved, "", "TXN-9")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, updated.Status)
	assert.Equal(t, "TXN-9", updated.TransactionReference)
	require.NotNil(t, updated.BankTransfer)
	assert.Equal(t, "AB123456", updated.BankTransfer.AccountNumber)
	require.NotNil(t, updated.ProcessedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionWithdrawalRejectRequiresReason(t *testing.T) {
	ctx := context.Background()

	repo, mock := newMockRepo(t)
	_, err := repo.TransitionWithdrawal(ctx, "req-1", models.StatusRejected, "  ", "")
	assert.ErrorIs(t, err, models.ErrReasonRequired)
	assert.NoError(t, mock.ExpectationsWereMet(), "the request must be refused before any statement runs")

	mem := repository.NewMemoryRepository(models.DefaultPolicy())
	_, err = mem.TransitionWithdrawal(ctx, "req-1", models.StatusRejected, "", "")
	assert.ErrorIs(t, err, models.ErrReasonRequired)
}

func TestGetBalanceReadsOneTransaction(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	createdAt := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount\), 0\) FROM referral_earnings`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("10000"))
	mock.ExpectQuery("SELECT (.+) FROM withdrawal_requests").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(withdrawalColumns).
			AddRow("a", 7, "2000", models.MethodBankTransfer, "n", "AB123456", "b",
				"", "", "", models.StatusApproved, "", "TXN-1", createdAt, createdAt).
			AddRow("b", 7, "1000", models.MethodMobileBanking, "", "", "",
				"n", "9812345678", "eSewa", models.StatusPending, "", "", createdAt, nil))
	mock.ExpectCommit()

	bal, err := repo.GetBalance(ctx, 7)
	require.NoError(t, err)
	assert.True(t, bal.Withdrawable.Equal(decimal.NewFromInt(5000)))
	assert.True(t, bal.TotalWithdrawn.Equal(decimal.NewFromInt(2000)))
	assert.True(t, bal.PendingWithdrawals.Equal(decimal.NewFromInt(1000)))
	assert.True(t, bal.Available.Equal(decimal.NewFromInt(2000)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReferralEarnings(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	createdAt := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM referral_earnings").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "purchase_id", "amount", "created_at"}).
			AddRow("e1", 7, "p1", "600", createdAt).
			AddRow("e2", 7, "p2", "300", createdAt))

	earnings, err := repo.GetReferralEarnings(ctx, 7)
	require.NoError(t, err)
	require.Len(t, earnings, 2)
	assert.True(t, earnings[0].Amount.Equal(decimal.NewFromInt(600)))
}

func TestRecordPurchaseCreditsReferrer(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM users WHERE referral_code").
		WithArgs("REF12345").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectExec("INSERT INTO purchases").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO referral_earnings").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	earning, err := repo.RecordPurchase(ctx, &models.Purchase{
		ID:           "p1",
		UserID:       9,
		CourseID:     "go-basics",
		Amount:       decimal.NewFromInt(1000),
		ReferralCode: "REF12345",
	})
	require.NoError(t, err)
	require.NotNil(t, earning)
	assert.Equal(t, int64(3), earning.UserID)
	assert.True(t, earning.Amount.Equal(decimal.NewFromInt(600)), "commission is 0.6 of the purchase")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordPurchaseUnknownReferral(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM users WHERE referral_code").
		WithArgs("NOPE").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := repo.RecordPurchase(ctx, &models.Purchase{
		ID:           "p1",
		UserID:       9,
		CourseID:     "go-basics",
		Amount:       decimal.NewFromInt(1000),
		ReferralCode: "NOPE",
	})
	assert.ErrorIs(t, err, models.ErrUnknownReferral)
	assert.NoError(t, mock.ExpectationsWereMet())
}
