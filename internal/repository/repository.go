package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/balance"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/models"
	"github.com/shopspring/decimal"
	_ "github.com/jackc/pgx/v4/stdlib"
)

type Repository interface {
	CreateUser(ctx context.Context, login, passwordHash, role, referralCode string) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByReferralCode(ctx context.Context, code string) (*models.User, error)

	RecordPurchase(ctx context.Context, purchase *models.Purchase) (*models.ReferralEarning, error)
	GetPurchasesForUser(ctx context.Context, userID int64) ([]models.Purchase, error)
	GetReferralEarnings(ctx context.Context, userID int64) ([]models.ReferralEarning, error)

	GetBalance(ctx context.Context, userID int64) (models.Balance, error)
	CreateWithdrawal(ctx context.Context, req *models.WithdrawalRequest) error
	GetWithdrawalByID(ctx context.Context, id string) (*models.WithdrawalRequest, error)
	ListWithdrawalsByUser(ctx context.Context, userID int64) ([]models.WithdrawalRequest, error)
	ListWithdrawalsByStatus(ctx context.Context, status string) ([]models.WithdrawalRequest, error)
	TransitionWithdrawal(ctx context.Context, id, newStatus, rejectionReason, transactionReference string) (*models.WithdrawalRequest, error)

	InitDB(databaseURI string) error
	Close() error
}

type PostgresRepository struct {
	db     *sql.DB
	policy models.PayoutPolicy
}

func NewPostgresRepository(policy models.PayoutPolicy) *PostgresRepository {
	return &PostgresRepository{
		db:     nil,
		policy: policy,
	}
}

// NewPostgresRepositoryWithDB wraps an existing connection. Used by tests.
func NewPostgresRepositoryWithDB(db *sql.DB, policy models.PayoutPolicy) *PostgresRepository {
	return &PostgresRepository{
		db:     db,
		policy: policy,
	}
}

func (r *PostgresRepository) InitDB(databaseURI string) error {
	db, err := sql.Open("pgx", databaseURI)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}

	r.db = db

	err = r.createTables()
	if err != nil {
		db.Close()
		return err
	}

	return nil
}

func (r *PostgresRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *PostgresRepository) createTables() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			login VARCHAR(255) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			role VARCHAR(20) NOT NULL DEFAULT 'user',
			referral_code VARCHAR(32) UNIQUE NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		CREATE TABLE IF NOT EXISTS purchases (
			id VARCHAR(36) PRIMARY KEY,
			user_id INTEGER REFERENCES users(id),
			course_id VARCHAR(255) NOT NULL,
			amount NUMERIC(12, 2) NOT NULL,
			referral_code VARCHAR(32) NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		CREATE TABLE IF NOT EXISTS referral_earnings (
			id VARCHAR(36) PRIMARY KEY,
			user_id INTEGER REFERENCES users(id),
			purchase_id VARCHAR(36) REFERENCES purchases(id),
			amount NUMERIC(12, 2) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		CREATE TABLE IF NOT EXISTS withdrawal_requests (
			id VARCHAR(36) PRIMARY KEY,
			user_id INTEGER REFERENCES users(id),
			amount NUMERIC(12, 2) NOT NULL,
			method VARCHAR(20) NOT NULL,
			account_name TEXT NOT NULL DEFAULT '',
			account_number TEXT NOT NULL DEFAULT '',
			bank_name TEXT NOT NULL DEFAULT '',
			account_holder_name TEXT NOT NULL DEFAULT '',
			mobile_number TEXT NOT NULL DEFAULT '',
			provider TEXT NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			rejection_reason TEXT NOT NULL DEFAULT '',
			transaction_reference TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			processed_at TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	return nil
}

func (r *PostgresRepository) CreateUser(ctx context.Context, login, passwordHash, role, referralCode string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(
		ctx,
		"INSERT INTO users (login, password_hash, role, referral_code) VALUES ($1, $2, $3, $4) RETURNING id",
		login, passwordHash, role, referralCode,
	).Scan(&id)

	if err != nil {
		return 0, err
	}

	return id, nil
}

func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	return r.getUser(ctx, "SELECT id, login, password_hash, role, referral_code, created_at FROM users WHERE login = $1", login)
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getUser(ctx, "SELECT id, login, password_hash, role, referral_code, created_at FROM users WHERE id = $1", id)
}

func (r *PostgresRepository) GetUserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	return r.getUser(ctx, "SELECT id, login, password_hash, role, referral_code, created_at FROM users WHERE referral_code = $1", code)
}

func (r *PostgresRepository) getUser(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&user.ID, &user.Login, &user.PasswordHash, &user.Role, &user.ReferralCode, &user.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return user, nil
}

// RecordPurchase stores a confirmed purchase and, when a referral code of
// another user is attached, credits that user their commission share in
// the same transaction. Self-referrals earn nothing.
func (r *PostgresRepository) RecordPurchase(ctx context.Context, purchase *models.Purchase) (*models.ReferralEarning, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var referrer *models.User
	if purchase.ReferralCode != "" {
		referrer = &models.User{}
		err := tx.QueryRowContext(
			ctx,
			"SELECT id FROM users WHERE referral_code = $1",
			purchase.ReferralCode,
		).Scan(&referrer.ID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrUnknownReferral
		}
		if err != nil {
			return nil, err
		}
	}

	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(
		ctx,
		"INSERT INTO purchases (id, user_id, course_id, amount, referral_code, created_at) VALUES ($1, $2, $3, $4, $5, $6)",
		purchase.ID, purchase.UserID, purchase.CourseID, purchase.Amount, purchase.ReferralCode, purchase.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	var earning *models.ReferralEarning
	if referrer != nil && referrer.ID != purchase.UserID {
		earning = &models.ReferralEarning{
			ID:         uuid.NewString(),
			UserID:     referrer.ID,
			PurchaseID: purchase.ID,
			Amount:     r.policy.CommissionSplit.Mul(purchase.Amount),
			CreatedAt:  purchase.CreatedAt,
		}
		_, err = tx.ExecContext(
			ctx,
			"INSERT INTO referral_earnings (id, user_id, purchase_id, amount, created_at) VALUES ($1, $2, $3, $4, $5)",
			earning.ID, earning.UserID, earning.PurchaseID, earning.Amount, earning.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return earning, nil
}

func (r *PostgresRepository) GetPurchasesForUser(ctx context.Context, userID int64) ([]models.Purchase, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, user_id, course_id, amount, referral_code, created_at
         FROM purchases
         WHERE user_id = $1
         ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var purchases []models.Purchase
	for rows.Next() {
		var p models.Purchase
		if err := rows.Scan(&p.ID, &p.UserID, &p.CourseID, &p.Amount, &p.ReferralCode, &p.CreatedAt); err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return purchases, nil
}

func (r *PostgresRepository) GetReferralEarnings(ctx context.Context, userID int64) ([]models.ReferralEarning, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, user_id, purchase_id, amount, created_at
         FROM referral_earnings
         WHERE user_id = $1
         ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var earnings []models.ReferralEarning
	for rows.Next() {
		var e models.ReferralEarning
		if err := rows.Scan(&e.ID, &e.UserID, &e.PurchaseID, &e.Amount, &e.CreatedAt); err != nil {
			return nil, err
		}
		earnings = append(earnings, e)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return earnings, nil
}

// GetBalance reads lifetime earnings and the full request list in one
// repeatable-read transaction so a concurrent create is neither dropped
// nor double-counted, then derives the balance with the calculator.
func (r *PostgresRepository) GetBalance(ctx context.Context, userID int64) (models.Balance, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return models.Balance{}, err
	}
	defer tx.Rollback()

	lifetime, err := lifetimeEarnings(ctx, tx, userID)
	if err != nil {
		return models.Balance{}, err
	}

	requests, err := queryWithdrawals(ctx, tx,
		`SELECT id, user_id, amount, method, account_name, account_number, bank_name,
                account_holder_name, mobile_number, provider, status, rejection_reason,
                transaction_reference, created_at, processed_at
         FROM withdrawal_requests
         WHERE user_id = $1
         ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return models.Balance{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Balance{}, err
	}

	snapshot := models.EarningsSnapshot{Lifetime: lifetime}
	return balance.Compute(snapshot, requests, r.policy.WithdrawableFraction), nil
}

// CreateWithdrawal inserts a pending request. The user row is locked first
// so validation-then-insert is one serialized unit per user: concurrent
// submissions cannot jointly overdraw the balance, and the duplicate
// window check sees every earlier insert.
func (r *PostgresRepository) CreateWithdrawal(ctx context.Context, req *models.WithdrawalRequest) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var lockedID int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM users WHERE id = $1 FOR UPDATE", req.UserID).Scan(&lockedID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	if err != nil {
		return err
	}

	var duplicate bool
	err = tx.QueryRowContext(
		ctx,
		`SELECT EXISTS (
            SELECT 1 FROM withdrawal_requests
            WHERE user_id = $1 AND status = $2 AND amount = $3 AND method = $4 AND created_at > $5
         )`,
		req.UserID, models.StatusPending, req.Amount, req.Method,
		time.Now().UTC().Add(-r.policy.DuplicateWindow),
	).Scan(&duplicate)
	if err != nil {
		return err
	}
	if duplicate {
		return models.ErrDuplicateRequest
	}

	lifetime, err := lifetimeEarnings(ctx, tx, req.UserID)
	if err != nil {
		return err
	}

	requests, err := queryWithdrawals(ctx, tx,
		`SELECT id, user_id, amount, method, account_name, account_number, bank_name,
                account_holder_name, mobile_number, provider, status, rejection_reason,
                transaction_reference, created_at, processed_at
         FROM withdrawal_requests
         WHERE user_id = $1`,
		req.UserID,
	)
	if err != nil {
		return err
	}

	snapshot := models.EarningsSnapshot{Lifetime: lifetime}
	bal := balance.Compute(snapshot, requests, r.policy.WithdrawableFraction)
	if req.Amount.GreaterThan(bal.Available) {
		return &models.InsufficientBalanceError{Requested: req.Amount, Available: bal.Available}
	}

	var (
		accountName, accountNumber, bankName          string
		accountHolderName, mobileNumber, providerName string
	)
	if req.BankTransfer != nil {
		accountName = req.BankTransfer.AccountName
		accountNumber = req.BankTransfer.AccountNumber
		bankName = req.BankTransfer.BankName
	}
	if req.MobileBanking != nil {
		accountHolderName = req.MobileBanking.AccountHolderName
		mobileNumber = req.MobileBanking.MobileNumber
		providerName = req.MobileBanking.Provider
	}

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO withdrawal_requests
            (id, user_id, amount, method, account_name, account_number, bank_name,
             account_holder_name, mobile_number, provider, status, created_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		req.ID, req.UserID, req.Amount, req.Method, accountName, accountNumber, bankName,
		accountHolderName, mobileNumber, providerName, req.Status, req.CreatedAt,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *PostgresRepository) GetWithdrawalByID(ctx context.Context, id string) (*models.WithdrawalRequest, error) {
	requests, err := queryWithdrawals(ctx, r.db,
		`SELECT id, user_id, amount, method, account_name, account_number, bank_name,
                account_holder_name, mobile_number, provider, status, rejection_reason,
                transaction_reference, created_at, processed_at
         FROM withdrawal_requests
         WHERE id = $1`,
		id,
	)
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, models.ErrNotFound
	}
	return &requests[0], nil
}

func (r *PostgresRepository) ListWithdrawalsByUser(ctx context.Context, userID int64) ([]models.WithdrawalRequest, error) {
	return queryWithdrawals(ctx, r.db,
		`SELECT id, user_id, amount, method, account_name, account_number, bank_name,
                account_holder_name, mobile_number, provider, status, rejection_reason,
                transaction_reference, created_at, processed_at
         FROM withdrawal_requests
         WHERE user_id = $1
         ORDER BY created_at DESC`,
		userID,
	)
}

func (r *PostgresRepository) ListWithdrawalsByStatus(ctx context.Context, status string) ([]models.WithdrawalRequest, error) {
	return queryWithdrawals(ctx, r.db,
		`SELECT id, user_id, amount, method, account_name, account_number, bank_name,
                account_holder_name, mobile_number, provider, status, rejection_reason,
                transaction_reference, created_at, processed_at
         FROM withdrawal_requests
         WHERE status = $1
         ORDER BY created_at DESC`,
		status,
	)
}

// TransitionWithdrawal moves a pending request to approved or rejected.
// The row is locked for the duration so at most one administrative action
// wins; approved and rejected are terminal.
func (r *PostgresRepository) TransitionWithdrawal(ctx context.Context, id, newStatus, rejectionReason, transactionReference string) (*models.WithdrawalRequest, error) {
	if newStatus == models.StatusRejected && strings.TrimSpace(rejectionReason) == "" {
		return nil, models.ErrReasonRequired
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var currentStatus string
	err = tx.QueryRowContext(ctx, "SELECT status FROM withdrawal_requests WHERE id = $1 FOR UPDATE", id).Scan(&currentStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if currentStatus != models.StatusPending {
		return nil, models.ErrInvalidTransition
	}

	processedAt := time.Now().UTC()
	_, err = tx.ExecContext(
		ctx,
		`UPDATE withdrawal_requests
         SET status = $1, rejection_reason = $2, transaction_reference = $3, processed_at = $4
         WHERE id = $5`,
		newStatus, rejectionReason, transactionReference, processedAt, id,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return r.GetWithdrawalByID(ctx, id)
}

func lifetimeEarnings(ctx context.Context, q querier, userID int64) (decimal.Decimal, error) {
	var lifetime decimal.Decimal
	err := q.QueryRowContext(
		ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM referral_earnings WHERE user_id = $1",
		userID,
	).Scan(&lifetime)
	if err != nil {
		return decimal.Zero, err
	}
	return lifetime, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func queryWithdrawals(ctx context.Context, q querier, query string, args ...interface{}) ([]models.WithdrawalRequest, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []models.WithdrawalRequest
	for rows.Next() {
		var (
			w                                             models.WithdrawalRequest
			accountName, accountNumber, bankName          string
			accountHolderName, mobileNumber, providerName string
			processedAt                                   sql.NullTime
		)
		if err := rows.Scan(
			&w.ID,
			&w.UserID,
			&w.Amount,
			&w.Method,
			&accountName,
			&accountNumber,
			&bankName,
			&accountHolderName,
			&mobileNumber,
			&providerName,
			&w.Status,
			&w.RejectionReason,
			&w.TransactionReference,
			&w.CreatedAt,
			&processedAt,
		); err != nil {
			return nil, err
		}

		switch w.Method {
		case models.MethodBankTransfer:
			w.BankTransfer = &models.BankTransferDetails{
				AccountName:   accountName,
				AccountNumber: accountNumber,
				BankName:      bankName,
			}
		case models.MethodMobileBanking:
			w.MobileBanking = &models.MobileBankingDetails{
				AccountHolderName: accountHolderName,
				MobileNumber:      mobileNumber,
				Provider:          providerName,
			}
		}

		if processedAt.Valid {
			t := processedAt.Time
			w.ProcessedAt = &t
		}

		requests = append(requests, w)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return requests, nil
}
