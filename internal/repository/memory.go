package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/balance"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/models"
	"github.com/shopspring/decimal"
)

// MemoryRepository is a mutex-guarded Repository for development runs and
// tests. One write lock covers validation-then-insert, giving the same
// per-user serialization the postgres store gets from its row lock.
type MemoryRepository struct {
	mu          sync.RWMutex
	policy      models.PayoutPolicy
	nextUserID  int64
	users       map[int64]*models.User
	purchases   []models.Purchase
	earnings    []models.ReferralEarning
	withdrawals map[string]*models.WithdrawalRequest
}

func NewMemoryRepository(policy models.PayoutPolicy) *MemoryRepository {
	return &MemoryRepository{
		policy:      policy,
		users:       make(map[int64]*models.User),
		withdrawals: make(map[string]*models.WithdrawalRequest),
	}
}

func (r *MemoryRepository) InitDB(databaseURI string) error { return nil }
func (r *MemoryRepository) Close() error                    { return nil }

func (r *MemoryRepository) CreateUser(ctx context.Context, login, passwordHash, role, referralCode string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextUserID++
	r.users[r.nextUserID] = &models.User{
		ID:           r.nextUserID,
		Login:        login,
		PasswordHash: passwordHash,
		Role:         role,
		ReferralCode: referralCode,
		CreatedAt:    time.Now().UTC(),
	}
	return r.nextUserID, nil
}

func (r *MemoryRepository) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Login == login {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (r *MemoryRepository) GetUserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.ReferralCode == code {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) RecordPurchase(ctx context.Context, purchase *models.Purchase) (*models.ReferralEarning, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var referrer *models.User
	if purchase.ReferralCode != "" {
		for _, u := range r.users {
			if u.ReferralCode == purchase.ReferralCode {
				referrer = u
				break
			}
		}
		if referrer == nil {
			return nil, models.ErrUnknownReferral
		}
	}

	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = time.Now().UTC()
	}
	r.purchases = append(r.purchases, *purchase)

	if referrer == nil || referrer.ID == purchase.UserID {
		return nil, nil
	}

	earning := models.ReferralEarning{
		ID:         uuid.NewString(),
		UserID:     referrer.ID,
		PurchaseID: purchase.ID,
		Amount:     r.policy.CommissionSplit.Mul(purchase.Amount),
		CreatedAt:  purchase.CreatedAt,
	}
	r.earnings = append(r.earnings, earning)

	copied := earning
	return &copied, nil
}

func (r *MemoryRepository) GetPurchasesForUser(ctx context.Context, userID int64) ([]models.Purchase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var purchases []models.Purchase
	for _, p := range r.purchases {
		if p.UserID == userID {
			purchases = append(purchases, p)
		}
	}
	return purchases, nil
}

func (r *MemoryRepository) GetReferralEarnings(ctx context.Context, userID int64) ([]models.ReferralEarning, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var earnings []models.ReferralEarning
	for _, e := range r.earnings {
		if e.UserID == userID {
			earnings = append(earnings, e)
		}
	}
	return earnings, nil
}

func (r *MemoryRepository) GetBalance(ctx context.Context, userID int64) (models.Balance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.balanceLocked(userID), nil
}

func (r *MemoryRepository) balanceLocked(userID int64) models.Balance {
	snapshot := models.EarningsSnapshot{Lifetime: lifetimeLocked(r.earnings, userID)}

	var requests []models.WithdrawalRequest
	for _, w := range r.withdrawals {
		if w.UserID == userID {
			requests = append(requests, *w)
		}
	}

	return balance.Compute(snapshot, requests, r.policy.WithdrawableFraction)
}

func (r *MemoryRepository) CreateWithdrawal(ctx context.Context, req *models.WithdrawalRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[req.UserID]; !ok {
		return models.ErrNotFound
	}

	cutoff := time.Now().UTC().Add(-r.policy.DuplicateWindow)
	for _, w := range r.withdrawals {
		if w.UserID == req.UserID && w.Status == models.StatusPending &&
			w.Amount.Equal(req.Amount) && w.Method == req.Method && w.CreatedAt.After(cutoff) {
			return models.ErrDuplicateRequest
		}
	}

	bal := r.balanceLocked(req.UserID)
	if req.Amount.GreaterThan(bal.Available) {
		return &models.InsufficientBalanceError{Requested: req.Amount, Available: bal.Available}
	}

	copied := *req
	r.withdrawals[req.ID] = &copied
	return nil
}

func (r *MemoryRepository) GetWithdrawalByID(ctx context.Context, id string) (*models.WithdrawalRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.withdrawals[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *w
	return &copied, nil
}

func (r *MemoryRepository) ListWithdrawalsByUser(ctx context.Context, userID int64) ([]models.WithdrawalRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var requests []models.WithdrawalRequest
	for _, w := range r.withdrawals {
		if w.UserID == userID {
			requests = append(requests, *w)
		}
	}
	sortNewestFirst(requests)
	return requests, nil
}

func (r *MemoryRepository) ListWithdrawalsByStatus(ctx context.Context, status string) ([]models.WithdrawalRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var requests []models.WithdrawalRequest
	for _, w := range r.withdrawals {
		if w.Status == status {
			requests = append(requests, *w)
		}
	}
	sortNewestFirst(requests)
	return requests, nil
}

func (r *MemoryRepository) TransitionWithdrawal(ctx context.Context, id, newStatus, rejectionReason, transactionReference string) (*models.WithdrawalRequest, error) {
	if newStatus == models.StatusRejected && strings.TrimSpace(rejectionReason) == "" {
		return nil, models.ErrReasonRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.withdrawals[id]
	if !ok {
		return nil, models.ErrNotFound
	}

	if w.Status != models.StatusPending {
		return nil, models.ErrInvalidTransition
	}

	processedAt := time.Now().UTC()
	w.Status = newStatus
	w.RejectionReason = rejectionReason
	w.TransactionReference = transactionReference
	w.ProcessedAt = &processedAt

	copied := *w
	return &copied, nil
}

func lifetimeLocked(earnings []models.ReferralEarning, userID int64) decimal.Decimal {
	total := decimal.Zero
	for _, e := range earnings {
		if e.UserID == userID {
			total = total.Add(e.Amount)
		}
	}
	return total
}

func sortNewestFirst(requests []models.WithdrawalRequest) {
	sort.Slice(requests, func(i, j int) bool {
		return requests[i].CreatedAt.After(requests[j].CreatedAt)
	})
}
