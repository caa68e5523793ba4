package withdrawal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/logger"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/models"
)

// Actor identifies who is performing an operation. Transition rights are
// an explicit capability, not flags checked ad hoc at call sites.
type Actor struct {
	UserID int64
	Role   string
}

func (a Actor) CanTransition() bool {
	return a.Role == models.RoleAdmin || a.Role == models.RoleSubAdmin
}

// Store is the persistence the manager needs. The store owns atomicity:
// CreateWithdrawal re-checks balance and the duplicate window inside the
// same transaction as the insert, and TransitionWithdrawal only moves
// pending requests.
type Store interface {
	GetBalance(ctx context.Context, userID int64) (models.Balance, error)
	CreateWithdrawal(ctx context.Context, req *models.WithdrawalRequest) error
	GetWithdrawalByID(ctx context.Context, id string) (*models.WithdrawalRequest, error)
	ListWithdrawalsByUser(ctx context.Context, userID int64) ([]models.WithdrawalRequest, error)
	ListWithdrawalsByStatus(ctx context.Context, status string) ([]models.WithdrawalRequest, error)
	TransitionWithdrawal(ctx context.Context, id, newStatus, rejectionReason, transactionReference string) (*models.WithdrawalRequest, error)
}

// PayoutExecutor initiates the actual transfer with an external payments
// provider and returns its transaction reference. Optional.
type PayoutExecutor interface {
	InitiatePayout(ctx context.Context, req *models.WithdrawalRequest) (string, error)
}

type Manager struct {
	store   Store
	gateway PayoutExecutor
	policy  models.PayoutPolicy
}

func NewManager(store Store, gateway PayoutExecutor, policy models.PayoutPolicy) *Manager {
	return &Manager{
		store:   store,
		gateway: gateway,
		policy:  policy,
	}
}

// Balance returns the caller's payout balance, recomputed on every read.
func (m *Manager) Balance(ctx context.Context, userID int64) (models.Balance, error) {
	bal, err := m.store.GetBalance(ctx, userID)
	if err != nil {
		return models.Balance{}, fmt.Errorf("balance unavailable: %w", err)
	}
	return bal, nil
}

// Request validates the input against the current balance and persists a
// pending withdrawal. Validation failures come back as ValidationErrors;
// the store may still reject with InsufficientBalance or DuplicateRequest
// if a concurrent request won the race.
func (m *Manager) Request(ctx context.Context, userID int64, in Input) (*models.WithdrawalRequest, error) {
	bal, err := m.store.GetBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("balance unavailable: %w", err)
	}

	if errs := Validate(in, bal.Available, m.policy); len(errs) > 0 {
		return nil, errs
	}

	req := &models.WithdrawalRequest{
		ID:            uuid.NewString(),
		UserID:        userID,
		Amount:        in.Amount,
		Method:        in.Method,
		BankTransfer:  in.BankTransfer,
		MobileBanking: in.MobileBanking,
		Status:        models.StatusPending,
		CreatedAt:     time.Now().UTC(),
	}

	if err := m.store.CreateWithdrawal(ctx, req); err != nil {
		if models.IsInsufficientBalance(err) || err == models.ErrDuplicateRequest {
			logger.Warn("withdrawal create rejected by store",
				"userID", userID, "amount", in.Amount.String(), "reason", err.Error())
		}
		return nil, err
	}

	return req, nil
}

// Approve moves a pending request to approved. When a payout gateway is
// configured and the admin did not supply a reference, the gateway is
// asked to execute the transfer and its reference is recorded.
func (m *Manager) Approve(ctx context.Context, actor Actor, id, transactionReference string) (*models.WithdrawalRequest, error) {
	if !actor.CanTransition() {
		return nil, models.ErrNotAuthorized
	}

	if m.gateway != nil && transactionReference == "" {
		req, err := m.store.GetWithdrawalByID(ctx, id)
		if err != nil {
			return nil, err
		}
		// A terminal request must never reach the gateway: a repeated
		// approval would execute a second real transfer before the
		// store's own terminal-state check could stop it.
		if req.Status != models.StatusPending {
			return nil, models.ErrInvalidTransition
		}
		ref, err := m.gateway.InitiatePayout(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("payout gateway: %w", err)
		}
		transactionReference = ref
	}

	req, err := m.store.TransitionWithdrawal(ctx, id, models.StatusApproved, "", transactionReference)
	if err != nil {
		if err == models.ErrInvalidTransition {
			logger.Warn("invalid withdrawal transition", "id", id, "target", models.StatusApproved)
		}
		return nil, err
	}

	logger.Info("withdrawal approved", "id", id, "actor", actor.UserID)
	return req, nil
}

// Reject moves a pending request to rejected. The reason is mandatory;
// the user submits a fresh request rather than reopening this one.
func (m *Manager) Reject(ctx context.Context, actor Actor, id, reason string) (*models.WithdrawalRequest, error) {
	if !actor.CanTransition() {
		return nil, models.ErrNotAuthorized
	}
	if strings.TrimSpace(reason) == "" {
		return nil, models.ErrReasonRequired
	}

	req, err := m.store.TransitionWithdrawal(ctx, id, models.StatusRejected, reason, "")
	if err != nil {
		if err == models.ErrInvalidTransition {
			logger.Warn("invalid withdrawal transition", "id", id, "target", models.StatusRejected)
		}
		return nil, err
	}

	logger.Info("withdrawal rejected", "id", id, "actor", actor.UserID)
	return req, nil
}

// History returns every request the user ever made, newest first.
// Requests are never deleted.
func (m *Manager) History(ctx context.Context, userID int64) ([]models.WithdrawalRequest, error) {
	return m.store.ListWithdrawalsByUser(ctx, userID)
}

// ListByStatus is the administrative review queue.
func (m *Manager) ListByStatus(ctx context.Context, actor Actor, status string) ([]models.WithdrawalRequest, error) {
	if !actor.CanTransition() {
		return nil, models.ErrNotAuthorized
	}
	return m.store.ListWithdrawalsByStatus(ctx, status)
}

// Partition splits a history into the two user-facing views: open requests
// (pending and rejected) and statements (approved payouts).
func Partition(requests []models.WithdrawalRequest) (open, statements []models.WithdrawalRequest) {
	for _, r := range requests {
		if r.Status == models.StatusApproved {
			statements = append(statements, r)
		} else {
			open = append(open, r)
		}
	}
	return open, statements
}
