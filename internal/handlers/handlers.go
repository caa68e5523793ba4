package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/ledger"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/middleware"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/models"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/repository"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/utils"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/withdrawal"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

type Handler struct {
	Repo      repository.Repository
	Manager   *withdrawal.Manager
	Ledger    *ledger.Reader
	JWTSecret string
}

func NewHandler(repo repository.Repository, manager *withdrawal.Manager, ledgerReader *ledger.Reader, jwtSecret string) *Handler {
	return &Handler{
		Repo:      repo,
		Manager:   manager,
		Ledger:    ledgerReader,
		JWTSecret: jwtSecret,
	}
}

func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, "Login and password are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	existingUser, err := h.Repo.GetUserByLogin(ctx, req.Login)
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	if existingUser != nil {
		http.Error(w, "Login already taken", http.StatusConflict)
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	referralCode := utils.ReferralCode()
	userID, err := h.Repo.CreateUser(ctx, req.Login, string(hashedPassword), models.RoleUser, referralCode)
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	token, err := middleware.GenerateToken(userID, models.RoleUser, h.JWTSecret)
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	middleware.SetAuthCookie(w, token)
	w.Header().Set("Authorization", "Bearer "+token)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":           userID,
		"login":        req.Login,
		"role":         models.RoleUser,
		"referralCode": referralCode,
	})
}

func (h *Handler) LoginUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, "Login and password are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	user, err := h.Repo.GetUserByLogin(ctx, req.Login)
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	if user == nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password))
	if err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := middleware.GenerateToken(user.ID, user.Role, h.JWTSecret)
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	middleware.SetAuthCookie(w, token)
	w.Header().Set("Authorization", "Bearer "+token)
	w.WriteHeader(http.StatusOK)
}

// GetEarnings serves the affiliate dashboard counters. Dashboard values
// are rounded to whole units for display; the ledger keeps full precision.
func (h *Handler) GetEarnings(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	snapshot, err := h.Ledger.Snapshot(r.Context(), userID)
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{
		"lifetime":            utils.DisplayRound(snapshot.Lifetime),
		"today":               utils.DisplayRound(snapshot.Today),
		"lastSevenDays":       utils.DisplayRound(snapshot.LastSevenDays),
		"thisMonth":           utils.DisplayRound(snapshot.ThisMonth),
		"withdrawableBalance": utils.DisplayRound(snapshot.Withdrawable),
	})
}

func (h *Handler) GetAvailableBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	balance, err := h.Manager.Balance(r.Context(), userID)
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, balance)
}

func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Amount        decimal.Decimal              `json:"amount"`
		Method        string                       `json:"method"`
		BankTransfer  *models.BankTransferDetails  `json:"bankTransferDetails"`
		MobileBanking *models.MobileBankingDetails `json:"mobileBankingDetails"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	created, err := h.Manager.Request(r.Context(), userID, withdrawal.Input{
		Amount:        req.Amount,
		Method:        req.Method,
		BankTransfer:  req.BankTransfer,
		MobileBanking: req.MobileBanking,
	})
	if err != nil {
		var verrs withdrawal.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"errors": verrs})
		case models.IsInsufficientBalance(err):
			http.Error(w, err.Error(), http.StatusPaymentRequired)
		case errors.Is(err, models.ErrDuplicateRequest):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, "Server error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) GetWithdrawalHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	withdrawals, err := h.Manager.History(r.Context(), userID)
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	if withdrawals == nil {
		withdrawals = []models.WithdrawalRequest{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"withdrawals": withdrawals})
}

func (h *Handler) TransitionWithdrawal(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id := chi.URLParam(r, "id")

	var req struct {
		Status               string `json:"status"`
		RejectionReason      string `json:"rejectionReason"`
		TransactionReference string `json:"transactionReference"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	var (
		updated *models.WithdrawalRequest
		err     error
	)
	switch req.Status {
	case models.StatusApproved:
		updated, err = h.Manager.Approve(r.Context(), actor, id, req.TransactionReference)
	case models.StatusRejected:
		updated, err = h.Manager.Reject(r.Context(), actor, id, req.RejectionReason)
	default:
		http.Error(w, "Status must be approved or rejected", http.StatusBadRequest)
		return
	}

	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			http.Error(w, "Withdrawal not found", http.StatusNotFound)
		case errors.Is(err, models.ErrInvalidTransition):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, models.ErrNotAuthorized):
			http.Error(w, "Forbidden", http.StatusForbidden)
		case errors.Is(err, models.ErrReasonRequired):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, "Server error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	status := r.URL.Query().Get("status")
	if status == "" {
		status = models.StatusPending
	}
	if status != models.StatusPending && status != models.StatusApproved && status != models.StatusRejected {
		http.Error(w, "Unknown status", http.StatusBadRequest)
		return
	}

	withdrawals, err := h.Manager.ListByStatus(r.Context(), actor, status)
	if err != nil {
		if errors.Is(err, models.ErrNotAuthorized) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	if withdrawals == nil {
		withdrawals = []models.WithdrawalRequest{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"withdrawals": withdrawals})
}

// RecordPurchase confirms a course purchase (the admin verification step)
// and credits the referrer's commission when a referral code was used.
func (h *Handler) RecordPurchase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID       int64           `json:"userId"`
		CourseID     string          `json:"courseId"`
		Amount       decimal.Decimal `json:"amount"`
		ReferralCode string          `json:"referralCode"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if req.UserID == 0 || req.CourseID == "" || req.Amount.LessThanOrEqual(decimal.Zero) {
		http.Error(w, "userId, courseId and a positive amount are required", http.StatusBadRequest)
		return
	}

	purchase := &models.Purchase{
		ID:           uuid.NewString(),
		UserID:       req.UserID,
		CourseID:     req.CourseID,
		Amount:       req.Amount,
		ReferralCode: req.ReferralCode,
	}

	earning, err := h.Repo.RecordPurchase(r.Context(), purchase)
	if err != nil {
		if errors.Is(err, models.ErrUnknownReferral) {
			http.Error(w, "Unknown referral code", http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"purchase": purchase,
		"earning":  earning,
	})
}

func actorFrom(r *http.Request) (withdrawal.Actor, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		return withdrawal.Actor{}, false
	}
	role, ok := middleware.GetRole(r.Context())
	if !ok {
		return withdrawal.Actor{}, false
	}
	return withdrawal.Actor{UserID: userID, Role: role}, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
