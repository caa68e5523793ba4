package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/handlers"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/ledger"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/middleware"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/models"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/repository"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/withdrawal"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	decimal.MarshalJSONWithoutQuotes = true
	os.Exit(m.Run())
}

func testPolicy() models.PayoutPolicy {
	p := models.DefaultPolicy()
	p.CommissionSplit = decimal.NewFromFloat(0.5)
	return p
}

type env struct {
	repo    *repository.MemoryRepository
	handler *handlers.Handler
	userID  int64
	adminID int64
}

// newEnv seeds a referrer with 10000 lifetime earnings (5000 withdrawable).
func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	repo := repository.NewMemoryRepository(testPolicy())

	userID, err := repo.CreateUser(ctx, "referrer", "hash", models.RoleUser, "REF12345")
	require.NoError(t, err)
	buyerID, err := repo.CreateUser(ctx, "buyer", "hash", models.RoleUser, "BUY12345")
	require.NoError(t, err)
	adminID, err := repo.CreateUser(ctx, "admin", "hash", models.RoleAdmin, "ADM12345")
	require.NoError(t, err)

	_, err = repo.RecordPurchase(ctx, &models.Purchase{
		ID:           uuid.NewString(),
		UserID:       buyerID,
		CourseID:     "go-basics",
		Amount:       decimal.NewFromInt(20000),
		ReferralCode: "REF12345",
	})
	require.NoError(t, err)

	manager := withdrawal.NewManager(repo, nil, testPolicy())
	reader := ledger.NewReader(repo, testPolicy().WithdrawableFraction)
	h := handlers.NewHandler(repo, manager, reader, "test-secret")

	return &env{repo: repo, handler: h, userID: userID, adminID: adminID}
}

// router mounts the authenticated routes with a fixed identity, standing in
// for the JWT middleware.
func (e *env) router(userID int64, role string) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := context.WithValue(req.Context(), middleware.UserIDKey, userID)
			ctx = context.WithValue(ctx, middleware.RoleKey, role)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Get("/api/earnings", e.handler.GetEarnings)
	r.Get("/api/withdrawals/available-balance", e.handler.GetAvailableBalance)
	r.Post("/api/withdrawals/request", e.handler.RequestWithdrawal)
	r.Get("/api/withdrawals/history", e.handler.GetWithdrawalHistory)
	r.Patch("/api/withdrawals/{id}", e.handler.TransitionWithdrawal)
	r.Get("/api/admin/withdrawals", e.handler.ListWithdrawals)
	r.Post("/api/purchases", e.handler.RecordPurchase)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reader).Encode(body))
	}
	req := httptest.NewRequest(method, path, &reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func bankBody(amount float64) map[string]interface{} {
	return map[string]interface{}{
		"amount": amount,
		"method": models.MethodBankTransfer,
		"bankTransferDetails": map[string]string{
			"accountName":   "Asha Shrestha",
			"accountNumber": "AB123456",
			"bankName":      "Global IME",
		},
	}
}

func TestRegisterAndLogin(t *testing.T) {
	e := newEnv(t)
	r := chi.NewRouter()
	r.Post("/api/user/register", e.handler.RegisterUser)
	r.Post("/api/user/login", e.handler.LoginUser)

	rec := doJSON(t, r, http.MethodPost, "/api/user/register",
		map[string]string{"login": "newuser", "password": "secret123"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Authorization"))

	var created struct {
		Login        string `json:"login"`
		Role         string `json:"role"`
		ReferralCode string `json:"referralCode"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "newuser", created.Login)
	assert.Equal(t, models.RoleUser, created.Role)
	assert.Len(t, created.ReferralCode, 8)

	rec = doJSON(t, r, http.MethodPost, "/api/user/register",
		map[string]string{"login": "newuser", "password": "secret123"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/api/user/login",
		map[string]string{"login": "newuser", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetEarningsRoundsForDisplay(t *testing.T) {
	e := newEnv(t)

	rec := doJSON(t, e.router(e.userID, models.RoleUser), http.MethodGet, "/api/earnings", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(10000), body["lifetime"])
	assert.Equal(t, int64(5000), body["withdrawableBalance"])
}

func TestGetAvailableBalance(t *testing.T) {
	e := newEnv(t)

	rec := doJSON(t, e.router(e.userID, models.RoleUser), http.MethodGet, "/api/withdrawals/available-balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Withdrawable       float64 `json:"withdrawableBalance"`
		TotalWithdrawn     float64 `json:"totalWithdrawn"`
		PendingWithdrawals float64 `json:"pendingWithdrawals"`
		Available          float64 `json:"availableBalance"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(5000), body.Withdrawable)
	assert.Equal(t, float64(0), body.TotalWithdrawn)
	assert.Equal(t, float64(5000), body.Available)
}

func TestRequestWithdrawalCreated(t *testing.T) {
	e := newEnv(t)

	rec := doJSON(t, e.router(e.userID, models.RoleUser), http.MethodPost,
		"/api/withdrawals/request", bankBody(2000))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.WithdrawalRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.StatusPending, created.Status)
	assert.Equal(t, e.userID, created.UserID)
}

func TestRequestWithdrawalValidationErrorList(t *testing.T) {
	e := newEnv(t)

	body := map[string]interface{}{
		"amount": 50,
		"method": models.MethodMobileBanking,
		"mobileBankingDetails": map[string]string{
			"accountHolderName": "",
			"mobileNumber":      "1234567890",
			"provider":          "PayPal",
		},
	}

	rec := doJSON(t, e.router(e.userID, models.RoleUser), http.MethodPost,
		"/api/withdrawals/request", body)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp struct {
		Errors []struct {
			Field   string `json:"field"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Errors)

	fields := make(map[string]bool)
	for _, fe := range resp.Errors {
		fields[fe.Field] = true
		assert.NotEmpty(t, fe.Message)
	}
	assert.True(t, fields["amount"])
	assert.True(t, fields["mobileNumber"])
	assert.True(t, fields["provider"])
}

func TestRequestWithdrawalInsufficientBalance(t *testing.T) {
	e := newEnv(t)

	rec := doJSON(t, e.router(e.userID, models.RoleUser), http.MethodPost,
		"/api/withdrawals/request", bankBody(6000))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient_balance")
	assert.Contains(t, rec.Body.String(), "5000.00", "message states the available amount")
}

func TestWithdrawalHistoryAlwaysAnArray(t *testing.T) {
	e := newEnv(t)

	rec := doJSON(t, e.router(e.userID, models.RoleUser), http.MethodGet, "/api/withdrawals/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"withdrawals": []}`, rec.Body.String())
}

func TestTransitionWithdrawalByAdmin(t *testing.T) {
	e := newEnv(t)
	userRouter := e.router(e.userID, models.RoleUser)
	adminRouter := e.router(e.adminID, models.RoleAdmin)

	rec := doJSON(t, userRouter, http.MethodPost, "/api/withdrawals/request", bankBody(2000))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.WithdrawalRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, adminRouter, http.MethodPatch, "/api/withdrawals/"+created.ID,
		map[string]string{"status": models.StatusApproved, "transactionReference": "TXN-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated models.WithdrawalRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, models.StatusApproved, updated.Status)
	assert.Equal(t, "TXN-1", updated.TransactionReference)

	// Terminal: a second transition conflicts.
	rec = doJSON(t, adminRouter, http.MethodPatch, "/api/withdrawals/"+created.ID,
		map[string]string{"status": models.StatusRejected, "rejectionReason": "late"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTransitionWithdrawalForbiddenForUsers(t *testing.T) {
	e := newEnv(t)
	userRouter := e.router(e.userID, models.RoleUser)

	rec := doJSON(t, userRouter, http.MethodPost, "/api/withdrawals/request", bankBody(2000))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.WithdrawalRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, userRouter, http.MethodPatch, "/api/withdrawals/"+created.ID,
		map[string]string{"status": models.StatusApproved})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTransitionRejectWithoutReason(t *testing.T) {
	e := newEnv(t)
	userRouter := e.router(e.userID, models.RoleUser)
	adminRouter := e.router(e.adminID, models.RoleAdmin)

	rec := doJSON(t, userRouter, http.MethodPost, "/api/withdrawals/request", bankBody(2000))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.WithdrawalRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, adminRouter, http.MethodPatch, "/api/withdrawals/"+created.ID,
		map[string]string{"status": models.StatusRejected})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListWithdrawalsAdminQueue(t *testing.T) {
	e := newEnv(t)
	adminRouter := e.router(e.adminID, models.RoleAdmin)

	rec := doJSON(t, e.router(e.userID, models.RoleUser), http.MethodPost,
		"/api/withdrawals/request", bankBody(2000))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, adminRouter, http.MethodGet, "/api/admin/withdrawals?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Withdrawals []models.WithdrawalRequest `json:"withdrawals"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Withdrawals, 1)

	rec = doJSON(t, adminRouter, http.MethodGet, "/api/admin/withdrawals?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordPurchaseUnknownReferralCode(t *testing.T) {
	e := newEnv(t)
	adminRouter := e.router(e.adminID, models.RoleAdmin)

	rec := doJSON(t, adminRouter, http.MethodPost, "/api/purchases", map[string]interface{}{
		"userId":       e.userID,
		"courseId":     "go-basics",
		"amount":       1000,
		"referralCode": "NOPE",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRecordPurchaseRequiresFields(t *testing.T) {
	e := newEnv(t)
	adminRouter := e.router(e.adminID, models.RoleAdmin)

	rec := doJSON(t, adminRouter, http.MethodPost, "/api/purchases", map[string]interface{}{
		"courseId": "go-basics",
		"amount":   1000,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
