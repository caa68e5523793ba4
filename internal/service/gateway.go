package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/kitkatcodeskitty/LMS-sub001/internal/models"
)

// PayoutGateway talks to the external payments provider that executes
// approved withdrawals and hands back a transaction reference.
type PayoutGateway struct {
	baseURL    string
	httpClient *http.Client
}

func NewPayoutGateway(baseURL string) *PayoutGateway {
	return &PayoutGateway{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type payoutRequest struct {
	WithdrawalID string                       `json:"withdrawalId"`
	Amount       string                       `json:"amount"`
	Method       string                       `json:"method"`
	BankTransfer *models.BankTransferDetails  `json:"bankTransferDetails,omitempty"`
	Mobile       *models.MobileBankingDetails `json:"mobileBankingDetails,omitempty"`
}

type payoutResponse struct {
	Reference string `json:"reference"`
}

// InitiatePayout submits the withdrawal to the provider and returns the
// provider's transaction reference.
func (s *PayoutGateway) InitiatePayout(ctx context.Context, w *models.WithdrawalRequest) (string, error) {
	url := fmt.Sprintf("%s/api/payouts", s.baseURL)

	payload, err := json.Marshal(payoutRequest{
		WithdrawalID: w.ID,
		Amount:       w.Amount.StringFixed(2),
		Method:       w.Method,
		BankTransfer: w.BankTransfer,
		Mobile:       w.MobileBanking,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := resp.Header.Get("Retry-After")
		if retryAfter != "" {
			seconds, err := strconv.Atoi(retryAfter)
			if err == nil {
				return "", fmt.Errorf("rate limited, retry after %d seconds", seconds)
			}
		}
		return "", fmt.Errorf("rate limited")
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("payout gateway returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var payoutResp payoutResponse
	if err := json.Unmarshal(body, &payoutResp); err != nil {
		return "", err
	}

	if payoutResp.Reference == "" {
		return "", fmt.Errorf("payout gateway returned no reference")
	}

	return payoutResp.Reference, nil
}
