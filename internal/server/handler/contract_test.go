package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quicktrade/secondsd/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeOrchestrator scripts the contract lifecycle surface.
type fakeOrchestrator struct {
	submitContract domain.Contract
	submitErr      error
	submitted      []domain.ContractRequest
	balances       []float64

	contracts  map[string]domain.Contract
	dismissErr error
}

func (o *fakeOrchestrator) Submit(ctx context.Context, req domain.ContractRequest, availableBalance float64) (domain.Contract, error) {
	o.submitted = append(o.submitted, req)
	o.balances = append(o.balances, availableBalance)
	if o.submitErr != nil {
		return domain.Contract{}, o.submitErr
	}
	return o.submitContract, nil
}

func (o *fakeOrchestrator) Get(requestID string) (domain.Contract, bool) {
	c, ok := o.contracts[requestID]
	return c, ok
}

func (o *fakeOrchestrator) Remaining(requestID string) (int, error) {
	c, ok := o.contracts[requestID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return c.Request.DurationSeconds, nil
}

func (o *fakeOrchestrator) Dismiss(requestID string) error {
	return o.dismissErr
}

type fakePrices struct {
	price float64
	err   error
}

func (p *fakePrices) Latest(ctx context.Context, symbol string) (float64, error) {
	return p.price, p.err
}

type fakeBalance struct {
	balance float64
	err     error
}

func (b *fakeBalance) Balance(ctx context.Context, currency string) (float64, error) {
	return b.balance, b.err
}

func mustTierTable(t *testing.T) *domain.TierTable {
	t.Helper()
	table, err := domain.NewTierTable(domain.DefaultTiers())
	require.NoError(t, err)
	return table
}

func runningContract() domain.Contract {
	return domain.Contract{
		RequestID: "req-1",
		State:     domain.StateRunning,
		Request: domain.ContractRequest{
			Direction:       domain.DirectionUp,
			Amount:          5_000,
			DurationSeconds: 30,
			FromAsset:       "USDT",
			ToAsset:         "BTC",
			OpenPrice:       65_000,
		},
		Tier:      domain.DurationTier{DurationSeconds: 30, PayoutRatePercent: 12, MinAmount: 100, MaxAmount: 100_000},
		StartedAt: time.Now().Add(-10 * time.Second),
	}
}

// contractMux mirrors the production route registrations so path parameters
// resolve the same way.
func contractMux(h *ContractHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tiers", h.ListTiers)
	mux.HandleFunc("POST /api/contracts", h.OpenContract)
	mux.HandleFunc("GET /api/contracts/{id}", h.GetContract)
	mux.HandleFunc("DELETE /api/contracts/{id}", h.DismissContract)
	return mux
}

func postJSON(t *testing.T, mux *http.ServeMux, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestOpenContractSuccess(t *testing.T) {
	orch := &fakeOrchestrator{submitContract: runningContract()}
	h := NewContractHandler(orch, &fakePrices{price: 65_000}, &fakeBalance{balance: 10_000}, mustTierTable(t), testLogger())
	mux := contractMux(h)

	rec := postJSON(t, mux, "/api/contracts", map[string]any{
		"direction":        "buy",
		"amount":           5000,
		"duration_seconds": 30,
		"from_asset":       "USDT",
		"to_asset":         "BTC",
		"open_price":       65000,
	})

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "req-1", resp["request_id"])
	assert.Equal(t, "running", resp["state"])
	assert.Equal(t, float64(12), resp["payout_rate_percent"])
	assert.Greater(t, resp["remaining_seconds"], float64(0))

	require.Len(t, orch.submitted, 1)
	assert.Equal(t, 10_000.0, orch.balances[0])
	assert.Equal(t, 65_000.0, orch.submitted[0].OpenPrice)
}

func TestOpenContractFetchesReferencePrice(t *testing.T) {
	orch := &fakeOrchestrator{submitContract: runningContract()}
	h := NewContractHandler(orch, &fakePrices{price: 64_321}, &fakeBalance{balance: 10_000}, mustTierTable(t), testLogger())
	mux := contractMux(h)

	rec := postJSON(t, mux, "/api/contracts", map[string]any{
		"direction":        "buy",
		"amount":           5000,
		"duration_seconds": 30,
		"from_asset":       "USDT",
		"to_asset":         "BTC",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, orch.submitted, 1)
	assert.Equal(t, 64_321.0, orch.submitted[0].OpenPrice)
}

func TestOpenContractNoPriceAvailable(t *testing.T) {
	h := NewContractHandler(&fakeOrchestrator{}, &fakePrices{err: domain.ErrNoPrice}, &fakeBalance{}, mustTierTable(t), testLogger())
	mux := contractMux(h)

	rec := postJSON(t, mux, "/api/contracts", map[string]any{
		"direction":        "buy",
		"amount":           5000,
		"duration_seconds": 30,
		"from_asset":       "USDT",
		"to_asset":         "BTC",
	})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOpenContractBadDirection(t *testing.T) {
	h := NewContractHandler(&fakeOrchestrator{}, nil, &fakeBalance{}, mustTierTable(t), testLogger())
	mux := contractMux(h)

	rec := postJSON(t, mux, "/api/contracts", map[string]any{
		"direction":        "long",
		"amount":           5000,
		"duration_seconds": 30,
		"from_asset":       "USDT",
		"to_asset":         "BTC",
		"open_price":       65000,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOpenContractBalanceLookupFailure(t *testing.T) {
	h := NewContractHandler(&fakeOrchestrator{}, nil, &fakeBalance{err: errors.New("backend down")}, mustTierTable(t), testLogger())
	mux := contractMux(h)

	rec := postJSON(t, mux, "/api/contracts", map[string]any{
		"direction":        "buy",
		"amount":           5000,
		"duration_seconds": 30,
		"from_asset":       "USDT",
		"to_asset":         "BTC",
		"open_price":       65000,
	})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestOpenContractErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			"validation rejection",
			&domain.ValidationError{Reason: domain.ReasonAmountOutOfRange, Message: "amount out of range"},
			http.StatusBadRequest,
		},
		{
			"backend unauthorized",
			&domain.IssueError{Kind: domain.IssueUnauthorized, Err: errors.New("401")},
			http.StatusUnauthorized,
		},
		{
			"backend network failure",
			&domain.IssueError{Kind: domain.IssueNetwork, Err: errors.New("refused")},
			http.StatusBadGateway,
		},
		{
			"unknown duration",
			domain.ErrUnknownDuration,
			http.StatusBadRequest,
		},
		{
			"unexpected error",
			errors.New("boom"),
			http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			orch := &fakeOrchestrator{submitErr: tc.err}
			h := NewContractHandler(orch, nil, &fakeBalance{balance: 10_000}, mustTierTable(t), testLogger())
			mux := contractMux(h)

			rec := postJSON(t, mux, "/api/contracts", map[string]any{
				"direction":        "buy",
				"amount":           5000,
				"duration_seconds": 30,
				"from_asset":       "USDT",
				"to_asset":         "BTC",
				"open_price":       65000,
			})

			assert.Equal(t, tc.wantStatus, rec.Code)
		})
	}
}

func TestOpenContractValidationReasonInBody(t *testing.T) {
	orch := &fakeOrchestrator{submitErr: &domain.ValidationError{
		Reason:  domain.ReasonInsufficientBalance,
		Message: "insufficient balance",
	}}
	h := NewContractHandler(orch, nil, &fakeBalance{balance: 10}, mustTierTable(t), testLogger())
	mux := contractMux(h)

	rec := postJSON(t, mux, "/api/contracts", map[string]any{
		"direction":        "buy",
		"amount":           5000,
		"duration_seconds": 30,
		"from_asset":       "USDT",
		"to_asset":         "BTC",
		"open_price":       65000,
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "insufficient_balance", resp["reason"])
}

func TestGetContract(t *testing.T) {
	completed := runningContract()
	completed.State = domain.StateCompleted
	profit := 24.0
	completed.Outcome = &domain.Outcome{Result: domain.ResultWin, Profit: &profit}

	orch := &fakeOrchestrator{contracts: map[string]domain.Contract{"req-1": completed}}
	h := NewContractHandler(orch, nil, &fakeBalance{}, mustTierTable(t), testLogger())
	mux := contractMux(h)

	req := httptest.NewRequest(http.MethodGet, "/api/contracts/req-1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "completed", resp["state"])

	outcome, ok := resp["outcome"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "win", outcome["result"])
	assert.Equal(t, 24.0, outcome["profit"])
	assert.Equal(t, true, outcome["confirmed"])
}

func TestGetContractNotFound(t *testing.T) {
	h := NewContractHandler(&fakeOrchestrator{}, nil, &fakeBalance{}, mustTierTable(t), testLogger())
	mux := contractMux(h)

	req := httptest.NewRequest(http.MethodGet, "/api/contracts/nope", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDismissContract(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"completed", nil, http.StatusNoContent},
		{"unknown", domain.ErrNotFound, http.StatusNotFound},
		{"still running", domain.ErrStillRunning, http.StatusConflict},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			orch := &fakeOrchestrator{dismissErr: tc.err}
			h := NewContractHandler(orch, nil, &fakeBalance{}, mustTierTable(t), testLogger())
			mux := contractMux(h)

			req := httptest.NewRequest(http.MethodDelete, "/api/contracts/req-1", nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
		})
	}
}

func TestListTiers(t *testing.T) {
	h := NewContractHandler(&fakeOrchestrator{}, nil, &fakeBalance{}, mustTierTable(t), testLogger())
	mux := contractMux(h)

	req := httptest.NewRequest(http.MethodGet, "/api/tiers", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Tiers []struct {
			DurationSeconds int     `json:"duration_seconds"`
			PayoutRate      float64 `json:"payout_rate_percent"`
		} `json:"tiers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Tiers)
	assert.Equal(t, 30, resp.Tiers[0].DurationSeconds)
}
