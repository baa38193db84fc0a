// Package exchange implements the REST client for the settlement backend:
// contract issuance, timeout settlement, trade history, and the user profile.
// Every call carries a bearer token.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/quicktrade/secondsd/internal/domain"
)

// Client is the REST client for the exchange backend.
type Client struct {
	baseURL    string
	token      func() string
	httpClient *http.Client
}

// NewClient creates a Client for the given API root, e.g.
// "https://api.example.com". The token function is called per request so a
// rotated credential takes effect without rebuilding the client.
func NewClient(baseURL string, token func() string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// OpenSeconds submits a timed-contract open request and returns the backend's
// requestId. Failures are reported as *domain.IssueError so the orchestrator
// can surface them without allocating any contract state.
func (c *Client) OpenSeconds(ctx context.Context, req domain.ContractRequest) (string, error) {
	body := apiOpenRequest{
		Seconds:      req.DurationSeconds,
		Amount:       req.Amount,
		TradeType:    string(req.Direction),
		FromCurrency: req.FromAsset,
		ToCurrency:   req.ToAsset,
		OpenPrice:    req.OpenPrice,
	}

	respBody, err := c.do(ctx, http.MethodPost, "/api/request-seconds", body)
	if err != nil {
		return "", issueError(err)
	}

	var resp apiOpenResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", &domain.IssueError{Kind: domain.IssueInvalidResponse, Err: fmt.Errorf("exchange: decode open response: %w", err)}
	}
	if strings.TrimSpace(resp.RequestID) == "" {
		return "", &domain.IssueError{Kind: domain.IssueInvalidResponse, Err: fmt.Errorf("exchange: open response missing requestId")}
	}

	return resp.RequestID, nil
}

// SettleSeconds finalizes the contract identified by requestID at expiry and
// returns the backend-provided outcome verbatim. The caller (the settlement
// trigger) converts any error into the conservative fallback outcome.
func (c *Client) SettleSeconds(ctx context.Context, requestID string) (domain.Outcome, error) {
	path := fmt.Sprintf("/api/seconds/%s/timeout", url.PathEscape(requestID))

	respBody, err := c.do(ctx, http.MethodPost, path, nil)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("exchange: settle %s: %w", requestID, err)
	}

	var resp apiSettleResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return domain.Outcome{}, fmt.Errorf("exchange: decode settle response: %w", err)
	}

	return resp.ToDomainOutcome(), nil
}

// ListTrades fetches the user's trade history filtered by status bucket and
// trade mode.
func (c *Client) ListTrades(ctx context.Context, status domain.TradeStatus, mode domain.TradeMode, page, limit int) ([]domain.TradeRecord, error) {
	q := url.Values{}
	q.Set("status", string(status))
	q.Set("tradeMode", string(mode))
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	respBody, err := c.do(ctx, http.MethodGet, "/api/user/trades?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("exchange: list trades: %w", err)
	}

	var resp apiTradesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("exchange: decode trades: %w", err)
	}

	trades := make([]domain.TradeRecord, 0, len(resp.Trades))
	for i := range resp.Trades {
		trades = append(trades, resp.Trades[i].ToDomainTrade())
	}
	return trades, nil
}

// Balance returns the available balance for the given currency from the
// user's profile. An unlisted currency has balance zero.
func (c *Client) Balance(ctx context.Context, currency string) (float64, error) {
	respBody, err := c.do(ctx, http.MethodGet, "/api/auth/profile", nil)
	if err != nil {
		return 0, fmt.Errorf("exchange: get profile: %w", err)
	}

	var resp apiProfileResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return 0, fmt.Errorf("exchange: decode profile: %w", err)
	}

	for _, b := range resp.Balance {
		if strings.EqualFold(b.Currency, currency) {
			return b.Amount, nil
		}
	}
	return 0, nil
}

// httpStatusError marks a non-2xx response so callers can classify it.
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.body)
}

// do performs one authenticated request and returns the response body.
func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpStatusError{status: resp.StatusCode, body: strings.TrimSpace(string(respBody))}
	}

	return respBody, nil
}

// issueError classifies a transport/status failure of the open call into the
// issue-error taxonomy.
func issueError(err error) *domain.IssueError {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		if statusErr.status == http.StatusUnauthorized || statusErr.status == http.StatusForbidden {
			return &domain.IssueError{Kind: domain.IssueUnauthorized, Err: err}
		}
	}
	return &domain.IssueError{Kind: domain.IssueNetwork, Err: err}
}
