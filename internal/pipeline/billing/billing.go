// Package billing wraps the peer credit-ledger service (§6.1): consume,
// refund, and balance lookups with idempotency keys and retry/backoff.
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"pipelineengine/platform/config"
	"pipelineengine/platform/logger"
)

// ErrInsufficientCredits is returned by Consume on HTTP 402 — a domain
// outcome, not an operational failure (§7).
var ErrInsufficientCredits = errors.New("insufficient credits")

// ErrServiceUnavailable is returned once all configured attempts have
// failed against 5xx responses, network errors, or timeouts.
var ErrServiceUnavailable = errors.New("billing service unavailable")

// BillingError carries an HTTP status from the billing peer. do() returns it
// for 5xx responses (which withRetry retries), and a non-402 4xx response's
// nonRetryableBillingError unwraps to it.
type BillingError struct {
	Status int
}

func (e *BillingError) Error() string {
	return fmt.Sprintf("billing service returned status %d", e.Status)
}

// Transaction is the response shape for both consume and refund (§6.1);
// only transaction_type differs.
type Transaction struct {
	TransactionID   string    `json:"transaction_id"`
	TenantID        string    `json:"tenant_id"`
	TransactionType string    `json:"transaction_type"`
	Amount          string    `json:"amount"`
	BalanceBefore   string    `json:"balance_before"`
	BalanceAfter    string    `json:"balance_after"`
	IdempotencyKey  string    `json:"idempotency_key"`
	CreatedAt       time.Time `json:"created_at"`
}

// Balance is the response shape for GET /billing/credits/balance/{tenant_id}.
type Balance struct {
	TenantID    string    `json:"tenant_id"`
	Balance     float64   `json:"balance"`
	LastUpdated time.Time `json:"last_updated"`
}

// CreditRequest is the shared request shape for consume and refund.
type CreditRequest struct {
	TenantID       string         `json:"tenant_id"`
	Amount         string         `json:"amount"`
	IdempotencyKey string         `json:"idempotency_key"`
	ReferenceType  string         `json:"reference_type,omitempty"`
	ReferenceID    string         `json:"reference_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Client is the interface PipelineExecutor, Validator and the
// compensation/billing-unavailable use cases depend on.
type Client interface {
	Consume(ctx context.Context, req CreditRequest) (*Transaction, error)
	Refund(ctx context.Context, req CreditRequest) (*Transaction, error)
	Balance(ctx context.Context, tenantID string) (*Balance, error)
}

// HTTPClient is the production Client: a plain *http.Client with no
// framework, mirroring the teacher's whatsapp.Client. Retry/backoff is
// internal to each call per §5/§9: 5s timeout per attempt, 3 attempts,
// 1s/2s/4s backoff between attempts.
type HTTPClient struct {
	baseURL      string
	apiKey       string
	http         *http.Client
	log          *logger.Logger
	retryAttempts int
	backoff      []time.Duration
}

func NewHTTPClient(cfg config.BillingConfig, log *logger.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:       cfg.GetBillingBaseURL(),
		apiKey:        cfg.GetBillingAPIKey(),
		http:          &http.Client{Timeout: cfg.GetBillingTimeout()},
		log:           log,
		retryAttempts: cfg.GetBillingRetryAttempts(),
		backoff:       []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
	}
}

func (c *HTTPClient) Consume(ctx context.Context, req CreditRequest) (*Transaction, error) {
	var txn Transaction
	if err := c.postCredit(ctx, "/billing/credits/consume", req, &txn); err != nil {
		return nil, err
	}
	return &txn, nil
}

func (c *HTTPClient) Refund(ctx context.Context, req CreditRequest) (*Transaction, error) {
	var txn Transaction
	if err := c.postCredit(ctx, "/billing/credits/refund", req, &txn); err != nil {
		return nil, err
	}
	return &txn, nil
}

func (c *HTTPClient) Balance(ctx context.Context, tenantID string) (*Balance, error) {
	var bal Balance
	err := c.withRetry(ctx, "balance", func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/billing/credits/balance/"+tenantID, nil)
		if err != nil {
			return err
		}
		c.setHeaders(httpReq)
		return c.do(httpReq, &bal)
	})
	if err != nil {
		return nil, err
	}
	return &bal, nil
}

func (c *HTTPClient) postCredit(ctx context.Context, path string, req CreditRequest, out *Transaction) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return c.withRetry(ctx, path, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		c.setHeaders(httpReq)
		httpReq.Header.Set("Content-Type", "application/json")
		return c.do(httpReq, out)
	})
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *HTTPClient) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return json.Unmarshal(bodyBytes, out)
	case resp.StatusCode == http.StatusPaymentRequired:
		return ErrInsufficientCredits
	case resp.StatusCode >= 500:
		return &BillingError{Status: resp.StatusCode}
	default:
		return &nonRetryableBillingError{status: resp.StatusCode}
	}
}

// nonRetryableBillingError wraps a 4xx (other than 402) response. withRetry
// treats it as terminal: retrying a malformed request or a 404 balance
// lookup would never succeed.
type nonRetryableBillingError struct {
	status int
}

func (e *nonRetryableBillingError) Error() string {
	return fmt.Sprintf("billing service returned status %d", e.status)
}

func (e *nonRetryableBillingError) Unwrap() error {
	return &BillingError{Status: e.status}
}

// withRetry attempts fn up to c.retryAttempts times, waiting c.backoff[i]
// between attempts. ErrInsufficientCredits and nonRetryableBillingError
// stop the loop immediately; any other error (network, timeout, 5xx) is
// retried until attempts are exhausted, at which point it collapses to
// ErrServiceUnavailable, matching the §6.1 "5xx/timeout → BillingServiceUnavailable
// after all retries exhausted" contract.
func (c *HTTPClient) withRetry(ctx context.Context, op string, fn func() error) error {
	attempts := c.retryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrInsufficientCredits) {
			return err
		}
		var nonRetryable *nonRetryableBillingError
		if errors.As(err, &nonRetryable) {
			return err
		}

		lastErr = err
		c.log.Warn("billing call failed, retrying", "operation", op, "attempt", attempt+1, "error", err)

		if attempt < attempts-1 && attempt < len(c.backoff) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff[attempt]):
			}
		}
	}

	c.log.Error("billing call exhausted retries", "operation", op, "error", lastErr)
	return ErrServiceUnavailable
}
