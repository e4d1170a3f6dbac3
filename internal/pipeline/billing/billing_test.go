package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelineengine/platform/logger"
)

func TestConsumeSucceedsOnFirstAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/billing/credits/consume", r.URL.Path)
		var req CreditRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "run-1:step-1", req.IdempotencyKey)

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(Transaction{
			TransactionID:   "txn-1",
			TenantID:        req.TenantID,
			TransactionType: "consume",
			Amount:          req.Amount,
		})
	}))
	defer srv.Close()

	c := &HTTPClient{baseURL: srv.URL, http: srv.Client(), log: logger.New("test"), retryAttempts: 3}
	txn, err := c.Consume(context.Background(), CreditRequest{
		TenantID:       "tenant-1",
		Amount:         "150",
		IdempotencyKey: "run-1:step-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "txn-1", txn.TransactionID)
}

func TestConsumeReturnsInsufficientCreditsOn402(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer srv.Close()

	c := &HTTPClient{baseURL: srv.URL, http: srv.Client(), log: logger.New("test"), retryAttempts: 3}
	_, err := c.Consume(context.Background(), CreditRequest{TenantID: "tenant-1", Amount: "150", IdempotencyKey: "k"})
	assert.ErrorIs(t, err, ErrInsufficientCredits)
}

func TestConsumeRetriesOn5xxThenCollapsesToUnavailable(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := &HTTPClient{baseURL: srv.URL, http: srv.Client(), log: logger.New("test"), retryAttempts: 3}
	_, err := c.Consume(context.Background(), CreditRequest{TenantID: "tenant-1", Amount: "150", IdempotencyKey: "k"})
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestConsumeDoesNotRetryOnOther4xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := &HTTPClient{baseURL: srv.URL, http: srv.Client(), log: logger.New("test"), retryAttempts: 3}
	_, err := c.Consume(context.Background(), CreditRequest{TenantID: "tenant-1", Amount: "150", IdempotencyKey: "k"})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestBalanceReturns404AsBillingError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := &HTTPClient{baseURL: srv.URL, http: srv.Client(), log: logger.New("test"), retryAttempts: 3}
	_, err := c.Balance(context.Background(), "tenant-1")
	require.Error(t, err)
	var billingErr *BillingError
	require.ErrorAs(t, err, &billingErr)
	assert.Equal(t, http.StatusNotFound, billingErr.Status)
}
