package billing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	api "github.com/bhaijames252-sketch/billbillbill/pkg/api/billing"
	"github.com/bhaijames252-sketch/billbillbill/pkg/clients"
	"github.com/bhaijames252-sketch/billbillbill/pkg/logging"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(Config{
		BaseURL: server.URL,
		Timeout: 2 * time.Second,
		Logger:  logging.NewLogger(),
		RetryConfig: &clients.RetryConfig{
			MaxRetries: 0,
			RetryDelay: time.Millisecond,
			RetryFunc:  clients.DefaultShouldRetry,
		},
	})
	return client, server
}

func TestOutcomeClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		expected Outcome
		terminal bool
	}{
		{"created", http.StatusCreated, OutcomeSuccess, true},
		{"ok", http.StatusOK, OutcomeSuccess, true},
		{"duplicate", http.StatusConflict, OutcomeConflict, true},
		{"missing", http.StatusNotFound, OutcomeNotFound, false},
		{"server error", http.StatusInternalServerError, OutcomeError, false},
		{"bad request", http.StatusBadRequest, OutcomeError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			res := client.CreateCompute(context.Background(), &api.ComputeCreateRequest{
				ResourceID: "vm-1", UserID: "user-1", Flavor: "m1.small",
			})
			assert.Equal(t, tt.expected, res.Outcome)
			assert.Equal(t, tt.terminal, res.Terminal())
		})
	}
}

func TestConnectionErrorIsOutcomeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := server.URL
	server.Close()

	client := NewClient(Config{
		BaseURL: deadURL,
		Timeout: time.Second,
		Logger:  logging.NewLogger(),
		RetryConfig: &clients.RetryConfig{
			MaxRetries: 1,
			RetryDelay: time.Millisecond,
			RetryFunc:  clients.DefaultShouldRetry,
		},
	})

	res := client.DeleteCompute(context.Background(), "vm-1")
	assert.Equal(t, OutcomeError, res.Outcome)
	assert.Error(t, res.Err)
	assert.False(t, res.Terminal())
}

func TestGetWalletDecodesBody(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/wallets/user-1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"user_id":"user-1","balance":"12.5","currency":"USD"}`))
	}))

	wallet, res := client.GetWallet(context.Background(), "user-1")
	require.Equal(t, OutcomeSuccess, res.Outcome)
	require.NotNil(t, wallet)
	assert.Equal(t, "user-1", wallet.UserID)
	assert.Equal(t, "12.5", wallet.Balance)
}

func TestEnsureWalletCreatesWhenMissing(t *testing.T) {
	var methods []string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "/api/v1/wallets/user-1", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPost:
			assert.Equal(t, "/api/v1/wallets", r.URL.Path)
			w.WriteHeader(http.StatusCreated)
		}
	}))

	res := client.EnsureWallet(context.Background(), "user-1")
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, []string{http.MethodGet, http.MethodPost}, methods)
}

func TestEnsureWalletExistingWalletSkipsCreate(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte(`{"user_id":"user-1","balance":"5","currency":"USD"}`))
	}))

	res := client.EnsureWallet(context.Background(), "user-1")
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, 1, calls)
}

func TestEnsureWalletCreateRaceConflictIsSuccess(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPost:
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error":"wallet already exists"}`))
		}
	}))

	res := client.EnsureWallet(context.Background(), "user-1")
	assert.Equal(t, OutcomeSuccess, res.Outcome)
}

func TestUpdateComputeSendsPatch(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/v1/resources/computes/vm-1", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))

	state := "stopped"
	res := client.UpdateCompute(context.Background(), "vm-1", &api.ComputeUpdateRequest{State: &state})
	assert.Equal(t, OutcomeSuccess, res.Outcome)
}

func TestComputeBillPostsToBillingCompute(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/billing/compute", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"bill_id":"bill_2026_01_01_user-1_abc123"}`))
	}))

	res := client.ComputeBill(context.Background(), &api.BillingComputeRequest{UserID: "user-1"})
	assert.Equal(t, OutcomeSuccess, res.Outcome)
}
