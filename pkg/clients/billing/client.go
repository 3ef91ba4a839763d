package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bhaijames252-sketch/billbillbill/pkg/api/billing"
	"github.com/bhaijames252-sketch/billbillbill/pkg/clients"
	"github.com/bhaijames252-sketch/billbillbill/pkg/logging"
)

// Outcome classifies an API call for the caller's ack/requeue decision.
// Conflict means the resource already exists; callers treat it as terminal
// (the work is already done).
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeConflict
	OutcomeNotFound
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeConflict:
		return "conflict"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "error"
	}
}

// Result is the classified outcome of one API call
type Result struct {
	Outcome    Outcome
	StatusCode int
	Body       []byte
	Err        error
}

// Terminal reports whether the call needs no further delivery attempts.
func (r Result) Terminal() bool {
	return r.Outcome == OutcomeSuccess || r.Outcome == OutcomeConflict
}

// Client talks to the billing API
type Client struct {
	baseURL     string
	apiPrefix   string
	httpClient  *http.Client
	logger      logging.Logger
	retryConfig clients.RetryConfig
}

// Config represents the configuration for the billing API client
type Config struct {
	BaseURL     string
	APIPrefix   string
	Timeout     time.Duration
	Logger      logging.Logger
	RetryConfig *clients.RetryConfig
}

// NewClient creates a new billing API client
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.APIPrefix == "" {
		config.APIPrefix = "/api/v1"
	}

	retryConfig := clients.DefaultRetryConfig()
	if config.RetryConfig != nil {
		retryConfig = *config.RetryConfig
	}

	httpClient := &http.Client{
		Timeout:   config.Timeout,
		Transport: clients.DefaultTransport(),
	}

	return &Client{
		baseURL:     config.BaseURL,
		apiPrefix:   config.APIPrefix,
		httpClient:  httpClient,
		logger:      config.Logger,
		retryConfig: retryConfig,
	}
}

// do executes one request and classifies the response
func (c *Client) do(ctx context.Context, method, path string, payload interface{}) Result {
	var body io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return Result{Outcome: OutcomeError, Err: fmt.Errorf("failed to marshal request: %w", err)}
		}
		body = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return Result{Outcome: OutcomeError, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := clients.DoWithRetry(ctx, c.httpClient, req, c.retryConfig)
	if err != nil {
		return Result{Outcome: OutcomeError, Err: fmt.Errorf("failed to call billing API: %w", err)}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Result{Outcome: OutcomeSuccess, StatusCode: resp.StatusCode, Body: respBody}
	case resp.StatusCode == http.StatusConflict:
		return Result{Outcome: OutcomeConflict, StatusCode: resp.StatusCode, Body: respBody}
	case resp.StatusCode == http.StatusNotFound:
		return Result{Outcome: OutcomeNotFound, StatusCode: resp.StatusCode, Body: respBody}
	default:
		return Result{
			Outcome:    OutcomeError,
			StatusCode: resp.StatusCode,
			Body:       respBody,
			Err:        fmt.Errorf("billing API error (%d): %s", resp.StatusCode, string(respBody)),
		}
	}
}

// CreateCompute registers a compute instance
func (c *Client) CreateCompute(ctx context.Context, req *billing.ComputeCreateRequest) Result {
	return c.do(ctx, http.MethodPost, c.apiPrefix+"/resources/computes", req)
}

// UpdateCompute patches a compute instance's state or flavor. An empty patch
// is a no-op success.
func (c *Client) UpdateCompute(ctx context.Context, resourceID string, req *billing.ComputeUpdateRequest) Result {
	if req == nil || (req.State == nil && req.Flavor == nil) {
		return Result{Outcome: OutcomeSuccess, StatusCode: http.StatusOK}
	}
	return c.do(ctx, http.MethodPatch, c.apiPrefix+"/resources/computes/"+url.PathEscape(resourceID), req)
}

// DeleteCompute marks a compute instance deleted
func (c *Client) DeleteCompute(ctx context.Context, resourceID string) Result {
	return c.do(ctx, http.MethodDelete, c.apiPrefix+"/resources/computes/"+url.PathEscape(resourceID), nil)
}

// CreateDisk registers a block volume
func (c *Client) CreateDisk(ctx context.Context, req *billing.DiskCreateRequest) Result {
	return c.do(ctx, http.MethodPost, c.apiPrefix+"/resources/disks", req)
}

// UpdateDisk patches a disk's state, size, or attachment
func (c *Client) UpdateDisk(ctx context.Context, resourceID string, req *billing.DiskUpdateRequest) Result {
	if req == nil || (req.State == nil && req.SizeGB == nil && req.AttachedTo == nil) {
		return Result{Outcome: OutcomeSuccess, StatusCode: http.StatusOK}
	}
	return c.do(ctx, http.MethodPatch, c.apiPrefix+"/resources/disks/"+url.PathEscape(resourceID), req)
}

// DeleteDisk marks a disk deleted
func (c *Client) DeleteDisk(ctx context.Context, resourceID string) Result {
	return c.do(ctx, http.MethodDelete, c.apiPrefix+"/resources/disks/"+url.PathEscape(resourceID), nil)
}

// CreateFloatingIP registers a floating IP allocation
func (c *Client) CreateFloatingIP(ctx context.Context, req *billing.FloatingIPCreateRequest) Result {
	return c.do(ctx, http.MethodPost, c.apiPrefix+"/resources/floating-ips", req)
}

// ReleaseFloatingIP marks a floating IP released
func (c *Client) ReleaseFloatingIP(ctx context.Context, resourceID string) Result {
	return c.do(ctx, http.MethodDelete, c.apiPrefix+"/resources/floating-ips/"+url.PathEscape(resourceID), nil)
}

// CreateWallet opens a wallet for a user
func (c *Client) CreateWallet(ctx context.Context, req *billing.WalletCreateRequest) Result {
	return c.do(ctx, http.MethodPost, c.apiPrefix+"/wallets", req)
}

// GetWallet fetches a user's wallet
func (c *Client) GetWallet(ctx context.Context, userID string) (*billing.WalletResponse, Result) {
	res := c.do(ctx, http.MethodGet, c.apiPrefix+"/wallets/"+url.PathEscape(userID), nil)
	if res.Outcome != OutcomeSuccess {
		return nil, res
	}
	var wallet billing.WalletResponse
	if err := json.Unmarshal(res.Body, &wallet); err != nil {
		return nil, Result{Outcome: OutcomeError, StatusCode: res.StatusCode, Body: res.Body,
			Err: fmt.Errorf("failed to decode wallet response: %w", err)}
	}
	return &wallet, res
}

// EnsureWallet creates a zero-balance wallet if the user has none.
func (c *Client) EnsureWallet(ctx context.Context, userID string) Result {
	_, res := c.GetWallet(ctx, userID)
	if res.Outcome != OutcomeNotFound {
		return res
	}
	created := c.CreateWallet(ctx, &billing.WalletCreateRequest{
		UserID:   userID,
		Balance:  "0",
		Currency: "USD",
	})
	if created.Outcome == OutcomeConflict {
		// Lost a race with another handler; the wallet exists.
		return Result{Outcome: OutcomeSuccess, StatusCode: created.StatusCode, Body: created.Body}
	}
	return created
}

// ComputeBill triggers a billing cycle for a user
func (c *Client) ComputeBill(ctx context.Context, req *billing.BillingComputeRequest) Result {
	return c.do(ctx, http.MethodPost, c.apiPrefix+"/billing/compute", req)
}

// Health probes the API's health endpoint
func (c *Client) Health(ctx context.Context) error {
	res := c.do(ctx, http.MethodGet, "/health", nil)
	if res.Outcome != OutcomeSuccess {
		if res.Err != nil {
			return res.Err
		}
		return fmt.Errorf("billing API unhealthy (%d)", res.StatusCode)
	}
	return nil
}
