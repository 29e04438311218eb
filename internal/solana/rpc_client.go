package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	sdk "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"wallet-fleet/internal/domain"
	"wallet-fleet/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxRetries   = 2
	DefaultRetryWaitMin = 500 * time.Millisecond
	DefaultRetryWaitMax = 5 * time.Second
	DefaultCommitment   = "confirmed"

	// maxAccountsPerCall is the getMultipleAccounts limit.
	maxAccountsPerCall = 100
)

// HTTPClient implements RPCClient over HTTP JSON-RPC 2.0. Retries on
// connection errors, 429 and 5xx are delegated to go-retryablehttp.
type HTTPClient struct {
	endpoint   string
	client     *retryablehttp.Client
	commitment string
}

var _ RPCClient = (*HTTPClient)(nil)

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the per-attempt HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.HTTPClient.Timeout = d
	}
}

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.client.RetryMax = n
	}
}

// WithRetryWait sets the backoff bounds between attempts.
func WithRetryWait(minWait, maxWait time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.RetryWaitMin = minWait
		c.client.RetryWaitMax = maxWait
	}
}

// WithCommitment sets the commitment used for balance reads.
func WithCommitment(commitment string) ClientOption {
	return func(c *HTTPClient) {
		c.commitment = commitment
	}
}

// WithHTTPClient replaces the underlying http.Client, e.g. for tests.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client.HTTPClient = client
	}
}

// NewHTTPClient creates a new Solana RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.HTTPClient.Timeout = DefaultTimeout
	rc.RetryMax = DefaultMaxRetries
	rc.RetryWaitMin = DefaultRetryWaitMin
	rc.RetryWaitMax = DefaultRetryWaitMax

	c := &HTTPClient{
		endpoint:   endpoint,
		client:     rc,
		commitment: DefaultCommitment,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func transportErr(method string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrTransport, method, err)
}

// call performs one JSON-RPC call. Failures to reach the node or decode its
// reply wrap domain.ErrTransport; a JSON-RPC error object is returned as *RPCError.
func (c *HTTPClient) call(ctx context.Context, method string, params []any, result any) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordRPCCall(method, time.Since(start).Seconds(), err)
	}()

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return transportErr(method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportErr(method, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return transportErr(method, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody)))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return transportErr(method, fmt.Errorf("unmarshal response: %w", err))
	}

	if rpcResp.Error != nil {
		return rpcResp.Error
	}

	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return transportErr(method, fmt.Errorf("unmarshal result: %w", err))
		}
	}

	return nil
}

// GetBalance returns the lamport balance of account.
func (c *HTTPClient) GetBalance(ctx context.Context, account sdk.PublicKey) (uint64, error) {
	params := []any{
		account.String(),
		map[string]any{"commitment": c.commitment},
	}

	var result contextual[uint64]
	if err := c.call(ctx, "getBalance", params, &result); err != nil {
		return 0, err
	}
	return result.Value, nil
}

// GetMultipleBalances reads balances with getMultipleAccounts, splitting the
// accounts into chunks the node accepts.
func (c *HTTPClient) GetMultipleBalances(ctx context.Context, accounts []sdk.PublicKey) ([]*uint64, error) {
	balances := make([]*uint64, 0, len(accounts))

	for start := 0; start < len(accounts); start += maxAccountsPerCall {
		end := min(start+maxAccountsPerCall, len(accounts))

		keys := make([]string, 0, end-start)
		for _, a := range accounts[start:end] {
			keys = append(keys, a.String())
		}
		params := []any{
			keys,
			map[string]any{
				"commitment": c.commitment,
				"encoding":   "base64",
				"dataSlice":  map[string]int{"offset": 0, "length": 0},
			},
		}

		var result contextual[[]*accountValue]
		if err := c.call(ctx, "getMultipleAccounts", params, &result); err != nil {
			return nil, err
		}
		if len(result.Value) != len(keys) {
			return nil, transportErr("getMultipleAccounts",
				fmt.Errorf("expected %d accounts, got %d", len(keys), len(result.Value)))
		}

		for _, v := range result.Value {
			if v == nil {
				balances = append(balances, nil)
				continue
			}
			lamports := v.Lamports
			balances = append(balances, &lamports)
		}
	}

	return balances, nil
}

// GetLatestBlockhash fetches a block reference at processed commitment, which
// gives the longest validity window.
func (c *HTTPClient) GetLatestBlockhash(ctx context.Context) (sdk.Hash, error) {
	params := []any{map[string]any{"commitment": "processed"}}

	var result contextual[blockhashValue]
	if err := c.call(ctx, "getLatestBlockhash", params, &result); err != nil {
		return sdk.Hash{}, err
	}

	hash, err := sdk.HashFromBase58(result.Value.Blockhash)
	if err != nil {
		return sdk.Hash{}, transportErr("getLatestBlockhash", fmt.Errorf("decode blockhash: %w", err))
	}
	return hash, nil
}

// GetMinimumBalanceForRentExemption returns the rent-exempt minimum for dataSize bytes.
func (c *HTTPClient) GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64) (uint64, error) {
	var result uint64
	if err := c.call(ctx, "getMinimumBalanceForRentExemption", []any{dataSize}, &result); err != nil {
		return 0, err
	}
	return result, nil
}

// SendTransaction broadcasts encoded without preflight simulation and lets the
// node rebroadcast up to three times.
func (c *HTTPClient) SendTransaction(ctx context.Context, encoded string) (string, error) {
	params := []any{
		encoded,
		map[string]any{
			"encoding":      "base58",
			"skipPreflight": true,
			"maxRetries":    3,
		},
	}

	var signature string
	if err := c.call(ctx, "sendTransaction", params, &signature); err != nil {
		return "", err
	}
	return signature, nil
}
