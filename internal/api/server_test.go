package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdk "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-fleet/internal/dispatch"
	"wallet-fleet/internal/jobs"
	"wallet-fleet/internal/reporting"
	"wallet-fleet/internal/solana/stub"
	"wallet-fleet/internal/storage/memory"
	"wallet-fleet/internal/wallet"
)

type testEnv struct {
	rpc      *stub.RPCClient
	registry *wallet.Registry
	manager  *jobs.Manager
	server   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	rpc := stub.NewRPCClient()
	registry, err := wallet.NewRegistry([]byte("api-test-seed"), memory.NewWalletStore(), rpc)
	require.NoError(t, err)
	ledger := memory.NewTransferLogStore()
	manager := jobs.NewManager(rpc, dispatch.New(rpc, stub.NewConfirmer()), jobs.WithLedger(ledger))

	srv := httptest.NewServer(NewServer(registry, manager, reporting.NewGenerator(ledger)).Handler())
	t.Cleanup(srv.Close)

	return &testEnv{rpc: rpc, registry: registry, manager: manager, server: srv}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestCreateAndListWallets(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/wallets/create", map[string]any{"count": 3})
	require.Equal(t, http.StatusOK, status)
	pubkeys := body["pubkeys"].([]any)
	require.Len(t, pubkeys, 3)

	first, err := sdk.PublicKeyFromBase58(pubkeys[0].(string))
	require.NoError(t, err)
	env.rpc.Balances[first] = 1_234

	status, body = env.do(t, http.MethodGet, "/wallets/list?page=1&page_size=2", nil)
	require.Equal(t, http.StatusOK, status)
	wallets := body["wallets"].([]any)
	require.Len(t, wallets, 2)

	w0 := wallets[0].(map[string]any)
	assert.Equal(t, pubkeys[0], w0["pubkey"])
	assert.Equal(t, "1234", w0["sol_lamports"])
	assert.Equal(t, "0", wallets[1].(map[string]any)["sol_lamports"])
}

func TestCreateWallets_BadRequest(t *testing.T) {
	env := newTestEnv(t)

	status, _ := env.do(t, http.MethodPost, "/wallets/create", map[string]any{"count": 0})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/wallets/create", "{not json")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodGet, "/wallets/list?page=abc", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestFundingLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	status, body := env.do(t, http.MethodPost, "/funding/initiate", map[string]any{"lamports_per_wallet": "1000"})
	assert.Equal(t, http.StatusBadRequest, status, "no wallets yet")
	assert.Contains(t, body["message"], "0 wallets")

	_, err := env.registry.Create(ctx, 2)
	require.NoError(t, err)

	status, _ = env.do(t, http.MethodPost, "/funding/complete", nil)
	assert.Equal(t, http.StatusConflict, status)

	status, body = env.do(t, http.MethodPost, "/funding/initiate", map[string]any{"lamports_per_wallet": "1000"})
	require.Equal(t, http.StatusOK, status)
	job := body["job"].(map[string]any)
	assert.Equal(t, "902880", job["total_funding_lamports"])
	assert.EqualValues(t, 2, job["targets"])

	status, _ = env.do(t, http.MethodPost, "/funding/initiate", map[string]any{"lamports_per_wallet": "1000"})
	assert.Equal(t, http.StatusConflict, status)

	status, body = env.do(t, http.MethodGet, "/funding/status", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "INITIATED", body["state"])

	status, _ = env.do(t, http.MethodPost, "/funding/complete", nil)
	assert.Equal(t, http.StatusConflict, status, "distribution wallet is empty")

	dist, err := sdk.PublicKeyFromBase58(job["funding_wallet_pubkey"].(string))
	require.NoError(t, err)
	env.rpc.Balances[dist] = 902_880

	status, body = env.do(t, http.MethodPost, "/funding/complete", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["failed"])
	assert.Len(t, body["transfers"], 2)

	status, body = env.do(t, http.MethodGet, "/funding/status", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "IDLE", body["state"])
	assert.Nil(t, body["job"])
}

func TestFundingComplete_NothingBroadcastKeepsJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.registry.Create(ctx, 2)
	require.NoError(t, err)

	status, body := env.do(t, http.MethodPost, "/funding/initiate", map[string]any{"lamports_per_wallet": "1000"})
	require.Equal(t, http.StatusOK, status)
	job := body["job"].(map[string]any)
	dist, err := sdk.PublicKeyFromBase58(job["funding_wallet_pubkey"].(string))
	require.NoError(t, err)
	env.rpc.Balances[dist] = 902_880

	env.rpc.BeforeSend = func(stub.SentTransfer) error { return errors.New("node down") }

	status, body = env.do(t, http.MethodPost, "/funding/complete", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, body["message"], "no transfer was broadcast")
	assert.Len(t, body["transfers"], 2)

	status, body = env.do(t, http.MethodGet, "/funding/status", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "INITIATED", body["state"])
	require.NotNil(t, body["job"])
	assert.Equal(t, job["funding_wallet_pubkey"], body["job"].(map[string]any)["funding_wallet_pubkey"])

	env.rpc.BeforeSend = nil
	status, body = env.do(t, http.MethodPost, "/funding/complete", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["failed"])
}

func TestFundingInitiate_InvalidLamports(t *testing.T) {
	env := newTestEnv(t)

	status, _ := env.do(t, http.MethodPost, "/funding/initiate", map[string]any{"lamports_per_wallet": "12.5"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/funding/initiate", map[string]any{"lamports_per_wallet": "99999999999999999999999"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestFundingAbort(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.registry.Create(context.Background(), 1)
	require.NoError(t, err)

	status, _ := env.do(t, http.MethodPost, "/funding/abort", nil)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = env.do(t, http.MethodPost, "/funding/initiate", map[string]any{"lamports_per_wallet": "5"})
	require.Equal(t, http.StatusOK, status)

	status, body := env.do(t, http.MethodPost, "/funding/abort", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Aborted funding.", body["message"])
}

func TestCollect(t *testing.T) {
	env := newTestEnv(t)
	created, err := env.registry.Create(context.Background(), 3)
	require.NoError(t, err)

	sources := make([]string, len(created))
	for i, w := range created {
		sources[i] = w.Address().String()
		env.rpc.Balances[w.Address()] = 500
	}
	dest, err := wallet.Generate()
	require.NoError(t, err)

	status, body := env.do(t, http.MethodPost, "/collect", map[string]any{
		"lamports":       "301",
		"source_pubkeys": sources,
		"destination":    dest.Address().String(),
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "100", body["per_source_lamports"])
	assert.Len(t, body["transfers"], 3)
	assert.Len(t, env.rpc.Sent(), 3)
}

func TestCollect_Errors(t *testing.T) {
	env := newTestEnv(t)
	created, err := env.registry.Create(context.Background(), 2)
	require.NoError(t, err)
	src := created[0].Address().String()
	dest := created[1].Address().String()

	status, _ := env.do(t, http.MethodPost, "/collect", map[string]any{
		"lamports": "100", "source_pubkeys": []string{src}, "destination": "not-a-key",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	stranger, err := wallet.Generate()
	require.NoError(t, err)
	status, _ = env.do(t, http.MethodPost, "/collect", map[string]any{
		"lamports": "100", "source_pubkeys": []string{stranger.Address().String()}, "destination": dest,
	})
	assert.Equal(t, http.StatusBadRequest, status, "unknown source wallet")

	status, body := env.do(t, http.MethodPost, "/collect", map[string]any{
		"lamports": "100", "source_pubkeys": []string{src}, "destination": dest,
	})
	assert.Equal(t, http.StatusConflict, status, "source holds nothing")
	assert.Contains(t, body["message"], "insufficient funds")
}

func TestCollect_BroadcastFailureReportsTransfers(t *testing.T) {
	env := newTestEnv(t)
	created, err := env.registry.Create(context.Background(), 2)
	require.NoError(t, err)
	for _, w := range created {
		env.rpc.Balances[w.Address()] = 500
	}
	dest, err := wallet.Generate()
	require.NoError(t, err)
	env.rpc.SendErrors[dest.Address()] = errors.New("node unavailable")

	status, body := env.do(t, http.MethodPost, "/collect", map[string]any{
		"lamports":       "200",
		"source_pubkeys": []string{created[0].Address().String(), created[1].Address().String()},
		"destination":    dest.Address().String(),
	})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal error", body["message"])
	assert.Len(t, body["transfers"], 1)
}

func TestJobReport(t *testing.T) {
	env := newTestEnv(t)
	created, err := env.registry.Create(context.Background(), 2)
	require.NoError(t, err)
	sources := make([]string, len(created))
	for i, w := range created {
		sources[i] = w.Address().String()
		env.rpc.Balances[w.Address()] = 500
	}
	dest, err := wallet.Generate()
	require.NoError(t, err)

	status, body := env.do(t, http.MethodPost, "/collect", map[string]any{
		"lamports": "200", "source_pubkeys": sources, "destination": dest.Address().String(),
	})
	require.Equal(t, http.StatusOK, status)
	jobID := body["job_id"].(string)

	status, body = env.do(t, http.MethodGet, "/jobs/"+jobID+"/report", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "COLLECTION", body["kind"])
	assert.EqualValues(t, 2, body["sent"])
	assert.Equal(t, "200", body["lamports_moved"])

	resp, err := http.Get(env.server.URL + "/jobs/" + jobID + "/report?format=csv")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))

	status, _ = env.do(t, http.MethodGet, "/jobs/"+jobID+"/report?format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodGet, "/jobs/unknown/report", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	rpc := stub.NewRPCClient()
	registry, err := wallet.NewRegistry([]byte("api-test-seed"), memory.NewWalletStore(), rpc)
	require.NoError(t, err)
	ledger := memory.NewTransferLogStore()
	manager := jobs.NewManager(rpc, dispatch.New(rpc, stub.NewConfirmer()))

	newServer := func(origins ...string) *httptest.Server {
		srv := httptest.NewServer(NewServer(registry, manager, reporting.NewGenerator(ledger),
			WithCORSOrigins(origins)).Handler())
		t.Cleanup(srv.Close)
		return srv
	}

	preflight := func(t *testing.T, url, origin string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(http.MethodOptions, url+"/funding/initiate", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "content-type")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	t.Run("any origin preflight", func(t *testing.T) {
		srv := newServer("*")
		resp := preflight(t, srv.URL, "http://localhost:3000")

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPost)
		assert.Equal(t, "Content-Type", resp.Header.Get("Access-Control-Allow-Headers"))
	})

	t.Run("simple request carries origin header", func(t *testing.T) {
		srv := newServer("*")
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "http://localhost:3000")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("specific origin", func(t *testing.T) {
		srv := newServer("https://fleet.example")

		resp := preflight(t, srv.URL, "https://fleet.example")
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "https://fleet.example", resp.Header.Get("Access-Control-Allow-Origin"))

		resp = preflight(t, srv.URL, "https://other.example")
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("disabled", func(t *testing.T) {
		srv := newServer()
		resp := preflight(t, srv.URL, "http://localhost:3000")

		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	})
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	status, _ := env.do(t, http.MethodGet, "/funding/complete", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}
