package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"solana-ledger-gateway/internal/config"
	"solana-ledger-gateway/internal/models"
	"solana-ledger-gateway/internal/rpctest"
	"solana-ledger-gateway/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	walletA = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	walletB = "So11111111111111111111111111111111111111112"
	walletC = "44PMwfFs4tfN4ujLy5xwpiGxQfa9abP5HFYtub8vgHXn"
	walletD = "11111111111111111111111111111112"
)

func testConfig(endpoint string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            "0",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
			IdleTimeout:     5 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		RPC: config.RPCConfig{
			Endpoint:   endpoint,
			Timeout:    2 * time.Second,
			Commitment: "finalized",
		},
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
			AllowedHeaders: []string{"*"},
		},
		Logging: config.LoggingConfig{Level: "info", Environment: "development"},
	}
}

// setupTestServer wires a full server against a fake ledger node
func setupTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *rpctest.Server) {
	t.Helper()
	logger.SetLogger(zap.NewNop())

	node := rpctest.NewServer(t)
	cfg := testConfig(node.URL)
	if mutate != nil {
		mutate(cfg)
	}

	server, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(server.cleanup)

	return server, node
}

func doRequest(h http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func jsonString(t *testing.T, body []byte) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(body, &s), "body %q is not a JSON string", string(body))
	return s
}

func TestBalanceScenario(t *testing.T) {
	server, node := setupTestServer(t, nil)
	node.Handle("getBalance", rpctest.BalanceByAddress(map[string]uint64{walletA: 2039280}))

	w := doRequest(server.Handler(), http.MethodGet, "/balance/"+walletA, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"address":%q,"lamports":2039280}`, walletA), w.Body.String())
	assert.Equal(t, 1, node.Calls("getBalance"))
	assert.NotEmpty(t, w.Header().Get("X-Response-Time"))
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
}

func TestTxHistoryScenario(t *testing.T) {
	server, node := setupTestServer(t, nil)
	node.Handle("getSignaturesForAddress", rpctest.SignaturesByAddress(map[string][]string{
		walletA: {rpctest.SignatureA, rpctest.SignatureB, rpctest.SignatureC},
	}))

	t.Run("OrderPreserved", func(t *testing.T) {
		w := doRequest(server.Handler(), http.MethodGet, "/txs/"+walletA, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var records []models.SignatureRecord
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
		assert.Equal(t, []models.SignatureRecord{
			{Signature: rpctest.SignatureA},
			{Signature: rpctest.SignatureB},
			{Signature: rpctest.SignatureC},
		}, records)
	})

	t.Run("EmptyHistory", func(t *testing.T) {
		w := doRequest(server.Handler(), http.MethodGet, "/txs/"+walletB, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
	})
}

func TestInvalidAddressScenario(t *testing.T) {
	server, node := setupTestServer(t, nil)

	for _, path := range []string{"/balance/not-a-key", "/txs/not-a-key", "/balance/abc", "/txs/0OIl0OIl"} {
		w := doRequest(server.Handler(), http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Equal(t, "Invalid address", jsonString(t, w.Body.Bytes()), path)
	}

	assert.Zero(t, node.Calls("getBalance"))
	assert.Zero(t, node.Calls("getSignaturesForAddress"))
}

func TestUpstreamFailureScenario(t *testing.T) {
	t.Run("RPCError", func(t *testing.T) {
		server, node := setupTestServer(t, nil)
		node.Handle("getBalance", rpctest.Fail(-32005, "Node is unhealthy"))

		w := doRequest(server.Handler(), http.MethodGet, "/balance/"+walletA, nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, jsonString(t, w.Body.Bytes()), "Node is unhealthy")
	})

	t.Run("HTTPError", func(t *testing.T) {
		server, node := setupTestServer(t, nil)
		node.FailHTTP(http.StatusBadGateway)

		w := doRequest(server.Handler(), http.MethodGet, "/txs/"+walletA, nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotEmpty(t, jsonString(t, w.Body.Bytes()))
	})

	t.Run("Unreachable", func(t *testing.T) {
		server, _ := setupTestServer(t, func(cfg *config.Config) {
			cfg.RPC.Endpoint = "http://127.0.0.1:1"
		})

		w := doRequest(server.Handler(), http.MethodGet, "/balance/"+walletA, nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotEmpty(t, jsonString(t, w.Body.Bytes()))
	})

	t.Run("Timeout", func(t *testing.T) {
		server, node := setupTestServer(t, func(cfg *config.Config) {
			cfg.RPC.Timeout = 50 * time.Millisecond
		})
		node.Handle("getBalance", rpctest.Balance(1))
		node.SetDelay(time.Second)

		start := time.Now()
		w := doRequest(server.Handler(), http.MethodGet, "/balance/"+walletA, nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotEmpty(t, jsonString(t, w.Body.Bytes()))
		assert.Less(t, time.Since(start), 900*time.Millisecond)
		assert.Equal(t, int64(1), server.metrics.GetMetrics().RPCTimeouts)
	})
}

func TestConcurrentRequestsAreIndependent(t *testing.T) {
	server, node := setupTestServer(t, nil)
	balances := map[string]uint64{walletA: 1, walletB: 22, walletC: 333, walletD: 4444}
	node.Handle("getBalance", rpctest.BalanceByAddress(balances))
	node.SetDelay(100 * time.Millisecond)

	const perWallet = 5
	var wg sync.WaitGroup
	errs := make(chan error, perWallet*len(balances))

	start := time.Now()
	for i := 0; i < perWallet; i++ {
		for wallet, lamports := range balances {
			wg.Add(1)
			go func(wallet string, lamports uint64) {
				defer wg.Done()
				w := doRequest(server.Handler(), http.MethodGet, "/balance/"+wallet, nil)
				var record models.BalanceRecord
				if err := json.Unmarshal(w.Body.Bytes(), &record); err != nil {
					errs <- fmt.Errorf("%s: %w", wallet, err)
					return
				}
				if record.Address != wallet || record.Lamports != lamports {
					errs <- fmt.Errorf("got %+v for %s", record, wallet)
				}
			}(wallet, lamports)
		}
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}

	// Serialized, twenty upstream calls would take two seconds
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, perWallet*len(balances), node.Calls("getBalance"))
}

func TestCORSPolicy(t *testing.T) {
	server, _ := setupTestServer(t, nil)

	t.Run("Preflight", func(t *testing.T) {
		w := doRequest(server.Handler(), http.MethodOptions, "/balance/"+walletA, map[string]string{
			"Origin":                         "https://wallet.example",
			"Access-Control-Request-Method":  "PUT",
			"Access-Control-Request-Headers": "X-Custom-Header",
		})

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "PUT", w.Header().Get("Access-Control-Allow-Methods"))
		assert.Contains(t, strings.ToLower(w.Header().Get("Access-Control-Allow-Headers")), "x-custom-header")
	})

	t.Run("DisallowedMethod", func(t *testing.T) {
		w := doRequest(server.Handler(), http.MethodOptions, "/balance/"+walletA, map[string]string{
			"Origin":                        "https://wallet.example",
			"Access-Control-Request-Method": "PATCH",
		})

		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("SimpleRequest", func(t *testing.T) {
		w := doRequest(server.Handler(), http.MethodGet, "/balance/bad", map[string]string{
			"Origin": "https://wallet.example",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestUnknownRouteScenario(t *testing.T) {
	server, _ := setupTestServer(t, nil)

	for _, path := range []string{"/", "/health", "/metrics", "/api/get-balance"} {
		w := doRequest(server.Handler(), http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Equal(t, "Not found", jsonString(t, w.Body.Bytes()), path)
	}

	w := doRequest(server.Handler(), http.MethodPost, "/balance/"+walletA, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimitingScenario(t *testing.T) {
	server, node := setupTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{RequestsPerMinute: 60, Burst: 2, IdleTTL: time.Minute}
	})
	node.Handle("getBalance", rpctest.Balance(5))

	for i := 0; i < 2; i++ {
		w := doRequest(server.Handler(), http.MethodGet, "/balance/"+walletA, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := doRequest(server.Handler(), http.MethodGet, "/balance/"+walletA, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Rate limit exceeded", jsonString(t, w.Body.Bytes()))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, 2, node.Calls("getBalance"))

	t.Run("ForwardedForFromUntrustedPeer", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			w := doRequest(server.Handler(), http.MethodGet, "/balance/"+walletA, map[string]string{
				"X-Forwarded-For": fmt.Sprintf("203.0.113.%d", i+1),
				"X-Real-IP":       fmt.Sprintf("198.51.100.%d", i+1),
			})
			assert.Equal(t, http.StatusTooManyRequests, w.Code)
		}
		assert.Equal(t, 2, node.Calls("getBalance"))
	})
}

func TestRateLimitingBehindTrustedProxy(t *testing.T) {
	server, node := setupTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{RequestsPerMinute: 60, Burst: 1, IdleTTL: time.Minute}
		// httptest requests arrive from 192.0.2.1
		cfg.Server.TrustedProxies = []string{"192.0.2.0/24"}
	})
	node.Handle("getBalance", rpctest.Balance(5))

	for i := 0; i < 3; i++ {
		w := doRequest(server.Handler(), http.MethodGet, "/balance/"+walletA, map[string]string{
			"X-Forwarded-For": fmt.Sprintf("203.0.113.%d", i+1),
		})
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := doRequest(server.Handler(), http.MethodGet, "/balance/"+walletA, map[string]string{
		"X-Forwarded-For": "203.0.113.1",
	})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestNewServerRejectsInvalidConfig(t *testing.T) {
	logger.SetLogger(zap.NewNop())

	t.Run("UnboundedRPCTimeout", func(t *testing.T) {
		cfg := testConfig("http://127.0.0.1:1")
		cfg.RPC.Timeout = 0
		_, err := NewServer(cfg)
		assert.ErrorContains(t, err, "rpc.timeout")
	})

	t.Run("RPCTimeoutPastWriteTimeout", func(t *testing.T) {
		cfg := testConfig("http://127.0.0.1:1")
		cfg.RPC.Timeout = cfg.Server.WriteTimeout
		_, err := NewServer(cfg)
		assert.ErrorContains(t, err, "server.write_timeout")
	})

	t.Run("BadTrustedProxy", func(t *testing.T) {
		cfg := testConfig("http://127.0.0.1:1")
		cfg.Server.TrustedProxies = []string{"not-an-ip"}
		_, err := NewServer(cfg)
		assert.ErrorContains(t, err, "trusted_proxies")
	})
}

func TestSlowUpstreamAnswersBeforeWriteDeadline(t *testing.T) {
	server, node := setupTestServer(t, func(cfg *config.Config) {
		cfg.Server.WriteTimeout = 500 * time.Millisecond
		cfg.RPC.Timeout = 100 * time.Millisecond
	})
	node.Handle("getBalance", rpctest.Balance(1))
	node.SetDelay(2 * time.Second)

	require.NoError(t, server.Listen())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/balance/%s", server.Addr(), walletA))
	require.NoError(t, err, "connection must not be dropped")
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotEmpty(t, jsonString(t, body))
}

func TestServeAndShutdown(t *testing.T) {
	server, node := setupTestServer(t, func(cfg *config.Config) {
		cfg.Server.AdminAddr = "127.0.0.1:0"
	})
	node.Handle("getBalance", rpctest.Balance(7))

	require.NoError(t, server.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()

	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(fmt.Sprintf("http://%s/balance/%s", server.Addr(), walletA))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, fmt.Sprintf(`{"address":%q,"lamports":7}`, walletA), string(body))

	resp, err = client.Get(fmt.Sprintf("http://%s/health/ready", server.AdminAddr()))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get(fmt.Sprintf("http://%s/metrics", server.AdminAddr()))
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `ledger_gateway_http_requests_total{route="/balance/:address",status="200"} 1`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}

	_, err = client.Get(fmt.Sprintf("http://%s/balance/%s", server.Addr(), walletA))
	assert.Error(t, err)
}

func TestListenFailsWhenAddressInUse(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	_, port, err := net.SplitHostPort(occupied.Addr().String())
	require.NoError(t, err)

	server, _ := setupTestServer(t, func(cfg *config.Config) {
		cfg.Server.Port = port
	})

	err = server.Listen()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to bind")
}
