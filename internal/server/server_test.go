package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gateway-agent/internal/config"
	"gateway-agent/internal/credentials"
	"gateway-agent/internal/mcp"
	"gateway-agent/internal/provider"
)

// stubRunner records tasks and returns a scripted answer.
type stubRunner struct {
	tasks  []string
	result string
	err    error
}

func (r *stubRunner) Browse(_ context.Context, task string) (string, error) {
	r.tasks = append(r.tasks, task)
	if r.err != nil {
		return "", r.err
	}
	return r.result, nil
}

// stubSessionClient is a minimal MCPClient for session routes.
type stubSessionClient struct {
	connectErr error
	calls      []string
	closed     int
}

func (c *stubSessionClient) Connect(_ context.Context) error { return c.connectErr }

func (c *stubSessionClient) ListTools(_ context.Context) ([]mcp.MCPToolInfo, error) {
	return nil, nil
}

func (c *stubSessionClient) CallTool(_ context.Context, name string, _ map[string]interface{}) (*provider.ToolResult, error) {
	c.calls = append(c.calls, name)
	return &provider.ToolResult{Success: true}, nil
}

func (c *stubSessionClient) Close() error {
	c.closed++
	return nil
}

type testEnv struct {
	server  *Server
	runner  *stubRunner
	creds   *credentials.Manager
	client  *stubSessionClient
	cfg     *config.Config
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	secretsPath := filepath.Join(dir, "secrets.json")
	require.NoError(t, os.WriteFile(secretsPath,
		[]byte(`{"gateway-prod": {"username": "merchant", "password": "hunter2"}}`), 0o600))

	cfg := &config.Config{
		Listen:    config.ListenConfig{Addr: ":0", StaticDir: filepath.Join(dir, "static")},
		Browser:   config.BrowserConfig{GatewayURL: "https://zero5.transactiongateway.com/merchants/"},
		Secrets:   config.SecretsConfig{File: secretsPath, SecretID: "gateway-prod"},
		Log:       config.LogConfig{File: filepath.Join(dir, "gateway-agent.log")},
		Agent:     config.AgentConfig{MaxIterations: 30},
		Anthropic: config.AnthropicConfig{MaxTokens: 2048},
	}

	runner := &stubRunner{result: "receipt sent to client@example.com."}
	creds := credentials.NewManager(secretsPath)
	client := &stubSessionClient{}
	session := NewVerificationSession(func() mcp.MCPClient { return client }, cfg.Browser.GatewayURL, "")

	srv := New(cfg, creds, runner, session)
	return &testEnv{
		server:  srv,
		runner:  runner,
		creds:   creds,
		client:  client,
		cfg:     cfg,
		handler: srv.Handler(),
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	payload := decodeBody(t, rec)
	assert.Equal(t, "healthy", payload["status"])
	assert.NotEmpty(t, payload["timestamp"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestStatusReflectsCredentialState(t *testing.T) {
	env := newTestEnv(t)

	payload := decodeBody(t, env.do(t, http.MethodGet, "/api/status", ""))
	assert.Equal(t, "running", payload["status"])
	assert.Equal(t, false, payload["credentials_connected"])

	require.NoError(t, env.creds.Connect())

	payload = decodeBody(t, env.do(t, http.MethodGet, "/api/status", ""))
	assert.Equal(t, true, payload["credentials_connected"])
}

func TestCredentialsConnect(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/credentials/connect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["success"])
	assert.True(t, env.creds.IsConnected())
}

func TestCredentialsConnectFailure(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.Remove(env.cfg.Secrets.File))

	rec := env.do(t, http.MethodPost, "/api/credentials/connect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["success"])
}

func TestSendReceipt(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.creds.Connect())

	rec := env.do(t, http.MethodPost, "/api/send_receipt",
		`{"transactionId": "TXN-1001", "clientEmail": "client@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	payload := decodeBody(t, rec)
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, "TXN-1001", payload["transaction_id"])
	assert.Equal(t, "receipt sent to client@example.com.", payload["result"])

	// The browsing task must embed the login and the request data.
	require.Len(t, env.runner.tasks, 1)
	task := env.runner.tasks[0]
	assert.Contains(t, task, "username: merchant")
	assert.Contains(t, task, "password: hunter2")
	assert.Contains(t, task, "TXN-1001")
	assert.Contains(t, task, "client@example.com")
	assert.Contains(t, task, env.cfg.Browser.GatewayURL)
}

func TestSendReceiptValidation(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.creds.Connect())

	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed body", `{not json`, http.StatusBadRequest},
		{"unknown field", `{"transactionId": "t", "clientEmail": "a@b.com", "extra": 1}`, http.StatusBadRequest},
		{"missing transaction id", `{"clientEmail": "a@b.com"}`, http.StatusUnprocessableEntity},
		{"invalid email", `{"transactionId": "t", "clientEmail": "not-an-email"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/send_receipt", tt.body)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
	assert.Empty(t, env.runner.tasks, "invalid requests must not reach the runner")
}

func TestSendReceiptWithoutCredentials(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/send_receipt",
		`{"transactionId": "TXN-1001", "clientEmail": "client@example.com"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, env.runner.tasks)
}

func TestGiveRefund(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.creds.Connect())
	env.runner.result = "refund issued"

	rec := env.do(t, http.MethodPost, "/api/give_refund",
		`{"transactionId": "TXN-2002", "refundAmount": 49.95}`)
	require.Equal(t, http.StatusOK, rec.Code)

	payload := decodeBody(t, rec)
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, "TXN-2002", payload["transaction_id"])

	require.Len(t, env.runner.tasks, 1)
	assert.Contains(t, env.runner.tasks[0], "refund amount 49.95")
}

func TestGiveRefundAmountBounds(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.creds.Connect())

	tests := []struct {
		amount float64
		code   int
	}{
		{0, http.StatusUnprocessableEntity},
		{-10, http.StatusUnprocessableEntity},
		{100000, http.StatusUnprocessableEntity},
		{99999.99, http.StatusOK},
		{0.01, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("amount=%v", tt.amount), func(t *testing.T) {
			body := fmt.Sprintf(`{"transactionId": "t", "refundAmount": %v}`, tt.amount)
			rec := env.do(t, http.MethodPost, "/api/give_refund", body)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestGiveRefundRunnerError(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.creds.Connect())
	env.runner.err = errors.New("browser session setup failed")

	rec := env.do(t, http.MethodPost, "/api/give_refund",
		`{"transactionId": "t", "refundAmount": 10}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["success"])
}

func TestVerificationStartAndFinish(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/verification/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["success"])
	assert.True(t, env.server.session.Active())
	assert.Contains(t, env.client.calls, "browser_navigate")

	rec = env.do(t, http.MethodPost, "/api/verification/finish", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, env.server.session.Active())
	assert.Equal(t, 1, env.client.closed)
	assert.Contains(t, env.client.calls, "browser_close")
}

func TestVerificationFinishWithoutSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/verification/finish", "")
	require.Equal(t, http.StatusOK, rec.Code)

	payload := decodeBody(t, rec)
	assert.Equal(t, true, payload["success"])
	assert.Contains(t, payload["message"], "No active verification session")
}

func TestVerificationStartFailure(t *testing.T) {
	env := newTestEnv(t)
	env.client.connectErr = errors.New("spawn failed")

	rec := env.do(t, http.MethodPost, "/api/verification/start", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, env.server.session.Active())
}

func TestLogs(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(env.cfg.Log.File,
		[]byte("line one\nline two\n"), 0o600))

	rec := env.do(t, http.MethodGet, "/api/logs", "")
	require.Equal(t, http.StatusOK, rec.Code)

	payload := decodeBody(t, rec)
	logs, ok := payload["logs"].([]interface{})
	require.True(t, ok)
	require.Len(t, logs, 2)
	assert.Equal(t, "line one\n", logs[0])
}

func TestLogsMissingFile(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/logs", "")
	require.Equal(t, http.StatusOK, rec.Code)

	payload := decodeBody(t, rec)
	logs, ok := payload["logs"].([]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{"No log file found"}, logs)
}

func TestIndexMissing(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIndexServed(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.MkdirAll(env.cfg.Listen.StaticDir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(env.cfg.Listen.StaticDir, "index.html"),
		[]byte("<html>split interface</html>"), 0o600))

	rec := env.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "split interface")
}
