package server

import (
	"context"
	"os"
	"sync"

	"gateway-agent/internal/log"
	"gateway-agent/internal/mcp"
)

// VerificationSession holds the long-lived browser session used for
// manual device verification. Unlike task runs, which own a fresh tool
// server per task, this session stays alive between Start and Finish so
// an operator can complete the gateway's device check by hand; the
// persistent profile keeps the resulting cookies.
type VerificationSession struct {
	mu         sync.Mutex
	client     mcp.MCPClient
	newClient  func() mcp.MCPClient
	gatewayURL string
	profileDir string
}

// NewVerificationSession creates an inactive session.
func NewVerificationSession(newClient func() mcp.MCPClient, gatewayURL, profileDir string) *VerificationSession {
	return &VerificationSession{
		newClient:  newClient,
		gatewayURL: gatewayURL,
		profileDir: profileDir,
	}
}

// Start launches a fresh verification session, replacing any session
// already running. The initial navigation to the gateway is best effort;
// the session counts as started once the tool server is up.
func (s *VerificationSession) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		s.stopLocked(ctx)
	}

	if s.profileDir != "" {
		if err := os.MkdirAll(s.profileDir, 0o755); err != nil {
			return err
		}
	}

	client := s.newClient()
	if err := client.Connect(ctx); err != nil {
		return err
	}

	if _, err := client.CallTool(ctx, "browser_install", map[string]interface{}{}); err != nil {
		log.Warn("browser_install failed or was unnecessary: %v", err)
	}
	if _, err := client.CallTool(ctx, "browser_navigate", map[string]interface{}{"url": s.gatewayURL}); err != nil {
		log.Warn("initial navigate failed, session still started: %v", err)
	}

	s.client = client
	return nil
}

// Finish closes the running session. It reports whether a session was
// active; finishing an inactive session is not an error.
func (s *VerificationSession) Finish(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return false
	}
	s.stopLocked(ctx)
	return true
}

// Active reports whether a verification session is running.
func (s *VerificationSession) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil
}

// stopLocked tears the current session down. The browser_close call is
// best effort; Close always runs. Callers must hold mu.
func (s *VerificationSession) stopLocked(ctx context.Context) {
	if _, err := s.client.CallTool(ctx, "browser_close", map[string]interface{}{}); err != nil {
		log.Debug("browser_close during teardown: %v", err)
	}
	s.client.Close()
	s.client = nil
}
