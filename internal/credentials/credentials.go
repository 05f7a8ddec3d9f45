// Package credentials provides the secret store backing gateway logins.
// Secrets live in a JSON file keyed by secret id, with an environment
// fallback for single-secret deployments.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"gateway-agent/internal/log"
)

// Environment fallback keys, used when no store file is configured.
const (
	EnvUsername = "GATEWAY_AGENT_USERNAME"
	EnvPassword = "GATEWAY_AGENT_PASSWORD"
)

var (
	// ErrNotConnected is returned by Get before a successful Connect.
	ErrNotConnected = errors.New("credentials: manager not connected")

	// ErrSecretNotFound is returned when no secret exists for the id.
	ErrSecretNotFound = errors.New("credentials: secret not found")
)

// Secret holds one gateway login.
type Secret struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Manager loads and serves secrets. Connect must succeed before Get is
// usable; callers can probe the state with IsConnected.
type Manager struct {
	mu        sync.RWMutex
	path      string
	connected bool
	secrets   map[string]Secret
}

// NewManager creates a manager reading from the given store file. An
// empty path selects the environment fallback.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Connect loads the secret store. It is safe to call again to pick up
// changes to the store file.
func (m *Manager) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.path == "" {
		if os.Getenv(EnvUsername) == "" || os.Getenv(EnvPassword) == "" {
			return fmt.Errorf("credentials: no store file configured and %s/%s not set",
				EnvUsername, EnvPassword)
		}
		m.secrets = nil
		m.connected = true
		log.Info("credential manager connected (environment fallback)")
		return nil
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("credentials: failed to read store %s: %w", m.path, err)
	}

	secrets := make(map[string]Secret)
	if err := json.Unmarshal(data, &secrets); err != nil {
		return fmt.Errorf("credentials: failed to parse store %s: %w", m.path, err)
	}

	m.secrets = secrets
	m.connected = true
	log.Info("credential manager connected (%d secrets)", len(secrets))
	return nil
}

// IsConnected reports whether Connect has succeeded.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Get returns the secret for the given id. With the environment
// fallback active the id is ignored and the ambient login is returned.
func (m *Manager) Get(secretID string) (*Secret, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.connected {
		return nil, ErrNotConnected
	}

	if m.secrets == nil {
		return &Secret{
			Username: os.Getenv(EnvUsername),
			Password: os.Getenv(EnvPassword),
		}, nil
	}

	secret, ok := m.secrets[secretID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, secretID)
	}
	return &secret, nil
}
