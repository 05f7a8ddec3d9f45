// Package config loads gateway-agent configuration from a YAML file and
// the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration. Values come from defaults, then the
// config file, then GATEWAY_AGENT_* environment variables.
type Config struct {
	Listen    ListenConfig    `mapstructure:"listen"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
	Log       LogConfig       `mapstructure:"log"`
}

// ListenConfig configures the HTTP API.
type ListenConfig struct {
	Addr      string `mapstructure:"addr"`
	StaticDir string `mapstructure:"static_dir"` // split interface assets, optional
}

// AnthropicConfig configures the model provider.
type AnthropicConfig struct {
	APIKey    string `mapstructure:"api_key"` // falls back to ANTHROPIC_API_KEY
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// BrowserConfig configures the browser tool server.
type BrowserConfig struct {
	Command    string   `mapstructure:"command"`
	Args       []string `mapstructure:"args"`
	ProfileDir string   `mapstructure:"profile_dir"` // persistent profile, keeps gateway cookies
	GatewayURL string   `mapstructure:"gateway_url"`
}

// AgentConfig configures the conversation loop.
type AgentConfig struct {
	MaxIterations  int           `mapstructure:"max_iterations"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// SecretsConfig configures the credential store.
type SecretsConfig struct {
	File     string `mapstructure:"file"`
	SecretID string `mapstructure:"secret_id"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"` // served back by the logs endpoint
}

// GetConfigDir returns the directory holding the config file.
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".gateway-agent"), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen.addr", ":5000")
	v.SetDefault("listen.static_dir", "static")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("browser.command", "npx")
	v.SetDefault("browser.args", []string{"@playwright/mcp@latest", "--browser=firefox"})
	v.SetDefault("browser.gateway_url", "https://zero5.transactiongateway.com/merchants/")
	v.SetDefault("agent.max_iterations", 30)
	v.SetDefault("agent.request_timeout", 30*time.Second)
	v.SetDefault("secrets.secret_id", "gateway-prod")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "gateway-agent.log")
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("GATEWAY_AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Anthropic.APIKey == "" {
		cfg.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads the config from ~/.gateway-agent/config.yaml or ./config.yaml.
// A missing file is not an error; defaults and environment apply.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir, err := GetConfigDir(); err == nil {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")
	return load(v)
}

// LoadFile reads the config from an explicit file path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func (c *Config) validate() error {
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive, got %d", c.Agent.MaxIterations)
	}
	if c.Agent.RequestTimeout <= 0 {
		return fmt.Errorf("agent.request_timeout must be positive, got %s", c.Agent.RequestTimeout)
	}
	if c.Anthropic.MaxTokens <= 0 {
		return fmt.Errorf("anthropic.max_tokens must be positive, got %d", c.Anthropic.MaxTokens)
	}
	if c.Browser.Command == "" {
		return fmt.Errorf("browser.command must not be empty")
	}
	return nil
}

// BrowserArgs returns the tool server arguments with the persistent
// profile directory appended when one is configured.
func (c *Config) BrowserArgs() []string {
	args := make([]string, len(c.Browser.Args))
	copy(args, c.Browser.Args)
	if c.Browser.ProfileDir != "" {
		args = append(args, "--user-data-dir="+c.Browser.ProfileDir)
	}
	return args
}
