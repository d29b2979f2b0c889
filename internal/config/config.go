// Package config loads the daemon's YAML configuration: network selection,
// storage location, provider endpoints per chain, and the ingestion knobs.
// The wallet encryption passphrase never lives in the file; it comes from
// the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opencustody/vaultd/internal/chain"
)

// PassphraseEnv is the environment variable holding the secret-codec
// passphrase.
const PassphraseEnv = "VAULTD_PASSPHRASE"

// ConfigFileName is the default config file name inside the data directory.
const ConfigFileName = "config.yaml"

// Config holds all daemon configuration.
type Config struct {
	// NetworkKind selects main or test networks for every chain.
	NetworkKind string `yaml:"network_kind"`

	// FiatCurrency is the display currency stamped on new wallets.
	FiatCurrency string `yaml:"fiat_currency"`

	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	Fees    FeesConfig    `yaml:"fees"`
	Ingest  IngestConfig  `yaml:"ingest"`

	// Chains holds per-chain provider overrides keyed by registry key
	// ("ETH", "BTC", ...). Chains without an entry use the builtin
	// endpoints.
	Chains map[string]*ChainConfig `yaml:"chains,omitempty"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	// DataDir is the directory for the database and config file.
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level"`
}

// FeesConfig holds fee oracle settings.
type FeesConfig struct {
	// CacheTTL is how long fee estimates stay fresh.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// IngestConfig holds transaction ingestion settings.
type IngestConfig struct {
	// PollInterval is the explorer polling period.
	PollInterval time.Duration `yaml:"poll_interval"`

	// WebhookListenAddr is the listen address for provider push
	// callbacks. Empty disables the webhook listener.
	WebhookListenAddr string `yaml:"webhook_listen_addr"`

	// QueueDepth bounds the webhook ingestion backlog.
	QueueDepth int `yaml:"queue_depth"`
}

// ChainConfig overrides a chain's provider endpoints.
type ChainConfig struct {
	RPCURL          string `yaml:"rpc_url,omitempty"`
	TestRPCURL      string `yaml:"test_rpc_url,omitempty"`
	ExplorerURL     string `yaml:"explorer_url,omitempty"`
	TestExplorerURL string `yaml:"test_explorer_url,omitempty"`
	ExplorerAPIKey  string `yaml:"explorer_api_key,omitempty"`

	// Disabled removes the chain from the running adapter set without
	// touching its persisted rows.
	Disabled bool `yaml:"disabled,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		NetworkKind:  string(chain.NetworkMain),
		FiatCurrency: "USD",
		Storage: StorageConfig{
			DataDir: "~/.vaultd",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Fees: FeesConfig{
			CacheTTL: 30 * time.Second,
		},
		Ingest: IngestConfig{
			PollInterval:      2 * time.Minute,
			WebhookListenAddr: "127.0.0.1:8799",
			QueueDepth:        256,
		},
	}
}

// Network returns the configured network kind.
func (c *Config) Network() chain.NetworkKind {
	if c.NetworkKind == string(chain.NetworkTest) {
		return chain.NetworkTest
	}
	return chain.NetworkMain
}

// IsTestnet returns true if running against test networks.
func (c *Config) IsTestnet() bool {
	return c.Network() == chain.NetworkTest
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	switch c.NetworkKind {
	case string(chain.NetworkMain), string(chain.NetworkTest):
	default:
		return fmt.Errorf("network_kind must be %q or %q, got %q",
			chain.NetworkMain, chain.NetworkTest, c.NetworkKind)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	if c.Fees.CacheTTL <= 0 {
		return fmt.Errorf("fees.cache_ttl must be positive")
	}
	if c.Ingest.PollInterval <= 0 {
		return fmt.Errorf("ingest.poll_interval must be positive")
	}
	return nil
}

// ApplyTo merges per-chain endpoint overrides into the chain set and
// soft-deletes disabled chains.
func (c *Config) ApplyTo(set *chain.Set) error {
	for key, override := range c.Chains {
		b, ok := set.Get(key)
		if !ok {
			return fmt.Errorf("chains.%s: unknown chain key", key)
		}
		if override.Disabled {
			b.Deleted = true
			continue
		}

		applyNetwork(b, chain.NetworkMain, override.RPCURL, override.ExplorerURL, override.ExplorerAPIKey)
		applyNetwork(b, chain.NetworkTest, override.TestRPCURL, override.TestExplorerURL, override.ExplorerAPIKey)
	}
	return nil
}

func applyNetwork(b *chain.Blockchain, kind chain.NetworkKind, rpcURL, explorerURL, apiKey string) {
	n, ok := b.Networks[kind]
	if !ok {
		return
	}
	if rpcURL != "" {
		n.RPCURL = rpcURL
	}
	if explorerURL != "" {
		n.ExplorerURL = explorerURL
	}
	if apiKey != "" {
		n.ExplorerAPIKey = apiKey
	}
	b.Networks[kind] = n
}

// Passphrase reads the secret-codec passphrase from the environment.
func Passphrase() (string, error) {
	p := os.Getenv(PassphraseEnv)
	if p == "" {
		return "", fmt.Errorf("%s is not set", PassphraseEnv)
	}
	return p, nil
}

// LoadConfig loads configuration from the data directory, creating a
// default config file on first run.
func LoadConfig(dataDir string) (*Config, error) {
	expandedDir := expandPath(dataDir)
	configPath := filepath.Join(expandedDir, ConfigFileName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir
		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# vaultd configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ConfigPath returns the full path to the config file for a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(expandPath(dataDir), ConfigFileName)
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
