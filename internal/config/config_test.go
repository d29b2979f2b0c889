package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opencustody/vaultd/internal/chain"
)

func TestLoadConfigCreatesDefault(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.NetworkKind != "main" {
		t.Errorf("network_kind = %s, want main", cfg.NetworkKind)
	}
	if cfg.Fees.CacheTTL != 30*time.Second {
		t.Errorf("cache_ttl = %s, want 30s", cfg.Fees.CacheTTL)
	}

	if _, err := os.Stat(filepath.Join(dir, ConfigFileName)); err != nil {
		t.Errorf("default config file was not written: %v", err)
	}

	// Second load reads the file it just wrote.
	again, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("second LoadConfig() error = %v", err)
	}
	if again.NetworkKind != cfg.NetworkKind {
		t.Error("reloaded config differs from default")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	dir := t.TempDir()

	raw := `
network_kind: test
fiat_currency: EUR
storage:
  data_dir: ` + dir + `
fees:
  cache_ttl: 10s
ingest:
  poll_interval: 30s
  webhook_listen_addr: ":9000"
chains:
  ETH:
    rpc_url: https://rpc.example.com
    explorer_api_key: secret-key
  DOGE:
    disabled: true
`
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(raw), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if !cfg.IsTestnet() {
		t.Error("network_kind: test should report testnet")
	}
	if cfg.FiatCurrency != "EUR" {
		t.Errorf("fiat_currency = %s", cfg.FiatCurrency)
	}
	if cfg.Fees.CacheTTL != 10*time.Second {
		t.Errorf("cache_ttl = %s, want 10s", cfg.Fees.CacheTTL)
	}
	if cfg.Ingest.WebhookListenAddr != ":9000" {
		t.Errorf("webhook_listen_addr = %s", cfg.Ingest.WebhookListenAddr)
	}
	if cfg.Chains["ETH"].RPCURL != "https://rpc.example.com" {
		t.Errorf("ETH rpc_url = %s", cfg.Chains["ETH"].RPCURL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		wantOK bool
	}{
		{"default is valid", func(*Config) {}, true},
		{"bad network kind", func(c *Config) { c.NetworkKind = "staging" }, false},
		{"missing data dir", func(c *Config) { c.Storage.DataDir = "" }, false},
		{"zero cache ttl", func(c *Config) { c.Fees.CacheTTL = 0 }, false},
		{"zero poll interval", func(c *Config) { c.Ingest.PollInterval = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err == nil) != tt.wantOK {
				t.Errorf("Validate() error = %v, wantOK %v", err, tt.wantOK)
			}
		})
	}
}

func TestApplyTo(t *testing.T) {
	set, err := chain.DefaultSet()
	if err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.Chains = map[string]*ChainConfig{
		"ETH": {
			RPCURL:         "https://rpc.example.com",
			TestRPCURL:     "https://sepolia.example.com",
			ExplorerAPIKey: "secret-key",
		},
		"DOGE": {Disabled: true},
	}

	if err := cfg.ApplyTo(set); err != nil {
		t.Fatalf("ApplyTo() error = %v", err)
	}

	eth, _ := set.Get("ETH")
	if eth.Networks[chain.NetworkMain].RPCURL != "https://rpc.example.com" {
		t.Errorf("main rpc = %s", eth.Networks[chain.NetworkMain].RPCURL)
	}
	if eth.Networks[chain.NetworkTest].RPCURL != "https://sepolia.example.com" {
		t.Errorf("test rpc = %s", eth.Networks[chain.NetworkTest].RPCURL)
	}
	if eth.Networks[chain.NetworkMain].ExplorerAPIKey != "secret-key" {
		t.Error("explorer API key not applied")
	}
	// Builtin explorer URL survives a partial override.
	if eth.Networks[chain.NetworkMain].ExplorerURL == "" {
		t.Error("explorer URL should keep its builtin value")
	}

	doge, _ := set.Get("DOGE")
	if !doge.Deleted {
		t.Error("disabled chain should be soft-deleted")
	}
	for _, b := range set.Active() {
		if b.Key == "DOGE" {
			t.Error("disabled chain should not be active")
		}
	}

	cfg.Chains = map[string]*ChainConfig{"NOPE": {}}
	if err := cfg.ApplyTo(set); err == nil {
		t.Error("unknown chain key should be rejected")
	}
}

func TestPassphrase(t *testing.T) {
	t.Setenv(PassphraseEnv, "")
	if _, err := Passphrase(); err == nil {
		t.Error("empty env should be an error")
	}

	t.Setenv(PassphraseEnv, "correct horse battery staple")
	p, err := Passphrase()
	if err != nil || p != "correct horse battery staple" {
		t.Errorf("Passphrase() = %q, %v", p, err)
	}
}
