// Package storage provides persistent storage using SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Storage provides persistent storage for the vaultd daemon.
type Storage struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Config holds storage configuration.
type Config struct {
	DataDir string
}

// New creates a new Storage instance.
func New(cfg *Config) (*Storage, error) {
	dataDir := expandPath(cfg.DataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "vaultd.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{
		db:     db,
		dbPath: dbPath,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Storage) DB() *sql.DB {
	return s.db
}

// initSchema creates all database tables.
func (s *Storage) initSchema() error {
	schema := `
	-- Chain catalogue, seeded from the in-process chain set at startup
	CREATE TABLE IF NOT EXISTS blockchains (
		key TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		family TEXT NOT NULL,
		metadata TEXT,
		deleted_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS networks (
		blockchain_key TEXT NOT NULL,
		kind TEXT NOT NULL,
		rpc_url TEXT,
		explorer_url TEXT,
		explorer_api_key TEXT,

		PRIMARY KEY (blockchain_key, kind),
		FOREIGN KEY (blockchain_key) REFERENCES blockchains(key)
	);

	CREATE TABLE IF NOT EXISTS token_assets (
		id TEXT PRIMARY KEY,
		blockchain_key TEXT NOT NULL,
		symbol TEXT NOT NULL,
		name TEXT NOT NULL,
		decimals INTEGER NOT NULL,
		coin_kind TEXT NOT NULL,
		contract_address TEXT,
		is_layer_one INTEGER NOT NULL DEFAULT 0,

		FOREIGN KEY (blockchain_key) REFERENCES blockchains(key),
		UNIQUE(blockchain_key, symbol, contract_address)
	);

	CREATE INDEX IF NOT EXISTS idx_token_assets_chain ON token_assets(blockchain_key);

	-- Custodial wallets
	CREATE TABLE IF NOT EXISTS wallets (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		wallet_kind TEXT NOT NULL DEFAULT 'multi',

		-- Argon2id+AES-GCM envelope holding the mnemonic
		encrypted_secret BLOB NOT NULL,

		network_kind TEXT NOT NULL DEFAULT 'main',
		fiat_currency TEXT NOT NULL DEFAULT 'USD',
		is_default INTEGER NOT NULL DEFAULT 0,

		-- Correlation tag carried by push-webhook payloads
		stream_tag TEXT UNIQUE,

		created_at INTEGER NOT NULL,
		updated_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_wallets_user ON wallets(user_id);
	CREATE INDEX IF NOT EXISTS idx_wallets_user_default ON wallets(user_id, is_default);

	-- Per-chain asset rows under a wallet
	CREATE TABLE IF NOT EXISTS wallet_assets (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		wallet_id TEXT NOT NULL,
		blockchain_key TEXT NOT NULL,
		token_asset_id TEXT NOT NULL,

		address_main TEXT NOT NULL,
		address_test TEXT NOT NULL,
		address_qr TEXT,

		-- Cached balance in human units, decimal string
		balance TEXT NOT NULL DEFAULT '0',
		network_kind TEXT NOT NULL DEFAULT 'main',

		created_at INTEGER NOT NULL,
		updated_at INTEGER,

		FOREIGN KEY (wallet_id) REFERENCES wallets(id),
		FOREIGN KEY (token_asset_id) REFERENCES token_assets(id),
		UNIQUE(wallet_id, token_asset_id)
	);

	CREATE INDEX IF NOT EXISTS idx_wallet_assets_wallet ON wallet_assets(wallet_id);
	CREATE INDEX IF NOT EXISTS idx_wallet_assets_user ON wallet_assets(user_id);
	CREATE INDEX IF NOT EXISTS idx_wallet_assets_addr_main ON wallet_assets(address_main);

	-- Canonical transaction history, idempotent on tx_hash
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		wallet_id TEXT NOT NULL,
		blockchain_key TEXT NOT NULL,
		token_asset_id TEXT,

		from_addr TEXT NOT NULL,
		to_addr TEXT NOT NULL,
		tx_hash TEXT UNIQUE NOT NULL,

		-- Human units, decimal string
		amount TEXT NOT NULL,

		direction TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		source TEXT NOT NULL,

		block_height INTEGER NOT NULL DEFAULT 0,
		metadata TEXT,
		ts INTEGER NOT NULL,

		FOREIGN KEY (wallet_id) REFERENCES wallets(id)
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_wallet ON transactions(wallet_id, ts);
	CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, ts);
	CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
