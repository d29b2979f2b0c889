// Package storage - wallet asset persistence.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var ErrWalletAssetNotFound = errors.New("wallet asset not found")

// WalletAsset is one chain's presence under a wallet: the derived address
// pair, the QR payment URI, and the cached balance.
type WalletAsset struct {
	ID            string
	UserID        string
	WalletID      string
	BlockchainKey string
	TokenAssetID  string

	AddressMain string
	AddressTest string
	AddressQR   string

	Balance     decimal.Decimal
	NetworkKind string

	CreatedAt time.Time
	UpdatedAt *time.Time
}

// Address returns the asset's address on its active network.
func (a *WalletAsset) Address() string {
	if a.NetworkKind == "test" {
		return a.AddressTest
	}
	return a.AddressMain
}

func insertWalletAsset(tx *sql.Tx, a *WalletAsset) error {
	_, err := tx.Exec(`
		INSERT INTO wallet_assets (id, user_id, wallet_id, blockchain_key, token_asset_id,
			address_main, address_test, address_qr, balance, network_kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.UserID, a.WalletID, a.BlockchainKey, a.TokenAssetID,
		a.AddressMain, a.AddressTest, a.AddressQR, a.Balance.String(),
		a.NetworkKind, a.CreatedAt.Unix())
	return err
}

// FindOrCreateWalletAsset returns the existing row for (wallet, token asset)
// or inserts a fresh one. The unique constraint makes concurrent calls for
// the same pair converge on a single row.
func (s *Storage) FindOrCreateWalletAsset(a *WalletAsset) (*WalletAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO wallet_assets (id, user_id, wallet_id, blockchain_key, token_asset_id,
			address_main, address_test, address_qr, balance, network_kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(wallet_id, token_asset_id) DO NOTHING
	`, a.ID, a.UserID, a.WalletID, a.BlockchainKey, a.TokenAssetID,
		a.AddressMain, a.AddressTest, a.AddressQR, a.Balance.String(),
		a.NetworkKind, a.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to upsert wallet asset: %w", err)
	}

	return scanWalletAsset(s.db.QueryRow(selectWalletAsset+`
		WHERE wallet_id = ? AND token_asset_id = ?
	`, a.WalletID, a.TokenAssetID))
}

// WalletAssetByID reads one wallet asset row.
func (s *Storage) WalletAssetByID(id string) (*WalletAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return scanWalletAsset(s.db.QueryRow(selectWalletAsset+` WHERE id = ?`, id))
}

// WalletAssetsByWallet lists the asset rows under a wallet.
func (s *Storage) WalletAssetsByWallet(walletID string) ([]*WalletAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(selectWalletAsset+`
		WHERE wallet_id = ? ORDER BY blockchain_key
	`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectWalletAssets(rows)
}

// WalletAssetsByChain lists every asset row on one chain across wallets,
// the working set of the explorer poller.
func (s *Storage) WalletAssetsByChain(blockchainKey string) ([]*WalletAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(selectWalletAsset+`
		WHERE blockchain_key = ? ORDER BY created_at
	`, blockchainKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectWalletAssets(rows)
}

// UpdateWalletAssetBalance persists a freshly fetched balance.
func (s *Storage) UpdateWalletAssetBalance(id string, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE wallet_assets SET balance = ?, updated_at = ? WHERE id = ?
	`, balance.String(), time.Now().Unix(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrWalletAssetNotFound
	}
	return nil
}

const selectWalletAsset = `
	SELECT id, user_id, wallet_id, blockchain_key, token_asset_id,
		address_main, address_test, address_qr, balance, network_kind,
		created_at, updated_at
	FROM wallet_assets`

func scanWalletAsset(row rowScanner) (*WalletAsset, error) {
	var a WalletAsset
	var addressQR sql.NullString
	var balance string
	var createdAt int64
	var updatedAt sql.NullInt64

	err := row.Scan(&a.ID, &a.UserID, &a.WalletID, &a.BlockchainKey, &a.TokenAssetID,
		&a.AddressMain, &a.AddressTest, &addressQR, &balance, &a.NetworkKind,
		&createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrWalletAssetNotFound
	}
	if err != nil {
		return nil, err
	}

	a.AddressQR = addressQR.String
	a.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("corrupt balance for wallet asset %s: %w", a.ID, err)
	}
	a.CreatedAt = time.Unix(createdAt, 0)
	if updatedAt.Valid {
		t := time.Unix(updatedAt.Int64, 0)
		a.UpdatedAt = &t
	}
	return &a, nil
}

func collectWalletAssets(rows *sql.Rows) ([]*WalletAsset, error) {
	var assets []*WalletAsset
	for rows.Next() {
		a, err := scanWalletAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}
