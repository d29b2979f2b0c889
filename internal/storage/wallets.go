// Package storage - wallet persistence.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Wallet errors
var (
	ErrWalletNotFound     = errors.New("wallet not found")
	ErrNoDefaultWallet    = errors.New("user has no default wallet")
	ErrDuplicateStreamTag = errors.New("stream tag already in use")
)

// WalletKind distinguishes multi-chain wallets from single-chain imports.
type WalletKind string

const (
	WalletKindMulti  WalletKind = "multi"
	WalletKindSingle WalletKind = "single"
)

// Wallet is one custodial wallet row. The mnemonic never appears here in
// plaintext; EncryptedSecret holds the sealed envelope.
type Wallet struct {
	ID              string
	UserID          string
	Kind            WalletKind
	EncryptedSecret []byte
	NetworkKind     string
	FiatCurrency    string
	IsDefault       bool
	StreamTag       string
	CreatedAt       time.Time
	UpdatedAt       *time.Time
}

// ProvisionWallet inserts a wallet and its asset rows in one transaction,
// demoting the user's previous default first. Either everything lands or
// nothing does; a failed asset insert leaves no partial wallet behind.
func (s *Storage) ProvisionWallet(wallet *Wallet, assets []*WalletAsset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if wallet.IsDefault {
		if _, err := tx.Exec(`
			UPDATE wallets SET is_default = 0, updated_at = ? WHERE user_id = ? AND is_default = 1
		`, time.Now().Unix(), wallet.UserID); err != nil {
			return fmt.Errorf("failed to demote previous default: %w", err)
		}
	}

	if err := insertWallet(tx, wallet); err != nil {
		return err
	}
	for _, asset := range assets {
		if err := insertWalletAsset(tx, asset); err != nil {
			return fmt.Errorf("failed to insert asset %s: %w", asset.BlockchainKey, err)
		}
	}

	return tx.Commit()
}

func insertWallet(tx *sql.Tx, w *Wallet) error {
	isDefault := 0
	if w.IsDefault {
		isDefault = 1
	}
	var streamTag interface{}
	if w.StreamTag != "" {
		streamTag = w.StreamTag
	}

	_, err := tx.Exec(`
		INSERT INTO wallets (id, user_id, wallet_kind, encrypted_secret,
			network_kind, fiat_currency, is_default, stream_tag, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, w.ID, w.UserID, string(w.Kind), w.EncryptedSecret,
		w.NetworkKind, w.FiatCurrency, isDefault, streamTag, w.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err, "wallets.stream_tag") {
			return ErrDuplicateStreamTag
		}
		return fmt.Errorf("failed to insert wallet: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a unique-constraint failure on
// the named column.
func isUniqueViolation(err error, column string) bool {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.ExtendedCode == sqlite3.ErrConstraintUnique && strings.Contains(serr.Error(), column)
}

// GetWallet reads one wallet by ID.
func (s *Storage) GetWallet(id string) (*Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return scanWallet(s.db.QueryRow(selectWallet+` WHERE id = ?`, id))
}

// WalletsByUser lists a user's wallets, default first.
func (s *Storage) WalletsByUser(userID string) ([]*Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(selectWallet+`
		WHERE user_id = ? ORDER BY is_default DESC, created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []*Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// DefaultWallet returns the user's default wallet.
func (s *Storage) DefaultWallet(userID string) (*Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, err := scanWallet(s.db.QueryRow(selectWallet+`
		WHERE user_id = ? AND is_default = 1
	`, userID))
	if errors.Is(err, ErrWalletNotFound) {
		return nil, ErrNoDefaultWallet
	}
	return w, err
}

// WalletByStreamTag resolves a push-webhook correlation tag to its wallet.
func (s *Storage) WalletByStreamTag(tag string) (*Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return scanWallet(s.db.QueryRow(selectWallet+` WHERE stream_tag = ?`, tag))
}

// SetDefaultWallet makes walletID the user's default, demoting the previous
// one in the same transaction.
func (s *Storage) SetDefaultWallet(userID, walletID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var owner string
	err = tx.QueryRow(`SELECT user_id FROM wallets WHERE id = ?`, walletID).Scan(&owner)
	if err == sql.ErrNoRows {
		return ErrWalletNotFound
	}
	if err != nil {
		return err
	}
	if owner != userID {
		return ErrWalletNotFound
	}

	now := time.Now().Unix()
	if _, err := tx.Exec(`
		UPDATE wallets SET is_default = 0, updated_at = ? WHERE user_id = ? AND is_default = 1
	`, now, userID); err != nil {
		return err
	}
	if _, err := tx.Exec(`
		UPDATE wallets SET is_default = 1, updated_at = ? WHERE id = ?
	`, now, walletID); err != nil {
		return err
	}

	return tx.Commit()
}

const selectWallet = `
	SELECT id, user_id, wallet_kind, encrypted_secret, network_kind,
		fiat_currency, is_default, stream_tag, created_at, updated_at
	FROM wallets`

func scanWallet(row rowScanner) (*Wallet, error) {
	var w Wallet
	var kind string
	var isDefault int
	var streamTag sql.NullString
	var createdAt int64
	var updatedAt sql.NullInt64

	err := row.Scan(&w.ID, &w.UserID, &kind, &w.EncryptedSecret, &w.NetworkKind,
		&w.FiatCurrency, &isDefault, &streamTag, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}

	w.Kind = WalletKind(kind)
	w.IsDefault = isDefault == 1
	w.StreamTag = streamTag.String
	w.CreatedAt = time.Unix(createdAt, 0)
	if updatedAt.Valid {
		t := time.Unix(updatedAt.Int64, 0)
		w.UpdatedAt = &t
	}
	return &w, nil
}
