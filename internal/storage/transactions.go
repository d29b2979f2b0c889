// Package storage - transaction history persistence.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var ErrTransactionNotFound = errors.New("transaction not found")

// TxDirection is the wallet-relative direction of a transfer.
type TxDirection string

const (
	DirectionCredit TxDirection = "credit"
	DirectionDebit  TxDirection = "debit"
)

// TxSource records which ingestion path produced a row.
type TxSource string

const (
	SourceExplorer TxSource = "explorer"
	SourceStream   TxSource = "stream"
)

// Transaction is one canonical history row. TxHash is globally unique;
// re-ingesting the same hash updates the mutable fields instead of
// duplicating the row.
type Transaction struct {
	ID            string
	UserID        string
	WalletID      string
	BlockchainKey string
	TokenAssetID  string

	FromAddr string
	ToAddr   string
	TxHash   string

	Amount    decimal.Decimal
	Direction TxDirection
	Status    string
	Source    TxSource

	BlockHeight uint64
	Metadata    []byte
	Timestamp   time.Time
}

// UpsertTransaction inserts a transaction or, when the hash is already
// known, refreshes its status, block height, and metadata. Both ingestion
// paths converge here, so explorer rows and webhook rows never duplicate.
func (s *Storage) UpsertTransaction(t *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var metadata interface{}
	if len(t.Metadata) > 0 {
		metadata = string(t.Metadata)
	}

	_, err := s.db.Exec(`
		INSERT INTO transactions (id, user_id, wallet_id, blockchain_key, token_asset_id,
			from_addr, to_addr, tx_hash, amount, direction, status, source,
			block_height, metadata, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tx_hash) DO UPDATE SET
			status = excluded.status,
			block_height = excluded.block_height,
			metadata = COALESCE(excluded.metadata, transactions.metadata),
			ts = excluded.ts
	`, t.ID, t.UserID, t.WalletID, t.BlockchainKey, t.TokenAssetID,
		t.FromAddr, t.ToAddr, t.TxHash, t.Amount.String(), string(t.Direction),
		t.Status, string(t.Source), t.BlockHeight, metadata, t.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert transaction %s: %w", t.TxHash, err)
	}
	return nil
}

// TransactionByHash reads one transaction by its chain hash.
func (s *Storage) TransactionByHash(txHash string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return scanTransaction(s.db.QueryRow(selectTransaction+` WHERE tx_hash = ?`, txHash))
}

// TransactionsByWallet lists a wallet's history newest first.
func (s *Storage) TransactionsByWallet(walletID string, limit, offset int) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(selectTransaction+`
		WHERE wallet_id = ? ORDER BY ts DESC, tx_hash LIMIT ? OFFSET ?
	`, walletID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// LastSeenBlock returns the highest ingested block for a chain, the poll
// cursor for incremental history fetches.
func (s *Storage) LastSeenBlock(blockchainKey string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var height sql.NullInt64
	err := s.db.QueryRow(`
		SELECT MAX(block_height) FROM transactions WHERE blockchain_key = ?
	`, blockchainKey).Scan(&height)
	if err != nil {
		return 0, err
	}
	if !height.Valid {
		return 0, nil
	}
	return uint64(height.Int64), nil
}

// CountTransactions returns the number of history rows for a wallet.
func (s *Storage) CountTransactions(walletID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM transactions WHERE wallet_id = ?`, walletID).Scan(&n)
	return n, err
}

const selectTransaction = `
	SELECT id, user_id, wallet_id, blockchain_key, token_asset_id,
		from_addr, to_addr, tx_hash, amount, direction, status, source,
		block_height, metadata, ts
	FROM transactions`

func scanTransaction(row rowScanner) (*Transaction, error) {
	var t Transaction
	var tokenAssetID, metadata sql.NullString
	var amount, direction, source string
	var ts int64

	err := row.Scan(&t.ID, &t.UserID, &t.WalletID, &t.BlockchainKey, &tokenAssetID,
		&t.FromAddr, &t.ToAddr, &t.TxHash, &amount, &direction, &t.Status, &source,
		&t.BlockHeight, &metadata, &ts)
	if err == sql.ErrNoRows {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}

	t.TokenAssetID = tokenAssetID.String
	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount for transaction %s: %w", t.TxHash, err)
	}
	t.Direction = TxDirection(direction)
	t.Source = TxSource(source)
	if metadata.Valid {
		t.Metadata = []byte(metadata.String)
	}
	t.Timestamp = time.Unix(ts, 0)
	return &t, nil
}
