// Package storage - chain catalogue persistence.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opencustody/vaultd/internal/chain"
)

var ErrAssetNotFound = errors.New("token asset not found")

// SeedChains mirrors the in-process chain set into the catalogue tables.
// Idempotent: chains and assets upsert on their natural keys, so restarts
// and new registrations both converge.
func (s *Storage) SeedChains(set *chain.Set) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, b := range set.Active() {
		metadata, err := json.Marshal(b.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %s: %w", b.Key, err)
		}

		if _, err := tx.Exec(`
			INSERT INTO blockchains (key, name, family, metadata)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET name = excluded.name,
				family = excluded.family, metadata = excluded.metadata
		`, b.Key, b.Name, string(b.Family), string(metadata)); err != nil {
			return fmt.Errorf("failed to seed blockchain %s: %w", b.Key, err)
		}

		for kind, n := range b.Networks {
			if _, err := tx.Exec(`
				INSERT INTO networks (blockchain_key, kind, rpc_url, explorer_url, explorer_api_key)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(blockchain_key, kind) DO UPDATE SET rpc_url = excluded.rpc_url,
					explorer_url = excluded.explorer_url, explorer_api_key = excluded.explorer_api_key
			`, b.Key, string(kind), n.RPCURL, n.ExplorerURL, n.ExplorerAPIKey); err != nil {
				return fmt.Errorf("failed to seed network %s/%s: %w", b.Key, kind, err)
			}
		}

		for _, asset := range set.Tokens(b.Key) {
			isLayerOne := 0
			if asset.IsLayerOne {
				isLayerOne = 1
			}
			if _, err := tx.Exec(`
				INSERT INTO token_assets (id, blockchain_key, symbol, name, decimals, coin_kind, contract_address, is_layer_one)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(blockchain_key, symbol, contract_address) DO UPDATE SET
					name = excluded.name, decimals = excluded.decimals
			`, asset.ID, b.Key, asset.Symbol, asset.Name, asset.Decimals,
				string(asset.Kind), asset.ContractAddress, isLayerOne); err != nil {
				return fmt.Errorf("failed to seed asset %s/%s: %w", b.Key, asset.Symbol, err)
			}
		}
	}

	return tx.Commit()
}

// FindOrCreateTokenAsset registers a contract token, keyed on its chain and
// contract address. A token already registered under that contract wins;
// the candidate's ID and cosmetic fields do not overwrite it.
func (s *Storage) FindOrCreateTokenAsset(asset *chain.TokenAsset) (*chain.TokenAsset, error) {
	if asset.ContractAddress == "" {
		return nil, fmt.Errorf("token %s has no contract address", asset.Symbol)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.tokenAssetByContract(asset.BlockchainKey, asset.ContractAddress)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrAssetNotFound) {
		return nil, err
	}

	if _, err := s.db.Exec(`
		INSERT INTO token_assets (id, blockchain_key, symbol, name, decimals, coin_kind, contract_address, is_layer_one)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`, asset.ID, asset.BlockchainKey, asset.Symbol, asset.Name, asset.Decimals,
		string(asset.Kind), asset.ContractAddress); err != nil {
		return nil, fmt.Errorf("failed to register token %s: %w", asset.Symbol, err)
	}
	return asset, nil
}

// TokenAssetByContract looks up a contract token on a chain,
// case-insensitively.
func (s *Storage) TokenAssetByContract(blockchainKey, contract string) (*chain.TokenAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.tokenAssetByContract(blockchainKey, contract)
}

func (s *Storage) tokenAssetByContract(blockchainKey, contract string) (*chain.TokenAsset, error) {
	return scanTokenAsset(s.db.QueryRow(`
		SELECT id, blockchain_key, symbol, name, decimals, coin_kind, contract_address, is_layer_one
		FROM token_assets
		WHERE blockchain_key = ? AND contract_address <> '' AND LOWER(contract_address) = LOWER(?)
	`, blockchainKey, contract))
}

// TokenAsset reads one token asset by ID.
func (s *Storage) TokenAsset(id string) (*chain.TokenAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return scanTokenAsset(s.db.QueryRow(`
		SELECT id, blockchain_key, symbol, name, decimals, coin_kind, contract_address, is_layer_one
		FROM token_assets WHERE id = ?
	`, id))
}

// TokenAssetsByChain lists the token assets registered under a chain.
func (s *Storage) TokenAssetsByChain(blockchainKey string) ([]*chain.TokenAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, blockchain_key, symbol, name, decimals, coin_kind, contract_address, is_layer_one
		FROM token_assets WHERE blockchain_key = ? ORDER BY is_layer_one DESC, symbol
	`, blockchainKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []*chain.TokenAsset
	for rows.Next() {
		asset, err := scanTokenAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

// MarkChainDeleted soft-deletes a chain in the catalogue.
func (s *Storage) MarkChainDeleted(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE blockchains SET deleted_at = ? WHERE key = ?`,
		time.Now().Unix(), key)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTokenAsset(row rowScanner) (*chain.TokenAsset, error) {
	var asset chain.TokenAsset
	var kind string
	var contract sql.NullString
	var isLayerOne int

	err := row.Scan(&asset.ID, &asset.BlockchainKey, &asset.Symbol, &asset.Name,
		&asset.Decimals, &kind, &contract, &isLayerOne)
	if err == sql.ErrNoRows {
		return nil, ErrAssetNotFound
	}
	if err != nil {
		return nil, err
	}

	asset.Kind = chain.CoinKind(kind)
	asset.ContractAddress = contract.String
	asset.IsLayerOne = isLayerOne == 1
	return &asset, nil
}
