// Package txnorm shapes chain transfers from both ingestion paths, explorer
// polling and push webhooks, into one canonical transaction record. The two
// paths converge on an idempotent upsert keyed by chain hash, so seeing the
// same transfer twice never duplicates a row.
package txnorm

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opencustody/vaultd/internal/adapter"
	"github.com/opencustody/vaultd/internal/chain"
	"github.com/opencustody/vaultd/internal/storage"
	"github.com/opencustody/vaultd/pkg/logging"
)

// Normalizer converts adapter transfers into storage rows and persists them.
type Normalizer struct {
	set   *chain.Set
	store *storage.Storage
	log   *logging.Logger
}

// NewNormalizer builds a normalizer over the chain set and store.
func NewNormalizer(set *chain.Set, store *storage.Storage, log *logging.Logger) *Normalizer {
	return &Normalizer{set: set, store: store, log: log.Component("ingest")}
}

// Normalize shapes one transfer into the canonical record for the wallet
// asset it touched. Direction is wallet-relative: a transfer whose sender is
// the asset's own address is a debit, anything else a credit. Address
// comparison is case-insensitive; EVM addresses arrive in mixed checksum
// casings depending on the source.
func (n *Normalizer) Normalize(asset *storage.WalletAsset, tr adapter.Transfer, source storage.TxSource) *storage.Transaction {
	direction := storage.DirectionCredit
	if strings.EqualFold(tr.From, asset.Address()) {
		direction = storage.DirectionDebit
	}

	ts := tr.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	return &storage.Transaction{
		ID:            uuid.NewString(),
		UserID:        asset.UserID,
		WalletID:      asset.WalletID,
		BlockchainKey: asset.BlockchainKey,
		TokenAssetID:  n.resolveTokenAsset(asset, tr.Contract),
		FromAddr:      tr.From,
		ToAddr:        tr.To,
		TxHash:        tr.Hash,
		Amount:        tr.Amount,
		Direction:     direction,
		Status:        string(tr.Status),
		Source:        source,
		BlockHeight:   tr.Block,
		Metadata:      tr.Raw,
		Timestamp:     ts,
	}
}

// resolveTokenAsset maps a transfer's contract to its registered token asset.
// Contract transfers of unregistered tokens fall back to the wallet asset's
// own token; the contract address stays visible in the raw metadata.
func (n *Normalizer) resolveTokenAsset(asset *storage.WalletAsset, contract string) string {
	if contract == "" {
		return asset.TokenAssetID
	}
	if token, ok := n.set.TokenByContract(asset.BlockchainKey, contract); ok {
		return token.ID
	}
	return asset.TokenAssetID
}

// Ingest normalizes and persists one transfer.
func (n *Normalizer) Ingest(asset *storage.WalletAsset, tr adapter.Transfer, source storage.TxSource) error {
	row := n.Normalize(asset, tr, source)
	if err := n.store.UpsertTransaction(row); err != nil {
		return err
	}
	n.log.Debug("ingested transfer",
		"chain", asset.BlockchainKey, "hash", tr.Hash,
		"direction", row.Direction, "source", source)
	return nil
}
