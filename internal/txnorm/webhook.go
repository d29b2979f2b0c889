package txnorm

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opencustody/vaultd/internal/adapter"
	"github.com/opencustody/vaultd/internal/chain"
	"github.com/opencustody/vaultd/internal/storage"
	"github.com/opencustody/vaultd/pkg/logging"
)

// StreamTransaction is one transfer in a provider push batch.
type StreamTransaction struct {
	Hash      string `json:"hash"`
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    string `json:"amount"` // human units, decimal string
	Contract  string `json:"contract,omitempty"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// StreamPayload is the provider webhook batch: transfers observed in one
// block for one subscribed address, correlated to a wallet by its tag.
type StreamPayload struct {
	ChainID string              `json:"chainId"`
	Block   uint64              `json:"block"`
	Tag     string              `json:"tag"`
	Txs     []StreamTransaction `json:"txs"`
}

// Ingestor receives provider push batches. Handlers acknowledge as soon as
// the batch is queued; persistence happens on the dispatcher worker so a
// slow disk never makes the provider time out and re-deliver.
type Ingestor struct {
	set        *chain.Set
	store      *storage.Storage
	dispatcher *Dispatcher
	log        *logging.Logger
}

// NewIngestor builds the webhook ingestor.
func NewIngestor(set *chain.Set, store *storage.Storage, dispatcher *Dispatcher, log *logging.Logger) *Ingestor {
	return &Ingestor{set: set, store: store, dispatcher: dispatcher, log: log.Component("webhook")}
}

// Handler returns the HTTP handler for the provider callback endpoint.
func (in *Ingestor) Handler() http.Handler {
	return http.HandlerFunc(in.handle)
}

func (in *Ingestor) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload StreamPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	accepted, err := in.Accept(&payload)
	if err != nil {
		// Unknown tags and chains are acknowledged, not errored: the
		// provider would otherwise retry a batch we can never place.
		in.log.Warn("dropped stream batch", "chain", payload.ChainID, "tag", payload.Tag, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"accepted": accepted})
}

// Accept resolves a batch's tag to its wallet and queues every transfer.
// Returns how many transfers were queued.
func (in *Ingestor) Accept(payload *StreamPayload) (int, error) {
	wallet, err := in.store.WalletByStreamTag(payload.Tag)
	if err != nil {
		return 0, err
	}
	assets, err := in.store.WalletAssetsByWallet(wallet.ID)
	if err != nil {
		return 0, err
	}

	accepted := 0
	for _, tx := range payload.Txs {
		asset := in.matchAsset(assets, payload.ChainID, tx.Contract)
		if asset == nil {
			in.log.Warn("no asset row for stream transfer",
				"chain", payload.ChainID, "wallet", wallet.ID, "hash", tx.Hash)
			continue
		}
		transfer, err := convertStreamTx(tx, payload.Block)
		if err != nil {
			in.log.Warn("skipping malformed stream transfer", "hash", tx.Hash, "error", err)
			continue
		}
		in.dispatcher.Enqueue(asset, transfer, storage.SourceStream)
		accepted++
	}
	return accepted, nil
}

// matchAsset picks the wallet asset a transfer belongs to: the asset of the
// transfer's contract token when registered, otherwise the chain's
// layer-one asset row.
func (in *Ingestor) matchAsset(assets []*storage.WalletAsset, chainKey, contract string) *storage.WalletAsset {
	wantToken := ""
	if contract != "" {
		if token, ok := in.set.TokenByContract(chainKey, contract); ok {
			wantToken = token.ID
		}
	}

	var fallback *storage.WalletAsset
	for _, a := range assets {
		if a.BlockchainKey != chainKey {
			continue
		}
		if wantToken != "" && a.TokenAssetID == wantToken {
			return a
		}
		if fallback == nil {
			fallback = a
		}
	}
	return fallback
}

func convertStreamTx(tx StreamTransaction, block uint64) (adapter.Transfer, error) {
	if tx.Hash == "" {
		return adapter.Transfer{}, errors.New("missing transaction hash")
	}
	amount, err := decimal.NewFromString(tx.Amount)
	if err != nil {
		return adapter.Transfer{}, err
	}

	status := adapter.StatusPending
	switch tx.Status {
	case "success", "confirmed", "applied":
		status = adapter.StatusSuccess
	case "failed":
		status = adapter.StatusFailed
	}

	var ts time.Time
	if tx.Timestamp > 0 {
		ts = time.Unix(tx.Timestamp, 0).UTC()
	}

	raw, _ := json.Marshal(tx)
	return adapter.Transfer{
		Hash:     tx.Hash,
		From:     tx.From,
		To:       tx.To,
		Amount:   amount,
		Contract: tx.Contract,
		Status:   status,
		Block:    block,
		Time:     ts,
		Raw:      raw,
	}, nil
}
