package provider

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
)

// EsploraClient speaks the esplora REST API (blockstream.info,
// mempool.space, litecoinspace.org and compatible self-hosted instances).
type EsploraClient struct {
	http *resty.Client
}

// NewEsploraClient creates a client for an esplora-compatible base URL.
func NewEsploraClient(baseURL string) *EsploraClient {
	return &EsploraClient{http: newRESTClient(strings.TrimSuffix(baseURL, "/"))}
}

// UTXO is one unspent output as esplora reports it.
type UTXO struct {
	TxID   string   `json:"txid"`
	Vout   uint32   `json:"vout"`
	Value  uint64   `json:"value"`
	Status TxStatus `json:"status"`
}

// TxStatus is the confirmation state esplora attaches to txs and UTXOs.
type TxStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight uint64 `json:"block_height"`
	BlockTime   int64  `json:"block_time"`
}

// TxVout is one transaction output.
type TxVout struct {
	ScriptPubKeyAddr string `json:"scriptpubkey_address"`
	Value            uint64 `json:"value"`
}

// TxVin is one transaction input with its spent prevout.
type TxVin struct {
	Prevout TxVout `json:"prevout"`
}

// AddressTx is one transaction touching an address, in esplora's shape.
type AddressTx struct {
	TxID   string   `json:"txid"`
	Fee    uint64   `json:"fee"`
	Status TxStatus `json:"status"`
	Vin    []TxVin  `json:"vin"`
	Vout   []TxVout `json:"vout"`
}

// Balance returns the confirmed balance of address in satoshis.
func (c *EsploraClient) Balance(ctx context.Context, address string) (uint64, error) {
	var result struct {
		ChainStats struct {
			FundedSum uint64 `json:"funded_txo_sum"`
			SpentSum  uint64 `json:"spent_txo_sum"`
		} `json:"chain_stats"`
	}
	if err := c.get(ctx, "/address/"+address, &result); err != nil {
		return 0, err
	}
	return result.ChainStats.FundedSum - result.ChainStats.SpentSum, nil
}

// UTXOs returns the unspent outputs of address.
func (c *EsploraClient) UTXOs(ctx context.Context, address string) ([]UTXO, error) {
	var utxos []UTXO
	if err := c.get(ctx, "/address/"+address+"/utxo", &utxos); err != nil {
		return nil, err
	}
	return utxos, nil
}

// AddressTxs returns transactions touching address, newest first. Pass the
// last seen txid to page further back.
func (c *EsploraClient) AddressTxs(ctx context.Context, address, lastSeenTxID string) ([]AddressTx, error) {
	path := "/address/" + address + "/txs"
	if lastSeenTxID != "" {
		path += "/chain/" + lastSeenTxID
	}
	var txs []AddressTx
	if err := c.get(ctx, path, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// Broadcast submits a raw transaction hex and returns the txid.
func (c *EsploraClient) Broadcast(ctx context.Context, rawTxHex string) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "text/plain").
		SetBody(rawTxHex).
		Post("/tx")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBroadcastRejected, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: %s", ErrBroadcastRejected, resp.String())
	}
	return strings.TrimSpace(resp.String()), nil
}

// TipHeight returns the current chain tip height.
func (c *EsploraClient) TipHeight(ctx context.Context) (uint64, error) {
	resp, err := c.http.R().SetContext(ctx).Get("/blocks/tip/height")
	if err != nil {
		return 0, err
	}
	if err := classify(resp); err != nil {
		return 0, err
	}
	height, err := strconv.ParseUint(strings.TrimSpace(resp.String()), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: tip height %q", ErrBadResponse, resp.String())
	}
	return height, nil
}

// FeeEstimates returns sat-per-vbyte rates keyed by confirmation target.
func (c *EsploraClient) FeeEstimates(ctx context.Context) (map[int]float64, error) {
	var raw map[string]float64
	if err := c.get(ctx, "/fee-estimates", &raw); err != nil {
		return nil, err
	}
	rates := make(map[int]float64, len(raw))
	for k, v := range raw {
		target, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		rates[target] = v
	}
	return rates, nil
}

func (c *EsploraClient) get(ctx context.Context, path string, result interface{}) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(result).
		Get(path)
	if err != nil {
		return err
	}
	return classify(resp)
}
