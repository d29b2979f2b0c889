package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

// SolanaClient speaks the Solana JSON-RPC API.
type SolanaClient struct {
	http *resty.Client
	id   atomic.Int64
}

// NewSolanaClient creates a client for a Solana RPC endpoint.
func NewSolanaClient(rpcURL string) *SolanaClient {
	return &SolanaClient{http: newRESTClient(rpcURL)}
}

type solanaRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SignatureInfo is one entry of getSignaturesForAddress.
type SignatureInfo struct {
	Signature string          `json:"signature"`
	Slot      uint64          `json:"slot"`
	BlockTime *int64          `json:"blockTime"`
	Err       json.RawMessage `json:"err"`
}

// Failed reports whether the transaction errored on chain.
func (s *SignatureInfo) Failed() bool {
	return len(s.Err) > 0 && string(s.Err) != "null"
}

// SolanaTx is the subset of getTransaction we consume: account keys plus
// balance deltas, enough to recover source, destination, and amount.
type SolanaTx struct {
	Slot        uint64 `json:"slot"`
	BlockTime   *int64 `json:"blockTime"`
	Transaction struct {
		Message struct {
			AccountKeys []string `json:"accountKeys"`
		} `json:"message"`
	} `json:"transaction"`
	Meta struct {
		Err          json.RawMessage `json:"err"`
		Fee          uint64          `json:"fee"`
		PreBalances  []uint64        `json:"preBalances"`
		PostBalances []uint64        `json:"postBalances"`
	} `json:"meta"`
}

// Balance returns the lamport balance of address.
func (c *SolanaClient) Balance(ctx context.Context, address string) (uint64, error) {
	var result struct {
		Value uint64 `json:"value"`
	}
	if err := c.call(ctx, "getBalance", []interface{}{address}, &result); err != nil {
		return 0, err
	}
	return result.Value, nil
}

// LatestBlockhash returns a recent blockhash for transaction construction.
func (c *SolanaClient) LatestBlockhash(ctx context.Context) (string, error) {
	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getLatestBlockhash", []interface{}{}, &result); err != nil {
		return "", err
	}
	if result.Value.Blockhash == "" {
		return "", fmt.Errorf("%w: empty blockhash", ErrBadResponse)
	}
	return result.Value.Blockhash, nil
}

// SendTransaction submits a base64-encoded signed transaction and returns
// its signature.
func (c *SolanaClient) SendTransaction(ctx context.Context, base64Tx string) (string, error) {
	var signature string
	params := []interface{}{base64Tx, map[string]string{"encoding": "base64"}}
	if err := c.call(ctx, "sendTransaction", params, &signature); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBroadcastRejected, err)
	}
	return signature, nil
}

// SignaturesForAddress lists recent signatures touching address, newest
// first. Pass an until signature to stop paging at known history.
func (c *SolanaClient) SignaturesForAddress(ctx context.Context, address string, limit int, until string) ([]SignatureInfo, error) {
	opts := map[string]interface{}{"limit": limit}
	if until != "" {
		opts["until"] = until
	}
	var sigs []SignatureInfo
	if err := c.call(ctx, "getSignaturesForAddress", []interface{}{address, opts}, &sigs); err != nil {
		return nil, err
	}
	return sigs, nil
}

// Transaction fetches a confirmed transaction by signature.
func (c *SolanaClient) Transaction(ctx context.Context, signature string) (*SolanaTx, error) {
	var tx SolanaTx
	params := []interface{}{signature, map[string]interface{}{
		"encoding":                       "json",
		"maxSupportedTransactionVersion": 0,
	}}
	if err := c.call(ctx, "getTransaction", params, &tx); err != nil {
		return nil, err
	}
	if len(tx.Transaction.Message.AccountKeys) == 0 {
		return nil, ErrNotFound
	}
	return &tx, nil
}

func (c *SolanaClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      c.id.Add(1),
		"method":  method,
		"params":  params,
	}
	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *solanaRPCError `json:"error"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&envelope).
		Post("")
	if err != nil {
		return err
	}
	if err := classify(resp); err != nil {
		return err
	}
	if envelope.Error != nil {
		return fmt.Errorf("rpc %s: %s (code %d)", method, envelope.Error.Message, envelope.Error.Code)
	}
	if string(envelope.Result) == "null" {
		return ErrNotFound
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return fmt.Errorf("%w: %s result: %v", ErrBadResponse, method, err)
	}
	return nil
}
