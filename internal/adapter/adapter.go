// Package adapter defines the capability contract every chain family
// implements, and the registry that dispatches on chain key. Adapters own
// all chain-specific logic: derivation quirks, transaction building, fee
// application, and base-unit conversion. Callers only ever see decimal
// amounts in human units and the canonical Transfer record.
package adapter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opencustody/vaultd/internal/chain"
	"github.com/opencustody/vaultd/internal/fees"
)

// Address is the derived address pair for one chain. The same key material
// yields one address reused across the chain's mainnet and testnet; the two
// fields differ only where the encodings diverge (Bitcoin-family bech32
// prefixes).
type Address struct {
	Main string
	Test string
}

// ForNetwork returns the address for a network kind.
func (a Address) ForNetwork(kind chain.NetworkKind) string {
	if kind == chain.NetworkTest {
		return a.Test
	}
	return a.Main
}

// TxStatus is the canonical transaction status.
type TxStatus string

const (
	StatusPending TxStatus = "pending"
	StatusSuccess TxStatus = "success"
	StatusFailed  TxStatus = "failed"
)

// Transfer is the canonical historical-transaction record produced by
// FetchHistory, chain-agnostic and ready for normalization.
type Transfer struct {
	Hash     string
	From     string
	To       string
	Amount   decimal.Decimal // human units
	Contract string          // token contract address, empty for native coin
	Status   TxStatus
	Block    uint64
	Time     time.Time
	Raw      json.RawMessage // provider payload, kept as provenance
}

// SubmitParams are the inputs to BuildAndSubmit. The target network is
// fixed per adapter instance at construction, not per call.
type SubmitParams struct {
	From     string
	To       string
	Amount   decimal.Decimal // human units
	Asset    *chain.TokenAsset
	Mnemonic string // the wallet's seed phrase; never logged
	Speed    fees.Tier
}

// Receipt identifies a submitted transaction. ExplorerSuffix carries any
// cluster or query-string fragment needed to locate the transaction on the
// chain's explorer (e.g. "?cluster=devnet").
type Receipt struct {
	TxHash         string
	ExplorerSuffix string
	TotalFee       decimal.Decimal // total fee paid, human units
}

// Adapter is the capability contract of one chain family. All network-bound
// methods take a context and respect its deadline.
type Adapter interface {
	// Identify returns the stable registry key.
	Identify() string

	// DeriveAddress derives the chain's address pair from a seed phrase.
	// Deterministic: the same seed always yields the same pair.
	DeriveAddress(ctx context.Context, mnemonic string) (Address, error)

	// GetBalance returns the balance of address in the asset's human unit.
	// Contract assets query the contract; otherwise the native balance.
	GetBalance(ctx context.Context, address string, asset *chain.TokenAsset) (decimal.Decimal, error)

	// BuildAndSubmit constructs, signs, and broadcasts a transfer, resolving
	// fees through the adapter's fee oracle at the requested speed tier.
	BuildAndSubmit(ctx context.Context, p SubmitParams) (*Receipt, error)

	// FetchHistory returns transfers touching address since the given block.
	// Safe to call with overlapping ranges; ingestion dedups on hash.
	FetchHistory(ctx context.Context, address string, sinceBlock uint64) ([]Transfer, error)
}

// Approver is the optional token-approval capability. Only meaningful on
// chains with delegated-transfer semantics (EVM ERC-20 approve).
type Approver interface {
	ApproveDelegate(ctx context.Context, p SubmitParams, delegate string) (*Receipt, error)
}

// Wrapper is the optional native-asset wrapping capability (e.g. ETH/WETH).
type Wrapper interface {
	SwapWrappedAsset(ctx context.Context, p SubmitParams, unwrap bool) (*Receipt, error)
}

// ApproveDelegate invokes the approval capability if ad supports it, and
// returns a terminal error otherwise. Chains without approvals are not an
// internal failure; the caller asked for something the chain cannot do.
func ApproveDelegate(ctx context.Context, ad Adapter, p SubmitParams, delegate string) (*Receipt, error) {
	if a, ok := ad.(Approver); ok {
		return a.ApproveDelegate(ctx, p, delegate)
	}
	return nil, Terminalf("adapter.ApproveDelegate", nil, "chain %s does not support delegate approvals", ad.Identify())
}

// SwapWrappedAsset invokes the wrapping capability if ad supports it.
func SwapWrappedAsset(ctx context.Context, ad Adapter, p SubmitParams, unwrap bool) (*Receipt, error) {
	if w, ok := ad.(Wrapper); ok {
		return w.SwapWrappedAsset(ctx, p, unwrap)
	}
	return nil, Terminalf("adapter.SwapWrappedAsset", nil, "chain %s does not support wrapped-asset swaps", ad.Identify())
}
