// Package chain defines the supported blockchains, their networks, and the
// token assets spendable on them. A Set is built explicitly at process start;
// there is no import-time registration.
package chain

import (
	"fmt"
	"sort"
	"strings"
)

// Family represents a class of blockchains sharing a transaction/fee model.
type Family string

const (
	FamilyEVM    Family = "evm"
	FamilyUTXO   Family = "utxo"
	FamilySolana Family = "solana"
	FamilyTezos  Family = "tezos"
)

// NetworkKind selects between a chain's production and test deployments.
type NetworkKind string

const (
	NetworkMain NetworkKind = "main"
	NetworkTest NetworkKind = "test"
)

// Network is one deployment of a blockchain: a provider endpoint plus an
// optional block-explorer API descriptor.
type Network struct {
	Kind           NetworkKind
	RPCURL         string
	ExplorerURL    string
	ExplorerAPIKey string
	ChainID        uint64 // EVM chains only
}

// UTXONetParams holds the address-encoding constants for one network of a
// Bitcoin-family chain.
type UTXONetParams struct {
	PubKeyHashAddrID        byte
	ScriptHashAddrID        byte
	WitnessPubKeyHashAddrID byte
	Bech32HRP               string
	WIF                     byte
}

// UTXOParams holds the per-network address parameters for a UTXO chain.
// Mainnet and testnet encode the same key to different address strings.
type UTXOParams struct {
	Main           UTXONetParams
	Test           UTXONetParams
	SupportsSegWit bool
}

// Blockchain is the identity of a chain family member: registry key, BIP44
// derivation constants, base-unit exponent, and address parameters.
// Immutable after registration except for the soft-delete flag.
type Blockchain struct {
	Key      string // stable registry key: "ETH", "BTC", "SOL", "XTZ", ...
	Name     string
	Family   Family
	Decimals uint8 // base-unit exponent of the native coin (18 wei, 8 sat, 9 lamports, 6 mutez)

	// BIP44 derivation
	CoinType uint32
	Purpose  uint32

	// URIScheme is the payment-URI scheme used for QR-encodable addresses.
	URIScheme string

	UTXO *UTXOParams // nil for non-UTXO families

	Networks map[NetworkKind]Network
	Metadata map[string]string

	Deleted bool
}

// Network returns the deployment for the given kind.
func (b *Blockchain) Network(kind NetworkKind) (Network, bool) {
	n, ok := b.Networks[kind]
	return n, ok
}

// PaymentURI returns the QR-encodable payment URI for an address on this
// chain, e.g. "ethereum:0xabc..." or "bitcoin:bc1q...".
func (b *Blockchain) PaymentURI(address string) string {
	if b.URIScheme == "" || address == "" {
		return address
	}
	return b.URIScheme + ":" + address
}

// CoinKind classifies a token asset.
type CoinKind string

const (
	CoinNative CoinKind = "native"
	CoinERC20  CoinKind = "erc20"
	CoinBEP20  CoinKind = "bep20"
)

// TokenAsset is a spendable unit on a chain: the native coin or a
// contract-based token.
type TokenAsset struct {
	ID              string
	BlockchainKey   string
	Symbol          string
	Name            string
	Decimals        uint8
	Kind            CoinKind
	ContractAddress string // empty for native coins
	IsLayerOne      bool   // the chain's native asset
}

// IsContract reports whether transfers of this asset go through a contract.
func (t *TokenAsset) IsContract() bool {
	return t.ContractAddress != ""
}

// Set is the process-wide collection of blockchains and token assets.
// It is populated once at startup and read-only thereafter.
type Set struct {
	chains map[string]*Blockchain
	tokens map[string][]*TokenAsset
}

// NewSet creates an empty chain set.
func NewSet() *Set {
	return &Set{
		chains: make(map[string]*Blockchain),
		tokens: make(map[string][]*TokenAsset),
	}
}

// Register adds a blockchain to the set. Duplicate keys are rejected.
func (s *Set) Register(b *Blockchain) error {
	if b.Key == "" {
		return fmt.Errorf("blockchain key required")
	}
	if _, exists := s.chains[b.Key]; exists {
		return fmt.Errorf("duplicate blockchain key %q", b.Key)
	}
	s.chains[b.Key] = b
	return nil
}

// RegisterToken adds a token asset under its blockchain key.
func (s *Set) RegisterToken(t *TokenAsset) error {
	if _, ok := s.chains[t.BlockchainKey]; !ok {
		return fmt.Errorf("token %s references unknown blockchain %q", t.Symbol, t.BlockchainKey)
	}
	s.tokens[t.BlockchainKey] = append(s.tokens[t.BlockchainKey], t)
	return nil
}

// Get returns a blockchain by key.
func (s *Set) Get(key string) (*Blockchain, bool) {
	b, ok := s.chains[key]
	return b, ok
}

// Active returns all registered blockchains that are not soft-deleted,
// ordered by key for deterministic iteration.
func (s *Set) Active() []*Blockchain {
	out := make([]*Blockchain, 0, len(s.chains))
	for _, b := range s.chains {
		if !b.Deleted {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Tokens returns all token assets registered for a blockchain.
func (s *Set) Tokens(key string) []*TokenAsset {
	return s.tokens[key]
}

// LayerOneTokens returns the native assets of a blockchain (the assets a
// freshly provisioned wallet materializes).
func (s *Set) LayerOneTokens(key string) []*TokenAsset {
	var out []*TokenAsset
	for _, t := range s.tokens[key] {
		if t.IsLayerOne {
			out = append(out, t)
		}
	}
	return out
}

// TokenByContract looks up a contract token on a chain, case-insensitively.
func (s *Set) TokenByContract(key, contract string) (*TokenAsset, bool) {
	for _, t := range s.tokens[key] {
		if t.ContractAddress != "" && strings.EqualFold(t.ContractAddress, contract) {
			return t, true
		}
	}
	return nil, false
}

// ByChainID returns the EVM blockchain with the given chain ID on the given
// network kind.
func (s *Set) ByChainID(chainID uint64, kind NetworkKind) (*Blockchain, bool) {
	for _, b := range s.chains {
		if b.Family != FamilyEVM {
			continue
		}
		if n, ok := b.Networks[kind]; ok && n.ChainID == chainID {
			return b, true
		}
	}
	return nil, false
}
