// Package provision creates custodial wallets: one mnemonic per wallet,
// encrypted at rest, with addresses derived across every registered chain
// before anything is persisted. Persistence is all or nothing.
package provision

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/opencustody/vaultd/internal/adapter"
	"github.com/opencustody/vaultd/internal/chain"
	"github.com/opencustody/vaultd/internal/keyring"
	"github.com/opencustody/vaultd/internal/storage"
	"github.com/opencustody/vaultd/pkg/logging"
)

// SecretCodec seals and unseals wallet secrets. keyring.Codec satisfies it.
type SecretCodec interface {
	Encrypt(plaintext string) ([]byte, error)
	Decrypt(blob []byte) (string, error)
}

// Provisioner creates wallets and manages their per-chain asset rows.
type Provisioner struct {
	set      *chain.Set
	registry *adapter.Registry
	store    *storage.Storage
	codec    SecretCodec
	network  chain.NetworkKind
	fiat     string
	log      *logging.Logger
}

// New builds a provisioner bound to a network kind. fiat is the display
// currency stamped on new wallets.
func New(set *chain.Set, registry *adapter.Registry, store *storage.Storage,
	codec SecretCodec, network chain.NetworkKind, fiat string, log *logging.Logger) *Provisioner {
	return &Provisioner{
		set:      set,
		registry: registry,
		store:    store,
		codec:    codec,
		network:  network,
		fiat:     fiat,
		log:      log.Component("provisioner"),
	}
}

// CreateWallet generates a fresh mnemonic and provisions a multi-chain
// wallet for the user. The new wallet becomes the user's default.
func (p *Provisioner) CreateWallet(ctx context.Context, userID string) (*storage.Wallet, error) {
	mnemonic, err := keyring.GenerateMnemonic()
	if err != nil {
		return nil, fmt.Errorf("failed to generate mnemonic: %w", err)
	}
	return p.provision(ctx, userID, mnemonic)
}

// ImportWallet provisions a wallet from an existing mnemonic, re-deriving
// addresses on every chain through the same fan-out as CreateWallet.
func (p *Provisioner) ImportWallet(ctx context.Context, userID, mnemonic string) (*storage.Wallet, error) {
	if !keyring.ValidateMnemonic(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}
	return p.provision(ctx, userID, mnemonic)
}

func (p *Provisioner) provision(ctx context.Context, userID, mnemonic string) (*storage.Wallet, error) {
	encrypted, err := p.codec.Encrypt(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt wallet secret: %w", err)
	}

	addresses, err := p.deriveAll(ctx, mnemonic)
	if err != nil {
		return nil, err
	}

	wallet := &storage.Wallet{
		ID:              uuid.NewString(),
		UserID:          userID,
		Kind:            storage.WalletKindMulti,
		EncryptedSecret: encrypted,
		NetworkKind:     string(p.network),
		FiatCurrency:    p.fiat,
		IsDefault:       true,
		StreamTag:       uuid.NewString(),
		CreatedAt:       time.Now(),
	}

	var assets []*storage.WalletAsset
	for chainKey, addr := range addresses {
		b, ok := p.set.Get(chainKey)
		if !ok {
			return nil, fmt.Errorf("adapter %q has no chain definition", chainKey)
		}
		for _, token := range p.set.LayerOneTokens(chainKey) {
			assets = append(assets, p.newAssetRow(wallet, b, token.ID, addr))
		}
	}

	if err := p.store.ProvisionWallet(wallet, assets); err != nil {
		return nil, fmt.Errorf("failed to persist wallet: %w", err)
	}

	p.log.Info("provisioned wallet", "wallet", wallet.ID, "user", userID, "assets", len(assets))
	return wallet, nil
}

// deriveAll derives the address pair on every registered chain concurrently.
// A single failed derivation fails the whole provisioning; no rows have been
// written at that point.
func (p *Provisioner) deriveAll(ctx context.Context, mnemonic string) (map[string]adapter.Address, error) {
	var mu sync.Mutex
	addresses := make(map[string]adapter.Address)

	g, ctx := errgroup.WithContext(ctx)
	for _, key := range p.registry.Keys() {
		ad, err := p.registry.Get(key)
		if err != nil {
			return nil, err
		}
		g.Go(func() error {
			addr, err := ad.DeriveAddress(ctx, mnemonic)
			if err != nil {
				return fmt.Errorf("failed to derive %s address: %w", ad.Identify(), err)
			}
			mu.Lock()
			addresses[ad.Identify()] = addr
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return addresses, nil
}

func (p *Provisioner) newAssetRow(w *storage.Wallet, b *chain.Blockchain, tokenAssetID string, addr adapter.Address) *storage.WalletAsset {
	return &storage.WalletAsset{
		ID:            uuid.NewString(),
		UserID:        w.UserID,
		WalletID:      w.ID,
		BlockchainKey: b.Key,
		TokenAssetID:  tokenAssetID,
		AddressMain:   addr.Main,
		AddressTest:   addr.Test,
		AddressQR:     b.PaymentURI(addr.ForNetwork(p.network)),
		NetworkKind:   string(p.network),
		CreatedAt:     time.Now(),
	}
}

// AddTokenAsset materializes a registered token under an existing wallet,
// reusing the chain's already-derived address. Find-or-create: calling it
// twice for the same pair returns the same row.
func (p *Provisioner) AddTokenAsset(ctx context.Context, walletID, tokenAssetID string) (*storage.WalletAsset, error) {
	wallet, err := p.store.GetWallet(walletID)
	if err != nil {
		return nil, err
	}
	token, err := p.store.TokenAsset(tokenAssetID)
	if err != nil {
		return nil, err
	}
	b, ok := p.set.Get(token.BlockchainKey)
	if !ok {
		return nil, fmt.Errorf("token %s references unknown chain %q", token.Symbol, token.BlockchainKey)
	}

	addr, err := p.chainAddress(wallet, token.BlockchainKey)
	if err != nil {
		return nil, err
	}

	return p.store.FindOrCreateWalletAsset(p.newAssetRow(wallet, b, token.ID, addr))
}

// TokenSpec describes a contract token to register at runtime.
type TokenSpec struct {
	Chain    string
	Contract string
	Symbol   string
	Name     string
	Decimals uint8
}

// AddContractToken registers a contract token on the fly and materializes
// it under the wallet. The token itself is find-or-create keyed on
// (chain, contract): a second call with the same contract reuses the
// registered asset regardless of the spec's cosmetic fields.
func (p *Provisioner) AddContractToken(ctx context.Context, walletID string, spec TokenSpec) (*storage.WalletAsset, error) {
	b, ok := p.set.Get(spec.Chain)
	if !ok {
		return nil, fmt.Errorf("unknown chain %q", spec.Chain)
	}
	if b.Family != chain.FamilyEVM {
		return nil, fmt.Errorf("chain %s does not support contract tokens", b.Key)
	}
	if spec.Contract == "" || spec.Symbol == "" {
		return nil, fmt.Errorf("contract and symbol are required")
	}

	name := spec.Name
	if name == "" {
		name = spec.Symbol
	}
	kind := chain.CoinERC20
	if b.Key == "BSC" {
		kind = chain.CoinBEP20
	}

	token, err := p.store.FindOrCreateTokenAsset(&chain.TokenAsset{
		ID:              uuid.NewString(),
		BlockchainKey:   b.Key,
		Symbol:          spec.Symbol,
		Name:            name,
		Decimals:        spec.Decimals,
		Kind:            kind,
		ContractAddress: spec.Contract,
	})
	if err != nil {
		return nil, err
	}

	p.log.Info("registered contract token", "chain", b.Key, "symbol", token.Symbol, "contract", token.ContractAddress)
	return p.AddTokenAsset(ctx, walletID, token.ID)
}

// chainAddress returns the wallet's address pair on a chain from its asset
// rows. Provisioning materializes a row per chain, so a missing row means
// the wallet was never provisioned for that chain.
func (p *Provisioner) chainAddress(wallet *storage.Wallet, chainKey string) (adapter.Address, error) {
	siblings, err := p.store.WalletAssetsByWallet(wallet.ID)
	if err != nil {
		return adapter.Address{}, err
	}
	for _, a := range siblings {
		if a.BlockchainKey == chainKey {
			return adapter.Address{Main: a.AddressMain, Test: a.AddressTest}, nil
		}
	}
	return adapter.Address{}, adapter.NotFoundf("provision.AddTokenAsset",
		"wallet %s has no %s asset", wallet.ID, chainKey)
}

// SetDefaultWallet flips the user's default wallet.
func (p *Provisioner) SetDefaultWallet(userID, walletID string) error {
	return p.store.SetDefaultWallet(userID, walletID)
}

// WalletMnemonic unseals a wallet's mnemonic for signing. Callers must not
// retain or log the returned string.
func (p *Provisioner) WalletMnemonic(walletID string) (string, error) {
	wallet, err := p.store.GetWallet(walletID)
	if err != nil {
		return "", err
	}
	return p.codec.Decrypt(wallet.EncryptedSecret)
}

// RefreshBalance fetches the current on-chain balance for a wallet asset
// and persists it.
func (p *Provisioner) RefreshBalance(ctx context.Context, walletAssetID string) (*storage.WalletAsset, error) {
	asset, err := p.store.WalletAssetByID(walletAssetID)
	if err != nil {
		return nil, err
	}
	token, err := p.store.TokenAsset(asset.TokenAssetID)
	if err != nil {
		return nil, err
	}
	ad, err := p.registry.Get(asset.BlockchainKey)
	if err != nil {
		return nil, err
	}

	balance, err := ad.GetBalance(ctx, asset.Address(), token)
	if err != nil {
		return nil, err
	}
	if err := p.store.UpdateWalletAssetBalance(asset.ID, balance); err != nil {
		return nil, err
	}
	asset.Balance = balance
	return asset, nil
}
