// Bitcoin-family address encoding.
package keyring

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/opencustody/vaultd/internal/chain"
)

// UTXOAddresses derives the mainnet and testnet address pair for a UTXO
// chain. One key, two encodings: the networks differ only in their address
// version bytes and bech32 prefix.
func (k *Keyring) UTXOAddresses(b *chain.Blockchain) (main, test string, err error) {
	if b.UTXO == nil {
		return "", "", fmt.Errorf("chain %s has no UTXO parameters", b.Key)
	}

	priv, err := k.SecpKey(b)
	if err != nil {
		return "", "", err
	}
	pub := priv.PubKey()

	main, err = EncodeUTXOAddress(pub, b.UTXO, b.UTXO.Main)
	if err != nil {
		return "", "", fmt.Errorf("mainnet address for %s: %w", b.Key, err)
	}
	test, err = EncodeUTXOAddress(pub, b.UTXO, b.UTXO.Test)
	if err != nil {
		return "", "", fmt.Errorf("testnet address for %s: %w", b.Key, err)
	}
	return main, test, nil
}

// EncodeUTXOAddress encodes a public key as P2WPKH when the chain supports
// SegWit, P2PKH otherwise.
func EncodeUTXOAddress(pub *btcec.PublicKey, params *chain.UTXOParams, net chain.UTXONetParams) (string, error) {
	cfg := toChainCfgParams(net)
	pubKeyHash := btcutil.Hash160(pub.SerializeCompressed())

	if params.SupportsSegWit {
		addr, err := btcutil.NewAddressWitnessPubKeyHash(pubKeyHash, cfg)
		if err != nil {
			return "", fmt.Errorf("failed to create P2WPKH address: %w", err)
		}
		return addr.EncodeAddress(), nil
	}

	addr, err := btcutil.NewAddressPubKeyHash(pubKeyHash, cfg)
	if err != nil {
		return "", fmt.Errorf("failed to create P2PKH address: %w", err)
	}
	return addr.EncodeAddress(), nil
}

// ValidateUTXOAddress checks an address against one network's parameters.
func ValidateUTXOAddress(address string, net chain.UTXONetParams) bool {
	_, err := btcutil.DecodeAddress(address, toChainCfgParams(net))
	return err == nil
}

// DecodeUTXOAddress parses a Bitcoin-family address for script building.
func DecodeUTXOAddress(address string, net chain.UTXONetParams) (btcutil.Address, error) {
	addr, err := btcutil.DecodeAddress(address, toChainCfgParams(net))
	if err != nil {
		return nil, fmt.Errorf("failed to decode address: %w", err)
	}
	return addr, nil
}

// toChainCfgParams converts our per-network params to btcd's chaincfg.
func toChainCfgParams(net chain.UTXONetParams) *chaincfg.Params {
	return &chaincfg.Params{
		PubKeyHashAddrID: net.PubKeyHashAddrID,
		ScriptHashAddrID: net.ScriptHashAddrID,
		Bech32HRPSegwit:  net.Bech32HRP,
		PrivateKeyID:     net.WIF,

		// xprv/xpub magic; only used for extended-key serialization
		HDPrivateKeyID: [4]byte{0x04, 0x88, 0xad, 0xe4},
		HDPublicKeyID:  [4]byte{0x04, 0x88, 0xb2, 0x1e},
	}
}
