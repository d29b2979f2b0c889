// Package keyring derives per-chain keys and addresses from a BIP39 mnemonic.
// secp256k1 chains (EVM, UTXO) use BIP32/BIP44 derivation; ed25519 chains
// (Solana, Tezos) use SLIP-10 hardened derivation. Derivation is fully
// deterministic: the same mnemonic always yields the same addresses.
package keyring

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"

	"github.com/opencustody/vaultd/internal/chain"
)

// Keyring holds the master key material derived from one mnemonic.
type Keyring struct {
	seed   []byte
	master *hdkeychain.ExtendedKey
}

// GenerateMnemonic generates a new 24-word BIP39 mnemonic (256-bit entropy).
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate mnemonic: %w", err)
	}

	return mnemonic, nil
}

// ValidateMnemonic checks if a mnemonic is valid.
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// New creates a keyring from a BIP39 mnemonic.
func New(mnemonic string) (*Keyring, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}

	seed := bip39.NewSeed(mnemonic, "")

	// Mainnet params are only used for extended-key serialization; the raw
	// private keys extracted below are network-independent.
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}

	return &Keyring{seed: seed, master: master}, nil
}

// Zero clears the keyring's seed material.
func (k *Keyring) Zero() {
	for i := range k.seed {
		k.seed[i] = 0
	}
	k.master.Zero()
}

// SecpKey derives the secp256k1 private key for a chain at
// m/purpose'/coin'/0'/0/0.
func (k *Keyring) SecpKey(b *chain.Blockchain) (*btcec.PrivateKey, error) {
	path := []uint32{
		hdkeychain.HardenedKeyStart + b.Purpose,
		hdkeychain.HardenedKeyStart + b.CoinType,
		hdkeychain.HardenedKeyStart, // account 0
		0,                           // external chain
		0,                           // index 0
	}

	key := k.master
	for _, step := range path {
		var err error
		key, err = key.Derive(step)
		if err != nil {
			return nil, fmt.Errorf("failed to derive %s key: %w", b.Key, err)
		}
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("failed to extract private key: %w", err)
	}
	return priv, nil
}

// Ed25519Key derives the SLIP-10 ed25519 key for a chain at
// m/44'/coin'/0'/0' (all segments hardened, per SLIP-10).
func (k *Keyring) Ed25519Key(b *chain.Blockchain) (ed25519.PrivateKey, error) {
	path := []uint32{b.Purpose, b.CoinType, 0, 0}
	seed32, err := deriveSLIP10(k.seed, path)
	if err != nil {
		return nil, fmt.Errorf("failed to derive %s key: %w", b.Key, err)
	}
	return ed25519.NewKeyFromSeed(seed32), nil
}

// EVMAddress returns the EIP-55 checksummed address for an EVM chain.
// All EVM chains share coin type 60, so the address is identical on every
// EVM network.
func (k *Keyring) EVMAddress(b *chain.Blockchain) (string, error) {
	priv, err := k.SecpKey(b)
	if err != nil {
		return "", err
	}
	return PublicKeyToEVMAddress(priv.PubKey()), nil
}

// PublicKeyToEVMAddress converts a secp256k1 public key to an EIP-55
// checksummed EVM address.
func PublicKeyToEVMAddress(pub *btcec.PublicKey) string {
	uncompressed := pub.SerializeUncompressed()
	hash := crypto.Keccak256(uncompressed[1:])
	return ChecksumAddress(hex.EncodeToString(hash[12:]))
}

// ChecksumAddress applies EIP-55 checksum casing to a hex address.
func ChecksumAddress(addr string) string {
	addr = strings.ToLower(strings.TrimPrefix(addr, "0x"))
	hash := hex.EncodeToString(crypto.Keccak256([]byte(addr)))

	var sb strings.Builder
	sb.WriteString("0x")
	for i, c := range addr {
		if c >= 'a' && c <= 'f' && hash[i] >= '8' {
			sb.WriteByte(byte(c) - 'a' + 'A')
		} else {
			sb.WriteByte(byte(c))
		}
	}
	return sb.String()
}

// ValidateEVMAddress checks that an address is 20 hex-encoded bytes.
func ValidateEVMAddress(address string) bool {
	address = strings.TrimPrefix(address, "0x")
	if len(address) != 40 {
		return false
	}
	_, err := hex.DecodeString(address)
	return err == nil
}
