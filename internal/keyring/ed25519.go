// SLIP-10 ed25519 derivation and address encoding for Solana and Tezos.
package keyring

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"

	"github.com/opencustody/vaultd/internal/chain"
)

// tz1Prefix is the base58check prefix for ed25519 public key hashes.
var tz1Prefix = []byte{0x06, 0xa1, 0x9f}

// deriveSLIP10 derives a 32-byte ed25519 seed at the given hardened path.
// Every segment is hardened; SLIP-10 defines no non-hardened ed25519
// derivation.
func deriveSLIP10(seed []byte, path []uint32) ([]byte, error) {
	mac := hmac.New(sha512.New, []byte("ed25519 seed"))
	if _, err := mac.Write(seed); err != nil {
		return nil, err
	}
	sum := mac.Sum(nil)
	key, chainCode := sum[:32], sum[32:]

	for _, segment := range path {
		index := segment | hdkeychain.HardenedKeyStart

		data := make([]byte, 0, 37)
		data = append(data, 0x00)
		data = append(data, key...)
		data = binary.BigEndian.AppendUint32(data, index)

		mac = hmac.New(sha512.New, chainCode)
		if _, err := mac.Write(data); err != nil {
			return nil, err
		}
		sum = mac.Sum(nil)
		key, chainCode = sum[:32], sum[32:]
	}

	return key, nil
}

// SolanaAddress returns the base58 address for the Solana chain. The address
// is the raw ed25519 public key; mainnet and devnet share it.
func (k *Keyring) SolanaAddress(b *chain.Blockchain) (string, error) {
	priv, err := k.Ed25519Key(b)
	if err != nil {
		return "", err
	}
	pub := priv.Public().(ed25519.PublicKey)
	return base58.Encode(pub), nil
}

// ValidateSolanaAddress checks that an address decodes to a point on the
// ed25519 curve. System accounts must be on-curve; PDAs are deliberately
// off-curve and are not valid transfer destinations here.
func ValidateSolanaAddress(address string) bool {
	raw, err := base58.Decode(address)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}

// TezosAddress returns the tz1 address for the Tezos chain: base58check of
// the blake2b-160 hash of the ed25519 public key.
func (k *Keyring) TezosAddress(b *chain.Blockchain) (string, error) {
	priv, err := k.Ed25519Key(b)
	if err != nil {
		return "", err
	}
	pub := priv.Public().(ed25519.PublicKey)

	digest, err := blake2b.New(20, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create blake2b hasher: %w", err)
	}
	digest.Write(pub)

	return base58Check(tz1Prefix, digest.Sum(nil)), nil
}

// edpkPrefix is the base58check prefix for ed25519 public keys.
var edpkPrefix = []byte{0x0d, 0x0f, 0x25, 0xd9}

// TezosPublicKey returns the edpk-encoded public key, as published by a
// reveal operation.
func (k *Keyring) TezosPublicKey(b *chain.Blockchain) (string, error) {
	priv, err := k.Ed25519Key(b)
	if err != nil {
		return "", err
	}
	pub := priv.Public().(ed25519.PublicKey)
	return base58Check(edpkPrefix, pub), nil
}

// base58Check encodes prefix||payload with a 4-byte double-SHA256 checksum.
func base58Check(prefix, payload []byte) string {
	data := make([]byte, 0, len(prefix)+len(payload)+4)
	data = append(data, prefix...)
	data = append(data, payload...)

	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	data = append(data, second[:4]...)

	return base58.Encode(data)
}

// DecodeBase58Check strips and verifies a base58check envelope, returning
// the payload after the expected prefix.
func DecodeBase58Check(encoded string, prefix []byte) ([]byte, error) {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base58: %w", err)
	}
	if len(raw) < len(prefix)+4 {
		return nil, fmt.Errorf("encoded value too short")
	}

	payload, checksum := raw[:len(raw)-4], raw[len(raw)-4:]
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	for i := 0; i < 4; i++ {
		if checksum[i] != second[i] {
			return nil, fmt.Errorf("checksum mismatch")
		}
	}

	for i := range prefix {
		if payload[i] != prefix[i] {
			return nil, fmt.Errorf("unexpected prefix")
		}
	}
	return payload[len(prefix):], nil
}

// ValidateTezosAddress checks a tz1 address checksum and length.
func ValidateTezosAddress(address string) bool {
	payload, err := DecodeBase58Check(address, tz1Prefix)
	return err == nil && len(payload) == 20
}
