// Mnemonic encryption for at-rest storage. Argon2id + AES-256-GCM only.
package keyring

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2 parameters (OWASP recommended).
const (
	argon2Time        = 3
	argon2Memory      = 64 * 1024 // 64 MB
	argon2Parallelism = 4
	argon2KeyLen      = 32
	argon2SaltLen     = 32

	minPassphraseLen = 16
)

// EncryptedSecret is the serialized form of an encrypted mnemonic. The
// Argon2 parameters are stored alongside the ciphertext so old secrets stay
// decryptable if the defaults change.
type EncryptedSecret struct {
	Version     int    `json:"version"`
	Ciphertext  []byte `json:"ciphertext"`
	Salt        []byte `json:"salt"`
	Nonce       []byte `json:"nonce"`
	Time        uint32 `json:"time"`
	Memory      uint32 `json:"memory"`
	Parallelism uint8  `json:"parallelism"`
}

// Codec encrypts and decrypts wallet mnemonics with a service passphrase.
// A fresh salt and nonce are generated per encryption, so the same mnemonic
// never produces the same blob twice.
type Codec struct {
	passphrase []byte
}

// NewCodec creates a codec from the service passphrase.
func NewCodec(passphrase string) (*Codec, error) {
	if len(passphrase) < minPassphraseLen {
		return nil, fmt.Errorf("secret passphrase must be at least %d characters", minPassphraseLen)
	}
	return &Codec{passphrase: []byte(passphrase)}, nil
}

// Encrypt encrypts a plaintext mnemonic and returns the JSON-serialized
// EncryptedSecret blob.
func (c *Codec) Encrypt(plaintext string) ([]byte, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey(c.passphrase, salt, argon2Time, argon2Memory, argon2Parallelism, argon2KeyLen)
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	secret := &EncryptedSecret{
		Version:     1,
		Ciphertext:  gcm.Seal(nil, nonce, []byte(plaintext), nil),
		Salt:        salt,
		Nonce:       nonce,
		Time:        argon2Time,
		Memory:      argon2Memory,
		Parallelism: argon2Parallelism,
	}

	blob, err := json.Marshal(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize secret: %w", err)
	}
	return blob, nil
}

// Decrypt decrypts a blob produced by Encrypt.
func (c *Codec) Decrypt(blob []byte) (string, error) {
	var secret EncryptedSecret
	if err := json.Unmarshal(blob, &secret); err != nil {
		return "", fmt.Errorf("failed to parse secret: %w", err)
	}
	if secret.Version != 1 {
		return "", fmt.Errorf("unsupported secret version %d", secret.Version)
	}

	key := argon2.IDKey(c.passphrase, secret.Salt, secret.Time, secret.Memory, secret.Parallelism, argon2KeyLen)
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, secret.Nonce, secret.Ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return string(plaintext), nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
