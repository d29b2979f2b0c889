package keyring

import (
	"bytes"
	"testing"
)

const testPassphrase = "correct-horse-battery-staple"

func TestCodecRoundTrip(t *testing.T) {
	codec, err := NewCodec(testPassphrase)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}

	blob, err := codec.Encrypt(testMnemonic)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if bytes.Contains(blob, []byte("abandon")) {
		t.Fatal("ciphertext blob contains plaintext mnemonic words")
	}

	plaintext, err := codec.Decrypt(blob)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if plaintext != testMnemonic {
		t.Errorf("Decrypt() = %q, want original mnemonic", plaintext)
	}
}

func TestCodecFreshSaltPerEncryption(t *testing.T) {
	codec, _ := NewCodec(testPassphrase)

	a, err := codec.Encrypt(testMnemonic)
	if err != nil {
		t.Fatal(err)
	}
	b, err := codec.Encrypt(testMnemonic)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same mnemonic produced identical blobs")
	}
}

func TestCodecWrongPassphrase(t *testing.T) {
	codec, _ := NewCodec(testPassphrase)
	blob, err := codec.Encrypt(testMnemonic)
	if err != nil {
		t.Fatal(err)
	}

	other, _ := NewCodec("a-different-passphrase-entirely")
	if _, err := other.Decrypt(blob); err == nil {
		t.Error("decryption with wrong passphrase should fail")
	}
}

func TestCodecShortPassphrase(t *testing.T) {
	if _, err := NewCodec("short"); err == nil {
		t.Error("expected error for short passphrase")
	}
}

func TestCodecGarbageBlob(t *testing.T) {
	codec, _ := NewCodec(testPassphrase)
	if _, err := codec.Decrypt([]byte("not json")); err == nil {
		t.Error("expected error for malformed blob")
	}
}
