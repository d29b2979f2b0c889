package adapter

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"testing"

	"github.com/mr-tron/base58"

	"github.com/opencustody/vaultd/internal/chain"
	"github.com/opencustody/vaultd/internal/provider"
)

func TestWriteShortVec(t *testing.T) {
	tests := []struct {
		n    uint16
		want []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{300, []byte{0xac, 0x02}},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		writeShortVec(&buf, tt.n)
		if !bytes.Equal(buf.Bytes(), tt.want) {
			t.Errorf("writeShortVec(%d) = %x, want %x", tt.n, buf.Bytes(), tt.want)
		}
	}
}

func TestBuildSolanaTransfer(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	from := base58.Encode(pub)
	toPub, _, _ := ed25519.GenerateKey(nil)
	to := base58.Encode(toPub)
	blockhash := base58.Encode(make([]byte, 32))

	raw, err := buildSolanaTransfer(priv, from, to, blockhash, 1_000_000)
	if err != nil {
		t.Fatalf("buildSolanaTransfer() error = %v", err)
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		t.Fatalf("output is not valid base64: %v", err)
	}

	// One signature: shortvec(1) + 64-byte signature, then the message.
	if decoded[0] != 1 {
		t.Errorf("signature count = %d, want 1", decoded[0])
	}
	signature := decoded[1:65]
	message := decoded[65:]
	if !ed25519.Verify(pub, message, signature) {
		t.Error("signature does not verify against the message")
	}

	// Header: 1 required signature, 0 readonly signed, 1 readonly unsigned.
	if message[0] != 1 || message[1] != 0 || message[2] != 1 {
		t.Errorf("message header = %v", message[:3])
	}
	// Three account keys: from, to, system program.
	if message[3] != 3 {
		t.Errorf("account key count = %d, want 3", message[3])
	}
	if !bytes.Equal(message[4:36], pub) {
		t.Error("first account key should be the sender")
	}
}

func TestBuildSolanaTransferDeterministic(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(nil)
	pub := priv.Public().(ed25519.PublicKey)
	from := base58.Encode(pub)
	toPub, _, _ := ed25519.GenerateKey(nil)
	to := base58.Encode(toPub)
	blockhash := base58.Encode(bytes.Repeat([]byte{7}, 32))

	a, err := buildSolanaTransfer(priv, from, to, blockhash, 42)
	if err != nil {
		t.Fatal(err)
	}
	b, err := buildSolanaTransfer(priv, from, to, blockhash, 42)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("same inputs should produce the same transaction bytes")
	}
}

func TestBuildSolanaTransferRejectsBadKeys(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(nil)
	blockhash := base58.Encode(make([]byte, 32))

	if _, err := buildSolanaTransfer(priv, "not-base58!", "also-bad", blockhash, 1); err == nil {
		t.Error("expected error for invalid keys")
	}
	good := base58.Encode(make([]byte, 32))
	if _, err := buildSolanaTransfer(priv, good, good, "shorthash", 1); err == nil {
		t.Error("expected error for invalid blockhash")
	}
}

func TestSolanaConvertTx(t *testing.T) {
	a := &SolanaAdapter{blockchain: chain.NewSolana()}

	tx := &provider.SolanaTx{Slot: 250_000_000}
	tx.Transaction.Message.AccountKeys = []string{"senderKey", "receiverKey", solSystemProgram}
	tx.Meta.PreBalances = []uint64{5_000_000_000, 0, 1}
	tx.Meta.PostBalances = []uint64{3_999_995_000, 1_000_000_000, 1}

	got, ok := a.convertTx(provider.SignatureInfo{Signature: "sig1"}, tx)
	if !ok {
		t.Fatal("convertTx returned not ok")
	}
	if got.From != "senderKey" || got.To != "receiverKey" {
		t.Errorf("direction: from=%s to=%s", got.From, got.To)
	}
	if got.Amount.String() != "1" {
		t.Errorf("Amount = %s SOL, want 1", got.Amount)
	}
	if got.Status != StatusSuccess || got.Block != 250_000_000 {
		t.Errorf("status=%s block=%d", got.Status, got.Block)
	}
}
