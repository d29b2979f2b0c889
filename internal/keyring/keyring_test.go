package keyring

import (
	"strings"
	"testing"

	"github.com/opencustody/vaultd/internal/chain"
)

// Test mnemonic (DO NOT USE FOR REAL FUNDS)
const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestGenerateMnemonic(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic() error = %v", err)
	}

	if words := strings.Fields(mnemonic); len(words) != 24 {
		t.Errorf("expected 24 words, got %d", len(words))
	}
	if !ValidateMnemonic(mnemonic) {
		t.Error("generated mnemonic should be valid")
	}
}

func TestNewInvalidMnemonic(t *testing.T) {
	if _, err := New("not a real mnemonic"); err == nil {
		t.Error("expected error for invalid mnemonic")
	}
}

func TestEVMAddressVector(t *testing.T) {
	k, err := New(testMnemonic)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	addr, err := k.EVMAddress(chain.NewEthereum())
	if err != nil {
		t.Fatalf("EVMAddress() error = %v", err)
	}

	// Known BIP44 vector for this mnemonic at m/44'/60'/0'/0/0.
	want := "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"
	if addr != want {
		t.Errorf("EVMAddress() = %s, want %s", addr, want)
	}

	// All EVM chains share coin type 60 and therefore the address.
	bscAddr, err := k.EVMAddress(chain.NewBSC())
	if err != nil {
		t.Fatalf("EVMAddress(BSC) error = %v", err)
	}
	if bscAddr != addr {
		t.Errorf("BSC address %s differs from ETH address %s", bscAddr, addr)
	}
}

func TestUTXOAddressVector(t *testing.T) {
	k, err := New(testMnemonic)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	main, test, err := k.UTXOAddresses(chain.NewBitcoin())
	if err != nil {
		t.Fatalf("UTXOAddresses() error = %v", err)
	}

	// Known BIP84 vector for this mnemonic at m/84'/0'/0'/0/0.
	want := "bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu"
	if main != want {
		t.Errorf("mainnet address = %s, want %s", main, want)
	}
	if !strings.HasPrefix(test, "tb1") {
		t.Errorf("testnet address %s should use tb1 prefix", test)
	}
	if main == test {
		t.Error("mainnet and testnet encodings should differ for BTC")
	}
}

func TestDogecoinLegacyAddress(t *testing.T) {
	k, _ := New(testMnemonic)

	main, _, err := k.UTXOAddresses(chain.NewDogecoin())
	if err != nil {
		t.Fatalf("UTXOAddresses(DOGE) error = %v", err)
	}
	if !strings.HasPrefix(main, "D") {
		t.Errorf("dogecoin address %s should start with D", main)
	}
}

func TestDerivationIsDeterministic(t *testing.T) {
	chains, err := chain.DefaultSet()
	if err != nil {
		t.Fatal(err)
	}

	derive := func() map[string]string {
		k, err := New(testMnemonic)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		out := make(map[string]string)
		for _, b := range chains.Active() {
			var addr string
			var err error
			switch b.Family {
			case chain.FamilyEVM:
				addr, err = k.EVMAddress(b)
			case chain.FamilyUTXO:
				addr, _, err = k.UTXOAddresses(b)
			case chain.FamilySolana:
				addr, err = k.SolanaAddress(b)
			case chain.FamilyTezos:
				addr, err = k.TezosAddress(b)
			}
			if err != nil {
				t.Fatalf("derive %s: %v", b.Key, err)
			}
			if addr == "" {
				t.Fatalf("derive %s: empty address", b.Key)
			}
			out[b.Key] = addr
		}
		return out
	}

	first := derive()
	second := derive()
	for key, addr := range first {
		if second[key] != addr {
			t.Errorf("%s: derivation not deterministic: %s != %s", key, addr, second[key])
		}
	}
}

func TestSolanaAddress(t *testing.T) {
	k, _ := New(testMnemonic)

	addr, err := k.SolanaAddress(chain.NewSolana())
	if err != nil {
		t.Fatalf("SolanaAddress() error = %v", err)
	}
	if !ValidateSolanaAddress(addr) {
		t.Errorf("derived solana address %s should validate", addr)
	}
	if ValidateSolanaAddress("tooshort") {
		t.Error("bogus address should not validate")
	}
}

func TestTezosAddress(t *testing.T) {
	k, _ := New(testMnemonic)

	addr, err := k.TezosAddress(chain.NewTezos())
	if err != nil {
		t.Fatalf("TezosAddress() error = %v", err)
	}
	if !strings.HasPrefix(addr, "tz1") {
		t.Errorf("tezos address %s should use tz1 prefix", addr)
	}
	if !ValidateTezosAddress(addr) {
		t.Errorf("derived tezos address %s should validate", addr)
	}

	// Flip a character: checksum must catch it.
	corrupted := addr[:len(addr)-1] + "x"
	if ValidateTezosAddress(corrupted) {
		t.Error("corrupted address should not validate")
	}
}

func TestChecksumAddress(t *testing.T) {
	tests := []struct{ in, want string }{
		{"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"},
		{"0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359", "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"},
	}
	for _, tc := range tests {
		if got := ChecksumAddress(tc.in); got != tc.want {
			t.Errorf("ChecksumAddress(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestValidateEVMAddress(t *testing.T) {
	if !ValidateEVMAddress("0x9858EfFD232B4033E47d90003D41EC34EcaEda94") {
		t.Error("valid address rejected")
	}
	if ValidateEVMAddress("0x1234") {
		t.Error("short address accepted")
	}
	if ValidateEVMAddress("0xzz58EfFD232B4033E47d90003D41EC34EcaEda94") {
		t.Error("non-hex address accepted")
	}
}
