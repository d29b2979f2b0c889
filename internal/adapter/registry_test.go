package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/opencustody/vaultd/internal/chain"
)

// fakeAdapter is a minimal Adapter for registry tests.
type fakeAdapter struct {
	key string
}

func (f *fakeAdapter) Identify() string { return f.key }

func (f *fakeAdapter) DeriveAddress(ctx context.Context, mnemonic string) (Address, error) {
	return Address{Main: "addr-" + f.key, Test: "addr-" + f.key}, nil
}

func (f *fakeAdapter) GetBalance(ctx context.Context, address string, asset *chain.TokenAsset) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (f *fakeAdapter) BuildAndSubmit(ctx context.Context, p SubmitParams) (*Receipt, error) {
	return &Receipt{TxHash: "tx-" + f.key}, nil
}

func (f *fakeAdapter) FetchHistory(ctx context.Context, address string, sinceBlock uint64) ([]Transfer, error) {
	return nil, nil
}

func TestNewRegistry(t *testing.T) {
	r, err := NewRegistry(&fakeAdapter{key: "ETH"}, &fakeAdapter{key: "BTC"})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}

	a, err := r.Get("ETH")
	if err != nil {
		t.Fatalf("Get(ETH) error = %v", err)
	}
	if a.Identify() != "ETH" {
		t.Errorf("Identify() = %s, want ETH", a.Identify())
	}
}

func TestNewRegistryDuplicateKey(t *testing.T) {
	_, err := NewRegistry(&fakeAdapter{key: "ETH"}, &fakeAdapter{key: "ETH"})
	if err == nil {
		t.Fatal("expected error for duplicate registration")
	}
}

func TestNewRegistryEmptyKey(t *testing.T) {
	_, err := NewRegistry(&fakeAdapter{key: ""})
	if err == nil {
		t.Fatal("expected error for empty chain key")
	}
}

func TestRegistryGetMissing(t *testing.T) {
	r, err := NewRegistry(&fakeAdapter{key: "ETH"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = r.Get("DOGE")
	if err == nil {
		t.Fatal("expected error for unregistered chain")
	}
	if !IsNotFound(err) {
		t.Errorf("error kind = %v, want not_found", KindOf(err))
	}
}

func TestCapabilityHelpersUnsupported(t *testing.T) {
	ad := &fakeAdapter{key: "BTC"}

	_, err := ApproveDelegate(context.Background(), ad, SubmitParams{}, "0xdelegate")
	if !IsTerminal(err) {
		t.Errorf("ApproveDelegate on non-approver: kind = %v, want terminal", KindOf(err))
	}

	_, err = SwapWrappedAsset(context.Background(), ad, SubmitParams{}, false)
	if !IsTerminal(err) {
		t.Errorf("SwapWrappedAsset on non-wrapper: kind = %v, want terminal", KindOf(err))
	}
}

func TestErrorKinds(t *testing.T) {
	nf := NotFoundf("op", "missing %s", "thing")
	if KindOf(nf) != KindNotFound || !IsNotFound(nf) {
		t.Error("NotFoundf should classify as not_found")
	}

	re := Retryablef("op", errors.New("timeout"), "provider down")
	if !IsRetryable(re) {
		t.Error("Retryablef should classify as retryable")
	}
	if !errors.Is(re, re.Err) {
		t.Error("wrapped cause should unwrap")
	}

	te := Terminalf("op", nil, "invalid input")
	if !IsTerminal(te) {
		t.Error("Terminalf should classify as terminal")
	}

	// Unclassified errors are treated as terminal: never retried blindly.
	plain := errors.New("who knows")
	if KindOf(plain) != KindTerminal {
		t.Errorf("KindOf(plain) = %v, want terminal", KindOf(plain))
	}
	if IsRetryable(plain) {
		t.Error("plain error must not be retryable")
	}
}

func TestAddressForNetwork(t *testing.T) {
	a := Address{Main: "bc1qmain", Test: "tb1qtest"}
	if got := a.ForNetwork(chain.NetworkMain); got != "bc1qmain" {
		t.Errorf("ForNetwork(main) = %s", got)
	}
	if got := a.ForNetwork(chain.NetworkTest); got != "tb1qtest" {
		t.Errorf("ForNetwork(test) = %s", got)
	}
}
