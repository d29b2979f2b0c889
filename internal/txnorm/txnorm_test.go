package txnorm

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opencustody/vaultd/internal/adapter"
	"github.com/opencustody/vaultd/internal/chain"
	"github.com/opencustody/vaultd/internal/storage"
	"github.com/opencustody/vaultd/pkg/logging"
)

type harness struct {
	set    *chain.Set
	store  *storage.Storage
	norm   *Normalizer
	wallet *storage.Wallet
	asset  *storage.WalletAsset
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store, err := storage.New(&storage.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	set, err := chain.DefaultSet()
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SeedChains(set); err != nil {
		t.Fatal(err)
	}

	wallet := &storage.Wallet{
		ID:              uuid.NewString(),
		UserID:          "user-1",
		Kind:            storage.WalletKindMulti,
		EncryptedSecret: []byte("sealed"),
		NetworkKind:     "main",
		FiatCurrency:    "USD",
		IsDefault:       true,
		StreamTag:       "tag-1",
		CreatedAt:       time.Now(),
	}
	asset := &storage.WalletAsset{
		ID:            uuid.NewString(),
		UserID:        wallet.UserID,
		WalletID:      wallet.ID,
		BlockchainKey: "ETH",
		TokenAssetID:  "native-ETH",
		AddressMain:   "0xAbCd000000000000000000000000000000001234",
		AddressTest:   "0xAbCd000000000000000000000000000000001234",
		NetworkKind:   "main",
		CreatedAt:     time.Now(),
	}
	if err := store.ProvisionWallet(wallet, []*storage.WalletAsset{asset}); err != nil {
		t.Fatal(err)
	}

	return &harness{
		set:    set,
		store:  store,
		norm:   NewNormalizer(set, store, logging.Default()),
		wallet: wallet,
		asset:  asset,
	}
}

func transfer(hash, from, to string) adapter.Transfer {
	return adapter.Transfer{
		Hash:   hash,
		From:   from,
		To:     to,
		Amount: decimal.RequireFromString("1.5"),
		Status: adapter.StatusSuccess,
		Block:  100,
		Time:   time.Unix(1700000000, 0),
	}
}

func TestNormalizeDirection(t *testing.T) {
	h := newHarness(t)

	// Sender matches our address in a different casing: debit.
	out := h.norm.Normalize(h.asset, transfer("0xh1", "0xABCD000000000000000000000000000000001234", "0xother"), storage.SourceExplorer)
	if out.Direction != storage.DirectionDebit {
		t.Errorf("direction = %s, want debit", out.Direction)
	}

	// Anyone else sending to us: credit.
	out = h.norm.Normalize(h.asset, transfer("0xh2", "0xother", h.asset.AddressMain), storage.SourceExplorer)
	if out.Direction != storage.DirectionCredit {
		t.Errorf("direction = %s, want credit", out.Direction)
	}
}

func TestNormalizeResolvesContractToken(t *testing.T) {
	h := newHarness(t)

	tr := transfer("0xh3", "0xother", h.asset.AddressMain)
	tr.Contract = "0xdac17f958d2ee523a2206206994597c13d831ec7" // USDT, lowercased
	out := h.norm.Normalize(h.asset, tr, storage.SourceExplorer)
	if out.TokenAssetID != "eth-usdt" {
		t.Errorf("token asset = %s, want eth-usdt", out.TokenAssetID)
	}

	// Unregistered contracts fall back to the asset's own token.
	tr.Contract = "0x0000000000000000000000000000000000000bad"
	out = h.norm.Normalize(h.asset, tr, storage.SourceExplorer)
	if out.TokenAssetID != h.asset.TokenAssetID {
		t.Errorf("token asset = %s, want fallback %s", out.TokenAssetID, h.asset.TokenAssetID)
	}
}

func TestIngestPathsConvergeOnHash(t *testing.T) {
	h := newHarness(t)

	// Explorer sees the transfer first, still pending.
	tr := transfer("0xdup", "0xother", h.asset.AddressMain)
	tr.Status = adapter.StatusPending
	tr.Block = 0
	if err := h.norm.Ingest(h.asset, tr, storage.SourceExplorer); err != nil {
		t.Fatal(err)
	}

	// The stream delivers the same hash confirmed.
	tr.Status = adapter.StatusSuccess
	tr.Block = 120
	if err := h.norm.Ingest(h.asset, tr, storage.SourceStream); err != nil {
		t.Fatal(err)
	}

	if n, err := h.store.CountTransactions(h.wallet.ID); err != nil || n != 1 {
		t.Fatalf("rows = %d, %v; want exactly 1", n, err)
	}
	row, err := h.store.TransactionByHash("0xdup")
	if err != nil {
		t.Fatal(err)
	}
	if row.Status != string(adapter.StatusSuccess) || row.BlockHeight != 120 {
		t.Errorf("row = status %s, block %d; want confirmed state", row.Status, row.BlockHeight)
	}
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	h := newHarness(t)

	d := NewDispatcher(h.norm, 8, logging.Default())
	for i := 0; i < 5; i++ {
		tr := transfer("0xq"+string(rune('a'+i)), "0xother", h.asset.AddressMain)
		d.Enqueue(h.asset, tr, storage.SourceStream)
	}
	d.Close()

	if n, err := h.store.CountTransactions(h.wallet.ID); err != nil || n != 5 {
		t.Errorf("rows after drain = %d, %v; want 5", n, err)
	}
}

func TestWebhookHandler(t *testing.T) {
	h := newHarness(t)

	d := NewDispatcher(h.norm, 8, logging.Default())
	ing := NewIngestor(h.set, h.store, d, logging.Default())
	srv := httptest.NewServer(ing.Handler())
	defer srv.Close()

	payload := StreamPayload{
		ChainID: "ETH",
		Block:   200,
		Tag:     "tag-1",
		Txs: []StreamTransaction{
			{Hash: "0xw1", From: "0xother", To: h.asset.AddressMain, Amount: "0.25", Status: "confirmed", Timestamp: 1700000000},
			{Hash: "0xw2", From: h.asset.AddressMain, To: "0xother", Amount: "0.10", Status: "pending"},
			{Hash: "0xw3", From: "0xother", To: h.asset.AddressMain, Amount: "not-a-number"},
		},
	}
	body, _ := json.Marshal(payload)

	resp, err := http.Post(srv.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var ack map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatal(err)
	}
	if ack["accepted"] != 2 {
		t.Errorf("accepted = %d, want 2 (malformed amount skipped)", ack["accepted"])
	}

	d.Close()

	credit, err := h.store.TransactionByHash("0xw1")
	if err != nil {
		t.Fatal(err)
	}
	if credit.Direction != storage.DirectionCredit || credit.Status != "success" {
		t.Errorf("credit row = %+v", credit)
	}
	if credit.Source != storage.SourceStream {
		t.Errorf("source = %s, want stream", credit.Source)
	}

	debit, err := h.store.TransactionByHash("0xw2")
	if err != nil {
		t.Fatal(err)
	}
	if debit.Direction != storage.DirectionDebit || debit.Status != "pending" {
		t.Errorf("debit row = %+v", debit)
	}
	if debit.BlockHeight != 200 {
		t.Errorf("block = %d, want the batch block", debit.BlockHeight)
	}
}

func TestWebhookUnknownTagAcked(t *testing.T) {
	h := newHarness(t)

	d := NewDispatcher(h.norm, 8, logging.Default())
	defer d.Close()
	ing := NewIngestor(h.set, h.store, d, logging.Default())
	srv := httptest.NewServer(ing.Handler())
	defer srv.Close()

	body, _ := json.Marshal(StreamPayload{ChainID: "ETH", Tag: "never-registered",
		Txs: []StreamTransaction{{Hash: "0x1", Amount: "1"}}})
	resp, err := http.Post(srv.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	// Acked so the provider does not retry a batch we can never place.
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	var ack map[string]int
	json.NewDecoder(resp.Body).Decode(&ack)
	if ack["accepted"] != 0 {
		t.Errorf("accepted = %d, want 0", ack["accepted"])
	}
}

func TestWebhookRejectsBadRequests(t *testing.T) {
	h := newHarness(t)

	d := NewDispatcher(h.norm, 8, logging.Default())
	defer d.Close()
	ing := NewIngestor(h.set, h.store, d, logging.Default())
	srv := httptest.NewServer(ing.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL, "application/json", bytes.NewReader([]byte("{broken")))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", resp.StatusCode)
	}
}

func TestPollerIngestsSinceCursor(t *testing.T) {
	h := newHarness(t)

	fake := &pollAdapter{key: "ETH", transfers: []adapter.Transfer{
		transfer("0xp1", "0xother", h.asset.AddressMain),
	}}
	registry, err := adapter.NewRegistry(fake)
	if err != nil {
		t.Fatal(err)
	}

	p := NewPoller(registry, h.store, h.norm, time.Minute, logging.Default())
	p.PollOnce(t.Context())

	if n, _ := h.store.CountTransactions(h.wallet.ID); n != 1 {
		t.Fatalf("rows after poll = %d, want 1", n)
	}
	if fake.lastSince != 0 {
		t.Errorf("first sweep cursor = %d, want 0", fake.lastSince)
	}

	// The ingested block advances the cursor for the next sweep.
	p.PollOnce(t.Context())
	if fake.lastSince != 100 {
		t.Errorf("second sweep cursor = %d, want 100", fake.lastSince)
	}
}

type pollAdapter struct {
	key       string
	transfers []adapter.Transfer
	lastSince uint64
}

func (f *pollAdapter) Identify() string { return f.key }

func (f *pollAdapter) DeriveAddress(context.Context, string) (adapter.Address, error) {
	return adapter.Address{}, nil
}

func (f *pollAdapter) GetBalance(context.Context, string, *chain.TokenAsset) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (f *pollAdapter) BuildAndSubmit(context.Context, adapter.SubmitParams) (*adapter.Receipt, error) {
	return nil, nil
}

func (f *pollAdapter) FetchHistory(_ context.Context, _ string, sinceBlock uint64) ([]adapter.Transfer, error) {
	f.lastSince = sinceBlock
	return f.transfers, nil
}
