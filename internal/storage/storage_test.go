package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opencustody/vaultd/internal/chain"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	tmpDir := t.TempDir()

	store, err := New(&Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testWallet(userID string, isDefault bool) *Wallet {
	return &Wallet{
		ID:              uuid.NewString(),
		UserID:          userID,
		Kind:            WalletKindMulti,
		EncryptedSecret: []byte("sealed-envelope"),
		NetworkKind:     "main",
		FiatCurrency:    "USD",
		IsDefault:       isDefault,
		StreamTag:       uuid.NewString(),
		CreatedAt:       time.Now(),
	}
}

func testAsset(w *Wallet, chainKey, tokenAssetID string) *WalletAsset {
	return &WalletAsset{
		ID:            uuid.NewString(),
		UserID:        w.UserID,
		WalletID:      w.ID,
		BlockchainKey: chainKey,
		TokenAssetID:  tokenAssetID,
		AddressMain:   "addr-main-" + chainKey,
		AddressTest:   "addr-test-" + chainKey,
		AddressQR:     "scheme:addr-main-" + chainKey,
		Balance:       decimal.Zero,
		NetworkKind:   "main",
		CreatedAt:     time.Now(),
	}
}

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := New(&Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(filepath.Join(tmpDir, "vaultd.db")); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if store.DB() == nil {
		t.Error("DB() returned nil")
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := expandPath("~/.vaultd"); got != filepath.Join(home, ".vaultd") {
		t.Errorf("expandPath(~/.vaultd) = %s", got)
	}
	if got := expandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("expandPath(/abs/path) = %s", got)
	}
}

func TestProvisionWalletAndRead(t *testing.T) {
	store := newTestStorage(t)

	w := testWallet("user-1", true)
	assets := []*WalletAsset{
		testAsset(w, "ETH", "asset-eth"),
		testAsset(w, "BTC", "asset-btc"),
	}
	if err := store.ProvisionWallet(w, assets); err != nil {
		t.Fatalf("ProvisionWallet() error = %v", err)
	}

	got, err := store.GetWallet(w.ID)
	if err != nil {
		t.Fatalf("GetWallet() error = %v", err)
	}
	if !got.IsDefault || got.UserID != "user-1" {
		t.Errorf("wallet = %+v", got)
	}
	if string(got.EncryptedSecret) != "sealed-envelope" {
		t.Error("encrypted secret did not round-trip")
	}

	rows, err := store.WalletAssetsByWallet(w.ID)
	if err != nil {
		t.Fatalf("WalletAssetsByWallet() error = %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("asset rows = %d, want 2", len(rows))
	}
}

func TestProvisionWalletAtomicity(t *testing.T) {
	store := newTestStorage(t)

	w := testWallet("user-1", true)
	dup := testAsset(w, "ETH", "asset-eth")
	// Same (wallet, token asset) twice violates the unique constraint on
	// the second insert; the whole provisioning must roll back.
	if err := store.ProvisionWallet(w, []*WalletAsset{testAsset(w, "ETH", "asset-eth"), dup}); err == nil {
		t.Fatal("expected constraint violation")
	}

	if _, err := store.GetWallet(w.ID); err != ErrWalletNotFound {
		t.Errorf("after failed provisioning, GetWallet error = %v, want ErrWalletNotFound", err)
	}
	rows, err := store.WalletAssetsByWallet(w.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("asset rows after rollback = %d, want 0", len(rows))
	}
}

func TestExactlyOneDefaultWallet(t *testing.T) {
	store := newTestStorage(t)

	first := testWallet("user-1", true)
	if err := store.ProvisionWallet(first, nil); err != nil {
		t.Fatal(err)
	}
	second := testWallet("user-1", true)
	if err := store.ProvisionWallet(second, nil); err != nil {
		t.Fatal(err)
	}

	def, err := store.DefaultWallet("user-1")
	if err != nil {
		t.Fatalf("DefaultWallet() error = %v", err)
	}
	if def.ID != second.ID {
		t.Errorf("default = %s, want the newest wallet %s", def.ID, second.ID)
	}

	wallets, err := store.WalletsByUser("user-1")
	if err != nil {
		t.Fatal(err)
	}
	defaults := 0
	for _, w := range wallets {
		if w.IsDefault {
			defaults++
		}
	}
	if defaults != 1 {
		t.Errorf("default wallets = %d, want exactly 1", defaults)
	}
}

func TestSetDefaultWallet(t *testing.T) {
	store := newTestStorage(t)

	first := testWallet("user-1", true)
	second := testWallet("user-1", false)
	if err := store.ProvisionWallet(first, nil); err != nil {
		t.Fatal(err)
	}
	if err := store.ProvisionWallet(second, nil); err != nil {
		t.Fatal(err)
	}

	if err := store.SetDefaultWallet("user-1", second.ID); err != nil {
		t.Fatalf("SetDefaultWallet() error = %v", err)
	}

	def, err := store.DefaultWallet("user-1")
	if err != nil {
		t.Fatal(err)
	}
	if def.ID != second.ID {
		t.Errorf("default = %s, want %s", def.ID, second.ID)
	}

	// A wallet belonging to another user is invisible here.
	if err := store.SetDefaultWallet("user-2", second.ID); err != ErrWalletNotFound {
		t.Errorf("cross-user SetDefaultWallet error = %v, want ErrWalletNotFound", err)
	}
}

func TestDuplicateStreamTagRejected(t *testing.T) {
	store := newTestStorage(t)

	first := testWallet("user-1", true)
	if err := store.ProvisionWallet(first, nil); err != nil {
		t.Fatal(err)
	}

	clash := testWallet("user-2", true)
	clash.StreamTag = first.StreamTag
	if err := store.ProvisionWallet(clash, nil); !errors.Is(err, ErrDuplicateStreamTag) {
		t.Errorf("duplicate tag error = %v, want ErrDuplicateStreamTag", err)
	}
	if _, err := store.GetWallet(clash.ID); err != ErrWalletNotFound {
		t.Errorf("clashing wallet should not persist, got %v", err)
	}
}

func TestWalletByStreamTag(t *testing.T) {
	store := newTestStorage(t)

	w := testWallet("user-1", true)
	if err := store.ProvisionWallet(w, nil); err != nil {
		t.Fatal(err)
	}

	got, err := store.WalletByStreamTag(w.StreamTag)
	if err != nil {
		t.Fatalf("WalletByStreamTag() error = %v", err)
	}
	if got.ID != w.ID {
		t.Errorf("resolved wallet = %s, want %s", got.ID, w.ID)
	}

	if _, err := store.WalletByStreamTag("no-such-tag"); err != ErrWalletNotFound {
		t.Errorf("unknown tag error = %v, want ErrWalletNotFound", err)
	}
}

func TestFindOrCreateWalletAsset(t *testing.T) {
	store := newTestStorage(t)

	w := testWallet("user-1", true)
	if err := store.ProvisionWallet(w, nil); err != nil {
		t.Fatal(err)
	}

	a := testAsset(w, "ETH", "asset-usdt")
	created, err := store.FindOrCreateWalletAsset(a)
	if err != nil {
		t.Fatalf("FindOrCreateWalletAsset() error = %v", err)
	}

	// Second call with a different candidate ID returns the original row.
	again := testAsset(w, "ETH", "asset-usdt")
	found, err := store.FindOrCreateWalletAsset(again)
	if err != nil {
		t.Fatal(err)
	}
	if found.ID != created.ID {
		t.Errorf("second call created a new row: %s != %s", found.ID, created.ID)
	}
}

func TestUpdateWalletAssetBalance(t *testing.T) {
	store := newTestStorage(t)

	w := testWallet("user-1", true)
	a := testAsset(w, "ETH", "asset-eth")
	if err := store.ProvisionWallet(w, []*WalletAsset{a}); err != nil {
		t.Fatal(err)
	}

	balance := decimal.RequireFromString("1.2345")
	if err := store.UpdateWalletAssetBalance(a.ID, balance); err != nil {
		t.Fatalf("UpdateWalletAssetBalance() error = %v", err)
	}

	got, err := store.WalletAssetByID(a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Balance.Equal(balance) {
		t.Errorf("balance = %s, want 1.2345", got.Balance)
	}

	if err := store.UpdateWalletAssetBalance("missing", balance); err != ErrWalletAssetNotFound {
		t.Errorf("missing row error = %v, want ErrWalletAssetNotFound", err)
	}
}

func TestUpsertTransactionIdempotent(t *testing.T) {
	store := newTestStorage(t)

	w := testWallet("user-1", true)
	if err := store.ProvisionWallet(w, nil); err != nil {
		t.Fatal(err)
	}

	tx := &Transaction{
		ID:            uuid.NewString(),
		UserID:        w.UserID,
		WalletID:      w.ID,
		BlockchainKey: "ETH",
		TokenAssetID:  "asset-eth",
		FromAddr:      "0xsender",
		ToAddr:        "0xreceiver",
		TxHash:        "0xhash1",
		Amount:        decimal.RequireFromString("0.5"),
		Direction:     DirectionCredit,
		Status:        "pending",
		Source:        SourceExplorer,
		BlockHeight:   0,
		Timestamp:     time.Now(),
	}
	if err := store.UpsertTransaction(tx); err != nil {
		t.Fatalf("UpsertTransaction() error = %v", err)
	}

	// The same hash arriving again, now confirmed and via the stream path,
	// updates in place.
	update := *tx
	update.ID = uuid.NewString()
	update.Status = "success"
	update.BlockHeight = 19_000_000
	update.Source = SourceStream
	if err := store.UpsertTransaction(&update); err != nil {
		t.Fatal(err)
	}

	if n, err := store.CountTransactions(w.ID); err != nil || n != 1 {
		t.Errorf("CountTransactions() = %d, %v; want 1 row", n, err)
	}

	got, err := store.TransactionByHash("0xhash1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "success" || got.BlockHeight != 19_000_000 {
		t.Errorf("updated row = status %s, block %d", got.Status, got.BlockHeight)
	}
	if got.ID != tx.ID {
		t.Error("original row ID should survive the upsert")
	}
}

func TestTransactionsByWalletPagination(t *testing.T) {
	store := newTestStorage(t)

	w := testWallet("user-1", true)
	if err := store.ProvisionWallet(w, nil); err != nil {
		t.Fatal(err)
	}

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		tx := &Transaction{
			ID:            uuid.NewString(),
			UserID:        w.UserID,
			WalletID:      w.ID,
			BlockchainKey: "ETH",
			FromAddr:      "0xa",
			ToAddr:        "0xb",
			TxHash:        uuid.NewString(),
			Amount:        decimal.New(int64(i), 0),
			Direction:     DirectionDebit,
			Status:        "success",
			Source:        SourceExplorer,
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.UpsertTransaction(tx); err != nil {
			t.Fatal(err)
		}
	}

	page, err := store.TransactionsByWallet(w.ID, 2, 0)
	if err != nil {
		t.Fatalf("TransactionsByWallet() error = %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("page size = %d, want 2", len(page))
	}
	// Newest first.
	if !page[0].Amount.Equal(decimal.New(4, 0)) {
		t.Errorf("first row amount = %s, want the newest (4)", page[0].Amount)
	}

	rest, err := store.TransactionsByWallet(w.ID, 10, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 3 {
		t.Errorf("offset page size = %d, want 3", len(rest))
	}
}

func TestLastSeenBlock(t *testing.T) {
	store := newTestStorage(t)

	w := testWallet("user-1", true)
	if err := store.ProvisionWallet(w, nil); err != nil {
		t.Fatal(err)
	}

	if h, err := store.LastSeenBlock("ETH"); err != nil || h != 0 {
		t.Errorf("empty table LastSeenBlock = %d, %v; want 0", h, err)
	}

	for _, height := range []uint64{100, 300, 200} {
		tx := &Transaction{
			ID: uuid.NewString(), UserID: w.UserID, WalletID: w.ID,
			BlockchainKey: "ETH", FromAddr: "0xa", ToAddr: "0xb",
			TxHash: uuid.NewString(), Amount: decimal.Zero,
			Direction: DirectionCredit, Status: "success",
			Source: SourceExplorer, BlockHeight: height, Timestamp: time.Now(),
		}
		if err := store.UpsertTransaction(tx); err != nil {
			t.Fatal(err)
		}
	}

	if h, err := store.LastSeenBlock("ETH"); err != nil || h != 300 {
		t.Errorf("LastSeenBlock = %d, %v; want 300", h, err)
	}
}

func TestFindOrCreateTokenAsset(t *testing.T) {
	store := newTestStorage(t)

	set, err := chain.DefaultSet()
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SeedChains(set); err != nil {
		t.Fatal(err)
	}

	token := &chain.TokenAsset{
		ID:              uuid.NewString(),
		BlockchainKey:   "ETH",
		Symbol:          "LINK",
		Name:            "Chainlink",
		Decimals:        18,
		Kind:            chain.CoinERC20,
		ContractAddress: "0x514910771AF9Ca656af840dff83E8264EcF986CA",
	}
	created, err := store.FindOrCreateTokenAsset(token)
	if err != nil {
		t.Fatalf("FindOrCreateTokenAsset() error = %v", err)
	}
	if created.ID != token.ID {
		t.Errorf("fresh token ID = %s, want %s", created.ID, token.ID)
	}

	// Same contract in a different case, different candidate ID and symbol:
	// the registered token wins.
	dup := &chain.TokenAsset{
		ID:              uuid.NewString(),
		BlockchainKey:   "ETH",
		Symbol:          "CHAINLINK",
		Decimals:        18,
		Kind:            chain.CoinERC20,
		ContractAddress: "0x514910771af9ca656af840dff83e8264ecf986ca",
	}
	found, err := store.FindOrCreateTokenAsset(dup)
	if err != nil {
		t.Fatal(err)
	}
	if found.ID != created.ID || found.Symbol != "LINK" {
		t.Errorf("second call = %+v, want the original registration", found)
	}

	// A builtin token resolves by contract too.
	usdt, err := store.TokenAssetByContract("ETH", "0xdac17f958d2ee523a2206206994597c13d831ec7")
	if err != nil {
		t.Fatalf("TokenAssetByContract() error = %v", err)
	}
	if usdt.ID != "eth-usdt" {
		t.Errorf("resolved token = %s, want eth-usdt", usdt.ID)
	}

	native := &chain.TokenAsset{ID: uuid.NewString(), BlockchainKey: "ETH", Symbol: "ETH2"}
	if _, err := store.FindOrCreateTokenAsset(native); err == nil {
		t.Error("token without a contract address should be rejected")
	}
}

func TestSeedChainsIdempotent(t *testing.T) {
	store := newTestStorage(t)

	set, err := chain.DefaultSet()
	if err != nil {
		t.Fatal(err)
	}

	if err := store.SeedChains(set); err != nil {
		t.Fatalf("SeedChains() error = %v", err)
	}
	if err := store.SeedChains(set); err != nil {
		t.Fatalf("second SeedChains() error = %v", err)
	}

	assets, err := store.TokenAssetsByChain("ETH")
	if err != nil {
		t.Fatal(err)
	}
	if len(assets) < 2 {
		t.Errorf("ETH assets = %d, want native plus contract tokens", len(assets))
	}
	if !assets[0].IsLayerOne {
		t.Error("first asset should be the layer-one coin")
	}

	got, err := store.TokenAsset(assets[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Symbol != assets[0].Symbol {
		t.Errorf("TokenAsset round trip: %s != %s", got.Symbol, assets[0].Symbol)
	}
}
