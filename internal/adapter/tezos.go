package adapter

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"

	"github.com/opencustody/vaultd/internal/chain"
	"github.com/opencustody/vaultd/internal/fees"
	"github.com/opencustody/vaultd/internal/keyring"
	"github.com/opencustody/vaultd/internal/provider"
	"github.com/opencustody/vaultd/pkg/helpers"
	"github.com/opencustody/vaultd/pkg/logging"
)

// Gas and storage ceilings for simple tz1 transfers. Generous enough to
// cover destination account allocation.
const (
	xtzTransferGasLimit = "1900"
	xtzStorageLimit     = "300"
	xtzRevealGasLimit   = "1000"
	xtzRevealFee        = "400"
)

// Watermark prepended to operation bytes before signing.
var xtzGenericWatermark = []byte{0x03}

// TezosAdapter serves the Tezos chain through the node RPC plus the TzKT
// indexer for history.
type TezosAdapter struct {
	blockchain *chain.Blockchain
	network    chain.NetworkKind
	client     *provider.TezosClient
	oracle     *fees.Oracle
	log        *logging.Logger
}

// NewTezosAdapter builds the Tezos adapter bound to one network.
func NewTezosAdapter(b *chain.Blockchain, network chain.NetworkKind, client *provider.TezosClient, oracle *fees.Oracle, log *logging.Logger) *TezosAdapter {
	return &TezosAdapter{
		blockchain: b,
		network:    network,
		client:     client,
		oracle:     oracle,
		log:        log.Component("adapter.xtz"),
	}
}

func (a *TezosAdapter) Identify() string {
	return a.blockchain.Key
}

func (a *TezosAdapter) DeriveAddress(ctx context.Context, mnemonic string) (Address, error) {
	k, err := keyring.New(mnemonic)
	if err != nil {
		return Address{}, Terminalf("xtz.DeriveAddress", err, "invalid mnemonic")
	}
	defer k.Zero()

	addr, err := k.TezosAddress(a.blockchain)
	if err != nil {
		return Address{}, Terminalf("xtz.DeriveAddress", err, "derivation failed")
	}
	// tz1 addresses are identical on mainnet and ghostnet.
	return Address{Main: addr, Test: addr}, nil
}

func (a *TezosAdapter) GetBalance(ctx context.Context, address string, asset *chain.TokenAsset) (decimal.Decimal, error) {
	if asset.IsContract() {
		return decimal.Zero, Terminalf("xtz.GetBalance", nil, "FA token balances are not supported")
	}
	if !keyring.ValidateTezosAddress(address) {
		return decimal.Zero, Terminalf("xtz.GetBalance", nil, "invalid address %q", address)
	}

	mutez, err := a.client.Balance(ctx, address)
	if err != nil {
		return decimal.Zero, wrapProviderErr("xtz.GetBalance", err)
	}
	return helpers.FromBaseUnits(mutez, a.blockchain.Decimals), nil
}

func (a *TezosAdapter) BuildAndSubmit(ctx context.Context, p SubmitParams) (*Receipt, error) {
	if p.Asset.IsContract() {
		return nil, Terminalf("xtz.BuildAndSubmit", nil, "FA token transfers are not supported")
	}
	if !keyring.ValidateTezosAddress(p.To) {
		return nil, Terminalf("xtz.BuildAndSubmit", nil, "invalid destination %q", p.To)
	}

	k, err := keyring.New(p.Mnemonic)
	if err != nil {
		return nil, Terminalf("xtz.BuildAndSubmit", err, "invalid mnemonic")
	}
	defer k.Zero()

	priv, err := k.Ed25519Key(a.blockchain)
	if err != nil {
		return nil, Terminalf("xtz.BuildAndSubmit", err, "key derivation failed")
	}

	params, err := a.oracle.Resolve(ctx, chain.FamilyTezos, p.Speed, 0)
	if err != nil {
		return nil, Retryablef("xtz.BuildAndSubmit", err, "fee resolution failed")
	}
	fee := params.Scalar

	branch, err := a.client.HeadBlockHash(ctx)
	if err != nil {
		return nil, wrapProviderErr("xtz.BuildAndSubmit", err)
	}
	counter, err := a.client.Counter(ctx, p.From)
	if err != nil {
		return nil, wrapProviderErr("xtz.BuildAndSubmit", err)
	}

	mutez := helpers.ToBaseUnits(p.Amount, a.blockchain.Decimals)

	var contents []map[string]interface{}

	// First outgoing operation from a fresh account must reveal its key.
	managerKey, err := a.client.ManagerKey(ctx, p.From)
	if err != nil {
		return nil, wrapProviderErr("xtz.BuildAndSubmit", err)
	}
	if managerKey == "" {
		pubKey, err := k.TezosPublicKey(a.blockchain)
		if err != nil {
			return nil, Terminalf("xtz.BuildAndSubmit", err, "public key encoding failed")
		}
		counter++
		contents = append(contents, map[string]interface{}{
			"kind":          "reveal",
			"source":        p.From,
			"fee":           xtzRevealFee,
			"counter":       strconv.FormatUint(counter, 10),
			"gas_limit":     xtzRevealGasLimit,
			"storage_limit": "0",
			"public_key":    pubKey,
		})
	}

	counter++
	contents = append(contents, map[string]interface{}{
		"kind":          "transaction",
		"source":        p.From,
		"fee":           fee.String(),
		"counter":       strconv.FormatUint(counter, 10),
		"gas_limit":     xtzTransferGasLimit,
		"storage_limit": xtzStorageLimit,
		"amount":        mutez.String(),
		"destination":   p.To,
	})

	forged, err := a.client.ForgeOperation(ctx, branch, contents)
	if err != nil {
		return nil, wrapProviderErr("xtz.BuildAndSubmit", err)
	}

	signedHex, err := signTezosOperation(priv, forged)
	if err != nil {
		return nil, Terminalf("xtz.BuildAndSubmit", err, "signing failed")
	}

	opHash, err := a.client.InjectOperation(ctx, signedHex)
	if err != nil {
		return nil, Retryablef("xtz.BuildAndSubmit", err, "injection failed")
	}

	a.log.Info("operation injected",
		"chain", a.blockchain.Key, "hash", opHash, "ops", len(contents), "tier", p.Speed)

	return &Receipt{
		TxHash:   opHash,
		TotalFee: helpers.FromBaseUnits(fee, a.blockchain.Decimals),
	}, nil
}

// signTezosOperation signs the forged bytes under the generic watermark and
// returns forged||signature hex, ready for injection.
func signTezosOperation(priv ed25519.PrivateKey, forgedHex string) (string, error) {
	forged, err := hex.DecodeString(forgedHex)
	if err != nil {
		return "", fmt.Errorf("invalid forged bytes: %w", err)
	}

	payload := append(append([]byte{}, xtzGenericWatermark...), forged...)
	digest := blake2b.Sum256(payload)
	signature := ed25519.Sign(priv, digest[:])

	return forgedHex + hex.EncodeToString(signature), nil
}

func (a *TezosAdapter) FetchHistory(ctx context.Context, address string, sinceBlock uint64) ([]Transfer, error) {
	ops, err := a.client.AccountOperations(ctx, address, sinceBlock)
	if err != nil {
		return nil, wrapProviderErr("xtz.FetchHistory", err)
	}

	transfers := make([]Transfer, 0, len(ops))
	for _, op := range ops {
		transfers = append(transfers, a.convertOp(op))
	}
	return transfers, nil
}

func (a *TezosAdapter) convertOp(op provider.TzktOperation) Transfer {
	status := StatusSuccess
	if op.Status != "applied" {
		status = StatusFailed
	}
	var ts time.Time
	if t, err := time.Parse(time.RFC3339, op.Timestamp); err == nil {
		ts = t.UTC()
	}
	raw, _ := json.Marshal(op)

	return Transfer{
		Hash:   op.Hash,
		From:   op.Sender.Address,
		To:     op.Target.Address,
		Amount: helpers.FromBaseUnits(new(big.Int).SetUint64(op.Amount), a.blockchain.Decimals),
		Status: status,
		Block:  op.Level,
		Time:   ts,
		Raw:    raw,
	}
}

var _ Adapter = (*TezosAdapter)(nil)
