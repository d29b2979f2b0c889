package adapter

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/shopspring/decimal"

	"github.com/opencustody/vaultd/internal/chain"
	"github.com/opencustody/vaultd/internal/fees"
	"github.com/opencustody/vaultd/internal/keyring"
	"github.com/opencustody/vaultd/internal/provider"
	"github.com/opencustody/vaultd/pkg/helpers"
	"github.com/opencustody/vaultd/pkg/logging"
)

// Dust threshold below which change is burned as extra fee.
const dustThreshold = uint64(546)

// Estimated vsizes for fee math. Inputs assume the wallet's own address
// type; outputs assume the common case.
const (
	vsizeOverhead     = 10
	vsizeInputSegWit  = 68
	vsizeInputLegacy  = 148
	vsizeOutputSegWit = 31
	vsizeOutputLegacy = 34
)

// UTXOAdapter serves one Bitcoin-family chain (BTC, LTC, DOGE) through an
// esplora-compatible explorer API.
type UTXOAdapter struct {
	blockchain *chain.Blockchain
	network    chain.NetworkKind
	client     *provider.EsploraClient
	oracle     *fees.Oracle
	log        *logging.Logger
}

// NewUTXOAdapter builds an adapter for one UTXO chain bound to one network.
func NewUTXOAdapter(b *chain.Blockchain, network chain.NetworkKind, client *provider.EsploraClient, oracle *fees.Oracle, log *logging.Logger) *UTXOAdapter {
	return &UTXOAdapter{
		blockchain: b,
		network:    network,
		client:     client,
		oracle:     oracle,
		log:        log.Component("adapter." + strings.ToLower(b.Key)),
	}
}

func (a *UTXOAdapter) Identify() string {
	return a.blockchain.Key
}

func (a *UTXOAdapter) netParams() chain.UTXONetParams {
	if a.network == chain.NetworkTest {
		return a.blockchain.UTXO.Test
	}
	return a.blockchain.UTXO.Main
}

func (a *UTXOAdapter) DeriveAddress(ctx context.Context, mnemonic string) (Address, error) {
	k, err := keyring.New(mnemonic)
	if err != nil {
		return Address{}, Terminalf("utxo.DeriveAddress", err, "invalid mnemonic")
	}
	defer k.Zero()

	main, test, err := k.UTXOAddresses(a.blockchain)
	if err != nil {
		return Address{}, Terminalf("utxo.DeriveAddress", err, "derivation failed")
	}
	return Address{Main: main, Test: test}, nil
}

func (a *UTXOAdapter) GetBalance(ctx context.Context, address string, asset *chain.TokenAsset) (decimal.Decimal, error) {
	if asset.IsContract() {
		return decimal.Zero, Terminalf("utxo.GetBalance", nil, "chain %s has no contract assets", a.blockchain.Key)
	}
	if !keyring.ValidateUTXOAddress(address, a.netParams()) {
		return decimal.Zero, Terminalf("utxo.GetBalance", nil, "invalid address %q", address)
	}

	sats, err := a.client.Balance(ctx, address)
	if err != nil {
		return decimal.Zero, wrapProviderErr("utxo.GetBalance", err)
	}
	return helpers.FromBaseUnits(new(big.Int).SetUint64(sats), a.blockchain.Decimals), nil
}

func (a *UTXOAdapter) BuildAndSubmit(ctx context.Context, p SubmitParams) (*Receipt, error) {
	if p.Asset.IsContract() {
		return nil, Terminalf("utxo.BuildAndSubmit", nil, "chain %s has no contract assets", a.blockchain.Key)
	}
	net := a.netParams()
	if !keyring.ValidateUTXOAddress(p.To, net) {
		return nil, Terminalf("utxo.BuildAndSubmit", nil, "invalid destination %q", p.To)
	}

	k, err := keyring.New(p.Mnemonic)
	if err != nil {
		return nil, Terminalf("utxo.BuildAndSubmit", err, "invalid mnemonic")
	}
	defer k.Zero()

	priv, err := k.SecpKey(a.blockchain)
	if err != nil {
		return nil, Terminalf("utxo.BuildAndSubmit", err, "key derivation failed")
	}

	params, err := a.oracle.Resolve(ctx, chain.FamilyUTXO, p.Speed, 0)
	if err != nil {
		return nil, Retryablef("utxo.BuildAndSubmit", err, "fee resolution failed")
	}
	feeRate := params.Scalar.Uint64()

	utxos, err := a.client.UTXOs(ctx, p.From)
	if err != nil {
		return nil, wrapProviderErr("utxo.BuildAndSubmit", err)
	}
	if len(utxos) == 0 {
		return nil, Terminalf("utxo.BuildAndSubmit", nil, "no spendable outputs for %s", p.From)
	}

	amount := helpers.ToBaseUnits(p.Amount, a.blockchain.Decimals).Uint64()
	selected, totalIn, fee, err := a.selectUTXOs(utxos, amount, feeRate)
	if err != nil {
		return nil, Terminalf("utxo.BuildAndSubmit", err, "coin selection failed")
	}

	rawHex, err := a.buildSignedTx(priv, selected, p.From, p.To, amount, totalIn, fee, net)
	if err != nil {
		return nil, Terminalf("utxo.BuildAndSubmit", err, "transaction build failed")
	}

	txid, err := a.client.Broadcast(ctx, rawHex)
	if err != nil {
		return nil, Retryablef("utxo.BuildAndSubmit", err, "broadcast failed")
	}

	a.log.Info("transaction submitted",
		"chain", a.blockchain.Key, "txid", txid, "inputs", len(selected), "tier", p.Speed)

	return &Receipt{
		TxHash:   txid,
		TotalFee: helpers.FromBaseUnits(new(big.Int).SetUint64(fee), a.blockchain.Decimals),
	}, nil
}

// selectUTXOs greedily picks the largest outputs until amount plus fee is
// covered. Returns the selection, its total, and the final fee.
func (a *UTXOAdapter) selectUTXOs(utxos []provider.UTXO, amount, feeRate uint64) ([]provider.UTXO, uint64, uint64, error) {
	sorted := make([]provider.UTXO, len(utxos))
	copy(sorted, utxos)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Value > sorted[j].Value })

	inputSize := uint64(vsizeInputSegWit)
	outputSize := uint64(vsizeOutputSegWit)
	if !a.blockchain.UTXO.SupportsSegWit {
		inputSize = vsizeInputLegacy
		outputSize = vsizeOutputLegacy
	}

	var selected []provider.UTXO
	var totalIn uint64
	for _, u := range sorted {
		selected = append(selected, u)
		totalIn += u.Value

		// Destination plus change output, with a small rounding margin.
		vsize := vsizeOverhead + uint64(len(selected))*inputSize + 2*outputSize + 2
		fee := vsize * feeRate
		if totalIn >= amount+fee {
			return selected, totalIn, fee, nil
		}
	}

	vsize := vsizeOverhead + uint64(len(selected))*inputSize + 2*outputSize + 2
	fee := vsize * feeRate
	return nil, 0, 0, fmt.Errorf("insufficient funds: need %d, have %d base units", amount+fee, totalIn)
}

// buildSignedTx assembles and signs the transfer. All inputs belong to the
// sender address, which also receives any change.
func (a *UTXOAdapter) buildSignedTx(priv *btcec.PrivateKey, selected []provider.UTXO, from, to string, amount, totalIn, fee uint64, net chain.UTXONetParams) (string, error) {
	tx := wire.NewMsgTx(wire.TxVersion)

	for _, u := range selected {
		txHash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return "", fmt.Errorf("invalid txid %s: %w", u.TxID, err)
		}
		txIn := wire.NewTxIn(wire.NewOutPoint(txHash, u.Vout), nil, nil)
		txIn.Sequence = wire.MaxTxInSequenceNum - 2 // opt in to RBF
		tx.AddTxIn(txIn)
	}

	destAddr, err := keyring.DecodeUTXOAddress(to, net)
	if err != nil {
		return "", fmt.Errorf("invalid destination address: %w", err)
	}
	destScript, err := txscript.PayToAddrScript(destAddr)
	if err != nil {
		return "", err
	}
	tx.AddTxOut(wire.NewTxOut(int64(amount), destScript))

	senderAddr, err := keyring.DecodeUTXOAddress(from, net)
	if err != nil {
		return "", fmt.Errorf("invalid sender address: %w", err)
	}
	senderScript, err := txscript.PayToAddrScript(senderAddr)
	if err != nil {
		return "", err
	}

	if change := totalIn - amount - fee; change > dustThreshold {
		tx.AddTxOut(wire.NewTxOut(int64(change), senderScript))
	}

	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(selected))
	for i, u := range selected {
		prevOuts[tx.TxIn[i].PreviousOutPoint] = wire.NewTxOut(int64(u.Value), senderScript)
	}
	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	for i, u := range selected {
		switch senderAddr.(type) {
		case *btcutil.AddressWitnessPubKeyHash:
			witness, err := txscript.WitnessSignature(
				tx, sigHashes, i, int64(u.Value), senderScript, txscript.SigHashAll, priv, true)
			if err != nil {
				return "", fmt.Errorf("sign segwit input %d: %w", i, err)
			}
			tx.TxIn[i].Witness = witness
		case *btcutil.AddressPubKeyHash:
			sig, err := txscript.SignatureScript(
				tx, i, senderScript, txscript.SigHashAll, priv, true)
			if err != nil {
				return "", fmt.Errorf("sign legacy input %d: %w", i, err)
			}
			tx.TxIn[i].SignatureScript = sig
		default:
			return "", fmt.Errorf("unsupported sender address type %T", senderAddr)
		}
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

func (a *UTXOAdapter) FetchHistory(ctx context.Context, address string, sinceBlock uint64) ([]Transfer, error) {
	txs, err := a.client.AddressTxs(ctx, address, "")
	if err != nil {
		return nil, wrapProviderErr("utxo.FetchHistory", err)
	}

	transfers := make([]Transfer, 0, len(txs))
	for _, tx := range txs {
		if tx.Status.Confirmed && tx.Status.BlockHeight < sinceBlock {
			continue
		}
		transfers = append(transfers, a.convertTx(tx, address))
	}
	return transfers, nil
}

// convertTx flattens a multi-input multi-output transaction into the
// canonical single-direction transfer relative to address. Spends from the
// wallet become debits of everything sent elsewhere; everything else is a
// credit of the outputs paying the wallet.
func (a *UTXOAdapter) convertTx(tx provider.AddressTx, address string) Transfer {
	spentByUs := false
	counterparty := ""
	for _, in := range tx.Vin {
		if strings.EqualFold(in.Prevout.ScriptPubKeyAddr, address) {
			spentByUs = true
		} else if counterparty == "" {
			counterparty = in.Prevout.ScriptPubKeyAddr
		}
	}

	var amount uint64
	from, to := address, ""
	if spentByUs {
		for _, out := range tx.Vout {
			if !strings.EqualFold(out.ScriptPubKeyAddr, address) {
				amount += out.Value
				if to == "" {
					to = out.ScriptPubKeyAddr
				}
			}
		}
	} else {
		from, to = counterparty, address
		for _, out := range tx.Vout {
			if strings.EqualFold(out.ScriptPubKeyAddr, address) {
				amount += out.Value
			}
		}
	}

	status := StatusPending
	if tx.Status.Confirmed {
		status = StatusSuccess
	}
	var ts time.Time
	if tx.Status.BlockTime > 0 {
		ts = time.Unix(tx.Status.BlockTime, 0).UTC()
	}
	raw, _ := json.Marshal(tx)

	return Transfer{
		Hash:   tx.TxID,
		From:   from,
		To:     to,
		Amount: helpers.FromBaseUnits(new(big.Int).SetUint64(amount), a.blockchain.Decimals),
		Status: status,
		Block:  tx.Status.BlockHeight,
		Time:   ts,
		Raw:    raw,
	}
}

var _ Adapter = (*UTXOAdapter)(nil)
