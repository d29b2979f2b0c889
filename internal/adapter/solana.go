package adapter

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"

	"github.com/opencustody/vaultd/internal/chain"
	"github.com/opencustody/vaultd/internal/fees"
	"github.com/opencustody/vaultd/internal/keyring"
	"github.com/opencustody/vaultd/internal/provider"
	"github.com/opencustody/vaultd/pkg/helpers"
	"github.com/opencustody/vaultd/pkg/logging"
)

// System program ID, owner of plain transfer instructions.
const solSystemProgram = "11111111111111111111111111111111"

// Instruction index of SystemProgram::Transfer.
const solTransferIndex = uint32(2)

// How many signatures pay for a simple transfer.
const solTransferSignatures = 1

// SolanaAdapter serves the Solana chain over its JSON-RPC API.
type SolanaAdapter struct {
	blockchain *chain.Blockchain
	network    chain.NetworkKind
	client     *provider.SolanaClient
	oracle     *fees.Oracle
	log        *logging.Logger
}

// NewSolanaAdapter builds the Solana adapter bound to one network.
func NewSolanaAdapter(b *chain.Blockchain, network chain.NetworkKind, client *provider.SolanaClient, oracle *fees.Oracle, log *logging.Logger) *SolanaAdapter {
	return &SolanaAdapter{
		blockchain: b,
		network:    network,
		client:     client,
		oracle:     oracle,
		log:        log.Component("adapter.sol"),
	}
}

func (a *SolanaAdapter) Identify() string {
	return a.blockchain.Key
}

func (a *SolanaAdapter) DeriveAddress(ctx context.Context, mnemonic string) (Address, error) {
	k, err := keyring.New(mnemonic)
	if err != nil {
		return Address{}, Terminalf("sol.DeriveAddress", err, "invalid mnemonic")
	}
	defer k.Zero()

	addr, err := k.SolanaAddress(a.blockchain)
	if err != nil {
		return Address{}, Terminalf("sol.DeriveAddress", err, "derivation failed")
	}
	// Solana addresses are identical on mainnet and devnet.
	return Address{Main: addr, Test: addr}, nil
}

func (a *SolanaAdapter) GetBalance(ctx context.Context, address string, asset *chain.TokenAsset) (decimal.Decimal, error) {
	if asset.IsContract() {
		return decimal.Zero, Terminalf("sol.GetBalance", nil, "SPL token balances are not supported")
	}
	if !keyring.ValidateSolanaAddress(address) {
		return decimal.Zero, Terminalf("sol.GetBalance", nil, "invalid address %q", address)
	}

	lamports, err := a.client.Balance(ctx, address)
	if err != nil {
		return decimal.Zero, wrapProviderErr("sol.GetBalance", err)
	}
	return helpers.FromBaseUnits(new(big.Int).SetUint64(lamports), a.blockchain.Decimals), nil
}

func (a *SolanaAdapter) BuildAndSubmit(ctx context.Context, p SubmitParams) (*Receipt, error) {
	if p.Asset.IsContract() {
		return nil, Terminalf("sol.BuildAndSubmit", nil, "SPL token transfers are not supported")
	}
	if !keyring.ValidateSolanaAddress(p.To) {
		return nil, Terminalf("sol.BuildAndSubmit", nil, "invalid destination %q", p.To)
	}

	k, err := keyring.New(p.Mnemonic)
	if err != nil {
		return nil, Terminalf("sol.BuildAndSubmit", err, "invalid mnemonic")
	}
	defer k.Zero()

	priv, err := k.Ed25519Key(a.blockchain)
	if err != nil {
		return nil, Terminalf("sol.BuildAndSubmit", err, "key derivation failed")
	}

	params, err := a.oracle.Resolve(ctx, chain.FamilySolana, p.Speed, 0)
	if err != nil {
		return nil, Retryablef("sol.BuildAndSubmit", err, "fee resolution failed")
	}

	blockhash, err := a.client.LatestBlockhash(ctx)
	if err != nil {
		return nil, wrapProviderErr("sol.BuildAndSubmit", err)
	}

	lamports := helpers.ToBaseUnits(p.Amount, a.blockchain.Decimals).Uint64()
	raw, err := buildSolanaTransfer(priv, p.From, p.To, blockhash, lamports)
	if err != nil {
		return nil, Terminalf("sol.BuildAndSubmit", err, "transaction build failed")
	}

	signature, err := a.client.SendTransaction(ctx, raw)
	if err != nil {
		return nil, Retryablef("sol.BuildAndSubmit", err, "broadcast failed")
	}

	a.log.Info("transaction submitted",
		"chain", a.blockchain.Key, "signature", signature, "tier", p.Speed)

	return &Receipt{
		TxHash:         signature,
		ExplorerSuffix: a.explorerSuffix(),
		TotalFee:       helpers.FromBaseUnits(params.Total(solTransferSignatures), a.blockchain.Decimals),
	}, nil
}

func (a *SolanaAdapter) explorerSuffix() string {
	if a.network == chain.NetworkTest {
		return "?cluster=devnet"
	}
	return ""
}

// buildSolanaTransfer assembles a single-signer legacy transaction carrying
// one SystemProgram transfer and returns it base64-encoded for
// sendTransaction.
func buildSolanaTransfer(priv ed25519.PrivateKey, from, to, blockhash string, lamports uint64) (string, error) {
	fromKey, err := base58.Decode(from)
	if err != nil || len(fromKey) != 32 {
		return "", fmt.Errorf("invalid source key")
	}
	toKey, err := base58.Decode(to)
	if err != nil || len(toKey) != 32 {
		return "", fmt.Errorf("invalid destination key")
	}
	programKey, _ := base58.Decode(solSystemProgram)
	hash, err := base58.Decode(blockhash)
	if err != nil || len(hash) != 32 {
		return "", fmt.Errorf("invalid blockhash")
	}

	// Instruction data: u32 LE instruction index, u64 LE lamports.
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], solTransferIndex)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	var msg bytes.Buffer
	// Header: one required signature, no readonly signed accounts, one
	// readonly unsigned account (the program).
	msg.Write([]byte{1, 0, 1})
	writeShortVec(&msg, 3)
	msg.Write(fromKey)
	msg.Write(toKey)
	msg.Write(programKey)
	msg.Write(hash)
	writeShortVec(&msg, 1)     // one instruction
	msg.WriteByte(2)           // program id index
	writeShortVec(&msg, 2)     // two instruction accounts
	msg.Write([]byte{0, 1})    // from, to
	writeShortVec(&msg, uint16(len(data)))
	msg.Write(data)

	signature := ed25519.Sign(priv, msg.Bytes())

	var tx bytes.Buffer
	writeShortVec(&tx, 1)
	tx.Write(signature)
	tx.Write(msg.Bytes())

	return base64.StdEncoding.EncodeToString(tx.Bytes()), nil
}

// writeShortVec writes a compact-u16 length prefix.
func writeShortVec(buf *bytes.Buffer, n uint16) {
	rem := n
	for {
		b := byte(rem & 0x7f)
		rem >>= 7
		if rem == 0 {
			buf.WriteByte(b)
			return
		}
		buf.WriteByte(b | 0x80)
	}
}

func (a *SolanaAdapter) FetchHistory(ctx context.Context, address string, sinceBlock uint64) ([]Transfer, error) {
	sigs, err := a.client.SignaturesForAddress(ctx, address, 100, "")
	if err != nil {
		return nil, wrapProviderErr("sol.FetchHistory", err)
	}

	transfers := make([]Transfer, 0, len(sigs))
	for _, sig := range sigs {
		if sig.Slot < sinceBlock {
			continue
		}
		tx, err := a.client.Transaction(ctx, sig.Signature)
		if err != nil {
			// A signature without a retrievable transaction is usually still
			// settling; skip it and pick it up on the next poll.
			continue
		}
		t, ok := a.convertTx(sig, tx)
		if ok {
			transfers = append(transfers, t)
		}
	}
	return transfers, nil
}

// convertTx recovers source, destination, and amount from the balance
// deltas of a confirmed transaction.
func (a *SolanaAdapter) convertTx(sig provider.SignatureInfo, tx *provider.SolanaTx) (Transfer, bool) {
	keys := tx.Transaction.Message.AccountKeys
	pre, post := tx.Meta.PreBalances, tx.Meta.PostBalances
	if len(keys) == 0 || len(pre) != len(keys) || len(post) != len(keys) {
		return Transfer{}, false
	}

	from, to := "", ""
	var amount uint64
	for i := range keys {
		delta := int64(post[i]) - int64(pre[i])
		switch {
		case delta > 0:
			if uint64(delta) > amount {
				amount = uint64(delta)
				to = keys[i]
			}
		case delta < 0 && from == "":
			from = keys[i]
		}
	}
	if from == "" && to == "" {
		return Transfer{}, false
	}

	status := StatusSuccess
	if sig.Failed() {
		status = StatusFailed
	}
	var ts time.Time
	if tx.BlockTime != nil {
		ts = time.Unix(*tx.BlockTime, 0).UTC()
	}
	raw, _ := json.Marshal(tx)

	return Transfer{
		Hash:   sig.Signature,
		From:   from,
		To:     to,
		Amount: helpers.FromBaseUnits(new(big.Int).SetUint64(amount), a.blockchain.Decimals),
		Status: status,
		Block:  tx.Slot,
		Time:   ts,
		Raw:    raw,
	}, true
}

var _ Adapter = (*SolanaAdapter)(nil)
