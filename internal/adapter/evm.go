package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"

	"github.com/opencustody/vaultd/internal/chain"
	"github.com/opencustody/vaultd/internal/fees"
	"github.com/opencustody/vaultd/internal/keyring"
	"github.com/opencustody/vaultd/internal/provider"
	"github.com/opencustody/vaultd/pkg/helpers"
	"github.com/opencustody/vaultd/pkg/logging"
)

// EVMAdapter serves one EVM chain (Ethereum, BSC, Polygon). All three share
// derivation, signing, and the etherscan API family; only chain IDs and
// endpoints differ.
type EVMAdapter struct {
	blockchain *chain.Blockchain
	network    chain.NetworkKind
	client     *provider.EVMClient
	scan       *provider.EtherscanClient
	oracle     *fees.Oracle
	log        *logging.Logger
}

// NewEVMAdapter builds an adapter for one EVM chain bound to one network.
func NewEVMAdapter(b *chain.Blockchain, network chain.NetworkKind, client *provider.EVMClient, scan *provider.EtherscanClient, oracle *fees.Oracle, log *logging.Logger) *EVMAdapter {
	return &EVMAdapter{
		blockchain: b,
		network:    network,
		client:     client,
		scan:       scan,
		oracle:     oracle,
		log:        log.Component("adapter." + strings.ToLower(b.Key)),
	}
}

func (a *EVMAdapter) Identify() string {
	return a.blockchain.Key
}

func (a *EVMAdapter) DeriveAddress(ctx context.Context, mnemonic string) (Address, error) {
	k, err := keyring.New(mnemonic)
	if err != nil {
		return Address{}, Terminalf("evm.DeriveAddress", err, "invalid mnemonic")
	}
	defer k.Zero()

	addr, err := k.EVMAddress(a.blockchain)
	if err != nil {
		return Address{}, Terminalf("evm.DeriveAddress", err, "derivation failed")
	}
	// EVM addresses are network-independent.
	return Address{Main: addr, Test: addr}, nil
}

func (a *EVMAdapter) GetBalance(ctx context.Context, address string, asset *chain.TokenAsset) (decimal.Decimal, error) {
	if !keyring.ValidateEVMAddress(address) {
		return decimal.Zero, Terminalf("evm.GetBalance", nil, "invalid address %q", address)
	}

	var raw *big.Int
	var err error
	decimals := a.blockchain.Decimals
	if asset.IsContract() {
		raw, err = a.client.TokenBalance(ctx, asset.ContractAddress, address)
		decimals = asset.Decimals
	} else {
		raw, err = a.client.NativeBalance(ctx, address)
	}
	if err != nil {
		return decimal.Zero, wrapProviderErr("evm.GetBalance", err)
	}
	return helpers.FromBaseUnits(raw, decimals), nil
}

func (a *EVMAdapter) BuildAndSubmit(ctx context.Context, p SubmitParams) (*Receipt, error) {
	if !keyring.ValidateEVMAddress(p.To) {
		return nil, Terminalf("evm.BuildAndSubmit", nil, "invalid destination %q", p.To)
	}

	k, err := keyring.New(p.Mnemonic)
	if err != nil {
		return nil, Terminalf("evm.BuildAndSubmit", err, "invalid mnemonic")
	}
	defer k.Zero()

	priv, err := k.SecpKey(a.blockchain)
	if err != nil {
		return nil, Terminalf("evm.BuildAndSubmit", err, "key derivation failed")
	}

	gasLimit := fees.GasLimitFor(p.Asset)
	params, err := a.oracle.Resolve(ctx, chain.FamilyEVM, p.Speed, gasLimit)
	if err != nil {
		return nil, Retryablef("evm.BuildAndSubmit", err, "fee resolution failed")
	}

	nonce, err := a.client.PendingNonce(ctx, p.From)
	if err != nil {
		return nil, wrapProviderErr("evm.BuildAndSubmit", err)
	}

	var to common.Address
	var value *big.Int
	var data []byte
	if p.Asset.IsContract() {
		amount := helpers.ToBaseUnits(p.Amount, p.Asset.Decimals)
		data, err = a.client.PackTransfer(p.To, amount)
		if err != nil {
			return nil, Terminalf("evm.BuildAndSubmit", err, "calldata encoding failed")
		}
		to = common.HexToAddress(p.Asset.ContractAddress)
		value = big.NewInt(0)
	} else {
		value = helpers.ToBaseUnits(p.Amount, a.blockchain.Decimals)
		to = common.HexToAddress(p.To)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   a.client.ChainID(),
		Nonce:     nonce,
		GasTipCap: params.MaxPriorityFeePerGas,
		GasFeeCap: params.MaxFeePerGas,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(a.client.ChainID()), priv.ToECDSA())
	if err != nil {
		return nil, Terminalf("evm.BuildAndSubmit", err, "signing failed")
	}

	if err := a.client.SendTransaction(ctx, signed); err != nil {
		return nil, classifyBroadcastErr("evm.BuildAndSubmit", err)
	}

	a.log.Info("transaction submitted",
		"chain", a.blockchain.Key, "hash", signed.Hash().Hex(), "nonce", nonce, "tier", p.Speed)

	return &Receipt{
		TxHash:   signed.Hash().Hex(),
		TotalFee: helpers.FromBaseUnits(params.Total(0), a.blockchain.Decimals),
	}, nil
}

func (a *EVMAdapter) FetchHistory(ctx context.Context, address string, sinceBlock uint64) ([]Transfer, error) {
	native, err := a.scan.NativeTxs(ctx, address, sinceBlock)
	if err != nil {
		return nil, wrapProviderErr("evm.FetchHistory", err)
	}
	tokens, err := a.scan.TokenTxs(ctx, address, sinceBlock)
	if err != nil {
		return nil, wrapProviderErr("evm.FetchHistory", err)
	}

	transfers := make([]Transfer, 0, len(native)+len(tokens))
	for _, tx := range native {
		t, err := a.convertScanTx(tx, a.blockchain.Decimals, "")
		if err != nil {
			continue
		}
		transfers = append(transfers, t)
	}
	for _, tx := range tokens {
		decimals := a.blockchain.Decimals
		if d, err := strconv.ParseUint(tx.TokenDecimal, 10, 8); err == nil {
			decimals = uint8(d)
		}
		t, err := a.convertScanTx(tx, decimals, tx.ContractAddress)
		if err != nil {
			continue
		}
		transfers = append(transfers, t)
	}
	return transfers, nil
}

func (a *EVMAdapter) convertScanTx(tx provider.EtherscanTx, decimals uint8, contract string) (Transfer, error) {
	raw, err := helpers.ParseBaseUnits(tx.Value)
	if err != nil {
		return Transfer{}, err
	}
	status := StatusSuccess
	if tx.Failed() {
		status = StatusFailed
	} else if tx.Block() == 0 {
		status = StatusPending
	}
	payload, _ := json.Marshal(tx)
	return Transfer{
		Hash:     tx.Hash,
		From:     tx.From,
		To:       tx.To,
		Amount:   helpers.FromBaseUnits(raw, decimals),
		Contract: contract,
		Status:   status,
		Block:    tx.Block(),
		Time:     time.Unix(tx.Time(), 0).UTC(),
		Raw:      payload,
	}, nil
}

// ApproveDelegate issues an ERC-20 approve granting delegate spending
// rights over the asset.
func (a *EVMAdapter) ApproveDelegate(ctx context.Context, p SubmitParams, delegate string) (*Receipt, error) {
	if !p.Asset.IsContract() {
		return nil, Terminalf("evm.ApproveDelegate", nil, "native coin has no approval semantics")
	}
	if !keyring.ValidateEVMAddress(delegate) {
		return nil, Terminalf("evm.ApproveDelegate", nil, "invalid delegate %q", delegate)
	}

	k, err := keyring.New(p.Mnemonic)
	if err != nil {
		return nil, Terminalf("evm.ApproveDelegate", err, "invalid mnemonic")
	}
	defer k.Zero()

	priv, err := k.SecpKey(a.blockchain)
	if err != nil {
		return nil, Terminalf("evm.ApproveDelegate", err, "key derivation failed")
	}

	amount := helpers.ToBaseUnits(p.Amount, p.Asset.Decimals)
	data, err := a.client.PackApprove(delegate, amount)
	if err != nil {
		return nil, Terminalf("evm.ApproveDelegate", err, "calldata encoding failed")
	}

	params, err := a.oracle.Resolve(ctx, chain.FamilyEVM, p.Speed, fees.GasLimitTokenApprove)
	if err != nil {
		return nil, Retryablef("evm.ApproveDelegate", err, "fee resolution failed")
	}
	nonce, err := a.client.PendingNonce(ctx, p.From)
	if err != nil {
		return nil, wrapProviderErr("evm.ApproveDelegate", err)
	}

	contract := common.HexToAddress(p.Asset.ContractAddress)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   a.client.ChainID(),
		Nonce:     nonce,
		GasTipCap: params.MaxPriorityFeePerGas,
		GasFeeCap: params.MaxFeePerGas,
		Gas:       fees.GasLimitTokenApprove,
		To:        &contract,
		Value:     big.NewInt(0),
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(a.client.ChainID()), priv.ToECDSA())
	if err != nil {
		return nil, Terminalf("evm.ApproveDelegate", err, "signing failed")
	}
	if err := a.client.SendTransaction(ctx, signed); err != nil {
		return nil, classifyBroadcastErr("evm.ApproveDelegate", err)
	}

	return &Receipt{
		TxHash:   signed.Hash().Hex(),
		TotalFee: helpers.FromBaseUnits(params.Total(0), a.blockchain.Decimals),
	}, nil
}

// wrapProviderErr maps provider sentinel errors into the adapter taxonomy.
func wrapProviderErr(op string, err error) *Error {
	if provider.IsRetryable(err) {
		return Retryablef(op, err, "provider throttled")
	}
	return Retryablef(op, err, "provider request failed")
}

// classifyBroadcastErr distinguishes node rejections (terminal, the tx will
// never land as built) from transport failures (retryable). A revert that
// carries an Error(string) payload surfaces the decoded reason instead of
// the raw hex.
func classifyBroadcastErr(op string, err error) *Error {
	if reason, ok := revertReason(err); ok {
		return Terminalf(op, err, "execution reverted: %s", reason)
	}
	msg := err.Error()
	if strings.Contains(msg, "insufficient funds") ||
		strings.Contains(msg, "nonce too low") ||
		strings.Contains(msg, "execution reverted") {
		return Terminalf(op, err, "broadcast rejected")
	}
	return Retryablef(op, err, "broadcast failed")
}

// revertSelector is the 4-byte selector of solidity's Error(string).
const revertSelector = "0x08c379a0"

// revertReason extracts and decodes an Error(string) revert payload from a
// node rejection. Geth-style nodes attach the payload as structured error
// data; others inline the hex blob in the message.
func revertReason(err error) (string, bool) {
	var de rpc.DataError
	if errors.As(err, &de) {
		if blob, ok := de.ErrorData().(string); ok {
			if reason, uerr := abi.UnpackRevert(common.FromHex(blob)); uerr == nil {
				return reason, true
			}
		}
	}

	msg := err.Error()
	i := strings.Index(msg, revertSelector)
	if i < 0 {
		return "", false
	}
	blob := msg[i:]
	if j := strings.IndexAny(blob, " \t\"'"); j >= 0 {
		blob = blob[:j]
	}
	reason, uerr := abi.UnpackRevert(common.FromHex(blob))
	if uerr != nil {
		return "", false
	}
	return reason, true
}

var (
	_ Adapter  = (*EVMAdapter)(nil)
	_ Approver = (*EVMAdapter)(nil)
)
