package provider

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// erc20ABI covers the calls we issue against token contracts.
const erc20ABI = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// EVMClient wraps an EVM node RPC connection for balance reads, fee
// sampling, and transaction submission.
type EVMClient struct {
	eth   *ethclient.Client
	abi   abi.ABI
	chain *big.Int
}

// DialEVM connects to an EVM node and verifies the chain ID.
func DialEVM(ctx context.Context, rpcURL string) (*EVMClient, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("read chain id: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return &EVMClient{eth: eth, abi: parsed, chain: chainID}, nil
}

// Close releases the underlying connection.
func (c *EVMClient) Close() {
	c.eth.Close()
}

// ChainID returns the node's chain ID.
func (c *EVMClient) ChainID() *big.Int {
	return new(big.Int).Set(c.chain)
}

// NativeBalance returns the native coin balance of address in wei.
func (c *EVMClient) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	return c.eth.BalanceAt(ctx, common.HexToAddress(address), nil)
}

// TokenBalance calls balanceOf on an ERC-20 contract.
func (c *EVMClient) TokenBalance(ctx context.Context, contract, holder string) (*big.Int, error) {
	data, err := c.abi.Pack("balanceOf", common.HexToAddress(holder))
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	to := common.HexToAddress(contract)
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call balanceOf: %w", err)
	}
	results, err := c.abi.Unpack("balanceOf", out)
	if err != nil || len(results) != 1 {
		return nil, fmt.Errorf("%w: balanceOf output", ErrBadResponse)
	}
	balance, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: balanceOf output type", ErrBadResponse)
	}
	return balance, nil
}

// PackTransfer encodes an ERC-20 transfer(to, value) calldata.
func (c *EVMClient) PackTransfer(to string, value *big.Int) ([]byte, error) {
	return c.abi.Pack("transfer", common.HexToAddress(to), value)
}

// PackApprove encodes an ERC-20 approve(spender, value) calldata.
func (c *EVMClient) PackApprove(spender string, value *big.Int) ([]byte, error) {
	return c.abi.Pack("approve", common.HexToAddress(spender), value)
}

// PendingNonce returns the next nonce for address including pending txs.
func (c *EVMClient) PendingNonce(ctx context.Context, address string) (uint64, error) {
	return c.eth.PendingNonceAt(ctx, common.HexToAddress(address))
}

// SendTransaction broadcasts a signed transaction.
func (c *EVMClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := c.eth.SendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("%w: %v", ErrBroadcastRejected, err)
	}
	return nil
}

// BaseFee returns the latest block's base fee. Pre-London chains report no
// base fee; treat that as zero so legacy gas pricing still works.
func (c *EVMClient) BaseFee(ctx context.Context) (*big.Int, error) {
	header, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, err
	}
	if header.BaseFee == nil {
		return big.NewInt(0), nil
	}
	return header.BaseFee, nil
}

// SuggestPriorityFee returns the node's suggested priority fee per gas.
func (c *EVMClient) SuggestPriorityFee(ctx context.Context) (*big.Int, error) {
	return c.eth.SuggestGasTipCap(ctx)
}
