package provider

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"
)

// EtherscanClient speaks the etherscan-family account API (etherscan.io,
// bscscan.com, polygonscan.com share the same shapes).
type EtherscanClient struct {
	http   *resty.Client
	apiKey string
}

// NewEtherscanClient creates a client for an etherscan-compatible API.
func NewEtherscanClient(baseURL, apiKey string) *EtherscanClient {
	return &EtherscanClient{http: newRESTClient(baseURL), apiKey: apiKey}
}

// EtherscanTx is one row of the account txlist / tokentx responses. All
// numeric fields arrive as decimal strings.
type EtherscanTx struct {
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	IsError         string `json:"isError"`
	ContractAddress string `json:"contractAddress"`
	TokenDecimal    string `json:"tokenDecimal"`
	GasUsed         string `json:"gasUsed"`
	GasPrice        string `json:"gasPrice"`
}

// Block parses the block number field.
func (t *EtherscanTx) Block() uint64 {
	n, _ := strconv.ParseUint(t.BlockNumber, 10, 64)
	return n
}

// Time parses the unix timestamp field.
func (t *EtherscanTx) Time() int64 {
	n, _ := strconv.ParseInt(t.TimeStamp, 10, 64)
	return n
}

// Failed reports whether the transaction reverted.
func (t *EtherscanTx) Failed() bool {
	return t.IsError == "1"
}

// NativeTxs lists native-coin transactions for address from startBlock on,
// ascending.
func (c *EtherscanClient) NativeTxs(ctx context.Context, address string, startBlock uint64) ([]EtherscanTx, error) {
	return c.list(ctx, "txlist", address, startBlock)
}

// TokenTxs lists ERC-20 transfer events for address from startBlock on,
// ascending.
func (c *EtherscanClient) TokenTxs(ctx context.Context, address string, startBlock uint64) ([]EtherscanTx, error) {
	return c.list(ctx, "tokentx", address, startBlock)
}

func (c *EtherscanClient) list(ctx context.Context, action, address string, startBlock uint64) ([]EtherscanTx, error) {
	var result struct {
		Status  string        `json:"status"`
		Message string        `json:"message"`
		Result  []EtherscanTx `json:"result"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"module":     "account",
			"action":     action,
			"address":    address,
			"startblock": strconv.FormatUint(startBlock, 10),
			"sort":       "asc",
			"apikey":     c.apiKey,
		}).
		SetResult(&result).
		Get("/api")
	if err != nil {
		return nil, err
	}
	if err := classify(resp); err != nil {
		return nil, err
	}
	// Etherscan reports "No transactions found" as status 0.
	if result.Status != "1" && len(result.Result) == 0 {
		if result.Message == "No transactions found" {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrBadResponse, result.Message)
	}
	return result.Result, nil
}
