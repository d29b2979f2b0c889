package provider

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
)

// TezosClient speaks the Tezos node RPC for balances and injection, plus
// the TzKT indexer API for account history. Node RPCs serve state but have
// no efficient per-address history endpoint; TzKT fills that gap.
type TezosClient struct {
	rpc  *resty.Client
	tzkt *resty.Client
}

// NewTezosClient creates a client over a node RPC URL and a TzKT API URL.
func NewTezosClient(rpcURL, tzktURL string) *TezosClient {
	return &TezosClient{
		rpc:  newRESTClient(strings.TrimSuffix(rpcURL, "/")),
		tzkt: newRESTClient(strings.TrimSuffix(tzktURL, "/")),
	}
}

// Balance returns the spendable balance of address in mutez.
func (c *TezosClient) Balance(ctx context.Context, address string) (*big.Int, error) {
	resp, err := c.rpc.R().
		SetContext(ctx).
		Get("/chains/main/blocks/head/context/contracts/" + address + "/balance")
	if err != nil {
		return nil, err
	}
	if err := classify(resp); err != nil {
		return nil, err
	}
	raw := strings.Trim(strings.TrimSpace(resp.String()), `"`)
	balance, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("%w: balance %q", ErrBadResponse, raw)
	}
	return balance, nil
}

// Counter returns the account's operation counter.
func (c *TezosClient) Counter(ctx context.Context, address string) (uint64, error) {
	resp, err := c.rpc.R().
		SetContext(ctx).
		Get("/chains/main/blocks/head/context/contracts/" + address + "/counter")
	if err != nil {
		return 0, err
	}
	if err := classify(resp); err != nil {
		return 0, err
	}
	raw := strings.Trim(strings.TrimSpace(resp.String()), `"`)
	counter, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: counter %q", ErrBadResponse, raw)
	}
	return counter, nil
}

// HeadBlockHash returns the current head block hash, needed as the branch
// of a new operation.
func (c *TezosClient) HeadBlockHash(ctx context.Context) (string, error) {
	resp, err := c.rpc.R().
		SetContext(ctx).
		Get("/chains/main/blocks/head/hash")
	if err != nil {
		return "", err
	}
	if err := classify(resp); err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(resp.String()), `"`), nil
}

// ManagerKey returns the revealed public key of address, or empty if the
// account has not published one yet.
func (c *TezosClient) ManagerKey(ctx context.Context, address string) (string, error) {
	resp, err := c.rpc.R().
		SetContext(ctx).
		Get("/chains/main/blocks/head/context/contracts/" + address + "/manager_key")
	if err != nil {
		return "", err
	}
	if err := classify(resp); err != nil {
		return "", err
	}
	raw := strings.Trim(strings.TrimSpace(resp.String()), `"`)
	if raw == "null" {
		return "", nil
	}
	return raw, nil
}

// ForgeOperation asks the node to serialize an operation group and returns
// the unsigned bytes as hex.
func (c *TezosClient) ForgeOperation(ctx context.Context, branch string, contents []map[string]interface{}) (string, error) {
	body := map[string]interface{}{"branch": branch, "contents": contents}
	resp, err := c.rpc.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post("/chains/main/blocks/head/helpers/forge/operations")
	if err != nil {
		return "", err
	}
	if err := classify(resp); err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(resp.String()), `"`), nil
}

// InjectOperation submits a signed operation hex and returns the operation
// hash.
func (c *TezosClient) InjectOperation(ctx context.Context, signedHex string) (string, error) {
	resp, err := c.rpc.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(`"` + signedHex + `"`).
		Post("/injection/operation")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBroadcastRejected, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: %s", ErrBroadcastRejected, resp.String())
	}
	return strings.Trim(strings.TrimSpace(resp.String()), `"`), nil
}

// TzktOperation is one transaction row from the TzKT accounts API.
type TzktOperation struct {
	Hash      string `json:"hash"`
	Level     uint64 `json:"level"`
	Timestamp string `json:"timestamp"`
	Amount    uint64 `json:"amount"`
	Status    string `json:"status"` // applied, failed, backtracked, skipped
	Sender    struct {
		Address string `json:"address"`
	} `json:"sender"`
	Target struct {
		Address string `json:"address"`
	} `json:"target"`
}

// AccountOperations lists transaction operations touching address from the
// given level on, ascending.
func (c *TezosClient) AccountOperations(ctx context.Context, address string, fromLevel uint64) ([]TzktOperation, error) {
	var ops []TzktOperation
	resp, err := c.tzkt.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"anyof.sender.target": address,
			"level.ge":            strconv.FormatUint(fromLevel, 10),
			"sort.asc":            "level",
			"limit":               "1000",
		}).
		SetResult(&ops).
		Get("/v1/operations/transactions")
	if err != nil {
		return nil, err
	}
	if err := classify(resp); err != nil {
		return nil, err
	}
	return ops, nil
}
