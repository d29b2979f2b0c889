package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opencustody/vaultd/internal/adapter"
	"github.com/opencustody/vaultd/internal/chain"
	"github.com/opencustody/vaultd/internal/fees"
	"github.com/opencustody/vaultd/internal/provision"
	"github.com/opencustody/vaultd/internal/storage"
)

// WalletInfo is the wire representation of a wallet.
type WalletInfo struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	Kind         string `json:"kind"`
	NetworkKind  string `json:"network_kind"`
	FiatCurrency string `json:"fiat_currency"`
	IsDefault    bool   `json:"is_default"`
	CreatedAt    int64  `json:"created_at"`
}

// AssetInfo is the wire representation of a wallet asset.
type AssetInfo struct {
	ID           string `json:"id"`
	WalletID     string `json:"wallet_id"`
	Chain        string `json:"chain"`
	TokenAssetID string `json:"token_asset_id"`
	Address      string `json:"address"`
	AddressQR    string `json:"address_qr"`
	Balance      string `json:"balance"`
}

// TxInfo is the wire representation of a history row.
type TxInfo struct {
	TxHash      string `json:"tx_hash"`
	Chain       string `json:"chain"`
	From        string `json:"from"`
	To          string `json:"to"`
	Amount      string `json:"amount"`
	Direction   string `json:"direction"`
	Status      string `json:"status"`
	Source      string `json:"source"`
	BlockHeight uint64 `json:"block_height"`
	Timestamp   int64  `json:"timestamp"`
}

func walletToInfo(w *storage.Wallet) *WalletInfo {
	return &WalletInfo{
		ID:           w.ID,
		UserID:       w.UserID,
		Kind:         string(w.Kind),
		NetworkKind:  w.NetworkKind,
		FiatCurrency: w.FiatCurrency,
		IsDefault:    w.IsDefault,
		CreatedAt:    w.CreatedAt.Unix(),
	}
}

func assetToInfo(a *storage.WalletAsset) *AssetInfo {
	return &AssetInfo{
		ID:           a.ID,
		WalletID:     a.WalletID,
		Chain:        a.BlockchainKey,
		TokenAssetID: a.TokenAssetID,
		Address:      a.Address(),
		AddressQR:    a.AddressQR,
		Balance:      a.Balance.String(),
	}
}

func txToInfo(t *storage.Transaction) *TxInfo {
	return &TxInfo{
		TxHash:      t.TxHash,
		Chain:       t.BlockchainKey,
		From:        t.FromAddr,
		To:          t.ToAddr,
		Amount:      t.Amount.String(),
		Direction:   string(t.Direction),
		Status:      t.Status,
		Source:      string(t.Source),
		BlockHeight: t.BlockHeight,
		Timestamp:   t.Timestamp.Unix(),
	}
}

// chainsList returns the active chain catalogue.
func (s *Server) chainsList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	type chainInfo struct {
		Key      string `json:"key"`
		Name     string `json:"name"`
		Family   string `json:"family"`
		Decimals uint8  `json:"decimals"`
	}
	var out []chainInfo
	for _, b := range s.set.Active() {
		out = append(out, chainInfo{Key: b.Key, Name: b.Name, Family: string(b.Family), Decimals: b.Decimals})
	}
	return out, nil
}

// chainsTokens lists the token assets registered under a chain.
func (s *Server) chainsTokens(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Chain string `json:"chain"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.Chain == "" {
		return nil, fmt.Errorf("chain is required")
	}
	return s.store.TokenAssetsByChain(p.Chain)
}

func (s *Server) walletCreate(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	wallet, err := s.provisioner.CreateWallet(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	return walletToInfo(wallet), nil
}

func (s *Server) walletImport(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		UserID   string `json:"user_id"`
		Mnemonic string `json:"mnemonic"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.UserID == "" || p.Mnemonic == "" {
		return nil, fmt.Errorf("user_id and mnemonic are required")
	}

	wallet, err := s.provisioner.ImportWallet(ctx, p.UserID, p.Mnemonic)
	if err != nil {
		return nil, err
	}
	return walletToInfo(wallet), nil
}

func (s *Server) walletList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	wallets, err := s.store.WalletsByUser(p.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]*WalletInfo, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, walletToInfo(w))
	}
	return out, nil
}

func (s *Server) walletSetDefault(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		UserID   string `json:"user_id"`
		WalletID string `json:"wallet_id"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.UserID == "" || p.WalletID == "" {
		return nil, fmt.Errorf("user_id and wallet_id are required")
	}

	if err := s.provisioner.SetDefaultWallet(p.UserID, p.WalletID); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

// walletAddToken attaches a token to a wallet: either a registered token by
// ID, or an unregistered contract token described inline (registered on the
// fly, keyed on chain and contract).
func (s *Server) walletAddToken(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		WalletID     string `json:"wallet_id"`
		TokenAssetID string `json:"token_asset_id,omitempty"`
		Chain        string `json:"chain,omitempty"`
		Contract     string `json:"contract,omitempty"`
		Symbol       string `json:"symbol,omitempty"`
		Name         string `json:"name,omitempty"`
		Decimals     uint8  `json:"decimals,omitempty"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.WalletID == "" {
		return nil, fmt.Errorf("wallet_id is required")
	}

	var asset *storage.WalletAsset
	var err error
	switch {
	case p.TokenAssetID != "":
		asset, err = s.provisioner.AddTokenAsset(ctx, p.WalletID, p.TokenAssetID)
	case p.Contract != "":
		asset, err = s.provisioner.AddContractToken(ctx, p.WalletID, provision.TokenSpec{
			Chain:    p.Chain,
			Contract: p.Contract,
			Symbol:   p.Symbol,
			Name:     p.Name,
			Decimals: p.Decimals,
		})
	default:
		return nil, fmt.Errorf("token_asset_id or contract is required")
	}
	if err != nil {
		return nil, err
	}
	return assetToInfo(asset), nil
}

func (s *Server) walletAssets(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		WalletID string `json:"wallet_id"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.WalletID == "" {
		return nil, fmt.Errorf("wallet_id is required")
	}

	assets, err := s.store.WalletAssetsByWallet(p.WalletID)
	if err != nil {
		return nil, err
	}
	out := make([]*AssetInfo, 0, len(assets))
	for _, a := range assets {
		out = append(out, assetToInfo(a))
	}
	return out, nil
}

func (s *Server) walletRefreshBalance(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		WalletAssetID string `json:"wallet_asset_id"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.WalletAssetID == "" {
		return nil, fmt.Errorf("wallet_asset_id is required")
	}

	asset, err := s.provisioner.RefreshBalance(ctx, p.WalletAssetID)
	if err != nil {
		return nil, err
	}
	return assetToInfo(asset), nil
}

// sendParams are shared by wallet_send and wallet_approveDelegate.
type sendParams struct {
	WalletID     string `json:"wallet_id"`
	Chain        string `json:"chain"`
	TokenAssetID string `json:"token_asset_id,omitempty"`
	To           string `json:"to"`
	Amount       string `json:"amount"`
	Speed        string `json:"speed,omitempty"`
	Delegate     string `json:"delegate,omitempty"`
}

// resolveSend turns wire params into adapter submit params plus the wallet
// asset the transfer spends from.
func (s *Server) resolveSend(p *sendParams) (adapter.SubmitParams, *storage.WalletAsset, error) {
	var zero adapter.SubmitParams
	if p.WalletID == "" || p.Chain == "" {
		return zero, nil, fmt.Errorf("wallet_id and chain are required")
	}

	token, err := s.resolveToken(p.Chain, p.TokenAssetID)
	if err != nil {
		return zero, nil, err
	}
	amount, err := decimal.NewFromString(p.Amount)
	if err != nil {
		return zero, nil, fmt.Errorf("invalid amount %q", p.Amount)
	}
	tier, err := fees.ParseTier(p.Speed)
	if err != nil {
		return zero, nil, err
	}

	assets, err := s.store.WalletAssetsByWallet(p.WalletID)
	if err != nil {
		return zero, nil, err
	}
	var from *storage.WalletAsset
	for _, a := range assets {
		if a.BlockchainKey == p.Chain {
			from = a
			break
		}
	}
	if from == nil {
		return zero, nil, fmt.Errorf("wallet has no %s asset", p.Chain)
	}

	mnemonic, err := s.provisioner.WalletMnemonic(p.WalletID)
	if err != nil {
		return zero, nil, err
	}

	return adapter.SubmitParams{
		From:     from.Address(),
		To:       p.To,
		Amount:   amount,
		Asset:    token,
		Mnemonic: mnemonic,
		Speed:    tier,
	}, from, nil
}

// resolveToken returns the token asset for an explicit ID, or the chain's
// layer-one asset when none is given.
func (s *Server) resolveToken(chainKey, tokenAssetID string) (*chain.TokenAsset, error) {
	if tokenAssetID != "" {
		return s.store.TokenAsset(tokenAssetID)
	}
	natives := s.set.LayerOneTokens(chainKey)
	if len(natives) == 0 {
		return nil, fmt.Errorf("no layer-one asset for chain %q", chainKey)
	}
	return natives[0], nil
}

func (s *Server) walletSend(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p sendParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.To == "" {
		return nil, fmt.Errorf("to is required")
	}

	submit, from, err := s.resolveSend(&p)
	if err != nil {
		return nil, err
	}
	ad, err := s.registry.Get(p.Chain)
	if err != nil {
		return nil, err
	}

	receipt, err := ad.BuildAndSubmit(ctx, submit)
	if err != nil {
		return nil, err
	}

	// Record the outgoing transfer immediately; the poller confirms it
	// once the explorer sees the block.
	pending := adapter.Transfer{
		Hash:     receipt.TxHash,
		From:     submit.From,
		To:       submit.To,
		Amount:   submit.Amount,
		Contract: submit.Asset.ContractAddress,
		Status:   adapter.StatusPending,
		Time:     time.Now(),
	}
	if err := s.norm.Ingest(from, pending, storage.SourceExplorer); err != nil {
		s.log.Warn("failed to record submitted transfer", "hash", receipt.TxHash, "error", err)
	}

	return map[string]string{
		"tx_hash":         receipt.TxHash,
		"explorer_suffix": receipt.ExplorerSuffix,
		"total_fee":       receipt.TotalFee.String(),
	}, nil
}

func (s *Server) walletApproveDelegate(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p sendParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.Delegate == "" {
		return nil, fmt.Errorf("delegate is required")
	}

	submit, _, err := s.resolveSend(&p)
	if err != nil {
		return nil, err
	}
	ad, err := s.registry.Get(p.Chain)
	if err != nil {
		return nil, err
	}

	receipt, err := adapter.ApproveDelegate(ctx, ad, submit, p.Delegate)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"tx_hash":   receipt.TxHash,
		"total_fee": receipt.TotalFee.String(),
	}, nil
}

func (s *Server) walletHistory(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		WalletID string `json:"wallet_id"`
		Limit    int    `json:"limit,omitempty"`
		Offset   int    `json:"offset,omitempty"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.WalletID == "" {
		return nil, fmt.Errorf("wallet_id is required")
	}

	txs, err := s.store.TransactionsByWallet(p.WalletID, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	out := make([]*TxInfo, 0, len(txs))
	for _, t := range txs {
		out = append(out, txToInfo(t))
	}
	return out, nil
}

// FeeQuote is the wire representation of one tier's fee parameters.
type FeeQuote struct {
	BaseFeePerGas        string `json:"base_fee_per_gas,omitempty"`
	MaxFeePerGas         string `json:"max_fee_per_gas,omitempty"`
	MaxPriorityFeePerGas string `json:"max_priority_fee_per_gas,omitempty"`
	Scalar               string `json:"scalar,omitempty"`
	Total                string `json:"total"`
}

func (s *Server) feesEstimate(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Family   string `json:"family"`
		GasLimit uint64 `json:"gas_limit,omitempty"`
		Units    uint64 `json:"units,omitempty"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.Family == "" {
		return nil, fmt.Errorf("family is required")
	}
	gasLimit := p.GasLimit
	if gasLimit == 0 {
		gasLimit = fees.GasLimitNativeTransfer
	}
	units := p.Units
	if units == 0 {
		units = 1
	}

	out := make(map[fees.Tier]*FeeQuote, len(fees.Tiers))
	for _, tier := range fees.Tiers {
		fp, err := s.oracle.Resolve(ctx, chain.Family(p.Family), tier, gasLimit)
		if err != nil {
			return nil, err
		}
		out[tier] = feeQuote(fp, units)
	}
	return out, nil
}

func feeQuote(p *fees.Params, units uint64) *FeeQuote {
	q := &FeeQuote{Total: p.Total(units).String()}
	if p.BaseFeePerGas != nil {
		q.BaseFeePerGas = p.BaseFeePerGas.String()
	}
	if p.MaxFeePerGas != nil {
		q.MaxFeePerGas = p.MaxFeePerGas.String()
	}
	if p.MaxPriorityFeePerGas != nil {
		q.MaxPriorityFeePerGas = p.MaxPriorityFeePerGas.String()
	}
	if p.Scalar != nil {
		q.Scalar = p.Scalar.String()
	}
	return q
}
