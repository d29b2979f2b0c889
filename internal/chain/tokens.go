package chain

// Token asset definitions. Every chain gets its layer-one native asset;
// EVM chains additionally carry a small builtin set of stablecoin contracts.
// Further contract tokens are added at runtime via the provisioner's
// find-or-create path.

// NativeToken returns the layer-one token asset for a blockchain.
func NativeToken(b *Blockchain) *TokenAsset {
	symbol := map[string]string{
		"ETH":     "ETH",
		"BSC":     "BNB",
		"POLYGON": "POL",
		"BTC":     "BTC",
		"LTC":     "LTC",
		"DOGE":    "DOGE",
		"SOL":     "SOL",
		"XTZ":     "XTZ",
	}[b.Key]
	if symbol == "" {
		symbol = b.Key
	}
	return &TokenAsset{
		ID:            "native-" + b.Key,
		BlockchainKey: b.Key,
		Symbol:        symbol,
		Name:          b.Name,
		Decimals:      b.Decimals,
		Kind:          CoinNative,
		IsLayerOne:    true,
	}
}

// builtinContractTokens are the contract tokens registered out of the box.
var builtinContractTokens = []*TokenAsset{
	{
		ID:              "eth-usdt",
		BlockchainKey:   "ETH",
		Symbol:          "USDT",
		Name:            "Tether USD",
		Decimals:        6,
		Kind:            CoinERC20,
		ContractAddress: "0xdAC17F958D2ee523a2206206994597C13D831ec7",
	},
	{
		ID:              "eth-usdc",
		BlockchainKey:   "ETH",
		Symbol:          "USDC",
		Name:            "USD Coin",
		Decimals:        6,
		Kind:            CoinERC20,
		ContractAddress: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
	},
	{
		ID:              "eth-dai",
		BlockchainKey:   "ETH",
		Symbol:          "DAI",
		Name:            "Dai Stablecoin",
		Decimals:        18,
		Kind:            CoinERC20,
		ContractAddress: "0x6B175474E89094C44Da98b954EedeAC495271d0F",
	},
	{
		ID:              "bsc-usdt",
		BlockchainKey:   "BSC",
		Symbol:          "USDT",
		Name:            "Tether USD",
		Decimals:        18,
		Kind:            CoinBEP20,
		ContractAddress: "0x55d398326f99059fF775485246999027B3197955",
	},
	{
		ID:              "polygon-usdc",
		BlockchainKey:   "POLYGON",
		Symbol:          "USDC",
		Name:            "USD Coin",
		Decimals:        6,
		Kind:            CoinERC20,
		ContractAddress: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
	},
}

// DefaultSet builds the builtin chain set: all supported blockchains, their
// native assets, and the builtin contract tokens.
func DefaultSet() (*Set, error) {
	s := NewSet()

	chains := []*Blockchain{
		NewEthereum(),
		NewBSC(),
		NewPolygon(),
		NewBitcoin(),
		NewLitecoin(),
		NewDogecoin(),
		NewSolana(),
		NewTezos(),
	}
	for _, b := range chains {
		if err := s.Register(b); err != nil {
			return nil, err
		}
		if err := s.RegisterToken(NativeToken(b)); err != nil {
			return nil, err
		}
	}

	for _, t := range builtinContractTokens {
		if err := s.RegisterToken(t); err != nil {
			return nil, err
		}
	}

	return s, nil
}
