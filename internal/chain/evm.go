package chain

// EVM chain constructors. All EVM chains share BIP44 coin type 60 so a single
// derivation yields the same address on every EVM network.

// NewEthereum returns the Ethereum chain definition.
func NewEthereum() *Blockchain {
	return &Blockchain{
		Key:       "ETH",
		Name:      "Ethereum",
		Family:    FamilyEVM,
		Decimals:  18,
		CoinType:  60,
		Purpose:   44,
		URIScheme: "ethereum",
		Networks: map[NetworkKind]Network{
			NetworkMain: {
				Kind:        NetworkMain,
				RPCURL:      "https://eth.llamarpc.com",
				ExplorerURL: "https://api.etherscan.io/api",
				ChainID:     1,
			},
			NetworkTest: {
				Kind:        NetworkTest,
				RPCURL:      "https://ethereum-sepolia-rpc.publicnode.com",
				ExplorerURL: "https://api-sepolia.etherscan.io/api",
				ChainID:     11155111,
			},
		},
	}
}

// NewBSC returns the BNB Smart Chain definition.
func NewBSC() *Blockchain {
	return &Blockchain{
		Key:       "BSC",
		Name:      "BNB Smart Chain",
		Family:    FamilyEVM,
		Decimals:  18,
		CoinType:  60,
		Purpose:   44,
		URIScheme: "ethereum",
		Networks: map[NetworkKind]Network{
			NetworkMain: {
				Kind:        NetworkMain,
				RPCURL:      "https://bsc-dataseed.binance.org",
				ExplorerURL: "https://api.bscscan.com/api",
				ChainID:     56,
			},
			NetworkTest: {
				Kind:        NetworkTest,
				RPCURL:      "https://data-seed-prebsc-1-s1.binance.org:8545",
				ExplorerURL: "https://api-testnet.bscscan.com/api",
				ChainID:     97,
			},
		},
	}
}

// NewPolygon returns the Polygon PoS chain definition.
func NewPolygon() *Blockchain {
	return &Blockchain{
		Key:       "POLYGON",
		Name:      "Polygon",
		Family:    FamilyEVM,
		Decimals:  18,
		CoinType:  60,
		Purpose:   44,
		URIScheme: "ethereum",
		Networks: map[NetworkKind]Network{
			NetworkMain: {
				Kind:        NetworkMain,
				RPCURL:      "https://polygon-rpc.com",
				ExplorerURL: "https://api.polygonscan.com/api",
				ChainID:     137,
			},
			NetworkTest: {
				Kind:        NetworkTest,
				RPCURL:      "https://rpc-amoy.polygon.technology",
				ExplorerURL: "https://api-amoy.polygonscan.com/api",
				ChainID:     80002,
			},
		},
	}
}
