package chain

// NewSolana returns the Solana chain definition. Derivation is SLIP-10
// ed25519 at m/44'/501'/0'/0'; the same address is used on mainnet-beta and
// devnet.
func NewSolana() *Blockchain {
	return &Blockchain{
		Key:       "SOL",
		Name:      "Solana",
		Family:    FamilySolana,
		Decimals:  9,
		CoinType:  501,
		Purpose:   44,
		URIScheme: "solana",
		Networks: map[NetworkKind]Network{
			NetworkMain: {
				Kind:        NetworkMain,
				RPCURL:      "https://api.mainnet-beta.solana.com",
				ExplorerURL: "https://api.mainnet-beta.solana.com",
			},
			NetworkTest: {
				Kind:        NetworkTest,
				RPCURL:      "https://api.devnet.solana.com",
				ExplorerURL: "https://api.devnet.solana.com",
			},
		},
	}
}
