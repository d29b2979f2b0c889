package chain

// NewTezos returns the Tezos chain definition. Derivation is SLIP-10
// ed25519 at m/44'/1729'/0'/0' producing tz1 addresses; the same address is
// used on mainnet and ghostnet.
func NewTezos() *Blockchain {
	return &Blockchain{
		Key:       "XTZ",
		Name:      "Tezos",
		Family:    FamilyTezos,
		Decimals:  6,
		CoinType:  1729,
		Purpose:   44,
		URIScheme: "tezos",
		Networks: map[NetworkKind]Network{
			NetworkMain: {
				Kind:        NetworkMain,
				RPCURL:      "https://mainnet.api.tez.ie",
				ExplorerURL: "https://api.tzkt.io",
			},
			NetworkTest: {
				Kind:        NetworkTest,
				RPCURL:      "https://ghostnet.ecadinfra.com",
				ExplorerURL: "https://api.ghostnet.tzkt.io",
			},
		},
	}
}
