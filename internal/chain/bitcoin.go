package chain

// NewBitcoin returns the Bitcoin chain definition. Addresses are native
// SegWit (P2WPKH); mainnet and testnet encode the same key with different
// bech32 prefixes.
func NewBitcoin() *Blockchain {
	return &Blockchain{
		Key:       "BTC",
		Name:      "Bitcoin",
		Family:    FamilyUTXO,
		Decimals:  8,
		CoinType:  0,
		Purpose:   84,
		URIScheme: "bitcoin",
		UTXO: &UTXOParams{
			SupportsSegWit: true,
			Main: UTXONetParams{
				PubKeyHashAddrID: 0x00,
				ScriptHashAddrID: 0x05,
				Bech32HRP:        "bc",
				WIF:              0x80,
			},
			Test: UTXONetParams{
				PubKeyHashAddrID: 0x6f,
				ScriptHashAddrID: 0xc4,
				Bech32HRP:        "tb",
				WIF:              0xef,
			},
		},
		Networks: map[NetworkKind]Network{
			NetworkMain: {
				Kind:        NetworkMain,
				RPCURL:      "https://blockstream.info/api",
				ExplorerURL: "https://blockstream.info/api",
			},
			NetworkTest: {
				Kind:        NetworkTest,
				RPCURL:      "https://blockstream.info/testnet/api",
				ExplorerURL: "https://blockstream.info/testnet/api",
			},
		},
	}
}

// NewLitecoin returns the Litecoin chain definition.
func NewLitecoin() *Blockchain {
	return &Blockchain{
		Key:       "LTC",
		Name:      "Litecoin",
		Family:    FamilyUTXO,
		Decimals:  8,
		CoinType:  2,
		Purpose:   84,
		URIScheme: "litecoin",
		UTXO: &UTXOParams{
			SupportsSegWit: true,
			Main: UTXONetParams{
				PubKeyHashAddrID: 0x30,
				ScriptHashAddrID: 0x32,
				Bech32HRP:        "ltc",
				WIF:              0xb0,
			},
			Test: UTXONetParams{
				PubKeyHashAddrID: 0x6f,
				ScriptHashAddrID: 0x3a,
				Bech32HRP:        "tltc",
				WIF:              0xef,
			},
		},
		Networks: map[NetworkKind]Network{
			NetworkMain: {
				Kind:        NetworkMain,
				RPCURL:      "https://litecoinspace.org/api",
				ExplorerURL: "https://litecoinspace.org/api",
			},
			NetworkTest: {
				Kind:        NetworkTest,
				RPCURL:      "https://litecoinspace.org/testnet/api",
				ExplorerURL: "https://litecoinspace.org/testnet/api",
			},
		},
	}
}

// NewDogecoin returns the Dogecoin chain definition. No SegWit; legacy
// P2PKH addresses only.
func NewDogecoin() *Blockchain {
	return &Blockchain{
		Key:       "DOGE",
		Name:      "Dogecoin",
		Family:    FamilyUTXO,
		Decimals:  8,
		CoinType:  3,
		Purpose:   44,
		URIScheme: "dogecoin",
		UTXO: &UTXOParams{
			SupportsSegWit: false,
			Main: UTXONetParams{
				PubKeyHashAddrID: 0x1e,
				ScriptHashAddrID: 0x16,
				WIF:              0x9e,
			},
			Test: UTXONetParams{
				PubKeyHashAddrID: 0x71,
				ScriptHashAddrID: 0xc4,
				WIF:              0xf1,
			},
		},
		Networks: map[NetworkKind]Network{
			NetworkMain: {
				Kind:        NetworkMain,
				RPCURL:      "https://doge1.trezor.io/api/v2",
				ExplorerURL: "https://doge1.trezor.io/api/v2",
			},
			NetworkTest: {
				Kind:        NetworkTest,
				RPCURL:      "https://doge1.trezor.io/api/v2",
				ExplorerURL: "https://doge1.trezor.io/api/v2",
			},
		},
	}
}
