package fees

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/opencustody/vaultd/internal/chain"
)

// EVMFeeReader is the slice of an EVM provider client the fee source needs.
type EVMFeeReader interface {
	BaseFee(ctx context.Context) (*big.Int, error)
	SuggestPriorityFee(ctx context.Context) (*big.Int, error)
}

// EVMSource quotes EIP-1559 fee pairs from a live node. Tiers scale the
// suggested priority fee; the fee cap leaves headroom for two doublings of
// the base fee so a standard-tier transaction survives short congestion.
type EVMSource struct {
	client EVMFeeReader
}

func NewEVMSource(client EVMFeeReader) *EVMSource {
	return &EVMSource{client: client}
}

func (s *EVMSource) Family() chain.Family { return chain.FamilyEVM }

// Priority-fee multipliers per tier, in percent.
var evmTipPercent = map[Tier]int64{
	TierSlow:     80,
	TierStandard: 100,
	TierFast:     150,
	TierInstant:  200,
}

func (s *EVMSource) Fetch(ctx context.Context) (*Estimates, error) {
	baseFee, err := s.client.BaseFee(ctx)
	if err != nil {
		return nil, fmt.Errorf("read base fee: %w", err)
	}
	tip, err := s.client.SuggestPriorityFee(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest priority fee: %w", err)
	}

	quotes := make(map[Tier]Quote, len(Tiers))
	for _, tier := range Tiers {
		scaledTip := new(big.Int).Mul(tip, big.NewInt(evmTipPercent[tier]))
		scaledTip.Div(scaledTip, big.NewInt(100))

		maxFee := new(big.Int).Mul(baseFee, big.NewInt(2))
		maxFee.Add(maxFee, scaledTip)

		quotes[tier] = Quote{
			BaseFeePerGas:        baseFee,
			MaxFeePerGas:         maxFee,
			MaxPriorityFeePerGas: scaledTip,
		}
	}
	return &Estimates{Family: chain.FamilyEVM, Quotes: quotes}, nil
}

// UTXOFeeReader is the slice of an esplora client the fee source needs.
// The returned map keys are confirmation targets in blocks; values are
// sat-per-vbyte rates.
type UTXOFeeReader interface {
	FeeEstimates(ctx context.Context) (map[int]float64, error)
}

// UTXOSource quotes sat-per-vbyte rates from an esplora fee-estimates feed,
// mapping tiers to confirmation targets.
type UTXOSource struct {
	client UTXOFeeReader
}

func NewUTXOSource(client UTXOFeeReader) *UTXOSource {
	return &UTXOSource{client: client}
}

func (s *UTXOSource) Family() chain.Family { return chain.FamilyUTXO }

var utxoConfTarget = map[Tier]int{
	TierSlow:     144,
	TierStandard: 6,
	TierFast:     3,
	TierInstant:  1,
}

func (s *UTXOSource) Fetch(ctx context.Context) (*Estimates, error) {
	rates, err := s.client.FeeEstimates(ctx)
	if err != nil {
		return nil, fmt.Errorf("read fee estimates: %w", err)
	}

	quotes := make(map[Tier]Quote, len(Tiers))
	for _, tier := range Tiers {
		rate := rateForTarget(rates, utxoConfTarget[tier])
		quotes[tier] = Quote{Scalar: big.NewInt(rate)}
	}
	return &Estimates{Family: chain.FamilyUTXO, Quotes: quotes}, nil
}

// rateForTarget picks the rate at the exact confirmation target, falling
// back to the nearest faster target the feed published. Rates are rounded
// up to a whole sat-per-vbyte with a floor of 1.
func rateForTarget(rates map[int]float64, target int) int64 {
	best := float64(0)
	for t := target; t >= 1; t-- {
		if r, ok := rates[t]; ok {
			best = r
			break
		}
	}
	rate := int64(math.Ceil(best))
	if rate < 1 {
		rate = 1
	}
	return rate
}

// StaticSource serves fixed per-tier scalars for chains with flat or
// near-flat fee markets (Solana lamports per signature, Tezos mutez).
type StaticSource struct {
	family chain.Family
	quotes map[Tier]Quote
}

func NewStaticSource(family chain.Family, perTier map[Tier]int64) *StaticSource {
	quotes := make(map[Tier]Quote, len(perTier))
	for tier, v := range perTier {
		quotes[tier] = Quote{Scalar: big.NewInt(v)}
	}
	return &StaticSource{family: family, quotes: quotes}
}

// NewSolanaSource quotes the flat lamports-per-signature fee. Priority
// tiers make no difference for simple transfers.
func NewSolanaSource() *StaticSource {
	return NewStaticSource(chain.FamilySolana, map[Tier]int64{
		TierSlow:     5000,
		TierStandard: 5000,
		TierFast:     5000,
		TierInstant:  5000,
	})
}

// NewTezosSource quotes flat mutez fees per operation, bumped slightly for
// the faster tiers to raise baker priority.
func NewTezosSource() *StaticSource {
	return NewStaticSource(chain.FamilyTezos, map[Tier]int64{
		TierSlow:     1000,
		TierStandard: 1500,
		TierFast:     2000,
		TierInstant:  3000,
	})
}

func (s *StaticSource) Family() chain.Family { return s.family }

func (s *StaticSource) Fetch(ctx context.Context) (*Estimates, error) {
	quotes := make(map[Tier]Quote, len(s.quotes))
	for tier, q := range s.quotes {
		quotes[tier] = q
	}
	return &Estimates{Family: s.family, Quotes: quotes}, nil
}
