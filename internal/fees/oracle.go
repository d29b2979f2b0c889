// Package fees resolves speed tiers to concrete fee parameters per chain
// family. Upstream estimators rate-limit aggressively, so resolved
// estimates are cached for a short window and concurrent cache misses for
// the same family share one upstream fetch.
package fees

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/opencustody/vaultd/internal/chain"
	"github.com/opencustody/vaultd/pkg/logging"
)

// Tier is a named fee-aggressiveness level.
type Tier string

const (
	TierSlow     Tier = "slow"
	TierStandard Tier = "standard"
	TierFast     Tier = "fast"
	TierInstant  Tier = "instant"
)

// Tiers lists all tiers in ascending aggressiveness.
var Tiers = []Tier{TierSlow, TierStandard, TierFast, TierInstant}

// ParseTier validates a tier string, defaulting empty input to standard.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case "":
		return TierStandard, nil
	case TierSlow, TierStandard, TierFast, TierInstant:
		return Tier(s), nil
	}
	return "", fmt.Errorf("unknown speed tier %q", s)
}

// Gas limits for EVM transfer shapes.
const (
	GasLimitNativeTransfer = uint64(21000)
	GasLimitTokenTransfer  = uint64(65000)
	GasLimitTokenApprove   = uint64(60000)
)

// GasLimitFor returns the gas limit for transferring an asset.
func GasLimitFor(asset *chain.TokenAsset) uint64 {
	if asset != nil && asset.IsContract() {
		return GasLimitTokenTransfer
	}
	return GasLimitNativeTransfer
}

// Quote holds the raw fee numbers for one tier. EVM families populate the
// per-gas pair; the other families populate the single scalar
// (sat-per-vbyte, lamports-per-signature, mutez).
type Quote struct {
	BaseFeePerGas        *big.Int // wei, EVM only
	MaxFeePerGas         *big.Int // wei
	MaxPriorityFeePerGas *big.Int // wei
	Scalar               *big.Int
}

// Estimates is one upstream fetch: a quote for every tier of one family.
type Estimates struct {
	Family    chain.Family
	Quotes    map[Tier]Quote
	FetchedAt time.Time
}

// Params are the resolved fee parameters handed to an adapter.
type Params struct {
	Family   chain.Family
	Tier     Tier
	GasLimit uint64

	BaseFeePerGas        *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	Scalar               *big.Int
}

// Total returns the expected cost in the chain's base unit. For EVM that is
// gasLimit x (baseFee + priorityFee), the effective price actually paid; a
// quote without a base fee charges the cap. Scalar families multiply the
// scalar by the caller-supplied unit count (vbytes, signatures, or 1 for
// flat fees).
func (p *Params) Total(units uint64) *big.Int {
	if p.Family == chain.FamilyEVM {
		perGas := p.MaxFeePerGas
		if p.BaseFeePerGas != nil {
			perGas = new(big.Int).Add(p.BaseFeePerGas, p.MaxPriorityFeePerGas)
			if perGas.Cmp(p.MaxFeePerGas) > 0 {
				perGas = p.MaxFeePerGas
			}
		}
		return new(big.Int).Mul(new(big.Int).SetUint64(p.GasLimit), perGas)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(units), p.Scalar)
}

// Source fetches fee estimates for one chain family.
type Source interface {
	Family() chain.Family
	Fetch(ctx context.Context) (*Estimates, error)
}

// Oracle caches per-family estimates with single-flight population.
type Oracle struct {
	ttl     time.Duration
	sources map[chain.Family]Source
	log     *logging.Logger

	group singleflight.Group
	mu    sync.RWMutex
	cache map[chain.Family]*Estimates
}

// DefaultTTL is how long a fetched estimate set stays fresh.
const DefaultTTL = 30 * time.Second

// NewOracle builds an oracle over the given sources.
func NewOracle(ttl time.Duration, log *logging.Logger, sources ...Source) (*Oracle, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = logging.GetDefault()
	}
	o := &Oracle{
		ttl:     ttl,
		sources: make(map[chain.Family]Source, len(sources)),
		log:     log.Component("feeoracle"),
		cache:   make(map[chain.Family]*Estimates),
	}
	for _, s := range sources {
		if _, exists := o.sources[s.Family()]; exists {
			return nil, fmt.Errorf("duplicate fee source for family %q", s.Family())
		}
		o.sources[s.Family()] = s
	}
	return o, nil
}

// Resolve returns the fee parameters for (family, tier) with the given gas
// limit. A cache miss blocks on a single upstream fetch; concurrent callers
// for the same family all receive the estimate set that fetch produced.
func (o *Oracle) Resolve(ctx context.Context, family chain.Family, tier Tier, gasLimit uint64) (*Params, error) {
	est, err := o.estimates(ctx, family)
	if err != nil {
		return nil, err
	}

	quote, ok := est.Quotes[tier]
	if !ok {
		return nil, fmt.Errorf("no %s quote for family %s", tier, family)
	}

	return &Params{
		Family:               family,
		Tier:                 tier,
		GasLimit:             gasLimit,
		BaseFeePerGas:        quote.BaseFeePerGas,
		MaxFeePerGas:         quote.MaxFeePerGas,
		MaxPriorityFeePerGas: quote.MaxPriorityFeePerGas,
		Scalar:               quote.Scalar,
	}, nil
}

func (o *Oracle) estimates(ctx context.Context, family chain.Family) (*Estimates, error) {
	if est := o.cached(family); est != nil {
		return est, nil
	}

	// Single flight per family: the first caller fetches, the rest await.
	v, err, _ := o.group.Do(string(family), func() (interface{}, error) {
		// Re-check: another caller may have populated while we queued.
		if est := o.cached(family); est != nil {
			return est, nil
		}

		src, ok := o.sources[family]
		if !ok {
			return nil, fmt.Errorf("no fee source for family %q", family)
		}

		est, err := src.Fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("fee fetch for %s: %w", family, err)
		}
		est.FetchedAt = time.Now()

		o.mu.Lock()
		o.cache[family] = est
		o.mu.Unlock()

		o.log.Debug("fee estimates refreshed", "family", family)
		return est, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Estimates), nil
}

func (o *Oracle) cached(family chain.Family) *Estimates {
	o.mu.RLock()
	defer o.mu.RUnlock()
	est, ok := o.cache[family]
	if !ok || time.Since(est.FetchedAt) > o.ttl {
		return nil
	}
	return est
}
