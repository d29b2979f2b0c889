package txnorm

import (
	"context"
	"time"

	"github.com/opencustody/vaultd/internal/adapter"
	"github.com/opencustody/vaultd/internal/storage"
	"github.com/opencustody/vaultd/pkg/logging"
	"github.com/opencustody/vaultd/pkg/retry"
)

// DefaultPollInterval is how often the explorer poller walks the asset set.
const DefaultPollInterval = 2 * time.Minute

// Poller periodically asks each chain's explorer for history on every
// registered wallet address and feeds new transfers to the normalizer.
type Poller struct {
	registry *adapter.Registry
	store    *storage.Storage
	norm     *Normalizer
	interval time.Duration
	log      *logging.Logger
}

// NewPoller builds an explorer poller. interval <= 0 uses the default.
func NewPoller(registry *adapter.Registry, store *storage.Storage, norm *Normalizer,
	interval time.Duration, log *logging.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		registry: registry,
		store:    store,
		norm:     norm,
		interval: interval,
		log:      log.Component("poller"),
	}
}

// Run polls until the context is cancelled. The first sweep happens
// immediately rather than one interval in.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.PollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce sweeps every chain once. A failing chain or address logs and
// moves on; the next sweep retries from the same cursor since only ingested
// rows advance it.
func (p *Poller) PollOnce(ctx context.Context) {
	for _, key := range p.registry.Keys() {
		if err := p.pollChain(ctx, key); err != nil {
			p.log.Warn("chain sweep failed", "chain", key, "error", err)
		}
	}
}

func (p *Poller) pollChain(ctx context.Context, chainKey string) error {
	ad, err := p.registry.Get(chainKey)
	if err != nil {
		return err
	}
	sinceBlock, err := p.store.LastSeenBlock(chainKey)
	if err != nil {
		return err
	}
	assets, err := p.store.WalletAssetsByChain(chainKey)
	if err != nil {
		return err
	}

	for _, asset := range assets {
		transfers, err := p.fetchHistory(ctx, ad, asset.Address(), sinceBlock)
		if err != nil {
			p.log.Warn("history fetch failed",
				"chain", chainKey, "address", asset.Address(), "error", err)
			continue
		}
		for _, tr := range transfers {
			if err := p.norm.Ingest(asset, tr, storage.SourceExplorer); err != nil {
				p.log.Error("failed to ingest transfer",
					"chain", chainKey, "hash", tr.Hash, "error", err)
			}
		}
	}
	return nil
}

// fetchHistory wraps the explorer call in bounded backoff. Only transient
// provider errors are retried; terminal ones surface immediately.
func (p *Poller) fetchHistory(ctx context.Context, ad adapter.Adapter, address string, sinceBlock uint64) ([]adapter.Transfer, error) {
	var transfers []adapter.Transfer
	err := retry.Do(ctx, func() error {
		var err error
		transfers, err = ad.FetchHistory(ctx, address, sinceBlock)
		if err != nil && !adapter.IsRetryable(err) {
			return retry.Permanent(err)
		}
		return err
	}, retry.Config{
		OnRetry: func(err error, next time.Duration) {
			p.log.Debug("retrying history fetch", "address", address, "in", next, "error", err)
		},
	})
	return transfers, err
}
