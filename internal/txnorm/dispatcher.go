package txnorm

import (
	"sync"

	"github.com/opencustody/vaultd/internal/adapter"
	"github.com/opencustody/vaultd/internal/storage"
	"github.com/opencustody/vaultd/pkg/logging"
)

// defaultQueueDepth bounds the webhook ingestion backlog. Producers block
// when the worker falls this far behind rather than dropping transfers.
const defaultQueueDepth = 256

type job struct {
	asset    *storage.WalletAsset
	transfer adapter.Transfer
	source   storage.TxSource
}

// Dispatcher decouples webhook acknowledgement from persistence: handlers
// enqueue and return, a single worker drains the queue. Delivery is at
// least once; the upsert keyed on hash absorbs duplicates.
type Dispatcher struct {
	norm *Normalizer
	jobs chan job
	wg   sync.WaitGroup
	log  *logging.Logger

	closeOnce sync.Once
}

// NewDispatcher starts the worker. depth <= 0 uses the default queue depth.
func NewDispatcher(norm *Normalizer, depth int, log *logging.Logger) *Dispatcher {
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	d := &Dispatcher{
		norm: norm,
		jobs: make(chan job, depth),
		log:  log.Component("dispatch"),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for j := range d.jobs {
		if err := d.norm.Ingest(j.asset, j.transfer, j.source); err != nil {
			d.log.Error("failed to ingest queued transfer",
				"chain", j.asset.BlockchainKey, "hash", j.transfer.Hash, "error", err)
		}
	}
}

// Enqueue hands a transfer to the worker. Blocks when the queue is full.
func (d *Dispatcher) Enqueue(asset *storage.WalletAsset, tr adapter.Transfer, source storage.TxSource) {
	d.jobs <- job{asset: asset, transfer: tr, source: source}
}

// Close stops accepting work and blocks until the queue drains.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.jobs) })
	d.wg.Wait()
}
