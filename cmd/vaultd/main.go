// Package main provides the vaultd daemon - a custodial multi-chain wallet
// backend.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/opencustody/vaultd/internal/adapter"
	"github.com/opencustody/vaultd/internal/chain"
	"github.com/opencustody/vaultd/internal/config"
	"github.com/opencustody/vaultd/internal/fees"
	"github.com/opencustody/vaultd/internal/keyring"
	"github.com/opencustody/vaultd/internal/provider"
	"github.com/opencustody/vaultd/internal/provision"
	"github.com/opencustody/vaultd/internal/rpc"
	"github.com/opencustody/vaultd/internal/storage"
	"github.com/opencustody/vaultd/internal/txnorm"
	"github.com/opencustody/vaultd/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.vaultd", "Data directory")
		apiAddr     = flag.String("api", "127.0.0.1:8798", "JSON-RPC API address")
		testnet     = flag.Bool("testnet", false, "Run against test networks (separate data)")
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{
		Level:      *logLevel,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("vaultd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	// Testnet runs keep their own data directory.
	effectiveDataDir := *dataDir
	if *testnet {
		effectiveDataDir = filepath.Join(*dataDir, "testnet")
	}

	cfg, err := config.LoadConfig(effectiveDataDir)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}
	cfg.Storage.DataDir = effectiveDataDir
	if *testnet {
		cfg.NetworkKind = string(chain.NetworkTest)
	}
	network := cfg.Network()

	log.Info("Config loaded", "path", config.ConfigPath(effectiveDataDir), "network", network)

	passphrase, err := config.Passphrase()
	if err != nil {
		log.Fatal("Wallet passphrase unavailable", "error", err)
	}
	codec, err := keyring.NewCodec(passphrase)
	if err != nil {
		log.Fatal("Failed to initialize secret codec", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.New(&storage.Config{DataDir: cfg.Storage.DataDir})
	if err != nil {
		log.Fatal("Failed to initialize storage", "error", err)
	}
	defer store.Close()

	set, err := chain.DefaultSet()
	if err != nil {
		log.Fatal("Failed to build chain set", "error", err)
	}
	if err := cfg.ApplyTo(set); err != nil {
		log.Fatal("Failed to apply chain overrides", "error", err)
	}
	if err := store.SeedChains(set); err != nil {
		log.Fatal("Failed to seed chain catalogue", "error", err)
	}

	clients := dialProviders(ctx, set, network, log)

	oracle, err := fees.NewOracle(cfg.Fees.CacheTTL, log, clients.feeSources()...)
	if err != nil {
		log.Fatal("Failed to build fee oracle", "error", err)
	}

	registry, err := adapter.NewRegistry(clients.adapters(set, network, oracle, log)...)
	if err != nil {
		log.Fatal("Failed to build adapter registry", "error", err)
	}
	log.Info("Adapters registered", "chains", registry.Keys())

	provisioner := provision.New(set, registry, store, codec, network, cfg.FiatCurrency, log)
	norm := txnorm.NewNormalizer(set, store, log)
	dispatcher := txnorm.NewDispatcher(norm, cfg.Ingest.QueueDepth, log)
	poller := txnorm.NewPoller(registry, store, norm, cfg.Ingest.PollInterval, log)

	go poller.Run(ctx)

	var webhookServer *http.Server
	if cfg.Ingest.WebhookListenAddr != "" {
		ingestor := txnorm.NewIngestor(set, store, dispatcher, log)
		mux := http.NewServeMux()
		mux.Handle("POST /v1/stream", ingestor.Handler())
		webhookServer = &http.Server{
			Addr:         cfg.Ingest.WebhookListenAddr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		}
		go func() {
			log.Info("Webhook listener started", "addr", cfg.Ingest.WebhookListenAddr)
			if err := webhookServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("Webhook listener error", "error", err)
			}
		}()
	}

	rpcServer := rpc.NewServer(set, store, registry, oracle, provisioner, norm)
	if err := rpcServer.Start(*apiAddr); err != nil {
		log.Fatal("Failed to start RPC server", "error", err)
	}

	log.Info("vaultd started", "version", version, "network", network)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("Shutting down")

	cancel()
	if err := rpcServer.Stop(); err != nil {
		log.Warn("RPC shutdown error", "error", err)
	}
	if webhookServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := webhookServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("Webhook shutdown error", "error", err)
		}
		shutdownCancel()
	}
	// Drain queued webhook transfers before the store closes.
	dispatcher.Close()

	log.Info("Shutdown complete")
}

// providerClients holds the per-chain provider handles built at startup.
type providerClients struct {
	evm      map[string]*provider.EVMClient
	scan     map[string]*provider.EtherscanClient
	esplora  map[string]*provider.EsploraClient
	solana   map[string]*provider.SolanaClient
	tezos    map[string]*provider.TezosClient
	families map[chain.Family]bool
}

// dialProviders builds a provider client for every active chain on the
// selected network. A chain whose provider cannot be reached is skipped
// with a warning; the daemon runs with the chains it has.
func dialProviders(ctx context.Context, set *chain.Set, network chain.NetworkKind, log *logging.Logger) *providerClients {
	c := &providerClients{
		evm:      make(map[string]*provider.EVMClient),
		scan:     make(map[string]*provider.EtherscanClient),
		esplora:  make(map[string]*provider.EsploraClient),
		solana:   make(map[string]*provider.SolanaClient),
		tezos:    make(map[string]*provider.TezosClient),
		families: make(map[chain.Family]bool),
	}

	for _, b := range set.Active() {
		n, ok := b.Network(network)
		if !ok {
			log.Warn("Chain has no endpoint for network", "chain", b.Key, "network", network)
			continue
		}

		switch b.Family {
		case chain.FamilyEVM:
			dialCtx, dialCancel := context.WithTimeout(ctx, 15*time.Second)
			client, err := provider.DialEVM(dialCtx, n.RPCURL)
			dialCancel()
			if err != nil {
				log.Warn("Skipping unreachable EVM chain", "chain", b.Key, "error", err)
				continue
			}
			c.evm[b.Key] = client
			c.scan[b.Key] = provider.NewEtherscanClient(n.ExplorerURL, n.ExplorerAPIKey)
		case chain.FamilyUTXO:
			c.esplora[b.Key] = provider.NewEsploraClient(n.ExplorerURL)
		case chain.FamilySolana:
			c.solana[b.Key] = provider.NewSolanaClient(n.RPCURL)
		case chain.FamilyTezos:
			c.tezos[b.Key] = provider.NewTezosClient(n.RPCURL, n.ExplorerURL)
		default:
			log.Warn("Unknown chain family", "chain", b.Key, "family", b.Family)
			continue
		}
		c.families[b.Family] = true
	}
	return c
}

// feeSources returns one fee source per family present. EVM and UTXO fees
// track the family's primary chain (Ethereum, Bitcoin); Solana and Tezos
// fees are flat.
func (c *providerClients) feeSources() []fees.Source {
	var sources []fees.Source
	if client, ok := c.evm["ETH"]; ok {
		sources = append(sources, fees.NewEVMSource(client))
	} else if c.families[chain.FamilyEVM] {
		for _, client := range c.evm {
			sources = append(sources, fees.NewEVMSource(client))
			break
		}
	}
	if client, ok := c.esplora["BTC"]; ok {
		sources = append(sources, fees.NewUTXOSource(client))
	} else if c.families[chain.FamilyUTXO] {
		for _, client := range c.esplora {
			sources = append(sources, fees.NewUTXOSource(client))
			break
		}
	}
	if c.families[chain.FamilySolana] {
		sources = append(sources, fees.NewSolanaSource())
	}
	if c.families[chain.FamilyTezos] {
		sources = append(sources, fees.NewTezosSource())
	}
	return sources
}

// adapters builds one adapter per chain that has a provider client.
func (c *providerClients) adapters(set *chain.Set, network chain.NetworkKind, oracle *fees.Oracle, log *logging.Logger) []adapter.Adapter {
	var out []adapter.Adapter
	for _, b := range set.Active() {
		switch b.Family {
		case chain.FamilyEVM:
			if client, ok := c.evm[b.Key]; ok {
				out = append(out, adapter.NewEVMAdapter(b, network, client, c.scan[b.Key], oracle, log))
			}
		case chain.FamilyUTXO:
			if client, ok := c.esplora[b.Key]; ok {
				out = append(out, adapter.NewUTXOAdapter(b, network, client, oracle, log))
			}
		case chain.FamilySolana:
			if client, ok := c.solana[b.Key]; ok {
				out = append(out, adapter.NewSolanaAdapter(b, network, client, oracle, log))
			}
		case chain.FamilyTezos:
			if client, ok := c.tezos[b.Key]; ok {
				out = append(out, adapter.NewTezosAdapter(b, network, client, oracle, log))
			}
		}
	}
	return out
}
