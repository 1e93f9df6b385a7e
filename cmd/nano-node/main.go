package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yxse/nan-node/account"
	"github.com/yxse/nan-node/backlogscan"
	"github.com/yxse/nan-node/block"
	"github.com/yxse/nan-node/blockprocessor"
	"github.com/yxse/nan-node/bootstrap"
	"github.com/yxse/nan-node/boundedbacklog"
	"github.com/yxse/nan-node/config"
	"github.com/yxse/nan-node/confirmingset"
	"github.com/yxse/nan-node/crypto"
	"github.com/yxse/nan-node/ledger"
	"github.com/yxse/nan-node/numeric"
	"github.com/yxse/nan-node/observability/logging"
	"github.com/yxse/nan-node/onlinereps"
	"github.com/yxse/nan-node/ratelimit"
	"github.com/yxse/nan-node/scheduler"
	"github.com/yxse/nan-node/stats"
	"github.com/yxse/nan-node/store"
	"github.com/yxse/nan-node/store/boltstore"
	"github.com/yxse/nan-node/store/leveldbkv"
	"github.com/yxse/nan-node/transport/tcp"
)

// peerKeyPrefix namespaces the flat peerstore's keys, letting PrefixScan
// enumerate known peers without touching anything else sharing the file.
const peerKeyPrefix = "peer:"

// processorBatchSize and processorQueueLimit bound the block processor's
// drain batches and backlog, independent of the bounded backlog's own
// max_backlog — the processor queue is blocks awaiting first application,
// not unconfirmed blocks already applied.
const (
	processorBatchSize  = 256
	processorQueueLimit = 16384
)

// schedulerMainInterval and schedulerCleanupInterval pace the priority
// scheduler's two background threads: how often a bucket with vacancy gets
// its next election started, and how often finished elections are swept
// from each bucket's active set.
const (
	schedulerMainInterval    = 100 * time.Millisecond
	schedulerCleanupInterval = time.Second
)

func main() {
	configPath := flag.String("config", "nano-node.toml", "path to the node's TOML configuration file")
	env := flag.String("env", "dev", "deployment environment, included on every log line")
	flag.Parse()

	logger := logging.Setup("nano-node", *env)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	if err := run(context.Background(), logger, cfg); err != nil {
		logger.Error("node exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := stats.New()
	reg.MustRegister()

	keyPair, err := crypto.LoadOrCreateKeystore(cfg.NodeKeyFile)
	if err != nil {
		return fmt.Errorf("load node identity: %w", err)
	}
	selfAddr, err := keyPair.Address()
	if err != nil {
		return fmt.Errorf("derive node address: %w", err)
	}
	logger.Info("node identity loaded", logging.MaskField("address", selfAddr.String()))

	genesisAccount := selfAddr
	if cfg.GenesisAccount != "" {
		genesisAccount, err = account.Decode(cfg.GenesisAccount)
		if err != nil {
			return fmt.Errorf("decode genesis account: %w", err)
		}
	}
	genesisBalance, err := numeric.DecodeUint128Decimal(cfg.GenesisBalanceRaw)
	if err != nil {
		return fmt.Errorf("decode genesis balance: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	st, err := boltstore.Open(filepath.Join(cfg.DataDir, "nano.db"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	peers, err := leveldbkv.Open(filepath.Join(cfg.DataDir, "peers.db"))
	if err != nil {
		return fmt.Errorf("open peerstore: %w", err)
	}
	defer peers.Close()
	for _, bn := range cfg.Bootnodes {
		if err := peers.Put([]byte(peerKeyPrefix+bn), []byte("bootnode")); err != nil {
			return fmt.Errorf("seed bootnode peerstore entry: %w", err)
		}
	}
	known, err := peers.PrefixScan([]byte(peerKeyPrefix))
	if err != nil {
		return fmt.Errorf("scan peerstore: %w", err)
	}
	logger.Info("peerstore loaded", slog.Int("known_peers", len(known)))

	ledg := ledger.New(genesisAccount, genesisBalance, cfg.WorkThreshold)
	if err := seedGenesisIfAbsent(ctx, st, ledg, genesisAccount, genesisBalance); err != nil {
		return fmt.Errorf("seed genesis account: %w", err)
	}

	confirming := confirmingset.New(st, ledg)
	proc := blockprocessor.New(st, ledg, processorBatchSize, processorQueueLimit)

	sched := scheduler.New(st, ledg, scheduler.Config{
		MaxBlocks:         cfg.Bucket.MaxBlocks,
		ReservedElections: cfg.Bucket.ReservedElections,
		MaxElections:      cfg.Bucket.MaxElections,
	})
	sched.Subscribe(proc, confirming)

	backlog := boundedbacklog.New(st, ledg, boundedbacklog.Config{
		MaxBacklog:      cfg.Bounded.MaxBacklog,
		BucketThreshold: cfg.Bounded.BucketThreshold,
		BatchSize:       cfg.Backlog.BatchSize,
	}, boundedbacklog.Interlocks{
		ConfirmingSet: confirming,
	})
	backlog.Subscribe(proc, confirming)

	scanner := backlogscan.New(st, ledg, backlog, backlogscan.Config{
		Enable:    cfg.Backlog.Enable,
		BatchSize: cfg.Backlog.BatchSize,
		RateLimit: cfg.Backlog.RateLimit,
	})

	onlineVoteMin, err := numeric.DecodeUint128Decimal(cfg.OnlineReps.VoteWeightMinimumRaw)
	if err != nil {
		return fmt.Errorf("decode online-reps vote weight minimum: %w", err)
	}
	onlineMin, err := numeric.DecodeUint128Decimal(cfg.OnlineReps.MinimumWeightRaw)
	if err != nil {
		return fmt.Errorf("decode online-reps minimum weight: %w", err)
	}
	reps := onlinereps.New(st, ledg, onlinereps.Config{
		VoteWeightMinimum: onlineVoteMin,
		WeightInterval:    time.Duration(cfg.OnlineReps.WeightIntervalMs) * time.Millisecond,
		WeightCutoff:      cfg.OnlineReps.WeightCutoff,
		QuorumPercent:     cfg.OnlineReps.QuorumPercent,
		MinimumWeight:     onlineMin,
		SampleInterval:    time.Duration(cfg.OnlineReps.SampleIntervalMs) * time.Millisecond,
	})

	accountSets := bootstrap.New(bootstrap.Config{
		PriorityMax:     cfg.Bootstrap.PriorityMax,
		PriorityInitial: cfg.Bootstrap.PriorityInitial,
		PrioritiesMax:   cfg.Bootstrap.PrioritiesMax,
		MaxFails:        cfg.Bootstrap.MaxFails,
		PriorityCutoff:  cfg.Bootstrap.PriorityCutoff,
		BlockingMax:     cfg.Bootstrap.BlockingMax,
		Cooldown:        time.Duration(cfg.Bootstrap.CooldownMs) * time.Millisecond,
	}, reg)
	if cfg.NetworkID == "B" {
		accountSets.SeedWeights(bootstrap.PreconfiguredWeightsBeta)
	}
	peerScoring := bootstrap.NewPeerScore(bootstrap.PeerScoreConfig{ChannelLimit: uint64(cfg.Bootstrap.ChannelLimit)})

	// Bootstrap traffic's own limit (cfg.Bandwidth.BootstrapLimit) is not
	// read here; the inbound listener's channels all share the single
	// generic bucket, matching transport/tcp.Channel's one-bucket-per-channel
	// design.
	bandwidth := ratelimit.New(cfg.Bandwidth.GenericLimit, float64(cfg.Bandwidth.GenericLimit)/cfg.Bandwidth.GenericBurstRatio)

	ln, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddress, err)
	}
	listener := tcp.NewListener(ln, tcp.ListenerConfig{
		NetworkID:        cfg.NetworkID[0],
		MaxInbound:       cfg.TCP.MaxInboundConnections,
		MaxPerIP:         cfg.Network.MaxPeersPerIP,
		MaxPerSubnetwork: cfg.Network.MaxPeersPerSubnetwork,
		HandshakeTimeout: time.Duration(cfg.TCP.HandshakeTimeoutMs) * time.Millisecond,
		DefaultTimeout:   time.Duration(cfg.TCP.IOTimeoutMs) * time.Millisecond,
		SilentTolerance:  time.Duration(cfg.Network.SilentConnectionToleranceMs) * time.Millisecond,
	}, keyPair, reg)

	go acceptLoop(ctx, logger, listener, bandwidth, peerScoring, peers)
	go runBackgroundLoops(ctx, logger, sched, proc, backlog, scanner, reps)
	go serveMetrics(ctx, logger, cfg.MetricsAddress)

	logger.Info("node started",
		logging.MaskField("listen_address", cfg.ListenAddress),
		slog.String("metrics", cfg.MetricsAddress),
		slog.String("network_id", cfg.NetworkID),
		slog.String("data_dir", cfg.DataDir),
	)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// seedGenesisIfAbsent materializes the genesis account's open block once,
// the same way the teacher's node bootstraps a fresh chain from a genesis
// spec on first run, but here by directly calling ledger.Seed rather than
// replaying a block through the processor.
func seedGenesisIfAbsent(ctx context.Context, st store.Store, ledg *ledger.Ledger, genesisAccount account.Address, genesisBalance numeric.Uint128) error {
	readTx, err := st.TxBeginRead()
	if err != nil {
		return err
	}
	_, found, err := ledg.AccountInfoOf(readTx, genesisAccount)
	readTx.End()
	if err != nil {
		return err
	}
	if found {
		return nil
	}

	genesisBlock := &block.Block{
		Type:           block.State,
		Account:        genesisAccount,
		Representative: genesisAccount,
		Balance:        genesisBalance,
	}
	sideband := &block.Sideband{
		Account:   genesisAccount,
		Balance:   genesisBalance,
		Height:    1,
		Timestamp: uint64(time.Now().Unix()),
		Details:   block.Details{IsReceive: true},
	}
	info := ledger.AccountInfo{
		Head:           genesisBlock.Hash(),
		OpenBlock:      genesisBlock.Hash(),
		Representative: genesisAccount,
		Balance:        genesisBalance,
		BlockCount:     1,
	}

	writeTx, err := st.TxBeginWrite(ctx, store.SlotGeneric)
	if err != nil {
		return err
	}
	if err := ledg.Seed(writeTx, genesisAccount, info, genesisBlock, sideband); err != nil {
		writeTx.Abort()
		return err
	}
	ledg.SeedBacklogCount(0)
	return writeTx.Commit()
}

func acceptLoop(ctx context.Context, logger *slog.Logger, listener *tcp.Listener, bandwidth *ratelimit.Bucket, peerScoring *bootstrap.PeerScore, peers *leveldbkv.KV) {
	var mu sync.Mutex
	var channels []bootstrap.Channel

	for {
		socket, remote, err := listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("accept failed", slog.Any("error", err))
			continue
		}
		channel := tcp.NewChannel(socket, bandwidth)
		go func() {
			if err := channel.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("channel send loop exited", slog.Any("error", err))
			}
		}()

		mu.Lock()
		channels = append(channels, channel)
		peerScoring.Sync(channels)
		mu.Unlock()

		if err := peers.Put([]byte(peerKeyPrefix+remote.String()), []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
			logger.Warn("failed to record peer", slog.Any("error", err))
		}
		logger.Info("inbound peer connected", logging.MaskField("peer_id", remote.String()))
	}
}

func runBackgroundLoops(ctx context.Context, logger *slog.Logger, sched *scheduler.Scheduler, proc *blockprocessor.Processor, backlog *boundedbacklog.Backlog, scanner *backlogscan.Scanner, reps *onlinereps.Tracker) {
	go func() {
		if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("block processor loop exited", slog.Any("error", err))
		}
	}()
	go sched.RunMain(ctx, schedulerMainInterval)
	go sched.RunCleanup(ctx, schedulerCleanupInterval)
	go backlog.RunRollbackLoop(ctx, time.Second)
	go func() {
		if err := backlog.RunScanLoop(ctx); err != nil && ctx.Err() == nil {
			logger.Error("bounded backlog scan loop exited", slog.Any("error", err))
		}
	}()
	go backlog.RunNotifier(ctx)
	go scanner.Run(ctx)
	go reps.RunSampler(ctx)
}

func serveMetrics(ctx context.Context, logger *slog.Logger, addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && ctx.Err() == nil {
		logger.Error("metrics server exited", slog.Any("error", err))
	}
}
