// Package config loads the node's TOML configuration file, following the
// teacher's pattern of a single flat struct plus a generated default file
// on first run, per spec.md §6's abstract config surface.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/yxse/nan-node/block"
)

// Config is the node's full configuration surface.
type Config struct {
	ListenAddress  string   `toml:"ListenAddress"`
	MetricsAddress string   `toml:"MetricsAddress"`
	DataDir        string   `toml:"DataDir"`
	NetworkID      string   `toml:"NetworkID"` // single ASCII char, e.g. "C" for beta
	NodeKeyFile    string   `toml:"NodeKeyFile"`
	Bootnodes      []string `toml:"Bootnodes"`

	// GenesisAccount/GenesisBalanceRaw seed ledger.New's special-cased
	// genesis answer for block_priority. WorkThreshold is the minimum
	// acceptable proof-of-work difficulty for a block to be accepted.
	GenesisAccount    string `toml:"GenesisAccount"`
	GenesisBalanceRaw string `toml:"GenesisBalanceRaw"`
	WorkThreshold     uint64 `toml:"WorkThreshold"`

	TCP        TCPConfig                `toml:"TCP"`
	Network    NetworkConfig            `toml:"Network"`
	Backlog    BacklogScanConfig        `toml:"BacklogScan"`
	Bounded    BoundedBacklogConfig     `toml:"BoundedBacklog"`
	Bucket     PriorityBucketConfig     `toml:"PriorityBucket"`
	Bandwidth  BandwidthConfig          `toml:"Bandwidth"`
	OnlineReps OnlineRepsConfig         `toml:"OnlineReps"`
	Bootstrap  BootstrapAscendingConfig `toml:"Bootstrap"`
}

// BootstrapAscendingConfig matches spec.md §4.9-§4.11's named parameters
// for the account-sets priority containers, peer scoring, and throttle.
type BootstrapAscendingConfig struct {
	PriorityMax        float64 `toml:"PriorityMax"`
	PriorityInitial    float64 `toml:"PriorityInitial"`
	PrioritiesMax      int     `toml:"PrioritiesMax"`
	MaxFails           int     `toml:"MaxFails"`
	PriorityCutoff     float64 `toml:"PriorityCutoff"`
	BlockingMax        int     `toml:"BlockingMax"`
	CooldownMs         int     `toml:"CooldownMs"`
	ChannelLimit       int     `toml:"ChannelLimit"`
	ThrottleWindowSize int     `toml:"ThrottleWindowSize"`
}

// TCPConfig matches spec.md §6's tcp_io_timeout / tcp.max_inbound_connections.
type TCPConfig struct {
	IOTimeoutMs           int `toml:"IOTimeoutMs"`
	MaxInboundConnections int `toml:"MaxInboundConnections"`
	HandshakeTimeoutMs    int `toml:"HandshakeTimeoutMs"`
}

// NetworkConfig matches spec.md §6's network.* peer-admission options.
type NetworkConfig struct {
	MaxPeersPerIP               int `toml:"MaxPeersPerIP"`
	MaxPeersPerSubnetwork       int `toml:"MaxPeersPerSubnetwork"`
	SilentConnectionToleranceMs int `toml:"SilentConnectionToleranceMs"`
}

// BacklogScanConfig matches spec.md §6's backlog_scan.* options.
type BacklogScanConfig struct {
	Enable    bool `toml:"Enable"`
	BatchSize int  `toml:"BatchSize"`
	RateLimit int  `toml:"RateLimit"`
}

// BoundedBacklogConfig matches spec.md §6's bounded_backlog.* options.
type BoundedBacklogConfig struct {
	MaxBacklog      int `toml:"MaxBacklog"`
	BucketThreshold int `toml:"BucketThreshold"`
}

// PriorityBucketConfig matches spec.md §6's priority_bucket.* options.
type PriorityBucketConfig struct {
	MaxBlocks         int `toml:"MaxBlocks"`
	ReservedElections int `toml:"ReservedElections"`
	MaxElections      int `toml:"MaxElections"`
}

// BandwidthConfig matches spec.md §6's bandwidth_limit / burst_ratio,
// carried separately for generic and bootstrap traffic.
type BandwidthConfig struct {
	GenericLimit        int     `toml:"GenericLimit"`
	GenericBurstRatio   float64 `toml:"GenericBurstRatio"`
	BootstrapLimit      int     `toml:"BootstrapLimit"`
	BootstrapBurstRatio float64 `toml:"BootstrapBurstRatio"`
}

// OnlineRepsConfig matches spec.md §4.12's named parameters. Weight
// amounts are decimal raw-unit strings, decoded by the caller with
// numeric.DecodeUint128Decimal, the same way block amounts decode.
type OnlineRepsConfig struct {
	VoteWeightMinimumRaw string `toml:"VoteWeightMinimumRaw"`
	WeightIntervalMs     int    `toml:"WeightIntervalMs"`
	WeightCutoff         int    `toml:"WeightCutoff"`
	QuorumPercent        int    `toml:"QuorumPercent"`
	MinimumWeightRaw     string `toml:"MinimumWeightRaw"`
	SampleIntervalMs     int    `toml:"SampleIntervalMs"`
}

// Load reads the configuration at path, writing a fresh default file if
// none exists yet. The node's identity key lives in a separate file
// named by NodeKeyFile (see crypto.LoadOrCreateKeystore), generated on
// first startup rather than here.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:  ":7075",
		MetricsAddress: "127.0.0.1:9075",
		DataDir:        "./nano-data",
		NetworkID:      "C",
		NodeKeyFile:    defaultKeyPath(path),
		Bootnodes:      []string{},
	}
	applyDefaults(cfg)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.NetworkID == "" {
		cfg.NetworkID = "C"
	}
	if cfg.NodeKeyFile == "" {
		cfg.NodeKeyFile = "node.key"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./nano-data"
	}
	if cfg.Bootnodes == nil {
		cfg.Bootnodes = []string{}
	}
	if cfg.MetricsAddress == "" {
		cfg.MetricsAddress = "127.0.0.1:9075"
	}
	if cfg.GenesisBalanceRaw == "" {
		cfg.GenesisBalanceRaw = "340282366920938463463374607431768211455"
	}
	if cfg.WorkThreshold == 0 {
		cfg.WorkThreshold = block.WorkThresholdDefault
	}
	if cfg.TCP.IOTimeoutMs == 0 {
		cfg.TCP.IOTimeoutMs = 15_000
	}
	if cfg.TCP.MaxInboundConnections == 0 {
		cfg.TCP.MaxInboundConnections = 256
	}
	if cfg.TCP.HandshakeTimeoutMs == 0 {
		cfg.TCP.HandshakeTimeoutMs = 5_000
	}
	if cfg.Network.MaxPeersPerIP == 0 {
		cfg.Network.MaxPeersPerIP = 4
	}
	if cfg.Network.MaxPeersPerSubnetwork == 0 {
		cfg.Network.MaxPeersPerSubnetwork = 16
	}
	if cfg.Network.SilentConnectionToleranceMs == 0 {
		cfg.Network.SilentConnectionToleranceMs = 120_000
	}
	if cfg.Backlog.BatchSize == 0 {
		cfg.Backlog.BatchSize = 1024
	}
	if cfg.Bounded.MaxBacklog == 0 {
		cfg.Bounded.MaxBacklog = 10_000
	}
	if cfg.Bounded.BucketThreshold == 0 {
		cfg.Bounded.BucketThreshold = 1_000
	}
	if cfg.Bucket.MaxBlocks == 0 {
		cfg.Bucket.MaxBlocks = 1_000
	}
	if cfg.Bucket.MaxElections == 0 {
		cfg.Bucket.MaxElections = 100
	}
	if cfg.Bandwidth.GenericLimit == 0 {
		cfg.Bandwidth.GenericLimit = 10 * 1024 * 1024
	}
	if cfg.Bandwidth.GenericBurstRatio == 0 {
		cfg.Bandwidth.GenericBurstRatio = 3.0
	}
	if cfg.Bandwidth.BootstrapLimit == 0 {
		cfg.Bandwidth.BootstrapLimit = 5 * 1024 * 1024
	}
	if cfg.Bandwidth.BootstrapBurstRatio == 0 {
		cfg.Bandwidth.BootstrapBurstRatio = 1.0
	}
	if cfg.OnlineReps.WeightIntervalMs == 0 {
		cfg.OnlineReps.WeightIntervalMs = 5 * 60_000
	}
	if cfg.OnlineReps.WeightCutoff == 0 {
		cfg.OnlineReps.WeightCutoff = 288 // 24h of 5-minute samples
	}
	if cfg.OnlineReps.QuorumPercent == 0 {
		cfg.OnlineReps.QuorumPercent = 67
	}
	if cfg.OnlineReps.SampleIntervalMs == 0 {
		cfg.OnlineReps.SampleIntervalMs = 5 * 60_000
	}
	if cfg.OnlineReps.MinimumWeightRaw == "" {
		cfg.OnlineReps.MinimumWeightRaw = "0"
	}
	if cfg.OnlineReps.VoteWeightMinimumRaw == "" {
		cfg.OnlineReps.VoteWeightMinimumRaw = "0"
	}
	if cfg.Bootstrap.PriorityMax == 0 {
		cfg.Bootstrap.PriorityMax = 32.0
	}
	if cfg.Bootstrap.PriorityInitial == 0 {
		cfg.Bootstrap.PriorityInitial = 2.0
	}
	if cfg.Bootstrap.PrioritiesMax == 0 {
		cfg.Bootstrap.PrioritiesMax = 256 * 1024
	}
	if cfg.Bootstrap.MaxFails == 0 {
		cfg.Bootstrap.MaxFails = 3
	}
	if cfg.Bootstrap.PriorityCutoff == 0 {
		cfg.Bootstrap.PriorityCutoff = 0.15
	}
	if cfg.Bootstrap.BlockingMax == 0 {
		cfg.Bootstrap.BlockingMax = 64 * 1024
	}
	if cfg.Bootstrap.CooldownMs == 0 {
		cfg.Bootstrap.CooldownMs = 3_000
	}
	if cfg.Bootstrap.ChannelLimit == 0 {
		cfg.Bootstrap.ChannelLimit = 16
	}
	if cfg.Bootstrap.ThrottleWindowSize == 0 {
		cfg.Bootstrap.ThrottleWindowSize = 16
	}
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeyPath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." {
		dir = ""
	}
	return filepath.Join(dir, "node.key")
}
