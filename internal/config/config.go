// Package config holds the values the rest of the indexer treats as
// deployment parameters rather than compile-time constants: network name,
// confirmation depth, store and socket paths, worker counts, and the
// various cadences that govern canonical-tip advancement and pruning.
package config

import (
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is loaded from an optional TOML file on top of Default. No
// command-line flag overrides individual fields.
type Config struct {
	Network string `toml:"network"`

	// StorePath is the directory holding the Badger column families.
	StorePath string `toml:"store_path"`
	// SocketPath is the Unix domain socket the IPC server listens on.
	SocketPath string `toml:"socket_path"`
	// BlocksPath is the directory scanned/watched for precomputed block files.
	BlocksPath string `toml:"blocks_path"`
	// GenesisLedgerPath is the JSON genesis ledger.
	GenesisLedgerPath string `toml:"genesis_ledger_path"`
	// UsernamesPath optionally points at a public-key-to-name side file.
	UsernamesPath string `toml:"usernames_path"`
	// StakingLedgerPath optionally points at a staking ledger JSON document
	// (same account-list shape as the genesis ledger) to load at startup.
	StakingLedgerPath string `toml:"staking_ledger_path"`
	// StakingLedgerEpoch is the epoch the staking ledger at StakingLedgerPath governs.
	StakingLedgerEpoch uint64 `toml:"staking_ledger_epoch"`
	// StakingLedgerHash identifies the staking ledger itself, independent of the epoch.
	StakingLedgerHash string `toml:"staking_ledger_hash"`

	// K is the number of confirmations required to declare a block canonical.
	K uint64 `toml:"k"`
	// CanonicalUpdateThreshold is the best-tip/canonical-tip gap that
	// triggers canonical-tip advancement.
	CanonicalUpdateThreshold uint64 `toml:"canonical_update_threshold"`
	// LedgerCadence is the number of canonical blocks between ledger snapshots.
	LedgerCadence uint64 `toml:"ledger_cadence"`
	// PruneInterval bounds witness-tree memory growth; see witnesstree.Tree.Prune.
	PruneInterval uint64 `toml:"prune_interval"`

	// ParserWorkers is the size of the parser worker pool.
	ParserWorkers int `toml:"parser_workers"`
	// PathChannelCapacity bounds the source-worker -> parser channel.
	PathChannelCapacity int `toml:"path_channel_capacity"`
	// BlockChannelCapacity bounds the parser -> ingestion channel.
	BlockChannelCapacity int `toml:"block_channel_capacity"`
	// ShutdownGracePeriod bounds how long the ingestion worker drains on
	// SIGINT/SIGTERM before it gives up and exits anyway.
	ShutdownGracePeriod time.Duration `toml:"shutdown_grace_period"`

	// ProgressCadence is how many paths discovery scans between progress callbacks.
	ProgressCadence int `toml:"progress_cadence"`
}

// Default returns the configuration used when no file is supplied,
// matching the worked examples in the design (k=10).
func Default() Config {
	return Config{
		Network:                  "mainnet",
		StorePath:                "./data/store",
		SocketPath:               "/tmp/indexer.sock",
		BlocksPath:               "./data/blocks",
		GenesisLedgerPath:        "./data/genesis.json",
		K:                        10,
		CanonicalUpdateThreshold: 1,
		LedgerCadence:            100,
		PruneInterval:            10,
		ParserWorkers:            4,
		PathChannelCapacity:      256,
		BlockChannelCapacity:     256,
		ShutdownGracePeriod:      5 * time.Second,
		ProgressCadence:          1000,
	}
}

// Load reads a TOML file at path, if it exists, overlaying it onto Default.
// A missing file is not an error; it simply yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
