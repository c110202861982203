// Command indexer runs the long-running server process: it owns the
// primary store and the ingestion worker, and answers CLI queries over
// a unix domain socket.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mina-witness/indexer/internal/blockfile"
	"github.com/mina-witness/indexer/internal/config"
	"github.com/mina-witness/indexer/internal/genesis"
	"github.com/mina-witness/indexer/internal/indexer"
	"github.com/mina-witness/indexer/internal/ipc"
	"github.com/mina-witness/indexer/internal/obslog"
	"github.com/mina-witness/indexer/internal/store"
	"github.com/mina-witness/indexer/internal/watch"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config file")
	dev := flag.Bool("dev", false, "enable development-mode console logging")
	restoreFrom := flag.String("restore-from", "", "restore the primary store from a checkpoint directory before starting; the directory becomes the new store path")
	flag.Parse()

	if *dev {
		obslog.SetDevelopment()
	}
	log := obslog.For("main")
	defer obslog.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalw("loading config", "error", err)
	}

	if err := run(cfg, *restoreFrom, log); err != nil {
		log.Fatalw("indexer exited with error", "error", err)
	}
}

func run(cfg config.Config, restoreFrom string, log interface {
	Infow(string, ...interface{})
	Errorw(string, ...interface{})
}) error {
	var st *store.Store
	var err error
	if restoreFrom != "" {
		log.Infow("restoring store from checkpoint", "path", restoreFrom)
		st, err = store.OpenCheckpoint(restoreFrom)
		if err != nil {
			return err
		}
		cfg.StorePath = restoreFrom
	} else {
		st, err = store.Open(cfg.StorePath)
		if err != nil {
			return err
		}
	}
	defer st.Close()

	sec, err := store.OpenSecondary(cfg.StorePath)
	if err != nil {
		return err
	}
	defer sec.Close()

	m, err := bootstrapMachine(cfg, st)
	if err != nil {
		return err
	}

	if cfg.StakingLedgerPath != "" {
		stakingLedger, err := genesis.Load(cfg.StakingLedgerPath)
		if err != nil {
			return fmt.Errorf("loading staking ledger: %w", err)
		}
		if err := m.LoadStakingLedger(m.GenesisHash(), cfg.StakingLedgerEpoch, cfg.StakingLedgerHash, stakingLedger); err != nil {
			return fmt.Errorf("loading staking ledger: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sec.CatchUp(ctx, 2*time.Second)

	ipcServer := ipc.NewServer(sec, cfg.SocketPath)
	if err := ipcServer.Start(); err != nil {
		return err
	}
	defer ipcServer.Stop()

	w, err := watch.New(cfg.BlocksPath)
	if err != nil {
		return err
	}
	defer w.Close()

	pipe := indexer.NewPipeline(cfg)
	errCh := make(chan error, 1)
	go func() {
		errCh <- indexer.RunWatching(ctx, pipe, m, w.Paths())
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sig:
		log.Infow("shutdown signal received")
		cancel()
		select {
		case err := <-errCh:
			if err != nil && err != context.Canceled {
				return err
			}
		case <-time.After(cfg.ShutdownGracePeriod + time.Second):
			log.Errorw("pipeline did not shut down within grace period")
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// bootstrapMachine loads or initializes a Machine depending on whether
// the store already holds a canonical chain.
func bootstrapMachine(cfg config.Config, st *store.Store) (*indexer.Machine, error) {
	height, err := st.MaxCanonicalHeight()
	if err != nil {
		return nil, err
	}
	if height > 0 {
		return indexer.ResumeMachine(cfg, st, indexer.Syncing)
	}

	genesisLedger, err := genesis.Load(cfg.GenesisLedgerPath)
	if err != nil {
		return nil, fmt.Errorf("loading genesis ledger: %w", err)
	}
	genesisBlock := &blockfile.Block{
		StateHash:  "3Ngenesis",
		ParentHash: "",
		Length:     1,
	}
	m, err := indexer.NewMachine(cfg, st, genesisBlock, genesisLedger, indexer.Initializing)
	if err != nil {
		return nil, err
	}

	allPaths, err := scanBlocksDir(cfg.BlocksPath)
	if err != nil {
		return nil, err
	}
	if err := indexer.RunInitializing(cfg, m, allPaths); err != nil {
		return nil, err
	}
	return m, nil
}

func scanBlocksDir(dir string) ([]blockfile.Path, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var paths []blockfile.Path
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if p, ok := blockfile.NewPath(dir + "/" + e.Name()); ok {
			paths = append(paths, p)
		}
	}
	return paths, nil
}
