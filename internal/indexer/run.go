package indexer

import (
	"context"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mina-witness/indexer/internal/blockfile"
	"github.com/mina-witness/indexer/internal/config"
	"github.com/mina-witness/indexer/internal/discovery"
	"github.com/mina-witness/indexer/internal/event"
	"github.com/mina-witness/indexer/internal/ledger"
	"github.com/mina-witness/indexer/internal/obslog"
	"github.com/mina-witness/indexer/internal/witnesstree"
)

// blockCache memoizes Path.Open during discovery, which otherwise
// re-reads every dangling or below-root file whenever both its length
// and its parent hash are asked for separately.
type blockCache struct {
	cache *lru.Cache[string, *blockfile.Block]
}

func newBlockCache(size int) *blockCache {
	c, _ := lru.New[string, *blockfile.Block](size)
	return &blockCache{cache: c}
}

func (bc *blockCache) get(p blockfile.Path) (*blockfile.Block, bool) {
	if blk, ok := bc.cache.Get(p.FullPath); ok {
		return blk, true
	}
	blk, err := p.Open()
	if err != nil {
		return nil, false
	}
	bc.cache.Add(p.FullPath, blk)
	return blk, true
}

func (bc *blockCache) lengthFn() discovery.LengthFn {
	return func(p blockfile.Path) (uint64, bool) {
		if p.Height != nil {
			return *p.Height, true
		}
		blk, ok := bc.get(p)
		if !ok {
			return 0, false
		}
		return blk.Length, true
	}
}

func (bc *blockCache) parentHashFn() discovery.ParentHashFn {
	return func(p blockfile.Path) (string, bool) {
		blk, ok := bc.get(p)
		if !ok {
			return "", false
		}
		return blk.ParentHash, true
	}
}

// RunInitializing performs cold-start discovery over a directory of
// block-file paths: the deep-canonical prefix is persisted straight to
// the store, bypassing the witness tree entirely, then the tree is
// rebuilt rooted at the last deep-canonical block (or left at genesis
// if discovery found no provable prefix) before the remaining recent
// and orphaned paths are fed through Ingest one at a time.
func RunInitializing(cfg config.Config, m *Machine, allPaths []blockfile.Path) error {
	log := obslog.For("initializing")
	cache := newBlockCache(4096)

	result := discovery.Discover(allPaths, discovery.Options{
		K:               cfg.K,
		ProgressCadence: cfg.ProgressCadence,
		Progress: func(scanned, total int) {
			log.Infow("discovery progress", "scanned", scanned, "total", total)
		},
	}, cache.lengthFn(), cache.parentHashFn())

	log.Infow("discovery complete",
		"deep_canonical", len(result.DeepCanonical),
		"recent", len(result.Recent),
		"orphaned", len(result.Orphaned),
	)

	var lastDeepCanonical *blockfile.Block
	for _, p := range result.DeepCanonical {
		blk, err := p.Open()
		if err != nil {
			return err
		}
		if err := persistDeepCanonical(m, blk); err != nil {
			return err
		}
		lastDeepCanonical = blk
	}
	if lastDeepCanonical != nil {
		root := witnesstree.Summary{
			StateHash:  lastDeepCanonical.StateHash,
			ParentHash: lastDeepCanonical.ParentHash,
			Length:     lastDeepCanonical.Length,
		}
		m.tree = witnesstree.New(cfg.K, root, ledger.Diff{})
		m.lastCanonicalHash = root.StateHash

		// Until a later Ingest call offers something longer, the new root
		// is also the best tip: record it so a query against an
		// all-deep-canonical store (no recent/orphaned blocks at all)
		// still answers "block best-tip" correctly.
		batch := m.st.NewBatch()
		if err := m.st.SetBestTip(batch, root.Length, root.StateHash); err != nil {
			batch.Discard()
			return err
		}
		if err := batch.Commit(); err != nil {
			return err
		}
	}

	toIngest := make([]blockfile.Path, 0, len(result.Recent)+len(result.Orphaned))
	toIngest = append(toIngest, result.Recent...)
	toIngest = append(toIngest, result.Orphaned...)
	lengthFn := cache.lengthFn()
	sort.SliceStable(toIngest, func(i, j int) bool {
		li, _ := lengthFn(toIngest[i])
		lj, _ := lengthFn(toIngest[j])
		return li < lj
	})
	for _, p := range toIngest {
		blk, err := p.Open()
		if err != nil {
			log.Warnw("skipping unparseable block during initializing", "path", p.FullPath, "error", err)
			continue
		}
		if err := m.Ingest(blk); err != nil {
			return err
		}
	}
	return nil
}

// persistDeepCanonical writes a provably canonical block straight to
// the store and replays its diff onto the current ledger, without ever
// offering it to the witness tree: discovery already proved it is an
// ancestor of every later block by the k-parent walk.
func persistDeepCanonical(m *Machine, blk *blockfile.Block) error {
	diff := ledger.DiffFromBlock(blk)

	touched := diff.TouchedAccounts()
	oldBalances := make(map[string]uint64, len(touched))
	hadOld := make(map[string]bool, len(touched))
	for _, pk := range touched {
		if a := m.currentLedger.Get(pk); a != nil {
			oldBalances[pk] = a.BalanceNanos
			hadOld[pk] = true
		}
	}
	diff.Apply(m.currentLedger)

	batch := m.st.NewBatch()
	if _, err := m.st.SaveBlock(batch, blk); err != nil {
		batch.Discard()
		return err
	}
	if err := m.st.SaveDiff(batch, blk.StateHash, diff); err != nil {
		batch.Discard()
		return err
	}
	if err := m.st.SetCanonical(batch, blk.Length, blk.StateHash); err != nil {
		batch.Discard()
		return err
	}
	for _, pk := range touched {
		if a := m.currentLedger.Get(pk); a != nil {
			if err := m.st.IndexAccountBalance(batch, a, oldBalances[pk], hadOld[pk]); err != nil {
				batch.Discard()
				return err
			}
		}
	}
	if _, err := m.st.AppendEvent(batch, event.NewBlockEvent(blk.StateHash, blk.Length)); err != nil {
		batch.Discard()
		return err
	}
	if _, err := m.st.AppendEvent(batch, event.NewCanonicalBlockEvent(blk.StateHash, blk.Length)); err != nil {
		batch.Discard()
		return err
	}
	if m.cfg.LedgerCadence > 0 && blk.Length%m.cfg.LedgerCadence == 0 {
		if err := m.st.SaveLedger(batch, blk.StateHash, m.currentLedger); err != nil {
			batch.Discard()
			return err
		}
		if _, err := m.st.AppendEvent(batch, event.NewLedgerEvent(blk.StateHash, blk.StateHash, blk.Length)); err != nil {
			batch.Discard()
			return err
		}
		if err := m.st.SetLatestLedgerSnapshot(batch, blk.Length, blk.StateHash); err != nil {
			batch.Discard()
			return err
		}
	}
	if err := batch.Commit(); err != nil {
		return err
	}
	m.lastCanonicalHash = blk.StateHash
	return nil
}

// RunWatching drains paths indefinitely until ctx is cancelled,
// ingesting each through the pipeline. The Machine transitions to
// Watching before the pipeline starts, matching the one-way state rule.
func RunWatching(ctx context.Context, pipe *Pipeline, m *Machine, paths <-chan blockfile.Path) error {
	m.TransitionToWatching()
	return pipe.Run(ctx, paths, m)
}

// RunTesting drives the tree directly from an in-memory slice of
// blocks with no filesystem or wall-clock involvement, for scenario
// tests.
func RunTesting(m *Machine, blocks []*blockfile.Block) error {
	for _, blk := range blocks {
		if err := m.Ingest(blk); err != nil {
			return err
		}
	}
	return nil
}
