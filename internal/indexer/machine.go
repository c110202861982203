package indexer

import (
	"go.uber.org/zap"

	"github.com/mina-witness/indexer/internal/blockfile"
	"github.com/mina-witness/indexer/internal/config"
	"github.com/mina-witness/indexer/internal/event"
	"github.com/mina-witness/indexer/internal/ixerr"
	"github.com/mina-witness/indexer/internal/ledger"
	"github.com/mina-witness/indexer/internal/obslog"
	"github.com/mina-witness/indexer/internal/store"
	"github.com/mina-witness/indexer/internal/witnesstree"
)

// Machine owns the witness tree and the primary store handle. Every
// accepted block, canonical-tip advancement, and ledger snapshot flows
// through its methods; callers never touch the tree or store directly.
type Machine struct {
	cfg  config.Config
	st   *store.Store
	tree *witnesstree.Tree
	state State
	log  *zap.SugaredLogger

	currentLedger     *ledger.Ledger
	lastCanonicalHash string
	blocksSinceRoot   uint64
	genesisHash       string
}

// NewMachine constructs a fresh Machine rooted at genesisBlock, persisting
// the genesis block, its (empty) diff, and an initial ledger snapshot so
// every later lookup by state hash succeeds.
func NewMachine(cfg config.Config, st *store.Store, genesisBlock *blockfile.Block, genesisLedger *ledger.Ledger, state State) (*Machine, error) {
	root := witnesstree.Summary{StateHash: genesisBlock.StateHash, ParentHash: genesisBlock.ParentHash, Length: genesisBlock.Length}

	batch := st.NewBatch()
	if _, err := st.SaveBlock(batch, genesisBlock); err != nil {
		batch.Discard()
		return nil, err
	}
	if err := st.SaveDiff(batch, genesisBlock.StateHash, ledger.Diff{}); err != nil {
		batch.Discard()
		return nil, err
	}
	if err := st.SetCanonical(batch, genesisBlock.Length, genesisBlock.StateHash); err != nil {
		batch.Discard()
		return nil, err
	}
	if err := st.SaveLedger(batch, genesisBlock.StateHash, genesisLedger); err != nil {
		batch.Discard()
		return nil, err
	}
	if err := st.SetLatestLedgerSnapshot(batch, genesisBlock.Length, genesisBlock.StateHash); err != nil {
		batch.Discard()
		return nil, err
	}
	if err := st.SetBestTip(batch, genesisBlock.Length, genesisBlock.StateHash); err != nil {
		batch.Discard()
		return nil, err
	}
	if _, err := st.AppendEvent(batch, event.NewBlockEvent(genesisBlock.StateHash, genesisBlock.Length)); err != nil {
		batch.Discard()
		return nil, err
	}
	if _, err := st.AppendEvent(batch, event.NewCanonicalBlockEvent(genesisBlock.StateHash, genesisBlock.Length)); err != nil {
		batch.Discard()
		return nil, err
	}
	if _, err := st.AppendEvent(batch, event.NewLedgerEvent(genesisBlock.StateHash, genesisBlock.StateHash, genesisBlock.Length)); err != nil {
		batch.Discard()
		return nil, err
	}
	if err := batch.Commit(); err != nil {
		return nil, err
	}

	return &Machine{
		cfg:               cfg,
		st:                st,
		tree:              witnesstree.New(cfg.K, root, ledger.Diff{}),
		state:             state,
		log:               obslog.For("indexer"),
		currentLedger:     genesisLedger,
		lastCanonicalHash: root.StateHash,
		genesisHash:       genesisBlock.StateHash,
	}, nil
}

// ResumeMachine rebuilds a Machine from an existing store: the witness
// tree root is the state hash of the latest NewCanonicalBlock event, and
// the in-memory ledger is the nearest snapshot at or below that height
// with any intervening canonical diffs replayed on top.
func ResumeMachine(cfg config.Config, st *store.Store, state State) (*Machine, error) {
	maxHeight, err := st.MaxCanonicalHeight()
	if err != nil {
		return nil, err
	}
	rootHash, err := st.GetCanonicalHashAtHeight(maxHeight)
	if err != nil {
		return nil, ixerr.NewFatal(err)
	}
	rootBlock, err := st.GetBlock(rootHash)
	if err != nil {
		return nil, ixerr.NewFatal(err)
	}

	snapshotHeight, snapshotHash, err := st.GetLatestLedgerSnapshot()
	if err != nil {
		return nil, ixerr.NewFatal(err)
	}
	l, err := st.GetLedger(snapshotHash)
	if err != nil {
		return nil, ixerr.NewFatal(err)
	}
	for h := snapshotHeight + 1; h <= maxHeight; h++ {
		hash, err := st.GetCanonicalHashAtHeight(h)
		if err != nil {
			return nil, ixerr.NewFatal(err)
		}
		diff, err := st.GetDiff(hash)
		if err != nil {
			return nil, ixerr.NewFatal(err)
		}
		diff.Apply(l)
	}

	genesisHash, err := st.GetCanonicalHashAtHeight(1)
	if err != nil {
		return nil, ixerr.NewFatal(err)
	}

	root := witnesstree.Summary{StateHash: rootBlock.StateHash, ParentHash: rootBlock.ParentHash, Length: rootBlock.Length}
	return &Machine{
		cfg:               cfg,
		st:                st,
		tree:              witnesstree.New(cfg.K, root, ledger.Diff{}),
		state:             state,
		log:               obslog.For("indexer"),
		currentLedger:     l,
		lastCanonicalHash: root.StateHash,
		genesisHash:       genesisHash,
	}, nil
}

// State returns the machine's current operating mode.
func (m *Machine) State() State {
	return m.state
}

// GenesisHash returns the state hash of the chain's root block, the
// correct genesisHash argument to LoadStakingLedger.
func (m *Machine) GenesisHash() string {
	return m.genesisHash
}

// TransitionToWatching is the one allowed transition out of a startup state.
func (m *Machine) TransitionToWatching() {
	m.state = Watching
}

// Tree exposes the witness tree for read-only inspection by the IPC layer.
func (m *Machine) Tree() *witnesstree.Tree {
	return m.tree
}

// Ingest offers one parsed block to the tree, persisting the outcome.
// Duplicate blocks are detected against the store (so discovery-loaded
// deep-canonical blocks are also covered, not just tree membership) and
// produce only an AlreadySeenBlock diagnostic: no tree mutation, no new
// NewBlock event.
func (m *Machine) Ingest(blk *blockfile.Block) error {
	if m.tree.Contains(blk.StateHash) {
		return m.recordAlreadySeen(blk)
	}
	if _, err := m.st.GetBlock(blk.StateHash); err == nil {
		return m.recordAlreadySeen(blk)
	} else if err != ixerr.ErrNotFound {
		return err
	}

	diff := ledger.DiffFromBlock(blk)
	summary := witnesstree.Summary{StateHash: blk.StateHash, ParentHash: blk.ParentHash, Length: blk.Length}
	ext := m.tree.Offer(summary, diff)
	if ext == witnesstree.NotAdded {
		m.log.Debugw("block not added: below root length", "state_hash", blk.StateHash, "length", blk.Length)
		return nil
	}

	batch := m.st.NewBatch()
	if _, err := m.st.SaveBlock(batch, blk); err != nil {
		batch.Discard()
		return err
	}
	if err := m.st.SaveDiff(batch, blk.StateHash, diff); err != nil {
		batch.Discard()
		return err
	}
	if _, err := m.st.AppendEvent(batch, event.NewBlockEvent(blk.StateHash, blk.Length)); err != nil {
		batch.Discard()
		return err
	}
	// Best-tip monotonicity means any change to the global best tip after
	// this admission must be this block itself: nothing longer was already
	// on the root branch, or it would already be the recorded best tip.
	if m.tree.BestTip().StateHash == blk.StateHash {
		if err := m.st.SetBestTip(batch, blk.Length, blk.StateHash); err != nil {
			batch.Discard()
			return err
		}
	}
	if err := batch.Commit(); err != nil {
		return err
	}

	m.log.Debugw("block admitted", "state_hash", blk.StateHash, "extension", ext.String())

	if err := m.advanceCanonicalIfDue(); err != nil {
		return err
	}
	m.blocksSinceRoot++
	m.tree.Prune(m.cfg.PruneInterval)
	return nil
}

func (m *Machine) recordAlreadySeen(blk *blockfile.Block) error {
	batch := m.st.NewBatch()
	if _, err := m.st.AppendEvent(batch, event.AlreadySeenBlockEvent(blk.StateHash, blk.Length)); err != nil {
		batch.Discard()
		return err
	}
	return batch.Commit()
}

// advanceCanonicalIfDue moves the canonical tip forward once the gap
// between best tip and canonical tip reaches the configured threshold.
func (m *Machine) advanceCanonicalIfDue() error {
	best := m.tree.BestTip()
	canon := m.tree.CanonicalTip()
	bestBlk, err := m.blockLength(best)
	if err != nil {
		return err
	}
	canonBlk, err := m.blockLength(canon)
	if err != nil {
		return err
	}
	if bestBlk < canonBlk || bestBlk-canonBlk < m.cfg.CanonicalUpdateThreshold {
		return nil
	}

	newly := m.tree.NewlyCanonicalSince(m.lastCanonicalHash)
	for _, summary := range newly {
		if err := m.commitCanonical(summary); err != nil {
			return err
		}
		m.lastCanonicalHash = summary.StateHash
	}
	return nil
}

// blockLength resolves a tip's height via the store, which always has
// the block once it is in the tree (root branch admission saves it first).
func (m *Machine) blockLength(tip witnesstree.Tip) (uint64, error) {
	blk, err := m.st.GetBlock(tip.StateHash)
	if err != nil {
		return 0, err
	}
	return blk.Length, nil
}

func (m *Machine) commitCanonical(summary witnesstree.Summary) error {
	diff, _ := m.tree.LedgerDiffOf(summary.StateHash)

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
	if err := m.st.SetCanonical(batch, summary.Length, summary.StateHash); err != nil {
		batch.Discard()
		return err
	}
	if _, err := m.st.AppendEvent(batch, event.NewCanonicalBlockEvent(summary.StateHash, summary.Length)); err != nil {
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
	if m.cfg.LedgerCadence > 0 && summary.Length%m.cfg.LedgerCadence == 0 {
		if err := m.st.SaveLedger(batch, summary.StateHash, m.currentLedger); err != nil {
			batch.Discard()
			return err
		}
		if _, err := m.st.AppendEvent(batch, event.NewLedgerEvent(summary.StateHash, summary.StateHash, summary.Length)); err != nil {
			batch.Discard()
			return err
		}
		if err := m.st.SetLatestLedgerSnapshot(batch, summary.Length, summary.StateHash); err != nil {
			batch.Discard()
			return err
		}
	}
	if err := batch.Commit(); err != nil {
		return err
	}
	m.log.Infow("block became canonical", "state_hash", summary.StateHash, "height", summary.Length)
	return nil
}

// LoadStakingLedger records a staking ledger snapshot for one epoch.
// Aggregating delegated stake across accounts is out of scope, so this
// only persists the ledger as supplied and its balance/stake indexes;
// AggregateDelegationsEvent marks that the ledger is now available for a
// downstream consumer to aggregate, not that aggregation ran here.
func (m *Machine) LoadStakingLedger(genesisHash string, epoch uint64, ledgerHash string, l *ledger.Ledger) error {
	batch := m.st.NewBatch()
	if err := m.st.SaveStakingLedger(batch, genesisHash, epoch, ledgerHash, l); err != nil {
		batch.Discard()
		return err
	}
	if _, err := m.st.AppendEvent(batch, event.NewStakingLedgerEvent(epoch, ledgerHash, genesisHash)); err != nil {
		batch.Discard()
		return err
	}
	if _, err := m.st.AppendEvent(batch, event.AggregateDelegationsEvent(epoch, genesisHash)); err != nil {
		batch.Discard()
		return err
	}
	if err := batch.Commit(); err != nil {
		return err
	}
	m.log.Infow("staking ledger loaded", "epoch", epoch, "ledger_hash", ledgerHash)
	return nil
}
