package indexer

import (
	"github.com/mina-witness/indexer/internal/event"
	"github.com/mina-witness/indexer/internal/ixerr"
	"github.com/mina-witness/indexer/internal/ledger"
	"github.com/mina-witness/indexer/internal/witnesstree"
)

// RunReplaying rebuilds the in-memory witness tree from the journal
// alone, offering every NewBlock event's block back to the tree in
// sequence order. The ledger is not re-derived: ResumeMachine already
// materialized currentLedger from the nearest snapshot, so diffs are
// skipped here and only the tree shape (dangling branches included) is
// reconstructed to match what the tree looked like before the restart.
func RunReplaying(m *Machine) error {
	next, err := m.st.NextSeq()
	if err != nil {
		return err
	}
	for seq := uint64(0); seq < next; seq++ {
		ev, err := m.st.GetEvent(seq)
		if err != nil {
			return err
		}
		if ev.Kind != event.NewBlock {
			continue
		}
		if ev.StateHash == m.tree.RootHash() {
			continue
		}
		blk, err := m.st.GetBlock(ev.StateHash)
		if err != nil {
			return err
		}
		if m.tree.Contains(blk.StateHash) {
			continue
		}
		summary := witnesstree.Summary{StateHash: blk.StateHash, ParentHash: blk.ParentHash, Length: blk.Length}
		m.tree.Offer(summary, ledger.DiffFromBlock(blk))
	}
	return nil
}

// RunSyncing replays only the NewBlock events recorded after the
// witness tree's root (the latest canonical block at restart), trusting
// that everything at or below the root is already reflected in
// currentLedger. This is the fast path: it skips the full-journal walk
// RunReplaying performs.
func RunSyncing(m *Machine) error {
	rootHeight := m.tree.RootLength()
	next, err := m.st.NextSeq()
	if err != nil {
		return err
	}
	for seq := uint64(0); seq < next; seq++ {
		ev, err := m.st.GetEvent(seq)
		if err != nil {
			return err
		}
		if ev.Kind != event.NewBlock || ev.Height <= rootHeight {
			continue
		}
		blk, err := m.st.GetBlock(ev.StateHash)
		if err != nil {
			if err == ixerr.ErrNotFound {
				continue
			}
			return err
		}
		if m.tree.Contains(blk.StateHash) {
			continue
		}
		summary := witnesstree.Summary{StateHash: blk.StateHash, ParentHash: blk.ParentHash, Length: blk.Length}
		m.tree.Offer(summary, ledger.DiffFromBlock(blk))
	}
	return nil
}
