package indexer

import (
	"testing"

	"github.com/mina-witness/indexer/internal/blockfile"
	"github.com/mina-witness/indexer/internal/config"
	"github.com/mina-witness/indexer/internal/ledger"
	"github.com/mina-witness/indexer/internal/store"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.K = 3
	cfg.CanonicalUpdateThreshold = 2
	cfg.LedgerCadence = 0 // no periodic snapshots unless a test wants them
	cfg.PruneInterval = 1000
	return cfg
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func block(hash, parent string, length uint64) *blockfile.Block {
	return &blockfile.Block{StateHash: hash, ParentHash: parent, Length: length}
}

func paymentBlock(hash, parent string, length uint64, from, to string, amount uint64) *blockfile.Block {
	b := block(hash, parent, length)
	b.SignedCommands = []blockfile.SignedCommand{{
		Kind: blockfile.Payment, Source: from, Receiver: to, Amount: amount,
	}}
	return b
}

func newTestLedger() *ledger.Ledger {
	l := ledger.New()
	l.Set(&ledger.Account{PublicKey: "alice", BalanceNanos: 100})
	l.Set(&ledger.Account{PublicKey: "bob", BalanceNanos: 0})
	return l
}

// A fresh Machine persists its genesis block so later lookups succeed,
// and starts in the state the caller asked for.
func TestNewMachinePersistsGenesis(t *testing.T) {
	st := openTestStore(t)
	cfg := testConfig()
	genesis := block("genesis", "", 1)

	m, err := NewMachine(cfg, st, genesis, newTestLedger(), Initializing)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	if m.State() != Initializing {
		t.Fatalf("state = %v, want Initializing", m.State())
	}

	got, err := st.GetBlock("genesis")
	if err != nil {
		t.Fatalf("GetBlock(genesis): %v", err)
	}
	if got.Length != 1 {
		t.Fatalf("genesis length = %d, want 1", got.Length)
	}

	height, err := st.MaxCanonicalHeight()
	if err != nil {
		t.Fatalf("MaxCanonicalHeight: %v", err)
	}
	if height != 1 {
		t.Fatalf("max canonical height = %d, want 1", height)
	}
}

// Ingesting a straight chain of blocks advances the canonical tip once the
// best-tip/canonical-tip gap reaches the configured threshold, and applies
// diffs to the in-memory ledger as blocks become canonical.
func TestIngestAdvancesCanonicalAndAppliesLedger(t *testing.T) {
	st := openTestStore(t)
	cfg := testConfig()
	genesis := block("g", "", 1)
	m, err := NewMachine(cfg, st, genesis, newTestLedger(), Initializing)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	m.TransitionToWatching()

	blocks := []*blockfile.Block{
		paymentBlock("b2", "g", 2, "alice", "bob", 10),
		block("b3", "b2", 3),
		block("b4", "b3", 4),
		block("b5", "b4", 5),
	}
	for _, b := range blocks {
		if err := m.Ingest(b); err != nil {
			t.Fatalf("Ingest(%s): %v", b.StateHash, err)
		}
	}

	height, err := st.MaxCanonicalHeight()
	if err != nil {
		t.Fatalf("MaxCanonicalHeight: %v", err)
	}
	if height < 2 {
		t.Fatalf("expected canonical tip to advance past genesis, got height %d", height)
	}

	hash, err := st.GetCanonicalHashAtHeight(2)
	if err != nil {
		t.Fatalf("GetCanonicalHashAtHeight(2): %v", err)
	}
	if hash != "b2" {
		t.Fatalf("canonical hash at height 2 = %q, want b2", hash)
	}

	// bob's balance is zero before the credit, so the account-creation fee
	// absorbs the whole 10-nano payment; alice is debited in full.
	if alice := m.currentLedger.Get("alice"); alice == nil || alice.BalanceNanos != 90 {
		t.Fatalf("alice balance after canonical payment = %+v, want 90", alice)
	}
	if bob := m.currentLedger.Get("bob"); bob == nil || bob.BalanceNanos != 0 {
		t.Fatalf("bob balance after canonical payment = %+v, want 0", bob)
	}
}

// Re-ingesting a block already admitted to the tree is a no-op beyond
// recording an AlreadySeenBlock event.
func TestIngestDuplicateIsIgnored(t *testing.T) {
	st := openTestStore(t)
	cfg := testConfig()
	genesis := block("g", "", 1)
	m, err := NewMachine(cfg, st, genesis, newTestLedger(), Initializing)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}

	b2 := block("b2", "g", 2)
	if err := m.Ingest(b2); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	seqBefore, err := st.NextSeq()
	if err != nil {
		t.Fatalf("NextSeq: %v", err)
	}

	if err := m.Ingest(b2); err != nil {
		t.Fatalf("Ingest duplicate: %v", err)
	}
	seqAfter, err := st.NextSeq()
	if err != nil {
		t.Fatalf("NextSeq: %v", err)
	}
	if seqAfter != seqBefore+1 {
		t.Fatalf("expected exactly one AlreadySeenBlock event, seq went from %d to %d", seqBefore, seqAfter)
	}
}

// NewMachine records genesis as the initial best tip, and Ingest advances
// that record whenever the admitted block becomes the new global best tip.
func TestIngestAdvancesBestTip(t *testing.T) {
	st := openTestStore(t)
	cfg := testConfig()
	genesis := block("g", "", 1)
	m, err := NewMachine(cfg, st, genesis, newTestLedger(), Initializing)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	m.TransitionToWatching()

	height, hash, err := st.GetBestTip()
	if err != nil {
		t.Fatalf("GetBestTip: %v", err)
	}
	if height != 1 || hash != "g" {
		t.Fatalf("initial best tip = (%d, %q), want (1, g)", height, hash)
	}

	if err := m.Ingest(block("b2", "g", 2)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	height, hash, err = st.GetBestTip()
	if err != nil {
		t.Fatalf("GetBestTip: %v", err)
	}
	if height != 2 || hash != "b2" {
		t.Fatalf("best tip after Ingest = (%d, %q), want (2, b2)", height, hash)
	}
}

// GenesisHash identifies the chain's root block, both for a freshly
// constructed Machine and one rebuilt by ResumeMachine.
func TestGenesisHash(t *testing.T) {
	st := openTestStore(t)
	cfg := testConfig()
	genesis := block("g", "", 1)
	m, err := NewMachine(cfg, st, genesis, newTestLedger(), Initializing)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	if m.GenesisHash() != "g" {
		t.Fatalf("GenesisHash = %q, want g", m.GenesisHash())
	}

	resumed, err := ResumeMachine(cfg, st, Syncing)
	if err != nil {
		t.Fatalf("ResumeMachine: %v", err)
	}
	if resumed.GenesisHash() != "g" {
		t.Fatalf("resumed GenesisHash = %q, want g", resumed.GenesisHash())
	}
}

// LoadStakingLedger persists the ledger and journals both the staking-ledger
// and aggregate-delegations events, without implying the aggregation itself
// was computed.
func TestLoadStakingLedger(t *testing.T) {
	st := openTestStore(t)
	cfg := testConfig()
	genesis := block("g", "", 1)
	m, err := NewMachine(cfg, st, genesis, newTestLedger(), Initializing)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}

	staking := ledger.New()
	staking.Set(&ledger.Account{PublicKey: "alice", BalanceNanos: 1000})

	seqBefore, err := st.NextSeq()
	if err != nil {
		t.Fatalf("NextSeq: %v", err)
	}
	if err := m.LoadStakingLedger(m.GenesisHash(), 7, "3Nstaking", staking); err != nil {
		t.Fatalf("LoadStakingLedger: %v", err)
	}
	seqAfter, err := st.NextSeq()
	if err != nil {
		t.Fatalf("NextSeq: %v", err)
	}
	if seqAfter != seqBefore+2 {
		t.Fatalf("expected two journaled events, seq went from %d to %d", seqBefore, seqAfter)
	}

	got, err := st.GetStakingLedger(m.GenesisHash(), 7, "3Nstaking")
	if err != nil {
		t.Fatalf("GetStakingLedger: %v", err)
	}
	if got.Get("alice").BalanceNanos != 1000 {
		t.Fatalf("staking ledger alice balance = %+v, want 1000", got.Get("alice"))
	}
}

// ResumeMachine rebuilds a Machine from an existing store: the tree root
// is the latest canonical block, and the ledger reflects every canonical
// diff up to that point.
func TestResumeMachineRebuildsLedger(t *testing.T) {
	st := openTestStore(t)
	cfg := testConfig()
	genesis := block("g", "", 1)
	m, err := NewMachine(cfg, st, genesis, newTestLedger(), Initializing)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	m.TransitionToWatching()

	blocks := []*blockfile.Block{
		paymentBlock("b2", "g", 2, "alice", "bob", 10),
		block("b3", "b2", 3),
		block("b4", "b3", 4),
		block("b5", "b4", 5),
	}
	for _, b := range blocks {
		if err := m.Ingest(b); err != nil {
			t.Fatalf("Ingest(%s): %v", b.StateHash, err)
		}
	}

	resumed, err := ResumeMachine(cfg, st, Syncing)
	if err != nil {
		t.Fatalf("ResumeMachine: %v", err)
	}
	if resumed.State() != Syncing {
		t.Fatalf("resumed state = %v, want Syncing", resumed.State())
	}
	// Same arithmetic as the live ledger: the creation fee absorbs bob's
	// 10-nano credit, alice is debited in full.
	if alice := resumed.currentLedger.Get("alice"); alice == nil || alice.BalanceNanos != 90 {
		t.Fatalf("resumed alice balance = %+v, want 90", alice)
	}
	if bob := resumed.currentLedger.Get("bob"); bob == nil || bob.BalanceNanos != 0 {
		t.Fatalf("resumed bob balance = %+v, want 0", bob)
	}
}
