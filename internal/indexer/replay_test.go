package indexer

import "testing"

// RunReplaying walks the full journal and reconstructs the tree shape,
// including a block that never became canonical (a sibling fork of b2).
func TestRunReplayingRebuildsTree(t *testing.T) {
	st := openTestStore(t)
	cfg := testConfig()
	genesis := block("g", "", 1)
	m, err := NewMachine(cfg, st, genesis, newTestLedger(), Initializing)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	m.TransitionToWatching()

	if err := m.Ingest(block("b2", "g", 2)); err != nil {
		t.Fatalf("Ingest b2: %v", err)
	}
	if err := m.Ingest(block("b2alt", "g", 2)); err != nil { // sibling fork of b2, never canonical
		t.Fatalf("Ingest b2alt: %v", err)
	}

	// NewMachine against the same store and genesis reuses the stored
	// genesis block (SaveBlock reports AlreadyPresent) and appends its
	// genesis events to the journal again; this constructs a second,
	// empty-tree Machine sharing the same journal to simulate a restart.
	fresh, err := NewMachine(cfg, st, genesis, newTestLedger(), Replaying)
	if err != nil {
		t.Fatalf("NewMachine (fresh): %v", err)
	}
	if err := RunReplaying(fresh); err != nil {
		t.Fatalf("RunReplaying: %v", err)
	}

	if !fresh.tree.Contains("b2") {
		t.Fatalf("expected replayed tree to contain b2")
	}
	if !fresh.tree.Contains("b2alt") {
		t.Fatalf("expected replayed tree to contain the sibling fork b2alt")
	}
}

// RunSyncing only replays events above the resumed root, trusting the
// ledger snapshot for everything at or below it.
func TestRunSyncingSkipsBelowRoot(t *testing.T) {
	st := openTestStore(t)
	cfg := testConfig()
	genesis := block("g", "", 1)
	m, err := NewMachine(cfg, st, genesis, newTestLedger(), Initializing)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	m.TransitionToWatching()

	for _, b := range []*struct {
		hash, parent string
		length       uint64
	}{
		{"b2", "g", 2}, {"b3", "b2", 3}, {"b4", "b3", 4}, {"b5", "b4", 5},
	} {
		if err := m.Ingest(block(b.hash, b.parent, b.length)); err != nil {
			t.Fatalf("Ingest %s: %v", b.hash, err)
		}
	}

	resumed, err := ResumeMachine(cfg, st, Syncing)
	if err != nil {
		t.Fatalf("ResumeMachine: %v", err)
	}
	if err := RunSyncing(resumed); err != nil {
		t.Fatalf("RunSyncing: %v", err)
	}
	if !resumed.tree.Contains(resumed.tree.RootHash()) {
		t.Fatalf("resumed tree should contain its own root")
	}
	if got := resumed.tree.RootHash(); got != "b2" {
		t.Fatalf("resumed root = %q, want b2 (the latest canonical block)", got)
	}
	// Everything above the resumed root (b2, canonical) should be offered
	// back into the tree so later blocks can still extend it; nothing below
	// the root is.
	for _, h := range []string{"b3", "b4", "b5"} {
		if !resumed.tree.Contains(h) {
			t.Fatalf("expected resumed tree to contain %s (above the root)", h)
		}
	}
	if resumed.tree.Contains("g") {
		t.Fatalf("resumed tree should not contain g (below the root)")
	}
}
