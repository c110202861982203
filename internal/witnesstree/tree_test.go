package witnesstree

import (
	"testing"

	"github.com/mina-witness/indexer/internal/ledger"
)

func sum(hash, parent string, length uint64) Summary {
	return Summary{StateHash: hash, ParentHash: parent, Length: length}
}

func TestOffer_RootSimpleExtension(t *testing.T) {
	tr := New(10, sum("g", "", 1), ledger.Diff{})
	ext := tr.Offer(sum("b1", "g", 2), ledger.Diff{})
	if ext != RootSimple {
		t.Errorf("extension = %v, want RootSimple", ext)
	}
	if tr.BestTip().StateHash != "b1" {
		t.Errorf("best tip = %s, want b1", tr.BestTip().StateHash)
	}
}

func TestOffer_NotAddedBelowRoot(t *testing.T) {
	tr := New(10, sum("g", "", 5), ledger.Diff{})
	ext := tr.Offer(sum("old", "x", 3), ledger.Diff{})
	if ext != NotAdded {
		t.Errorf("extension = %v, want NotAdded", ext)
	}
	if tr.Contains("old") {
		t.Error("tree should not have mutated on NotAdded")
	}
}

func TestOffer_DanglingNewThenForward(t *testing.T) {
	tr := New(10, sum("g", "", 1), ledger.Diff{})

	// d1's parent is unobserved -> brand new dangling branch.
	ext := tr.Offer(sum("d1", "unknown", 5), ledger.Diff{})
	if ext != DanglingNew {
		t.Errorf("extension = %v, want DanglingNew", ext)
	}

	// d2 extends d1 forward.
	ext = tr.Offer(sum("d2", "d1", 6), ledger.Diff{})
	if ext != DanglingSimpleForward {
		t.Errorf("extension = %v, want DanglingSimpleForward", ext)
	}
}

func TestOffer_DanglingReverse(t *testing.T) {
	tr := New(10, sum("g", "", 1), ledger.Diff{})

	tr.Offer(sum("d2", "d1", 6), ledger.Diff{}) // dangling new, parent d1 unknown
	ext := tr.Offer(sum("d1", "unknown", 5), ledger.Diff{})
	if ext != DanglingSimpleReverse {
		t.Errorf("extension = %v, want DanglingSimpleReverse", ext)
	}
}

func TestOffer_RootComplexMerge(t *testing.T) {
	tr := New(10, sum("g", "", 1), ledger.Diff{})

	// Dangling branch whose root's parent is "b1" (not yet observed).
	tr.Offer(sum("d1", "b1", 3), ledger.Diff{})

	// b1 extends root and should absorb d1.
	ext := tr.Offer(sum("b1", "g", 2), ledger.Diff{})
	if ext != RootComplex {
		t.Errorf("extension = %v, want RootComplex", ext)
	}
	if tr.BestTip().StateHash != "d1" {
		t.Errorf("best tip = %s, want d1 (merged branch extends further)", tr.BestTip().StateHash)
	}
}

func TestOffer_DanglingComplexMerge(t *testing.T) {
	tr := New(10, sum("g", "", 1), ledger.Diff{})

	tr.Offer(sum("x1", "unknown", 50), ledger.Diff{})
	tr.Offer(sum("x3", "x2", 52), ledger.Diff{}) // dangling new, parent x2 unobserved
	ext := tr.Offer(sum("x2", "x1", 51), ledger.Diff{})
	if ext != DanglingComplex {
		t.Errorf("extension = %v, want DanglingComplex", ext)
	}
}

func TestBestTip_TieBreakLexicographicAscending(t *testing.T) {
	tr := New(10, sum("g", "", 1), ledger.Diff{})
	tr.Offer(sum("bbbb", "g", 2), ledger.Diff{})
	tr.Offer(sum("aaaa", "g", 2), ledger.Diff{})

	if tr.BestTip().StateHash != "aaaa" {
		t.Errorf("best tip = %s, want aaaa (ascending lexicographic tie-break)", tr.BestTip().StateHash)
	}
}

func TestCanonicalTip_KthAncestor(t *testing.T) {
	tr := New(2, sum("g", "", 1), ledger.Diff{})
	tr.Offer(sum("b2", "g", 2), ledger.Diff{})
	tr.Offer(sum("b3", "b2", 3), ledger.Diff{})
	tr.Offer(sum("b4", "b3", 4), ledger.Diff{})

	if tr.BestTip().StateHash != "b4" {
		t.Fatalf("best tip = %s, want b4", tr.BestTip().StateHash)
	}
	if tr.CanonicalTip().StateHash != "b2" {
		t.Errorf("canonical tip = %s, want b2", tr.CanonicalTip().StateHash)
	}
}

func TestBestTipMonotonicity(t *testing.T) {
	tr := New(10, sum("g", "", 1), ledger.Diff{})
	prevLen := tr.BestTip().NodeID
	_ = prevLen
	prev := uint64(1)
	offers := []Summary{
		sum("b2", "g", 2),
		sum("b3", "b2", 3),
		sum("d1", "unknown", 1), // dangling, shouldn't move best tip
		sum("b4", "b3", 4),
	}
	for _, s := range offers {
		tr.Offer(s, ledger.Diff{})
		id := tr.bestTipID()
		cur := tr.nodes[id].summary.Length
		if cur < prev {
			t.Errorf("best tip length decreased: %d -> %d", prev, cur)
		}
		prev = cur
	}
}

func TestNewlyCanonicalSince(t *testing.T) {
	tr := New(1, sum("g", "", 1), ledger.Diff{})
	tr.Offer(sum("b2", "g", 2), ledger.Diff{})
	tr.Offer(sum("b3", "b2", 3), ledger.Diff{})
	tr.Offer(sum("b4", "b3", 4), ledger.Diff{}) // k=1: canonical tip is b3

	chain := tr.NewlyCanonicalSince("g")
	if len(chain) != 2 {
		t.Fatalf("len(chain) = %d, want 2", len(chain))
	}
	if chain[0].StateHash != "b2" || chain[1].StateHash != "b3" {
		t.Errorf("chain = %+v, want ascending [b2, b3]", chain)
	}
}

func TestPrune_DropsOldNodes(t *testing.T) {
	tr := New(2, sum("g", "", 1), ledger.Diff{})
	for i := uint64(2); i <= 10; i++ {
		parent := "g"
		if i > 2 {
			parent = string(rune('a' + i - 3))
		}
		hash := string(rune('a' + i - 2))
		tr.Offer(sum(hash, parent, i), ledger.Diff{})
	}

	tr.Prune(1) // k*pruneInterval = 2
	if tr.Contains("g") {
		t.Error("expected genesis to be pruned")
	}
	if tr.RootLength() == 1 {
		t.Error("expected root to have advanced past genesis")
	}
}
