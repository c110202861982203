// Package witnesstree implements the in-memory rooted forest of recent
// blocks: one root branch whose root is assumed canonical up to the
// store, plus zero or more dangling branches rooted at blocks whose
// parent has not yet been observed. Nodes live in an arena addressed by
// integer id so pruning is O(unused-ids) and carries no lifetime
// entanglement with the store.
package witnesstree

import (
	"sort"

	"github.com/mina-witness/indexer/internal/ledger"
)

// NodeID addresses a node inside a Tree's arena. The zero value is never a
// valid id; NilNode marks "no parent"/"no node".
type NodeID uint32

// NilNode is the sentinel for "no node".
const NilNode NodeID = 0

// Summary is the witness tree's view of a block: enough to drive
// extension, tip selection, and pruning without re-touching the store.
type Summary struct {
	StateHash  string
	ParentHash string
	Length     uint64
}

type branchTag uint8

const (
	tagRoot branchTag = iota
	tagDangling
)

type node struct {
	summary  Summary
	parent   NodeID
	children []NodeID
	tag      branchTag
	diff     ledger.Diff
	live     bool
}

// Tree is the witness tree. It is not safe for concurrent use; the
// design assigns it to the single-threaded ingestion worker.
type Tree struct {
	k       uint64
	nodes   []node // index 0 is unused (NilNode sentinel)
	free    []NodeID
	byHash  map[string]NodeID
	rootID  NodeID
	danglingRoots map[NodeID]struct{}
}

// New returns a tree rooted at root, tracking k confirmations.
func New(k uint64, root Summary, diff ledger.Diff) *Tree {
	t := &Tree{
		k:             k,
		nodes:         make([]node, 1, 64), // slot 0 reserved for NilNode
		byHash:        make(map[string]NodeID),
		danglingRoots: make(map[NodeID]struct{}),
	}
	id := t.alloc(node{summary: root, parent: NilNode, tag: tagRoot, diff: diff, live: true})
	t.rootID = id
	t.byHash[root.StateHash] = id
	return t
}

func (t *Tree) alloc(n node) NodeID {
	if len(t.free) > 0 {
		id := t.free[len(t.free)-1]
		t.free = t.free[:len(t.free)-1]
		t.nodes[id] = n
		return id
	}
	t.nodes = append(t.nodes, n)
	return NodeID(len(t.nodes) - 1)
}

// RootLength returns the root branch root's length.
func (t *Tree) RootLength() uint64 {
	return t.nodes[t.rootID].summary.Length
}

// RootHash returns the root branch root's state hash.
func (t *Tree) RootHash() string {
	return t.nodes[t.rootID].summary.StateHash
}

// Contains reports whether a block with this state hash is already in
// the tree (root branch or any dangling branch).
func (t *Tree) Contains(stateHash string) bool {
	_, ok := t.byHash[stateHash]
	return ok
}

// LedgerDiffOf returns the diff recorded for stateHash, if present.
func (t *Tree) LedgerDiffOf(stateHash string) (ledger.Diff, bool) {
	id, ok := t.byHash[stateHash]
	if !ok {
		return ledger.Diff{}, false
	}
	return t.nodes[id].diff, true
}

func (t *Tree) isRootBranch(id NodeID) bool {
	return t.nodes[id].tag == tagRoot
}

// bestTipLength returns the root branch's deepest leaf length, used for
// the extension-policy range check.
func (t *Tree) bestTipLength() uint64 {
	best := t.bestTipID()
	if best == NilNode {
		return t.RootLength()
	}
	return t.nodes[best].summary.Length
}

// rootBranchLeaves returns every leaf (childless node) of the root branch.
func (t *Tree) rootBranchLeaves() []NodeID {
	var leaves []NodeID
	var walk func(id NodeID)
	walk = func(id NodeID) {
		n := &t.nodes[id]
		if len(n.children) == 0 {
			leaves = append(leaves, id)
			return
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(t.rootID)
	return leaves
}

// bestTipID picks a root-branch leaf by (length desc, state-hash asc) —
// the deterministic tie-break used uniformly across the tree.
func (t *Tree) bestTipID() NodeID {
	leaves := t.rootBranchLeaves()
	if len(leaves) == 0 {
		return NilNode
	}
	sort.Slice(leaves, func(i, j int) bool {
		li, lj := t.nodes[leaves[i]], t.nodes[leaves[j]]
		if li.summary.Length != lj.summary.Length {
			return li.summary.Length > lj.summary.Length
		}
		return li.summary.StateHash < lj.summary.StateHash
	})
	return leaves[0]
}

// Tip names a node by both its state hash and arena id.
type Tip struct {
	StateHash string
	NodeID    NodeID
}

// BestTip returns the current best tip: any leaf of the root branch,
// preferring greater length and then lexicographically smaller state hash.
func (t *Tree) BestTip() Tip {
	id := t.bestTipID()
	if id == NilNode {
		return Tip{StateHash: t.RootHash(), NodeID: t.rootID}
	}
	return Tip{StateHash: t.nodes[id].summary.StateHash, NodeID: id}
}

// CanonicalTip returns the best tip's k-th ancestor, or the root if fewer
// than k ancestors exist.
func (t *Tree) CanonicalTip() Tip {
	best := t.BestTip()
	id, ok := t.ancestorSteps(best.NodeID, t.k)
	if !ok {
		return Tip{StateHash: t.RootHash(), NodeID: t.rootID}
	}
	return Tip{StateHash: t.nodes[id].summary.StateHash, NodeID: id}
}

// ancestorSteps walks exactly steps parent links up from id.
func (t *Tree) ancestorSteps(id NodeID, steps uint64) (NodeID, bool) {
	for i := uint64(0); i < steps; i++ {
		p := t.nodes[id].parent
		if p == NilNode {
			return NilNode, false
		}
		id = p
	}
	return id, true
}

// AncestorAtHeight walks up from id until it finds the ancestor with the
// given length, or ok=false if the chain runs out first.
func (t *Tree) AncestorAtHeight(id NodeID, height uint64) (NodeID, bool) {
	for {
		n := &t.nodes[id]
		if n.summary.Length == height {
			return id, true
		}
		if n.summary.Length < height || n.parent == NilNode {
			return NilNode, false
		}
		id = n.parent
	}
}

// NewlyCanonicalSince returns the summaries strictly between
// previousCanonicalHash (exclusive) and the current canonical tip
// (inclusive), in ascending height order — the set a caller should emit
// "became canonical" events for exactly once after an extension lifts
// the best tip.
func (t *Tree) NewlyCanonicalSince(previousCanonicalHash string) []Summary {
	tip := t.CanonicalTip()
	var chain []Summary
	id := tip.NodeID
	for {
		n := &t.nodes[id]
		if n.summary.StateHash == previousCanonicalHash {
			break
		}
		chain = append(chain, n.summary)
		if n.parent == NilNode {
			break
		}
		id = n.parent
	}
	// chain was collected descending from tip; reverse to ascending height.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}
