package witnesstree

import "github.com/mina-witness/indexer/internal/ledger"

// Extension tags the outcome of offering a block to the tree. Kept as a
// tagged variant rather than collapsed into a boolean: property 8
// references the tag directly.
type Extension uint8

const (
	RootSimple Extension = iota
	RootComplex
	DanglingSimpleForward
	DanglingSimpleReverse
	DanglingComplex
	DanglingNew
	NotAdded
)

func (e Extension) String() string {
	switch e {
	case RootSimple:
		return "RootSimple"
	case RootComplex:
		return "RootComplex"
	case DanglingSimpleForward:
		return "DanglingSimpleForward"
	case DanglingSimpleReverse:
		return "DanglingSimpleReverse"
	case DanglingComplex:
		return "DanglingComplex"
	case DanglingNew:
		return "DanglingNew"
	default:
		return "NotAdded"
	}
}

// Offer admits a block into the tree. Admission rule: NotAdded iff the
// block's length is strictly less than the root block's length, in which
// case the tree is not mutated.
func (t *Tree) Offer(s Summary, diff ledger.Diff) Extension {
	if s.Length < t.RootLength() {
		return NotAdded
	}

	// Step 1: root-branch forward extension.
	if parentID, ok := t.byHash[s.ParentHash]; ok && t.isRootBranch(parentID) {
		if s.Length >= t.RootLength() && s.Length <= t.bestTipLength()+1 {
			id := t.attach(s, parentID, tagRoot, diff)
			merged := t.absorbDangling(id, tagRoot)
			if merged {
				return RootComplex
			}
			return RootSimple
		}
	}

	// Step 2a: forward extension of a dangling branch (parent is any node
	// already inside a dangling branch).
	if parentID, ok := t.byHash[s.ParentHash]; ok && !t.isRootBranch(parentID) {
		id := t.attach(s, parentID, tagDangling, diff)
		merged := t.absorbDangling(id, tagDangling)
		if merged {
			return DanglingComplex
		}
		return DanglingSimpleForward
	}

	// Step 2b: reverse extension — the new block is the parent of an
	// existing dangling branch's root.
	if childRootID, ok := t.findDanglingRootByParentHash(s.StateHash); ok {
		id := t.attachAsNewRoot(s, childRootID, diff)
		merged := t.absorbDangling(id, tagDangling)
		if merged {
			return DanglingComplex
		}
		return DanglingSimpleReverse
	}

	// Step 3: brand new dangling branch of one block.
	id := t.alloc(node{summary: s, parent: NilNode, tag: tagDangling, diff: diff, live: true})
	t.byHash[s.StateHash] = id
	t.danglingRoots[id] = struct{}{}
	return DanglingNew
}

func (t *Tree) attach(s Summary, parentID NodeID, tag branchTag, diff ledger.Diff) NodeID {
	id := t.alloc(node{summary: s, parent: parentID, tag: tag, diff: diff, live: true})
	t.nodes[parentID].children = append(t.nodes[parentID].children, id)
	t.byHash[s.StateHash] = id
	return id
}

// attachAsNewRoot makes the new block the parent of an existing dangling
// branch's root (reverse extension): the dangling root stops being a
// dangling root and becomes a child of the freshly inserted node, which
// takes its place as the dangling branch's root.
func (t *Tree) attachAsNewRoot(s Summary, oldDanglingRootID NodeID, diff ledger.Diff) NodeID {
	id := t.alloc(node{summary: s, parent: NilNode, tag: tagDangling, diff: diff, live: true})
	t.nodes[id].children = append(t.nodes[id].children, oldDanglingRootID)
	t.nodes[oldDanglingRootID].parent = id
	delete(t.danglingRoots, oldDanglingRootID)
	t.danglingRoots[id] = struct{}{}
	t.byHash[s.StateHash] = id
	return id
}

func (t *Tree) findDanglingRootByParentHash(parentHash string) (NodeID, bool) {
	for id := range t.danglingRoots {
		if t.nodes[id].summary.ParentHash == parentHash {
			return id, true
		}
	}
	return NilNode, false
}

// absorbDangling scans dangling branches whose root's parent hash equals
// newNode's state hash and merges them in as children, retagging their
// whole subtree when they join the root branch. Returns whether any
// branch was merged.
func (t *Tree) absorbDangling(newNodeID NodeID, newTag branchTag) bool {
	newHash := t.nodes[newNodeID].summary.StateHash
	merged := false
	for {
		childRootID, ok := t.findDanglingRootByParentHash(newHash)
		if !ok {
			break
		}
		t.nodes[newNodeID].children = append(t.nodes[newNodeID].children, childRootID)
		t.nodes[childRootID].parent = newNodeID
		delete(t.danglingRoots, childRootID)
		if newTag == tagRoot {
			t.retag(childRootID, tagRoot)
		}
		merged = true
	}
	return merged
}

func (t *Tree) retag(id NodeID, tag branchTag) {
	t.nodes[id].tag = tag
	for _, c := range t.nodes[id].children {
		t.retag(c, tag)
	}
}
