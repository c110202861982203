// Package discovery implements canonical-chain discovery: the startup
// fast path that turns a directory of block files into a provably
// canonical prefix without ever touching the witness tree, short-
// circuiting the common "cold start from archive" case.
package discovery

import (
	"sort"

	"github.com/mina-witness/indexer/internal/blockfile"
)

// Result is discovery's three disjoint output lists.
type Result struct {
	// DeepCanonical is sorted lowest -> highest, provably canonical.
	DeepCanonical []blockfile.Path
	// Recent is above the witness-tree root; fed into the tree via Offer.
	Recent []blockfile.Path
	// Orphaned is at or below the canonical tip but not on the canonical chain.
	Orphaned []blockfile.Path
}

// empty returns the "give up, let the witness tree sort it out" result:
// an empty canonical prefix with every input path treated as recent.
func empty(all []blockfile.Path) Result {
	return Result{Recent: all}
}

// Options configures Discover.
type Options struct {
	MinLength *uint64
	MaxLength *uint64
	K         uint64
	// ProgressCadence, when > 0, calls Progress every that many paths scanned.
	ProgressCadence int
	Progress        func(scanned, total int)
}

// LengthFn resolves a path's effective blockchain length, consulting the
// block body when the filename alone carries none.
type LengthFn func(p blockfile.Path) (length uint64, ok bool)

// ParentHashFn resolves a path's parent state hash from its block body.
type ParentHashFn func(p blockfile.Path) (parentHash string, ok bool)

type scored struct {
	path       blockfile.Path
	length     uint64
	known      bool
	parentHash string
}

type run struct {
	length   uint64
	startIdx int
	endIdx   int // exclusive
}

// Discover runs the nine-step algorithm against paths, using lengthFn and
// parentHashFn to resolve fields the filename does not carry (the caller
// owns parsing cost/caching for those lookups).
func Discover(paths []blockfile.Path, opts Options, lengthFn LengthFn, parentHashFn ParentHashFn) Result {
	originalAll := make([]blockfile.Path, len(paths))
	copy(originalAll, paths)

	// Step 1: sort by length; unparseable lengths sort to the maximum.
	all := make([]scored, 0, len(paths))
	for i, p := range paths {
		length, ok := lengthFn(p)
		parentHash, _ := parentHashFn(p)
		all = append(all, scored{path: p, length: length, known: ok, parentHash: parentHash})
		if opts.Progress != nil && opts.ProgressCadence > 0 && (i+1)%opts.ProgressCadence == 0 {
			opts.Progress(i+1, len(paths))
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return effectiveLength(all[i]) < effectiveLength(all[j])
	})

	// Step 2: filter by [min, max]. An empty filtered set returns three
	// empty lists.
	var filtered []scored
	for _, s := range all {
		if opts.MinLength != nil && s.known && s.length < *opts.MinLength {
			continue
		}
		if opts.MaxLength != nil && s.known && s.length > *opts.MaxLength {
			continue
		}
		filtered = append(filtered, s)
	}
	if len(filtered) == 0 {
		return Result{}
	}

	// Step 3+4: find the first gap > 1 in distinct heights; everything
	// before it is the lowest contiguous chain.
	var runs []run
	i := 0
	for i < len(filtered) {
		j := i
		length := filtered[i].length
		for j < len(filtered) && filtered[j].length == length {
			j++
		}
		runs = append(runs, run{length: length, startIdx: i, endIdx: j})
		i = j
	}

	lastContiguous := 0
	for idx := 1; idx < len(runs); idx++ {
		if runs[idx].length-runs[idx-1].length > 1 {
			break
		}
		lastContiguous = idx
	}

	// Step 5: walk k parent links up from the end of the lowest
	// contiguous chain, restarting one height lower on failure.
	rootRunIdx, rootPath, ok := walkKParents(filtered, runs, lastContiguous, opts.K)
	if !ok {
		return empty(originalAll)
	}

	// Step 6: everything strictly above the root's height becomes recent.
	rootLength := runs[rootRunIdx].length
	var recent []blockfile.Path
	for _, s := range filtered {
		if s.length > rootLength {
			recent = append(recent, s.path)
		}
	}

	// Step 7+8: walk parent hashes downward from the root, building
	// deep_canonical, then reverse to genesis -> tip order.
	deepCanonical, ok := walkDeepCanonical(filtered, runs, rootRunIdx, rootPath)
	if !ok {
		return empty(originalAll)
	}

	// Step 9: orphaned = input at/below canonical tip height, not in deep_canonical.
	canonSet := make(map[string]struct{}, len(deepCanonical))
	for _, s := range deepCanonical {
		canonSet[s.StateHash] = struct{}{}
	}
	var orphaned []blockfile.Path
	for _, s := range filtered {
		if s.length <= rootLength {
			if _, ok := canonSet[s.path.StateHash]; !ok {
				orphaned = append(orphaned, s.path)
			}
		}
	}

	return Result{DeepCanonical: deepCanonical, Recent: recent, Orphaned: orphaned}
}

func effectiveLength(s scored) uint64 {
	if !s.known {
		return ^uint64(0)
	}
	return s.length
}

// walkKParents attempts k successful parent steps starting from every
// candidate in run lastContiguous, restarting one run lower whenever a
// candidate's walk fails. Returns the run index and chosen path at the
// witness-tree root.
func walkKParents(filtered []scored, runs []run, lastContiguous int, k uint64) (int, scored, bool) {
	for start := lastContiguous; start >= int(k); start-- {
		for _, tipCand := range filtered[runs[start].startIdx:runs[start].endIdx] {
			if rootScored, ok := tryWalk(filtered, runs, start, tipCand, k); ok {
				return start - int(k), rootScored, true
			}
		}
	}
	return 0, scored{}, false
}

// tryWalk attempts k successful parent steps starting at run index start
// with candidate cur as the tip, returning the scored candidate reached
// after the k-th step.
func tryWalk(filtered []scored, runs []run, start int, cur scored, k uint64) (scored, bool) {
	curParentHash := cur.parentHash
	for step := uint64(0); step < k; step++ {
		prevRun := runs[start-int(step)-1]
		found := false
		for _, cand := range filtered[prevRun.startIdx:prevRun.endIdx] {
			if cand.path.StateHash == curParentHash {
				curParentHash = cand.parentHash
				found = true
				if step == k-1 {
					return cand, true
				}
				break
			}
		}
		if !found {
			return scored{}, false
		}
	}
	return scored{}, false
}

// walkDeepCanonical walks parent hashes downward from the root, segment
// by segment, then reverses the collected paths so callers get them in
// ascending (genesis -> tip) order.
func walkDeepCanonical(filtered []scored, runs []run, rootRunIdx int, rootPath scored) ([]blockfile.Path, bool) {
	descending := []blockfile.Path{rootPath.path}
	curParentHash := rootPath.parentHash

	for runIdx := rootRunIdx - 1; runIdx >= 0; runIdx-- {
		r := runs[runIdx]
		found := false
		for _, cand := range filtered[r.startIdx:r.endIdx] {
			if cand.path.StateHash == curParentHash {
				descending = append(descending, cand.path)
				curParentHash = cand.parentHash
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}

	for i, j := 0, len(descending)-1; i < j; i, j = i+1, j-1 {
		descending[i], descending[j] = descending[j], descending[i]
	}
	return descending, true
}
