package discovery

import (
	"fmt"
	"testing"

	"github.com/mina-witness/indexer/internal/blockfile"
)

// chainPath builds a path whose hash is derived from its height. The
// parent link comes from parentHashForChain, which points at height-1's
// hash (or "genesis-parent" at the floor).
func chainPath(height uint64, floor uint64) blockfile.Path {
	h := uint64ptr(height)
	return blockfile.Path{
		FullPath:  fmt.Sprintf("mainnet-%d-3N%d.json", height, height),
		Network:   "mainnet",
		Height:    h,
		StateHash: fmt.Sprintf("3N%d", height),
	}
}

func uint64ptr(v uint64) *uint64 { return &v }

func parentHashForChain(floor uint64) ParentHashFn {
	return func(p blockfile.Path) (string, bool) {
		if p.Height == nil {
			return "", false
		}
		h := *p.Height
		if h <= floor {
			return "genesis-parent", true
		}
		return fmt.Sprintf("3N%d", h-1), true
	}
}

func lengthFromFilename(p blockfile.Path) (uint64, bool) {
	if p.Height == nil {
		return 0, false
	}
	return *p.Height, true
}

func TestDiscover_ContiguousColdStart(t *testing.T) {
	// Scenario S1: heights 2..21, k=10.
	var paths []blockfile.Path
	for h := uint64(2); h <= 21; h++ {
		paths = append(paths, chainPath(h, 1))
	}

	result := Discover(paths, Options{K: 10}, lengthFromFilename, parentHashForChain(1))

	if len(result.DeepCanonical) != 10 {
		t.Fatalf("len(DeepCanonical) = %d, want 10", len(result.DeepCanonical))
	}
	if result.DeepCanonical[0].StateHash != "3N2" {
		t.Errorf("DeepCanonical[0] = %s, want 3N2", result.DeepCanonical[0].StateHash)
	}
	if result.DeepCanonical[len(result.DeepCanonical)-1].StateHash != "3N11" {
		t.Errorf("DeepCanonical last = %s, want 3N11", result.DeepCanonical[len(result.DeepCanonical)-1].StateHash)
	}
	if len(result.Recent) != 10 {
		t.Fatalf("len(Recent) = %d, want 10", len(result.Recent))
	}
	if len(result.Orphaned) != 0 {
		t.Errorf("len(Orphaned) = %d, want 0", len(result.Orphaned))
	}
}

func TestDiscover_GapInContiguity(t *testing.T) {
	// Scenario S2: heights 2,3,4, 6..13 (gap between 4 and 6).
	heights := []uint64{2, 3, 4, 6, 7, 8, 9, 10, 11, 12, 13}
	var paths []blockfile.Path
	for _, h := range heights {
		paths = append(paths, chainPath(h, 1))
	}

	result := Discover(paths, Options{K: 10}, lengthFromFilename, parentHashForChain(1))

	if len(result.DeepCanonical) != 0 {
		t.Errorf("len(DeepCanonical) = %d, want 0", len(result.DeepCanonical))
	}
	if len(result.Recent) != len(paths) {
		t.Errorf("len(Recent) = %d, want %d (all paths)", len(result.Recent), len(paths))
	}
	if len(result.Orphaned) != 0 {
		t.Errorf("len(Orphaned) = %d, want 0", len(result.Orphaned))
	}
}

func TestDiscover_EmptyAfterFilter(t *testing.T) {
	paths := []blockfile.Path{chainPath(5, 1)}
	min := uint64(100)
	result := Discover(paths, Options{K: 10, MinLength: &min}, lengthFromFilename, parentHashForChain(1))
	if len(result.DeepCanonical) != 0 || len(result.Recent) != 0 || len(result.Orphaned) != 0 {
		t.Error("expected three empty lists when the length filter drops everything")
	}
}

func TestDiscover_DiscoverySoundness(t *testing.T) {
	// Property 1: a contiguous chain of length >= k+1 yields a non-empty
	// deep_canonical whose first element's length is the lowest in the set.
	var paths []blockfile.Path
	for h := uint64(10); h <= 25; h++ {
		paths = append(paths, chainPath(h, 9))
	}
	result := Discover(paths, Options{K: 10}, lengthFromFilename, parentHashForChain(9))
	if len(result.DeepCanonical) == 0 {
		t.Fatal("expected non-empty DeepCanonical")
	}
	if result.DeepCanonical[0].StateHash != "3N10" {
		t.Errorf("first canonical hash = %s, want 3N10", result.DeepCanonical[0].StateHash)
	}
}
