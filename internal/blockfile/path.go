package blockfile

import (
	"os"
	"path/filepath"
)

// Path is an on-disk block file path together with the identity fields
// its filename carries, kept alongside the path so discovery and the
// witness tree never need to re-stat or re-parse a filename once sorted.
type Path struct {
	FullPath  string
	Network   string
	Height    *uint64 // nil when the filename carries no length
	StateHash string
}

// NewPath parses full's filename and returns a Path, or ok=false if the
// filename does not match either recognised pattern.
func NewPath(full string) (Path, bool) {
	name := filepath.Base(full)
	network, height, stateHash, ok := ParseFilename(name)
	if !ok {
		return Path{}, false
	}
	return Path{FullPath: full, Network: network, Height: height, StateHash: stateHash}, true
}

// Open reads and parses the block at p.FullPath.
func (p Path) Open() (*Block, error) {
	f, err := os.Open(p.FullPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f, p.StateHash)
}

// EffectiveLength returns the filename-encoded height if present, or
// bodyLength otherwise (the value parsed from the block body).
func (p Path) EffectiveLength(bodyLength uint64) uint64 {
	if p.Height != nil {
		return *p.Height
	}
	return bodyLength
}
