package blockfile

import (
	"fmt"
	"strconv"
	"strings"
)

// StateHashPrefix is the required prefix of every state hash.
const StateHashPrefix = "3N"

// ParseFilename recognises both block file naming patterns:
//
//	<network>-<height>-<state-hash>.json
//	<network>-<state-hash>.json
//
// It returns the network, the parsed height (nil if the filename carries
// none), the state hash, and whether the filename was well-formed.
func ParseFilename(name string) (network string, height *uint64, stateHash string, ok bool) {
	const ext = ".json"
	if !strings.HasSuffix(name, ext) {
		return "", nil, "", false
	}
	base := strings.TrimSuffix(name, ext)
	parts := strings.Split(base, "-")
	if len(parts) < 2 {
		return "", nil, "", false
	}

	last := parts[len(parts)-1]
	if !strings.HasPrefix(last, StateHashPrefix) {
		return "", nil, "", false
	}

	if len(parts) >= 3 {
		// Try the three-part pattern first: <network>-<height>-<hash>.
		maybeHeight := parts[len(parts)-2]
		if h, err := strconv.ParseUint(maybeHeight, 10, 64); err == nil {
			net := strings.Join(parts[:len(parts)-2], "-")
			if net == "" {
				return "", nil, "", false
			}
			return net, &h, last, true
		}
	}

	// Fall back to the two-part pattern: <network>-<hash>.
	net := strings.Join(parts[:len(parts)-1], "-")
	if net == "" {
		return "", nil, "", false
	}
	return net, nil, last, true
}

// FormatFilename is the inverse of ParseFilename, used by tests exercising
// the filename round-trip property.
func FormatFilename(network string, height *uint64, stateHash string) string {
	if height == nil {
		return fmt.Sprintf("%s-%s.json", network, stateHash)
	}
	return fmt.Sprintf("%s-%d-%s.json", network, *height, stateHash)
}

// IsValidBlockFile reports whether name matches either recognised pattern.
func IsValidBlockFile(name string) bool {
	_, _, _, ok := ParseFilename(name)
	return ok
}
