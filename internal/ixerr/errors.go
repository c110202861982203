// Package ixerr defines the closed set of error kinds the indexer
// distinguishes, so callers can branch with errors.Is/errors.As instead of
// matching on message text.
package ixerr

import "fmt"

// Sentinel errors, one per taxonomy entry named in the error handling design.
var (
	// ErrParse marks malformed block JSON, an unrecognised filename, or an
	// unparseable length. Policy: log, skip, never enters the store or tree.
	ErrParse = fmt.Errorf("parse error")

	// ErrMissingParent marks a parent hash discovery expected to find in a
	// segment but didn't. Policy: abandon discovery, fall back to treating
	// all paths as successive.
	ErrMissingParent = fmt.Errorf("missing parent")

	// ErrNotAdded marks a block whose length is below the witness tree's
	// root length. Policy: ignored with a debug log; not an error to the caller.
	ErrNotAdded = fmt.Errorf("block not added: below root length")

	// ErrAlreadySeen marks a duplicate block offered to the tree a second time.
	ErrAlreadySeen = fmt.Errorf("block already seen")

	// ErrStoreIO marks a store write or read failure. A write-batch failure
	// aborts the current block's processing without mutating the event
	// sequence counter.
	ErrStoreIO = fmt.Errorf("store i/o error")

	// ErrInvalidQuery marks a malformed CLI query: bad hash, out-of-range height.
	ErrInvalidQuery = fmt.Errorf("invalid query")

	// ErrNotFound marks a query against a key that is absent from the store.
	ErrNotFound = fmt.Errorf("not found")
)

// Fatal wraps an error that should terminate the process: missing genesis
// ledger, store cannot open, or data corruption detected (e.g. a
// canonical-chain walk reaches a block whose parent is not in the store).
// Recovery requires operator action, so Fatal is never retried internally.
type Fatal struct {
	Cause error
}

func (f *Fatal) Error() string {
	return fmt.Sprintf("fatal: %v", f.Cause)
}

func (f *Fatal) Unwrap() error {
	return f.Cause
}

// NewFatal wraps cause as a Fatal error.
func NewFatal(cause error) error {
	return &Fatal{Cause: cause}
}
