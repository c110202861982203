package store

import (
	"context"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

// Secondary is a read-only handle opened against the same directory as a
// primary Store. Badger read-only handles need an explicit re-open to
// observe value-log segments written after they were opened, so Secondary
// re-opens itself on a ticker via CatchUp.
type Secondary struct {
	*Store
	path string
}

// OpenSecondary opens a read-only handle against path, which must already
// hold a store (normally the primary's directory, or a fresh identifier
// subdirectory per the concurrency model).
func OpenSecondary(path string) (*Secondary, error) {
	opts := badger.DefaultOptions(path)
	opts.ReadOnly = true
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "opening secondary store")
	}
	return &Secondary{Store: &Store{db: db, path: path}, path: path}, nil
}

// CatchUp periodically re-opens the secondary so it observes writes the
// primary has committed since it was last opened. It runs until ctx is
// cancelled.
func (sec *Secondary) CatchUp(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			opts := badger.DefaultOptions(sec.path)
			opts.ReadOnly = true
			opts.Logger = nil
			db, err := badger.Open(opts)
			if err != nil {
				continue
			}
			old := sec.db
			sec.db = db
			_ = old.Close()
		}
	}
}
