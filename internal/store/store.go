package store

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/mina-witness/indexer/internal/blockfile"
	"github.com/mina-witness/indexer/internal/event"
	"github.com/mina-witness/indexer/internal/ixerr"
	"github.com/mina-witness/indexer/internal/ledger"
)

func init() {
	gob.Register(ledger.DiffEntry{})
}

// Store is the primary, read-write handle. It is owned exclusively by the
// ingestion worker; nothing else writes to the same directory.
type Store struct {
	db   *badger.DB
	path string
}

// Open opens (creating if necessary) a primary store at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, ixerr.NewFatal(errors.Wrap(err, "opening store"))
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the underlying Badger handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Batch wraps one Badger transaction so a caller can stage writes across
// several column families and commit them atomically.
type Batch struct {
	txn *badger.Txn
}

// NewBatch starts a write batch.
func (s *Store) NewBatch() *Batch {
	return &Batch{txn: s.db.NewTransaction(true)}
}

// Commit flushes the batch. A failed commit leaves the store exactly as
// it was before the batch started.
func (b *Batch) Commit() error {
	if err := b.txn.Commit(); err != nil {
		return errors.Wrap(err, "committing batch")
	}
	return nil
}

// Discard abandons the batch without writing anything.
func (b *Batch) Discard() {
	b.txn.Discard()
}

func (b *Batch) set(key, value []byte) error {
	if err := b.txn.Set(key, value); err != nil {
		return errors.Wrap(err, "batch set")
	}
	return nil
}

// --- blocks ---------------------------------------------------------------

// SaveBlockResult reports whether SaveBlock actually inserted a new block.
type SaveBlockResult int

const (
	Inserted SaveBlockResult = iota
	AlreadyPresent
)

// SaveBlock inserts blk by state hash and indexes it by height, inside
// batch. It is idempotent: calling it twice with the same block inserts
// nothing the second time and reports AlreadyPresent.
func (s *Store) SaveBlock(batch *Batch, blk *blockfile.Block) (SaveBlockResult, error) {
	key := blockKey(blk.StateHash)
	_, err := batch.txn.Get(key)
	if err == nil {
		return AlreadyPresent, nil
	}
	if err != badger.ErrKeyNotFound {
		return AlreadyPresent, errors.Wrap(err, "checking existing block")
	}

	data, err := encodeBlock(blk)
	if err != nil {
		return Inserted, errors.Wrap(err, "encoding block")
	}
	if err := batch.set(key, data); err != nil {
		return Inserted, err
	}
	if err := batch.set(blockByHeightKey(blk.Length, blk.StateHash), nil); err != nil {
		return Inserted, err
	}
	return Inserted, nil
}

// GetBlock returns the block with the given state hash.
func (s *Store) GetBlock(stateHash string) (*blockfile.Block, error) {
	var blk *blockfile.Block
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blockKey(stateHash))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ixerr.ErrNotFound
			}
			return errors.Wrap(err, "get block")
		}
		return item.Value(func(val []byte) error {
			b, err := decodeBlock(val)
			if err != nil {
				return err
			}
			blk = b
			return nil
		})
	})
	return blk, err
}

// GetBlocksAtHeight returns every state hash recorded at height, in
// ascending lexicographic order (Badger's natural key order).
func (s *Store) GetBlocksAtHeight(height uint64) ([]string, error) {
	var hashes []string
	prefix := blockByHeightPrefix(height)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			hashes = append(hashes, string(k[1+8:]))
		}
		return nil
	})
	return hashes, err
}

// MaxBlockHeight returns the highest length recorded in blocks-by-height,
// regardless of canonicity. Returns ixerr.ErrNotFound if the store holds
// no blocks yet.
func (s *Store) MaxBlockHeight() (uint64, error) {
	var height uint64
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte{byte(cfBlocksByHeight)}
		seekFrom := append(append([]byte{}, prefix...), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
		for it.Seek(seekFrom); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			height = decodeUint64(k[1 : 1+8])
			found = true
			return nil
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ixerr.ErrNotFound
	}
	return height, nil
}

// --- ledgers & diffs --------------------------------------------------------

func (s *Store) SaveLedger(batch *Batch, hash string, l *ledger.Ledger) error {
	data, err := encodeLedger(l)
	if err != nil {
		return errors.Wrap(err, "encoding ledger")
	}
	return batch.set(ledgerKey(hash), data)
}

func (s *Store) GetLedger(hash string) (*ledger.Ledger, error) {
	var l *ledger.Ledger
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(ledgerKey(hash))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ixerr.ErrNotFound
			}
			return errors.Wrap(err, "get ledger")
		}
		return item.Value(func(val []byte) error {
			decoded, err := decodeLedger(val)
			if err != nil {
				return err
			}
			l = decoded
			return nil
		})
	})
	return l, err
}

// SetLatestLedgerSnapshot records the most recent ledger snapshot's
// height and state hash, so a read-only query can find the best
// available ledger without scanning the canonicity CF for one that
// happens to have a sibling entry in ledgers.
func (s *Store) SetLatestLedgerSnapshot(batch *Batch, height uint64, stateHash string) error {
	return batch.set(latestLedgerSnapKey(), append(beUint64(height), []byte(stateHash)...))
}

// GetLatestLedgerSnapshot returns the height and state hash of the most
// recently written ledger snapshot.
func (s *Store) GetLatestLedgerSnapshot() (uint64, string, error) {
	var height uint64
	var hash string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(latestLedgerSnapKey())
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ixerr.ErrNotFound
			}
			return errors.Wrap(err, "get latest ledger snapshot")
		}
		return item.Value(func(val []byte) error {
			height = decodeUint64(val[:8])
			hash = string(val[8:])
			return nil
		})
	})
	return height, hash, err
}

// SetBestTip records the root branch's current best tip (any leaf of the
// root branch, per the witness tree's own definition), so a read-only
// query can answer "block best-tip" without the flat blocks-by-height CF,
// which makes no distinction between the root branch and dangling
// fragments. Only the single-writer ingestion worker ever calls this:
// NewMachine and Ingest write it in the same batch as the block that
// produced the new tip; RunInitializing writes it in a batch of its own
// after re-rooting the tree.
func (s *Store) SetBestTip(batch *Batch, height uint64, stateHash string) error {
	return batch.set(bestTipKey(), append(beUint64(height), []byte(stateHash)...))
}

// GetBestTip returns the height and state hash of the most recently
// recorded best tip.
func (s *Store) GetBestTip() (uint64, string, error) {
	var height uint64
	var hash string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(bestTipKey())
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ixerr.ErrNotFound
			}
			return errors.Wrap(err, "get best tip")
		}
		return item.Value(func(val []byte) error {
			height = decodeUint64(val[:8])
			hash = string(val[8:])
			return nil
		})
	})
	return height, hash, err
}

// SaveStakingLedger persists a staking ledger snapshot keyed by the
// epoch it governs, plus balance- and stake-sorted per-account index
// entries. Stake and balance are indexed identically here: aggregating
// delegated stake per account (summing what other accounts delegate to
// it) is out of scope, so the stake index currently mirrors the raw
// account balance rather than the fully delegated figure a staking
// calculation would use.
func (s *Store) SaveStakingLedger(batch *Batch, genesisHash string, epoch uint64, ledgerHash string, l *ledger.Ledger) error {
	data, err := encodeLedger(l)
	if err != nil {
		return errors.Wrap(err, "encoding staking ledger")
	}
	if err := batch.set(stakingLedgerKey(genesisHash, epoch, ledgerHash), data); err != nil {
		return err
	}
	var indexErr error
	l.Each(func(a *ledger.Account) {
		if indexErr != nil {
			return
		}
		encoded := encodeAccount(a)
		if err := batch.set(stakingLedgerBalanceKey(epoch, a.BalanceNanos, a.PublicKey), encoded); err != nil {
			indexErr = err
			return
		}
		if err := batch.set(stakingLedgerStakeKey(epoch, a.BalanceNanos, a.PublicKey), encoded); err != nil {
			indexErr = err
		}
	})
	return indexErr
}

// GetStakingLedger returns the staking ledger snapshot recorded for
// (genesisHash, epoch, ledgerHash).
func (s *Store) GetStakingLedger(genesisHash string, epoch uint64, ledgerHash string) (*ledger.Ledger, error) {
	var l *ledger.Ledger
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(stakingLedgerKey(genesisHash, epoch, ledgerHash))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ixerr.ErrNotFound
			}
			return errors.Wrap(err, "get staking ledger")
		}
		return item.Value(func(val []byte) error {
			decoded, err := decodeLedger(val)
			if err != nil {
				return err
			}
			l = decoded
			return nil
		})
	})
	return l, err
}

func (s *Store) SaveDiff(batch *Batch, stateHash string, d ledger.Diff) error {
	data, err := encodeDiff(d)
	if err != nil {
		return errors.Wrap(err, "encoding diff")
	}
	return batch.set(diffKey(stateHash), data)
}

func (s *Store) GetDiff(stateHash string) (ledger.Diff, error) {
	var d ledger.Diff
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(diffKey(stateHash))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ixerr.ErrNotFound
			}
			return errors.Wrap(err, "get diff")
		}
		return item.Value(func(val []byte) error {
			decoded, err := decodeDiff(val)
			if err != nil {
				return err
			}
			d = decoded
			return nil
		})
	})
	return d, err
}

// --- canonicity --------------------------------------------------------------

func (s *Store) SetCanonical(batch *Batch, height uint64, stateHash string) error {
	if err := batch.set(canonicityKey(height), []byte(stateHash)); err != nil {
		return err
	}
	return s.setMaxCanonicalIfGreater(batch, height)
}

func (s *Store) setMaxCanonicalIfGreater(batch *Batch, height uint64) error {
	item, err := batch.txn.Get(canonicityMetaKey())
	if err == nil {
		var cur uint64
		if vErr := item.Value(func(val []byte) error { cur = decodeUint64(val); return nil }); vErr != nil {
			return errors.Wrap(vErr, "reading max_canonical")
		}
		if cur >= height {
			return nil
		}
	} else if err != badger.ErrKeyNotFound {
		return errors.Wrap(err, "reading max_canonical")
	}
	return batch.set(canonicityMetaKey(), beUint64(height))
}

func (s *Store) GetCanonicalHashAtHeight(height uint64) (string, error) {
	var hash string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(canonicityKey(height))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ixerr.ErrNotFound
			}
			return errors.Wrap(err, "get canonical hash")
		}
		return item.Value(func(val []byte) error { hash = string(val); return nil })
	})
	return hash, err
}

func (s *Store) MaxCanonicalHeight() (uint64, error) {
	var height uint64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(canonicityMetaKey())
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return errors.Wrap(err, "get max_canonical")
		}
		return item.Value(func(val []byte) error { height = decodeUint64(val); return nil })
	})
	return height, err
}

// --- events --------------------------------------------------------------

// AppendEvent assigns the next sequence number to ev and writes both the
// event and the updated next-seq pointer within batch, so a crash mid-batch
// never leaves the counter ahead of what was actually durable.
func (s *Store) AppendEvent(batch *Batch, ev event.Event) (uint64, error) {
	seq, err := s.peekNextSeq(batch)
	if err != nil {
		return 0, err
	}
	ev.Seq = seq
	data, err := encodeEvent(ev)
	if err != nil {
		return 0, errors.Wrap(err, "encoding event")
	}
	if err := batch.set(eventKey(seq), data); err != nil {
		return 0, err
	}
	if err := batch.set(eventsMetaKey(), beUint64(seq+1)); err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *Store) peekNextSeq(batch *Batch) (uint64, error) {
	item, err := batch.txn.Get(eventsMetaKey())
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return 0, nil
		}
		return 0, errors.Wrap(err, "reading next_seq")
	}
	var seq uint64
	err = item.Value(func(val []byte) error { seq = decodeUint64(val); return nil })
	return seq, err
}

func (s *Store) NextSeq() (uint64, error) {
	var seq uint64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(eventsMetaKey())
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return errors.Wrap(err, "reading next_seq")
		}
		return item.Value(func(val []byte) error { seq = decodeUint64(val); return nil })
	})
	return seq, err
}

func (s *Store) GetEvent(seq uint64) (event.Event, error) {
	var ev event.Event
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(eventKey(seq))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ixerr.ErrNotFound
			}
			return errors.Wrap(err, "get event")
		}
		return item.Value(func(val []byte) error {
			decoded, err := decodeEvent(val)
			if err != nil {
				return err
			}
			ev = decoded
			return nil
		})
	})
	return ev, err
}

// --- account balance index -------------------------------------------------

// IndexAccountBalance maintains the balance-sorted secondary index. oldBalance
// is the account's balance before this update and hadOld reports whether the
// account existed; when it did, the stale entry at oldBalance is removed
// before the new one is written, since the key embeds balance.
func (s *Store) IndexAccountBalance(batch *Batch, a *ledger.Account, oldBalance uint64, hadOld bool) error {
	if hadOld {
		if err := batch.txn.Delete(accountBalanceKey(oldBalance, a.PublicKey)); err != nil && err != badger.ErrKeyNotFound {
			return errors.Wrap(err, "removing stale balance index entry")
		}
	}
	return batch.set(accountBalanceKey(a.BalanceNanos, a.PublicKey), encodeAccount(a))
}

// TopAccountsByBalance returns up to limit accounts in descending balance order.
func (s *Store) TopAccountsByBalance(limit int) ([]*ledger.Account, error) {
	var accounts []*ledger.Account
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := accountBalancePrefix()
		seekFrom := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seekFrom); it.ValidForPrefix(prefix) && len(accounts) < limit; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				a, err := decodeAccount(val)
				if err != nil {
					return err
				}
				accounts = append(accounts, a)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return accounts, err
}

// --- usernames --------------------------------------------------------------

func (s *Store) SetUsername(batch *Batch, publicKey, name string) error {
	return batch.set(usernameKey(publicKey), []byte(name))
}

func (s *Store) GetUsername(publicKey string) (string, error) {
	var name string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(usernameKey(publicKey))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ixerr.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error { name = string(val); return nil })
	})
	return name, err
}

// --- checkpoint ------------------------------------------------------------

// Checkpoint writes an atomic snapshot of the store into destDir. It is an
// error for destDir to already exist, matching the CLI's stated contract.
func (s *Store) Checkpoint(destDir string) error {
	if _, err := os.Stat(destDir); err == nil {
		return fmt.Errorf("checkpoint destination %s already exists", destDir)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return errors.Wrap(err, "creating checkpoint directory")
	}
	backupPath := filepath.Join(destDir, "backup.badger")
	f, err := os.Create(backupPath)
	if err != nil {
		return errors.Wrap(err, "creating backup file")
	}
	defer f.Close()
	if _, err := s.db.Backup(f, 0); err != nil {
		return errors.Wrap(err, "running backup")
	}
	return nil
}

// OpenCheckpoint opens a store directory produced by Checkpoint by
// loading its backup stream into a fresh Badger directory at the same path.
func OpenCheckpoint(destDir string) (*Store, error) {
	opts := badger.DefaultOptions(destDir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "opening checkpoint store")
	}
	f, err := os.Open(filepath.Join(destDir, "backup.badger"))
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "opening backup file")
	}
	defer f.Close()
	if err := db.Load(f, 16); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "loading backup")
	}
	return &Store{db: db, path: destDir}, nil
}
