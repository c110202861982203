// Package store persists every fact the indexer derives to an embedded
// ordered key-value engine (dgraph-io/badger/v4), partitioned into named
// column families. Badger has no native column families, so each CF is a
// fixed one-byte prefix on the underlying key, centralised here the way
// a table-constant file centralises bucket names.
package store

// cfPrefix is the one-byte tag every physical key starts with.
type cfPrefix byte

const (
	cfBlocks               cfPrefix = 0x01
	cfBlocksByHeight        cfPrefix = 0x02
	cfLedgers               cfPrefix = 0x03
	cfBlockLedgerDiff       cfPrefix = 0x04
	cfCanonicity            cfPrefix = 0x05
	cfCanonicityMeta        cfPrefix = 0x06
	cfEvents                cfPrefix = 0x07
	cfEventsMeta            cfPrefix = 0x08
	cfAccountBalance        cfPrefix = 0x09
	cfUsername              cfPrefix = 0x0A
	cfStakingLedger         cfPrefix = 0x0B
	cfStakingLedgerBalance  cfPrefix = 0x0C
	cfStakingLedgerStake    cfPrefix = 0x0D
)

// metaMaxCanonical and metaNextSeq are the fixed keys within their
// respective *-meta column families.
var (
	metaMaxCanonical     = []byte("max_canonical")
	metaNextSeq          = []byte("next_seq")
	metaLatestLedgerSnap = []byte("latest_ledger_snapshot")
	metaBestTip          = []byte("best_tip")
)
