// Package blockfile decodes precomputed block files and exposes the
// subset of their content the rest of the indexer needs: identity,
// parent linkage, and the commands that make up a ledger diff. The full
// JSON schema is out of scope; unknown fields are ignored.
package blockfile

import "time"

// Block is the decoded, immutable representation of one precomputed block
// file. Once returned by Parse it is never mutated.
type Block struct {
	StateHash        string
	ParentHash       string
	Length           uint64
	GlobalSlot       uint64
	Timestamp        time.Time
	Creator          string
	CoinbaseReceiver string
	SupercharedCoinbase bool

	SignedCommands   []SignedCommand
	InternalCommands []InternalCommand
}

// CommandKind distinguishes the shape a signed command's payload takes.
type CommandKind uint8

const (
	Payment CommandKind = iota
	Delegation
)

// SignedCommand is a user-submitted, signed transaction included in a block.
type SignedCommand struct {
	Kind     CommandKind
	Source   string
	Receiver string
	Amount   uint64
	Fee      uint64
	Nonce    uint64
	Memo     string
	// ApplyFailed marks a command the network accepted into a block but
	// which failed at apply time (e.g. insufficient balance); its fee and
	// nonce still take effect, but not its balance movement.
	ApplyFailed bool
}

// InternalCommandKind distinguishes coinbase payouts from SNARK fee transfers.
type InternalCommandKind uint8

const (
	Coinbase InternalCommandKind = iota
	FeeTransfer
)

// InternalCommand is a protocol-generated credit: a coinbase payout or a
// SNARK-work fee transfer.
type InternalCommand struct {
	Kind     InternalCommandKind
	Receiver string
	Amount   uint64
}

// AllCommands returns the block's signed and internal commands in the
// order its ledger diff applies them: signed commands first, then
// internal commands.
func (b *Block) AllCommands() []Command {
	out := make([]Command, 0, len(b.SignedCommands)+len(b.InternalCommands))
	for _, c := range b.SignedCommands {
		out = append(out, Command{Signed: &c})
	}
	for _, c := range b.InternalCommands {
		out = append(out, Command{Internal: &c})
	}
	return out
}

// Command is a tagged union over the two command shapes a block carries.
type Command struct {
	Signed   *SignedCommand
	Internal *InternalCommand
}
