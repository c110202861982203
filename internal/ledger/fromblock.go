package ledger

import "github.com/mina-witness/indexer/internal/blockfile"

// DiffFromBlock converts a parsed block's commands into a Diff in the
// order the block recorded them: signed commands, then internal commands
// (coinbase, fee transfers).
func DiffFromBlock(b *blockfile.Block) Diff {
	var entries []DiffEntry

	for _, sc := range b.SignedCommands {
		switch sc.Kind {
		case blockfile.Delegation:
			entries = append(entries, DiffEntry{
				Kind:        DelegationEntry,
				Source:      sc.Source,
				NewDelegate: sc.Receiver,
				Memo:        sc.Memo,
			})
		default:
			entries = append(entries, DiffEntry{
				Kind:        PaymentEntry,
				Source:      sc.Source,
				Receiver:    sc.Receiver,
				Amount:      sc.Amount,
				Fee:         sc.Fee,
				Memo:        sc.Memo,
				ApplyFailed: sc.ApplyFailed,
			})
		}
	}

	for _, ic := range b.InternalCommands {
		kind := FeeTransferEntry
		if ic.Kind == blockfile.Coinbase {
			kind = CoinbaseEntry
		}
		entries = append(entries, DiffEntry{
			Kind:     kind,
			Receiver: ic.Receiver,
			Amount:   ic.Amount,
		})
	}

	return Diff{Entries: entries}
}
