package ledger

// EntryKind distinguishes the four diff-entry shapes.
type EntryKind uint8

const (
	PaymentEntry EntryKind = iota
	DelegationEntry
	CoinbaseEntry
	FeeTransferEntry
)

// DiffEntry is one mutation produced by applying a block's commands.
type DiffEntry struct {
	Kind EntryKind

	Source      string // Payment
	Receiver    string // Payment, Coinbase, FeeTransfer
	NewDelegate string // Delegation
	Amount      uint64
	Fee         uint64 // Payment
	Memo        string

	// ApplyFailed marks a Payment the network accepted but which failed to
	// apply: the nonce still bumps and the fee still moves, but amount does not.
	ApplyFailed bool
}

// Diff is the ordered set of mutations one block applies to its parent ledger.
type Diff struct {
	Entries []DiffEntry
}

// TouchedAccounts returns the distinct public keys a diff's entries read
// or write, so a caller can snapshot balances before Apply to maintain a
// balance-sorted secondary index.
func (d Diff) TouchedAccounts() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(pk string) {
		if pk == "" {
			return
		}
		if _, ok := seen[pk]; ok {
			return
		}
		seen[pk] = struct{}{}
		out = append(out, pk)
	}
	for _, e := range d.Entries {
		switch e.Kind {
		case PaymentEntry:
			add(e.Source)
			add(e.Receiver)
		case DelegationEntry:
			add(e.Source)
		case CoinbaseEntry, FeeTransferEntry:
			add(e.Receiver)
		}
	}
	return out
}

// Concat returns the diff produced by appending other's entries after d's,
// the operation property 6 (diff composability) is stated over.
func (d Diff) Concat(other Diff) Diff {
	out := make([]DiffEntry, 0, len(d.Entries)+len(other.Entries))
	out = append(out, d.Entries...)
	out = append(out, other.Entries...)
	return Diff{Entries: out}
}

// Apply applies d to l in place and returns l for chaining.
//
// Entries are processed in order. Consecutive FeeTransferEntry entries
// naming the same receiver are coalesced into a single credit before the
// account-creation-fee check runs, so a receiver paid out twice in one
// block is not charged the creation fee twice.
func (d Diff) Apply(l *Ledger) *Ledger {
	entries := coalesceFeeTransfers(d.Entries)
	for _, e := range entries {
		switch e.Kind {
		case PaymentEntry:
			applyPayment(l, e)
		case DelegationEntry:
			applyDelegation(l, e)
		case CoinbaseEntry:
			applyCredit(l, e.Receiver, e.Amount)
		case FeeTransferEntry:
			applyCredit(l, e.Receiver, e.Amount)
		}
	}
	return l
}

// coalesceFeeTransfers merges consecutive FeeTransferEntry entries to the
// same receiver. Non-fee-transfer entries and non-adjacent fee transfers
// are left untouched, matching the per-block aggregation the protocol
// performs for SNARK worker payouts.
func coalesceFeeTransfers(entries []DiffEntry) []DiffEntry {
	out := make([]DiffEntry, 0, len(entries))
	for _, e := range entries {
		if e.Kind == FeeTransferEntry && len(out) > 0 {
			last := &out[len(out)-1]
			if last.Kind == FeeTransferEntry && last.Receiver == e.Receiver {
				last.Amount += e.Amount
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

func applyPayment(l *Ledger, e DiffEntry) {
	src := l.getOrCreate(e.Source, NativeToken)
	total := e.Amount + e.Fee

	if e.ApplyFailed {
		// Fee and nonce still take effect; balance movement does not.
		if src.BalanceNanos >= e.Fee {
			src.BalanceNanos -= e.Fee
		} else {
			src.BalanceNanos = 0
		}
		src.Nonce++
		return
	}

	if src.BalanceNanos < total {
		// Insufficient balance: record as applied-failed. Nonce still
		// bumps; no balance moves on either side.
		src.Nonce++
		return
	}

	src.BalanceNanos -= total
	src.Nonce++
	applyCredit(l, e.Receiver, e.Amount)
}

func applyDelegation(l *Ledger, e DiffEntry) {
	a := l.getOrCreate(e.Source, NativeToken)
	a.Delegate = e.NewDelegate
	a.Nonce++
}

// applyCredit credits amount to receiver on the native token. The
// account-creation fee is deducted whenever the receiving account's
// balance immediately before this credit is exactly zero — whether the
// account is brand new or has simply been emptied by a prior entry in the
// same block. This is the preserved quirk: it is not "corrected" for the
// ambiguous just-emptied-but-existing case.
func applyCredit(l *Ledger, receiver string, amount uint64) {
	a := l.getOrCreate(receiver, NativeToken)
	if a.BalanceNanos == 0 {
		if amount <= AccountCreationFee {
			return
		}
		a.BalanceNanos = amount - AccountCreationFee
		return
	}
	a.BalanceNanos += amount
}
