// Package ledger materialises account state by applying the diffs the
// block replay pipeline hands it, in order, to a map keyed by public key.
package ledger

// NativeToken is the default token id; most accounts never carry any other.
const NativeToken = "native"

// AccountCreationFee is deducted from the first credit an account ever
// receives. The rule is preserved exactly as observed: it fires whenever
// the account's balance immediately before this entry is zero, whether or
// not the account already existed under that key — see Diff.Apply.
const AccountCreationFee uint64 = 1_000_000_000 // 1 coin at 9 decimal places

// Account is one ledger entry.
type Account struct {
	PublicKey    string
	TokenID      string
	BalanceNanos uint64
	Nonce        uint64
	Delegate     string
	Vesting      *VestingTiming
}

// VestingTiming describes a timed (non-liquid) account's unlock schedule.
type VestingTiming struct {
	InitialMinimumBalance uint64
	CliffTime             uint64
	CliffAmount           uint64
	VestingPeriod         uint64
	VestingIncrement      uint64
}

// Key identifies an account uniquely within a Ledger.
type Key struct {
	PublicKey string
	TokenID   string
}

func keyOf(publicKey, tokenID string) Key {
	if tokenID == "" {
		tokenID = NativeToken
	}
	return Key{PublicKey: publicKey, TokenID: tokenID}
}
