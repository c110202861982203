package ledger

// Ledger is a snapshot of account state, keyed by (public key, token).
type Ledger struct {
	accounts map[Key]*Account
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{accounts: make(map[Key]*Account)}
}

// Clone returns a deep copy, so a diff can be applied speculatively (e.g.
// to validate a block) without mutating the caller's ledger.
func (l *Ledger) Clone() *Ledger {
	out := &Ledger{accounts: make(map[Key]*Account, len(l.accounts))}
	for k, v := range l.accounts {
		cp := *v
		if v.Vesting != nil {
			vt := *v.Vesting
			cp.Vesting = &vt
		}
		out.accounts[k] = &cp
	}
	return out
}

// Get returns the account for publicKey on the native token, or nil.
func (l *Ledger) Get(publicKey string) *Account {
	return l.GetToken(publicKey, NativeToken)
}

// GetToken returns the account for (publicKey, tokenID), or nil.
func (l *Ledger) GetToken(publicKey, tokenID string) *Account {
	return l.accounts[keyOf(publicKey, tokenID)]
}

// Set inserts or replaces an account.
func (l *Ledger) Set(a *Account) {
	if a.TokenID == "" {
		a.TokenID = NativeToken
	}
	l.accounts[keyOf(a.PublicKey, a.TokenID)] = a
}

// Len returns the number of accounts.
func (l *Ledger) Len() int {
	return len(l.accounts)
}

// Each calls fn for every account; iteration order is unspecified.
func (l *Ledger) Each(fn func(*Account)) {
	for _, a := range l.accounts {
		fn(a)
	}
}

// getOrCreate returns the account for (publicKey, tokenID), creating a
// zero-balance account first if one does not exist.
func (l *Ledger) getOrCreate(publicKey, tokenID string) *Account {
	k := keyOf(publicKey, tokenID)
	a, ok := l.accounts[k]
	if !ok {
		a = &Account{PublicKey: publicKey, TokenID: k.TokenID}
		l.accounts[k] = a
	}
	return a
}
