// Package genesis loads the JSON genesis ledger: the initial account
// balances a fresh store is seeded with before any block is replayed.
package genesis

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mina-witness/indexer/internal/ledger"
)

type rawAccount struct {
	PublicKey string  `json:"pk"`
	Balance   string  `json:"balance"`
	Delegate  *string `json:"delegate,omitempty"`
	Timing    *struct {
		InitialMinimumBalance string `json:"initial_minimum_balance"`
		CliffTime             string `json:"cliff_time"`
		CliffAmount           string `json:"cliff_amount"`
		VestingPeriod         string `json:"vesting_period"`
		VestingIncrement      string `json:"vesting_increment"`
	} `json:"timing,omitempty"`
}

type rawGenesisLedger struct {
	Accounts []rawAccount `json:"accounts"`
}

// Load decodes a genesis ledger file into a fresh Ledger.
func Load(path string) (*ledger.Ledger, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening genesis ledger: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a genesis ledger document from r.
func Parse(r io.Reader) (*ledger.Ledger, error) {
	var raw rawGenesisLedger
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding genesis ledger: %w", err)
	}

	l := ledger.New()
	for _, ra := range raw.Accounts {
		balance, err := parseUint(ra.Balance)
		if err != nil {
			return nil, fmt.Errorf("account %s balance: %w", ra.PublicKey, err)
		}
		a := &ledger.Account{PublicKey: ra.PublicKey, BalanceNanos: balance}
		if ra.Delegate != nil {
			a.Delegate = *ra.Delegate
		}
		if ra.Timing != nil {
			vt := &ledger.VestingTiming{}
			vt.InitialMinimumBalance, _ = parseUint(ra.Timing.InitialMinimumBalance)
			vt.CliffTime, _ = parseUint(ra.Timing.CliffTime)
			vt.CliffAmount, _ = parseUint(ra.Timing.CliffAmount)
			vt.VestingPeriod, _ = parseUint(ra.Timing.VestingPeriod)
			vt.VestingIncrement, _ = parseUint(ra.Timing.VestingIncrement)
			a.Vesting = vt
		}
		l.Set(a)
	}
	return l, nil
}

func parseUint(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	var v uint64
	_, err := fmt.Sscanf(s, "%d", &v)
	return v, err
}
