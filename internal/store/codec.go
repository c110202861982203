package store

import (
	"bytes"
	"encoding/gob"

	"github.com/mina-witness/indexer/internal/blockfile"
	"github.com/mina-witness/indexer/internal/event"
	"github.com/mina-witness/indexer/internal/ledger"
)

func encodeEvent(ev event.Event) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(ev); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEvent(data []byte) (event.Event, error) {
	var ev event.Event
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&ev); err != nil {
		return event.Event{}, err
	}
	return ev, nil
}

// storedAccount and storedLedger mirror ledger.Account/Ledger in a gob-
// friendly shape (ledger.Ledger's internal map is unexported).
type storedAccount struct {
	PublicKey    string
	TokenID      string
	BalanceNanos uint64
	Nonce        uint64
	Delegate     string
	Vesting      *ledger.VestingTiming
}

func encodeBlock(b *blockfile.Block) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeBlock(data []byte) (*blockfile.Block, error) {
	var b blockfile.Block
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&b); err != nil {
		return nil, err
	}
	return &b, nil
}

func encodeDiff(d ledger.Diff) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeDiff(data []byte) (ledger.Diff, error) {
	var d ledger.Diff
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&d); err != nil {
		return ledger.Diff{}, err
	}
	return d, nil
}

func encodeLedger(l *ledger.Ledger) ([]byte, error) {
	var accounts []storedAccount
	l.Each(func(a *ledger.Account) {
		accounts = append(accounts, storedAccount{
			PublicKey: a.PublicKey, TokenID: a.TokenID, BalanceNanos: a.BalanceNanos,
			Nonce: a.Nonce, Delegate: a.Delegate, Vesting: a.Vesting,
		})
	})
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(accounts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeLedger(data []byte) (*ledger.Ledger, error) {
	var accounts []storedAccount
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&accounts); err != nil {
		return nil, err
	}
	l := ledger.New()
	for _, a := range accounts {
		l.Set(&ledger.Account{
			PublicKey: a.PublicKey, TokenID: a.TokenID, BalanceNanos: a.BalanceNanos,
			Nonce: a.Nonce, Delegate: a.Delegate, Vesting: a.Vesting,
		})
	}
	return l, nil
}

func encodeAccount(a *ledger.Account) []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(storedAccount{
		PublicKey: a.PublicKey, TokenID: a.TokenID, BalanceNanos: a.BalanceNanos,
		Nonce: a.Nonce, Delegate: a.Delegate, Vesting: a.Vesting,
	})
	return buf.Bytes()
}

func decodeAccount(data []byte) (*ledger.Account, error) {
	var a storedAccount
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&a); err != nil {
		return nil, err
	}
	return &ledger.Account{
		PublicKey: a.PublicKey, TokenID: a.TokenID, BalanceNanos: a.BalanceNanos,
		Nonce: a.Nonce, Delegate: a.Delegate, Vesting: a.Vesting,
	}, nil
}
