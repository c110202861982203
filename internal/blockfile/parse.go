package blockfile

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/mina-witness/indexer/internal/ixerr"
)

var errParse = ixerr.ErrParse

// rawBlock mirrors the subset of the precomputed block JSON schema named
// in the external interfaces: enough to drive identity, parent linkage,
// and ledger-diff replay. Fields not listed here are decoded and dropped
// by encoding/json's default unknown-field behaviour.
type rawBlock struct {
	ScheduledTime string `json:"scheduled_time"`
	ProtocolState struct {
		PreviousStateHash string `json:"previous_state_hash"`
		Body              struct {
			GenesisStateHash string `json:"genesis_state_hash"`
			BlockchainState  struct {
				Timestamp       string `json:"timestamp"`
				StagedLedgerHash struct {
					NonSnark struct {
						LedgerHash string `json:"ledger_hash"`
					} `json:"non_snark"`
				} `json:"staged_ledger_hash"`
			} `json:"blockchain_state"`
			ConsensusState struct {
				BlockchainLength      string `json:"blockchain_length"`
				BlockCreator          string `json:"block_creator"`
				CoinbaseReceiver      string `json:"coinbase_receiver"`
				BlockStakeWinner      string `json:"block_stake_winner"`
				GlobalSlotSinceGenesis string `json:"global_slot_since_genesis"`
				SuperchargeCoinbase   bool   `json:"supercharge_coinbase"`
			} `json:"consensus_state"`
		} `json:"body"`
	} `json:"protocol_state"`
	StagedLedgerDiff struct {
		Diff rawDiff `json:"diff"`
	} `json:"staged_ledger_diff"`

	// StateHash is not part of the upstream schema (it is derived from the
	// protocol state by the producer); precomputed block files commonly
	// carry it alongside the body for convenience, so it is accepted here
	// when present and otherwise must be supplied by the caller (normally
	// taken from the filename).
	StateHash string `json:"state_hash"`
}

type rawDiff struct {
	Commands        []rawSignedCommand   `json:"commands"`
	InternalCommands []rawInternalCommand `json:"internal_command_balances"`
}

type rawSignedCommand struct {
	Payload struct {
		Common struct {
			Fee   string `json:"fee"`
			Nonce string `json:"nonce"`
			Memo  string `json:"memo"`
		} `json:"common"`
		Body struct {
			Kind     string `json:"kind"` // "Payment" | "Stake_delegation"
			Source   string `json:"source"`
			Receiver string `json:"receiver"`
			Amount   string `json:"amount"`
			Delegate string `json:"new_delegate"`
		} `json:"body"`
	} `json:"payload"`
	Status string `json:"status"` // "Applied" | "Failed"
}

type rawInternalCommand struct {
	Kind     string `json:"kind"` // "coinbase" | "fee_transfer"
	Receiver string `json:"receiver"`
	Amount   string `json:"amount"`
}

// Parse decodes one precomputed block file. stateHashFromFilename, when non-empty,
// overrides any state_hash field in the body (the filename is the
// authoritative source per the external interfaces section).
func Parse(r io.Reader, stateHashFromFilename string) (*Block, error) {
	var raw rawBlock
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decoding block json: %v", errParse, err)
	}

	stateHash := raw.StateHash
	if stateHashFromFilename != "" {
		stateHash = stateHashFromFilename
	}
	if stateHash == "" {
		return nil, fmt.Errorf("%w: no state hash in filename or body", errParse)
	}

	length, err := strconv.ParseUint(raw.ProtocolState.Body.ConsensusState.BlockchainLength, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: blockchain_length: %v", errParse, err)
	}
	slot, err := strconv.ParseUint(raw.ProtocolState.Body.ConsensusState.GlobalSlotSinceGenesis, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: global_slot_since_genesis: %v", errParse, err)
	}

	ts := raw.ProtocolState.Body.BlockchainState.Timestamp
	if ts == "" {
		ts = raw.ScheduledTime
	}
	timestamp, err := parseTimestamp(ts)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp: %v", errParse, err)
	}

	b := &Block{
		StateHash:           stateHash,
		ParentHash:          raw.ProtocolState.PreviousStateHash,
		Length:              length,
		GlobalSlot:          slot,
		Timestamp:           timestamp,
		Creator:             raw.ProtocolState.Body.ConsensusState.BlockCreator,
		CoinbaseReceiver:    raw.ProtocolState.Body.ConsensusState.CoinbaseReceiver,
		SupercharedCoinbase: raw.ProtocolState.Body.ConsensusState.SuperchargeCoinbase,
	}

	for _, rc := range raw.StagedLedgerDiff.Diff.Commands {
		sc, err := convertSignedCommand(rc)
		if err != nil {
			return nil, err
		}
		b.SignedCommands = append(b.SignedCommands, sc)
	}
	for _, ric := range raw.StagedLedgerDiff.Diff.InternalCommands {
		ic, err := convertInternalCommand(ric)
		if err != nil {
			return nil, err
		}
		b.InternalCommands = append(b.InternalCommands, ic)
	}

	return b, nil
}

func convertSignedCommand(rc rawSignedCommand) (SignedCommand, error) {
	amount, err := parseAmount(rc.Payload.Body.Amount)
	if err != nil {
		return SignedCommand{}, fmt.Errorf("%w: command amount: %v", errParse, err)
	}
	fee, err := parseAmount(rc.Payload.Common.Fee)
	if err != nil {
		return SignedCommand{}, fmt.Errorf("%w: command fee: %v", errParse, err)
	}
	nonce, err := strconv.ParseUint(rc.Payload.Common.Nonce, 10, 64)
	if err != nil {
		return SignedCommand{}, fmt.Errorf("%w: command nonce: %v", errParse, err)
	}

	sc := SignedCommand{
		Source:      rc.Payload.Body.Source,
		Receiver:    rc.Payload.Body.Receiver,
		Amount:      amount,
		Fee:         fee,
		Nonce:       nonce,
		Memo:        rc.Payload.Common.Memo,
		ApplyFailed: rc.Status == "Failed",
	}
	switch rc.Payload.Body.Kind {
	case "Stake_delegation":
		sc.Kind = Delegation
		sc.Receiver = rc.Payload.Body.Delegate
	default:
		sc.Kind = Payment
	}
	return sc, nil
}

func convertInternalCommand(ric rawInternalCommand) (InternalCommand, error) {
	amount, err := parseAmount(ric.Amount)
	if err != nil {
		return InternalCommand{}, fmt.Errorf("%w: internal command amount: %v", errParse, err)
	}
	ic := InternalCommand{Receiver: ric.Receiver, Amount: amount}
	if ric.Kind == "coinbase" {
		ic.Kind = Coinbase
	} else {
		ic.Kind = FeeTransfer
	}
	return ic, nil
}

// parseAmount accepts either a plain decimal string (nanomina already) or
// falls back to 0 for an empty field, matching precomputed block files
// that omit zero amounts.
func parseAmount(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}
