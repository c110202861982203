package store

import "encoding/binary"

func beUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

func prefixed(p cfPrefix, parts ...[]byte) []byte {
	n := 1
	for _, part := range parts {
		n += len(part)
	}
	out := make([]byte, 0, n)
	out = append(out, byte(p))
	for _, part := range parts {
		out = append(out, part...)
	}
	return out
}

func blockKey(stateHash string) []byte {
	return prefixed(cfBlocks, []byte(stateHash))
}

func blockByHeightKey(height uint64, stateHash string) []byte {
	return prefixed(cfBlocksByHeight, beUint64(height), []byte(stateHash))
}

func blockByHeightPrefix(height uint64) []byte {
	return prefixed(cfBlocksByHeight, beUint64(height))
}

func ledgerKey(hash string) []byte {
	return prefixed(cfLedgers, []byte(hash))
}

func diffKey(stateHash string) []byte {
	return prefixed(cfBlockLedgerDiff, []byte(stateHash))
}

func canonicityKey(height uint64) []byte {
	return prefixed(cfCanonicity, beUint64(height))
}

func canonicityMetaKey() []byte {
	return prefixed(cfCanonicityMeta, metaMaxCanonical)
}

func latestLedgerSnapKey() []byte {
	return prefixed(cfCanonicityMeta, metaLatestLedgerSnap)
}

func bestTipKey() []byte {
	return prefixed(cfCanonicityMeta, metaBestTip)
}

func eventKey(seq uint64) []byte {
	return prefixed(cfEvents, beUint64(seq))
}

func eventsMetaKey() []byte {
	return prefixed(cfEventsMeta, metaNextSeq)
}

func accountBalanceKey(balance uint64, publicKey string) []byte {
	return prefixed(cfAccountBalance, beUint64(balance), []byte(publicKey))
}

func accountBalancePrefix() []byte {
	return []byte{byte(cfAccountBalance)}
}

func usernameKey(publicKey string) []byte {
	return prefixed(cfUsername, []byte(publicKey))
}

func stakingLedgerKey(genesisHash string, epoch uint64, ledgerHash string) []byte {
	return prefixed(cfStakingLedger, []byte(genesisHash), beUint64(epoch), []byte(ledgerHash))
}

func stakingLedgerBalanceKey(epoch, amount uint64, publicKey string) []byte {
	return prefixed(cfStakingLedgerBalance, beUint64(epoch), beUint64(amount), []byte(publicKey))
}

func stakingLedgerStakeKey(epoch, amount uint64, publicKey string) []byte {
	return prefixed(cfStakingLedgerStake, beUint64(epoch), beUint64(amount), []byte(publicKey))
}
