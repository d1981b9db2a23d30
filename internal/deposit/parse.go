// Package deposit indexes L1 bridge deposit events and routes them
// into the pipeline exactly once each. It watches a log source for
// "ZE_DEPOSIT:<pubkey>:<amount>:<nonce>" lines, emitted by the bridge
// program, and dedups on the embedded L1 sequence number.
package deposit

import (
	"strconv"
	"strings"

	"github.com/btcsuite/btcutil/base58"

	"github.com/zelana-labs/sequencer/pkg/types"
)

const logPrefix = "ZE_DEPOSIT:"

// ParseLogLine extracts a DepositEvent from a raw program log line. It
// returns false if the line doesn't carry the deposit prefix or is
// malformed.
func ParseLogLine(line string) (types.DepositEvent, bool) {
	payload, ok := strings.CutPrefix(line, logPrefix)
	if !ok {
		return types.DepositEvent{}, false
	}
	return parsePayload(payload)
}

func parsePayload(payload string) (types.DepositEvent, bool) {
	parts := strings.Split(payload, ":")
	if len(parts) != 3 {
		return types.DepositEvent{}, false
	}

	pubkey, ok := parsePubkey(parts[0])
	if !ok {
		return types.DepositEvent{}, false
	}

	amount, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return types.DepositEvent{}, false
	}

	nonce, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return types.DepositEvent{}, false
	}

	return types.DepositEvent{
		To:     types.AccountIdFromBytes(pubkey),
		Amount: amount,
		L1Seq:  nonce,
	}, true
}

// parsePubkey accepts either a base58-encoded pubkey or a bracketed
// byte-array literal ("[1, 2, 3, ...]"), matching both formats the
// bridge program's logger has emitted historically.
func parsePubkey(s string) ([]byte, bool) {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "[") {
		return parseByteArray(s)
	}

	decoded := base58.Decode(s)
	if len(decoded) != 32 {
		return nil, false
	}
	return decoded, true
}

func parseByteArray(s string) ([]byte, bool) {
	s = strings.Trim(s, "[]")
	fields := strings.Split(s, ",")
	if len(fields) != 32 {
		return nil, false
	}

	out := make([]byte, 32)
	for i, f := range fields {
		v, err := strconv.ParseUint(strings.TrimSpace(f), 10, 8)
		if err != nil {
			return nil, false
		}
		out[i] = byte(v)
	}
	return out, true
}
