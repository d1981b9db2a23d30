package l1

import (
	"fmt"

	"github.com/btcsuite/btcutil/base58"
)

// FormatDepositLog renders a deposit in the exact "ZE_DEPOSIT:<pubkey>:
// <amount>:<nonce>" wire format internal/deposit.ParseLogLine consumes
// — the mock bridge's emission side of the same contract the indexer
// parses.
func FormatDepositLog(pubkey []byte, amount, nonce uint64) string {
	return fmt.Sprintf("ZE_DEPOSIT:%s:%d:%d", base58.Encode(pubkey), amount, nonce)
}
