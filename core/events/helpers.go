package events

import (
	"math/big"
	"strconv"

	"stakingrewards/crypto"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func setAddress(attrs map[string]string, key string, addr crypto.Address) {
	if addr.IsZero() {
		return
	}
	attrs[key] = addr.String()
}
