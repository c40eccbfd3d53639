package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// EtherDecimals is the number of decimal places between wei and ether.
const EtherDecimals = 18

// WeiToEther converts a wei amount into an exact ether decimal.
func WeiToEther(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -EtherDecimals)
}

// EtherToWei converts an ether decimal into wei. Digits beyond 18 places are
// truncated; callers validate with ValidAmount first.
func EtherToWei(eth decimal.Decimal) *big.Int {
	return eth.Shift(EtherDecimals).BigInt()
}

// ValidAmount reports whether amount is strictly positive and representable in
// wei without loss.
func ValidAmount(amount decimal.Decimal) bool {
	if !amount.IsPositive() {
		return false
	}
	return amount.Equal(amount.Truncate(EtherDecimals))
}
