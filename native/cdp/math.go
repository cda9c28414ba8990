package cdp

import "math/big"

var hundred = big.NewInt(100)

// meetsRatio reports whether collateral valued at price satisfies the given
// percentage ratio against debt, using the non-strict comparison
// collateral*price*100 >= debt*ratio. A zero debt always satisfies any ratio.
func meetsRatio(collateral, price, debt *big.Int, ratio uint64) bool {
	if debt == nil || debt.Sign() == 0 {
		return true
	}
	if collateral == nil || price == nil {
		return false
	}
	lhs := new(big.Int).Mul(collateral, price)
	lhs.Mul(lhs, hundred)
	rhs := new(big.Int).Mul(debt, new(big.Int).SetUint64(ratio))
	return lhs.Cmp(rhs) >= 0
}

// belowRatio reports whether the valuation falls strictly below the ratio:
// collateral*price*100 < debt*ratio. A vault exactly at the threshold is not
// below it.
func belowRatio(collateral, price, debt *big.Int, ratio uint64) bool {
	if debt == nil || debt.Sign() == 0 {
		return false
	}
	if collateral == nil || price == nil {
		return true
	}
	lhs := new(big.Int).Mul(collateral, price)
	lhs.Mul(lhs, hundred)
	rhs := new(big.Int).Mul(debt, new(big.Int).SetUint64(ratio))
	return lhs.Cmp(rhs) < 0
}

// collateralRatio computes collateral*price/debt in percentage points with
// integer division, truncating fractional points. Zero debt yields zero, the
// convention for an infinite ratio.
func collateralRatio(collateral, price, debt *big.Int) *big.Int {
	if debt == nil || debt.Sign() == 0 {
		return big.NewInt(0)
	}
	if collateral == nil || price == nil {
		return big.NewInt(0)
	}
	value := new(big.Int).Mul(collateral, price)
	return value.Quo(value, debt)
}
