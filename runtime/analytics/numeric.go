package analytics

import (
	"math/big"
	"strconv"
)

// coerceDouble converts v into the double aggregation path. Accepted source
// kinds: double, float, decimal, int, long, and numeric strings. Unparseable
// values return ok=false so the caller skips the row rather than failing.
//
// math/big is used only as the decimal accumulator's exact-arithmetic engine
// (see coerceDecimal); no third-party decimal library appears anywhere in
// the example pack, so the standard library fills this one narrow gap.
func coerceDouble(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case *big.Rat:
		return ratToFloat64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// coerceDecimal converts v into the decimal aggregation path. Accepted
// source kinds: decimal, int, long, float, double, and numeric strings.
func coerceDecimal(v any) (*big.Rat, bool) {
	switch n := v.(type) {
	case *big.Rat:
		return new(big.Rat).Set(n), true
	case float64:
		r := new(big.Rat)
		if r.SetFloat64(n) == nil {
			return nil, false
		}
		return r, true
	case float32:
		r := new(big.Rat)
		if r.SetFloat64(float64(n)) == nil {
			return nil, false
		}
		return r, true
	case int:
		return new(big.Rat).SetInt64(int64(n)), true
	case int32:
		return new(big.Rat).SetInt64(int64(n)), true
	case int64:
		return new(big.Rat).SetInt64(n), true
	case string:
		r := new(big.Rat)
		if _, ok := r.SetString(n); !ok {
			return nil, false
		}
		return r, true
	default:
		return nil, false
	}
}

// ratToFloat64 backs coerceDouble's *big.Rat case: a decimal-typed column
// value read through the double aggregation path.
func ratToFloat64(r *big.Rat) float64 {
	f, _ := r.Float64()
	return f
}
