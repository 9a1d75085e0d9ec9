package ladder

import (
	"math"
	"strconv"
)

const maxDecimals = 8

// FormatPrice renders a price with the given significant-figure count. The
// decimal places follow from the price's order of magnitude:
//
//	decimals = clamp(0, 8, sigFigs - floor(log10(|price|)) - 1)
//
// so 5 sig figs shows 43521 as "43521" and 0.043521 as "0.043521".
func FormatPrice(price float64, sigFigs int) string {
	if price == 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return "0"
	}
	magnitude := int(math.Floor(math.Log10(math.Abs(price))))
	decimals := sigFigs - magnitude - 1
	if decimals < 0 {
		decimals = 0
	}
	if decimals > maxDecimals {
		decimals = maxDecimals
	}
	return strconv.FormatFloat(price, 'f', decimals, 64)
}

// FormatSize renders a native-currency size with the same significant-figure
// scheme as prices.
func FormatSize(size float64, sigFigs int) string {
	return FormatPrice(size, sigFigs)
}

// FormatCompact renders quote-currency amounts with K/M/B suffixes at the
// usual thousand/million/billion thresholds, two decimal places.
func FormatCompact(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}
	abs := math.Abs(v)
	switch {
	case abs >= 1e9:
		return strconv.FormatFloat(v/1e9, 'f', 2, 64) + "B"
	case abs >= 1e6:
		return strconv.FormatFloat(v/1e6, 'f', 2, 64) + "M"
	case abs >= 1e3:
		return strconv.FormatFloat(v/1e3, 'f', 2, 64) + "K"
	default:
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
}
