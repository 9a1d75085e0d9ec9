package ladder

import (
	"sort"

	"github.com/shopspring/decimal"

	"depthview/internal/feed"
)

// GroupByTick merges levels into price buckets of the given tick size. Bids
// round down and asks round up, so grouping can never make the book look
// crossed. A zero or negative tick returns the input unchanged.
func GroupByTick(levels []feed.PriceLevel, tick float64, side Side) []feed.PriceLevel {
	if tick <= 0 || len(levels) == 0 {
		return levels
	}

	tickSize := decimal.NewFromFloat(tick)
	buckets := make(map[string]feed.PriceLevel, len(levels))

	for _, lvl := range levels {
		price := roundToTick(decimal.NewFromFloat(lvl.Price), tickSize, side)
		if !price.IsPositive() {
			// A bid below the tick floors to zero; there is no valid bucket.
			continue
		}
		key := price.String()
		bucket, ok := buckets[key]
		if !ok {
			p, _ := price.Float64()
			bucket = feed.PriceLevel{Price: p}
		}
		bucket.Size += lvl.Size
		buckets[key] = bucket
	}

	out := make([]feed.PriceLevel, 0, len(buckets))
	for _, lvl := range buckets {
		out = append(out, lvl)
	}
	sort.Slice(out, func(i, j int) bool {
		if side == Bid {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	return out
}

func roundToTick(price, tick decimal.Decimal, side Side) decimal.Decimal {
	steps := price.Div(tick)
	if side == Bid {
		return steps.Floor().Mul(tick)
	}
	return steps.Ceil().Mul(tick)
}
