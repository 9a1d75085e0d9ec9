package ladder

import (
	"sort"

	"github.com/shopspring/decimal"

	"depthview/internal/book"
	"depthview/internal/feed"
)

// Side marks which half of the book a row belongs to.
type Side string

const (
	Bid Side = "bid"
	Ask Side = "ask"
)

// Row is one display-ready ladder level.
type Row struct {
	Side         Side
	Price        float64
	Size         float64
	Cumulative   float64
	DisplayPrice string
	DisplaySize  string
	DisplayTotal string
}

// Book is the projected ladder. Asks are ordered far-to-near so a top-down
// listing puts the best ask adjacent to the spread line; bids are ordered
// near-to-far. MaxCumulative values are the depth-bar denominators, never
// below 1.
type Book struct {
	Asks             []Row
	Bids             []Row
	MaxAskCumulative float64
	MaxBidCumulative float64
	HasSpread        bool
	Spread           float64
	SpreadPct        float64
}

// Project derives the display ladder from a view. Pure: no state survives
// between calls, and the input view is not modified.
//
// The ladder is deliberately symmetric: both sides are truncated to the
// smaller side's count (capped at levelCount) so the spread rendering stays
// visually balanced even for lopsided books.
func Project(view book.View, levelCount int) Book {
	asks := sortedCopy(view.Asks, false)
	bids := sortedCopy(view.Bids, true)

	depth := levelCount
	if len(asks) < depth {
		depth = len(asks)
	}
	if len(bids) < depth {
		depth = len(bids)
	}
	if depth < 0 {
		depth = 0
	}
	asks = asks[:depth]
	bids = bids[:depth]

	out := Book{
		Asks: buildRows(asks, Ask, view),
		Bids: buildRows(bids, Bid, view),
	}
	out.MaxAskCumulative = maxCumulative(out.Asks)
	out.MaxBidCumulative = maxCumulative(out.Bids)

	// Cumulative sizes were accumulated walking outward from the best
	// price; asks then flip so the nearest level sits last, next to the
	// spread row.
	reverseRows(out.Asks)

	if len(asks) > 0 && len(bids) > 0 {
		bestAsk := asks[0].Price
		bestBid := bids[0].Price
		out.HasSpread = true
		out.Spread = bestAsk - bestBid
		if mid := (bestAsk + bestBid) / 2; mid != 0 {
			out.SpreadPct = out.Spread / mid * 100
		}
	}
	return out
}

// sortedCopy orders asks ascending and bids descending by price. Input order
// from the venue is not guaranteed and must not be relied upon.
func sortedCopy(levels []feed.PriceLevel, descending bool) []feed.PriceLevel {
	out := append([]feed.PriceLevel(nil), levels...)
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	return out
}

// buildRows walks the side outward from the best price, accumulating depth
// with decimal arithmetic so long ladders do not drift.
func buildRows(levels []feed.PriceLevel, side Side, view book.View) []Row {
	rows := make([]Row, 0, len(levels))
	cum := decimal.Zero
	for _, lvl := range levels {
		cum = cum.Add(decimal.NewFromFloat(lvl.Size))
		cumF, _ := cum.Float64()
		rows = append(rows, Row{
			Side:         side,
			Price:        lvl.Price,
			Size:         lvl.Size,
			Cumulative:   cumF,
			DisplayPrice: FormatPrice(lvl.Price, view.SigFigs),
			DisplaySize:  formatAmount(lvl.Size, lvl.Price, view),
			DisplayTotal: formatAmount(cumF, lvl.Price, view),
		})
	}
	return rows
}

func formatAmount(size, price float64, view book.View) string {
	if view.Currency == book.Quote {
		return FormatCompact(size * price)
	}
	return FormatSize(size, view.SigFigs)
}

func maxCumulative(rows []Row) float64 {
	max := 1.0
	for _, r := range rows {
		if r.Cumulative > max {
			max = r.Cumulative
		}
	}
	return max
}

func reverseRows(rows []Row) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}
