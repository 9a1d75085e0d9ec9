package feed

import "fmt"

// PriceLevel represents a single price level in canonical form.
// Price and Size are finite and non-negative; Price is strictly positive.
type PriceLevel struct {
	Price float64
	Size  float64
}

// Snapshot is one normalized depth frame from the venue. Bids and asks are
// kept in the order the venue delivered them; sorting is a display concern.
type Snapshot struct {
	Coin string
	Bids []PriceLevel
	Asks []PriceLevel
	// SigFigs carries the venue's precision hint when the frame included one.
	// nil means the frame had no hint, which is distinct from a hint of zero.
	SigFigs *int
}

// Subscription identifies one active l2Book stream: a coin plus an optional
// significant-figures request. Two subscriptions with the same coin but
// different precision are distinct streams on the wire.
type Subscription struct {
	Coin    string
	SigFigs *int
}

// Key returns the identity used for deduplication and matching.
func (s Subscription) Key() string {
	if s.SigFigs == nil {
		return s.Coin
	}
	return fmt.Sprintf("%s@%d", s.Coin, *s.SigFigs)
}
