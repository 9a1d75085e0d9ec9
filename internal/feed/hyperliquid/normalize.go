package hyperliquid

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"depthview/internal/feed"
)

// Normalizer turns decoded l2Book payloads into canonical snapshots. The
// venue has shipped several frame layouts over time; each one is handled by a
// matcher below, tried in a fixed precedence order:
//
//	a. data.levels is an object with bids/asks tuple arrays
//	b. bids/asks arrays sit directly on the data object
//	c. levels is a flat list of [price, size, side] triples
//	d. levels is a pair [bidObjects, askObjects] with named px/sz fields
//
// Frames that match no shape, or that name an unknown coin, are dropped.
type Normalizer struct {
	known map[string]struct{}
}

// NewNormalizer builds a normalizer that accepts the given base coins and
// their suffixed derivative variants (e.g. BTC-PERP for BTC).
func NewNormalizer(coins []string) *Normalizer {
	known := make(map[string]struct{}, len(coins))
	for _, c := range coins {
		known[c] = struct{}{}
	}
	return &Normalizer{known: known}
}

// Normalize parses raw as JSON and extracts a snapshot. The second return
// value is false when the payload is not a recognizable depth frame; such
// frames must be discarded silently by the caller.
func (n *Normalizer) Normalize(raw []byte) (feed.Snapshot, bool) {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return feed.Snapshot{}, false
	}
	return n.normalizeValue(payload)
}

func (n *Normalizer) normalizeValue(payload any) (feed.Snapshot, bool) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return feed.Snapshot{}, false
	}

	root, ok := depthRoot(obj)
	if !ok {
		return feed.Snapshot{}, false
	}

	coin, _ := root["coin"].(string)
	if !n.allowed(coin) {
		return feed.Snapshot{}, false
	}

	snap := feed.Snapshot{Coin: coin, SigFigs: optionalInt(root["nSigFigs"])}

	var entries int
	levels := root["levels"]
	switch {
	case isObject(levels): // shape a
		lv := levels.(map[string]any)
		var nb, na int
		snap.Bids, nb = tupleLevels(lv["bids"])
		snap.Asks, na = tupleLevels(lv["asks"])
		entries = nb + na
	case hasDirectSides(root): // shape b
		var nb, na int
		snap.Bids, nb = tupleLevels(root["bids"])
		snap.Asks, na = tupleLevels(root["asks"])
		entries = nb + na
	case isTaggedList(levels): // shape c
		snap.Bids, snap.Asks, entries = partitionTagged(levels.([]any))
	case isSidePair(levels): // shape d
		pair := levels.([]any)
		var nb, na int
		snap.Bids, nb = objectLevels(pair[0])
		snap.Asks, na = objectLevels(pair[1])
		entries = nb + na
	default:
		return feed.Snapshot{}, false
	}

	// A frame whose every level failed coercion carries no information. A
	// frame with no entries at all is a valid empty book and clears the view.
	if entries > 0 && len(snap.Bids)+len(snap.Asks) == 0 {
		return feed.Snapshot{}, false
	}
	return snap, true
}

// depthRoot locates the object holding coin/levels. Frames wrapped in a
// channel envelope put it under "data"; the channel name, when present, has
// to reference l2book.
func depthRoot(obj map[string]any) (map[string]any, bool) {
	channel := channelName(obj)
	if channel != "" && !strings.Contains(strings.ToLower(channel), "l2book") {
		return nil, false
	}
	if channel != "" || obj["data"] != nil {
		if data, ok := obj["data"].(map[string]any); ok {
			return data, true
		}
	}
	return obj, true
}

func channelName(obj map[string]any) string {
	if s, ok := obj["channel"].(string); ok {
		return s
	}
	if s, ok := obj["type"].(string); ok {
		return s
	}
	return ""
}

func (n *Normalizer) allowed(coin string) bool {
	if coin == "" {
		return false
	}
	if _, ok := n.known[coin]; ok {
		return true
	}
	// Derivative variants keep the base coin before the first dash.
	if i := strings.IndexByte(coin, '-'); i > 0 {
		_, ok := n.known[coin[:i]]
		return ok
	}
	return false
}

func isObject(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

func hasDirectSides(root map[string]any) bool {
	_, bids := root["bids"].([]any)
	_, asks := root["asks"].([]any)
	return bids || asks
}

// isTaggedList reports whether levels is a flat list of [price, size, side]
// triples, distinguished from the side-pair shape by its scalar entries.
func isTaggedList(v any) bool {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return false
	}
	entry, ok := list[0].([]any)
	if !ok || len(entry) == 0 {
		return false
	}
	switch entry[0].(type) {
	case map[string]any, []any:
		return false
	}
	return true
}

func isSidePair(v any) bool {
	list, ok := v.([]any)
	if !ok || len(list) < 2 {
		return false
	}
	_, bids := list[0].([]any)
	_, asks := list[1].([]any)
	return bids && asks
}

// tupleLevels converts [[price, size], ...] entries, dropping any entry whose
// numerics do not parse. A bad level never discards the whole frame. The
// second return value is the raw entry count, so the caller can tell an empty
// side from one whose entries all failed.
func tupleLevels(v any) ([]feed.PriceLevel, int) {
	list, ok := v.([]any)
	if !ok {
		return nil, 0
	}
	out := make([]feed.PriceLevel, 0, len(list))
	for _, raw := range list {
		entry, ok := raw.([]any)
		if !ok || len(entry) < 2 {
			continue
		}
		if lvl, ok := makeLevel(entry[0], entry[1]); ok {
			out = append(out, lvl)
		}
	}
	return out, len(list)
}

// partitionTagged splits [price, size, side] triples into bids and asks.
// The side tag is "bid"/"ask" or the numeric 0/1.
func partitionTagged(list []any) (bids, asks []feed.PriceLevel, entries int) {
	for _, raw := range list {
		entry, ok := raw.([]any)
		if !ok || len(entry) < 3 {
			continue
		}
		lvl, ok := makeLevel(entry[0], entry[1])
		if !ok {
			continue
		}
		switch side := entry[2].(type) {
		case string:
			if side == "bid" {
				bids = append(bids, lvl)
			} else if side == "ask" {
				asks = append(asks, lvl)
			}
		case float64:
			if side == 0 {
				bids = append(bids, lvl)
			} else if side == 1 {
				asks = append(asks, lvl)
			}
		}
	}
	return bids, asks, len(list)
}

// objectLevels converts [{px, sz}, ...] entries. The venue's own field names
// are px/sz; price/size aliases have been observed and are accepted.
func objectLevels(v any) ([]feed.PriceLevel, int) {
	list, ok := v.([]any)
	if !ok {
		return nil, 0
	}
	out := make([]feed.PriceLevel, 0, len(list))
	for _, raw := range list {
		obj, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		px, hasPx := obj["px"]
		if !hasPx {
			px = obj["price"]
		}
		sz, hasSz := obj["sz"]
		if !hasSz {
			sz = obj["size"]
		}
		if lvl, ok := makeLevel(px, sz); ok {
			out = append(out, lvl)
		}
	}
	return out, len(list)
}

func makeLevel(px, sz any) (feed.PriceLevel, bool) {
	price, ok := toNumber(px)
	if !ok || price <= 0 {
		return feed.PriceLevel{}, false
	}
	size, ok := toNumber(sz)
	if !ok || size < 0 {
		return feed.PriceLevel{}, false
	}
	return feed.PriceLevel{Price: price, Size: size}, true
}

// toNumber accepts JSON numbers and numeric strings, rejecting anything
// non-finite.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func optionalInt(v any) *int {
	f, ok := toNumber(v)
	if !ok {
		return nil
	}
	i := int(f)
	return &i
}
