package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"depthview/internal/feed"
)

// InfoClient fetches one-shot l2Book snapshots from the venue's REST info
// endpoint. Used to prime the view before the first websocket frame arrives;
// a failure here is non-fatal.
type InfoClient struct {
	url  string
	norm *Normalizer
	http *http.Client
}

func NewInfoClient(network Network, norm *Normalizer) *InfoClient {
	return &InfoClient{
		url:  InfoURL(network),
		norm: norm,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// L2Book requests a depth snapshot for the coin. The response goes through
// the same normalizer as websocket frames.
func (c *InfoClient) L2Book(ctx context.Context, coin string, sigFigs *int) (feed.Snapshot, error) {
	body := map[string]any{"type": subscriptionType, "coin": coin}
	if sigFigs != nil {
		body["nSigFigs"] = *sigFigs
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return feed.Snapshot{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return feed.Snapshot{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return feed.Snapshot{}, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return feed.Snapshot{}, fmt.Errorf("snapshot request: status %d", resp.StatusCode)
	}

	var decoded any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return feed.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}

	snap, ok := c.norm.normalizeValue(decoded)
	if !ok {
		return feed.Snapshot{}, fmt.Errorf("snapshot for %s: unrecognized shape", coin)
	}
	return snap, nil
}
