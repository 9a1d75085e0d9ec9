package book

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depthview/internal/feed"
)

// fakeStream records subscription traffic and lets tests drive the engine's
// stream listeners directly.
type fakeStream struct {
	subs   []string
	unsubs []string

	openFns  []func()
	closeFns []func()
	snapFns  []func(feed.Snapshot)
}

func (f *fakeStream) Subscribe(coin string, sigFigs *int) {
	f.subs = append(f.subs, feed.Subscription{Coin: coin, SigFigs: sigFigs}.Key())
}

func (f *fakeStream) Unsubscribe(coin string, sigFigs *int) {
	f.unsubs = append(f.unsubs, feed.Subscription{Coin: coin, SigFigs: sigFigs}.Key())
}

func (f *fakeStream) OnSnapshot(fn func(feed.Snapshot)) func() {
	f.snapFns = append(f.snapFns, fn)
	return func() {}
}

func (f *fakeStream) OnOpen(fn func()) func() {
	f.openFns = append(f.openFns, fn)
	return func() {}
}

func (f *fakeStream) OnClose(fn func()) func() {
	f.closeFns = append(f.closeFns, fn)
	return func() {}
}

func (f *fakeStream) open() {
	for _, fn := range f.openFns {
		fn()
	}
}

func (f *fakeStream) drop() {
	for _, fn := range f.closeFns {
		fn()
	}
}

func (f *fakeStream) push(snap feed.Snapshot) {
	for _, fn := range f.snapFns {
		fn(snap)
	}
}

func (f *fakeStream) reset() {
	f.subs = nil
	f.unsubs = nil
}

func newTestEngine(t *testing.T) (*Engine, *fakeStream) {
	t.Helper()
	stream := &fakeStream{}
	engine := NewEngine(stream, Options{})
	engine.Start()
	return engine, stream
}

func snapshotFor(coin string) feed.Snapshot {
	return feed.Snapshot{
		Coin: coin,
		Bids: []feed.PriceLevel{{Price: 100, Size: 2}},
		Asks: []feed.PriceLevel{{Price: 101, Size: 3}},
	}
}

func TestStartSubscribesSpotAndPerp(t *testing.T) {
	_, stream := newTestEngine(t)
	assert.Equal(t, []string{"BTC@3", "BTC-PERP@3"}, stream.subs)
	assert.Empty(t, stream.unsubs)
}

func TestDefaults(t *testing.T) {
	engine, _ := newTestEngine(t)
	view := engine.GetSnapshot()
	assert.Equal(t, "BTC", view.Symbol)
	assert.Equal(t, 3, view.SigFigs)
	assert.Equal(t, Native, view.Currency)
	assert.True(t, view.Loading)
	assert.False(t, view.Connected)
}

func TestSetSymbolSwapsSubscriptions(t *testing.T) {
	engine, stream := newTestEngine(t)
	stream.push(snapshotFor("BTC"))
	stream.reset()

	engine.SetSymbol("ETH")

	assert.Equal(t, []string{"BTC@3", "BTC-PERP@3"}, stream.unsubs)
	assert.Equal(t, []string{"ETH@3", "ETH-PERP@3"}, stream.subs)

	view := engine.GetSnapshot()
	assert.Equal(t, "ETH", view.Symbol)
	assert.Empty(t, view.Bids, "levels from the old coin must not survive")
	assert.Empty(t, view.Asks)
	assert.True(t, view.Loading)
}

func TestSetSymbolSameValueIsNoop(t *testing.T) {
	engine, stream := newTestEngine(t)
	stream.reset()

	notified := 0
	engine.Subscribe(func() { notified++ })

	engine.SetSymbol("BTC")
	engine.SetSymbol("")

	assert.Empty(t, stream.subs)
	assert.Empty(t, stream.unsubs)
	assert.Zero(t, notified)
}

func TestSetSigFigsClampsAndSwaps(t *testing.T) {
	engine, stream := newTestEngine(t)
	stream.reset()

	engine.SetSigFigs(10)
	assert.Equal(t, 5, engine.GetSnapshot().SigFigs)
	assert.Equal(t, []string{"BTC@3", "BTC-PERP@3"}, stream.unsubs)
	assert.Equal(t, []string{"BTC@5", "BTC-PERP@5"}, stream.subs)

	stream.reset()
	engine.SetSigFigs(1)
	assert.Equal(t, 2, engine.GetSnapshot().SigFigs)

	// Clamping to the current value is a no-op.
	stream.reset()
	engine.SetSigFigs(0)
	assert.Equal(t, 2, engine.GetSnapshot().SigFigs)
	assert.Empty(t, stream.subs)
	assert.Empty(t, stream.unsubs)
}

func TestSetCurrencyIsPresentationOnly(t *testing.T) {
	engine, stream := newTestEngine(t)
	stream.push(snapshotFor("BTC"))
	stream.reset()

	notified := 0
	engine.Subscribe(func() { notified++ })

	engine.SetCurrency(Quote)

	view := engine.GetSnapshot()
	assert.Equal(t, Quote, view.Currency)
	assert.NotEmpty(t, view.Bids, "levels survive a currency toggle")
	assert.Empty(t, stream.subs)
	assert.Empty(t, stream.unsubs)
	assert.Equal(t, 1, notified)

	engine.SetCurrency(Currency("eur"))
	assert.Equal(t, Quote, engine.GetSnapshot().Currency)
	assert.Equal(t, 1, notified)
}

func TestApplySnapshotFiltersByCoin(t *testing.T) {
	engine, stream := newTestEngine(t)

	stream.push(snapshotFor("ETH"))
	assert.Zero(t, engine.GetSnapshot().Frames)

	stream.push(snapshotFor("BTC"))
	view := engine.GetSnapshot()
	assert.Equal(t, uint64(1), view.Frames)
	assert.False(t, view.Loading)
	assert.Equal(t, []feed.PriceLevel{{Price: 100, Size: 2}}, view.Bids)

	// Suffixed derivative variants of the current coin are accepted too.
	stream.push(snapshotFor("BTC-PERP"))
	assert.Equal(t, uint64(2), engine.GetSnapshot().Frames)

	// "BTCX" is a different coin, not a variant.
	stream.push(snapshotFor("BTCX"))
	assert.Equal(t, uint64(2), engine.GetSnapshot().Frames)
}

func TestPauseDropsFramesResumeRecovers(t *testing.T) {
	engine, stream := newTestEngine(t)
	stream.push(snapshotFor("BTC"))

	engine.Pause()
	stream.push(snapshotFor("BTC"))
	view := engine.GetSnapshot()
	assert.True(t, view.Paused)
	assert.Equal(t, uint64(1), view.Frames, "frames while paused are discarded")

	engine.Resume()
	stream.push(snapshotFor("BTC"))
	view = engine.GetSnapshot()
	assert.False(t, view.Paused)
	assert.Equal(t, uint64(2), view.Frames)
}

func TestDisconnectPreservesLevels(t *testing.T) {
	engine, stream := newTestEngine(t)
	stream.open()
	stream.push(snapshotFor("BTC"))

	stream.drop()

	view := engine.GetSnapshot()
	assert.False(t, view.Connected)
	assert.NotEmpty(t, view.Bids, "last-known levels stay visible while offline")
	assert.NotEmpty(t, view.Asks)
	assert.False(t, view.Loading)

	stream.open()
	assert.True(t, engine.GetSnapshot().Connected)
}

func TestObserverUnsubscribeDuringNotify(t *testing.T) {
	engine, stream := newTestEngine(t)

	var remove func()
	calls := 0
	remove = engine.Subscribe(func() {
		calls++
		remove()
	})
	other := 0
	engine.Subscribe(func() { other++ })

	stream.push(snapshotFor("BTC"))
	stream.push(snapshotFor("BTC"))

	assert.Equal(t, 1, calls, "removed observer must not fire again")
	assert.Equal(t, 2, other)
}

func TestGetSnapshotReturnsCopy(t *testing.T) {
	engine, stream := newTestEngine(t)
	stream.push(snapshotFor("BTC"))

	view := engine.GetSnapshot()
	view.Bids[0].Price = 1
	view.Symbol = "mutated"

	fresh := engine.GetSnapshot()
	assert.Equal(t, float64(100), fresh.Bids[0].Price)
	assert.Equal(t, "BTC", fresh.Symbol)
}

func TestLastUpdateUsesClock(t *testing.T) {
	stream := &fakeStream{}
	engine := NewEngine(stream, Options{})
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return fixed }
	engine.Start()

	stream.push(snapshotFor("BTC"))
	require.Equal(t, fixed, engine.GetSnapshot().LastUpdate)
}

func TestStopDetaches(t *testing.T) {
	engine, stream := newTestEngine(t)
	stream.reset()

	notified := 0
	engine.Subscribe(func() { notified++ })

	engine.Stop()
	assert.Equal(t, []string{"BTC@3", "BTC-PERP@3"}, stream.unsubs)

	stream.push(snapshotFor("BTC"))
	assert.Zero(t, notified, "no notifications after Stop")
}
