package book

import (
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"depthview/internal/feed"
	"depthview/internal/metrics"
)

// Currency selects how sizes and totals are displayed.
type Currency string

const (
	// Native displays sizes in the traded coin.
	Native Currency = "native"
	// Quote displays sizes converted to the quote (USD) side.
	Quote Currency = "quote"
)

// Supported significant-figure range for the venue's l2Book precision.
const (
	MinSigFigs = 2
	MaxSigFigs = 5
)

const perpSuffix = "-PERP"

// View is the engine's current state. Callers receive copies; only the
// engine mutates it.
type View struct {
	Symbol     string
	SigFigs    int
	Currency   Currency
	Bids       []feed.PriceLevel
	Asks       []feed.PriceLevel
	Connected  bool
	Paused     bool
	Loading    bool
	Frames     uint64
	LastUpdate time.Time
}

// Options configures engine defaults.
type Options struct {
	Symbol   string
	SigFigs  int
	Currency Currency
	Logger   *logrus.Logger
}

// Engine owns the single current view derived from the latest accepted
// snapshot. All mutations are synchronous and total: invalid input is clamped
// or ignored, never surfaced as an error. Observers are notified after every
// accepted mutation over a copied list, so an observer unsubscribing during
// notification cannot corrupt iteration.
//
// Policy notes: changing symbol or precision clears the levels and shows
// loading until the next frame; a transport drop keeps the last-known levels
// with Connected=false so stale data stays visible.
type Engine struct {
	stream feed.Stream
	log    *logrus.Entry

	mu        sync.Mutex
	view      View
	stopped   bool
	removers  []func()
	observers map[int]func()
	nextID    int

	now func() time.Time
}

// NewEngine builds an engine around the stream. Start must be called before
// frames flow.
func NewEngine(stream feed.Stream, opts Options) *Engine {
	if opts.Symbol == "" {
		opts.Symbol = "BTC"
	}
	if opts.SigFigs == 0 {
		opts.SigFigs = 3
	}
	if opts.Currency == "" {
		opts.Currency = Native
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Engine{
		stream: stream,
		log:    opts.Logger.WithField("component", "book"),
		view: View{
			Symbol:   opts.Symbol,
			SigFigs:  clampSigFigs(opts.SigFigs),
			Currency: opts.Currency,
			Loading:  true,
		},
		observers: make(map[int]func()),
		now:       time.Now,
	}
}

// Start wires the engine to the stream's listeners and issues the initial
// subscriptions.
func (e *Engine) Start() {
	e.mu.Lock()
	e.stopped = false
	symbol, sigFigs := e.view.Symbol, e.view.SigFigs
	e.mu.Unlock()

	e.removers = []func(){
		e.stream.OnOpen(e.onOpen),
		e.stream.OnClose(e.onClose),
		e.stream.OnSnapshot(e.ApplySnapshot),
	}
	e.subscribePair(symbol, sigFigs)
}

// Stop detaches from the stream and drops the subscriptions. The view keeps
// its last state; a later Start resumes from it.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopped = true
	symbol, sigFigs := e.view.Symbol, e.view.SigFigs
	e.mu.Unlock()

	for _, remove := range e.removers {
		remove()
	}
	e.removers = nil
	e.unsubscribePair(symbol, sigFigs)
}

// GetSnapshot returns a copy of the current view. Always succeeds.
func (e *Engine) GetSnapshot() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.copyViewLocked()
}

// Subscribe registers an observer called after every accepted mutation.
// Observers must be cheap and must not mutate the engine from the callback.
func (e *Engine) Subscribe(fn func()) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.observers[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.observers, id)
	}
}

// SetSymbol switches the view to a new coin. No-op when unchanged. The old
// subscriptions are dropped, the levels cleared, and the view marked loading
// until the first frame for the new coin lands.
func (e *Engine) SetSymbol(symbol string) {
	e.mu.Lock()
	if symbol == "" || symbol == e.view.Symbol {
		e.mu.Unlock()
		return
	}
	old := e.view.Symbol
	sigFigs := e.view.SigFigs
	e.view.Symbol = symbol
	e.view.Bids = nil
	e.view.Asks = nil
	e.view.Loading = true
	e.mu.Unlock()

	e.unsubscribePair(old, sigFigs)
	e.subscribePair(symbol, sigFigs)
	e.log.WithFields(logrus.Fields{"from": old, "to": symbol}).Info("symbol changed")
	e.notify()
}

// SetSigFigs changes the requested precision, clamped to the supported
// range. No-op when the clamped value matches the current one.
func (e *Engine) SetSigFigs(n int) {
	n = clampSigFigs(n)

	e.mu.Lock()
	if n == e.view.SigFigs {
		e.mu.Unlock()
		return
	}
	old := e.view.SigFigs
	symbol := e.view.Symbol
	e.view.SigFigs = n
	e.view.Bids = nil
	e.view.Asks = nil
	e.view.Loading = true
	e.mu.Unlock()

	e.unsubscribePair(symbol, old)
	e.subscribePair(symbol, n)
	e.log.WithFields(logrus.Fields{"from": old, "to": n}).Info("precision changed")
	e.notify()
}

// SetCurrency toggles the display currency. Purely presentational: no
// network effect, but observers are still notified.
func (e *Engine) SetCurrency(c Currency) {
	if c != Native && c != Quote {
		return
	}
	e.mu.Lock()
	if c == e.view.Currency {
		e.mu.Unlock()
		return
	}
	e.view.Currency = c
	e.mu.Unlock()
	e.notify()
}

// Pause suppresses inbound snapshot application. Control mutations still
// apply while paused.
func (e *Engine) Pause() {
	e.mu.Lock()
	if e.view.Paused {
		e.mu.Unlock()
		return
	}
	e.view.Paused = true
	e.mu.Unlock()
	e.notify()
}

// Resume re-enables snapshot application. Nothing is re-requested; the next
// frame refills the view.
func (e *Engine) Resume() {
	e.mu.Lock()
	if !e.view.Paused {
		e.mu.Unlock()
		return
	}
	e.view.Paused = false
	e.mu.Unlock()
	e.notify()
}

// ApplySnapshot merges a frame into the view if it belongs to the current
// coin or one of its suffixed derivative variants. Anything else is stale or
// irrelevant and dropped without error.
func (e *Engine) ApplySnapshot(snap feed.Snapshot) {
	e.mu.Lock()
	if e.view.Paused || !matchesSymbol(snap.Coin, e.view.Symbol) {
		e.mu.Unlock()
		metrics.DroppedFramesTotal.Inc()
		return
	}
	e.view.Bids = snap.Bids
	e.view.Asks = snap.Asks
	e.view.Frames++
	e.view.LastUpdate = e.now()
	e.view.Loading = false
	e.mu.Unlock()

	metrics.FramesTotal.Inc()
	e.notify()
}

func (e *Engine) onOpen() {
	e.mu.Lock()
	e.view.Connected = true
	e.mu.Unlock()
	e.notify()
}

// onClose flips the connected flag but keeps the last-known levels so the UI
// can show stale data next to a disconnected indicator.
func (e *Engine) onClose() {
	e.mu.Lock()
	e.view.Connected = false
	e.mu.Unlock()
	e.notify()
}

func (e *Engine) subscribePair(symbol string, sigFigs int) {
	n := sigFigs
	e.stream.Subscribe(symbol, &n)
	e.stream.Subscribe(symbol+perpSuffix, &n)
}

func (e *Engine) unsubscribePair(symbol string, sigFigs int) {
	n := sigFigs
	e.stream.Unsubscribe(symbol, &n)
	e.stream.Unsubscribe(symbol+perpSuffix, &n)
}

func (e *Engine) notify() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	fns := make([]func(), 0, len(e.observers))
	for _, fn := range e.observers {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (e *Engine) copyViewLocked() View {
	v := e.view
	v.Bids = append([]feed.PriceLevel(nil), e.view.Bids...)
	v.Asks = append([]feed.PriceLevel(nil), e.view.Asks...)
	return v
}

func matchesSymbol(coin, symbol string) bool {
	return coin == symbol || strings.HasPrefix(coin, symbol+"-")
}

func clampSigFigs(n int) int {
	if n < MinSigFigs {
		return MinSigFigs
	}
	if n > MaxSigFigs {
		return MaxSigFigs
	}
	return n
}
