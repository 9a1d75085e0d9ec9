package hyperliquid

import (
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/sirupsen/logrus"

	"depthview/internal/feed"
	"depthview/internal/metrics"
)

type connState int

const (
	stateClosed connState = iota
	stateConnecting
	stateOpen
)

const handshakeTimeout = 10 * time.Second

// Conn is the subset of the websocket connection the client uses. Tests
// substitute an in-memory implementation.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a transport connection to the given URL.
type Dialer func(url string) (Conn, error)

func defaultDialer(url string) (Conn, error) {
	d := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := d.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Options configures a Client. Zero values select mainnet, the real
// websocket dialer and the default 1s..30s reconnect window.
type Options struct {
	Network      Network
	Dialer       Dialer
	Logger       *logrus.Logger
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Client maintains one websocket connection to the venue: subscription
// bookkeeping, an offline send queue flushed in FIFO order, and automatic
// reconnection. Messages that fail to decode or normalize are dropped
// per-message; they never terminate the connection.
//
// No application-level ping is sent. The venue closes connections on
// unexpected payloads, so the client leans on the transport's own keep-alive.
type Client struct {
	url  string
	dial Dialer
	norm *Normalizer
	log  *logrus.Entry

	mu          sync.Mutex
	conn        Conn
	state       connState
	manualClose bool
	retry       *backoff.Backoff
	reconnect   *time.Timer
	sendQueue   deque.Deque[[]byte]
	subs        []feed.Subscription

	nextID     int
	onSnapshot map[int]func(feed.Snapshot)
	onOpen     map[int]func()
	onClose    map[int]func()
}

// NewClient builds a client for the given normalizer. Connect must be called
// before any traffic flows; Subscribe may be called earlier and will queue.
func NewClient(norm *Normalizer, opts Options) *Client {
	if opts.Dialer == nil {
		opts.Dialer = defaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = time.Second
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 30 * time.Second
	}
	return &Client{
		url:  WsURL(opts.Network),
		dial: opts.Dialer,
		norm: norm,
		log:  opts.Logger.WithField("component", "hl-ws"),
		retry: &backoff.Backoff{
			Min:    opts.ReconnectMin,
			Max:    opts.ReconnectMax,
			Factor: 2,
			Jitter: true,
		},
		onSnapshot: make(map[int]func(feed.Snapshot)),
		onOpen:     make(map[int]func()),
		onClose:    make(map[int]func()),
	}
}

// Connect starts the connection attempt. It is a no-op while a connection is
// already up or being established, and it clears the manually-closed flag so
// a client stopped with Disconnect can be resumed.
func (c *Client) Connect() {
	c.mu.Lock()
	c.manualClose = false
	if c.state != stateClosed {
		c.mu.Unlock()
		return
	}
	c.stopReconnectLocked()
	c.state = stateConnecting
	c.mu.Unlock()

	c.log.WithField("url", c.url).Info("connecting")
	go c.run()
}

// Disconnect tears the connection down and suppresses reconnection until the
// next Connect call. Any pending reconnect timer is cancelled.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.manualClose = true
	c.stopReconnectLocked()
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		// The read loop observes the close error and finishes the shutdown.
		conn.Close()
	}
}

// IsConnected reports whether the transport is currently open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateOpen
}

// Subscribe adds (coin, sigFigs) to the active set and issues a subscribe
// request. The active set is deduplicated; it is exactly what gets re-issued
// after every reconnect.
func (c *Client) Subscribe(coin string, sigFigs *int) {
	sub := feed.Subscription{Coin: coin, SigFigs: sigFigs}

	c.mu.Lock()
	if !c.hasSubLocked(sub) {
		c.subs = append(c.subs, sub)
		metrics.ActiveSubscriptionsGauge.Set(float64(len(c.subs)))
	}
	c.sendLocked(subscribeMsg(coin, sigFigs))
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"coin": coin, "sub": sub.Key()}).Info("subscribe")
}

// Unsubscribe removes the matching entry and issues an unsubscribe request.
// Unsubscribing a pair that was never subscribed is not an error.
func (c *Client) Unsubscribe(coin string, sigFigs *int) {
	sub := feed.Subscription{Coin: coin, SigFigs: sigFigs}

	c.mu.Lock()
	for i, s := range c.subs {
		if s.Key() == sub.Key() {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	metrics.ActiveSubscriptionsGauge.Set(float64(len(c.subs)))
	c.sendLocked(unsubscribeMsg(coin, sigFigs))
	c.mu.Unlock()

	c.log.WithField("sub", sub.Key()).Info("unsubscribe")
}

// ActiveSubscriptions returns a copy of the active subscription set.
func (c *Client) ActiveSubscriptions() []feed.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]feed.Subscription, len(c.subs))
	copy(out, c.subs)
	return out
}

// OnSnapshot registers a listener for normalized depth frames.
func (c *Client) OnSnapshot(fn func(feed.Snapshot)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.onSnapshot[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.onSnapshot, id)
	}
}

// OnOpen registers a lifecycle listener fired on every transport open.
func (c *Client) OnOpen(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.onOpen[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.onOpen, id)
	}
}

// OnClose registers a lifecycle listener fired on every transport close.
func (c *Client) OnClose(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.onClose[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.onClose, id)
	}
}

func (c *Client) hasSubLocked(sub feed.Subscription) bool {
	for _, s := range c.subs {
		if s.Key() == sub.Key() {
			return true
		}
	}
	return false
}

// sendLocked writes the message if the transport is open, otherwise appends
// it to the FIFO queue flushed verbatim on the next open.
func (c *Client) sendLocked(msg []byte) {
	if c.state == stateOpen && c.conn != nil {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.log.WithError(err).Warn("write failed, queueing message")
			c.sendQueue.PushBack(msg)
		}
		return
	}
	c.sendQueue.PushBack(msg)
}

// run performs one dial attempt and, on success, services the connection
// until it drops.
func (c *Client) run() {
	conn, err := c.dial(c.url)

	c.mu.Lock()
	if c.manualClose {
		c.state = stateClosed
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.state = stateClosed
		c.mu.Unlock()
		c.log.WithError(err).Warn("dial failed")
		c.scheduleReconnect()
		return
	}

	c.conn = conn
	c.state = stateOpen
	c.retry.Reset()

	// Flush messages queued while disconnected, in submission order, then
	// re-issue every active subscription. Resubscription is the sole
	// recovery mechanism: the next frame re-establishes full state.
	for c.sendQueue.Len() > 0 {
		msg := c.sendQueue.PopFront()
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.log.WithError(err).Warn("flush failed")
			c.sendQueue.PushFront(msg)
			break
		}
	}
	for _, sub := range c.subs {
		if err := conn.WriteMessage(websocket.TextMessage, subscribeMsg(sub.Coin, sub.SigFigs)); err != nil {
			c.log.WithError(err).WithField("sub", sub.Key()).Warn("resubscribe failed")
		}
	}
	openFns := copyFns(c.onOpen)
	c.mu.Unlock()

	metrics.ConnectedGauge.Set(1)
	c.log.Info("open")
	for _, fn := range openFns {
		fn()
	}

	c.readLoop(conn)
}

func (c *Client) readLoop(conn Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.log.WithError(err).Warn("connection closed")
			break
		}

		snap, ok := c.norm.Normalize(raw)
		if !ok {
			// Malformed or irrelevant; per-message, never fatal.
			metrics.DroppedFramesTotal.Inc()
			continue
		}

		c.mu.Lock()
		fns := copyFns(c.onSnapshot)
		c.mu.Unlock()
		for _, fn := range fns {
			fn(snap)
		}
	}

	conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.state = stateClosed
	manual := c.manualClose
	closeFns := copyFns(c.onClose)
	c.mu.Unlock()

	metrics.ConnectedGauge.Set(0)
	for _, fn := range closeFns {
		fn()
	}

	if !manual {
		c.scheduleReconnect()
	}
}

// scheduleReconnect arms at most one timer; repeated close events while a
// timer is pending do not stack attempts.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.manualClose || c.reconnect != nil || c.state != stateClosed {
		return
	}

	delay := c.retry.Duration()
	c.log.WithField("delay", delay).Info("reconnecting")
	c.reconnect = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.reconnect = nil
		if c.manualClose || c.state != stateClosed {
			c.mu.Unlock()
			return
		}
		c.state = stateConnecting
		c.mu.Unlock()

		metrics.ReconnectsTotal.Inc()
		c.run()
	})
}

func (c *Client) stopReconnectLocked() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}

func copyFns[T any](m map[int]T) []T {
	out := make([]T, 0, len(m))
	for _, fn := range m {
		out = append(out, fn)
	}
	return out
}
