package server

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"depthview/internal/book"
	"depthview/internal/config"
	"depthview/internal/ladder"
	"depthview/internal/metrics"
)

// ClientMessage represents commands sent by a UI client.
type ClientMessage struct {
	Type     string  `json:"type"`
	Symbol   string  `json:"symbol,omitempty"`
	SigFigs  int     `json:"sigFigs,omitempty"`
	Currency string  `json:"currency,omitempty"`
	Tick     float64 `json:"tick,omitempty"`
}

// RowMessage is one ladder level on the wire.
type RowMessage struct {
	Price        float64 `json:"price"`
	Size         float64 `json:"size"`
	Cumulative   float64 `json:"cumulative"`
	DisplayPrice string  `json:"displayPrice"`
	DisplaySize  string  `json:"displaySize"`
	DisplayTotal string  `json:"displayTotal"`
}

// LadderMessage is the projected book pushed to UI clients.
type LadderMessage struct {
	Type             string       `json:"type"`
	Symbol           string       `json:"symbol"`
	SigFigs          int          `json:"sigFigs"`
	Currency         string       `json:"currency"`
	Connected        bool         `json:"connected"`
	Paused           bool         `json:"paused"`
	Loading          bool         `json:"loading"`
	Frames           uint64       `json:"frames"`
	LastUpdateMs     int64        `json:"lastUpdateMs,omitempty"`
	Asks             []RowMessage `json:"asks"`
	Bids             []RowMessage `json:"bids"`
	MaxAskCumulative float64      `json:"maxAskCumulative"`
	MaxBidCumulative float64      `json:"maxBidCumulative"`
	HasSpread        bool         `json:"hasSpread"`
	Spread           float64      `json:"spread"`
	SpreadPct        float64      `json:"spreadPct"`
}

// client wraps one UI connection with its write lock. The transport allows a
// single concurrent writer, and the initial-state push can overlap a broadcast.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(msg LadderMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

// Server pushes the projected ladder to connected UI clients and translates
// their commands into engine mutations. It only reads the engine through
// GetSnapshot and the documented control operations.
type Server struct {
	engine      *book.Engine
	cfg         config.ServerConfig
	levels      int
	knownSymbol func(string) bool
	log         *logrus.Entry
	upgrader    websocket.Upgrader

	clientsMux sync.RWMutex
	clients    map[*websocket.Conn]*client

	dirty       atomic.Bool
	tickBits    atomic.Uint64
	httpSrv     *http.Server
	unsubscribe func()
	done        chan struct{}
	closeOnce   sync.Once
}

func New(engine *book.Engine, cfg config.Config, log *logrus.Logger) *Server {
	return &Server{
		engine:      engine,
		cfg:         cfg.Server,
		levels:      cfg.Ladder.Levels,
		knownSymbol: cfg.KnownSymbol,
		log:         log.WithField("component", "ui-server"),
		clients:     make(map[*websocket.Conn]*client),
		done:        make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start runs the HTTP listener. Blocks until Shutdown or a listener error.
func (s *Server) Start() error {
	s.unsubscribe = s.engine.Subscribe(func() { s.dirty.Store(true) })

	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWebSocket)
	r.Handle("/metrics", metrics.Handler())
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.httpSrv = &http.Server{Addr: s.cfg.Listen, Handler: r}

	go s.pushLoop()

	s.log.WithField("listen", s.cfg.Listen).Info("ui server starting")
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the push loop and closes the listener. Safe to call more
// than once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.done) })
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.httpSrv != nil {
		return s.httpSrv.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("upgrade failed")
		return
	}

	cl := &client{conn: conn}
	s.clientsMux.Lock()
	s.clients[conn] = cl
	s.clientsMux.Unlock()
	s.log.WithField("remote", r.RemoteAddr).Info("ui client connected")

	// New clients get the current state immediately.
	if err := cl.send(s.buildLadderMessage()); err != nil {
		s.log.WithError(err).Warn("initial push failed")
	}

	defer func() {
		s.clientsMux.Lock()
		delete(s.clients, conn)
		s.clientsMux.Unlock()
		conn.Close()
		s.log.Info("ui client disconnected")
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.log.WithError(err).Warn("bad client message")
			continue
		}
		s.handleClientMessage(msg)
	}
}

func (s *Server) handleClientMessage(msg ClientMessage) {
	switch msg.Type {
	case "set_symbol":
		if s.knownSymbol(msg.Symbol) {
			s.engine.SetSymbol(msg.Symbol)
		} else {
			s.log.WithField("symbol", msg.Symbol).Warn("unknown symbol requested")
		}
	case "set_precision":
		s.engine.SetSigFigs(msg.SigFigs)
	case "set_currency":
		s.engine.SetCurrency(book.Currency(msg.Currency))
	case "pause":
		s.engine.Pause()
	case "resume":
		s.engine.Resume()
	case "set_grouping":
		// Zero disables grouping; negative ticks are nonsense.
		if msg.Tick >= 0 {
			s.tickBits.Store(math.Float64bits(msg.Tick))
			s.dirty.Store(true)
		}
	default:
		s.log.WithField("type", msg.Type).Warn("unknown message type")
	}
}

// pushLoop broadcasts the projection on a short ticker whenever the view
// changed since the last push. Projection happens here, per push, never
// cached across parameter changes.
func (s *Server) pushLoop() {
	interval := s.cfg.PushInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		if !s.dirty.Swap(false) {
			continue
		}
		s.clientsMux.RLock()
		hasClients := len(s.clients) > 0
		s.clientsMux.RUnlock()
		if !hasClients {
			continue
		}

		s.broadcast(s.buildLadderMessage())
	}
}

func (s *Server) buildLadderMessage() LadderMessage {
	view := s.engine.GetSnapshot()
	if tick := math.Float64frombits(s.tickBits.Load()); tick > 0 {
		view.Bids = ladder.GroupByTick(view.Bids, tick, ladder.Bid)
		view.Asks = ladder.GroupByTick(view.Asks, tick, ladder.Ask)
	}
	projected := ladder.Project(view, s.levels)

	msg := LadderMessage{
		Type:             "ladder",
		Symbol:           view.Symbol,
		SigFigs:          view.SigFigs,
		Currency:         string(view.Currency),
		Connected:        view.Connected,
		Paused:           view.Paused,
		Loading:          view.Loading,
		Frames:           view.Frames,
		Asks:             rowMessages(projected.Asks),
		Bids:             rowMessages(projected.Bids),
		MaxAskCumulative: projected.MaxAskCumulative,
		MaxBidCumulative: projected.MaxBidCumulative,
		HasSpread:        projected.HasSpread,
		Spread:           projected.Spread,
		SpreadPct:        projected.SpreadPct,
	}
	if !view.LastUpdate.IsZero() {
		msg.LastUpdateMs = view.LastUpdate.UnixMilli()
	}
	return msg
}

func rowMessages(rows []ladder.Row) []RowMessage {
	out := make([]RowMessage, len(rows))
	for i, r := range rows {
		out[i] = RowMessage{
			Price:        r.Price,
			Size:         r.Size,
			Cumulative:   r.Cumulative,
			DisplayPrice: r.DisplayPrice,
			DisplaySize:  r.DisplaySize,
			DisplayTotal: r.DisplayTotal,
		}
	}
	return out
}

func (s *Server) broadcast(msg LadderMessage) {
	s.clientsMux.RLock()
	clients := make([]*client, 0, len(s.clients))
	for _, cl := range s.clients {
		clients = append(clients, cl)
	}
	s.clientsMux.RUnlock()

	for _, cl := range clients {
		if err := cl.send(msg); err != nil {
			s.log.WithError(err).Warn("client write failed")
			cl.conn.Close()
			s.clientsMux.Lock()
			delete(s.clients, cl.conn)
			s.clientsMux.Unlock()
		}
	}
}
