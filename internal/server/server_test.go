package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depthview/internal/book"
	"depthview/internal/config"
	"depthview/internal/feed"
)

type stubStream struct{}

func (stubStream) Subscribe(string, *int)                {}
func (stubStream) Unsubscribe(string, *int)              {}
func (stubStream) OnSnapshot(func(feed.Snapshot)) func() { return func() {} }
func (stubStream) OnOpen(func()) func()                  { return func() {} }
func (stubStream) OnClose(func()) func()                 { return func() {} }

func newTestServer(t *testing.T) (*Server, *book.Engine) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	engine := book.NewEngine(stubStream{}, book.Options{Logger: log})
	engine.Start()
	engine.ApplySnapshot(feed.Snapshot{
		Coin: "BTC",
		Bids: []feed.PriceLevel{{Price: 100, Size: 2}, {Price: 99, Size: 5}},
		Asks: []feed.PriceLevel{{Price: 101, Size: 3}, {Price: 102, Size: 1}},
	})
	return New(engine, config.Default(), log), engine
}

func TestHandleClientMessageDispatch(t *testing.T) {
	s, engine := newTestServer(t)

	s.handleClientMessage(ClientMessage{Type: "set_currency", Currency: "quote"})
	assert.Equal(t, book.Quote, engine.GetSnapshot().Currency)

	s.handleClientMessage(ClientMessage{Type: "set_precision", SigFigs: 10})
	assert.Equal(t, 5, engine.GetSnapshot().SigFigs)

	s.handleClientMessage(ClientMessage{Type: "pause"})
	assert.True(t, engine.GetSnapshot().Paused)
	s.handleClientMessage(ClientMessage{Type: "resume"})
	assert.False(t, engine.GetSnapshot().Paused)

	// Unknown symbols never reach the engine.
	s.handleClientMessage(ClientMessage{Type: "set_symbol", Symbol: "DOGE"})
	assert.Equal(t, "BTC", engine.GetSnapshot().Symbol)
	s.handleClientMessage(ClientMessage{Type: "set_symbol", Symbol: "ETH"})
	assert.Equal(t, "ETH", engine.GetSnapshot().Symbol)

	// Garbage types are logged and ignored.
	s.handleClientMessage(ClientMessage{Type: "reboot"})
}

func TestBuildLadderMessage(t *testing.T) {
	s, _ := newTestServer(t)

	msg := s.buildLadderMessage()
	assert.Equal(t, "ladder", msg.Type)
	assert.Equal(t, "BTC", msg.Symbol)
	assert.Equal(t, uint64(1), msg.Frames)
	require.Len(t, msg.Asks, 2)
	require.Len(t, msg.Bids, 2)
	assert.True(t, msg.HasSpread)
	assert.Equal(t, 1.0, msg.Spread)
	assert.NotZero(t, msg.LastUpdateMs)
}

func TestConcurrentInitialPushAndBroadcast(t *testing.T) {
	// The initial-state push runs on the handler goroutine while the push
	// loop broadcasts to the same freshly registered connection. The two
	// writers must never interleave on one transport.
	s, _ := newTestServer(t)
	ts := httptest.NewServer(http.HandlerFunc(s.handleWebSocket))
	defer ts.Close()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				s.broadcast(s.buildLadderMessage())
			}
		}
	}()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	for i := 0; i < 10; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)

		// The initial state arrives as an intact frame despite the
		// broadcast storm.
		var msg LadderMessage
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "ladder", msg.Type)
		conn.Close()
	}

	close(stop)
	wg.Wait()
}

func TestShutdownIdempotent(t *testing.T) {
	s, _ := newTestServer(t)
	require.NoError(t, s.Shutdown(context.Background()))
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestGroupingCommand(t *testing.T) {
	s, engine := newTestServer(t)
	engine.ApplySnapshot(feed.Snapshot{
		Coin: "BTC",
		Bids: []feed.PriceLevel{{Price: 100.7, Size: 1}, {Price: 100.2, Size: 2}},
		Asks: []feed.PriceLevel{{Price: 101.1, Size: 1}, {Price: 101.9, Size: 2}},
	})

	s.handleClientMessage(ClientMessage{Type: "set_grouping", Tick: 1})

	msg := s.buildLadderMessage()
	require.Len(t, msg.Bids, 1, "both buckets collapse to one level per side")
	require.Len(t, msg.Asks, 1)
	assert.Equal(t, 100.0, msg.Bids[0].Price)
	assert.Equal(t, 3.0, msg.Bids[0].Size)
	assert.Equal(t, 102.0, msg.Asks[0].Price)
	assert.Equal(t, 3.0, msg.Asks[0].Size)

	// Tick zero turns grouping back off.
	s.handleClientMessage(ClientMessage{Type: "set_grouping", Tick: 0})
	msg = s.buildLadderMessage()
	assert.Len(t, msg.Bids, 2)

	// Negative ticks are rejected; the previous setting stands.
	s.handleClientMessage(ClientMessage{Type: "set_grouping", Tick: -0.5})
	msg = s.buildLadderMessage()
	assert.Len(t, msg.Bids, 2)
}
