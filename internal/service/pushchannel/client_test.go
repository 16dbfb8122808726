package pushchannel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"TradeSync/internal/domain/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource []string

func (s staticSource) DesiredSet() []string { return s }

// fakeServer records the frames received on each connection and acks
// subscribe frames the way the backend does.
type fakeServer struct {
	*httptest.Server

	mu        sync.Mutex
	frames    [][]outFrame
	greet     []any
	dropAfter int // close the first connection after this many frames
	finished  chan int
}

func newFakeServer(t *testing.T) *fakeServer {
	fs := &fakeServer{finished: make(chan int, 16)}
	upgrader := websocket.Upgrader{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		fs.mu.Lock()
		idx := len(fs.frames)
		fs.frames = append(fs.frames, nil)
		greet := fs.greet
		fs.mu.Unlock()
		defer func() { fs.finished <- idx }()

		for _, g := range greet {
			if err := conn.WriteJSON(g); err != nil {
				return
			}
		}
		for {
			var f outFrame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			fs.mu.Lock()
			fs.frames[idx] = append(fs.frames[idx], f)
			n := len(fs.frames[idx])
			fs.mu.Unlock()

			if f.Type == frameSubscribe {
				_ = conn.WriteJSON(map[string]string{"type": "subscribed", "symbol": f.Symbol})
			}
			if idx == 0 && fs.dropAfter > 0 && n == fs.dropAfter {
				return
			}
		}
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) wsURL() string {
	return "ws" + strings.TrimPrefix(fs.URL, "http")
}

func (fs *fakeServer) framesOf(idx int) []outFrame {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if idx >= len(fs.frames) {
		return nil
	}
	return append([]outFrame(nil), fs.frames[idx]...)
}

func waitFinished(t *testing.T, fs *fakeServer, idx int) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-fs.finished:
			if got == idx {
				return
			}
		case <-deadline:
			t.Fatalf("server connection %d did not finish", idx)
		}
	}
}

func waitState(t *testing.T, events <-chan models.Event, state models.ConnectionState, times int) []models.Event {
	t.Helper()
	var seen []models.Event
	deadline := time.After(5 * time.Second)
	for times > 0 {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "event stream closed")
			seen = append(seen, ev)
			if ev.Type == models.EventConnectionStateChanged && ev.Connection.State == state {
				times--
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", state)
		}
	}
	return seen
}

func TestReconnectBacksOffAndReplaysDesiredSetOnce(t *testing.T) {
	fs := newFakeServer(t)
	fs.dropAfter = 2

	var (
		mu     sync.Mutex
		sleeps []time.Duration
		dials  int
	)
	dial := func(ctx context.Context, url string, h http.Header) (*websocket.Conn, error) {
		mu.Lock()
		dials++
		n := dials
		mu.Unlock()
		if n == 2 || n == 3 {
			return nil, errors.New("connection refused")
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, h)
		return conn, err
	}
	sleep := func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		sleeps = append(sleeps, d)
		mu.Unlock()
		return ctx.Err()
	}
	policy := func() backoff.BackOff {
		j := NewFullJitter(time.Second, 30*time.Second)
		j.Rand = maxJitter
		return j
	}

	c := New(fs.wsURL(), staticSource{"BTC/USDT", "SOL/USDT"},
		WithDialer(dial), WithSleep(sleep), WithBackOff(policy))
	events, unsubscribe := c.Events()
	defer unsubscribe()

	require.NoError(t, c.Connect(context.Background()))
	seen := waitState(t, events, models.ConnConnected, 2)

	require.Eventually(t, func() bool { return len(fs.framesOf(1)) == 2 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, c.Disconnect())
	waitFinished(t, fs, 1)

	mu.Lock()
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sleeps)
	assert.Equal(t, 4, dials)
	mu.Unlock()

	want := []outFrame{
		{Type: frameSubscribe, Symbol: "BTC/USDT"},
		{Type: frameSubscribe, Symbol: "SOL/USDT"},
	}
	assert.Equal(t, want, fs.framesOf(0))
	assert.Equal(t, want, fs.framesOf(1))

	var errorsSeen int
	for _, ev := range seen {
		if ev.Type == models.EventConnectionStateChanged && ev.Connection.State == models.ConnError {
			errorsSeen++
		}
	}
	assert.Equal(t, 2, errorsSeen)
	assert.Equal(t, models.ConnDisconnected, c.State())
}

func TestAuthFrameSentBeforeReplay(t *testing.T) {
	fs := newFakeServer(t)
	c := New(fs.wsURL(), staticSource{"ETH/USDT"}, WithAuthToken("secret"))

	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, func() bool { return len(fs.framesOf(0)) == 2 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, c.Disconnect())

	frames := fs.framesOf(0)
	assert.Equal(t, outFrame{Type: frameAuth, Token: "secret"}, frames[0])
	assert.Equal(t, outFrame{Type: frameSubscribe, Symbol: "ETH/USDT"}, frames[1])
}

func TestEventsFanOutAndUnsubscribe(t *testing.T) {
	fs := newFakeServer(t)
	fs.greet = []any{map[string]any{"type": "price_update", "symbol": "BTC/USDT", "price": 109585, "ts": 100}}

	c := New(fs.wsURL(), staticSource{})
	first, unsubFirst := c.Events()
	second, unsubSecond := c.Events()
	defer unsubSecond()

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	for _, ch := range []<-chan models.Event{first, second} {
		got := nextOfType(t, ch, models.EventPriceUpdate)
		assert.Equal(t, 109585.0, got.Market.Price)
	}

	unsubFirst()
	unsubFirst()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-first:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, c.bus.len())
}

func TestSubscribeWhileDisconnectedIsNoop(t *testing.T) {
	c := New("ws://127.0.0.1:1/ws", staticSource{})
	assert.NoError(t, c.Subscribe(context.Background(), "BTC/USDT"))
	assert.NoError(t, c.Unsubscribe(context.Background(), "BTC/USDT"))
	assert.NoError(t, c.Disconnect())
}

func TestSubscribeSendsFrameWhenConnected(t *testing.T) {
	fs := newFakeServer(t)
	c := New(fs.wsURL(), staticSource{})
	events, unsub := c.Events()
	defer unsub()

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()
	waitState(t, events, models.ConnConnected, 1)

	require.NoError(t, c.Subscribe(context.Background(), "DOGE/USDT"))
	ack := nextOfType(t, events, models.EventSubscriptionAck)
	assert.Equal(t, "DOGE/USDT", ack.Ack.Symbol)
	assert.True(t, ack.Ack.Subscribed)
}

// racingSource issues live subscribes at the moment the replay reads the
// desired set.
type racingSource struct {
	c       *Client
	desired []string
}

func (s *racingSource) DesiredSet() []string {
	_ = s.c.Subscribe(context.Background(), "btc/usdt")
	_ = s.c.Subscribe(context.Background(), "DOGE/USDT")
	return s.desired
}

func TestLiveSubscribeDuringReplayIsSentOnce(t *testing.T) {
	fs := newFakeServer(t)
	src := &racingSource{desired: []string{"BTC/USDT", "SOL/USDT"}}
	c := New(fs.wsURL(), src)
	src.c = c
	events, unsub := c.Events()
	defer unsub()

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()
	for range 3 {
		nextOfType(t, events, models.EventSubscriptionAck)
	}

	require.NoError(t, c.Unsubscribe(context.Background(), "BTC/USDT"))
	require.NoError(t, c.Subscribe(context.Background(), "BTC/USDT"))
	nextOfType(t, events, models.EventSubscriptionAck)

	counts := map[string]int{}
	for _, f := range fs.framesOf(0) {
		if f.Type == frameSubscribe {
			counts[f.Symbol]++
		}
	}
	assert.Equal(t, map[string]int{"BTC/USDT": 2, "SOL/USDT": 1, "DOGE/USDT": 1}, counts)
}

func TestConnectTwiceFails(t *testing.T) {
	fs := newFakeServer(t)
	c := New(fs.wsURL(), staticSource{})
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()
	assert.Error(t, c.Connect(context.Background()))
}

func nextOfType(t *testing.T, ch <-chan models.Event, typ models.EventType) models.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "event stream closed")
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}
