package pushchannel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"TradeSync/internal/domain/models"
	drepo "TradeSync/internal/domain/repository"
	"TradeSync/pkg/logger"
	"TradeSync/pkg/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// DialFunc opens a websocket connection.
type DialFunc func(ctx context.Context, url string, header http.Header) (*websocket.Conn, error)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Client implements a PushChannel backed by a websocket. A single manager
// goroutine owns the connection lifecycle: dial, authenticate, replay the
// desired subscriptions, read until the connection drops, back off, repeat.
type Client struct {
	url          string
	token        string
	source       drepo.SubscriptionSource
	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
	newBackOff   func() backoff.BackOff
	dial         DialFunc
	sleep        SleepFunc
	now          func() time.Time
	log          *logger.Logger
	metrics      drepo.Metrics

	bus *bus

	mu        sync.Mutex
	conn      *websocket.Conn
	announced map[string]bool // subscribe frames written on conn
	state     models.ConnectionState
	cancel    context.CancelFunc
	done      chan struct{}

	writeMu sync.Mutex
}

var _ drepo.PushChannel = (*Client)(nil)

// Option configures Client.
type Option func(*Client)

// WithAuthToken sends an auth frame first on every connect.
func WithAuthToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHeartbeat sets the ping interval and the read deadline extended by pongs.
func WithHeartbeat(ping, read time.Duration) Option {
	return func(c *Client) {
		if ping > 0 {
			c.pingInterval = ping
		}
		if read > 0 {
			c.readTimeout = read
		}
	}
}

// WithWriteTimeout bounds every frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// WithBackOff sets the reconnect policy factory.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = f }
}

// WithDialer replaces the websocket dialer.
func WithDialer(d DialFunc) Option {
	return func(c *Client) { c.dial = d }
}

// WithSleep replaces the wait between reconnect attempts.
func WithSleep(s SleepFunc) Option {
	return func(c *Client) { c.sleep = s }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m drepo.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a push channel for url. source is consulted on every
// (re)connect for the symbols to subscribe.
func New(url string, source drepo.SubscriptionSource, opts ...Option) *Client {
	c := &Client{
		url:          url,
		source:       source,
		pingInterval: 20 * time.Second,
		readTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
		newBackOff: func() backoff.BackOff {
			return NewFullJitter(time.Second, 30*time.Second)
		},
		sleep:   sleepContext,
		now:     time.Now,
		log:     logger.Nop(),
		metrics: metrics.Nop{},
		bus:     newBus(),
		state:   models.ConnDisconnected,
	}
	c.dial = func(ctx context.Context, url string, header http.Header) (*websocket.Conn, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
		return conn, err
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Component("pushchannel")
	return c
}

// Connect starts the connection manager. Dial failures are not returned;
// they show up as connectionStateChanged events while the manager retries.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return errors.New("push channel already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx, c.done)
	return nil
}

// Disconnect stops the manager and closes the connection. It does not
// reconnect afterwards.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	cancel, done, conn := c.cancel, c.done, c.conn
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	<-done
	return nil
}

// Subscribe sends a subscribe frame when connected. While disconnected it is
// a no-op; the next connect replays the desired set.
func (c *Client) Subscribe(ctx context.Context, symbol string) error {
	return c.sendSymbol(ctx, frameSubscribe, symbol)
}

// Unsubscribe sends an unsubscribe frame when connected.
func (c *Client) Unsubscribe(ctx context.Context, symbol string) error {
	return c.sendSymbol(ctx, frameUnsubscribe, symbol)
}

// Events returns a new listener and its unsubscribe handle. Listeners stay
// attached across reconnects.
func (c *Client) Events() (<-chan models.Event, func()) {
	return c.bus.subscribe()
}

// State returns the current connection state.
func (c *Client) State() models.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) sendSymbol(ctx context.Context, typ, symbol string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	if err := c.announce(conn, typ, symbol); err != nil {
		return fmt.Errorf("%s %s: %w", typ, symbol, err)
	}
	return nil
}

// announce writes a symbol frame unless conn already carries the
// subscription. Replay and live Subscribe calls race on a fresh connection;
// whichever comes first sends the frame.
func (c *Client) announce(conn *websocket.Conn, typ, symbol string) error {
	symbol = models.NormalizeSymbol(symbol)
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return nil
	}
	if typ == frameSubscribe {
		if c.announced[symbol] {
			c.mu.Unlock()
			return nil
		}
		c.announced[symbol] = true
	} else {
		delete(c.announced, symbol)
	}
	c.mu.Unlock()
	return c.write(conn, outFrame{Type: typ, Symbol: symbol})
}

func (c *Client) write(conn *websocket.Conn, v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return conn.WriteJSON(v)
}

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	policy := c.newBackOff()
	attempt := 0
	for {
		c.setState(models.ConnConnecting, "", attempt)

		conn, err := c.dial(ctx, c.url, nil)
		if err == nil {
			policy.Reset()
			attempt = 0
			err = c.serve(ctx, conn)
		}
		if ctx.Err() != nil {
			c.setState(models.ConnDisconnected, "client closed", 0)
			return
		}

		attempt++
		if conn == nil {
			c.log.Warn("push channel dial failed", logger.Int("attempt", attempt), logger.Error(err))
			c.setState(models.ConnError, err.Error(), attempt)
		} else {
			c.log.Warn("push channel dropped", logger.Error(err))
			c.setState(models.ConnDisconnected, err.Error(), attempt)
		}

		delay := policy.NextBackOff()
		if delay == backoff.Stop {
			c.setState(models.ConnDisconnected, "reconnect attempts exhausted", attempt)
			return
		}
		c.metrics.RecordReconnect()
		c.log.Debug("push channel reconnect scheduled", logger.Duration("delay", delay), logger.Int("attempt", attempt))
		if err := c.sleep(ctx, delay); err != nil {
			c.setState(models.ConnDisconnected, "client closed", 0)
			return
		}
	}
}

// serve runs one connection until it drops or ctx ends.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	_ = conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	})

	if c.token != "" {
		if err := c.write(conn, outFrame{Type: frameAuth, Token: c.token}); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	c.mu.Lock()
	c.conn = conn
	c.announced = make(map[string]bool)
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.announced = nil
		c.mu.Unlock()
	}()

	c.setState(models.ConnConnected, "", 0)
	c.log.Info("push channel connected", logger.String("url", c.url))

	for _, s := range c.source.DesiredSet() {
		if err := c.announce(conn, frameSubscribe, s); err != nil {
			return fmt.Errorf("replay %s: %w", s, err)
		}
	}

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go c.pingLoop(pingCtx, conn)

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		events, err := decode(b, c.now())
		if err != nil {
			c.metrics.RecordDroppedEvent("decode")
			c.log.Debug("push frame ignored", logger.Error(err))
			continue
		}
		for _, ev := range events {
			c.bus.publish(ev)
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				// the read loop notices the broken connection
				return
			}
		}
	}
}

func (c *Client) setState(state models.ConnectionState, reason string, attempt int) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()

	c.metrics.RecordConnectionState(state)
	c.bus.publish(models.Event{
		Type:       models.EventConnectionStateChanged,
		Connection: &models.ConnectionChange{State: state, Reason: reason, Attempt: attempt},
		ReceivedAt: c.now(),
	})
}
