package backend

import (
	"context"
	"errors"
	"net"
	"net/http/httptrace"
	"strings"
	"sync/atomic"
	"time"

	"TradeSync/internal/domain/fault"
	drepo "TradeSync/internal/domain/repository"
	xhttp "TradeSync/pkg/http"
	"TradeSync/pkg/logger"
	"TradeSync/pkg/metrics"

	"golang.org/x/time/rate"
)

// Client is the request/response half of the transport. Every call carries
// its own timeout and is issued exactly once; retry policy belongs to the
// caller.
type Client struct {
	baseURL string
	http    *xhttp.Client
	limiter *rate.Limiter
	timeout time.Duration
	now     func() time.Time
	log     *logger.Logger
	metrics drepo.Metrics
}

var _ drepo.TradingAPI = (*Client)(nil)

// Option configures Client.
type Option func(*Client)

// WithRequestTimeout sets the default per-call timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
		}
	}
}

// WithHTTPClient replaces the underlying JSON client.
func WithHTTPClient(h *xhttp.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithClock overrides the clock used to stamp responses without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m drepo.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: rate.NewLimiter(rate.Inf, 0),
		timeout: 10 * time.Second,
		now:     time.Now,
		log:     logger.Nop(),
		metrics: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = xhttp.NewClient()
	}
	c.log = c.log.Component("backend")
	return c
}

// Request issues one call bounded by timeout (the client default when zero)
// and classifies any failure as Timeout, Rejected or NetworkError. A caller
// cancellation is returned as the context error.
func (c *Client) Request(ctx context.Context, op string, req *xhttp.RequestOptions, dest any, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = c.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req.URL = c.baseURL + req.URL
	start := time.Now()

	var wrote atomic.Bool
	traced := httptrace.WithClientTrace(callCtx, &httptrace.ClientTrace{
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			if info.Err == nil {
				wrote.Store(true)
			}
		},
	})

	err := c.limiter.Wait(callCtx)
	if err == nil {
		err = c.http.SendAndParse(traced, req, dest)
	}
	c.metrics.RecordLatency(op, time.Since(start).Seconds())
	if err == nil {
		return nil
	}

	err = classify(ctx, callCtx, op, err, wrote.Load())
	c.metrics.RecordError(kindLabel(err))
	c.log.Debug("backend request failed",
		logger.String("op", op),
		logger.String("url", req.URL),
		logger.Error(err),
	)
	return err
}

// classify maps a failed call onto the fault taxonomy. delivered reports
// whether the request was written out before the failure; a dial or DNS
// error never is.
func classify(parent, call context.Context, op string, err error, delivered bool) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return parent.Err()
	}

	var se *xhttp.StatusError
	if errors.As(err, &se) {
		switch se.Status {
		case 504:
			// the gateway gave up waiting; the backend may still have run it
			return &fault.Error{Kind: fault.ErrTimeout, Op: op, Status: se.Status, Reason: se.Detail(), Delivered: true}
		case 502, 503:
			return &fault.Error{Kind: fault.ErrNetwork, Op: op, Status: se.Status, Reason: se.Detail()}
		default:
			return fault.Rejected(op, se.Status, se.Detail())
		}
	}

	// a rate limiter wait that cannot finish before the deadline is a timeout too
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(call.Err(), context.DeadlineExceeded) ||
		strings.Contains(err.Error(), "would exceed context deadline") {
		return fault.Timeout(op, err).Sent(delivered)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fault.Timeout(op, err).Sent(delivered)
	}
	return fault.Network(op, err).Sent(delivered)
}

func kindLabel(err error) string {
	switch {
	case errors.Is(err, fault.ErrTimeout):
		return "timeout"
	case errors.Is(err, fault.ErrRejected):
		return "rejected"
	case errors.Is(err, fault.ErrNetwork):
		return "network"
	default:
		return "cancelled"
	}
}
