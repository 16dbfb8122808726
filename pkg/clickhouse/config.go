package clickhouse

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// ClientConfig describes the connection to the fact history store.
type ClientConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	UseHTTP  bool

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxExecTime  time.Duration

	// AsyncInsert lets the server buffer small fact batches. WaitForAsync
	// makes inserts return only once the buffer is flushed.
	AsyncInsert  bool
	WaitForAsync bool
}

type ClientOption func(*ClientConfig)

func defaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Port:            9000,
		Database:        "default",
		User:            "default",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
	}
}

func (c *ClientConfig) validate() error {
	if c.Host == "" {
		return errors.New("clickhouse: host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("clickhouse: invalid port %d", c.Port)
	}
	if c.WaitForAsync && !c.AsyncInsert {
		return errors.New("clickhouse: wait_for_async_insert needs async_insert")
	}
	return nil
}

// dsn renders the clickhouse-go connection string. write_timeout is kept
// client side since older servers reject it as a setting.
func (c *ClientConfig) dsn() string {
	scheme := "clickhouse"
	if c.UseHTTP {
		scheme = "http"
	}
	q := url.Values{}
	if c.DialTimeout > 0 {
		q.Set("dial_timeout", c.DialTimeout.String())
	}
	if c.ReadTimeout > 0 {
		q.Set("read_timeout", c.ReadTimeout.String())
	}
	if c.MaxExecTime > 0 {
		q.Set("max_execution_time", strconv.Itoa(int(c.MaxExecTime/time.Second)))
	}
	if c.AsyncInsert {
		q.Set("async_insert", "1")
		if c.WaitForAsync {
			q.Set("wait_for_async_insert", "1")
		}
	}
	u := url.URL{
		Scheme:   scheme,
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// WithAddress sets host and, when positive, port.
func WithAddress(host string, port int) ClientOption {
	return func(c *ClientConfig) {
		c.Host = host
		if port > 0 {
			c.Port = port
		}
	}
}

// WithDatabase ignores an empty name.
func WithDatabase(database string) ClientOption {
	return func(c *ClientConfig) {
		if database != "" {
			c.Database = database
		}
	}
}

// WithCredentials keeps the default user when user is empty.
func WithCredentials(user, password string) ClientOption {
	return func(c *ClientConfig) {
		if user != "" {
			c.User = user
		}
		c.Password = password
	}
}

func WithMaxConnections(maxOpen, maxIdle int) ClientOption {
	return func(c *ClientConfig) {
		c.MaxOpenConns, c.MaxIdleConns = maxOpen, maxIdle
	}
}

// WithTimeouts overrides the non-zero durations only.
func WithTimeouts(dial, read, write time.Duration) ClientOption {
	return func(c *ClientConfig) {
		for _, t := range []struct {
			dst *time.Duration
			v   time.Duration
		}{{&c.DialTimeout, dial}, {&c.ReadTimeout, read}, {&c.WriteTimeout, write}} {
			if t.v > 0 {
				*t.dst = t.v
			}
		}
	}
}

func WithHTTP(useHTTP bool) ClientOption {
	return func(c *ClientConfig) { c.UseHTTP = useHTTP }
}

func WithAsyncInsert(enabled, wait bool) ClientOption {
	return func(c *ClientConfig) {
		c.AsyncInsert, c.WaitForAsync = enabled, wait
	}
}

// WithMaxExecutionTime bounds each query server side; whole seconds only.
func WithMaxExecutionTime(d time.Duration) ClientOption {
	return func(c *ClientConfig) { c.MaxExecTime = d }
}
