package cache

import (
	"net"
	"strconv"
	"time"
)

// RedisConfig describes the shared Redis used for reference market data.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	Prefix       string
	PoolSize     int
	MinIdleConns int
	PoolTimeout  time.Duration
	PingTimeout  time.Duration
}

type RedisOption func(*RedisConfig)

func defaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         "localhost:6379",
		Prefix:       "tradesync",
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  30 * time.Second,
		PingTimeout:  5 * time.Second,
	}
}

// WithRedisAddr sets the server address. A zero port keeps 6379.
func WithRedisAddr(host string, port int) RedisOption {
	return func(c *RedisConfig) {
		if port == 0 {
			port = 6379
		}
		c.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	}
}

// WithRedisAuth selects the database and its password.
func WithRedisAuth(password string, db int) RedisOption {
	return func(c *RedisConfig) {
		c.Password = password
		c.DB = db
	}
}

// WithRedisPrefix namespaces every key, so one Redis can serve several
// dashboards.
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) { c.Prefix = prefix }
}

func WithRedisPool(size, minIdle int) RedisOption {
	return func(c *RedisConfig) {
		c.PoolSize = size
		c.MinIdleConns = minIdle
	}
}

// MemoryConfig bounds the in-process cache.
type MemoryConfig struct {
	MaxSize         int
	CleanupInterval time.Duration
}

type MemoryOption func(*MemoryConfig)

func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *MemoryConfig) { c.MaxSize = size }
}

// LayeredConfig sizes the memory layer in front of Redis. L1TTL caps how
// long a process may serve a value other processes already replaced.
type LayeredConfig struct {
	MemoryMaxSize int
	L1TTL         time.Duration
}

type LayeredOption func(*LayeredConfig)

func WithLayeredMemorySize(size int) LayeredOption {
	return func(c *LayeredConfig) { c.MemoryMaxSize = size }
}

func WithLayeredL1TTL(ttl time.Duration) LayeredOption {
	return func(c *LayeredConfig) { c.L1TTL = ttl }
}
