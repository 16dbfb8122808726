package di

import (
	"context"
	"fmt"
	"time"

	"TradeSync/internal/domain/repository"
	"TradeSync/internal/handler/api"
	mid "TradeSync/internal/middleware"
	internalrepo "TradeSync/internal/repository"
	"TradeSync/internal/service/backend"
	"TradeSync/internal/service/pushchannel"
	"TradeSync/internal/usecase"
	"TradeSync/pkg/cache"
	pkgch "TradeSync/pkg/clickhouse"
	"TradeSync/pkg/config"
	xhttp "TradeSync/pkg/http"
	pkgkafka "TradeSync/pkg/kafka"
	applogger "TradeSync/pkg/logger"
	"TradeSync/pkg/metrics"
	"TradeSync/pkg/server"

	"github.com/cenkalti/backoff/v4"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Producer, error) {
	kl := l.Component("kafka")
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithErrorLog(func(msg string, args ...any) {
			// debug only: the error digest publishes through this producer
			kl.Debug(fmt.Sprintf(msg, args...))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideFactSink builds the sink selected by recorder.backend. With kafka
// the producer also ships the error log digest when enabled.
func ProvideFactSink(cfg *config.Config, l *applogger.Logger) (repository.FactSink, error) {
	switch cfg.Recorder.Backend {
	case usecase.RecorderKafka:
		producer, err := ProvideKafkaProducer(cfg, l)
		if err != nil {
			return nil, err
		}
		if cfg.Recorder.ShipErrorLogs {
			l.AttachDigest(&applogger.DigestConfig{
				Interval:       cfg.Recorder.DigestInterval,
				CountThreshold: 100,
				Topic:          cfg.Kafka.LogTopic,
				Publisher:      producer,
			})
		}
		return internalrepo.NewKafkaJournal(producer, cfg.Kafka.Topic), nil

	case usecase.RecorderClickHouse:
		client, err := ProvideClickHouseClient(cfg)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		history, err := internalrepo.NewClickHouseHistory(ctx, client, l)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		return history, nil
	}
	return nil, nil
}

func ProvideFactRecorder(sink repository.FactSink, m repository.Metrics, cfg *config.Config) *usecase.FactRecorder {
	return usecase.NewFactRecorder(sink, m, cfg.Recorder.Backend)
}

// ProvideCache creates the read-through cache for reference market data.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if cfg.Cache.Backend == "memory" {
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize)), nil
	}

	redisCache, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Cache.Redis.Host, cfg.Cache.Redis.Port),
		cache.WithRedisAuth(cfg.Cache.Redis.Password, cfg.Cache.Redis.DB),
		cache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
		cache.WithRedisPool(cfg.Cache.Redis.PoolSize, cfg.Cache.Redis.MinIdle),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	if cfg.Cache.Backend == "layered" {
		return cache.NewLayeredCache(redisCache,
			cache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize),
			cache.WithLayeredL1TTL(cfg.Cache.L1TTL),
		), nil
	}
	return redisCache, nil
}

// ProvideTradingAPI creates the request/response client.
func ProvideTradingAPI(cfg *config.Config, l *applogger.Logger, m repository.Metrics) *backend.Client {
	return backend.New(cfg.Sync.APIBaseURL,
		backend.WithRequestTimeout(cfg.RequestTimeout()),
		backend.WithRateLimit(cfg.API.RateLimit, cfg.API.Burst),
		backend.WithLogger(l),
		backend.WithMetrics(m),
	)
}

func ProvideSubscriptionRegistry(cfg *config.Config) *usecase.SubscriptionRegistry {
	return usecase.NewSubscriptionRegistry(cfg.Subscriptions.Symbols...)
}

func ProvideStateStore(l *applogger.Logger, m repository.Metrics) *usecase.StateStore {
	return usecase.NewStateStore(l, m)
}

// ProvidePushChannel creates the websocket channel. It replays the
// registry's desired set after every connect.
func ProvidePushChannel(cfg *config.Config, registry *usecase.SubscriptionRegistry, l *applogger.Logger, m repository.Metrics) *pushchannel.Client {
	base, limit := cfg.Push.BackoffBase, cfg.Push.BackoffCap
	return pushchannel.New(cfg.Sync.PushChannelURL, registry,
		pushchannel.WithAuthToken(cfg.Push.AuthToken),
		pushchannel.WithHeartbeat(cfg.Push.PingInterval, cfg.Push.ReadTimeout),
		pushchannel.WithWriteTimeout(cfg.Push.WriteTimeout),
		pushchannel.WithBackOff(func() backoff.BackOff { return pushchannel.NewFullJitter(base, limit) }),
		pushchannel.WithLogger(l),
		pushchannel.WithMetrics(m),
	)
}

// ProvideRealtimePipeline builds the push price path. Accepted facts are
// forwarded to the recorder unless recording is off.
func ProvideRealtimePipeline(
	store *usecase.StateStore,
	registry *usecase.SubscriptionRegistry,
	recorder *usecase.FactRecorder,
	m repository.Metrics,
	cfg *config.Config,
) *mid.RealtimePipeline {
	opts := []mid.PipelineOption{
		mid.WithMaxRPS(float64(cfg.Pipeline.MaxRPS)),
		mid.WithBufferSize(cfg.Pipeline.BufferSize),
	}
	if recorder.Backend() != usecase.RecorderNone {
		opts = append(opts, mid.WithDownstream(recorder))
	}
	return mid.NewRealtimePipeline(store, registry, m, opts...)
}

func ProvideScheduler(
	api *backend.Client,
	store *usecase.StateStore,
	registry *usecase.SubscriptionRegistry,
	l *applogger.Logger,
	m repository.Metrics,
) *usecase.ReconciliationScheduler {
	return usecase.NewReconciliationScheduler(api, store, registry, l, m)
}

func ProvideEventRouter(
	pipe *mid.RealtimePipeline,
	store *usecase.StateStore,
	registry *usecase.SubscriptionRegistry,
	scheduler *usecase.ReconciliationScheduler,
	l *applogger.Logger,
	m repository.Metrics,
) *usecase.EventRouter {
	return usecase.NewEventRouter(pipe, store, registry, scheduler, l, m)
}

func ProvideSession(
	channel *pushchannel.Client,
	registry *usecase.SubscriptionRegistry,
	router *usecase.EventRouter,
	pipe *mid.RealtimePipeline,
	scheduler *usecase.ReconciliationScheduler,
	recorder *usecase.FactRecorder,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.Session {
	return usecase.NewSession(channel, registry, router, pipe, scheduler, recorder, cfg.ReconciliationInterval(), l)
}

func ProvideActionCoordinator(
	api *backend.Client,
	store *usecase.StateStore,
	scheduler *usecase.ReconciliationScheduler,
	recorder *usecase.FactRecorder,
	cfg *config.Config,
	l *applogger.Logger,
	m repository.Metrics,
) *usecase.ActionCoordinator {
	return usecase.NewActionCoordinator(api, store, scheduler, l, m,
		usecase.WithRetryPolicy(cfg.Sync.MaxActionRetries, cfg.Actions.RetrySpacing),
		usecase.WithJournal(recorder),
	)
}

func ProvideMarketDataService(api *backend.Client, c cache.Service, cfg *config.Config, l *applogger.Logger, m repository.Metrics) *usecase.MarketDataService {
	return usecase.NewMarketDataService(api, c, cfg.Cache.CandlesTTL, cfg.Cache.MarketsTTL, l, m)
}

func ProvideHTTPHandler(
	l *applogger.Logger,
	store *usecase.StateStore,
	session *usecase.Session,
	actions *usecase.ActionCoordinator,
	market *usecase.MarketDataService,
	client *backend.Client,
) xhttp.Handler {
	return api.NewSyncEchoHandler(l, store, session, actions, market, client)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	session *usecase.Session,
	handler xhttp.Handler,
	c cache.Service,
) *server.App {
	return server.New(cfg, l, session, handler, c)
}
