package di

import (
	"context"
	"fmt"
	"time"

	domrepo "FxSentry/internal/domain/repository"
	"FxSentry/internal/handler/api"
	internalrepo "FxSentry/internal/repository"
	"FxSentry/internal/service/cooldown"
	"FxSentry/internal/service/prediction"
	"FxSentry/internal/service/pricefeed"
	"FxSentry/internal/service/pricehistory"
	"FxSentry/internal/service/retry"
	"FxSentry/internal/service/subscriptions"
	"FxSentry/internal/usecase"
	"FxSentry/pkg/cache"
	pkgch "FxSentry/pkg/clickhouse"
	"FxSentry/pkg/config"
	xhttp "FxSentry/pkg/http"
	pkgkafka "FxSentry/pkg/kafka"
	applogger "FxSentry/pkg/logger"
	"FxSentry/pkg/metrics"
	"FxSentry/pkg/queue"
	"FxSentry/pkg/scheduler"
	"FxSentry/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	lgr, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return lgr, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideAuditStore creates the append-only history store. When ClickHouse
// is disabled the engine runs with history discarded; live detection never
// reads the audit store, so a no-op implementation is safe.
func ProvideAuditStore(cfg *config.Config, lgr *applogger.Logger) (domrepo.AuditStore, error) {
	if !cfg.ClickHouse.Enabled {
		return internalrepo.NopAuditStore{}, nil
	}

	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.AuditSchema); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return internalrepo.NewCHAuditStore(client, lgr), nil
}

// ProvideKafkaProducer creates a Kafka producer. Hash-by-key partitioning
// keeps every event stream for one signal key or position on one partition.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher creates the Kafka-backed event publisher.
func ProvideEventPublisher(p *pkgkafka.Producer, m domrepo.Metrics, lgr *applogger.Logger) domrepo.EventPublisher {
	return internalrepo.NewKafkaPublisher(p, m, lgr)
}

// ProvideRedisCache connects to Redis. The same connection backs both the
// subscription registry cache and the summary queue.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	opts := []cache.RedisOption{
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisDB(cfg.Redis.DB),
	}
	if cfg.Redis.Password != "" {
		opts = append(opts, cache.WithRedisPassword(cfg.Redis.Password))
	}
	if cfg.Redis.Prefix != "" {
		opts = append(opts, cache.WithRedisPrefix(cfg.Redis.Prefix))
	}
	rc, err := cache.NewRedisCache(opts...)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCache layers an in-process cache over Redis so hot registry reads
// skip the network round trip.
func ProvideCache(rc *cache.RedisCache) cache.Service {
	return cache.NewLayeredCache(rc)
}

// ProvideSubscriptionSource creates the HTTP client for the external
// subscription store.
func ProvideSubscriptionSource(cfg *config.Config) domrepo.SubscriptionSource {
	return subscriptions.NewClient(
		cfg.Subscriptions.BaseURL,
		subscriptions.WithTimeout(cfg.Subscriptions.Timeout),
		subscriptions.WithRetryPolicy(retry.Default()),
	)
}

// ProvideRegistry creates the cached subscription registry.
func ProvideRegistry(src domrepo.SubscriptionSource, c cache.Service, cfg *config.Config, lgr *applogger.Logger) *subscriptions.Registry {
	return subscriptions.NewRegistry(src, c, cfg.Subscriptions.RefreshTTL, lgr)
}

// ProvideDirectory exposes the registry to the monitors.
func ProvideDirectory(r *subscriptions.Registry) usecase.SubscriberDirectory {
	return r
}

// ProvideCooldownGate creates the notification throttle.
func ProvideCooldownGate() usecase.CooldownGate {
	return cooldown.New()
}

// ProvidePredictionService creates the prediction model client.
func ProvidePredictionService(cfg *config.Config) domrepo.PredictionService {
	return prediction.New(
		cfg.Prediction.BaseURL,
		cfg.Prediction.Timeout,
		retryPolicy(cfg.Prediction.MaxAttempts, cfg.Prediction.BackoffMin, cfg.Prediction.BackoffMax),
	)
}

// ProvidePriceHistory creates the candle history client.
func ProvidePriceHistory(cfg *config.Config) domrepo.PriceHistory {
	return pricehistory.New(
		cfg.PriceHistory.BaseURL,
		cfg.PriceHistory.Timeout,
		retryPolicy(cfg.PriceHistory.MaxAttempts, cfg.PriceHistory.BackoffMin, cfg.PriceHistory.BackoffMax),
	)
}

// ProvidePriceFeed creates the live WebSocket price stream.
func ProvidePriceFeed(cfg *config.Config, lgr *applogger.Logger, m domrepo.Metrics) *pricefeed.Stream {
	return pricefeed.New(
		cfg.PriceFeed.APIKey,
		cfg.PriceFeed.WebSocketURL,
		cfg.PriceFeed.Instruments,
		cfg.PriceFeed.ReconnectDelay,
		cfg.PriceFeed.PingInterval,
		lgr,
		m,
	)
}

// ProvideLivePrices exposes the stream to the position monitor.
func ProvideLivePrices(s *pricefeed.Stream) domrepo.PriceFeed {
	return s
}

// ProvideSignalStates creates the in-memory last-signal store.
func ProvideSignalStates() domrepo.SignalStates {
	return internalrepo.NewSignalStateStore()
}

// ProvidePositions creates the in-memory position book.
func ProvidePositions() domrepo.Positions {
	return internalrepo.NewPositionStore()
}

// ProvideDispatcher creates the notification fan-out.
func ProvideDispatcher(
	dir usecase.SubscriberDirectory,
	gate usecase.CooldownGate,
	pub domrepo.EventPublisher,
	m domrepo.Metrics,
	lgr *applogger.Logger,
) *usecase.Dispatcher {
	return usecase.NewDispatcher(dir, gate, pub, m, lgr)
}

// ProvideSignalMonitor creates the signal change detector.
func ProvideSignalMonitor(
	dir usecase.SubscriberDirectory,
	history domrepo.PriceHistory,
	predictor domrepo.PredictionService,
	states domrepo.SignalStates,
	audit domrepo.AuditStore,
	dispatcher *usecase.Dispatcher,
	m domrepo.Metrics,
	lgr *applogger.Logger,
	cfg *config.Config,
) *usecase.SignalMonitor {
	return usecase.NewSignalMonitor(dir, history, predictor, states, audit, dispatcher, m, lgr,
		usecase.SignalMonitorConfig{
			WorkerPool:   cfg.Monitor.Signal.WorkerPool,
			LookbackBars: cfg.Monitor.Signal.LookbackBars,
			MinBars:      cfg.Monitor.Signal.MinBars,
			CallTimeout:  cfg.Monitor.Signal.CallTimeout,
		})
}

// ProvidePositionMonitor creates the open position revaluer.
func ProvidePositionMonitor(
	positions domrepo.Positions,
	feed domrepo.PriceFeed,
	history domrepo.PriceHistory,
	states domrepo.SignalStates,
	dir usecase.SubscriberDirectory,
	audit domrepo.AuditStore,
	dispatcher *usecase.Dispatcher,
	m domrepo.Metrics,
	lgr *applogger.Logger,
	cfg *config.Config,
) *usecase.PositionMonitor {
	return usecase.NewPositionMonitor(positions, feed, history, states, dir, audit, dispatcher, m, lgr,
		usecase.PositionMonitorConfig{
			WorkerPool:        cfg.Monitor.Position.WorkerPool,
			CallTimeout:       cfg.Monitor.Position.CallTimeout,
			PriceMaxAge:       cfg.Monitor.Position.PriceMaxAge,
			ReversalThreshold: cfg.Monitor.Position.ReversalThreshold,
			ExitConfidence:    cfg.Monitor.Position.ExitConfidence,
		})
}

// ProvideSummaryQueue creates the Redis-backed summary queue with the
// daily summary job registered. The queue runs in producer-consumer mode:
// the scheduler enqueues one message per owner, the workers render and
// dispatch the digests.
func ProvideSummaryQueue(
	cfg *config.Config,
	lgr *applogger.Logger,
	rc *cache.RedisCache,
	positions domrepo.Positions,
	dispatcher *usecase.Dispatcher,
) *queue.RedisQueue {
	q := queue.NewRedisQueue(lgr, &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		QueueSize:  cfg.Queue.QueueSize,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}, rc.Client(), queue.ModeProducerConsumer)
	q.RegisterJob(usecase.NewSummaryJob(positions, dispatcher, lgr))
	return q
}

// ProvideSummaryScheduler creates the daily summary fan-in.
func ProvideSummaryScheduler(positions domrepo.Positions, q *queue.RedisQueue, lgr *applogger.Logger) *usecase.SummaryScheduler {
	return usecase.NewSummaryScheduler(positions, q, lgr)
}

// ProvideMonitoringHandler creates the HTTP API handler.
func ProvideMonitoringHandler(
	lgr *applogger.Logger,
	states domrepo.SignalStates,
	positions domrepo.Positions,
	feed domrepo.PriceFeed,
	pub domrepo.EventPublisher,
	audit domrepo.AuditStore,
) *api.MonitoringHandler {
	return api.NewMonitoringHandler(lgr, states, positions, feed, pub, audit)
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(h *api.MonitoringHandler, cfg *config.Config) *xhttp.Server {
	return xhttp.NewServer(h,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	)
}

// ProvideApp assembles the application: both monitor schedulers, the daily
// summary trigger, and the process lifecycle around them.
func ProvideApp(
	cfg *config.Config,
	lgr *applogger.Logger,
	httpServer *xhttp.Server,
	signalMon *usecase.SignalMonitor,
	positionMon *usecase.PositionMonitor,
	summary *usecase.SummaryScheduler,
	feed *pricefeed.Stream,
	q *queue.RedisQueue,
	pub domrepo.EventPublisher,
	audit domrepo.AuditStore,
) (*server.App, error) {
	signalSched, err := scheduler.New("signal-monitor", cfg.Monitor.Signal.Interval, signalMon.RunCycle, lgr,
		scheduler.WithRunImmediately())
	if err != nil {
		return nil, err
	}
	positionSched, err := scheduler.New("position-monitor", cfg.Monitor.Position.Interval, positionMon.RunCycle, lgr)
	if err != nil {
		return nil, err
	}
	summarySched, err := scheduler.NewDaily("daily-summary", cfg.Monitor.SummaryHourUTC, summary.Run, lgr)
	if err != nil {
		return nil, err
	}
	return server.New(cfg, lgr, httpServer, signalSched, positionSched, summarySched, feed, q, pub, audit), nil
}

func retryPolicy(attempts int, backoffMin, backoffMax time.Duration) retry.Policy {
	p := retry.Default()
	if attempts > 0 {
		p.MaxAttempts = attempts
	}
	if backoffMin > 0 {
		p.BackoffMin = backoffMin
	}
	if backoffMax > 0 {
		p.BackoffMax = backoffMax
	}
	return p
}
