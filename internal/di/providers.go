package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/handler/api"
	internalrepo "MarketPulse/internal/repository"
	"MarketPulse/internal/service/binance"
	"MarketPulse/internal/service/polymarket"
	"MarketPulse/internal/service/ratelimit"
	"MarketPulse/internal/usecase"
	"MarketPulse/pkg/cache"
	pkgch "MarketPulse/pkg/clickhouse"
	"MarketPulse/pkg/config"
	xhttp "MarketPulse/pkg/http"
	pkgkafka "MarketPulse/pkg/kafka"
	applogger "MarketPulse/pkg/logger"
	"MarketPulse/pkg/metrics"
	"MarketPulse/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// historyInMemory caps the fallback history store when ClickHouse is disabled.
const historyInMemory = 500

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideRegistry creates the Prometheus registry served on /metrics.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) *metrics.Recorder {
	return metrics.New(reg)
}

// ProvideLocation resolves the market timezone used for window slugs.
func ProvideLocation(cfg *config.Config) (*time.Location, error) {
	loc, err := time.LoadLocation(cfg.Market.Timezone)
	if err != nil {
		return nil, fmt.Errorf("market timezone: %w", err)
	}
	return loc, nil
}

// ProvideStore returns the shared key/value store: Redis when enabled so
// that replicas share locks and last-known-good values, memory otherwise.
func ProvideStore(cfg *config.Config, log *applogger.Logger) (cache.Store, error) {
	if !cfg.Redis.Enabled {
		log.Info("redis disabled, using in-memory store")
		return cache.NewMemoryStore(cache.WithMemoryMaxSize(10000)), nil
	}

	store, err := cache.NewRedisStore(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis store: %w", err)
	}
	log.Info("redis connected", applogger.String("host", cfg.Redis.Host), applogger.Int("db", cfg.Redis.DB))
	return store, nil
}

// ProvideClickHouseClient creates a ClickHouse client and its schema. It
// returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}

	client, err := pkgch.NewClient(
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
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

	if err := client.InitSchema(ctx, internalrepo.HistorySchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideHistoryStore persists committed predictions in ClickHouse, or in
// memory when ClickHouse is disabled.
func ProvideHistoryStore(cfg *config.Config, ch *pkgch.Client) drepo.HistoryStore {
	if ch == nil {
		return internalrepo.NewMemoryHistoryStore(historyInMemory)
	}
	return internalrepo.NewClickHouseHistoryStore(ch.DB(), cfg.ClickHouse.Database)
}

// ProvideKafkaProducer creates a Kafka producer. It returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}

	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	return producer, nil
}

// ProvidePublisher wraps the producer as the event publisher and, when
// enabled, routes the log digest through it.
func ProvidePublisher(cfg *config.Config, producer *pkgkafka.Producer, log *applogger.Logger) drepo.Publisher {
	var pub drepo.Publisher = internalrepo.NoopPublisher{}
	if producer != nil {
		pub = internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
	}

	if cfg.Log.Digest.Enabled {
		log.AttachDigest(&applogger.DigestConfig{
			TimeInterval:   cfg.Log.Digest.Interval,
			CountThreshold: cfg.Log.Digest.CountThreshold,
			Publisher:      pub,
		})
	}
	return pub
}

// ProvideLockStore shares window commitments through the store. Locks
// outlive their window so a late replica still adopts the commitment.
func ProvideLockStore(cfg *config.Config, store cache.Store) drepo.LockStore {
	return internalrepo.NewLockStore(store, 2*cfg.Window.Length)
}

// ProvidePriceSource creates the Binance kline client.
func ProvidePriceSource(cfg *config.Config) drepo.PriceSource {
	return binance.New(
		cfg.Sources.BinanceURL,
		cfg.Market.Symbol,
		cfg.Market.KlineInterval,
		cfg.Sources.RequestTimeout,
		cfg.Sources.Retries,
	)
}

// ProvidePolymarketClient creates the prediction-market client.
func ProvidePolymarketClient(cfg *config.Config, store cache.Store) *polymarket.Client {
	httpClient := xhttp.NewClient(
		xhttp.WithTimeout(cfg.Sources.RequestTimeout),
		xhttp.WithRetries(cfg.Sources.Retries),
	)
	limiter := ratelimit.New(cfg.Sources.RateCapacity, cfg.Sources.RatePerSecond)
	return polymarket.New(polymarket.Config{
		GammaURL:   cfg.Sources.GammaURL,
		DataURL:    cfg.Sources.DataURL,
		TradeLimit: cfg.Sources.TradeLimit,
	}, httpClient, limiter, store)
}

// ProvidePositionSources lists position sources in priority order.
func ProvidePositionSources(pm *polymarket.Client) []drepo.PositionSource {
	return []drepo.PositionSource{
		polymarket.NewPositionsSource(pm),
		polymarket.NewActivitySource(pm),
	}
}

// MarketCaches groups the MarketDataCache instances wrapping each external read.
type MarketCaches struct {
	Closes      *cache.MarketDataCache[[]float64]
	Opens       *cache.MarketDataCache[float64]
	Resolutions *cache.MarketDataCache[models.WindowResolution]
	Positions   *cache.MarketDataCache[[]models.Position]
	Votes       *cache.MarketDataCache[models.ConsensusVote]
}

// ProvideMarketCaches builds every MarketDataCache. Each live load is bounded
// by the source's retry budget; votes fan out to many loads and get more.
func ProvideMarketCaches(cfg *config.Config, log *applogger.Logger, rec *metrics.Recorder, store cache.Store) *MarketCaches {
	loadTimeout := cfg.Sources.RequestTimeout * time.Duration(cfg.Sources.Retries+1)

	common := func(ttl time.Duration) []cache.MarketDataOption {
		opts := []cache.MarketDataOption{
			cache.WithTTL(ttl),
			cache.WithTimeout(loadTimeout),
			cache.WithLogger(log),
			cache.WithRecorder(rec),
		}
		if cfg.Cache.L2.Enabled {
			opts = append(opts, cache.WithSecondTier(store, cfg.Cache.L2.TTL))
		}
		return opts
	}

	return &MarketCaches{
		Closes:      cache.NewMarketData[[]float64]("closes", common(cfg.Cache.PriceTTL)...),
		Opens:       cache.NewMarketData[float64]("opens", common(cfg.Cache.OpenTTL)...),
		Resolutions: cache.NewMarketData[models.WindowResolution]("resolutions", common(cfg.Discovery.ResolutionTTL)...),
		Positions: cache.NewMarketData[[]models.Position]("positions",
			append(common(cfg.Consensus.PositionTTL), cache.WithMaxEntries(4096))...),
		Votes: cache.NewMarketData[models.ConsensusVote]("votes",
			append(common(cfg.Consensus.TTL), cache.WithTimeout(4*loadTimeout))...),
	}
}

// Close releases the memory tier of every cache.
func (m *MarketCaches) Close() error {
	return errors.Join(
		m.Closes.Close(),
		m.Opens.Close(),
		m.Resolutions.Close(),
		m.Positions.Close(),
		m.Votes.Close(),
	)
}

// ProvideScheduler creates the window lock scheduler.
func ProvideScheduler(
	cfg *config.Config,
	loc *time.Location,
	prices drepo.PriceSource,
	locks drepo.LockStore,
	history drepo.HistoryStore,
	pub drepo.Publisher,
	rec *metrics.Recorder,
	log *applogger.Logger,
	caches *MarketCaches,
) *usecase.WindowLockScheduler {
	return usecase.NewWindowLockScheduler(usecase.SchedulerConfig{
		WindowLength: cfg.Window.Length,
		PollInterval: cfg.Window.PollInterval,
		MinPoints:    cfg.Window.MinPoints,
		MinWait:      cfg.Window.MinWait,
		MaxWait:      cfg.Window.MaxWait,
		ClearGap:     cfg.Window.ClearGap,
		CloseGap:     cfg.Window.CloseGap,
		MarginPull:   cfg.Window.MarginPull,
		SlugPrefix:   cfg.Market.SlugPrefix,
		Location:     loc,
	}, prices, locks, history, pub, rec, log, caches.Closes, caches.Opens)
}

// ProvideDiscovery creates the trader discovery engine.
func ProvideDiscovery(
	cfg *config.Config,
	loc *time.Location,
	pm *polymarket.Client,
	history drepo.HistoryStore,
	pub drepo.Publisher,
	rec *metrics.Recorder,
	log *applogger.Logger,
	caches *MarketCaches,
) *usecase.TraderDiscovery {
	return usecase.NewTraderDiscovery(usecase.DiscoveryConfig{
		LookbackWindows: cfg.Discovery.LookbackWindows,
		WinThreshold:    cfg.Discovery.WinThreshold,
		MinPositionSize: cfg.Discovery.MinPositionSize,
		MinWindows:      cfg.Discovery.MinWindows,
		TopN:            cfg.Discovery.TopN,
		Interval:        cfg.Discovery.Interval,
		Concurrency:     cfg.Discovery.Concurrency,
		WindowLength:    cfg.Window.Length,
		SlugPrefix:      cfg.Market.SlugPrefix,
		Location:        loc,
	}, pm, history, pub, rec, log, caches.Resolutions)
}

// ProvideConsensus creates the consensus aggregator.
func ProvideConsensus(
	cfg *config.Config,
	loc *time.Location,
	discovery *usecase.TraderDiscovery,
	sources []drepo.PositionSource,
	rec *metrics.Recorder,
	log *applogger.Logger,
	caches *MarketCaches,
) *usecase.ConsensusAggregator {
	return usecase.NewConsensusAggregator(usecase.ConsensusConfig{
		Concurrency:  cfg.Consensus.Concurrency,
		WindowLength: cfg.Window.Length,
		SlugPrefix:   cfg.Market.SlugPrefix,
		Location:     loc,
	}, discovery, sources, rec, log, caches.Votes, caches.Positions)
}

// ProvideSnapshotHandler creates the read-only API handler.
func ProvideSnapshotHandler(
	cfg *config.Config,
	log *applogger.Logger,
	scheduler *usecase.WindowLockScheduler,
	consensus *usecase.ConsensusAggregator,
	discovery *usecase.TraderDiscovery,
	history drepo.HistoryStore,
	rec *metrics.Recorder,
) *api.SnapshotHandler {
	var limiter *ratelimit.Limiter
	if cfg.Server.RateLimit.Capacity > 0 {
		limiter = ratelimit.New(cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.PerSecond)
	}
	return api.NewSnapshotHandler(log, scheduler, consensus, discovery, history, rec, limiter)
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(cfg *config.Config, h *api.SnapshotHandler, log *applogger.Logger, reg *prometheus.Registry) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithRegistry(reg))
	}
	return xhttp.NewServer(h, log, opts...)
}

// ProvideResources lists infrastructure clients closed on shutdown.
func ProvideResources(store cache.Store, ch *pkgch.Client, caches *MarketCaches) server.Resources {
	var res server.Resources
	if caches != nil {
		res = append(res, server.Resource{Name: "market_caches", Closer: caches})
	}
	if ch != nil {
		res = append(res, server.Resource{Name: "clickhouse", Closer: ch})
	}
	if c, ok := store.(interface{ Close() error }); ok {
		res = append(res, server.Resource{Name: "store", Closer: c})
	}
	return res
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	scheduler *usecase.WindowLockScheduler,
	discovery *usecase.TraderDiscovery,
	httpServer *xhttp.Server,
	pub drepo.Publisher,
	history drepo.HistoryStore,
	resources server.Resources,
) *server.App {
	return server.New(cfg, log, scheduler, discovery, httpServer, pub, history, resources)
}
