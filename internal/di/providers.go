package di

import (
	"context"
	"fmt"
	"time"

	domrepo "WasteFlow/internal/domain/repository"
	domsvc "WasteFlow/internal/domain/service"
	"WasteFlow/internal/handler/api"
	"WasteFlow/internal/handler/websocket"
	internalrepo "WasteFlow/internal/repository"
	"WasteFlow/internal/service/ratelimit"
	"WasteFlow/internal/services/forecast"
	"WasteFlow/internal/services/loader"
	"WasteFlow/internal/services/ml"
	"WasteFlow/internal/services/vision"
	"WasteFlow/internal/usecase"
	"WasteFlow/pkg/cache"
	pkgch "WasteFlow/pkg/clickhouse"
	"WasteFlow/pkg/config"
	xhttp "WasteFlow/pkg/http"
	pkgkafka "WasteFlow/pkg/kafka"
	applogger "WasteFlow/pkg/logger"
	"WasteFlow/pkg/metrics"
	"WasteFlow/pkg/server"
)

// ProvideLogger creates the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: "wasteflow",
	})
}

// ProvideMetrics creates a Prometheus metrics recorder on the default registry.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New(nil)
}

// ProvideCache returns an in-process cache, or a layered cache in front of
// Redis when redis is enabled.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(
			cache.WithMemoryMaxSize(256),
			cache.WithMemoryDefaultTTL(cfg.Forecast.CacheTTL),
			cache.WithMemoryCleanup(time.Minute),
		), nil
	}

	remote, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2, 4*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	l.Info("redis cache connected",
		applogger.String("host", cfg.Redis.Host),
		applogger.Int("port", cfg.Redis.Port))
	return cache.NewLayeredCache(remote,
		cache.WithLayeredMemorySize(256),
		cache.WithLayeredMemoryTTL(time.Minute),
	), nil
}

// ProvideHistoryLoader reads the CSV history with the synthetic generator as fallback.
func ProvideHistoryLoader(cfg *config.Config, l *applogger.Logger) usecase.DatasetLoader {
	var primary domsvc.HistorySource
	if cfg.Data.HistoryCSV != "" {
		primary = loader.NewCSVSource(cfg.Data.HistoryCSV,
			loader.WithNoiseRatio(cfg.Data.NoiseRatio),
			loader.WithSeasonalAmplitude(cfg.Data.Seasonality),
			loader.WithSeed(cfg.Data.Seed),
			loader.WithLogger(l),
		)
	}
	fallback := loader.NewSyntheticGenerator(cfg.Data.SyntheticDays, cfg.Data.Seed)
	return loader.New(primary, fallback, l)
}

// ProvideModelBank creates the per-material model bank.
func ProvideModelBank(cfg *config.Config, l *applogger.Logger, m domrepo.Metrics) *forecast.Bank {
	params := ml.DefaultParams()
	params.Estimators = cfg.Forecast.Estimators
	params.MaxDepth = cfg.Forecast.MaxDepth
	params.Seed = cfg.Forecast.Seed
	params.Workers = cfg.Forecast.Workers

	return forecast.NewBank(
		forecast.WithParams(params),
		forecast.WithSplit(cfg.Forecast.TestRatio, cfg.Forecast.Seed),
		forecast.WithLogger(l),
		forecast.WithMetrics(m),
	)
}

// ProvideClickHouseClient connects to ClickHouse, or returns nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(4, 2),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideSeriesArchive creates the training-series archive on ClickHouse.
// A nil client yields a nil archive.
func ProvideSeriesArchive(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) (domrepo.SeriesArchive, error) {
	if ch == nil {
		return nil, nil
	}
	archive := internalrepo.NewCHSeriesArchive(ch, cfg.ClickHouse.Table, l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := archive.Init(ctx); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return archive, nil
}

// ProvideRecordStore opens the exchange store selected by exchange.backend.
func ProvideRecordStore(cfg *config.Config) (domrepo.RecordStore, error) {
	switch cfg.Exchange.Backend {
	case config.BackendBadger:
		store, err := internalrepo.OpenBadgerStore(cfg.Exchange.StorePath)
		if err != nil {
			return nil, fmt.Errorf("badger store: %w", err)
		}
		return store, nil
	default:
		return internalrepo.NewJSONStore(cfg.Exchange.StorePath), nil
	}
}

// ProvideContractFeed creates the websocket event feed.
func ProvideContractFeed(l *applogger.Logger) *websocket.ContractFeed {
	return websocket.NewContractFeed(l)
}

// ProvideKafkaProducer creates a Kafka producer, or returns nil when disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithTopic(cfg.Kafka.Topic),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithWriteTimeout(cfg.Kafka.WriteTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher fans exchange events out to the websocket feed and,
// when configured, Kafka.
func ProvideEventPublisher(feed *websocket.ContractFeed, producer *pkgkafka.Producer) domrepo.EventPublisher {
	pubs := []domrepo.EventPublisher{feed}
	if producer != nil {
		pubs = append(pubs, internalrepo.NewKafkaPublisher(producer))
	}
	return internalrepo.NewMultiPublisher(pubs...)
}

// ProvideForecastService creates the forecasting use case.
func ProvideForecastService(
	cfg *config.Config,
	bank *forecast.Bank,
	history usecase.DatasetLoader,
	c cache.Service,
	archive domrepo.SeriesArchive,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.ForecastService {
	return usecase.NewForecastService(bank, history, usecase.ForecastConfig{
		ModelDir:       cfg.Forecast.ModelDir,
		Seed7DayAvg:    cfg.Forecast.Seed7DayAvg,
		Seed30DayAvg:   cfg.Forecast.Seed30DayAvg,
		Feedback:       cfg.Forecast.Feedback,
		StrictRegions:  cfg.Forecast.StrictRegions,
		TrainIfMissing: cfg.Forecast.TrainIfMissing,
		CacheTTL:       cfg.Forecast.CacheTTL,
	},
		usecase.WithForecastCache(c),
		usecase.WithSeriesArchive(archive),
		usecase.WithForecastMetrics(m),
		usecase.WithForecastLogger(l),
	)
}

// ProvideExchangeService creates the exchange use case. State is loaded in App.Start.
func ProvideExchangeService(store domrepo.RecordStore, pub domrepo.EventPublisher, m domrepo.Metrics, l *applogger.Logger) *usecase.ExchangeService {
	return usecase.NewExchangeService(store,
		usecase.WithEventPublisher(pub),
		usecase.WithExchangeMetrics(m),
		usecase.WithExchangeLogger(l),
	)
}

// ProvideClassifier returns the vision classifier client, or nil when no URL is configured.
func ProvideClassifier(cfg *config.Config, l *applogger.Logger) domsvc.Classifier {
	if cfg.Classifier.URL == "" {
		return nil
	}
	return vision.New(cfg.Classifier.URL,
		vision.WithClient(xhttp.NewClient(xhttp.WithTimeout(cfg.Classifier.Timeout))),
		vision.WithLogger(l),
		vision.WithRetries(2),
	)
}

// ProvideRateLimiter returns the per-IP limiter, or nil when disabled.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	return ratelimit.New(cfg.RateLimit.Capacity, cfg.RateLimit.Refill)
}

// ProvideHTTPHandler assembles every route handler.
func ProvideHTTPHandler(
	l *applogger.Logger,
	fs *usecase.ForecastService,
	ex *usecase.ExchangeService,
	feed *websocket.ContractFeed,
	classifier domsvc.Classifier,
	archive domrepo.SeriesArchive,
	limiter *ratelimit.Limiter,
) xhttp.Handler {
	return api.NewRouter(
		api.NewHealthHandler(fs, archive),
		api.NewForecastHandler(l, fs),
		api.NewExchangeHandler(l, ex, limiter),
		api.NewClassifyHandler(l, classifier),
		feed,
	)
}

// ProvideHTTPServer creates the echo server.
func ProvideHTTPServer(cfg *config.Config, h xhttp.Handler, l *applogger.Logger) *xhttp.Server {
	return xhttp.NewServer(h, l,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithMetrics(cfg.Metrics.Enabled, cfg.Metrics.Path, cfg.Metrics.SlowThreshold),
	)
}

// ProvideApp creates the application server. Resources close in reverse order:
// publishers first, then the store, archive and cache.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	fs *usecase.ForecastService,
	ex *usecase.ExchangeService,
	srv *xhttp.Server,
	limiter *ratelimit.Limiter,
	c cache.Service,
	archive domrepo.SeriesArchive,
	store domrepo.RecordStore,
	pub domrepo.EventPublisher,
) *server.App {
	resources := []server.Resource{{Name: "cache", Closer: c}}
	if archive != nil {
		resources = append(resources, server.Resource{Name: "clickhouse", Closer: archive})
	}
	resources = append(resources,
		server.Resource{Name: "record store", Closer: store},
		server.Resource{Name: "event publisher", Closer: pub},
	)
	return server.New(cfg, l, fs, ex, srv, limiter, resources...)
}
