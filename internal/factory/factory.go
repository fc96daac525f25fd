package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"analytics-service/internal/analytics"
	"analytics-service/internal/client"
	"analytics-service/internal/config"
	"analytics-service/internal/encryption"
	"analytics-service/internal/enrichment"
	"analytics-service/internal/handler"
	"analytics-service/internal/keys"
	"analytics-service/internal/processor"
	"analytics-service/internal/publisher"
	chrepo "analytics-service/internal/repository/clickhouse"
	redisrepo "analytics-service/internal/repository/redis"
	"analytics-service/internal/repository/scylla"
	"analytics-service/internal/tls"
	"analytics-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	kafkaConsumer    *client.KafkaConsumer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Managers
	keyManager        *keys.KeyManager
	encryptionManager *encryption.Manager

	// Pipeline components, built lazily
	eventRepository scylla.EventRepository
	warehouse       *chrepo.Warehouse
	enricher        enrichment.Enricher
	eventPublisher  *publisher.Publisher
	eventProcessor  *processor.Processor
	eventConsumer   *processor.Consumer
	engine          *analytics.Engine
	rateLimitCache  *redisrepo.RateLimitCache
	eventHandler    *handler.EventHandler

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		tlsConfig := &tls.TLSConfig{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		}
		factory.tlsManager = tls.NewTLSManager(tlsConfig)
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.initializeManagers()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
		util.Bool("clickhouse_mirror", cfg.Clickhouse.Enabled),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health checks
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// Kafka carries every event through the pipeline, so both the producer
	// and the consumer are required.
	if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("kafka producer: %w", err))
	} else {
		f.kafkaProducer = producer
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("kafka health check: %w", err))
		} else {
			util.Info("Kafka producer initialized and healthy")
		}
	}

	if consumer, err := client.NewKafkaConsumer(f.config, f.config.Kafka.MainTopic, f.config.Kafka.ConsumerGroup, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("kafka consumer: %w", err))
	} else {
		f.kafkaConsumer = consumer
	}

	// ScyllaDB
	if scyllaClient, err := scylla.NewScyllaClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
	} else {
		f.scyllaClient = scyllaClient
		if err := f.scyllaClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		} else {
			util.Info("ScyllaDB client initialized and healthy")
		}
	}

	// Redis
	if redisClient, err := client.NewRedisClient(f.config, util.Get()); err != nil {
		util.Warn("Redis initialization failed, rate limiting disabled", util.ErrorField(err))
	} else {
		f.redisClient = redisClient
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			util.Warn("Redis health check failed, rate limiting degraded", util.ErrorField(err))
		} else {
			util.Info("Redis client initialized and healthy")
		}
	}

	// Elasticsearch indexes dead letters for inspection; the poison topic
	// stays authoritative without it.
	if esClient, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
		util.Warn("Elasticsearch initialization failed, dead-letter index disabled", util.ErrorField(err))
	} else {
		f.esClient = esClient
		if err := f.esClient.HealthCheck(); err != nil {
			util.Warn("Elasticsearch health check failed", util.ErrorField(err))
		} else {
			util.Info("Elasticsearch client initialized and healthy")
		}
	}

	// ClickHouse
	if f.config.Clickhouse.Enabled {
		if chClient, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
			util.Warn("ClickHouse initialization failed, warehouse mirror disabled", util.ErrorField(err))
		} else {
			f.clickhouseClient = chClient
			if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
				util.Warn("ClickHouse health check failed", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client initialized and healthy")
			}
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers initializes key derivation and PII encryption
func (f *Factory) initializeManagers() {
	f.keyManager = keys.NewKeyManager()
	f.encryptionManager = encryption.NewManager(f.config)

	util.Info("Managers initialized successfully",
		util.Bool("keys_initialized", f.keyManager != nil),
		util.Bool("encryption_initialized", f.encryptionManager != nil),
	)
}

// ==============================
// Pipeline wiring
// ==============================

func (f *Factory) EventRepository() scylla.EventRepository {
	if f.eventRepository == nil {
		f.eventRepository = scylla.NewEventRepository(f.scyllaClient, f.keyManager, util.Get())
	}
	return f.eventRepository
}

func (f *Factory) Warehouse() *chrepo.Warehouse {
	if f.warehouse == nil && f.clickhouseClient != nil {
		f.warehouse = chrepo.NewWarehouse(f.clickhouseClient)
	}
	return f.warehouse
}

func (f *Factory) Enricher() enrichment.Enricher {
	if f.enricher == nil {
		if f.config.Geocode.APIKey != "" {
			f.enricher = enrichment.NewGeocodeEnricher(&f.config.Geocode)
		} else {
			util.Info("No geocode API key configured, events keep raw coordinates")
			f.enricher = enrichment.NoopEnricher{}
		}
	}
	return f.enricher
}

func (f *Factory) Publisher() *publisher.Publisher {
	if f.eventPublisher == nil {
		main := publisher.NewKafkaSink(f.kafkaProducer, f.config.Kafka.MainTopic)
		backup := publisher.NewKafkaSink(f.kafkaProducer, f.config.Kafka.BackupTopic)
		f.eventPublisher = publisher.NewPublisher(main, backup, util.Get())
	}
	return f.eventPublisher
}

func (f *Factory) Processor() *processor.Processor {
	if f.eventProcessor == nil {
		var mirror processor.Mirror
		if wh := f.Warehouse(); wh != nil {
			mirror = wh
		}
		var pii *encryption.Manager
		if f.config.KMS.Enabled {
			pii = f.encryptionManager
		}
		f.eventProcessor = processor.NewProcessor(f.Enricher(), f.EventRepository(), mirror, pii, util.Get())
	}
	return f.eventProcessor
}

func (f *Factory) Consumer() *processor.Consumer {
	if f.eventConsumer == nil {
		deadLetter := processor.NewPoisonSink(
			f.kafkaProducer,
			f.config.Kafka.PoisonTopic,
			f.esClient,
			f.config.Elasticsearch.DeadLetterIndex,
			util.Get(),
		)
		f.eventConsumer = processor.NewConsumer(f.kafkaConsumer, f.Processor(), deadLetter, &f.config.Pipeline, util.Get())
	}
	return f.eventConsumer
}

func (f *Factory) Engine() *analytics.Engine {
	if f.engine == nil {
		f.engine = analytics.NewEngine(f.EventRepository(), f.keyManager, util.Get())
	}
	return f.engine
}

func (f *Factory) RateLimitCache() *redisrepo.RateLimitCache {
	if f.rateLimitCache == nil && f.redisClient != nil {
		f.rateLimitCache = redisrepo.NewRateLimitCache(f.redisClient)
	}
	return f.rateLimitCache
}

func (f *Factory) EventHandler() *handler.EventHandler {
	if f.eventHandler == nil {
		f.eventHandler = handler.NewEventHandler(
			f.Publisher(),
			f.Engine(),
			f.RateLimitCache(),
			&f.config.RateLimit,
			util.Get(),
		)
	}
	return f.eventHandler
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	} else {
		healthErrors["kafka"] = fmt.Errorf("kafka producer not initialized")
	}

	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(); err != nil {
			healthErrors["scylla"] = err
		}
	} else {
		healthErrors["scylla"] = fmt.Errorf("scylla client not initialized")
	}

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	}

	if f.esClient != nil {
		if err := f.esClient.HealthCheck(); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	return healthErrors
}

// IsHealthy reports whether the required backends (Kafka and Scylla) respond.
// Redis, Elasticsearch and ClickHouse are advisory.
func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "redis")
	delete(healthErrors, "elasticsearch")
	delete(healthErrors, "clickhouse")
	return len(healthErrors) == 0
}

// ==============================
// Shutdown
// ==============================

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.kafkaConsumer != nil {
			if err := f.kafkaConsumer.Close(); err != nil {
				util.Error("Failed to close Kafka consumer", util.ErrorField(err))
			}
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
			util.Info("Elasticsearch client closed")
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) ScyllaClient() *scylla.ScyllaClient {
	return f.scyllaClient
}

func (f *Factory) EncryptionManager() *encryption.Manager {
	return f.encryptionManager
}

func (f *Factory) KeyManager() *keys.KeyManager {
	return f.keyManager
}
