package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

type ServerConfig struct {
	Host         string
	Port         int
	TLSPort      int
	EnableTLS    bool
	AutoCert     bool
	AutoCertDir  string
	Domain       string
	Email        string
	CertFile     string
	KeyFile      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type KafkaConfig struct {
	Brokers       []string
	MainTopic     string
	BackupTopic   string
	PoisonTopic   string
	ConsumerGroup string
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ElasticsearchConfig struct {
	URL             string
	Username        string
	Password        string
	DeadLetterIndex string
}

type ClickhouseConfig struct {
	URL      string
	Database string
	Username string
	Password string
	// Warehouse mirroring is advisory; the pipeline runs without it.
	Enabled bool
}

type GeocodeConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type RateLimitConfig struct {
	Enabled       bool
	RequestsPerIP int
	Window        time.Duration
}

type PipelineConfig struct {
	MaxRetries    int
	RetryBackoff  time.Duration
	MaxRetryDelay time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

type Config struct {
	Environment   string
	Server        ServerConfig
	Kafka         KafkaConfig
	Scylla        ScyllaConfig
	Redis         RedisConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
	Geocode       GeocodeConfig
	KMS           KMSConfig
	RateLimit     RateLimitConfig
	Pipeline      PipelineConfig
	Logging       LoggingConfig
}

var (
	globalConfig *Config
	once         sync.Once
)

// LoadConfig reads the environment (optionally via .env) into a Config and
// validates required fields eagerly so misconfiguration fails at startup.
func LoadConfig() *Config {
	once.Do(func() {
		_ = godotenv.Load()

		cfg := &Config{
			Environment: getEnv("APP_ENV", "development"),
			Server: ServerConfig{
				Host:         getEnv("SERVER_HOST", "0.0.0.0"),
				Port:         getEnvInt("SERVER_PORT", 8080),
				TLSPort:      getEnvInt("SERVER_TLS_PORT", 8443),
				EnableTLS:    getEnvBool("ENABLE_TLS", false),
				AutoCert:     getEnvBool("AUTO_CERT", false),
				AutoCertDir:  getEnv("AUTO_CERT_DIR", "/var/cache/autocert"),
				Domain:       getEnv("SERVER_DOMAIN", ""),
				Email:        getEnv("SERVER_EMAIL", ""),
				CertFile:     getEnv("TLS_CERT_FILE", ""),
				KeyFile:      getEnv("TLS_KEY_FILE", ""),
				ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
				WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
				IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			},
			Kafka: KafkaConfig{
				Brokers:       getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
				MainTopic:     getEnv("KAFKA_MAIN_TOPIC", "analytics-events"),
				BackupTopic:   getEnv("KAFKA_BACKUP_TOPIC", "analytics-events-backup"),
				PoisonTopic:   getEnv("KAFKA_POISON_TOPIC", "analytics-events-poison"),
				ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "analytics-processor"),
			},
			Scylla: ScyllaConfig{
				Nodes:    getEnvSlice("SCYLLA_NODES", []string{"localhost:9042"}),
				Keyspace: getEnv("SCYLLA_KEYSPACE", "analytics"),
				Username: getEnv("SCYLLA_USERNAME", ""),
				Password: getEnv("SCYLLA_PASSWORD", ""),
			},
			Redis: RedisConfig{
				URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvInt("REDIS_DB", 0),
				PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
			},
			Elasticsearch: ElasticsearchConfig{
				URL:             getEnv("ELASTIC_URL", "http://localhost:9200"),
				Username:        getEnv("ELASTIC_USERNAME", ""),
				Password:        getEnv("ELASTIC_PASSWORD", ""),
				DeadLetterIndex: getEnv("ELASTIC_DEAD_LETTER_INDEX", "analytics-dead-letters"),
			},
			Clickhouse: ClickhouseConfig{
				URL:      getEnv("CLICKHOUSE_URL", "http://localhost:8123"),
				Database: getEnv("CLICKHOUSE_DATABASE", "analytics"),
				Username: getEnv("CLICKHOUSE_USERNAME", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
				Enabled:  getEnvBool("CLICKHOUSE_ENABLED", true),
			},
			Geocode: GeocodeConfig{
				BaseURL: getEnv("GEOCODE_BASE_URL", "https://atlas.microsoft.com"),
				APIKey:  getEnv("GEOCODE_API_KEY", ""),
				Timeout: getEnvDuration("GEOCODE_TIMEOUT", 3*time.Second),
			},
			KMS: KMSConfig{
				Enabled: getEnvBool("KMS_ENABLED", false),
				KeyID:   getEnv("KMS_KEY_ID", ""),
				Region:  getEnv("AWS_REGION", "us-east-1"),
			},
			RateLimit: RateLimitConfig{
				Enabled:       getEnvBool("RATE_LIMIT_ENABLED", true),
				RequestsPerIP: getEnvInt("RATE_LIMIT_REQUESTS_PER_IP", 120),
				Window:        getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
			},
			Pipeline: PipelineConfig{
				MaxRetries:    getEnvInt("PIPELINE_MAX_RETRIES", 3),
				RetryBackoff:  getEnvDuration("PIPELINE_RETRY_BACKOFF", 500*time.Millisecond),
				MaxRetryDelay: getEnvDuration("PIPELINE_MAX_RETRY_DELAY", 5*time.Second),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		}

		if err := cfg.validate(); err != nil {
			panic("invalid configuration: " + err.Error())
		}

		globalConfig = cfg
	})

	return globalConfig
}

// Get returns the loaded configuration, loading it on first use.
func Get() *Config {
	if globalConfig == nil {
		return LoadConfig()
	}
	return globalConfig
}

func (c *Config) validate() error {
	var missing []string

	if len(c.Kafka.Brokers) == 0 {
		missing = append(missing, "KAFKA_BROKERS")
	}
	if c.Kafka.MainTopic == "" || c.Kafka.BackupTopic == "" || c.Kafka.PoisonTopic == "" {
		missing = append(missing, "KAFKA_*_TOPIC")
	}
	if len(c.Scylla.Nodes) == 0 {
		missing = append(missing, "SCYLLA_NODES")
	}
	if c.Scylla.Keyspace == "" {
		missing = append(missing, "SCYLLA_KEYSPACE")
	}
	if c.KMS.Enabled && c.KMS.KeyID == "" {
		missing = append(missing, "KMS_KEY_ID")
	}
	if c.Server.EnableTLS && c.Server.AutoCert && c.Server.Domain == "" {
		missing = append(missing, "SERVER_DOMAIN")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return !c.IsProduction()
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
