package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers      []string
	KafkaGroupID      string
	TenderSyncedTopic string
	NotificationTopic string
	DeliveryAckTopic  string
	NotificationDLQ   string

	// Registry (PNCP consulta API)
	RegistryBaseURL       string
	RegistryListTimeout   time.Duration
	RegistryDetailTimeout time.Duration
	RegistryPageSize      int
	RegistryUserAgent     string

	// Sync engine
	SyncInterval    time.Duration
	SyncLookback    time.Duration
	SyncPageCeiling int
	SyncPageDelay   time.Duration

	// Notifications
	RetrySweepInterval     time.Duration
	NotificationMaxRetries int
	NotificationTTL        time.Duration

	// Monitoring score weights
	ScoreKeywordWeight int
	ScoreValueWeight   int
	ScoreOrgWeight     int

	// Classifier
	ClassifierConfigPath string

	// Caching
	StatsCacheTTL time.Duration
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 4*1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "solutionhub"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "solutionhub123"),
		PostgresDB:       getEnv("POSTGRES_DB", "solutionhub"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:      getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:      getEnv("KAFKA_GROUP_ID", "solutionhub-intelligence"),
		TenderSyncedTopic: getEnv("TENDER_SYNCED_TOPIC", "tender.synced"),
		NotificationTopic: getEnv("NOTIFICATION_TOPIC", "notification.dispatch"),
		DeliveryAckTopic:  getEnv("DELIVERY_ACK_TOPIC", "notification.delivered"),
		NotificationDLQ:   getEnv("NOTIFICATION_DLQ_TOPIC", ""),

		RegistryBaseURL:       getEnv("REGISTRY_BASE_URL", "https://pncp.gov.br/api/consulta"),
		RegistryListTimeout:   getDuration("REGISTRY_LIST_TIMEOUT", 30*time.Second),
		RegistryDetailTimeout: getDuration("REGISTRY_DETAIL_TIMEOUT", 15*time.Second),
		RegistryPageSize:      getIntEnv("REGISTRY_PAGE_SIZE", 100),
		RegistryUserAgent:     getEnv("REGISTRY_USER_AGENT", "SolutionHub/1.0.0"),

		SyncInterval:    getDuration("SYNC_INTERVAL", 30*time.Minute),
		SyncLookback:    getDuration("SYNC_LOOKBACK", 7*24*time.Hour),
		SyncPageCeiling: getIntEnv("SYNC_PAGE_CEILING", 50),
		SyncPageDelay:   getDuration("SYNC_PAGE_DELAY", 500*time.Millisecond),

		RetrySweepInterval:     getDuration("RETRY_SWEEP_INTERVAL", time.Minute),
		NotificationMaxRetries: getIntEnv("NOTIFICATION_MAX_RETRIES", 3),
		NotificationTTL:        getDuration("NOTIFICATION_TTL", 72*time.Hour),

		ScoreKeywordWeight: getIntEnv("SCORE_KEYWORD_WEIGHT", 20),
		ScoreValueWeight:   getIntEnv("SCORE_VALUE_WEIGHT", 30),
		ScoreOrgWeight:     getIntEnv("SCORE_ORG_WEIGHT", 50),

		ClassifierConfigPath: getEnv("CLASSIFIER_CONFIG_PATH", ""),

		StatsCacheTTL: getDuration("STATS_CACHE_TTL", 5*time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return []string{value}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
