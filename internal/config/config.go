package config

import (
	"os"
	"strings"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Kafka    KafkaConfig
	Redis    RedisConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MigrationsPath string
}

// KafkaConfig holds Kafka configuration. Enabled is off by default so the
// service runs standalone without a broker.
type KafkaConfig struct {
	Enabled        bool
	Brokers        []string
	ExecutionTopic string
	TradeTopic     string
	GroupID        string
}

// RedisConfig holds Redis configuration for the import dedup cache
type RedisConfig struct {
	Enabled bool
	Addr    string
	DB      int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			DBName:         getEnv("DB_NAME", "tradejournal"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MigrationsPath: getEnv("DB_MIGRATIONS_PATH", "db/migrations"),
		},
		Kafka: KafkaConfig{
			Enabled:        getEnv("KAFKA_ENABLED", "false") == "true",
			Brokers:        strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			ExecutionTopic: getEnv("KAFKA_EXECUTION_TOPIC", "broker-executions"),
			TradeTopic:     getEnv("KAFKA_TRADE_TOPIC", "trade-events"),
			GroupID:        getEnv("KAFKA_GROUP_ID", "trade-journal"),
		},
		Redis: RedisConfig{
			Enabled: getEnv("REDIS_ENABLED", "false") == "true",
			Addr:    getEnv("REDIS_ADDR", "localhost:6379"),
			DB:      0,
		},
	}
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
