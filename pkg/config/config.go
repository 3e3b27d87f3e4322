package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Store backends
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	HTTP      HTTPConfig
	Store     StoreConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	MQTT      MQTTConfig
	Dashboard DashboardConfig
	SMTP      SMTPConfig
	Log       LogConfig
	Timezone  string
}

type HTTPConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxBodyBytes int64
	Advertise    bool
}

type StoreConfig struct {
	Backend    string
	FilePath   string
	SQLitePath string
	RedisKey   string
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	DBName        string
	SSLMode       string
	MigrationsDir string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Enabled         bool
	Brokers         []string
	TopicReadings   string
	TopicAdvisories string
	NumPartitions   int
	AdvisorGroupID  string
	NotifierGroupID string
}

type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
}

// Enabled reports whether an MQTT broker is configured
func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

type DashboardConfig struct {
	User         string
	Password     string
	PasswordHash string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	config := &Config{
		HTTP: HTTPConfig{
			Port:         getEnvAsInt("HTTP_PORT", 5000),
			ReadTimeout:  getEnvAsDuration("HTTP_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getEnvAsDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
			MaxBodyBytes: int64(getEnvAsInt("HTTP_MAX_BODY_BYTES", 1<<20)),
			Advertise:    getEnvAsBool("MDNS_ENABLED", false),
		},
		Store: StoreConfig{
			Backend:    strings.ToLower(getEnv("STORE_BACKEND", BackendFile)),
			FilePath:   getEnv("STORE_FILE_PATH", "data.json"),
			SQLitePath: getEnv("SQLITE_PATH", "data/helmet.db"),
			RedisKey:   getEnv("REDIS_READINGS_KEY", "helmet:readings"),
		},
		Database: DatabaseConfig{
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnvAsInt("DB_PORT", 5432),
			User:          getEnv("DB_USER", "helmet_user"),
			Password:      getEnv("DB_PASSWORD", "helmet_pass"),
			DBName:        getEnv("DB_NAME", "helmet_db"),
			SSLMode:       getEnv("DB_SSLMODE", "disable"),
			MigrationsDir: getEnv("DB_MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Enabled:         getEnvAsBool("KAFKA_ENABLED", false),
			Brokers:         strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicReadings:   getEnv("KAFKA_TOPIC_READINGS", "helmet.readings"),
			TopicAdvisories: getEnv("KAFKA_TOPIC_ADVISORIES", "helmet.advisories"),
			NumPartitions:   getEnvAsInt("KAFKA_NUM_PARTITIONS", 6),
			AdvisorGroupID:  getEnv("KAFKA_ADVISOR_GROUP", "advisor-group"),
			NotifierGroupID: getEnv("KAFKA_NOTIFIER_GROUP", "notification-group"),
		},
		MQTT: MQTTConfig{
			Broker:   getEnv("MQTT_BROKER", ""),
			ClientID: getEnv("MQTT_CLIENT_ID", "helmet-server"),
			Topic:    getEnv("MQTT_TOPIC", "helmets/+/telemetry"),
		},
		Dashboard: DashboardConfig{
			User:         getEnv("DASHBOARD_USER", "admin"),
			Password:     getEnv("DASHBOARD_PASSWORD", "admin123"),
			PasswordHash: getEnv("DASHBOARD_PASSWORD_HASH", ""),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "helmet-monitor@example.com"),
			To:       getEnv("SMTP_TO", "safety-officer@example.com"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Timezone: getEnv("TIMEZONE", "Africa/Nairobi"),
	}

	switch config.Store.Backend {
	case BackendFile, BackendSQLite, BackendPostgres, BackendRedis:
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", config.Store.Backend)
	}

	if _, err := time.LoadLocation(config.Timezone); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", config.Timezone, err)
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
