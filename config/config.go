package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort int
	BaseURL    string
	Testing    bool

	Database  DatabaseConfig
	Auth      AuthConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Mail      MailConfig
	Storage   StorageConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

// AuthConfig holds the token signing secret and per-purpose TTLs.
type AuthConfig struct {
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	VerifyTokenTTL  time.Duration
	ResetTokenTTL   time.Duration
	BcryptCost      int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RateLimitConfig holds per-route-class limits. Limits and the window length
// are deployment configuration; a relaxed table is swapped in under test mode.
type RateLimitConfig struct {
	AuthLimit     int
	ContactsLimit int
	DefaultLimit  int
	Window        time.Duration
	FailOpen      bool
}

type MailConfig struct {
	// Backend selects the message broker used to dispatch email jobs:
	// "rabbitmq" or "pubsub". Empty disables email delivery.
	Backend  string
	Queue    string
	From     string
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
	SMTP     SMTPConfig
}

// SMTPConfig configures the delivery worker that drains the email queue.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

type StorageConfig struct {
	// Backend selects the object store used for avatars: "minio" or "gcs".
	// Empty disables avatar uploads.
	Backend   string
	PublicURL string
	Minio     MinioConfig
	GCS       GCSConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "contactbook"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "contactbook_db"),
		UseSSL:   getEnvBool("DB_USE_SSL", false),
	}

	authConfig := AuthConfig{
		JWTSecret:       getEnv("JWT_SECRET", ""),
		AccessTokenTTL:  getEnvDuration("ACCESS_TOKEN_TTL", 30*time.Minute),
		RefreshTokenTTL: getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		VerifyTokenTTL:  getEnvDuration("VERIFY_TOKEN_TTL", 24*time.Hour),
		ResetTokenTTL:   getEnvDuration("RESET_TOKEN_TTL", 30*time.Minute),
		BcryptCost:      getEnvInt("BCRYPT_COST", 0),
	}

	redisConfig := RedisConfig{
		Host:     getEnv("REDIS_HOST", "localhost"),
		Port:     getEnvInt("REDIS_PORT", 6379),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
	}

	testing := getEnvBool("TESTING", false)

	rateLimitConfig := RateLimitConfig{
		AuthLimit:     getEnvInt("RATE_LIMIT_AUTH", 5),
		ContactsLimit: getEnvInt("RATE_LIMIT_CONTACTS", 10),
		DefaultLimit:  getEnvInt("RATE_LIMIT_DEFAULT", 60),
		Window:        getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		FailOpen:      getEnvBool("RATE_LIMIT_FAIL_OPEN", true),
	}
	if testing {
		// Relaxed table so test suites are not throttled.
		rateLimitConfig.AuthLimit = getEnvInt("RATE_LIMIT_AUTH", 1000)
		rateLimitConfig.ContactsLimit = getEnvInt("RATE_LIMIT_CONTACTS", 1000)
		rateLimitConfig.DefaultLimit = getEnvInt("RATE_LIMIT_DEFAULT", 1000)
	}

	mailConfig := MailConfig{
		Backend: strings.ToLower(getEnv("MAIL_BACKEND", "")),
		Queue:   getEnv("MAIL_QUEUE", "emails"),
		From:    getEnv("MAIL_FROM", "noreply@contactbook.local"),
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
			QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
			PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH_COUNT", 0),
		},
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("MAIL_SERVER", ""),
			Port:     getEnvInt("MAIL_PORT", 587),
			Username: getEnv("MAIL_USERNAME", ""),
			Password: getEnv("MAIL_PASSWORD", ""),
		},
	}

	storageConfig := StorageConfig{
		Backend:   strings.ToLower(getEnv("STORAGE_BACKEND", "")),
		PublicURL: getEnv("STORAGE_PUBLIC_URL", ""),
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "avatars"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			Bucket:          getEnv("GCS_BUCKET", ""),
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
	}

	serverPort := getEnvInt("SERVER_PORT", 8080)

	return Config{
		ServerPort: serverPort,
		BaseURL:    getEnv("BASE_URL", fmt.Sprintf("http://localhost:%d", serverPort)),
		Testing:    testing,
		Database:   dbConfig,
		Auth:       authConfig,
		Redis:      redisConfig,
		RateLimit:  rateLimitConfig,
		Mail:       mailConfig,
		Storage:    storageConfig,
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		fmt.Sscanf(valueStr, "%d", &value)
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		return strings.EqualFold(valueStr, "true") || valueStr == "1"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
