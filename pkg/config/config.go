package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App             AppConfig             `mapstructure:"app"`
	Server          ServerConfig          `mapstructure:"server"`
	Database        DatabaseConfig        `mapstructure:"database"`
	Redis           RedisConfig           `mapstructure:"redis"`
	Kafka           KafkaConfig           `mapstructure:"kafka"`
	Stripe          StripeConfig          `mapstructure:"stripe"`
	ReAuthorization ReAuthorizationConfig `mapstructure:"re_authorization"`
	Notification    NotificationConfig    `mapstructure:"notification"`
	Payment         PaymentConfig         `mapstructure:"payment"`
	OTel            OTelConfig            `mapstructure:"otel"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	Debug       bool   `mapstructure:"debug"`
	Version     string `mapstructure:"version"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// PublicURL is the externally reachable root used when registering
	// webhook endpoints with the processor.
	PublicURL    string        `mapstructure:"public_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig holds Kafka/Redpanda connection settings
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	ClientID      string   `mapstructure:"client_id"`
}

// StripeConfig holds Stripe API credentials and behavior flags
type StripeConfig struct {
	PublicKey         string `mapstructure:"public_key"`
	SecretKey         string `mapstructure:"secret_key"`
	Locale            string `mapstructure:"locale"`
	EnableMonitoring  bool   `mapstructure:"enable_monitoring"`
	PaymentMethodName string `mapstructure:"payment_method_name"`
}

// ReAuthorizationConfig holds settings for the authorization-hold renewal loop
type ReAuthorizationConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	CreatedLaterThan   time.Duration `mapstructure:"created_later_than"`
	CreatedEarlierThan time.Duration `mapstructure:"created_earlier_than"`
	BufferSize         int           `mapstructure:"buffer_size"`
	ChunkSize          int           `mapstructure:"chunk_size"`
	ScheduleInterval   time.Duration `mapstructure:"schedule_interval"`
	Recipients         []string      `mapstructure:"recipients"`
}

// NotificationConfig holds settings for the failure-notification queue
type NotificationConfig struct {
	Topic     string `mapstructure:"topic"`
	FromEmail string `mapstructure:"from_email"`
}

// PaymentConfig holds charge amount bounds in major units. Zero disables a
// bound.
type PaymentConfig struct {
	MinAmount float64 `mapstructure:"min_amount"`
	MaxAmount float64 `mapstructure:"max_amount"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	CollectorAddr string  `mapstructure:"collector_addr"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")

	// .env is optional, environment variables may carry everything
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			_ = err
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	if err := bindConfig(v, cfg); err != nil {
		return nil, fmt.Errorf("failed to bind config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("APP_NAME", "stripe-service")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", true)
	v.SetDefault("APP_VERSION", "1.0.0")

	// Server defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8086)
	v.SetDefault("SERVER_PUBLIC_URL", "http://localhost:8086")
	v.SetDefault("SERVER_READ_TIMEOUT", "30s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	// Database defaults
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_DBNAME", "payments_db")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_CONNS", 50)
	v.SetDefault("DATABASE_MIN_CONNS", 5)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DATABASE_CONN_MAX_IDLE_TIME", "30m")

	// Redis defaults
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 50)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 5)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")

	// Kafka defaults
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_CONSUMER_GROUP", "stripe-service")
	v.SetDefault("KAFKA_CLIENT_ID", "stripe-service")

	// Stripe defaults
	v.SetDefault("STRIPE_PUBLIC_KEY", "")
	v.SetDefault("STRIPE_SECRET_KEY", "")
	v.SetDefault("STRIPE_LOCALE", "en")
	v.SetDefault("STRIPE_ENABLE_MONITORING", true)
	v.SetDefault("STRIPE_PAYMENT_METHOD_NAME", "stripe_card")

	// Re-authorization defaults: a rolling 4-hour window approaching the
	// 7-day authorization-hold expiry.
	v.SetDefault("RE_AUTHORIZATION_ENABLED", true)
	v.SetDefault("RE_AUTHORIZATION_CREATED_LATER_THAN", "168h")
	v.SetDefault("RE_AUTHORIZATION_CREATED_EARLIER_THAN", "164h")
	v.SetDefault("RE_AUTHORIZATION_BUFFER_SIZE", 200)
	v.SetDefault("RE_AUTHORIZATION_CHUNK_SIZE", 100)
	v.SetDefault("RE_AUTHORIZATION_SCHEDULE_INTERVAL", "1h")
	v.SetDefault("RE_AUTHORIZATION_RECIPIENTS", "")

	// Notification defaults
	v.SetDefault("NOTIFICATION_TOPIC", "notification.email")
	v.SetDefault("NOTIFICATION_FROM_EMAIL", "no-reply@localhost")

	// Payment defaults
	v.SetDefault("PAYMENT_MIN_AMOUNT", 0.0)
	v.SetDefault("PAYMENT_MAX_AMOUNT", 0.0)

	// OTel defaults
	v.SetDefault("OTEL_ENABLED", true)
	v.SetDefault("OTEL_SERVICE_NAME", "stripe-service")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)
}

func bindConfig(v *viper.Viper, cfg *Config) error {
	// App
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")
	cfg.App.Version = v.GetString("APP_VERSION")

	// Server
	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.PublicURL = v.GetString("SERVER_PUBLIC_URL")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")

	// Database
	cfg.Database.Host = v.GetString("DATABASE_HOST")
	cfg.Database.Port = v.GetInt("DATABASE_PORT")
	cfg.Database.User = v.GetString("DATABASE_USER")
	cfg.Database.Password = v.GetString("DATABASE_PASSWORD")
	cfg.Database.DBName = v.GetString("DATABASE_DBNAME")
	cfg.Database.SSLMode = v.GetString("DATABASE_SSLMODE")
	cfg.Database.MaxConns = v.GetInt32("DATABASE_MAX_CONNS")
	cfg.Database.MinConns = v.GetInt32("DATABASE_MIN_CONNS")
	cfg.Database.ConnMaxLifetime = v.GetDuration("DATABASE_CONN_MAX_LIFETIME")
	cfg.Database.ConnMaxIdleTime = v.GetDuration("DATABASE_CONN_MAX_IDLE_TIME")

	// Redis
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.MinIdleConns = v.GetInt("REDIS_MIN_IDLE_CONNS")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")

	// Kafka
	brokersStr := v.GetString("KAFKA_BROKERS")
	cfg.Kafka.Brokers = strings.Split(brokersStr, ",")
	cfg.Kafka.ConsumerGroup = v.GetString("KAFKA_CONSUMER_GROUP")
	cfg.Kafka.ClientID = v.GetString("KAFKA_CLIENT_ID")

	// Stripe
	cfg.Stripe.PublicKey = v.GetString("STRIPE_PUBLIC_KEY")
	cfg.Stripe.SecretKey = v.GetString("STRIPE_SECRET_KEY")
	cfg.Stripe.Locale = v.GetString("STRIPE_LOCALE")
	cfg.Stripe.EnableMonitoring = v.GetBool("STRIPE_ENABLE_MONITORING")
	cfg.Stripe.PaymentMethodName = v.GetString("STRIPE_PAYMENT_METHOD_NAME")

	// Re-authorization
	cfg.ReAuthorization.Enabled = v.GetBool("RE_AUTHORIZATION_ENABLED")
	cfg.ReAuthorization.CreatedLaterThan = v.GetDuration("RE_AUTHORIZATION_CREATED_LATER_THAN")
	cfg.ReAuthorization.CreatedEarlierThan = v.GetDuration("RE_AUTHORIZATION_CREATED_EARLIER_THAN")
	cfg.ReAuthorization.BufferSize = v.GetInt("RE_AUTHORIZATION_BUFFER_SIZE")
	cfg.ReAuthorization.ChunkSize = v.GetInt("RE_AUTHORIZATION_CHUNK_SIZE")
	cfg.ReAuthorization.ScheduleInterval = v.GetDuration("RE_AUTHORIZATION_SCHEDULE_INTERVAL")
	if recipients := v.GetString("RE_AUTHORIZATION_RECIPIENTS"); recipients != "" {
		cfg.ReAuthorization.Recipients = strings.Split(recipients, ",")
	}

	// Notification
	cfg.Notification.Topic = v.GetString("NOTIFICATION_TOPIC")
	cfg.Notification.FromEmail = v.GetString("NOTIFICATION_FROM_EMAIL")

	// Payment
	cfg.Payment.MinAmount = v.GetFloat64("PAYMENT_MIN_AMOUNT")
	cfg.Payment.MaxAmount = v.GetFloat64("PAYMENT_MAX_AMOUNT")

	// OTel
	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.SampleRatio = v.GetFloat64("OTEL_SAMPLE_RATIO")

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.ReAuthorization.CreatedLaterThan <= c.ReAuthorization.CreatedEarlierThan {
		return fmt.Errorf("re-authorization window is empty: created_later_than (%s) must exceed created_earlier_than (%s)",
			c.ReAuthorization.CreatedLaterThan, c.ReAuthorization.CreatedEarlierThan)
	}

	return nil
}

// ValidateStripe validates that Stripe credentials are present.
// Called before constructing the gateway so a misconfigured service
// fails at startup, not on the first outbound call.
func (c *Config) ValidateStripe() error {
	if c.Stripe.SecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is required")
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
