package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	API        APIConfig        `mapstructure:"api"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Poller     PollerConfig     `mapstructure:"poller"`
	Session    SessionConfig    `mapstructure:"session"`
	AI         AIConfig         `mapstructure:"ai"`
	MediaStore MediaStoreConfig `mapstructure:"mediastore"`
	Invoice    InvoiceConfig    `mapstructure:"invoice"`
	Bootstrap  BootstrapConfig  `mapstructure:"bootstrap"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Output     string `mapstructure:"output"` // stdout, console, file or tee
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxFiles   int    `mapstructure:"max_files"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	PoolMin        int32         `mapstructure:"pool_min"`
	PoolMax        int32         `mapstructure:"pool_max"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	Migrate        bool          `mapstructure:"migrate"`
}

// RedisConfig holds the optional Redis connection. An empty Addr disables
// the inbound seen-cache and the dead-letter list.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// APIConfig holds admin HTTP server configuration.
type APIConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// AuthConfig holds admin token verification settings.
type AuthConfig struct {
	SigningKey        string        `mapstructure:"signing_key"`
	Issuer            string        `mapstructure:"issuer"`
	Audience          string        `mapstructure:"audience"`
	AccessTokenExpiry time.Duration `mapstructure:"access_token_expiry"`
}

// GatewayConfig holds the messaging gateway endpoint.
type GatewayConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// QueueConfig holds delivery queue pacing and retry settings.
type QueueConfig struct {
	MinInterval time.Duration `mapstructure:"min_interval"`
	MaxRetries  int           `mapstructure:"max_retries"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

// PollerConfig holds inbound polling settings.
type PollerConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	MaxPages       int           `mapstructure:"max_pages"`
	SeenTTL        time.Duration `mapstructure:"seen_ttl"`
}

// SessionConfig holds order session lifetime settings.
type SessionConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// AIConfig selects the active provider and configures both variants.
type AIConfig struct {
	Active  string           `mapstructure:"active"` // "openai" or "compat"
	Timeout time.Duration    `mapstructure:"timeout"`
	OpenAI  AIProviderConfig `mapstructure:"openai"`
	Compat  AIProviderConfig `mapstructure:"compat"`
}

// AIProviderConfig holds the connection settings of one AI provider.
type AIProviderConfig struct {
	APIKey      string `mapstructure:"api_key"`
	BaseURL     string `mapstructure:"base_url"`
	Model       string `mapstructure:"model"`
	VisionModel string `mapstructure:"vision_model"`
}

// MediaStoreConfig selects where media blobs (invoices, receipt proofs) live.
type MediaStoreConfig struct {
	Type       string `mapstructure:"type"` // local or s3
	Path       string `mapstructure:"path"`
	S3Bucket   string `mapstructure:"s3_bucket"`
	S3Prefix   string `mapstructure:"s3_prefix"`
	S3Endpoint string `mapstructure:"s3_endpoint"`
	S3Region   string `mapstructure:"s3_region"`
}

// InvoiceConfig holds the invoice render service endpoint.
type InvoiceConfig struct {
	RenderURL string        `mapstructure:"render_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// BootstrapConfig seeds the first merchant and its gateway account on
// startup. An empty MerchantPhone disables seeding.
type BootstrapConfig struct {
	MerchantName      string `mapstructure:"merchant_name"`
	MerchantPhone     string `mapstructure:"merchant_phone"`
	AccountName       string `mapstructure:"account_name"`
	AccountCredential string `mapstructure:"account_credential"`
}

// Load reads configuration from the given config directory path.
// It looks for a file named "config.yaml" in that directory.
// Environment variables with prefix WACOMMERCE_ override file values.
// For example, WACOMMERCE_DATABASE_URL overrides database.url.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("WACOMMERCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_files", 5)
	v.SetDefault("logging.max_age_days", 30)

	v.SetDefault("database.pool_min", 2)
	v.SetDefault("database.pool_max", 10)
	v.SetDefault("database.connect_timeout", 5*time.Second)
	v.SetDefault("database.migrate", true)

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", 10*time.Second)
	v.SetDefault("api.write_timeout", 10*time.Second)

	v.SetDefault("auth.issuer", "wa-commerce")
	v.SetDefault("auth.audience", "wa-commerce-admin")
	v.SetDefault("auth.access_token_expiry", time.Hour)

	v.SetDefault("gateway.timeout", 30*time.Second)

	v.SetDefault("queue.min_interval", time.Second/3)
	v.SetDefault("queue.max_retries", 3)
	v.SetDefault("queue.send_timeout", 30*time.Second)

	v.SetDefault("poller.interval", 5*time.Second)
	v.SetDefault("poller.fetch_timeout", 10*time.Second)
	v.SetDefault("poller.max_concurrency", 8)
	v.SetDefault("poller.max_pages", 5)
	v.SetDefault("poller.seen_ttl", 24*time.Hour)

	v.SetDefault("session.ttl", 600*time.Second)
	v.SetDefault("session.sweep_interval", time.Minute)

	v.SetDefault("ai.active", "openai")
	v.SetDefault("ai.timeout", 60*time.Second)
	v.SetDefault("ai.openai.model", "gpt-4o-mini")
	v.SetDefault("ai.openai.vision_model", "gpt-4o-mini")

	v.SetDefault("mediastore.type", "local")
	v.SetDefault("mediastore.path", "./media")

	v.SetDefault("invoice.timeout", 30*time.Second)

	v.SetDefault("bootstrap.account_name", "default")
}
