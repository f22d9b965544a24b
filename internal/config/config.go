package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	JWT          JWTConfig
	Storage      StorageConfig
	Tracing      TracingConfig `mapstructure:"tracing"`
	Redis        RedisConfig
	Payment      PaymentConfig
	Certificate  CertificateConfig
	Notification NotificationConfig
	Reconcile    ReconcileConfig
	CORS         CORSConfig      `mapstructure:"cors"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"`
	MigrateOnly  bool `mapstructure:"-"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Driver    string
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
	// sqlite 文件路径
	Path      string
	LogLevel  string        `mapstructure:"log_level"`
	TxTimeout time.Duration `mapstructure:"tx_timeout"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type StorageConfig struct {
	Type          string        `mapstructure:"type"`
	LocalPath     string        `mapstructure:"local_path"`
	PublicBaseURL string        `mapstructure:"public_base_url"`
	UploadTimeout time.Duration `mapstructure:"upload_timeout"`
	MinioEndpoint string        `mapstructure:"minio_endpoint"`
	MinioAccessID string        `mapstructure:"minio_access_key"`
	MinioSecret   string        `mapstructure:"minio_secret_key"`
	MinioBucket   string        `mapstructure:"minio_bucket"`
	MinioSecure   bool          `mapstructure:"minio_secure"`
	OSSEndpoint   string        `mapstructure:"oss_endpoint"`
	OSSAccessKey  string        `mapstructure:"oss_access_key"`
	OSSSecretKey  string        `mapstructure:"oss_secret_key"`
	OSSBucket     string        `mapstructure:"oss_bucket"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	// 已处理支付的缓存时长
	ProcessedTTL time.Duration `mapstructure:"processed_ttl"`
}

// PaymentConfig 支付网关配置；WebhookSecret 用于验证回调签名
type PaymentConfig struct {
	Provider      string        `mapstructure:"provider"`
	BaseURL       string        `mapstructure:"base_url"`
	KeyID         string        `mapstructure:"key_id"`
	KeySecret     string        `mapstructure:"key_secret"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryCount    int           `mapstructure:"retry_count"`
}

type CertificateConfig struct {
	// 证书资格的唯一及格线，所有路径共用
	PassThreshold float64 `mapstructure:"pass_threshold"`
	IDPrefix      string  `mapstructure:"id_prefix"`
	IssuerName    string  `mapstructure:"issuer_name"`
}

type NotificationConfig struct {
	SendGridAPIKey string `mapstructure:"sendgrid_api_key"`
	FromName       string `mapstructure:"from_name"`
	FromEmail      string `mapstructure:"from_email"`
}

type ReconcileConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Schedule  string `mapstructure:"schedule"`
	MaxTries  int    `mapstructure:"max_tries"`
	BatchSize int    `mapstructure:"batch_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parsetime", true)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.tx_timeout", 10*time.Second)

	v.SetDefault("jwt.expire_hours", 24)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "uploads")
	v.SetDefault("storage.upload_timeout", 30*time.Second)

	v.SetDefault("redis.processed_ttl", 24*time.Hour)

	v.SetDefault("payment.provider", "razorpay")
	v.SetDefault("payment.base_url", "https://api.razorpay.com/v1")
	v.SetDefault("payment.timeout", 10*time.Second)
	v.SetDefault("payment.retry_count", 2)

	v.SetDefault("certificate.pass_threshold", 75)
	v.SetDefault("certificate.id_prefix", "CM")
	v.SetDefault("certificate.issuer_name", "CourseMart Academy")

	v.SetDefault("notification.from_name", "CourseMart")

	v.SetDefault("reconcile.enabled", true)
	v.SetDefault("reconcile.schedule", "@every 5m")
	v.SetDefault("reconcile.max_tries", 5)
	v.SetDefault("reconcile.batch_size", 50)

	v.SetDefault("rate_limit.max_requests", 6000)
	v.SetDefault("rate_limit.window_minutes", 1)
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("COURSEMART")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Database
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")

	// Payment
	v.BindEnv("payment.key_id", "PAYMENT_KEY_ID")
	v.BindEnv("payment.key_secret", "PAYMENT_KEY_SECRET")
	v.BindEnv("payment.webhook_secret", "PAYMENT_WEBHOOK_SECRET")

	// Storage
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	v.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("storage.minio_bucket", "MINIO_BUCKET")
	v.BindEnv("storage.oss_endpoint", "OSS_ENDPOINT")
	v.BindEnv("storage.oss_access_key", "OSS_ACCESS_KEY")
	v.BindEnv("storage.oss_secret_key", "OSS_SECRET_KEY")
	v.BindEnv("storage.oss_bucket", "OSS_BUCKET")

	// Notification
	v.BindEnv("notification.sendgrid_api_key", "SENDGRID_API_KEY")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Payment.WebhookSecret == "" {
		return errors.New("payment.webhook_secret is required")
	}
	if c.Certificate.PassThreshold <= 0 || c.Certificate.PassThreshold > 100 {
		return fmt.Errorf("certificate.pass_threshold must be in (0, 100], got %v", c.Certificate.PassThreshold)
	}
	if c.Server.Mode == "release" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(c.JWT.Secret))
	}
	return nil
}
