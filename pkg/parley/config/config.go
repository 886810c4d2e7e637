package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Port            int           `yaml:"port"`
	BaseURL         string        `yaml:"base_url"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // sqlite or postgres
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type UploadsConfig struct {
	Dir       string `yaml:"dir"`
	URLPrefix string `yaml:"url_prefix"`
	MaxBytes  int64  `yaml:"max_bytes"`
}

type PushConfig struct {
	Enabled         bool   `yaml:"enabled"`
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"` // text or json
	ErrorFile string `yaml:"error_file"`
	SentryDSN string `yaml:"sentry_dsn"`
}

type TimeoutsConfig struct {
	Transaction  time.Duration `yaml:"transaction"`
	Notification time.Duration `yaml:"notification"`
}

type Config struct {
	Environment string         `yaml:"environment"`
	Server      ServerConfig   `yaml:"server"`
	Database    DatabaseConfig `yaml:"database"`
	Auth        AuthConfig     `yaml:"auth"`
	Uploads     UploadsConfig  `yaml:"uploads"`
	Push        PushConfig     `yaml:"push"`
	Redis       RedisConfig    `yaml:"redis"`
	Logging     LoggingConfig  `yaml:"logging"`
	Timeouts    TimeoutsConfig `yaml:"timeouts"`
}

const devJWTSecret = "parley-dev-secret-change-in-production"

// Default returns the configuration used when nothing else is provided
func Default() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port:            8080,
			BaseURL:         "http://localhost:8080",
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			DSN:          "parley.db",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Auth: AuthConfig{
			JWTSecret: devJWTSecret,
			TokenTTL:  24 * time.Hour,
		},
		Uploads: UploadsConfig{
			Dir:       "./uploads",
			URLPrefix: "/uploads",
			MaxBytes:  10 << 20,
		},
		Redis: RedisConfig{
			Address: "localhost:6379",
			Channel: "parley:broadcast",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			ErrorFile: "logs/errors.log",
		},
		Timeouts: TimeoutsConfig{
			Transaction:  10 * time.Second,
			Notification: 5 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, a .env
// file and finally the process environment. Later sources win.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config file: %w", err)
		}
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Missing .env is fine
	_ = godotenv.Load()

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Environment = getEnv("PARLEY_ENV", cfg.Environment)

	cfg.Server.Port = getEnvAsInt("PORT", cfg.Server.Port)
	cfg.Server.BaseURL = getEnv("PARLEY_BASE_URL", cfg.Server.BaseURL)
	if origins := getEnv("PARLEY_ALLOWED_ORIGINS", ""); origins != "" {
		cfg.Server.AllowedOrigins = strings.Split(origins, ",")
	}

	cfg.Database.Driver = getEnv("PARLEY_DB_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = getEnv("PARLEY_DB_DSN", cfg.Database.DSN)
	cfg.Database.MaxOpenConns = getEnvAsInt("PARLEY_DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = getEnvAsInt("PARLEY_DB_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.TokenTTL = getEnvAsDuration("PARLEY_TOKEN_TTL", cfg.Auth.TokenTTL)

	cfg.Uploads.Dir = getEnv("PARLEY_UPLOAD_DIR", cfg.Uploads.Dir)
	cfg.Uploads.MaxBytes = int64(getEnvAsInt("PARLEY_UPLOAD_MAX_BYTES", int(cfg.Uploads.MaxBytes)))

	cfg.Push.Enabled = getEnvAsBool("PARLEY_PUSH_ENABLED", cfg.Push.Enabled)
	cfg.Push.ProjectID = getEnv("FCM_PROJECT_ID", cfg.Push.ProjectID)
	cfg.Push.CredentialsFile = getEnv("GOOGLE_APPLICATION_CREDENTIALS", cfg.Push.CredentialsFile)

	cfg.Redis.Enabled = getEnvAsBool("PARLEY_REDIS_ENABLED", cfg.Redis.Enabled)
	cfg.Redis.Address = getEnv("REDIS_ADDRESS", cfg.Redis.Address)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.ErrorFile = getEnv("PARLEY_ERROR_LOG", cfg.Logging.ErrorFile)
	cfg.Logging.SentryDSN = getEnv("SENTRY_DSN", cfg.Logging.SentryDSN)

	cfg.Timeouts.Transaction = getEnvAsDuration("PARLEY_TX_TIMEOUT", cfg.Timeouts.Transaction)
	cfg.Timeouts.Notification = getEnvAsDuration("PARLEY_PUSH_TIMEOUT", cfg.Timeouts.Notification)
}

// Validate checks that the configuration can be used to start the server
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database dsn is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("jwt secret is required"))
	}
	if c.IsProduction() && c.Auth.JWTSecret == devJWTSecret {
		errs = append(errs, errors.New("JWT_SECRET must be set in production"))
	}
	if c.Push.Enabled && (c.Push.ProjectID == "" || c.Push.CredentialsFile == "") {
		errs = append(errs, errors.New("push notifications need a project id and a credentials file"))
	}
	if c.Timeouts.Transaction <= 0 || c.Timeouts.Notification <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return fallback
	}
	return value
}
