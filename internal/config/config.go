package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Port        int    `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
	// Store selects the persistence gateway: "postgres" or "memory".
	Store string `mapstructure:"store"`

	DB struct {
		URL            string `mapstructure:"url"`
		MaxOpenConns   int    `mapstructure:"max_open_conns"`
		LogQueries     bool   `mapstructure:"log_queries"`
		MigrateOnStart bool   `mapstructure:"migrate_on_start"`
	} `mapstructure:"db"`

	Session struct {
		Secret string `mapstructure:"secret"`
	} `mapstructure:"session"`

	Auth struct {
		CallbackBaseURL string `mapstructure:"callback_base_url"`
		FrontendURL     string `mapstructure:"frontend_url"`
		Google          struct {
			Key    string `mapstructure:"key"`
			Secret string `mapstructure:"secret"`
		} `mapstructure:"google"`
		GitHub struct {
			Key    string `mapstructure:"key"`
			Secret string `mapstructure:"secret"`
		} `mapstructure:"github"`
	} `mapstructure:"auth"`

	Storage struct {
		// Backend is "s3" or "memory".
		Backend       string `mapstructure:"backend"`
		Bucket        string `mapstructure:"bucket"`
		Region        string `mapstructure:"region"`
		EndpointURL   string `mapstructure:"endpoint_url"`
		EncryptionKey string `mapstructure:"encryption_key"`
	} `mapstructure:"storage"`

	Invitations struct {
		TTL       time.Duration `mapstructure:"ttl"`
		AcceptURL string        `mapstructure:"accept_url"`
	} `mapstructure:"invitations"`

	CORS struct {
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	} `mapstructure:"cors"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

// Older deployments configure these through the unprefixed names.
var legacyEnv = map[string]string{
	"port":                   "PORT",
	"db.url":                 "DB_STRING",
	"session.secret":         "SESSION_SECRET",
	"auth.frontend_url":      "FRONTEND_URL",
	"storage.bucket":         "AWS_S3_BUCKET",
	"storage.region":         "AWS_REGION",
	"storage.endpoint_url":   "AWS_ENDPOINT_URL",
	"storage.encryption_key": "DOCUMENT_ENCRYPTION_KEY",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("environment", "development")
	v.SetDefault("store", "postgres")
	v.SetDefault("db.url", "")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.log_queries", false)
	v.SetDefault("db.migrate_on_start", false)
	v.SetDefault("session.secret", "")
	v.SetDefault("auth.callback_base_url", "http://localhost:8080")
	v.SetDefault("auth.frontend_url", "http://localhost:3000")
	v.SetDefault("auth.google.key", "")
	v.SetDefault("auth.google.secret", "")
	v.SetDefault("auth.github.key", "")
	v.SetDefault("auth.github.secret", "")
	v.SetDefault("storage.backend", "s3")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint_url", "")
	v.SetDefault("storage.encryption_key", "")
	v.SetDefault("invitations.ttl", "168h")
	v.SetDefault("invitations.accept_url", "http://localhost:3000/invite")
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// New returns a viper instance with defaults and environment binding set up.
// FLOWDESK_DB_URL overrides db.url, and so on.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("FLOWDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		prefixed := "FLOWDESK_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, prefixed, env)
	}
	return v
}

// Load reads configFile (or config.yaml from . or ./config when empty) on top
// of the defaults and environment. A missing default config file is not an error.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Auth.CallbackBaseURL = strings.TrimRight(strings.TrimSpace(cfg.Auth.CallbackBaseURL), "/")
	cfg.Auth.FrontendURL = strings.TrimRight(strings.TrimSpace(cfg.Auth.FrontendURL), "/")

	return &cfg, nil
}

// IsProduction reports whether secure cookies and strict validation apply.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate reports every missing or malformed setting for the selected
// store and storage backend.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store {
	case "postgres":
		if c.DB.URL == "" {
			errs = append(errs, errors.New("db.url is required when store is postgres"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("store must be postgres or memory, got %q", c.Store))
	}

	switch c.Storage.Backend {
	case "s3":
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("storage.bucket is required when storage.backend is s3"))
		}
		if _, err := c.EncryptionKey(); err != nil {
			errs = append(errs, err)
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be s3 or memory, got %q", c.Storage.Backend))
	}

	if c.IsProduction() && len(c.Session.Secret) < 32 {
		errs = append(errs, errors.New("session.secret must be at least 32 characters in production"))
	}
	if c.Invitations.TTL <= 0 {
		errs = append(errs, errors.New("invitations.ttl must be positive"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}

	return errors.Join(errs...)
}

// EncryptionKey decodes the 64 hex character AES-256 key for template bodies.
func (c *Config) EncryptionKey() ([]byte, error) {
	if c.Storage.EncryptionKey == "" {
		return nil, errors.New("storage.encryption_key is required (64 hex characters)")
	}
	key, err := hex.DecodeString(c.Storage.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid storage.encryption_key format: %w", err)
	}
	if len(key) != 32 {
		return nil, errors.New("storage.encryption_key must be 32 bytes (64 hex characters)")
	}
	return key, nil
}
