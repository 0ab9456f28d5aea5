package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"

	BlobBackendMemory = "memory"
	BlobBackendMinio  = "minio"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	StoreBackend     string        `mapstructure:"STORE_BACKEND"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	DBSchema         string        `mapstructure:"DB_SCHEMA"`
	RedisURL         string        `mapstructure:"REDIS_URL"`
	IdentityCacheTTL time.Duration `mapstructure:"IDENTITY_CACHE_TTL"`
	BlobBackend      string        `mapstructure:"BLOB_BACKEND"`
	MinioEndpoint    string        `mapstructure:"MINIO_ENDPOINT"`
	MinioAccessKey   string        `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey   string        `mapstructure:"MINIO_SECRET_KEY"`
	MinioBucket      string        `mapstructure:"MINIO_BUCKET"`
	MinioUseSSL      bool          `mapstructure:"MINIO_USE_SSL"`
	AuthSigningKey   string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer       string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience     string        `mapstructure:"AUTH_AUDIENCE"`
	BodyLimit        string        `mapstructure:"BODY_LIMIT"`
	RequestTimeout   time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	RateLimitRPS     float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int           `mapstructure:"RATE_LIMIT_BURST"`
	DefaultTypes     []string      `mapstructure:"HANDLER_TYPES_DEFAULT"`
	CDATypes         []string      `mapstructure:"HANDLER_TYPES_CDA"`
}

var envKeys = []string{
	"PORT",
	"ENV",
	"STORE_BACKEND",
	"DATABASE_URL",
	"DB_MAX_CONNS",
	"DB_MIN_CONNS",
	"DB_SCHEMA",
	"REDIS_URL",
	"IDENTITY_CACHE_TTL",
	"BLOB_BACKEND",
	"MINIO_ENDPOINT",
	"MINIO_ACCESS_KEY",
	"MINIO_SECRET_KEY",
	"MINIO_BUCKET",
	"MINIO_USE_SSL",
	"AUTH_SIGNING_KEY",
	"AUTH_ISSUER",
	"AUTH_AUDIENCE",
	"BODY_LIMIT",
	"REQUEST_TIMEOUT",
	"RATE_LIMIT_RPS",
	"RATE_LIMIT_BURST",
	"HANDLER_TYPES_DEFAULT",
	"HANDLER_TYPES_CDA",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_BACKEND", StoreBackendPostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DB_SCHEMA", "shr")
	v.SetDefault("IDENTITY_CACHE_TTL", "10m")
	v.SetDefault("BLOB_BACKEND", BlobBackendMemory)
	v.SetDefault("MINIO_BUCKET", "shr-documents")
	v.SetDefault("BODY_LIMIT", "10M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("HANDLER_TYPES_DEFAULT", "text/plain,application/json,application/xml,application/pdf,image/png,image/jpeg")
	v.SetDefault("HANDLER_TYPES_CDA", "application/xml+cda,text/xml+cda")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Comma separated lists arrive as a single element when set through the environment.
	cfg.DefaultTypes = splitList(v.GetString("HANDLER_TYPES_DEFAULT"))
	cfg.CDATypes = splitList(v.GetString("HANDLER_TYPES_CDA"))

	if cfg.StoreBackend == StoreBackendPostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: AUTH_SIGNING_KEY is empty, bearer tokens are not checked.")
		log.Println("WARNING: Do NOT expose this configuration to other systems.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AuthEnabled reports whether bearer tokens are verified on the exchange endpoints.
func (c *Config) AuthEnabled() bool {
	return c.AuthSigningKey != ""
}

// Validate checks that the configuration is safe to run. Production requires a
// token signing key; the minio blob backend requires an endpoint and credentials.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreBackendPostgres, StoreBackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StoreBackendPostgres, StoreBackendMemory, c.StoreBackend)
	}

	if c.IsProduction() && c.StoreBackend == StoreBackendMemory {
		return fmt.Errorf("STORE_BACKEND=memory is not allowed in production")
	}

	if c.IsProduction() && !c.AuthEnabled() {
		return fmt.Errorf("AUTH_SIGNING_KEY is required in production")
	}
	if c.AuthEnabled() && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 characters, got %d", len(c.AuthSigningKey))
	}

	switch c.BlobBackend {
	case BlobBackendMemory:
	case BlobBackendMinio:
		if c.MinioEndpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is required when BLOB_BACKEND is %q", BlobBackendMinio)
		}
		if c.MinioAccessKey == "" || c.MinioSecretKey == "" {
			return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when BLOB_BACKEND is %q", BlobBackendMinio)
		}
		if c.MinioBucket == "" {
			return fmt.Errorf("MINIO_BUCKET must not be empty")
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be %q or %q, got %q", BlobBackendMemory, BlobBackendMinio, c.BlobBackend)
	}

	if len(c.DefaultTypes) == 0 && len(c.CDATypes) == 0 {
		return fmt.Errorf("at least one content handler type must be configured")
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
