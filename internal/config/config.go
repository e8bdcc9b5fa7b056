package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends accepted by STORE_BACKEND.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMySQL    = "mysql"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	StoreBackend   string        `mapstructure:"STORE_BACKEND"`
	DataFile       string        `mapstructure:"DATA_FILE"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	SQLitePath     string        `mapstructure:"SQLITE_PATH"`
	MySQLDSN       string        `mapstructure:"MYSQL_DSN"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	CacheTTL       time.Duration `mapstructure:"CACHE_TTL"`
	AMQPURL        string        `mapstructure:"AMQP_URL"`
	EventsQueue    string        `mapstructure:"EVENTS_QUEUE"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`

	BlobDriver      string `mapstructure:"BLOB_DRIVER"`
	BlobDir         string `mapstructure:"BLOB_DIR"`
	BlobS3Bucket    string `mapstructure:"BLOB_S3_BUCKET"`
	BlobS3Region    string `mapstructure:"BLOB_S3_REGION"`
	BlobS3Endpoint  string `mapstructure:"BLOB_S3_ENDPOINT"`
	BlobS3PathStyle bool   `mapstructure:"BLOB_S3_PATH_STYLE"`

	PredictAPIURL  string        `mapstructure:"PREDICT_API_URL"`
	PredictTimeout time.Duration `mapstructure:"PREDICT_TIMEOUT"`
}

var defaults = map[string]interface{}{
	"PORT":             "8000",
	"ENV":              "development",
	"STORE_BACKEND":    BackendFile,
	"DATA_FILE":        "patients.json",
	"DB_MAX_CONNS":     10,
	"DB_MIN_CONNS":     2,
	"SQLITE_PATH":      "patients.db",
	"CACHE_TTL":        "30s",
	"EVENTS_QUEUE":     "patients.changed",
	"CORS_ORIGINS":     "*",
	"RATE_LIMIT_RPS":   50,
	"RATE_LIMIT_BURST": 100,
	"REQUEST_TIMEOUT":  "15s",
	"BODY_LIMIT":       "1M",
	"BLOB_DRIVER":      "fs",
	"BLOB_DIR":         "backups",
	"PREDICT_API_URL":  "http://localhost:8000/predict",
	"PREDICT_TIMEOUT":  "10s",
}

var envKeys = []string{
	"PORT", "ENV", "STORE_BACKEND", "DATA_FILE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"SQLITE_PATH", "MYSQL_DSN", "REDIS_URL", "CACHE_TTL", "AMQP_URL", "EVENTS_QUEUE",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "BODY_LIMIT",
	"BLOB_DRIVER", "BLOB_DIR", "BLOB_S3_BUCKET", "BLOB_S3_REGION", "BLOB_S3_ENDPOINT", "BLOB_S3_PATH_STYLE",
	"PREDICT_API_URL", "PREDICT_TIMEOUT",
}

// Load reads .env (if present) and the environment. It does not validate;
// callers that need a storage backend call Validate.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range envKeys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	return cfg, nil
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

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the selected storage backend has what it needs to
// start. Blob settings are checked separately by ValidateBackup.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendFile:
		if c.DataFile == "" {
			return fmt.Errorf("DATA_FILE is required when STORE_BACKEND is %q", BackendFile)
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is %q", BackendPostgres)
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_BACKEND is %q", BackendSQLite)
		}
	case BackendMySQL:
		if c.MySQLDSN == "" {
			return fmt.Errorf("MYSQL_DSN is required when STORE_BACKEND is %q", BackendMySQL)
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of file, postgres, sqlite, mysql; got %q", c.StoreBackend)
	}

	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	return nil
}

// ValidateBackup checks the blob store used by the backup commands. The
// memory driver is refused because snapshots would vanish with the process.
func (c *Config) ValidateBackup() error {
	switch c.BlobDriver {
	case "fs":
		if c.BlobDir == "" {
			return fmt.Errorf("BLOB_DIR is required when BLOB_DRIVER is \"fs\"")
		}
	case "s3":
		if c.BlobS3Bucket == "" {
			return fmt.Errorf("BLOB_S3_BUCKET is required when BLOB_DRIVER is \"s3\"")
		}
	case "memory":
		return fmt.Errorf("BLOB_DRIVER \"memory\" cannot hold backups beyond this process; use fs or s3")
	default:
		return fmt.Errorf("BLOB_DRIVER must be fs or s3; got %q", c.BlobDriver)
	}
	return nil
}
