package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Vision   VisionConfig   `yaml:"vision"`
	Search   SearchConfig   `yaml:"search"`
	Timeouts TimeoutConfig  `yaml:"timeouts"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port      int    `yaml:"port"`
	APIKey    string `yaml:"api_key"`
	MaxBodyMB int    `yaml:"max_body_mb"`
}

// StoreConfig selects the identity store backend: "postgres" or "memory".
type StoreConfig struct {
	Backend string `yaml:"backend"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	PoolSize           int     `yaml:"pool_size"`
	OracleVersion      string  `yaml:"oracle_version"`
	ReindexWorkers     int     `yaml:"reindex_workers"`
}

type SearchConfig struct {
	DefaultLimit     int     `yaml:"default_limit"`
	MaxLimit         int     `yaml:"max_limit"`
	DefaultThreshold float64 `yaml:"default_threshold"`
}

// TimeoutConfig bounds every call into the oracle, the stores and remote fetches.
type TimeoutConfig struct {
	Oracle time.Duration `yaml:"oracle"`
	Store  time.Duration `yaml:"store"`
	Fetch  time.Duration `yaml:"fetch"`
}

type FetchConfig struct {
	MaxBytes  int64         `yaml:"max_bytes"`
	MaxPixels int64         `yaml:"max_pixels"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := seeded()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with every default applied, for tests and local runs.
func Default() *Config {
	cfg := seeded()
	setDefaults(cfg)
	return cfg
}

// seeded presets the fields whose zero value is a legitimate setting, so an
// explicit zero in the file survives unmarshalling.
func seeded() *Config {
	return &Config{Search: SearchConfig{DefaultThreshold: 0.75}}
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Search.DefaultThreshold < 0 || c.Search.DefaultThreshold > 1 {
		return fmt.Errorf("search.default_threshold must be within [0, 1]")
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit exceeds search.max_limit")
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 41101
	}
	if cfg.Server.MaxBodyMB == 0 {
		cfg.Server.MaxBodyMB = 32
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "postgres"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "faces"
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.PoolSize == 0 {
		cfg.Vision.PoolSize = 4
	}
	if cfg.Vision.OracleVersion == "" {
		cfg.Vision.OracleVersion = "det10g-w600kr50-v1"
	}
	if cfg.Vision.ReindexWorkers == 0 {
		cfg.Vision.ReindexWorkers = 2
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 1000
	}
	if cfg.Timeouts.Oracle == 0 {
		cfg.Timeouts.Oracle = 10 * time.Second
	}
	if cfg.Timeouts.Store == 0 {
		cfg.Timeouts.Store = 5 * time.Second
	}
	if cfg.Timeouts.Fetch == 0 {
		cfg.Timeouts.Fetch = 10 * time.Second
	}
	if cfg.Fetch.MaxBytes == 0 {
		cfg.Fetch.MaxBytes = 20 << 20
	}
	if cfg.Fetch.MaxPixels == 0 {
		cfg.Fetch.MaxPixels = 50_000_000
	}
	if cfg.Fetch.CacheTTL == 0 {
		cfg.Fetch.CacheTTL = 5 * time.Minute
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FACE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FACE_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("FACE_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("FACE_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FACE_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FACE_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FACE_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FACE_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FACE_NATS_URL"); v != "" {
		cfg.NATS.URL = v
		cfg.NATS.Enabled = true
	}
	if v := os.Getenv("FACE_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("FACE_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("FACE_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("FACE_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("FACE_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("FACE_VISION_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Vision.PoolSize = n
		}
	}
	if v := os.Getenv("FACE_SEARCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.DefaultThreshold = f
		}
	}
	if v := os.Getenv("FACE_FETCH_MAX_PIXELS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Fetch.MaxPixels = n
		}
	}
	if v := os.Getenv("FACE_ORACLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeouts.Oracle = d
		}
	}
}
