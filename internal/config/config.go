package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres
	Path            string        `mapstructure:"path"`   // sqlite file path
	DSN             string        `mapstructure:"dsn"`    // postgres DSN
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// BackendConfig configures the remote identification backend (tier 1).
type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether the backend-first tier can be attempted at all.
func (c *BackendConfig) Enabled() bool {
	return c.BaseURL != "" && c.APIKey != ""
}

// EmbeddingConfig configures the embedding inference endpoint (tier 2).
type EmbeddingConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether the local embedding tier can be attempted.
func (c *EmbeddingConfig) Enabled() bool {
	return c.BaseURL != "" && c.APIKey != ""
}

// QdrantConfig configures the optional reference-photo embedding store.
type QdrantConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
}

// PipelineConfig holds every tunable threshold of the identification
// pipeline. All values have defaults; Validate rejects inconsistent
// overrides instead of silently applying them.
type PipelineConfig struct {
	DomainThreshold         float64 `mapstructure:"domain_threshold"`
	DomainMargin            float64 `mapstructure:"domain_margin"`
	LabelThreshold          float64 `mapstructure:"label_threshold"`
	HighConfidenceThreshold float64 `mapstructure:"high_confidence_threshold"`
	RequiredGap             float64 `mapstructure:"required_gap"`
	MaxCandidates           int     `mapstructure:"max_candidates"`
	TextWeight              float64 `mapstructure:"text_weight"`
	ReferenceWeight         float64 `mapstructure:"reference_weight"`
	BackendThreshold        float64 `mapstructure:"backend_threshold"`
	MaxConcurrency          int     `mapstructure:"max_concurrency"`

	// Photo normalizer geometry
	NormalizeLongEdge int     `mapstructure:"normalize_long_edge"`
	CropFraction      float64 `mapstructure:"crop_fraction"`
	ModelInputSize    int     `mapstructure:"model_input_size"`
}

// CacheConfig holds the versioned embedding-cache namespace prefixes.
// Bumping a version retires the old prefix; retired prefixes are swept
// once per process by the cache migration.
type CacheConfig struct {
	MachineDescPrefix  string   `mapstructure:"machine_desc_prefix"`
	LabelPromptPrefix  string   `mapstructure:"label_prompt_prefix"`
	DomainPromptPrefix string   `mapstructure:"domain_prompt_prefix"`
	RetiredPrefixes    []string `mapstructure:"retired_prefixes"`
	MigrationMarker    string   `mapstructure:"migration_marker"`
}

// StorageConfig configures the optional photo archive bucket.
type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

// Load reads configuration from file and environment.
// Parameters:
//   - configPath: explicit config file path; empty searches ./configs and ".".
// Returns:
//   - *Config: validated configuration.
//   - error: non-nil if reading, unmarshaling, or validation fails.
func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("backend.base_url", "BACKEND_BASE_URL")
	v.BindEnv("backend.api_key", "BACKEND_API_KEY")
	v.BindEnv("embedding.base_url", "EMBEDDING_BASE_URL")
	v.BindEnv("embedding.api_key", "EMBEDDING_API_KEY")
	v.BindEnv("qdrant.host", "QDRANT_HOST")
	v.BindEnv("qdrant.port", "QDRANT_PORT")
	v.BindEnv("qdrant.api_key", "QDRANT_API_KEY")
	v.BindEnv("database.dsn", "DATABASE_URL")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/machinemate.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("backend.timeout", 15*time.Second)

	v.SetDefault("embedding.model", "siglip-so400m-patch14-384")
	v.SetDefault("embedding.dimensions", 1152)
	v.SetDefault("embedding.timeout", 10*time.Second)

	v.SetDefault("qdrant.enabled", false)
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.collection", "reference_photos")

	v.SetDefault("pipeline.domain_threshold", 0.35)
	v.SetDefault("pipeline.domain_margin", 0.05)
	v.SetDefault("pipeline.label_threshold", 0.45)
	v.SetDefault("pipeline.high_confidence_threshold", 0.65)
	v.SetDefault("pipeline.required_gap", 0.08)
	v.SetDefault("pipeline.max_candidates", 5)
	v.SetDefault("pipeline.text_weight", 0.6)
	v.SetDefault("pipeline.reference_weight", 0.4)
	v.SetDefault("pipeline.backend_threshold", 0.7)
	v.SetDefault("pipeline.max_concurrency", 8)
	v.SetDefault("pipeline.normalize_long_edge", 640)
	v.SetDefault("pipeline.crop_fraction", 0.9)
	v.SetDefault("pipeline.model_input_size", 384)

	v.SetDefault("cache.machine_desc_prefix", "machine_desc_v2:")
	v.SetDefault("cache.label_prompt_prefix", "label_prompt_v3:")
	v.SetDefault("cache.domain_prompt_prefix", "domain_prompt_v1:")
	v.SetDefault("cache.retired_prefixes", []string{
		"machine_desc_v1:",
		"label_prompt_v1:",
		"label_prompt_v2:",
	})
	v.SetDefault("cache.migration_marker", "meta:migration_done:v3")

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "user-uploads")
}

// Validate checks cross-field invariants that defaults alone cannot
// guarantee once individual keys are overridden.
func (c *Config) Validate() error {
	p := &c.Pipeline

	const weightEpsilon = 1e-9
	if diff := p.TextWeight + p.ReferenceWeight - 1.0; diff > weightEpsilon || diff < -weightEpsilon {
		return fmt.Errorf("pipeline: text_weight (%v) + reference_weight (%v) must sum to 1.0",
			p.TextWeight, p.ReferenceWeight)
	}

	for name, val := range map[string]float64{
		"domain_threshold":          p.DomainThreshold,
		"domain_margin":             p.DomainMargin,
		"label_threshold":           p.LabelThreshold,
		"high_confidence_threshold": p.HighConfidenceThreshold,
		"required_gap":              p.RequiredGap,
		"text_weight":               p.TextWeight,
		"reference_weight":          p.ReferenceWeight,
		"backend_threshold":         p.BackendThreshold,
	} {
		if val < 0 || val > 1 {
			return fmt.Errorf("pipeline: %s must be in [0,1], got %v", name, val)
		}
	}

	if p.MaxCandidates < 1 {
		return fmt.Errorf("pipeline: max_candidates must be >= 1, got %d", p.MaxCandidates)
	}
	if p.MaxConcurrency < 1 {
		return fmt.Errorf("pipeline: max_concurrency must be >= 1, got %d", p.MaxConcurrency)
	}
	if p.CropFraction <= 0 || p.CropFraction > 1 {
		return fmt.Errorf("pipeline: crop_fraction must be in (0,1], got %v", p.CropFraction)
	}
	if c.Embedding.Dimensions < 1 {
		return fmt.Errorf("embedding: dimensions must be >= 1, got %d", c.Embedding.Dimensions)
	}

	for _, retired := range c.Cache.RetiredPrefixes {
		switch retired {
		case c.Cache.MachineDescPrefix, c.Cache.LabelPromptPrefix, c.Cache.DomainPromptPrefix:
			return fmt.Errorf("cache: prefix %q is both active and retired", retired)
		}
	}

	return nil
}

// DSNString returns the effective database DSN for the configured driver.
func (c *DatabaseConfig) DSNString() string {
	if c.Driver == "postgres" {
		return c.DSN
	}
	return c.Path
}
