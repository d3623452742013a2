package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all router settings. Every field can be set through an
// environment variable prefixed with ROUTER_, e.g. ROUTER_CACHE_URL or
// ROUTER_SEMANTIC_PROVIDER.
type Config struct {
	RouterName    string `mapstructure:"name"`
	RouterVersion string `mapstructure:"version"`

	Server   ServerConfig   `mapstructure:"server"`
	Tenancy  TenancyConfig  `mapstructure:"tenancy"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Semantic SemanticConfig `mapstructure:"semantic"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	UpstreamTimeout time.Duration `mapstructure:"upstream_timeout"`
}

type TenancyConfig struct {
	Enable      bool   `mapstructure:"enable"`
	TenantsFile string `mapstructure:"tenants_file"`
}

type CORSConfig struct {
	Enable       bool   `mapstructure:"enable"`
	AllowOrigins string `mapstructure:"allow_origins"` // comma-separated, "*" for any
}

type MetricsConfig struct {
	Enable bool `mapstructure:"enable"`
}

// CacheConfig configures the exact-match cache (Redis/Valkey).
type CacheConfig struct {
	Enable         bool          `mapstructure:"enable"`
	URL            string        `mapstructure:"url"`
	TTL            time.Duration `mapstructure:"ttl"`
	TLSVerify      bool          `mapstructure:"tls_verify"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	SocketTimeout  time.Duration `mapstructure:"socket_timeout"`
	Cluster        bool          `mapstructure:"cluster"`
	Normalize      bool          `mapstructure:"normalize"` // normalize free text in cache keys
}

// SemanticConfig configures the embedding-similarity cache.
type SemanticConfig struct {
	Enable    bool          `mapstructure:"enable"`
	Provider  string        `mapstructure:"provider"` // opensearch | pgvector
	Threshold float64       `mapstructure:"threshold"`
	TTL       time.Duration `mapstructure:"ttl"`
	Embedder  string        `mapstructure:"embedder"`
	Dim       int           `mapstructure:"dim"`
	Workers   int           `mapstructure:"workers"`
	Timeout   time.Duration `mapstructure:"timeout"` // store client timeout

	EmbedURL string `mapstructure:"embed_url"`
	EmbedKey string `mapstructure:"embed_key"`

	OSURL       string `mapstructure:"os_url"`
	OSIndex     string `mapstructure:"os_index"`
	OSUser      string `mapstructure:"os_user"`
	OSPass      string `mapstructure:"os_pass"`
	OSTLSVerify bool   `mapstructure:"os_tls_verify"`

	PGDSN   string `mapstructure:"pg_dsn"`
	PGTable string `mapstructure:"pg_table"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ROUTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("name", "cogneo-edge-router")
	v.SetDefault("version", "0.1.0")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.upstream_timeout", 30*time.Second)

	v.SetDefault("tenancy.enable", false)
	v.SetDefault("tenancy.tenants_file", "tenants.yaml")

	v.SetDefault("cors.enable", true)
	v.SetDefault("cors.allow_origins", "*")

	v.SetDefault("metrics.enable", true)

	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.url", "redis://localhost:6379/0")
	v.SetDefault("cache.ttl", 60*time.Second)
	v.SetDefault("cache.tls_verify", true)
	v.SetDefault("cache.connect_timeout", 5*time.Second)
	v.SetDefault("cache.socket_timeout", 3*time.Second)
	v.SetDefault("cache.cluster", false)
	v.SetDefault("cache.normalize", true)

	v.SetDefault("semantic.enable", false)
	v.SetDefault("semantic.provider", "opensearch")
	v.SetDefault("semantic.threshold", 0.92)
	v.SetDefault("semantic.ttl", 300*time.Second)
	v.SetDefault("semantic.embedder", "e5-small-v2")
	v.SetDefault("semantic.dim", 384)
	v.SetDefault("semantic.workers", 4)
	v.SetDefault("semantic.timeout", 10*time.Second)
	v.SetDefault("semantic.embed_url", "")
	v.SetDefault("semantic.embed_key", "")
	v.SetDefault("semantic.os_url", "http://localhost:9200")
	v.SetDefault("semantic.os_index", "semcache")
	v.SetDefault("semantic.os_user", "")
	v.SetDefault("semantic.os_pass", "")
	v.SetDefault("semantic.os_tls_verify", true)
	v.SetDefault("semantic.pg_dsn", "")
	v.SetDefault("semantic.pg_table", "semcache")
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Semantic.Enable {
		switch cfg.Semantic.Provider {
		case "opensearch", "pgvector":
		default:
			return fmt.Errorf("semantic.provider must be opensearch or pgvector, got %q", cfg.Semantic.Provider)
		}
		if cfg.Semantic.Threshold < 0 || cfg.Semantic.Threshold > 1 {
			return fmt.Errorf("semantic.threshold must be in [0, 1], got %f", cfg.Semantic.Threshold)
		}
		if cfg.Semantic.Dim < 1 {
			return fmt.Errorf("semantic.dim must be positive, got %d", cfg.Semantic.Dim)
		}
		if cfg.Semantic.Provider == "pgvector" && cfg.Semantic.PGDSN == "" {
			return fmt.Errorf("semantic.pg_dsn is required for the pgvector provider")
		}
	}
	return nil
}

// AllowedOrigins splits the configured origin list.
func (c *CORSConfig) AllowedOrigins() []string {
	parts := strings.Split(c.AllowOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = []string{"*"}
	}
	return out
}
