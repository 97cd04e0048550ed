// Package config provides application configuration with multi-source
// priority.
//
// Sources (highest to lowest priority):
//  1. Environment variables (TWINDEX_* overrides, secrets)
//  2. Config file (~/.twindex/config.yaml or ./config.yaml)
//  3. Default values
//
// Security: sensitive values (database password, API keys) are masked in
// MarshalJSON and String, so a logged Config never leaks secrets.
// Validation is fail-fast: Load returns an error rather than a half-usable
// configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrMissingAPIKey indicates the selected provider's API key is not set.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates an unsupported AI provider.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidDimension indicates an embedding dimension the index cannot
	// serve.
	ErrInvalidDimension = errors.New("invalid embedding dimension")

	// ErrInvalidChunking indicates inconsistent chunking parameters.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidRetrieval indicates inconsistent retrieval parameters.
	ErrInvalidRetrieval = errors.New("invalid retrieval configuration")

	// ErrInvalidBackend indicates an unknown index backend.
	ErrInvalidBackend = errors.New("invalid index backend")

	// ErrInvalidPostgres indicates incomplete PostgreSQL settings.
	ErrInvalidPostgres = errors.New("invalid PostgreSQL configuration")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGoogleAI = "googleai"
	ProviderOpenAI   = "openai"
	ProviderOllama   = "ollama"
)

// Index backend identifiers used in Config.IndexBackend.
const (
	BackendPostgres = "postgres"
	BackendChromem  = "chromem"
)

// Embedding dimensions the vectors table supports. The column is fixed-width,
// so the configured model must produce exactly one of these.
var supportedDimensions = map[int]bool{
	1536: true,
	3072: true,
}

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON. When adding
// new secrets, update MarshalJSON.
type Config struct {
	// AI provider and models
	Provider          string `mapstructure:"provider" json:"provider"`
	EmbedderModel     string `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedderDimension int    `mapstructure:"embedder_dimension" json:"embedder_dimension"`
	EnrichModel       string `mapstructure:"enrich_model" json:"enrich_model"`
	OllamaHost        string `mapstructure:"ollama_host" json:"ollama_host"`

	// Chunking
	ChunkSize           int     `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap        int     `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" json:"similarity_threshold"`
	MinChunkSize        int     `mapstructure:"min_chunk_size" json:"min_chunk_size"`
	MaxChunkSize        int     `mapstructure:"max_chunk_size" json:"max_chunk_size"`

	// Context enrichment
	EnrichEnabled     bool `mapstructure:"enrich_enabled" json:"enrich_enabled"`
	EnrichConcurrency int  `mapstructure:"enrich_concurrency" json:"enrich_concurrency"`
	EnrichMaxDocChars int  `mapstructure:"enrich_max_doc_chars" json:"enrich_max_doc_chars"`
	EnrichMaxChunks   int  `mapstructure:"enrich_max_chunks" json:"enrich_max_chunks"`

	// Retrieval
	TopK          int     `mapstructure:"top_k" json:"top_k"`
	MinSimilarity float64 `mapstructure:"min_similarity" json:"min_similarity"`

	// Index backend: "postgres" (production) or "chromem" (embedded)
	IndexBackend string `mapstructure:"index_backend" json:"index_backend"`
	ChromemPath  string `mapstructure:"chromem_path" json:"chromem_path"`

	// PostgreSQL (used when index_backend is "postgres")
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Tracing (OTLP over HTTP)
	TracingEnabled  bool   `mapstructure:"tracing_enabled" json:"tracing_enabled"`
	TracingEndpoint string `mapstructure:"tracing_endpoint" json:"tracing_endpoint"`

	// Logging
	LogLevel  string `mapstructure:"log_level" json:"log_level"`
	LogFormat string `mapstructure:"log_format" json:"log_format"` // "text" or "json"
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".twindex")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvPrefix("TWINDEX")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error, defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderGoogleAI)
	v.SetDefault("embedder_model", "gemini-embedding-001")
	// The embed request asks gemini-embedding-001 for 1536 dims via
	// OutputDimensionality; the vectors table column is vector(1536).
	v.SetDefault("embedder_dimension", 1536)
	v.SetDefault("enrich_model", "gemini-2.5-flash")
	v.SetDefault("ollama_host", "http://localhost:11434")

	v.SetDefault("chunk_size", 1000)
	v.SetDefault("chunk_overlap", 200)
	v.SetDefault("similarity_threshold", 0.5)
	v.SetDefault("min_chunk_size", 100)
	v.SetDefault("max_chunk_size", 1000)

	v.SetDefault("enrich_enabled", true)
	v.SetDefault("enrich_concurrency", 5)
	v.SetDefault("enrich_max_doc_chars", 50000)
	v.SetDefault("enrich_max_chunks", 50)

	v.SetDefault("top_k", 5)
	v.SetDefault("min_similarity", 0.0)

	v.SetDefault("index_backend", BackendPostgres)
	v.SetDefault("chromem_path", filepath.Join("data", "chromem"))

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "twindex")
	v.SetDefault("postgres_password", "twindex_dev_password")
	v.SetDefault("postgres_db_name", "twindex")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("tracing_enabled", false)
	v.SetDefault("tracing_endpoint", "localhost:4318")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Validate checks the configuration for structural errors. These are fatal:
// a misconfigured dimension or overlap corrupts data rather than degrading it.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGoogleAI, ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidProvider, c.Provider)
	}

	if !supportedDimensions[c.EmbedderDimension] {
		return fmt.Errorf("%w: %d (supported: 1536, 3072)", ErrInvalidDimension, c.EmbedderDimension)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size %d must be positive", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap %d must be in [0, chunk_size)", ErrInvalidChunking, c.ChunkOverlap)
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold >= 1 {
		return fmt.Errorf("%w: similarity_threshold %v must be in (0, 1)", ErrInvalidChunking, c.SimilarityThreshold)
	}
	if c.MinChunkSize <= 0 || c.MinChunkSize >= c.MaxChunkSize {
		return fmt.Errorf("%w: chunk bounds (%d, %d)", ErrInvalidChunking, c.MinChunkSize, c.MaxChunkSize)
	}

	if c.TopK <= 0 {
		return fmt.Errorf("%w: top_k %d must be positive", ErrInvalidRetrieval, c.TopK)
	}
	if c.MinSimilarity < 0 || c.MinSimilarity >= 1 {
		return fmt.Errorf("%w: min_similarity %v must be in [0, 1)", ErrInvalidRetrieval, c.MinSimilarity)
	}

	switch c.IndexBackend {
	case BackendChromem:
	case BackendPostgres:
		if c.PostgresHost == "" || c.PostgresUser == "" || c.PostgresDBName == "" {
			return fmt.Errorf("%w: host, user and db name are required", ErrInvalidPostgres)
		}
		if c.PostgresPort <= 0 || c.PostgresPort > 65535 {
			return fmt.Errorf("%w: port %d out of range", ErrInvalidPostgres, c.PostgresPort)
		}
	default:
		return fmt.Errorf("%w: %q (supported: postgres, chromem)", ErrInvalidBackend, c.IndexBackend)
	}

	return nil
}

// ValidateAPIKey checks the environment for the selected provider's API key.
// Separate from Validate so offline commands (e.g. version) still work.
func (c *Config) ValidateAPIKey() error {
	switch c.Provider {
	case ProviderGoogleAI:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY not set", ErrMissingAPIKey)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY not set", ErrMissingAPIKey)
		}
	case ProviderOllama:
		// Local provider, no key.
	}
	return nil
}

// PostgresURL returns the pgx connection string.
func (c *Config) PostgresURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:   fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:   c.PostgresDBName,
	}
	q := url.Values{}
	q.Set("sslmode", c.PostgresSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// FullEnrichModelName returns the provider-qualified model name for Genkit,
// e.g. "googleai/gemini-2.5-flash".
func (c *Config) FullEnrichModelName() string {
	if strings.Contains(c.EnrichModel, "/") {
		return c.EnrichModel
	}
	return c.Provider + "/" + c.EnrichModel
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully masked
// to prevent substring matching; longer ones keep two characters on each end
// for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
