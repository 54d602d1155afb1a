// Package core provides the main memekeeper client and meme curation functionality.
package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Default configuration values.
const (
	DefaultMemeProbability = 0.1
	DefaultSaveProbability = 0.2
	DefaultMaxMemes        = 500
	DefaultMinMemes        = 10
	DefaultLLMMaxQuery     = 50
	DefaultAcceptFloor     = 0.5
	DefaultTimeout         = 30 * time.Second
)

// Config contains the complete configuration for a memekeeper client.
//
// It covers the retention policy (probabilities and capacity bounds), the
// similarity method, the capability timeout, and the backing services
// (storage, blob store, LLM, embedder). The configuration is read-only after
// initialization and is validated at construction: an invalid configuration
// fails NewClient, never a later request.
//
// Example:
//
//	config := &core.Config{
//	    MemeProbability:  0.1,
//	    SaveProbability:  0.2,
//	    SimilarityMethod: core.MethodLevenshtein,
//	    MaxMemes:         500,
//	    MinMemes:         10,
//	    Storage: core.StorageConfig{
//	        Provider: "sqlite",
//	        Config: map[string]interface{}{
//	            "db_path": "./memes.db",
//	        },
//	    },
//	    Blob: core.BlobConfig{Dir: "./memes"},
//	}
type Config struct {
	// MemeProbability is the probability of attaching a stored meme to an
	// outgoing reply. Must be in [0,1].
	MemeProbability float64 `json:"meme_probability"`

	// SaveProbability is the probability of persisting a newly-seen,
	// filter-approved image. Must be in [0,1].
	SaveProbability float64 `json:"meme_save_probability"`

	// SimilarityMethod selects the match strategy.
	SimilarityMethod SimilarityMethod `json:"meme_similarity_method"`

	// MaxMemes is the hard capacity bound of the store. Must be >= 1.
	MaxMemes int `json:"max_memes"`

	// MinMemes is the corpus maturity floor: no meme is ever attached while
	// the store holds fewer than MinMemes. Must satisfy 0 <= MinMemes <= MaxMemes.
	MinMemes int `json:"min_memes"`

	// GeneralMaxQuery caps the candidates considered by any strategy.
	// Defaults to MaxMemes.
	GeneralMaxQuery int `json:"meme_general_max_query"`

	// LLMMaxQuery caps the candidates forwarded to the LLM strategy,
	// bounding per-call cost. Must be <= GeneralMaxQuery. Defaults to 50.
	LLMMaxQuery int `json:"meme_llm_max_query"`

	// EnableSecurityCheck gates candidates through the LLM-backed content
	// check before admission.
	EnableSecurityCheck bool `json:"enable_security_check"`

	// AcceptFloor is the minimum similarity a levenshtein candidate must
	// reach. Defaults to 0.5.
	AcceptFloor float64 `json:"accept_floor"`

	// CapabilityTimeout bounds every LLM and embedding round-trip.
	// Defaults to 30s.
	CapabilityTimeout time.Duration `json:"capability_timeout"`

	// LLM contains LLM provider configuration.
	LLM LLMConfig `json:"llm"`

	// Embedder contains embedding provider configuration. Required only for
	// the cosine similarity method.
	Embedder EmbedderConfig `json:"embedder"`

	// Storage contains meme metadata store configuration.
	Storage StorageConfig `json:"storage"`

	// Blob contains image blob store configuration.
	Blob BlobConfig `json:"blob"`
}

// LLMConfig contains configuration for the LLM provider.
//
// The client speaks the OpenAI chat protocol; DeepSeek, Qwen's compatible
// mode, and local gateways are reached through BaseURL.
type LLMConfig struct {
	// APIKey is the API key for the LLM endpoint.
	APIKey string `json:"api_key"`

	// Model is the model name to use. Image tagging and the security check
	// require a multimodal model.
	Model string `json:"model"`

	// BaseURL is the base URL for the API (optional, OpenAI default if empty).
	BaseURL string `json:"base_url,omitempty"`
}

// EmbedderConfig contains configuration for the embedding provider.
type EmbedderConfig struct {
	// APIKey is the API key for the embedding endpoint.
	APIKey string `json:"api_key"`

	// Model is the embedding model name (e.g. "text-embedding-3-small").
	Model string `json:"model"`

	// BaseURL is the base URL for the API (optional).
	BaseURL string `json:"base_url,omitempty"`

	// Dimensions is the embedding dimension (e.g. 1536).
	Dimensions int `json:"dimensions,omitempty"`

	// CacheTTL is how long reply-text embeddings are cached in memory.
	// Zero keeps entries until process exit.
	CacheTTL time.Duration `json:"cache_ttl,omitempty"`
}

// StorageConfig contains configuration for the meme metadata store.
//
// Supported providers: sqlite, postgres, mysql.
type StorageConfig struct {
	// Provider is the storage provider name (sqlite, postgres, mysql).
	Provider string `json:"provider"`

	// Config contains provider-specific configuration.
	// For SQLite: db_path, table_name
	// For PostgreSQL: host, port, user, password, db_name, table_name, ssl_mode
	// For MySQL: host, port, user, password, db_name, table_name
	Config map[string]interface{} `json:"config"`
}

// BlobConfig contains configuration for the image blob store.
type BlobConfig struct {
	// Dir is the root directory of the filesystem blob store.
	Dir string `json:"dir"`
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables into a Config struct
//
// Supported environment variables:
//   - MEME_PROBABILITY, MEME_SAVE_PROBABILITY, MEME_SIMILARITY_METHOD
//   - MAX_MEMES, MIN_MEMES, MEME_GENERAL_MAX_QUERY, MEME_LLM_MAX_QUERY
//   - ENABLE_SECURITY_CHECK, CAPABILITY_TIMEOUT
//   - DATABASE_PROVIDER (sqlite, postgres, mysql)
//   - SQLITE_PATH, SQLITE_TABLE
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD, etc.
//   - MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASSWORD, etc.
//   - BLOB_DIR
//   - LLM_API_KEY, LLM_MODEL, LLM_BASE_URL
//   - EMBEDDING_API_KEY, EMBEDDING_MODEL, EMBEDDING_BASE_URL, EMBEDDING_DIMS
//
// Returns a Config instance, or an error if a numeric variable fails to parse.
func LoadConfigFromEnv() (*Config, error) {
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg := DefaultConfig()

	var err error
	if cfg.MemeProbability, err = envFloat("MEME_PROBABILITY", cfg.MemeProbability); err != nil {
		return nil, err
	}
	if cfg.SaveProbability, err = envFloat("MEME_SAVE_PROBABILITY", cfg.SaveProbability); err != nil {
		return nil, err
	}
	if method := os.Getenv("MEME_SIMILARITY_METHOD"); method != "" {
		cfg.SimilarityMethod = SimilarityMethod(method)
	}
	if cfg.MaxMemes, err = envInt("MAX_MEMES", cfg.MaxMemes); err != nil {
		return nil, err
	}
	if cfg.MinMemes, err = envInt("MIN_MEMES", cfg.MinMemes); err != nil {
		return nil, err
	}
	if cfg.GeneralMaxQuery, err = envInt("MEME_GENERAL_MAX_QUERY", 0); err != nil {
		return nil, err
	}
	if cfg.LLMMaxQuery, err = envInt("MEME_LLM_MAX_QUERY", cfg.LLMMaxQuery); err != nil {
		return nil, err
	}
	if v := os.Getenv("ENABLE_SECURITY_CHECK"); v != "" {
		cfg.EnableSecurityCheck = v == "true" || v == "1"
	}
	if v := os.Getenv("CAPABILITY_TIMEOUT"); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return nil, NewMemeError("LoadConfigFromEnv", fmt.Errorf("CAPABILITY_TIMEOUT: %w", err))
		}
		cfg.CapabilityTimeout = timeout
	}

	provider := getEnvOrDefault("DATABASE_PROVIDER", "sqlite")
	storageConfig := make(map[string]interface{})

	switch provider {
	case "sqlite":
		storageConfig = map[string]interface{}{
			"db_path":    getEnvOrDefault("SQLITE_PATH", "./memekeeper.db"),
			"table_name": getEnvOrDefault("SQLITE_TABLE", "memes"),
		}
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
		storageConfig = map[string]interface{}{
			"host":       getEnvOrDefault("POSTGRES_HOST", "localhost"),
			"port":       port,
			"user":       getEnvOrDefault("POSTGRES_USER", "postgres"),
			"password":   os.Getenv("POSTGRES_PASSWORD"),
			"db_name":    getEnvOrDefault("POSTGRES_DATABASE", "memekeeper"),
			"table_name": getEnvOrDefault("POSTGRES_TABLE", "memes"),
			"ssl_mode":   getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		}
	case "mysql":
		port, _ := strconv.Atoi(getEnvOrDefault("MYSQL_PORT", "3306"))
		storageConfig = map[string]interface{}{
			"host":       getEnvOrDefault("MYSQL_HOST", "127.0.0.1"),
			"port":       port,
			"user":       getEnvOrDefault("MYSQL_USER", "root"),
			"password":   os.Getenv("MYSQL_PASSWORD"),
			"db_name":    getEnvOrDefault("MYSQL_DATABASE", "memekeeper"),
			"table_name": getEnvOrDefault("MYSQL_TABLE", "memes"),
		}
	}

	cfg.Storage = StorageConfig{
		Provider: provider,
		Config:   storageConfig,
	}
	cfg.Blob = BlobConfig{
		Dir: getEnvOrDefault("BLOB_DIR", "./memes"),
	}
	cfg.LLM = LLMConfig{
		APIKey:  os.Getenv("LLM_API_KEY"),
		Model:   getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
		BaseURL: os.Getenv("LLM_BASE_URL"),
	}

	dims, err := envInt("EMBEDDING_DIMS", 1536)
	if err != nil {
		return nil, err
	}
	cfg.Embedder = EmbedderConfig{
		APIKey:     os.Getenv("EMBEDDING_API_KEY"),
		Model:      getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
		BaseURL:    os.Getenv("EMBEDDING_BASE_URL"),
		Dimensions: dims,
	}

	return cfg, nil
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewMemeError("LoadConfigFromJSON", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, NewMemeError("LoadConfigFromJSON", err)
	}

	return config, nil
}

// DefaultConfig returns a Config populated with the documented defaults.
// Storage, blob, and LLM settings still need to be filled in.
func DefaultConfig() *Config {
	return &Config{
		MemeProbability:     DefaultMemeProbability,
		SaveProbability:     DefaultSaveProbability,
		SimilarityMethod:    MethodLevenshtein,
		MaxMemes:            DefaultMaxMemes,
		MinMemes:            DefaultMinMemes,
		EnableSecurityCheck: true,
		AcceptFloor:         DefaultAcceptFloor,
		CapabilityTimeout:   DefaultTimeout,
	}
}

// Validate validates the configuration.
//
// Rejected configurations:
//   - any probability outside [0,1]
//   - MaxMemes < 1 or MinMemes < 0 or MinMemes > MaxMemes
//   - LLMMaxQuery > GeneralMaxQuery
//   - an unknown similarity method
//   - a missing storage provider or blob directory
//
// Validation also fills derived defaults: GeneralMaxQuery defaults to
// MaxMemes, LLMMaxQuery to 50, CapabilityTimeout to 30s.
func (c *Config) Validate() error {
	if c.MemeProbability < 0 || c.MemeProbability > 1 {
		return NewMemeError("Validate", fmt.Errorf("%w: meme_probability %v outside [0,1]", ErrInvalidConfig, c.MemeProbability))
	}
	if c.SaveProbability < 0 || c.SaveProbability > 1 {
		return NewMemeError("Validate", fmt.Errorf("%w: meme_save_probability %v outside [0,1]", ErrInvalidConfig, c.SaveProbability))
	}
	if c.MaxMemes < 1 {
		return NewMemeError("Validate", fmt.Errorf("%w: max_memes must be >= 1, got %d", ErrInvalidConfig, c.MaxMemes))
	}
	if c.MinMemes < 0 {
		return NewMemeError("Validate", fmt.Errorf("%w: min_memes must be >= 0, got %d", ErrInvalidConfig, c.MinMemes))
	}
	if c.MinMemes > c.MaxMemes {
		return NewMemeError("Validate", fmt.Errorf("%w: min_memes %d exceeds max_memes %d", ErrInvalidConfig, c.MinMemes, c.MaxMemes))
	}

	switch c.SimilarityMethod {
	case MethodLevenshtein, MethodLLM, MethodCosine:
	case "":
		c.SimilarityMethod = MethodLevenshtein
	default:
		return NewMemeError("Validate", fmt.Errorf("%w: unknown similarity method %q", ErrInvalidConfig, c.SimilarityMethod))
	}

	if c.GeneralMaxQuery <= 0 {
		c.GeneralMaxQuery = c.MaxMemes
	}
	if c.LLMMaxQuery <= 0 {
		c.LLMMaxQuery = DefaultLLMMaxQuery
		// The derived default clamps; only an explicit value can conflict.
		if c.LLMMaxQuery > c.GeneralMaxQuery {
			c.LLMMaxQuery = c.GeneralMaxQuery
		}
	}
	if c.LLMMaxQuery > c.GeneralMaxQuery {
		return NewMemeError("Validate", fmt.Errorf("%w: meme_llm_max_query %d exceeds meme_general_max_query %d", ErrInvalidConfig, c.LLMMaxQuery, c.GeneralMaxQuery))
	}

	if c.AcceptFloor <= 0 {
		c.AcceptFloor = DefaultAcceptFloor
	}
	if c.CapabilityTimeout <= 0 {
		c.CapabilityTimeout = DefaultTimeout
	}

	if c.Storage.Provider == "" {
		return NewMemeError("Validate", fmt.Errorf("%w: missing storage provider", ErrInvalidConfig))
	}
	if c.Blob.Dir == "" {
		return NewMemeError("Validate", fmt.Errorf("%w: missing blob directory", ErrInvalidConfig))
	}

	return nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envFloat parses an optional float environment variable.
func envFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, NewMemeError("LoadConfigFromEnv", fmt.Errorf("%s: %w", key, err))
	}
	return parsed, nil
}

// envInt parses an optional int environment variable.
func envInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, NewMemeError("LoadConfigFromEnv", fmt.Errorf("%s: %w", key, err))
	}
	return parsed, nil
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
