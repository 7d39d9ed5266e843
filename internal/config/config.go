package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the omnisource API configuration.
type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	Database     DatabaseConfig     `yaml:"database"`
	Reasoning    ReasoningConfig    `yaml:"reasoning"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Engines      EnginesConfig      `yaml:"engines"`
	Router       RouterConfig       `yaml:"router"`
	Dispatch     DispatchConfig     `yaml:"dispatch"`
	Conversation ConversationConfig `yaml:"conversation"`
	Auth         AuthConfig         `yaml:"auth"`
	Storage      StorageConfig      `yaml:"storage"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// ReasoningConfig holds reasoning service (chat completion) settings.
type ReasoningConfig struct {
	APIKey       string  `yaml:"api_key"`
	BaseURL      string  `yaml:"base_url"`
	Model        string  `yaml:"model"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float32 `yaml:"temperature"`
	TimeoutSec   int     `yaml:"timeout_sec"`
	MaxRetries   int     `yaml:"max_retries"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"` // 0 = unlimited
	RateBurst    int     `yaml:"rate_burst"`
}

// EmbeddingConfig holds query embedding settings for the unstructured engine.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// EnginesConfig holds retrieval engine settings.
type EnginesConfig struct {
	Structured   StructuredEngineConfig   `yaml:"structured"`
	Unstructured UnstructuredEngineConfig `yaml:"unstructured"`
}

// StructuredEngineConfig holds NL-to-SQL engine settings.
type StructuredEngineConfig struct {
	DSN     string `yaml:"dsn"`   // SQLite datasource for the tabular data
	Table   string `yaml:"table"` // single queryable table
	MaxRows int    `yaml:"max_rows"`
}

// UnstructuredEngineConfig holds vector search engine settings.
type UnstructuredEngineConfig struct {
	Index string `yaml:"index"` // FT index name over ingested chunks
	TopK  int    `yaml:"top_k"`
}

// RouterConfig holds classification settings.
type RouterConfig struct {
	HistoryWindow int `yaml:"history_window"` // prior turns embedded in the routing prompt
}

// DispatchConfig holds evidence collection bounds.
type DispatchConfig struct {
	MaxEvidence int `yaml:"max_evidence"` // total evidence cap across engines
	MaxRetries  int `yaml:"max_retries"`  // transient engine retries
}

// ConversationConfig holds conversation state settings.
type ConversationConfig struct {
	HistoryLimit int `yaml:"history_limit"` // max turns returned to router/synthesizer
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Reasoning.MaxTokens <= 0 {
		c.Reasoning.MaxTokens = 1024
	}
	if c.Reasoning.TimeoutSec <= 0 {
		c.Reasoning.TimeoutSec = 30
	}
	if c.Reasoning.MaxRetries <= 0 {
		c.Reasoning.MaxRetries = 2
	}
	if c.Reasoning.RateBurst <= 0 {
		c.Reasoning.RateBurst = 4
	}
	if c.Engines.Structured.Table == "" {
		c.Engines.Structured.Table = "social_listening"
	}
	if c.Engines.Structured.MaxRows <= 0 {
		c.Engines.Structured.MaxRows = 50
	}
	if c.Engines.Unstructured.Index == "" {
		c.Engines.Unstructured.Index = "omni:docs:idx"
	}
	if c.Engines.Unstructured.TopK <= 0 {
		c.Engines.Unstructured.TopK = 5
	}
	if c.Router.HistoryWindow <= 0 {
		c.Router.HistoryWindow = 6
	}
	if c.Dispatch.MaxEvidence <= 0 {
		c.Dispatch.MaxEvidence = 20
	}
	if c.Dispatch.MaxRetries <= 0 {
		c.Dispatch.MaxRetries = 2
	}
	if c.Conversation.HistoryLimit <= 0 {
		c.Conversation.HistoryLimit = 20
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "omni:"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Reasoning.Model == "" {
		return fmt.Errorf("reasoning.model is required")
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if c.Engines.Structured.DSN == "" {
		return fmt.Errorf("engines.structured.dsn is required")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
