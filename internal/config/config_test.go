package config

import (
	"os"
	"testing"

	"gopkg.in/yaml.v3"
)

func parse(t *testing.T, src string) Config {
	t.Helper()
	var cfg Config
	if err := yaml.Unmarshal(expandEnvVars([]byte(src)), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	cfg.ApplyDefaults()
	return cfg
}

const minimalYAML = `
http:
  port: 8080
database:
  addrs: ["localhost:6379"]
reasoning:
  model: gemini-2.5-flash
embedding:
  model: Qwen3-Embedding-8B
engines:
  structured:
    dsn: file:excel.db
`

func TestApplyDefaults(t *testing.T) {
	cfg := parse(t, minimalYAML)

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("read timeout default = %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Reasoning.MaxTokens != 1024 {
		t.Errorf("max tokens default = %d", cfg.Reasoning.MaxTokens)
	}
	if cfg.Reasoning.MaxRetries != 2 {
		t.Errorf("max retries default = %d", cfg.Reasoning.MaxRetries)
	}
	if cfg.Engines.Structured.Table != "social_listening" {
		t.Errorf("table default = %q", cfg.Engines.Structured.Table)
	}
	if cfg.Engines.Unstructured.TopK != 5 {
		t.Errorf("top_k default = %d", cfg.Engines.Unstructured.TopK)
	}
	if cfg.Router.HistoryWindow != 6 {
		t.Errorf("history window default = %d", cfg.Router.HistoryWindow)
	}
	if cfg.Dispatch.MaxEvidence != 20 {
		t.Errorf("max evidence default = %d", cfg.Dispatch.MaxEvidence)
	}
	if cfg.Storage.KeyPrefix != "omni:" {
		t.Errorf("key prefix default = %q", cfg.Storage.KeyPrefix)
	}
}

func TestValidate(t *testing.T) {
	cfg := parse(t, minimalYAML)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.HTTP.Port = 0 }},
		{"no db addrs", func(c *Config) { c.Database.Addrs = nil }},
		{"no reasoning model", func(c *Config) { c.Reasoning.Model = "" }},
		{"no embedding model", func(c *Config) { c.Embedding.Model = "" }},
		{"no structured dsn", func(c *Config) { c.Engines.Structured.DSN = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := parse(t, minimalYAML)
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("OMNI_TEST_KEY", "secret")
	defer os.Unsetenv("OMNI_TEST_KEY")

	out := string(expandEnvVars([]byte("key: ${OMNI_TEST_KEY}\nurl: ${OMNI_TEST_MISSING:-http://localhost}")))
	want := "key: secret\nurl: http://localhost"
	if out != want {
		t.Errorf("expandEnvVars = %q, want %q", out, want)
	}
}

func TestGetEnvDefault(t *testing.T) {
	os.Unsetenv("ENV")
	if env := GetEnv(); env != "local" {
		t.Errorf("GetEnv = %q, want local", env)
	}
}
