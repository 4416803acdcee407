// Package config loads and saves the annstore manifest: which embedder
// collaborator is active and the graph construction/search parameters.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EmbedderType names which embedder collaborator is configured.
type EmbedderType string

const (
	EmbedderLocal  EmbedderType = "local"
	EmbedderOpenAI EmbedderType = "openai"
)

// LocalConfig configures the local GGUF model runner.
type LocalConfig struct {
	ModelName string `yaml:"model_name" json:"model_name"`
}

// OpenAIConfig configures the OpenAI-compatible remote embedder.
type OpenAIConfig struct {
	APIKey    string `yaml:"api_key" json:"api_key"`
	Endpoint  string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	ModelName string `yaml:"model_name" json:"model_name"`
}

// GraphConfig configures HNSW construction/search parameters.
type GraphConfig struct {
	M               int     `yaml:"m" json:"m"`
	EfConstruction  int     `yaml:"ef_construction" json:"ef_construction"`
	EfSearch        int     `yaml:"ef_search" json:"ef_search"`
	LevelMultiplier float64 `yaml:"level_multiplier,omitempty" json:"level_multiplier,omitempty"`
}

// Config is the root annstore manifest.
type Config struct {
	Embedder struct {
		Type   EmbedderType `yaml:"type" json:"type"`
		Local  LocalConfig  `yaml:"local,omitempty" json:"local,omitempty"`
		OpenAI OpenAIConfig `yaml:"openai,omitempty" json:"openai,omitempty"`
	} `yaml:"embedder" json:"embedder"`

	Graph GraphConfig `yaml:"graph" json:"graph"`

	MigrationBatchSize int `yaml:"migration_batch_size,omitempty" json:"migration_batch_size,omitempty"`
}

// Default returns a manifest with the documented default parameters.
func Default() *Config {
	cfg := &Config{
		Graph: GraphConfig{M: 16, EfConstruction: 200, EfSearch: 200},
		MigrationBatchSize: 50,
	}
	cfg.Embedder.Type = EmbedderLocal
	return cfg
}

// Load reads a manifest from path. If path does not exist, Default is
// returned without error -- an uninitialized project falls back to
// sensible defaults rather than failing closed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the manifest to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: encoding manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}
	return nil
}
