package config

import (
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Graph.M != 16 || cfg.Embedder.Type != EmbedderLocal {
		t.Errorf("expected default config, got %+v", cfg)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.yaml")

	cfg := Default()
	cfg.Embedder.Type = EmbedderOpenAI
	cfg.Embedder.OpenAI = OpenAIConfig{APIKey: "sk-test", ModelName: "text-embedding-3-small"}
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Embedder.Type != EmbedderOpenAI || loaded.Embedder.OpenAI.APIKey != "sk-test" {
		t.Errorf("round-tripped config mismatch: %+v", loaded)
	}
}
