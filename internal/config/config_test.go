package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/localrivet/hybridrec/internal/recommender"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	if cfg.Store.SQLitePath != DefaultSQLitePath {
		t.Errorf("SQLitePath = %q, want %q", cfg.Store.SQLitePath, DefaultSQLitePath)
	}
	if got := cfg.RecommenderOptions(); got != recommender.DefaultOptions() {
		t.Errorf("RecommenderOptions() = %+v, want defaults", got)
	}

	enc := cfg.EncoderConfig()
	if enc.Provider != "mock" || enc.Dimensions != 512 {
		t.Errorf("Unexpected encoder defaults %+v", enc)
	}
	if enc.Timeout != 30*time.Second || enc.RetryDelay != 2*time.Second || enc.CacheTTL != 24*time.Hour {
		t.Errorf("Unexpected encoder durations %+v", enc)
	}
	if len(enc.Fallbacks) != 0 {
		t.Errorf("Expected no fallbacks, got %v", enc.Fallbacks)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.json")

	cfg := NewConfig()
	cfg.Store.SQLitePath = filepath.Join(dir, "artifacts.db")
	cfg.Recommender.KUse = 4
	cfg.Recommender.NToRecommend = 12
	cfg.Encoder.Provider = "openai"
	cfg.Encoder.Model = "text-embedding-3-large"

	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}
	if cfg.GetConfigPath() != path {
		t.Errorf("GetConfigPath() = %q, want %q", cfg.GetConfigPath(), path)
	}

	loaded, err := LoadConfigWithPath(path, "")
	if err != nil {
		t.Fatalf("LoadConfigWithPath failed: %v", err)
	}
	if loaded.Store.SQLitePath != cfg.Store.SQLitePath {
		t.Errorf("SQLitePath = %q, want %q", loaded.Store.SQLitePath, cfg.Store.SQLitePath)
	}
	opts := loaded.RecommenderOptions()
	if opts.KUse != 4 || opts.NToRecommend != 12 || opts.KMF != 5 {
		t.Errorf("Unexpected recommender options %+v", opts)
	}
	if loaded.Encoder.Provider != "openai" || loaded.Encoder.Model != "text-embedding-3-large" {
		t.Errorf("Unexpected encoder section %+v", loaded.Encoder)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfigWithPath(filepath.Join(t.TempDir(), "absent.json"), filepath.Join(t.TempDir(), "absent.env"))
	if err != nil {
		t.Fatalf("LoadConfigWithPath failed: %v", err)
	}
	if cfg.Server.Name != DefaultServerName || cfg.Logging.Level != DefaultLogLevel {
		t.Errorf("Expected defaults, got %+v / %+v", cfg.Server, cfg.Logging)
	}
}

func TestEnvFileFeedsFallbackOverrides(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := "HYBRIDREC_GOOGLE_API_KEY=google-key\nHYBRIDREC_HTTP_BASE_URL=http://localhost:9000\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HYBRIDREC_GOOGLE_API_KEY", "")
	t.Setenv("HYBRIDREC_HTTP_BASE_URL", "")
	os.Unsetenv("HYBRIDREC_GOOGLE_API_KEY")
	os.Unsetenv("HYBRIDREC_HTTP_BASE_URL")

	cfg, err := LoadConfigWithPath(filepath.Join(t.TempDir(), "absent.json"), envFile)
	if err != nil {
		t.Fatalf("LoadConfigWithPath failed: %v", err)
	}
	cfg.Encoder.Provider = "openai"
	cfg.Encoder.ApiKey = "openai-key"
	cfg.Encoder.Fallbacks = " Google, openai ,http,"

	if got := cfg.FallbackProviders(); len(got) != 2 || got[0] != "google" || got[1] != "http" {
		t.Fatalf("FallbackProviders() = %v", got)
	}

	fbs := cfg.EncoderConfig().Fallbacks
	if fbs[0].APIKey != "google-key" {
		t.Errorf("google fallback key = %q", fbs[0].APIKey)
	}
	if fbs[1].APIKey != "openai-key" || fbs[1].BaseURL != "http://localhost:9000" {
		t.Errorf("http fallback = %+v", fbs[1])
	}
}
