package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault_MatchesSpecDefaults(t *testing.T) {
	cfg := Default()
	if !cfg.Enabled || !cfg.StatsHintEnabled {
		t.Fatalf("expected both flags enabled by default, got %+v", cfg)
	}
	if cfg.MetadataCacheSizeKB != defaultCacheSizeKB {
		t.Fatalf("expected default cache size %d, got %d", defaultCacheSizeKB, cfg.MetadataCacheSizeKB)
	}
}

func TestLoad_MissingPathReturnsDefaults(t *testing.T) {
	cfg := Load("")
	if cfg != Default() {
		t.Fatalf("expected defaults for empty path, got %+v", cfg)
	}

	cfg = Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if cfg != Default() {
		t.Fatalf("expected defaults for nonexistent path, got %+v", cfg)
	}
}

func TestLoad_OverlaysOnlyKeysPresent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arrow.yaml")
	os.WriteFile(path, []byte("enabled: false\n"), 0o644)

	cfg := Load(path)
	if cfg.Enabled {
		t.Fatalf("expected enabled=false to be overlaid")
	}
	if !cfg.StatsHintEnabled {
		t.Fatalf("expected stats_hint_enabled to keep its default when absent from the file")
	}
}

func TestLoad_MalformedYAMLFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arrow.yaml")
	os.WriteFile(path, []byte("enabled: [this is not valid\n"), 0o644)

	cfg := Load(path)
	if cfg != Default() {
		t.Fatalf("expected defaults on malformed YAML, got %+v", cfg)
	}
}

func TestLoad_ClampsCacheSizeToMinimum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arrow.yaml")
	os.WriteFile(path, []byte("metadata_cache_size_kb: 1024\n"), 0o644)

	cfg := Load(path)
	if cfg.MetadataCacheSizeKB != minCacheSizeKB {
		t.Fatalf("expected clamp to minimum %d, got %d", minCacheSizeKB, cfg.MetadataCacheSizeKB)
	}
}

func TestLoad_RoundsCacheSizeUpToBlockMultiple(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arrow.yaml")
	os.WriteFile(path, []byte("metadata_cache_size_kb: 40001\n"), 0o644)

	cfg := Load(path)
	if cfg.MetadataCacheSizeKB%metadataCacheBlockKB != 0 {
		t.Fatalf("expected rounding to a %d KB multiple, got %d", metadataCacheBlockKB, cfg.MetadataCacheSizeKB)
	}
	if cfg.MetadataCacheSizeKB < 40001 {
		t.Fatalf("rounding must round up, not down: got %d", cfg.MetadataCacheSizeKB)
	}
}
