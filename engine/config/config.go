// Package config loads the arrow.* configuration knobs of spec.md §6
// using a defaults-then-YAML-overlay pattern: built-in defaults first,
// then any keys actually present in the YAML document overlaid on top.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

const (
	metadataCacheBlockKB = 128 // one slab block, matches engine/metacache
	minCacheSizeKB       = 32 * 1024
	defaultCacheSizeKB   = 512 * 1024
)

// Config holds the scan-time configuration knobs of spec.md §6. Only
// MetadataCacheSizeKB is init-time-only in the original spec; the others
// may be read per-plan.
type Config struct {
	Enabled          bool `yaml:"enabled"`
	StatsHintEnabled bool `yaml:"stats_hint_enabled"`

	// MetadataCacheSizeKB is read once at startup; changing it afterward
	// has no effect on an already-constructed cache (spec.md §6).
	MetadataCacheSizeKB int `yaml:"metadata_cache_size_kb"`
}

// Default returns the built-in defaults from spec.md §6.
func Default() Config {
	return Config{
		Enabled:             true,
		StatsHintEnabled:    true,
		MetadataCacheSizeKB: defaultCacheSizeKB,
	}
}

// Load reads path (if it exists) and overlays its keys onto Default();
// any read, stat, or parse error silently falls back to defaults rather
// than failing the caller.
func Load(path string) Config {
	cfg := Default()
	if path == "" {
		return cfg
	}
	if _, err := os.Stat(path); err != nil {
		return cfg
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	var parsed Config
	if err := yaml.Unmarshal(b, &parsed); err != nil {
		return cfg
	}
	merge(&cfg, parsed, b)
	return normalize(cfg)
}

// merge overlays only the keys actually present in the raw document onto
// cfg, since an absent YAML key decodes to a Go zero value indistinguishable
// from an explicit "false"/"0". Re-parsing into a generic map lets us test
// key presence directly rather than trusting zero values.
func merge(cfg *Config, parsed Config, raw []byte) {
	var m map[string]any
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return
	}
	if _, ok := m["enabled"]; ok {
		cfg.Enabled = parsed.Enabled
	}
	if _, ok := m["stats_hint_enabled"]; ok {
		cfg.StatsHintEnabled = parsed.StatsHintEnabled
	}
	if _, ok := m["metadata_cache_size_kb"]; ok {
		cfg.MetadataCacheSizeKB = parsed.MetadataCacheSizeKB
	}
}

// normalize clamps and rounds MetadataCacheSizeKB per spec.md §6: minimum
// 32 MiB, rounded up to a 128 KiB-block multiple.
func normalize(cfg Config) Config {
	if cfg.MetadataCacheSizeKB < minCacheSizeKB {
		cfg.MetadataCacheSizeKB = minCacheSizeKB
	}
	rem := cfg.MetadataCacheSizeKB % metadataCacheBlockKB
	if rem != 0 {
		cfg.MetadataCacheSizeKB += metadataCacheBlockKB - rem
	}
	return cfg
}
