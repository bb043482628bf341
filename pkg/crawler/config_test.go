package crawler

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MaxDepth != 3 {
		t.Errorf("MaxDepth = %d, want 3", cfg.MaxDepth)
	}
	if cfg.MaxPages != 1000 {
		t.Errorf("MaxPages = %d, want 1000", cfg.MaxPages)
	}
	if cfg.Concurrency != 5 {
		t.Errorf("Concurrency = %d, want 5", cfg.Concurrency)
	}
	if cfg.Delay != 500*time.Millisecond {
		t.Errorf("Delay = %v, want 500ms", cfg.Delay)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.DiscoveryMode {
		t.Error("DiscoveryMode should be off by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestDiscoveryConfig(t *testing.T) {
	cfg := DiscoveryConfig("docs.example.com")

	if cfg.MaxDepth != 5 || cfg.MaxPages != 1000 || cfg.Concurrency != 5 {
		t.Errorf("unexpected limits: %+v", cfg)
	}
	if cfg.Delay != 300*time.Millisecond {
		t.Errorf("Delay = %v, want 300ms", cfg.Delay)
	}
	if !cfg.DiscoveryMode {
		t.Error("DiscoveryMode should be on")
	}
	if len(cfg.AllowedDomains) != 1 || cfg.AllowedDomains[0] != "docs.example.com" {
		t.Errorf("AllowedDomains = %v", cfg.AllowedDomains)
	}
}

func TestIndexConfig(t *testing.T) {
	cfg := IndexConfig("docs.example.com", 42)

	if cfg.MaxDepth != 0 {
		t.Errorf("MaxDepth = %d, want 0", cfg.MaxDepth)
	}
	if cfg.MaxPages != 42 {
		t.Errorf("MaxPages = %d, want 42", cfg.MaxPages)
	}
	if cfg.Concurrency != 3 {
		t.Errorf("Concurrency = %d, want 3", cfg.Concurrency)
	}
	if cfg.Delay != 500*time.Millisecond {
		t.Errorf("Delay = %v, want 500ms", cfg.Delay)
	}
	if cfg.DiscoveryMode {
		t.Error("DiscoveryMode should be off")
	}
}

func TestConfig_EffectiveMaxPages(t *testing.T) {
	tests := []struct {
		name      string
		maxPages  int
		discovery bool
		want      int
	}{
		{"full crawl above limit", 5000, false, 5000},
		{"discovery above limit", 5000, true, 1000},
		{"discovery at limit", 1000, true, 1000},
		{"discovery below limit", 10, true, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{MaxPages: tt.maxPages, DiscoveryMode: tt.discovery}
			if got := cfg.EffectiveMaxPages(); got != tt.want {
				t.Errorf("EffectiveMaxPages() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"depth zero", func(c *Config) { c.MaxDepth = 0 }, false},
		{"negative depth", func(c *Config) { c.MaxDepth = -1 }, true},
		{"zero pages", func(c *Config) { c.MaxPages = 0 }, true},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, true},
		{"negative delay", func(c *Config) { c.Delay = -time.Second }, true},
		{"no delay", func(c *Config) { c.Delay = 0 }, false},
		{"negative timeout", func(c *Config) { c.Timeout = -1 }, true},
		{"negative body size", func(c *Config) { c.MaxBodySize = -1 }, true},
		{"blank domain", func(c *Config) { c.AllowedDomains = []string{" "} }, true},
		{"bad exclude", func(c *Config) { c.ExcludePatterns = []string{"("} }, true},
		{"bad include", func(c *Config) { c.IncludePatterns = []string{"*x"} }, true},
		{"good patterns", func(c *Config) {
			c.ExcludePatterns = []string{`\.pdf$`}
			c.IncludePatterns = []string{`^https://docs\.`}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Clone(t *testing.T) {
	cfg := DiscoveryConfig("a.com")
	cfg.ExcludePatterns = []string{"x"}

	clone := cfg.Clone()
	clone.AllowedDomains[0] = "b.com"
	clone.ExcludePatterns = append(clone.ExcludePatterns, "y")
	clone.MaxPages = 1

	if cfg.AllowedDomains[0] != "a.com" {
		t.Error("Clone shares AllowedDomains with the original")
	}
	if len(cfg.ExcludePatterns) != 1 {
		t.Error("Clone shares ExcludePatterns with the original")
	}
	if cfg.MaxPages != 1000 {
		t.Error("Clone shares scalar fields with the original")
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawl.yaml")
	data := `
max_depth: 2
max_pages: 50
delay: 250ms
timeout: 10s
allowed_domains:
  - docs.example.com
exclude_patterns:
  - '\.pdf$'
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.MaxDepth != 2 || cfg.MaxPages != 50 {
		t.Errorf("limits = %d/%d, want 2/50", cfg.MaxDepth, cfg.MaxPages)
	}
	if cfg.Delay != 250*time.Millisecond || cfg.Timeout != 10*time.Second {
		t.Errorf("durations = %v/%v", cfg.Delay, cfg.Timeout)
	}
	if cfg.Concurrency != 5 {
		t.Errorf("Concurrency = %d, want default 5", cfg.Concurrency)
	}
	if len(cfg.AllowedDomains) != 1 || len(cfg.ExcludePatterns) != 1 {
		t.Errorf("lists not loaded: %+v", cfg)
	}
}

func TestLoadConfig_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawl.json")
	data := `{"max_depth": 1, "concurrency": 2, "discovery_mode": true, "include_patterns": ["/guide/"]}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.MaxDepth != 1 || cfg.Concurrency != 2 || !cfg.DiscoveryMode {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if len(cfg.IncludePatterns) != 1 {
		t.Errorf("IncludePatterns = %v", cfg.IncludePatterns)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("max_pages: [1, 2"), 0o644)
	if _, err := LoadConfig(bad); err == nil {
		t.Error("malformed YAML should fail")
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	os.WriteFile(invalid, []byte("concurrency: 0"), 0o644)
	if _, err := LoadConfig(invalid); err == nil {
		t.Error("invalid values should fail validation")
	}
}

func TestOptions(t *testing.T) {
	c, err := New(
		WithConfig(IndexConfig("a.com", 7)),
		WithMaxDepth(2),
		WithConcurrency(0),
		WithDelay(time.Second),
		WithAllowedDomains("b.com"),
		WithExcludePatterns(`\.zip$`),
		WithIncludePatterns(`/docs/`),
		WithTimeout(5*time.Second),
		WithUserAgent("TestBot/1.0"),
		WithMaxBodySize(1024),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	cfg := c.Config()
	if cfg.MaxDepth != 2 || cfg.MaxPages != 7 {
		t.Errorf("limits = %d/%d, want 2/7", cfg.MaxDepth, cfg.MaxPages)
	}
	if cfg.Concurrency != 1 {
		t.Errorf("Concurrency = %d, want clamped to 1", cfg.Concurrency)
	}
	if cfg.Delay != time.Second || cfg.Timeout != 5*time.Second {
		t.Errorf("durations = %v/%v", cfg.Delay, cfg.Timeout)
	}
	if len(cfg.AllowedDomains) != 2 {
		t.Errorf("AllowedDomains = %v, want both domains", cfg.AllowedDomains)
	}
	if cfg.UserAgent != "TestBot/1.0" || cfg.MaxBodySize != 1024 {
		t.Errorf("fetch settings not applied: %+v", cfg)
	}
}

func TestWithConfig_CopiesInput(t *testing.T) {
	input := DefaultConfig()
	c, err := New(WithConfig(input), WithAllowedDomains("a.com"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if len(input.AllowedDomains) != 0 {
		t.Error("options modified the caller's config")
	}
	if len(c.Config().AllowedDomains) != 1 {
		t.Error("option not applied to the crawler's copy")
	}
}
