package app

import (
	"testing"
)

func TestParseProviderEndpoints(t *testing.T) {
	endpoints := parseProviderEndpoints(
		"OpenSubtitles=https://api.example.com/v1|key123, mirror=https://mirror.example.org, malformed",
	)
	if len(endpoints) != 2 {
		t.Fatalf("endpoints = %d, want 2", len(endpoints))
	}
	if endpoints[0].Name != "opensubtitles" || endpoints[0].APIKey != "key123" {
		t.Errorf("first = %+v", endpoints[0])
	}
	if endpoints[1].Name != "mirror" || endpoints[1].APIKey != "" {
		t.Errorf("second = %+v", endpoints[1])
	}
}

func TestParseProviderEndpointsEmpty(t *testing.T) {
	if got := parseProviderEndpoints("  "); got != nil {
		t.Fatalf("endpoints = %v, want nil", got)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("SUBTITLES_TEST_STR", "  value  ")
	if got := getEnv("SUBTITLES_TEST_STR", "fallback"); got != "value" {
		t.Errorf("getEnv = %q", got)
	}
	if got := getEnv("SUBTITLES_TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("getEnv fallback = %q", got)
	}

	t.Setenv("SUBTITLES_TEST_INT", "7")
	if got := getEnvInt("SUBTITLES_TEST_INT", 3); got != 7 {
		t.Errorf("getEnvInt = %d", got)
	}
	t.Setenv("SUBTITLES_TEST_INT", "0")
	if got := getEnvInt("SUBTITLES_TEST_INT", 3); got != 3 {
		t.Errorf("getEnvInt zero = %d, want fallback", got)
	}
	if got := getEnvIntAllowZero("SUBTITLES_TEST_INT", 3); got != 0 {
		t.Errorf("getEnvIntAllowZero = %d, want 0", got)
	}

	t.Setenv("SUBTITLES_TEST_LIST", "Alpha, ,beta")
	got := getEnvList("SUBTITLES_TEST_LIST", "")
	if len(got) != 2 || got[0] != "alpha" || got[1] != "beta" {
		t.Errorf("getEnvList = %v", got)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()
	if cfg.HTTPAddr == "" {
		t.Error("empty http addr")
	}
	if cfg.GlobalConcurrency <= 0 || cfg.ProviderConcurrency <= 0 {
		t.Errorf("concurrency defaults = %d/%d", cfg.GlobalConcurrency, cfg.ProviderConcurrency)
	}
	if cfg.ProviderCacheTTL <= cfg.NegativeCacheTTL {
		t.Errorf("cache TTLs: provider=%v negative=%v", cfg.ProviderCacheTTL, cfg.NegativeCacheTTL)
	}
}
