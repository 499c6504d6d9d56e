package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, exists, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing config file")
	}
	if cfg.Dispatcher.Workers != defaultWorkers {
		t.Fatalf("Workers = %d, want default %d", cfg.Dispatcher.Workers, defaultWorkers)
	}
	if cfg.Render.FallbackPolicy != "original" {
		t.Fatalf("FallbackPolicy = %q, want original", cfg.Render.FallbackPolicy)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
frames_dir = "` + filepath.Join(dir, "in") + `"
cache_dir = "` + filepath.Join(dir, "cache") + `"

[endpoint]
base_url = "https://api.example.com/v2/abc/"
strength = 0.7

[dispatcher]
workers = 8
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution: exists=%v path=%q", exists, resolved)
	}
	if cfg.Endpoint.BaseURL != "https://api.example.com/v2/abc" {
		t.Fatalf("BaseURL not trimmed: %q", cfg.Endpoint.BaseURL)
	}
	if cfg.Endpoint.Strength != 0.7 {
		t.Fatalf("Strength = %v, want 0.7", cfg.Endpoint.Strength)
	}
	if cfg.Dispatcher.Workers != 8 {
		t.Fatalf("Workers = %d, want 8", cfg.Dispatcher.Workers)
	}
	if !filepath.IsAbs(cfg.Paths.CacheDir) {
		t.Fatalf("CacheDir not absolute: %q", cfg.Paths.CacheDir)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "bad fallback policy",
			content: "[render]\nfallback_policy = \"skip\"\n",
			wantErr: "fallback_policy",
		},
		{
			name:    "bad quality",
			content: "[render]\nquality = \"huge\"\n",
			wantErr: "quality",
		},
		{
			name:    "strength out of range",
			content: "[endpoint]\nstrength = 1.5\n",
			wantErr: "strength",
		},
		{
			name:    "lopsided resize",
			content: "[endpoint]\nresize_width = 768\n",
			wantErr: "resize",
		},
		{
			name:    "backoff inversion",
			content: "[dispatcher]\nbackoff_base_ms = 5000\nbackoff_max_ms = 100\n",
			wantErr: "backoff",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
				t.Fatal(err)
			}
			_, _, _, err := Load(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestExpandPathTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := ExpandPath("~/cache")
	if err != nil {
		t.Fatalf("ExpandPath returned error: %v", err)
	}
	if got != filepath.Join(home, "cache") {
		t.Fatalf("ExpandPath = %q", got)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Endpoint.Model != defaultEndpointModel {
		t.Fatalf("Model = %q, want %q", cfg.Endpoint.Model, defaultEndpointModel)
	}
}
