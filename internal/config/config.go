package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	FramesDir  string `toml:"frames_dir"`
	OutputDir  string `toml:"output_dir"`
	CacheDir   string `toml:"cache_dir"`
	LogDir     string `toml:"log_dir"`
	ScenesFile string `toml:"scenes_file"`
}

// Endpoint contains configuration for the remote img2img inference service.
type Endpoint struct {
	BaseURL        string  `toml:"base_url"`
	APIKey         string  `toml:"api_key"`
	Model          string  `toml:"model"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	Steps          int     `toml:"num_inference_steps"`
	Strength       float64 `toml:"strength"`
	GuidanceScale  float64 `toml:"guidance_scale"`
	// ResizeWidth/ResizeHeight scale frames before submission; zero disables.
	ResizeWidth  int `toml:"resize_width"`
	ResizeHeight int `toml:"resize_height"`
}

// Dispatcher contains configuration for the frame job dispatcher.
type Dispatcher struct {
	Workers            int `toml:"workers"`
	MaxAttempts        int `toml:"max_attempts"`
	BackoffBaseMS      int `toml:"backoff_base_ms"`
	BackoffMaxMS       int `toml:"backoff_max_ms"`
	ClaimStaleSeconds  int `toml:"claim_stale_seconds"`
	ClaimPollMS        int `toml:"claim_poll_ms"`
	DisableProgressBar bool `toml:"disable_progress_bar"`
}

// Render contains configuration for result assembly and video encoding.
type Render struct {
	// FallbackPolicy selects behavior for unresolved frames: "original" or "abort".
	FallbackPolicy string  `toml:"fallback_policy"`
	Quality        string  `toml:"quality"`
	Sharpness      float64 `toml:"sharpness"`
	// FPS overrides the frame rate probed from the source video when > 0.
	FPS float64 `toml:"fps"`
}

// Scenes contains configuration for scene cut detection.
type Scenes struct {
	Threshold     float64 `toml:"threshold"`
	HistogramBins int     `toml:"histogram_bins"`
}

// PromptGen contains configuration for LLM-backed prompt generation.
type PromptGen struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Review contains configuration for the frame review workflow.
type Review struct {
	MarkedFile string `toml:"marked_file"`
	// DeltaThreshold flags a frame whose mean pixel delta from both
	// neighbors exceeds this value (0-255 scale); zero disables auto-flagging.
	DeltaThreshold float64 `toml:"delta_threshold"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for vidstyle.
//
// Configuration sections by subsystem:
//   - Paths: frame, output, cache, and log directories
//   - Endpoint: remote img2img inference service connection and defaults
//   - Dispatcher: worker pool sizing, retry, and claim timing
//   - Render: fallback policy and video encoding preset
//   - Scenes: cut detection sensitivity
//   - PromptGen: LLM connection for prompt filling
//   - Review: marked-frame persistence and auto-flag threshold
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Endpoint   Endpoint   `toml:"endpoint"`
	Dispatcher Dispatcher `toml:"dispatcher"`
	Render     Render     `toml:"render"`
	Scenes     Scenes     `toml:"scenes"`
	PromptGen  PromptGen  `toml:"promptgen"`
	Review     Review     `toml:"review"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vidstyle/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The second return is
// the resolved config path, the third whether a file existed there.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("vidstyle.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a run writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.CacheDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RequestTimeout returns the per-attempt timeout for remote inference calls.
func (c *Config) RequestTimeout() time.Duration {
	if c.Endpoint.TimeoutSeconds <= 0 {
		return time.Duration(defaultEndpointTimeoutSeconds) * time.Second
	}
	return time.Duration(c.Endpoint.TimeoutSeconds) * time.Second
}

// ClaimStaleTimeout returns how long a pending claim may go untouched before
// any worker may take it over.
func (c *Config) ClaimStaleTimeout() time.Duration {
	if c.Dispatcher.ClaimStaleSeconds <= 0 {
		return time.Duration(defaultClaimStaleSeconds) * time.Second
	}
	return time.Duration(c.Dispatcher.ClaimStaleSeconds) * time.Second
}

// FFmpegBinary returns the ffmpeg executable name.
func (c *Config) FFmpegBinary() string { return "ffmpeg" }

// FFprobeBinary returns the ffprobe executable name.
func (c *Config) FFprobeBinary() string { return "ffprobe" }

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
