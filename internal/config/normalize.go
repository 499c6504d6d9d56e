package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEndpoint()
	c.normalizeDispatcher()
	c.normalizeRender()
	c.normalizePromptGen()
	c.normalizeReview()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.FramesDir, err = expandPath(c.Paths.FramesDir); err != nil {
		return fmt.Errorf("paths.frames_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.ScenesFile, err = expandPath(c.Paths.ScenesFile); err != nil {
		return fmt.Errorf("paths.scenes_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeEndpoint() {
	c.Endpoint.BaseURL = strings.TrimRight(strings.TrimSpace(c.Endpoint.BaseURL), "/")
	if c.Endpoint.APIKey == "" {
		if value, ok := os.LookupEnv("VIDSTYLE_API_KEY"); ok {
			c.Endpoint.APIKey = value
		}
	}
	c.Endpoint.APIKey = strings.TrimSpace(c.Endpoint.APIKey)
	c.Endpoint.Model = strings.TrimSpace(c.Endpoint.Model)
	if c.Endpoint.Model == "" {
		c.Endpoint.Model = defaultEndpointModel
	}
	if c.Endpoint.TimeoutSeconds <= 0 {
		c.Endpoint.TimeoutSeconds = defaultEndpointTimeoutSeconds
	}
	if c.Endpoint.Steps <= 0 {
		c.Endpoint.Steps = defaultEndpointSteps
	}
}

func (c *Config) normalizeDispatcher() {
	if c.Dispatcher.Workers <= 0 {
		c.Dispatcher.Workers = defaultWorkers
	}
	if c.Dispatcher.MaxAttempts <= 0 {
		c.Dispatcher.MaxAttempts = defaultMaxAttempts
	}
	if c.Dispatcher.BackoffBaseMS <= 0 {
		c.Dispatcher.BackoffBaseMS = defaultBackoffBaseMS
	}
	if c.Dispatcher.BackoffMaxMS <= 0 {
		c.Dispatcher.BackoffMaxMS = defaultBackoffMaxMS
	}
	if c.Dispatcher.ClaimStaleSeconds <= 0 {
		c.Dispatcher.ClaimStaleSeconds = defaultClaimStaleSeconds
	}
	if c.Dispatcher.ClaimPollMS <= 0 {
		c.Dispatcher.ClaimPollMS = defaultClaimPollMS
	}
}

func (c *Config) normalizeRender() {
	c.Render.FallbackPolicy = strings.ToLower(strings.TrimSpace(c.Render.FallbackPolicy))
	if c.Render.FallbackPolicy == "" {
		c.Render.FallbackPolicy = defaultFallbackPolicy
	}
	c.Render.Quality = strings.ToLower(strings.TrimSpace(c.Render.Quality))
	if c.Render.Quality == "" {
		c.Render.Quality = defaultRenderQuality
	}
}

func (c *Config) normalizePromptGen() {
	if c.PromptGen.APIKey == "" {
		if value, ok := os.LookupEnv("VIDSTYLE_PROMPTGEN_API_KEY"); ok {
			c.PromptGen.APIKey = value
		}
	}
	c.PromptGen.APIKey = strings.TrimSpace(c.PromptGen.APIKey)
	c.PromptGen.BaseURL = strings.TrimSpace(c.PromptGen.BaseURL)
	if c.PromptGen.BaseURL == "" {
		c.PromptGen.BaseURL = defaultPromptGenBaseURL
	}
	if c.PromptGen.Model == "" {
		c.PromptGen.Model = defaultPromptGenModel
	}
	if c.PromptGen.TimeoutSeconds <= 0 {
		c.PromptGen.TimeoutSeconds = defaultPromptGenTimeoutSeconds
	}
}

func (c *Config) normalizeReview() {
	c.Review.MarkedFile = strings.TrimSpace(c.Review.MarkedFile)
	if c.Review.MarkedFile == "" {
		c.Review.MarkedFile = defaultMarkedFile
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
