package config

import (
	"errors"
	"fmt"
)

var renderQualities = map[string]struct{}{
	"small":        {},
	"good":         {},
	"uncompressed": {},
}

var fallbackPolicies = map[string]struct{}{
	"original": {},
	"abort":    {},
}

// Validate ensures the configuration is structurally usable. Settings that
// only matter for a particular command (such as the endpoint API key) are
// checked by that command so unrelated workflows keep working.
func (c *Config) Validate() error {
	if err := c.validateEndpoint(); err != nil {
		return err
	}
	if err := c.validateDispatcher(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateScenes(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateEndpoint() error {
	if c.Endpoint.Strength < 0 || c.Endpoint.Strength > 1 {
		return errors.New("endpoint.strength must be between 0 and 1")
	}
	if c.Endpoint.GuidanceScale < 0 {
		return errors.New("endpoint.guidance_scale must not be negative")
	}
	if (c.Endpoint.ResizeWidth > 0) != (c.Endpoint.ResizeHeight > 0) {
		return errors.New("endpoint.resize_width and endpoint.resize_height must be set together")
	}
	return nil
}

func (c *Config) validateDispatcher() error {
	if c.Dispatcher.BackoffMaxMS < c.Dispatcher.BackoffBaseMS {
		return errors.New("dispatcher.backoff_max_ms must not be lower than dispatcher.backoff_base_ms")
	}
	return nil
}

func (c *Config) validateRender() error {
	if _, ok := fallbackPolicies[c.Render.FallbackPolicy]; !ok {
		return fmt.Errorf("render.fallback_policy must be one of original, abort (got %q)", c.Render.FallbackPolicy)
	}
	if _, ok := renderQualities[c.Render.Quality]; !ok {
		return fmt.Errorf("render.quality must be one of small, good, uncompressed (got %q)", c.Render.Quality)
	}
	if c.Render.Sharpness < 0 {
		return errors.New("render.sharpness must not be negative")
	}
	if c.Render.FPS < 0 {
		return errors.New("render.fps must not be negative")
	}
	return nil
}

func (c *Config) validateScenes() error {
	if c.Scenes.Threshold <= 0 {
		return errors.New("scenes.threshold must be positive")
	}
	if c.Scenes.HistogramBins <= 0 {
		return errors.New("scenes.histogram_bins must be positive")
	}
	return nil
}
