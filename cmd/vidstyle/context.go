package main

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"vidstyle/internal/cache"
	"vidstyle/internal/config"
	"vidstyle/internal/dispatch"
	"vidstyle/internal/frames"
	"vidstyle/internal/logging"
	"vidstyle/internal/schedule"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger = logger
	})
	return c.logger, c.loggerErr
}

// openCache opens the frame cache with the configured stale timeout.
func (c *commandContext) openCache() (*cache.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	return cache.Open(cfg.Paths.CacheDir, cfg.ClaimStaleTimeout(), logger)
}

// openFrames opens the configured source frame directory.
func (c *commandContext) openFrames() (*frames.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return frames.Open(cfg.Paths.FramesDir)
}

// loadResolver loads the scene schedule and validates it against the
// frame sequence.
func (c *commandContext) loadResolver(frameStore *frames.Store) (*schedule.Resolver, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	scenes, err := schedule.Load(cfg.Paths.ScenesFile)
	if err != nil {
		return nil, err
	}
	return schedule.NewResolver(scenes, frameStore.Count())
}

// newDispatcher builds a dispatcher from the configured parameters. A
// nil stylizer is fine for fingerprint-only uses like invalidation.
func (c *commandContext) newDispatcher(store *cache.Store, frameStore *frames.Store, resolver *schedule.Resolver, stylizer dispatch.Stylizer) (*dispatch.Dispatcher, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	return dispatch.New(store, frameStore, resolver, stylizer, dispatch.Options{
		Workers:     cfg.Dispatcher.Workers,
		MaxAttempts: cfg.Dispatcher.MaxAttempts,
		BackoffBase: time.Duration(cfg.Dispatcher.BackoffBaseMS) * time.Millisecond,
		BackoffMax:  time.Duration(cfg.Dispatcher.BackoffMaxMS) * time.Millisecond,
		ClaimPoll:   time.Duration(cfg.Dispatcher.ClaimPollMS) * time.Millisecond,
		Model:       cfg.Endpoint.Model,
		Steps:       cfg.Endpoint.Steps,
		Strength:    cfg.Endpoint.Strength,
		Guidance:    cfg.Endpoint.GuidanceScale,
	}, logger), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
