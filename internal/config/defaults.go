package config

const (
	defaultFramesDir  = "frames"
	defaultOutputDir  = "output"
	defaultCacheDir   = "~/.cache/vidstyle/frames"
	defaultLogDir     = "~/.local/share/vidstyle/logs"
	defaultScenesFile = "scenes.csv"

	defaultEndpointModel          = "sd-turbo"
	defaultEndpointTimeoutSeconds = 300
	defaultEndpointSteps          = 2
	defaultEndpointStrength       = 0.5
	defaultEndpointGuidance       = 0.0

	defaultWorkers           = 4
	defaultMaxAttempts       = 3
	defaultBackoffBaseMS     = 500
	defaultBackoffMaxMS      = 10_000
	defaultClaimStaleSeconds = 600
	defaultClaimPollMS       = 500

	defaultFallbackPolicy = "original"
	defaultRenderQuality  = "good"

	defaultSceneThreshold = 0.8
	defaultHistogramBins  = 50

	defaultPromptGenBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultPromptGenModel          = "google/gemini-3-flash-preview"
	defaultPromptGenTimeoutSeconds = 60

	defaultMarkedFile = "marked_frames.json"

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			FramesDir:  defaultFramesDir,
			OutputDir:  defaultOutputDir,
			CacheDir:   defaultCacheDir,
			LogDir:     defaultLogDir,
			ScenesFile: defaultScenesFile,
		},
		Endpoint: Endpoint{
			Model:          defaultEndpointModel,
			TimeoutSeconds: defaultEndpointTimeoutSeconds,
			Steps:          defaultEndpointSteps,
			Strength:       defaultEndpointStrength,
			GuidanceScale:  defaultEndpointGuidance,
		},
		Dispatcher: Dispatcher{
			Workers:           defaultWorkers,
			MaxAttempts:       defaultMaxAttempts,
			BackoffBaseMS:     defaultBackoffBaseMS,
			BackoffMaxMS:      defaultBackoffMaxMS,
			ClaimStaleSeconds: defaultClaimStaleSeconds,
			ClaimPollMS:       defaultClaimPollMS,
		},
		Render: Render{
			FallbackPolicy: defaultFallbackPolicy,
			Quality:        defaultRenderQuality,
		},
		Scenes: Scenes{
			Threshold:     defaultSceneThreshold,
			HistogramBins: defaultHistogramBins,
		},
		PromptGen: PromptGen{
			BaseURL:        defaultPromptGenBaseURL,
			Model:          defaultPromptGenModel,
			TimeoutSeconds: defaultPromptGenTimeoutSeconds,
		},
		Review: Review{
			MarkedFile: defaultMarkedFile,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
