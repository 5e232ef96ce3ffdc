package config

const (
	defaultDataDir              = "~/.local/share/shapelearner"
	defaultLogDir               = "~/.local/share/shapelearner/logs"
	defaultInputDir             = "~/shapelearner/inputs"
	defaultOutputDir            = "~/shapelearner/outputs"
	defaultLockDir              = "~/.local/share/shapelearner/locks"
	defaultModelDir             = "~/.local/share/shapelearner/models"
	defaultAPIBind              = "127.0.0.1:8888"
	defaultStoreDriver          = "sqlite"
	defaultFeaturesTable        = "learning_data"
	defaultRenderLevel          = "high"
	defaultRenderSize           = 800
	defaultRenderWorkers        = 1
	defaultNeighbors            = 53
	defaultWeighting            = "distance"
	defaultFitTimeoutSeconds    = 300
	defaultPredictTimeout       = 10
	defaultModelBackend         = "local"
	defaultModelPrefix          = "models/"
	defaultExtractorTimeout     = 120
	defaultExtractorRate        = 5.0
	defaultExtractorRetries     = 3
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultAPIReadTimeout       = 15
	defaultAPIWriteTimeout      = 60
	defaultCaptureTimeoutSecond = 600
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			LogDir:    defaultLogDir,
			InputDir:  defaultInputDir,
			OutputDir: defaultOutputDir,
			LockDir:   defaultLockDir,
		},
		API: API{
			Bind:                defaultAPIBind,
			ReadTimeoutSeconds:  defaultAPIReadTimeout,
			WriteTimeoutSeconds: defaultAPIWriteTimeout,
		},
		Store: Store{
			Driver:        defaultStoreDriver,
			FeaturesTable: defaultFeaturesTable,
		},
		Render: Render{
			Level:                 defaultRenderLevel,
			Width:                 defaultRenderSize,
			Height:                defaultRenderSize,
			Workers:               defaultRenderWorkers,
			CaptureTimeoutSeconds: defaultCaptureTimeoutSecond,
		},
		Classifier: Classifier{
			Neighbors:             defaultNeighbors,
			Weighting:             defaultWeighting,
			FitOnBoot:             true,
			FitTimeoutSeconds:     defaultFitTimeoutSeconds,
			PredictTimeoutSeconds: defaultPredictTimeout,
		},
		ModelStore: ModelStore{
			Backend: defaultModelBackend,
			Dir:     defaultModelDir,
			Prefix:  defaultModelPrefix,
			UseSSL:  true,
		},
		Extractor: Extractor{
			TimeoutSeconds:    defaultExtractorTimeout,
			RequestsPerSecond: defaultExtractorRate,
			RetryAttempts:     defaultExtractorRetries,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
