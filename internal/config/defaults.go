package config

const (
	defaultDataDir                 = "~/.local/share/fission"
	defaultLogDir                  = "~/.local/share/fission/logs"
	defaultTempDir                 = "~/.local/share/fission/tmp"
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultLogRetentionDays        = 30
	defaultPollInterval            = 5
	defaultErrorRetryInterval      = 10
	defaultHeartbeatInterval       = 15
	defaultHeartbeatTimeout        = 120
	defaultMaxConcurrentProjects   = 2
	defaultUnitConcurrency         = 4
	defaultRetryAttempts           = 3
	defaultRetryBaseDelayMS        = 1000
	defaultRetryMaxDelayMS         = 30000
	defaultRetryJitter             = 0.2
	defaultMaxFileSizeMB           = 500
	defaultMinFreeSpaceMB          = 1024
	defaultWhisperBinary           = "whisper"
	defaultWhisperModel            = "base"
	defaultWhisperTimeoutSeconds   = 1800
	defaultFallbackIntervalSeconds = 30
	defaultFallbackImportance      = 0.5
	defaultFallbackQuotability     = 0.5
	defaultLLMBaseURL              = "https://api.moonshot.cn/v1/chat/completions"
	defaultLLMModel                = "moonshot-v1-8k"
	defaultLLMTemperature          = 0.3
	defaultLLMTimeoutSeconds       = 60
	defaultClipMaxMoments          = 3
	defaultMinClipSeconds          = 5
	defaultMaxClipSeconds          = 30
	defaultClipSeconds             = 15
	defaultMicroClipSeconds        = 5
	defaultTextProvider            = "llm"
	defaultTextMaxMoments          = 3
	defaultPublicBaseURL           = "http://localhost:8000/storage"
	defaultNtfyRequestTimeout      = 10
	defaultAMQPQueue               = "fission.events"
	defaultMetricsBind             = "127.0.0.1:9464"
)

var (
	defaultAllowedExtensions = []string{".mp4", ".mov", ".avi", ".webm", ".mkv"}
	defaultClipVariants      = []string{"horizontal", "micro", "vertical"}
	defaultPlatforms         = []string{"twitter", "linkedin", "instagram"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			TempDir: defaultTempDir,
		},
		Workflow: Workflow{
			PollInterval:          defaultPollInterval,
			ErrorRetryInterval:    defaultErrorRetryInterval,
			HeartbeatInterval:     defaultHeartbeatInterval,
			HeartbeatTimeout:      defaultHeartbeatTimeout,
			MaxConcurrentProjects: defaultMaxConcurrentProjects,
			UnitConcurrency:       defaultUnitConcurrency,
		},
		Retry: Retry{
			MaxAttempts:    defaultRetryAttempts,
			BaseDelayMS:    defaultRetryBaseDelayMS,
			MaxDelayMS:     defaultRetryMaxDelayMS,
			JitterFraction: defaultRetryJitter,
		},
		Ingest: Ingest{
			MaxFileSizeMB:     defaultMaxFileSizeMB,
			MinFreeSpaceMB:    defaultMinFreeSpaceMB,
			AllowedExtensions: append([]string(nil), defaultAllowedExtensions...),
		},
		Transcription: Transcription{
			Binary:         defaultWhisperBinary,
			Model:          defaultWhisperModel,
			TimeoutSeconds: defaultWhisperTimeoutSeconds,
		},
		Analysis: Analysis{
			FallbackIntervalSeconds: defaultFallbackIntervalSeconds,
			FallbackImportance:      defaultFallbackImportance,
			FallbackQuotability:     defaultFallbackQuotability,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Temperature:    defaultLLMTemperature,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Clips: Clips{
			MaxMoments:         defaultClipMaxMoments,
			MinClipSeconds:     defaultMinClipSeconds,
			MaxClipSeconds:     defaultMaxClipSeconds,
			DefaultClipSeconds: defaultClipSeconds,
			MicroClipSeconds:   defaultMicroClipSeconds,
			Variants:           append([]string(nil), defaultClipVariants...),
		},
		TextGen: TextGen{
			Provider:    defaultTextProvider,
			MaxMoments:  defaultTextMaxMoments,
			Platforms:   append([]string(nil), defaultPlatforms...),
			BlogOutline: true,
		},
		Storage: Storage{
			PublicBaseURL: defaultPublicBaseURL,
			LocalFallback: true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
			AMQPQueue:      defaultAMQPQueue,
			Completed:      true,
			Failed:         true,
		},
		Metrics: Metrics{
			Bind: defaultMetricsBind,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
