package config

const (
	defaultOutputDir        = "~/.local/share/murmur/output"
	defaultLogDir           = "~/.local/share/murmur/logs"
	defaultAudioSubdir      = "audio"
	defaultTextSubdir       = "text"
	defaultImageSubdir      = "image"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 60

	defaultCaptureChannels    = 2
	defaultCaptureClipSeconds = 30

	defaultTranscriptionModel      = "large-v3"
	defaultTranscriptionTask       = "transcribe"
	defaultTranscriptionBeamSize   = 8
	defaultTranscriptionMinSilence = 1000
	defaultTranscriptionTimeout    = 300
	defaultTranscriptionAttempts   = 2
	defaultTranscriptionRetryDelay = 5

	defaultPromptBaseURL           = "ws://127.0.0.1:1234"
	defaultPromptSessionTTL        = 300
	defaultPromptRequestTimeout    = 30
	defaultPromptConnectRetries    = 3
	defaultPromptConnectRetryDelay = 5
	defaultPromptAttempts          = 3
	defaultPromptRetryDelay        = 5

	defaultRenderServerAddress = "127.0.0.1:8188"

	defaultQueuePollInterval = 5
	defaultFailurePause      = 1
	defaultFailureThreshold  = 3
	defaultHeartbeatInterval = 15
	defaultHeartbeatTimeout  = 120

	defaultNotifyRequestTimeout = 10
)

const defaultStoryBackground = `A quiet observer sits in a room while the world goes on around them. ` +
	`Voices, music, weather, and machines drift in and out of earshot, each sound hinting at a scene just out of view.`

const defaultPromptTemplate = `You write prompts for a text-to-image model. Read the scene notes below and reply with one vivid image prompt describing the setting, subjects, mood, and lighting in concrete visual terms. Reply with the prompt only.

Scene notes:
{content}`

func defaultDeviceKeywords() []string {
	return []string{"stereo mix", "what u hear", "what you hear"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			AudioDir:  defaultAudioSubdir,
			TextDir:   defaultTextSubdir,
			ImageDir:  defaultImageSubdir,
			LogDir:    defaultLogDir,
		},
		Capture: Capture{
			DeviceKeywords: defaultDeviceKeywords(),
			Channels:       defaultCaptureChannels,
			ClipSeconds:    defaultCaptureClipSeconds,
		},
		Transcription: Transcription{
			Model:        defaultTranscriptionModel,
			ModelDir:     defaultModelDir(),
			Task:         defaultTranscriptionTask,
			BeamSize:     defaultTranscriptionBeamSize,
			VADFilter:    true,
			MinSilenceMs: defaultTranscriptionMinSilence,
			Timeout:      defaultTranscriptionTimeout,
			MaxAttempts:  defaultTranscriptionAttempts,
			RetryDelay:   defaultTranscriptionRetryDelay,
		},
		Prompt: Prompt{
			BaseURL:           defaultPromptBaseURL,
			SessionTTL:        defaultPromptSessionTTL,
			RequestTimeout:    defaultPromptRequestTimeout,
			ConnectRetries:    defaultPromptConnectRetries,
			ConnectRetryDelay: defaultPromptConnectRetryDelay,
			MaxAttempts:       defaultPromptAttempts,
			RetryDelay:        defaultPromptRetryDelay,
			StoryBackground:   defaultStoryBackground,
			Template:          defaultPromptTemplate,
		},
		Render: Render{
			ServerAddress: defaultRenderServerAddress,
		},
		Pipeline: Pipeline{
			QueuePollInterval: defaultQueuePollInterval,
			FailurePause:      defaultFailurePause,
			FailureThreshold:  defaultFailureThreshold,
			HeartbeatInterval: defaultHeartbeatInterval,
			HeartbeatTimeout:  defaultHeartbeatTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			ImageReady:     true,
			Errors:         true,
			Devices:        true,
			Lifecycle:      true,
		},
	}
}
