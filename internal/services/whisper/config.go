package whisper

// Transcription defaults applied when the config leaves a field unset.
const (
	DefaultModel        = "large-v3"
	DefaultTask         = "transcribe"
	DefaultBeamSize     = 8
	DefaultMinSilenceMs = 1000
	PypiIndexURL        = "https://pypi.org/simple"
	OutputFormat        = "json"
	DeviceAuto          = "auto"
	ComputeTypeAuto     = "auto"
)

// Command names for external tools.
const (
	UVXCommand     = "uvx"
	WhisperCommand = "whisper-ctranslate2"
)
