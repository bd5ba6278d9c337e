// Package whisper shells out to faster-whisper (via the whisper-ctranslate2
// CLI under uvx) to transcribe captured audio clips. The service builds the
// command line from the transcription config, runs it with a cancellable
// context, and parses the JSON output into plain transcript text. A custom
// command runner can be injected for tests.
package whisper
