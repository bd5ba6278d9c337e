// Package language normalizes user-supplied language hints.
//
// The transcription configuration accepts anything a person might type
// ("en", "eng", "English"); whisper wants ISO 639-1. Conversions live
// here so the transcription service and log messages agree on them.
package language
