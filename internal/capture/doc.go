// Package capture records fixed-length clips from an audio input device.
//
// Recorder owns device selection (explicit substring, loopback keyword
// search, then the system default input), records interleaved float32
// samples through a Backend, and writes each clip as 16-bit PCM WAV into
// the audio directory. The portaudio Backend is the production
// implementation; tests inject a scripted one.
package capture
