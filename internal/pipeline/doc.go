// Package pipeline runs the capture-to-image loop.
//
// The Manager owns two goroutines. The capture loop records fixed-length
// clips and enqueues them; any capture failure logs, pauses briefly, and
// the loop carries on. The processing loop reclaims stale work via
// heartbeats, claims the oldest eligible item, and advances it through the
// transcribe, promptgen, and render handlers one stage at a time. A stage
// failure marks that item failed and the loop moves to the next item; the
// pipeline itself never stops over a bad clip.
//
// Stop cancels both loops immediately. RequestDrain stops only the capture
// loop; the processing loop finishes everything already enqueued, in
// submission order, and then exits. Consecutive item failures are counted,
// and at the configured threshold the language model session is invalidated
// once so a wedged connection cannot poison every following clip.
package pipeline
