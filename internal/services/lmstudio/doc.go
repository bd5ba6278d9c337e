// Package lmstudio talks to the local language model server over its
// websocket endpoint. A Session is one live connection; Complete sends a
// completion request and collects the streamed reply frames. The Manager
// owns session lifecycle: it reuses a session within a TTL window, dials
// with linear backoff when a fresh one is needed, time-boxes every
// completion call, and retires a session after each successful request so
// no two completions ever share backend state.
package lmstudio
