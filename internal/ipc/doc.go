// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management, request/response DTOs, and conversions
// between queue models and lightweight wire representations. The protocol is
// deliberately small: liveness, status, shutdown, and queue maintenance. Log
// access and notification tests stay CLI-side where the config already
// provides everything needed.
package ipc
