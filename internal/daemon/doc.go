// Package daemon coordinates the long-running Murmur process and system
// integration points.
//
// It wires configuration, queue storage, and the pipeline manager into a
// single lifecycle with flock-based locking to prevent multiple instances.
// The daemon exposes queue maintenance helpers, reports combined status with
// dependency health, watches the sound subsystem for device hotplug, and
// decides how shutdown proceeds: drain lets queued clips finish, a plain stop
// interrupts them.
//
// Keep orchestration logic here: individual pipeline stages live in their
// respective packages while the daemon focuses on startup, shutdown, and high
// level coordination.
package daemon
