// Package queue persists pipeline items in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store manages database connections, schema initialization, stats queries,
// heartbeat tracking, stuck-item recovery, and status transitions that mirror
// the capture-to-image pipeline. Queue items carry the captured clip path plus
// the transcript, prompt, and rendered image produced by later stages, so the
// processing loop can resume any item from the artifacts recorded here.
//
// The database is treated as transient storage for in-flight work rather than
// a long-term archive. Schema changes bump the version in schema.go; users
// clear the database to adopt the new schema.
//
// Treat this package as the single source of truth for queue semantics; when you
// add new statuses or artifact fields, update schema.sql and bump schemaVersion.
package queue
