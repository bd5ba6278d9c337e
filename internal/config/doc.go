// Package config loads, normalizes, and validates Murmur configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// MURMUR_NTFY_TOPIC. The Config type centralizes every knob the daemon and
// CLI need, allowing artifact directories and backend addresses to be
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
