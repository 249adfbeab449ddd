// Package config loads, normalizes, and validates metaprop configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// METAPROP_POSTGRES_DSN. The Config type centralizes every knob the daemon and
// CLI need: where the record and queue databases live, how often the drain
// worker runs, and which enhancers are registered (in order).
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
