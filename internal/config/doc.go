// Package config loads, normalizes, and validates Morph configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// MORPH_API_TOKEN and MINIO_SECRET_KEY. The Config type centralizes every
// knob the daemon and CLI need, allowing inbox/output directories, conversion
// limits, and external service credentials to be discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
