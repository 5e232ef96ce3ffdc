// Package config loads, normalizes, and validates shapelearner configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SHAPELEARNER_STORE_DSN. The Config type centralizes every knob the daemon and
// CLI need: storage locations, the render difficulty, classifier settings, the
// model snapshot backend, and the external feature extractor.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
