// Package config loads, normalizes, and validates aurax configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// AURAX_INFERENCE_API_KEY and OPENAI_API_KEY. The Config type centralizes every
// knob the daemon and CLI need: pipeline attempt ceilings and quality gates,
// per-stage timeout and retry policies, collaborator endpoints, payload
// storage, and notification settings.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, merged stage policies, and clear validation errors.
package config
