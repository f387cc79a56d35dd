// Package config loads, normalizes, and validates songfactory configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads optional .env files, and honours
// environment fallbacks such as MUSICGPT_API_KEY. The Config type centralizes
// every knob the CLI, the job runners and serve mode need, so library/state
// directories, polling budgets and automation timeouts are discovered in one
// pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
