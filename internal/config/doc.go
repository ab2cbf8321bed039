// Package config loads, normalizes, and validates evalpanel configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENROUTER_API_KEY and ANTHROPIC_API_KEY. The Config type centralizes every
// knob the daemon, worker, and CLI need so job policy (retry bound, stuck
// threshold, model allow-list) is discovered in one pass.
package config
