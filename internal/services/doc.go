// Package services defines shared utilities consumed by the evaluation
// components and the daemon surface.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, correlation identifiers,
//     and the caller identity supplied by the external auth layer.
//   - Structured error markers plus the Wrap helper so validation, lookup,
//     and worker failures classify consistently across the CLI and HTTP API.
//
// Use these helpers when wiring new components so operational behaviour (error
// handling, observability, tenant scoping) stays uniform.
package services
