// Package services defines shared utilities consumed by the capture pipeline,
// the job tracker, the classifier, and the HTTP API.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent transport statuses and retry decisions.
//
// Use these helpers when wiring new components so operational behaviour (error
// handling, observability, retries) stays uniform across the system.
package services
