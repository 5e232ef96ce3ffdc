// Package preflight provides readiness checks for the stores, directories,
// and external extractor shapelearner depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and refuses to serve when a store is
//     unreachable.
//   - The CLI "shapelearner preflight" command prints every result.
//
// The extractor check is skipped when extraction is disabled.
package preflight
