// Package daemon coordinates the long-running shapelearner process.
//
// It wires the job store, the classifier service, and the feature and model
// stores into a single lifecycle with flock-based locking to prevent multiple
// instances. On start the daemon activates the latest persisted model (or fits
// one when configured to) and serves the HTTP API: job creation and updates,
// predictions by feature row id, model recomputation, status, and Prometheus
// metrics.
//
// Keep orchestration logic here: classification, persistence, and capture live
// in their respective packages while the daemon focuses on startup, shutdown,
// and request plumbing.
package daemon
