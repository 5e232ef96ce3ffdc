// Package api defines wire-format types and converters for the HTTP API
// layer. It translates internal job and classifier models into
// transport-friendly DTOs without coupling clients to internal types.
//
// # Key Types
//
// JobStatus: transport representation of a job, keyed by idJob.
//
// UpdateJobRequest: the worker-facing update payload. Numeric fields accept
// either JSON numbers or numeric strings, matching what older workers send.
//
// PredictResponse: ranked [label, probability] pairs plus the feature row id.
//
// DaemonStatus: aggregated runtime information including the active model.
//
// # Converters
//
// FromJob, FromResult, FromPrediction, FromModel map internal records to DTOs.
// ParsePredict validates the id, nmax, and pmax route parameters and builds
// the classifier filter; its messages are part of the wire contract.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Job statuses are exposed as their canonical
// names. Timestamps use RFC3339 with milliseconds.
package api
