// Package pipeline drives one part from mesh to classification.
//
// A run moves its job to InProgress, captures the mesh views, asks the
// extractor for a feature row, classifies that row with the active model,
// attaches the ranked classes to the job, and finishes the job as Completed.
// Any failing stage finishes the job as Failed with the error as its message.
package pipeline
