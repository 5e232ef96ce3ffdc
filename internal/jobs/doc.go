// Package jobs persists part-recognition jobs and enforces their status
// lifecycle.
//
// Jobs live in a SQLite database. They are created in the Created status,
// move forward through InProgress, and finish in Completed or Failed. Terminal
// jobs are never mutated again. Updates are compare-and-swap writes against the
// status observed just before the write, so concurrent workers cannot
// silently overwrite a terminal status with a stale update. Classification
// results are attached to jobs in a companion table. Rows are never deleted.
package jobs
