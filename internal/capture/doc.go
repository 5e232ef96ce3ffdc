// Package capture drives a rendering context through a rotation schedule to
// produce the multi-view images of a mesh.
//
// A Capturer owns exactly one rendering context and serializes runs against it
// with an in-process mutex and, optionally, a lock file shared with other
// processes. Batch walks a category tree of meshes and spreads them over
// independent capturers, reporting failed meshes without stopping the batch.
package capture
