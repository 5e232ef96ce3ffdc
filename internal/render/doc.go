// Package render derives the deterministic multi-view rotation schedule used to
// capture canonical projections of a mesh.
//
// A difficulty is an ordered list of latitude band sizes. The schedule walks
// every band in order, capturing one view per step and rotating the object
// horizontally between steps and vertically between bands. The package is pure:
// no I/O, no hidden state, and identical inputs always yield identical steps.
package render
