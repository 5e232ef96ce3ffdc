// Package raster is a small software rendering context for silhouette capture.
//
// A Renderer holds one mesh centered at its bounding-box center, a fixed camera
// on the +Z axis looking at the origin with +Y up, and an object orientation that
// accumulates rotations in the object's own frame. Frames are drawn black on a
// white background and encoded as PNG. Geometry outside the current depth
// clipping range is discarded, so callers must reset the range after rotating.
package raster
