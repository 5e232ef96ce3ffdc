// Package mesh loads triangulated surface meshes from STL files and exposes
// their axis-aligned bounds. Both binary and ASCII STL encodings are accepted.
package mesh
