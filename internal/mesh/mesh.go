package mesh

import (
	"math"
	"path/filepath"
	"strings"
)

// Vec3 is a point or direction in model space.
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

func (v Vec3) Scale(f float64) Vec3 { return Vec3{v.X * f, v.Y * f, v.Z * f} }

// Triangle is one facet of the surface.
type Triangle [3]Vec3

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	Min Vec3
	Max Vec3
}

// Center returns the midpoint of the box.
func (b Bounds) Center() Vec3 {
	return Vec3{
		X: (b.Min.X + b.Max.X) / 2,
		Y: (b.Min.Y + b.Max.Y) / 2,
		Z: (b.Min.Z + b.Max.Z) / 2,
	}
}

// Size returns the box extent along each axis.
func (b Bounds) Size() Vec3 {
	return b.Max.Sub(b.Min)
}

// Radius returns half the box diagonal, the largest distance from the center
// to any contained point.
func (b Bounds) Radius() float64 {
	s := b.Size()
	return math.Sqrt(s.X*s.X+s.Y*s.Y+s.Z*s.Z) / 2
}

// Mesh is an immutable triangle soup with precomputed bounds.
type Mesh struct {
	name      string
	triangles []Triangle
	bounds    Bounds
}

// New builds a mesh from triangles. Name is usually the source file base name
// without extension.
func New(name string, triangles []Triangle) *Mesh {
	tris := make([]Triangle, len(triangles))
	copy(tris, triangles)
	return &Mesh{name: name, triangles: tris, bounds: computeBounds(tris)}
}

// Name identifies the mesh.
func (m *Mesh) Name() string { return m.name }

// Bounds returns the axis-aligned bounding box.
func (m *Mesh) Bounds() Bounds { return m.bounds }

// Centroid returns the bounding-box center used as the rotation origin.
func (m *Mesh) Centroid() Vec3 { return m.bounds.Center() }

// Triangles returns the facets. Callers must not modify the returned slice.
func (m *Mesh) Triangles() []Triangle { return m.triangles }

// Len reports the number of facets.
func (m *Mesh) Len() int { return len(m.triangles) }

// BaseName strips directory and extension from a mesh path.
func BaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func computeBounds(tris []Triangle) Bounds {
	if len(tris) == 0 {
		return Bounds{}
	}
	inf := math.Inf(1)
	b := Bounds{Min: Vec3{inf, inf, inf}, Max: Vec3{-inf, -inf, -inf}}
	for _, tri := range tris {
		for _, p := range tri {
			b.Min.X = math.Min(b.Min.X, p.X)
			b.Min.Y = math.Min(b.Min.Y, p.Y)
			b.Min.Z = math.Min(b.Min.Z, p.Z)
			b.Max.X = math.Max(b.Max.X, p.X)
			b.Max.Y = math.Max(b.Max.Y, p.Y)
			b.Max.Z = math.Max(b.Max.Z, p.Z)
		}
	}
	return b
}
