package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"shapelearner/internal/mesh"
)

const (
	DefaultWidth  = 800
	DefaultHeight = 800
)

var errNoMesh = errors.New("no mesh loaded")

// Options configures a Renderer.
type Options struct {
	Width  int
	Height int
}

// Renderer is a single rendering context. It is not safe for concurrent use.
type Renderer struct {
	width, height int
	parallel      bool

	mesh        *mesh.Mesh
	origin      mesh.Vec3
	radius      float64
	orientation mat3
	near, far   float64

	depth []float64
	img   *image.Gray
}

// New returns a renderer with an empty scene.
func New(opts Options) *Renderer {
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	return &Renderer{
		width:       opts.Width,
		height:      opts.Height,
		parallel:    true,
		orientation: identity(),
		near:        math.Inf(-1),
		far:         math.Inf(1),
		depth:       make([]float64, opts.Width*opts.Height),
		img:         image.NewGray(image.Rect(0, 0, opts.Width, opts.Height)),
	}
}

// SetMesh replaces the scene mesh, places the rotation origin at its
// bounding-box center, and restores the identity orientation.
func (r *Renderer) SetMesh(m *mesh.Mesh) error {
	if m == nil || m.Len() == 0 {
		return errNoMesh
	}
	r.mesh = m
	r.origin = m.Centroid()
	r.radius = m.Bounds().Radius()
	if r.radius == 0 {
		r.radius = 1
	}
	r.orientation = identity()
	r.ResetClippingRange()
	return nil
}

// SetParallelProjection toggles orthographic projection.
func (r *Renderer) SetParallelProjection(enabled bool) {
	r.parallel = enabled
}

// RotateZ rotates the object about its own Z axis by deg degrees.
func (r *Renderer) RotateZ(deg float64) {
	r.orientation = r.orientation.mul(rotationZ(deg))
}

// RotateX rotates the object about its own X axis by deg degrees.
func (r *Renderer) RotateX(deg float64) {
	r.orientation = r.orientation.mul(rotationX(deg))
}

// ResetClippingRange fits the depth range to the object's current pose.
func (r *Renderer) ResetClippingRange() {
	if r.mesh == nil {
		return
	}
	near, far := math.Inf(1), math.Inf(-1)
	for _, tri := range r.mesh.Triangles() {
		for _, p := range tri {
			z := r.transform(p).Z
			near = math.Min(near, z)
			far = math.Max(far, z)
		}
	}
	r.near, r.far = near, far
}

// ClippingRange returns the current depth range.
func (r *Renderer) ClippingRange() (near, far float64) {
	return r.near, r.far
}

// CaptureFrame renders the scene and encodes it as PNG to w.
func (r *Renderer) CaptureFrame(w io.Writer) error {
	if r.mesh == nil {
		return errNoMesh
	}
	r.draw()
	if err := png.Encode(w, r.img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// Image renders the scene and returns the frame. The returned image is reused by
// the next render.
func (r *Renderer) Image() (*image.Gray, error) {
	if r.mesh == nil {
		return nil, errNoMesh
	}
	r.draw()
	return r.img, nil
}

func (r *Renderer) transform(p mesh.Vec3) mesh.Vec3 {
	return r.orientation.apply(p.Sub(r.origin))
}

type screenPoint struct {
	x, y, z float64
}

func (r *Renderer) project(p mesh.Vec3) screenPoint {
	scale := float64(min(r.width, r.height)) / (2 * r.radius)
	if !r.parallel {
		dist := 4 * r.radius
		scale *= dist / math.Max(dist-p.Z, 1e-9)
	}
	return screenPoint{
		x: float64(r.width)/2 + p.X*scale,
		y: float64(r.height)/2 - p.Y*scale,
		z: p.Z,
	}
}

func (r *Renderer) draw() {
	for i := range r.img.Pix {
		r.img.Pix[i] = 0xff
	}
	for i := range r.depth {
		r.depth[i] = math.Inf(-1)
	}
	eps := 1e-9 * math.Max(1, r.radius)
	for _, tri := range r.mesh.Triangles() {
		a := r.project(r.transform(tri[0]))
		b := r.project(r.transform(tri[1]))
		c := r.project(r.transform(tri[2]))
		r.fill(a, b, c, eps)
	}
}

func (r *Renderer) fill(a, b, c screenPoint, eps float64) {
	area := edge(a, b, c.x, c.y)
	if math.Abs(area) < 1e-12 {
		return
	}
	minX := clampInt(int(math.Floor(math.Min(a.x, math.Min(b.x, c.x)))), 0, r.width-1)
	maxX := clampInt(int(math.Ceil(math.Max(a.x, math.Max(b.x, c.x)))), 0, r.width-1)
	minY := clampInt(int(math.Floor(math.Min(a.y, math.Min(b.y, c.y)))), 0, r.height-1)
	maxY := clampInt(int(math.Ceil(math.Max(a.y, math.Max(b.y, c.y)))), 0, r.height-1)

	black := color.Gray{Y: 0}
	for y := minY; y <= maxY; y++ {
		py := float64(y) + 0.5
		for x := minX; x <= maxX; x++ {
			px := float64(x) + 0.5
			w0 := edge(b, c, px, py) / area
			w1 := edge(c, a, px, py) / area
			w2 := edge(a, b, px, py) / area
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}
			z := w0*a.z + w1*b.z + w2*c.z
			if z < r.near-eps || z > r.far+eps {
				continue
			}
			idx := y*r.width + x
			if z <= r.depth[idx] {
				continue
			}
			r.depth[idx] = z
			r.img.SetGray(x, y, black)
		}
	}
}

func edge(a, b screenPoint, x, y float64) float64 {
	return (b.x-a.x)*(y-a.y) - (b.y-a.y)*(x-a.x)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
