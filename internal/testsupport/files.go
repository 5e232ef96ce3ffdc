package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"shapelearner/internal/mesh"
)

// WriteCube writes a binary STL of an axis-aligned box to path, creating
// parent directories as needed.
func WriteCube(t testing.TB, path string, size float64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	half := size / 2
	tris := mesh.Box(mesh.Vec3{X: -half, Y: -half, Z: -half}, mesh.Vec3{X: half, Y: half, Z: half})
	if err := mesh.EncodeBinary(f, tris); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

// WriteFile writes raw bytes to path, creating parent directories as needed.
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
