package mesh

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"shapelearner/internal/services"
)

const (
	stlHeaderSize   = 80
	stlFacetSize    = 50
	stlMaxTriangles = 50_000_000
)

var errEmptyMesh = errors.New("mesh has no triangles")

// Load reads an STL file from disk. Unreadable or malformed files are reported
// as render errors so batch callers can skip the mesh and continue.
func Load(path string) (*Mesh, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrRender, "mesh", "load", path, err)
	}
	m, err := Decode(BaseName(path), data)
	if err != nil {
		return nil, services.Wrap(services.ErrRender, "mesh", "decode", path, err)
	}
	return m, nil
}

// Decode parses STL bytes, detecting binary versus ASCII encoding.
func Decode(name string, data []byte) (*Mesh, error) {
	var (
		tris []Triangle
		err  error
	)
	if isBinarySTL(data) {
		tris, err = decodeBinary(data)
	} else {
		tris, err = decodeASCII(bytes.NewReader(data))
	}
	if err != nil {
		return nil, err
	}
	if len(tris) == 0 {
		return nil, errEmptyMesh
	}
	return New(name, tris), nil
}

// isBinarySTL trusts the facet count when it matches the payload length; some
// exporters write "solid" at the start of binary headers.
func isBinarySTL(data []byte) bool {
	if len(data) < stlHeaderSize+4 {
		return false
	}
	count := binary.LittleEndian.Uint32(data[stlHeaderSize : stlHeaderSize+4])
	expected := uint64(stlHeaderSize+4) + uint64(count)*stlFacetSize
	if expected == uint64(len(data)) {
		return true
	}
	return !bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("solid"))
}

func decodeBinary(data []byte) ([]Triangle, error) {
	count := binary.LittleEndian.Uint32(data[stlHeaderSize : stlHeaderSize+4])
	if count > stlMaxTriangles {
		return nil, fmt.Errorf("binary stl declares %d triangles", count)
	}
	body := data[stlHeaderSize+4:]
	if uint64(len(body)) < uint64(count)*stlFacetSize {
		return nil, fmt.Errorf("binary stl truncated: %d triangles declared, %d bytes present", count, len(body))
	}
	tris := make([]Triangle, count)
	for i := range tris {
		facet := body[i*stlFacetSize:]
		// Skip the 12-byte normal; it is recomputed from winding when needed.
		for v := 0; v < 3; v++ {
			off := 12 + v*12
			tris[i][v] = Vec3{
				X: float64(readFloat32(facet[off:])),
				Y: float64(readFloat32(facet[off+4:])),
				Z: float64(readFloat32(facet[off+8:])),
			}
		}
	}
	return tris, nil
}

func readFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func decodeASCII(r io.Reader) ([]Triangle, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		tris    []Triangle
		current Triangle
		n       int
		line    int
		sawHead bool
	)
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch strings.ToLower(fields[0]) {
		case "solid":
			sawHead = true
		case "facet":
			n = 0
		case "vertex":
			if len(fields) != 4 {
				return nil, fmt.Errorf("line %d: vertex needs 3 coordinates", line)
			}
			if n >= 3 {
				return nil, fmt.Errorf("line %d: facet has more than 3 vertices", line)
			}
			var coords [3]float64
			for i := 0; i < 3; i++ {
				value, err := strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				coords[i] = value
			}
			current[n] = Vec3{coords[0], coords[1], coords[2]}
			n++
		case "endfacet":
			if n != 3 {
				return nil, fmt.Errorf("line %d: facet has %d vertices", line, n)
			}
			tris = append(tris, current)
		case "outer", "endloop", "endsolid":
		default:
			return nil, fmt.Errorf("line %d: unexpected token %q", line, fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !sawHead {
		return nil, errors.New("ascii stl missing solid header")
	}
	return tris, nil
}

// EncodeBinary writes triangles as a binary STL. Normals are written as zero.
func EncodeBinary(w io.Writer, tris []Triangle) error {
	header := make([]byte, stlHeaderSize+4)
	copy(header, "shapelearner")
	binary.LittleEndian.PutUint32(header[stlHeaderSize:], uint32(len(tris)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	facet := make([]byte, stlFacetSize)
	for _, tri := range tris {
		clear(facet)
		for v, p := range tri {
			off := 12 + v*12
			binary.LittleEndian.PutUint32(facet[off:], math.Float32bits(float32(p.X)))
			binary.LittleEndian.PutUint32(facet[off+4:], math.Float32bits(float32(p.Y)))
			binary.LittleEndian.PutUint32(facet[off+8:], math.Float32bits(float32(p.Z)))
		}
		if _, err := w.Write(facet); err != nil {
			return err
		}
	}
	return nil
}
