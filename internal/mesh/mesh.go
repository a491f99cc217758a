package mesh

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/sanchez-kim/obj-viewer/internal/geom"
)

// Mesh holds the vertex positions of one frame in file order.
// Faces, normals and texture coordinates are not kept.
type Mesh struct {
	Vertices []geom.Vec3
}

// Parser turns raw mesh bytes into a Mesh.
type Parser interface {
	Parse(data []byte) (*Mesh, error)
}

// ParseError reports a malformed vertex record.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("mesh line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// OBJParser reads the "v x y z" records of a Wavefront OBJ file.
type OBJParser struct{}

func (OBJParser) Parse(data []byte) (*Mesh, error) {
	return ReadOBJ(bytes.NewReader(data))
}

// ReadOBJ scans r for vertex position records. Lines with any other prefix
// are ignored. A record with a missing or non-finite coordinate fails the
// whole file.
func ReadOBJ(r io.Reader) (*Mesh, error) {
	m := &Mesh{Vertices: make([]geom.Vec3, 0, 1024)}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if !strings.HasPrefix(line, "v ") {
			continue
		}

		fields := strings.Fields(line[2:])
		if len(fields) < 3 {
			return nil, &ParseError{Line: lineNo, Text: line, Err: fmt.Errorf("expected 3 coordinates, got %d", len(fields))}
		}

		var v geom.Vec3
		for i := 0; i < 3; i++ {
			f, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, &ParseError{Line: lineNo, Text: line, Err: err}
			}
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, &ParseError{Line: lineNo, Text: line, Err: fmt.Errorf("non-finite coordinate %q", fields[i])}
			}
			v[i] = f
		}
		m.Vertices = append(m.Vertices, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read mesh: %w", err)
	}
	return m, nil
}

// Bounds returns the bounding box of every vertex in the mesh.
func (m *Mesh) Bounds() (geom.Box, error) {
	return geom.BoundingBox(m.Vertices)
}

// Translate returns a copy of the mesh shifted by offset.
func (m *Mesh) Translate(offset geom.Vec3) *Mesh {
	out := &Mesh{Vertices: make([]geom.Vec3, len(m.Vertices))}
	for i, v := range m.Vertices {
		out.Vertices[i] = v.Add(offset)
	}
	return out
}

// Recenter moves the mesh so its bounding box is centred on the origin.
// It returns the shifted copy and the offset that was applied.
func (m *Mesh) Recenter() (*Mesh, geom.Vec3, error) {
	box, err := m.Bounds()
	if err != nil {
		return nil, geom.Vec3{}, err
	}
	offset := box.Center().Mul(-1)
	return m.Translate(offset), offset, nil
}
