package landmark

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/sanchez-kim/obj-viewer/internal/geom"
	"github.com/sanchez-kim/obj-viewer/internal/types"
)

// ErrNoLipVertices is returned when metadata has no "3d_data.lip_vertices" section.
var ErrNoLipVertices = errors.New("metadata has no 3d_data.lip_vertices")

// Landmark is one named point checked against the padded boxes.
type Landmark struct {
	Key string
	Pos geom.Vec3
}

// WarnFunc receives non-fatal resolution problems.
type WarnFunc func(format string, args ...any)

// ParseIndices reads a comma-separated list of vertex indices.
// Whitespace and newlines around entries are ignored; an empty input yields
// an empty list.
func ParseIndices(r io.Reader) ([]int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, nil
	}

	parts := strings.Split(text, ",")
	indices := make([]int, 0, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" && i == len(parts)-1 {
			// trailing comma
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("index entry %d %q: %w", i, p, err)
		}
		indices = append(indices, n)
	}
	return indices, nil
}

// LoadIndices reads an index file from disk.
func LoadIndices(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	indices, err := ParseIndices(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return indices, nil
}

// ParseMetadata extracts the lip landmarks from frame metadata JSON. The
// coordinates are used as given; they are not indices into the mesh.
func ParseMetadata(data []byte) ([]Landmark, error) {
	var meta types.FrameMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if meta.Data == nil || meta.Data.LipVertices == nil {
		return nil, ErrNoLipVertices
	}

	out := make([]Landmark, 0, len(meta.Data.LipVertices))
	for key, xyz := range meta.Data.LipVertices {
		if len(xyz) != 3 {
			return nil, fmt.Errorf("lip vertex %q: expected [x, y, z], got %d values", key, len(xyz))
		}
		for _, c := range xyz {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return nil, fmt.Errorf("lip vertex %q: non-finite coordinate", key)
			}
		}
		out = append(out, Landmark{Key: key, Pos: geom.Vec3{xyz[0], xyz[1], xyz[2]}})
	}
	Sort(out)
	return out, nil
}

// Resolve looks indices up in vertices. Indices outside the vertex list are
// reported through warn and skipped.
func Resolve(indices []int, vertices []geom.Vec3, warn WarnFunc) []Landmark {
	out := make([]Landmark, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(vertices) {
			if warn != nil {
				warn("Vertex index %d is out of bounds (mesh has %d vertices)", idx, len(vertices))
			}
			continue
		}
		out = append(out, Landmark{Key: strconv.Itoa(idx), Pos: vertices[idx]})
	}
	return out
}

// Positions returns the coordinates of the landmarks in order.
func Positions(ls []Landmark) []geom.Vec3 {
	out := make([]geom.Vec3, len(ls))
	for i, l := range ls {
		out[i] = l.Pos
	}
	return out
}

// Sort orders landmarks by key: numeric keys numerically first, then the
// rest lexicographically.
func Sort(ls []Landmark) {
	sort.Slice(ls, func(i, j int) bool {
		return KeyLess(ls[i].Key, ls[j].Key)
	})
}

// KeyLess is the ordering used for landmark keys in results and logs.
func KeyLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	return a < b
}
