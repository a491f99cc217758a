package geom

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Vec3 is a point or offset in mesh space.
type Vec3 = mgl64.Vec3

// ErrDegenerate is returned when no point contributed to a bounding box.
var ErrDegenerate = errors.New("degenerate geometry: no points to bound")

// Box is an axis-aligned bounding box. It is a value type: copying a Box
// copies both corners, so padding one never affects another.
type Box struct {
	Min Vec3
	Max Vec3
}

// Padding is the per-axis tolerance of one tier, in pixel-equivalent units.
type Padding struct {
	X float64 `mapstructure:"x" json:"x"`
	Y float64 `mapstructure:"y" json:"y"`
	Z float64 `mapstructure:"z" json:"z"`
}

// Vec returns the padding as an offset vector.
func (p Padding) Vec() Vec3 {
	return Vec3{p.X, p.Y, p.Z}
}

// Add returns the sum of two paddings.
func (p Padding) Add(o Padding) Padding {
	return Padding{X: p.X + o.X, Y: p.Y + o.Y, Z: p.Z + o.Z}
}

// BoundingBox returns the tightest box enclosing points.
func BoundingBox(points []Vec3) (Box, error) {
	if len(points) == 0 {
		return Box{}, ErrDegenerate
	}
	b := Box{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		b.Min = minVec(b.Min, p)
		b.Max = maxVec(b.Max, p)
	}
	return b, nil
}

// Pad grows the box by pad*scale on every side. The receiver is not modified.
func (b Box) Pad(pad Padding, scale float64) Box {
	off := pad.Vec().Mul(scale)
	return Box{Min: b.Min.Sub(off), Max: b.Max.Add(off)}
}

// Contains reports whether p lies inside the box, faces included.
func (b Box) Contains(p Vec3) bool {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] || p[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// Size returns the edge lengths of the box.
func (b Box) Size() Vec3 {
	return b.Max.Sub(b.Min)
}

// Center returns the geometric centre of the box.
func (b Box) Center() Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// LargestDimension returns the longest edge of the box.
func (b Box) LargestDimension() float64 {
	s := b.Size()
	return math.Max(s[0], math.Max(s[1], s[2]))
}

func (b Box) String() string {
	return fmt.Sprintf("min(%.4f, %.4f, %.4f) max(%.4f, %.4f, %.4f)",
		b.Min[0], b.Min[1], b.Min[2], b.Max[0], b.Max[1], b.Max[2])
}

// NormalizationScale maps a fixed tolerance onto the size of a mesh: the
// largest dimension of meshBox divided by reference. Non-positive results
// fall back to 1 so that padding stays a raw world-space amount.
func NormalizationScale(meshBox Box, reference float64) float64 {
	if reference <= 0 {
		return 1
	}
	s := meshBox.LargestDimension() / reference
	if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return 1
	}
	return s
}

func minVec(a, b Vec3) Vec3 {
	return Vec3{math.Min(a[0], b[0]), math.Min(a[1], b[1]), math.Min(a[2], b[2])}
}

func maxVec(a, b Vec3) Vec3 {
	return Vec3{math.Max(a[0], b[0]), math.Max(a[1], b[1]), math.Max(a[2], b[2])}
}
