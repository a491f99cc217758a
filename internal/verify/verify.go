package verify

import (
	"fmt"

	"github.com/sanchez-kim/obj-viewer/internal/geom"
	"github.com/sanchez-kim/obj-viewer/internal/landmark"
	"github.com/sanchez-kim/obj-viewer/internal/mesh"
)

// DefaultOutline is the mouth outline of the canonical face topology.
var DefaultOutline = []int{12974, 7024, 21433, 18424, 7007}

// Reason names why a frame did or did not pass.
type Reason string

const (
	ReasonPassed        Reason = "passed"
	ReasonOutsideTier1  Reason = "outside-tier1"
	ReasonOutsideTier2  Reason = "outside-tier2"
	ReasonBelowMinCount Reason = "below-min-count"
)

// PassPolicy selects which conditions fail a frame.
type PassPolicy string

const (
	// PolicyStrict fails on either tier and on a landmark count below the minimum.
	PolicyStrict PassPolicy = "strict"
	// PolicyTiers fails on either tier; a low count is only reported.
	PolicyTiers PassPolicy = "tiers"
	// PolicyTier2 fails only on the outer tier.
	PolicyTier2 PassPolicy = "tier2"
)

// LipSource selects where lip landmarks come from.
type LipSource string

const (
	LipsFromMetadata LipSource = "metadata"
	LipsFromIndices  LipSource = "index"
)

// Options configures a Verifier.
type Options struct {
	Tier1         geom.Padding
	Tier2         geom.Padding
	Normalize     bool
	ReferenceSize float64
	Recenter      bool
	MinLandmarks  int
	Policy        PassPolicy
	LipSource     LipSource
}

// DefaultOptions returns the two-tier 50x40 / 100x80 scheme with the strict
// policy and the 4410 landmark minimum.
func DefaultOptions() Options {
	return Options{
		Tier1:         geom.Padding{X: 50, Y: 40, Z: 0},
		Tier2:         geom.Padding{X: 100, Y: 80, Z: 0},
		ReferenceSize: 1000,
		MinLandmarks:  4410,
		Policy:        PolicyStrict,
		LipSource:     LipsFromMetadata,
	}
}

// Result is the verdict for one frame.
type Result struct {
	TotalCount   int
	OutsideTier1 []string
	OutsideTier2 []string
	// Conditions lists every problem found, whether or not the policy fails on it.
	Conditions []Reason
	Passed     bool
	Reason     Reason

	Box   geom.Box
	Tier1 geom.Box
	Tier2 geom.Box
	Scale float64
}

// BelowMinCount reports whether the landmark count was under the minimum.
func (r Result) BelowMinCount() bool {
	return r.has(ReasonBelowMinCount)
}

func (r Result) has(reason Reason) bool {
	for _, c := range r.Conditions {
		if c == reason {
			return true
		}
	}
	return false
}

// Verifier checks frames against the outline box. It holds no per-frame state.
type Verifier struct {
	parser     mesh.Parser
	outline    []int
	lipIndices []int
	opts       Options
}

// New builds a Verifier. lipIndices is only used with LipsFromIndices.
func New(parser mesh.Parser, outline, lipIndices []int, opts Options) (*Verifier, error) {
	if parser == nil {
		return nil, fmt.Errorf("verify: nil mesh parser")
	}
	if len(outline) == 0 {
		return nil, fmt.Errorf("verify: empty outline index list")
	}
	switch opts.Policy {
	case PolicyStrict, PolicyTiers, PolicyTier2:
	case "":
		opts.Policy = PolicyStrict
	default:
		return nil, fmt.Errorf("verify: unknown pass policy %q", opts.Policy)
	}
	switch opts.LipSource {
	case LipsFromMetadata:
	case "":
		opts.LipSource = LipsFromMetadata
	case LipsFromIndices:
		if len(lipIndices) == 0 {
			return nil, fmt.Errorf("verify: lip source %q needs a lip index list", LipsFromIndices)
		}
	default:
		return nil, fmt.Errorf("verify: unknown lip source %q", opts.LipSource)
	}
	if opts.MinLandmarks < 0 {
		return nil, fmt.Errorf("verify: negative landmark minimum %d", opts.MinLandmarks)
	}
	return &Verifier{parser: parser, outline: outline, lipIndices: lipIndices, opts: opts}, nil
}

// Verify parses one frame's mesh and metadata and checks it. warn receives
// out-of-range index notices and may be nil.
func (v *Verifier) Verify(meshData, metaData []byte, warn landmark.WarnFunc) (Result, error) {
	m, err := v.parser.Parse(meshData)
	if err != nil {
		return Result{}, err
	}

	var lips []landmark.Landmark
	if v.opts.LipSource == LipsFromMetadata {
		if lips, err = landmark.ParseMetadata(metaData); err != nil {
			return Result{}, err
		}
	}
	return v.Check(m, lips, warn)
}

// Check runs the box/padding/containment pipeline on a parsed mesh. In
// metadata mode lips holds the landmarks; in index mode it is ignored and
// the landmarks are looked up in the mesh.
func (v *Verifier) Check(m *mesh.Mesh, lips []landmark.Landmark, warn landmark.WarnFunc) (Result, error) {
	scale := 1.0
	if v.opts.Normalize {
		meshBox, err := m.Bounds()
		if err != nil {
			return Result{}, fmt.Errorf("mesh bounds: %w", err)
		}
		scale = geom.NormalizationScale(meshBox, v.opts.ReferenceSize)
	}
	if v.opts.Recenter {
		var err error
		if m, _, err = m.Recenter(); err != nil {
			return Result{}, fmt.Errorf("recenter mesh: %w", err)
		}
	}

	outline := landmark.Resolve(v.outline, m.Vertices, warn)
	box, err := geom.BoundingBox(landmark.Positions(outline))
	if err != nil {
		return Result{}, fmt.Errorf("outline of %d indices over %d vertices: %w", len(v.outline), len(m.Vertices), err)
	}

	if v.opts.LipSource == LipsFromIndices {
		lips = landmark.Resolve(v.lipIndices, m.Vertices, warn)
	}

	res := Result{
		TotalCount: len(lips),
		Box:        box,
		Tier1:      box.Pad(v.opts.Tier1, scale),
		Tier2:      box.Pad(v.opts.Tier2, scale),
		Scale:      scale,
	}
	res.OutsideTier1, res.OutsideTier2 = Classify(lips, res.Tier1, res.Tier2)
	v.judge(&res)
	return res, nil
}

// Classify returns the keys of landmarks outside each tier box.
func Classify(lips []landmark.Landmark, tier1, tier2 geom.Box) (outside1, outside2 []string) {
	for _, l := range lips {
		if !tier1.Contains(l.Pos) {
			outside1 = append(outside1, l.Key)
		}
		if !tier2.Contains(l.Pos) {
			outside2 = append(outside2, l.Key)
		}
	}
	return outside1, outside2
}

func (v *Verifier) judge(r *Result) {
	if len(r.OutsideTier2) > 0 {
		r.Conditions = append(r.Conditions, ReasonOutsideTier2)
	}
	if len(r.OutsideTier1) > 0 {
		r.Conditions = append(r.Conditions, ReasonOutsideTier1)
	}
	if r.TotalCount < v.opts.MinLandmarks {
		r.Conditions = append(r.Conditions, ReasonBelowMinCount)
	}

	r.Passed = true
	r.Reason = ReasonPassed
	for _, c := range r.Conditions {
		if v.failsOn(c) {
			r.Passed = false
			r.Reason = c
			return
		}
	}
}

func (v *Verifier) failsOn(c Reason) bool {
	switch v.opts.Policy {
	case PolicyTier2:
		return c == ReasonOutsideTier2
	case PolicyTiers:
		return c == ReasonOutsideTier1 || c == ReasonOutsideTier2
	}
	return true
}
