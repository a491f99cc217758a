package address

import (
	"fmt"
	"sort"
	"strconv"
)

// Range is an inclusive interval of numbers.
type Range struct {
	Start int
	End   int
}

// Contains reports whether n is within the range.
func (r Range) Contains(n int) bool {
	return n >= r.Start && n <= r.End
}

// Len returns the number of values in the range.
func (r Range) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Partitions maps a model number to its inclusive sentence range.
type Partitions map[int]Range

// DefaultPartitions is the model/sentence split of the reprocessed dataset.
func DefaultPartitions() Partitions {
	return Partitions{
		1:  {0, 500},
		2:  {501, 1000},
		3:  {1001, 1500},
		4:  {1501, 2000},
		5:  {2006, 2500},
		6:  {2501, 3000},
		7:  {3001, 3500},
		8:  {3501, 4000},
		9:  {4001, 4500},
		10: {4501, 5000},
	}
}

// ParsePartitions builds a table from config values keyed by model number,
// each holding a [start, end] pair.
func ParsePartitions(raw map[string][]int) (Partitions, error) {
	p := make(Partitions, len(raw))
	for key, bounds := range raw {
		model, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("model %q: not a number", key)
		}
		if len(bounds) != 2 {
			return nil, fmt.Errorf("model %d: expected [start, end], got %v", model, bounds)
		}
		r := Range{Start: bounds[0], End: bounds[1]}
		if err := r.validate(SentenceWidth); err != nil {
			return nil, fmt.Errorf("model %d: %w", model, err)
		}
		if !inWidth(model, ModelWidth) {
			return nil, fmt.Errorf("model %d does not fit %d digits", model, ModelWidth)
		}
		p[model] = r
	}
	return p, nil
}

// Models returns the model numbers in ascending order.
func (p Partitions) Models() []int {
	models := make([]int, 0, len(p))
	for m := range p {
		models = append(models, m)
	}
	sort.Ints(models)
	return models
}

// Only returns the sub-table for the given models.
func (p Partitions) Only(models ...int) (Partitions, error) {
	out := make(Partitions, len(models))
	for _, m := range models {
		r, ok := p[m]
		if !ok {
			return nil, fmt.Errorf("model number %d is not defined in the partition table", m)
		}
		out[m] = r
	}
	return out, nil
}

// Sentence is one (model, sentence) cell of the walk.
type Sentence struct {
	Model    int
	Sentence int
}

// Less orders sentences by model, then sentence.
func (s Sentence) Less(o Sentence) bool {
	if s.Model != o.Model {
		return s.Model < o.Model
	}
	return s.Sentence < o.Sentence
}

// Frame returns the address of frame n in this sentence.
func (s Sentence) Frame(n int) Frame {
	return Frame{Model: s.Model, Sentence: s.Sentence, Frame: n}
}

// Sentences lists every (model, sentence) cell in walk order.
func (p Partitions) Sentences() []Sentence {
	var out []Sentence
	for _, m := range p.Models() {
		r := p[m]
		for s := r.Start; s <= r.End; s++ {
			out = append(out, Sentence{Model: m, Sentence: s})
		}
	}
	return out
}

// Count returns how many frames a walk over frames will visit.
func (p Partitions) Count(frames Range) int {
	n := 0
	for _, r := range p {
		n += r.Len()
	}
	return n * frames.Len()
}

func (r Range) validate(width int) error {
	if r.End < r.Start {
		return fmt.Errorf("range [%d, %d] is inverted", r.Start, r.End)
	}
	if !inWidth(r.Start, width) || !inWidth(r.End, width) {
		return fmt.Errorf("range [%d, %d] does not fit %d digits", r.Start, r.End, width)
	}
	return nil
}

// ValidateFrames checks a frame range against the frame field width.
func ValidateFrames(r Range) error {
	return r.validate(FrameWidth)
}
