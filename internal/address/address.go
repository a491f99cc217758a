package address

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Widths of the zero-padded fields in a frame name.
const (
	ModelWidth    = 2
	SentenceWidth = 4
	FrameWidth    = 3
)

var (
	// ErrInvalidName is returned when a name carries no M.._S.._F.. triple.
	ErrInvalidName = errors.New("not a frame name")

	namePattern = regexp.MustCompile(`M(\d+)_S(\d+)_F(\d+)`)
)

// Frame identifies one mesh+metadata pair in the dataset.
type Frame struct {
	Model    int
	Sentence int
	Frame    int
}

// Name returns the canonical stem, e.g. "M07_S3001_F042".
func (f Frame) Name() string {
	return fmt.Sprintf("M%0*d_S%0*d_F%0*d", ModelWidth, f.Model, SentenceWidth, f.Sentence, FrameWidth, f.Frame)
}

func (f Frame) String() string { return f.Name() }

// FileName returns the canonical name with an extension, e.g. "M07_S3001_F042.obj".
func (f Frame) FileName(ext string) string {
	return f.Name() + "." + strings.TrimPrefix(ext, ".")
}

// Less orders frames by model, then sentence, then frame.
func (f Frame) Less(o Frame) bool {
	if f.Model != o.Model {
		return f.Model < o.Model
	}
	if f.Sentence != o.Sentence {
		return f.Sentence < o.Sentence
	}
	return f.Frame < o.Frame
}

// Valid reports whether every field fits its zero-padded width.
func (f Frame) Valid() bool {
	return inWidth(f.Model, ModelWidth) && inWidth(f.Sentence, SentenceWidth) && inWidth(f.Frame, FrameWidth)
}

// Parse extracts a frame address from a file name, path or URL.
func Parse(name string) (Frame, error) {
	m := namePattern.FindAllStringSubmatch(path.Base(name), -1)
	if len(m) == 0 {
		return Frame{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	last := m[len(m)-1]
	var nums [3]int
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(last[i+1])
		if err != nil {
			return Frame{}, fmt.Errorf("%w: %q: %v", ErrInvalidName, name, err)
		}
		nums[i] = n
	}
	return Frame{Model: nums[0], Sentence: nums[1], Frame: nums[2]}, nil
}

// Stem strips directories and the extension from a file name.
func Stem(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

// Sort orders frames in walk order.
func Sort(frames []Frame) {
	sort.Slice(frames, func(i, j int) bool { return frames[i].Less(frames[j]) })
}

func inWidth(n, width int) bool {
	limit := 1
	for i := 0; i < width; i++ {
		limit *= 10
	}
	return n >= 0 && n < limit
}
