package walker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/sanchez-kim/obj-viewer/internal/address"
	"github.com/sanchez-kim/obj-viewer/internal/geom"
	"github.com/sanchez-kim/obj-viewer/internal/landmark"
	"github.com/sanchez-kim/obj-viewer/internal/transport"
	"github.com/sanchez-kim/obj-viewer/internal/verify"
)

// ErrorClass groups frame errors for the run summary.
type ErrorClass string

const (
	ClassTransport  ErrorClass = "transport"
	ClassParse      ErrorClass = "parse"
	ClassDegenerate ErrorClass = "degenerate"
)

// DefaultMaxConsecutiveFailures is the circuit breaker threshold.
const DefaultMaxConsecutiveFailures = 5

// Verifier checks one frame's raw files.
type Verifier interface {
	Verify(meshData, metaData []byte, warn landmark.WarnFunc) (verify.Result, error)
}

// Logger receives one record per event of the walk.
type Logger interface {
	Printf(format string, args ...any)
}

// Recorder persists frame outcomes.
type Recorder interface {
	Record(ctx context.Context, o Outcome) error
}

// Outcome is what happened to one frame. Result is only meaningful when
// Err is nil.
type Outcome struct {
	Frame  address.Frame
	Result verify.Result
	Err    error
	Class  ErrorClass
}

// Options configures a walk.
type Options struct {
	Partitions address.Partitions
	Frames     address.Range
	// MaxConsecutiveFailures abandons a sentence after that many frame
	// errors in a row. 0 disables the breaker.
	MaxConsecutiveFailures int
	// FetchTimeout bounds each Fetch call. 0 means no per-fetch deadline.
	FetchTimeout time.Duration
	// ResumeFrom is a frame file name. Every frame that does not sort after
	// it is skipped, whether or not the marker itself is visited again.
	ResumeFrom string
	// List takes the frames of each sentence from the storage listing
	// instead of the frame range. The fetcher must implement transport.Lister.
	List bool
	// Sample keeps that many random frames per listed sentence. 0 keeps all.
	Sample int
	Rand   *rand.Rand
	// Progress receives a progress bar. nil disables it.
	Progress io.Writer
	Recorder Recorder
}

// Summary aggregates a walk.
type Summary struct {
	Processed        int
	Passed           int
	Failed           int
	NotFound         int
	Reasons          map[verify.Reason]int
	Errors           map[ErrorClass]int
	SkippedSentences []address.Sentence
	// ResumeMissed is set when no frame after the resume marker was visited.
	ResumeMissed bool
	Last         address.Frame
	Duration     time.Duration
}

// ErrorCount returns the number of frames that could not be verified.
func (s Summary) ErrorCount() int {
	n := 0
	for _, c := range s.Errors {
		n += c
	}
	return n
}

// Walker visits the dataset in deterministic order, one frame at a time.
type Walker struct {
	fetcher  transport.Fetcher
	lister   transport.Lister
	verifier Verifier
	log      Logger
	opts     Options
	resume   *address.Frame
	rng      *rand.Rand
}

// New validates opts and builds a Walker.
func New(f transport.Fetcher, v Verifier, log Logger, opts Options) (*Walker, error) {
	if f == nil || v == nil || log == nil {
		return nil, errors.New("walker: fetcher, verifier and logger are required")
	}
	if len(opts.Partitions) == 0 {
		return nil, errors.New("walker: empty partition table")
	}
	if err := address.ValidateFrames(opts.Frames); err != nil {
		return nil, fmt.Errorf("walker: frames: %w", err)
	}
	if opts.MaxConsecutiveFailures < 0 {
		return nil, fmt.Errorf("walker: negative failure threshold %d", opts.MaxConsecutiveFailures)
	}
	if opts.Sample < 0 {
		return nil, fmt.Errorf("walker: negative sample size %d", opts.Sample)
	}

	w := &Walker{fetcher: f, verifier: v, log: log, opts: opts, rng: opts.Rand}
	if opts.List || opts.Sample > 0 {
		l, ok := f.(transport.Lister)
		if !ok {
			return nil, fmt.Errorf("walker: transport %s cannot list frames", f.Name())
		}
		w.lister = l
	}
	if opts.ResumeFrom != "" {
		marker, err := address.Parse(address.Stem(opts.ResumeFrom))
		if err != nil {
			return nil, fmt.Errorf("walker: resume marker: %w", err)
		}
		if !marker.Valid() {
			return nil, fmt.Errorf("walker: resume marker %q has out-of-range fields", opts.ResumeFrom)
		}
		w.resume = &marker
	}
	if w.rng == nil {
		w.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	return w, nil
}

// Run walks every sentence of the partition table. It stops early only
// when ctx is cancelled or the Recorder fails; frame errors are counted
// and the walk continues.
func (w *Walker) Run(ctx context.Context) (sum Summary, err error) {
	start := time.Now()
	sum = Summary{
		Reasons: make(map[verify.Reason]int),
		Errors:  make(map[ErrorClass]int),
	}
	defer func() { sum.Duration = time.Since(start) }()

	bar := w.newBar()
	skipping := w.resume != nil
	var resumeSentence address.Sentence
	if skipping {
		resumeSentence = address.Sentence{Model: w.resume.Model, Sentence: w.resume.Sentence}
		w.log.Printf("Resuming after %s", w.resume.Name())
		if r, ok := w.opts.Partitions[w.resume.Model]; !ok || !r.Contains(w.resume.Sentence) {
			w.log.Printf("Resume marker %s lies outside the partition table", w.resume.Name())
		}
	}

	for _, s := range w.opts.Partitions.Sentences() {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if skipping && s.Less(resumeSentence) {
			continue
		}

		frames, err := w.frames(ctx, s, &sum)
		if err != nil {
			return sum, err
		}

		failures := 0
		for _, f := range frames {
			if skipping {
				if !w.resume.Less(f) {
					continue
				}
				skipping = false
			}
			if err := ctx.Err(); err != nil {
				return sum, err
			}

			o := w.visit(ctx, f)
			if ctx.Err() != nil && o.Err != nil {
				return sum, ctx.Err()
			}
			w.tally(&sum, o)
			if bar != nil {
				bar.Add(1)
			}
			if w.opts.Recorder != nil {
				if err := w.opts.Recorder.Record(ctx, o); err != nil {
					return sum, fmt.Errorf("record %s: %w", f.Name(), err)
				}
			}

			if o.Err == nil {
				failures = 0
				continue
			}
			failures++
			if w.opts.MaxConsecutiveFailures > 0 && failures >= w.opts.MaxConsecutiveFailures {
				w.log.Printf("Skipping remainder of model %d sentence %d after %d consecutive failures",
					s.Model, s.Sentence, failures)
				sum.SkippedSentences = append(sum.SkippedSentences, s)
				break
			}
		}
	}

	if bar != nil {
		bar.Finish()
	}
	if skipping {
		sum.ResumeMissed = true
		w.log.Printf("Resume marker %s was never reached", w.resume.Name())
	}
	return sum, nil
}

// frames returns the addresses to visit in s, in order.
func (w *Walker) frames(ctx context.Context, s address.Sentence, sum *Summary) ([]address.Frame, error) {
	if w.lister == nil {
		out := make([]address.Frame, 0, w.opts.Frames.Len())
		for n := w.opts.Frames.Start; n <= w.opts.Frames.End; n++ {
			out = append(out, s.Frame(n))
		}
		return out, nil
	}

	lctx, cancel := w.fetchContext(ctx)
	listing, err := w.lister.List(lctx, s)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, transport.ErrNotFound) {
			w.log.Printf("No files found for model %d sentence %d", s.Model, s.Sentence)
			return nil, nil
		}
		w.log.Printf("Error listing model %d sentence %d: %v", s.Model, s.Sentence, err)
		sum.Errors[ClassTransport]++
		return nil, nil
	}
	for _, msg := range listing.Unpaired {
		w.log.Printf("%s", msg)
	}

	frames := listing.Frames
	if w.opts.Sample > 0 && len(frames) > w.opts.Sample {
		picked := make([]address.Frame, 0, w.opts.Sample)
		for _, i := range w.rng.Perm(len(frames))[:w.opts.Sample] {
			picked = append(picked, frames[i])
		}
		address.Sort(picked)
		frames = picked
	}
	return frames, nil
}

// visit fetches and verifies one frame and logs the verdict.
func (w *Walker) visit(ctx context.Context, f address.Frame) Outcome {
	o := Outcome{Frame: f}
	w.log.Printf("Processing %s", f.Name())

	fctx, cancel := w.fetchContext(ctx)
	pair, err := w.fetcher.Fetch(fctx, f)
	cancel()
	if err != nil {
		o.Err, o.Class = err, ClassTransport
		if errors.Is(err, transport.ErrNotFound) {
			w.log.Printf("Frame %s not found: %v", f.Name(), err)
		} else {
			w.log.Printf("Error fetching %s: %v", f.Name(), err)
		}
		return o
	}

	warn := func(format string, args ...any) {
		w.log.Printf("Warning: "+format, args...)
	}
	res, err := w.verifier.Verify(pair.Mesh, pair.Meta, warn)
	if err != nil {
		o.Err, o.Class = err, classify(err)
		w.log.Printf("Error processing %s (%s): %v", f.Name(), o.Class, err)
		return o
	}
	o.Result = res

	if res.Passed {
		w.log.Printf("Verification passed: %s (%d lip vertices)", f.Name(), res.TotalCount)
	} else {
		w.log.Printf("Verification failed: %s (%s)", f.Name(), res.Reason)
	}
	if len(res.OutsideTier1) > 0 {
		w.log.Printf("Vertices outside tier 1: %s", strings.Join(res.OutsideTier1, ", "))
	}
	if len(res.OutsideTier2) > 0 {
		w.log.Printf("Vertices outside tier 2: %s", strings.Join(res.OutsideTier2, ", "))
	}
	if res.BelowMinCount() {
		w.log.Printf("Lip vertex count %d is below the minimum", res.TotalCount)
	}
	return o
}

func (w *Walker) tally(sum *Summary, o Outcome) {
	sum.Processed++
	sum.Last = o.Frame
	switch {
	case o.Err != nil:
		sum.Errors[o.Class]++
		if errors.Is(o.Err, transport.ErrNotFound) {
			sum.NotFound++
		}
	case o.Result.Passed:
		sum.Passed++
	default:
		sum.Failed++
		sum.Reasons[o.Result.Reason]++
	}
}

func (w *Walker) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.opts.FetchTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, w.opts.FetchTimeout)
}

func (w *Walker) newBar() *progressbar.ProgressBar {
	if w.opts.Progress == nil {
		return nil
	}
	total := -1
	if w.lister == nil {
		total = w.opts.Partitions.Count(w.opts.Frames)
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("🔍 Verifying frames"),
		progressbar.OptionSetWriter(w.opts.Progress),
		progressbar.OptionShowCount(),
	)
}

// classify maps a verification error to its class. Fetch errors never
// reach it.
func classify(err error) ErrorClass {
	if errors.Is(err, geom.ErrDegenerate) {
		return ClassDegenerate
	}
	return ClassParse
}
