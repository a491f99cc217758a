package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sanchez-kim/obj-viewer/internal/config"
	"github.com/sanchez-kim/obj-viewer/internal/mesh"
	"github.com/sanchez-kim/obj-viewer/internal/store"
	"github.com/sanchez-kim/obj-viewer/internal/transport"
	"github.com/sanchez-kim/obj-viewer/internal/utils"
	"github.com/sanchez-kim/obj-viewer/internal/verify"
	"github.com/sanchez-kim/obj-viewer/internal/walker"
)

// VerifyOptions holds the flags of the verify command
type VerifyOptions struct {
	Transport    string
	Models       []int
	Resume       string
	ResumeRun    int64
	MaxFailures  int
	FetchTimeout time.Duration
	Sample       int
	List         bool
	NoProgress   bool
}

var verifyOpts VerifyOptions

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Walk the dataset and check every frame's lip landmarks",
	Long: `Walks every (model, sentence, frame) address of the partition table,
fetches the mesh and metadata through the configured transport and checks
that the lip landmarks fall inside the padded outline box.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerify(cmd, verifyOpts)
	},
}

func init() {
	verifyCmd.Flags().StringVarP(&verifyOpts.Transport, "transport", "t", "", "Transport: http, s3, sftp or local (overrides config)")
	verifyCmd.Flags().IntSliceVarP(&verifyOpts.Models, "model", "m", nil, "Only walk these model numbers")
	verifyCmd.Flags().StringVarP(&verifyOpts.Resume, "resume", "r", "", "Resume after this frame file name (e.g. M07_S3001_F042.obj)")
	verifyCmd.Flags().Int64Var(&verifyOpts.ResumeRun, "resume-run", 0, "Resume after the last frame stored for this run ID")
	verifyCmd.Flags().IntVar(&verifyOpts.MaxFailures, "max-consecutive-failures", walker.DefaultMaxConsecutiveFailures, "Skip the rest of a sentence after this many errors in a row (0 disables)")
	verifyCmd.Flags().DurationVar(&verifyOpts.FetchTimeout, "fetch-timeout", 30*time.Second, "Deadline for fetching one frame")
	verifyCmd.Flags().IntVar(&verifyOpts.Sample, "sample", 0, "Verify this many random frames per sentence (needs a listing transport)")
	verifyCmd.Flags().BoolVar(&verifyOpts.List, "list", false, "Take frames from the storage listing instead of the frame range")
	verifyCmd.Flags().BoolVar(&verifyOpts.NoProgress, "no-progress", false, "Disable the progress bar")
	rootCmd.AddCommand(verifyCmd)
}

// runVerify resolves the configuration, opens the transport and the optional
// results store, and drives the walker.
func runVerify(cmd *cobra.Command, opts VerifyOptions) error {
	if err := validateVerifyFlags(&opts); err != nil {
		utils.ShowError("Invalid flags", err, "")
		return err
	}
	if err := Cfg.Resolve(verifyFlags(cmd, opts)); err != nil {
		utils.ShowError("Invalid configuration", err, "")
		return err
	}
	ctx := cmd.Context()

	logger, err := utils.NewLogger(Cfg.LogFile)
	if err != nil {
		utils.ShowError("Failed to open log file", err, "")
		return err
	}
	defer logger.Close()

	if err := connectDB(ctx, opts.ResumeRun > 0); err != nil {
		utils.ShowError("Failed to open results database", err, "")
		return err
	}
	if opts.ResumeRun > 0 {
		last, ok, err := DB.LastFrame(ctx, opts.ResumeRun)
		if err != nil {
			utils.ShowError("Failed to read resume point", err, "")
			return err
		}
		if ok {
			Cfg.Walk.ResumeFrom = last.Name()
		} else {
			fmt.Fprintf(os.Stderr, "⚠️  Run %d has no stored frames, starting from the beginning.\n", opts.ResumeRun)
		}
	}

	verifier, err := newVerifier(Cfg)
	if err != nil {
		utils.ShowError("Invalid verification settings", err, "")
		return err
	}

	fetcher, err := transport.Open(ctx, Cfg.Transport)
	if err != nil {
		utils.ShowError("Failed to open transport", err, "Check credentials and host settings in the config or .env")
		return err
	}
	defer fetcher.Close()

	wopts, err := Cfg.WalkOptions()
	if err != nil {
		utils.ShowError("Invalid partition table", err, "")
		return err
	}
	if !opts.NoProgress {
		wopts.Progress = os.Stderr
	}

	var runID int64
	if DB != nil {
		if runID, err = DB.CreateRun(ctx, fetcher.Name()); err != nil {
			utils.ShowError("Failed to register run", err, "")
			return err
		}
		wopts.Recorder = runRecorder{db: DB, runID: runID}
	}

	w, err := walker.New(fetcher, verifier, logger, wopts)
	if err != nil {
		utils.ShowError("Failed to start walk", err, "")
		return err
	}

	fmt.Fprintf(os.Stderr, "📂 Source: %s\n", fetcher.Name())
	if wopts.ResumeFrom != "" {
		fmt.Fprintf(os.Stderr, "⏩ Resuming after %s\n", wopts.ResumeFrom)
	}
	if runID > 0 {
		fmt.Fprintf(os.Stderr, "🗄️  Recording results as run #%d\n", runID)
	}

	sum, runErr := w.Run(ctx)

	if DB != nil {
		// The walk context may be cancelled already; the totals are still worth saving.
		if err := DB.FinishRun(context.Background(), runID, totals(sum)); err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Failed to finalize run %d: %v\n", runID, err)
		}
	}
	printSummary(os.Stderr, sum, runID)

	if runErr != nil {
		hint := ""
		if sum.Processed > 0 {
			hint = fmt.Sprintf("Resume with --resume %s", sum.Last.Name())
		}
		utils.ShowError("Verification stopped early", runErr, hint)
		return runErr
	}
	return nil
}

// validateVerifyFlags ensures all CLI arguments are valid before opening any session.
func validateVerifyFlags(opts *VerifyOptions) error {
	if opts.Resume != "" && opts.ResumeRun != 0 {
		return fmt.Errorf("--resume and --resume-run are mutually exclusive")
	}
	if opts.ResumeRun < 0 {
		return fmt.Errorf("invalid run ID %d", opts.ResumeRun)
	}
	if opts.MaxFailures < 0 {
		return fmt.Errorf("max-consecutive-failures must be >= 0, got %d", opts.MaxFailures)
	}
	if opts.FetchTimeout < 0 {
		return fmt.Errorf("fetch-timeout must be >= 0, got %s", opts.FetchTimeout)
	}
	if opts.Sample < 0 {
		return fmt.Errorf("sample must be >= 0, got %d", opts.Sample)
	}
	switch opts.Transport {
	case "", transport.KindHTTP, transport.KindS3, transport.KindSFTP, transport.KindLocal:
	default:
		return fmt.Errorf("unknown transport %q", opts.Transport)
	}
	return nil
}

// verifyFlags forwards only the flags the user actually set, so config
// values survive flag defaults.
func verifyFlags(cmd *cobra.Command, opts VerifyOptions) config.Flags {
	f := config.Flags{
		Transport:  opts.Transport,
		Models:     opts.Models,
		ResumeFrom: opts.Resume,
	}
	if cmd.Flags().Changed("max-consecutive-failures") {
		f.MaxConsecutiveFailures = &opts.MaxFailures
	}
	if cmd.Flags().Changed("fetch-timeout") {
		f.FetchTimeout = &opts.FetchTimeout
	}
	if cmd.Flags().Changed("list") {
		f.List = &opts.List
	}
	if cmd.Flags().Changed("sample") {
		f.Sample = &opts.Sample
	}
	return f
}

// newVerifier builds the verifier described by cfg.
func newVerifier(cfg *config.Config) (*verify.Verifier, error) {
	outline, err := cfg.Outline()
	if err != nil {
		return nil, fmt.Errorf("outline indices: %w", err)
	}
	lips, err := cfg.LipIndices()
	if err != nil {
		return nil, fmt.Errorf("lip indices: %w", err)
	}
	return verify.New(mesh.OBJParser{}, outline, lips, cfg.VerifyOptions())
}

// runRecorder writes walker outcomes into one stored run.
type runRecorder struct {
	db    *store.Store
	runID int64
}

func (r runRecorder) Record(ctx context.Context, o walker.Outcome) error {
	return r.db.RecordFrame(ctx, r.runID, frameRecord(o))
}

func frameRecord(o walker.Outcome) store.FrameRecord {
	rec := store.FrameRecord{Frame: o.Frame, CheckedAt: time.Now()}
	if o.Err != nil {
		rec.Reason = string(o.Class)
		rec.Error = o.Err.Error()
		return rec
	}
	rec.Passed = o.Result.Passed
	rec.Reason = string(o.Result.Reason)
	rec.TotalCount = o.Result.TotalCount
	rec.OutsideTier1 = o.Result.OutsideTier1
	rec.OutsideTier2 = o.Result.OutsideTier2
	return rec
}

func totals(s walker.Summary) store.Totals {
	return store.Totals{
		Processed:        s.Processed,
		Passed:           s.Passed,
		Failed:           s.Failed,
		Errors:           s.ErrorCount(),
		SkippedSentences: len(s.SkippedSentences),
	}
}

func printSummary(w io.Writer, s walker.Summary, runID int64) {
	fmt.Fprintf(w, "\n---------------------------------------------------------\n")
	fmt.Fprintf(w, "📊 VERIFICATION SUMMARY\n")
	fmt.Fprintf(w, "---------------------------------------------------------\n")
	fmt.Fprintf(w, "🔎 Frames processed:   %d\n", s.Processed)
	fmt.Fprintf(w, "✅ Passed:             %d\n", s.Passed)
	fmt.Fprintf(w, "❌ Failed:             %d\n", s.Failed)
	for _, k := range sortedKeys(s.Reasons) {
		fmt.Fprintf(w, "   %-18s %d\n", k+":", s.Reasons[verify.Reason(k)])
	}
	fmt.Fprintf(w, "⚠️  Errors:             %d\n", s.ErrorCount())
	for _, k := range sortedKeys(s.Errors) {
		fmt.Fprintf(w, "   %-18s %d\n", k+":", s.Errors[walker.ErrorClass(k)])
	}
	if s.NotFound > 0 {
		fmt.Fprintf(w, "   (%d not found)\n", s.NotFound)
	}
	if len(s.SkippedSentences) > 0 {
		names := make([]string, len(s.SkippedSentences))
		for i, sen := range s.SkippedSentences {
			names[i] = fmt.Sprintf("M%02d_S%04d", sen.Model, sen.Sentence)
		}
		fmt.Fprintf(w, "⏭️  Skipped sentences:  %s\n", strings.Join(names, ", "))
	}
	if s.ResumeMissed {
		fmt.Fprintf(w, "⚠️  Resume marker was never reached; nothing after it was verified.\n")
	}
	fmt.Fprintf(w, "⏱️  Duration:           %s\n", s.Duration.Round(time.Second))
	if runID > 0 {
		fmt.Fprintf(w, "🗄️  Stored as run #%d (lipcheck runs %d)\n", runID, runID)
	}
	fmt.Fprintf(w, "---------------------------------------------------------\n")
}

func sortedKeys[K ~string, V any](m map[K]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	return keys
}
