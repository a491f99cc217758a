package cmd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sanchez-kim/obj-viewer/internal/address"
	"github.com/sanchez-kim/obj-viewer/internal/config"
	"github.com/sanchez-kim/obj-viewer/internal/geom"
	"github.com/sanchez-kim/obj-viewer/internal/store"
	"github.com/sanchez-kim/obj-viewer/internal/transport"
	"github.com/sanchez-kim/obj-viewer/internal/utils"
	"github.com/sanchez-kim/obj-viewer/internal/verify"
	"github.com/sanchez-kim/obj-viewer/internal/walker"
)

const squareOBJ = "v -10 -10 0\nv 10 -10 0\nv 10 10 0\nv -10 10 0\n"

func testConfig() *config.Config {
	return &config.Config{
		Verify: config.Verify{
			OutlineIndices: []int{0, 1, 2, 3},
			LipSource:      string(verify.LipsFromMetadata),
			Tier1:          geom.Padding{X: 50, Y: 40},
			Tier2:          geom.Padding{X: 100, Y: 80},
			ReferenceSize:  1000,
			MinLandmarks:   2,
			PassPolicy:     string(verify.PolicyStrict),
		},
	}
}

func lipsJSON(x float64) string {
	return fmt.Sprintf(`{"3d_data": {"lip_vertices": {"0": [0, 0, 0], "1": [%g, 0, 0]}}}`, x)
}

func writeTestFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestValidateVerifyFlags(t *testing.T) {
	tests := []struct {
		name    string
		opts    VerifyOptions
		wantErr bool
	}{
		{"Valid options", VerifyOptions{Transport: "s3", MaxFailures: 5, FetchTimeout: time.Second}, false},
		{"Breaker disabled", VerifyOptions{MaxFailures: 0}, false},
		{"Resume and resume-run", VerifyOptions{Resume: "M01_S0000_F000", ResumeRun: 3}, true},
		{"Negative run", VerifyOptions{ResumeRun: -1}, true},
		{"Negative failures", VerifyOptions{MaxFailures: -1}, true},
		{"Negative timeout", VerifyOptions{FetchTimeout: -time.Second}, true},
		{"Negative sample", VerifyOptions{Sample: -2}, true},
		{"Unknown transport", VerifyOptions{Transport: "ftp"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validateVerifyFlags(&tt.opts); (err != nil) != tt.wantErr {
				t.Errorf("validateVerifyFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerifyFlags_OnlyChanged(t *testing.T) {
	c := &cobra.Command{}
	c.Flags().Int("max-consecutive-failures", 5, "")
	c.Flags().Int("sample", 0, "")
	if err := c.Flags().Set("max-consecutive-failures", "0"); err != nil {
		t.Fatal(err)
	}

	f := verifyFlags(c, VerifyOptions{Transport: "local", MaxFailures: 0, Sample: 0})
	if f.MaxConsecutiveFailures == nil || *f.MaxConsecutiveFailures != 0 {
		t.Errorf("explicit 0 must be forwarded, got %v", f.MaxConsecutiveFailures)
	}
	if f.Sample != nil || f.FetchTimeout != nil || f.List != nil {
		t.Errorf("unset flags must not be forwarded: %+v", f)
	}
	if f.Transport != "local" {
		t.Errorf("Transport = %q", f.Transport)
	}
}

func TestFrameRecord(t *testing.T) {
	fr := address.Frame{Model: 7, Sentence: 3001, Frame: 42}

	rec := frameRecord(walker.Outcome{
		Frame: fr,
		Result: verify.Result{
			Reason:       verify.ReasonOutsideTier1,
			TotalCount:   4410,
			OutsideTier1: []string{"3"},
		},
	})
	if rec.Passed || rec.Reason != "outside-tier1" || rec.TotalCount != 4410 || rec.Error != "" {
		t.Errorf("unexpected record %+v", rec)
	}
	if !reflect.DeepEqual(rec.OutsideTier1, []string{"3"}) || rec.Frame != fr {
		t.Errorf("unexpected record %+v", rec)
	}

	rec = frameRecord(walker.Outcome{Frame: fr, Err: errors.New("timeout"), Class: walker.ClassTransport})
	if rec.Passed || rec.Reason != "transport" || rec.Error != "timeout" {
		t.Errorf("unexpected error record %+v", rec)
	}
}

func TestPrintSummary(t *testing.T) {
	sum := walker.Summary{
		Processed:        10,
		Passed:           6,
		Failed:           2,
		NotFound:         1,
		Reasons:          map[verify.Reason]int{verify.ReasonBelowMinCount: 1, verify.ReasonOutsideTier2: 1},
		Errors:           map[walker.ErrorClass]int{walker.ClassTransport: 1, walker.ClassParse: 1},
		SkippedSentences: []address.Sentence{{Model: 7, Sentence: 3001}},
	}
	var buf bytes.Buffer
	printSummary(&buf, sum, 12)
	out := buf.String()

	for _, want := range []string{
		"Frames processed:   10",
		"below-min-count:",
		"outside-tier2:",
		"Errors:             2",
		"(1 not found)",
		"Skipped sentences:  M07_S3001",
		"Stored as run #12",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if totals(sum) != (store.Totals{Processed: 10, Passed: 6, Failed: 2, Errors: 2, SkippedSentences: 1}) {
		t.Errorf("totals = %+v", totals(sum))
	}
}

func TestRunCheck(t *testing.T) {
	dir := t.TempDir()
	meshPath := writeTestFile(t, dir, "M01_S0001_F000.obj", squareOBJ)

	tests := []struct {
		name       string
		x          float64
		wantPassed bool
		wantOut    []string
	}{
		{"Inside both tiers", 5, true, []string{"Lip vertices: 2", "PASSED"}},
		{"Outside tier 1 only", 65, false, []string{"Outside tier 1: 1", "FAILED (outside-tier1)"}},
		{"Outside both tiers", 200, false, []string{"Outside tier 2: 1", "FAILED (outside-tier2)"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metaPath := writeTestFile(t, dir, "meta.json", lipsJSON(tt.x))
			var buf bytes.Buffer
			res, err := runCheck(&buf, testConfig(), meshPath, metaPath)
			if err != nil {
				t.Fatalf("runCheck failed: %v", err)
			}
			if res.Passed != tt.wantPassed {
				t.Errorf("Passed = %v, want %v", res.Passed, tt.wantPassed)
			}
			for _, w := range tt.wantOut {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("output missing %q:\n%s", w, buf.String())
				}
			}
		})
	}

	if _, err := runCheck(&bytes.Buffer{}, testConfig(), filepath.Join(dir, "missing.obj"), meshPath); err == nil {
		t.Error("Expected error for a missing mesh file")
	}
}

func TestRunDownload(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "M07/S3001/F042/M07_S3001_F042.obj", squareOBJ)
	writeTestFile(t, root, "M07/S3001/F042/M07_S3001_F042.json", lipsJSON(1))

	layout, err := address.LayoutByName(address.LayoutFlat, "", "")
	if err != nil {
		t.Fatal(err)
	}
	local, err := transport.NewLocal(root, layout)
	if err != nil {
		t.Fatal(err)
	}

	frames, err := parseFrames([]string{"downloads/M07_S3001_F042.obj"})
	if err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "out")
	if err := runDownload(context.Background(), local, frames, out, time.Second); err != nil {
		t.Fatalf("runDownload failed: %v", err)
	}
	for _, name := range []string{"M07_S3001_F042.obj", "M07_S3001_F042.json"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}

	missing := []address.Frame{{Model: 7, Sentence: 3001, Frame: 43}}
	if err := runDownload(context.Background(), local, missing, out, time.Second); !errors.Is(err, transport.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if _, err := parseFrames([]string{"frame42.obj"}); err == nil {
		t.Error("Expected error for a name without an address")
	}
}

func TestPrintFailedFrames(t *testing.T) {
	var buf bytes.Buffer
	printFailedFrames(&buf, []store.FrameRecord{
		{Frame: address.Frame{Model: 1, Sentence: 2, Frame: 3}, Reason: "outside-tier2", TotalCount: 4410,
			OutsideTier1: []string{"5"}, OutsideTier2: []string{"5"}},
		{Frame: address.Frame{Model: 1, Sentence: 2, Frame: 4}, Reason: "parse", Error: "line 3: bad float"},
	})
	out := buf.String()
	for _, want := range []string{"M01_S0002_F003", "tier1: 5; tier2: 5", "line 3: bad float"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	printFailedFrames(&buf, nil)
	if !strings.Contains(buf.String(), "No failing frames") {
		t.Errorf("unexpected empty output %q", buf.String())
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		r := bufio.NewReader(strings.NewReader(tt.input))
		if got := confirm(r, &bytes.Buffer{}, "Drop?"); got != tt.want {
			t.Errorf("confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

// TestVerifyPersistence walks a small local dataset and records it in a real
// Postgres container, the way runVerify wires the walker to the store.
func TestVerifyPersistence(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// We wrap this in a function to recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Fatalf("Docker not available, cannot run integration test: %v", err)
	}

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("lipcheck_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer pgContainer.Terminate(ctx)

	connStr, _ := pgContainer.ConnectionString(ctx, "sslmode=disable")
	db, err := store.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close(ctx)

	// Frame 0 passes, frame 1 is outside tier 1, frame 2 is missing
	root := t.TempDir()
	for i, x := range []float64{5, 65} {
		f := address.Frame{Model: 3, Sentence: 1001, Frame: i}
		dir := fmt.Sprintf("M03/S1001/F%03d/", i)
		writeTestFile(t, root, dir+f.FileName("obj"), squareOBJ)
		writeTestFile(t, root, dir+f.FileName("json"), lipsJSON(x))
	}
	local, err := transport.Open(ctx, transport.Config{Kind: transport.KindLocal, Root: root})
	if err != nil {
		t.Fatal(err)
	}

	v, err := newVerifier(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	runID, err := db.CreateRun(ctx, local.Name())
	if err != nil {
		t.Fatal(err)
	}
	w, err := walker.New(local, v, utils.NewWriterLogger(&bytes.Buffer{}), walker.Options{
		Partitions:             address.Partitions{3: {Start: 1001, End: 1001}},
		Frames:                 address.Range{Start: 0, End: 2},
		MaxConsecutiveFailures: walker.DefaultMaxConsecutiveFailures,
		Recorder:               runRecorder{db: db, runID: runID},
	})
	if err != nil {
		t.Fatal(err)
	}
	sum, err := w.Run(ctx)
	if err != nil {
		t.Fatalf("walk failed: %v", err)
	}
	if err := db.FinishRun(ctx, runID, totals(sum)); err != nil {
		t.Fatal(err)
	}

	failed, err := db.FailedFrames(ctx, runID)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 2 || failed[0].Reason != "outside-tier1" || failed[1].Reason != "transport" {
		t.Fatalf("unexpected failed frames %+v", failed)
	}
	last, ok, err := db.LastFrame(ctx, runID)
	if err != nil || !ok || last.Frame != 2 {
		t.Errorf("LastFrame = %v, %v, %v", last, ok, err)
	}

	runs, err := db.ListRuns(ctx)
	if err != nil || len(runs) != 1 || runs[0].Passed != 1 || runs[0].Failed != 1 || runs[0].Errors != 1 {
		t.Errorf("unexpected runs %+v (err %v)", runs, err)
	}
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
