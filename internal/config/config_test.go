package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/sanchez-kim/obj-viewer/internal/address"
	"github.com/sanchez-kim/obj-viewer/internal/geom"
	"github.com/sanchez-kim/obj-viewer/internal/verify"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Transport.Kind != "http" || cfg.Transport.Layout != address.LayoutFlat {
		t.Errorf("unexpected transport defaults: %+v", cfg.Transport)
	}
	if cfg.FrameRange() != (address.Range{Start: 0, End: 300}) {
		t.Errorf("FrameRange = %v", cfg.FrameRange())
	}
	if cfg.Walk.MaxConsecutiveFailures != 5 || cfg.Walk.FetchTimeout != 30*time.Second {
		t.Errorf("unexpected walk defaults: %+v", cfg.Walk)
	}
	if !reflect.DeepEqual(cfg.VerifyOptions(), verify.DefaultOptions()) {
		t.Errorf("VerifyOptions = %+v, want %+v", cfg.VerifyOptions(), verify.DefaultOptions())
	}
	parts, err := cfg.Partitions()
	if err != nil || !reflect.DeepEqual(parts, address.DefaultPartitions()) {
		t.Errorf("Partitions = %v, %v", parts, err)
	}
	outline, _ := cfg.Outline()
	if !reflect.DeepEqual(outline, verify.DefaultOutline) {
		t.Errorf("Outline = %v", outline)
	}
	if cfg.LogFile != "log.txt" {
		t.Errorf("LogFile = %q", cfg.LogFile)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, "lipcheck.yaml", `
transport:
  kind: s3
  layout: legacy
  s3:
    bucket: ins-ai-speech
models:
  "5": [2006, 2500]
  "7": [3001, 3010]
frames:
  end: 120
verify:
  normalize: true
  pass_policy: tier2
  tier2:
    z: 100
walk:
  fetch_timeout: 5s
`)
	t.Setenv("LIPCHECK_WALK_SAMPLE", "5")
	t.Setenv("LIPCHECK_TRANSPORT_S3_REGION", "us-east-1")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Transport.Kind != "s3" || cfg.Transport.S3.Bucket != "ins-ai-speech" || cfg.Transport.S3.Region != "us-east-1" {
		t.Errorf("unexpected transport: %+v", cfg.Transport)
	}
	parts, err := cfg.Partitions()
	if err != nil {
		t.Fatal(err)
	}
	want := address.Partitions{5: {Start: 2006, End: 2500}, 7: {Start: 3001, End: 3010}}
	if !reflect.DeepEqual(parts, want) {
		t.Errorf("Partitions = %v, want %v", parts, want)
	}
	if cfg.FrameRange() != (address.Range{Start: 0, End: 120}) {
		t.Errorf("FrameRange = %v", cfg.FrameRange())
	}

	opts := cfg.VerifyOptions()
	if !opts.Normalize || opts.Policy != verify.PolicyTier2 {
		t.Errorf("unexpected verify options: %+v", opts)
	}
	// untouched tier fields keep their defaults
	if opts.Tier2 != (geom.Padding{X: 100, Y: 80, Z: 100}) {
		t.Errorf("Tier2 = %+v", opts.Tier2)
	}
	if cfg.Walk.Sample != 5 || cfg.Walk.FetchTimeout != 5*time.Second {
		t.Errorf("unexpected walk: %+v", cfg.Walk)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for an explicit missing config file")
	}
}

func TestResolve(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	zero := 0
	timeout := 2 * time.Second
	list := true

	err = cfg.Resolve(Flags{
		Transport:              "sftp",
		Models:                 []int{6},
		ResumeFrom:             "M06_S2600_F010.obj",
		MaxConsecutiveFailures: &zero,
		FetchTimeout:           &timeout,
		List:                   &list,
		DB:                     "postgres://localhost:5432/lipcheck",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	wopts, err := cfg.WalkOptions()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(wopts.Partitions, address.Partitions{6: {Start: 2501, End: 3000}}) {
		t.Errorf("Partitions = %v", wopts.Partitions)
	}
	if wopts.MaxConsecutiveFailures != 0 || wopts.FetchTimeout != timeout || !wopts.List {
		t.Errorf("unexpected walk options: %+v", wopts)
	}
	if wopts.ResumeFrom != "M06_S2600_F010.obj" || cfg.Transport.Kind != "sftp" {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if cfg.DatabaseURL() != "postgres://localhost:5432/lipcheck" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL())
	}

	if err := cfg.Resolve(Flags{Models: []int{42}}); err == nil {
		t.Error("Expected error for a model outside the partition table")
	}
}

func TestDatabaseURL_FromEnv(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_USER", "qa")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "lipcheck")
	t.Setenv("POSTGRES_PORT", "")

	cfg := &Config{}
	if got := cfg.DatabaseURL(); got != "postgres://qa:secret@db:5432/lipcheck" {
		t.Errorf("DatabaseURL = %q", got)
	}

	t.Setenv("POSTGRES_HOST", "")
	if got := cfg.DatabaseURL(); got != "" {
		t.Errorf("Expected no database without POSTGRES_HOST, got %q", got)
	}
}

func TestOutline_IndexFile(t *testing.T) {
	path := writeConfig(t, "outline.txt", "4, 8, 15, 16, 23, 42\n")
	cfg := &Config{Verify: Verify{OutlineIndexFile: path, OutlineIndices: []int{1}}}
	got, err := cfg.Outline()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []int{4, 8, 15, 16, 23, 42}) {
		t.Errorf("Outline = %v", got)
	}
}
