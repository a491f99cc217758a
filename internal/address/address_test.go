package address

import (
	"errors"
	"reflect"
	"testing"
)

func TestFrameName(t *testing.T) {
	tests := []struct {
		frame Frame
		want  string
	}{
		{Frame{1, 1, 68}, "M01_S0001_F068"},
		{Frame{7, 3001, 0}, "M07_S3001_F000"},
		{Frame{10, 4999, 300}, "M10_S4999_F300"},
	}

	for _, tt := range tests {
		if got := tt.frame.Name(); got != tt.want {
			t.Errorf("Name() = %v, want %v", got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    Frame
		wantErr bool
	}{
		{"M01_S0001_F068", Frame{1, 1, 68}, false},
		{"M07_S3001_F000.obj", Frame{7, 3001, 0}, false},
		{"/data/Model7/sentence3001/3Dmesh/M07_S3001_F012.json", Frame{7, 3001, 12}, false},
		{"https://bucket.s3.amazonaws.com/prod/v2/M02/S0600/F005/M02_S0600_F005.obj", Frame{2, 600, 5}, false},
		{"frame0000.obj", Frame{}, true},
		{"", Frame{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidName) {
					t.Errorf("Expected ErrInvalidName, got %v", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParse_RoundTrip(t *testing.T) {
	// Sweep the edges of every field width
	for _, m := range []int{0, 1, 9, 10, 99} {
		for _, s := range []int{0, 1, 999, 1000, 9999} {
			for _, f := range []int{0, 7, 99, 100, 999} {
				a := Frame{Model: m, Sentence: s, Frame: f}
				if !a.Valid() {
					t.Fatalf("%+v should be valid", a)
				}
				got, err := Parse(a.FileName("obj"))
				if err != nil {
					t.Fatalf("Parse(%q) failed: %v", a.FileName("obj"), err)
				}
				if got != a {
					t.Fatalf("round trip of %+v gave %+v", a, got)
				}
			}
		}
	}
}

func TestStem(t *testing.T) {
	tests := map[string]string{
		"M01_S0001_F068":               "M01_S0001_F068",
		"M01_S0001_F068.obj":           "M01_S0001_F068",
		"a/b/M01_S0001_F068.json":      "M01_S0001_F068",
		`C:\\data\\M01_S0001_F068.obj`: "M01_S0001_F068",
	}
	for in, want := range tests {
		if got := Stem(in); got != want {
			t.Errorf("Stem(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValid(t *testing.T) {
	if (Frame{Model: 100}).Valid() {
		t.Error("model 100 does not fit two digits")
	}
	if (Frame{Frame: -1}).Valid() {
		t.Error("negative frame must be invalid")
	}
}

func TestParsePartitions(t *testing.T) {
	got, err := ParsePartitions(map[string][]int{"7": {3001, 3500}, "1": {0, 500}})
	if err != nil {
		t.Fatal(err)
	}
	want := Partitions{1: {0, 500}, 7: {3001, 3500}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParsePartitions() = %v, want %v", got, want)
	}
	if !reflect.DeepEqual(got.Models(), []int{1, 7}) {
		t.Errorf("Models() = %v", got.Models())
	}

	bad := []map[string][]int{
		{"x": {1, 2}},
		{"1": {1}},
		{"1": {5, 2}},
		{"1": {0, 10000}},
		{"100": {0, 1}},
	}
	for _, raw := range bad {
		if _, err := ParsePartitions(raw); err == nil {
			t.Errorf("ParsePartitions(%v) should fail", raw)
		}
	}
}

func TestSentences(t *testing.T) {
	p := Partitions{2: {10, 11}, 1: {5, 5}}
	got := p.Sentences()
	want := []Sentence{{1, 5}, {2, 10}, {2, 11}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Sentences() = %v, want %v", got, want)
	}
	if n := p.Count(Range{0, 300}); n != 3*301 {
		t.Errorf("Count() = %d, want %d", n, 3*301)
	}
	for i := 1; i < len(got); i++ {
		if !got[i-1].Less(got[i]) || got[i].Less(got[i-1]) {
			t.Errorf("Sentences() not in walk order at %d: %v", i, got)
		}
	}
	if !(Range{5, 5}).Contains(5) || (Range{10, 11}).Contains(12) {
		t.Error("Range.Contains bounds are inclusive")
	}
}

func TestOnly(t *testing.T) {
	p := DefaultPartitions()
	sub, err := p.Only(7)
	if err != nil {
		t.Fatal(err)
	}
	if sub[7] != (Range{3001, 3500}) || len(sub) != 1 {
		t.Errorf("Only(7) = %v", sub)
	}
	if _, err := p.Only(42); err == nil {
		t.Error("Expected error for undefined model")
	}
}

func TestLayouts(t *testing.T) {
	f := Frame{Model: 7, Sentence: 3001, Frame: 42}
	tests := []struct {
		layout   string
		wantMesh string
		wantMeta string
	}{
		{LayoutFlat, "M07/S3001/F042/M07_S3001_F042.obj", "M07/S3001/F042/M07_S3001_F042.json"},
		{LayoutLegacy, "reprocessed_v2/3Ddata/Model7/Sentence3001/3Dmesh/M07_S3001_F042.obj", "reprocessed_v2/meta/Model7/Sentence3001/Meta/M07_S3001_F042.json"},
		{LayoutSentenceDirs, "Model7/sentence3001/3Dmesh/M07_S3001_F042.obj", "Model7/sentence3001/Meta/M07_S3001_F042.json"},
	}

	for _, tt := range tests {
		t.Run(tt.layout, func(t *testing.T) {
			l, err := LayoutByName(tt.layout, "", "")
			if err != nil {
				t.Fatal(err)
			}
			mesh, err := l.MeshPath(f)
			if err != nil {
				t.Fatal(err)
			}
			meta, err := l.MetaPath(f)
			if err != nil {
				t.Fatal(err)
			}
			if mesh != tt.wantMesh {
				t.Errorf("MeshPath() = %v, want %v", mesh, tt.wantMesh)
			}
			if meta != tt.wantMeta {
				t.Errorf("MetaPath() = %v, want %v", meta, tt.wantMeta)
			}
		})
	}
}

func TestLayout_Prefix(t *testing.T) {
	s := Sentence{Model: 6, Sentence: 2501}
	tests := []struct {
		layout   string
		wantMesh string
		wantMeta string
	}{
		{LayoutFlat, "M06/S2501/", "M06/S2501/"},
		{LayoutLegacy, "reprocessed_v2/3Ddata/Model6/Sentence2501/3Dmesh/", "reprocessed_v2/meta/Model6/Sentence2501/Meta/"},
		{LayoutSentenceDirs, "Model6/sentence2501/3Dmesh/", "Model6/sentence2501/Meta/"},
	}

	for _, tt := range tests {
		t.Run(tt.layout, func(t *testing.T) {
			l, err := LayoutByName(tt.layout, "", "")
			if err != nil {
				t.Fatal(err)
			}
			mesh, err := l.MeshPrefix(s)
			if err != nil {
				t.Fatal(err)
			}
			meta, err := l.MetaPrefix(s)
			if err != nil {
				t.Fatal(err)
			}
			if mesh != tt.wantMesh || meta != tt.wantMeta {
				t.Errorf("prefixes = %q, %q; want %q, %q", mesh, meta, tt.wantMesh, tt.wantMeta)
			}
		})
	}

	flatName, _ := NewLayout("{{.Name}}.obj", "{{.Name}}.json")
	if p, _ := flatName.MeshPrefix(s); p != "" {
		t.Errorf("root-level layout prefix = %q, want empty", p)
	}
}

func TestLayout_Errors(t *testing.T) {
	if _, err := LayoutByName("nope", "", ""); err == nil {
		t.Error("Expected error for unknown layout")
	}
	if _, err := NewLayout("{{.Name", "x"); err == nil {
		t.Error("Expected template parse error")
	}
	l, err := NewLayout("{{.Missing}}", "x")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.MeshPath(Frame{}); err == nil {
		t.Error("Expected render error for unknown field")
	}

	custom, err := LayoutByName(LayoutFlat, "meshes/{{.Name}}.obj", "")
	if err != nil {
		t.Fatal(err)
	}
	if p, _ := custom.MeshPath(Frame{1, 2, 3}); p != "meshes/M01_S0002_F003.obj" {
		t.Errorf("override MeshPath() = %v", p)
	}
}
