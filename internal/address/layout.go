package address

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"
)

// Layout names accepted by LayoutByName.
const (
	LayoutFlat          = "flat"
	LayoutLegacy        = "legacy"
	LayoutSentenceDirs  = "sentence-dirs"
	defaultMeshTemplate = "M{{.M}}/S{{.S}}/F{{.F}}/{{.Name}}.obj"
	defaultMetaTemplate = "M{{.M}}/S{{.S}}/F{{.F}}/{{.Name}}.json"
)

var presets = map[string][2]string{
	LayoutFlat: {defaultMeshTemplate, defaultMetaTemplate},
	LayoutLegacy: {
		"reprocessed_v2/3Ddata/Model{{.Model}}/Sentence{{.S}}/3Dmesh/{{.Name}}.obj",
		"reprocessed_v2/meta/Model{{.Model}}/Sentence{{.S}}/Meta/{{.Name}}.json",
	},
	LayoutSentenceDirs: {
		"Model{{.Model}}/sentence{{.Sentence}}/3Dmesh/{{.Name}}.obj",
		"Model{{.Model}}/sentence{{.Sentence}}/Meta/{{.Name}}.json",
	},
}

// Layout maps a frame address to the relative paths of its mesh and
// metadata files inside a storage root.
type Layout struct {
	mesh *template.Template
	meta *template.Template
}

// fields is what layout templates see.
type fields struct {
	Model    int
	Sentence int
	Frame    int
	M        string
	S        string
	F        string
	Name     string
}

// NewLayout compiles mesh and metadata path templates. Templates may use
// .Model .Sentence .Frame (plain numbers), .M .S .F (zero-padded) and .Name.
func NewLayout(meshTmpl, metaTmpl string) (*Layout, error) {
	mesh, err := template.New("mesh").Option("missingkey=error").Parse(meshTmpl)
	if err != nil {
		return nil, fmt.Errorf("mesh path template: %w", err)
	}
	meta, err := template.New("meta").Option("missingkey=error").Parse(metaTmpl)
	if err != nil {
		return nil, fmt.Errorf("meta path template: %w", err)
	}
	return &Layout{mesh: mesh, meta: meta}, nil
}

// LayoutByName returns a preset layout. Non-empty overrides replace the
// preset's mesh or metadata template.
func LayoutByName(name, meshOverride, metaOverride string) (*Layout, error) {
	if name == "" {
		name = LayoutFlat
	}
	p, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown layout %q (want %s, %s or %s)", name, LayoutFlat, LayoutLegacy, LayoutSentenceDirs)
	}
	if meshOverride != "" {
		p[0] = meshOverride
	}
	if metaOverride != "" {
		p[1] = metaOverride
	}
	return NewLayout(p[0], p[1])
}

// MeshPath returns the relative mesh path of f.
func (l *Layout) MeshPath(f Frame) (string, error) {
	return render(l.mesh, f)
}

// MetaPath returns the relative metadata path of f.
func (l *Layout) MetaPath(f Frame) (string, error) {
	return render(l.meta, f)
}

// MeshPrefix returns the deepest directory shared by every mesh of a
// sentence, with a trailing slash. Listing it finds all of the sentence's
// meshes whether the layout keeps a folder per sentence or per frame.
func (l *Layout) MeshPrefix(s Sentence) (string, error) {
	return prefix(l.mesh, s)
}

// MetaPrefix is MeshPrefix for the metadata files.
func (l *Layout) MetaPrefix(s Sentence) (string, error) {
	return prefix(l.meta, s)
}

func prefix(t *template.Template, s Sentence) (string, error) {
	// frames 0 and 111 differ in every digit of the frame field
	a, err := render(t, s.Frame(0))
	if err != nil {
		return "", err
	}
	b, err := render(t, s.Frame(111))
	if err != nil {
		return "", err
	}
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return a[:strings.LastIndex(a[:n], "/")+1], nil
}

func render(t *template.Template, f Frame) (string, error) {
	var b strings.Builder
	err := t.Execute(&b, fields{
		Model:    f.Model,
		Sentence: f.Sentence,
		Frame:    f.Frame,
		M:        pad(f.Model, ModelWidth),
		S:        pad(f.Sentence, SentenceWidth),
		F:        pad(f.Frame, FrameWidth),
		Name:     f.Name(),
	})
	if err != nil {
		return "", fmt.Errorf("render path for %s: %w", f.Name(), err)
	}
	return b.String(), nil
}

func pad(n, width int) string {
	s := strconv.Itoa(n)
	for len(s) < width {
		s = "0" + s
	}
	return s
}
