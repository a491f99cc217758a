package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/sanchez-kim/obj-viewer/internal/address"
	"github.com/sanchez-kim/obj-viewer/internal/types"
)

// ErrNotFound is returned when a mesh or metadata object does not exist.
var ErrNotFound = errors.New("object not found")

// Transport kinds.
const (
	KindHTTP  = "http"
	KindS3    = "s3"
	KindSFTP  = "sftp"
	KindLocal = "local"
)

// Fetcher retrieves the raw files of one frame.
type Fetcher interface {
	Fetch(ctx context.Context, f address.Frame) (types.FramePair, error)
	Name() string
	Close() error
}

// Lister enumerates the frames stored for one sentence.
type Lister interface {
	List(ctx context.Context, s address.Sentence) (Listing, error)
}

// Listing is the result of listing a sentence: the frames that have both a
// mesh and a metadata file, and the names of files missing their partner.
type Listing struct {
	Frames   []address.Frame
	Unpaired []string
}

// Config selects and configures a transport.
type Config struct {
	Kind     string     `mapstructure:"kind"`
	Layout   string     `mapstructure:"layout"`
	MeshPath string     `mapstructure:"mesh_path"`
	MetaPath string     `mapstructure:"meta_path"`
	BaseURL  string     `mapstructure:"base_url"`
	Root     string     `mapstructure:"root"`
	S3       S3Config   `mapstructure:"s3"`
	SFTP     SFTPConfig `mapstructure:"sftp"`
}

// Open builds the transport named by cfg.Kind. Session set-up failures
// (S3 credentials, SSH handshake) are returned here and are fatal to a run.
func Open(ctx context.Context, cfg Config) (Fetcher, error) {
	layout, err := address.LayoutByName(cfg.Layout, cfg.MeshPath, cfg.MetaPath)
	if err != nil {
		return nil, err
	}

	switch cfg.Kind {
	case KindHTTP, "":
		return NewHTTP(cfg.BaseURL, layout, nil)
	case KindS3:
		return NewS3(ctx, cfg.S3, cfg.Root, layout)
	case KindSFTP:
		return DialSFTP(ctx, cfg.SFTP, cfg.Root, layout)
	case KindLocal:
		return NewLocal(cfg.Root, layout)
	default:
		return nil, fmt.Errorf("unknown transport %q (want %s, %s, %s or %s)", cfg.Kind, KindHTTP, KindS3, KindSFTP, KindLocal)
	}
}

// getFunc reads one object addressed relative to the storage root.
type getFunc func(ctx context.Context, rel string) ([]byte, error)

// fetchPair resolves both paths of f through layout and reads them.
func fetchPair(ctx context.Context, layout *address.Layout, f address.Frame, get getFunc) (types.FramePair, error) {
	meshPath, err := layout.MeshPath(f)
	if err != nil {
		return types.FramePair{}, err
	}
	metaPath, err := layout.MetaPath(f)
	if err != nil {
		return types.FramePair{}, err
	}

	pair := types.FramePair{
		Address:  f,
		MeshName: path.Base(meshPath),
		MetaName: path.Base(metaPath),
	}
	if pair.Mesh, err = get(ctx, meshPath); err != nil {
		return pair, fmt.Errorf("fetch %s: %w", meshPath, err)
	}
	if pair.Meta, err = get(ctx, metaPath); err != nil {
		return pair, fmt.Errorf("fetch %s: %w", metaPath, err)
	}
	return pair, nil
}

// listFunc returns the base names of every file below a prefix.
type listFunc func(ctx context.Context, prefix string) ([]string, error)

// listSentence lists the mesh and metadata prefixes of s and pairs the files
// by frame name.
func listSentence(ctx context.Context, layout *address.Layout, s address.Sentence, list listFunc) (Listing, error) {
	meshPrefix, err := layout.MeshPrefix(s)
	if err != nil {
		return Listing{}, err
	}
	metaPrefix, err := layout.MetaPrefix(s)
	if err != nil {
		return Listing{}, err
	}

	meshNames, err := list(ctx, meshPrefix)
	if err != nil {
		return Listing{}, fmt.Errorf("list %s: %w", meshPrefix, err)
	}
	metaNames := meshNames
	if metaPrefix != meshPrefix {
		if metaNames, err = list(ctx, metaPrefix); err != nil {
			return Listing{}, fmt.Errorf("list %s: %w", metaPrefix, err)
		}
	}
	return matchPairs(s, filterExt(meshNames, ".obj"), filterExt(metaNames, ".json")), nil
}

// matchPairs pairs mesh and metadata names with the same stem. Names that
// do not belong to s are ignored.
func matchPairs(s address.Sentence, meshNames, metaNames []string) Listing {
	meshes := framesOf(s, meshNames)
	metas := framesOf(s, metaNames)

	var out Listing
	for f, name := range meshes {
		if _, ok := metas[f]; ok {
			out.Frames = append(out.Frames, f)
		} else {
			out.Unpaired = append(out.Unpaired, "Missing JSON file for OBJ: "+name)
		}
	}
	for f, name := range metas {
		if _, ok := meshes[f]; !ok {
			out.Unpaired = append(out.Unpaired, "Missing OBJ file for JSON: "+name)
		}
	}
	address.Sort(out.Frames)
	sort.Strings(out.Unpaired)
	return out
}

func framesOf(s address.Sentence, names []string) map[address.Frame]string {
	out := make(map[address.Frame]string, len(names))
	for _, n := range names {
		f, err := address.Parse(address.Stem(n))
		if err != nil || !f.Valid() || f.Model != s.Model || f.Sentence != s.Sentence {
			continue
		}
		out[f] = n
	}
	return out
}

func filterExt(names []string, ext string) []string {
	var out []string
	for _, n := range names {
		if strings.EqualFold(path.Ext(n), ext) {
			out = append(out, n)
		}
	}
	return out
}

// withContext runs fn in a goroutine so that blocking calls without context
// support still honour ctx. fn keeps running after a cancellation; a result
// that arrives late is closed if it is an io.Closer.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		go func() {
			r := <-ch
			if c, ok := any(r.v).(io.Closer); ok && r.err == nil {
				c.Close()
			}
		}()
		var zero T
		return zero, ctx.Err()
	}
}

// defaultTimeout bounds connection set-up when no deadline is configured.
const defaultTimeout = 30 * time.Second
