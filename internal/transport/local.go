package transport

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sanchez-kim/obj-viewer/internal/address"
	"github.com/sanchez-kim/obj-viewer/internal/types"
)

// LocalFetcher reads frames from a directory tree on disk.
type LocalFetcher struct {
	root   string
	layout *address.Layout
}

// NewLocal creates a filesystem transport rooted at root.
func NewLocal(root string, layout *address.Layout) (*LocalFetcher, error) {
	if root == "" {
		root = "."
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("local root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local root %s is not a directory", root)
	}
	return &LocalFetcher{root: root, layout: layout}, nil
}

func (l *LocalFetcher) Name() string { return "local " + l.root }

func (l *LocalFetcher) Close() error { return nil }

func (l *LocalFetcher) Fetch(ctx context.Context, f address.Frame) (types.FramePair, error) {
	return fetchPair(ctx, l.layout, f, l.get)
}

// List walks the sentence's directories for .obj/.json pairs.
func (l *LocalFetcher) List(ctx context.Context, s address.Sentence) (Listing, error) {
	return listSentence(ctx, l.layout, s, l.list)
}

func (l *LocalFetcher) get(ctx context.Context, rel string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(l.root, filepath.FromSlash(rel)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return data, err
}

func (l *LocalFetcher) list(ctx context.Context, prefix string) ([]string, error) {
	dir := filepath.Join(l.root, filepath.FromSlash(prefix))
	var names []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.IsDir() {
			names = append(names, d.Name())
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return names, err
}
