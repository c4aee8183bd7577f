package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/qobs-build/rbuild/internal/build"
)

var (
	ErrDirectoryNotFound      = errors.New("source directory does not exist")
	ErrNotADirectory          = errors.New("source path is not a directory")
	ErrDirectoryNotAccessible = errors.New("source directory is not accessible")
)

// Directory is a source tree that already exists on disk.
type Directory struct {
	path  string
	ready bool
}

// NewDirectory checks that path is a readable directory.
func NewDirectory(path string) (*Directory, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDirectoryNotAccessible, path, err)
	}

	fi, err := os.Stat(abs)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, abs)
	case err != nil:
		return nil, fmt.Errorf("%w: %s: %w", ErrDirectoryNotAccessible, abs, err)
	case !fi.IsDir():
		return nil, fmt.Errorf("%w: %s", ErrNotADirectory, abs)
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDirectoryNotAccessible, abs, err)
	}
	defer f.Close()
	if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s: %w", ErrDirectoryNotAccessible, abs, err)
	}

	return &Directory{path: abs}, nil
}

func (d *Directory) Name() string { return "local directory" }

func (d *Directory) Hash(h *build.Hasher) { h.WriteString(d.path) }

func (d *Directory) Setup(context.Context) error {
	if d.ready {
		return build.NewStepError("the source has already been initialized")
	}
	d.ready = true
	return nil
}

func (d *Directory) LocalDir() string { return d.path }

func (d *Directory) Cleanup() { d.ready = false }
