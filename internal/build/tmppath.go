package build

import (
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/qobs-build/rbuild/internal/msg"
)

// TempPath is a shared handle to a directory. The directory is removed when
// the last owner closes the handle, unless it was released first.
type TempPath struct {
	path     string
	refs     atomic.Int32
	released atomic.Bool
}

// CreateTempPath creates baseDir/name (os.TempDir() when baseDir is empty)
// and returns a handle with one owner.
func CreateTempPath(name, baseDir string) (*TempPath, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	path := filepath.Join(baseDir, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	return newTempPath(path), nil
}

func newTempPath(path string) *TempPath {
	p := &TempPath{path: path}
	p.refs.Store(1)
	return p
}

func (p *TempPath) Path() string { return p.path }

// Release keeps the directory on disk after the last Close. It cannot be
// undone.
func (p *TempPath) Release() { p.released.Store(true) }

func (p *TempPath) Released() bool { return p.released.Load() }

// Retain adds an owner. Every Retain needs a matching Close, and a handle
// whose last owner closed it must not be retained again.
func (p *TempPath) Retain() *TempPath {
	p.refs.Add(1)
	return p
}

// Close drops one owner. Closing a handle that has no owners left is a
// no-op. Removal failures are logged, not returned, so the error is always
// nil; it exists to satisfy io.Closer.
func (p *TempPath) Close() error {
	for {
		n := p.refs.Load()
		if n <= 0 {
			return nil
		}
		if !p.refs.CompareAndSwap(n, n-1) {
			continue
		}
		if n > 1 {
			return nil
		}
		break
	}
	if p.released.Load() {
		return nil
	}
	if err := os.RemoveAll(p.path); err != nil {
		msg.Warn("failed to remove temporary directory %s: %v", p.path, err)
	}
	return nil
}
