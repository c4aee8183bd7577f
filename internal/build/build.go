package build

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/qobs-build/rbuild/internal/msg"
)

const sourceSetupStep = "source setup"

// Build runs a source and an ordered list of steps in a working directory
// named after the build's hash.
type Build struct {
	name   string
	source Source
	hash   uint64
	steps  []Step

	libraryType   LibraryKind
	buildPath     *TempPath
	installPrefix string
}

func (b *Build) Name() string { return b.name }

func (b *Build) LibraryType() LibraryKind { return b.libraryType }

// InstallPrefix may be empty.
func (b *Build) InstallPrefix() string { return b.installPrefix }

// BuildPath is the working directory steps build into.
func (b *Build) BuildPath() string { return b.buildPath.Path() }

// RetainBuildPath returns another reference to the working directory. It
// stays on disk until both the build and the returned handle are closed.
func (b *Build) RetainBuildPath() *TempPath { return b.buildPath.Retain() }

func (b *Build) Source() Source { return b.source }

func (b *Build) Hash() uint64 { return b.hash }

func (b *Build) DirName() string { return DirName(b.name, b.hash) }

// DefaultInstallDir is where steps install to when InstallPrefix is empty.
// Unlike the working directory it is not removed by Close.
func (b *Build) DefaultInstallDir() string {
	return filepath.Join(filepath.Dir(b.BuildPath()), InstallDirName(b.name, b.hash))
}

func (b *Build) Steps() []Step { return b.steps }

// Execute sets up the source and runs every step in order, stopping at the
// first failure. Failures are returned as *Error.
func (b *Build) Execute(ctx context.Context) (*Result, error) {
	if err := b.source.Setup(ctx); err != nil {
		return nil, &Error{Step: sourceSetupStep, Err: asStepError(err), Partial: NewResult()}
	}

	result := NewResult()
	for _, step := range b.steps {
		msg.Step("Running", "%s (%s)", step.Name(), b.name)
		if err := step.Execute(ctx, b, result); err != nil {
			return nil, &Error{Step: step.Name(), Err: asStepError(err), Partial: result}
		}
	}
	return result, nil
}

// Close gives up the source directory and the working directory. The
// working directory is deleted unless the build was configured to keep it.
func (b *Build) Close() error {
	b.source.Cleanup()
	if err := b.buildPath.Close(); err != nil {
		return fmt.Errorf("close build %s: %w", b.name, err)
	}
	return nil
}
