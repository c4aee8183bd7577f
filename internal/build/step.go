package build

import "context"

// Step is one unit of work run against a build's working directory.
type Step interface {
	// Name identifies the step in error reports.
	Name() string

	// Hash writes everything that changes the step's output. Two steps
	// with the same name and hash must do the same work.
	Hash(h *Hasher)

	// Execute runs the step and records produced artifacts in result.
	Execute(ctx context.Context, b *Build, result *Result) error
}

// Source provides the tree a build runs against.
type Source interface {
	Name() string

	// Hash writes everything that identifies the source contents.
	Hash(h *Hasher)

	// Setup makes LocalDir usable. A second call fails.
	Setup(ctx context.Context) error

	// LocalDir is only valid after a successful Setup.
	LocalDir() string

	// Cleanup gives up the source's claim on its directory without
	// deleting it.
	Cleanup()
}
