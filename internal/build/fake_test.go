package build_test

import (
	"context"

	"github.com/qobs-build/rbuild/internal/build"
)

type fakeSource struct {
	id       string
	dir      string
	setupErr error
	setups   int
	cleaned  bool
}

func (s *fakeSource) Name() string         { return "fake" }
func (s *fakeSource) Hash(h *build.Hasher) { h.WriteString(s.id) }
func (s *fakeSource) LocalDir() string     { return s.dir }
func (s *fakeSource) Cleanup()             { s.cleaned = true }
func (s *fakeSource) Setup(context.Context) error {
	s.setups++
	if s.setups > 1 {
		return build.NewStepError("the source has already been initialized")
	}
	return s.setupErr
}

type fakeStep struct {
	name    string
	options map[string]string
	run     func(b *build.Build, r *build.Result) error
	calls   int
}

func (s *fakeStep) Name() string         { return s.name }
func (s *fakeStep) Hash(h *build.Hasher) { h.WriteStringMap(s.options) }
func (s *fakeStep) Execute(_ context.Context, b *build.Build, r *build.Result) error {
	s.calls++
	if s.run == nil {
		return nil
	}
	return s.run(b, r)
}

// noEnv keeps tests independent of the developer's environment.
var noEnv = build.MapEnv(nil)
