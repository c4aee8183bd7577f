package build_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/qobs-build/rbuild/internal/build"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuild(t *testing.T, cfg build.Config) *build.Build {
	t.Helper()
	if cfg.Env == nil {
		cfg.Env = noEnv
	}
	if cfg.BuildPath == "" {
		cfg.BuildPath = t.TempDir()
	}
	b, err := build.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestNewValidates(t *testing.T) {
	_, err := build.New(build.Config{Source: &fakeSource{}, Env: noEnv})
	assert.ErrorIs(t, err, build.ErrMissingName)

	_, err = build.New(build.Config{Name: "x", Env: noEnv})
	assert.ErrorIs(t, err, build.ErrMissingSource)

	_, err = build.New(build.Config{
		Name:   "x",
		Source: &fakeSource{},
		Env:    build.MapEnv(map[string]string{"rbuild_library_type": "both"}),
	})
	var invalid *build.InvalidLibraryTypeError
	assert.ErrorAs(t, err, &invalid)
}

func TestNewBuildDirFailure(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := build.New(build.Config{Name: "x", Source: &fakeSource{}, BuildPath: file, Env: noEnv})
	assert.ErrorIs(t, err, build.ErrCreateBuildDir)
}

func TestNewResolvesDefaults(t *testing.T) {
	base := t.TempDir()
	b := newBuild(t, build.Config{Name: "libfoo", Source: &fakeSource{}, BuildPath: base})

	assert.Equal(t, build.Shared, b.LibraryType())
	assert.Equal(t, "", b.InstallPrefix())
	assert.Equal(t, filepath.Join(base, b.DirName()), b.BuildPath())
	assert.DirExists(t, b.BuildPath())
}

func TestNewExplicitWinsOverEnv(t *testing.T) {
	b := newBuild(t, build.Config{
		Name:          "libfoo",
		Source:        &fakeSource{},
		LibraryType:   build.Static,
		InstallPrefix: "/explicit",
		Env: build.MapEnv(map[string]string{
			"rbuild_libfoo_library_type":   "shared",
			"rbuild_libfoo_install_prefix": "/env",
		}),
	})
	assert.Equal(t, build.Static, b.LibraryType())
	assert.Equal(t, "/explicit", b.InstallPrefix())
}

func TestNewUsesHostOutDir(t *testing.T) {
	out := t.TempDir()
	b, err := build.New(build.Config{
		Name:   "libfoo",
		Source: &fakeSource{},
		Env:    build.MapEnv(map[string]string{"OUT_DIR": out}),
	})
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, out, b.InstallPrefix())
	assert.Equal(t, out, filepath.Dir(b.BuildPath()))
}

func TestSameConfigurationSameDirectory(t *testing.T) {
	base := t.TempDir()
	cfg := build.Config{
		Name:         "libfoo",
		Source:       &fakeSource{id: "src"},
		Steps:        []build.Step{&fakeStep{name: "meson build", options: map[string]string{"opt": "false"}}},
		BuildPath:    base,
		KeepBuildDir: true,
	}
	first := newBuild(t, cfg)

	cfg.Source = &fakeSource{id: "src"}
	second := newBuild(t, cfg)
	assert.Equal(t, first.BuildPath(), second.BuildPath())

	cfg.Steps = []build.Step{&fakeStep{name: "meson build", options: map[string]string{"opt": "true"}}}
	third := newBuild(t, cfg)
	assert.NotEqual(t, first.BuildPath(), third.BuildPath())
}

func TestWorkDirMatchesNew(t *testing.T) {
	base := t.TempDir()
	cfg := build.Config{Name: "libfoo", Source: &fakeSource{id: "src"}, BuildPath: base, Env: noEnv}

	dir, err := build.WorkDir(cfg)
	require.NoError(t, err)
	assert.NoDirExists(t, dir)

	b := newBuild(t, cfg)
	assert.Equal(t, b.BuildPath(), dir)

	_, err = build.WorkDir(build.Config{Name: "libfoo", Env: noEnv})
	assert.ErrorIs(t, err, build.ErrMissingSource)
}

func TestExecuteRunsStepsInOrder(t *testing.T) {
	var order []string
	step := func(name string) *fakeStep {
		return &fakeStep{name: name, run: func(b *build.Build, r *build.Result) error {
			order = append(order, name)
			r.AddLibrary("lib"+name+".a", build.Static)
			return nil
		}}
	}
	src := &fakeSource{}
	b := newBuild(t, build.Config{Name: "x", Source: src, Steps: []build.Step{step("a"), step("b"), step("c")}})

	result, err := b.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Len(t, result.Libraries(), 3)
	assert.Equal(t, 1, src.setups)
}

func TestExecuteSourceSetupFailure(t *testing.T) {
	step := &fakeStep{name: "never"}
	b := newBuild(t, build.Config{
		Name:   "x",
		Source: &fakeSource{setupErr: errors.New("clone failed")},
		Steps:  []build.Step{step},
	})

	result, err := b.Execute(context.Background())
	assert.Nil(t, result)
	var buildErr *build.Error
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, "source setup", buildErr.Step)
	assert.Equal(t, "clone failed", buildErr.Err.Detail)
	assert.Zero(t, step.calls)
}

func TestExecuteStopsAtFirstFailure(t *testing.T) {
	first := &fakeStep{name: "first", run: func(_ *build.Build, r *build.Result) error {
		r.AddLibraryPath("/out/lib", build.SearchNative)
		return nil
	}}
	failing := &fakeStep{name: "failing", run: func(*build.Build, *build.Result) error {
		return &build.StepError{Detail: "compile failed", Stdout: "out", Stderr: "err"}
	}}
	last := &fakeStep{name: "last"}
	b := newBuild(t, build.Config{Name: "x", Source: &fakeSource{}, Steps: []build.Step{first, failing, last}})

	result, err := b.Execute(context.Background())
	assert.Nil(t, result)

	var buildErr *build.Error
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, "failing", buildErr.Step)
	assert.Equal(t, "out", buildErr.Err.Stdout)
	assert.Zero(t, last.calls)
	require.NotNil(t, buildErr.Partial)
	assert.Len(t, buildErr.Partial.LibraryPaths(), 1)
}

func TestExecuteTwiceFailsInSetup(t *testing.T) {
	b := newBuild(t, build.Config{Name: "x", Source: &fakeSource{}})
	_, err := b.Execute(context.Background())
	require.NoError(t, err)

	_, err = b.Execute(context.Background())
	var buildErr *build.Error
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, "source setup", buildErr.Step)
}

func TestCloseRemovesBuildDir(t *testing.T) {
	src := &fakeSource{}
	b, err := build.New(build.Config{Name: "x", Source: src, BuildPath: t.TempDir(), Env: noEnv})
	require.NoError(t, err)

	require.NoError(t, b.Close())
	assert.NoDirExists(t, b.BuildPath())
	assert.True(t, src.cleaned)
}

func TestRetainBuildPathOutlivesClose(t *testing.T) {
	b, err := build.New(build.Config{Name: "x", Source: &fakeSource{}, BuildPath: t.TempDir(), Env: noEnv})
	require.NoError(t, err)

	dir := b.RetainBuildPath()
	require.NoError(t, b.Close())
	assert.DirExists(t, dir.Path())
	assert.False(t, dir.Released())

	require.NoError(t, dir.Close())
	assert.NoDirExists(t, b.BuildPath())
}

func TestDefaultInstallDirOutsideBuildPath(t *testing.T) {
	base := t.TempDir()
	b, err := build.New(build.Config{Name: "x", Source: &fakeSource{}, BuildPath: base, Env: noEnv})
	require.NoError(t, err)

	install := b.DefaultInstallDir()
	assert.Equal(t, filepath.Join(base, build.InstallDirName("x", b.Hash())), install)
	require.NoError(t, os.MkdirAll(filepath.Join(install, "lib"), 0o755))

	require.NoError(t, b.Close())
	assert.NoDirExists(t, b.BuildPath())
	assert.DirExists(t, filepath.Join(install, "lib"))
}

func TestCloseKeepsBuildDir(t *testing.T) {
	b, err := build.New(build.Config{Name: "x", Source: &fakeSource{}, BuildPath: t.TempDir(), KeepBuildDir: true, Env: noEnv})
	require.NoError(t, err)

	require.NoError(t, b.Close())
	assert.DirExists(t, b.BuildPath())
}

func TestCloseKeepsBuildDirFromEnv(t *testing.T) {
	b, err := build.New(build.Config{
		Name:      "x",
		Source:    &fakeSource{},
		BuildPath: t.TempDir(),
		Env:       build.MapEnv(map[string]string{"rbuild_x_keep_build_dir": "true"}),
	})
	require.NoError(t, err)

	require.NoError(t, b.Close())
	assert.DirExists(t, b.BuildPath())
}

func TestPrettyFormat(t *testing.T) {
	err := &build.Error{
		Step: "meson build",
		Err:  &build.StepError{Detail: "failed to setup build", Stdout: "configuring\n", Stderr: "no compiler"},
	}
	assert.Equal(t, `Build step "meson build" errored: failed to setup build
----------------- Stdout -----------------
configuring
----------------- Stderr -----------------
no compiler
`, err.PrettyFormat())

	quiet := &build.Error{Step: "patch", Err: build.NewStepError("nothing to do")}
	assert.Equal(t, "Build step \"patch\" errored: nothing to do\n", quiet.PrettyFormat())
}

func TestIOStepError(t *testing.T) {
	cause := os.ErrPermission
	err := build.IOStepError("failed to remove checkout", cause)
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Equal(t, "IOError: "+cause.Error(), err.Stderr)
}
