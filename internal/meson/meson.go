// Package meson drives the meson configure/compile/install cycle as a build
// step.
package meson

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/qobs-build/rbuild/internal/build"
	"github.com/qobs-build/rbuild/internal/msg"
)

// DefaultMaxSetupAttempts bounds the setup/promote loop.
const DefaultMaxSetupAttempts = 8

const promoteMarker = "meson wrap promote "

// PromoteFunc receives the argument meson suggested for `meson wrap promote`
// and returns the wrap files to promote. An empty result gives up.
type PromoteFunc func(arg string) []string

// Step runs `meson setup`, `meson compile` and `meson install` and records
// the installed libraries.
type Step struct {
	options          map[string]string
	promote          PromoteFunc
	runner           build.Runner
	binary           string
	maxSetupAttempts int
}

type Option func(*Step)

// WithOption adds a -D<key>=<value> define.
func WithOption(key, value string) Option {
	return func(s *Step) { s.options[key] = value }
}

func WithOptions(opts map[string]string) Option {
	return func(s *Step) {
		for k, v := range opts {
			s.options[k] = v
		}
	}
}

// WithPromote enables recovery from missing wrap promotions.
func WithPromote(fn PromoteFunc) Option {
	return func(s *Step) { s.promote = fn }
}

func WithRunner(r build.Runner) Option {
	return func(s *Step) { s.runner = r }
}

// WithBinary overrides the meson executable.
func WithBinary(path string) Option {
	return func(s *Step) { s.binary = path }
}

func WithMaxSetupAttempts(n int) Option {
	return func(s *Step) {
		if n > 0 {
			s.maxSetupAttempts = n
		}
	}
}

func New(opts ...Option) *Step {
	s := &Step{
		options:          make(map[string]string),
		runner:           build.ExecRunner{},
		maxSetupAttempts: DefaultMaxSetupAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.binary == "" {
		s.binary = findMeson()
	}
	return s
}

// findMeson honours $MESON, then looks through PATH.
func findMeson() string {
	if meson := os.Getenv("MESON"); meson != "" {
		return meson
	}
	for _, name := range []string{"meson", "meson.py"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	// let the runner report the missing binary
	return "meson"
}

func (s *Step) Name() string { return "meson build" }

func (s *Step) Hash(h *build.Hasher) { h.WriteStringMap(s.options) }

// Options returns a copy of the configured defines.
func (s *Step) Options() map[string]string {
	opts := make(map[string]string, len(s.options))
	for k, v := range s.options {
		opts[k] = v
	}
	return opts
}

func (s *Step) Execute(ctx context.Context, b *build.Build, result *build.Result) error {
	buildDir := b.BuildPath()
	sourceDir := b.Source().LocalDir()
	prefix := b.InstallPrefix()
	if prefix == "" {
		prefix = b.DefaultInstallDir()
	}

	if err := s.setup(ctx, b, buildDir, sourceDir, prefix); err != nil {
		return err
	}

	msg.Step("Compiling", "%s", b.Name())
	compile := build.Command{Name: s.binary, Args: []string{"compile", "-C", buildDir}}
	if _, _, err := build.RunCommand(ctx, s.runner, compile, "failed to execute build"); err != nil {
		return err
	}

	msg.Step("Installing", "%s to %s", b.Name(), prefix)
	install := build.Command{Name: s.binary, Args: []string{"install", "-C", buildDir}}
	stdout, stderr, err := build.RunCommand(ctx, s.runner, install, "failed to install build")
	if err != nil {
		return err
	}

	installed, err := ParseInstallManifest(stdout)
	if err != nil {
		return &build.StepError{Detail: err.Error(), Stdout: stdout, Stderr: stderr}
	}
	collectLibraries(installed, result)
	return nil
}

func (s *Step) setupCommand(b *build.Build, buildDir, sourceDir, prefix string) build.Command {
	args := []string{"setup", "--prefix", prefix}
	if b.LibraryType() == build.Static {
		args = append(args, "-Ddefault_library=static")
	} else {
		args = append(args, "-Ddefault_library=shared")
	}

	keys := make([]string, 0, len(s.options))
	for k := range s.options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, fmt.Sprintf("-D%s=%s", k, s.options[k]))
	}

	// the working directory is reused between runs with the same hash
	if _, err := os.Stat(filepath.Join(buildDir, "meson-private", "coredata.dat")); err == nil {
		args = append(args, "--reconfigure")
	}
	args = append(args, buildDir, sourceDir)
	return build.Command{Name: s.binary, Args: args}
}

func (s *Step) setup(ctx context.Context, b *build.Build, buildDir, sourceDir, prefix string) error {
	for attempt := 1; ; attempt++ {
		msg.Step("Configuring", "%s", b.Name())
		cmd := s.setupCommand(b, buildDir, sourceDir, prefix)
		stdout, _, err := build.RunCommand(ctx, s.runner, cmd, "failed to setup build")
		if err == nil {
			return nil
		}

		files := s.promotions(stdout)
		if len(files) == 0 {
			return err
		}
		if attempt >= s.maxSetupAttempts {
			var stepErr *build.StepError
			if errors.As(err, &stepErr) {
				stepErr.Detail = fmt.Sprintf("failed to setup build after %d attempts", attempt)
			}
			return err
		}

		for _, file := range files {
			msg.Step("Promoting", "wrap file %s", file)
			promote := build.Command{Name: s.binary, Args: []string{"wrap", "promote", file}, Dir: sourceDir}
			detail := fmt.Sprintf("failed to execute promote command for %s", file)
			if _, _, err := build.RunCommand(ctx, s.runner, promote, detail); err != nil {
				return err
			}
		}
	}
}

// promotions asks the promote callback what to do about the first wrap
// promotion hint in stdout.
func (s *Step) promotions(stdout string) []string {
	if s.promote == nil {
		return nil
	}
	for _, line := range strings.Split(stdout, "\n") {
		_, arg, ok := strings.Cut(line, promoteMarker)
		if ok {
			return s.promote(strings.TrimSpace(arg))
		}
	}
	return nil
}

func libraryKind(file string) (build.LibraryKind, bool) {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".a", ".lib":
		return build.Static, true
	case ".so", ".dll", ".dylib":
		return build.Shared, true
	}
	return 0, false
}

func collectLibraries(installed map[string]string, result *build.Result) {
	sources := make([]string, 0, len(installed))
	for src := range installed {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	for _, src := range sources {
		kind, ok := libraryKind(src)
		if !ok {
			continue
		}
		target := installed[src]
		if fi, err := os.Stat(target); err != nil || !fi.IsDir() {
			msg.Warn("meson installed %q to %q, but the target isn't a directory", src, target)
			continue
		}
		result.AddLibrary(filepath.Base(src), kind)
		result.AddLibraryPath(target, build.SearchNative)
	}
}
