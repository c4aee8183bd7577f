package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/qobs-build/rbuild/internal/build"
	"github.com/qobs-build/rbuild/internal/index"
	"github.com/qobs-build/rbuild/internal/meson"
	"github.com/qobs-build/rbuild/internal/msg"
	"github.com/qobs-build/rbuild/internal/patch"
	"github.com/qobs-build/rbuild/internal/source"
)

const ConfigFilename = "rbuild.toml"

// Options override what rbuild.toml and the environment say.
type Options struct {
	LibraryType build.LibraryKind // 0 keeps the configured type
	BuildDir    string
	Keep        bool
	Verbose     bool
	Only        []string // build names, empty for all

	Runner build.Runner // nil for build.ExecRunner
	Env    build.Env    // nil for the process environment
}

type Builder struct {
	cfg     *Config
	basedir string
	env     ConfigEnv
	opts    Options
	runner  build.Runner
	gitTool *source.GitTool
}

// planned is a build ready to be created.
type planned struct {
	name    string
	section *BuildSection
	cfg     build.Config
	git     *source.Git // nil for directory sources
}

// Info describes a build without running it.
type Info struct {
	Name    string
	Hash    uint64
	DirName string
	WorkDir string

	// InstallDir is used when the build has no install prefix.
	InstallDir string
}

func NewBuilderInDirectory(path string, opts Options) (*Builder, error) {
	var err error
	path, err = filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	env := NewConfigEnv(path)
	cfg, err := ParseConfigFromFile(filepath.Join(path, ConfigFilename), env)
	if err != nil {
		return nil, err
	}

	runner := opts.Runner
	if runner == nil {
		runner = build.ExecRunner{Verbose: opts.Verbose}
	}
	return &Builder{cfg: cfg, basedir: path, env: env, opts: opts, runner: runner}, nil
}

// Names returns the builds that will run, in order.
func (b *Builder) Names() ([]string, error) {
	all := b.cfg.Names()
	if len(b.opts.Only) == 0 {
		return all, nil
	}

	var names []string
	for _, name := range b.opts.Only {
		if _, ok := b.cfg.Builds[name]; !ok {
			return nil, fmt.Errorf("unknown build %q, known builds: %s", name, strings.Join(all, ", "))
		}
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

func (b *Builder) abs(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(b.basedir, path)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (b *Builder) plan(name string) (*planned, error) {
	s := b.cfg.Builds[name]
	buildPath := firstNonEmpty(b.abs(b.opts.BuildDir), b.abs(s.BuildPath))

	p := &planned{name: name, section: s}
	var src build.Source
	if s.Source.Git != "" {
		g := source.NewGit(s.Source.Git)
		g.CheckoutDir = firstNonEmpty(b.abs(s.Source.CheckoutDir), buildPath, build.BuildPathFromEnv(b.opts.Env, name))
		g.Submodules = s.Source.Submodules
		g.SkipRevisionCheckout = s.Source.SkipRevisionCheckout
		g.Runner = b.runner
		p.git = g
		src = g
	} else {
		dir, err := source.NewDirectory(b.abs(s.Source.Dir))
		if err != nil {
			return nil, fmt.Errorf("build %q: %w", name, err)
		}
		src = dir
	}

	var steps []build.Step
	if len(s.Patch) > 0 {
		steps = append(steps, patch.New(s.Patch))
	}
	if s.Meson != nil {
		opts := []meson.Option{
			meson.WithOptions(s.Meson.Options),
			meson.WithRunner(b.runner),
			meson.WithMaxSetupAttempts(s.Meson.MaxSetupAttempts),
		}
		if len(s.Meson.Promote) > 0 {
			opts = append(opts, meson.WithPromote(meson.MatchPromote(s.Meson.Promote...)))
		}
		steps = append(steps, meson.New(opts...))
	}

	kind := b.opts.LibraryType
	if kind == 0 && s.LibraryType != "" {
		kind, _ = build.ParseLibraryType(s.LibraryType)
	}

	p.cfg = build.Config{
		Name:          name,
		Source:        src,
		Steps:         steps,
		LibraryType:   kind,
		InstallPrefix: b.abs(s.InstallPrefix),
		BuildPath:     buildPath,
		KeepBuildDir:  s.KeepBuildDir || b.opts.Keep,
		Env:           b.opts.Env,
	}
	return p, nil
}

// Identities computes every build's hash and working directory without
// running anything.
func (b *Builder) Identities() ([]Info, error) {
	names, err := b.Names()
	if err != nil {
		return nil, err
	}

	infos := make([]Info, 0, len(names))
	for _, name := range names {
		p, err := b.plan(name)
		if err != nil {
			return nil, err
		}
		hash, err := build.Identity(p.cfg)
		if err != nil {
			return nil, fmt.Errorf("build %q: %w", name, err)
		}
		workDir, err := build.WorkDir(p.cfg)
		if err != nil {
			return nil, fmt.Errorf("build %q: %w", name, err)
		}
		infos = append(infos, Info{
			Name:       name,
			Hash:       hash,
			DirName:    build.DirName(name, hash),
			WorkDir:    workDir,
			InstallDir: filepath.Join(filepath.Dir(workDir), build.InstallDirName(name, hash)),
		})
	}
	return infos, nil
}

// git probes the git executable once for all git sources.
func (b *Builder) git(ctx context.Context) *source.GitTool {
	if b.gitTool == nil {
		b.gitTool = source.DetectGit(ctx, b.runner)
	}
	return b.gitTool
}

// Build runs the selected builds one after another and merges their
// results. A failing build is returned as a *build.Error.
func (b *Builder) Build(ctx context.Context) (*build.Result, error) {
	names, err := b.Names()
	if err != nil {
		return nil, err
	}

	idx, err := index.Load(b.basedir)
	if err != nil {
		msg.Warn("ignoring unreadable %s: %v", index.IndexFilename, err)
		idx = index.New(b.basedir)
	}

	total := build.NewResult()
	total.AddEmit("rerun-if-changed=" + filepath.Join(b.basedir, ConfigFilename))
	for _, name := range names {
		res, err := b.buildOne(ctx, name, idx)
		if err != nil {
			b.saveIndex(idx)
			return nil, err
		}
		total.Merge(res)
	}
	b.saveIndex(idx)
	return total, nil
}

func (b *Builder) saveIndex(idx *index.Index) {
	if err := idx.Save(); err != nil {
		msg.Warn("failed to save %s: %v", index.IndexFilename, err)
	}
}

func (b *Builder) buildOne(ctx context.Context, name string, idx *index.Index) (*build.Result, error) {
	p, err := b.plan(name)
	if err != nil {
		return nil, err
	}
	if err := p.section.RunCheck(name, b.env); err != nil {
		return nil, err
	}
	if p.git != nil {
		p.git.Tool = b.git(ctx)
	}

	bld, err := build.New(p.cfg)
	if err != nil {
		return nil, fmt.Errorf("build %q: %w", name, err)
	}

	workDir := bld.RetainBuildPath()
	defer workDir.Close()

	res, execErr := bld.Execute(ctx)
	var revision string
	if execErr == nil {
		revision = b.annotate(p, res)
	}
	if p.git != nil && p.git.LocalDir() != "" {
		idx.Set(p.git.LocalDir(), index.Entry{Build: name, Kind: index.KindCheckout, Revision: revision})
	}

	hash := fmt.Sprintf("%016x", bld.Hash())
	if bld.InstallPrefix() == "" {
		installDir := bld.DefaultInstallDir()
		if _, err := os.Stat(installDir); err == nil {
			idx.Set(installDir, index.Entry{Build: name, Kind: index.KindInstall, Hash: hash})
		}
	}
	if err := bld.Close(); err != nil {
		msg.Warn("%v", err)
	}
	// removed once workDir is closed, unless kept
	if workDir.Released() {
		idx.Set(workDir.Path(), index.Entry{Build: name, Kind: index.KindBuild, Hash: hash})
	} else {
		idx.Remove(workDir.Path())
	}

	if execErr != nil {
		return nil, execErr
	}
	return res, nil
}

// annotate adds what the host needs beyond the libraries: when to rerun
// and which revision was built. It returns the built commit of a git
// source, "" otherwise.
func (b *Builder) annotate(p *planned, res *build.Result) string {
	if p.git == nil {
		res.AddEmit("rerun-if-changed=" + p.cfg.Source.LocalDir())
		return ""
	}

	head, err := p.git.Head()
	if err != nil {
		msg.Warn("could not read the revision of %s: %v", p.git.URL, err)
		return ""
	}
	res.AddEmit(fmt.Sprintf("rustc-env=%s=%s", RevisionVariable(p.name), head))
	return head
}

// RevisionVariable is the environment variable the built commit of a git
// source is exported as, e.g. RBUILD_LIBSRTP_REVISION.
func RevisionVariable(name string) string {
	upper := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, name)
	return "RBUILD_" + upper + "_REVISION"
}

// Clean removes the working and default install directories of the
// selected builds, including the ones recorded for older configurations.
// With checkouts set, git checkouts are removed too.
func (b *Builder) Clean(checkouts bool) ([]string, error) {
	names, err := b.Names()
	if err != nil {
		return nil, err
	}
	idx, err := index.Load(b.basedir)
	if err != nil {
		return nil, err
	}

	var dirs []string
	for _, name := range names {
		p, err := b.plan(name)
		if err != nil {
			return nil, err
		}
		workDir, err := build.WorkDir(p.cfg)
		if err != nil {
			return nil, fmt.Errorf("build %q: %w", name, err)
		}
		hash, err := build.Identity(p.cfg)
		if err != nil {
			return nil, fmt.Errorf("build %q: %w", name, err)
		}
		dirs = append(dirs, workDir, filepath.Join(filepath.Dir(workDir), build.InstallDirName(name, hash)))
		if checkouts && p.git != nil {
			dirs = append(dirs, p.git.CheckoutPath())
		}
	}
	for _, dir := range idx.Filter(names) {
		if checkouts || idx.Dirs[dir].Kind != index.KindCheckout {
			dirs = append(dirs, dir)
		}
	}
	slices.Sort(dirs)
	dirs = slices.Compact(dirs)

	var removed []string
	var errs []error
	for _, dir := range dirs {
		_, statErr := os.Stat(dir)
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, err)
			continue
		}
		idx.Remove(dir)
		if statErr == nil {
			removed = append(removed, dir)
		}
	}
	if err := idx.Save(); err != nil {
		errs = append(errs, err)
	}
	return removed, errors.Join(errs...)
}
