package build

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config describes a build. Zero values are resolved from the environment
// by New: LibraryType from rbuild_<name>_library_type or
// rbuild_library_type (default Shared), InstallPrefix and BuildPath from
// rbuild_<name>_install_prefix / rbuild_<name>_build_path, their general
// forms, and OUT_DIR.
type Config struct {
	Name   string
	Source Source
	Steps  []Step

	LibraryType   LibraryKind
	InstallPrefix string
	// BuildPath is the directory the working directory is created in.
	BuildPath string
	// KeepBuildDir leaves the working directory on disk after Close.
	KeepBuildDir bool

	Env Env
}

type resolvedConfig struct {
	libraryType   LibraryKind
	installPrefix string
	buildPath     string
	keepBuildDir  bool
}

func (cfg *Config) resolve() (resolvedConfig, error) {
	if cfg.Name == "" {
		return resolvedConfig{}, ErrMissingName
	}
	if cfg.Source == nil {
		return resolvedConfig{}, ErrMissingSource
	}

	r := resolvedConfig{
		libraryType:   cfg.LibraryType,
		installPrefix: cfg.InstallPrefix,
		buildPath:     cfg.BuildPath,
		keepBuildDir:  cfg.KeepBuildDir || KeepBuildDirFromEnv(cfg.Env, cfg.Name),
	}
	if r.libraryType == 0 {
		kind, err := LibraryTypeFromEnv(cfg.Env, cfg.Name)
		if err != nil {
			return resolvedConfig{}, err
		}
		r.libraryType = kind
	}
	if r.libraryType == 0 {
		r.libraryType = Shared
	}
	if r.installPrefix == "" {
		r.installPrefix = InstallPrefixFromEnv(cfg.Env, cfg.Name)
	}
	if r.buildPath == "" {
		r.buildPath = BuildPathFromEnv(cfg.Env, cfg.Name)
	}
	return r, nil
}

// Identity computes the build hash New would assign, without creating
// anything on disk.
func Identity(cfg Config) (uint64, error) {
	r, err := cfg.resolve()
	if err != nil {
		return 0, err
	}
	return identity(cfg.Name, cfg.Source, r.installPrefix, r.libraryType, cfg.Steps), nil
}

// WorkDir returns the working directory New would create for cfg.
func WorkDir(cfg Config) (string, error) {
	r, err := cfg.resolve()
	if err != nil {
		return "", err
	}
	base := r.buildPath
	if base == "" {
		base = os.TempDir()
	}
	hash := identity(cfg.Name, cfg.Source, r.installPrefix, r.libraryType, cfg.Steps)
	return filepath.Join(base, DirName(cfg.Name, hash)), nil
}

// New validates cfg, derives the build hash and creates the working
// directory.
func New(cfg Config) (*Build, error) {
	r, err := cfg.resolve()
	if err != nil {
		return nil, err
	}

	hash := identity(cfg.Name, cfg.Source, r.installPrefix, r.libraryType, cfg.Steps)
	buildPath, err := CreateTempPath(DirName(cfg.Name, hash), r.buildPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateBuildDir, err)
	}
	if r.keepBuildDir {
		buildPath.Release()
	}

	return &Build{
		name:          cfg.Name,
		source:        cfg.Source,
		hash:          hash,
		steps:         cfg.Steps,
		libraryType:   r.libraryType,
		buildPath:     buildPath,
		installPrefix: r.installPrefix,
	}, nil
}
