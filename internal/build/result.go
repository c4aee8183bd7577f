package build

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// LibraryKind is the linkage of a library. The zero value means "not
// decided yet" and is resolved when a build is created.
type LibraryKind int

const (
	Static LibraryKind = iota + 1
	Shared
)

// String returns the host's name for the kind.
func (k LibraryKind) String() string {
	switch k {
	case Static:
		return "static"
	case Shared:
		return "dylib"
	}
	return ""
}

// SearchKind tags a library search path.
type SearchKind int

const (
	SearchAll SearchKind = iota
	SearchDependency
	SearchCrate
	SearchNative
	SearchFramework
)

func (k SearchKind) String() string {
	switch k {
	case SearchDependency:
		return "dependency"
	case SearchCrate:
		return "crate"
	case SearchNative:
		return "native"
	case SearchFramework:
		return "framework"
	}
	return "all"
}

type Library struct {
	Name string
	Kind LibraryKind // 0 when unknown
}

func (l Library) String() string {
	if l.Kind == 0 {
		return l.Name
	}
	return l.Kind.String() + "=" + l.Name
}

// LinkName strips the platform decoration from a library file name:
// libfoo.a and libfoo.so become foo, foo.lib stays foo.
func (l Library) LinkName() string {
	name := l.Name
	ext := filepath.Ext(name)
	// versioned shared objects: libfoo.so.1.2
	if i := strings.Index(name, ".so."); i > 0 {
		name, ext = name[:i], ".so"
	} else {
		name = strings.TrimSuffix(name, ext)
	}
	if ext != ".lib" && ext != ".dll" {
		name = strings.TrimPrefix(name, "lib")
	}
	return name
}

type LibraryPath struct {
	Path string
	Kind SearchKind
}

func (p LibraryPath) String() string {
	if p.Kind == SearchAll {
		return p.Path
	}
	return p.Kind.String() + "=" + p.Path
}

// Result collects what a build produced. Steps append to it while the build
// runs; nothing removes entries.
type Result struct {
	libraries    []Library
	libraryPaths []LibraryPath
	emits        []string
}

func NewResult() *Result { return &Result{} }

func (r *Result) AddLibrary(name string, kind LibraryKind) *Result {
	r.libraries = append(r.libraries, Library{Name: name, Kind: kind})
	return r
}

func (r *Result) AddLibraryPath(path string, kind SearchKind) *Result {
	r.libraryPaths = append(r.libraryPaths, LibraryPath{Path: path, Kind: kind})
	return r
}

// AddEmit appends a free-form line, emitted verbatim after the "cargo:"
// prefix.
func (r *Result) AddEmit(line string) *Result {
	r.emits = append(r.emits, line)
	return r
}

// Merge appends everything in other to r.
func (r *Result) Merge(other *Result) *Result {
	r.libraries = append(r.libraries, other.libraries...)
	r.libraryPaths = append(r.libraryPaths, other.libraryPaths...)
	r.emits = append(r.emits, other.emits...)
	return r
}

func (r *Result) Libraries() []Library         { return r.libraries }
func (r *Result) LibraryPaths() []LibraryPath { return r.libraryPaths }
func (r *Result) Emits() []string             { return r.emits }

// Emit writes the result in cargo's build script protocol. Search paths
// come first and duplicates are written once.
func (r *Result) Emit(w io.Writer) error {
	seen := make(map[LibraryPath]bool, len(r.libraryPaths))
	for _, p := range r.libraryPaths {
		if seen[p] {
			continue
		}
		seen[p] = true
		if _, err := fmt.Fprintf(w, "cargo:rustc-link-search=%s\n", p); err != nil {
			return err
		}
	}
	for _, lib := range r.libraries {
		line := lib.LinkName()
		if lib.Kind != 0 {
			line = lib.Kind.String() + "=" + line
		}
		if _, err := fmt.Fprintf(w, "cargo:rustc-link-lib=%s\n", line); err != nil {
			return err
		}
	}
	for _, emit := range r.emits {
		if _, err := fmt.Fprintf(w, "cargo:%s\n", emit); err != nil {
			return err
		}
	}
	return nil
}
