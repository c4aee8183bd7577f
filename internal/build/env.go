package build

import (
	"os"
	"strconv"
	"strings"
)

// HostOutDir is the variable a host build system (cargo) sets to the
// directory build scripts may write into.
const HostOutDir = "OUT_DIR"

// Env looks up an environment variable. os.LookupEnv is the default; tests
// pass a map-backed lookup.
type Env func(key string) (string, bool)

// MapEnv returns an Env backed by m.
func MapEnv(m map[string]string) Env {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func (e Env) orDefault() Env {
	if e == nil {
		return os.LookupEnv
	}
	return e
}

// lookup tries rbuild_<name>_<key> and then rbuild_<key>.
func (e Env) lookup(name, key string) (variable, value string, ok bool) {
	e = e.orDefault()
	for _, variable := range []string{"rbuild_" + name + "_" + key, "rbuild_" + key} {
		if value, ok := e(variable); ok {
			return variable, value, true
		}
	}
	return "", "", false
}

// ParseLibraryType accepts "static" or "shared" in any case.
func ParseLibraryType(s string) (LibraryKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "static":
		return Static, true
	case "shared":
		return Shared, true
	}
	return 0, false
}

// LibraryTypeFromEnv returns the library type configured for the named
// build, or 0 when no variable is set.
func LibraryTypeFromEnv(env Env, name string) (LibraryKind, error) {
	variable, value, ok := env.lookup(name, "library_type")
	if !ok {
		return 0, nil
	}
	kind, ok := ParseLibraryType(value)
	if !ok {
		return 0, &InvalidLibraryTypeError{Variable: variable, Value: value}
	}
	return kind, nil
}

// InstallPrefixFromEnv falls back to the host output directory.
func InstallPrefixFromEnv(env Env, name string) string {
	if _, value, ok := env.lookup(name, "install_prefix"); ok && value != "" {
		return value
	}
	if value, ok := env.orDefault()(HostOutDir); ok {
		return value
	}
	return ""
}

// BuildPathFromEnv returns the base directory for working directories, or
// "" to use the system temporary directory.
func BuildPathFromEnv(env Env, name string) string {
	if _, value, ok := env.lookup(name, "build_path"); ok && value != "" {
		return value
	}
	if value, ok := env.orDefault()(HostOutDir); ok {
		return value
	}
	return ""
}

// KeepBuildDirFromEnv reports whether the working directory should survive
// the build. Unparsable values are treated as false.
func KeepBuildDirFromEnv(env Env, name string) bool {
	_, value, ok := env.lookup(name, "keep_build_dir")
	if !ok {
		return false
	}
	keep, _ := strconv.ParseBool(value)
	return keep
}
