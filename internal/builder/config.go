package builder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/pelletier/go-toml/v2"
	"github.com/qobs-build/rbuild/internal/build"
)

var (
	ErrNoSource        = errors.New("no source, set source.git or source.dir")
	ErrAmbiguousSource = errors.New("source.git and source.dir are mutually exclusive")
	ErrNoBuilds        = errors.New("no [build.<name>] sections")
)

type Config struct {
	Builds map[string]*BuildSection `toml:"build"`
}

// Names returns the build names in order.
func (c Config) Names() []string {
	names := make([]string, 0, len(c.Builds))
	for k := range c.Builds {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// BuildSection defines a [build.<name>] section
type BuildSection struct {
	LibraryType   string `toml:"library_type"`
	InstallPrefix string `toml:"install_prefix"`
	BuildPath     string `toml:"build_path"`
	KeepBuildDir  bool   `toml:"keep_build_dir"`
	Check         string `toml:"check"`

	Source SourceSection     `toml:"source"`
	Patch  map[string]string `toml:"patch"`
	Meson  *MesonSection     `toml:"meson"`
}

// SourceSection defines the [build.<name>.source] section
type SourceSection struct {
	Git                  string `toml:"git"`
	Dir                  string `toml:"dir"`
	CheckoutDir          string `toml:"checkout_dir"`
	Submodules           bool   `toml:"submodules"`
	SkipRevisionCheckout bool   `toml:"skip_revision_checkout"`
}

// MesonSection defines the [build.<name>.meson] section
type MesonSection struct {
	Options          map[string]string `toml:"options"`
	Promote          []string          `toml:"promote"`
	MaxSetupAttempts int               `toml:"max_setup_attempts"`
}

func (s *BuildSection) validate() error {
	switch {
	case s.Source.Git == "" && s.Source.Dir == "":
		return ErrNoSource
	case s.Source.Git != "" && s.Source.Dir != "":
		return ErrAmbiguousSource
	}
	if s.LibraryType != "" {
		if _, ok := build.ParseLibraryType(s.LibraryType); !ok {
			return fmt.Errorf("invalid library_type %q, expected static or shared", s.LibraryType)
		}
	}
	if s.Meson != nil && s.Meson.MaxSetupAttempts < 0 {
		return fmt.Errorf("invalid max_setup_attempts %d", s.Meson.MaxSetupAttempts)
	}
	return nil
}

// mergeTables merges src into dst: tables are merged recursively, arrays
// are appended and everything else is replaced.
func mergeTables(dst, src map[string]any) {
	for key, srcVal := range src {
		dstVal, ok := dst[key]
		if !ok {
			dst[key] = srcVal
			continue
		}

		switch s := srcVal.(type) {
		case map[string]any:
			if d, ok := dstVal.(map[string]any); ok {
				mergeTables(d, s)
				continue
			}
		case []any:
			if d, ok := dstVal.([]any); ok {
				dst[key] = append(d, s...)
				continue
			}
		}
		dst[key] = srcVal
	}
}

// resolveConditions evaluates sub-tables keyed by an expression, e.g.
// [build.foo.'target_os == "windows"'], merging the ones that evaluate to
// true into their parent. Nested tables are resolved first.
func resolveConditions(table map[string]any, where string, env ConfigEnv) (map[string]any, error) {
	base := make(map[string]any)
	conditional := make(map[string]map[string]any)

	for key, val := range table {
		subMap, ok := val.(map[string]any)
		if !ok {
			base[key] = val
			continue
		}
		if _, err := expr.Compile(key, expr.Env(env), expr.AsBool()); err == nil {
			conditional[key] = subMap
			continue
		}

		resolved, err := resolveConditions(subMap, where+"."+key, env)
		if err != nil {
			return nil, err
		}
		base[key] = resolved
	}

	// deterministic merge order
	expressions := make([]string, 0, len(conditional))
	for expression := range conditional {
		expressions = append(expressions, expression)
	}
	slices.Sort(expressions)

	for _, expression := range expressions {
		program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("failed to compile expression for [%s.%q]: %w", where, expression, err)
		}

		result, err := expr.Run(program, env)
		if err != nil {
			return nil, fmt.Errorf("failed to run expression for [%s.%q]: %w", where, expression, err)
		}
		if matched, ok := result.(bool); !ok || !matched {
			continue
		}

		condSection, err := resolveConditions(conditional[expression], fmt.Sprintf("%s.%q", where, expression), env)
		if err != nil {
			return nil, err
		}
		mergeTables(base, condSection)
	}

	return base, nil
}

func mustMarshal(v any) string {
	b, err := toml.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

var exprRegex = regexp.MustCompile(`\{\{(.+?)\}\}`)

// evaluateString finds and evaluates all {{...}} expressions in a string
func evaluateString(s string, env ConfigEnv) (string, error) {
	matches := exprRegex.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	var builder strings.Builder
	lastIndex := 0

	for _, matchIndexes := range matches {
		fullMatchStart := matchIndexes[0]
		fullMatchEnd := matchIndexes[1]
		expressionStart := matchIndexes[2]
		expressionEnd := matchIndexes[3]

		builder.WriteString(s[lastIndex:fullMatchStart])

		expression := strings.TrimSpace(s[expressionStart:expressionEnd])
		program, err := expr.Compile(expression, expr.Env(env))
		if err != nil {
			return "", fmt.Errorf("failed to compile expression %q: %w", expression, err)
		}

		result, err := expr.Run(program, env)
		if err != nil {
			return "", fmt.Errorf("failed to run expression %q: %w", expression, err)
		}

		fmt.Fprintf(&builder, "%v", result)
		lastIndex = fullMatchEnd
	}

	builder.WriteString(s[lastIndex:])

	return builder.String(), nil
}

// processExpressions recursively walks the parsed TOML data and evaluates expressions in strings
func processExpressions(data any, env ConfigEnv) (any, error) {
	switch v := data.(type) {
	case map[string]any:
		for key, val := range v {
			processedVal, err := processExpressions(val, env)
			if err != nil {
				return nil, err
			}
			v[key] = processedVal
		}
		return v, nil
	case []any:
		for i, item := range v {
			processedItem, err := processExpressions(item, env)
			if err != nil {
				return nil, err
			}
			v[i] = processedItem
		}
		return v, nil
	case string:
		return evaluateString(v, env)
	default:
		return data, nil
	}
}

// processPatches only evaluates patch values that are a single {{...}}
// expression as a whole.
func processPatches(patches map[string]any, env ConfigEnv) error {
	for file, val := range patches {
		text, ok := val.(string)
		if !ok {
			continue
		}
		m := exprRegex.FindStringIndex(text)
		if m == nil || m[0] != 0 || m[1] != len(text) {
			continue
		}
		evaluated, err := evaluateString(text, env)
		if err != nil {
			return err
		}
		patches[file] = evaluated
	}
	return nil
}

func ParseConfig(rdr io.Reader, env ConfigEnv) (*Config, error) {
	var rawConfig map[string]any
	dec := toml.NewDecoder(rdr)
	if err := dec.Decode(&rawConfig); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			return nil, errors.New(derr.String())
		}
		return nil, err
	}

	rawBuilds, ok := rawConfig["build"]
	if !ok {
		return nil, ErrNoBuilds
	}
	buildsMap, ok := rawBuilds.(map[string]any)
	if !ok {
		return nil, errors.New("invalid [build] section format: expected a table")
	}

	cfg := &Config{Builds: make(map[string]*BuildSection, len(buildsMap))}
	for name, raw := range buildsMap {
		table, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("invalid [build.%s] section format: expected a table", name)
		}

		resolved, err := resolveConditions(table, "build."+name, env)
		if err != nil {
			return nil, err
		}
		// patch texts are code and may contain "{{" themselves
		patches, _ := resolved["patch"].(map[string]any)
		delete(resolved, "patch")

		// conditions first, so expressions in disabled sections never run
		processed, err := processExpressions(resolved, env)
		if err != nil {
			return nil, fmt.Errorf("error processing expressions in [build.%s]: %w", name, err)
		}
		if patches != nil {
			if err := processPatches(patches, env); err != nil {
				return nil, fmt.Errorf("error processing expressions in [build.%s.patch]: %w", name, err)
			}
			processed.(map[string]any)["patch"] = patches
		}

		section := new(BuildSection)
		if err := toml.Unmarshal([]byte(mustMarshal(processed)), section); err != nil {
			return nil, fmt.Errorf("failed to parse [build.%s] section: %w", name, err)
		}
		if err := section.validate(); err != nil {
			return nil, fmt.Errorf("build %q: %w", name, err)
		}
		cfg.Builds[name] = section
	}
	if len(cfg.Builds) == 0 {
		return nil, ErrNoBuilds
	}

	return cfg, nil
}

// ParseConfigFromFile parses and validates a config file from a filepath
func ParseConfigFromFile(path string, env ConfigEnv) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseConfig(bufio.NewReader(f), env)
}

//
// expr-lang helpers
//

// RunCheck evaluates the section's check expression, which has to be true
// for the build to run.
func (s BuildSection) RunCheck(name string, env ConfigEnv) error {
	if s.Check == "" {
		return nil
	}

	program, err := expr.Compile(s.Check, expr.Env(env))
	if err != nil {
		return fmt.Errorf("failed to compile check for build %q: %w", name, err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return fmt.Errorf("failed to run check for build %q: %w", name, err)
	}

	if result, ok := result.(bool); !ok || !result {
		return fmt.Errorf("check for build %q returned false\n%s", name, s.Check)
	}

	return nil
}

type ConfigEnv struct {
	TargetOS   string            `expr:"target_os"`
	TargetArch string            `expr:"target_arch"`
	Environ    map[string]string `expr:"environ"`
	basedir    string
}

func NewConfigEnv(basedir string) ConfigEnv {
	environ := make(map[string]string)
	for _, e := range os.Environ() {
		if i := strings.Index(e, "="); i >= 0 {
			environ[e[:i]] = e[i+1:]
		}
	}

	return ConfigEnv{
		TargetOS:   runtime.GOOS,
		TargetArch: runtime.GOARCH,
		Environ:    environ,
		basedir:    basedir,
	}
}

// ReadFile reads a file next to rbuild.toml, e.g. to load a patch:
//
//	"meson.build" = '{{ ReadFile("patches/meson.build.dmp") }}'
func (env ConfigEnv) ReadFile(path string) (string, error) {
	if !filepath.IsLocal(filepath.FromSlash(path)) {
		return "", fmt.Errorf("path %q is outside of the project directory %q", path, env.basedir)
	}

	data, err := os.ReadFile(filepath.Join(env.basedir, filepath.FromSlash(path)))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Getenv returns an environment variable or fallback when it is unset.
func (env ConfigEnv) Getenv(key, fallback string) string {
	if v, ok := env.Environ[key]; ok {
		return v
	}
	return fallback
}
