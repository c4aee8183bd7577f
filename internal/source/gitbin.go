package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/qobs-build/rbuild/internal/build"
	"golang.org/x/mod/semver"
)

type GitStatus int

const (
	GitOK GitStatus = iota
	GitNotFound
	GitOutdated
	GitUnknown
)

func (s GitStatus) String() string {
	switch s {
	case GitOK:
		return "ok"
	case GitNotFound:
		return "not found"
	case GitOutdated:
		return "outdated"
	}
	return "unknown"
}

// minGitVersion is the oldest git the commands used here are known to work
// with. Older versions only produce a warning.
const minGitVersion = "v2.0.0"

// GitTool is the result of probing the git executable. Probe once and share
// the value between sources.
type GitTool struct {
	Path    string
	Version string // e.g. "2.39.2", empty unless parsed
	Status  GitStatus
	Detail  string
}

// Err reports whether the tool is unusable.
func (t *GitTool) Err() error {
	switch t.Status {
	case GitOK, GitOutdated:
		return nil
	case GitNotFound:
		return fmt.Errorf("git executable %q not found", t.Path)
	}
	return fmt.Errorf("unusable git executable %q: %s", t.Path, t.Detail)
}

// gitBinary honours $GIT the way compilers honour $CC.
func gitBinary() string {
	if git := os.Getenv("GIT"); git != "" {
		return git
	}
	return "git"
}

// DetectGit runs `git --version` and classifies the result.
func DetectGit(ctx context.Context, r build.Runner) *GitTool {
	tool := &GitTool{Path: gitBinary()}

	stdout, stderr, err := r.Run(ctx, build.Command{Name: tool.Path, Args: []string{"--version"}})
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			tool.Status = GitNotFound
			return tool
		}
		tool.Status = GitUnknown
		tool.Detail = strings.TrimSpace(err.Error() + " " + stderr)
		return tool
	}

	line, _, _ := strings.Cut(stdout, "\n")
	version, ok := parseGitVersion(line)
	if !ok {
		tool.Status = GitUnknown
		tool.Detail = "truncated git version output"
		if line != "" {
			tool.Detail = fmt.Sprintf("unrecognized git version output %q", line)
		}
		return tool
	}

	tool.Version = strings.TrimPrefix(version, "v")
	if semver.Compare(version, minGitVersion) < 0 {
		tool.Status = GitOutdated
	}
	return tool
}

// parseGitVersion turns "git version 2.39.3 (Apple Git-145)" or
// "git version 2.45.1.windows.1" into a semver string like "v2.39.3".
func parseGitVersion(line string) (string, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), "git version ")
	if !ok {
		return "", false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", false
	}

	parts := strings.Split(fields[0], ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	version := "v" + strings.Join(parts, ".")
	if !semver.IsValid(version) {
		return "", false
	}
	return semver.Canonical(version), true
}
