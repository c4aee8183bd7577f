package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v6"
	"github.com/qobs-build/rbuild/internal/build"
	"github.com/qobs-build/rbuild/internal/msg"
)

var ErrNotCheckedOut = errors.New("git source has not been set up")

// Git is a remote repository checked out with the git CLI. The checkout
// directory is kept between runs so later builds only need a fetch.
type Git struct {
	URL      string
	Revision string // commit, tag or branch to reset to; "" for HEAD
	Branch   string // branch to clone

	// CheckoutDir is where the checkout directory is created, "" for the
	// system temporary directory.
	CheckoutDir string

	Submodules           bool
	SkipRevisionCheckout bool

	// Tool is probed on first Setup when nil.
	Tool   *GitTool
	Runner build.Runner

	checkout *build.TempPath
}

// NewGit returns a git source for a URL accepted by ParseGitURL.
func NewGit(rawURL string) *Git {
	u := ParseGitURL(rawURL)
	return &Git{URL: u.URL, Branch: u.Branch, Revision: u.Revision}
}

func (g *Git) Name() string { return "remote git repository" }

func (g *Git) Hash(h *build.Hasher) {
	h.WriteString(g.URL)
	h.WriteOptional(g.Revision, g.Revision != "")
	h.WriteOptional(g.Branch, g.Branch != "")
}

// DirName is the name of the checkout directory inside CheckoutDir.
func (g *Git) DirName() string {
	h := build.NewHasher()
	g.Hash(h)
	return "git_" + projectName(g.URL) + "_" + build.Token(h.Sum64())
}

// CheckoutPath is where Setup checks the repository out.
func (g *Git) CheckoutPath() string {
	base := g.CheckoutDir
	if base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, g.DirName())
}

func (g *Git) runner() build.Runner {
	if g.Runner == nil {
		return build.ExecRunner{}
	}
	return g.Runner
}

func (g *Git) command(dir string, args ...string) build.Command {
	return build.Command{Name: g.Tool.Path, Args: args, Dir: dir}
}

func (g *Git) Setup(ctx context.Context) error {
	if g.checkout != nil {
		return build.NewStepError("the source has already been initialized")
	}

	r := g.runner()
	if g.Tool == nil {
		g.Tool = DetectGit(ctx, r)
	}
	if err := g.Tool.Err(); err != nil {
		return &build.StepError{Detail: "git error", Err: err}
	}
	if g.Tool.Status == GitOutdated {
		msg.Warn("git %s is older than %s, expect problems", g.Tool.Version, strings.TrimPrefix(minGitVersion, "v"))
	}

	checkout, err := build.CreateTempPath(g.DirName(), g.CheckoutDir)
	if err != nil {
		return build.IOStepError("failed to create the git checkout directory", err)
	}
	// checkouts are reused by later runs
	checkout.Release()
	g.checkout = checkout
	dir := checkout.Path()

	fetched, err := g.fetch(ctx, r, dir)
	if err != nil {
		return err
	}
	if !fetched {
		msg.Step("Cloning", "%s", g.URL)
		args := []string{"clone"}
		if g.Branch != "" {
			args = append(args, "--branch", g.Branch)
		}
		args = append(args, g.URL, dir)
		if _, _, err := build.RunCommand(ctx, r, g.command("", args...), "git clone failed"); err != nil {
			return err
		}
	}

	if !g.SkipRevisionCheckout {
		rev := g.revision()
		msg.Step("Checkout", "%s at %s", projectName(g.URL), rev)
		if _, _, err := build.RunCommand(ctx, r, g.command(dir, "reset", "--hard", rev), "git revision checkout failed"); err != nil {
			return err
		}
	}

	if g.Submodules {
		msg.Step("Updating", "submodules of %s", projectName(g.URL))
		cmd := g.command(dir, "submodule", "update", "--init", "--recursive")
		if _, _, err := build.RunCommand(ctx, r, cmd, "git submodule update failed"); err != nil {
			return err
		}
	}
	return nil
}

// fetch updates an existing checkout. It reports false when there is nothing
// to fetch into and a fresh clone is needed.
func (g *Git) fetch(ctx context.Context, r build.Runner, dir string) (bool, error) {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		return false, nil
	}

	msg.Step("Fetching", "%s", g.URL)
	_, stderr, err := build.RunCommand(ctx, r, g.command(dir, "fetch"), "git fetch failed")
	if err == nil {
		return true, nil
	}
	if !strings.Contains(stderr, "not a git repository") {
		return false, err
	}

	// broken checkout, start over
	if err := os.RemoveAll(dir); err != nil {
		return false, build.IOStepError("failed to remove the broken git checkout", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, build.IOStepError("failed to recreate the git checkout directory", err)
	}
	return false, nil
}

func (g *Git) revision() string {
	switch {
	case g.Revision != "":
		return g.Revision
	case g.Branch != "":
		return "origin/" + g.Branch
	}
	return "HEAD"
}

// LocalDir is the checkout directory, "" before Setup.
func (g *Git) LocalDir() string {
	if g.checkout == nil {
		return ""
	}
	return g.checkout.Path()
}

// Cleanup forgets the checkout without removing it.
func (g *Git) Cleanup() {
	if g.checkout == nil {
		return
	}
	g.checkout.Release()
	g.checkout.Close()
	g.checkout = nil
}

// Head returns the commit the checkout is at.
func (g *Git) Head() (string, error) {
	if g.checkout == nil {
		return "", ErrNotCheckedOut
	}

	repo, err := git.PlainOpen(g.checkout.Path())
	if err != nil {
		return "", err
	}
	ref, err := repo.Head()
	if err != nil {
		return "", err
	}
	return ref.Hash().String(), nil
}
