// Package patch applies diff-match-patch patches to a build's source tree
// before it is configured.
package patch

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/qobs-build/rbuild/internal/build"
	"github.com/qobs-build/rbuild/internal/msg"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Step patches files relative to the source directory. Files maps a path
// to the patch text in diff-match-patch format.
type Step struct {
	files map[string]string
}

func New(files map[string]string) *Step {
	s := &Step{files: make(map[string]string, len(files))}
	for file, text := range files {
		s.files[file] = text
	}
	return s
}

func (s *Step) Name() string { return "patch" }

func (s *Step) Hash(h *build.Hasher) { h.WriteStringMap(s.files) }

func (s *Step) Execute(_ context.Context, b *build.Build, _ *build.Result) error {
	root := b.Source().LocalDir()

	files := make([]string, 0, len(s.files))
	for file := range s.files {
		files = append(files, file)
	}
	sort.Strings(files)

	dmp := diffmatchpatch.New()
	for _, file := range files {
		if err := apply(dmp, root, file, s.files[file]); err != nil {
			return err
		}
	}
	return nil
}

func apply(dmp *diffmatchpatch.DiffMatchPatch, root, file, text string) error {
	if !filepath.IsLocal(filepath.FromSlash(file)) {
		return build.NewStepError("patch target %q is outside of the source directory", file)
	}
	path := filepath.Join(root, filepath.FromSlash(file))

	patches, err := dmp.PatchFromText(text)
	if err != nil {
		return &build.StepError{Detail: fmt.Sprintf("invalid patch for %s", file), Err: err}
	}

	fi, err := os.Stat(path)
	if err != nil {
		return build.IOStepError(fmt.Sprintf("failed to read %s", file), err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return build.IOStepError(fmt.Sprintf("failed to read %s", file), err)
	}
	orig := string(data)

	if len(patches) == 0 {
		return nil
	}
	// checked first, fuzzy matching would happily re-apply a patch
	if alreadyApplied(text, orig) {
		msg.Step("Skipping", "%s, already patched", file)
		return nil
	}

	patched, results := dmp.PatchApply(patches, orig)
	applied := 0
	for _, ok := range results {
		if ok {
			applied++
		}
	}
	if applied == 0 {
		return build.NewStepError("patch for %s does not apply", file)
	}
	if applied < len(results) {
		msg.Warn("only %d of %d hunks applied to %s", applied, len(results), file)
	}

	msg.Step("Patching", "%s", file)
	if err := os.WriteFile(path, []byte(patched), fi.Mode().Perm()); err != nil {
		return build.IOStepError(fmt.Sprintf("failed to write %s", file), err)
	}
	return nil
}

// alreadyApplied reports whether every hunk's result is in text and its
// original is not, which is the case when a working directory is reused.
func alreadyApplied(patchText, text string) bool {
	hs := hunks(patchText)
	if len(hs) == 0 {
		return false
	}
	for _, h := range hs {
		if strings.Contains(text, h.before) || !strings.Contains(text, h.after) {
			return false
		}
	}
	return true
}

type hunk struct {
	before, after string
}

// hunks splits patch text into the text each hunk expects and produces.
// Lines are URL-encoded the way PatchFromText reads them.
func hunks(patchText string) []hunk {
	var (
		res           []hunk
		before, after strings.Builder
		open          bool
	)
	flush := func() {
		if open {
			res = append(res, hunk{before: before.String(), after: after.String()})
		}
		before.Reset()
		after.Reset()
	}

	for _, line := range strings.Split(patchText, "\n") {
		if strings.HasPrefix(line, "@@") {
			flush()
			open = true
			continue
		}
		if line == "" || !open {
			continue
		}
		decoded, err := url.QueryUnescape(strings.ReplaceAll(line[1:], "+", "%2b"))
		if err != nil {
			return nil
		}
		switch line[0] {
		case ' ':
			before.WriteString(decoded)
			after.WriteString(decoded)
		case '-':
			before.WriteString(decoded)
		case '+':
			after.WriteString(decoded)
		}
	}
	flush()
	return res
}
