package patch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/qobs-build/rbuild/internal/build"
	"github.com/qobs-build/rbuild/internal/patch"
	"github.com/qobs-build/rbuild/internal/source"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	original = "#include <stdio.h>\n\nint main(void) {\n\treturn 1;\n}\n"
	patched  = "#include <stdio.h>\n\nint main(void) {\n\treturn 0;\n}\n"
)

func makePatch(from, to string) string {
	dmp := diffmatchpatch.New()
	return dmp.PatchToText(dmp.PatchMake(from, to))
}

func run(t *testing.T, dir string, files map[string]string) error {
	t.Helper()
	src, err := source.NewDirectory(dir)
	require.NoError(t, err)

	b, err := build.New(build.Config{
		Name:      "patched",
		Source:    src,
		Steps:     []build.Step{patch.New(files)},
		BuildPath: t.TempDir(),
		Env:       build.MapEnv(nil),
	})
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Execute(context.Background())
	return err
}

func TestPatchApplies(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	file := filepath.Join(dir, "src", "main.c")
	require.NoError(t, os.WriteFile(file, []byte(original), 0o644))

	require.NoError(t, run(t, dir, map[string]string{"src/main.c": makePatch(original, patched)}))

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, patched, string(data))
}

func TestPatchAlreadyApplied(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "main.c")
	require.NoError(t, os.WriteFile(file, []byte(patched), 0o644))

	require.NoError(t, run(t, dir, map[string]string{"main.c": makePatch(original, patched)}))

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, patched, string(data))
}

func TestPatchDoesNotApply(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.c"), []byte("x\n"), 0o644))

	err := run(t, dir, map[string]string{"main.c": makePatch(original, patched)})
	var buildErr *build.Error
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, "patch", buildErr.Step)
	assert.Equal(t, "patch for main.c does not apply", buildErr.Err.Detail)
}

func TestPatchRejectsEscapes(t *testing.T) {
	dir := t.TempDir()

	for _, file := range []string{"../outside.c", "/etc/passwd"} {
		err := run(t, dir, map[string]string{file: makePatch(original, patched)})
		var buildErr *build.Error
		require.ErrorAs(t, err, &buildErr, file)
		assert.Contains(t, buildErr.Err.Detail, "outside of the source directory")
	}
}

func TestPatchMissingFile(t *testing.T) {
	err := run(t, t.TempDir(), map[string]string{"missing.c": makePatch(original, patched)})
	var buildErr *build.Error
	require.ErrorAs(t, err, &buildErr)
	assert.Contains(t, buildErr.Err.Stderr, "IOError: ")
}

func TestPatchHash(t *testing.T) {
	sum := func(s *patch.Step) uint64 {
		h := build.NewHasher()
		s.Hash(h)
		return h.Sum64()
	}
	a := patch.New(map[string]string{"a.c": "x"})
	assert.Equal(t, sum(a), sum(patch.New(map[string]string{"a.c": "x"})))
	assert.NotEqual(t, sum(a), sum(patch.New(map[string]string{"a.c": "y"})))
}

func TestPatchDeletionIsNotMistakenForApplied(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "main.c")
	withDebug := "int main(void) {\n\tdebug();\n\treturn 0;\n}\n"
	without := "int main(void) {\n\treturn 0;\n}\n"
	require.NoError(t, os.WriteFile(file, []byte(withDebug), 0o644))

	require.NoError(t, run(t, dir, map[string]string{"main.c": makePatch(withDebug, without)}))
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, without, string(data))

	// second run over the patched tree is a no-op
	require.NoError(t, run(t, dir, map[string]string{"main.c": makePatch(withDebug, without)}))
	data, err = os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, without, string(data))
}
