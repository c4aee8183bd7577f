package msg

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old, oldNoColor := Output, color.NoColor
	Output, color.NoColor = &buf, true
	t.Cleanup(func() { Output, color.NoColor = old, oldNoColor })
	return &buf
}

func TestTags(t *testing.T) {
	buf := capture(t)

	Info("built %s", "libfoo")
	Warn("skipping %d entries", 2)
	Error("boom")

	assert.Equal(t, "info: built libfoo\nwarn: skipping 2 entries\nerror: boom\n", buf.String())
}

func TestFatalExits(t *testing.T) {
	buf := capture(t)
	code := -1
	exit = func(c int) { code = c }
	t.Cleanup(func() { exit = os.Exit })

	Fatal("no manifest in %s", "/tmp")

	assert.Equal(t, 1, code)
	assert.Equal(t, "fatal: no manifest in /tmp\n", buf.String())
}

func TestStep(t *testing.T) {
	buf := capture(t)
	Step("Cloning", "%s", "repo.git")
	assert.Equal(t, "     Cloning repo.git\n", buf.String())
}

func TestIndentWriter(t *testing.T) {
	var out bytes.Buffer
	w := &IndentWriter{Indent: "  ", W: &out}

	n, err := w.Write([]byte("first\nsec"))
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	_, err = w.Write([]byte("ond\nthird\n"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	assert.Equal(t, []string{"  first", "  second", "  third"}, lines)
}
