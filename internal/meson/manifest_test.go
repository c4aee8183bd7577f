package meson_test

import (
	"testing"

	"github.com/qobs-build/rbuild/internal/meson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInstallManifest(t *testing.T) {
	stdout := "ninja: Entering directory `/tmp/build'\n" +
		"ninja: no work to do.\n" +
		"Installing libfoo.a to /out/lib\n" +
		"Installing /src/include/foo.h to /out/include\r\n" +
		"Installing symlink pointing to libfoo.so.1.2.3 to /out/lib/libfoo.so.1\n" +
		"Installing libfoo.a to /out/lib64\n"

	installed, err := meson.ParseInstallManifest(stdout)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"libfoo.a":           "/out/lib64",
		"/src/include/foo.h": "/out/include",
	}, installed)
}

func TestParseInstallManifestErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"two separators", "Installing a to b to c"},
		{"missing target", "Installing libfoo.a to "},
		{"missing source", "Installing  to /out/lib"},
		{"no separator", "Installing libfoo.a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := meson.ParseInstallManifest("Installation done\n" + tt.line + "\n")

			var manifestErr *meson.ManifestError
			require.ErrorAs(t, err, &manifestErr)
			assert.Equal(t, tt.line, manifestErr.Line)
			assert.Contains(t, err.Error(), tt.line)
		})
	}
}

func TestParseInstallManifestEmpty(t *testing.T) {
	installed, err := meson.ParseInstallManifest("")
	require.NoError(t, err)
	assert.Empty(t, installed)
}
