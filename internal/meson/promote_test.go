package meson_test

import (
	"testing"

	"github.com/qobs-build/rbuild/internal/meson"
	"github.com/stretchr/testify/assert"
)

func TestPromoteAll(t *testing.T) {
	promote := meson.PromoteAll()
	assert.Equal(t, []string{"subprojects/glib/subprojects/zlib.wrap"}, promote(" `subprojects/glib/subprojects/zlib.wrap` "))
	assert.Empty(t, promote("  "))
}

func TestMatchPromote(t *testing.T) {
	promote := meson.MatchPromote("subprojects/*/subprojects/zlib.wrap", "**/libffi.wrap")

	assert.Equal(t, []string{"subprojects/glib-2.64.2/subprojects/zlib.wrap"}, promote("subprojects/glib-2.64.2/subprojects/zlib.wrap"))
	assert.Equal(t, []string{"a/b/c/libffi.wrap"}, promote("'a/b/c/libffi.wrap'"))
	assert.Empty(t, promote("subprojects/glib/subprojects/pcre.wrap"))
}

func TestMatchPromoteBadPattern(t *testing.T) {
	promote := meson.MatchPromote("[", "*.wrap")
	assert.Equal(t, []string{"zlib.wrap"}, promote("zlib.wrap"))
}
