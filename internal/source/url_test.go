package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseGitURL(t *testing.T) {
	tests := []struct {
		in   string
		want GitURL
	}{
		{"gh:cisco/libsrtp", GitURL{URL: "https://github.com/cisco/libsrtp.git"}},
		{"gh:cisco/libsrtp@main", GitURL{URL: "https://github.com/cisco/libsrtp.git", Branch: "main"}},
		{"gh:cisco/libsrtp@main#v2.5.0", GitURL{URL: "https://github.com/cisco/libsrtp.git", Branch: "main", Revision: "v2.5.0"}},
		{"cb:user/repo#abc123", GitURL{URL: "https://codeberg.org/user/repo.git", Revision: "abc123"}},
		{"git:https://example.com/repo.git#12345abc", GitURL{URL: "https://example.com/repo.git", Revision: "12345abc"}},
		{"https://example.com/repo.git", GitURL{URL: "https://example.com/repo.git"}},
		{"git@github.com:cisco/libsrtp.git", GitURL{URL: "git@github.com:cisco/libsrtp.git"}},
		{"/srv/git/libfoo", GitURL{URL: "/srv/git/libfoo"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseGitURL(tt.in))
		})
	}
}

func TestProjectName(t *testing.T) {
	assert.Equal(t, "libsrtp.git", projectName("https://github.com/cisco/libsrtp.git"))
	assert.Equal(t, "libfoo", projectName("/srv/git/libfoo/"))
	assert.Equal(t, "repo.git", projectName("git@host:repo.git"))
	assert.Equal(t, "__unknown", projectName(""))
}

func TestParseGitVersion(t *testing.T) {
	tests := []struct {
		line string
		want string
		ok   bool
	}{
		{"git version 2.39.2", "v2.39.2", true},
		{"git version 2.39.3 (Apple Git-145)", "v2.39.3", true},
		{"git version 2.45.1.windows.1", "v2.45.1", true},
		{"git version 2.45", "v2.45.0", true},
		{"git version 1.9.5\n", "v1.9.5", true},
		{"git version", "", false},
		{"hg version 6.1", "", false},
		{"git version banana", "", false},
	}
	for _, tt := range tests {
		got, ok := parseGitVersion(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.Equal(t, tt.want, got, tt.line)
	}
}
