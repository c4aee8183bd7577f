package source

import "strings"

var repoShortcuts = map[string]string{
	"gh:": "https://github.com/",
	"gl:": "https://gitlab.com/",
	"bb:": "https://bitbucket.org/",
	"sr:": "https://sr.ht/",
	"cb:": "https://codeberg.org/",
}

const gitPrefix = "git:"

// GitURL is a repository reference split into its parts.
type GitURL struct {
	URL      string
	Branch   string
	Revision string
}

// ParseGitURL expands shortcuts and splits off an optional branch and
// revision:
//
//	gh:cisco/libsrtp
//	gh:cisco/libsrtp@main#v2.5.0
//	git:https://example.com/repo.git#12345abc
//
// Plain URLs and local paths are returned unchanged apart from the
// branch/revision suffixes.
func ParseGitURL(raw string) (res GitURL) {
	raw = strings.TrimPrefix(raw, gitPrefix)

	base, revision, _ := strings.Cut(raw, "#")
	res.Revision = revision

	shortcut := false
	for prefix, url := range repoShortcuts {
		if strings.HasPrefix(base, prefix) {
			base = url + base[len(prefix):]
			shortcut = true
			break
		}
	}

	// "@" also shows up in ssh URLs (git@host:repo), so only look after
	// the last path separator
	if i := strings.LastIndex(base, "/"); i >= 0 {
		if at := strings.Index(base[i:], "@"); at >= 0 {
			res.Branch = base[i+at+1:]
			base = base[:i+at]
		}
	}
	res.URL = base

	if shortcut && !strings.HasSuffix(res.URL, ".git") {
		res.URL += ".git"
	}
	return
}

// projectName is the last path element of a repository URL.
func projectName(url string) string {
	url = strings.TrimRight(url, "/")
	if i := strings.LastIndexAny(url, "/:"); i >= 0 {
		url = url[i+1:]
	}
	if url == "" {
		return "__unknown"
	}
	return url
}
