package meson

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/qobs-build/rbuild/internal/msg"
)

// PromoteAll promotes whatever meson asks for.
func PromoteAll() PromoteFunc {
	return func(arg string) []string {
		if file := trimQuotes(arg); file != "" {
			return []string{file}
		}
		return nil
	}
}

// MatchPromote promotes the suggested wrap file when it matches one of the
// glob patterns, e.g. "subprojects/*/subprojects/zlib.wrap" or "**/*.wrap".
func MatchPromote(patterns ...string) PromoteFunc {
	return func(arg string) []string {
		file := trimQuotes(arg)
		for _, pattern := range patterns {
			ok, err := doublestar.Match(pattern, file)
			if err != nil {
				msg.Warn("invalid promote pattern %q: %v", pattern, err)
				continue
			}
			if ok {
				return []string{file}
			}
		}
		return nil
	}
}

func trimQuotes(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"'`+"`")
}
