package meson

import (
	"fmt"
	"strings"
)

const (
	installMarker = "Installing "
	symlinkMarker = "Installing symlink pointing to "
)

// ManifestError is a malformed line in the output of `meson install`.
type ManifestError struct {
	Line   string
	Reason string
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("meson line %q %s", e.Line, e.Reason)
}

// ParseInstallManifest maps installed source files to their target
// directories from the "Installing <src> to <dst>" lines meson prints.
// Later lines win for duplicate sources. Symlink lines are skipped, the
// files they point at are reported on their own.
func ParseInstallManifest(stdout string) (map[string]string, error) {
	installed := make(map[string]string)
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, symlinkMarker) {
			continue
		}
		rest, ok := strings.CutPrefix(line, installMarker)
		if !ok {
			continue
		}

		parts := strings.Split(rest, " to ")
		if len(parts) > 2 {
			return nil, &ManifestError{Line: line, Reason: `contains more than one " to " part`}
		}
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, &ManifestError{Line: line, Reason: "misses the source or the target"}
		}
		installed[parts[0]] = parts[1]
	}
	return installed, nil
}
