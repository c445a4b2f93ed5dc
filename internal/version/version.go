// Package version reports the qachat release and build metadata.
//
// Commit is set with -ldflags "-X github.com/bhandras/qachat/internal/version.Commit=...".
// When it is empty the VCS revision embedded by the Go toolchain is used.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Commit is the git revision of this build.
var Commit string

const (
	major uint = 0
	minor uint = 4
	patch uint = 0

	// preRelease may only use [0-9A-Za-z-].
	preRelease = ""
)

const preReleaseAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-"

// Version returns the semantic version, e.g. "0.4.0" or "0.4.0-rc1".
func Version() string {
	v := fmt.Sprintf("%d.%d.%d", major, minor, patch)
	if pre := sanitize(preRelease); pre != "" {
		v += "-" + pre
	}
	return v
}

// Full returns Version plus the commit (with a "-dirty" suffix for modified
// trees) when one is known.
func Full() string {
	commit, dirty := revision()
	if commit == "" {
		return Version()
	}
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (commit %s)", Version(), commit)
}

func revision() (string, bool) {
	if c := strings.TrimSpace(Commit); c != "" {
		return c, false
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", false
	}
	var commit string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			commit = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	return commit, dirty
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(preReleaseAlphabet, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
