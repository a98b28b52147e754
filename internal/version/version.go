// Package version reports the build identity of the cascadec binary:
// the release tag, git commit, and build timestamp baked in via
// -ldflags at release time.
package version

import "time"

var (
	// Version is the release version (set via -ldflags).
	Version = ""
	// Commit is the git commit hash (set via -ldflags).
	Commit = ""
	// BuildTime is the build timestamp (set via -ldflags).
	BuildTime = ""
)

// Info is the resolved build identity, safe to print or serialize even
// when the binary was built without -ldflags (a `go run` during
// development, say).
type Info struct {
	Version   string
	Commit    string
	BuildTime string
}

// Resolve fills in Info from the package vars, falling back to the
// build timestamp or, failing that, the current time so Version is
// never empty.
func Resolve() Info {
	resolved := Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
	}

	if resolved.Version == "" {
		if resolved.BuildTime != "" {
			resolved.Version = resolved.BuildTime
		} else {
			resolved.Version = time.Now().UTC().Format("20060102T150405Z")
		}
	}

	return resolved
}

// String renders "version (commit)", or just "version" when no commit
// was recorded.
func String() string {
	info := Resolve()
	if info.Commit == "" {
		return info.Version
	}
	return info.Version + " (" + shortCommit(info.Commit) + ")"
}

func shortCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}
