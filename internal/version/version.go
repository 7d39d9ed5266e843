// Package version exposes build metadata stamped via -ldflags at release time.
package version

//nolint:revive // Overwritten by the release build.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String renders the build identity for startup logs.
func String() string {
	return Version + " (" + Commit + ", built " + BuildDate + ")"
}
