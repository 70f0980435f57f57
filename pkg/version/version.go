// Package version holds the build-time version string, overridden via
// -ldflags at build time.
package version

// Version is set via -ldflags "-X github.com/flowgate/gateway/pkg/version.Version=...".
// "dev" is the unbuilt/local-run default.
var Version = "dev"
