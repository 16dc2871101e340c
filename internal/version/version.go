// Package version carries the build version, overridden at link time with
// -ldflags "-X codex-account-manager/internal/version.Version=...".
package version

var Version = "dev"
