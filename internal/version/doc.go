// Package version exposes the packager's own build metadata.
//
// Version, Commit and BuildTime are injected with -ldflags "-X" at release time.
// This is unrelated to the firmware version the packager reads from version.h.
package version
