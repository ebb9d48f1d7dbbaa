// Package metadata collects the version information written into a release manifest.
//
// The firmware's version.h provides FN_VERSION_FULL and FN_VERSION_DATE as
// preprocessor defines; git provides the latest commit message and short hash.
// Git failures never fail a build: they fall back to FN_VERSION_FULL and NOGIT.
package metadata
