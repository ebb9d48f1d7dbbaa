// Package packager assembles the firmware release archive after a PlatformIO build.
//
// It checks that the bootloader, partition table, application and filesystem images
// exist, reads version metadata and the active environment, identifies the chip and
// flash size from the application image, and writes release.json plus
// <prefix>.<environment>.<YYYYMMDD.HH>.zip into the output directory.
//
// Missing build artifacts skip packaging without failing the build. Any later
// failure aborts the run, leaves no partial archive and is returned to the caller.
package packager
