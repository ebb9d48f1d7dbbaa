// Package inspector reports on firmware images and release archives.
//
// InspectImage is the diagnostic front of the image decoder: it logs the raw header
// bytes before deciding whether the image is usable. InspectArchive lists the
// entries of a produced archive and the digest of its embedded manifest.
package inspector
