// Package image decodes the header of an ESP32 application image.
//
// Only three fields are read: the magic byte and SPI size byte of the 8-byte common
// header, and the chip ID byte of the 16-byte extended header that follows it.
// See the ESP-IDF "App Image Format" documentation for the full layout.
package image
