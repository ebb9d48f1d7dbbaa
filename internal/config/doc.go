// Package config holds the packager settings and reads the PlatformIO project file.
//
// Settings are an explicit Config value: build and output directories, template and
// header locations, and the rebuild command. They can be persisted as YAML and are
// overridden by command line flags. The project file (platformio.ini) names the
// active build environment and its board.
package config
