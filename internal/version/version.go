package version

import "fmt"

//nolint:gochecknoglobals // Overridden via -ldflags at build time.
var (
	// Version is the semantic version of the packager binary.
	Version = "0.0.0-dev"
	// Commit is the short git SHA the binary was built from.
	Commit = "none"
	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// Info is the structured form of the build metadata.
type Info struct {
	Version   string `yaml:"version"`
	Commit    string `yaml:"commit"`
	BuildTime string `yaml:"build_time"`
}

// Get returns the current build metadata.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
	}
}

// String renders the metadata on one line.
func (i Info) String() string {
	return fmt.Sprintf("meatloaf-packager %s (commit %s, built %s)", i.Version, i.Commit, i.BuildTime)
}
