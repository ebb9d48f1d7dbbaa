package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the explicit input of a packaging run.
type Config struct {
	// BuildDir is the PlatformIO build output directory ($BUILD_DIR).
	BuildDir string `yaml:"build_dir"`
	// OutputDir receives release.json, filesystem.bin and the archive.
	OutputDir string `yaml:"output_dir"`
	// TemplateDir holds release.<flash>.json and bootloader.<chip>.<flash>.bin.
	// Empty means <OutputDir>/bin.
	TemplateDir string `yaml:"template_dir,omitempty"`
	// ProjectConfig is the PlatformIO project file. PROJECT_CONFIG takes precedence
	// over the settings file; empty means platformio.ini.
	ProjectConfig string `yaml:"project_config,omitempty"`
	// ProjectSection is the project file section holding the environment key.
	ProjectSection string `yaml:"project_section"`
	// VersionHeader is the C header defining FN_VERSION_FULL and FN_VERSION_DATE.
	VersionHeader string `yaml:"version_header"`
	// ArchivePrefix is the first component of the archive name.
	ArchivePrefix string `yaml:"archive_prefix"`
	// SourceDir is the git working tree; empty means the current directory.
	SourceDir string `yaml:"source_dir,omitempty"`
	// RebuildFilesystem is run when the filesystem image is missing. Empty disables it.
	RebuildFilesystem []string `yaml:"rebuild_filesystem"`
	// GitTimeout bounds each git invocation.
	GitTimeout time.Duration `yaml:"git_timeout"`
}

const (
	// DefaultConfigFilename is the settings file looked up when none is given.
	DefaultConfigFilename = "meatloaf-packager.yaml"

	// DefaultProjectConfig is the PlatformIO project file.
	DefaultProjectConfig = "platformio.ini"

	// ProjectConfigEnv overrides DefaultProjectConfig. PlatformIO sets it for
	// builds started with `pio run -c <file>`.
	ProjectConfigEnv = "PROJECT_CONFIG"

	// DefaultProjectSection is the section naming the active environment.
	DefaultProjectSection = "meatloaf"

	// DefaultOutputDir is relative to the project root.
	DefaultOutputDir = "firmware"

	// DefaultVersionHeader is relative to the project root.
	DefaultVersionHeader = "include/version.h"

	// DefaultArchivePrefix starts every archive name.
	DefaultArchivePrefix = "meatloaf"

	// DefaultGitTimeout bounds git invocations.
	DefaultGitTimeout = 10 * time.Second

	// DefaultFilePermissions is used for the settings file.
	DefaultFilePermissions = 0o600
)

var (
	errConfigIsNotSet    = errors.New("configuration is not set")
	errBuildDirRequired  = errors.New("build directory must be provided")
	errOutputDirRequired = errors.New("output directory must be provided")
)

// DefaultRebuildFilesystem returns the command that builds the filesystem image.
func DefaultRebuildFilesystem() []string {
	return []string{"pio", "run", "-t", "buildfs"}
}

// Default returns settings for a standard Meatloaf checkout. Paths derived from
// other settings or from the environment are left empty and resolved by Validate.
func Default() *Config {
	cfg := &Config{
		RebuildFilesystem: DefaultRebuildFilesystem(),
	}
	applyDefaults(cfg)

	return cfg
}

// Load reads settings from path and fills defaults. Fields absent from the file keep
// their defaults; an explicit empty rebuild_filesystem list disables the rebuild.
// PROJECT_CONFIG, when set, replaces the file's project_config.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg := &Config{
		RebuildFilesystem: DefaultRebuildFilesystem(),
	}
	if err = yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	// The build system names the project file it is building.
	if env := os.Getenv(ProjectConfigEnv); env != "" {
		cfg.ProjectConfig = env
	}

	applyDefaults(cfg)

	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err = os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate fills defaults and checks the fields a packaging run cannot do without.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	applyDefaults(cfg)
	resolvePaths(cfg)

	if cfg.BuildDir == "" {
		return errBuildDirRequired
	}

	if cfg.OutputDir == "" {
		return errOutputDirRequired
	}

	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}

	if cfg.ProjectSection == "" {
		cfg.ProjectSection = DefaultProjectSection
	}

	if cfg.VersionHeader == "" {
		cfg.VersionHeader = DefaultVersionHeader
	}

	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = DefaultArchivePrefix
	}

	if cfg.GitTimeout <= 0 {
		cfg.GitTimeout = DefaultGitTimeout
	}
}

// resolvePaths fills the paths that depend on other settings or the environment.
func resolvePaths(cfg *Config) {
	if cfg.TemplateDir == "" {
		cfg.TemplateDir = filepath.Join(cfg.OutputDir, "bin")
	}

	if cfg.ProjectConfig == "" {
		cfg.ProjectConfig = DefaultProjectConfig
		if env := os.Getenv(ProjectConfigEnv); env != "" {
			cfg.ProjectConfig = env
		}
	}
}
