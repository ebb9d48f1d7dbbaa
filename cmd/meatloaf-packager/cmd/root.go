package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/meatloaf/meatloaf-packager/internal/config"
	"github.com/meatloaf/meatloaf-packager/internal/logger"
	"github.com/meatloaf/meatloaf-packager/internal/service/packager"
	"github.com/meatloaf/meatloaf-packager/internal/version"
)

var (
	// configPath to the settings YAML file.
	configPath string
	// logLevel is the minimum level written to stdout.
	logLevel string
	// overrides holds the settings given on the command line.
	overrides config.Config
	// noRebuild disables the filesystem rebuild for missing images.
	noRebuild bool

	// rootCmd represents the base command for packaging a finished build.
	rootCmd = &cobra.Command{
		Use:   "meatloaf-packager",
		Short: "Package ESP32 build artifacts into a firmware release ZIP",
		Long: `Packages bootloader, partition table, application and filesystem images of a
finished PlatformIO build into meatloaf.<environment>.<YYYYMMDD.HH>.zip together
with a release.json manifest describing their flash offsets.

Missing build artifacts are reported and the packaging is skipped without failing
the build. An unreadable application image or project file is an error.`,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		PersistentPreRunE: setupLogging,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			cfg, err := loadSettings(cmd.Flags())
			if err != nil {
				return err
			}

			return packager.Run(ctx, &packager.Options{Config: cfg})
		},
	}
)

// Execute runs the meatloaf-packager CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")

	// Setup command flags with consistent naming and descriptions.
	flags := rootCmd.Flags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to settings file")
	flags.StringVarP(&overrides.BuildDir, "build-dir", "b", "", "PlatformIO build directory holding the images")
	flags.StringVarP(&overrides.OutputDir, "output-dir", "o", "", "directory receiving release.json and the archive")
	flags.StringVar(&overrides.TemplateDir, "template-dir", "", "directory of release templates and bootloaders")
	flags.StringVar(&overrides.ProjectConfig, "project-config", "", "PlatformIO project file")
	flags.StringVar(&overrides.ProjectSection, "project-section", "", "project file section naming the environment")
	flags.StringVar(&overrides.VersionHeader, "version-header", "", "header defining FN_VERSION_FULL and FN_VERSION_DATE")
	flags.StringVar(&overrides.ArchivePrefix, "archive-prefix", "", "first component of the archive name")
	flags.StringVar(&overrides.SourceDir, "source-dir", "", "git working tree used for commit metadata")
	flags.DurationVar(&overrides.GitTimeout, "git-timeout", 0, "timeout of each git invocation")
	flags.BoolVar(&noRebuild, "no-rebuild", false, "do not build a missing filesystem image")

	rootCmd.AddCommand(newInspectCommand(), newInitCommand())
}

func setupLogging(_ *cobra.Command, _ []string) error {
	level, ok := logger.ParseLogLevel(logLevel)
	if !ok {
		return fmt.Errorf("unknown log level %q", logLevel)
	}

	logger.SetLevel(level)

	return nil
}

// loadSettings reads the settings file and applies the flags that were set.
// A missing file is fine unless it was named explicitly.
func loadSettings(flags *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(configPath)

	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist) && !flags.Changed("config"):
		cfg = config.Default()
	default:
		return nil, err
	}

	apply := func(name string, dst *string, value string) {
		if flags.Changed(name) {
			*dst = value
		}
	}

	apply("build-dir", &cfg.BuildDir, overrides.BuildDir)
	apply("output-dir", &cfg.OutputDir, overrides.OutputDir)
	apply("template-dir", &cfg.TemplateDir, overrides.TemplateDir)
	apply("project-config", &cfg.ProjectConfig, overrides.ProjectConfig)
	apply("project-section", &cfg.ProjectSection, overrides.ProjectSection)
	apply("version-header", &cfg.VersionHeader, overrides.VersionHeader)
	apply("archive-prefix", &cfg.ArchivePrefix, overrides.ArchivePrefix)
	apply("source-dir", &cfg.SourceDir, overrides.SourceDir)

	if flags.Changed("git-timeout") {
		cfg.GitTimeout = overrides.GitTimeout
	}

	if noRebuild {
		cfg.RebuildFilesystem = nil
	}

	return cfg, nil
}
