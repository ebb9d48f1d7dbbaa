package packager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/meatloaf/meatloaf-packager/internal/config"
	"github.com/meatloaf/meatloaf-packager/internal/firmware/archive"
	"github.com/meatloaf/meatloaf-packager/internal/firmware/image"
	"github.com/meatloaf/meatloaf-packager/internal/firmware/metadata"
	"github.com/meatloaf/meatloaf-packager/internal/firmware/release"
	"github.com/meatloaf/meatloaf-packager/internal/fsutil"
	"github.com/meatloaf/meatloaf-packager/internal/logger"
	"github.com/meatloaf/meatloaf-packager/internal/service/inspector"
)

// Build artifact names inside the build directory.
const (
	BootloaderArtifact = "bootloader.bin"
	PartitionsArtifact = "partitions.bin"
	FirmwareArtifact   = "firmware.bin"
	FilesystemArtifact = "littlefs.bin"
)

const (
	// FilesystemCopyName is the copy of the filesystem image kept in the output directory.
	FilesystemCopyName = "filesystem.bin"

	// archiveDateLayout renders the YYYYMMDD.HH part of the archive name.
	archiveDateLayout = "20060102.15"

	bannerWidth = 80
)

// ErrArtifactsMissing is returned by a run that found missing build artifacts.
// Run treats it as a skip, not a failure.
var ErrArtifactsMissing = errors.New("build artifacts missing")

// Options contains inputs for the packager entry point.
type Options struct {
	// Config is the explicit packaging configuration. Required.
	Config *config.Config
	// VCS overrides git; nil runs git in Config.SourceDir.
	VCS metadata.VCS
	// Now overrides the clock used for build and archive timestamps.
	Now func() time.Time
}

// Result describes a produced archive.
type Result struct {
	ArchivePath    string
	ManifestPath   string
	ManifestDigest string
	Environment    string
	Board          string
	Version        string
	Chip           image.Chip
	FlashSize      image.FlashSize
}

// packager holds the state of one packaging run.
type packager struct {
	cfg *config.Config
	vcs metadata.VCS
	now time.Time
}

// Run executes the packaging workflow. Missing build artifacts are logged and
// reported as success so that the surrounding build carries on.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "meatloaf-packager")

	pkg, err := newPackager(opts)
	if err != nil {
		return fmt.Errorf("initialize packager: %w", err)
	}

	result, err := pkg.Run(ctx)
	if errors.Is(err, ErrArtifactsMissing) {
		logger.Warn(ctx, "Skipping making firmware ZIP due to missing build artifacts")
		return nil
	}

	if err != nil {
		logger.ErrorKV(ctx, "Firmware ZIP was not created", "error", err)
		return fmt.Errorf("packager failed: %w", err)
	}

	printBanner(ctx, result)

	return nil
}

func newPackager(opts *Options) (*packager, error) {
	if opts == nil {
		opts = new(Options)
	}

	if err := config.Validate(opts.Config); err != nil {
		return nil, err
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	vcs := opts.VCS
	if vcs == nil {
		vcs = &metadata.Git{Dir: opts.Config.SourceDir, Timeout: opts.Config.GitTimeout}
	}

	return &packager{
		cfg: opts.Config,
		vcs: vcs,
		now: now(),
	}, nil
}

// Run performs the packaging steps in order and returns the produced archive.
func (p *packager) Run(ctx context.Context) (*Result, error) {
	if err := os.MkdirAll(p.cfg.OutputDir, fsutil.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	if err := p.checkArtifacts(ctx); err != nil {
		return nil, err
	}

	unlock, err := acquireLock(ctx, p.cfg.OutputDir)
	if err != nil {
		return nil, err
	}

	defer unlock()

	return p.assemble(ctx)
}

// checkArtifacts reports every missing build artifact and starts a filesystem
// rebuild when the filesystem image is among them.
func (p *packager) checkArtifacts(ctx context.Context) error {
	artifacts := []struct {
		label string
		name  string
	}{
		{"BOOTLOADER", BootloaderArtifact},
		{"PARTITIONS", PartitionsArtifact},
		{"FIRMWARE", FirmwareArtifact},
		{"LittleFS", FilesystemArtifact},
	}

	var missing []string

	for _, a := range artifacts {
		path := p.buildPath(a.name)
		if fsutil.Exists(path) {
			continue
		}

		logger.ErrorKV(ctx, a.label+" not available to pack in firmware zip", "path", path)
		missing = append(missing, a.name)
	}

	if len(missing) == 0 {
		return nil
	}

	if slices.Contains(missing, FilesystemArtifact) {
		p.rebuildFilesystem(ctx)
	}

	return fmt.Errorf("%w: %s", ErrArtifactsMissing, strings.Join(missing, ", "))
}

// rebuildFilesystem runs the configured filesystem build. The result only matters
// to the next invocation, so failures are logged and dropped.
func (p *packager) rebuildFilesystem(ctx context.Context) {
	command := p.cfg.RebuildFilesystem
	if len(command) == 0 {
		return
	}

	logger.InfoKV(ctx, "Building filesystem image", "command", strings.Join(command, " "))

	//nolint:gosec // The command comes from the packager's own settings.
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = p.cfg.SourceDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		logger.ErrorKV(ctx, "Filesystem image build failed", "error", err)
	}
}

func (p *packager) assemble(ctx context.Context) (*Result, error) {
	project, err := config.LoadProject(p.cfg.ProjectConfig, p.cfg.ProjectSection)
	if err != nil {
		return nil, err
	}

	if len(project.Candidates) > 1 {
		logger.DebugKV(ctx, "Multiple environments configured, packaging the first",
			"environments", project.Candidates)
	}

	ctx = logger.WithKV(ctx, "environment", project.Environment)
	logger.InfoKV(ctx, "Creating firmware zip for Meatloaf ESP32 board", "board", project.Board)

	defines, err := metadata.ParseHeaderFile(p.cfg.VersionHeader)
	if err != nil {
		return nil, err
	}

	info, err := metadata.Collect(ctx, defines, p.vcs, p.now)
	if err != nil {
		return nil, err
	}

	img, err := inspector.InspectImage(ctx, p.buildPath(FirmwareArtifact))
	if err != nil {
		return nil, err
	}

	result := &Result{
		ArchivePath:  p.archivePath(project.Environment),
		ManifestPath: filepath.Join(p.cfg.OutputDir, release.ManifestFilename),
		Environment:  project.Environment,
		Board:        project.Board,
		Version:      info.Full,
		Chip:         img.Chip,
		FlashSize:    img.FlashSize,
	}

	filesystemCopy := filepath.Join(p.cfg.OutputDir, FilesystemCopyName)
	if err = fsutil.CopyFile(p.buildPath(FilesystemArtifact), filesystemCopy); err != nil {
		logger.WarnKV(ctx, "Failed to copy filesystem image", "error", err)
	}

	p.removeStale(ctx, result.ManifestPath, result.ArchivePath)

	manifestData, err := p.writeManifest(info, img, result.ManifestPath)
	if err != nil {
		return nil, err
	}

	result.ManifestDigest, err = release.Digest(manifestData)
	if err != nil {
		return nil, err
	}

	entries := []archive.Entry{
		{Name: archive.EntryManifest, Data: manifestData},
		{Name: archive.EntryBootloader, Path: release.BootloaderPath(p.cfg.TemplateDir, img.Chip, img.FlashSize)},
		{Name: archive.EntryPartitions, Path: p.buildPath(PartitionsArtifact)},
		{Name: archive.EntryFirmware, Path: p.buildPath(FirmwareArtifact)},
		{Name: archive.EntryFilesystem, Path: filesystemCopy},
	}

	contents, err := archive.Build(entries, p.now)
	if err != nil {
		return nil, fmt.Errorf("build archive: %w", err)
	}

	if err = fsutil.Replace(result.ArchivePath, contents, fsutil.DefaultFileMode); err != nil {
		return nil, fmt.Errorf("write archive: %w", err)
	}

	return result, nil
}

// writeManifest builds release.json from the template for the image's flash size.
func (p *packager) writeManifest(info *metadata.Info, img *image.Info, path string) ([]byte, error) {
	files, err := release.LoadTemplate(p.cfg.TemplateDir, img.FlashSize)
	if err != nil {
		return nil, err
	}

	manifest := release.New(info, files)
	if err = manifest.ApplyChip(img.Chip); err != nil {
		return nil, err
	}

	data, err := manifest.Marshal()
	if err != nil {
		return nil, err
	}

	if err = fsutil.Replace(path, data, fsutil.DefaultFileMode); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	return data, nil
}

// removeStale deletes outputs of an earlier run with the same names.
func (p *packager) removeStale(ctx context.Context, paths ...string) {
	for _, path := range paths {
		removed, err := fsutil.RemoveIfExists(path)
		if err != nil {
			logger.WarnKV(ctx, "Failed to delete stale output", "path", path, "error", err)
			continue
		}

		if removed {
			logger.DebugKV(ctx, "Deleted stale output", "path", path)
		}
	}
}

func (p *packager) buildPath(name string) string {
	return filepath.Join(p.cfg.BuildDir, name)
}

func (p *packager) archivePath(environment string) string {
	name := fmt.Sprintf("%s.%s.%s.zip", p.cfg.ArchivePrefix, environment, p.now.Format(archiveDateLayout))

	return filepath.Join(p.cfg.OutputDir, name)
}

// printBanner logs the location of a verified archive.
func printBanner(ctx context.Context, result *Result) {
	line := strings.Repeat("*", bannerWidth)

	var builder strings.Builder

	builder.WriteString("\n")
	builder.WriteString(line)
	builder.WriteString("\n*\n*   FIRMWARE ZIP CREATED AT: ")
	builder.WriteString(result.ArchivePath)
	builder.WriteString("\n*\n")
	builder.WriteString(line)

	logger.Info(ctx, builder.String())
	logger.InfoKV(ctx, "Release manifest written",
		"path", result.ManifestPath,
		"environment", result.Environment,
		"board", result.Board,
		"version", result.Version,
		"chip", result.Chip,
		"flash_size", result.FlashSize,
		"digest", result.ManifestDigest)
}
