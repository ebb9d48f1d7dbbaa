package integration

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meatloaf/meatloaf-packager/internal/config"
	"github.com/meatloaf/meatloaf-packager/internal/firmware/archive"
	"github.com/meatloaf/meatloaf-packager/internal/firmware/metadata"
	"github.com/meatloaf/meatloaf-packager/internal/firmware/release"
	"github.com/meatloaf/meatloaf-packager/internal/service/inspector"
	"github.com/meatloaf/meatloaf-packager/internal/service/packager"
)

const buildDir = ".pio/build/meatloaf"

// setupProject lays out a PlatformIO project with a finished build in dir.
func setupProject(t *testing.T, dir string) {
	t.Helper()

	firmware := make([]byte, 256)
	firmware[0] = 0xE9
	firmware[3] = 0x20

	files := map[string][]byte{
		"platformio.ini": []byte("; generated\n[meatloaf]\nenvironment = meatloaf ; active board\n\n" +
			"[env:meatloaf]\nboard = wemos_d1_mini32\n"),
		"include/version.h": []byte("#ifndef VERSION_H\n#define VERSION_H\n" +
			"#define FN_VERSION_FULL \"1.2.3\"\n#define FN_VERSION_DATE \"2026-09-30 12:00:00\"\n#endif\n"),
		"firmware/bin/release.4m.json": []byte(`[{"name": "bootloader.bin", "offset": "0x1000", "sha": ""},
			{"name": "firmware.bin", "offset": "0x10000"}]`),
		"firmware/bin/bootloader.esp32.4m.bin": []byte("bootloader blob"),
		buildDir + "/bootloader.bin":           []byte("bootloader"),
		buildDir + "/partitions.bin":           []byte("partitions"),
		buildDir + "/firmware.bin":             firmware,
		buildDir + "/littlefs.bin":             []byte("littlefs"),
	}

	for name, data := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, data, 0o600))
	}
}

// runPackager packages the project in the working directory using a settings file.
func runPackager(t *testing.T) string {
	t.Helper()

	cfg := config.Default()
	cfg.BuildDir = buildDir
	cfg.RebuildFilesystem = nil
	require.NoError(t, config.Save(config.DefaultConfigFilename, cfg))

	loaded, err := config.Load(config.DefaultConfigFilename)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, packager.Run(ctx, &packager.Options{Config: loaded}))

	matches, err := filepath.Glob(filepath.Join(config.DefaultOutputDir, "meatloaf.meatloaf.*.zip"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	return matches[0]
}

func readManifest(t *testing.T, archivePath string) *release.Manifest {
	t.Helper()

	data, err := archive.ReadEntry(archivePath, archive.EntryManifest)
	require.NoError(t, err)

	var manifest release.Manifest
	require.NoError(t, json.Unmarshal(data, &manifest))

	return &manifest
}

// TestPackager_WithoutGit falls back to the version header when no repository is found.
func TestPackager_WithoutGit(t *testing.T) {
	dir := t.TempDir()
	setupProject(t, dir)

	t.Chdir(dir)
	// Keep git from discovering a repository above the temporary directory.
	t.Setenv("GIT_CEILING_DIRECTORIES", filepath.Dir(dir))
	t.Setenv(config.ProjectConfigEnv, "")

	archivePath := runPackager(t)

	manifest := readManifest(t, archivePath)
	require.Equal(t, "1.2.3", manifest.Version)
	require.Equal(t, "1.2.3", manifest.Description)
	require.Equal(t, metadata.NoGit, manifest.GitCommit)
	require.Len(t, manifest.Files, 2)
	require.Equal(t, "0x1000", manifest.Files[0].Text(release.OffsetKey))
	require.Equal(t, []string{"name", "offset", "sha"}, manifest.Files[0].Keys())

	report, err := inspector.InspectArchive(context.Background(), archivePath)
	require.NoError(t, err)
	require.Empty(t, report.Missing)
	require.Len(t, report.Entries, 5)
	require.NotEmpty(t, report.ManifestDigest)

	var out strings.Builder
	require.NoError(t, report.Print(&out))
	require.Contains(t, out.String(), archive.EntryFilesystem)

	onDisk, err := os.ReadFile(filepath.Join(config.DefaultOutputDir, release.ManifestFilename))
	require.NoError(t, err)

	digest, err := release.Digest(onDisk)
	require.NoError(t, err)
	require.Equal(t, report.ManifestDigest, digest)
}

// TestPackager_WithGit takes the description and commit from the repository.
func TestPackager_WithGit(t *testing.T) {
	gitBinary, err := exec.LookPath("git")
	if err != nil {
		t.Skip("git is not installed")
	}

	dir := t.TempDir()
	setupProject(t, dir)

	t.Chdir(dir)
	t.Setenv(config.ProjectConfigEnv, "")

	git := func(args ...string) string {
		t.Helper()

		cmd := exec.Command(gitBinary, append([]string{
			"-c", "user.name=Packager Test",
			"-c", "user.email=packager@example.com",
			"-c", "commit.gpgsign=false",
		}, args...)...)
		cmd.Dir = dir

		out, runErr := cmd.CombinedOutput()
		require.NoError(t, runErr, string(out))

		return strings.TrimSpace(string(out))
	}

	git("init", "--quiet")
	git("add", "include/version.h")
	git("commit", "--quiet", "-m", "Bump version", "-m", "Second paragraph")

	hash := git("rev-parse", "--short", "HEAD")

	manifest := readManifest(t, runPackager(t))
	require.Equal(t, hash, manifest.GitCommit)
	require.Equal(t, "Bump version  Second paragraph", manifest.Description)
}

// TestPackager_SkipsIncompleteBuild leaves no outputs when the application image is missing.
func TestPackager_SkipsIncompleteBuild(t *testing.T) {
	dir := t.TempDir()
	setupProject(t, dir)
	require.NoError(t, os.Remove(filepath.Join(dir, buildDir, "firmware.bin")))

	cfg := config.Default()
	cfg.BuildDir = filepath.Join(dir, buildDir)
	cfg.OutputDir = filepath.Join(dir, config.DefaultOutputDir)
	cfg.ProjectConfig = filepath.Join(dir, "platformio.ini")
	cfg.VersionHeader = filepath.Join(dir, "include", "version.h")
	cfg.RebuildFilesystem = nil

	require.NoError(t, packager.Run(context.Background(), &packager.Options{Config: cfg}))

	entries, err := os.ReadDir(cfg.OutputDir)
	require.NoError(t, err)

	for _, e := range entries {
		require.NotEqual(t, release.ManifestFilename, e.Name())
		require.NotEqual(t, ".zip", filepath.Ext(e.Name()))
	}
}
