package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const platformioINI = `; PlatformIO Project Configuration File

[platformio]
description = Commodore IEC Serial Floppy Drive and Network Emulator
default_envs = ${meatloaf.environment}

[meatloaf]
environment = esp32s3 lolin-d32 ; pick one
flash_size = 16MB

[env]
framework = espidf
build_flags =
    -D MEATLOAF_MAX
    -D DEBUG_SPEED=921600

[env:esp32s3]
board = esp32-s3-devkitc-1
board_build.filesystem = littlefs

[env:lolin-d32]
board = lolin_d32
`

func writeINI(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "platformio.ini")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

// TestLoadProject picks the first environment token and its board.
func TestLoadProject(t *testing.T) {
	t.Parallel()

	project, err := LoadProject(writeINI(t, platformioINI), "")
	require.NoError(t, err)
	require.Equal(t, "esp32s3", project.Environment)
	require.Equal(t, []string{"esp32s3", "lolin-d32"}, project.Candidates)
	require.Equal(t, "esp32-s3-devkitc-1", project.Board)
}

// TestLoadProjectCustomSection reads the environment from another section.
func TestLoadProjectCustomSection(t *testing.T) {
	t.Parallel()

	body := "[build]\nEnvironment = lolin-d32\n\n[env:lolin-d32]\nboard = lolin_d32\n"

	project, err := LoadProject(writeINI(t, body), "build")
	require.NoError(t, err)
	require.Equal(t, "lolin-d32", project.Environment)
	require.Equal(t, "lolin_d32", project.Board)
}

// TestLoadProjectErrors covers missing sections, keys and files.
func TestLoadProjectErrors(t *testing.T) {
	t.Parallel()

	_, err := LoadProject(writeINI(t, "[platformio]\n"), "")
	require.ErrorIs(t, err, errEnvironmentMissing)

	_, err = LoadProject(writeINI(t, "[meatloaf]\nenvironment =\n"), "")
	require.ErrorIs(t, err, errEnvironmentMissing)

	_, err = LoadProject(writeINI(t, "[meatloaf]\nenvironment = ghost\n"), "")
	require.ErrorIs(t, err, errBoardMissing)

	_, err = LoadProject(writeINI(t, "[meatloaf]\nenvironment = esp32\n[env:esp32]\nframework = espidf\n"), "")
	require.ErrorIs(t, err, errBoardMissing)

	_, err = LoadProject(filepath.Join(t.TempDir(), "none.ini"), "")
	require.Error(t, err)
}
