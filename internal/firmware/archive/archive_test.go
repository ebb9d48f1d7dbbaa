package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestBuildRoundTrip writes entries from files and memory and reads them back.
func TestBuildRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	partitions := filepath.Join(dir, "partitions.bin")
	partitionData := []byte{0xAA, 0x50, 0x01, 0x02}
	require.NoError(t, os.WriteFile(partitions, partitionData, 0o600))

	modified := time.Date(2026, 10, 18, 14, 0, 0, 0, time.UTC)
	data, err := Build([]Entry{
		{Name: EntryManifest, Data: []byte(`{"version":"1"}`)},
		{Name: EntryPartitions, Path: partitions},
	}, modified)
	require.NoError(t, err)

	path := filepath.Join(dir, "out.zip")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	infos, err := List(path)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	require.Equal(t, EntryManifest, infos[0].Name)
	require.Equal(t, EntryPartitions, infos[1].Name)
	require.Equal(t, uint64(len(partitionData)), infos[1].Size)

	sum := sha256.Sum256(partitionData)
	require.Equal(t, hex.EncodeToString(sum[:]), infos[1].SHA256)

	got, err := ReadEntry(path, EntryPartitions)
	require.NoError(t, err)
	require.Equal(t, partitionData, got)

	_, err = ReadEntry(path, EntryFirmware)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestBuildRejectsBadEntries covers duplicates, empty names and unreadable sources.
func TestBuildRejectsBadEntries(t *testing.T) {
	t.Parallel()

	_, err := Build([]Entry{
		{Name: EntryFirmware, Data: []byte{1}},
		{Name: EntryFirmware, Data: []byte{2}},
	}, time.Now())
	require.ErrorIs(t, err, errDuplicateEntry)

	_, err = Build([]Entry{{Data: []byte{1}}}, time.Now())
	require.ErrorIs(t, err, errEmptyEntryName)

	_, err = Build([]Entry{{Name: EntryBootloader, Path: filepath.Join(t.TempDir(), "missing.bin")}}, time.Now())
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestListMissingArchive reports the open failure.
func TestListMissingArchive(t *testing.T) {
	t.Parallel()

	_, err := List(filepath.Join(t.TempDir(), "none.zip"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
