// Package archive writes and reads the firmware ZIP consumed by the web flasher.
//
// Entry names are fixed and independent of the source file names, so the flasher
// can find each image without parsing the manifest first. Entries are stored
// without compression.
package archive

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Canonical entry names inside the archive.
const (
	EntryManifest   = "release.json"
	EntryBootloader = "bootloader.bin"
	EntryPartitions = "partitions.bin"
	EntryFirmware   = "firmware.bin"
	EntryFilesystem = "filesystem.bin"
)

const entryMode os.FileMode = 0o644

// CanonicalEntries returns the entry names of a release archive in write order.
func CanonicalEntries() []string {
	return []string{
		EntryManifest,
		EntryBootloader,
		EntryPartitions,
		EntryFirmware,
		EntryFilesystem,
	}
}

var (
	errDuplicateEntry = errors.New("duplicate archive entry")
	errEmptyEntryName = errors.New("archive entry name is empty")
)

// Entry maps an archive entry name to its source. Data wins over Path when set.
type Entry struct {
	Name string
	Path string
	Data []byte
}

// EntryInfo describes an entry of an existing archive.
type EntryInfo struct {
	Name   string
	Size   uint64
	SHA256 string
}

// Build returns the bytes of a ZIP holding entries in the given order, each stamped
// with modified.
func Build(entries []Entry, modified time.Time) ([]byte, error) {
	seen := make(map[string]struct{}, len(entries))

	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)

	for _, entry := range entries {
		if entry.Name == "" {
			return nil, errEmptyEntryName
		}

		if _, dup := seen[entry.Name]; dup {
			return nil, fmt.Errorf("%s: %w", entry.Name, errDuplicateEntry)
		}

		seen[entry.Name] = struct{}{}

		if err := addEntry(zw, entry, modified); err != nil {
			_ = zw.Close()

			return nil, fmt.Errorf("add %s: %w", entry.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish archive: %w", err)
	}

	return buf.Bytes(), nil
}

func addEntry(zw *zip.Writer, entry Entry, modified time.Time) error {
	data := entry.Data
	if data == nil {
		var err error

		data, err = os.ReadFile(filepath.Clean(entry.Path))
		if err != nil {
			return err
		}
	}

	header := &zip.FileHeader{
		Name:     entry.Name,
		Method:   zip.Store,
		Modified: modified,
	}
	header.SetMode(entryMode)

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = w.Write(data)

	return err
}

// List returns the entries of the archive at path in archive order.
func List(path string) ([]EntryInfo, error) {
	zr, err := zip.OpenReader(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	defer func() { _ = zr.Close() }()

	infos := make([]EntryInfo, 0, len(zr.File))

	for _, f := range zr.File {
		sum, err := hashEntry(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}

		infos = append(infos, EntryInfo{
			Name:   f.Name,
			Size:   f.UncompressedSize64,
			SHA256: sum,
		})
	}

	return infos, nil
}

// ReadEntry returns the contents of one entry.
func ReadEntry(path, name string) ([]byte, error) {
	zr, err := zip.OpenReader(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	defer func() { _ = zr.Close() }()

	rc, err := zr.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open entry %s: %w", name, err)
	}

	defer func() { _ = rc.Close() }()

	return io.ReadAll(rc)
}

func hashEntry(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}

	defer func() { _ = rc.Close() }()

	hasher := sha256.New()
	if _, err = io.Copy(hasher, rc); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
