// Package fsutil replaces output files atomically.
//
// Contents are written next to the target, checked against their checksum and
// swapped in with a rename (go-update), so a reader never sees a half-written
// manifest or archive and a failed write leaves no partial file behind.
package fsutil

import (
	"bytes"
	"crypto"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	// Register SHA-256 for crypto.Hash lookups made by go-update.
	_ "crypto/sha256"
)

const (
	// DefaultFileMode is used for every file the packager writes.
	DefaultFileMode os.FileMode = 0o644

	// DefaultDirMode is used for the output directory.
	DefaultDirMode os.FileMode = 0o755

	// ChecksumFunction verifies replaced contents.
	ChecksumFunction crypto.Hash = crypto.SHA256
)

var errHashUnavailable = errors.New("hash function unavailable")

// Checksum returns the ChecksumFunction digest of data.
func Checksum(data []byte) ([]byte, error) {
	if !ChecksumFunction.Available() {
		return nil, errHashUnavailable
	}

	hasher := ChecksumFunction.New()
	if _, err := hasher.Write(data); err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return hasher.Sum(nil), nil
}

// Replace writes data to path atomically. When path did not exist beforehand and
// the write fails, nothing is left at path.
func Replace(path string, data []byte, mode os.FileMode) error {
	path = filepath.Clean(path)

	if mode == 0 {
		mode = DefaultFileMode
	}

	checksum, err := Checksum(data)
	if err != nil {
		return err
	}

	// go-update renames the current target aside before swapping, so one must exist.
	created, err := ensureExists(path, mode)
	if err != nil {
		return err
	}

	options := goupdate.Options{
		TargetPath: path,
		TargetMode: mode,
		Checksum:   checksum,
		Hash:       ChecksumFunction,
	}

	if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
		if created {
			_ = os.Remove(path)
		}

		return fmt.Errorf("replace %s: %w", path, err)
	}

	return nil
}

// CopyFile replaces dst with the contents of src.
func CopyFile(src, dst string) error {
	data, err := os.ReadFile(filepath.Clean(src))
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}

	return Replace(dst, data, DefaultFileMode)
}

// RemoveIfExists deletes a regular file. It reports whether something was removed.
func RemoveIfExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	if !info.Mode().IsRegular() {
		return false, fmt.Errorf("%s is not a regular file", path)
	}

	if err = os.Remove(path); err != nil {
		return false, err
	}

	return true, nil
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)

	return err == nil
}

func ensureExists(path string, mode os.FileMode) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode)
	if err != nil {
		return false, fmt.Errorf("create %s: %w", path, err)
	}

	if err = f.Close(); err != nil {
		return true, err
	}

	return true, nil
}
