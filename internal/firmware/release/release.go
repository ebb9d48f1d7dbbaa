// Package release builds the release.json manifest read by the web flasher.
package release

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/gowebpki/jcs"

	"github.com/meatloaf/meatloaf-packager/internal/firmware/image"
	"github.com/meatloaf/meatloaf-packager/internal/firmware/metadata"
)

const (
	// ManifestFilename is the manifest name on disk and inside the archive.
	ManifestFilename = "release.json"

	// OffsetKey is the template field holding a flash offset.
	OffsetKey = "offset"

	// esp32s3BootloaderOffset replaces the first entry's offset for ESP32-S3 images,
	// whose ROM loads the bootloader from the start of flash.
	esp32s3BootloaderOffset = "0x0000"

	indent = "    "
)

var (
	errTemplateNotArray = errors.New("release template is not a JSON array")
	errEmptyTemplate    = errors.New("release template has no file entries")
	errFileNotObject    = errors.New("release file entry is not a JSON object")
)

// File is one entry of the manifest's files array. Templates may carry fields beyond
// name and offset; all of them are kept verbatim and in template order.
type File struct {
	keys   []string
	fields map[string]json.RawMessage
}

// Keys returns the field names in template order.
func (f File) Keys() []string {
	return slices.Clone(f.keys)
}

// Get returns the raw JSON value of a field.
func (f File) Get(key string) (json.RawMessage, bool) {
	raw, ok := f.fields[key]

	return raw, ok
}

// Text returns a string field, or "" when the field is absent or not a string.
func (f File) Text(key string) string {
	var s string
	if raw, ok := f.fields[key]; ok {
		_ = json.Unmarshal(raw, &s)
	}

	return s
}

// WithText returns a copy of f with key set to a string value. An existing field
// keeps its position; a new one is appended.
func (f File) WithText(key, value string) File {
	//nolint:errchkjson // Marshaling a string cannot fail.
	raw, _ := json.Marshal(value)

	out := File{
		keys:   slices.Clone(f.keys),
		fields: maps.Clone(f.fields),
	}
	if out.fields == nil {
		out.fields = make(map[string]json.RawMessage, 1)
	}

	if _, ok := out.fields[key]; !ok {
		out.keys = append(out.keys, key)
	}

	out.fields[key] = raw

	return out
}

// UnmarshalJSON decodes an object, remembering its key order. A repeated key keeps
// its first position and its last value.
func (f *File) UnmarshalJSON(data []byte) error {
	*f = File{}

	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(data))

	token, err := decoder.Token()
	if err != nil {
		return err
	}

	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return errFileNotObject
	}

	f.fields = make(map[string]json.RawMessage)

	for decoder.More() {
		token, err = decoder.Token()
		if err != nil {
			return err
		}

		key, ok := token.(string)
		if !ok {
			return errFileNotObject
		}

		var raw json.RawMessage
		if err = decoder.Decode(&raw); err != nil {
			return err
		}

		var compact bytes.Buffer
		if err = json.Compact(&compact, raw); err != nil {
			return err
		}

		if _, seen := f.fields[key]; !seen {
			f.keys = append(f.keys, key)
		}

		f.fields[key] = compact.Bytes()
	}

	_, err = decoder.Token()

	return err
}

// MarshalJSON encodes the fields in template order.
func (f File) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, key := range f.keys {
		if i > 0 {
			buf.WriteByte(',')
		}

		name, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}

		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(f.fields[key])
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// Manifest is the content of release.json.
type Manifest struct {
	Version     string `json:"version"`
	VersionDate string `json:"version_date"`
	BuildDate   string `json:"build_date"`
	Description string `json:"description"`
	GitCommit   string `json:"git_commit"`
	Files       []File `json:"files"`
}

// TemplatePath returns the path of the template for a flash size.
func TemplatePath(dir string, size image.FlashSize) string {
	return filepath.Join(dir, fmt.Sprintf("release.%s.json", size))
}

// BootloaderPath returns the path of the prebuilt bootloader for a chip and flash size.
func BootloaderPath(dir string, chip image.Chip, size image.FlashSize) string {
	return filepath.Join(dir, fmt.Sprintf("bootloader.%s.%s.bin", chip, size))
}

// LoadTemplate reads the files array of the template for size from dir.
func LoadTemplate(dir string, size image.FlashSize) ([]File, error) {
	path := TemplatePath(dir, size)

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read release template: %w", err)
	}

	files, err := ParseTemplate(contents)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return files, nil
}

// ParseTemplate decodes a template. Values, numbers included, are kept verbatim.
func ParseTemplate(contents []byte) ([]File, error) {
	trimmed := bytes.TrimSpace(contents)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errTemplateNotArray
	}

	var files []File
	if err := json.Unmarshal(trimmed, &files); err != nil {
		return nil, fmt.Errorf("decode release template: %w", err)
	}

	if files == nil {
		files = []File{}
	}

	return files, nil
}

// New assembles a manifest from version metadata and template entries.
func New(info *metadata.Info, files []File) *Manifest {
	m := &Manifest{
		Version:     info.Full,
		VersionDate: info.Date,
		BuildDate:   info.BuildDate,
		Description: info.Description,
		GitCommit:   info.Commit,
		Files:       make([]File, 0, len(files)),
	}

	m.Files = append(m.Files, files...)

	return m
}

// ApplyChip adjusts chip-specific offsets. For esp32s3 the first entry is the
// bootloader and is flashed at 0x0000.
func (m *Manifest) ApplyChip(chip image.Chip) error {
	if chip != image.ChipESP32S3 {
		return nil
	}

	if len(m.Files) == 0 {
		return errEmptyTemplate
	}

	// WithText copies, so the template entry is left untouched.
	m.Files[0] = m.Files[0].WithText(OffsetKey, esp32s3BootloaderOffset)

	return nil
}

// Marshal renders the manifest as indented JSON.
func (m *Manifest) Marshal() ([]byte, error) {
	var buf bytes.Buffer

	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", indent)

	if err := encoder.Encode(m); err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}

	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Digest returns the sha256 of the RFC 8785 canonical form of a JSON document, so
// that two manifests differing only in formatting share a digest.
func Digest(contents []byte) (string, error) {
	canonical, err := jcs.Transform(contents)
	if err != nil {
		return "", fmt.Errorf("canonicalize manifest: %w", err)
	}

	sum := sha256.Sum256(canonical)

	return hex.EncodeToString(sum[:]), nil
}
