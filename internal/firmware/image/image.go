package image

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	// CommonHeaderSize is the size of the image header shared by all chips.
	CommonHeaderSize = 8
	// ExtendedHeaderSize is the size of the extended header that follows it.
	ExtendedHeaderSize = 16
	// HeaderSize is the number of bytes Inspect reads.
	HeaderSize = CommonHeaderSize + ExtendedHeaderSize

	// MagicESP is the magic byte of a regular application image.
	MagicESP byte = 0xE9
	// MagicESPAlt is the alternative magic byte accepted by the flasher.
	MagicESPAlt byte = 0xEA

	magicOffset   = 0
	spiSizeOffset = 3
	chipIDOffset  = 4 // within the extended header
)

// Chip names a supported chip variant.
type Chip string

const (
	ChipESP32   Chip = "esp32"
	ChipESP32S3 Chip = "esp32s3"
)

// FlashSize names a flash size as used in release file names ("4m", "16m", ...).
type FlashSize string

const (
	Flash4M  FlashSize = "4m"
	Flash8M  FlashSize = "8m"
	Flash16M FlashSize = "16m"
	Flash32M FlashSize = "32m"
)

//nolint:gochecknoglobals // Lookup table.
var chipByID = map[byte]Chip{
	0x00: ChipESP32,
	0x09: ChipESP32S3,
}

// flashThresholds is checked in order; the first threshold not above spi_size wins.
//
//nolint:gochecknoglobals // Lookup table.
var flashThresholds = []struct {
	min  byte
	size FlashSize
}{
	{0x50, Flash32M},
	{0x40, Flash16M},
	{0x30, Flash8M},
	{0x20, Flash4M},
}

// Header holds the raw bytes read from the start of an image.
type Header struct {
	Common   [CommonHeaderSize]byte
	Extended [ExtendedHeaderSize]byte
}

// Magic returns byte 0 of the common header.
func (h *Header) Magic() byte {
	return h.Common[magicOffset]
}

// SPISize returns byte 3 of the common header.
func (h *Header) SPISize() byte {
	return h.Common[spiSizeOffset]
}

// ChipID returns byte 4 of the extended header.
func (h *Header) ChipID() byte {
	return h.Extended[chipIDOffset]
}

// CommonHex renders the common header as space separated uppercase hex.
func (h *Header) CommonHex() string {
	return spacedHex(h.Common[:])
}

// ExtendedHex renders the extended header as space separated uppercase hex.
func (h *Header) ExtendedHex() string {
	return spacedHex(h.Extended[:])
}

// Info is the decoded identity of an application image.
type Info struct {
	Header    Header
	Chip      Chip
	FlashSize FlashSize
}

// Inspect reads the first HeaderSize bytes of the image at path and decodes them.
func Inspect(path string) (*Info, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}

	defer func() { _ = f.Close() }()

	return Read(f)
}

// Read decodes the header from the first HeaderSize bytes of r.
func Read(r io.Reader) (*Info, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncatedHeader
		}

		return nil, fmt.Errorf("read image header: %w", err)
	}

	return Decode(buf)
}

// Decode validates the magic byte and maps chip ID and SPI size to names.
// buf must hold at least HeaderSize bytes; extra bytes are ignored.
func Decode(buf []byte) (*Info, error) {
	if len(buf) < HeaderSize {
		return nil, ErrTruncatedHeader
	}

	info := new(Info)
	copy(info.Header.Common[:], buf[:CommonHeaderSize])
	copy(info.Header.Extended[:], buf[CommonHeaderSize:HeaderSize])

	h := &info.Header
	if magic := h.Magic(); magic != MagicESP && magic != MagicESPAlt {
		return info, &InvalidMagicError{Magic: magic}
	}

	chip, ok := chipByID[h.ChipID()]
	if !ok {
		return info, &UnrecognizedChipVariantError{ChipID: h.ChipID()}
	}

	size, err := FlashSizeFor(h.SPISize())
	if err != nil {
		return info, err
	}

	info.Chip = chip
	info.FlashSize = size

	return info, nil
}

// FlashSizeFor maps the SPI size byte to a flash size name.
func FlashSizeFor(spiSize byte) (FlashSize, error) {
	for _, t := range flashThresholds {
		if spiSize >= t.min {
			return t.size, nil
		}
	}

	return "", &UnrecognizedFlashSizeError{SPISize: spiSize}
}

func spacedHex(b []byte) string {
	parts := make([]string, len(b))
	for i := range b {
		parts[i] = strings.ToUpper(hex.EncodeToString(b[i : i+1]))
	}

	return strings.Join(parts, " ")
}
