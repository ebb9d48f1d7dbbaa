package image

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMagic is wrapped by InvalidMagicError.
	ErrInvalidMagic = errors.New("invalid image magic number")
	// ErrTruncatedHeader is returned when the file is shorter than HeaderSize.
	ErrTruncatedHeader = errors.New("image header is truncated")
	// ErrUnrecognizedChip is wrapped by UnrecognizedChipVariantError.
	ErrUnrecognizedChip = errors.New("unrecognized chip variant")
	// ErrUnrecognizedFlashSize is wrapped by UnrecognizedFlashSizeError.
	ErrUnrecognizedFlashSize = errors.New("unrecognized flash size")
)

// InvalidMagicError reports a first byte that is neither 0xE9 nor 0xEA.
type InvalidMagicError struct {
	Magic byte
}

func (e *InvalidMagicError) Error() string {
	return fmt.Sprintf("not a valid image (invalid magic number: %#x)", e.Magic)
}

func (e *InvalidMagicError) Unwrap() error {
	return ErrInvalidMagic
}

// UnrecognizedChipVariantError reports a chip ID with no known chip name.
type UnrecognizedChipVariantError struct {
	ChipID byte
}

func (e *UnrecognizedChipVariantError) Error() string {
	return fmt.Sprintf("unrecognized chip variant: chip_id 0x%02X", e.ChipID)
}

func (e *UnrecognizedChipVariantError) Unwrap() error {
	return ErrUnrecognizedChip
}

// UnrecognizedFlashSizeError reports an SPI size byte below the smallest known size.
type UnrecognizedFlashSizeError struct {
	SPISize byte
}

func (e *UnrecognizedFlashSizeError) Error() string {
	return fmt.Sprintf("unrecognized flash size: spi_size 0x%02X", e.SPISize)
}

func (e *UnrecognizedFlashSizeError) Unwrap() error {
	return ErrUnrecognizedFlashSize
}
