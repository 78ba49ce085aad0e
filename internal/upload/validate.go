package upload

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
)

// Validation errors.
var (
	ErrTooLarge        = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrLowResolution   = errors.New("resolution too low for print")
)

// printDPI is the minimum print resolution raster designs must satisfy.
const printDPI = 300

// allowedTypes are the print-ready formats the shop accepts.
var allowedTypes = []string{"image/png", "image/jpeg", "application/pdf", "image/svg+xml"}

// FileInfo is the result of validating an upload.
type FileInfo struct {
	MimeType string
	SizeBytes int64
	// Pixel dimensions, set for raster images only.
	WidthPx  *int
	HeightPx *int
}

// ValidateFile sniffs the content type and, for raster images, reads the
// pixel dimensions. The declared filename and Content-Type are ignored;
// only the bytes count.
func ValidateFile(data []byte, maxSize int64) (FileInfo, error) {
	size := int64(len(data))
	if size == 0 {
		return FileInfo{}, fmt.Errorf("empty file: %w", ErrUnsupportedType)
	}
	if maxSize > 0 && size > maxSize {
		return FileInfo{}, fmt.Errorf("%d bytes: %w", size, ErrTooLarge)
	}

	mime := mimetype.Detect(data)
	var mtype string
	for _, allowed := range allowedTypes {
		if mime.Is(allowed) {
			mtype = allowed
			break
		}
	}
	if mtype == "" {
		return FileInfo{}, fmt.Errorf("%s: %w", mime.String(), ErrUnsupportedType)
	}

	info := FileInfo{MimeType: mtype, SizeBytes: size}
	if mtype == "image/png" || mtype == "image/jpeg" {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return FileInfo{}, fmt.Errorf("decode image: %w", ErrUnsupportedType)
		}
		info.WidthPx = &cfg.Width
		info.HeightPx = &cfg.Height
	}
	return info, nil
}

// MinPixels returns the pixel count a raster design needs along one axis
// to print the given length in millimetres at print resolution.
func MinPixels(mm int) int {
	// px = mm / 25.4 * dpi, rounded up
	return (mm*printDPI*10 + 253) / 254
}

// CheckResolution verifies a raster design is dense enough for the target
// print size. Vector formats (nil pixel dims) always pass.
func CheckResolution(info FileInfo, widthMM, heightMM int) error {
	if info.WidthPx == nil || info.HeightPx == nil {
		return nil
	}
	if *info.WidthPx < MinPixels(widthMM) || *info.HeightPx < MinPixels(heightMM) {
		return fmt.Errorf("%dx%dpx for %dx%dmm: %w",
			*info.WidthPx, *info.HeightPx, widthMM, heightMM, ErrLowResolution)
	}
	return nil
}
