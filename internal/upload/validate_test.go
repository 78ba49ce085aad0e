package upload

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestValidateFilePNG(t *testing.T) {
	info, err := ValidateFile(pngBytes(t, 640, 480), 1<<20)
	require.NoError(t, err)
	require.Equal(t, "image/png", info.MimeType)
	require.NotNil(t, info.WidthPx)
	require.Equal(t, 640, *info.WidthPx)
	require.Equal(t, 480, *info.HeightPx)
}

func TestValidateFilePDF(t *testing.T) {
	pdf := []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")
	info, err := ValidateFile(pdf, 1<<20)
	require.NoError(t, err)
	require.Equal(t, "application/pdf", info.MimeType)
	require.Nil(t, info.WidthPx)
}

func TestValidateFileSVG(t *testing.T) {
	svg := []byte(`<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg" width="10" height="10"></svg>`)
	info, err := ValidateFile(svg, 1<<20)
	require.NoError(t, err)
	require.Equal(t, "image/svg+xml", info.MimeType)
}

func TestValidateFileRejections(t *testing.T) {
	_, err := ValidateFile([]byte("just some text, not a design"), 1<<20)
	require.ErrorIs(t, err, ErrUnsupportedType)

	_, err = ValidateFile(nil, 1<<20)
	require.ErrorIs(t, err, ErrUnsupportedType)

	_, err = ValidateFile(pngBytes(t, 10, 10), 16)
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestMinPixels(t *testing.T) {
	require.Equal(t, 296, MinPixels(25))
	require.Equal(t, 1182, MinPixels(100))
	require.Equal(t, 0, MinPixels(0))
}

func TestCheckResolution(t *testing.T) {
	w, h := 1200, 600
	info := FileInfo{WidthPx: &w, HeightPx: &h}

	require.NoError(t, CheckResolution(info, 100, 50))
	require.ErrorIs(t, CheckResolution(info, 200, 50), ErrLowResolution)
	require.ErrorIs(t, CheckResolution(info, 100, 100), ErrLowResolution)

	// Vector designs carry no pixel dimensions and always pass.
	require.NoError(t, CheckResolution(FileInfo{}, 500, 500))
}

func TestDiskStorageRoundTrip(t *testing.T) {
	d := &DiskStorage{Root: t.TempDir()}
	ctx := context.Background()

	require.NoError(t, d.Save(ctx, "ab/design.png", bytes.NewReader([]byte("blob"))))

	rc, err := d.Open(ctx, "ab/design.png")
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = buf.ReadFrom(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "blob", buf.String())

	require.NoError(t, d.Delete(ctx, "ab/design.png"))
	require.NoError(t, d.Delete(ctx, "ab/design.png"))

	require.Error(t, d.Save(ctx, "../escape", bytes.NewReader(nil)))
	_, err = d.Open(ctx, "../escape")
	require.Error(t, err)
}
