package storage

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

const (
	thumbnailSize    = 400
	thumbnailQuality = 80

	// thumbnailHeaderLen is the prefix inspected for dimensions and EXIF.
	thumbnailHeaderLen = 256 << 10
	// maxThumbnailPixels bounds the decoded bitmap (about 160MB of RGBA).
	maxThumbnailPixels = 40_000_000
)

// maxThumbnailSource is the largest original a preview is rendered from.
var maxThumbnailSource int64 = 64 << 20

var errImageTooLarge = errors.New("image too large for a preview")

// MakeThumbnail decodes an image, applies its EXIF orientation and returns a
// JPEG that fits into thumbnailSize x thumbnailSize. Dimensions are checked
// on the header before any pixel data is decoded.
func MakeThumbnail(r io.Reader) ([]byte, error) {
	br := bufio.NewReaderSize(r, thumbnailHeaderLen)
	head, err := br.Peek(thumbnailHeaderLen)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(head))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxThumbnailPixels {
		return nil, fmt.Errorf("%dx%d: %w", cfg.Width, cfg.Height, errImageTooLarge)
	}
	orientation := exifOrientation(head)

	img, _, err := image.Decode(br)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	img = orient(img, orientation)

	thumb := imaging.Fit(img, thumbnailSize, thumbnailSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: thumbnailQuality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// exifOrientation returns the EXIF orientation tag, or 1 when absent.
func exifOrientation(raw []byte) int {
	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return v
}

func orient(img image.Image, o int) image.Image {
	switch o {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	}
	return img
}
