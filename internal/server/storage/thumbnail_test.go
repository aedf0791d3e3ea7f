package storage

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/jpeg"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeThumbnail_KeepsAspect(t *testing.T) {
	out, err := MakeThumbnail(bytes.NewReader(pngImage(t, 300, 900)))
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	size := img.Bounds().Size()
	assert.Equal(t, 400, size.Y)
	assert.InDelta(t, 133, size.X, 1)
}

func TestMakeThumbnail_SmallImageNotUpscaled(t *testing.T) {
	out, err := MakeThumbnail(bytes.NewReader(pngImage(t, 40, 20)))
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Width)
	assert.Equal(t, 20, cfg.Height)
}

func TestMakeThumbnail_NotAnImage(t *testing.T) {
	_, err := MakeThumbnail(bytes.NewReader([]byte("nope")))
	assert.Error(t, err)
}

func TestOrient(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 30, 10))
	assert.Equal(t, image.Pt(10, 30), orient(img, 6).Bounds().Size())
	assert.Equal(t, image.Pt(10, 30), orient(img, 8).Bounds().Size())
	assert.Equal(t, image.Pt(30, 10), orient(img, 3).Bounds().Size())
	assert.Equal(t, image.Pt(30, 10), orient(img, 1).Bounds().Size())
}

// pngHeader returns a PNG signature and IHDR chunk announcing a w x h RGB
// image, with no pixel data after it.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8
	ihdr[9] = 2

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.WriteString("IHDR")
	buf.Write(ihdr)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(append([]byte("IHDR"), ihdr...)))
	return buf.Bytes()
}

type zeros struct{}

func (zeros) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func TestMakeThumbnail_RefusesHugeDimensions(t *testing.T) {
	src := &countingReader{r: io.MultiReader(bytes.NewReader(pngHeader(50_000, 50_000)), zeros{})}

	_, err := MakeThumbnail(src)
	assert.ErrorIs(t, err, errImageTooLarge)
	assert.LessOrEqual(t, src.n, int64(thumbnailHeaderLen))
}

func TestMakeThumbnail_ReadsHeaderOfShortImage(t *testing.T) {
	_, err := MakeThumbnail(bytes.NewReader(pngHeader(10, 10)))
	require.Error(t, err)
	assert.NotErrorIs(t, err, errImageTooLarge)
}
