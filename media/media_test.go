package media

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 120, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProcessorNormalizeFitsAndEncodesJPEG(t *testing.T) {
	p := NewProcessor(nil, ImageProcessingOptions{MaxDimension: 64, Quality: 85}, nil)

	out, err := p.Normalize(testPNG(t, 200, 100))
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", ContentType(out))

	img, err := imaging.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 32, img.Bounds().Dy())
}

func TestProcessorNormalizeRejectsGarbage(t *testing.T) {
	p := NewProcessor(nil, DefaultImageOptions, nil)
	_, err := p.Normalize([]byte("not an image"))
	assert.Error(t, err)
}

func TestProcessorThumbnailIsCached(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), map[AssetType]string{AssetTypeThumbnail: "thumbnails"}, nil)
	require.NoError(t, err)
	p := NewProcessor(store, DefaultImageOptions, nil)

	src := testPNG(t, 300, 150)
	thumb, err := p.Thumbnail("frame-1", src, 50)
	require.NoError(t, err)

	img, err := imaging.Decode(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, 50, img.Bounds().Dx())

	dir, err := store.EnsureDir(AssetTypeThumbnail)
	require.NoError(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "frame-1_"))

	again, err := p.Thumbnail("frame-1", src, 50)
	require.NoError(t, err)
	assert.Equal(t, thumb, again)
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "png", Extension(testPNG(t, 4, 4)))
	assert.Equal(t, "jpg", Extension([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0}))
	assert.Equal(t, "webp", Extension([]byte("RIFF\x00\x00\x00\x00WEBPVP8 ")))
	assert.Equal(t, "jpg", Extension([]byte("????")))
}

func TestLocalStorageSaveOpenRemove(t *testing.T) {
	base := t.TempDir()
	store, err := NewLocalStorage(base, map[AssetType]string{AssetTypeArchive: "archives"}, nil)
	require.NoError(t, err)

	rel, err := store.Save(AssetTypeArchive, "", "a.zip", strings.NewReader("zipdata"))
	require.NoError(t, err)
	assert.Equal(t, "archives/a.zip", rel)
	_, err = store.Save(AssetTypeArchive, "", "b.zip", strings.NewReader("other"))
	require.NoError(t, err)

	rc, err := store.Open(AssetTypeArchive, "a.zip")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "zipdata", string(data))

	n, err := store.Remove(AssetTypeArchive, "a.")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = store.Open(AssetTypeArchive, "a.zip")
	assert.ErrorIs(t, err, ErrAssetNotFound)
	_, err = os.Stat(filepath.Join(base, "archives", "b.zip"))
	assert.NoError(t, err)

	_, err = store.Remove(AssetTypeArchive, "")
	assert.Error(t, err)
	n, err = store.Remove(AssetTypeThumbnail, "a")
	require.NoError(t, err, "a missing directory removes nothing")
	assert.Zero(t, n)

	_, err = store.Save(AssetTypeArchive, "", "../escape.zip", strings.NewReader("x"))
	assert.Error(t, err)
	_, err = store.Save(AssetTypeArchive, "../../etc", "x.zip", strings.NewReader("x"))
	assert.Error(t, err)
	_, err = store.Open(AssetTypeArchive, "../../etc/passwd")
	assert.Error(t, err)
}

func TestProcessorThumbnailReplacesStaleEntries(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), map[AssetType]string{AssetTypeThumbnail: "thumbnails"}, nil)
	require.NoError(t, err)
	p := NewProcessor(store, DefaultImageOptions, nil)

	_, err = p.Thumbnail("frame-1", testPNG(t, 300, 150), 50)
	require.NoError(t, err)
	_, err = p.Thumbnail("frame-10", testPNG(t, 40, 40), 50)
	require.NoError(t, err)
	// an enhanced image has a new digest
	_, err = p.Thumbnail("frame-1", testPNG(t, 200, 200), 50)
	require.NoError(t, err)

	dir, err := store.EnsureDir(AssetTypeThumbnail)
	require.NoError(t, err)
	names := func() []string {
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		var out []string
		for _, e := range entries {
			out = append(out, e.Name()[:strings.IndexByte(e.Name(), '_')])
		}
		return out
	}
	assert.ElementsMatch(t, []string{"frame-1", "frame-10"}, names())

	p.DropThumbnails("frame-1")
	assert.Equal(t, []string{"frame-10"}, names())

	var none *Processor
	none.DropThumbnails("frame-10")
}

func TestSeekErrorMatchesSentinel(t *testing.T) {
	cause := errors.New("exit status 1")
	err := error(&SeekError{Timestamp: 4.5, Err: cause})
	assert.ErrorIs(t, err, ErrMediaSeek)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "4.50s")
}

func TestNewFFmpegSourceRequiresFile(t *testing.T) {
	_, err := NewFFmpegSource(filepath.Join(t.TempDir(), "missing.mp4"), FFmpegOptions{}, nil, nil)
	assert.Error(t, err)
}
