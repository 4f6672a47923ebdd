package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/camden-git/framesys/media"
	"github.com/camden-git/framesys/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
	pngBytes  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
)

func testFrames() []models.Frame {
	return []models.Frame{
		{ID: "a", ProjectID: "p", Timestamp: 1.5, ImageData: jpegBytes, IsKeeper: true,
			Analysis: &models.Analysis{Quality: models.QualityGood, ShotType: models.ShotCandid, CompositionScore: 70}},
		{ID: "b", ProjectID: "p", Timestamp: 3, ImageData: jpegBytes},
		{ID: "c", ProjectID: "p", Timestamp: 12.346, ImageData: jpegBytes, IsKeeper: true,
			IsEnhanced: true, EnhancedImageData: pngBytes},
	}
}

func readZip(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := map[string][]byte{}
	for _, f := range zr.File {
		assert.Equal(t, zip.Deflate, f.Method)
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		out[f.Name] = body
	}
	return out
}

func fixedPackager() *Packager {
	return NewPackager(nil).WithClock(func() time.Time {
		return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	})
}

func TestWritePacksKeepersAndManifest(t *testing.T) {
	var buf bytes.Buffer
	var progress []float64

	manifest, err := fixedPackager().Write(context.Background(), &buf, "My Wedding", testFrames(), func(p float64) {
		progress = append(progress, p)
	})
	require.NoError(t, err)

	entries := readZip(t, buf.Bytes())
	require.Len(t, entries, 3)
	assert.Equal(t, jpegBytes, entries["frame_1_1.50s.jpg"])
	assert.Equal(t, pngBytes, entries["frame_2_12.35s.png"])

	var decoded Manifest
	require.NoError(t, json.Unmarshal(entries["manifest.json"], &decoded))
	assert.Equal(t, "My Wedding", decoded.ProjectName)
	assert.Equal(t, "2024-05-01T10:00:00Z", decoded.ExportDate)
	require.Len(t, decoded.Frames, 1)
	assert.Equal(t, "frame_1_1.50s.jpg", decoded.Frames[0].Filename)
	assert.Equal(t, 1.5, decoded.Frames[0].Timestamp)
	assert.Equal(t, models.QualityGood, decoded.Frames[0].Analysis.Quality)
	assert.Len(t, manifest.Frames, 1)

	assert.Equal(t, []float64{50, 100}, progress)
}

func TestWriteWithoutKeepers(t *testing.T) {
	var buf bytes.Buffer
	frames := testFrames()
	for i := range frames {
		frames[i].IsKeeper = false
	}
	_, err := fixedPackager().Write(context.Background(), &buf, "x", frames, nil)
	assert.ErrorIs(t, err, ErrNoKeepers)
	assert.Zero(t, buf.Len())
}

func TestArchiveName(t *testing.T) {
	assert.Equal(t, "My_Summer__Trip_library.zip", ArchiveName("My Summer\t\tTrip"))
	assert.Equal(t, "solo_library.zip", ArchiveName("solo"))
}

func TestCreateArchive(t *testing.T) {
	dir := t.TempDir()
	archive, err := fixedPackager().CreateArchive(context.Background(), dir, "p", testFrames(), nil)
	require.NoError(t, err)
	assert.Regexp(t, `archive_\d+_[0-9a-f-]{8}\.zip$`, archive.Path)

	data, err := os.ReadFile(archive.Path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), archive.Size)
	assert.Len(t, readZip(t, data), 3)
}

func TestCreateArchiveRemovesFileOnFailure(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fixedPackager().CreateArchive(ctx, dir, "p", testFrames(), nil)
	assert.ErrorIs(t, err, context.Canceled)

	left, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestExporterLocalTarget(t *testing.T) {
	base := t.TempDir()
	store, err := media.NewLocalStorage(base, map[media.AssetType]string{media.AssetTypeArchive: "archives"}, nil)
	require.NoError(t, err)
	staging := t.TempDir()

	exporter := NewExporter(fixedPackager(), staging, nil,
		NewLocalTarget(store), NewUnavailableTarget(TargetDropbox))
	assert.ElementsMatch(t, []string{TargetLocal, TargetDropbox}, exporter.Targets())

	delivery, err := exporter.Export(context.Background(), TargetLocal, "p", testFrames(), nil)
	require.NoError(t, err)
	assert.Equal(t, TargetLocal, delivery.Target)
	assert.Len(t, delivery.Manifest.Frames, 1)

	assert.Equal(t, "archives/"+filepath.Base(delivery.Location), delivery.Location)
	full := filepath.Join(base, filepath.FromSlash(delivery.Location))
	info, err := os.Stat(full)
	require.NoError(t, err)
	assert.Equal(t, delivery.Size, info.Size())
	assert.Equal(t, filepath.Join(base, "archives"), filepath.Dir(full))

	staged, err := os.ReadDir(staging)
	require.NoError(t, err)
	assert.Empty(t, staged)
}

func TestExporterUnavailableAndUnknownTargets(t *testing.T) {
	staging := t.TempDir()
	exporter := NewExporter(fixedPackager(), staging, nil, NewUnavailableTarget(TargetGoogleDrive))

	_, err := exporter.Export(context.Background(), TargetGoogleDrive, "p", testFrames(), nil)
	assert.ErrorIs(t, err, ErrTargetUnavailable)

	_, err = exporter.Export(context.Background(), "ftp", "p", testFrames(), nil)
	assert.ErrorIs(t, err, ErrUnknownTarget)

	staged, err := os.ReadDir(staging)
	require.NoError(t, err)
	assert.Empty(t, staged)
}
