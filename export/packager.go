// Package export packs keeper frames and their manifest into a zip archive and
// delivers archives to storage targets.
package export

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/camden-git/framesys/media"
	"github.com/camden-git/framesys/models"
	"github.com/google/uuid"
)

// ErrNoKeepers is returned when the frame set holds no keeper to export
var ErrNoKeepers = errors.New("no keeper frames to export")

const manifestName = "manifest.json"

// ManifestEntry describes one exported, analyzed frame
type ManifestEntry struct {
	Filename  string           `json:"filename"`
	Timestamp float64          `json:"timestamp"`
	Analysis  *models.Analysis `json:"analysis"`
}

// Manifest is written to the archive as manifest.json
type Manifest struct {
	ProjectName string          `json:"projectName"`
	ExportDate  string          `json:"exportDate"`
	Frames      []ManifestEntry `json:"frames"`
}

// ProgressFunc receives the cumulative percentage after each packed frame
type ProgressFunc func(percent float64)

// Packager builds export archives
type Packager struct {
	now    func() time.Time
	logger *slog.Logger
}

func NewPackager(logger *slog.Logger) *Packager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Packager{now: time.Now, logger: logger.With("component", "export")}
}

// WithClock overrides the clock used for the export date and entry times
func (p *Packager) WithClock(now func() time.Time) *Packager {
	p.now = now
	return p
}

var whitespace = regexp.MustCompile(`\s+`)

// ArchiveName is the download name offered for a project's library
func ArchiveName(projectName string) string {
	return whitespace.ReplaceAllString(projectName, "_") + "_library.zip"
}

// FrameFilename names the i-th exported frame (1-based)
func FrameFilename(index int, frame *models.Frame, image []byte) string {
	return fmt.Sprintf("frame_%d_%.2fs.%s", index, frame.Timestamp, media.Extension(image))
}

// Keepers filters frames to keepers, keeping their order
func Keepers(frames []models.Frame) []models.Frame {
	out := make([]models.Frame, 0, len(frames))
	for _, f := range frames {
		if f.IsKeeper {
			out = append(out, f)
		}
	}
	return out
}

// Write streams a zip of the keeper frames plus manifest.json to w
func (p *Packager) Write(ctx context.Context, w io.Writer, projectName string, frames []models.Frame, onProgress ProgressFunc) (*Manifest, error) {
	keepers := Keepers(frames)
	if len(keepers) == 0 {
		return nil, ErrNoKeepers
	}

	now := p.now()
	manifest := &Manifest{
		ProjectName: projectName,
		ExportDate:  now.UTC().Format(time.RFC3339),
		Frames:      []ManifestEntry{},
	}

	zw := zip.NewWriter(w)
	for i := range keepers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frame := &keepers[i]
		image := frame.DisplayImage()
		filename := FrameFilename(i+1, frame, image)

		if err := addBytesToZip(zw, filename, image, now); err != nil {
			return nil, err
		}
		if frame.Analysis != nil {
			manifest.Frames = append(manifest.Frames, ManifestEntry{
				Filename:  filename,
				Timestamp: frame.Timestamp,
				Analysis:  frame.Analysis.Clone(),
			})
		}
		if onProgress != nil {
			onProgress(float64(i+1) / float64(len(keepers)) * 100)
		}
	}

	body, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := addBytesToZip(zw, manifestName, body, now); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize zip writer: %w", err)
	}

	p.logger.Info("packed export", "project", projectName, "frames", len(keepers), "analyzed", len(manifest.Frames))
	return manifest, nil
}

func addBytesToZip(zw *zip.Writer, name string, data []byte, modified time.Time) error {
	header := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	}
	writer, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create zip entry %s: %w", name, err)
	}
	if _, err := writer.Write(data); err != nil {
		return fmt.Errorf("failed to write zip entry %s: %w", name, err)
	}
	return nil
}

// Archive is a zip written to disk
type Archive struct {
	Path     string
	Size     int64
	Manifest *Manifest
}

// CreateArchive writes the export zip into dir as archive_{unix}_{id}.zip. The
// file is removed again if packing fails.
func (p *Packager) CreateArchive(ctx context.Context, dir, projectName string, frames []models.Frame, onProgress ProgressFunc) (*Archive, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory %s: %w", dir, err)
	}

	zipFilename := fmt.Sprintf("archive_%d_%s.zip", p.now().Unix(), uuid.NewString()[:8])
	zipFilePath := filepath.Join(dir, zipFilename)

	zipFile, err := os.Create(zipFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create zip file %s: %w", zipFilePath, err)
	}

	manifest, err := p.Write(ctx, zipFile, projectName, frames, onProgress)
	if closeErr := zipFile.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close zip file %s: %w", zipFilePath, closeErr)
	}
	if err != nil {
		os.Remove(zipFilePath)
		return nil, err
	}

	info, err := os.Stat(zipFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat created zip file %s: %w", zipFilePath, err)
	}

	p.logger.Info("created archive", "path", zipFilePath, "bytes", info.Size())
	return &Archive{Path: zipFilePath, Size: info.Size(), Manifest: manifest}, nil
}
