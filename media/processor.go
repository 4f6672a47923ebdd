package media

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	ThumbnailJpegQuality   = 90
	ThumbnailFileExtension = ".jpg"
)

// Processor handles still transformations: normalising grabbed frames and
// producing thumbnails. Thumbnails are cached through the Store when one is set.
type Processor struct {
	store  Store
	opts   ImageProcessingOptions
	logger *slog.Logger
}

func NewProcessor(store Store, opts ImageProcessingOptions, logger *slog.Logger) *Processor {
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultImageOptions.Quality
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{store: store, opts: opts, logger: logger.With("component", "media.processor")}
}

// Normalize decodes a still, fits it inside the configured max dimension and
// re-encodes it as JPEG.
func (p *Processor) Normalize(data []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode still: %w", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("invalid still dimensions: %dx%d", bounds.Dx(), bounds.Dy())
	}

	limit := p.opts.MaxDimension
	if limit > 0 && (bounds.Dx() > limit || bounds.Dy() > limit) {
		img = imaging.Fit(img, limit, limit, imaging.Lanczos)
	} else if format == "jpeg" {
		return data, nil
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(p.opts.Quality)); err != nil {
		return nil, fmt.Errorf("failed to encode still: %w", err)
	}
	return buf.Bytes(), nil
}

// Thumbnail returns a JPEG whose longest side is at most maxSize. Results are
// keyed by frame id and a digest of the source bytes, so an enhanced image gets
// a fresh entry and the frame's older entries are dropped.
func (p *Processor) Thumbnail(frameID string, data []byte, maxSize int) ([]byte, error) {
	sum := sha1.Sum(data)
	filename := fmt.Sprintf("%s%s%s", thumbnailPrefix(frameID), hex.EncodeToString(sum[:4]), ThumbnailFileExtension)

	if p.store != nil {
		if rc, err := p.store.Open(AssetTypeThumbnail, filename); err == nil {
			cached, readErr := io.ReadAll(rc)
			rc.Close()
			if readErr == nil {
				return cached, nil
			}
		} else if !errors.Is(err, ErrAssetNotFound) {
			p.logger.Warn("failed to read cached thumbnail", "frame_id", frameID, "error", err)
		}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image for thumbnail: %w", err)
	}
	thumb := imaging.Fit(img, maxSize, maxSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(ThumbnailJpegQuality)); err != nil {
		return nil, fmt.Errorf("thumbnail encoding failed: %w", err)
	}

	if p.store != nil {
		p.DropThumbnails(frameID)
		if _, err := p.store.Save(AssetTypeThumbnail, "", filename, bytes.NewReader(buf.Bytes())); err != nil {
			p.logger.Warn("failed to cache thumbnail", "frame_id", frameID, "error", err)
		}
	}
	return buf.Bytes(), nil
}

// DropThumbnails removes every cached thumbnail of a frame
func (p *Processor) DropThumbnails(frameID string) {
	if p == nil || p.store == nil || frameID == "" {
		return
	}
	if _, err := p.store.Remove(AssetTypeThumbnail, thumbnailPrefix(frameID)); err != nil {
		p.logger.Warn("failed to drop cached thumbnails", "frame_id", frameID, "error", err)
	}
}

func thumbnailPrefix(frameID string) string { return frameID + "_" }

// ContentType sniffs the MIME type of an encoded image
func ContentType(data []byte) string {
	return http.DetectContentType(data)
}

// Extension maps encoded image bytes to a file extension, defaulting to jpg
func Extension(data []byte) string {
	switch ContentType(data) {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	}
	return "jpg"
}
