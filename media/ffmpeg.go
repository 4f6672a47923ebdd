package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrMediaSeek marks a failure to resolve or decode one timestamp
	ErrMediaSeek = errors.New("media seek failed")
	// ErrMediaMetadata marks a failure to read duration metadata
	ErrMediaMetadata = errors.New("media metadata unavailable")
)

// Source is an opened media handle that can report its duration and grab stills
type Source interface {
	Duration(ctx context.Context) (float64, error)
	Grab(ctx context.Context, ts float64) ([]byte, error)
}

// SeekError is a per-timestamp grab failure. The scan skips the timestamp.
type SeekError struct {
	Timestamp float64
	Err       error
}

func (e *SeekError) Error() string {
	return fmt.Sprintf("grab at %.2fs: %v", e.Timestamp, e.Err)
}

func (e *SeekError) Unwrap() []error {
	return []error{ErrMediaSeek, e.Err}
}

// FFmpegOptions configures the external binaries used by FFmpegSource
type FFmpegOptions struct {
	FFmpegPath  string
	FFprobePath string
	GrabTimeout time.Duration
}

// FFmpegSource grabs stills from a local video file through ffmpeg
type FFmpegSource struct {
	path      string
	opts      FFmpegOptions
	processor *Processor
	logger    *slog.Logger
}

// NewFFmpegSource binds a media file. processor may be nil to keep raw ffmpeg output.
func NewFFmpegSource(path string, opts FFmpegOptions, processor *Processor, logger *slog.Logger) (*FFmpegSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("media file not accessible at '%s': %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("media path '%s' is a directory", path)
	}
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.FFprobePath == "" {
		opts.FFprobePath = "ffprobe"
	}
	if opts.GrabTimeout <= 0 {
		opts.GrabTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegSource{
		path:      path,
		opts:      opts,
		processor: processor,
		logger:    logger.With("component", "media.ffmpeg", "media", path),
	}, nil
}

// Path returns the bound media file
func (s *FFmpegSource) Path() string {
	return s.path
}

// Duration reads the container duration in seconds
func (s *FFmpegSource) Duration(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.GrabTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.opts.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		s.path,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("%w: ffprobe: %v", ErrMediaMetadata, err)
	}

	durationStr := strings.TrimSpace(string(output))
	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil || duration <= 0 {
		return 0, fmt.Errorf("%w: unusable duration %q", ErrMediaMetadata, durationStr)
	}
	return duration, nil
}

// Grab seeks to ts and returns one encoded still. A missing file or binary is
// returned as a plain error; anything the decoder rejects is a *SeekError.
func (s *FFmpegSource) Grab(ctx context.Context, ts float64) ([]byte, error) {
	if _, err := os.Stat(s.path); err != nil {
		return nil, fmt.Errorf("media file no longer readable: %w", err)
	}

	grabCtx, cancel := context.WithTimeout(ctx, s.opts.GrabTimeout)
	defer cancel()

	cmd := exec.CommandContext(grabCtx, s.opts.FFmpegPath,
		"-hide_banner",
		"-loglevel", "error",
		"-ss", strconv.FormatFloat(ts, 'f', 3, 64),
		"-i", s.path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-",
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("ffmpeg binary not available: %w", err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Debug("ffmpeg grab failed", "timestamp", ts, "stderr", strings.TrimSpace(stderr.String()))
		return nil, &SeekError{Timestamp: ts, Err: err}
	}
	if len(output) == 0 {
		return nil, &SeekError{Timestamp: ts, Err: errors.New("decoder produced no frame")}
	}

	if s.processor == nil {
		return output, nil
	}
	normalized, err := s.processor.Normalize(output)
	if err != nil {
		return nil, &SeekError{Timestamp: ts, Err: err}
	}
	return normalized, nil
}
