package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/camden-git/framesys/media"
	"github.com/camden-git/framesys/metrics"
	"github.com/camden-git/framesys/models"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	ErrTargetUnavailable = errors.New("export target is not configured")
	ErrUnknownTarget     = errors.New("unknown export target")
)

// Target names
const (
	TargetLocal       = "local"
	TargetMinio       = "minio"
	TargetGoogleDrive = "googleDrive"
	TargetDropbox     = "dropbox"
)

// Target receives a finished archive
type Target interface {
	Name() string
	// Deliver uploads size bytes from r under objectName and returns where it went
	Deliver(ctx context.Context, objectName string, r io.Reader, size int64) (string, error)
}

// LocalTarget keeps archives in the media store's archives directory
type LocalTarget struct {
	store media.Store
}

func NewLocalTarget(store media.Store) *LocalTarget {
	return &LocalTarget{store: store}
}

func (t *LocalTarget) Name() string { return TargetLocal }

func (t *LocalTarget) Deliver(_ context.Context, objectName string, r io.Reader, _ int64) (string, error) {
	rel, err := t.store.Save(media.AssetTypeArchive, "", objectName, r)
	if err != nil {
		return "", fmt.Errorf("failed to store archive %s: %w", objectName, err)
	}
	return rel, nil
}

// MinioConfig configures an S3-compatible bucket target
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// MinioTarget uploads archives to an S3-compatible bucket
type MinioTarget struct {
	client *miniogo.Client
	bucket string
}

func NewMinioTarget(cfg MinioConfig) (*MinioTarget, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioTarget{client: client, bucket: cfg.Bucket}, nil
}

func (t *MinioTarget) Name() string { return TargetMinio }

// EnsureBucket creates the bucket when it is missing
func (t *MinioTarget) EnsureBucket(ctx context.Context) error {
	exists, err := t.client.BucketExists(ctx, t.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", t.bucket, err)
	}
	if !exists {
		if err := t.client.MakeBucket(ctx, t.bucket, miniogo.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", t.bucket, err)
		}
	}
	return nil
}

func (t *MinioTarget) Deliver(ctx context.Context, objectName string, r io.Reader, size int64) (string, error) {
	_, err := t.client.PutObject(ctx, t.bucket, objectName, r, size, miniogo.PutObjectOptions{
		ContentType: "application/zip",
	})
	if err != nil {
		return "", fmt.Errorf("upload zip: %w", err)
	}
	return t.bucket + "/" + objectName, nil
}

// UnavailableTarget stands in for a cloud provider with no credentials wired
type UnavailableTarget struct {
	name string
}

func NewUnavailableTarget(name string) *UnavailableTarget {
	return &UnavailableTarget{name: name}
}

func (t *UnavailableTarget) Name() string { return t.name }

func (t *UnavailableTarget) Deliver(context.Context, string, io.Reader, int64) (string, error) {
	return "", fmt.Errorf("%w: %s", ErrTargetUnavailable, t.name)
}

// Delivery reports where an export ended up
type Delivery struct {
	Target   string    `json:"target"`
	Location string    `json:"location"`
	Size     int64     `json:"size"`
	Manifest *Manifest `json:"manifest"`
}

// Exporter packs archives in a staging directory and hands them to a target
type Exporter struct {
	packager   *Packager
	stagingDir string
	targets    map[string]Target
	logger     *slog.Logger
}

func NewExporter(packager *Packager, stagingDir string, logger *slog.Logger, targets ...Target) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Exporter{
		packager:   packager,
		stagingDir: stagingDir,
		targets:    make(map[string]Target, len(targets)),
		logger:     logger.With("component", "export"),
	}
	for _, t := range targets {
		e.targets[t.Name()] = t
	}
	return e
}

// Targets lists the registered target names
func (e *Exporter) Targets() []string {
	names := make([]string, 0, len(e.targets))
	for name := range e.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Export builds the archive for frames and delivers it to the named target.
// The staged file is always removed afterwards.
func (e *Exporter) Export(ctx context.Context, targetName, projectName string, frames []models.Frame, onProgress ProgressFunc) (delivery *Delivery, err error) {
	defer func() {
		result := metrics.ResultSuccess
		if err != nil {
			result = metrics.ResultFailure
		}
		metrics.ExportsTotal.WithLabelValues(targetName, result).Inc()
	}()

	target, ok := e.targets[targetName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, targetName)
	}

	archive, err := e.packager.CreateArchive(ctx, e.stagingDir, projectName, frames, onProgress)
	if err != nil {
		return nil, err
	}
	defer os.Remove(archive.Path)

	f, err := os.Open(archive.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", archive.Path, err)
	}
	defer f.Close()

	location, err := target.Deliver(ctx, filepath.Base(archive.Path), f, archive.Size)
	if err != nil {
		e.logger.Warn("export delivery failed", "target", targetName, "error", err)
		return nil, err
	}

	e.logger.Info("export delivered", "target", targetName, "location", location, "bytes", archive.Size)
	return &Delivery{Target: targetName, Location: location, Size: archive.Size, Manifest: archive.Manifest}, nil
}
