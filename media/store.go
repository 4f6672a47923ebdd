package media

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrAssetNotFound is returned by Open for a missing asset
var ErrAssetNotFound = errors.New("asset not found")

// Store keeps generated assets (thumbnails, archives) grouped by asset type.
// Names are plain file names inside the asset type's directory.
type Store interface {
	// Save writes data under name and returns the slash-separated path relative
	// to the store root
	Save(assetType AssetType, relativeDirHint string, name string, data io.Reader) (string, error)
	// Open reads a stored asset
	Open(assetType AssetType, name string) (io.ReadCloser, error)
	// Remove deletes every asset whose name starts with prefix
	Remove(assetType AssetType, prefix string) (int, error)
}

// LocalStorage is a Store rooted at a directory on the local filesystem
type LocalStorage struct {
	root   string
	dirs   map[AssetType]string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewLocalStorage roots a store at basePath. subDirs names the directory of
// each asset type; unlisted types use their own name.
func NewLocalStorage(basePath string, subDirs map[AssetType]string, logger *slog.Logger) (*LocalStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	root, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid media storage path %q: %w", basePath, err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media storage directory %q: %w", root, err)
	}

	ls := &LocalStorage{root: root, dirs: make(map[AssetType]string, len(subDirs)), logger: logger.With("component", "media.store")}
	for assetType, sub := range subDirs {
		dir, err := ls.within(root, sub)
		if err != nil {
			return nil, fmt.Errorf("invalid directory for %s assets: %w", assetType, err)
		}
		ls.dirs[assetType] = dir
	}
	ls.logger.Info("initialized local storage", "path", root)
	return ls, nil
}

// within joins rel onto base and rejects results that leave base
func (ls *LocalStorage) within(base, rel string) (string, error) {
	joined := filepath.Join(base, rel)
	if joined != base && !strings.HasPrefix(joined, base+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes %q", rel, base)
	}
	return joined, nil
}

func (ls *LocalStorage) dir(assetType AssetType) (string, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if dir, ok := ls.dirs[assetType]; ok {
		return dir, nil
	}
	dir, err := ls.within(ls.root, string(assetType))
	if err != nil {
		return "", err
	}
	ls.dirs[assetType] = dir
	return dir, nil
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return fmt.Errorf("invalid asset name %q", name)
	}
	return nil
}

func (ls *LocalStorage) assetPath(assetType AssetType, name string) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	dir, err := ls.dir(assetType)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// EnsureDir creates the asset type's directory and returns its absolute path
func (ls *LocalStorage) EnsureDir(assetType AssetType) (string, error) {
	dir, err := ls.dir(assetType)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", assetType, err)
	}
	return dir, nil
}

// Save writes through a temp file and a rename, so readers never see a
// partial asset.
func (ls *LocalStorage) Save(assetType AssetType, relativeDirHint string, name string, data io.Reader) (string, error) {
	dir, err := ls.EnsureDir(assetType)
	if err != nil {
		return "", err
	}
	if relativeDirHint != "" {
		if dir, err = ls.within(dir, relativeDirHint); err != nil {
			return "", err
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create %s directory: %w", assetType, err)
		}
	}
	if err := validName(name); err != nil {
		return "", err
	}

	dest := filepath.Join(dir, name)
	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", name, err)
	}
	_, err = io.Copy(out, data)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp, dest)
	}
	if err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}

	rel, err := filepath.Rel(ls.root, dest)
	if err != nil {
		return "", fmt.Errorf("failed to relativise %s: %w", dest, err)
	}
	ls.logger.Debug("saved asset", "asset_type", assetType, "path", rel)
	return filepath.ToSlash(rel), nil
}

func (ls *LocalStorage) Open(assetType AssetType, name string) (io.ReadCloser, error) {
	path, err := ls.assetPath(assetType, name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%s", ErrAssetNotFound, assetType, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return f, nil
}

// Remove skips in-progress ".part" files. A missing directory removes nothing.
func (ls *LocalStorage) Remove(assetType AssetType, prefix string) (int, error) {
	if prefix == "" {
		return 0, errors.New("refusing to remove assets without a name prefix")
	}
	dir, err := ls.dir(assetType)
	if err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to list %s assets: %w", assetType, err)
	}

	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || strings.HasSuffix(name, ".part") {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("failed to remove %s: %w", name, err)
		}
		removed++
	}
	if removed > 0 {
		ls.logger.Debug("removed assets", "asset_type", assetType, "prefix", prefix, "count", removed)
	}
	return removed, nil
}
