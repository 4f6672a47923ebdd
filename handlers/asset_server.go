package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// AssetServer creates a handler to serve static files from a specific base directory.
// it expects the request path to contain the relative path within that base directory.
// example Usage:
//
//	r.Get("/archives/*", AssetServer(cfg.MediaStoragePath, "archives", logger))
//
// where the route prefix matches the subDir.
func AssetServer(baseStoragePath, subDir string, logger *slog.Logger) (http.HandlerFunc, error) {
	fullAssetDirPath := filepath.Clean(filepath.Join(baseStoragePath, subDir))
	if !strings.HasPrefix(fullAssetDirPath, filepath.Clean(baseStoragePath)+string(filepath.Separator)) {
		return nil, fmt.Errorf("asset subdirectory '%s' resolves outside base storage path '%s'", subDir, baseStoragePath)
	}
	logger = logger.With("component", "assets", "dir", fullAssetDirPath)

	return func(w http.ResponseWriter, r *http.Request) {
		// e.g., for route /archives/* and request /api/archives/x.zip, extract "x.zip"
		routePrefix := "/api/" + subDir + "/"
		relativePath := strings.TrimPrefix(r.URL.Path, routePrefix)

		if relativePath == "" || strings.Contains(relativePath, "..") {
			http.Error(w, "Invalid asset path", http.StatusBadRequest)
			return
		}

		cleanedAssetPath := filepath.Clean(filepath.Join(fullAssetDirPath, relativePath))
		if !strings.HasPrefix(cleanedAssetPath, fullAssetDirPath+string(filepath.Separator)) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			logger.Warn("attempted asset access outside designated directory", "request", r.URL.Path, "resolved", cleanedAssetPath)
			return
		}

		if _, err := os.Stat(cleanedAssetPath); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		} else if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			logger.Error("error stating asset file", "path", cleanedAssetPath, "error", err)
			return
		}

		cacheDuration := 24 * time.Hour
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(cacheDuration.Seconds())))
		w.Header().Set("Expires", time.Now().Add(cacheDuration).Format(http.TimeFormat))

		http.ServeFile(w, r, cleanedAssetPath)
	}, nil
}
