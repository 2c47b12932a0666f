package handlers

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

// AssetServer creates a handler to serve static files from a specific base directory.
// It expects the route wildcard to hold the relative path within that directory.
// example Usage:
//
//	r.Get("/preview/*", AssetServer(cfg.StorageRoot, "preview", logger))
//
// Files under these directories are replaced in place, so every response disables
// caching; clients cache-bust with a query parameter.
func AssetServer(baseStoragePath, subDir string, logger *slog.Logger) http.HandlerFunc {
	fullAssetDirPath := filepath.Clean(filepath.Join(baseStoragePath, subDir))
	logger = logger.With(slog.String("component", "assets"), slog.String("dir", subDir))
	logger.Debug("serving assets", slog.String("path", fullAssetDirPath))

	return func(w http.ResponseWriter, r *http.Request) {
		relativePath := chi.URLParam(r, "*")
		if relativePath == "" || strings.Contains(relativePath, "..") || strings.Contains(relativePath, `\`) {
			WriteAPIError(w, http.StatusBadRequest, CodeInvalidInput, "invalid asset path")
			return
		}

		cleanedAssetPath := filepath.Clean(filepath.Join(fullAssetDirPath, filepath.FromSlash(relativePath)))
		if !strings.HasPrefix(cleanedAssetPath, fullAssetDirPath+string(filepath.Separator)) {
			logger.Warn("asset access outside designated directory",
				slog.String("request", r.URL.Path),
				slog.String("resolved", cleanedAssetPath),
			)
			WriteAPIError(w, http.StatusForbidden, CodeInvalidInput, "forbidden")
			return
		}

		info, err := os.Stat(cleanedAssetPath)
		if os.IsNotExist(err) || (err == nil && info.IsDir()) {
			http.NotFound(w, r)
			return
		} else if err != nil {
			logger.Error("failed to stat asset", slog.String("path", cleanedAssetPath), slog.String("error", err.Error()))
			WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "internal server error")
			return
		}

		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		http.ServeFile(w, r, cleanedAssetPath)
	}
}
