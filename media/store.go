package media

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Store defines the content store used by the services. Paths are slash separated and
// relative to the storage root, e.g. "resized/1280/<storedName>".
type Store interface {
	// RelPath returns the relative path of name inside the asset type directory
	RelPath(assetType AssetType, name string) string
	// ResizedRelPath returns the relative path of the rendition of name at width
	ResizedRelPath(width int, name string) string
	// FullPath returns the absolute filesystem path for a relative asset path
	FullPath(relativePath string) (string, error)
	// EnsureDir makes sure a specific asset type directory exists
	EnsureDir(assetType AssetType) (string, error)
	// Save writes data to relativePath through AtomicReplace and returns the byte count
	Save(relativePath string, data io.Reader) (int64, error)
	// AtomicReplace lets produce write a sibling temp file, then promotes it
	AtomicReplace(relativePath string, produce func(tmpPath string) error) error
	// Delete removes an asset; a missing file is not an error
	Delete(relativePath string) error
	Exists(relativePath string) bool
	Copy(srcRelativePath, dstRelativePath string) error
	Move(srcRelativePath, dstRelativePath string) error
}

// LocalStorage implements the Store interface using the local filesystem
type LocalStorage struct {
	basePath  string               // absolute storage root
	subDirMap map[AssetType]string // maps AssetType to subdirectory name (e.g., "upload-original")
	logger    *slog.Logger
}

// NewLocalStorage creates a new local filesystem store
func NewLocalStorage(basePath string, subDirs map[AssetType]string, logger *slog.Logger) (*LocalStorage, error) {
	absBasePath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid base storage path '%s': %w", basePath, err)
	}

	if err := os.MkdirAll(absBasePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory '%s': %w", absBasePath, err)
	}

	for assetType, subDir := range subDirs {
		full := filepath.Clean(filepath.Join(absBasePath, subDir))
		if full == absBasePath || !strings.HasPrefix(full, absBasePath+string(filepath.Separator)) {
			return nil, fmt.Errorf("invalid subdirectory configuration for %s: '%s' resolves outside base path '%s'", assetType, subDir, absBasePath)
		}
	}

	logger = logger.With(slog.String("component", "store"))
	logger.Info("initialized local storage", slog.String("root", absBasePath))
	return &LocalStorage{
		basePath:  absBasePath,
		subDirMap: subDirs,
		logger:    logger,
	}, nil
}

func (ls *LocalStorage) subDir(assetType AssetType) string {
	if dir, ok := ls.subDirMap[assetType]; ok {
		return dir
	}
	return string(assetType)
}

func (ls *LocalStorage) RelPath(assetType AssetType, name string) string {
	return path.Join(filepath.ToSlash(ls.subDir(assetType)), name)
}

func (ls *LocalStorage) ResizedRelPath(width int, name string) string {
	return path.Join(filepath.ToSlash(ls.subDir(AssetTypeResized)), strconv.Itoa(width), name)
}

// EnsureDir creates the directory for the asset type if it doesn't exist
func (ls *LocalStorage) EnsureDir(assetType AssetType) (string, error) {
	dirPath := filepath.Join(ls.basePath, ls.subDir(assetType))
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return "", fmt.Errorf("failed to ensure directory '%s': %w", dirPath, err)
	}
	return dirPath, nil
}

// FullPath calculates the absolute path and performs security check
func (ls *LocalStorage) FullPath(relativePath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(relativePath))
	full := filepath.Join(ls.basePath, clean)
	if !strings.HasPrefix(full, ls.basePath+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: '%s'", ErrPathOutsideRoot, relativePath)
	}
	return full, nil
}

// tempPathFor keeps the image extension last so the encoder can still be chosen by name.
func tempPathFor(full string) string {
	ext := filepath.Ext(full)
	stem := strings.TrimSuffix(filepath.Base(full), ext)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return filepath.Join(filepath.Dir(full), stem+".tmp-"+suffix+ext)
}

// AtomicReplace runs produce against a temp file in the target directory and renames it
// over the target. When the rename fails the temp file is copied over the target and
// removed. A failing producer leaves the target untouched.
func (ls *LocalStorage) AtomicReplace(relativePath string, produce func(tmpPath string) error) error {
	full, err := ls.FullPath(relativePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for '%s': %w", relativePath, err)
	}

	tmp := tempPathFor(full)
	if err := produce(tmp); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, full); err != nil {
		ls.logger.Warn("rename over target failed, falling back to copy",
			slog.String("path", relativePath),
			slog.String("error", err.Error()),
		)
		if cerr := copyFile(tmp, full); cerr != nil {
			os.Remove(tmp)
			return fmt.Errorf("failed to replace '%s': %w", relativePath, cerr)
		}
		os.Remove(tmp)
	}
	return nil
}

func (ls *LocalStorage) Save(relativePath string, data io.Reader) (int64, error) {
	var written int64
	err := ls.AtomicReplace(relativePath, func(tmpPath string) error {
		f, err := os.Create(tmpPath)
		if err != nil {
			return fmt.Errorf("failed to create destination file: %w", err)
		}
		n, err := io.Copy(f, data)
		if err != nil {
			f.Close()
			return fmt.Errorf("failed to write data to '%s': %w", relativePath, err)
		}
		written = n
		return f.Close()
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// Delete removes an asset file
func (ls *LocalStorage) Delete(relativePath string) error {
	full, err := ls.FullPath(relativePath)
	if err != nil {
		return err
	}
	err = os.Remove(full)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete asset '%s': %w", relativePath, err)
	}
	if err == nil {
		ls.logger.Debug("deleted asset", slog.String("path", relativePath))
	}
	return nil
}

func (ls *LocalStorage) Exists(relativePath string) bool {
	full, err := ls.FullPath(relativePath)
	if err != nil {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && info.Mode().IsRegular()
}

// Copy writes a copy of src to dst, replacing dst atomically.
func (ls *LocalStorage) Copy(srcRelativePath, dstRelativePath string) error {
	src, err := ls.FullPath(srcRelativePath)
	if err != nil {
		return err
	}
	return ls.AtomicReplace(dstRelativePath, func(tmpPath string) error {
		return copyFile(src, tmpPath)
	})
}

// Move renames src to dst, falling back to copy and delete.
func (ls *LocalStorage) Move(srcRelativePath, dstRelativePath string) error {
	src, err := ls.FullPath(srcRelativePath)
	if err != nil {
		return err
	}
	dst, err := ls.FullPath(dstRelativePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for '%s': %w", dstRelativePath, err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return fmt.Errorf("failed to move '%s' to '%s': %w", srcRelativePath, dstRelativePath, err)
	}
	if err := os.Remove(src); err != nil {
		ls.logger.Warn("moved asset but could not remove source",
			slog.String("path", srcRelativePath),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
