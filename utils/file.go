package utils

import (
	"errors"
	"path/filepath"
	"strings"
	"unicode"
)

// ErrInvalidName is returned for names that are not a bare file name.
var ErrInvalidName = errors.New("invalid file name")

var supportedImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".bmp":  true,
	".gif":  true,
}

const maxExtensionLength = 16

// IsRasterImage checks if the filename has an extension the codec is expected to decode
func IsRasterImage(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return supportedImageExtensions[ext]
}

// BareFileName returns name unchanged when it is already a bare file name. Anything
// carrying a directory part, a traversal segment or a separator of either platform
// is rejected without touching the filesystem.
func BareFileName(name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", ErrInvalidName
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", ErrInvalidName
	}
	if base := filepath.Base(name); base != name {
		return "", ErrInvalidName
	}
	return name, nil
}

// BaseOfRelativePath normalizes backslashes and returns the last path element of a
// client supplied relative path, e.g. "split\\a.jpg" -> "a.jpg".
func BaseOfRelativePath(rel string) (string, error) {
	rel = strings.ReplaceAll(rel, `\`, "/")
	base := rel[strings.LastIndex(rel, "/")+1:]
	if base == "." || base == ".." || strings.TrimSpace(base) == "" {
		return "", ErrInvalidName
	}
	return base, nil
}

// SanitizeExtension keeps '.', letters and digits. Overlong results are dropped
// entirely so the stored name carries no extension.
func SanitizeExtension(ext string) string {
	if strings.TrimSpace(ext) == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range ext {
		if r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if len(cleaned) > maxExtensionLength {
		return ""
	}
	return cleaned
}
