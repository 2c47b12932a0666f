package media

import (
	"log/slog"
	"os"
	"strings"

	"github.com/jmaka/jmakabackend/models"
	"github.com/rwcarlsen/goexif/exif"
)

// helper to safely get an integer tag (like Orientation)
func getInt(exifData *exif.Exif, tagName exif.FieldName) *int {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	val, err := tag.Int(0)
	if err != nil {
		return nil
	}
	return &val
}

// helper to safely get a string tag, trimming null terminators
func getString(exifData *exif.Exif, tagName exif.FieldName) *string {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	val, err := tag.StringVal()
	if err != nil {
		return nil
	}
	val = strings.TrimSpace(strings.TrimRight(val, "\x00"))
	if val == "" {
		return nil
	}
	return &val
}

// ExtractCapture reads camera metadata from the EXIF block of rel. It returns nil when
// the file carries no EXIF data or none of the fields are set.
func (p *Processor) ExtractCapture(rel string) *models.CaptureMetadata {
	full, err := p.store.FullPath(rel)
	if err != nil {
		return nil
	}
	file, err := os.Open(full)
	if err != nil {
		return nil
	}
	defer file.Close()

	exifData, err := exif.Decode(file)
	if err != nil {
		// not an error, most uploads are screenshots or stripped exports
		p.logger.Debug("no EXIF data", slog.String("path", rel), slog.String("error", err.Error()))
		return nil
	}

	meta := &models.CaptureMetadata{
		CameraMake:  getString(exifData, exif.Make),
		CameraModel: getString(exifData, exif.Model),
		Orientation: getInt(exifData, exif.Orientation),
	}
	if dt, err := exifData.DateTime(); err == nil {
		ts := dt.Unix()
		meta.TakenAt = &ts
	}

	if meta.CameraMake == nil && meta.CameraModel == nil && meta.TakenAt == nil && meta.Orientation == nil {
		return nil
	}
	return meta
}
