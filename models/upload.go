package models

import "time"

// UploadRecord is one uploaded source image as persisted in data/history.json.
type UploadRecord struct {
	StoredName   string    `json:"storedName"` // generated identifier, doubles as the file name on disk
	OriginalName string    `json:"originalName"`
	CreatedAt    time.Time `json:"createdAt"`
	Size         int64     `json:"size"`

	OriginalRelativePath string  `json:"originalRelativePath"`
	PreviewRelativePath  *string `json:"previewRelativePath"` // Nullable, only for decodable images

	ImageWidth  *int `json:"imageWidth"`  // Nullable
	ImageHeight *int `json:"imageHeight"` // Nullable

	// width -> relative path of the rendition at that width
	Resized map[int]string `json:"resized"`

	Capture *CaptureMetadata `json:"capture,omitempty"` // Nullable, EXIF data read at upload
}

// IsImage reports whether the upload decoded as an image.
func (u UploadRecord) IsImage() bool {
	return u.ImageWidth != nil && u.ImageHeight != nil && *u.ImageWidth > 0 && *u.ImageHeight > 0
}

// Clone returns a copy whose Resized map can be mutated without touching u.
func (u UploadRecord) Clone() UploadRecord {
	c := u
	c.Resized = make(map[int]string, len(u.Resized))
	for w, p := range u.Resized {
		c.Resized[w] = p
	}
	return c
}

// CaptureMetadata holds the camera fields read from EXIF. All fields are optional.
type CaptureMetadata struct {
	CameraMake  *string `json:"cameraMake,omitempty"`
	CameraModel *string `json:"cameraModel,omitempty"`
	TakenAt     *int64  `json:"takenAt,omitempty"` // Unix timestamp
	Orientation *int    `json:"orientation,omitempty"`
}
