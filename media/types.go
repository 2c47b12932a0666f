package media

import (
	"errors"

	"github.com/jmaka/jmakabackend/config"
)

type AssetType string

const (
	AssetTypeUpload         AssetType = "upload"
	AssetTypeUploadOriginal AssetType = "upload-original"
	AssetTypeResized        AssetType = "resized"
	AssetTypePreview        AssetType = "preview"
	AssetTypeSplit          AssetType = "split"
	AssetTypeSplit3         AssetType = "split3"
	AssetTypeTrashImg       AssetType = "trashimg"
)

// AllAssetTypes lists every content directory in the order they are created at startup.
var AllAssetTypes = []AssetType{
	AssetTypeUpload,
	AssetTypeUploadOriginal,
	AssetTypeResized,
	AssetTypePreview,
	AssetTypeSplit,
	AssetTypeSplit3,
	AssetTypeTrashImg,
}

// DefaultSubDirs maps each asset type to its directory name under the storage root.
func DefaultSubDirs() map[AssetType]string {
	return map[AssetType]string{
		AssetTypeUpload:         config.DefaultUploadSubDir,
		AssetTypeUploadOriginal: config.DefaultUploadOriginalSubDir,
		AssetTypeResized:        config.DefaultResizedSubDir,
		AssetTypePreview:        config.DefaultPreviewSubDir,
		AssetTypeSplit:          config.DefaultSplitSubDir,
		AssetTypeSplit3:         config.DefaultSplit3SubDir,
		AssetTypeTrashImg:       config.DefaultTrashSubDir,
	}
}

var (
	// ErrPathOutsideRoot is returned when a relative path resolves outside the storage root.
	ErrPathOutsideRoot = errors.New("path resolves outside storage root")
	ErrInvalidRect     = errors.New("invalid crop rect")
	ErrEmptyRect       = errors.New("empty crop after clamp")
	ErrNotImage        = errors.New("file is not a supported image")
)

// ViewRect is a placement rectangle measured in the client's viewport.
type ViewRect struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	W     float64 `json:"w"`
	H     float64 `json:"h"`
	ViewW float64 `json:"viewW"`
	ViewH float64 `json:"viewH"`
}

// WindowRect is a crop rectangle in source pixels, as sent for trashimg and oknoscale.
type WindowRect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Placement draws one source image into one panel of a split layout.
type Placement struct {
	SourceRel string
	Rect      ViewRect
}
