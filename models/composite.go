package models

import (
	"strings"
	"time"
)

// CompositeKind tags the operation that produced a composite.
type CompositeKind string

const (
	CompositeSplit     CompositeKind = "split"
	CompositeSplit3    CompositeKind = "split3"
	CompositeTrashImg  CompositeKind = "trashimg"
	CompositeOknoScale CompositeKind = "oknoscale"
)

// CompositeRecord is one generated composite as persisted in data/composites.json.
type CompositeRecord struct {
	Kind         CompositeKind `json:"kind"`
	CreatedAt    time.Time     `json:"createdAt"`
	RelativePath string        `json:"relativePath"`
	Sources      []string      `json:"sources"` // ordered stored names consumed by the composite
}

// HasSource reports whether storedName was one of the composite inputs.
func (c CompositeRecord) HasSource(storedName string) bool {
	for _, s := range c.Sources {
		if s == storedName {
			return true
		}
	}
	return false
}

// ParseCompositeKind matches kinds case-insensitively.
func ParseCompositeKind(s string) (CompositeKind, bool) {
	switch CompositeKind(strings.ToLower(strings.TrimSpace(s))) {
	case CompositeSplit:
		return CompositeSplit, true
	case CompositeSplit3:
		return CompositeSplit3, true
	case CompositeTrashImg:
		return CompositeTrashImg, true
	case CompositeOknoScale:
		return CompositeOknoScale, true
	default:
		return "", false
	}
}
