package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jmaka/jmakabackend/models"
)

// ErrRecordNotFound is returned when no record matches the requested key.
var ErrRecordNotFound = errors.New("record not found")

// MoveFunc relocates the legacy rendition of rec and returns the path the record should
// point at afterwards.
type MoveFunc func(rec models.UploadRecord) (toRel string)

// UploadRepositoryInterface defines the operations on the upload history collection
type UploadRepositoryInterface interface {
	List(ctx context.Context) ([]models.UploadRecord, error)
	Get(ctx context.Context, storedName string) (*models.UploadRecord, error)
	Append(ctx context.Context, rec models.UploadRecord) error
	UpsertResized(ctx context.Context, storedName string, width int, relativePath string) (bool, error)
	ApplyCrop(ctx context.Context, storedName string, width, height int, previewRelativePath string) (*models.UploadRecord, error)
	RemoveByStoredName(ctx context.Context, storedName string) ([]models.UploadRecord, error)
	RemoveExpired(ctx context.Context, cutoff time.Time) ([]models.UploadRecord, error)
	MigrateWidth(ctx context.Context, legacyWidth, currentWidth int, move MoveFunc) (int, error)
}

// CompositeRepositoryInterface defines the operations on the composite history collection
type CompositeRepositoryInterface interface {
	List(ctx context.Context) ([]models.CompositeRecord, error)
	Append(ctx context.Context, rec models.CompositeRecord) error
	RemoveBySource(ctx context.Context, storedName string) ([]models.CompositeRecord, error)
	RemoveExpired(ctx context.Context, cutoff time.Time) ([]models.CompositeRecord, error)
	RemoveByPath(ctx context.Context, relativePath string) (*models.CompositeRecord, error)
}
