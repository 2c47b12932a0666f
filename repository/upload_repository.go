package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmaka/jmakabackend/database"
	"github.com/jmaka/jmakabackend/models"
)

// UploadRepository handles the upload history stored in data/history.json
type UploadRepository struct {
	col *database.Collection[models.UploadRecord]
}

// NewUploadRepository creates a new instance of UploadRepository
func NewUploadRepository(col *database.Collection[models.UploadRecord]) *UploadRepository {
	return &UploadRepository{col: col}
}

func byStoredName(name string) func(models.UploadRecord) bool {
	return func(r models.UploadRecord) bool { return r.StoredName == name }
}

// List returns every record in insertion order.
func (r *UploadRepository) List(ctx context.Context) ([]models.UploadRecord, error) {
	items, err := r.col.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	return items, nil
}

// Get returns the most recently appended record with storedName.
func (r *UploadRepository) Get(ctx context.Context, storedName string) (*models.UploadRecord, error) {
	items, err := r.col.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read uploads: %w", err)
	}
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].StoredName == storedName {
			rec := items[i]
			return &rec, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (r *UploadRepository) Append(ctx context.Context, rec models.UploadRecord) error {
	if rec.Resized == nil {
		rec.Resized = map[int]string{}
	}
	if err := r.col.Append(ctx, rec); err != nil {
		return fmt.Errorf("failed to append upload %s: %w", rec.StoredName, err)
	}
	return nil
}

// UpsertResized records the rendition path for width. It reports false when the upload
// no longer exists.
func (r *UploadRepository) UpsertResized(ctx context.Context, storedName string, width int, relativePath string) (bool, error) {
	_, found, err := r.col.UpdateLast(ctx, byStoredName(storedName), func(rec models.UploadRecord) models.UploadRecord {
		rec = rec.Clone()
		rec.Resized[width] = relativePath
		return rec
	})
	if err != nil {
		return false, fmt.Errorf("failed to record rendition for %s: %w", storedName, err)
	}
	return found, nil
}

// ApplyCrop stores the new dimensions and preview and clears every rendition. The
// record as it was before the update is returned so its renditions can be removed.
func (r *UploadRepository) ApplyCrop(ctx context.Context, storedName string, width, height int, previewRelativePath string) (*models.UploadRecord, error) {
	var previous models.UploadRecord
	_, found, err := r.col.UpdateLast(ctx, byStoredName(storedName), func(rec models.UploadRecord) models.UploadRecord {
		previous = rec.Clone()
		w, h, preview := width, height, previewRelativePath
		rec.ImageWidth = &w
		rec.ImageHeight = &h
		rec.PreviewRelativePath = &preview
		rec.Resized = map[int]string{}
		return rec
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update upload %s after crop: %w", storedName, err)
	}
	if !found {
		return nil, ErrRecordNotFound
	}
	return &previous, nil
}

// RemoveByStoredName drops every record with storedName and returns them.
func (r *UploadRepository) RemoveByStoredName(ctx context.Context, storedName string) ([]models.UploadRecord, error) {
	removed, err := r.col.RemoveWhere(ctx, byStoredName(storedName))
	if err != nil {
		return nil, fmt.Errorf("failed to remove upload %s: %w", storedName, err)
	}
	return removed, nil
}

// RemoveExpired drops records created strictly before cutoff.
func (r *UploadRepository) RemoveExpired(ctx context.Context, cutoff time.Time) ([]models.UploadRecord, error) {
	removed, err := r.col.RemoveWhere(ctx, func(rec models.UploadRecord) bool {
		return rec.CreatedAt.Before(cutoff)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to expire uploads: %w", err)
	}
	return removed, nil
}

// MigrateWidth rewrites records that still reference legacyWidth and lack currentWidth.
// move runs under the history lock for each such record. The document is written once
// and the number of migrated records is returned.
func (r *UploadRepository) MigrateWidth(ctx context.Context, legacyWidth, currentWidth int, move MoveFunc) (int, error) {
	migrated := 0
	err := r.col.Mutate(ctx, func(items []models.UploadRecord) ([]models.UploadRecord, bool, error) {
		for i, rec := range items {
			if _, hasLegacy := rec.Resized[legacyWidth]; !hasLegacy {
				continue
			}
			if _, hasCurrent := rec.Resized[currentWidth]; hasCurrent {
				continue
			}
			next := rec.Clone()
			delete(next.Resized, legacyWidth)
			next.Resized[currentWidth] = move(rec)
			items[i] = next
			migrated++
		}
		return items, migrated > 0, nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to migrate width %d to %d: %w", legacyWidth, currentWidth, err)
	}
	return migrated, nil
}
