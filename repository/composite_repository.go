package repository

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/jmaka/jmakabackend/database"
	"github.com/jmaka/jmakabackend/models"
)

// CompositeRepository handles the composite history stored in data/composites.json
type CompositeRepository struct {
	col *database.Collection[models.CompositeRecord]
}

func NewCompositeRepository(col *database.Collection[models.CompositeRecord]) *CompositeRepository {
	return &CompositeRepository{col: col}
}

func (r *CompositeRepository) List(ctx context.Context) ([]models.CompositeRecord, error) {
	items, err := r.col.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list composites: %w", err)
	}
	return items, nil
}

func (r *CompositeRepository) Append(ctx context.Context, rec models.CompositeRecord) error {
	if err := r.col.Append(ctx, rec); err != nil {
		return fmt.Errorf("failed to append composite %s: %w", rec.RelativePath, err)
	}
	return nil
}

// RemoveBySource drops every composite built from storedName.
func (r *CompositeRepository) RemoveBySource(ctx context.Context, storedName string) ([]models.CompositeRecord, error) {
	removed, err := r.col.RemoveWhere(ctx, func(rec models.CompositeRecord) bool {
		return rec.HasSource(storedName)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to remove composites of %s: %w", storedName, err)
	}
	return removed, nil
}

// RemoveExpired drops composites created strictly before cutoff.
func (r *CompositeRepository) RemoveExpired(ctx context.Context, cutoff time.Time) ([]models.CompositeRecord, error) {
	removed, err := r.col.RemoveWhere(ctx, func(rec models.CompositeRecord) bool {
		return rec.CreatedAt.Before(cutoff)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to expire composites: %w", err)
	}
	return removed, nil
}

func normalizeSlashes(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// RemoveByPath drops the first composite whose relative path equals relativePath, or
// failing that whose file name equals the last element of relativePath. Both
// comparisons ignore case and backslashes count as separators.
func (r *CompositeRepository) RemoveByPath(ctx context.Context, relativePath string) (*models.CompositeRecord, error) {
	rel := normalizeSlashes(relativePath)
	fileName := path.Base(rel)

	var removed *models.CompositeRecord
	err := r.col.Mutate(ctx, func(items []models.CompositeRecord) ([]models.CompositeRecord, bool, error) {
		for i, rec := range items {
			recRel := normalizeSlashes(rec.RelativePath)
			if strings.EqualFold(recRel, rel) || strings.EqualFold(path.Base(recRel), fileName) {
				found := rec
				removed = &found
				return append(items[:i], items[i+1:]...), true, nil
			}
		}
		return items, false, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to remove composite %s: %w", relativePath, err)
	}
	if removed == nil {
		return nil, ErrRecordNotFound
	}
	return removed, nil
}
