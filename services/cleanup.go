package services

import (
	"context"
	"log/slog"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jmaka/jmakabackend/media"
	"github.com/jmaka/jmakabackend/models"
	"github.com/jmaka/jmakabackend/repository"
	"github.com/jmaka/jmakabackend/utils"
)

var cleanupErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "jmaka_cleanup_errors_total",
	Help: "Content files that could not be deleted during cascades",
}, []string{"asset"})

// Cleaner deletes the content files behind removed records. Failures are logged and
// counted per file and never returned.
type Cleaner struct {
	store      media.Store
	composites repository.CompositeRepositoryInterface
	widths     []int
	logger     *slog.Logger
}

func NewCleaner(store media.Store, composites repository.CompositeRepositoryInterface, widths []int, logger *slog.Logger) *Cleaner {
	return &Cleaner{
		store:      store,
		composites: composites,
		widths:     widths,
		logger:     logger.With(slog.String("component", "cleanup")),
	}
}

func (c *Cleaner) remove(asset media.AssetType, rel string) {
	if err := c.store.Delete(rel); err != nil {
		cleanupErrorsTotal.WithLabelValues(string(asset)).Inc()
		c.logger.Warn("failed to delete content file",
			slog.String("path", rel),
			slog.String("error", err.Error()),
		)
	}
}

// renditionWidths is the union of the configured widths and the widths rec points at.
func (c *Cleaner) renditionWidths(rec models.UploadRecord) []int {
	seen := make(map[int]bool, len(c.widths)+len(rec.Resized))
	var widths []int
	for _, w := range c.widths {
		if !seen[w] {
			seen[w] = true
			widths = append(widths, w)
		}
	}
	for w := range rec.Resized {
		if !seen[w] {
			seen[w] = true
			widths = append(widths, w)
		}
	}
	sort.Ints(widths)
	return widths
}

// RemoveRenditions deletes every resized file of rec.
func (c *Cleaner) RemoveRenditions(rec models.UploadRecord) {
	for _, w := range c.renditionWidths(rec) {
		c.remove(media.AssetTypeResized, c.store.ResizedRelPath(w, rec.StoredName))
	}
}

// RemoveUploadFiles deletes the working copy, snapshot, preview and renditions of rec,
// then every composite built from it. The removed composite records are returned.
func (c *Cleaner) RemoveUploadFiles(ctx context.Context, rec models.UploadRecord) []models.CompositeRecord {
	if _, err := utils.BareFileName(rec.StoredName); err != nil {
		c.logger.Warn("skipping cleanup of record with unsafe stored name", slog.String("storedName", rec.StoredName))
		return nil
	}
	c.remove(media.AssetTypeUpload, c.store.RelPath(media.AssetTypeUpload, rec.StoredName))
	c.remove(media.AssetTypeUploadOriginal, c.store.RelPath(media.AssetTypeUploadOriginal, rec.StoredName))
	c.remove(media.AssetTypePreview, c.store.RelPath(media.AssetTypePreview, rec.StoredName))
	c.RemoveRenditions(rec)
	return c.RemoveCompositesOf(ctx, rec.StoredName)
}

// RemoveCompositesOf drops every composite record that lists storedName as a source and
// deletes their files. The removed records are returned.
func (c *Cleaner) RemoveCompositesOf(ctx context.Context, storedName string) []models.CompositeRecord {
	removed, err := c.composites.RemoveBySource(ctx, storedName)
	if err != nil {
		c.logger.Warn("failed to remove composites of source",
			slog.String("storedName", storedName),
			slog.String("error", err.Error()),
		)
		return nil
	}
	for _, rec := range removed {
		c.RemoveCompositeFile(rec)
	}
	return removed
}

// RemoveCompositeFile deletes the file behind rec.
func (c *Cleaner) RemoveCompositeFile(rec models.CompositeRecord) {
	rel, ok := CompositeRelPath(c.store, rec)
	if !ok {
		c.logger.Warn("composite record has no usable path", slog.String("relativePath", rec.RelativePath))
		return
	}
	c.remove(compositeAssetType(rec.Kind), rel)
}

func compositeAssetType(kind models.CompositeKind) media.AssetType {
	k, _ := models.ParseCompositeKind(string(kind))
	switch k {
	case models.CompositeSplit3:
		return media.AssetTypeSplit3
	case models.CompositeTrashImg, models.CompositeOknoScale:
		return media.AssetTypeTrashImg
	default:
		return media.AssetTypeSplit
	}
}

// CompositeRelPath rebuilds the content path of rec from its kind and the file name of
// its stored relative path, so a tampered record cannot point outside its directory.
func CompositeRelPath(store media.Store, rec models.CompositeRecord) (string, bool) {
	name, err := utils.BaseOfRelativePath(rec.RelativePath)
	if err != nil {
		return "", false
	}
	return store.RelPath(compositeAssetType(rec.Kind), name), true
}
