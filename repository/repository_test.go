package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmaka/jmakabackend/database"
	"github.com/jmaka/jmakabackend/models"
)

func newUploadRepo(t *testing.T) *UploadRepository {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	col := database.NewCollection[models.UploadRecord](filepath.Join(t.TempDir(), "history.json"), database.NewLock("history"), logger)
	return NewUploadRepository(col)
}

func newCompositeRepo(t *testing.T) *CompositeRepository {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	col := database.NewCollection[models.CompositeRecord](filepath.Join(t.TempDir(), "composites.json"), database.NewLock("composites"), logger)
	return NewCompositeRepository(col)
}

func upload(name string, createdAt time.Time) models.UploadRecord {
	w, h := 100, 50
	return models.UploadRecord{
		StoredName:           name,
		OriginalName:         "photo.jpg",
		CreatedAt:            createdAt,
		Size:                 1234,
		OriginalRelativePath: "upload/" + name,
		ImageWidth:           &w,
		ImageHeight:          &h,
	}
}

func TestUploadRepository_AppendGet(t *testing.T) {
	repo := newUploadRepo(t)
	ctx := context.Background()

	if err := repo.Append(ctx, upload("a.jpg", time.Now())); err != nil {
		t.Fatal(err)
	}
	got, err := repo.Get(ctx, "a.jpg")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Resized == nil {
		t.Error("Resized should be initialized to an empty map")
	}
	if _, err := repo.Get(ctx, "missing.jpg"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Get missing err = %v", err)
	}
}

func TestUploadRepository_UpsertResized(t *testing.T) {
	repo := newUploadRepo(t)
	ctx := context.Background()
	_ = repo.Append(ctx, upload("a.jpg", time.Now()))

	for i := 0; i < 2; i++ {
		found, err := repo.UpsertResized(ctx, "a.jpg", 1280, "resized/1280/a.jpg")
		if err != nil || !found {
			t.Fatalf("UpsertResized found=%v err=%v", found, err)
		}
	}
	got, _ := repo.Get(ctx, "a.jpg")
	if len(got.Resized) != 1 || got.Resized[1280] != "resized/1280/a.jpg" {
		t.Errorf("resized = %v", got.Resized)
	}

	found, err := repo.UpsertResized(ctx, "gone.jpg", 1280, "resized/1280/gone.jpg")
	if err != nil || found {
		t.Errorf("upsert on missing record found=%v err=%v", found, err)
	}
}

func TestUploadRepository_ApplyCrop(t *testing.T) {
	repo := newUploadRepo(t)
	ctx := context.Background()
	_ = repo.Append(ctx, upload("a.jpg", time.Now()))
	_, _ = repo.UpsertResized(ctx, "a.jpg", 1920, "resized/1920/a.jpg")

	prev, err := repo.ApplyCrop(ctx, "a.jpg", 40, 30, "preview/a.jpg")
	if err != nil {
		t.Fatalf("ApplyCrop: %v", err)
	}
	if prev.Resized[1920] != "resized/1920/a.jpg" {
		t.Errorf("previous record should keep its renditions, got %v", prev.Resized)
	}

	got, _ := repo.Get(ctx, "a.jpg")
	if *got.ImageWidth != 40 || *got.ImageHeight != 30 {
		t.Errorf("dimensions = %dx%d", *got.ImageWidth, *got.ImageHeight)
	}
	if got.PreviewRelativePath == nil || *got.PreviewRelativePath != "preview/a.jpg" {
		t.Errorf("preview = %v", got.PreviewRelativePath)
	}
	if len(got.Resized) != 0 {
		t.Errorf("resized should be cleared, got %v", got.Resized)
	}

	if _, err := repo.ApplyCrop(ctx, "missing.jpg", 1, 1, "preview/missing.jpg"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("ApplyCrop missing err = %v", err)
	}
}

func TestUploadRepository_RemoveExpiredBoundary(t *testing.T) {
	repo := newUploadRepo(t)
	ctx := context.Background()
	cutoff := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	_ = repo.Append(ctx, upload("old.jpg", cutoff.Add(-time.Nanosecond)))
	_ = repo.Append(ctx, upload("edge.jpg", cutoff))
	_ = repo.Append(ctx, upload("new.jpg", cutoff.Add(time.Hour)))

	removed, err := repo.RemoveExpired(ctx, cutoff)
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 1 || removed[0].StoredName != "old.jpg" {
		t.Errorf("removed = %v", removed)
	}
	kept, _ := repo.List(ctx)
	if len(kept) != 2 || kept[0].StoredName != "edge.jpg" {
		t.Errorf("kept = %v", kept)
	}
}

func TestUploadRepository_RemoveByStoredName(t *testing.T) {
	repo := newUploadRepo(t)
	ctx := context.Background()
	_ = repo.Append(ctx, upload("a.jpg", time.Now()))
	_ = repo.Append(ctx, upload("b.jpg", time.Now()))

	removed, err := repo.RemoveByStoredName(ctx, "a.jpg")
	if err != nil || len(removed) != 1 {
		t.Fatalf("removed=%v err=%v", removed, err)
	}
	removed, _ = repo.RemoveByStoredName(ctx, "a.jpg")
	if len(removed) != 0 {
		t.Error("second removal should find nothing")
	}
}

func TestUploadRepository_MigrateWidth(t *testing.T) {
	repo := newUploadRepo(t)
	ctx := context.Background()

	legacy := upload("legacy.jpg", time.Now())
	legacy.Resized = map[int]string{1260: "resized/1260/legacy.jpg", 1920: "resized/1920/legacy.jpg"}
	both := upload("both.jpg", time.Now())
	both.Resized = map[int]string{1260: "resized/1260/both.jpg", 1280: "resized/1280/both.jpg"}
	_ = repo.Append(ctx, legacy)
	_ = repo.Append(ctx, both)
	_ = repo.Append(ctx, upload("plain.jpg", time.Now()))

	var moved []string
	move := func(rec models.UploadRecord) string {
		moved = append(moved, rec.Resized[1260])
		return "resized/1280/" + rec.StoredName
	}

	n, err := repo.MigrateWidth(ctx, 1260, 1280, move)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || len(moved) != 1 || moved[0] != "resized/1260/legacy.jpg" {
		t.Fatalf("migrated=%d moved=%v", n, moved)
	}

	got, _ := repo.Get(ctx, "legacy.jpg")
	if _, ok := got.Resized[1260]; ok || got.Resized[1280] != "resized/1280/legacy.jpg" || got.Resized[1920] == "" {
		t.Errorf("legacy record resized = %v", got.Resized)
	}
	gotBoth, _ := repo.Get(ctx, "both.jpg")
	if len(gotBoth.Resized) != 2 {
		t.Errorf("record that already has the new width must be left alone: %v", gotBoth.Resized)
	}

	n, _ = repo.MigrateWidth(ctx, 1260, 1280, move)
	if n != 0 {
		t.Errorf("second migration should be a no-op, migrated %d", n)
	}
}

func TestCompositeRepository_RemoveBySource(t *testing.T) {
	repo := newCompositeRepo(t)
	ctx := context.Background()
	now := time.Now()
	_ = repo.Append(ctx, models.CompositeRecord{Kind: models.CompositeSplit, CreatedAt: now, RelativePath: "split/1.jpg", Sources: []string{"a.jpg", "b.jpg"}})
	_ = repo.Append(ctx, models.CompositeRecord{Kind: models.CompositeTrashImg, CreatedAt: now, RelativePath: "trashimg/2.jpg", Sources: []string{"b.jpg"}})
	_ = repo.Append(ctx, models.CompositeRecord{Kind: models.CompositeSplit3, CreatedAt: now, RelativePath: "split3/3.jpg", Sources: []string{"c.jpg", "d.jpg", "e.jpg"}})

	removed, err := repo.RemoveBySource(ctx, "b.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 2 {
		t.Errorf("removed %d composites, want 2", len(removed))
	}
	kept, _ := repo.List(ctx)
	if len(kept) != 1 || kept[0].RelativePath != "split3/3.jpg" {
		t.Errorf("kept = %v", kept)
	}
}

func TestCompositeRepository_RemoveByPath(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    string
		wantErr error
	}{
		{name: "exact path", query: "split/20260110-112233-123-ABC.jpg", want: "split/20260110-112233-123-ABC.jpg"},
		{name: "case insensitive with backslashes", query: `SPLIT\20260110-112233-123-abc.JPG`, want: "split/20260110-112233-123-ABC.jpg"},
		{name: "bare file name fallback", query: "oknoscale-result.png", want: "trashimg/oknoscale-result.png"},
		{name: "unknown", query: "split/none.jpg", wantErr: ErrRecordNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newCompositeRepo(t)
			ctx := context.Background()
			_ = repo.Append(ctx, models.CompositeRecord{Kind: models.CompositeSplit, CreatedAt: time.Now(), RelativePath: "split/20260110-112233-123-ABC.jpg", Sources: []string{"a.jpg"}})
			_ = repo.Append(ctx, models.CompositeRecord{Kind: models.CompositeOknoScale, CreatedAt: time.Now(), RelativePath: "trashimg/oknoscale-result.png", Sources: []string{"a.jpg"}})

			got, err := repo.RemoveByPath(ctx, tt.query)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.RelativePath != tt.want {
				t.Errorf("removed %q, want %q", got.RelativePath, tt.want)
			}
			kept, _ := repo.List(ctx)
			if len(kept) != 1 {
				t.Errorf("exactly one composite should remain, got %d", len(kept))
			}
		})
	}
}
