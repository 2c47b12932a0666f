package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jmaka/jmakabackend/config"
	"github.com/jmaka/jmakabackend/database"
	"github.com/jmaka/jmakabackend/media"
	"github.com/jmaka/jmakabackend/models"
	"github.com/jmaka/jmakabackend/repository"
	"github.com/jmaka/jmakabackend/utils"
)

// UploadFile is one file of an upload batch. Open is called once, after the whole
// batch has been validated.
type UploadFile struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

type ResizeRequest struct {
	StoredName string `json:"storedName"`
	Width      int    `json:"width"`
}

type ResizeResult struct {
	Width        int    `json:"width"`
	RelativePath string `json:"relativePath"`
}

type CropRequest struct {
	StoredName string `json:"storedName"`
	X          int    `json:"x"`
	Y          int    `json:"y"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

type CropResult struct {
	OK                         bool   `json:"ok"`
	StoredName                 string `json:"storedName"`
	ImageWidth                 int    `json:"imageWidth"`
	ImageHeight                int    `json:"imageHeight"`
	PreviewRelativePath        string `json:"previewRelativePath"`
	OriginalRelativePath       string `json:"originalRelativePath"`
	OriginalSourceRelativePath string `json:"originalSourceRelativePath"`
}

type DeleteRequest struct {
	StoredName string `json:"storedName"`
}

type DeleteResult struct {
	OK         bool   `json:"ok"`
	StoredName string `json:"storedName"`
}

// UploadService handles the upload history: uploads, renditions, crops and deletes.
type UploadService struct {
	cfg       config.Config
	uploads   repository.UploadRepositoryInterface
	store     media.Store
	processor *media.Processor
	sweeper   *Sweeper
	cleaner   *Cleaner
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time

	// records serializes resize, crop and delete per stored name. It is taken before
	// any collection lock.
	records *database.KeyedLock
}

func NewUploadService(
	cfg config.Config,
	uploads repository.UploadRepositoryInterface,
	store media.Store,
	processor *media.Processor,
	sweeper *Sweeper,
	cleaner *Cleaner,
	notifier Notifier,
	logger *slog.Logger,
) *UploadService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &UploadService{
		cfg:       cfg,
		uploads:   uploads,
		store:     store,
		processor: processor,
		sweeper:   sweeper,
		cleaner:   cleaner,
		notifier:  notifier,
		logger:    logger.With(slog.String("component", "uploads")),
		now:       time.Now,
		records:   database.NewKeyedLock("upload"),
	}
}

// lockRecord holds the per-upload lock until the returned func is called.
func (s *UploadService) lockRecord(ctx context.Context, storedName string) (func(), error) {
	release, err := s.records.Acquire(ctx, storedName)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return release, nil
}

func (s *UploadService) publish(eventType, storedName, rel string) {
	s.notifier.Publish(Event{Type: eventType, StoredName: storedName, RelativePath: rel, At: s.now().UTC()})
}

// validStoredName rejects blank names and anything that is not a bare file name.
func validStoredName(name string) error {
	if strings.TrimSpace(name) == "" {
		return invalidf("storedName is required")
	}
	if _, err := utils.BareFileName(name); err != nil {
		return invalidf("invalid storedName")
	}
	return nil
}

// newStoredName keeps the sanitized client extension so the codec can still be picked by name.
func newStoredName(originalName string) string {
	ext := utils.SanitizeExtension(path.Ext(strings.ReplaceAll(originalName, `\`, "/")))
	return strings.ReplaceAll(uuid.NewString(), "-", "") + ext
}

// List returns the upload history, capped at the configured listing limit.
func (s *UploadService) List(ctx context.Context, order SortOrder) ([]models.UploadRecord, error) {
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		return nil, err
	}
	items, err := s.uploads.List(ctx)
	if err != nil {
		return nil, err
	}
	sortUploads(items, order)
	return capped(items, s.cfg.ListLimit), nil
}

// Upload validates the whole batch, then stores the files one by one. A failure stops
// the batch; records already appended stay.
func (s *UploadService) Upload(ctx context.Context, files []UploadFile) ([]models.UploadRecord, error) {
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, invalidf("file is required")
	}
	if len(files) > s.cfg.MaxUploadFiles {
		return nil, invalidf("too many files (max %d)", s.cfg.MaxUploadFiles)
	}
	for _, f := range files {
		if f.Size <= 0 {
			return nil, invalidf("file is empty")
		}
		if f.Size > s.cfg.MaxUploadBytes {
			return nil, invalidf("file is too large (max %d bytes)", s.cfg.MaxUploadBytes)
		}
	}

	results := make([]models.UploadRecord, 0, len(files))
	for _, f := range files {
		rec, err := s.storeOne(ctx, f)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("upload batch stopped",
				slog.String("file", f.Name),
				slog.Int("stored", len(results)),
				slog.String("error", err.Error()),
			)
			var svcErr *Error
			if errors.As(err, &svcErr) {
				return nil, err
			}
			return nil, invalidf("%s", err.Error())
		}
		results = append(results, rec)
		s.publish(EventUploadCreated, rec.StoredName, rec.OriginalRelativePath)
	}
	return results, nil
}

func (s *UploadService) storeOne(ctx context.Context, f UploadFile) (models.UploadRecord, error) {
	storedName := newStoredName(f.Name)
	uploadRel := s.store.RelPath(media.AssetTypeUpload, storedName)

	rc, err := f.Open()
	if err != nil {
		return models.UploadRecord{}, fmt.Errorf("failed to open upload %s: %w", f.Name, err)
	}
	size, err := s.store.Save(uploadRel, rc)
	rc.Close()
	if err != nil {
		return models.UploadRecord{}, fmt.Errorf("failed to store upload %s: %w", f.Name, err)
	}
	if size <= 0 {
		s.cleaner.remove(media.AssetTypeUpload, uploadRel)
		return models.UploadRecord{}, invalidf("file is empty")
	}

	rec := models.UploadRecord{
		StoredName:           storedName,
		OriginalName:         f.Name,
		CreatedAt:            s.now().UTC(),
		Size:                 size,
		OriginalRelativePath: uploadRel,
		Resized:              map[int]string{},
	}

	if w, h, ok := s.processor.DecodeDimensions(uploadRel); ok {
		snapshotRel := s.store.RelPath(media.AssetTypeUploadOriginal, storedName)
		if !s.store.Exists(snapshotRel) {
			if err := s.store.Copy(uploadRel, snapshotRel); err != nil {
				return models.UploadRecord{}, fmt.Errorf("failed to snapshot upload %s: %w", f.Name, err)
			}
		}
		previewRel := s.store.RelPath(media.AssetTypePreview, storedName)
		if err := s.processor.CreatePreview(ctx, uploadRel, previewRel, s.cfg.PreviewWidth); err != nil {
			return models.UploadRecord{}, err
		}
		rec.PreviewRelativePath = &previewRel
		rec.ImageWidth = &w
		rec.ImageHeight = &h
		rec.Capture = s.processor.ExtractCapture(uploadRel)
	}

	if err := s.uploads.Append(ctx, rec); err != nil {
		return models.UploadRecord{}, err
	}
	s.logger.Info("upload stored",
		slog.String("storedName", storedName),
		slog.Int64("size", size),
		slog.Bool("image", rec.IsImage()),
	)
	return rec, nil
}

// Resize returns the rendition of storedName at a configured width, producing it only
// when the file does not exist yet.
func (s *UploadService) Resize(ctx context.Context, req ResizeRequest) (ResizeResult, error) {
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		return ResizeResult{}, err
	}
	if req.Width <= 0 {
		return ResizeResult{}, invalidf("width must be > 0")
	}
	if !s.cfg.SupportsWidth(req.Width) {
		return ResizeResult{}, invalidf("unsupported width")
	}
	if err := validStoredName(req.StoredName); err != nil {
		return ResizeResult{}, err
	}

	release, err := s.lockRecord(ctx, req.StoredName)
	if err != nil {
		return ResizeResult{}, err
	}
	defer release()

	uploadRel := s.store.RelPath(media.AssetTypeUpload, req.StoredName)
	if !s.store.Exists(uploadRel) {
		return ResizeResult{}, notFoundf("original file not found")
	}
	if _, _, ok := s.processor.DecodeDimensions(uploadRel); !ok {
		return ResizeResult{}, invalidf("file is not a supported image")
	}

	dst := s.store.ResizedRelPath(req.Width, req.StoredName)
	if !s.store.Exists(dst) {
		if _, err := s.processor.ResizeToWidth(ctx, uploadRel, dst, req.Width); err != nil {
			if ctx.Err() != nil {
				return ResizeResult{}, ctx.Err()
			}
			return ResizeResult{}, transformErr(err)
		}
	}

	found, err := s.uploads.UpsertResized(ctx, req.StoredName, req.Width, dst)
	if err != nil {
		return ResizeResult{}, err
	}
	if found {
		s.publish(EventUploadUpdated, req.StoredName, dst)
	}
	return ResizeResult{Width: req.Width, RelativePath: dst}, nil
}

// Crop cuts a clamped rectangle out of the immutable snapshot into the working copy,
// then rebuilds the preview and drops every rendition and composite of the upload.
func (s *UploadService) Crop(ctx context.Context, req CropRequest) (CropResult, error) {
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		return CropResult{}, err
	}
	if err := validStoredName(req.StoredName); err != nil {
		return CropResult{}, err
	}
	if req.Width <= 0 || req.Height <= 0 {
		return CropResult{}, invalidf("invalid crop size")
	}

	name := req.StoredName
	release, err := s.lockRecord(ctx, name)
	if err != nil {
		return CropResult{}, err
	}
	defer release()

	uploadRel := s.store.RelPath(media.AssetTypeUpload, name)
	snapshotRel := s.store.RelPath(media.AssetTypeUploadOriginal, name)
	previewRel := s.store.RelPath(media.AssetTypePreview, name)

	if !s.store.Exists(uploadRel) {
		return CropResult{}, notFoundf("original file not found")
	}
	// records older than the snapshot directory get one from the current working copy
	if !s.store.Exists(snapshotRel) {
		if err := s.store.Copy(uploadRel, snapshotRel); err != nil {
			s.logger.Warn("failed to create crop snapshot, cropping the working copy",
				slog.String("storedName", name),
				slog.String("error", err.Error()),
			)
		}
	}
	source := snapshotRel
	if !s.store.Exists(snapshotRel) {
		source = uploadRel
	}

	rect, err := s.processor.Crop(ctx, source, uploadRel, req.X, req.Y, req.Width, req.Height)
	if err != nil {
		if ctx.Err() != nil {
			return CropResult{}, ctx.Err()
		}
		if errors.Is(err, media.ErrNotImage) {
			return CropResult{}, invalidf("invalid image")
		}
		return CropResult{}, transformErr(err)
	}

	// the working copy has been replaced; the rest must finish even if the client left
	bg := context.WithoutCancel(ctx)

	if err := s.processor.CreatePreview(bg, uploadRel, previewRel, s.cfg.PreviewWidth); err != nil {
		s.logger.Warn("failed to rebuild preview after crop",
			slog.String("storedName", name),
			slog.String("error", err.Error()),
		)
	}

	previous, err := s.uploads.ApplyCrop(bg, name, rect.Dx(), rect.Dy(), previewRel)
	switch {
	case errors.Is(err, repository.ErrRecordNotFound):
		previous = &models.UploadRecord{StoredName: name}
	case err != nil:
		return CropResult{}, err
	}
	s.cleaner.RemoveRenditions(*previous)
	for _, c := range s.cleaner.RemoveCompositesOf(bg, name) {
		s.publish(EventCompositeDeleted, "", c.RelativePath)
	}
	s.publish(EventUploadUpdated, name, uploadRel)

	s.logger.Info("upload cropped",
		slog.String("storedName", name),
		slog.Int("width", rect.Dx()),
		slog.Int("height", rect.Dy()),
	)
	return CropResult{
		OK:                         true,
		StoredName:                 name,
		ImageWidth:                 rect.Dx(),
		ImageHeight:                rect.Dy(),
		PreviewRelativePath:        previewRel,
		OriginalRelativePath:       uploadRel,
		OriginalSourceRelativePath: snapshotRel,
	}, nil
}

// Delete removes the upload record and every file and composite derived from it.
func (s *UploadService) Delete(ctx context.Context, req DeleteRequest) (DeleteResult, error) {
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		return DeleteResult{}, err
	}
	if err := validStoredName(req.StoredName); err != nil {
		return DeleteResult{}, err
	}

	release, err := s.lockRecord(ctx, req.StoredName)
	if err != nil {
		return DeleteResult{}, err
	}
	defer release()

	removed, err := s.uploads.RemoveByStoredName(ctx, req.StoredName)
	if err != nil {
		return DeleteResult{}, err
	}
	if len(removed) == 0 {
		return DeleteResult{}, notFoundf("not found")
	}

	bg := context.WithoutCancel(ctx)
	for _, rec := range removed {
		for _, c := range s.cleaner.RemoveUploadFiles(bg, rec) {
			s.publish(EventCompositeDeleted, "", c.RelativePath)
		}
	}
	s.publish(EventUploadDeleted, req.StoredName, "")
	s.logger.Info("upload deleted", slog.String("storedName", req.StoredName))
	return DeleteResult{OK: true, StoredName: req.StoredName}, nil
}
