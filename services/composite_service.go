package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jmaka/jmakabackend/config"
	"github.com/jmaka/jmakabackend/media"
	"github.com/jmaka/jmakabackend/models"
	"github.com/jmaka/jmakabackend/repository"
)

type SplitRequest struct {
	StoredNameA string         `json:"storedNameA"`
	StoredNameB string         `json:"storedNameB"`
	A           media.ViewRect `json:"a"`
	B           media.ViewRect `json:"b"`
}

type Split3Request struct {
	StoredNameA string         `json:"storedNameA"`
	StoredNameB string         `json:"storedNameB"`
	StoredNameC string         `json:"storedNameC"`
	A           media.ViewRect `json:"a"`
	B           media.ViewRect `json:"b"`
	C           media.ViewRect `json:"c"`
}

// WindowCropRequest carries a rectangle in source image pixels.
type WindowCropRequest struct {
	StoredName string  `json:"storedName"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
}

type CompositeResult struct {
	OK           bool                 `json:"ok"`
	Kind         models.CompositeKind `json:"kind"`
	CreatedAt    time.Time            `json:"createdAt"`
	RelativePath string               `json:"relativePath"`
}

type DeleteCompositeRequest struct {
	RelativePath string `json:"relativePath"`
}

type DeleteCompositeResult struct {
	OK           bool   `json:"ok"`
	RelativePath string `json:"relativePath"`
}

// CompositeService builds and removes composites.
type CompositeService struct {
	cfg        config.Config
	composites repository.CompositeRepositoryInterface
	store      media.Store
	processor  *media.Processor
	sweeper    *Sweeper
	cleaner    *Cleaner
	notifier   Notifier
	logger     *slog.Logger
	now        func() time.Time
}

func NewCompositeService(
	cfg config.Config,
	composites repository.CompositeRepositoryInterface,
	store media.Store,
	processor *media.Processor,
	sweeper *Sweeper,
	cleaner *Cleaner,
	notifier Notifier,
	logger *slog.Logger,
) *CompositeService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &CompositeService{
		cfg:        cfg,
		composites: composites,
		store:      store,
		processor:  processor,
		sweeper:    sweeper,
		cleaner:    cleaner,
		notifier:   notifier,
		logger:     logger.With(slog.String("component", "composites")),
		now:        time.Now,
	}
}

// compositeFileName looks like 20260110-112233-123-<uuid hex><ext>.
func compositeFileName(t time.Time, ext string) string {
	t = t.UTC()
	return fmt.Sprintf("%s-%03d-%s%s",
		t.Format("20060102-150405"),
		t.Nanosecond()/int(time.Millisecond),
		strings.ReplaceAll(uuid.NewString(), "-", ""),
		ext,
	)
}

// List returns the composite history newest first.
func (s *CompositeService) List(ctx context.Context) ([]models.CompositeRecord, error) {
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		return nil, err
	}
	items, err := s.composites.List(ctx)
	if err != nil {
		return nil, err
	}
	newestComposites(items)
	return capped(items, s.cfg.ListLimit), nil
}

// checkSource resolves storedName to its working copy, which must exist and decode.
func (s *CompositeService) checkSource(storedName string, requireImage bool) (string, error) {
	if err := validStoredName(storedName); err != nil {
		return "", err
	}
	rel := s.store.RelPath(media.AssetTypeUpload, storedName)
	if !s.store.Exists(rel) {
		return "", notFoundf("original file not found")
	}
	if requireImage {
		if _, _, ok := s.processor.DecodeDimensions(rel); !ok {
			return "", invalidf("file is not a supported image")
		}
	}
	return rel, nil
}

// Split places two sources side by side.
func (s *CompositeService) Split(ctx context.Context, req SplitRequest) (CompositeResult, error) {
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		return CompositeResult{}, err
	}
	if strings.TrimSpace(req.StoredNameA) == "" || strings.TrimSpace(req.StoredNameB) == "" {
		return CompositeResult{}, invalidf("storedNameA and storedNameB are required")
	}
	return s.split(ctx, models.CompositeSplit,
		[]string{req.StoredNameA, req.StoredNameB},
		[]media.ViewRect{req.A, req.B},
	)
}

// Split3 places three sources side by side.
func (s *CompositeService) Split3(ctx context.Context, req Split3Request) (CompositeResult, error) {
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		return CompositeResult{}, err
	}
	if strings.TrimSpace(req.StoredNameA) == "" || strings.TrimSpace(req.StoredNameB) == "" || strings.TrimSpace(req.StoredNameC) == "" {
		return CompositeResult{}, invalidf("storedNameA, storedNameB and storedNameC are required")
	}
	return s.split(ctx, models.CompositeSplit3,
		[]string{req.StoredNameA, req.StoredNameB, req.StoredNameC},
		[]media.ViewRect{req.A, req.B, req.C},
	)
}

func (s *CompositeService) split(ctx context.Context, kind models.CompositeKind, names []string, rects []media.ViewRect) (CompositeResult, error) {
	placements := make([]media.Placement, len(names))
	for i, name := range names {
		rel, err := s.checkSource(name, true)
		if err != nil {
			return CompositeResult{}, err
		}
		placements[i] = media.Placement{SourceRel: rel, Rect: rects[i]}
	}

	layout := media.NewSplitLayout(s.cfg.SplitWidth, s.cfg.SplitHeight, s.cfg.DividerWidth, len(names))
	rel := s.store.RelPath(compositeAssetType(kind), compositeFileName(s.now(), ".jpg"))
	if err := s.processor.ComposeSplit(ctx, rel, layout, placements); err != nil {
		return CompositeResult{}, s.composeErr(ctx, err)
	}
	return s.record(ctx, kind, rel, names)
}

// TrashImg cuts a rectangle from the source and fits it into the trash template window.
func (s *CompositeService) TrashImg(ctx context.Context, req WindowCropRequest) (CompositeResult, error) {
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		return CompositeResult{}, err
	}
	src, err := s.checkSource(req.StoredName, false)
	if err != nil {
		return CompositeResult{}, err
	}

	rel := s.store.RelPath(media.AssetTypeTrashImg, compositeFileName(s.now(), ".jpg"))
	rect := media.WindowRect{X: req.X, Y: req.Y, W: req.W, H: req.H}
	if err := s.processor.ComposeTrash(ctx, src, rel, s.cfg.TrashTemplate, rect); err != nil {
		return CompositeResult{}, s.composeErr(ctx, err)
	}
	return s.record(ctx, models.CompositeTrashImg, rel, []string{req.StoredName})
}

// OknoScale cuts a rectangle from the source and centres it on a rounded window card.
func (s *CompositeService) OknoScale(ctx context.Context, req WindowCropRequest) (CompositeResult, error) {
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		return CompositeResult{}, err
	}
	src, err := s.checkSource(req.StoredName, false)
	if err != nil {
		return CompositeResult{}, err
	}

	rel := s.store.RelPath(media.AssetTypeTrashImg, compositeFileName(s.now(), ".png"))
	rect := media.WindowRect{X: req.X, Y: req.Y, W: req.W, H: req.H}
	if err := s.processor.ComposeWindow(ctx, src, rel, rect); err != nil {
		return CompositeResult{}, s.composeErr(ctx, err)
	}
	return s.record(ctx, models.CompositeOknoScale, rel, []string{req.StoredName})
}

func (s *CompositeService) composeErr(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, media.ErrInvalidRect):
		return invalidf("invalid crop rect")
	case errors.Is(err, media.ErrEmptyRect):
		return invalidf("empty crop after clamp")
	case errors.Is(err, media.ErrNotImage):
		return invalidf("invalid image")
	default:
		return transformErr(err)
	}
}

// record appends the composite once its file is fully written. A failed append removes
// the file again.
func (s *CompositeService) record(ctx context.Context, kind models.CompositeKind, rel string, sources []string) (CompositeResult, error) {
	createdAt := s.now().UTC()
	rec := models.CompositeRecord{
		Kind:         kind,
		CreatedAt:    createdAt,
		RelativePath: rel,
		Sources:      append([]string(nil), sources...),
	}
	if err := s.composites.Append(context.WithoutCancel(ctx), rec); err != nil {
		s.cleaner.RemoveCompositeFile(rec)
		return CompositeResult{}, err
	}
	s.notifier.Publish(Event{Type: EventCompositeCreated, RelativePath: rel, At: createdAt})
	s.logger.Info("composite created",
		slog.String("kind", string(kind)),
		slog.String("relativePath", rel),
		slog.Any("sources", sources),
	)
	return CompositeResult{OK: true, Kind: kind, CreatedAt: createdAt, RelativePath: rel}, nil
}

// DeleteComposite removes one composite record and its file.
func (s *CompositeService) DeleteComposite(ctx context.Context, req DeleteCompositeRequest) (DeleteCompositeResult, error) {
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		return DeleteCompositeResult{}, err
	}
	if strings.TrimSpace(req.RelativePath) == "" {
		return DeleteCompositeResult{}, invalidf("relativePath is required")
	}
	if _, ok := CompositeRelPath(s.store, models.CompositeRecord{RelativePath: req.RelativePath}); !ok {
		return DeleteCompositeResult{}, invalidf("invalid relativePath")
	}

	removed, err := s.composites.RemoveByPath(ctx, req.RelativePath)
	if errors.Is(err, repository.ErrRecordNotFound) {
		return DeleteCompositeResult{}, notFoundf("not found")
	}
	if err != nil {
		return DeleteCompositeResult{}, err
	}

	s.cleaner.RemoveCompositeFile(*removed)
	s.notifier.Publish(Event{Type: EventCompositeDeleted, RelativePath: removed.RelativePath, At: s.now().UTC()})
	return DeleteCompositeResult{OK: true, RelativePath: removed.RelativePath}, nil
}
