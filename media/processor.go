package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"os"
	"time"

	"github.com/disintegration/imaging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var transformDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "jmaka_transform_duration_seconds",
	Help:    "Time spent decoding, transforming and encoding images",
	Buckets: prometheus.DefBuckets,
}, []string{"op"})

var (
	compositeBackground = color.NRGBA{R: 0, G: 0, B: 0, A: 255}
	dividerColor        = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	cardBackground      = color.NRGBA{R: 243, G: 244, B: 246, A: 255}
)

// Processor handles media transformations: renditions, previews, crops and composites.
// It relies on a Store for path resolution and atomic replacement of the results.
type Processor struct {
	store       Store
	logger      *slog.Logger
	jpegQuality int
}

func NewProcessor(store Store, logger *slog.Logger) *Processor {
	return &Processor{
		store:       store,
		logger:      logger.With(slog.String("component", "processor")),
		jpegQuality: defaultJPEGQuality,
	}
}

func observe(op string, start time.Time) {
	transformDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (p *Processor) open(rel string) (image.Image, error) {
	full, err := p.store.FullPath(rel)
	if err != nil {
		return nil, err
	}
	return openImage(full)
}

// write encodes img to rel. ctx is checked once before the temp file is created; once
// encoding has started the replace runs to completion.
func (p *Processor) write(ctx context.Context, img image.Image, rel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.store.AtomicReplace(rel, func(tmpPath string) error {
		return encodeToFile(img, tmpPath, p.jpegQuality)
	})
}

// DecodeDimensions returns the pixel size of rel, or ok=false when it is not a decodable image.
func (p *Processor) DecodeDimensions(rel string) (width, height int, ok bool) {
	full, err := p.store.FullPath(rel)
	if err != nil {
		return 0, 0, false
	}
	cfg, err := decodeConfig(full)
	if err != nil {
		p.logger.Debug("not a decodable image", slog.String("path", rel), slog.String("error", err.Error()))
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}

// ResizeToWidth writes a rendition of src at width, keeping the aspect ratio. Upscaling is allowed.
func (p *Processor) ResizeToWidth(ctx context.Context, srcRel, dstRel string, width int) (image.Point, error) {
	defer observe("resize", time.Now())
	if width <= 0 {
		return image.Point{}, fmt.Errorf("invalid target width %d", width)
	}
	img, err := p.open(srcRel)
	if err != nil {
		return image.Point{}, err
	}
	b := img.Bounds()
	height := max(1, roundPx(float64(b.Dy())*float64(width)/float64(b.Dx())))

	resized := imaging.Resize(img, width, height, imaging.Lanczos)
	if err := p.write(ctx, resized, dstRel); err != nil {
		return image.Point{}, err
	}
	p.logger.Debug("generated rendition", slog.String("src", srcRel), slog.String("dst", dstRel), slog.Int("width", width))
	return image.Pt(width, height), nil
}

// CreatePreview writes a preview at most width pixels wide. Narrower sources are copied as is.
func (p *Processor) CreatePreview(ctx context.Context, srcRel, dstRel string, width int) error {
	defer observe("preview", time.Now())
	img, err := p.open(srcRel)
	if err != nil {
		return err
	}
	b := img.Bounds()
	if width <= 0 || b.Dx() <= width {
		if err := ctx.Err(); err != nil {
			return err
		}
		return p.store.Copy(srcRel, dstRel)
	}
	height := max(1, roundPx(float64(b.Dy())*float64(width)/float64(b.Dx())))
	return p.write(ctx, imaging.Resize(img, width, height, imaging.Lanczos), dstRel)
}

// Crop cuts the clamped rectangle out of src and writes it to dst. The clamped
// rectangle is returned.
func (p *Processor) Crop(ctx context.Context, srcRel, dstRel string, x, y, w, h int) (image.Rectangle, error) {
	defer observe("crop", time.Now())
	img, err := p.open(srcRel)
	if err != nil {
		return image.Rectangle{}, err
	}
	b := img.Bounds()
	rect := ClampCropRect(x, y, w, h, b.Dx(), b.Dy())

	cropped := imaging.Crop(img, rect.Add(b.Min))
	if err := p.write(ctx, cropped, dstRel); err != nil {
		return image.Rectangle{}, err
	}
	return rect, nil
}

// ComposeSplit draws one placement per panel of layout and writes the composite to dst.
// Each source is scaled to its mapped rectangle, clipped to its panel and drawn on a
// black canvas. The dividers are painted white on top.
func (p *Processor) ComposeSplit(ctx context.Context, dstRel string, layout SplitLayout, placements []Placement) error {
	defer observe("split", time.Now())
	if len(placements) != len(layout.Panels) {
		return fmt.Errorf("layout has %d panels, got %d placements", len(layout.Panels), len(placements))
	}

	output := imaging.New(layout.Width, layout.Height, compositeBackground)
	for i, pl := range placements {
		if err := ctx.Err(); err != nil {
			return err
		}
		panelRect := layout.Panels[i]
		src, err := p.open(pl.SourceRel)
		if err != nil {
			return err
		}

		// only the visible part of the mapped rectangle is rendered
		dest := MapViewRect(pl.Rect, panelRect.Dx(), panelRect.Dy())
		b := src.Bounds()
		srcRect, visible, ok := VisibleSource(dest, panelRect.Dx(), panelRect.Dy(), b.Dx(), b.Dy())
		if !ok {
			continue
		}
		cut := imaging.Crop(src, srcRect.Add(b.Min))
		scaled := imaging.Resize(cut, visible.Dx(), visible.Dy(), imaging.Lanczos)
		output = imaging.Overlay(output, scaled, panelRect.Min.Add(visible.Min), 1.0)
	}
	for _, d := range layout.Dividers {
		FillStripe(output, d, dividerColor)
	}
	return p.write(ctx, output, dstRel)
}

// ComposeTrash places a cut of src into the trash template window. The template PNG,
// when present, decides the canvas size and is alpha-blended over the picture; without
// it a plain 1920x1080 card is rendered.
func (p *Processor) ComposeTrash(ctx context.Context, srcRel, dstRel, templatePath string, rect WindowRect) error {
	defer observe("trashimg", time.Now())
	src, err := p.open(srcRel)
	if err != nil {
		return err
	}
	b := src.Bounds()
	cut, err := ClampWindowRect(rect, b.Dx(), b.Dy())
	if err != nil {
		return err
	}
	cropped := imaging.Crop(src, cut.Add(b.Min))

	var overlay image.Image
	outW, outH := windowCanvasW, windowCanvasH
	if templatePath != "" {
		overlay, err = openImage(templatePath)
		switch {
		case err == nil:
			outW, outH = overlay.Bounds().Dx(), overlay.Bounds().Dy()
		case errors.Is(err, os.ErrNotExist):
			overlay = nil
		default:
			p.logger.Warn("trash template unreadable, rendering plain card",
				slog.String("template", templatePath),
				slog.String("error", err.Error()),
			)
			overlay = nil
		}
	}

	dest := FitTrashWindow(cut.Dx(), cut.Dy(), outW, outH)
	scaled := imaging.Resize(cropped, dest.Dx(), dest.Dy(), imaging.Lanczos)

	output := imaging.New(outW, outH, cardBackground)
	output = imaging.Overlay(output, scaled, dest.Min, 1.0)
	if overlay != nil {
		output = imaging.Overlay(output, overlay, image.Point{}, 1.0)
	}
	return p.write(ctx, output, dstRel)
}

// ComposeWindow scales a cut of src into the centre of a 1920x1080 card and rounds the
// corners of the placed picture back to the card colour.
func (p *Processor) ComposeWindow(ctx context.Context, srcRel, dstRel string, rect WindowRect) error {
	defer observe("oknoscale", time.Now())
	src, err := p.open(srcRel)
	if err != nil {
		return err
	}
	b := src.Bounds()
	cut, err := ClampWindowRect(rect, b.Dx(), b.Dy())
	if err != nil {
		return err
	}
	cropped := imaging.Crop(src, cut.Add(b.Min))

	dest := FitCentered(cut.Dx(), cut.Dy(), windowCanvasW, windowCanvasH)
	scaled := imaging.Resize(cropped, dest.Dx(), dest.Dy(), imaging.Lanczos)

	output := imaging.New(windowCanvasW, windowCanvasH, cardBackground)
	output = imaging.Overlay(output, scaled, dest.Min, 1.0)
	RoundCorners(output, dest, CornerRadius(dest.Dx(), dest.Dy()), cardBackground)
	return p.write(ctx, output, dstRel)
}

// FillStripe paints r on canvas with a solid colour.
func FillStripe(canvas *image.NRGBA, r image.Rectangle, c color.Color) {
	draw.Draw(canvas, r.Intersect(canvas.Bounds()), &image.Uniform{C: c}, image.Point{}, draw.Src)
}

// RoundCorners repaints the pixels of r that fall outside its rounded corners with bg.
func RoundCorners(canvas *image.NRGBA, r image.Rectangle, radius int, bg color.NRGBA) {
	if radius <= 0 {
		return
	}
	left, top := r.Min.X, r.Min.Y
	right, bottom := r.Max.X-1, r.Max.Y-1
	cxLeft, cxRight := left+radius, right-radius
	cyTop, cyBottom := top+radius, bottom-radius
	r2 := radius * radius

	outside := func(dx, dy int) bool { return dx*dx+dy*dy > r2 }
	bounds := canvas.Bounds()
	for y := top; y <= bottom; y++ {
		for x := left; x <= right; x++ {
			var out bool
			switch {
			case x < cxLeft && y < cyTop:
				out = outside(cxLeft-x, cyTop-y)
			case x > cxRight && y < cyTop:
				out = outside(x-cxRight, cyTop-y)
			case x < cxLeft && y > cyBottom:
				out = outside(cxLeft-x, y-cyBottom)
			case x > cxRight && y > cyBottom:
				out = outside(x-cxRight, y-cyBottom)
			}
			if out && image.Pt(x, y).In(bounds) {
				canvas.SetNRGBA(x, y, bg)
			}
		}
	}
}
