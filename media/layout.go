package media

import (
	"image"
	"math"
)

const (
	// trash template geometry, in pixels of the 1920x1080 reference template
	trashTemplateW = 1920.0
	trashTemplateH = 1080.0
	trashWindowX   = 593.0
	trashWindowY   = 79.0
	trashWindowW   = 735.0
	trashWindowH   = 922.0

	// snap to the template window when the scaled crop is this close
	trashSnapPx = 2

	windowCanvasW  = 1920
	windowCanvasH  = 1080
	windowFillRate = 0.9
	windowCornerPx = 8

	// mapped coordinates are bounded so absurd client values cannot overflow int
	maxMappedPx = 1 << 30
)

// roundPx rounds half to even.
func roundPx(v float64) int {
	return int(math.RoundToEven(v))
}

// MapViewRect scales a viewport rectangle into a region of regionW x regionH output pixels.
// Viewport sides <= 0 count as 1. The result is at least 1x1 and may lie partly outside
// the region.
func MapViewRect(r ViewRect, regionW, regionH int) image.Rectangle {
	vw, vh := r.ViewW, r.ViewH
	if vw <= 0 {
		vw = 1
	}
	if vh <= 0 {
		vh = 1
	}
	sx := float64(regionW) / vw
	sy := float64(regionH) / vh

	x := roundPx(boundPx(r.X * sx))
	y := roundPx(boundPx(r.Y * sy))
	w := max(1, roundPx(boundPx(r.W*sx)))
	h := max(1, roundPx(boundPx(r.H*sy)))
	return image.Rect(x, y, x+w, y+h)
}

func boundPx(v float64) float64 {
	return math.Min(math.Max(v, -maxMappedPx), maxMappedPx)
}

// VisibleSource returns the part of a mapped rectangle that lands inside a
// panelW x panelH panel, and the srcW x srcH source pixels that cover it. ok is false
// when the rectangle misses the panel entirely.
func VisibleSource(dest image.Rectangle, panelW, panelH, srcW, srcH int) (src, visible image.Rectangle, ok bool) {
	visible = dest.Intersect(image.Rect(0, 0, panelW, panelH))
	if visible.Empty() || dest.Empty() || srcW <= 0 || srcH <= 0 {
		return image.Rectangle{}, image.Rectangle{}, false
	}
	kx := float64(srcW) / float64(dest.Dx())
	ky := float64(srcH) / float64(dest.Dy())

	x0 := int(math.Floor(float64(visible.Min.X-dest.Min.X) * kx))
	y0 := int(math.Floor(float64(visible.Min.Y-dest.Min.Y) * ky))
	x1 := int(math.Ceil(float64(visible.Max.X-dest.Min.X) * kx))
	y1 := int(math.Ceil(float64(visible.Max.Y-dest.Min.Y) * ky))

	x0 = clampInt(x0, 0, srcW-1)
	y0 = clampInt(y0, 0, srcH-1)
	x1 = clampInt(x1, x0+1, srcW)
	y1 = clampInt(y1, y0+1, srcH)
	return image.Rect(x0, y0, x1, y1), visible, true
}

// ClampCropRect fits a requested crop into an imgW x imgH image. The origin is clamped
// into the image and the size into [1, remaining].
func ClampCropRect(x, y, w, h, imgW, imgH int) image.Rectangle {
	x = clampInt(x, 0, imgW-1)
	y = clampInt(y, 0, imgH-1)
	w = clampInt(w, 1, imgW-x)
	h = clampInt(h, 1, imgH-y)
	return image.Rect(x, y, x+w, y+h)
}

// ClampWindowRect rounds a source-pixel rectangle and fits it into the image. Non-positive
// sizes are rejected before clamping; ErrEmptyRect is returned when nothing is left.
func ClampWindowRect(r WindowRect, imgW, imgH int) (image.Rectangle, error) {
	x, y := roundPx(r.X), roundPx(r.Y)
	w, h := roundPx(r.W), roundPx(r.H)
	if w <= 0 || h <= 0 {
		return image.Rectangle{}, ErrInvalidRect
	}

	x = clampInt(x, 0, imgW-1)
	y = clampInt(y, 0, imgH-1)
	if x+w > imgW {
		w = imgW - x
	}
	if y+h > imgH {
		h = imgH - y
	}
	if w <= 0 || h <= 0 {
		return image.Rectangle{}, ErrEmptyRect
	}
	return image.Rect(x, y, x+w, y+h), nil
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	return min(max(v, lo), hi)
}

// SplitLayout places n equal panels side by side with a divider between neighbours.
type SplitLayout struct {
	Width    int
	Height   int
	Panels   []image.Rectangle
	Dividers []image.Rectangle
}

// NewSplitLayout splits width into panels separated by divider-wide stripes. The last
// panel absorbs the rounding remainder, so a 1280px canvas with 7px dividers
// yields 636+637 for two panels and 3x422 for three.
func NewSplitLayout(width, height, divider, panels int) SplitLayout {
	l := SplitLayout{Width: width, Height: height}
	if panels < 1 {
		return l
	}
	panelW := (width - divider*(panels-1)) / panels
	x := 0
	for i := 0; i < panels; i++ {
		w := panelW
		if i == panels-1 {
			w = width - x
		}
		l.Panels = append(l.Panels, image.Rect(x, 0, x+w, height))
		x += w
		if i < panels-1 {
			l.Dividers = append(l.Dividers, image.Rect(x, 0, x+divider, height))
			x += divider
		}
	}
	return l
}

// TrashWindow returns the template window scaled to an outW x outH template.
func TrashWindow(outW, outH int) (x, y, w, h float64) {
	k := (float64(outW)/trashTemplateW + float64(outH)/trashTemplateH) / 2
	return trashWindowX * k, trashWindowY * k, trashWindowW * k, trashWindowH * k
}

// FitTrashWindow scales a cropW x cropH cut into the template window and centres it there.
func FitTrashWindow(cropW, cropH, outW, outH int) image.Rectangle {
	winX, winY, winW, winH := TrashWindow(outW, outH)

	scale := (winH/float64(cropH) + winW/float64(cropW)) / 2
	tw := roundPx(float64(cropW) * scale)
	th := roundPx(float64(cropH) * scale)
	if math.Abs(float64(tw)-winW) <= trashSnapPx && math.Abs(float64(th)-winH) <= trashSnapPx {
		tw, th = roundPx(winW), roundPx(winH)
	}
	tw, th = max(1, tw), max(1, th)

	dx := roundPx(winX + (winW-float64(tw))/2)
	dy := roundPx(winY + (winH-float64(th))/2)
	return image.Rect(dx, dy, dx+tw, dy+th)
}

// FitCentered scales a cropW x cropH cut into 90% of the canvas without distortion and
// centres it.
func FitCentered(cropW, cropH, outW, outH int) image.Rectangle {
	scale := math.Min(float64(outW)*windowFillRate/float64(cropW), float64(outH)*windowFillRate/float64(cropH))
	if scale <= 0 {
		scale = 1
	}
	tw := max(1, roundPx(float64(cropW)*scale))
	th := max(1, roundPx(float64(cropH)*scale))
	dx := (outW - tw) / 2
	dy := (outH - th) / 2
	return image.Rect(dx, dy, dx+tw, dy+th)
}

// CornerRadius is the rounding radius for a placed window.
func CornerRadius(w, h int) int {
	return min(windowCornerPx, min(w, h)/2)
}
