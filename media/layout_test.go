package media

import (
	"errors"
	"image"
	"testing"
)

func TestMapViewRect(t *testing.T) {
	tests := []struct {
		name             string
		rect             ViewRect
		regionW, regionH int
		want             image.Rectangle
	}{
		{
			name:    "scale two in both axes",
			rect:    ViewRect{X: 100, Y: 50, W: 200, H: 100, ViewW: 640, ViewH: 360},
			regionW: 1280, regionH: 720,
			want: image.Rect(200, 100, 600, 300),
		},
		{
			name:    "degenerate viewport counts as one pixel",
			rect:    ViewRect{X: 1, Y: 1, W: 0.01, H: 0, ViewW: 0, ViewH: -5},
			regionW: 10, regionH: 10,
			want: image.Rect(10, 10, 11, 11),
		},
		{
			name:    "negative offset is preserved",
			rect:    ViewRect{X: -32, Y: -18, W: 704, H: 396, ViewW: 640, ViewH: 360},
			regionW: 636, regionH: 720,
			want: image.Rect(-32, -36, -32+700, -36+792),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MapViewRect(tt.rect, tt.regionW, tt.regionH); got != tt.want {
				t.Errorf("MapViewRect = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMapViewRectBoundsHugeValues(t *testing.T) {
	got := MapViewRect(ViewRect{X: -1e300, Y: 1e300, W: 1e300, H: 1e300}, 636, 720)
	if got.Min.X != -maxMappedPx || got.Min.Y != maxMappedPx || got.Dx() != maxMappedPx {
		t.Errorf("MapViewRect = %v, want coordinates bounded to %d", got, maxMappedPx)
	}
}

func TestVisibleSource(t *testing.T) {
	tests := []struct {
		name        string
		dest        image.Rectangle
		wantSrc     image.Rectangle
		wantVisible image.Rectangle
		wantOK      bool
	}{
		{
			name:        "inside the panel",
			dest:        image.Rect(10, 10, 110, 60),
			wantSrc:     image.Rect(0, 0, 200, 100),
			wantVisible: image.Rect(10, 10, 110, 60),
			wantOK:      true,
		},
		{
			name:        "negative origin keeps the lower right quarter",
			dest:        image.Rect(-100, -50, 100, 50),
			wantSrc:     image.Rect(100, 50, 200, 100),
			wantVisible: image.Rect(0, 0, 100, 50),
			wantOK:      true,
		},
		{
			name:        "huge rectangle maps to a few source pixels",
			dest:        image.Rect(0, 0, 1<<30, 1<<30),
			wantSrc:     image.Rect(0, 0, 1, 1),
			wantVisible: image.Rect(0, 0, 636, 720),
			wantOK:      true,
		},
		{
			name: "outside the panel",
			dest: image.Rect(700, 0, 800, 100),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, visible, ok := VisibleSource(tt.dest, 636, 720, 200, 100)
			if ok != tt.wantOK || src != tt.wantSrc || visible != tt.wantVisible {
				t.Errorf("VisibleSource = %v %v %v, want %v %v %v", src, visible, ok, tt.wantSrc, tt.wantVisible, tt.wantOK)
			}
		})
	}
}

func TestClampCropRect(t *testing.T) {
	tests := []struct {
		x, y, w, h int
		want       image.Rectangle
	}{
		{x: 10, y: 10, w: 20, h: 30, want: image.Rect(10, 10, 30, 40)},
		{x: -5, y: -5, w: 50, h: 50, want: image.Rect(0, 0, 50, 50)},
		{x: 90, y: 90, w: 50, h: 50, want: image.Rect(90, 90, 100, 100)},
		{x: 150, y: 10, w: 0, h: 5, want: image.Rect(99, 10, 100, 15)},
	}
	for _, tt := range tests {
		if got := ClampCropRect(tt.x, tt.y, tt.w, tt.h, 100, 100); got != tt.want {
			t.Errorf("ClampCropRect(%d,%d,%d,%d) = %v, want %v", tt.x, tt.y, tt.w, tt.h, got, tt.want)
		}
	}
}

func TestClampWindowRect(t *testing.T) {
	got, err := ClampWindowRect(WindowRect{X: -3.4, Y: 20.6, W: 500, H: 10}, 100, 50)
	if err != nil {
		t.Fatal(err)
	}
	if want := image.Rect(0, 21, 100, 31); got != want {
		t.Errorf("ClampWindowRect = %v, want %v", got, want)
	}

	for _, r := range []WindowRect{{W: 0, H: 10}, {W: 10, H: -1}, {W: 0.2, H: 10}} {
		if _, err := ClampWindowRect(r, 100, 50); !errors.Is(err, ErrInvalidRect) {
			t.Errorf("ClampWindowRect(%+v) err = %v, want ErrInvalidRect", r, err)
		}
	}
}

func TestNewSplitLayout(t *testing.T) {
	two := NewSplitLayout(1280, 720, 7, 2)
	wantPanels := []image.Rectangle{image.Rect(0, 0, 636, 720), image.Rect(643, 0, 1280, 720)}
	for i, want := range wantPanels {
		if two.Panels[i] != want {
			t.Errorf("split panel %d = %v, want %v", i, two.Panels[i], want)
		}
	}
	if len(two.Dividers) != 1 || two.Dividers[0] != image.Rect(636, 0, 643, 720) {
		t.Errorf("split dividers = %v", two.Dividers)
	}

	three := NewSplitLayout(1280, 720, 7, 3)
	for i, x := range []int{0, 429, 858} {
		if three.Panels[i].Min.X != x || three.Panels[i].Dx() != 422 {
			t.Errorf("split3 panel %d = %v, want x=%d w=422", i, three.Panels[i], x)
		}
	}
	if three.Dividers[0] != image.Rect(422, 0, 429, 720) || three.Dividers[1] != image.Rect(851, 0, 858, 720) {
		t.Errorf("split3 dividers = %v", three.Dividers)
	}
}

func TestFitTrashWindow(t *testing.T) {
	tests := []struct {
		name         string
		cropW, cropH int
		outW, outH   int
		want         image.Rectangle
	}{
		{"exact window", 735, 922, 1920, 1080, image.Rect(593, 79, 1328, 1001)},
		{"snaps when within two pixels", 734, 923, 1920, 1080, image.Rect(593, 79, 1328, 1001)},
		{"square crop is centred", 100, 100, 1920, 1080, image.Rect(546, 126, 546+828, 126+828)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FitTrashWindow(tt.cropW, tt.cropH, tt.outW, tt.outH); got != tt.want {
				t.Errorf("FitTrashWindow = %v, want %v", got, tt.want)
			}
		})
	}

	x, y, w, h := TrashWindow(960, 540)
	if x != 296.5 || y != 39.5 || w != 367.5 || h != 461 {
		t.Errorf("TrashWindow(960,540) = %v %v %v %v", x, y, w, h)
	}
}

func TestFitCentered(t *testing.T) {
	if got, want := FitCentered(100, 100, 1920, 1080), image.Rect(474, 54, 474+972, 54+972); got != want {
		t.Errorf("FitCentered square = %v, want %v", got, want)
	}
	if got, want := FitCentered(200, 100, 1920, 1080), image.Rect(96, 108, 96+1728, 108+864); got != want {
		t.Errorf("FitCentered wide = %v, want %v", got, want)
	}
}

func TestCornerRadius(t *testing.T) {
	if r := CornerRadius(972, 972); r != 8 {
		t.Errorf("CornerRadius large = %d", r)
	}
	if r := CornerRadius(10, 4); r != 2 {
		t.Errorf("CornerRadius small = %d", r)
	}
}
