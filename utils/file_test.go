package utils

import (
	"errors"
	"testing"
)

func TestBareFileName(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{in: "3f2c9a.jpg"},
		{in: "no-extension"},
		{in: "", wantErr: true},
		{in: ".", wantErr: true},
		{in: "..", wantErr: true},
		{in: "../history.json", wantErr: true},
		{in: "upload/a.jpg", wantErr: true},
		{in: `upload\a.jpg`, wantErr: true},
		{in: "/etc/passwd", wantErr: true},
		{in: "a.jpg/", wantErr: true},
		{in: "a\x00.jpg", wantErr: true},
	}

	for _, tt := range tests {
		got, err := BareFileName(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidName) {
				t.Errorf("BareFileName(%q) err = %v, want ErrInvalidName", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.in {
			t.Errorf("BareFileName(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestBaseOfRelativePath(t *testing.T) {
	tests := map[string]string{
		"split/20260110-112233-123-abc.jpg": "20260110-112233-123-abc.jpg",
		`trashimg\x.png`:                    "x.png",
		"x.png":                             "x.png",
	}
	for in, want := range tests {
		got, err := BaseOfRelativePath(in)
		if err != nil || got != want {
			t.Errorf("BaseOfRelativePath(%q) = %q, %v; want %q", in, got, err, want)
		}
	}

	for _, bad := range []string{"", "split/", "..", "/"} {
		if _, err := BaseOfRelativePath(bad); err == nil {
			t.Errorf("BaseOfRelativePath(%q) should fail", bad)
		}
	}
}

func TestSanitizeExtension(t *testing.T) {
	tests := map[string]string{
		".jpg":                        ".jpg",
		".JPEG":                       ".JPEG",
		".p n?g":                       ".png",
		"":                             "",
		".averyveryverylongextension": "",
	}
	for in, want := range tests {
		if got := SanitizeExtension(in); got != want {
			t.Errorf("SanitizeExtension(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsRasterImage(t *testing.T) {
	for _, name := range []string{"a.jpg", "b.PNG", "c.webp", "d.gif", "e.bmp", "f.jpeg"} {
		if !IsRasterImage(name) {
			t.Errorf("%s should be a raster image", name)
		}
	}
	for _, name := range []string{"a.txt", "b", "c.heic"} {
		if IsRasterImage(name) {
			t.Errorf("%s should not be a raster image", name)
		}
	}
}
