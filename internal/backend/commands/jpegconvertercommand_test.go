package commands

import (
	"bytes"
	"errors"
	"testing"

	"github.com/jo-hoe/venicebridges/internal/backend/commandstructure"
	"github.com/jo-hoe/venicebridges/internal/common"
)

func newConverter(t *testing.T, params map[string]any) commandstructure.Command {
	t.Helper()
	cmd, err := NewJpegConverterCommand(params)
	if err != nil {
		t.Fatalf("failed to create converter: %v", err)
	}
	return cmd
}

func TestJpegConverterCommand_Registered(t *testing.T) {
	if !commandstructure.DefaultRegistry.IsRegistered("JpegConverterCommand") {
		t.Fatal("expected JpegConverterCommand in the default registry")
	}
	if !commandstructure.DefaultRegistry.IsRegistered("ScaleCommand") {
		t.Fatal("expected ScaleCommand in the default registry")
	}
}

func TestJpegConverterCommand_ConvertsRasterFormats(t *testing.T) {
	cmd := newConverter(t, nil)
	inputs := map[string][]byte{
		"png": encodePNG(t, testImage(32, 16)),
		"gif": encodeGIF(t, testImage(32, 16)),
	}
	for name, data := range inputs {
		t.Run(name, func(t *testing.T) {
			out, err := cmd.Execute(data)
			if err != nil {
				t.Fatalf("Execute failed: %v", err)
			}
			img := decodeJPEG(t, out)
			if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 16 {
				t.Errorf("expected 32x16, got %v", img.Bounds())
			}
		})
	}
}

func TestJpegConverterCommand_PassesJPEGThrough(t *testing.T) {
	cmd := newConverter(t, nil)
	in := encodeTestJPEG(t, testImage(8, 8))

	out, err := cmd.Execute(in)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !bytes.Equal(in, out) {
		t.Error("expected jpeg input to be returned unchanged")
	}
}

func TestJpegConverterCommand_RejectsGarbage(t *testing.T) {
	cmd := newConverter(t, nil)
	for name, data := range map[string][]byte{
		"text":        []byte("definitely not an image"),
		"empty":       nil,
		"broken jpeg": {0xFF, 0xD8, 0xFF, 0x00, 0x01},
		"broken svg":  []byte("<svg width=\"10\" height=\"10\"><rect"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := cmd.Execute(data)
			if !errors.Is(err, common.ErrInvalidImage) {
				t.Errorf("expected ErrInvalidImage, got %v", err)
			}
		})
	}
}

func TestJpegConverterCommand_RendersSVG(t *testing.T) {
	svg := []byte(`<?xml version="1.0"?>
<svg xmlns="http://www.w3.org/2000/svg" width="40px" height="20">
  <rect x="0" y="0" width="40" height="20" fill="#ff0000"/>
</svg>`)

	out, err := newConverter(t, nil).Execute(svg)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	img := decodeJPEG(t, out)
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 20 {
		t.Fatalf("expected 40x20, got %v", img.Bounds())
	}
	r, g, b, _ := img.At(20, 10).RGBA()
	if r>>8 < 200 || g>>8 > 60 || b>>8 > 60 {
		t.Errorf("expected red center pixel, got r=%d g=%d b=%d", r>>8, g>>8, b>>8)
	}
}

func TestJpegConverterCommand_SVGFallbackSize(t *testing.T) {
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 10"><circle cx="5" cy="5" r="4"/></svg>`)

	out, err := newConverter(t, map[string]any{"svgFallbackWidth": 24, "svgFallbackHeight": 12}).Execute(svg)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	img := decodeJPEG(t, out)
	if img.Bounds().Dx() != 24 || img.Bounds().Dy() != 12 {
		t.Errorf("expected 24x12, got %v", img.Bounds())
	}
}

func TestNewJpegConverterCommand_Quality(t *testing.T) {
	if _, err := NewJpegConverterCommand(map[string]any{"quality": 0}); err == nil {
		t.Error("expected error for quality 0")
	}
	if _, err := NewJpegConverterCommand(map[string]any{"quality": 101}); err == nil {
		t.Error("expected error for quality 101")
	}
	if _, err := NewJpegConverterCommand(map[string]any{"quality": 75}); err != nil {
		t.Errorf("expected quality 75 to be accepted, got %v", err)
	}
}

func TestParseSvgExplicitSize(t *testing.T) {
	tests := []struct {
		in     string
		w, h   int
		wantOK bool
	}{
		{`<svg width="100" height="50">`, 100, 50, true},
		{`<svg height='7.5px' width='3'>`, 3, 7, true},
		{`<svg width="100%" height="50%">`, 0, 0, false},
		{`<svg viewBox="0 0 10 10">`, 0, 0, false},
		{`<html></html>`, 0, 0, false},
	}
	for _, tt := range tests {
		w, h, ok := parseSvgExplicitSize([]byte(tt.in))
		if ok != tt.wantOK || w != tt.w || h != tt.h {
			t.Errorf("parseSvgExplicitSize(%q) = %d, %d, %v; want %d, %d, %v", tt.in, w, h, ok, tt.w, tt.h, tt.wantOK)
		}
	}
}

func TestJpegConverterCommand_RejectsTooManyPixels(t *testing.T) {
	cmd := newConverter(t, nil)

	_, err := cmd.Execute(oversizedPNG(t, 8000, 8000))
	if !errors.Is(err, common.ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage for a 64 MP png, got %v", err)
	}

	small := newConverter(t, map[string]any{"maxPixels": 100})
	if _, err := small.Execute(encodePNG(t, testImage(20, 20))); !errors.Is(err, common.ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage above maxPixels, got %v", err)
	}
	if _, err := small.Execute(encodeTestJPEG(t, testImage(20, 20))); !errors.Is(err, common.ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage for jpeg above maxPixels, got %v", err)
	}
	if _, err := small.Execute(encodePNG(t, testImage(10, 10))); err != nil {
		t.Fatalf("expected image at the limit to convert, got %v", err)
	}
}

func TestJpegConverterCommand_ReencodesJPEGWhenAsked(t *testing.T) {
	cmd := newConverter(t, map[string]any{"reencodeJpeg": "yes", "quality": 50})
	in := encodeTestJPEG(t, testImage(16, 8))

	out, err := cmd.Execute(in)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if bytes.Equal(in, out) {
		t.Error("expected jpeg input to be re-encoded")
	}
	if img := decodeJPEG(t, out); img.Bounds().Dx() != 16 || img.Bounds().Dy() != 8 {
		t.Errorf("expected 16x8, got %v", img.Bounds())
	}
}

func TestNewJpegConverterCommand_MaxPixels(t *testing.T) {
	if _, err := NewJpegConverterCommand(map[string]any{"maxPixels": 0}); err == nil {
		t.Error("expected error for zero maxPixels")
	}
}
