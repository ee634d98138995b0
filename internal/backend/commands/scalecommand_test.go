package commands

import (
	"bytes"
	"errors"
	"testing"

	"github.com/jo-hoe/venicebridges/internal/common"
)

func TestScaleCommand_FitsInsideBounds(t *testing.T) {
	cmd, err := NewScaleCommand(map[string]any{"maxWidth": 50, "maxHeight": 50})
	if err != nil {
		t.Fatalf("failed to create command: %v", err)
	}

	out, err := cmd.Execute(encodeTestJPEG(t, testImage(200, 100)))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	img := decodeJPEG(t, out)
	if img.Bounds().Dx() != 50 || img.Bounds().Dy() != 25 {
		t.Errorf("expected 50x25, got %v", img.Bounds())
	}
}

func TestScaleCommand_SmallImagePassesThrough(t *testing.T) {
	cmd, err := NewScaleCommand(map[string]any{"maxWidth": 500, "maxHeight": 500})
	if err != nil {
		t.Fatalf("failed to create command: %v", err)
	}
	in := encodeTestJPEG(t, testImage(20, 10))

	out, err := cmd.Execute(in)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !bytes.Equal(in, out) {
		t.Error("expected unchanged bytes for an image inside the bounds")
	}
}

func TestScaleCommand_InvalidInput(t *testing.T) {
	cmd, err := NewScaleCommand(map[string]any{"maxWidth": 10, "maxHeight": 10})
	if err != nil {
		t.Fatalf("failed to create command: %v", err)
	}
	if _, err := cmd.Execute([]byte("nope")); !errors.Is(err, common.ErrInvalidImage) {
		t.Errorf("expected ErrInvalidImage, got %v", err)
	}
}

func TestNewScaleCommand_Params(t *testing.T) {
	for name, params := range map[string]map[string]any{
		"missing height": {"maxWidth": 10},
		"zero width":     {"maxWidth": 0, "maxHeight": 10},
		"negative":       {"maxWidth": 10, "maxHeight": -1},
		"bad quality":    {"maxWidth": 10, "maxHeight": 10, "quality": 300},
		"bad filter":     {"maxWidth": 10, "maxHeight": 10, "filter": "sharpest"},
		"zero maxPixels": {"maxWidth": 10, "maxHeight": 10, "maxPixels": 0},
	} {
		if _, err := NewScaleCommand(params); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestScaleCommand_RejectsTooManyPixels(t *testing.T) {
	cmd, err := NewScaleCommand(map[string]any{"maxWidth": 10, "maxHeight": 10})
	if err != nil {
		t.Fatalf("failed to create command: %v", err)
	}
	if _, err := cmd.Execute(oversizedPNG(t, 10000, 9000)); !errors.Is(err, common.ErrInvalidImage) {
		t.Errorf("expected ErrInvalidImage, got %v", err)
	}
}

func TestScaleCommand_Filter(t *testing.T) {
	cmd, err := NewScaleCommand(map[string]any{"maxWidth": 40, "maxHeight": 40, "filter": "nearest"})
	if err != nil {
		t.Fatalf("failed to create command: %v", err)
	}
	out, err := cmd.Execute(encodeTestJPEG(t, testImage(80, 40)))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if img := decodeJPEG(t, out); img.Bounds().Dx() != 40 || img.Bounds().Dy() != 20 {
		t.Errorf("expected 40x20, got %v", img.Bounds())
	}
}
