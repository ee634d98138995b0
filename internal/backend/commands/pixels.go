package commands

import (
	"bytes"
	"fmt"
	"image"

	"github.com/jo-hoe/venicebridges/internal/backend/commandstructure"
	"github.com/jo-hoe/venicebridges/internal/common"
)

// defaultMaxPixels bounds width*height of raster input before it is decoded.
const defaultMaxPixels = 40_000_000

func maxPixelsParam(params map[string]any) (int, error) {
	maxPixels := commandstructure.GetIntParam(params, "maxPixels", defaultMaxPixels)
	if maxPixels <= 0 {
		return 0, fmt.Errorf("maxPixels must be positive, got %d", maxPixels)
	}
	return maxPixels, nil
}

// decodeConfigWithin reads only the image header and rejects images larger
// than maxPixels.
func decodeConfigWithin(data []byte, maxPixels int) (image.Config, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, "", fmt.Errorf("%w: %v", common.ErrInvalidImage, err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return image.Config{}, "", fmt.Errorf("%w: %dx%d exceeds %d pixels",
			common.ErrInvalidImage, cfg.Width, cfg.Height, maxPixels)
	}
	return cfg, format, nil
}
