package commands

import (
	"bytes"
	"fmt"
	"image"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog/log"

	"github.com/jo-hoe/venicebridges/internal/backend/commandstructure"
	"github.com/jo-hoe/venicebridges/internal/common"
)

const scaleName = "ScaleCommand"

// ScaleCommand shrinks JPEG input to fit inside maxWidth x maxHeight keeping
// the aspect ratio. Smaller images pass through. It expects to run after
// JpegConverterCommand.
type ScaleCommand struct {
	maxWidth  int
	maxHeight int
	quality   int
	maxPixels int
	filter    resize.InterpolationFunction
}

var scaleFilters = map[string]resize.InterpolationFunction{
	"nearest":  resize.NearestNeighbor,
	"bilinear": resize.Bilinear,
	"bicubic":  resize.Bicubic,
	"lanczos2": resize.Lanczos2,
	"lanczos3": resize.Lanczos3,
}

func NewScaleCommand(params map[string]any) (commandstructure.Command, error) {
	if err := commandstructure.ValidateRequiredParams(params, []string{"maxWidth", "maxHeight"}); err != nil {
		return nil, err
	}
	w := commandstructure.GetIntParam(params, "maxWidth", 0)
	h := commandstructure.GetIntParam(params, "maxHeight", 0)
	if w <= 0 {
		return nil, fmt.Errorf("maxWidth must be positive, got %d", w)
	}
	if h <= 0 {
		return nil, fmt.Errorf("maxHeight must be positive, got %d", h)
	}
	quality := commandstructure.GetIntParam(params, "quality", defaultJPEGQuality)
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("quality must be between 1 and 100, got %d", quality)
	}
	maxPixels, err := maxPixelsParam(params)
	if err != nil {
		return nil, err
	}
	filterName := commandstructure.GetStringParam(params, "filter", "lanczos3")
	filter, ok := scaleFilters[filterName]
	if !ok {
		return nil, fmt.Errorf("unknown filter %q", filterName)
	}
	return &ScaleCommand{maxWidth: w, maxHeight: h, quality: quality, maxPixels: maxPixels, filter: filter}, nil
}

func (c *ScaleCommand) Name() string {
	return scaleName
}

func (c *ScaleCommand) Execute(imageData []byte) ([]byte, error) {
	cfg, _, err := decodeConfigWithin(imageData, c.maxPixels)
	if err != nil {
		return nil, err
	}
	if cfg.Width <= c.maxWidth && cfg.Height <= c.maxHeight {
		return imageData, nil
	}

	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidImage, err)
	}
	scaled := resize.Thumbnail(uint(c.maxWidth), uint(c.maxHeight), img, c.filter)

	log.Debug().Int("from_width", cfg.Width).Int("from_height", cfg.Height).
		Int("to_width", scaled.Bounds().Dx()).Int("to_height", scaled.Bounds().Dy()).
		Msg("scaled image")
	return encodeJPEG(scaled, c.quality)
}

func init() {
	if err := commandstructure.DefaultRegistry.Register(scaleName, NewScaleCommand); err != nil {
		panic(fmt.Sprintf("failed to register %s: %v", scaleName, err))
	}
}
