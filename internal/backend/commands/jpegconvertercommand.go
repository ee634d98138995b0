// Package commands holds the image commands available to the upload pipeline.
package commands

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/jo-hoe/venicebridges/internal/backend/commandstructure"
	"github.com/jo-hoe/venicebridges/internal/common"
)

const (
	jpegConverterName  = "JpegConverterCommand"
	defaultJPEGQuality = 90
	defaultSVGSize     = 1024
)

// hasJPEGSignature reports whether data starts with a JPEG SOI marker.
func hasJPEGSignature(data []byte) bool {
	return len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF
}

// JpegConverterCommand re-encodes any supported upload as JPEG. Gallery keys
// end in ".jpg" so every stored photo has to be one. JPEG input is kept as is
// unless reencodeJpeg is set, which also drops its metadata.
type JpegConverterCommand struct {
	quality           int
	maxPixels         int
	reencodeJPEG      bool
	svgFallbackWidth  int
	svgFallbackHeight int
}

func NewJpegConverterCommand(params map[string]any) (commandstructure.Command, error) {
	quality := commandstructure.GetIntParam(params, "quality", defaultJPEGQuality)
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("quality must be between 1 and 100, got %d", quality)
	}
	maxPixels, err := maxPixelsParam(params)
	if err != nil {
		return nil, err
	}
	return &JpegConverterCommand{
		quality:           quality,
		maxPixels:         maxPixels,
		reencodeJPEG:      commandstructure.GetBoolParam(params, "reencodeJpeg", false),
		svgFallbackWidth:  commandstructure.GetIntParam(params, "svgFallbackWidth", defaultSVGSize),
		svgFallbackHeight: commandstructure.GetIntParam(params, "svgFallbackHeight", defaultSVGSize),
	}, nil
}

func (c *JpegConverterCommand) Name() string {
	return jpegConverterName
}

func (c *JpegConverterCommand) Execute(imageData []byte) ([]byte, error) {
	if hasJPEGSignature(imageData) && !c.reencodeJPEG {
		if _, _, err := decodeConfigWithin(imageData, c.maxPixels); err != nil {
			return nil, err
		}
		log.Debug().Msg("jpeg input, returning original bytes")
		return imageData, nil
	}

	var img image.Image
	if isSVGData(imageData) {
		w, h, ok := parseSvgExplicitSize(imageData)
		if !ok {
			w, h = c.svgFallbackWidth, c.svgFallbackHeight
		}
		rendered, err := renderSVG(imageData, w, h)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrInvalidImage, err)
		}
		img = rendered
	} else {
		if _, _, err := decodeConfigWithin(imageData, c.maxPixels); err != nil {
			return nil, err
		}
		decoded, format, err := image.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrInvalidImage, err)
		}
		log.Debug().Str("format", format).Int("width", decoded.Bounds().Dx()).Int("height", decoded.Bounds().Dy()).
			Msg("decoded upload")
		img = decoded
	}

	return encodeJPEG(flatten(img), c.quality)
}

// flatten draws img on white so transparent areas do not turn black.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func init() {
	if err := commandstructure.DefaultRegistry.Register(jpegConverterName, NewJpegConverterCommand); err != nil {
		panic(fmt.Sprintf("failed to register %s: %v", jpegConverterName, err))
	}
}
