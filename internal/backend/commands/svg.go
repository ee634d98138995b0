package commands

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"regexp"
	"strconv"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

const maxSVGSide = 4096

var (
	svgTagPattern  = regexp.MustCompile(`(?is)<svg\b[^>]*>`)
	svgSizePattern = regexp.MustCompile(`(?i)\b(width|height)\s*=\s*["']\s*([0-9]+(?:\.[0-9]+)?)\s*(px)?\s*["']`)
)

// isSVGData looks for an svg root element near the start of data.
func isSVGData(data []byte) bool {
	n := len(data)
	if n > 4096 {
		n = 4096
	}
	head := bytes.ToLower(data[:n])
	return bytes.Contains(head, []byte("<svg"))
}

// parseSvgExplicitSize reads pixel width and height from the root element.
// Relative units and missing attributes report ok=false.
func parseSvgExplicitSize(data []byte) (int, int, bool) {
	tag := svgTagPattern.Find(data)
	if tag == nil {
		return 0, 0, false
	}
	var w, h int
	for _, m := range svgSizePattern.FindAllSubmatch(tag, -1) {
		v, err := strconv.ParseFloat(string(m[2]), 64)
		if err != nil || v <= 0 {
			continue
		}
		switch string(bytes.ToLower(m[1])) {
		case "width":
			w = int(v)
		case "height":
			h = int(v)
		}
	}
	if w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

// renderSVG rasterises an SVG document at w x h on a white canvas.
func renderSVG(svgData []byte, w, h int) (image.Image, error) {
	if w <= 0 || h <= 0 || w > maxSVGSide || h > maxSVGSide {
		return nil, fmt.Errorf("invalid svg render size %dx%d", w, h)
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svgData))
	if err != nil {
		return nil, fmt.Errorf("failed to parse svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(w), float64(h))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(w, h, dst, dst.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1.0)
	return dst, nil
}
