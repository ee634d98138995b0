package bridge

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

type geoJSONCollection struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

type geoJSONFeature struct {
	Properties map[string]any   `json:"properties"`
	Geometry   *geoJSONGeometry `json:"geometry"`
}

type geoJSONGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// point decodes the coordinates of a Point geometry as lon, lat.
func (g *geoJSONGeometry) point() (Location, bool) {
	if g == nil || g.Type != "Point" {
		return Location{}, false
	}
	var coords []float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil || len(coords) < 2 {
		return Location{}, false
	}
	return Location{Lon: coords[0], Lat: coords[1]}, true
}

// GeoJSONSource reads bridges from a FeatureCollection of Point features.
type GeoJSONSource struct {
	Path   string
	Fields FieldMapping
}

func NewGeoJSONSource(path string, fields FieldMapping) *GeoJSONSource {
	return &GeoJSONSource{Path: path, Fields: fields.withDefaults()}
}

func (s *GeoJSONSource) Load(_ context.Context) ([]Bridge, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read geojson file %s: %w", s.Path, err)
	}
	return ParseGeoJSON(data, s.Fields)
}

// ParseGeoJSON decodes a FeatureCollection. Features without a point geometry
// or a usable id are skipped.
func ParseGeoJSON(data []byte, fields FieldMapping) ([]Bridge, error) {
	fields = fields.withDefaults()

	var fc geoJSONCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse geojson: %w", err)
	}
	if fc.Type != "" && fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("unexpected geojson type %q, want FeatureCollection", fc.Type)
	}

	bridges := make([]Bridge, 0, len(fc.Features))
	for i, f := range fc.Features {
		loc, ok := f.Geometry.point()
		if !ok {
			log.Warn().Int("index", i).Msg("skipping geojson feature without point geometry")
			continue
		}
		b, err := fromAttributes(f.Properties, fields, loc)
		if err != nil {
			log.Warn().Int("index", i).Err(err).Msg("skipping geojson feature")
			continue
		}
		bridges = append(bridges, b)
	}
	return bridges, nil
}
