// Package geo handles GeoJSON feature collections and UTM zone lookup.
package geo

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/tdewolff/minify/v2"
	jsonmin "github.com/tdewolff/minify/v2/json"
	"gopkg.in/yaml.v3"
)

// Format is an output encoding for feature collections.
type Format string

// Supported output formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ErrGeometryCount is returned when a geometry column does not match the collection length.
var ErrGeometryCount = errors.New("geometry count does not match feature count")

// rawGeometry mirrors the parts of a GeoJSON geometry needed to spot empty points,
// which orb decodes as (0, 0).
type rawGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
	Geometries  []*rawGeometry  `json:"geometries"`
}

// DecodeCollection parses GeoJSON data into a feature collection.
// A single Feature or a bare geometry object is wrapped into a one-element collection.
// Points without coordinates are removed: a bare or feature-level empty Point
// becomes a nil geometry, and empty members of a MultiPoint or GeometryCollection are dropped.
func DecodeCollection(data []byte) (*geojson.FeatureCollection, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}

	switch probe.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("decode feature collection: %w", err)
		}

		var raw struct {
			Features []struct {
				Geometry *rawGeometry `json:"geometry"`
			} `json:"features"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode feature collection: %w", err)
		}
		for i, f := range fc.Features {
			if i < len(raw.Features) {
				f.Geometry = dropEmptyPoints(raw.Features[i].Geometry, f.Geometry)
			}
		}
		return fc, nil

	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("decode feature: %w", err)
		}

		var raw struct {
			Geometry *rawGeometry `json:"geometry"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode feature: %w", err)
		}
		f.Geometry = dropEmptyPoints(raw.Geometry, f.Geometry)

		fc := geojson.NewFeatureCollection()
		fc.Append(f)
		return fc, nil

	case "":
		return nil, errors.New("decode geojson: missing type member")

	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("decode geometry: %w", err)
		}

		var raw rawGeometry
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode geometry: %w", err)
		}

		fc := geojson.NewFeatureCollection()
		fc.Append(geojson.NewFeature(dropEmptyPoints(&raw, g.Geometry())))
		return fc, nil
	}
}

// dropEmptyPoints removes points whose raw coordinates hold fewer than two values.
// It returns nil when g itself is such a point.
func dropEmptyPoints(raw *rawGeometry, g orb.Geometry) orb.Geometry {
	if raw == nil || g == nil {
		return g
	}

	switch raw.Type {
	case "Point":
		var pos []float64
		if err := json.Unmarshal(raw.Coordinates, &pos); err != nil || len(pos) < 2 {
			return nil
		}

	case "MultiPoint":
		mp, ok := g.(orb.MultiPoint)
		var positions [][]float64
		if !ok || json.Unmarshal(raw.Coordinates, &positions) != nil || len(positions) != len(mp) {
			return g
		}
		kept := orb.MultiPoint{}
		for i, pos := range positions {
			if len(pos) >= 2 {
				kept = append(kept, mp[i])
			}
		}
		return kept

	case "GeometryCollection":
		c, ok := g.(orb.Collection)
		if !ok || len(raw.Geometries) != len(c) {
			return g
		}
		kept := orb.Collection{}
		for i, member := range c {
			if m := dropEmptyPoints(raw.Geometries[i], member); m != nil {
				kept = append(kept, m)
			}
		}
		return kept
	}

	return g
}

// Geometries returns the geometry column of the collection in feature order.
func Geometries(fc *geojson.FeatureCollection) []orb.Geometry {
	geoms := make([]orb.Geometry, len(fc.Features))
	for i, f := range fc.Features {
		geoms[i] = f.Geometry
	}

	return geoms
}

// SetGeometries replaces the geometry column of the collection.
// geoms must hold exactly one geometry per feature, in feature order.
func SetGeometries(fc *geojson.FeatureCollection, geoms []orb.Geometry) error {
	if len(geoms) != len(fc.Features) {
		return fmt.Errorf("%w: %d geometries for %d features", ErrGeometryCount, len(geoms), len(fc.Features))
	}

	for i, g := range geoms {
		fc.Features[i].Geometry = g
	}

	return nil
}

// EncodeCollection serializes the collection in the requested format.
// JSON is indented unless minified; minify has no effect on YAML.
func EncodeCollection(fc *geojson.FeatureCollection, format Format, minified bool) ([]byte, error) {
	switch format {
	case FormatYAML:
		raw, err := fc.MarshalJSON()
		if err != nil {
			return nil, err
		}

		// go through a generic tree so YAML keys follow GeoJSON member names
		var tree any
		if err := json.Unmarshal(raw, &tree); err != nil {
			return nil, err
		}
		return yaml.Marshal(tree)

	case FormatJSON, "":
		raw, err := json.MarshalIndent(fc, "", "  ")
		if err != nil {
			return nil, err
		}
		if !minified {
			return raw, nil
		}
		return Minify(raw)

	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// Minify strips insignificant whitespace from JSON data.
func Minify(data []byte) ([]byte, error) {
	m := minify.New()
	m.AddFunc("application/json", jsonmin.Minify)

	out, err := m.Bytes("application/json", data)
	if err != nil {
		return nil, fmt.Errorf("minify json: %w", err)
	}

	return out, nil
}
