package buffer

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/twpayne/go-geos"
)

// toGEOS converts an orb geometry into a GEOS geometry through WKB.
// The caller owns the result and must Destroy it.
func toGEOS(g orb.Geometry) (*geos.Geom, error) {
	data, err := wkb.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encode wkb: %w", err)
	}

	gg, err := geos.NewGeomFromWKB(data)
	if err != nil {
		return nil, fmt.Errorf("decode wkb: %w", err)
	}

	return gg, nil
}

func fromGEOS(g *geos.Geom) (orb.Geometry, error) {
	og, err := wkb.Unmarshal(g.ToWKB())
	if err != nil {
		return nil, fmt.Errorf("decode wkb: %w", err)
	}

	return og, nil
}

// RepresentativePoint returns a point guaranteed to lie on or inside g.
// The point is computed by GEOS PointOnSurface and is stable for a given geometry.
// Geometries GEOS cannot build, such as single-vertex lines, are degenerate.
func RepresentativePoint(g orb.Geometry) (orb.Point, error) {
	if isDegenerate(g) {
		return orb.Point{}, ErrDegenerateGeometry
	}

	gg, err := toGEOS(g)
	if err != nil {
		return orb.Point{}, fmt.Errorf("%w: %v", ErrDegenerateGeometry, err)
	}
	defer gg.Destroy()

	if gg.IsEmpty() {
		return orb.Point{}, ErrDegenerateGeometry
	}

	pt := gg.PointOnSurface()
	defer pt.Destroy()

	if pt.IsEmpty() {
		return orb.Point{}, ErrDegenerateGeometry
	}

	return orb.Point{pt.X(), pt.Y()}, nil
}

// planarBuffer buffers g by distance in its own coordinate units.
func planarBuffer(g orb.Geometry, distance float64, quadSegs int) (orb.Geometry, error) {
	gg, err := toGEOS(g)
	if err != nil {
		return nil, err
	}
	defer gg.Destroy()

	buffered := gg.Buffer(distance, quadSegs)
	defer buffered.Destroy()

	return fromGEOS(buffered)
}

// Area returns the planar area of g in its own coordinate units.
func Area(g orb.Geometry) (float64, error) {
	if isDegenerate(g) {
		return 0, nil
	}

	gg, err := toGEOS(g)
	if err != nil {
		return 0, err
	}
	defer gg.Destroy()

	return gg.Area(), nil
}

// isDegenerate reports whether g has no part GEOS can build a shape from:
// lines need two vertices and polygon shells four.
func isDegenerate(g orb.Geometry) bool {
	if g == nil {
		return true
	}

	switch g := g.(type) {
	case orb.MultiPoint:
		return len(g) == 0
	case orb.LineString:
		return len(g) < 2
	case orb.MultiLineString:
		for _, ls := range g {
			if len(ls) >= 2 {
				return false
			}
		}
		return true
	case orb.Polygon:
		return len(g) == 0 || len(g[0]) < 4
	case orb.MultiPolygon:
		for _, p := range g {
			if len(p) > 0 && len(p[0]) >= 4 {
				return false
			}
		}
		return true
	case orb.Collection:
		for _, c := range g {
			if !isDegenerate(c) {
				return false
			}
		}
		return true
	}

	return false
}
