// Package reproject transforms orb geometries between EPSG coordinate reference systems.
package reproject

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/rs/zerolog/log"
	"github.com/twpayne/go-proj/v10"
)

var (
	// ErrInvalidCRS is returned when no transformation can be built between two EPSG codes.
	ErrInvalidCRS = errors.New("invalid CRS")
	// ErrTransform is returned when a coordinate cannot be transformed.
	ErrTransform = errors.New("coordinate transform failed")
)

type pair struct {
	from, to int
}

// Reprojector builds and caches PROJ transformations keyed by EPSG pair.
// Every transformation uses x=longitude/easting, y=latitude/northing axis order,
// whatever the authority axis order of the CRS is.
// A Reprojector is safe for concurrent use.
type Reprojector struct {
	mu    sync.Mutex
	cache map[pair]*proj.PJ
}

// New returns an empty Reprojector.
func New() *Reprojector {
	return &Reprojector{cache: make(map[pair]*proj.PJ)}
}

// Close releases all cached transformations.
func (r *Reprojector) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, pj := range r.cache {
		pj.Destroy()
		delete(r.cache, k)
	}
}

// Transform returns a copy of g with every coordinate transformed from EPSG:from to EPSG:to.
// Geometry type and topology are preserved, g itself is left untouched.
func (r *Reprojector) Transform(g orb.Geometry, from, to int) (orb.Geometry, error) {
	pj, err := r.transformer(from, to)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, nil
	}

	var firstErr error
	out := project.Geometry(orb.Clone(g), func(p orb.Point) orb.Point {
		if firstErr != nil {
			return p
		}
		q, err := forward(pj, p)
		if err != nil {
			firstErr = fmt.Errorf("%w: EPSG:%d -> EPSG:%d at (%g, %g): %v", ErrTransform, from, to, p[0], p[1], err)
		}
		return q
	})
	if firstErr != nil {
		return nil, firstErr
	}

	return out, nil
}

// Point transforms a single point from EPSG:from to EPSG:to.
func (r *Reprojector) Point(p orb.Point, from, to int) (orb.Point, error) {
	pj, err := r.transformer(from, to)
	if err != nil {
		return orb.Point{}, err
	}

	q, err := forward(pj, p)
	if err != nil {
		return orb.Point{}, fmt.Errorf("%w: EPSG:%d -> EPSG:%d at (%g, %g): %v", ErrTransform, from, to, p[0], p[1], err)
	}

	return q, nil
}

func (r *Reprojector) transformer(from, to int) (*proj.PJ, error) {
	key := pair{from: from, to: to}

	r.mu.Lock()
	defer r.mu.Unlock()

	if pj, ok := r.cache[key]; ok {
		return pj, nil
	}

	pj, err := newTransformer(from, to)
	if err != nil {
		return nil, err
	}
	r.cache[key] = pj

	log.Trace().
		Int("from", from).
		Int("to", to).
		Msg("Transformation created")

	return pj, nil
}

func newTransformer(from, to int) (*proj.PJ, error) {
	raw, err := proj.NewCRSToCRS(epsg(from), epsg(to), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: EPSG:%d -> EPSG:%d: %v", ErrInvalidCRS, from, to, err)
	}
	defer raw.Destroy()

	pj, err := raw.NormalizeForVisualization()
	if err != nil {
		return nil, fmt.Errorf("%w: EPSG:%d -> EPSG:%d: %v", ErrInvalidCRS, from, to, err)
	}

	return pj, nil
}

func forward(pj *proj.PJ, p orb.Point) (orb.Point, error) {
	c, err := pj.Forward(proj.NewCoord(p[0], p[1], 0, 0))
	if err != nil {
		return p, err
	}

	x, y := c[0], c[1]
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return p, errors.New("non-finite result")
	}

	return orb.Point{x, y}, nil
}

func epsg(code int) string {
	return fmt.Sprintf("EPSG:%d", code)
}
