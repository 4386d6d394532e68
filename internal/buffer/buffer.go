// Package buffer computes metric buffers around WGS84 geometries in their local UTM zone.
package buffer

import (
	"context"
	"errors"
	"fmt"

	"github.com/andreytyu/utm-buffer/internal/geo"
	"github.com/andreytyu/utm-buffer/internal/reproject"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultQuadSegs is the number of segments used per quarter circle.
const DefaultQuadSegs = 16

// ErrDegenerateGeometry is returned for geometries that have no representative point.
var ErrDegenerateGeometry = errors.New("degenerate geometry")

// FeatureError reports which position of a batch aborted it.
type FeatureError struct {
	Index int
	Err   error
}

func (e *FeatureError) Error() string {
	return fmt.Sprintf("feature %d: %v", e.Index, e.Err)
}

func (e *FeatureError) Unwrap() error {
	return e.Err
}

// Options control a buffering run.
type Options struct {
	// Distance in meters, applied to every geometry.
	Distance float64
	// SourceEPSG is the CRS of the input geometries, 4326 when zero.
	SourceEPSG int
	// QuadSegs is the buffer circle resolution, DefaultQuadSegs when zero.
	QuadSegs int
	// Concurrency is the number of workers, sequential when below 2.
	Concurrency int
	// SkipEmpty keeps degenerate geometries unchanged instead of failing the batch.
	SkipEmpty bool
}

// Result is a single buffered geometry and the UTM zone it was buffered in.
type Result struct {
	Geometry orb.Geometry
	EPSG     int
}

// Buffer runs the reproject, buffer, reproject back pipeline.
type Buffer struct {
	proj *reproject.Reprojector
	opts Options
}

// New returns a Buffer with defaults applied to opts.
func New(rp *reproject.Reprojector, opts Options) *Buffer {
	if opts.SourceEPSG == 0 {
		opts.SourceEPSG = geo.EPSGWGS84
	}
	if opts.QuadSegs <= 0 {
		opts.QuadSegs = DefaultQuadSegs
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	return &Buffer{proj: rp, opts: opts}
}

// Options returns the effective options.
func (b *Buffer) Options() Options {
	return b.opts
}

// ZoneFor returns the UTM EPSG code used for g.
func (b *Buffer) ZoneFor(g orb.Geometry) (int, error) {
	pt, err := RepresentativePoint(g)
	if err != nil {
		return 0, err
	}

	if b.opts.SourceEPSG != geo.EPSGWGS84 {
		pt, err = b.proj.Point(pt, b.opts.SourceEPSG, geo.EPSGWGS84)
		if err != nil {
			return 0, err
		}
	}

	return geo.UTMZoneEPSG(pt[0], pt[1]), nil
}

// Geometry buffers a single geometry and returns it in EPSG:4326.
func (b *Buffer) Geometry(g orb.Geometry) (Result, error) {
	zone, err := b.ZoneFor(g)
	if err != nil {
		return Result{}, err
	}

	projected, err := b.proj.Transform(g, b.opts.SourceEPSG, zone)
	if err != nil {
		return Result{}, err
	}

	buffered, err := planarBuffer(projected, b.opts.Distance, b.opts.QuadSegs)
	if err != nil {
		return Result{}, err
	}

	out, err := b.proj.Transform(buffered, zone, geo.EPSGWGS84)
	if err != nil {
		return Result{}, err
	}

	return Result{Geometry: out, EPSG: zone}, nil
}

// Geometries buffers every geometry and returns the results in input order.
// The first failing geometry aborts the batch with a *FeatureError.
func (b *Buffer) Geometries(ctx context.Context, geoms []orb.Geometry) ([]orb.Geometry, error) {
	out := make([]orb.Geometry, len(geoms))

	if b.opts.Concurrency < 2 || len(geoms) < 2 {
		for i, g := range geoms {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			res, err := b.one(i, g)
			if err != nil {
				return nil, err
			}
			out[i] = res
		}
		return out, nil
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(b.opts.Concurrency)

	for i, g := range geoms {
		if gctx.Err() != nil {
			break
		}
		grp.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := b.one(i, g)
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return nil, err
	}
	// a cancelled parent can stop the loop before any worker reports it
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

func (b *Buffer) one(i int, g orb.Geometry) (orb.Geometry, error) {
	res, err := b.Geometry(g)
	if err != nil {
		if b.opts.SkipEmpty && errors.Is(err, ErrDegenerateGeometry) {
			log.Warn().
				Int("index", i).
				Msg("Skipping degenerate geometry, kept unchanged")
			return g, nil
		}
		return nil, &FeatureError{Index: i, Err: err}
	}

	zone, south, ok := geo.UTMZone(res.EPSG)
	if !ok {
		log.Warn().
			Int("index", i).
			Int("epsg", res.EPSG).
			Msg("Geometry buffered outside the WGS84 UTM zones")
		return res.Geometry, nil
	}

	log.Trace().
		Int("index", i).
		Int("epsg", res.EPSG).
		Int("zone", zone).
		Bool("south", south).
		Msg("Geometry buffered")

	return res.Geometry, nil
}
