// Package preview renders buffered geometries into a WebP quick-look image.
package preview

import (
	"image"
	"image/color"
	"image/draw"
	"io"
	"math"

	"github.com/chai2010/webp"
	"github.com/paulmach/orb"
	"golang.org/x/image/vector"
)

const (
	padding    = 8
	pointSize  = 2
	minSize    = 16
	defQuality = 80
)

var (
	background = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	fill       = color.RGBA{R: 0x1f, G: 0x6f, B: 0xb4, A: 0xc0}
)

// Render draws geoms on a canvas size pixels wide, height follows the data aspect ratio.
// Polygons are filled, points and lines are drawn as small squares on each vertex.
func Render(geoms []orb.Geometry, size int) *image.RGBA {
	if size < minSize {
		size = minSize
	}

	bound, ok := extent(geoms)
	width, height := size, size
	if ok && bound.Right() > bound.Left() {
		ratio := (bound.Top() - bound.Bottom()) / (bound.Right() - bound.Left())
		height = int(math.Max(minSize, math.Round(float64(size)*ratio)))
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	if !ok {
		return img
	}

	c := canvas{
		bound:  bound,
		width:  float64(width - 2*padding),
		height: float64(height - 2*padding),
	}

	z := vector.NewRasterizer(width, height)
	for _, g := range geoms {
		c.path(z, g)
	}
	z.Draw(img, img.Bounds(), image.NewUniform(fill), image.Point{})

	return img
}

// Encode writes img as lossy WebP. quality <= 0 picks a default.
func Encode(w io.Writer, img image.Image, quality float32) error {
	if quality <= 0 {
		quality = defQuality
	}

	return webp.Encode(w, img, &webp.Options{Lossless: false, Quality: quality})
}

func extent(geoms []orb.Geometry) (orb.Bound, bool) {
	var (
		bound orb.Bound
		found bool
	)

	for _, g := range geoms {
		if g == nil || isZeroSize(g) {
			continue
		}
		b := g.Bound()
		if !found {
			bound, found = b, true
			continue
		}
		bound = bound.Union(b)
	}

	return bound, found
}

func isZeroSize(g orb.Geometry) bool {
	switch g := g.(type) {
	case orb.Polygon:
		return len(g) == 0
	case orb.MultiPolygon:
		return len(g) == 0
	case orb.LineString:
		return len(g) == 0
	case orb.MultiPoint:
		return len(g) == 0
	case orb.Collection:
		return len(g) == 0
	}

	return false
}

type canvas struct {
	bound         orb.Bound
	width, height float64
}

// xy maps a coordinate to pixel space, y grows downward.
func (c canvas) xy(p orb.Point) (float32, float32) {
	dx := c.bound.Right() - c.bound.Left()
	dy := c.bound.Top() - c.bound.Bottom()

	x, y := c.width/2, c.height/2
	if dx > 0 {
		x = (p[0] - c.bound.Left()) / dx * c.width
	}
	if dy > 0 {
		y = (c.bound.Top() - p[1]) / dy * c.height
	}

	return float32(x + padding), float32(y + padding)
}

func (c canvas) path(z *vector.Rasterizer, g orb.Geometry) {
	switch g := g.(type) {
	case orb.Polygon:
		for _, ring := range g {
			c.ring(z, ring)
		}
	case orb.MultiPolygon:
		for _, poly := range g {
			c.path(z, poly)
		}
	case orb.Collection:
		for _, sub := range g {
			c.path(z, sub)
		}
	case orb.Point:
		c.dot(z, g)
	case orb.MultiPoint:
		for _, p := range g {
			c.dot(z, p)
		}
	case orb.LineString:
		for _, p := range g {
			c.dot(z, p)
		}
	case orb.MultiLineString:
		for _, ls := range g {
			c.path(z, ls)
		}
	}
}

func (c canvas) ring(z *vector.Rasterizer, ring orb.Ring) {
	if len(ring) < 3 {
		return
	}

	x, y := c.xy(ring[0])
	z.MoveTo(x, y)
	for _, p := range ring[1:] {
		x, y = c.xy(p)
		z.LineTo(x, y)
	}
	z.ClosePath()
}

func (c canvas) dot(z *vector.Rasterizer, p orb.Point) {
	x, y := c.xy(p)
	z.MoveTo(x-pointSize, y-pointSize)
	z.LineTo(x+pointSize, y-pointSize)
	z.LineTo(x+pointSize, y+pointSize)
	z.LineTo(x-pointSize, y+pointSize)
	z.ClosePath()
}
