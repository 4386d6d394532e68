// Package processor runs the buffer pipeline over configured datasets.
package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andreytyu/utm-buffer/internal/buffer"
	"github.com/andreytyu/utm-buffer/internal/config"
	"github.com/andreytyu/utm-buffer/internal/geo"
	"github.com/andreytyu/utm-buffer/internal/preview"
	"github.com/andreytyu/utm-buffer/internal/reproject"
	"github.com/andreytyu/utm-buffer/internal/storage"

	"github.com/rs/zerolog/log"
)

// ErrNoDistance is returned for a dataset without a buffer distance.
var ErrNoDistance = errors.New("buffer distance is not set")

// Options are run-wide settings that datasets do not override.
type Options struct {
	Concurrency int
	PreviewSize int
	Minify      bool
	SkipEmpty   bool
	Force       bool
}

// ProcessDataset buffers every feature of a dataset and writes the result.
// The output is left alone when it already exists, unless forced.
func ProcessDataset(
	ctx context.Context,
	store *storage.Store,
	rp *reproject.Reprojector,
	ds config.Dataset,
	opts Options,
) error {
	if ds.Distance == nil {
		return fmt.Errorf("dataset %q: %w", ds.Name, ErrNoDistance)
	}

	exists, err := store.Exists(ctx, ds.Output)
	if err != nil {
		return err
	}
	if exists && !opts.Force {
		log.Info().
			Str("dataset", ds.Name).
			Str("output", ds.Output).
			Msg("Output exists, skipping")
		return nil
	}

	start := time.Now()

	data, err := store.Read(ctx, ds.Input)
	if err != nil {
		return fmt.Errorf("read %s: %w", ds.Input, err)
	}

	fc, err := geo.DecodeCollection(data)
	if err != nil {
		return err
	}

	b := buffer.New(rp, buffer.Options{
		Distance:    *ds.Distance,
		SourceEPSG:  ds.SourceEPSG,
		QuadSegs:    ds.QuadSegs,
		Concurrency: opts.Concurrency,
		SkipEmpty:   opts.SkipEmpty,
	})

	log.Info().
		Str("dataset", ds.Name).
		Str("input", ds.Input).
		Int("features", len(fc.Features)).
		Float64("distance", *ds.Distance).
		Int("source_epsg", b.Options().SourceEPSG).
		Msg("Buffering features")

	buffered, err := b.Geometries(ctx, geo.Geometries(fc))
	if err != nil {
		return err
	}
	if err := geo.SetGeometries(fc, buffered); err != nil {
		return err
	}

	out, err := geo.EncodeCollection(fc, geo.Format(ds.Format), opts.Minify)
	if err != nil {
		return err
	}
	if err := store.Write(ctx, ds.Output, out, contentType(ds.Format)); err != nil {
		return fmt.Errorf("write %s: %w", ds.Output, err)
	}

	if ds.Preview != "" {
		var buf bytes.Buffer
		if err := preview.Encode(&buf, preview.Render(buffered, opts.PreviewSize), 0); err != nil {
			return fmt.Errorf("encode preview: %w", err)
		}
		if err := store.Write(ctx, ds.Preview, buf.Bytes(), "image/webp"); err != nil {
			return fmt.Errorf("write preview %s: %w", ds.Preview, err)
		}
	}

	log.Info().
		Str("dataset", ds.Name).
		Str("output", ds.Output).
		Int("features", len(fc.Features)).
		Dur("duration", time.Since(start)).
		Msg("Dataset buffered")

	return nil
}

func contentType(format string) string {
	if geo.Format(format) == geo.FormatYAML {
		return "application/yaml"
	}

	return "application/geo+json"
}
