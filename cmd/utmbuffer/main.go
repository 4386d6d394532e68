package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/andreytyu/utm-buffer/internal/config"
	"github.com/andreytyu/utm-buffer/internal/logger"
	"github.com/andreytyu/utm-buffer/internal/processor"
	"github.com/andreytyu/utm-buffer/internal/reproject"
	"github.com/andreytyu/utm-buffer/internal/storage"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile  string   `short:"c" long:"config"       env:"CONFIG_FILE"     description:"Path to configuration file with datasets"`
	Limit       []string `short:"l" long:"limit"        env:"LIMIT_NAMES"     description:"Limit processing to specific dataset names"`
	Input       string   `short:"i" long:"in"                                 description:"Input GeoJSON (path, s3://bucket/key or - for stdin)" default:"-"`
	Output      string   `short:"o" long:"out"                                description:"Output GeoJSON (path, s3://bucket/key or - for stdout)" default:"-"`
	Preview     string   `long:"preview"                                      description:"Write a WebP preview of the buffers to this location"`
	PreviewSize int      `long:"preview-size"                                 description:"Preview width in pixels" default:"1024"`
	Distance    float64  `short:"d" long:"distance"     env:"BUFFER_DISTANCE" description:"Buffer distance in meters"`
	SourceEPSG  int      `short:"s" long:"source-epsg"  env:"SOURCE_EPSG"     description:"EPSG code of input coordinates" default:"4326"`
	QuadSegs    int      `short:"q" long:"quad-segs"                          description:"Segments per quarter circle" default:"16"`
	Concurrency int      `short:"p" long:"concurrency"  env:"CONCURRENCY"     description:"Features buffered in parallel" default:"1"`
	Format      string   `long:"format"                                       description:"Output format" choice:"json" choice:"yaml" default:"json"`
	Minify      bool     `short:"m" long:"minify"                             description:"Minify JSON output"`
	SkipEmpty   bool     `long:"skip-empty"                                   description:"Keep empty geometries unchanged instead of failing"`
	Force       bool     `short:"f" long:"force"                              description:"Force overwrite of existing outputs"`
}

func main() {
	var opts Options
	parser := newParser(&opts)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()
	config.LoadEnv()

	distanceSet := parser.FindOptionByLongName("distance").IsSet()

	var datasets []config.Dataset
	if opts.ConfigFile != "" {
		cfg, err := config.Load(opts.ConfigFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load configuration")
		}

		for _, name := range ignoredInConfigMode(parser) {
			log.Warn().
				Str("flag", name).
				Msg("Flag is ignored when datasets come from a configuration file")
		}

		selected, missing := cfg.Select(opts.Limit)
		for _, name := range missing {
			log.Error().
				Str("name", name).
				Msg("Dataset specified in --limit not found in configuration")
		}
		datasets = applyFlags(selected, opts, distanceSet)
	} else {
		if !distanceSet {
			log.Fatal().Msg("Buffer distance is required, set --distance or use a configuration file")
		}
		datasets = []config.Dataset{{
			Name:       "default",
			Input:      opts.Input,
			Output:     opts.Output,
			Preview:    opts.Preview,
			Format:     opts.Format,
			Distance:   &opts.Distance,
			SourceEPSG: opts.SourceEPSG,
			QuadSegs:   opts.QuadSegs,
		}}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rp := reproject.New()
	defer rp.Close()

	store := storage.New()
	runOpts := processor.Options{
		Concurrency: opts.Concurrency,
		PreviewSize: opts.PreviewSize,
		Minify:      opts.Minify,
		SkipEmpty:   opts.SkipEmpty,
		Force:       opts.Force,
	}

	log.Debug().
		Int("datasets", len(datasets)).
		Int("concurrency", opts.Concurrency).
		Msg("Starting buffering")

	failed := 0
	for _, ds := range datasets {
		if ctx.Err() != nil {
			break
		}
		if err := processor.ProcessDataset(ctx, store, rp, ds, runOpts); err != nil {
			failed++
			log.Error().Err(err).Str("dataset", ds.Name).Msg("Failed to buffer dataset")
		}
	}

	if ctx.Err() != nil {
		log.Warn().Msg("Interrupted")
		stop()
		rp.Close()
		os.Exit(130)
	}
	if failed > 0 {
		rp.Close()
		log.Fatal().Int("failed", failed).Msg("Buffering finished with errors")
	}

	log.Debug().Msg("Buffering finished successfully")
}

func newParser(opts *Options) *flags.Parser {
	return flags.NewParser(opts, flags.Default)
}

// ignoredInConfigMode lists single-dataset flags given on the command line.
// Datasets from a configuration file carry their own locations.
func ignoredInConfigMode(parser *flags.Parser) []string {
	var set []string
	for _, name := range []string{"in", "out", "preview"} {
		opt := parser.FindOptionByLongName(name)
		if opt != nil && opt.IsSet() && !opt.IsSetDefault() {
			set = append(set, "--"+name)
		}
	}

	return set
}

// applyFlags fills dataset values missing from the configuration with command line values.
func applyFlags(datasets []config.Dataset, opts Options, distanceSet bool) []config.Dataset {
	out := make([]config.Dataset, len(datasets))
	for i, ds := range datasets {
		if ds.Distance == nil && distanceSet {
			d := opts.Distance
			ds.Distance = &d
		}
		if ds.SourceEPSG == 0 {
			ds.SourceEPSG = opts.SourceEPSG
		}
		if ds.QuadSegs == 0 {
			ds.QuadSegs = opts.QuadSegs
		}
		if ds.Format == "" {
			ds.Format = opts.Format
		}
		out[i] = ds
	}

	return out
}
