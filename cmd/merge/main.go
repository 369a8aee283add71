package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/airbusgeo/albedo-inversion/common"
	"github.com/airbusgeo/albedo-inversion/merge"
	"github.com/airbusgeo/albedo-inversion/processor"
	"github.com/airbusgeo/albedo-inversion/service"
	"github.com/airbusgeo/albedo-inversion/service/log"
	"go.uber.org/zap"
)

type config struct {
	Tile            common.Tile
	Date            common.Date
	StorageURI      string
	PriorURI        string
	Workdir         string
	Window          common.Window
	ULCTable        string
	ByClosestSample bool
}

func newAppConfig() (*config, error) {
	config := config{}
	tile := flag.String("tile", "", "tile (hHHvVV)")
	date := flag.String("date", "", "date of the inversions (YYYYDDD or any date)")
	flag.StringVar(&config.StorageURI, "storage-uri", "", "uri where the products are stored (local, gs://, s3://)")
	flag.StringVar(&config.PriorURI, "prior-uri", "", "uri of the priors, for the land/water mask (optional: all land)")
	flag.StringVar(&config.Workdir, "workdir", os.TempDir(), "working directory to store intermediate results")
	window := flag.String("window", "", "sub-window of the prior matching the inversions: xmin,ymin,xmax,ymax")
	flag.StringVar(&config.ULCTable, "ulc-table", "", "ASCII table 'tile, X, Y' of the upper-left corners of the tiles (default: MODIS grid)")
	flag.BoolVar(&config.ByClosestSample, "by-closest-sample", false, "choose the inversion with the closest sample, instead of blending by number of samples")
	flag.Parse()

	var err error
	if config.Tile, err = common.ParseTile(*tile); err != nil {
		return nil, fmt.Errorf("wrong tile config flag: %w", err)
	}
	if config.Date, err = common.ParseDate(*date); err != nil {
		return nil, fmt.Errorf("wrong date config flag: %w", err)
	}
	if config.StorageURI == "" {
		return nil, fmt.Errorf("missing storage-uri config flag")
	}
	if config.Window, err = common.ParseWindow(*window); err != nil {
		return nil, fmt.Errorf("wrong window config flag: %w", err)
	}
	return &config, nil
}

func main() {
	ctx := context.Background()
	err := run(ctx)
	if err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}

	storage, err := service.NewStorageStrategy(ctx, config.StorageURI)
	if err != nil {
		return fmt.Errorf("storage[%s].%w", config.StorageURI, err)
	}
	var priors service.Storage
	if config.PriorURI != "" {
		if priors, err = service.NewStorageStrategy(ctx, config.PriorURI); err != nil {
			return fmt.Errorf("storage[%s].%w", config.PriorURI, err)
		}
	}
	if err := os.MkdirAll(config.Workdir, 0766); err != nil {
		return fmt.Errorf("make directory %s: %w", config.Workdir, err)
	}
	var ulc common.ULCTable
	if config.ULCTable != "" {
		f, err := os.Open(config.ULCTable)
		if err != nil {
			return fmt.Errorf("ulc-table: %w", err)
		}
		ulc, err = common.LoadULCTable(f)
		f.Close()
		if err != nil {
			return err
		}
	}

	merger := merge.MergePixel
	if config.ByClosestSample {
		merger = merge.ByClosestSample
	}
	p := processor.New(storage, priors, nil, nil, processor.Options{Workdir: config.Workdir, Window: config.Window, ULC: ulc})
	unit := common.Unit{Tile: config.Tile, Date: config.Date}
	if err := p.MergeUnits(ctx, unit, merger); err != nil {
		if errors.Is(err, merge.ErrNoInput) {
			log.Logger(ctx).Sugar().Warnf("nothing to merge: %v", err)
			return nil
		}
		return err
	}
	log.Logger(ctx).Sugar().Infof("%s.%s merged", config.Tile, config.Date)
	return nil
}
