package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/airbusgeo/albedo-inversion/accumulator"
	"github.com/airbusgeo/albedo-inversion/common"
	"github.com/airbusgeo/albedo-inversion/observation"
	"github.com/airbusgeo/albedo-inversion/service"
	"github.com/airbusgeo/albedo-inversion/service/log"
	"go.uber.org/zap"
)

type config struct {
	Tile     common.Tile
	From, To common.Date
	BBDRRoot string
	Sensors  []string
	Mode     common.SnowMode
	CacheURI string
	Workdir  string
	Window   common.Window
	Force    bool
}

func newAppConfig() (*config, error) {
	config := config{}
	tile := flag.String("tile", "", "tile (hHHvVV)")
	year := flag.Int("year", 0, "year of the day to accumulate")
	doy := flag.Int("doy", 0, "day of year to accumulate")
	from := flag.String("from", "", "first day to accumulate (YYYYDDD or any date), instead of -year/-doy")
	to := flag.String("to", "", "last day to accumulate (default: -from)")
	flag.StringVar(&config.BBDRRoot, "bbdr-root", "", "root directory of the BBDR: <root>/<sensor>/<year>/<tile>/<YYYYDDD>*/")
	sensors := flag.String("sensors", "ALL", "comma-separated list of sensors (ALL: MERIS,VGT,AATSR)")
	snow := flag.Int("snow", 0, "snow mode (0: NoSnow, 1: Snow)")
	flag.StringVar(&config.CacheURI, "cache-uri", "", "uri of the accumulator cache (local, gs://, s3://)")
	flag.StringVar(&config.Workdir, "workdir", os.TempDir(), "working directory to store intermediate results")
	window := flag.String("window", "", "sub-window of the tile: xmin,ymin,xmax,ymax (default: whole tile)")
	flag.BoolVar(&config.Force, "force", false, "rebuild the accumulators that are already in the cache")
	flag.Parse()

	var err error
	if config.Tile, err = common.ParseTile(*tile); err != nil {
		return nil, fmt.Errorf("wrong tile config flag: %w", err)
	}
	switch {
	case *from != "":
		if config.From, err = common.ParseDate(*from); err != nil {
			return nil, fmt.Errorf("wrong from config flag: %w", err)
		}
		config.To = config.From
		if *to != "" {
			if config.To, err = common.ParseDate(*to); err != nil {
				return nil, fmt.Errorf("wrong to config flag: %w", err)
			}
		}
		if config.To.Before(config.From) {
			return nil, fmt.Errorf("wrong to config flag: %s before %s", config.To, config.From)
		}
	case *year > 0 && *doy > 0:
		config.From = common.Date{Year: *year, DoY: *doy}
		if *doy > common.DaysInYear(*year) {
			return nil, fmt.Errorf("wrong doy config flag: %d", *doy)
		}
		config.To = config.From
	default:
		return nil, fmt.Errorf("missing year/doy or from config flags")
	}
	if config.BBDRRoot == "" {
		return nil, fmt.Errorf("missing bbdr-root config flag")
	}
	if config.Sensors = observation.ParseSensors(*sensors); len(config.Sensors) == 0 {
		return nil, fmt.Errorf("wrong sensors config flag")
	}
	if config.Mode, err = common.SnowModeFromFlag(*snow); err != nil {
		return nil, fmt.Errorf("wrong snow config flag: %w", err)
	}
	if config.CacheURI == "" {
		return nil, fmt.Errorf("missing cache-uri config flag")
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
	ctx = log.With(log.With(ctx, "tile", config.Tile.String()), "mode", config.Mode.String())

	cacheStorage, err := service.NewStorageStrategy(ctx, config.CacheURI)
	if err != nil {
		return fmt.Errorf("storage[%s].%w", config.CacheURI, err)
	}
	if err := os.MkdirAll(config.Workdir, 0766); err != nil {
		return fmt.Errorf("make directory %s: %w", config.Workdir, err)
	}

	source := observation.Loader{Root: config.BBDRRoot, Sensors: config.Sensors, Window: config.Window}
	acc := accumulator.New(accumulator.NewCache(cacheStorage, config.Workdir), source,
		accumulator.Options{Tile: config.Tile, Mode: config.Mode, Force: config.Force})

	var stored, skipped int
	for date := config.From; !config.To.Before(date); date = date.AddDays(1) {
		ok, err := acc.Store(log.With(ctx, "date", date.String()), date)
		if err != nil {
			return fmt.Errorf("dailyacc[%s].%w", date, err)
		}
		if ok {
			stored++
		} else {
			skipped++
		}
	}
	log.Logger(ctx).Sugar().Infof("%d daily accumulators stored, %d skipped (existing or no observation)", stored, skipped)
	return nil
}
