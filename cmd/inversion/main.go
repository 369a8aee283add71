package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/airbusgeo/albedo-inversion/accumulator"
	"github.com/airbusgeo/albedo-inversion/common"
	"github.com/airbusgeo/albedo-inversion/observation"
	"github.com/airbusgeo/albedo-inversion/processor"
	"github.com/airbusgeo/albedo-inversion/service"
	"github.com/airbusgeo/albedo-inversion/service/geometry"
	"github.com/airbusgeo/albedo-inversion/service/log"
	"github.com/airbusgeo/albedo-inversion/workflow"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const usage = `usage: inversion [flags]
       inversion [flags] tile year doy wings sensor scale snow
`

type config struct {
	Tiles      []common.Tile
	Year       int
	DoYs       []int
	Wings      int
	Sensors    []string
	PriorScale float64
	Mode       common.SnowMode

	PriorURI   string
	CacheURI   string
	BBDRRoot   string
	StorageURI string
	Workdir    string
	Window     common.Window
	ULCTable   string
	Ledger     string
	Workers    int

	NoPriorOutput bool
	Bundle        bool
	Debug         bool
}

func parseDoYs(s string) ([]int, error) {
	var doys []int
	for _, f := range strings.Split(s, ",") {
		doy, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, err
		}
		doys = append(doys, doy)
	}
	return doys, nil
}

func newAppConfig() (*config, error) {
	config := config{}
	tile := flag.String("tile", "", "tile (hHHvVV)")
	aoi := flag.String("aoi", "", "geojson file (lon/lat): process all the tiles covering it, instead of -tile")
	flag.IntVar(&config.Year, "year", 0, "year of the inversion")
	doy := flag.Int("doy", 0, "day of year of the inversion (day of the prior)")
	doys := flag.String("doys", "", "comma-separated list of days of year, instead of -doy")
	allPriors := flag.Bool("all-priors", false, "process the 46 dates of the priors (1, 9, ..., 361), instead of -doy")
	flag.IntVar(&config.Wings, "wings", 90, "half-width in days of the temporal window")
	sensors := flag.String("sensors", "ALL", "comma-separated list of sensors (ALL: MERIS,VGT,AATSR)")
	flag.Float64Var(&config.PriorScale, "prior-scale", 30, "scale factor of the uncertainties of the prior")
	snow := flag.Int("snow", 0, "snow mode (0: NoSnow, 1: Snow)")

	flag.StringVar(&config.PriorURI, "prior-uri", "", "uri of the priors (local, gs://, s3://): <uri>/<tile>/Kernels.<DDD>.005.<tile>.backGround.<mode>.bin")
	flag.StringVar(&config.CacheURI, "cache-uri", "", "uri of the accumulator cache (local, gs://, s3://)")
	flag.StringVar(&config.BBDRRoot, "bbdr-root", "", "root directory of the BBDR, to build the missing daily accumulators (optional)")
	flag.StringVar(&config.StorageURI, "storage-uri", "", "uri where the products are stored (local, gs://, s3://)")
	flag.StringVar(&config.Workdir, "workdir", os.TempDir(), "working directory to store intermediate results")
	window := flag.String("window", "", "sub-window of the tile: xmin,ymin,xmax,ymax (default: whole tile)")
	flag.StringVar(&config.ULCTable, "ulc-table", "", "ASCII table 'tile, X, Y' of the upper-left corners of the tiles (default: MODIS grid)")
	flag.StringVar(&config.Ledger, "ledger", "", "ledger of the processed units: sqlite file or postgres connection (optional)")
	flag.IntVar(&config.Workers, "workers", processor.DefaultWorkers, "number of units processed concurrently")
	flag.BoolVar(&config.NoPriorOutput, "no-prior-output", true, "also write the inversion without prior")
	flag.BoolVar(&config.Bundle, "bundle", false, "save the whole working directory of each unit as one zip")
	flag.BoolVar(&config.Debug, "debug", false, "debug logs")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	var err error
	if flag.NArg() == 7 {
		// tile year doy wings sensor scale snow
		args := flag.Args()
		*tile = args[0]
		if config.Year, err = strconv.Atoi(args[1]); err != nil {
			return nil, fmt.Errorf("wrong year argument: %w", err)
		}
		if *doy, err = strconv.Atoi(args[2]); err != nil {
			return nil, fmt.Errorf("wrong doy argument: %w", err)
		}
		if config.Wings, err = strconv.Atoi(args[3]); err != nil {
			return nil, fmt.Errorf("wrong wings argument: %w", err)
		}
		*sensors = args[4]
		if config.PriorScale, err = strconv.ParseFloat(args[5], 64); err != nil {
			return nil, fmt.Errorf("wrong scale argument: %w", err)
		}
		if *snow, err = strconv.Atoi(args[6]); err != nil {
			return nil, fmt.Errorf("wrong snow argument: %w", err)
		}
	} else if flag.NArg() != 0 {
		flag.Usage()
		return nil, fmt.Errorf("expecting 0 or 7 arguments, got %d", flag.NArg())
	}

	switch {
	case *aoi != "":
		mp, err := service.ReadAOI(*aoi)
		if err != nil {
			return nil, fmt.Errorf("wrong aoi config flag: %w", err)
		}
		if config.Tiles = geometry.TilesCovering(mp); len(config.Tiles) == 0 {
			return nil, fmt.Errorf("wrong aoi config flag: no tile found")
		}
	default:
		t, err := common.ParseTile(*tile)
		if err != nil {
			return nil, fmt.Errorf("wrong tile config flag: %w", err)
		}
		config.Tiles = []common.Tile{t}
	}
	if config.Year <= 0 {
		return nil, fmt.Errorf("missing year config flag")
	}
	switch {
	case *allPriors:
		config.DoYs = common.PriorDoYs()
	case *doys != "":
		if config.DoYs, err = parseDoYs(*doys); err != nil {
			return nil, fmt.Errorf("wrong doys config flag: %w", err)
		}
	case *doy > 0:
		config.DoYs = []int{*doy}
	default:
		return nil, fmt.Errorf("missing doy, doys or all-priors config flag")
	}
	for _, d := range config.DoYs {
		if d < 1 || d > common.DaysInYear(config.Year) {
			return nil, fmt.Errorf("wrong day of year: %d", d)
		}
	}
	if config.Wings < 0 {
		return nil, fmt.Errorf("wrong wings config flag: %d", config.Wings)
	}
	config.Sensors = service.NewStringSet(observation.ParseSensors(*sensors)...).Slice()
	if len(config.Sensors) == 0 {
		return nil, fmt.Errorf("wrong sensors config flag")
	}
	sort.Strings(config.Sensors)
	if config.PriorScale <= 0 {
		return nil, fmt.Errorf("wrong prior-scale config flag: %f", config.PriorScale)
	}
	if config.Mode, err = common.SnowModeFromFlag(*snow); err != nil {
		return nil, fmt.Errorf("wrong snow config flag: %w", err)
	}
	if config.PriorURI == "" {
		return nil, fmt.Errorf("missing prior-uri config flag")
	}
	if config.CacheURI == "" {
		return nil, fmt.Errorf("missing cache-uri config flag")
	}
	if config.StorageURI == "" {
		return nil, fmt.Errorf("missing storage-uri config flag")
	}
	if config.Window, err = common.ParseWindow(*window); err != nil {
		return nil, fmt.Errorf("wrong window config flag: %w", err)
	}
	if config.Workers <= 0 {
		return nil, fmt.Errorf("wrong workers config flag: %d", config.Workers)
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

func (c *config) units() ([]common.Unit, error) {
	var units []common.Unit
	for _, tile := range c.Tiles {
		footprint, err := geometry.WKT(geometry.TileFootprint(tile))
		if err != nil {
			return nil, err
		}
		for _, doy := range c.DoYs {
			units = append(units, common.Unit{
				Tile: tile,
				Date: common.Date{Year: c.Year, DoY: doy},
				Mode: c.Mode,
				Data: common.UnitAttrs{Wings: c.Wings, Sensors: c.Sensors, PriorScale: c.PriorScale, Footprint: footprint},
			})
		}
	}
	return units, nil
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}
	if config.Debug {
		log.SetLevel(zapcore.DebugLevel)
	}

	productStorage, err := service.NewStorageStrategy(ctx, config.StorageURI)
	if err != nil {
		return fmt.Errorf("storage[%s].%w", config.StorageURI, err)
	}
	priorStorage, err := service.NewStorageStrategy(ctx, config.PriorURI)
	if err != nil {
		return fmt.Errorf("storage[%s].%w", config.PriorURI, err)
	}
	cacheStorage, err := service.NewStorageStrategy(ctx, config.CacheURI)
	if err != nil {
		return fmt.Errorf("storage[%s].%w", config.CacheURI, err)
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

	var source accumulator.Source
	if config.BBDRRoot != "" {
		source = observation.Loader{Root: config.BBDRRoot, Sensors: config.Sensors, Window: config.Window}
	}
	p := processor.New(productStorage, priorStorage, accumulator.NewCache(cacheStorage, config.Workdir), source, processor.Options{
		Workdir:       config.Workdir,
		Window:        config.Window,
		NoPriorOutput: config.NoPriorOutput,
		Bundle:        config.Bundle,
		ULC:           ulc,
	})

	units, err := config.units()
	if err != nil {
		return fmt.Errorf("units.%w", err)
	}
	process := p.ProcessUnit
	if config.Ledger != "" {
		ledger, err := workflow.OpenLedger(ctx, config.Ledger)
		if err != nil {
			return fmt.Errorf("ledger.%w", err)
		}
		defer ledger.Close()
		wf := workflow.NewWorkflow(ledger)
		nb, err := wf.Register(ctx, units...)
		if err != nil {
			return err
		}
		log.Logger(ctx).Sugar().Infof("%d new units registered", nb)
		process = func(ctx context.Context, unit common.Unit) error {
			return wf.Run(ctx, unit, func(ctx context.Context) error { return p.ProcessUnit(ctx, unit) })
		}
	}

	log.Logger(ctx).Sugar().Infof("processing %d units with %d workers", len(units), config.Workers)
	if err := processor.ProcessDates(ctx, units, config.Workers, process); err != nil {
		return err
	}
	log.Logger(ctx).Sugar().Infof("successfully processed %d units", len(units))
	return nil
}
