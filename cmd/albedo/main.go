package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/airbusgeo/albedo-inversion/albedo"
	"github.com/airbusgeo/albedo-inversion/common"
	"github.com/airbusgeo/albedo-inversion/interface/raster/envi"
	"github.com/airbusgeo/albedo-inversion/processor"
	"github.com/airbusgeo/albedo-inversion/service"
	"github.com/airbusgeo/albedo-inversion/service/log"
	"go.uber.org/zap"
)

type config struct {
	Input  string
	Output string

	Tile       common.Tile
	Date       common.Date
	Mode       common.SnowMode
	Merged     bool
	StorageURI string
	Workdir    string

	SZAFile string
	SZABand int
	Window  common.Window
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.Input, "input", "", "local inversion or merged product (ENVI .bin)")
	flag.StringVar(&config.Output, "output", "", "output file, with {TILE}, {DATE}, {YEAR}, {DOY}, {SNOWMODE} replaced from the input name (default: next to the input)")
	tile := flag.String("tile", "", "tile (hHHvVV), with -storage-uri")
	date := flag.String("date", "", "date (YYYYDDD or any date), with -storage-uri")
	snow := flag.Int("snow", 0, "snow mode of the inversion, with -storage-uri and -merged=false (0: NoSnow, 1: Snow)")
	flag.BoolVar(&config.Merged, "merged", true, "with -storage-uri, convert the merged product instead of the inversion of -snow")
	flag.StringVar(&config.StorageURI, "storage-uri", "", "uri where the products are stored (local, gs://, s3://), instead of -input")
	flag.StringVar(&config.Workdir, "workdir", os.TempDir(), "working directory to store intermediate results")
	flag.StringVar(&config.SZAFile, "sza-file", "", "raster of the solar zenith angles (default: computed at local noon)")
	flag.IntVar(&config.SZABand, "sza-band", 1, "band (1-based) of the solar zenith angles in sza-file")
	window := flag.String("window", "", "sub-window of the sza-file matching the product: xmin,ymin,xmax,ymax")
	flag.Parse()

	var err error
	switch {
	case config.Input != "" && config.StorageURI != "":
		return nil, fmt.Errorf("input and storage-uri config flags are exclusive")
	case config.Input != "":
		if !envi.Exists(config.Input) {
			return nil, fmt.Errorf("wrong input config flag: %s not found", config.Input)
		}
	case config.StorageURI != "":
		if config.Tile, err = common.ParseTile(*tile); err != nil {
			return nil, fmt.Errorf("wrong tile config flag: %w", err)
		}
		if config.Date, err = common.ParseDate(*date); err != nil {
			return nil, fmt.Errorf("wrong date config flag: %w", err)
		}
		if config.Mode, err = common.SnowModeFromFlag(*snow); err != nil {
			return nil, fmt.Errorf("wrong snow config flag: %w", err)
		}
	default:
		return nil, fmt.Errorf("missing input or storage-uri config flag")
	}
	if config.SZAFile != "" && config.SZABand < 1 {
		return nil, fmt.Errorf("wrong sza-band config flag: %d", config.SZABand)
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
	sza := processor.NoonSZA(nil)
	if config.SZAFile != "" {
		sza = processor.FileSZA(config.SZAFile, config.SZABand, config.Window)
	}

	if config.Input != "" {
		return convertFile(ctx, config, sza)
	}

	storage, err := service.NewStorageStrategy(ctx, config.StorageURI)
	if err != nil {
		return fmt.Errorf("storage[%s].%w", config.StorageURI, err)
	}
	if err := os.MkdirAll(config.Workdir, 0766); err != nil {
		return fmt.Errorf("make directory %s: %w", config.Workdir, err)
	}
	p := processor.New(storage, nil, nil, nil, processor.Options{Workdir: config.Workdir})
	unit := common.Unit{Tile: config.Tile, Date: config.Date, Mode: config.Mode}
	if err := p.AlbedoUnit(ctx, unit, !config.Merged, sza); err != nil {
		return err
	}
	log.Logger(ctx).Sugar().Infof("albedo of %s computed", unit.Tag())
	return nil
}

// convertFile computes the albedo of a local product
func convertFile(ctx context.Context, config *config, sza processor.SZA) error {
	name := filepath.Base(config.Input)
	info, err := common.Info(name)
	if err != nil {
		return fmt.Errorf("convertFile.%w", err)
	}
	kind := common.GetProductFromName(name)
	if kind != common.Inversion && kind != common.Merged {
		return fmt.Errorf("convertFile: %s is not an inversion or a merged product", name)
	}
	tile, err := common.ParseTile(info["TILE"])
	if err != nil {
		return fmt.Errorf("convertFile.%w", err)
	}
	date, err := common.ParseDate(info["DATE"])
	if err != nil {
		return fmt.Errorf("convertFile.%w", err)
	}
	unit := common.Unit{Tile: tile, Date: date}
	source := ""
	if kind == common.Inversion {
		if unit.Mode, err = common.SnowModeString(info["SNOWMODE"]); err != nil {
			return fmt.Errorf("convertFile.%w", err)
		}
		source = unit.Mode.String()
	}
	ctx = log.With(log.With(ctx, "tile", tile.String()), "date", date.String())

	product, h, err := envi.Read(config.Input)
	if err != nil {
		return fmt.Errorf("convertFile.%w", err)
	}
	angles, err := sza(unit, h)
	if err != nil {
		return fmt.Errorf("convertFile.%w", err)
	}
	fraction := 0.
	if unit.Mode == common.SnowModeSnow {
		fraction = 1
	}
	res, err := albedo.Convert(product, angles, fraction)
	if err != nil {
		return fmt.Errorf("convertFile.%w", err)
	}
	res.Description = map[string]string{common.TagTile: tile.String(), common.TagDate: date.String()}

	output := filepath.Join(filepath.Dir(config.Input), common.AlbedoFileName(tile, date, source))
	if config.Output != "" {
		if info["SNOWMODE"] == "" {
			info["SNOWMODE"] = "Merge"
		}
		output = common.FormatBrackets(config.Output, info)
	}
	if err := envi.Write(output, res, h.MapInfo); err != nil {
		return fmt.Errorf("convertFile.%w", err)
	}
	log.Logger(ctx).Sugar().Infof("albedo written in %s", output)
	return nil
}
