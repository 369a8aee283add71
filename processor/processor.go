// Package processor runs the inversion, merge and albedo chains of a unit, from the storages to the storages
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/airbusgeo/albedo-inversion/accumulator"
	"github.com/airbusgeo/albedo-inversion/albedo"
	"github.com/airbusgeo/albedo-inversion/common"
	"github.com/airbusgeo/albedo-inversion/interface/raster/envi"
	"github.com/airbusgeo/albedo-inversion/inversion"
	"github.com/airbusgeo/albedo-inversion/merge"
	"github.com/airbusgeo/albedo-inversion/prior"
	"github.com/airbusgeo/albedo-inversion/service"
	"github.com/airbusgeo/albedo-inversion/service/geometry"
	"github.com/airbusgeo/albedo-inversion/service/log"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the default number of units processed concurrently
const DefaultWorkers = 12

// Options of a processor
type Options struct {
	Workdir string
	Window  common.Window
	// NoPriorOutput also writes the inversion without prior
	NoPriorOutput bool
	// Bundle saves the whole working directory of a unit as one zip, instead of the products
	Bundle bool
	ULC    common.ULCTable
}

// Processor processes units
type Processor struct {
	Products service.Storage
	Priors   service.Storage
	Cache    *accumulator.Cache
	// Source of the observations on a cache miss (optional)
	Source accumulator.Source
	Options
}

// New creates a processor
func New(products, priors service.Storage, cache *accumulator.Cache, source accumulator.Source, opts Options) *Processor {
	return &Processor{Products: products, Priors: priors, Cache: cache, Source: source, Options: opts}
}

// Report summarizes the processing of a unit. It is saved in the bundles.
type Report struct {
	Unit      common.Unit     `json:"unit"`
	Days      int             `json:"days"`
	Pixels    int             `json:"pixels"`
	Valid     int             `json:"valid"`
	Layers    []string        `json:"layers"`
	Processed time.Time       `json:"processed"`
	Footprint json.RawMessage `json:"footprint,omitempty"` // lon/lat geojson of the tile
}

func unitContext(ctx context.Context, unit common.Unit) context.Context {
	ctx = log.With(ctx, "tile", unit.Tile.String())
	ctx = log.With(ctx, "date", unit.Date.String())
	return log.With(ctx, "mode", unit.Mode.String())
}

// workdir creates a new working directory. The caller must call the returned function to remove it.
func (p *Processor) workdir() (string, func(), error) {
	workdir := filepath.Join(p.Workdir, uuid.New().String())
	if err := os.MkdirAll(workdir, 0766); err != nil {
		return "", nil, service.MakeTemporary(fmt.Errorf("make directory %s: %w", workdir, err))
	}
	return workdir, func() { os.RemoveAll(workdir) }, nil
}

// MapInfo returns the georeferencing of the window of the tile, when the whole tile is width pixels wide
func MapInfo(ulc common.ULCTable, tile common.Tile, width int, window common.Window) *envi.MapInfo {
	ulx, uly := ulc.UpperLeft(tile)
	px := common.PixelSize(width)
	return envi.SinusoidalMapInfo(ulx+float64(window.XMin)*px, uly-float64(window.YMin)*px, width)
}

// mapInfo returns the georeferencing of the products, given the raster of the prior
func (p *Processor) mapInfo(tile common.Tile, priorFile string) (*envi.MapInfo, error) {
	h, err := envi.ReadHeader(priorFile)
	if err != nil {
		return nil, err
	}
	w, err := p.Window.Resolve(h.Samples, h.Lines)
	if err != nil {
		return nil, err
	}
	return MapInfo(p.ULC, tile, h.Samples, w), nil
}

func description(unit common.Unit, usePrior bool) map[string]string {
	return map[string]string{
		common.TagTile:           unit.Tile.String(),
		common.TagDate:           unit.Date.String(),
		common.TagSnowMode:       unit.Mode.String(),
		common.TagUsePrior:       strconv.FormatBool(usePrior),
		common.TagWings:          strconv.Itoa(unit.Data.Wings),
		common.TagSensors:        strings.Join(unit.Data.Sensors, ","),
		common.TagPriorScale:     strconv.FormatFloat(unit.Data.PriorScale, 'g', -1, 64),
		common.TagProcessingDate: time.Now().UTC().Format("2006-01-02 15:04:05"),
	}
}

// ProcessUnit inverts the unit with its prior (and without, if NoPriorOutput) and saves the products
func (p *Processor) ProcessUnit(ctx context.Context, unit common.Unit) error {
	ctx = unitContext(ctx, unit)
	lg := log.Logger(ctx).Sugar()

	workdir, clean, err := p.workdir()
	if err != nil {
		return fmt.Errorf("ProcessUnit[%s].%w", unit.Tag(), err)
	}
	defer clean()

	scale := unit.Data.PriorScale
	if scale <= 0 {
		scale = prior.DefaultScale
	}
	lg.Info("fetch prior")
	pr, err := prior.Fetch(ctx, p.Priors, unit, workdir, scale, p.Window)
	if err != nil {
		return fmt.Errorf("ProcessUnit.%w", err)
	}
	priorFile := filepath.Join(workdir, service.LayerFileName(unit, service.LayerPrior, service.ExtensionENVI))
	mapInfo, err := p.mapInfo(unit.Tile, priorFile)
	if err != nil {
		return service.MakeFatal(fmt.Errorf("ProcessUnit[%s].%w", unit.Tag(), err))
	}

	lg.Infof("accumulate %d days around %s", 2*unit.Data.Wings+1, unit.Date)
	acc, err := accumulator.New(p.Cache, p.Source, accumulator.Options{Tile: unit.Tile, Mode: unit.Mode}).
		Accumulate(ctx, unit.Date, unit.Data.Wings)
	if err != nil {
		return fmt.Errorf("ProcessUnit[%s].%w", unit.Tag(), err)
	}

	report := Report{Unit: unit, Days: acc.Days, Pixels: pr.Size()}
	variants := []bool{true}
	if p.NoPriorOutput {
		variants = append(variants, false)
	}
	for _, usePrior := range variants {
		layer := service.LayerInversion
		if !usePrior {
			layer = service.LayerInversionNoPrior
		}
		lg.Infof("invert (prior: %t)", usePrior)
		res, err := inversion.Invert(acc, pr, usePrior)
		if err != nil {
			return service.MakeFatal(fmt.Errorf("ProcessUnit[%s].%w", unit.Tag(), err))
		}
		if usePrior {
			report.Valid = res.Valid()
		}
		r := res.Raster(unit.Tile)
		r.Description = description(unit, usePrior)
		file := filepath.Join(workdir, service.LayerFileName(unit, layer, service.ExtensionENVI))
		if err := envi.Write(file, r, mapInfo); err != nil {
			return service.MakeTemporary(fmt.Errorf("ProcessUnit[%s].%w", unit.Tag(), err))
		}
		report.Layers = append(report.Layers, filepath.Base(file))
		if p.Bundle {
			continue
		}
		lg.Infof("save layer '%s'", layer)
		if _, err := p.Products.SaveLayer(ctx, unit, layer, service.ExtensionENVI, workdir); err != nil {
			return fmt.Errorf("ProcessUnit[%s].%w", unit.Tag(), err)
		}
	}

	if p.Bundle {
		report.Processed = time.Now().UTC()
		if report.Footprint, err = geometry.GeoJSON(geometry.TileFootprintLonLat(unit.Tile)); err != nil {
			return fmt.Errorf("ProcessUnit[%s].%w", unit.Tag(), err)
		}
		if err := service.ToJSON(report, workdir, unit.Tag()+"_report.json"); err != nil {
			return fmt.Errorf("ProcessUnit[%s].%w", unit.Tag(), err)
		}
		lg.Info("save working directory")
		if _, err := p.Products.SaveLayer(ctx, unit, service.LayerWorkdir, service.ExtensionAll, workdir); err != nil {
			return fmt.Errorf("ProcessUnit[%s].%w", unit.Tag(), err)
		}
	}
	lg.Infof("unit processed: %d/%d valid pixels, %d days", report.Valid, report.Pixels, report.Days)
	return nil
}

// ProcessDates processes the units with at most workers concurrent calls to fn, and waits for all of them.
// A failing unit does not stop the others. The errors are merged, with priority to the fatal ones.
func ProcessDates(ctx context.Context, units []common.Unit, workers int, fn func(ctx context.Context, unit common.Unit) error) error {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs error
	)
	g.SetLimit(workers)
	for _, unit := range units {
		unit := unit
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := fn(ctx, unit); err != nil {
				log.Logger(unitContext(ctx, unit)).Error("unit failed", zap.Error(err))
				mu.Lock()
				errs = service.MergeErrors(true, errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		return service.MergeErrors(true, errs, err)
	}
	return errs
}

// importProduct imports the layer of the unit in workdir and reads it.
// It returns nil if the layer does not exist.
func (p *Processor) importProduct(ctx context.Context, unit common.Unit, layer service.Layer, workdir string) (*common.Raster, error) {
	if err := p.Products.ImportLayer(ctx, unit, layer, service.ExtensionENVI, workdir); err != nil {
		if service.IsNotFound(err) {
			log.Logger(ctx).Sugar().Warnf("%s of %s not found", layer, unit.Tag())
			return nil, nil
		}
		return nil, err
	}
	r, _, err := envi.Read(filepath.Join(workdir, service.LayerFileName(unit, layer, service.ExtensionENVI)))
	if err != nil {
		return nil, service.MakeFatal(err)
	}
	r.Tile = unit.Tile
	return r, nil
}

// MergeUnits merges the Snow and NoSnow inversions of the tile at date, with the land/water mask of the prior.
// The unit mode is ignored. It returns merge.ErrNoInput if none of the inversions exists.
func (p *Processor) MergeUnits(ctx context.Context, unit common.Unit, merger merge.PixelMerger) error {
	ctx = log.With(log.With(ctx, "tile", unit.Tile.String()), "date", unit.Date.String())
	lg := log.Logger(ctx).Sugar()

	workdir, clean, err := p.workdir()
	if err != nil {
		return fmt.Errorf("MergeUnits.%w", err)
	}
	defer clean()

	var products [2]*common.Raster
	var mask []float32
	var mapInfo *envi.MapInfo
	for i, mode := range []common.SnowMode{common.SnowModeNoSnow, common.SnowModeSnow} {
		u := unit
		u.Mode = mode
		if products[i], err = p.importProduct(ctx, u, service.LayerInversion, workdir); err != nil {
			return fmt.Errorf("MergeUnits[%s].%w", u.Tag(), err)
		}
		if mask != nil || p.Priors == nil {
			continue
		}
		if err := p.Priors.ImportLayer(ctx, u, service.LayerPrior, service.ExtensionENVI, workdir); err != nil {
			if !service.IsNotFound(err) {
				return fmt.Errorf("MergeUnits[%s].%w", u.Tag(), err)
			}
			continue
		}
		priorFile := filepath.Join(workdir, service.LayerFileName(u, service.LayerPrior, service.ExtensionENVI))
		if mask, _, _, err = prior.LoadMaskFlag(priorFile, p.Window); err != nil {
			return service.MakeFatal(fmt.Errorf("MergeUnits[%s].%w", u.Tag(), err))
		}
		if mapInfo, err = p.mapInfo(unit.Tile, priorFile); err != nil {
			return service.MakeFatal(fmt.Errorf("MergeUnits[%s].%w", u.Tag(), err))
		}
	}
	if mask == nil && (products[0] != nil || products[1] != nil) {
		lg.Warn("no prior mask found: all pixels are considered as land")
	}

	merged, err := merge.Products(products[0], products[1], mask, merger)
	if err != nil {
		if errors.Is(err, merge.ErrNoInput) {
			return fmt.Errorf("MergeUnits[%s]: %w", unit.Tile, err)
		}
		return service.MakeFatal(fmt.Errorf("MergeUnits[%s].%w", unit.Tile, err))
	}
	if mapInfo == nil {
		mapInfo = MapInfo(p.ULC, unit.Tile, common.TilePixels, common.Window{})
	}
	merged.Description = map[string]string{
		common.TagTile:           unit.Tile.String(),
		common.TagDate:           unit.Date.String(),
		common.TagProcessingDate: time.Now().UTC().Format("2006-01-02 15:04:05"),
	}
	file := filepath.Join(workdir, service.LayerFileName(unit, service.LayerMerged, service.ExtensionENVI))
	if err := envi.Write(file, merged, mapInfo); err != nil {
		return service.MakeTemporary(fmt.Errorf("MergeUnits[%s].%w", unit.Tile, err))
	}
	lg.Infof("save layer '%s'", service.LayerMerged)
	if _, err := p.Products.SaveLayer(ctx, unit, service.LayerMerged, service.ExtensionENVI, workdir); err != nil {
		return fmt.Errorf("MergeUnits[%s].%w", unit.Tile, err)
	}
	return nil
}

// SZA provides the solar zenith angles of the pixels of a product, given its header
type SZA func(unit common.Unit, h *envi.Header) ([]float32, error)

// NoonSZA computes the solar zenith angles at local noon.
// The position of the product in its tile is found from its georeferencing.
func NoonSZA(ulc common.ULCTable) SZA {
	return func(unit common.Unit, h *envi.Header) ([]float32, error) {
		tileHeight, w := h.Lines, common.Window{XMin: 0, YMin: 0, XMax: h.Samples - 1, YMax: h.Lines - 1}
		if mi := h.MapInfo; mi != nil && mi.PixelY > 0 {
			tileHeight = int(math.Round(common.TileSize / mi.PixelY))
			_, uly := ulc.UpperLeft(unit.Tile)
			w.YMin = int(math.Round((uly - mi.ULY) / mi.PixelY))
			w.YMax = w.YMin + h.Lines - 1
		}
		if w.YMin < 0 || w.YMax >= tileHeight {
			return nil, fmt.Errorf("NoonSZA: lines [%d, %d] out of the tile", w.YMin, w.YMax)
		}
		return albedo.LocalNoonSZA(unit.Tile, unit.Date.DoY, tileHeight, w), nil
	}
}

// FileSZA reads the solar zenith angles from a band (1-based) of a raster
func FileSZA(file string, band int, window common.Window) SZA {
	return func(unit common.Unit, h *envi.Header) ([]float32, error) {
		return albedo.LoadSZA(file, band, window)
	}
}

// AlbedoUnit computes the albedo of the merged product of the tile at date (layer LayerAlbedo),
// or, if fromMode is set, of the inversion of the snow mode of the unit (layer LayerAlbedoMode)
func (p *Processor) AlbedoUnit(ctx context.Context, unit common.Unit, fromMode bool, sza SZA) error {
	ctx = unitContext(ctx, unit)
	lg := log.Logger(ctx).Sugar()

	workdir, clean, err := p.workdir()
	if err != nil {
		return fmt.Errorf("AlbedoUnit.%w", err)
	}
	defer clean()

	in, out := service.LayerMerged, service.LayerAlbedo
	if fromMode {
		in, out = service.LayerInversion, service.LayerAlbedoMode
	}
	product, err := p.importProduct(ctx, unit, in, workdir)
	if err != nil {
		return fmt.Errorf("AlbedoUnit[%s].%w", unit.Tag(), err)
	}
	if product == nil {
		return service.MakeFatal(fmt.Errorf("AlbedoUnit[%s]: %s not found", unit.Tag(), in))
	}
	h, err := envi.ReadHeader(filepath.Join(workdir, service.LayerFileName(unit, in, service.ExtensionENVI)))
	if err != nil {
		return service.MakeFatal(fmt.Errorf("AlbedoUnit[%s].%w", unit.Tag(), err))
	}
	angles, err := sza(unit, h)
	if err != nil {
		return service.MakeFatal(fmt.Errorf("AlbedoUnit[%s].%w", unit.Tag(), err))
	}
	fraction := 0.
	if unit.Mode == common.SnowModeSnow {
		fraction = 1
	}
	lg.Infof("convert %s to albedo", in)
	res, err := albedo.Convert(product, angles, fraction)
	if err != nil {
		return service.MakeFatal(fmt.Errorf("AlbedoUnit[%s].%w", unit.Tag(), err))
	}
	res.Description = map[string]string{
		common.TagTile:           unit.Tile.String(),
		common.TagDate:           unit.Date.String(),
		common.TagProcessingDate: time.Now().UTC().Format("2006-01-02 15:04:05"),
	}
	if fromMode {
		res.Description[common.TagSnowMode] = unit.Mode.String()
	}
	file := filepath.Join(workdir, service.LayerFileName(unit, out, service.ExtensionENVI))
	if err := envi.Write(file, res, h.MapInfo); err != nil {
		return service.MakeTemporary(fmt.Errorf("AlbedoUnit[%s].%w", unit.Tag(), err))
	}
	lg.Infof("save layer '%s'", out)
	if _, err := p.Products.SaveLayer(ctx, unit, out, service.ExtensionENVI, workdir); err != nil {
		return fmt.Errorf("AlbedoUnit[%s].%w", unit.Tag(), err)
	}
	return nil
}
