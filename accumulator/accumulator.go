// Package accumulator sums the daily normal equations over the temporal window of a period, weighted by their
// distance to the centre of the period. The daily normal equations are cached.
package accumulator

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/airbusgeo/albedo-inversion/brdf"
	"github.com/airbusgeo/albedo-inversion/common"
	"github.com/airbusgeo/albedo-inversion/normaleq"
	"github.com/airbusgeo/albedo-inversion/observation"
	"github.com/airbusgeo/albedo-inversion/service"
	"github.com/airbusgeo/albedo-inversion/service/log"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

const nm = brdf.NumParams * brdf.NumParams

// Source provides the observations of a tile at a date
type Source interface {
	Load(ctx context.Context, tile common.Tile, date common.Date) ([]*observation.Observation, error)
}

// Options of an accumulator
type Options struct {
	Tile common.Tile
	Mode common.SnowMode
	// Force rebuilds the daily accumulators that are already in the cache (BuildDaily)
	Force bool
}

// Accumulator builds and sums the daily accumulators of a tile
type Accumulator struct {
	Cache *Cache
	// Source is used on a cache miss. If nil, missing days are skipped.
	Source Source
	Options
}

// New creates an accumulator
func New(cache *Cache, source Source, opts Options) *Accumulator {
	return &Accumulator{Cache: cache, Source: source, Options: opts}
}

// Pixel is the accumulation of one pixel
type Pixel struct {
	M             [nm]float64
	V             [brdf.NumParams]float64
	E             float64
	NSamples      float64
	DaysToClosest float64
}

// Accumulation is the weighted sum of the daily accumulators. Planes are pixel-major.
type Accumulation struct {
	Width, Height int
	M             []float64
	V             []float64
	E             []float64
	// NSamples is the weighted number of samples. It is the mask of the accumulation.
	NSamples []float64
	// DaysToClosest is the signed offset of the closest valid sample
	DaysToClosest []float64
	// Days is the number of daily accumulators that contributed
	Days int

	hasSample []bool
}

// NewAccumulation allocates an empty accumulation
func NewAccumulation(width, height int) *Accumulation {
	n := width * height
	return &Accumulation{
		Width:         width,
		Height:        height,
		M:             make([]float64, nm*n),
		V:             make([]float64, brdf.NumParams*n),
		E:             make([]float64, n),
		NSamples:      make([]float64, n),
		DaysToClosest: make([]float64, n),
		hasSample:     make([]bool, n),
	}
}

// Size returns the number of pixels
func (a *Accumulation) Size() int {
	return a.Width * a.Height
}

// Pixel returns the accumulation of the p-th pixel
func (a *Accumulation) Pixel(p int) Pixel {
	px := Pixel{E: a.E[p], NSamples: a.NSamples[p], DaysToClosest: a.DaysToClosest[p]}
	copy(px.M[:], a.M[p*nm:(p+1)*nm])
	copy(px.V[:], a.V[p*brdf.NumParams:(p+1)*brdf.NumParams])
	return px
}

// Add adds the daily accumulator of the sample, weighted by the weight of the sample.
// Pixels whose M is singular are dropped. Add returns the number of dropped pixels.
func (a *Accumulation) Add(day *normaleq.Contribution, s Sample) (int, error) {
	if day.Width != a.Width || day.Height != a.Height {
		return 0, fmt.Errorf("Accumulation.Add: shape mismatch: %dx%d vs %dx%d", day.Width, day.Height, a.Width, a.Height)
	}
	dropped := 0
	for p := 0; p < a.Size(); p++ {
		pc, mask := day.Pixel(p)
		if !(mask > 0) {
			continue
		}
		if _, ok := brdf.Inverse(pc.MDense()); !ok {
			dropped++
			continue
		}
		floats.AddScaled(a.M[p*nm:(p+1)*nm], s.Weight, pc.M[:])
		floats.AddScaled(a.V[p*brdf.NumParams:(p+1)*brdf.NumParams], s.Weight, pc.V[:])
		a.E[p] += s.Weight * pc.E
		a.NSamples[p] += s.Weight * mask
		a.updateClosest(p, float64(s.Offset))
	}
	a.Days++
	return dropped, nil
}

// updateClosest keeps the offset of the closest sample. On equal distance, the earlier sample is kept.
func (a *Accumulation) updateClosest(p int, offset float64) {
	if !a.hasSample[p] {
		a.hasSample[p] = true
		a.DaysToClosest[p] = offset
		return
	}
	cur := a.DaysToClosest[p]
	if d, dc := math.Abs(offset), math.Abs(cur); d < dc || (d == dc && offset < cur) {
		a.DaysToClosest[p] = offset
	}
}

// Accumulate sums the daily accumulators of the window of the target date.
// Missing days are skipped. Unreadable or corrupt cache entries are logged and skipped, only fatal errors are returned.
// If no day contributes, the returned accumulation is empty (zero size).
func (a *Accumulator) Accumulate(ctx context.Context, target common.Date, wings int) (*Accumulation, error) {
	logger := log.Logger(ctx)
	var acc *Accumulation
	for _, s := range Window(target, wings) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		day, err := a.Daily(ctx, s.Date)
		if err != nil {
			if service.Fatal(err) || ctx.Err() != nil {
				return nil, fmt.Errorf("Accumulate.%w", err)
			}
			if errors.Is(err, ErrCorrupt) {
				logger.Warn("skipping corrupt daily accumulator", zap.String("date", s.Date.String()), zap.Error(err))
			} else {
				logger.Sugar().Warnf("skipping daily accumulator of %s: %v", s.Date, err)
			}
			continue
		}
		if day == nil {
			continue
		}
		if acc == nil {
			acc = NewAccumulation(day.Width, day.Height)
		}
		dropped, err := acc.Add(day, s)
		if err != nil {
			logger.Warn("skipping daily accumulator", zap.String("date", s.Date.String()), zap.Error(err))
			continue
		}
		if dropped > 0 {
			logger.Debug("singular pixels dropped", zap.String("date", s.Date.String()), zap.Int("pixels", dropped))
		}
	}
	if acc == nil {
		acc = NewAccumulation(0, 0)
	}
	logger.Sugar().Infof("%d daily accumulators found for %s (wings: %d)", acc.Days, target, wings)
	return acc, nil
}

// Daily returns the daily accumulator of the date, from the cache or built from the source.
// It returns nil if there is no data for this date.
func (a *Accumulator) Daily(ctx context.Context, date common.Date) (*normaleq.Contribution, error) {
	logger := log.Logger(ctx)
	day, err := a.Cache.Get(ctx, a.Tile, date, a.Mode)
	if err == nil {
		logger.Debug("cache hit", zap.String("date", date.String()))
		return day, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		return nil, fmt.Errorf("Daily.%w", err)
	}
	logger.Debug("cache miss", zap.String("date", date.String()))
	if a.Source == nil {
		return nil, nil
	}
	if day, err = BuildDaily(ctx, a.Source, a.Tile, date, a.Mode); err != nil || day == nil {
		return nil, err
	}
	if err := a.Cache.Put(ctx, a.Tile, date, a.Mode, day); err != nil {
		logger.Warn("daily accumulator not cached", zap.String("date", date.String()), zap.Error(err))
	}
	return day, nil
}

// BuildDaily sums the normal equations of all the observations of the tile acquired at date.
// It returns nil if there is no observation.
func BuildDaily(ctx context.Context, source Source, tile common.Tile, date common.Date, mode common.SnowMode) (*normaleq.Contribution, error) {
	obs, err := source.Load(ctx, tile, date)
	if err != nil {
		return nil, fmt.Errorf("BuildDaily.%w", err)
	}
	var day *normaleq.Contribution
	for _, o := range obs {
		c := normaleq.Build(o, mode)
		if day == nil {
			day = c
			continue
		}
		if err := day.Add(c); err != nil {
			log.Logger(ctx).Warn("skipping observation", zap.String("dir", o.Dir), zap.Error(err))
		}
	}
	return day, nil
}

// Store builds the daily accumulator of the date and writes it in the cache.
// Existing entries are kept, unless Force is set. It returns true if an entry was written.
func (a *Accumulator) Store(ctx context.Context, date common.Date) (bool, error) {
	if !a.Force {
		exists, err := a.Cache.Has(ctx, a.Tile, date, a.Mode)
		if err != nil {
			return false, fmt.Errorf("Store.%w", err)
		}
		if exists {
			log.Logger(ctx).Debug("daily accumulator already exists", zap.String("date", date.String()))
			return false, nil
		}
	}
	if a.Source == nil {
		return false, fmt.Errorf("Store: no source of observations")
	}
	day, err := BuildDaily(ctx, a.Source, a.Tile, date, a.Mode)
	if err != nil || day == nil {
		return false, err
	}
	if err := a.Cache.Put(ctx, a.Tile, date, a.Mode, day); err != nil {
		return false, fmt.Errorf("Store.%w", err)
	}
	return true, nil
}
