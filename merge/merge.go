// Package merge combines the Snow and NoSnow inversions of a tile into one product
package merge

import (
	"errors"
	"fmt"
	"math"

	"github.com/airbusgeo/albedo-inversion/brdf"
	"github.com/airbusgeo/albedo-inversion/common"
	"github.com/airbusgeo/albedo-inversion/inversion"
)

// ErrNoInput is returned when neither the Snow nor the NoSnow product is available
var ErrNoInput = errors.New("neither Snow nor NoSnow product found")

// BandSnowFraction is the band added to the inversion bands by the merge
const BandSnowFraction = "Snow_Fraction"

// NumBands of a merged product
const NumBands = inversion.NumBands + 1

// Land cover classes of the prior mask
const (
	maskShoreline      = 0
	maskShallowWater   = 2
	maskInlandWater    = 3
	maskEphemeralWater = 5
	maskDeepOcean      = 15
)

func noInversion(priorMask float64) bool {
	switch priorMask {
	case maskShoreline, maskShallowWater, maskInlandWater, maskEphemeralWater, maskDeepOcean:
		return true
	}
	return false
}

// entropy of the pixel, zero if invalid
func entropy(values []float64) float64 {
	if e := values[inversion.IndexEntropy]; !brdf.IsInvalid(e) {
		return e
	}
	return 0
}

// PixelMerger merges the values of a pixel and returns the snow fraction
type PixelMerger func(noSnow, snow []float64, priorMask float64) ([]float64, float64)

// MergePixel merges the values of a pixel with respect to the proportion of Snow and NoSnow samples.
// Without samples, the inversion having the lowest entropy is selected.
func MergePixel(noSnow, snow []float64, priorMask float64) ([]float64, float64) {
	out := make([]float64, len(noSnow))
	nNoSnow, nSnow := noSnow[inversion.IndexNSamples], snow[inversion.IndexNSamples]

	if total := nNoSnow + nSnow; total > 0 {
		switch {
		case nNoSnow == 0 && priorMask == maskInlandWater:
			return out, 0
		case priorMask == maskShoreline || priorMask == maskShallowWater:
			copy(out, noSnow)
			return out, 0
		}
		pNoSnow, pSnow := nNoSnow/total, nSnow/total
		for i := range out {
			out[i] = noSnow[i]*pNoSnow + snow[i]*pSnow
		}
		return out, pSnow
	}

	if noInversion(priorMask) {
		return out, 0
	}
	eNoSnow, eSnow := entropy(noSnow), entropy(snow)
	switch {
	case eSnow != 0 && eNoSnow != 0:
		if eSnow <= eNoSnow {
			copy(out, snow)
			return out, 1
		}
		copy(out, noSnow)
	case eSnow != 0:
		copy(out, snow)
		return out, 1
	case eNoSnow != 0:
		copy(out, noSnow)
	}
	return out, 0
}

// ByClosestSample selects the inversion whose closest sample is the nearest to the target date.
// An inversion has a sample when its weighted number of samples is positive, and the distance is the
// absolute value of its days to the closest sample. Snow is selected only when strictly nearer with a
// non-zero first parameter, NoSnow otherwise. The prior mask is ignored.
func ByClosestSample(noSnow, snow []float64, _ float64) ([]float64, float64) {
	out := make([]float64, len(noSnow))
	hasNoSnow := noSnow[inversion.IndexNSamples] > 0
	hasSnow := snow[inversion.IndexNSamples] > 0
	switch {
	case hasNoSnow && hasSnow:
		dNoSnow := math.Abs(noSnow[inversion.IndexDaysToClosest])
		dSnow := math.Abs(snow[inversion.IndexDaysToClosest])
		if dNoSnow > dSnow && snow[inversion.IndexParams] != 0 {
			copy(out, snow)
			return out, 1
		}
		copy(out, noSnow)
	case hasNoSnow:
		copy(out, noSnow)
	case hasSnow:
		copy(out, snow)
		return out, 1
	}
	return out, 0
}

// Merge merges two inversion products of the same shape by sample proportion.
// priorMask is the land cover mask of the prior, one value per pixel.
func Merge(noSnow, snow *common.Raster, priorMask []float32) *common.Raster {
	return MergeWith(noSnow, snow, priorMask, MergePixel)
}

// MergeWith merges two inversion products of the same shape using the merger
func MergeWith(noSnow, snow *common.Raster, priorMask []float32, merger PixelMerger) *common.Raster {
	out := newMerged(noSnow)
	nsValues := make([]float64, len(noSnow.Bands))
	sValues := make([]float64, len(snow.Bands))
	for p := 0; p < noSnow.Size(); p++ {
		noSnow.Pixel(p, nsValues)
		snow.Pixel(p, sValues)
		values, fraction := merger(nsValues, sValues, float64(priorMask[p]))
		out.SetPixel(p, append(values, fraction))
	}
	return out
}

// PassThrough returns the product of a single snow mode as a merged product
func PassThrough(product *common.Raster, mode common.SnowMode) *common.Raster {
	out := newMerged(product)
	for b := range product.Bands {
		copy(out.Bands[b], product.Bands[b])
	}
	fraction := out.Bands[len(out.Bands)-1]
	if mode == common.SnowModeSnow {
		for i := range fraction {
			fraction[i] = 1
		}
	}
	return out
}

func newMerged(product *common.Raster) *common.Raster {
	names := make([]string, 0, len(product.BandNames)+1)
	names = append(names, product.BandNames...)
	out := common.NewRaster(product.Width, product.Height, append(names, BandSnowFraction))
	out.Tile = product.Tile
	return out
}

// Products merges the available products. A missing product (nil) makes the other one pass through.
// A nil priorMask is considered as all zeros.
func Products(noSnow, snow *common.Raster, priorMask []float32, merger PixelMerger) (*common.Raster, error) {
	switch {
	case noSnow == nil && snow == nil:
		return nil, ErrNoInput
	case snow == nil:
		return PassThrough(noSnow, common.SnowModeNoSnow), nil
	case noSnow == nil:
		return PassThrough(snow, common.SnowModeSnow), nil
	}
	if err := noSnow.SameShape(snow); err != nil {
		return nil, fmt.Errorf("Products: %w", err)
	}
	if len(noSnow.Bands) < inversion.NumBands || len(snow.Bands) != len(noSnow.Bands) {
		return nil, fmt.Errorf("Products: expecting %d bands, got %d (NoSnow) and %d (Snow)", inversion.NumBands, len(noSnow.Bands), len(snow.Bands))
	}
	if priorMask == nil {
		priorMask = make([]float32, noSnow.Size())
	} else if len(priorMask) != noSnow.Size() {
		return nil, fmt.Errorf("Products: prior mask of %d pixels for %d pixels", len(priorMask), noSnow.Size())
	}
	return MergeWith(noSnow, snow, priorMask, merger), nil
}
