// Package inversion inverts the accumulated normal equations, regularized by the prior, into the BRDF parameters
// and their uncertainties.
package inversion

import (
	"fmt"

	"github.com/airbusgeo/albedo-inversion/accumulator"
	"github.com/airbusgeo/albedo-inversion/brdf"
	"github.com/airbusgeo/albedo-inversion/common"
	"github.com/airbusgeo/albedo-inversion/prior"
	"gonum.org/v1/gonum/mat"
)

// Band names of the auxiliary bands of an inversion product
const (
	BandEntropy       = "Entropy"
	BandRelEntropy    = "Relative_Entropy"
	BandNSamples      = "Weighted_Number_of_Samples"
	BandDaysToClosest = "Days_to_the_Closest_Sample"
	BandGoF           = "Goodness_of_Fit"
)

// Indices of the bands of an inversion product (0-based)
const (
	IndexParams        = 0
	IndexUncert        = IndexParams + brdf.NumParams
	IndexEntropy       = IndexUncert + brdf.NumUncert
	IndexRelEntropy    = IndexEntropy + 1
	IndexNSamples      = IndexEntropy + 2
	IndexDaysToClosest = IndexEntropy + 3
	IndexGoF           = IndexEntropy + 4
	NumBands           = IndexGoF + 1
)

// BandNames returns the names of the bands of an inversion product
func BandNames() []string {
	names := append(brdf.ParamNames(), brdf.UncertNames()...)
	return append(names, BandEntropy, BandRelEntropy, BandNSamples, BandDaysToClosest, BandGoF)
}

// Flags of an inverted pixel
type Flags uint8

const (
	// FlagInverted is set when the accumulator and the prior are valid and the inversion succeeded
	FlagInverted Flags = 1 << iota
	// FlagPriorOnly is set when only the prior is valid
	FlagPriorOnly
	// FlagSingular is set when M, or the prior covariance of a prior-only pixel, is singular
	FlagSingular

	// FlagInvalidParams ... FlagInvalidRelEntropy are set when the quantity is meaningless
	FlagInvalidParams
	FlagInvalidUncert
	FlagInvalidEntropy
	FlagInvalidRelEntropy
)

// Has returns true if all the flags f are set
func (fl Flags) Has(f Flags) bool {
	return fl&f == f
}

// AccPixel is the accumulation of one pixel
type AccPixel = accumulator.Pixel

// Pixel is the result of the inversion of one pixel
type Pixel struct {
	Params [brdf.NumParams]float64
	// Uncert is the upper triangle of the posterior covariance, row-major
	Uncert        [brdf.NumUncert]float64
	Entropy       float64
	RelEntropy    float64
	NSamples      float64
	DaysToClosest float64
	GoF           float64
	Flags         Flags
}

// PriorEntropy returns the entropy of the (diagonal) prior
func PriorEntropy(pr *prior.Pixel) float64 {
	_, s, ok := brdf.SVD(mat.NewDiagDense(brdf.NumParams, pr.CinvDiag[:]))
	if !ok {
		return 0
	}
	return brdf.Entropy(s)
}

func priorUncert(pr *prior.Pixel, dst []float64) bool {
	m, ok := brdf.Inverse(mat.NewDiagDense(brdf.NumParams, pr.CinvDiag[:]))
	if !ok {
		return false
	}
	brdf.UpperTriangle(m, dst)
	return true
}

// InvertPixel inverts the normal equations of one pixel, regularized by the prior if usePrior
func InvertPixel(acc AccPixel, pr prior.Pixel, usePrior bool) Pixel {
	px := Pixel{NSamples: acc.NSamples, DaysToClosest: acc.DaysToClosest}

	m := mat.NewDense(brdf.NumParams, brdf.NumParams, acc.M[:])
	v := mat.NewVecDense(brdf.NumParams, acc.V[:])

	switch {
	case acc.NSamples > 0 && pr.Valid:
		if usePrior {
			for i := 0; i < brdf.NumParams; i++ {
				m.Set(i, i, m.At(i, i)+pr.CinvDiag[i])
			}
			v.AddVec(v, mat.NewVecDense(brdf.NumParams, pr.VPrior[:]))
		}

		uncert, ok := brdf.Inverse(m)
		if !ok {
			px.setSingular()
			return px
		}
		if brdf.HasNaN(uncert) || brdf.HasInvalidDiagonal(uncert) {
			px.Flags |= FlagInvalidUncert
		} else {
			brdf.UpperTriangle(uncert, px.Uncert[:0])
		}

		f, s, ok := brdf.LstSq(m, v)
		if !ok {
			px.setSingular()
			return px
		}
		copy(px.Params[:], f.RawVector().Data)
		px.Flags |= FlagInverted
		px.Entropy = brdf.Entropy(s)
		if usePrior {
			px.RelEntropy = PriorEntropy(&pr) - px.Entropy
		} else {
			px.Flags |= FlagInvalidRelEntropy
		}

	case pr.Valid:
		px.Flags = FlagPriorOnly
		switch {
		case !usePrior:
			px.Flags |= FlagInvalidParams | FlagInvalidUncert | FlagInvalidEntropy | FlagInvalidRelEntropy
			px.Entropy, px.RelEntropy = brdf.Invalid, brdf.Invalid
		case priorUncert(&pr, px.Uncert[:0]):
			px.Params = pr.Mean
			px.Entropy = PriorEntropy(&pr)
		default:
			px.setSingular()
		}
	}

	if px.NSamples > 0 {
		px.GoF = GoodnessOfFit(m, v, acc.E, px.Params[:])
	}
	return px
}

// setSingular invalidates the pixel. Its samples are discarded.
func (px *Pixel) setSingular() {
	px.Flags |= FlagSingular | FlagInvalidParams | FlagInvalidUncert | FlagInvalidEntropy | FlagInvalidRelEntropy
	px.Entropy, px.RelEntropy = brdf.Invalid, brdf.Invalid
	px.NSamples = 0
}

// GoodnessOfFit returns Ft.M.F + Ft.V - 2E
func GoodnessOfFit(m mat.Matrix, v mat.Vector, e float64, params []float64) float64 {
	f := mat.NewVecDense(brdf.NumParams, params)
	return mat.Inner(f, m, f) + mat.Dot(f, v) - 2*e
}

// Result is the inversion of a raster
type Result struct {
	Width, Height int
	Pixels        []Pixel
}

// Invert inverts all the pixels of the accumulation. An empty accumulation is considered as having no samples.
func Invert(acc *accumulator.Accumulation, pr *prior.Prior, usePrior bool) (*Result, error) {
	if acc == nil || acc.Size() == 0 {
		acc = accumulator.NewAccumulation(pr.Width, pr.Height)
	}
	if acc.Width != pr.Width || acc.Height != pr.Height {
		return nil, fmt.Errorf("Invert: shape mismatch: accumulator %dx%d, prior %dx%d", acc.Width, acc.Height, pr.Width, pr.Height)
	}
	res := &Result{Width: acc.Width, Height: acc.Height, Pixels: make([]Pixel, acc.Size())}
	for p := range res.Pixels {
		res.Pixels[p] = InvertPixel(acc.Pixel(p), pr.Pixel(p), usePrior)
	}
	return res, nil
}

// Valid returns the number of pixels whose parameters are meaningful
func (r *Result) Valid() int {
	n := 0
	for p := range r.Pixels {
		if !r.Pixels[p].Flags.Has(FlagInvalidParams) {
			n++
		}
	}
	return n
}

// Raster returns the inversion product. Meaningless values are set to brdf.Invalid.
func (r *Result) Raster(tile common.Tile) *common.Raster {
	out := common.NewRaster(r.Width, r.Height, BandNames())
	out.Tile = tile
	values := make([]float64, NumBands)
	for p := range r.Pixels {
		r.Pixels[p].Values(values)
		out.SetPixel(p, values)
	}
	return out
}

// Values writes the bands of the pixel in dst
func (px *Pixel) Values(dst []float64) {
	set := func(dst []float64, src []float64, invalid bool) {
		for i := range dst {
			if invalid {
				dst[i] = brdf.Invalid
			} else {
				dst[i] = src[i]
			}
		}
	}
	set(dst[IndexParams:IndexUncert], px.Params[:], px.Flags.Has(FlagInvalidParams))
	set(dst[IndexUncert:IndexEntropy], px.Uncert[:], px.Flags.Has(FlagInvalidUncert))
	set(dst[IndexEntropy:IndexRelEntropy], []float64{px.Entropy}, px.Flags.Has(FlagInvalidEntropy))
	set(dst[IndexRelEntropy:IndexNSamples], []float64{px.RelEntropy}, px.Flags.Has(FlagInvalidRelEntropy))
	dst[IndexNSamples] = px.NSamples
	dst[IndexDaysToClosest] = px.DaysToClosest
	dst[IndexGoF] = px.GoF
}

// PixelFromValues is the reverse of Pixel.Values. Only the validity flags are restored.
func PixelFromValues(values []float64) Pixel {
	var px Pixel
	copy(px.Params[:], values[IndexParams:IndexUncert])
	copy(px.Uncert[:], values[IndexUncert:IndexEntropy])
	px.Entropy = values[IndexEntropy]
	px.RelEntropy = values[IndexRelEntropy]
	px.NSamples = values[IndexNSamples]
	px.DaysToClosest = values[IndexDaysToClosest]
	px.GoF = values[IndexGoF]
	if brdf.IsInvalid(px.Params[0]) {
		px.Flags |= FlagInvalidParams
	}
	if brdf.IsInvalid(px.Uncert[0]) {
		px.Flags |= FlagInvalidUncert
	}
	if brdf.IsInvalid(px.Entropy) {
		px.Flags |= FlagInvalidEntropy
	}
	if brdf.IsInvalid(px.RelEntropy) {
		px.Flags |= FlagInvalidRelEntropy
	}
	return px
}
