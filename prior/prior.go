// Package prior loads the BRDF priors and converts them into diagonal normal equations
package prior

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"

	"github.com/airbusgeo/albedo-inversion/brdf"
	"github.com/airbusgeo/albedo-inversion/common"
	"github.com/airbusgeo/albedo-inversion/interface/raster/envi"
	"github.com/airbusgeo/albedo-inversion/service"
	"github.com/airbusgeo/albedo-inversion/service/log"
	"go.uber.org/zap"
)

// ErrNotFound is returned when the prior of a unit does not exist
var ErrNotFound = errors.New("prior not found")

const (
	// DefaultScale of the prior uncertainties
	DefaultScale = 30.0
	// NumBands of a prior file: 9 means, 9 SDs, the number of samples and the land/water mask
	NumBands = 2*brdf.NumParams + 2

	bandNSamples = 2 * brdf.NumParams
	bandMaskFlag = 2*brdf.NumParams + 1

	// NSamples of the priors whose uncertainty is reset
	minNSamples = 1.0e-20
	maxSD       = 1.0
)

// Pixel is the prior of one pixel
type Pixel struct {
	Mean [brdf.NumParams]float64
	// CinvDiag is the diagonal of the inverse of the (diagonal) covariance of the prior: M_prior
	CinvDiag [brdf.NumParams]float64
	// VPrior = CinvDiag * Mean
	VPrior   [brdf.NumParams]float64
	Valid    bool
	MaskFlag float64
}

// Prior holds the per-pixel priors of a raster
type Prior struct {
	Width, Height int
	Mean          [brdf.NumParams][]float32
	CinvDiag      [brdf.NumParams][]float32
	Valid         []bool
	MaskFlag      []float32
}

// New allocates an empty (invalid) prior
func New(width, height int) *Prior {
	n := width * height
	p := &Prior{Width: width, Height: height, Valid: make([]bool, n), MaskFlag: make([]float32, n)}
	for i := 0; i < brdf.NumParams; i++ {
		p.Mean[i] = make([]float32, n)
		p.CinvDiag[i] = make([]float32, n)
	}
	return p
}

// Size returns the number of pixels
func (p *Prior) Size() int {
	return p.Width * p.Height
}

// Pixel returns the prior of the i-th pixel
func (p *Prior) Pixel(i int) Pixel {
	px := Pixel{Valid: p.Valid[i], MaskFlag: float64(p.MaskFlag[i])}
	for k := 0; k < brdf.NumParams; k++ {
		px.Mean[k] = float64(p.Mean[k][i])
		px.CinvDiag[k] = float64(p.CinvDiag[k][i])
		px.VPrior[k] = px.CinvDiag[k] * px.Mean[k]
	}
	return px
}

// SetPixel sets the prior of the i-th pixel
func (p *Prior) SetPixel(i int, px *Pixel) {
	p.Valid[i] = px.Valid
	p.MaskFlag[i] = float32(px.MaskFlag)
	for k := 0; k < brdf.NumParams; k++ {
		p.Mean[k][i] = float32(px.Mean[k])
		p.CinvDiag[k][i] = float32(px.CinvDiag[k])
	}
}

// ProcessPixel converts the raw prior of a pixel (means, SDs, number of samples) into its normal equations:
//   - a parameter with a value but without uncertainty gets an uncertainty of 1 and forces the pixel valid;
//   - once the pixel is forced valid, every parameter with a value gets an uncertainty of 1;
//   - SDs are multiplied by scale and capped to 1;
//   - the pixel is valid if its number of samples is positive and its covariance invertible. A singular covariance
//     is replaced by the identity if all the means are in (0, 1] and all the SDs in [0, 1].
func ProcessPixel(mean, sd [brdf.NumParams]float64, nSamples, scale float64) Pixel {
	px := Pixel{Mean: mean}
	forced := false
	for b := 0; b < brdf.NumParams; b++ {
		if mean[b] > 0 && sd[b] == 0 {
			forced = true
			nSamples = minNSamples
			sd[b] = 1
		}
		if mean[b] > 0 && sd[b] > 0 && forced {
			nSamples = minNSamples
			sd[b] = 1
		}
		sd[b] *= scale
		if sd[b] > maxSD {
			sd[b] = maxSD
		}
	}
	if !(nSamples > 0) {
		return px
	}

	singular := false
	for b := 0; b < brdf.NumParams; b++ {
		c := sd[b] * sd[b]
		if c == 0 || math.IsNaN(c) {
			singular = true
			break
		}
		px.CinvDiag[b] = 1 / c
	}
	if singular {
		for b := 0; b < brdf.NumParams; b++ {
			if !(mean[b] > 0 && mean[b] <= 1) || !(sd[b] >= 0 && sd[b] <= 1) {
				return Pixel{Mean: mean}
			}
		}
		for b := range px.CinvDiag {
			px.CinvDiag[b] = 1
		}
	}
	px.Valid = true
	for b := 0; b < brdf.NumParams; b++ {
		px.VPrior[b] = px.CinvDiag[b] * mean[b]
	}
	return px
}

// Load reads a prior file, restricted to the window, and scales its uncertainties
func Load(file string, scale float64, window common.Window) (*Prior, error) {
	if !envi.Exists(file) {
		return nil, fmt.Errorf("Load[%s]: %w", file, ErrNotFound)
	}
	r, h, err := envi.Read(file)
	if err != nil {
		return nil, fmt.Errorf("Load.%w", err)
	}
	if h.Bands != NumBands {
		return nil, fmt.Errorf("Load[%s]: %d bands found, expecting %d", file, h.Bands, NumBands)
	}
	w, err := window.Resolve(r.Width, r.Height)
	if err != nil {
		return nil, fmt.Errorf("Load[%s]: %w", file, err)
	}

	p := New(w.Width(), w.Height())
	var mean, sd [brdf.NumParams]float64
	i := 0
	for y := w.YMin; y <= w.YMax; y++ {
		for x := w.XMin; x <= w.XMax; x++ {
			src := y*r.Width + x
			for b := 0; b < brdf.NumParams; b++ {
				mean[b] = float64(r.Bands[b][src])
				sd[b] = float64(r.Bands[b+brdf.NumParams][src])
			}
			px := ProcessPixel(mean, sd, float64(r.Bands[bandNSamples][src]), scale)
			px.MaskFlag = float64(r.Bands[bandMaskFlag][src])
			p.SetPixel(i, &px)
			i++
		}
	}
	return p, nil
}

// LoadMaskFlag reads the land/water mask (last band) of a prior file, restricted to the window
func LoadMaskFlag(file string, window common.Window) ([]float32, int, int, error) {
	if !envi.Exists(file) {
		return nil, 0, 0, fmt.Errorf("LoadMaskFlag[%s]: %w", file, ErrNotFound)
	}
	h, err := envi.ReadHeader(file)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("LoadMaskFlag.%w", err)
	}
	r, err := envi.ReadBands(file, h, []int{h.Bands - 1})
	if err != nil {
		return nil, 0, 0, fmt.Errorf("LoadMaskFlag.%w", err)
	}
	w, err := window.Resolve(r.Width, r.Height)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("LoadMaskFlag[%s]: %w", file, err)
	}
	return common.Crop(r.Bands[0], r.Width, w), w.Width(), w.Height(), nil
}

// Fetch imports the prior of the unit from the storage into localdir and loads it.
// A missing prior is a fatal error wrapping ErrNotFound.
func Fetch(ctx context.Context, storage service.Storage, unit common.Unit, localdir string, scale float64, window common.Window) (*Prior, error) {
	if err := storage.ImportLayer(ctx, unit, service.LayerPrior, service.ExtensionENVI, localdir); err != nil {
		if service.IsNotFound(err) {
			return nil, service.MakeFatal(fmt.Errorf("Fetch[%s]: %w (%v)", unit.Tag(), ErrNotFound, err))
		}
		return nil, fmt.Errorf("Fetch[%s].%w", unit.Tag(), err)
	}
	file := filepath.Join(localdir, service.LayerFileName(unit, service.LayerPrior, service.ExtensionENVI))
	log.Logger(ctx).Debug("loading prior", zap.String("file", file), zap.Float64("scale", scale))
	p, err := Load(file, scale, window)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, service.MakeFatal(err)
		}
		return nil, fmt.Errorf("Fetch[%s].%w", unit.Tag(), err)
	}
	return p, nil
}
