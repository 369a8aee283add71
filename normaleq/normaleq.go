// Package normaleq builds the normal equations (M, V, E) of the weighted least-squares BRDF inversion,
// for one observation.
package normaleq

import (
	"fmt"

	"github.com/airbusgeo/albedo-inversion/brdf"
	"github.com/airbusgeo/albedo-inversion/common"
	"github.com/airbusgeo/albedo-inversion/observation"
	"gonum.org/v1/gonum/mat"
)

const nm = brdf.NumParams * brdf.NumParams

// PixelContribution holds the normal equations of one pixel
// M = Kt.C^-1.K, V = Kt.diag(C^-1).R, E = Rt.C^-1.R
type PixelContribution struct {
	M [nm]float64 // row-major
	V [brdf.NumParams]float64
	E float64
}

// MDense returns M as a gonum matrix (sharing the data)
func (pc *PixelContribution) MDense() *mat.Dense {
	return mat.NewDense(brdf.NumParams, brdf.NumParams, pc.M[:])
}

// VVec returns V as a gonum vector (sharing the data)
func (pc *PixelContribution) VVec() *mat.VecDense {
	return mat.NewVecDense(brdf.NumParams, pc.V[:])
}

// Contribution holds the per-pixel normal equations of a raster. Planes are stored band-sequential:
// M[(i*NumParams+j)*Size()+p], V[i*Size()+p]
type Contribution struct {
	Width, Height int
	M, V, E, Mask []float32
}

// New allocates an empty contribution
func New(width, height int) *Contribution {
	n := width * height
	return &Contribution{
		Width:  width,
		Height: height,
		M:      make([]float32, nm*n),
		V:      make([]float32, brdf.NumParams*n),
		E:      make([]float32, n),
		Mask:   make([]float32, n),
	}
}

// Size returns the number of pixels
func (c *Contribution) Size() int {
	return c.Width * c.Height
}

// Pixel returns the contribution and the mask of the p-th pixel
func (c *Contribution) Pixel(p int) (PixelContribution, float64) {
	var pc PixelContribution
	n := c.Size()
	for i := range pc.M {
		pc.M[i] = float64(c.M[i*n+p])
	}
	for i := range pc.V {
		pc.V[i] = float64(c.V[i*n+p])
	}
	pc.E = float64(c.E[p])
	return pc, float64(c.Mask[p])
}

// SetPixel sets the contribution and the mask of the p-th pixel
func (c *Contribution) SetPixel(p int, pc *PixelContribution, mask float64) {
	n := c.Size()
	for i, v := range pc.M {
		c.M[i*n+p] = float32(v)
	}
	for i, v := range pc.V {
		c.V[i*n+p] = float32(v)
	}
	c.E[p] = float32(pc.E)
	c.Mask[p] = float32(mask)
}

// Add sums other into c (e.g. acquisitions of the same day)
func (c *Contribution) Add(other *Contribution) error {
	if c.Width != other.Width || c.Height != other.Height {
		return fmt.Errorf("Contribution.Add: shape mismatch: %dx%d vs %dx%d", c.Width, c.Height, other.Width, other.Height)
	}
	add := func(dst, src []float32) {
		for i, v := range src {
			dst[i] += v
		}
	}
	add(c.M, other.M)
	add(c.V, other.V)
	add(c.E, other.E)
	add(c.Mask, other.Mask)
	return nil
}

// Valid returns true if the pixel reflectances, uncertainties and snow mask can be used in mode
func Valid(px *observation.Pixel, mode common.SnowMode) bool {
	for b := 0; b < brdf.NumBands; b++ {
		if r := px.Reflectance[b]; r == 0 || r == brdf.Invalid {
			return false
		}
		if px.SD[b] == 0 {
			return false
		}
	}
	return mode.Accept(float32(px.SnowMask))
}

// Build returns the contribution of an observation. Masked pixels (invalid reflectance or uncertainty,
// snow mask not matching the mode, singular covariance) have a null contribution and mask.
func Build(obs *observation.Observation, mode common.SnowMode) *Contribution {
	c := New(obs.Width, obs.Height)
	for p := 0; p < obs.Size(); p++ {
		px := obs.Pixel(p)
		if !Valid(&px, mode) {
			continue
		}
		if pc, ok := BuildPixel(px.Reflectance, px.SD, px.Correlation, px.Kvol, px.Kgeo); ok {
			c.SetPixel(p, &pc, 1)
		}
	}
	return c
}

// Covariance returns the 3x3 covariance of the bands: C_jj = SD_j², C_jk = corr_jk.SD_j.SD_k
func Covariance(sd, corr [brdf.NumBands]float64) *mat.SymDense {
	c := mat.NewSymDense(brdf.NumBands, nil)
	for j := 0; j < brdf.NumBands; j++ {
		c.SetSym(j, j, sd[j]*sd[j])
	}
	for i := range corr {
		j, k := brdf.CorrelationIndex(i)
		c.SetSym(j, k, corr[i]*sd[j]*sd[k])
	}
	return c
}

// Kernels returns the 3x9 kernel matrix: K[b][3b]=1, K[b][3b+1]=Kvol_b, K[b][3b+2]=Kgeo_b
func Kernels(kvol, kgeo [brdf.NumBands]float64) *mat.Dense {
	k := mat.NewDense(brdf.NumBands, brdf.NumParams, nil)
	for b := 0; b < brdf.NumBands; b++ {
		k.Set(b, brdf.NumKernels*b, 1)
		k.Set(b, brdf.NumKernels*b+1, kvol[b])
		k.Set(b, brdf.NumKernels*b+2, kgeo[b])
	}
	return k
}

// BuildPixel returns the normal equations of one pixel. It returns false if the covariance is singular.
func BuildPixel(r, sd, corr, kvol, kgeo [brdf.NumBands]float64) (PixelContribution, bool) {
	var pc PixelContribution
	cinv, ok := brdf.Inverse(Covariance(sd, corr))
	if !ok {
		return pc, false
	}
	k := Kernels(kvol, kgeo)
	refl := mat.NewVecDense(brdf.NumBands, r[:])

	var cinvK mat.Dense
	cinvK.Mul(cinv, k)
	m := pc.MDense()
	m.Mul(k.T(), &cinvK)

	var diagR mat.VecDense
	diagR.MulElemVec(mat.NewVecDense(brdf.NumBands, []float64{cinv.At(0, 0), cinv.At(1, 1), cinv.At(2, 2)}), refl)
	pc.VVec().MulVec(k.T(), &diagR)

	pc.E = mat.Inner(refl, cinv, refl)
	return pc, true
}
