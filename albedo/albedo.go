// Package albedo converts the BRDF parameters into black-sky and white-sky albedos
package albedo

import (
	"fmt"
	"math"

	"github.com/airbusgeo/albedo-inversion/brdf"
	"github.com/airbusgeo/albedo-inversion/common"
	"github.com/airbusgeo/albedo-inversion/interface/raster/envi"
	"github.com/airbusgeo/albedo-inversion/inversion"
	"gonum.org/v1/gonum/mat"
)

// Polynomial coefficients of the kernels integrals
const (
	g1a, g1b, g1c = -0.007574, -0.070887, 0.307588 // volumetric, black-sky
	g2a, g2b, g2c = -1.284909, -0.166314, 0.041840 // geometric, black-sky
	wsaVol        = 0.189184
	wsaGeo        = -1.377622
	maxVariance   = 1.0
)

// NumBands of an albedo product
const NumBands = 18

// Indices of the auxiliary bands of an albedo product
const (
	IndexNSamples     = 12
	IndexH            = 13
	IndexGoF          = 14
	IndexSnowFraction = 15
	IndexDataMask     = 16
	IndexSZA          = 17
)

// BandNames returns the names of the bands of an albedo product.
// The black-sky albedo is the directional-hemispherical reflectance (DHR), the white-sky albedo the
// bi-hemispherical reflectance (BHR).
func BandNames() []string {
	var names []string
	for _, prefix := range []string{"DHR_", "BHR_", "sigmaDHR_", "sigmaBHR_"} {
		for _, b := range brdf.Bands {
			names = append(names, prefix+b)
		}
	}
	return append(names, "Weighted_Number_of_Samples", "Relative_Entropy", "Goodness_of_Fit", "Snow_Fraction", "Data_Mask", "Solar_Zenith_Angle")
}

// bsaCoefficients returns the weights of (f0, f1, f2) of the black-sky albedo at sza (radians)
func bsaCoefficients(sza float64) [brdf.NumKernels]float64 {
	s2, s3 := sza*sza, sza*sza*sza
	return [brdf.NumKernels]float64{1, g1a + g1b*s2 + g1c*s3, g2a + g2b*s2 + g2c*s3}
}

var wsaCoefficients = [brdf.NumKernels]float64{1, wsaVol, wsaGeo}

// BSA returns the black-sky albedo of the parameters (f0, f1, f2) of a band at sza (radians)
func BSA(f [brdf.NumKernels]float64, sza float64) float64 {
	u := bsaCoefficients(sza)
	return u[0]*f[0] + u[1]*f[1] + u[2]*f[2]
}

// WSA returns the white-sky albedo of the parameters (f0, f1, f2) of a band
func WSA(f [brdf.NumKernels]float64) float64 {
	return f[0] + wsaVol*f[1] + wsaGeo*f[2]
}

// Sigma returns the uncertainty of the linear combination u of the parameters whose covariance is cov:
// sqrt(|min(ut.C.u, 1)|)
func Sigma(u [brdf.NumParams]float64, cov [brdf.NumParams][brdf.NumParams]float64) float64 {
	c := mat.NewDense(brdf.NumParams, brdf.NumParams, nil)
	for i := range cov {
		c.SetRow(i, cov[i][:])
	}
	return sigma(mat.NewVecDense(brdf.NumParams, u[:]), c)
}

func sigma(u *mat.VecDense, c mat.Matrix) float64 {
	v := mat.Inner(u, c, u)
	if v >= maxVariance {
		v = maxVariance
	}
	return math.Sqrt(math.Abs(v))
}

// bandVector returns the 9-vector of the coefficients k of band b
func bandVector(b int, k [brdf.NumKernels]float64) *mat.VecDense {
	u := mat.NewVecDense(brdf.NumParams, nil)
	for i, v := range k {
		u.SetVec(brdf.NumKernels*b+i, v)
	}
	return u
}

// Pixel is the albedo of one pixel
type Pixel struct {
	BSA, WSA, BSASigma, WSASigma [brdf.NumBands]float64
	NSamples, H, GoF             float64
	SnowFraction, DataMask, SZA  float64
}

// ConvertPixel computes the albedos of the inverted pixel at szaDeg (degrees).
// Albedos are computed where the entropy is not zero. An invalid entropy gives invalid albedos and sigmas,
// with a zero data mask. Invalid parameters (resp. uncertainties) give invalid albedos (resp. sigmas).
func ConvertPixel(in *inversion.Pixel, snowFraction, szaDeg float64) Pixel {
	px := Pixel{
		NSamples:     in.NSamples,
		H:            math.Exp(in.RelEntropy / brdf.NumParams),
		GoF:          in.GoF,
		SnowFraction: snowFraction,
		SZA:          szaDeg,
	}
	if in.Entropy == 0 {
		return px
	}
	if in.Flags.Has(inversion.FlagInvalidEntropy) {
		for b := 0; b < brdf.NumBands; b++ {
			px.BSA[b], px.WSA[b] = brdf.Invalid, brdf.Invalid
			px.BSASigma[b], px.WSASigma[b] = brdf.Invalid, brdf.Invalid
		}
		return px
	}
	px.DataMask = 1

	sza := szaDeg * math.Pi / 180
	bsa := bsaCoefficients(sza)
	for b := 0; b < brdf.NumBands; b++ {
		if in.Flags.Has(inversion.FlagInvalidParams) {
			px.BSA[b], px.WSA[b] = brdf.Invalid, brdf.Invalid
		} else {
			f := [brdf.NumKernels]float64{in.Params[3*b], in.Params[3*b+1], in.Params[3*b+2]}
			px.BSA[b], px.WSA[b] = BSA(f, sza), WSA(f)
		}
	}
	if in.Flags.Has(inversion.FlagInvalidUncert) {
		for b := 0; b < brdf.NumBands; b++ {
			px.BSASigma[b], px.WSASigma[b] = brdf.Invalid, brdf.Invalid
		}
		return px
	}
	c := brdf.FromUpperTriangle(in.Uncert[:])
	for b := 0; b < brdf.NumBands; b++ {
		px.BSASigma[b] = sigma(bandVector(b, bsa), c)
		px.WSASigma[b] = sigma(bandVector(b, wsaCoefficients), c)
	}
	return px
}

// Values writes the bands of the pixel in dst
func (px *Pixel) Values(dst []float64) {
	for b := 0; b < brdf.NumBands; b++ {
		dst[b] = px.BSA[b]
		dst[3+b] = px.WSA[b]
		dst[6+b] = px.BSASigma[b]
		dst[9+b] = px.WSASigma[b]
	}
	dst[IndexNSamples] = px.NSamples
	dst[IndexH] = px.H
	dst[IndexGoF] = px.GoF
	dst[IndexSnowFraction] = px.SnowFraction
	dst[IndexDataMask] = px.DataMask
	dst[IndexSZA] = px.SZA
}

// Convert computes the albedo product of an inversion (or merged) product.
// sza gives the solar zenith angle (degrees) of each pixel.
// The snow fraction is read from the merged product, or is snowFraction for an inversion product.
func Convert(product *common.Raster, sza []float32, snowFraction float64) (*common.Raster, error) {
	if len(product.Bands) < inversion.NumBands {
		return nil, fmt.Errorf("Convert: %d bands found, expecting at least %d", len(product.Bands), inversion.NumBands)
	}
	if len(sza) != product.Size() {
		return nil, fmt.Errorf("Convert: %d solar zenith angles for %d pixels", len(sza), product.Size())
	}
	hasFraction := len(product.Bands) > inversion.NumBands

	out := common.NewRaster(product.Width, product.Height, BandNames())
	out.Tile = product.Tile
	values := make([]float64, len(product.Bands))
	res := make([]float64, NumBands)
	for p := 0; p < product.Size(); p++ {
		product.Pixel(p, values)
		in := inversion.PixelFromValues(values)
		fraction := snowFraction
		if hasFraction {
			fraction = values[inversion.NumBands]
		}
		px := ConvertPixel(&in, fraction, float64(sza[p]))
		px.Values(res)
		out.SetPixel(p, res)
	}
	return out, nil
}

// SolarDeclination returns the declination of the sun (degrees) at the day of year
func SolarDeclination(doy int) float64 {
	return -23.45 * math.Cos(2*math.Pi/365*float64(doy+10))
}

// LocalNoonSZA returns the solar zenith angle (degrees) at local noon of the pixels of a window of the tile.
// tileHeight is the number of lines of the whole tile.
func LocalNoonSZA(tile common.Tile, doy int, tileHeight int, window common.Window) []float32 {
	decl := SolarDeclination(doy)
	sza := make([]float32, 0, window.Width()*window.Height())
	for y := window.YMin; y <= window.YMax; y++ {
		v := float32(math.Abs(tile.Latitude(y, tileHeight) - decl))
		for x := window.XMin; x <= window.XMax; x++ {
			sza = append(sza, v)
		}
	}
	return sza
}

// LoadSZA reads the solar zenith angles (degrees) from the band (1-based) of a raster, restricted to the window
func LoadSZA(file string, band int, window common.Window) ([]float32, error) {
	h, err := envi.ReadHeader(file)
	if err != nil {
		return nil, fmt.Errorf("LoadSZA.%w", err)
	}
	if band < 1 || band > h.Bands {
		return nil, fmt.Errorf("LoadSZA[%s]: band %d out of range [1, %d]", file, band, h.Bands)
	}
	r, err := envi.ReadBands(file, h, []int{band - 1})
	if err != nil {
		return nil, fmt.Errorf("LoadSZA.%w", err)
	}
	w, err := window.Resolve(r.Width, r.Height)
	if err != nil {
		return nil, fmt.Errorf("LoadSZA[%s]: %w", file, err)
	}
	return common.Crop(r.Bands[0], r.Width, w), nil
}
