// Package brdf holds the constants and the small linear algebra of the kernel-driven BRDF model
// (isotropic, RossThick volumetric and LiSparse geometric kernels) on three broadbands.
package brdf

import (
	"fmt"
	"math"
)

const (
	NumBands   = 3 // VIS, NIR, SW
	NumKernels = 3 // f0 (isotropic), f1 (volumetric), f2 (geometric)
	NumParams  = NumBands * NumKernels
	NumUncert  = NumParams * (NumParams + 1) / 2

	// Invalid is the sentinel of invalid values in the rasters
	Invalid = -9999

	// HalfLife (days) of the temporal weighting of the observations
	HalfLife = 11.54
)

// Bands names
var Bands = [NumBands]string{"VIS", "NIR", "SW"}

// Correlations names, in the order of the observation bands
var Correlations = [NumBands]string{"VIS_NIR", "VIS_SW", "NIR_SW"}

// CorrelationIndex returns the bands (j, k) of the i-th correlation
func CorrelationIndex(i int) (int, int) {
	switch i {
	case 0:
		return 0, 1
	case 1:
		return 0, 2
	}
	return 1, 2
}

// ParamName returns the name of the i-th parameter: VIS_f0, VIS_f1... SW_f2
func ParamName(i int) string {
	return fmt.Sprintf("%s_f%d", Bands[i/NumKernels], i%NumKernels)
}

// ParamNames returns the band names of the parameters: mean_VIS_f0...
func ParamNames() []string {
	names := make([]string, NumParams)
	for i := range names {
		names[i] = "mean_" + ParamName(i)
	}
	return names
}

// UncertNames returns the band names of the upper triangle of the covariance: VAR_VIS_f0_VIS_f0...
func UncertNames() []string {
	names := make([]string, 0, NumUncert)
	for i := 0; i < NumParams; i++ {
		for j := i; j < NumParams; j++ {
			names = append(names, "VAR_"+ParamName(i)+"_"+ParamName(j))
		}
	}
	return names
}

// UpperIndex returns the index of (i, j) in the row-major upper triangle
func UpperIndex(i, j int) int {
	if i > j {
		i, j = j, i
	}
	return i*NumParams - i*(i-1)/2 + j - i
}

// Weight returns the temporal weight of an observation, days away from the target date
func Weight(days float64) float64 {
	return math.Exp(-math.Abs(days) / HalfLife)
}

// IsInvalid returns true if v is NaN or the sentinel
func IsInvalid(v float64) bool {
	return math.IsNaN(v) || v == Invalid
}
