package brdf

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// rcond of the least squares: singular values lower than rcond*max(S) are ignored
var lstsqRCond = math.Nextafter(1, 2) - 1

// entropyConst = NumParams*sqrt(log(2*pi*e))
var entropyConst = NumParams * math.Sqrt(math.Log(2*math.Pi*math.E))

// Inverse returns the inverse of a. It returns false if a is singular
// (exact zero pivot). Ill-conditioned matrices are still inverted.
func Inverse(a mat.Matrix) (*mat.Dense, bool) {
	var inv mat.Dense
	if err := inv.Inverse(a); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, false
		}
	}
	return &inv, true
}

// SVD factorizes a and returns its singular values
func SVD(a mat.Matrix) (*mat.SVD, []float64, bool) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, nil, false
	}
	return &svd, svd.Values(nil), true
}

// LstSq returns the least-squares solution of a.x = b, computed with the SVD of a,
// as well as the singular values of a.
func LstSq(a mat.Matrix, b mat.Vector) (*mat.VecDense, []float64, bool) {
	svd, s, ok := SVD(a)
	if !ok {
		return nil, nil, false
	}
	rank := svd.Rank(lstsqRCond)
	if rank == 0 {
		return nil, s, false
	}
	var x mat.VecDense
	svd.SolveVecTo(&x, b, rank)
	return &x, s, true
}

// Entropy returns 0.5*log(prod(1/S)) + NumParams*sqrt(log(2*pi*e)), S being the singular values
// of the normal matrix
func Entropy(s []float64) float64 {
	sum := 0.0
	for _, v := range s {
		sum -= math.Log(v)
	}
	return 0.5*sum + entropyConst
}

// UpperTriangle returns the upper triangle of the square matrix m, row-major
func UpperTriangle(m mat.Matrix, dst []float64) []float64 {
	n, _ := m.Dims()
	if dst == nil {
		dst = make([]float64, 0, n*(n+1)/2)
	}
	dst = dst[:0]
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			dst = append(dst, m.At(i, j))
		}
	}
	return dst
}

// FromUpperTriangle returns the symmetric NumParams x NumParams matrix of the upper triangle u
func FromUpperTriangle(u []float64) *mat.SymDense {
	s := mat.NewSymDense(NumParams, nil)
	k := 0
	for i := 0; i < NumParams; i++ {
		for j := i; j < NumParams; j++ {
			s.SetSym(i, j, u[k])
			k++
		}
	}
	return s
}

// HasInvalidDiagonal returns true if the diagonal of m has a NaN or a negative value
func HasInvalidDiagonal(m mat.Matrix) bool {
	n, _ := m.Dims()
	for i := 0; i < n; i++ {
		if v := m.At(i, i); math.IsNaN(v) || v < 0 {
			return true
		}
	}
	return false
}

// HasNaN returns true if m has a NaN
func HasNaN(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.IsNaN(m.At(i, j)) {
				return true
			}
		}
	}
	return false
}
