package inversion_test

import (
	"math"

	"github.com/airbusgeo/albedo-inversion/accumulator"
	"github.com/airbusgeo/albedo-inversion/brdf"
	"github.com/airbusgeo/albedo-inversion/common"
	"github.com/airbusgeo/albedo-inversion/inversion"
	"github.com/airbusgeo/albedo-inversion/prior"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"
)

var _ = Describe("InvertPixel", func() {
	var (
		d, f [brdf.NumParams]float64
		acc  inversion.AccPixel
		pr   prior.Pixel
	)

	BeforeEach(func() {
		for i := 0; i < brdf.NumParams; i++ {
			d[i] = 100 * float64(i+1)
			f[i] = 0.05 * float64(i+1)
		}
		acc = newAccPixel(d, f, 2.5)
		pr = newPrior(0.2, 0.01)
		Expect(pr.Valid).To(BeTrue())
	})

	Context("without prior", func() {
		It("should find the exact solution", func() {
			px := inversion.InvertPixel(acc, pr, false)
			Expect(px.Flags.Has(inversion.FlagInverted)).To(BeTrue())
			Expect(px.Flags.Has(inversion.FlagInvalidUncert)).To(BeFalse())
			for i := range f {
				Expect(px.Params[i]).To(BeNumerically("~", f[i], 1e-9))
			}
			Expect(px.Flags.Has(inversion.FlagInvalidRelEntropy)).To(BeTrue())
			Expect(px.GoF).To(BeNumerically("~", 0, 1e-8))
			Expect(px.NSamples).To(Equal(2.5))
			Expect(px.DaysToClosest).To(Equal(-3.0))

			// uncertainties are the inverse of M
			m := mat.NewDense(brdf.NumParams, brdf.NumParams, acc.M[:])
			var id mat.Dense
			id.Mul(brdf.FromUpperTriangle(px.Uncert[:]), m)
			Expect(mat.EqualApprox(&id, eye(), 1e-9)).To(BeTrue())

			// entropy from the singular values of M
			_, s, ok := brdf.SVD(m)
			Expect(ok).To(BeTrue())
			Expect(px.Entropy).To(BeNumerically("~", brdf.Entropy(s), 1e-9))
		})

		It("should flag a singular matrix", func() {
			// zero row
			for j := 0; j < brdf.NumParams; j++ {
				acc.M[4*brdf.NumParams+j] = 0
				acc.M[j*brdf.NumParams+4] = 0
			}
			var px inversion.Pixel
			Expect(func() { px = inversion.InvertPixel(acc, pr, false) }).NotTo(Panic())
			Expect(px.Flags.Has(inversion.FlagSingular)).To(BeTrue())
			Expect(px.NSamples).To(Equal(0.0))
			Expect(px.GoF).To(Equal(0.0))
			values := make([]float64, inversion.NumBands)
			px.Values(values)
			Expect(values[0]).To(Equal(float64(brdf.Invalid)))
			Expect(values[inversion.IndexUncert+10]).To(Equal(float64(brdf.Invalid)))
			Expect(px.Entropy).To(Equal(float64(brdf.Invalid)))
			Expect(values[inversion.IndexEntropy]).To(Equal(float64(brdf.Invalid)))
			Expect(values[inversion.IndexRelEntropy]).To(Equal(float64(brdf.Invalid)))
			Expect(values[inversion.IndexNSamples]).To(Equal(0.0))

			// the prior makes it invertible
			px = inversion.InvertPixel(acc, pr, true)
			Expect(px.Flags.Has(inversion.FlagInverted)).To(BeTrue())
		})

		It("should return the sentinel without samples", func() {
			acc.NSamples = 0
			px := inversion.InvertPixel(acc, pr, false)
			Expect(px.Flags.Has(inversion.FlagPriorOnly | inversion.FlagInvalidParams)).To(BeTrue())
			values := make([]float64, inversion.NumBands)
			px.Values(values)
			for i := 0; i < inversion.IndexNSamples; i++ {
				Expect(values[i]).To(Equal(float64(brdf.Invalid)))
			}
			Expect(values[inversion.IndexGoF]).To(Equal(0.0))
		})
	})

	Context("with prior", func() {
		It("should regularize the inversion", func() {
			px := inversion.InvertPixel(acc, pr, true)
			Expect(px.Flags.Has(inversion.FlagInverted)).To(BeTrue())

			// M_reg = M + diag(Cinv)
			mreg := mat.NewDense(brdf.NumParams, brdf.NumParams, nil)
			mreg.Copy(mat.NewDense(brdf.NumParams, brdf.NumParams, acc.M[:]))
			for i := 0; i < brdf.NumParams; i++ {
				mreg.Set(i, i, mreg.At(i, i)+pr.CinvDiag[i])
			}
			var id mat.Dense
			id.Mul(brdf.FromUpperTriangle(px.Uncert[:]), mreg)
			Expect(mat.EqualApprox(&id, eye(), 1e-9)).To(BeTrue())

			// the parameters are pulled towards the prior
			Expect(px.Params[8]).To(BeNumerically("<", f[8]))
			Expect(px.Params[8]).To(BeNumerically(">", 0.2))

			_, s, _ := brdf.SVD(mreg)
			Expect(px.RelEntropy).To(BeNumerically("~", inversion.PriorEntropy(&pr)-brdf.Entropy(s), 1e-9))
			Expect(px.RelEntropy).To(BeNumerically(">", 0))
		})

		It("should use the prior without samples", func() {
			acc.NSamples = 0
			px := inversion.InvertPixel(acc, pr, true)
			Expect(px.Flags).To(Equal(inversion.FlagPriorOnly))
			Expect(px.Params).To(Equal(pr.Mean))
			Expect(px.Uncert[0]).To(BeNumerically("~", 1/pr.CinvDiag[0], 1e-12))
			Expect(px.Uncert[1]).To(Equal(0.0))
			Expect(px.Entropy).To(BeNumerically("~", inversion.PriorEntropy(&pr), 1e-12))
			Expect(px.RelEntropy).To(Equal(0.0))
			Expect(px.GoF).To(Equal(0.0))
		})
	})

	It("should invalidate a prior-only pixel whose prior is singular", func() {
		acc.NSamples = 0
		pr.CinvDiag[4] = 0
		px := inversion.InvertPixel(acc, pr, true)
		Expect(px.Flags.Has(inversion.FlagPriorOnly | inversion.FlagSingular | inversion.FlagInvalidEntropy)).To(BeTrue())
		Expect(px.Entropy).To(Equal(float64(brdf.Invalid)))
		Expect(px.RelEntropy).To(Equal(float64(brdf.Invalid)))
		values := make([]float64, inversion.NumBands)
		px.Values(values)
		Expect(values[0]).To(Equal(float64(brdf.Invalid)))
		Expect(values[inversion.IndexEntropy]).To(Equal(float64(brdf.Invalid)))
	})

	It("should return zeros without prior nor samples", func() {
		acc.NSamples = 0
		px := inversion.InvertPixel(acc, prior.Pixel{}, true)
		Expect(px).To(Equal(inversion.Pixel{DaysToClosest: -3}))
	})

	It("should compute the prior entropy", func() {
		// Cinv = 1/0.09 on the diagonal
		expected := -0.5*9*math.Log(1/0.09) + 9*math.Sqrt(math.Log(2*math.Pi*math.E))
		Expect(inversion.PriorEntropy(&pr)).To(BeNumerically("~", expected, 1e-9))
	})
})

var _ = Describe("Invert", func() {
	It("should invert a raster", func() {
		pr := prior.New(2, 1)
		good := newPrior(0.2, 0.01)
		pr.SetPixel(0, &good)
		pr.SetPixel(1, &good)

		acc := accumulator.NewAccumulation(2, 1)
		for i := 0; i < brdf.NumParams; i++ {
			acc.M[i*brdf.NumParams+i] = 1000
			acc.V[i] = 100
		}
		acc.E[0] = 90
		acc.NSamples[0] = 3

		res, err := inversion.Invert(acc, pr, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Pixels[0].Flags.Has(inversion.FlagInverted)).To(BeTrue())
		Expect(res.Pixels[1].Flags.Has(inversion.FlagPriorOnly)).To(BeTrue())

		r := res.Raster(common.Tile{H: 18, V: 4})
		Expect(r.Bands).To(HaveLen(59))
		Expect(r.BandNames[0]).To(Equal("mean_VIS_f0"))
		Expect(r.BandNames[54]).To(Equal(inversion.BandEntropy))
		Expect(r.BandNames[58]).To(Equal(inversion.BandGoF))
		Expect(r.Bands[inversion.IndexNSamples][0]).To(Equal(float32(3)))
		Expect(r.Bands[0][1]).To(BeNumerically("~", 0.2, 1e-6))

		px := inversion.PixelFromValues(r.Pixel(1, nil))
		Expect(px.Flags.Has(inversion.FlagInvalidParams)).To(BeFalse())
		Expect(px.RelEntropy).To(Equal(0.0))

		// NoPrior
		res, err = inversion.Invert(acc, pr, false)
		Expect(err).NotTo(HaveOccurred())
		r = res.Raster(common.Tile{H: 18, V: 4})
		Expect(r.Bands[0][0]).To(BeNumerically("~", 0.1, 1e-6))
		Expect(r.Bands[inversion.IndexRelEntropy][0]).To(Equal(float32(brdf.Invalid)))
		Expect(r.Bands[0][1]).To(Equal(float32(brdf.Invalid)))
		Expect(inversion.PixelFromValues(r.Pixel(1, nil)).Flags.Has(inversion.FlagInvalidParams)).To(BeTrue())
	})

	It("should accept an empty accumulation", func() {
		pr := prior.New(2, 2)
		res, err := inversion.Invert(accumulator.NewAccumulation(0, 0), pr, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Pixels).To(HaveLen(4))
		Expect(res.Pixels[3]).To(Equal(inversion.Pixel{}))

		_, err = inversion.Invert(accumulator.NewAccumulation(3, 2), pr, true)
		Expect(err).To(HaveOccurred())
	})
})

func eye() *mat.Dense {
	id := mat.NewDense(brdf.NumParams, brdf.NumParams, nil)
	for i := 0; i < brdf.NumParams; i++ {
		id.Set(i, i, 1)
	}
	return id
}
