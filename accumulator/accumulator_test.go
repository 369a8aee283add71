package accumulator_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"

	"github.com/airbusgeo/albedo-inversion/accumulator"
	"github.com/airbusgeo/albedo-inversion/common"
	"github.com/airbusgeo/albedo-inversion/normaleq"
	"github.com/airbusgeo/albedo-inversion/service"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Window", func() {
	It("should weight the samples", func() {
		Expect(accumulator.Weight(0)).To(Equal(1.0))
		Expect(accumulator.Weight(11.54)).To(BeNumerically("~", math.Exp(-1), 1e-12))
		Expect(accumulator.Weight(-11.54)).To(BeNumerically("~", math.Exp(-1), 1e-12))
	})

	It("should take the left wing on the previous (leap) year", func() {
		samples := accumulator.Window(common.Date{Year: 2005, DoY: 1}, 90)
		Expect(samples).To(HaveLen(82 + 98))
		Expect(samples[0].Date).To(Equal(common.Date{Year: 2004, DoY: 285}))
		Expect(samples[0].Offset).To(Equal(-90))
		Expect(samples[0].Weight).To(BeNumerically("~", math.Exp(-90/11.54), 1e-12))
		Expect(samples[81].Date).To(Equal(common.Date{Year: 2004, DoY: 366}))
		Expect(samples[81].Offset).To(Equal(-9))
		Expect(samples[82].Date).To(Equal(common.Date{Year: 2005, DoY: 1}))
		Expect(samples[82].Offset).To(Equal(-8))
		Expect(samples[len(samples)-1].Offset).To(Equal(89))
	})

	It("should take the right wing on the next year", func() {
		samples := accumulator.Window(common.Date{Year: 2005, DoY: 361}, 16)
		Expect(samples).To(HaveLen(33))
		for i, s := range samples {
			Expect(s.Offset).To(Equal(i - 16))
		}
		Expect(samples[12].Date).To(Equal(common.Date{Year: 2005, DoY: 365}))
		Expect(samples[13].Date).To(Equal(common.Date{Year: 2006, DoY: 1}))
		Expect(samples[32].Date).To(Equal(common.Date{Year: 2006, DoY: 20}))
	})

	It("should only take the centre", func() {
		samples := accumulator.Window(common.Date{Year: 2005, DoY: 121}, 16)
		Expect(samples).To(HaveLen(32))
		Expect(samples[0].Date).To(Equal(common.Date{Year: 2005, DoY: 113}))
		Expect(samples[31].Date).To(Equal(common.Date{Year: 2005, DoY: 144}))
	})
})

var _ = Describe("Accumulator", func() {
	var (
		cacheDir, workdir string
		storage           *service.StorageStrategy
		cache             *accumulator.Cache
		source            *MokeSource
		acc               *accumulator.Accumulator
		tile              = common.Tile{H: 18, V: 4}
		target            = common.Date{Year: 2005, DoY: 121} // centre: 2005129
	)

	BeforeEach(func() {
		var err error
		cacheDir, err = os.MkdirTemp("", "cache")
		Expect(err).NotTo(HaveOccurred())
		workdir, err = os.MkdirTemp("", "workdir")
		Expect(err).NotTo(HaveOccurred())
		storage, err = service.NewStorageStrategy(ctx, cacheDir)
		Expect(err).NotTo(HaveOccurred())
		cache = accumulator.NewCache(storage, workdir)
		source = &MokeSource{
			width:  2,
			height: 2,
			observations: map[common.Date][]float32{
				{Year: 2005, DoY: 125}: {0.1, 0.2, 0, 0.4}, // offset -4
				{Year: 2005, DoY: 129}: {0.1, 0, 0, 0.4},   // offset 0
				{Year: 2005, DoY: 133}: {0.1, 0.2, 0, 0},   // offset +4
				{Year: 2005, DoY: 200}: {0.1, 0.2, 0.3, 0.4},
			},
		}
		acc = accumulator.New(cache, source, accumulator.Options{Tile: tile, Mode: common.SnowModeNoSnow})
	})

	AfterEach(func() {
		os.RemoveAll(cacheDir)
		os.RemoveAll(workdir)
	})

	Context("cache", func() {
		It("should store and read a daily accumulator", func() {
			date := common.Date{Year: 2005, DoY: 125}
			_, err := cache.Get(ctx, tile, date, common.SnowModeNoSnow)
			Expect(err).To(MatchError(accumulator.ErrCacheMiss))

			day, err := accumulator.BuildDaily(ctx, source, tile, date, common.SnowModeNoSnow)
			Expect(err).NotTo(HaveOccurred())
			Expect(day.Mask).To(Equal([]float32{3, 3, 0, 3}))
			Expect(cache.Put(ctx, tile, date, common.SnowModeNoSnow, day)).To(Succeed())

			key := accumulator.Key{Tile: tile, Date: date, Mode: common.SnowModeNoSnow, Quantity: accumulator.QuantityM}
			Expect(key.Path()).To(Equal("accumulators/2005/h18v04/NoSnow/M_2005125.msgpack"))
			Expect(filepath.Join(cacheDir, key.Path())).To(BeAnExistingFile())

			read, err := cache.Get(ctx, tile, date, common.SnowModeNoSnow)
			Expect(err).NotTo(HaveOccurred())
			Expect(read).To(Equal(day))

			has, err := cache.Has(ctx, tile, date, common.SnowModeSnow)
			Expect(err).NotTo(HaveOccurred())
			Expect(has).To(BeFalse())
		})

		It("should detect a corrupt entry", func() {
			date := common.Date{Year: 2005, DoY: 129}
			garbage := filepath.Join(workdir, "garbage")
			Expect(os.WriteFile(garbage, []byte{0xc1, 0x00, 0x12}, 0644)).To(Succeed())
			key := accumulator.Key{Tile: tile, Date: date, Mode: common.SnowModeNoSnow, Quantity: accumulator.QuantityMask}
			Expect(storage.Upload(ctx, key.Path(), garbage)).To(Succeed())
			_, err := cache.Get(ctx, tile, date, common.SnowModeNoSnow)
			Expect(err).To(MatchError(accumulator.ErrCorrupt))
		})
	})

	Context("accumulation", func() {
		It("should build the missing days and sum them", func() {
			a, err := acc.Accumulate(ctx, target, 16)
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Days).To(Equal(3))
			Expect(a.Width).To(Equal(2))

			w4 := accumulator.Weight(4)
			Expect(a.NSamples[0]).To(BeNumerically("~", 3*(1+2*w4), 1e-9))
			Expect(a.NSamples[1]).To(BeNumerically("~", 3*2*w4, 1e-9))
			Expect(a.NSamples[2]).To(Equal(0.0))
			Expect(a.NSamples[3]).To(BeNumerically("~", 3*(1+w4), 1e-9))

			// closest samples (signed, earlier one on ties)
			Expect(a.DaysToClosest).To(Equal([]float64{0, -4, 0, 0}))

			// the daily accumulators are in the cache
			for _, doy := range []int{125, 129, 133} {
				has, err := cache.Has(ctx, tile, common.Date{Year: 2005, DoY: doy}, common.SnowModeNoSnow)
				Expect(err).NotTo(HaveOccurred())
				Expect(has).To(BeTrue())
			}
		})

		It("should give identical results on an unchanged cache", func() {
			a1, err := acc.Accumulate(ctx, target, 16)
			Expect(err).NotTo(HaveOccurred())
			calls := source.calls

			a2, err := acc.Accumulate(ctx, target, 16)
			Expect(err).NotTo(HaveOccurred())
			Expect(a2).To(Equal(a1))
			// only the days without data are looked up again
			Expect(source.calls).To(Equal(calls + 29))

			// without source, only the cache is used
			a3, err := accumulator.New(cache, nil, acc.Options).Accumulate(ctx, target, 16)
			Expect(err).NotTo(HaveOccurred())
			Expect(a3).To(Equal(a1))
		})

		It("should not depend on the order of the samples", func() {
			samples := accumulator.Window(target, 16)
			days := map[common.Date]*normaleq.Contribution{}
			for date := range source.observations {
				day, err := accumulator.BuildDaily(ctx, source, tile, date, common.SnowModeNoSnow)
				Expect(err).NotTo(HaveOccurred())
				days[date] = day
			}
			forward, backward := accumulator.NewAccumulation(2, 2), accumulator.NewAccumulation(2, 2)
			for i := range samples {
				if day, ok := days[samples[i].Date]; ok {
					_, err := forward.Add(day, samples[i])
					Expect(err).NotTo(HaveOccurred())
				}
				s := samples[len(samples)-1-i]
				if day, ok := days[s.Date]; ok {
					_, err := backward.Add(day, s)
					Expect(err).NotTo(HaveOccurred())
				}
			}
			Expect(backward.DaysToClosest).To(Equal(forward.DaysToClosest))
			Expect(backward.DaysToClosest[1]).To(Equal(-4.0))
			for i := range forward.M {
				Expect(backward.M[i]).To(BeNumerically("~", forward.M[i], 1e-6*math.Max(1, math.Abs(forward.M[i]))))
			}
			for i := range forward.V {
				Expect(backward.V[i]).To(BeNumerically("~", forward.V[i], 1e-6*math.Max(1, math.Abs(forward.V[i]))))
			}
			Expect(backward.NSamples).To(HaveLen(4))
			for i := range forward.NSamples {
				Expect(backward.NSamples[i]).To(BeNumerically("~", forward.NSamples[i], 1e-12))
			}
		})

		It("should skip corrupt days", func() {
			garbage := filepath.Join(workdir, "garbage")
			Expect(os.WriteFile(garbage, []byte{0xc1}, 0644)).To(Succeed())
			key := accumulator.Key{Tile: tile, Date: common.Date{Year: 2005, DoY: 129}, Mode: common.SnowModeNoSnow, Quantity: accumulator.QuantityMask}
			Expect(storage.Upload(ctx, key.Path(), garbage)).To(Succeed())

			a, err := acc.Accumulate(ctx, target, 16)
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Days).To(Equal(2))
			Expect(a.DaysToClosest).To(Equal([]float64{-4, -4, 0, -4}))
		})

		It("should skip the days whose cache cannot be read", func() {
			_, err := acc.Accumulate(ctx, target, 16)
			Expect(err).NotTo(HaveOccurred())

			key := accumulator.Key{Tile: tile, Date: common.Date{Year: 2005, DoY: 129}, Mode: common.SnowModeNoSnow, Quantity: accumulator.QuantityM}
			failing := &MokeStorage{ObjectStorage: storage, failures: map[string]error{
				key.Path(): service.MakeTemporary(errors.New("connection reset")),
			}}
			a, err := accumulator.New(accumulator.NewCache(failing, workdir), nil, acc.Options).Accumulate(ctx, target, 16)
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Days).To(Equal(2))
			Expect(a.DaysToClosest).To(Equal([]float64{-4, -4, 0, -4}))

			failing.failures[key.Path()] = service.MakeFatal(errors.New("permission denied"))
			_, err = accumulator.New(accumulator.NewCache(failing, workdir), nil, acc.Options).Accumulate(ctx, target, 16)
			Expect(service.Fatal(err)).To(BeTrue())
		})

		It("should build the days missing from an empty cache", func() {
			_, err := cache.Get(ctx, tile, common.Date{Year: 2005, DoY: 1}, common.SnowModeNoSnow)
			Expect(err).To(MatchError(accumulator.ErrCacheMiss))

			a, err := accumulator.New(cache, nil, acc.Options).Accumulate(ctx, target, 16)
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Size()).To(Equal(0))

			day, err := acc.Daily(ctx, common.Date{Year: 2005, DoY: 129})
			Expect(err).NotTo(HaveOccurred())
			Expect(day.Mask).To(Equal([]float32{3, 0, 0, 3}))
		})

		It("should drop the pixels whose M is singular", func() {
			day := normaleq.New(1, 2)
			var pc normaleq.PixelContribution
			for i := 0; i < 9; i++ {
				pc.M[i*9+i] = 1
			}
			day.SetPixel(0, &pc, 1)
			pc.M[0] = 0
			day.SetPixel(1, &pc, 1)
			a := accumulator.NewAccumulation(1, 2)
			dropped, err := a.Add(day, accumulator.Sample{Offset: 2, Weight: 0.5})
			Expect(err).NotTo(HaveOccurred())
			Expect(dropped).To(Equal(1))
			Expect(a.NSamples).To(Equal([]float64{0.5, 0}))
			Expect(a.Pixel(0).M[10]).To(Equal(0.5))
			Expect(a.Pixel(1).M[10]).To(Equal(0.0))

			_, err = a.Add(normaleq.New(2, 2), accumulator.Sample{})
			Expect(err).To(HaveOccurred())
		})

		It("should return an empty accumulation without data", func() {
			a, err := acc.Accumulate(ctx, common.Date{Year: 2005, DoY: 300}, 16)
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Size()).To(Equal(0))
		})
	})

	Context("daily accumulators", func() {
		It("should keep the existing entries", func() {
			date := common.Date{Year: 2005, DoY: 200}
			written, err := acc.Store(ctx, date)
			Expect(err).NotTo(HaveOccurred())
			Expect(written).To(BeTrue())

			written, err = acc.Store(ctx, date)
			Expect(err).NotTo(HaveOccurred())
			Expect(written).To(BeFalse())

			acc.Force = true
			written, err = acc.Store(ctx, date)
			Expect(err).NotTo(HaveOccurred())
			Expect(written).To(BeTrue())

			written, err = acc.Store(ctx, common.Date{Year: 2005, DoY: 201})
			Expect(err).NotTo(HaveOccurred())
			Expect(written).To(BeFalse())
		})
	})
})
