package accumulator_test

import (
	"context"
	"testing"

	"github.com/airbusgeo/albedo-inversion/brdf"
	"github.com/airbusgeo/albedo-inversion/common"
	"github.com/airbusgeo/albedo-inversion/observation"
	"github.com/airbusgeo/albedo-inversion/service"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// MokeSource implements accumulator.Source
type MokeSource struct {
	width, height int
	// reflectance of the observations, by date
	observations map[common.Date][]float32
	calls        int
}

// Load implements accumulator.Source
func (s *MokeSource) Load(ctx context.Context, tile common.Tile, date common.Date) ([]*observation.Observation, error) {
	s.calls++
	refl, ok := s.observations[date]
	if !ok {
		return nil, nil
	}
	var obs []*observation.Observation
	for i := range kernels {
		obs = append(obs, newObservation(s.width, s.height, date, refl, i))
	}
	return obs, nil
}

// kernels (Kvol, Kgeo) of the acquisitions of a day. They are not collinear, so that the daily M is invertible.
var kernels = [][2]float32{{0.1, -1}, {0.5, -0.5}, {0.9, -1.8}}

func newObservation(width, height int, date common.Date, refl []float32, acq int) *observation.Observation {
	n := width * height
	o := &observation.Observation{Sensor: "MERIS", Date: date, Width: width, Height: height, SnowMask: make([]float32, n)}
	for b := 0; b < brdf.NumBands; b++ {
		o.Reflectance[b] = make([]float32, n)
		o.SD[b] = make([]float32, n)
		o.Correlation[b] = make([]float32, n)
		o.Kvol[b] = make([]float32, n)
		o.Kgeo[b] = make([]float32, n)
		for p := 0; p < n; p++ {
			o.Reflectance[b][p] = refl[p]
			o.SD[b][p] = 0.01
			o.Kvol[b][p] = kernels[acq][0] + 0.01*float32(b)
			o.Kgeo[b][p] = kernels[acq][1]
		}
	}
	return o
}

// MokeStorage wraps an ObjectStorage, failing the downloads of the keys of failures
type MokeStorage struct {
	service.ObjectStorage
	failures map[string]error
}

// Download implements service.ObjectStorage
func (s *MokeStorage) Download(ctx context.Context, key, localFile string) error {
	if err, ok := s.failures[key]; ok {
		return err
	}
	return s.ObjectStorage.Download(ctx, key, localFile)
}

var ctx context.Context

var _ = BeforeSuite(func() {
	ctx = context.Background()
})

func TestAccumulator(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Accumulator Suite")
}
