// Package observation loads the broadband directional reflectances (BBDR), their uncertainties and
// the BRDF kernels of one acquisition.
package observation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/airbusgeo/albedo-inversion/brdf"
	"github.com/airbusgeo/albedo-inversion/common"
	"github.com/airbusgeo/albedo-inversion/interface/raster/envi"
	"github.com/airbusgeo/albedo-inversion/service/log"
	"go.uber.org/zap"
)

// Sensors supported by default
var Sensors = []string{"MERIS", "VGT", "AATSR"}

// Single-band files of a BBDR directory
var (
	ReflectanceFiles = [brdf.NumBands]string{"BB_VIS", "BB_NIR", "BB_SW"}
	SDFiles          = [brdf.NumBands]string{"sig_BB_VIS_VIS", "sig_BB_NIR_NIR", "sig_BB_SW_SW"}
	CorrelationFiles = [brdf.NumBands]string{"sig_BB_VIS_NIR", "sig_BB_VIS_SW", "sig_BB_NIR_SW"}
	KvolFiles        = [brdf.NumBands]string{"Kvol_BRDF_VIS", "Kvol_BRDF_NIR", "Kvol_BRDF_SW"}
	KgeoFiles        = [brdf.NumBands]string{"Kgeo_BRDF_VIS", "Kgeo_BRDF_NIR", "Kgeo_BRDF_SW"}
	SnowMaskFile     = "snow_mask"
)

const bandExt = ".img"

// Observation is one acquisition of a sensor on a tile. It is read-only
type Observation struct {
	Sensor        string
	Date          common.Date
	Dir           string
	Width, Height int

	Reflectance [brdf.NumBands][]float32
	SD          [brdf.NumBands][]float32
	// Correlation between bands, in the order VIS_NIR, VIS_SW, NIR_SW
	Correlation [brdf.NumBands][]float32
	Kvol        [brdf.NumBands][]float32 // RossThick
	Kgeo        [brdf.NumBands][]float32 // LiSparse
	SnowMask    []float32
}

// Pixel is the values of an observation at one pixel
type Pixel struct {
	Reflectance, SD, Correlation, Kvol, Kgeo [brdf.NumBands]float64
	SnowMask                                 float64
}

// Size returns the number of pixels
func (o *Observation) Size() int {
	return o.Width * o.Height
}

// Pixel returns the values at the p-th pixel
func (o *Observation) Pixel(p int) Pixel {
	var px Pixel
	for b := 0; b < brdf.NumBands; b++ {
		px.Reflectance[b] = float64(o.Reflectance[b][p])
		px.SD[b] = float64(o.SD[b][p])
		px.Correlation[b] = float64(o.Correlation[b][p])
		px.Kvol[b] = float64(o.Kvol[b][p])
		px.Kgeo[b] = float64(o.Kgeo[b][p])
	}
	px.SnowMask = float64(o.SnowMask[p])
	return px
}

// Load reads a BBDR directory, restricted to the window
func Load(dir string, window common.Window) (*Observation, error) {
	date, err := dateFromDir(dir)
	if err != nil {
		return nil, fmt.Errorf("Load[%s].%w", dir, err)
	}
	o := &Observation{Dir: dir, Date: date}

	read := func(name string) ([]float32, error) {
		r, _, err := envi.Read(filepath.Join(dir, name+bandExt))
		if err != nil {
			return nil, err
		}
		w, err := window.Resolve(r.Width, r.Height)
		if err != nil {
			return nil, err
		}
		if o.Width == 0 {
			o.Width, o.Height = w.Width(), w.Height()
		} else if o.Width != w.Width() || o.Height != w.Height() {
			return nil, fmt.Errorf("%s: size mismatch", name)
		}
		return common.Crop(r.Bands[0], r.Width, w), nil
	}

	for b := 0; b < brdf.NumBands; b++ {
		for _, f := range []struct {
			name string
			dst  *[]float32
		}{
			{ReflectanceFiles[b], &o.Reflectance[b]},
			{SDFiles[b], &o.SD[b]},
			{CorrelationFiles[b], &o.Correlation[b]},
			{KvolFiles[b], &o.Kvol[b]},
			{KgeoFiles[b], &o.Kgeo[b]},
		} {
			if *f.dst, err = read(f.name); err != nil {
				return nil, fmt.Errorf("Load[%s].%w", dir, err)
			}
		}
	}
	if o.SnowMask, err = read(SnowMaskFile); err != nil {
		return nil, fmt.Errorf("Load[%s].%w", dir, err)
	}
	return o, nil
}

// dateFromDir parses the date of a BBDR directory: .../YYYYDDD_<suffix>
func dateFromDir(dir string) (common.Date, error) {
	base := filepath.Base(filepath.Clean(dir))
	if len(base) < 7 {
		return common.Date{}, fmt.Errorf("dateFromDir: invalid BBDR directory name: %s", base)
	}
	return common.ParseDate(base[:7])
}

// Loader finds and loads the BBDR of a set of sensors: <Root>/<sensor>/<year>/<tile>/<YYYYDDD>*/
type Loader struct {
	Root    string
	Sensors []string
	Window  common.Window
}

// Find returns the BBDR directories of the tile acquired at date, sorted by sensor and name
func (l Loader) Find(tile common.Tile, date common.Date) ([]string, error) {
	var dirs []string
	for _, sensor := range l.Sensors {
		pattern := filepath.Join(l.Root, sensor, fmt.Sprintf("%04d", date.Year), tile.String(), date.String()+"*")
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("Find: %w", err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			if fi, err := os.Stat(m); err == nil && fi.IsDir() {
				dirs = append(dirs, m)
			}
		}
	}
	return dirs, nil
}

// Load returns all the observations of the tile at date. An empty list is returned if there is none.
// An acquisition that cannot be read is skipped.
func (l Loader) Load(ctx context.Context, tile common.Tile, date common.Date) ([]*Observation, error) {
	dirs, err := l.Find(tile, date)
	if err != nil {
		return nil, fmt.Errorf("Loader.%w", err)
	}
	var obs []*Observation
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o, err := Load(dir, l.Window)
		if err != nil {
			log.Logger(ctx).Warn("skipping observation", zap.String("dir", dir), zap.Error(err))
			continue
		}
		o.Sensor = sensorFromDir(l.Root, dir)
		obs = append(obs, o)
	}
	return obs, nil
}

func sensorFromDir(root, dir string) string {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return ""
	}
	return strings.Split(filepath.ToSlash(rel), "/")[0]
}

// ParseSensors parses a comma-separated list of sensors. "ALL" returns the default sensors.
func ParseSensors(s string) []string {
	if s == "" || strings.EqualFold(s, "ALL") {
		return append([]string(nil), Sensors...)
	}
	var sensors []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			sensors = append(sensors, v)
		}
	}
	return sensors
}
