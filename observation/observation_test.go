package observation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/airbusgeo/albedo-inversion/common"
	"github.com/airbusgeo/albedo-inversion/interface/raster/envi"
)

func allFiles() []string {
	files := []string{SnowMaskFile}
	for b := range ReflectanceFiles {
		files = append(files, ReflectanceFiles[b], SDFiles[b], CorrelationFiles[b], KvolFiles[b], KgeoFiles[b])
	}
	return files
}

// writeBBDR writes a BBDR directory whose band i value at pixel p is value(name, p)
func writeBBDR(t *testing.T, dir string, width, height int, value func(name string, p int) float32) {
	t.Helper()
	for _, name := range allFiles() {
		r := common.NewRaster(width, height, []string{name})
		for p := range r.Bands[0] {
			r.Bands[0][p] = value(name, p)
		}
		if err := envi.Write(filepath.Join(dir, name+bandExt), r, nil); err != nil {
			t.Fatal(err)
		}
	}
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	tile := common.Tile{H: 18, V: 4}
	date := common.Date{Year: 2005, DoY: 123}
	dir := filepath.Join(root, "MERIS", "2005", "h18v04", "2005123_100512")
	writeBBDR(t, dir, 4, 3, func(name string, p int) float32 {
		switch name {
		case "BB_VIS":
			return float32(p)
		case SnowMaskFile:
			return float32(p % 2)
		}
		return 0.5
	})
	// another day, and a file, that must be ignored
	writeBBDR(t, filepath.Join(root, "MERIS", "2005", "h18v04", "2005124_000000"), 4, 3, func(string, int) float32 { return 1 })
	os.WriteFile(filepath.Join(root, "MERIS", "2005", "h18v04", "2005123.txt"), nil, 0644)

	l := Loader{Root: root, Sensors: []string{"MERIS", "VGT"}}
	dirs, err := l.Find(tile, date)
	if err != nil {
		t.Fatal(err)
	}
	if len(dirs) != 1 || dirs[0] != dir {
		t.Fatalf("Find: %v", dirs)
	}
	obs, err := l.Load(context.Background(), tile, date)
	if err != nil {
		t.Fatal(err)
	}
	if len(obs) != 1 {
		t.Fatalf("expecting 1 observation, got %d", len(obs))
	}
	o := obs[0]
	if o.Sensor != "MERIS" || o.Date != date || o.Width != 4 || o.Height != 3 {
		t.Errorf("unexpected observation: %s %v %dx%d", o.Sensor, o.Date, o.Width, o.Height)
	}
	px := o.Pixel(5)
	if px.Reflectance[0] != 5 || px.Reflectance[1] != 0.5 || px.SnowMask != 1 || px.Kgeo[2] != 0.5 {
		t.Errorf("unexpected pixel: %+v", px)
	}

	// window
	l.Window = common.Window{XMin: 1, YMin: 1, XMax: 2, YMax: 2}
	obs, err = l.Load(context.Background(), tile, date)
	if err != nil || len(obs) != 1 {
		t.Fatalf("Load with window: %v", err)
	}
	if o := obs[0]; o.Width != 2 || o.Height != 2 || o.Reflectance[0][0] != 5 || o.Reflectance[0][3] != 10 {
		t.Errorf("unexpected window: %dx%d %v", o.Width, o.Height, o.Reflectance[0])
	}

	// No data
	obs, err = l.Load(context.Background(), tile, common.Date{Year: 2005, DoY: 200})
	if err != nil || len(obs) != 0 {
		t.Errorf("expecting no observation: %v %v", obs, err)
	}
}

func TestLoadMissingBand(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "VGT", "2005", "h18v04", "2005123_F053")
	writeBBDR(t, dir, 2, 2, func(string, int) float32 { return 1 })
	os.Remove(filepath.Join(dir, "Kgeo_BRDF_NIR.img"))
	if _, err := Load(dir, common.Window{}); err == nil {
		t.Errorf("missing band")
	}
	obs, err := Loader{Root: root, Sensors: []string{"VGT"}}.Load(context.Background(), common.Tile{H: 18, V: 4}, common.Date{Year: 2005, DoY: 123})
	if err != nil || len(obs) != 0 {
		t.Errorf("the unreadable observation must be skipped: %v %v", obs, err)
	}
}

func TestParseSensors(t *testing.T) {
	if s := ParseSensors("ALL"); len(s) != len(Sensors) {
		t.Errorf("ALL: %v", s)
	}
	if s := ParseSensors("MERIS, VGT,"); len(s) != 2 || s[1] != "VGT" {
		t.Errorf("list: %v", s)
	}
}
