package envi

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/airbusgeo/albedo-inversion/common"
)

const header = `ENVI
description = {GlobAlbedo prior}
samples = 3
lines = 2
bands = 2
header offset = 0
file type = ENVI Standard
data type = 2
interleave = bsq
byte order = 1
map info = {Sinusoidal, 1.0, 1.0, -1111950.519667, 5559752.598333, 463.312716528, 463.312716528,
	units=Meters}
band names = { MEAN_VIS_f0,
 MEAN_VIS_f1 }
`

func TestParseHeader(t *testing.T) {
	h, err := ParseHeader(strings.NewReader(header))
	if err != nil {
		t.Fatal(err)
	}
	if h.Samples != 3 || h.Lines != 2 || h.Bands != 2 || h.DataType != DataTypeInt16 || h.ByteOrder != 1 || h.Interleave != BSQ {
		t.Errorf("unexpected header: %+v", h)
	}
	if h.MapInfo == nil || h.MapInfo.Projection != "Sinusoidal" || h.MapInfo.ULX != -1111950.519667 || h.MapInfo.PixelY != 463.312716528 {
		t.Errorf("unexpected map info: %+v", h.MapInfo)
	}
	if len(h.BandNames) != 2 || h.BandNames[1] != "MEAN_VIS_f1" {
		t.Errorf("unexpected band names: %v", h.BandNames)
	}
	if h.Description[""] != "GlobAlbedo prior" {
		t.Errorf("unexpected description: %v", h.Description)
	}

	if _, err := ParseHeader(strings.NewReader("samples = 3\n")); err == nil {
		t.Errorf("missing magic")
	}
	if _, err := ParseHeader(strings.NewReader("ENVI\nsamples = 3\nlines = 2\nbands = 1\ndata type = 6\n")); err == nil {
		t.Errorf("complex data type must fail")
	}
	if _, err := ParseHeader(strings.NewReader("ENVI\nsamples = 3\nlines = 2\ndata type = 4\n")); err == nil {
		t.Errorf("missing bands")
	}
}

func TestReadBigEndianInt16(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "prior.img")
	data := make([]byte, 2*3*2)
	for i := 0; i < 6; i++ {
		binary.BigEndian.PutUint16(data[2*i:], uint16(int16(i-3)))
	}
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(file+".hdr", []byte(header), 0644); err != nil {
		t.Fatal(err)
	}
	// 6 values for 2 bands of 6 pixels: the file is too short
	if _, _, err := Read(file); err == nil {
		t.Errorf("file too short")
	}
	data = make([]byte, 2*3*2*2)
	for i := 0; i < 12; i++ {
		binary.BigEndian.PutUint16(data[2*i:], uint16(int16(i-3)))
	}
	os.WriteFile(file, data, 0644)
	r, h, err := Read(file)
	if err != nil {
		t.Fatal(err)
	}
	if h.Bands != 2 || r.Width != 3 || r.Height != 2 {
		t.Errorf("unexpected size")
	}
	if r.Bands[0][0] != -3 || r.Bands[1][5] != 8 {
		t.Errorf("unexpected values: %v", r.Bands)
	}
	if b, err := r.Band("MEAN_VIS_f1"); err != nil || b[0] != 3 {
		t.Errorf("Band: %v %v", b, err)
	}
}

func TestInterleave(t *testing.T) {
	h := &Header{Samples: 3, Lines: 2, Bands: 2}
	for _, tc := range []struct {
		interleave string
		b, p, off  int
	}{
		{BSQ, 1, 4, 10},
		{BIL, 1, 4, 3*2 + 3 + 1},
		{BIP, 1, 4, 9},
	} {
		h.Interleave = tc.interleave
		if o := offset(h, tc.b, tc.p); o != tc.off {
			t.Errorf("%s: expected %d, got %d", tc.interleave, tc.off, o)
		}
	}
}

func TestWriteRead(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sub", "GlobAlbedo.2005001.h18v04.NoSnow.bin")
	r := common.NewRaster(4, 3, []string{"VIS_f0", "Entropy"})
	for p := 0; p < r.Size(); p++ {
		r.Bands[0][p] = float32(p) / 10
		r.Bands[1][p] = common.Invalid
	}
	r.Bands[1][5] = float32(math.NaN())
	r.Description[common.TagTile] = "h18v04"
	ulx, uly := common.Tile{H: 18, V: 4}.UpperLeft()
	if err := Write(file, r, SinusoidalMapInfo(ulx, uly, 2400)); err != nil {
		t.Fatal(err)
	}
	if !Exists(file) {
		t.Fatalf("file or header missing")
	}
	if _, err := os.Stat(filepath.Join(dir, "sub", "GlobAlbedo.2005001.h18v04.NoSnow.hdr")); err != nil {
		t.Errorf("header: %v", err)
	}
	r2, h, err := Read(file)
	if err != nil {
		t.Fatal(err)
	}
	if h.DataType != DataTypeFloat32 || h.ByteOrder != 0 || h.Interleave != BSQ {
		t.Errorf("unexpected header: %+v", h)
	}
	if math.Abs(h.MapInfo.PixelX-463.312716528) > 1e-6 || h.MapInfo.ULX != ulx {
		t.Errorf("unexpected map info: %+v", h.MapInfo)
	}
	if r2.Description[common.TagTile] != "h18v04" {
		t.Errorf("unexpected description: %v", r2.Description)
	}
	for p := 0; p < r.Size(); p++ {
		if r2.Bands[0][p] != r.Bands[0][p] {
			t.Errorf("pixel %d: expected %f, got %f", p, r.Bands[0][p], r2.Bands[0][p])
		}
	}
	if r2.Bands[1][0] != common.Invalid || !math.IsNaN(float64(r2.Bands[1][5])) {
		t.Errorf("unexpected sentinel values: %v", r2.Bands[1])
	}

	sub, err := ReadBands(file, h, []int{1})
	if err != nil {
		t.Fatal(err)
	}
	if len(sub.Bands) != 1 || sub.BandNames[0] != "Entropy" {
		t.Errorf("unexpected bands: %v", sub.BandNames)
	}
	if _, err := ReadBands(file, h, []int{2}); err == nil {
		t.Errorf("band out of range")
	}
}
