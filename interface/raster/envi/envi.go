package envi

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/albedo-inversion/common"
)

// HeaderFile returns the header of a data file: file.hdr if it exists, else file.ext.hdr
func HeaderFile(dataFile string) string {
	hdr := strings.TrimSuffix(dataFile, filepath.Ext(dataFile)) + ".hdr"
	if _, err := os.Stat(hdr); err == nil {
		return hdr
	}
	if _, err := os.Stat(dataFile + ".hdr"); err == nil {
		return dataFile + ".hdr"
	}
	return hdr
}

// ReadHeader reads the header of a data file
func ReadHeader(dataFile string) (*Header, error) {
	f, err := os.Open(HeaderFile(dataFile))
	if err != nil {
		return nil, fmt.Errorf("ReadHeader: %w", err)
	}
	defer f.Close()
	h, err := ParseHeader(f)
	if err != nil {
		return nil, fmt.Errorf("ReadHeader[%s].%w", dataFile, err)
	}
	return h, nil
}

// Read reads all the bands of an ENVI raster as float32
func Read(dataFile string) (*common.Raster, *Header, error) {
	h, err := ReadHeader(dataFile)
	if err != nil {
		return nil, nil, fmt.Errorf("Read.%w", err)
	}
	r, err := ReadBands(dataFile, h, nil)
	if err != nil {
		return nil, nil, err
	}
	return r, h, nil
}

// ReadBands reads the given bands (0-based, all the bands if nil) of an ENVI raster
func ReadBands(dataFile string, h *Header, bands []int) (*common.Raster, error) {
	if bands == nil {
		bands = make([]int, h.Bands)
		for i := range bands {
			bands[i] = i
		}
	}
	size, err := dataTypeSize(h.DataType)
	if err != nil {
		return nil, fmt.Errorf("ReadBands: %w", err)
	}
	data, err := os.ReadFile(dataFile)
	if err != nil {
		return nil, fmt.Errorf("ReadBands: %w", err)
	}
	npix := h.Samples * h.Lines
	if len(data) < h.HeaderOffset+npix*h.Bands*size {
		return nil, fmt.Errorf("ReadBands[%s]: file too short: %d bytes, expecting %d", dataFile, len(data), h.HeaderOffset+npix*h.Bands*size)
	}
	data = data[h.HeaderOffset:]
	var order binary.ByteOrder = binary.LittleEndian
	if h.ByteOrder == 1 {
		order = binary.BigEndian
	}

	names := make([]string, len(bands))
	for i, b := range bands {
		if b < 0 || b >= h.Bands {
			return nil, fmt.Errorf("ReadBands[%s]: band %d out of range [0, %d)", dataFile, b, h.Bands)
		}
		if h.BandNames != nil {
			names[i] = h.BandNames[b]
		} else {
			names[i] = fmt.Sprintf("band_%d", b+1)
		}
	}
	r := common.NewRaster(h.Samples, h.Lines, names)
	for k, d := range h.Description {
		r.Description[k] = d
	}
	for i, b := range bands {
		band := r.Bands[i]
		for p := range band {
			band[p] = decode(data[offset(h, b, p)*size:], h.DataType, order)
		}
	}
	return r, nil
}

// offset of the value of the pixel p of band b, in number of values
func offset(h *Header, b, p int) int {
	switch h.Interleave {
	case BIL:
		row, col := p/h.Samples, p%h.Samples
		return (row*h.Bands+b)*h.Samples + col
	case BIP:
		return p*h.Bands + b
	}
	return b*h.Samples*h.Lines + p
}

func decode(b []byte, dt int, order binary.ByteOrder) float32 {
	switch dt {
	case DataTypeByte:
		return float32(b[0])
	case DataTypeInt16:
		return float32(int16(order.Uint16(b)))
	case DataTypeUint16:
		return float32(order.Uint16(b))
	case DataTypeInt32:
		return float32(int32(order.Uint32(b)))
	case DataTypeUint32:
		return float32(order.Uint32(b))
	case DataTypeFloat32:
		return math.Float32frombits(order.Uint32(b))
	case DataTypeFloat64:
		return float32(math.Float64frombits(order.Uint64(b)))
	}
	return float32(math.NaN())
}

// Write writes the raster as float32, little endian, bsq, with its header (dataFile.hdr)
func Write(dataFile string, r *common.Raster, mapInfo *MapInfo) (err error) {
	h := Header{
		Samples:     r.Width,
		Lines:       r.Height,
		Bands:       len(r.Bands),
		FileType:    "ENVI Standard",
		DataType:    DataTypeFloat32,
		Interleave:  BSQ,
		MapInfo:     mapInfo,
		BandNames:   r.BandNames,
		Description: r.Description,
	}
	if err := os.MkdirAll(filepath.Dir(dataFile), 0766); err != nil {
		return fmt.Errorf("envi.Write: %w", err)
	}
	f, err := os.Create(dataFile)
	if err != nil {
		return fmt.Errorf("envi.Write: %w", err)
	}
	defer func() {
		if e := f.Close(); e != nil && err == nil {
			err = fmt.Errorf("envi.Write: %w", e)
		}
	}()
	bw := bufio.NewWriterSize(f, 1<<20)
	buf := make([]byte, 4)
	for _, band := range r.Bands {
		if len(band) != r.Size() {
			return fmt.Errorf("envi.Write: band of %d values, expecting %d", len(band), r.Size())
		}
		for _, v := range band {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			if _, err := bw.Write(buf); err != nil {
				return fmt.Errorf("envi.Write: %w", err)
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("envi.Write: %w", err)
	}

	hf, err := os.Create(strings.TrimSuffix(dataFile, filepath.Ext(dataFile)) + ".hdr")
	if err != nil {
		return fmt.Errorf("envi.Write: %w", err)
	}
	defer hf.Close()
	if err := h.Write(hf); err != nil {
		return fmt.Errorf("envi.Write.%w", err)
	}
	return nil
}

// SinusoidalMapInfo returns the map info of a tile of the MODIS sinusoidal grid, whose upper-left is (ulx, uly)
func SinusoidalMapInfo(ulx, uly float64, width int) *MapInfo {
	px := common.PixelSize(width)
	return &MapInfo{Projection: "Sinusoidal", RefX: 1, RefY: 1, ULX: ulx, ULY: uly, PixelX: px, PixelY: px}
}

// Exists returns true if the data file and its header exist
func Exists(dataFile string) bool {
	if _, err := os.Stat(dataFile); err != nil {
		return false
	}
	_, err := os.Stat(HeaderFile(dataFile))
	return !errors.Is(err, os.ErrNotExist)
}
