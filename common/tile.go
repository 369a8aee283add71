package common

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// MODIS sinusoidal grid
const (
	TileSize     = 1111950.519667 // metres
	GridUpperX   = -20015109.354
	GridUpperY   = 10007554.677
	EarthRadius  = 6371007.181
	NumHTiles    = 36
	NumVTiles    = 18
	TilePixels1K = 1200
	TilePixels   = 2400
)

// Tile is a MODIS sinusoidal tile, e.g. h18v04
type Tile struct {
	H, V int
}

// ParseTile parses hHHvVV
func ParseTile(s string) (Tile, error) {
	var t Tile
	if len(s) != 6 || s[0] != 'h' || s[3] != 'v' {
		return t, fmt.Errorf("invalid tile: %s", s)
	}
	var err error
	if t.H, err = strconv.Atoi(s[1:3]); err != nil {
		return t, fmt.Errorf("invalid tile %s: %w", s, err)
	}
	if t.V, err = strconv.Atoi(s[4:6]); err != nil {
		return t, fmt.Errorf("invalid tile %s: %w", s, err)
	}
	if t.H >= NumHTiles || t.V >= NumVTiles {
		return t, fmt.Errorf("invalid tile: %s out of grid", s)
	}
	return t, nil
}

func (t Tile) String() string {
	return fmt.Sprintf("h%02dv%02d", t.H, t.V)
}

// UpperLeft returns the upper-left corner of the tile in sinusoidal metres
func (t Tile) UpperLeft() (x, y float64) {
	return GridUpperX + float64(t.H)*TileSize, GridUpperY - float64(t.V)*TileSize
}

// PixelSize returns the size in metres of a pixel when the tile is width pixels wide
func PixelSize(width int) float64 {
	return TileSize / float64(width)
}

// Latitude returns the latitude in degrees of the centre of the row-th line
// of a tile divided in height lines
func (t Tile) Latitude(row, height int) float64 {
	_, uly := t.UpperLeft()
	y := uly - (float64(row)+0.5)*PixelSize(height)
	return y / EarthRadius * 180 / math.Pi
}

// ULCTable maps a tile to its upper-left coordinates as found in an ASCII table "tile, X, Y"
type ULCTable map[Tile][2]float64

// LoadULCTable reads an ASCII table "tile, X, Y"
func LoadULCTable(r io.Reader) (ULCTable, error) {
	table := ULCTable{}
	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
		if len(fields) < 3 {
			return nil, fmt.Errorf("LoadULCTable: line %d: expecting 'tile, X, Y'", n)
		}
		tile, err := ParseTile(fields[0])
		if err != nil {
			return nil, fmt.Errorf("LoadULCTable: line %d: %w", n, err)
		}
		x, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("LoadULCTable: line %d: %w", n, err)
		}
		y, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("LoadULCTable: line %d: %w", n, err)
		}
		table[tile] = [2]float64{x, y}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("LoadULCTable: %w", err)
	}
	return table, nil
}

// UpperLeft returns the coordinates of the tile from the table, or computed from the grid if absent
func (tbl ULCTable) UpperLeft(t Tile) (x, y float64) {
	if c, ok := tbl[t]; ok {
		return c[0], c[1]
	}
	return t.UpperLeft()
}

// Window is a sub-region of a tile in pixels (inclusive, 0-based)
// The zero Window is the whole tile
type Window struct {
	XMin, YMin, XMax, YMax int
}

// IsFull returns true if the window covers the whole raster
func (w Window) IsFull() bool {
	return w == Window{}
}

// Resolve returns the window clipped to a width x height raster
func (w Window) Resolve(width, height int) (Window, error) {
	if w.IsFull() {
		return Window{0, 0, width - 1, height - 1}, nil
	}
	if w.XMin < 0 || w.YMin < 0 || w.XMax >= width || w.YMax >= height || w.XMin > w.XMax || w.YMin > w.YMax {
		return w, fmt.Errorf("window %v out of raster %dx%d", w, width, height)
	}
	return w, nil
}

// Width of a resolved window
func (w Window) Width() int { return w.XMax - w.XMin + 1 }

// Height of a resolved window
func (w Window) Height() int { return w.YMax - w.YMin + 1 }

// Crop returns the pixels of a resolved window of a band of a raster width pixels wide
func Crop(band []float32, width int, w Window) []float32 {
	if w.XMin == 0 && w.Width() == width {
		return band[w.YMin*width : (w.YMax+1)*width]
	}
	out := make([]float32, 0, w.Width()*w.Height())
	for y := w.YMin; y <= w.YMax; y++ {
		out = append(out, band[y*width+w.XMin:y*width+w.XMax+1]...)
	}
	return out
}

// ParseWindow parses "xmin,ymin,xmax,ymax". The empty string is the whole tile.
func ParseWindow(s string) (Window, error) {
	var w Window
	if strings.TrimSpace(s) == "" {
		return w, nil
	}
	fields := strings.Split(s, ",")
	if len(fields) != 4 {
		return w, fmt.Errorf("invalid window %s: expecting xmin,ymin,xmax,ymax", s)
	}
	var v [4]int
	for i, f := range fields {
		var err error
		if v[i], err = strconv.Atoi(strings.TrimSpace(f)); err != nil {
			return w, fmt.Errorf("invalid window %s: %w", s, err)
		}
	}
	w = Window{XMin: v[0], YMin: v[1], XMax: v[2], YMax: v[3]}
	if w.XMin < 0 || w.YMin < 0 || w.XMin > w.XMax || w.YMin > w.YMax {
		return w, fmt.Errorf("invalid window %s", s)
	}
	return w, nil
}
