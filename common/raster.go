package common

import "fmt"

// Raster is a multi-band float32 image, band-sequential
type Raster struct {
	Width, Height int
	Bands         [][]float32
	BandNames     []string
	Tile          Tile
	Description   map[string]string
}

// NewRaster allocates a raster of n bands
func NewRaster(width, height int, bandNames []string) *Raster {
	r := &Raster{Width: width, Height: height, BandNames: bandNames, Description: map[string]string{}}
	r.Bands = make([][]float32, len(bandNames))
	for i := range r.Bands {
		r.Bands[i] = make([]float32, width*height)
	}
	return r
}

// Size returns the number of pixels of a band
func (r *Raster) Size() int {
	return r.Width * r.Height
}

// Band returns the band named name
func (r *Raster) Band(name string) ([]float32, error) {
	for i, n := range r.BandNames {
		if n == name {
			return r.Bands[i], nil
		}
	}
	return nil, fmt.Errorf("band %s not found", name)
}

// Pixel copies the values of all bands at index p into dst (allocated if nil)
func (r *Raster) Pixel(p int, dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(r.Bands))
	}
	for b := range r.Bands {
		dst[b] = float64(r.Bands[b][p])
	}
	return dst
}

// SetPixel sets the values of all bands at index p
func (r *Raster) SetPixel(p int, values []float64) {
	for b := range r.Bands {
		r.Bands[b][p] = float32(values[b])
	}
}

// SameShape returns an error if o has not the same size as r
func (r *Raster) SameShape(o *Raster) error {
	if r.Width != o.Width || r.Height != o.Height {
		return fmt.Errorf("shape mismatch: %dx%d vs %dx%d", r.Width, r.Height, o.Width, o.Height)
	}
	return nil
}
