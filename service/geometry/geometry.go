package geometry

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/airbusgeo/albedo-inversion/common"
	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
	geomwkt "github.com/go-spatial/geom/encoding/wkt"
)

// number of points per edge of the lon/lat footprints
const edgePoints = 10

// TileFootprint returns the polygon of the tile in sinusoidal metres
func TileFootprint(t common.Tile) geom.Polygon {
	x0, y0 := t.UpperLeft()
	x1, y1 := x0+common.TileSize, y0-common.TileSize
	return geom.Polygon{{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}}
}

// SinusoidalToLonLat converts sinusoidal metres to degrees
func SinusoidalToLonLat(x, y float64) (lon, lat float64) {
	latRad := y / common.EarthRadius
	lat = latRad * 180 / math.Pi
	if c := math.Cos(latRad); c > 1e-12 {
		lon = x / (common.EarthRadius * c) * 180 / math.Pi
	}
	return math.Max(-180, math.Min(180, lon)), lat
}

// LonLatToSinusoidal converts degrees to sinusoidal metres
func LonLatToSinusoidal(lon, lat float64) (x, y float64) {
	latRad := lat * math.Pi / 180
	return common.EarthRadius * lon * math.Pi / 180 * math.Cos(latRad), common.EarthRadius * latRad
}

// TileFootprintLonLat returns the polygon of the tile in lon/lat, densified along the edges
func TileFootprintLonLat(t common.Tile) geom.Polygon {
	x0, y0 := t.UpperLeft()
	corners := [][2]float64{{x0, y0}, {x0 + common.TileSize, y0}, {x0 + common.TileSize, y0 - common.TileSize}, {x0, y0 - common.TileSize}}
	var ring [][2]float64
	for i := range corners {
		a, b := corners[i], corners[(i+1)%len(corners)]
		for j := 0; j < edgePoints; j++ {
			f := float64(j) / edgePoints
			lon, lat := SinusoidalToLonLat(a[0]+f*(b[0]-a[0]), a[1]+f*(b[1]-a[1]))
			ring = append(ring, [2]float64{lon, lat})
		}
	}
	ring = append(ring, ring[0])
	return geom.Polygon{ring}
}

// WKT encodes the geometry as WKT
func WKT(g geom.Geometry) (string, error) {
	wkt, err := geomwkt.EncodeString(g)
	if err != nil {
		return "", fmt.Errorf("WKT.EncodeString: %w", err)
	}
	return wkt, nil
}

// GeoJSON encodes the geometry as geojson
func GeoJSON(g geom.Geometry) ([]byte, error) {
	b, err := json.Marshal(geojson.Geometry{Geometry: g})
	if err != nil {
		return nil, fmt.Errorf("GeoJSON.Marshal: %w", err)
	}
	return b, nil
}

// TilesCovering returns the tiles covering the bounding box (in sinusoidal projection) of the vertices of the aoi (lon/lat)
func TilesCovering(aoi geom.MultiPolygon) []common.Tile {
	xmin, ymin := math.Inf(1), math.Inf(1)
	xmax, ymax := math.Inf(-1), math.Inf(-1)
	for _, p := range aoi {
		for _, ring := range p {
			for _, pt := range ring {
				x, y := LonLatToSinusoidal(pt[0], pt[1])
				xmin, xmax = math.Min(xmin, x), math.Max(xmax, x)
				ymin, ymax = math.Min(ymin, y), math.Max(ymax, y)
			}
		}
	}
	if math.IsInf(xmin, 1) {
		return nil
	}
	hmin := clamp(int(math.Floor((xmin-common.GridUpperX)/common.TileSize)), common.NumHTiles)
	hmax := clamp(int(math.Floor((xmax-common.GridUpperX)/common.TileSize)), common.NumHTiles)
	vmin := clamp(int(math.Floor((common.GridUpperY-ymax)/common.TileSize)), common.NumVTiles)
	vmax := clamp(int(math.Floor((common.GridUpperY-ymin)/common.TileSize)), common.NumVTiles)
	var tiles []common.Tile
	for v := vmin; v <= vmax; v++ {
		for h := hmin; h <= hmax; h++ {
			tiles = append(tiles, common.Tile{H: h, V: v})
		}
	}
	return tiles
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
