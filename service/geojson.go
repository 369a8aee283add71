package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
)

// ReadAOI reads a geojson file (lon/lat), merging featureCollections and geometryCollections into a multipolygon
func ReadAOI(file string) (geom.MultiPolygon, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("ReadAOI: %w", err)
	}
	var g geojson.Geometry
	if err := g.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("ReadAOI.Unmarshal: %w", err)
	}
	var mp geom.MultiPolygon
	switch geo := g.Geometry.(type) {
	case geojson.FeatureCollection:
		for _, f := range geo.Features {
			mergeMultiPolygons(f.Geometry.Geometry, &mp)
		}
	case geojson.Feature:
		mergeMultiPolygons(geo.Geometry.Geometry, &mp)
	default:
		mergeMultiPolygons(g.Geometry, &mp)
	}
	if len(mp) == 0 {
		return nil, fmt.Errorf("ReadAOI: no polygon found in %s", file)
	}
	return mp, nil
}

func mergeMultiPolygons(g geom.Geometry, mp *geom.MultiPolygon) {
	switch g := g.(type) {
	case geom.MultiPolygon:
		*mp = append(*mp, g.Polygons()...)
	case geom.Polygon:
		*mp = append(*mp, g.LinearRings())
	case geom.Collection:
		for _, g := range g.Geometries() {
			mergeMultiPolygons(g, mp)
		}
	}
}

// ToJSON writes v as a json file in the workingdir (if not empty)
func ToJSON(v interface{}, workingdir, filename string) error {
	if workingdir != "" {
		vb, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("toJSON.Marshal: %w", err)
		}
		if err := os.WriteFile(filepath.Join(workingdir, filename), vb, 0644); err != nil {
			return fmt.Errorf("toJSON.WriteFile: %w", err)
		}
	}
	return nil
}
