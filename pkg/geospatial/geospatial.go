package geospatial

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
)

// ErrNoGeometry is returned when the document carries no geometry
var ErrNoGeometry = errors.New("invalid GeoJSON: no geometry")

// ValidateGeoJSON validates a GeoJSON Feature or bare Geometry document
func ValidateGeoJSON(geojsonStr string) (orb.Geometry, error) {
	data := []byte(geojsonStr)

	if feature, err := geojson.UnmarshalFeature(data); err == nil {
		if feature.Geometry == nil {
			return nil, ErrNoGeometry
		}
		return feature.Geometry, nil
	}

	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, fmt.Errorf("invalid GeoJSON: %w", err)
	}
	if g == nil || g.Coordinates == nil {
		return nil, ErrNoGeometry
	}
	return g.Geometry(), nil
}

// IsAreal reports whether the geometry encloses an area
func IsAreal(geometry orb.Geometry) bool {
	switch geometry.(type) {
	case orb.Polygon, orb.MultiPolygon, orb.Ring, orb.Bound:
		return true
	default:
		return false
	}
}

// CalculateArea calculates the geodesic area in square meters for a geometry
func CalculateArea(geometry orb.Geometry) float64 {
	return geo.Area(geometry)
}

// ConvertToHectares converts square meters to hectares
func ConvertToHectares(sqMeters float64) float64 {
	return sqMeters / 10000
}

// AreaHectares parses a boundary and returns its area in hectares
func AreaHectares(geojsonStr string) (float64, error) {
	geometry, err := ValidateGeoJSON(geojsonStr)
	if err != nil {
		return 0, err
	}
	if !IsAreal(geometry) {
		return 0, fmt.Errorf("boundary must be a polygon, got %s", geometry.GeoJSONType())
	}
	return ConvertToHectares(CalculateArea(geometry)), nil
}
