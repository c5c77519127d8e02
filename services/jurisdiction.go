package services

import (
	"fmt"
	"os"

	"github.com/apex/log"
	"github.com/golang/geo/s2"
	geojson "github.com/paulmach/go.geojson"

	"report-workflow-service/models"
)

// wardArea is one ward boundary: its jurisdiction labels, an s2 bounding
// rectangle for cheap rejection, and the polygon rings for the exact test.
type wardArea struct {
	jurisdiction models.Jurisdiction
	bound        s2.Rect
	rings        [][][]float64 // GeoJSON order: [lon, lat]
}

// JurisdictionService maps a geographic point to the ward-level jurisdiction
// it falls in. Boundaries come from a GeoJSON feature collection whose
// features carry district/municipality/ward properties.
type JurisdictionService struct {
	wards []wardArea
}

// NewJurisdictionService creates an empty service. Without loaded wards,
// Locate never matches and reports keep their citizen-declared district.
func NewJurisdictionService() *JurisdictionService {
	return &JurisdictionService{}
}

// LoadWards parses ward boundary polygons from a GeoJSON file.
func (s *JurisdictionService) LoadWards(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read ward boundaries: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return fmt.Errorf("failed to parse ward boundaries: %w", err)
	}

	loaded := 0
	for _, feature := range fc.Features {
		district, _ := feature.PropertyString("district")
		if district == "" {
			log.Warnf("Skipping ward feature without district property")
			continue
		}
		municipality, _ := feature.PropertyString("municipality")
		ward, _ := feature.PropertyString("ward")

		var polygons [][][][]float64
		switch {
		case feature.Geometry.IsPolygon():
			polygons = [][][][]float64{feature.Geometry.Polygon}
		case feature.Geometry.IsMultiPolygon():
			polygons = feature.Geometry.MultiPolygon
		default:
			log.Warnf("Skipping ward feature with geometry type %v", feature.Geometry.Type)
			continue
		}

		for _, polygon := range polygons {
			if len(polygon) == 0 || len(polygon[0]) < 3 {
				continue
			}
			area := wardArea{
				jurisdiction: models.Jurisdiction{
					District:     district,
					Municipality: municipality,
					Ward:         ward,
				},
				bound: ringBound(polygon[0]),
				rings: polygon,
			}
			s.wards = append(s.wards, area)
			loaded++
		}
	}

	log.Infof("Loaded %d ward boundary polygons", loaded)
	return nil
}

// Locate returns the jurisdiction containing the point, if any.
func (s *JurisdictionService) Locate(lat, lon float64) (models.Jurisdiction, bool) {
	ll := s2.LatLngFromDegrees(lat, lon)
	for _, ward := range s.wards {
		if !ward.bound.ContainsLatLng(ll) {
			continue
		}
		if pointInRing(lat, lon, ward.rings[0]) {
			return ward.jurisdiction, true
		}
	}
	return models.Jurisdiction{}, false
}

// WardCount returns the number of loaded boundary polygons.
func (s *JurisdictionService) WardCount() int {
	return len(s.wards)
}

func ringBound(ring [][]float64) s2.Rect {
	rect := s2.EmptyRect()
	for _, coord := range ring {
		if len(coord) < 2 {
			continue
		}
		rect = rect.AddPoint(s2.LatLngFromDegrees(coord[1], coord[0]))
	}
	return rect
}

// pointInRing runs a standard even-odd ray cast over the outer ring.
// Holes in ward polygons are not expected.
func pointInRing(lat, lon float64, ring [][]float64) bool {
	inside := false
	n := len(ring)
	j := n - 1
	for i := 0; i < n; i++ {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if (yi > lat) != (yj > lat) &&
			lon < (xj-xi)*(lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}
	return inside
}
