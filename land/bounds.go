package land

import "landscout/models"

// Deltas are the half-extents of the search window around the map center.
// They do not scale with zoom.
type Deltas struct {
	Lat float64
	Lon float64
}

// DefaultDeltas cover roughly a district at the reference zoom level 12.
var DefaultDeltas = Deltas{Lat: 0.09, Lon: 0.18}

// ComputeBounds derives the search window for a center point using DefaultDeltas.
func ComputeBounds(lat, lon float64, zoom int) models.BoundingBox {
	return DefaultDeltas.Bounds(lat, lon, zoom)
}

// Bounds derives the search window for a center point. zoom is accepted for the
// request parameters but does not change the extent.
func (d Deltas) Bounds(lat, lon float64, zoom int) models.BoundingBox {
	return models.BoundingBox{
		South: lat - d.Lat,
		West:  lon - d.Lon,
		North: lat + d.Lat,
		East:  lon + d.Lon,
	}
}
