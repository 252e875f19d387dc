package models

// RegionQuery is a resolved search target: the land service's region code plus the map center.
type RegionQuery struct {
	RegionID    string  `json:"region_id" yaml:"region_id"`
	Lat         float64 `json:"lat" yaml:"lat"`
	Lon         float64 `json:"lon" yaml:"lon"`
	DisplayName string  `json:"display_name" yaml:"display_name"`
}

// BoundingBox is the rectangular lat/lon window scoping cluster and article queries.
type BoundingBox struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Contains reports whether the point lies strictly inside the box.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return b.South < lat && lat < b.North && b.West < lon && lon < b.East
}

// Valid reports whether the box has positive extent on both axes.
func (b BoundingBox) Valid() bool {
	return b.South < b.North && b.West < b.East
}

// ClusterSummary is the result of one cluster-count query. TotalCount is an estimate
// built from map cluster sizes, not an authoritative listing count.
type ClusterSummary struct {
	TotalCount int         `json:"total_count"`
	RegionName string      `json:"region_name"`
	BBox       BoundingBox `json:"bbox"`
}

// AdminRegion is an administrative region from the public region-code catalogue.
type AdminRegion struct {
	Code string `json:"code" db:"code"`
	Name string `json:"name" db:"name"`
}
