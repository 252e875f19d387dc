package models

import "time"

// RegionScore is the infrastructure score of one region: nearby amenity counts per
// category and their weighted sum.
type RegionScore struct {
	RegionCode string         `json:"region_code" db:"region_code"`
	RegionName string         `json:"region_name" db:"region_name"`
	Lat        *float64       `json:"lat" db:"lat"`
	Lon        *float64       `json:"lon" db:"lon"`
	Counts     map[string]int `json:"counts" db:"counts"`
	Total      int            `json:"total_score" db:"total_score"`
	ScoredAt   time.Time      `json:"scored_at" db:"scored_at"`
}
