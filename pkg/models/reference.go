package models

import "encoding/json"

// StoreLocation is one row of the read-only store directory.
type StoreLocation struct {
	StoreID      string          `json:"store_id" db:"store_id"`
	Municipality *string         `json:"municipality,omitempty" db:"municipality"`
	Province     *string         `json:"province,omitempty" db:"province"`
	Region       *string         `json:"region,omitempty" db:"region"`
	Barangay     *string         `json:"barangay,omitempty" db:"barangay"`
	Latitude     *float64        `json:"latitude,omitempty" db:"latitude"`
	Longitude    *float64        `json:"longitude,omitempty" db:"longitude"`
	Polygon      json.RawMessage `json:"polygon,omitempty" db:"polygon"`
}

// BrandEntry is one row of the read-only brand taxonomy.
type BrandEntry struct {
	BrandName  string  `json:"brand_name" db:"brand_name"`
	Category   *string `json:"category,omitempty" db:"category"`
	Department *string `json:"department,omitempty" db:"department"`
}
