// Package geo resolves store geography and enforces the zero-trust geometry
// rule: every persisted location carries a polygon or in-bounds coordinates,
// never silently defaulted.
package geo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/scout-edge/canon/pkg/models"
	"github.com/scout-edge/canon/pkg/tracing"
)

// ErrNoGeometry marks a store whose location cannot be trusted. Transactions
// for such stores are excluded from the canonical set and counted.
var ErrNoGeometry = errors.New("no verifiable geometry")

// Directory is the read-only store directory lookup.
type Directory interface {
	// GetStore returns nil, nil when the store id is unknown.
	GetStore(ctx context.Context, storeID string) (*models.StoreLocation, error)
}

// Bounds is the bounding box valid coordinates must fall inside.
type Bounds struct {
	MinLatitude  float64
	MaxLatitude  float64
	MinLongitude float64
	MaxLongitude float64
}

// Contains reports whether the coordinate pair falls inside the box.
func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLatitude && lat <= b.MaxLatitude &&
		lon >= b.MinLongitude && lon <= b.MaxLongitude
}

// Resolver maps store ids to validated geography.
type Resolver struct {
	directory Directory
	bounds    Bounds
	logger    ectologger.Logger
}

// NewResolver creates a new geography resolver
func NewResolver(directory Directory, bounds Bounds, logger ectologger.Logger) *Resolver {
	return &Resolver{
		directory: directory,
		bounds:    bounds,
		logger:    logger,
	}
}

// Resolve looks up a store and validates its geometry. It returns
// ErrNoGeometry (wrapped) when the store is unknown, has no municipality, or
// carries neither a polygon nor an in-bounds coordinate pair.
//
// Out-of-bounds coordinates are nulled, never stored; the record survives
// only when a polygon is present.
func (r *Resolver) Resolve(ctx context.Context, storeID string) (*models.StoreLocation, error) {
	ctx, span := tracing.StartSpan(ctx, "geo.Resolver.Resolve")
	defer span.End()

	loc, err := r.directory.GetStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		return nil, fmt.Errorf("%w: store %s not in directory", ErrNoGeometry, storeID)
	}

	if loc.Municipality == nil || *loc.Municipality == "" {
		return nil, fmt.Errorf("%w: store %s has no municipality", ErrNoGeometry, storeID)
	}

	validated := *loc

	hasCoords := loc.Latitude != nil && loc.Longitude != nil
	if hasCoords && !r.bounds.Contains(*loc.Latitude, *loc.Longitude) {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"store_id":  storeID,
			"latitude":  *loc.Latitude,
			"longitude": *loc.Longitude,
		}).Warn("Store coordinates outside bounding box, discarding")
		validated.Latitude = nil
		validated.Longitude = nil
		hasCoords = false
	}

	hasPolygon := len(loc.Polygon) > 0 && string(loc.Polygon) != "null"
	if !hasPolygon {
		validated.Polygon = nil
	}

	if !hasPolygon && !hasCoords {
		return nil, fmt.Errorf("%w: store %s has neither polygon nor valid coordinates", ErrNoGeometry, storeID)
	}

	return &validated, nil
}
