package geo

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scout-edge/canon/pkg/logging"
	"github.com/scout-edge/canon/pkg/models"
)

type fakeDirectory struct {
	stores map[string]*models.StoreLocation
}

func (f *fakeDirectory) GetStore(_ context.Context, storeID string) (*models.StoreLocation, error) {
	return f.stores[storeID], nil
}

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func ncrBounds() Bounds {
	return Bounds{
		MinLatitude:  14.2,
		MaxLatitude:  14.9,
		MinLongitude: 120.9,
		MaxLongitude: 121.2,
	}
}

func TestResolve(t *testing.T) {
	directory := &fakeDirectory{stores: map[string]*models.StoreLocation{
		"101": {
			StoreID:      "101",
			Municipality: strPtr("Quezon City"),
			Province:     strPtr("Metro Manila"),
			Latitude:     floatPtr(14.65),
			Longitude:    floatPtr(121.03),
		},
		"102": {
			StoreID:      "102",
			Municipality: strPtr("Makati"),
			Latitude:     floatPtr(35.68), // Tokyo, clearly wrong
			Longitude:    floatPtr(139.69),
			Polygon:      json.RawMessage(`{"type":"Polygon","coordinates":[]}`),
		},
		"103": {
			StoreID:      "103",
			Municipality: strPtr("Pasig"),
			Latitude:     floatPtr(35.68),
			Longitude:    floatPtr(139.69),
		},
		"104": {
			StoreID: "104",
		},
		"105": {
			StoreID:      "105",
			Municipality: strPtr("Taguig"),
			Polygon:      json.RawMessage(`null`),
		},
	}}

	resolver := NewResolver(directory, ncrBounds(), logging.NewNoop())
	ctx := context.Background()

	t.Run("should return validated geography for an in-bounds store", func(t *testing.T) {
		loc, err := resolver.Resolve(ctx, "101")
		require.NoError(t, err)

		assert.Equal(t, "Quezon City", *loc.Municipality)
		require.NotNil(t, loc.Latitude)
		assert.Equal(t, 14.65, *loc.Latitude)
	})

	t.Run("should null out-of-bounds coordinates but keep a polygon-backed store", func(t *testing.T) {
		loc, err := resolver.Resolve(ctx, "102")
		require.NoError(t, err)

		assert.Nil(t, loc.Latitude)
		assert.Nil(t, loc.Longitude)
		assert.NotEmpty(t, loc.Polygon)
	})

	t.Run("should exclude a store with out-of-bounds coordinates and no polygon", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, "103")
		assert.ErrorIs(t, err, ErrNoGeometry)
	})

	t.Run("should exclude a store without a municipality", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, "104")
		assert.ErrorIs(t, err, ErrNoGeometry)
	})

	t.Run("should treat a JSON null polygon as no polygon", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, "105")
		assert.ErrorIs(t, err, ErrNoGeometry)
	})

	t.Run("should exclude an unknown store", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, "999")
		assert.ErrorIs(t, err, ErrNoGeometry)
	})

	t.Run("should not mutate the directory row", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, "102")
		require.NoError(t, err)

		original := directory.stores["102"]
		assert.NotNil(t, original.Latitude)
		assert.NotNil(t, original.Longitude)
	})
}

func TestBoundsContains(t *testing.T) {
	bounds := ncrBounds()

	assert.True(t, bounds.Contains(14.5, 121.0))
	assert.True(t, bounds.Contains(14.2, 120.9))
	assert.False(t, bounds.Contains(14.1, 121.0))
	assert.False(t, bounds.Contains(14.5, 121.3))
}
