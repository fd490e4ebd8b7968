package items

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scout-edge/canon/pkg/logging"
	"github.com/scout-edge/canon/pkg/models"
)

type fakeTaxonomy struct {
	entries map[string]*models.BrandEntry
}

func (f *fakeTaxonomy) GetBrand(_ context.Context, brandName string) (*models.BrandEntry, error) {
	return f.entries[brandName], nil
}

func payloadWithItems(items []any) *models.ParsedPayload {
	return &models.ParsedPayload{
		Document: map[string]any{"items": items},
	}
}

func TestExtract(t *testing.T) {
	category := "Beverages"
	taxonomy := &fakeTaxonomy{entries: map[string]*models.BrandEntry{
		"Coke": {BrandName: "Coke", Category: &category},
	}}
	extractor := NewExtractor(taxonomy, logging.NewNoop())
	ctx := context.Background()

	t.Run("should extract a full basket", func(t *testing.T) {
		payload := payloadWithItems([]any{
			map[string]any{
				"brandName":  "Coke",
				"quantity":   float64(2),
				"unit":       "bottle",
				"unitPrice":  float64(15),
				"totalPrice": float64(30),
			},
			map[string]any{
				"brand_name":  "Lucky Me",
				"productName": "Pancit Canton",
				"quantity":    float64(3),
			},
		})

		result := extractor.Extract(ctx, payload)
		require.Len(t, result, 2)

		assert.Equal(t, 0, result[0].LineSeq)
		assert.Equal(t, "Coke", *result[0].BrandName)
		assert.Equal(t, 2, result[0].Quantity)
		assert.Equal(t, 30.0, *result[0].TotalPrice)

		assert.Equal(t, 1, result[1].LineSeq)
		assert.Equal(t, "Lucky Me", *result[1].BrandName)
		assert.Equal(t, "Pancit Canton", *result[1].ProductName)
	})

	t.Run("should default missing or invalid quantity to one", func(t *testing.T) {
		payload := payloadWithItems([]any{
			map[string]any{"brandName": "Coke"},
			map[string]any{"brandName": "Coke", "quantity": float64(0)},
			map[string]any{"brandName": "Coke", "quantity": float64(-2)},
		})

		result := extractor.Extract(ctx, payload)
		require.Len(t, result, 3)
		for _, item := range result {
			assert.Equal(t, 1, item.Quantity)
		}
	})

	t.Run("should skip non-object lines and keep the basket", func(t *testing.T) {
		payload := payloadWithItems([]any{
			"not an item",
			map[string]any{"brandName": "Coke"},
			float64(42),
		})

		result := extractor.Extract(ctx, payload)
		require.Len(t, result, 1)
		assert.Equal(t, "Coke", *result[0].BrandName)
		assert.Equal(t, 1, result[0].LineSeq)
	})

	t.Run("should fill a missing category from the taxonomy", func(t *testing.T) {
		payload := payloadWithItems([]any{
			map[string]any{"brandName": "Coke"},
		})

		result := extractor.Extract(ctx, payload)
		require.Len(t, result, 1)
		require.NotNil(t, result[0].Category)
		assert.Equal(t, "Beverages", *result[0].Category)
	})

	t.Run("should keep a payload-provided category over the taxonomy", func(t *testing.T) {
		payload := payloadWithItems([]any{
			map[string]any{"brandName": "Coke", "category": "Softdrinks"},
		})

		result := extractor.Extract(ctx, payload)
		require.Len(t, result, 1)
		assert.Equal(t, "Softdrinks", *result[0].Category)
	})

	t.Run("should return nil for a payload without items", func(t *testing.T) {
		payload := &models.ParsedPayload{Document: map[string]any{}}
		assert.Nil(t, extractor.Extract(ctx, payload))
	})

	t.Run("should carry unbranded and detection metadata", func(t *testing.T) {
		payload := payloadWithItems([]any{
			map[string]any{
				"productName":     "suka",
				"isUnbranded":     true,
				"detectionMethod": "stt",
				"confidence":      0.82,
			},
		})

		result := extractor.Extract(ctx, payload)
		require.Len(t, result, 1)
		assert.True(t, result[0].IsUnbranded)
		assert.Equal(t, "stt", *result[0].DetectionMethod)
		assert.Equal(t, 0.82, *result[0].Confidence)
		assert.Nil(t, result[0].BrandName)
	})
}
