// Package items expands a winning payload's basket into transaction line
// items. Fields are independently nullable; a bad item field never drops the
// basket.
package items

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/scout-edge/canon/pkg/extractor"
	"github.com/scout-edge/canon/pkg/models"
	"github.com/scout-edge/canon/pkg/tracing"
)

// Taxonomy is the read-only brand taxonomy lookup.
type Taxonomy interface {
	// GetBrand returns nil, nil when the brand is unknown.
	GetBrand(ctx context.Context, brandName string) (*models.BrandEntry, error)
}

// Extractor expands payload baskets into line items.
type Extractor struct {
	ext      *extractor.Extractor
	taxonomy Taxonomy
	logger   ectologger.Logger
}

// NewExtractor creates a new item extractor. taxonomy may be nil, in which
// case categories are taken from the payload only.
func NewExtractor(taxonomy Taxonomy, logger ectologger.Logger) *Extractor {
	return &Extractor{
		ext:      extractor.New(),
		taxonomy: taxonomy,
		logger:   logger,
	}
}

// Extract returns the line items of a parsed payload. Prices are stored as
// received; unit/total consistency is checked at quality scoring, not here.
func (e *Extractor) Extract(ctx context.Context, payload *models.ParsedPayload) []models.TransactionItem {
	ctx, span := tracing.StartSpan(ctx, "items.Extractor.Extract")
	defer span.End()

	rawItems := e.ext.ExtractArray(payload.Document, "items")
	if len(rawItems) == 0 {
		return nil
	}

	items := make([]models.TransactionItem, 0, len(rawItems))
	for seq, raw := range rawItems {
		doc, ok := raw.(map[string]any)
		if !ok {
			// Not an object; skip the line, keep the basket.
			continue
		}

		item := models.TransactionItem{
			ID:      uuid.New().String(),
			LineSeq: seq,
		}

		item.BrandName = e.ext.ExtractFirstString(doc, "brandName", "brand_name", "brand")
		item.ProductName = e.ext.ExtractFirstString(doc, "productName", "product_name", "genericName", "localName")
		item.Category = e.ext.ExtractFirstString(doc, "category", "subcategory")

		item.Quantity = 1
		if qty := e.ext.ExtractInt(doc, "quantity"); qty != nil && *qty > 0 {
			item.Quantity = *qty
		}

		item.Unit = e.ext.ExtractString(doc, "unit")
		item.UnitPrice = e.ext.ExtractFloat(doc, "unitPrice")
		if item.UnitPrice == nil {
			item.UnitPrice = e.ext.ExtractFloat(doc, "unit_price")
		}
		item.TotalPrice = e.ext.ExtractFloat(doc, "totalPrice")
		if item.TotalPrice == nil {
			item.TotalPrice = e.ext.ExtractFloat(doc, "total_price")
		}

		if unbranded := e.ext.ExtractBool(doc, "isUnbranded"); unbranded != nil {
			item.IsUnbranded = *unbranded
		}
		item.DetectionMethod = e.ext.ExtractString(doc, "detectionMethod")
		item.Confidence = e.ext.ExtractFloat(doc, "confidence")

		e.resolveCategory(ctx, &item)

		items = append(items, item)
	}

	return items
}

// resolveCategory fills a missing category from the brand taxonomy.
func (e *Extractor) resolveCategory(ctx context.Context, item *models.TransactionItem) {
	if item.Category != nil || item.BrandName == nil || e.taxonomy == nil {
		return
	}

	entry, err := e.taxonomy.GetBrand(ctx, *item.BrandName)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"brand_name": *item.BrandName,
		}).Warn("Brand taxonomy lookup failed")
		return
	}
	if entry != nil {
		item.Category = entry.Category
	}
}
