package models

import (
	"encoding/json"
	"time"
)

// CanonicalTransaction is the single authoritative record for one real-world
// purchase event. The canonical set is fully replaced each run.
// Committed rows always have a municipality and either a polygon or an
// in-bounds coordinate pair.
type CanonicalTransaction struct {
	CanonicalTxID string  `json:"canonical_tx_id" db:"canonical_tx_id"`
	RunID         string  `json:"run_id" db:"run_id"`
	TransactionID string  `json:"transaction_id" db:"transaction_id"`
	SourceFile    string  `json:"source_file" db:"source_file"`
	StoreID       *string `json:"store_id,omitempty" db:"store_id"`
	DeviceID      *string `json:"device_id,omitempty" db:"device_id"`

	TotalAmount *float64   `json:"total_amount,omitempty" db:"total_amount"`
	TotalItems  int        `json:"total_items" db:"total_items"`
	TxTimestamp *time.Time `json:"tx_timestamp,omitempty" db:"tx_timestamp"`

	Region       *string         `json:"region,omitempty" db:"region"`
	Province     *string         `json:"province,omitempty" db:"province"`
	Municipality string          `json:"municipality" db:"municipality"`
	Barangay     *string         `json:"barangay,omitempty" db:"barangay"`
	Latitude     *float64        `json:"latitude,omitempty" db:"latitude"`
	Longitude    *float64        `json:"longitude,omitempty" db:"longitude"`
	GeoPolygon   json.RawMessage `json:"geo_polygon,omitempty" db:"geo_polygon"`

	AgeBracket *string `json:"age_bracket,omitempty" db:"age_bracket"`
	Gender     *string `json:"gender,omitempty" db:"gender"`
	Role       *string `json:"role,omitempty" db:"role"`

	PaymentMethod *string `json:"payment_method,omitempty" db:"payment_method"`
	TimeOfDay     *string `json:"time_of_day,omitempty" db:"time_of_day"`
	DayType       *string `json:"day_type,omitempty" db:"day_type"`
	Transcript    *string `json:"transcript,omitempty" db:"transcript"`

	QualityScore   int  `json:"quality_score" db:"quality_score"`
	BasketMismatch bool `json:"basket_mismatch" db:"basket_mismatch"`

	SubstitutionOccurred   bool     `json:"substitution_occurred" db:"substitution_occurred"`
	SubstitutionFrom       *string  `json:"substitution_from,omitempty" db:"substitution_from"`
	SubstitutionTo         *string  `json:"substitution_to,omitempty" db:"substitution_to"`
	SubstitutionReason     *string  `json:"substitution_reason,omitempty" db:"substitution_reason"`
	SubstitutionConfidence *float64 `json:"substitution_confidence,omitempty" db:"substitution_confidence"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TransactionItem is one purchased line, owned by exactly one canonical
// transaction. Prices are stored as received from the payload, never
// recomputed.
type TransactionItem struct {
	ID            string `json:"id" db:"id"`
	CanonicalTxID string `json:"canonical_tx_id" db:"canonical_tx_id"`
	LineSeq       int    `json:"line_seq" db:"line_seq"`

	BrandName   *string `json:"brand_name,omitempty" db:"brand_name"`
	ProductName *string `json:"product_name,omitempty" db:"product_name"`
	Category    *string `json:"category,omitempty" db:"category"`

	Quantity   int      `json:"quantity" db:"quantity"`
	Unit       *string  `json:"unit,omitempty" db:"unit"`
	UnitPrice  *float64 `json:"unit_price,omitempty" db:"unit_price"`
	TotalPrice *float64 `json:"total_price,omitempty" db:"total_price"`

	IsUnbranded     bool     `json:"is_unbranded" db:"is_unbranded"`
	DetectionMethod *string  `json:"detection_method,omitempty" db:"detection_method"`
	Confidence      *float64 `json:"confidence,omitempty" db:"confidence"`
}

// SubstitutionEvent is derived during a run and folded into the canonical
// transaction; it is not persisted on its own.
type SubstitutionEvent struct {
	Occurred   bool     `json:"occurred"`
	From       *string  `json:"from,omitempty"`
	To         *string  `json:"to,omitempty"`
	Reason     string   `json:"reason"`
	Confidence *float64 `json:"confidence,omitempty"`
}
