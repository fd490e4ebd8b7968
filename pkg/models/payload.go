package models

import (
	"time"
)

// UnspecifiedTransactionID is the sentinel used when no transaction id could
// be extracted from a payload. Records carrying it are never merged.
const UnspecifiedTransactionID = "unspecified"

// RawPayload is one ingested point-of-sale file. Immutable after ingestion.
type RawPayload struct {
	ID            string    `json:"id" db:"id"`
	FilePath      string    `json:"file_path" db:"file_path"`
	DeviceID      *string   `json:"device_id,omitempty" db:"device_id"`
	StoreID       *string   `json:"store_id,omitempty" db:"store_id"`
	RawText       string    `json:"raw_text" db:"raw_text"`
	FileTimestamp time.Time `json:"file_timestamp" db:"file_timestamp"`
	IngestedAt    time.Time `json:"ingested_at" db:"ingested_at"`
}

// ParsedPayload is the typed projection of a RawPayload. It only exists for
// the duration of a pipeline run.
type ParsedPayload struct {
	Raw *RawPayload

	// TransactionID is best-effort extracted and falls back to the
	// UnspecifiedTransactionID sentinel.
	TransactionID string
	// DedupKey equals TransactionID unless it is the sentinel, in which case
	// it is a synthetic per-record key so the record never merges.
	DedupKey      string
	InteractionID *string
	SessionID     *string

	HasItems    bool
	ItemCount   int
	PayloadSize int

	// IngestionOrder is the position of the payload in the run's input set.
	// It is the final ranking tie-breaker.
	IngestionOrder int

	StoreID     *string
	DeviceID    *string
	Timestamp   *time.Time
	TotalAmount *float64

	Transcript    *string
	PaymentMethod *string
	TimeOfDay     *string
	DayType       *string

	AgeBracket *string
	Gender     *string
	Role       *string

	// Document is the decoded payload body, retained for item extraction.
	Document map[string]any
}

// EffectiveStoreID prefers the store id extracted from the payload body and
// falls back to the file metadata.
func (p *ParsedPayload) EffectiveStoreID() *string {
	if p.StoreID != nil {
		return p.StoreID
	}
	if p.Raw != nil {
		return p.Raw.StoreID
	}
	return nil
}

// EffectiveDeviceID prefers the device id extracted from the payload body and
// falls back to the file metadata.
func (p *ParsedPayload) EffectiveDeviceID() *string {
	if p.DeviceID != nil {
		return p.DeviceID
	}
	if p.Raw != nil {
		return p.Raw.DeviceID
	}
	return nil
}
