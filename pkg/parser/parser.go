// Package parser turns raw payload files into typed records. Field-level
// absence propagates as nil; only a structurally invalid document fails.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/scout-edge/canon/pkg/extractor"
	"github.com/scout-edge/canon/pkg/models"
)

// ErrStructural marks payloads that cannot be interpreted at all. Callers
// exclude these from ranking and report them as invalid.
var ErrStructural = errors.New("structural parse failure")

// envelopeKeys are the top-level fields that identify a payload as a
// point-of-sale document. A document with none of them has no envelope.
var envelopeKeys = []string{
	"transactionId",
	"transaction_id",
	"transaction",
	"items",
	"storeId",
	"store_id",
	"deviceId",
	"device_id",
	"totals",
}

// Parser extracts typed fields from raw payload text.
type Parser struct {
	ext *extractor.Extractor
}

// New creates a new Parser
func New() *Parser {
	return &Parser{ext: extractor.New()}
}

// Parse converts one raw payload into a ParsedPayload. The returned error is
// always ErrStructural-wrapped; individual missing fields never fail.
func (p *Parser) Parse(raw *models.RawPayload, ingestionOrder int) (*models.ParsedPayload, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw.RawText), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStructural, err)
	}

	if !hasEnvelope(doc) {
		return nil, fmt.Errorf("%w: no payload envelope fields present", ErrStructural)
	}

	parsed := &models.ParsedPayload{
		Raw:            raw,
		Document:       doc,
		PayloadSize:    len(raw.RawText),
		IngestionOrder: ingestionOrder,
	}

	parsed.TransactionID = p.transactionID(doc)
	if parsed.TransactionID == models.UnspecifiedTransactionID {
		// Synthetic per-record key so the record is its own dedup partition.
		// Derived from the raw payload id to keep runs reproducible.
		parsed.DedupKey = models.UnspecifiedTransactionID + ":" + raw.ID
	} else {
		parsed.DedupKey = parsed.TransactionID
	}

	parsed.InteractionID = p.ext.ExtractFirstString(doc, "interactionId", "interaction_id")
	parsed.SessionID = p.ext.ExtractFirstString(doc, "sessionId", "session_id")

	items := p.ext.ExtractArray(doc, "items")
	parsed.ItemCount = len(items)
	parsed.HasItems = len(items) > 0

	parsed.StoreID = p.ext.ExtractFirstString(doc, "storeId", "store_id")
	parsed.DeviceID = p.ext.ExtractFirstString(doc, "deviceId", "device_id")
	parsed.Timestamp = p.ext.ExtractTime(doc, "timestamp")
	if parsed.Timestamp == nil {
		parsed.Timestamp = p.ext.ExtractTime(doc, "transactionTimestamp")
	}

	parsed.TotalAmount = p.ext.ExtractFloat(doc, "totals.totalAmount")
	if parsed.TotalAmount == nil {
		parsed.TotalAmount = p.ext.ExtractFloat(doc, "total_amount")
	}
	if parsed.TotalAmount == nil {
		parsed.TotalAmount = p.ext.ExtractFloat(doc, "amount")
	}

	parsed.Transcript = p.ext.ExtractFirstString(doc,
		"transactionContext.audioTranscript",
		"transcript",
		"audio_transcript",
	)
	parsed.PaymentMethod = p.ext.ExtractFirstString(doc, "transactionContext.paymentMethod", "payment_method")
	parsed.TimeOfDay = p.ext.ExtractFirstString(doc, "transactionContext.timeOfDay", "time_of_day")
	parsed.DayType = p.ext.ExtractFirstString(doc, "transactionContext.dayType", "day_type")

	parsed.AgeBracket = p.ext.ExtractFirstString(doc, "consumer.ageBracket", "age_bracket")
	parsed.Gender = p.ext.ExtractFirstString(doc, "consumer.gender", "gender")
	parsed.Role = p.ext.ExtractFirstString(doc, "consumer.role", "role")

	return parsed, nil
}

// transactionID resolves the transaction id by priority:
// transactionId, then transaction_id, then nested transaction.id, then the
// sentinel.
func (p *Parser) transactionID(doc map[string]any) string {
	id := p.ext.ExtractFirstString(doc, "transactionId", "transaction_id", "transaction.id")
	if id == nil {
		return models.UnspecifiedTransactionID
	}
	if strings.EqualFold(*id, models.UnspecifiedTransactionID) {
		return models.UnspecifiedTransactionID
	}
	return *id
}

func hasEnvelope(doc map[string]any) bool {
	for _, key := range envelopeKeys {
		if _, ok := doc[key]; ok {
			return true
		}
	}
	return false
}
