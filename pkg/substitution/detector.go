// Package substitution detects mismatches between the brand a customer asked
// for and the brand actually purchased.
package substitution

import (
	"sort"
	"strings"

	"github.com/scout-edge/canon/pkg/models"
	"github.com/scout-edge/canon/pkg/normalizers"
)

// Reason classifications, lowest-priority default last.
const (
	ReasonStockout   = "stockout"
	ReasonSuggestion = "suggestion"
	ReasonUnknown    = "unknown"
)

// stockoutPhrases signal the requested brand was unavailable. Includes the
// Tagalog phrasing heard in sari-sari store transcripts.
var stockoutPhrases = []string{
	"out of stock",
	"walang stock",
	"wala na",
	"ubos na",
	"ubos",
	"sold out",
}

// suggestionPhrases signal the seller steered the customer to an alternative.
var suggestionPhrases = []string{
	"na lang",
	"instead",
	"try this",
	"suggest",
	"alternative",
	"pwede ito",
}

// Config holds the confidence step function. The thresholds are transcript
// lengths in characters; longer transcripts give the brand-mention signal
// more context. This is a coarse heuristic, not a calibrated probability.
type Config struct {
	ShortThreshold int
	LongThreshold  int
	LowConfidence  float64
	MidConfidence  float64
	HighConfidence float64
}

// DefaultConfig returns the reference confidence step function.
func DefaultConfig() Config {
	return Config{
		ShortThreshold: 20,
		LongThreshold:  50,
		LowConfidence:  0.5,
		MidConfidence:  0.7,
		HighConfidence: 0.9,
	}
}

// Detector classifies substitution events for canonical transactions.
type Detector struct {
	config Config
}

// NewDetector creates a new substitution detector
func NewDetector(config Config) *Detector {
	return &Detector{config: config}
}

// Detect compares the requested brand (earliest brand mention in the
// transcript) with the purchased brand (highest-quantity item, ties broken by
// lowest line sequence). When either side is unknown no substitution is
// asserted.
func (d *Detector) Detect(transcript *string, items []models.TransactionItem, knownBrands []string) models.SubstitutionEvent {
	purchased := PrimaryPurchasedBrand(items)
	requested := d.requestedBrand(transcript, items, knownBrands)

	if purchased == nil || requested == nil {
		return models.SubstitutionEvent{Occurred: false, From: requested, To: purchased, Reason: ReasonUnknown}
	}

	if strings.EqualFold(normalizers.NormalizeBrand(*requested), normalizers.NormalizeBrand(*purchased)) {
		return models.SubstitutionEvent{Occurred: false, From: requested, To: purchased, Reason: ReasonUnknown}
	}

	event := models.SubstitutionEvent{
		Occurred: true,
		From:     requested,
		To:       purchased,
		Reason:   d.classifyReason(*transcript),
	}
	confidence := d.confidence(*transcript)
	event.Confidence = &confidence
	return event
}

// PrimaryPurchasedBrand returns the brand of the basket's primary item: the
// highest quantity wins, ties go to the lowest line sequence.
func PrimaryPurchasedBrand(items []models.TransactionItem) *string {
	var primary *models.TransactionItem
	for i := range items {
		item := &items[i]
		if item.BrandName == nil {
			continue
		}
		if primary == nil ||
			item.Quantity > primary.Quantity ||
			(item.Quantity == primary.Quantity && item.LineSeq < primary.LineSeq) {
			primary = item
		}
	}
	if primary == nil {
		return nil
	}
	return primary.BrandName
}

// requestedBrand finds the earliest-mentioned known brand in the transcript.
func (d *Detector) requestedBrand(transcript *string, items []models.TransactionItem, knownBrands []string) *string {
	if transcript == nil || *transcript == "" {
		return nil
	}

	vocabulary := brandVocabulary(items, knownBrands)
	if len(vocabulary) == 0 {
		return nil
	}

	haystack := strings.ToLower(*transcript)

	type mention struct {
		brand string
		index int
	}
	var earliest *mention
	for _, brand := range vocabulary {
		needle := strings.ToLower(brand)
		idx := strings.Index(haystack, needle)
		if idx < 0 {
			continue
		}
		if earliest == nil || idx < earliest.index {
			earliest = &mention{brand: brand, index: idx}
		}
	}

	if earliest == nil {
		return nil
	}
	return &earliest.brand
}

// brandVocabulary merges basket brands with the externally known brand list,
// deduplicated by normalized form. Sorted for deterministic tie behavior.
func brandVocabulary(items []models.TransactionItem, knownBrands []string) []string {
	seen := make(map[string]struct{})
	var vocabulary []string

	add := func(brand string) {
		key := normalizers.NormalizeBrand(brand)
		if key == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		vocabulary = append(vocabulary, brand)
	}

	for _, item := range items {
		if item.BrandName != nil {
			add(*item.BrandName)
		}
	}
	for _, brand := range knownBrands {
		add(brand)
	}

	sort.Strings(vocabulary)
	return vocabulary
}

func (d *Detector) classifyReason(transcript string) string {
	lower := strings.ToLower(transcript)
	for _, phrase := range stockoutPhrases {
		if strings.Contains(lower, phrase) {
			return ReasonStockout
		}
	}
	for _, phrase := range suggestionPhrases {
		if strings.Contains(lower, phrase) {
			return ReasonSuggestion
		}
	}
	return ReasonUnknown
}

func (d *Detector) confidence(transcript string) float64 {
	length := len(transcript)
	switch {
	case length > d.config.LongThreshold:
		return d.config.HighConfidence
	case length > d.config.ShortThreshold:
		return d.config.MidConfidence
	default:
		return d.config.LowConfidence
	}
}
