// Package quality computes the 0-100 completeness score for canonical
// transactions from a weighted presence checklist.
package quality

import (
	"math"

	"github.com/scout-edge/canon/pkg/models"
)

// Weights is the point value each present field contributes. Scores are only
// comparable across runs while the table is stable, so it lives in
// configuration rather than code.
type Weights struct {
	TransactionID int
	TotalAmount   int
	Timestamp     int
	Municipality  int
	DeviceID      int
	StoreID       int
	Transcript    int
}

// DefaultWeights returns the reference weight table. The values sum to 100.
func DefaultWeights() Weights {
	return Weights{
		TransactionID: 20,
		TotalAmount:   20,
		Timestamp:     15,
		Municipality:  15,
		DeviceID:      10,
		StoreID:       10,
		Transcript:    10,
	}
}

// Scorer computes quality scores.
type Scorer struct {
	weights Weights
}

// NewScorer creates a new quality scorer
func NewScorer(weights Weights) *Scorer {
	return &Scorer{weights: weights}
}

// Score applies the weighted checklist to a canonical transaction. A field
// scores when it is present; a sentinel transaction id or a negative amount
// does not count.
func (s *Scorer) Score(tx *models.CanonicalTransaction) int {
	score := 0

	if tx.TransactionID != "" && tx.TransactionID != models.UnspecifiedTransactionID {
		score += s.weights.TransactionID
	}
	if tx.TotalAmount != nil && *tx.TotalAmount >= 0 {
		score += s.weights.TotalAmount
	}
	if tx.TxTimestamp != nil {
		score += s.weights.Timestamp
	}
	if tx.Municipality != "" {
		score += s.weights.Municipality
	}
	if tx.DeviceID != nil && *tx.DeviceID != "" {
		score += s.weights.DeviceID
	}
	if tx.StoreID != nil && *tx.StoreID != "" {
		score += s.weights.StoreID
	}
	if tx.Transcript != nil && *tx.Transcript != "" {
		score += s.weights.Transcript
	}

	if score > 100 {
		score = 100
	}
	return score
}

// basketTolerance is the relative difference allowed between the summed item
// prices and the transaction total before the soft check flags a mismatch.
const basketTolerance = 0.01

// BasketMismatch reports whether the item totals disagree with the
// transaction total. The check is advisory: mismatches are reported, never
// corrected. It returns false when there is not enough data to compare.
func BasketMismatch(tx *models.CanonicalTransaction, items []models.TransactionItem) bool {
	if tx.TotalAmount == nil {
		return false
	}

	sum := 0.0
	priced := 0
	for _, item := range items {
		if item.TotalPrice != nil {
			sum += *item.TotalPrice
			priced++
		}
	}
	if priced == 0 || priced != len(items) {
		// Partial price coverage cannot prove a mismatch.
		return false
	}

	diff := math.Abs(sum - *tx.TotalAmount)
	if *tx.TotalAmount == 0 {
		return diff > basketTolerance
	}
	return diff/math.Abs(*tx.TotalAmount) > basketTolerance
}
