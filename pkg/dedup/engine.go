// Package dedup selects exactly one winning payload per deduplication key.
package dedup

import (
	"sort"

	"github.com/scout-edge/canon/pkg/models"
)

// Config holds the exclusion rules applied before ranking.
type Config struct {
	// DenylistedStoreIDs are store ids whose payloads are excluded outright.
	DenylistedStoreIDs []string
	// MinPayloadBytes excludes payloads below this raw size.
	MinPayloadBytes int
}

// Stats reports aggregate counts from one deduplication pass.
type Stats struct {
	TotalConsidered   int
	DuplicatesRemoved int
	InvalidExcluded   int
}

// Engine partitions parsed payloads by dedup key and ranks each partition.
type Engine struct {
	config   Config
	denylist map[string]struct{}
}

// NewEngine creates a new deduplication engine
func NewEngine(config Config) *Engine {
	denylist := make(map[string]struct{}, len(config.DenylistedStoreIDs))
	for _, id := range config.DenylistedStoreIDs {
		denylist[id] = struct{}{}
	}
	return &Engine{config: config, denylist: denylist}
}

// Deduplicate applies exclusions, partitions the payloads by dedup key, and
// returns the single ranked-first payload of each partition. Winners are
// returned in ingestion order so output is reproducible.
func (e *Engine) Deduplicate(payloads []*models.ParsedPayload) ([]*models.ParsedPayload, Stats) {
	stats := Stats{TotalConsidered: len(payloads)}

	partitions := make(map[string][]*models.ParsedPayload)
	var keys []string
	for _, p := range payloads {
		if e.isExcluded(p) {
			stats.InvalidExcluded++
			continue
		}
		if _, ok := partitions[p.DedupKey]; !ok {
			keys = append(keys, p.DedupKey)
		}
		partitions[p.DedupKey] = append(partitions[p.DedupKey], p)
	}

	winners := make([]*models.ParsedPayload, 0, len(partitions))
	for _, key := range keys {
		group := partitions[key]
		rank(group)
		winners = append(winners, group[0])
		stats.DuplicatesRemoved += len(group) - 1
	}

	sort.SliceStable(winners, func(i, j int) bool {
		return winners[i].IngestionOrder < winners[j].IngestionOrder
	})

	return winners, stats
}

// isExcluded reports whether a payload fails the pre-ranking exclusion rules.
func (e *Engine) isExcluded(p *models.ParsedPayload) bool {
	if storeID := p.EffectiveStoreID(); storeID != nil {
		if _, denied := e.denylist[*storeID]; denied {
			return true
		}
	}
	return p.PayloadSize < e.config.MinPayloadBytes
}

// rank sorts a partition best-first by the lexicographic ranking tuple:
// has_items desc, item_count desc, payload_size desc, file_timestamp desc,
// ingestion order asc. The final tie-breaker guarantees a total order.
func rank(group []*models.ParsedPayload) {
	sort.SliceStable(group, func(i, j int) bool {
		a, b := group[i], group[j]

		if a.HasItems != b.HasItems {
			return a.HasItems
		}
		if a.ItemCount != b.ItemCount {
			return a.ItemCount > b.ItemCount
		}
		if a.PayloadSize != b.PayloadSize {
			return a.PayloadSize > b.PayloadSize
		}
		if !a.Raw.FileTimestamp.Equal(b.Raw.FileTimestamp) {
			return a.Raw.FileTimestamp.After(b.Raw.FileTimestamp)
		}
		return a.IngestionOrder < b.IngestionOrder
	})
}
