package dedup

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scout-edge/canon/pkg/models"
)

func payload(id, dedupKey string, opts ...func(*models.ParsedPayload)) *models.ParsedPayload {
	p := &models.ParsedPayload{
		Raw: &models.RawPayload{
			ID:            id,
			FilePath:      id + ".json",
			FileTimestamp: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		},
		DedupKey:    dedupKey,
		PayloadSize: 500,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func withItems(count int) func(*models.ParsedPayload) {
	return func(p *models.ParsedPayload) {
		p.HasItems = count > 0
		p.ItemCount = count
	}
}

func withSize(size int) func(*models.ParsedPayload) {
	return func(p *models.ParsedPayload) { p.PayloadSize = size }
}

func withOrder(order int) func(*models.ParsedPayload) {
	return func(p *models.ParsedPayload) { p.IngestionOrder = order }
}

func withFileTime(t time.Time) func(*models.ParsedPayload) {
	return func(p *models.ParsedPayload) { p.Raw.FileTimestamp = t }
}

func withStore(id string) func(*models.ParsedPayload) {
	return func(p *models.ParsedPayload) { p.StoreID = &id }
}

func TestDeduplicate(t *testing.T) {
	engine := NewEngine(Config{
		DenylistedStoreIDs: []string{"108"},
		MinPayloadBytes:    50,
	})

	t.Run("should prefer the payload with items over a larger one without", func(t *testing.T) {
		a := payload("a", "tx-1", withItems(3), withSize(200), withOrder(0))
		b := payload("b", "tx-1", withItems(0), withSize(900), withOrder(1))

		winners, stats := engine.Deduplicate([]*models.ParsedPayload{b, a})

		require.Len(t, winners, 1)
		assert.Equal(t, "a", winners[0].Raw.ID)
		assert.Equal(t, 1, stats.DuplicatesRemoved)
		assert.Equal(t, 2, stats.TotalConsidered)
	})

	t.Run("should break item ties by item count then payload size", func(t *testing.T) {
		a := payload("a", "tx-2", withItems(2), withSize(400), withOrder(0))
		b := payload("b", "tx-2", withItems(5), withSize(300), withOrder(1))
		c := payload("c", "tx-2", withItems(5), withSize(600), withOrder(2))

		winners, _ := engine.Deduplicate([]*models.ParsedPayload{a, b, c})

		require.Len(t, winners, 1)
		assert.Equal(t, "c", winners[0].Raw.ID)
	})

	t.Run("should break remaining ties by file timestamp then ingestion order", func(t *testing.T) {
		older := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
		newer := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

		a := payload("a", "tx-3", withItems(1), withFileTime(older), withOrder(0))
		b := payload("b", "tx-3", withItems(1), withFileTime(newer), withOrder(1))

		winners, _ := engine.Deduplicate([]*models.ParsedPayload{a, b})
		require.Len(t, winners, 1)
		assert.Equal(t, "b", winners[0].Raw.ID)

		c := payload("c", "tx-4", withItems(1), withFileTime(older), withOrder(5))
		d := payload("d", "tx-4", withItems(1), withFileTime(older), withOrder(2))

		winners, _ = engine.Deduplicate([]*models.ParsedPayload{c, d})
		require.Len(t, winners, 1)
		assert.Equal(t, "d", winners[0].Raw.ID)
	})

	t.Run("should never merge sentinel records", func(t *testing.T) {
		var payloads []*models.ParsedPayload
		for i, id := range []string{"a", "b", "c", "d", "e"} {
			payloads = append(payloads, payload(id, "unspecified:"+id, withItems(1), withOrder(i)))
		}

		winners, stats := engine.Deduplicate(payloads)

		assert.Len(t, winners, 5)
		assert.Zero(t, stats.DuplicatesRemoved)
	})

	t.Run("should exclude denylisted stores", func(t *testing.T) {
		a := payload("a", "tx-5", withItems(1), withStore("108"), withOrder(0))
		b := payload("b", "tx-6", withItems(1), withStore("205"), withOrder(1))

		winners, stats := engine.Deduplicate([]*models.ParsedPayload{a, b})

		require.Len(t, winners, 1)
		assert.Equal(t, "b", winners[0].Raw.ID)
		assert.Equal(t, 1, stats.InvalidExcluded)
	})

	t.Run("should exclude denylisted stores identified by file metadata", func(t *testing.T) {
		storeID := "108"
		a := payload("a", "tx-7", withItems(1), withOrder(0))
		a.Raw.StoreID = &storeID

		winners, stats := engine.Deduplicate([]*models.ParsedPayload{a})

		assert.Empty(t, winners)
		assert.Equal(t, 1, stats.InvalidExcluded)
	})

	t.Run("should exclude undersized payloads", func(t *testing.T) {
		a := payload("a", "tx-8", withItems(1), withSize(20), withOrder(0))

		winners, stats := engine.Deduplicate([]*models.ParsedPayload{a})

		assert.Empty(t, winners)
		assert.Equal(t, 1, stats.InvalidExcluded)
	})

	t.Run("should return winners in ingestion order", func(t *testing.T) {
		a := payload("a", "tx-10", withItems(1), withOrder(9))
		b := payload("b", "tx-11", withItems(1), withOrder(2))
		c := payload("c", "tx-12", withItems(1), withOrder(5))

		winners, _ := engine.Deduplicate([]*models.ParsedPayload{a, b, c})

		require.Len(t, winners, 3)
		var ids []string
		for _, w := range winners {
			ids = append(ids, w.Raw.ID)
		}
		assert.Equal(t, "b,c,a", strings.Join(ids, ","))
	})
}
