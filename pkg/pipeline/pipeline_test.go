package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scout-edge/canon/pkg/dedup"
	"github.com/scout-edge/canon/pkg/events"
	"github.com/scout-edge/canon/pkg/geo"
	"github.com/scout-edge/canon/pkg/items"
	"github.com/scout-edge/canon/pkg/logging"
	"github.com/scout-edge/canon/pkg/models"
	"github.com/scout-edge/canon/pkg/parser"
	"github.com/scout-edge/canon/pkg/quality"
	"github.com/scout-edge/canon/pkg/redis"
	"github.com/scout-edge/canon/pkg/substitution"
)

type fakePayloadSource struct {
	payloads []models.RawPayload
}

func (f *fakePayloadSource) Count(_ context.Context) (int, error) {
	return len(f.payloads), nil
}

func (f *fakePayloadSource) ListBatch(_ context.Context, offset, limit int) ([]models.RawPayload, error) {
	if offset >= len(f.payloads) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.payloads) {
		end = len(f.payloads)
	}
	return f.payloads[offset:end], nil
}

type fakeRunStore struct {
	created  int
	finished []*models.PipelineRun
}

func (f *fakeRunStore) Create(_ context.Context) (*models.PipelineRun, error) {
	f.created++
	return &models.PipelineRun{
		ID:        "run-1",
		Status:    models.RunStatusRunning,
		Stage:     models.StageLoading,
		StartedAt: time.Now().UTC(),
	}, nil
}

func (f *fakeRunStore) UpdateStage(_ context.Context, _ string, _ models.RunStage) error {
	return nil
}

func (f *fakeRunStore) Finish(_ context.Context, run *models.PipelineRun) error {
	f.finished = append(f.finished, run)
	return nil
}

type fakeCanonicalWriter struct {
	txs   []models.CanonicalTransaction
	items []models.TransactionItem
	err   error
}

func (f *fakeCanonicalWriter) ReplaceAll(_ context.Context, _ string, txs []models.CanonicalTransaction, items []models.TransactionItem) error {
	if f.err != nil {
		return f.err
	}
	f.txs = txs
	f.items = items
	return nil
}

type fakeBrandCatalog struct {
	brands []string
}

func (f *fakeBrandCatalog) ListBrandNames(_ context.Context) ([]string, error) {
	return f.brands, nil
}

type fakeDirectory struct {
	stores map[string]*models.StoreLocation
}

func (f *fakeDirectory) GetStore(_ context.Context, storeID string) (*models.StoreLocation, error) {
	return f.stores[storeID], nil
}

type heldLocker struct{}

func (heldLocker) Acquire(_ context.Context, _ string, _ time.Duration) (RunLock, error) {
	return nil, redis.ErrLockNotAcquired
}

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func rawPayload(id, text string) models.RawPayload {
	return models.RawPayload{
		ID:            id,
		FilePath:      "device-1/" + id + ".json",
		RawText:       text,
		FileTimestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newTestPipeline(source PayloadSource, runs RunStore, writer CanonicalWriter, locker RunLocker) *Pipeline {
	logger := logging.NewNoop()

	directory := &fakeDirectory{stores: map[string]*models.StoreLocation{
		"205": {
			StoreID:      "205",
			Municipality: strPtr("Quezon City"),
			Province:     strPtr("Metro Manila"),
			Latitude:     floatPtr(14.65),
			Longitude:    floatPtr(121.03),
		},
	}}

	resolver := geo.NewResolver(directory, geo.Bounds{
		MinLatitude:  14.2,
		MaxLatitude:  14.9,
		MinLongitude: 120.9,
		MaxLongitude: 121.2,
	}, logger)

	return New(
		Config{WorkerCount: 2, BatchSize: 2, LockTTL: time.Minute},
		parser.New(),
		dedup.NewEngine(dedup.Config{DenylistedStoreIDs: []string{"108"}, MinPayloadBytes: 20}),
		resolver,
		items.NewExtractor(nil, logger),
		substitution.NewDetector(substitution.DefaultConfig()),
		quality.NewScorer(quality.DefaultWeights()),
		source,
		runs,
		writer,
		&fakeBrandCatalog{brands: []string{"Coke", "Pepsi"}},
		locker,
		events.NewEmitter(nil, logger),
		logger,
	)
}

func TestRun(t *testing.T) {
	t.Run("should canonicalize a mixed payload set end to end", func(t *testing.T) {
		source := &fakePayloadSource{payloads: []models.RawPayload{
			// tx-1 duplicate pair: the itemful payload must win
			rawPayload("p1", `{"transactionId": "tx-1", "storeId": "205", "deviceId": "dev-1",
				"timestamp": "2025-06-01T08:30:00Z",
				"items": [{"brandName": "Pepsi", "quantity": 2, "totalPrice": 30}],
				"totals": {"totalAmount": 30},
				"transactionContext": {"audioTranscript": "wala na po coke, pepsi na lang"}}`),
			rawPayload("p2", `{"transactionId": "tx-1", "storeId": "205", "items": []}`),
			// structurally invalid
			rawPayload("p3", `{"transactionId": `),
			// denylisted store
			rawPayload("p4", `{"transactionId": "tx-2", "storeId": "108", "items": [{"brandName": "Coke"}]}`),
			// unknown store, excluded by the geometry rule
			rawPayload("p5", `{"transactionId": "tx-3", "storeId": "301", "items": [{"brandName": "Coke"}]}`),
		}}
		runs := &fakeRunStore{}
		writer := &fakeCanonicalWriter{}

		pipe := newTestPipeline(source, runs, writer, nil)
		run, err := pipe.Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, models.RunStatusSucceeded, run.Status)
		assert.Equal(t, models.StageDone, run.Stage)
		assert.Equal(t, 5, run.FilesConsidered)
		assert.Equal(t, 1, run.DuplicatesRemoved)
		assert.Equal(t, 2, run.InvalidExcluded) // structural failure + denylisted store
		assert.Equal(t, 1, run.GeometryExcluded)
		assert.Equal(t, 1, run.TransactionsCommitted)
		assert.Equal(t, 1, run.ItemsExtracted)
		assert.Equal(t, 1, run.SubstitutionsFound)

		require.Len(t, writer.txs, 1)
		tx := writer.txs[0]
		assert.Equal(t, "tx-1", tx.TransactionID)
		assert.Equal(t, "Quezon City", tx.Municipality)
		assert.Equal(t, "device-1/p1.json", tx.SourceFile)
		assert.Equal(t, 1, tx.TotalItems)
		assert.True(t, tx.SubstitutionOccurred)
		require.NotNil(t, tx.SubstitutionFrom)
		assert.Equal(t, "Coke", *tx.SubstitutionFrom)
		require.NotNil(t, tx.SubstitutionTo)
		assert.Equal(t, "Pepsi", *tx.SubstitutionTo)
		assert.False(t, tx.BasketMismatch)
		assert.Greater(t, tx.QualityScore, 0)

		require.Len(t, writer.items, 1)
		assert.Equal(t, tx.CanonicalTxID, writer.items[0].CanonicalTxID)

		require.Len(t, runs.finished, 1)
	})

	t.Run("should produce identical canonical ids across runs", func(t *testing.T) {
		source := &fakePayloadSource{payloads: []models.RawPayload{
			rawPayload("p1", `{"transactionId": "tx-1", "storeId": "205", "deviceId": "dev-1",
				"timestamp": "2025-06-01T08:30:00Z",
				"items": [{"brandName": "Pepsi"}], "totals": {"totalAmount": 30}}`),
		}}

		first := &fakeCanonicalWriter{}
		pipe := newTestPipeline(source, &fakeRunStore{}, first, nil)
		_, err := pipe.Run(context.Background())
		require.NoError(t, err)

		second := &fakeCanonicalWriter{}
		pipe = newTestPipeline(source, &fakeRunStore{}, second, nil)
		_, err = pipe.Run(context.Background())
		require.NoError(t, err)

		require.Len(t, first.txs, 1)
		require.Len(t, second.txs, 1)
		assert.Equal(t, first.txs[0].CanonicalTxID, second.txs[0].CanonicalTxID)
	})

	t.Run("should skip the run when the lock is held", func(t *testing.T) {
		runs := &fakeRunStore{}
		pipe := newTestPipeline(&fakePayloadSource{}, runs, &fakeCanonicalWriter{}, heldLocker{})

		_, err := pipe.Run(context.Background())

		assert.ErrorIs(t, err, ErrRunInProgress)
		assert.Zero(t, runs.created)
	})

	t.Run("should fail the run when the commit fails", func(t *testing.T) {
		source := &fakePayloadSource{payloads: []models.RawPayload{
			rawPayload("p1", `{"transactionId": "tx-1", "storeId": "205", "items": [{"brandName": "Coke"}]}`),
		}}
		runs := &fakeRunStore{}
		writer := &fakeCanonicalWriter{err: errors.New("database gone")}

		pipe := newTestPipeline(source, runs, writer, nil)
		run, err := pipe.Run(context.Background())

		require.Error(t, err)
		require.NotNil(t, run)
		assert.Equal(t, models.RunStatusFailed, run.Status)
		assert.Equal(t, models.StageFailed, run.Stage)
		require.NotNil(t, run.Error)
		assert.Contains(t, *run.Error, "database gone")
		require.Len(t, runs.finished, 1)
	})

	t.Run("should succeed on an empty payload set", func(t *testing.T) {
		writer := &fakeCanonicalWriter{}
		pipe := newTestPipeline(&fakePayloadSource{}, &fakeRunStore{}, writer, nil)

		run, err := pipe.Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, models.RunStatusSucceeded, run.Status)
		assert.Zero(t, run.TransactionsCommitted)
		assert.Zero(t, run.AvgQualityScore)
	})
}
