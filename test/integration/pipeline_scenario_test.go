package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scout-edge/canon/internal/repositories/brandtaxonomy"
	"github.com/scout-edge/canon/internal/repositories/canonical"
	"github.com/scout-edge/canon/internal/repositories/pipelinerun"
	"github.com/scout-edge/canon/internal/repositories/rawpayload"
	"github.com/scout-edge/canon/internal/repositories/storedirectory"
	"github.com/scout-edge/canon/pkg/database"
	"github.com/scout-edge/canon/pkg/dedup"
	"github.com/scout-edge/canon/pkg/events"
	"github.com/scout-edge/canon/pkg/geo"
	"github.com/scout-edge/canon/pkg/items"
	"github.com/scout-edge/canon/pkg/logging"
	"github.com/scout-edge/canon/pkg/models"
	"github.com/scout-edge/canon/pkg/parser"
	"github.com/scout-edge/canon/pkg/pipeline"
	"github.com/scout-edge/canon/pkg/quality"
	"github.com/scout-edge/canon/pkg/substitution"
)

// testContext holds shared test context
type testContext struct {
	ctx      context.Context
	db       database.DB
	pipeline *pipeline.Pipeline
	runs     *pipelinerun.Repository
	canon    *canonical.Repository
	payloads *rawpayload.Repository
	sqlDB    *sqlx.DB
}

// setupTestContext connects to the test database named by the DB_* environment
// variables. Tests are skipped when no database is configured.
func setupTestContext(t *testing.T) *testContext {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	host := os.Getenv("DB_HOST")
	if host == "" {
		t.Skip("Database not configured")
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host,
		envOr("DB_PORT", "5432"),
		envOr("DB_USER_NAME", "postgres"),
		os.Getenv("DB_PASSWORD"),
		envOr("DB_NAME", "canon_test"),
	)

	sqlDB, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)

	logger := logging.NewNoop()
	db := database.NewDatabaseInstance(sqlDB, logger)

	storeRepo := storedirectory.NewRepository(db, logger)
	brandRepo := brandtaxonomy.NewRepository(db, logger)
	payloadRepo := rawpayload.NewRepository(db, logger)
	runRepo := pipelinerun.NewRepository(db, logger)
	canonRepo := canonical.NewRepository(db, logger)

	resolver := geo.NewResolver(storeRepo, geo.Bounds{
		MinLatitude:  14.2,
		MaxLatitude:  14.9,
		MinLongitude: 120.9,
		MaxLongitude: 121.2,
	}, logger)

	pipe := pipeline.New(
		pipeline.Config{WorkerCount: 2, BatchSize: 100, LockTTL: time.Minute},
		parser.New(),
		dedup.NewEngine(dedup.Config{DenylistedStoreIDs: []string{"108"}, MinPayloadBytes: 50}),
		resolver,
		items.NewExtractor(brandRepo, logger),
		substitution.NewDetector(substitution.DefaultConfig()),
		quality.NewScorer(quality.DefaultWeights()),
		payloadRepo,
		runRepo,
		canonRepo,
		brandRepo,
		nil,
		events.NewEmitter(nil, logger),
		logger,
	)

	return &testContext{
		ctx:      context.Background(),
		db:       db,
		pipeline: pipe,
		runs:     runRepo,
		canon:    canonRepo,
		payloads: payloadRepo,
		sqlDB:    sqlDB,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (tc *testContext) reset(t *testing.T) {
	for _, table := range []string{"transaction_items", "canonical_transactions", "pipeline_runs", "raw_payloads", "store_directory", "brand_taxonomy"} {
		_, err := tc.sqlDB.Exec("DELETE FROM " + table)
		require.NoError(t, err)
	}
}

func (tc *testContext) seedReferenceData(t *testing.T) {
	_, err := tc.sqlDB.Exec(`
		INSERT INTO store_directory (store_id, municipality, province, region, latitude, longitude)
		VALUES ('205', 'Quezon City', 'Metro Manila', 'NCR', 14.65, 121.03)
	`)
	require.NoError(t, err)

	_, err = tc.sqlDB.Exec(`
		INSERT INTO brand_taxonomy (brand_name, category) VALUES
		('Coke', 'Beverages'),
		('Pepsi', 'Beverages')
	`)
	require.NoError(t, err)
}

func (tc *testContext) seedPayload(t *testing.T, filePath, rawText string) {
	err := tc.payloads.Insert(tc.ctx, &models.RawPayload{
		FilePath:      filePath,
		RawText:       rawText,
		FileTimestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
}

// TestPipelineEndToEnd runs the full pipeline against a seeded database and
// verifies the committed canonical set.
func TestPipelineEndToEnd(t *testing.T) {
	tc := setupTestContext(t)
	defer tc.sqlDB.Close()

	tc.reset(t)
	tc.seedReferenceData(t)

	tc.seedPayload(t, "device-1/a.json", `{
		"transactionId": "tx-1", "storeId": "205", "deviceId": "dev-1",
		"timestamp": "2025-06-01T08:30:00Z",
		"items": [{"brandName": "Pepsi", "quantity": 2, "totalPrice": 30}],
		"totals": {"totalAmount": 30},
		"transactionContext": {"audioTranscript": "wala na po coke, pepsi na lang"}
	}`)
	tc.seedPayload(t, "device-1/b.json", `{
		"transactionId": "tx-1", "storeId": "205", "items": [],
		"padding": "xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx"
	}`)
	tc.seedPayload(t, "device-2/c.json", `{
		"transactionId": "tx-2", "storeId": "999",
		"items": [{"brandName": "Coke", "quantity": 1}]
	}`)

	run, err := tc.pipeline.Run(tc.ctx)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusSucceeded, run.Status)
	assert.Equal(t, 3, run.FilesConsidered)
	assert.Equal(t, 1, run.DuplicatesRemoved)
	assert.Equal(t, 1, run.GeometryExcluded)
	assert.Equal(t, 1, run.TransactionsCommitted)

	count, err := tc.canon.Count(tc.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stored, err := tc.runs.Get(tc.ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSucceeded, stored.Status)
	assert.Equal(t, models.StageDone, stored.Stage)
	require.NotNil(t, stored.FinishedAt)
}

// TestPipelineReplacesCanonicalSet verifies the commit is a full replacement:
// re-running over the same inputs never duplicates rows.
func TestPipelineReplacesCanonicalSet(t *testing.T) {
	tc := setupTestContext(t)
	defer tc.sqlDB.Close()

	tc.reset(t)
	tc.seedReferenceData(t)

	tc.seedPayload(t, "device-1/a.json", `{
		"transactionId": "tx-1", "storeId": "205", "deviceId": "dev-1",
		"timestamp": "2025-06-01T08:30:00Z",
		"items": [{"brandName": "Pepsi", "quantity": 2, "totalPrice": 30}],
		"totals": {"totalAmount": 30}
	}`)

	firstRun, err := tc.pipeline.Run(tc.ctx)
	require.NoError(t, err)
	require.Equal(t, 1, firstRun.TransactionsCommitted)

	secondRun, err := tc.pipeline.Run(tc.ctx)
	require.NoError(t, err)
	require.Equal(t, 1, secondRun.TransactionsCommitted)

	count, err := tc.canon.Count(tc.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
