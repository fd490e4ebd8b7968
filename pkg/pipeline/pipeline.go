// Package pipeline orchestrates the batch canonicalization run: load, rank,
// geo-validate, extract items, score substitutions and quality, then commit
// the canonical set atomically.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/scout-edge/canon/pkg/appcontext"
	"github.com/scout-edge/canon/pkg/dedup"
	"github.com/scout-edge/canon/pkg/events"
	"github.com/scout-edge/canon/pkg/fingerprint"
	"github.com/scout-edge/canon/pkg/geo"
	"github.com/scout-edge/canon/pkg/items"
	"github.com/scout-edge/canon/pkg/metrics"
	"github.com/scout-edge/canon/pkg/models"
	"github.com/scout-edge/canon/pkg/parser"
	"github.com/scout-edge/canon/pkg/quality"
	"github.com/scout-edge/canon/pkg/redis"
	"github.com/scout-edge/canon/pkg/substitution"
	"github.com/scout-edge/canon/pkg/tracing"
)

// ErrRunInProgress is returned when another run already holds the run lock.
var ErrRunInProgress = errors.New("a pipeline run is already in progress")

// runLockKey is the shared lock name; one run per deployment at a time.
const runLockKey = "pipeline-run"

// PayloadSource reads the ingested raw payload set.
type PayloadSource interface {
	Count(ctx context.Context) (int, error)
	ListBatch(ctx context.Context, offset, limit int) ([]models.RawPayload, error)
}

// RunStore persists pipeline run summaries.
type RunStore interface {
	Create(ctx context.Context) (*models.PipelineRun, error)
	UpdateStage(ctx context.Context, runID string, stage models.RunStage) error
	Finish(ctx context.Context, run *models.PipelineRun) error
}

// CanonicalWriter swaps the canonical output set in one transaction.
type CanonicalWriter interface {
	ReplaceAll(ctx context.Context, runID string, txs []models.CanonicalTransaction, items []models.TransactionItem) error
}

// BrandCatalog provides the transcript matching vocabulary.
type BrandCatalog interface {
	ListBrandNames(ctx context.Context) ([]string, error)
}

// RunLock is a held run lock.
type RunLock interface {
	Release(ctx context.Context) error
}

// RunLocker guards against overlapping runs.
type RunLocker interface {
	// Acquire returns redis.ErrLockNotAcquired-compatible errors when the
	// lock is already held.
	Acquire(ctx context.Context, key string, ttl time.Duration) (RunLock, error)
}

// Config holds the orchestrator tunables.
type Config struct {
	WorkerCount int
	BatchSize   int
	LockTTL     time.Duration
}

// Pipeline runs the canonicalization state machine.
type Pipeline struct {
	config       Config
	parser       *parser.Parser
	dedupEngine  *dedup.Engine
	geoResolver  *geo.Resolver
	itemsExtract *items.Extractor
	detector     *substitution.Detector
	scorer       *quality.Scorer
	payloads     PayloadSource
	runs         RunStore
	canonical    CanonicalWriter
	brands       BrandCatalog
	locker       RunLocker
	emitter      *events.Emitter
	logger       ectologger.Logger
}

// New creates a new Pipeline. locker may be nil, in which case runs are not
// guarded against overlap (single-process deployments and tests).
func New(
	config Config,
	p *parser.Parser,
	dedupEngine *dedup.Engine,
	geoResolver *geo.Resolver,
	itemsExtract *items.Extractor,
	detector *substitution.Detector,
	scorer *quality.Scorer,
	payloads PayloadSource,
	runs RunStore,
	canonical CanonicalWriter,
	brands BrandCatalog,
	locker RunLocker,
	emitter *events.Emitter,
	logger ectologger.Logger,
) *Pipeline {
	if config.WorkerCount < 1 {
		config.WorkerCount = 4
	}
	if config.BatchSize < 1 {
		config.BatchSize = 500
	}
	return &Pipeline{
		config:       config,
		parser:       p,
		dedupEngine:  dedupEngine,
		geoResolver:  geoResolver,
		itemsExtract: itemsExtract,
		detector:     detector,
		scorer:       scorer,
		payloads:     payloads,
		runs:         runs,
		canonical:    canonical,
		brands:       brands,
		locker:       locker,
		emitter:      emitter,
		logger:       logger,
	}
}

// resolvedPayload pairs a dedup winner with its validated store geography.
type resolvedPayload struct {
	payload  *models.ParsedPayload
	location *models.StoreLocation
}

// Run executes one full pipeline run and returns its persisted summary.
// Returns ErrRunInProgress without creating a run when the lock is held.
func (p *Pipeline) Run(ctx context.Context) (*models.PipelineRun, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Pipeline.Run")
	defer span.End()

	if p.locker != nil {
		lock, err := p.locker.Acquire(ctx, runLockKey, p.config.LockTTL)
		if err != nil {
			if errors.Is(err, redis.ErrLockNotAcquired) {
				p.logger.WithContext(ctx).Info("Run lock held elsewhere, skipping run")
				return nil, ErrRunInProgress
			}
			return nil, err
		}
		defer func() {
			if releaseErr := lock.Release(ctx); releaseErr != nil {
				p.logger.WithContext(ctx).WithError(releaseErr).Warn("Failed to release run lock")
			}
		}()
	}

	run, err := p.runs.Create(ctx)
	if err != nil {
		return nil, err
	}
	ctx = appcontext.SetRunID(ctx, run.ID)
	started := time.Now()

	p.logger.WithContext(ctx).WithFields(map[string]any{"run_id": run.ID}).Info("Pipeline run started")
	p.emitter.EmitRunStarted(ctx, run)

	if err := p.execute(ctx, run); err != nil {
		return p.fail(ctx, run, started, err)
	}

	run.Status = models.RunStatusSucceeded
	run.Stage = models.StageDone
	if finishErr := p.runs.Finish(ctx, run); finishErr != nil {
		p.logger.WithContext(ctx).WithError(finishErr).Error("Failed to persist run summary")
	}
	p.emitter.EmitRunCompleted(ctx, run)

	metrics.RecordRun(string(models.RunStatusSucceeded), time.Since(started).Seconds())
	p.recordRunGauges(run)
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":                 run.ID,
		"transactions_committed": run.TransactionsCommitted,
		"duplicates_removed":     run.DuplicatesRemoved,
		"avg_quality_score":      run.AvgQualityScore,
	}).Info("Pipeline run completed")

	return run, nil
}

// execute walks the stage machine over a fresh run.
func (p *Pipeline) execute(ctx context.Context, run *models.PipelineRun) error {
	var parsed []*models.ParsedPayload
	err := p.stage(ctx, run, models.StageLoading, func(ctx context.Context) error {
		var loadErr error
		parsed, loadErr = p.load(ctx, run)
		return loadErr
	})
	if err != nil {
		return err
	}

	var winners []*models.ParsedPayload
	err = p.stage(ctx, run, models.StageRanking, func(ctx context.Context) error {
		var stats dedup.Stats
		winners, stats = p.dedupEngine.Deduplicate(parsed)
		run.DuplicatesRemoved = stats.DuplicatesRemoved
		run.InvalidExcluded += stats.InvalidExcluded
		return nil
	})
	if err != nil {
		return err
	}

	var resolved []resolvedPayload
	err = p.stage(ctx, run, models.StageGeoValidating, func(ctx context.Context) error {
		var geoErr error
		resolved, geoErr = p.validateGeometry(ctx, run, winners)
		return geoErr
	})
	if err != nil {
		return err
	}

	var txs []models.CanonicalTransaction
	var lineItems []models.TransactionItem
	itemsByTx := make(map[string][]models.TransactionItem)
	err = p.stage(ctx, run, models.StageItemExtracting, func(ctx context.Context) error {
		txs, lineItems, itemsByTx = p.buildTransactions(ctx, run, resolved)
		return nil
	})
	if err != nil {
		return err
	}

	err = p.stage(ctx, run, models.StageSubstitutionScoring, func(ctx context.Context) error {
		return p.scoreSubstitutions(ctx, run, txs, itemsByTx)
	})
	if err != nil {
		return err
	}

	err = p.stage(ctx, run, models.StageQualityScoring, func(ctx context.Context) error {
		p.scoreQuality(run, txs, itemsByTx)
		return nil
	})
	if err != nil {
		return err
	}

	return p.stage(ctx, run, models.StageCommitting, func(ctx context.Context) error {
		if commitErr := p.canonical.ReplaceAll(ctx, run.ID, txs, lineItems); commitErr != nil {
			return commitErr
		}
		run.TransactionsCommitted = len(txs)
		metrics.TransactionsCommitted.Add(float64(len(txs)))
		return nil
	})
}

// stage advances the run to the given stage, executes it, and records timing.
func (p *Pipeline) stage(ctx context.Context, run *models.PipelineRun, stage models.RunStage, fn func(ctx context.Context) error) error {
	run.Stage = stage
	ctx = appcontext.SetStage(ctx, string(stage))
	ctx, span := tracing.StartSpan(ctx, "pipeline.stage."+string(stage))
	defer span.End()

	if err := p.runs.UpdateStage(ctx, run.ID, stage); err != nil {
		return err
	}
	p.logger.WithContext(ctx).WithFields(map[string]any{"run_id": run.ID, "stage": stage}).Debug("Entering stage")

	started := time.Now()
	err := fn(ctx)
	metrics.RecordStage(string(stage), time.Since(started).Seconds())
	if err != nil {
		return fmt.Errorf("stage %s: %w", stage, err)
	}
	return nil
}

// load pages through the raw payload set and parses it with a worker pool.
// Structurally invalid payloads are counted and dropped, never fatal.
func (p *Pipeline) load(ctx context.Context, run *models.PipelineRun) ([]*models.ParsedPayload, error) {
	total, err := p.payloads.Count(ctx)
	if err != nil {
		return nil, err
	}
	run.FilesConsidered = total

	var raws []models.RawPayload
	for offset := 0; offset < total; offset += p.config.BatchSize {
		batch, err := p.payloads.ListBatch(ctx, offset, p.config.BatchSize)
		if err != nil {
			return nil, err
		}
		raws = append(raws, batch...)
		if len(batch) < p.config.BatchSize {
			break
		}
	}

	type job struct {
		raw   models.RawPayload
		order int
	}
	jobs := make(chan job)

	var mu sync.Mutex
	parsed := make([]*models.ParsedPayload, 0, len(raws))
	structural := 0

	var wg sync.WaitGroup
	for w := 0; w < p.config.WorkerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				raw := j.raw
				result, parseErr := p.parser.Parse(&raw, j.order)
				mu.Lock()
				if parseErr != nil {
					structural++
					p.logger.WithContext(ctx).WithError(parseErr).WithFields(map[string]any{
						"file_path": raw.FilePath,
					}).Debug("Excluding structurally invalid payload")
				} else {
					parsed = append(parsed, result)
				}
				mu.Unlock()
			}
		}()
	}

	for i := range raws {
		jobs <- job{raw: raws[i], order: i}
	}
	close(jobs)
	wg.Wait()

	sort.Slice(parsed, func(i, j int) bool {
		return parsed[i].IngestionOrder < parsed[j].IngestionOrder
	})

	run.InvalidExcluded = structural
	return parsed, nil
}

// validateGeometry applies the zero-trust geometry rule. Winners without a
// store id or without verifiable geometry are excluded and counted; lookup
// failures fail the run.
func (p *Pipeline) validateGeometry(ctx context.Context, run *models.PipelineRun, winners []*models.ParsedPayload) ([]resolvedPayload, error) {
	resolved := make([]resolvedPayload, 0, len(winners))
	for _, w := range winners {
		storeID := w.EffectiveStoreID()
		if storeID == nil {
			run.GeometryExcluded++
			p.logger.WithContext(ctx).WithFields(map[string]any{
				"file_path": w.Raw.FilePath,
			}).Debug("Excluding transaction without a store id")
			continue
		}

		loc, err := p.geoResolver.Resolve(ctx, *storeID)
		if err != nil {
			if errors.Is(err, geo.ErrNoGeometry) {
				run.GeometryExcluded++
				p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
					"store_id": *storeID,
				}).Debug("Excluding transaction with no verifiable geometry")
				continue
			}
			return nil, err
		}
		resolved = append(resolved, resolvedPayload{payload: w, location: loc})
	}
	return resolved, nil
}

// buildTransactions materializes canonical transactions and their line items.
// Canonical ids are content-derived, so a re-run over the same input produces
// the same ids.
func (p *Pipeline) buildTransactions(ctx context.Context, run *models.PipelineRun, resolved []resolvedPayload) ([]models.CanonicalTransaction, []models.TransactionItem, map[string][]models.TransactionItem) {
	txs := make([]models.CanonicalTransaction, 0, len(resolved))
	var allItems []models.TransactionItem
	itemsByTx := make(map[string][]models.TransactionItem)
	seen := make(map[string]struct{})

	for _, rp := range resolved {
		payload := rp.payload
		storeID := payload.EffectiveStoreID()
		deviceID := payload.EffectiveDeviceID()

		canonicalID := fingerprint.CanonicalTxID(storeID, payload.Timestamp, payload.TotalAmount, deviceID)
		if _, dup := seen[canonicalID]; dup {
			run.DuplicatesRemoved++
			p.logger.WithContext(ctx).WithFields(map[string]any{
				"canonical_tx_id": canonicalID,
				"file_path":       payload.Raw.FilePath,
			}).Warn("Canonical id collision, keeping first occurrence")
			continue
		}
		seen[canonicalID] = struct{}{}

		txItems := p.itemsExtract.Extract(ctx, payload)
		for i := range txItems {
			txItems[i].CanonicalTxID = canonicalID
		}

		tx := models.CanonicalTransaction{
			CanonicalTxID: canonicalID,
			RunID:         run.ID,
			TransactionID: payload.TransactionID,
			SourceFile:    payload.Raw.FilePath,
			StoreID:       storeID,
			DeviceID:      deviceID,
			TotalAmount:   payload.TotalAmount,
			TotalItems:    len(txItems),
			TxTimestamp:   payload.Timestamp,

			Region:       rp.location.Region,
			Province:     rp.location.Province,
			Municipality: *rp.location.Municipality,
			Barangay:     rp.location.Barangay,
			Latitude:     rp.location.Latitude,
			Longitude:    rp.location.Longitude,
			GeoPolygon:   rp.location.Polygon,

			AgeBracket: payload.AgeBracket,
			Gender:     payload.Gender,
			Role:       payload.Role,

			PaymentMethod: payload.PaymentMethod,
			TimeOfDay:     payload.TimeOfDay,
			DayType:       payload.DayType,
			Transcript:    payload.Transcript,
		}

		txs = append(txs, tx)
		allItems = append(allItems, txItems...)
		itemsByTx[canonicalID] = txItems
	}

	run.ItemsExtracted = len(allItems)
	return txs, allItems, itemsByTx
}

// scoreSubstitutions classifies substitution events against the shared brand
// vocabulary.
func (p *Pipeline) scoreSubstitutions(ctx context.Context, run *models.PipelineRun, txs []models.CanonicalTransaction, itemsByTx map[string][]models.TransactionItem) error {
	var knownBrands []string
	if p.brands != nil {
		var err error
		knownBrands, err = p.brands.ListBrandNames(ctx)
		if err != nil {
			return err
		}
	}

	for i := range txs {
		tx := &txs[i]
		event := p.detector.Detect(tx.Transcript, itemsByTx[tx.CanonicalTxID], knownBrands)
		tx.SubstitutionOccurred = event.Occurred
		tx.SubstitutionFrom = event.From
		tx.SubstitutionTo = event.To
		tx.SubstitutionConfidence = event.Confidence
		if event.Occurred {
			reason := event.Reason
			tx.SubstitutionReason = &reason
			run.SubstitutionsFound++
		}
	}
	return nil
}

// scoreQuality fills quality scores and the basket mismatch flag, and
// aggregates the run average.
func (p *Pipeline) scoreQuality(run *models.PipelineRun, txs []models.CanonicalTransaction, itemsByTx map[string][]models.TransactionItem) {
	if len(txs) == 0 {
		return
	}

	sum := 0
	for i := range txs {
		tx := &txs[i]
		tx.QualityScore = p.scorer.Score(tx)
		sum += tx.QualityScore

		tx.BasketMismatch = quality.BasketMismatch(tx, itemsByTx[tx.CanonicalTxID])
		if tx.BasketMismatch {
			run.BasketMismatches++
		}
	}
	run.AvgQualityScore = float64(sum) / float64(len(txs))
}

// fail finalizes a run that errored mid-stage.
func (p *Pipeline) fail(ctx context.Context, run *models.PipelineRun, started time.Time, cause error) (*models.PipelineRun, error) {
	msg := cause.Error()
	run.Status = models.RunStatusFailed
	run.Stage = models.StageFailed
	run.Error = &msg

	if finishErr := p.runs.Finish(ctx, run); finishErr != nil {
		p.logger.WithContext(ctx).WithError(finishErr).Error("Failed to persist failed run summary")
	}
	p.emitter.EmitRunFailed(ctx, run, cause)
	metrics.RecordRun(string(models.RunStatusFailed), time.Since(started).Seconds())

	p.logger.WithContext(ctx).WithError(cause).WithFields(map[string]any{"run_id": run.ID}).Error("Pipeline run failed")
	return run, cause
}

func (p *Pipeline) recordRunGauges(run *models.PipelineRun) {
	metrics.PayloadsConsidered.Set(float64(run.FilesConsidered))
	metrics.DuplicatesRemoved.Set(float64(run.DuplicatesRemoved))
	metrics.InvalidExcluded.Set(float64(run.InvalidExcluded))
	metrics.GeometryExcluded.Set(float64(run.GeometryExcluded))
	metrics.SubstitutionsFound.Set(float64(run.SubstitutionsFound))
	metrics.AvgQualityScore.Set(run.AvgQualityScore)
}
