package pipelinerun

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/scout-edge/canon/pkg/database"
	"github.com/scout-edge/canon/pkg/models"
	"github.com/scout-edge/canon/pkg/tracing"
)

// Repository persists pipeline run summaries.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new pipeline run repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new run in the running state and returns it.
func (r *Repository) Create(ctx context.Context) (*models.PipelineRun, error) {
	ctx, span := tracing.StartSpan(ctx, "pipelinerun.Repository.Create")
	defer span.End()

	run := &models.PipelineRun{
		ID:        uuid.New().String(),
		Status:    models.RunStatusRunning,
		Stage:     models.StageLoading,
		StartedAt: time.Now().UTC(),
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("pipeline_runs")
	ib.Cols("id", "status", "stage", "started_at")
	ib.Values(run.ID, run.Status, run.Stage, run.StartedAt)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create pipeline run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create pipeline run")
	}
	return run, nil
}

// UpdateStage records the stage a run has entered.
func (r *Repository) UpdateStage(ctx context.Context, runID string, stage models.RunStage) error {
	ctx, span := tracing.StartSpan(ctx, "pipelinerun.Repository.UpdateStage")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("pipeline_runs")
	ub.Set(ub.Assign("stage", stage))
	ub.Where(ub.Equal("id", runID))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": runID, "stage": stage}).Error("Failed to update run stage")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update run stage")
	}
	return nil
}

// Finish writes the terminal state and counters of a run.
func (r *Repository) Finish(ctx context.Context, run *models.PipelineRun) error {
	ctx, span := tracing.StartSpan(ctx, "pipelinerun.Repository.Finish")
	defer span.End()

	now := time.Now().UTC()
	run.FinishedAt = &now

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("pipeline_runs")
	ub.Set(
		ub.Assign("status", run.Status),
		ub.Assign("stage", run.Stage),
		ub.Assign("files_considered", run.FilesConsidered),
		ub.Assign("duplicates_removed", run.DuplicatesRemoved),
		ub.Assign("invalid_excluded", run.InvalidExcluded),
		ub.Assign("geometry_excluded", run.GeometryExcluded),
		ub.Assign("transactions_committed", run.TransactionsCommitted),
		ub.Assign("items_extracted", run.ItemsExtracted),
		ub.Assign("substitutions_found", run.SubstitutionsFound),
		ub.Assign("basket_mismatches", run.BasketMismatches),
		ub.Assign("avg_quality_score", run.AvgQualityScore),
		ub.Assign("error", run.Error),
		ub.Assign("finished_at", run.FinishedAt),
	)
	ub.Where(ub.Equal("id", run.ID))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": run.ID}).Error("Failed to finish pipeline run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to finish pipeline run")
	}
	return nil
}

// Get returns one run by id.
func (r *Repository) Get(ctx context.Context, runID string) (*models.PipelineRun, error) {
	ctx, span := tracing.StartSpan(ctx, "pipelinerun.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(runColumns...)
	sb.From("pipeline_runs")
	sb.Where(sb.Equal("id", runID))
	sb.Limit(1)

	query, args := sb.Build()
	var run models.PipelineRun
	if err := r.db.GetContext(ctx, &run, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, "run not found")
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": runID}).Error("Failed to get pipeline run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get pipeline run")
	}
	return &run, nil
}

// List returns a page of runs, newest first.
func (r *Repository) List(ctx context.Context, page, pageSize int) (*models.PipelineRunListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "pipelinerun.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("pipeline_runs")
	countQuery, countArgs := countSb.Build()

	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count pipeline runs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list pipeline runs")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(runColumns...)
	sb.From("pipeline_runs")
	sb.OrderBy("started_at DESC")
	sb.Offset((page - 1) * pageSize)
	sb.Limit(pageSize)

	query, args := sb.Build()
	var runs []models.PipelineRun
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list pipeline runs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list pipeline runs")
	}

	return &models.PipelineRunListResponse{
		Items:      runs,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

var runColumns = []string{
	"id", "status", "stage",
	"files_considered", "duplicates_removed", "invalid_excluded", "geometry_excluded",
	"transactions_committed", "items_extracted", "substitutions_found", "basket_mismatches",
	"avg_quality_score", "error", "started_at", "finished_at",
}
