package rawpayload

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/scout-edge/canon/pkg/database"
	"github.com/scout-edge/canon/pkg/models"
	"github.com/scout-edge/canon/pkg/tracing"
)

// Repository reads the ingested raw payload set. Payloads are immutable;
// this repository never updates or deletes them.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new raw payload repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Count returns the total number of ingested payloads.
func (r *Repository) Count(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "rawpayload.Repository.Count")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("raw_payloads")

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count raw payloads")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count raw payloads")
	}
	return count, nil
}

// ListBatch returns one page of payloads in ingestion order. The stable
// ordering is what makes the ranking tie-breaker reproducible across runs.
func (r *Repository) ListBatch(ctx context.Context, offset, limit int) ([]models.RawPayload, error) {
	ctx, span := tracing.StartSpan(ctx, "rawpayload.Repository.ListBatch")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "file_path", "device_id", "store_id", "raw_text", "file_timestamp", "ingested_at")
	sb.From("raw_payloads")
	sb.OrderBy("ingested_at ASC", "id ASC")
	sb.Offset(offset)
	sb.Limit(limit)

	query, args := sb.Build()
	var payloads []models.RawPayload
	if err := r.db.SelectContext(ctx, &payloads, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"offset": offset, "limit": limit}).Error("Failed to list raw payloads")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list raw payloads")
	}
	return payloads, nil
}

// Insert stores one ingested payload. Used by the ingestion sidecar and by
// integration tests; the pipeline itself only reads.
func (r *Repository) Insert(ctx context.Context, payload *models.RawPayload) error {
	ctx, span := tracing.StartSpan(ctx, "rawpayload.Repository.Insert")
	defer span.End()

	if payload.ID == "" {
		payload.ID = uuid.New().String()
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("raw_payloads")
	ib.Cols("id", "file_path", "device_id", "store_id", "raw_text", "file_timestamp")
	ib.Values(payload.ID, payload.FilePath, payload.DeviceID, payload.StoreID, payload.RawText, payload.FileTimestamp)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"file_path": payload.FilePath}).Error("Failed to insert raw payload")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert raw payload")
	}
	return nil
}
