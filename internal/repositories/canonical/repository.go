package canonical

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

// insertChunkSize keeps each bulk insert under the postgres parameter cap.
const insertChunkSize = 200

// Repository owns the canonical transaction and item tables.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new canonical transaction repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ReplaceAll swaps the canonical set for the run's output in one database
// transaction. Either the whole new set is visible or the previous set is
// untouched.
func (r *Repository) ReplaceAll(ctx context.Context, runID string, txs []models.CanonicalTransaction, items []models.TransactionItem) error {
	ctx, span := tracing.StartSpan(ctx, "canonical.Repository.ReplaceAll")
	defer span.End()

	originalCtx := ctx
	ctx, tx, err := database.GetTx(ctx, r.logger, r.db, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin commit transaction")
	}
	defer tx.Rollback(originalCtx)

	if _, err := tx.ExecContext(ctx, "DELETE FROM transaction_items"); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to clear transaction items")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to clear transaction items")
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM canonical_transactions"); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to clear canonical transactions")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to clear canonical transactions")
	}

	now := time.Now().UTC()
	for start := 0; start < len(txs); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(txs) {
			end = len(txs)
		}
		if err := r.insertTransactions(ctx, tx, runID, txs[start:end], now); err != nil {
			return err
		}
	}

	for start := 0; start < len(items); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(items) {
			end = len(items)
		}
		if err := r.insertItems(ctx, tx, items[start:end]); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit canonical set")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":       runID,
		"transactions": len(txs),
		"items":        len(items),
	}).Info("Committed canonical set")
	return nil
}

func (r *Repository) insertTransactions(ctx context.Context, tx database.Tx, runID string, txs []models.CanonicalTransaction, now time.Time) error {
	if len(txs) == 0 {
		return nil
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("canonical_transactions")
	ib.Cols(
		"canonical_tx_id", "run_id", "transaction_id", "source_file", "store_id", "device_id",
		"total_amount", "total_items", "tx_timestamp",
		"region", "province", "municipality", "barangay", "latitude", "longitude", "geo_polygon",
		"age_bracket", "gender", "role",
		"payment_method", "time_of_day", "day_type", "transcript",
		"quality_score", "basket_mismatch",
		"substitution_occurred", "substitution_from", "substitution_to", "substitution_reason", "substitution_confidence",
		"created_at",
	)
	for _, t := range txs {
		var polygon any
		if len(t.GeoPolygon) > 0 {
			polygon = []byte(t.GeoPolygon)
		}
		ib.Values(
			t.CanonicalTxID, runID, t.TransactionID, t.SourceFile, t.StoreID, t.DeviceID,
			t.TotalAmount, t.TotalItems, t.TxTimestamp,
			t.Region, t.Province, t.Municipality, t.Barangay, t.Latitude, t.Longitude, polygon,
			t.AgeBracket, t.Gender, t.Role,
			t.PaymentMethod, t.TimeOfDay, t.DayType, t.Transcript,
			t.QualityScore, t.BasketMismatch,
			t.SubstitutionOccurred, t.SubstitutionFrom, t.SubstitutionTo, t.SubstitutionReason, t.SubstitutionConfidence,
			now,
		)
	}

	query, args := ib.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": runID}).Error("Failed to insert canonical transactions")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert canonical transactions")
	}
	return nil
}

func (r *Repository) insertItems(ctx context.Context, tx database.Tx, items []models.TransactionItem) error {
	if len(items) == 0 {
		return nil
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("transaction_items")
	ib.Cols(
		"id", "canonical_tx_id", "line_seq",
		"brand_name", "product_name", "category",
		"quantity", "unit", "unit_price", "total_price",
		"is_unbranded", "detection_method", "confidence",
	)
	for _, item := range items {
		id := item.ID
		if id == "" {
			id = uuid.New().String()
		}
		ib.Values(
			id, item.CanonicalTxID, item.LineSeq,
			item.BrandName, item.ProductName, item.Category,
			item.Quantity, item.Unit, item.UnitPrice, item.TotalPrice,
			item.IsUnbranded, item.DetectionMethod, item.Confidence,
		)
	}

	query, args := ib.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to insert transaction items")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert transaction items")
	}
	return nil
}

// Count returns the size of the current canonical set.
func (r *Repository) Count(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "canonical.Repository.Count")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("canonical_transactions")

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count canonical transactions")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count canonical transactions")
	}
	return count, nil
}

// Get returns one canonical transaction with its items.
func (r *Repository) Get(ctx context.Context, canonicalTxID string) (*models.CanonicalTransaction, []models.TransactionItem, error) {
	ctx, span := tracing.StartSpan(ctx, "canonical.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("*")
	sb.From("canonical_transactions")
	sb.Where(sb.Equal("canonical_tx_id", canonicalTxID))
	sb.Limit(1)

	query, args := sb.Build()
	var tx models.CanonicalTransaction
	if err := r.db.GetContext(ctx, &tx, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil, httperror.NewHTTPError(http.StatusNotFound, "transaction not found")
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"canonical_tx_id": canonicalTxID}).Error("Failed to get canonical transaction")
		return nil, nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get canonical transaction")
	}

	itemSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	itemSb.Select("*")
	itemSb.From("transaction_items")
	itemSb.Where(itemSb.Equal("canonical_tx_id", canonicalTxID))
	itemSb.OrderBy("line_seq ASC")

	itemQuery, itemArgs := itemSb.Build()
	var items []models.TransactionItem
	if err := r.db.SelectContext(ctx, &items, itemQuery, itemArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"canonical_tx_id": canonicalTxID}).Error("Failed to get transaction items")
		return nil, nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get transaction items")
	}

	return &tx, items, nil
}
