package storedirectory

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/scout-edge/canon/pkg/database"
	"github.com/scout-edge/canon/pkg/models"
	"github.com/scout-edge/canon/pkg/tracing"
)

// Repository is the read-only store directory lookup.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new store directory repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetStore returns the directory row for a store id, or nil when unknown.
func (r *Repository) GetStore(ctx context.Context, storeID string) (*models.StoreLocation, error) {
	ctx, span := tracing.StartSpan(ctx, "storedirectory.Repository.GetStore")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("store_id", "municipality", "province", "region", "barangay", "latitude", "longitude", "polygon")
	sb.From("store_directory")
	sb.Where(sb.Equal("store_id", storeID))
	sb.Limit(1)

	query, args := sb.Build()
	var loc models.StoreLocation
	if err := r.db.GetContext(ctx, &loc, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"store_id": storeID}).Error("Failed to get store directory row")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get store")
	}
	return &loc, nil
}
