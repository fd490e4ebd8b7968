package brandtaxonomy

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

// Repository is the read-only brand taxonomy lookup.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new brand taxonomy repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetBrand returns the taxonomy row for a brand name (case-insensitive), or
// nil when the brand is unknown.
func (r *Repository) GetBrand(ctx context.Context, brandName string) (*models.BrandEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "brandtaxonomy.Repository.GetBrand")
	defer span.End()

	query := `
		SELECT brand_name, category, department
		FROM brand_taxonomy
		WHERE LOWER(brand_name) = LOWER($1)
		LIMIT 1
	`

	var entry models.BrandEntry
	if err := r.db.GetContext(ctx, &entry, query, brandName); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"brand_name": brandName}).Error("Failed to get brand taxonomy row")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get brand")
	}
	return &entry, nil
}

// ListBrandNames returns every known brand name. Used as the transcript
// matching vocabulary for substitution detection.
func (r *Repository) ListBrandNames(ctx context.Context) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "brandtaxonomy.Repository.ListBrandNames")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("brand_name")
	sb.From("brand_taxonomy")
	sb.OrderBy("brand_name ASC")

	query, args := sb.Build()
	var names []string
	if err := r.db.SelectContext(ctx, &names, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list brand names")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list brands")
	}
	return names, nil
}
