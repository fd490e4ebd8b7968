package transaction

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/scout-edge/canon/internal/repositories/canonical"
	"github.com/scout-edge/canon/pkg/models"
)

// Handler serves read access to the canonical transaction set.
type Handler struct {
	canonical *canonical.Repository
}

// NewHandler creates a new transaction handler
func NewHandler(repo *canonical.Repository) *Handler {
	return &Handler{canonical: repo}
}

// Register registers transaction routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/count", h.Count)
	g.GET("/:id", h.GetTransaction)
}

// TransactionResponse is a canonical transaction with its line items.
type TransactionResponse struct {
	Transaction *models.CanonicalTransaction `json:"transaction"`
	Items       []models.TransactionItem     `json:"items"`
}

// GetTransaction returns one canonical transaction with its items
func (h *Handler) GetTransaction(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")
	if id == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "missing id")
	}

	tx, items, err := h.canonical.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &TransactionResponse{Transaction: tx, Items: items})
}

// Count returns the size of the current canonical set
func (h *Handler) Count(c echo.Context) error {
	ctx := c.Request().Context()

	count, err := h.canonical.Count(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]int{"count": count})
}
