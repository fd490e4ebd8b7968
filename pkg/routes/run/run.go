package run

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/scout-edge/canon/internal/repositories/pipelinerun"
	"github.com/scout-edge/canon/pkg/pipeline"
)

// Handler serves the pipeline run endpoints.
type Handler struct {
	pipeline *pipeline.Pipeline
	runs     *pipelinerun.Repository
}

// NewHandler creates a new run handler
func NewHandler(p *pipeline.Pipeline, runs *pipelinerun.Repository) *Handler {
	return &Handler{
		pipeline: p,
		runs:     runs,
	}
}

// Register registers run routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("", h.TriggerRun)
	g.GET("", h.ListRuns)
	g.GET("/:id", h.GetRun)
}

// TriggerRun starts a pipeline run and returns its summary when it finishes.
// Returns 409 when another run already holds the run lock.
func (h *Handler) TriggerRun(c echo.Context) error {
	ctx := c.Request().Context()

	run, err := h.pipeline.Run(ctx)
	if err != nil {
		if errors.Is(err, pipeline.ErrRunInProgress) {
			return httperror.NewHTTPError(http.StatusConflict, "a pipeline run is already in progress")
		}
		if run != nil {
			// The run failed mid-stage; the summary carries the cause.
			return c.JSON(http.StatusOK, run)
		}
		return err
	}

	return c.JSON(http.StatusCreated, run)
}

// ListRuns returns a page of run summaries, newest first
func (h *Handler) ListRuns(c echo.Context) error {
	ctx := c.Request().Context()

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	response, err := h.runs.List(ctx, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, response)
}

// GetRun returns one run summary by id
func (h *Handler) GetRun(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")
	if id == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "missing id")
	}

	run, err := h.runs.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, run)
}
