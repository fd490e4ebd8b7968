package models

import "time"

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// RunStage is one step of the canonicalization state machine.
type RunStage string

const (
	StageLoading             RunStage = "LOADING"
	StageRanking             RunStage = "RANKING"
	StageGeoValidating       RunStage = "GEO_VALIDATING"
	StageItemExtracting      RunStage = "ITEM_EXTRACTING"
	StageSubstitutionScoring RunStage = "SUBSTITUTION_SCORING"
	StageQualityScoring      RunStage = "QUALITY_SCORING"
	StageCommitting          RunStage = "COMMITTING"
	StageDone                RunStage = "DONE"
	StageFailed              RunStage = "FAILED"
)

// PipelineRun is the persisted summary of one batch run.
type PipelineRun struct {
	ID     string    `json:"id" db:"id"`
	Status RunStatus `json:"status" db:"status"`
	Stage  RunStage  `json:"stage" db:"stage"`

	FilesConsidered       int `json:"files_considered" db:"files_considered"`
	DuplicatesRemoved     int `json:"duplicates_removed" db:"duplicates_removed"`
	InvalidExcluded       int `json:"invalid_excluded" db:"invalid_excluded"`
	GeometryExcluded      int `json:"geometry_excluded" db:"geometry_excluded"`
	TransactionsCommitted int `json:"transactions_committed" db:"transactions_committed"`
	ItemsExtracted        int `json:"items_extracted" db:"items_extracted"`
	SubstitutionsFound    int `json:"substitutions_found" db:"substitutions_found"`
	BasketMismatches      int `json:"basket_mismatches" db:"basket_mismatches"`

	AvgQualityScore float64 `json:"avg_quality_score" db:"avg_quality_score"`

	Error      *string    `json:"error,omitempty" db:"error"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// PipelineRunListResponse is the response for listing pipeline runs.
type PipelineRunListResponse struct {
	Items      []PipelineRun `json:"items"`
	TotalCount int           `json:"total_count"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
}
