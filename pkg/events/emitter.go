// Package events handles event emission for pipeline run lifecycle changes.
// Emission is best-effort: a publish failure is logged but never fails a run.
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/scout-edge/canon/pkg/kafka"
	"github.com/scout-edge/canon/pkg/models"
	"github.com/scout-edge/canon/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter handles run event emission
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter. producer may be nil, in which case
// emission is a no-op.
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitRunStarted emits a run.started event
func (e *Emitter) EmitRunStarted(ctx context.Context, run *models.PipelineRun) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRunStarted")
	defer span.End()

	e.publish(ctx, &kafka.RunEvent{
		EventType: "run.started",
		RunID:     run.ID,
		Stage:     string(run.Stage),
	})
}

// EmitRunCompleted emits a run.completed event carrying the final summary
func (e *Emitter) EmitRunCompleted(ctx context.Context, run *models.PipelineRun) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRunCompleted")
	defer span.End()

	summary, _ := json.Marshal(run)
	e.publish(ctx, &kafka.RunEvent{
		EventType: "run.completed",
		RunID:     run.ID,
		Stage:     string(run.Stage),
		Summary:   summary,
	})
}

// EmitRunFailed emits a run.failed event with the failing stage and cause
func (e *Emitter) EmitRunFailed(ctx context.Context, run *models.PipelineRun, cause error) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRunFailed")
	defer span.End()

	event := &kafka.RunEvent{
		EventType: "run.failed",
		RunID:     run.ID,
		Stage:     string(run.Stage),
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	e.publish(ctx, event)
}

func (e *Emitter) publish(ctx context.Context, event *kafka.RunEvent) {
	if e.producer == nil {
		return
	}
	if err := e.producer.PublishRunEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Warnf("Failed to emit %s event", event.EventType)
	}
}
