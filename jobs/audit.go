package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/shakil5281/HrHub-sub001/internal/jobs"
	"github.com/shakil5281/HrHub-sub001/internal/shared"
)

// AuditRecorder persists a single audit entry.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AuditStore is the durable sink behind the audit jobs. *shared.AuditLogger satisfies it.
type AuditStore interface {
	AuditRecorder
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// AuditJob handles the audit:record and audit:prune tasks.
type AuditJob struct {
	Store   AuditStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAuditJob initialises the audit handlers.
func NewAuditJob(store AuditStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditJob {
	return &AuditJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handlers lists the task handlers served by the worker.
func (j *AuditJob) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskAuditRecord, Handler: j.HandleRecord},
		{Type: TaskAuditPrune, Handler: j.HandlePrune},
	}
}

// HandleRecord writes a queued audit entry.
func (j *AuditJob) HandleRecord(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("audit record: handler not configured")
	}
	var payload AuditRecordPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if err := payload.Log.Validate(); err != nil {
		j.logger(TaskAuditRecord).Warn("dropping invalid audit entry", slog.Any("error", err))
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskAuditRecord)
	defer func() {
		err = tracker.End(err)
	}()
	if err = j.Store.Record(ctx, payload.Log); err != nil {
		j.logger(TaskAuditRecord).Error("audit record failed",
			slog.String("action", payload.Log.Action),
			slog.String("entity_id", payload.Log.EntityID),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}

// HandlePrune removes audit entries older than the payload retention.
func (j *AuditJob) HandlePrune(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("audit prune: handler not configured")
	}
	var payload AuditPrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Retention <= 0 {
		return asynq.SkipRetry
	}

	start := time.Now()
	tracker := j.metrics().Track(TaskAuditPrune)
	defer func() {
		err = tracker.End(err)
	}()
	logger := j.logger(TaskAuditPrune).With(slog.Duration("retention", payload.Retention))
	deleted, err := j.Store.Prune(ctx, payload.Retention)
	if err != nil {
		logger.Error("prune failed", slog.Any("error", err))
		return err
	}
	j.metrics().AddPruned(deleted)
	logger.Info("completed audit prune",
		slog.Int64("deleted", deleted),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *AuditJob) logger(task string) *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", task))
	}
	return slog.Default().With(slog.String("job", task))
}

func (j *AuditJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

var defaultJobMetrics = jobmetrics.NewMetrics(nil)
