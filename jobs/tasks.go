package jobs

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"

	"github.com/shakil5281/HrHub-sub001/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit carries audit records written off the request path.
	QueueAudit = "audit"
	// TaskAuditRecord persists one audit log entry.
	TaskAuditRecord = "audit:record"
	// TaskAuditPrune deletes audit log entries past retention.
	TaskAuditPrune = "audit:prune"
)

// AuditRecordPayload wraps an audit entry for the queue.
type AuditRecordPayload struct {
	Log shared.AuditLog `json:"log"`
}

// AuditPrunePayload controls the retention window of a prune run.
type AuditPrunePayload struct {
	Retention time.Duration `json:"retention"`
}

// NewAuditRecordTask constructs an Asynq task for one audit entry.
func NewAuditRecordTask(log shared.AuditLog) (*asynq.Task, error) {
	if err := log.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(AuditRecordPayload{Log: log})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRecord, data), nil
}

// NewAuditPruneTask constructs a retention task.
func NewAuditPruneTask(retention time.Duration) (*asynq.Task, error) {
	if retention <= 0 {
		return nil, errors.New("audit prune: retention must be positive")
	}
	data, err := json.Marshal(AuditPrunePayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditPrune, data), nil
}
