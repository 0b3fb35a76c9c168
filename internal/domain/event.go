package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type EventType string

const (
	EventWorkflowStarted   EventType = "WORKFLOW_STARTED"
	EventStateTransitioned EventType = "STATE_TRANSITIONED"
	EventSagaStarted       EventType = "SAGA_STARTED"
	EventSagaCompleted     EventType = "SAGA_COMPLETED"
	EventSagaFailed        EventType = "SAGA_FAILED"
	EventWorkflowCancelled EventType = "WORKFLOW_CANCELLED"
	EventWorkflowCompleted EventType = "WORKFLOW_COMPLETED"
	EventWorkflowRetried   EventType = "WORKFLOW_RETRIED"
)

// WorkflowEventRecord is one row of the append-only per-workflow event log.
// Seq is 1-based and unique per workflow; records are never updated or
// deleted, which makes the log the recovery source of truth.
type WorkflowEventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key;" json:"id"`
	WorkflowID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_workflow_seq;not null" json:"workflowId"`
	Seq        int       `gorm:"uniqueIndex:idx_workflow_seq;not null" json:"seq"`
	Type       EventType `gorm:"type:varchar(30);index;not null" json:"type"`

	Data datatypes.JSONMap `gorm:"type:jsonb" json:"data"`

	Timestamp time.Time `json:"timestamp"`
}

func NewWorkflowEvent(workflowID uuid.UUID, eventType EventType, data map[string]any) *WorkflowEventRecord {
	if data == nil {
		data = map[string]any{}
	}
	return &WorkflowEventRecord{
		ID:         uuid.New(),
		WorkflowID: workflowID,
		Type:       eventType,
		Data:       datatypes.JSONMap(data),
		Timestamp:  time.Now(),
	}
}

// TransitionEvent is the caller-supplied trigger passed to the engine's
// Transition operation.
type TransitionEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}
