package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type WorkflowStatus string

const (
	WorkflowActive    WorkflowStatus = "ACTIVE"
	WorkflowCompleted WorkflowStatus = "COMPLETED"
	WorkflowCancelled WorkflowStatus = "CANCELLED"
	WorkflowFailed    WorkflowStatus = "FAILED"
)

// WorkflowInstance is the materialized record of one running process. It is
// mutated only by the engine through the repository; every mutation bumps
// Version, which is the optimistic-concurrency guard.
type WorkflowInstance struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key;"`
	DefinitionID string    `gorm:"type:varchar(100);index;not null"`
	CurrentState string    `gorm:"type:varchar(100);not null"`

	// Context is the merged payload carried across transitions.
	Context datatypes.JSONMap `gorm:"type:jsonb"`

	Status  WorkflowStatus `gorm:"type:varchar(20);index;default:'ACTIVE'"`
	Version int            `gorm:"default:0"`

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// --- FACTORY ---
func NewWorkflowInstance(definitionID, initialState string, context map[string]any) *WorkflowInstance {
	if context == nil {
		context = map[string]any{}
	}
	return &WorkflowInstance{
		ID:           uuid.New(),
		DefinitionID: definitionID,
		CurrentState: initialState,
		Context:      datatypes.JSONMap(context),
		Status:       WorkflowActive,
		Version:      0,
		CreatedAt:    time.Now(),
	}
}

// --- METHODS ---

// IsTerminal reports whether the instance accepts no further transitions,
// cancellations, or retries.
func (w *WorkflowInstance) IsTerminal() bool {
	return w.Status == WorkflowCompleted || w.Status == WorkflowCancelled
}
