package ports

import (
	"context"

	"cartflow/internal/domain"

	"github.com/google/uuid"
)

// WorkflowRepository is the engine's durable storage for materialized
// instances and for the definition/template catalog. The engine is the only
// writer of instances.
type WorkflowRepository interface {
	// Create persists a new instance.
	Create(ctx context.Context, instance *domain.WorkflowInstance) error

	// FindByID loads the current instance record.
	// Returns domain.ErrWorkflowNotFound when no row exists.
	FindByID(ctx context.Context, id uuid.UUID) (*domain.WorkflowInstance, error)

	// Update applies a partial diff guarded by the version the caller read.
	// The implementation must bump the version in the same write
	// ("UPDATE ... WHERE id=? AND version=?") and surface a stale version
	// as *domain.ConcurrencyConflictError, never as a generic error.
	Update(ctx context.Context, id uuid.UUID, fields map[string]any, expectedVersion int) error

	// GetDefinition / GetTemplate read the catalog.
	GetDefinition(ctx context.Context, id string) (*domain.WorkflowDefinition, error)
	GetTemplate(ctx context.Context, id string) (*domain.WorkflowTemplate, error)

	// SaveDefinition / SaveTemplate register catalog entries (seed, admin API).
	SaveDefinition(ctx context.Context, def *domain.WorkflowDefinition) error
	SaveTemplate(ctx context.Context, tpl *domain.WorkflowTemplate) error
}

// EventStore is the append-only per-workflow event log. Append must preserve
// append order per workflow and fail loudly when the store is unavailable;
// a failed append is fatal to the enclosing engine operation.
type EventStore interface {
	// Append writes one immutable record, assigning the next per-workflow Seq.
	Append(ctx context.Context, record *domain.WorkflowEventRecord) error

	// ListByWorkflow returns the event stream in append order. afterSeq=0
	// returns the full stream; otherwise only records with Seq > afterSeq.
	ListByWorkflow(ctx context.Context, workflowID uuid.UUID, afterSeq int) ([]domain.WorkflowEventRecord, error)

	// ListByType filters the same ordered stream by event type.
	ListByType(ctx context.Context, workflowID uuid.UUID, eventType domain.EventType) ([]domain.WorkflowEventRecord, error)

	// Last returns the most recent record for a workflow, or
	// domain.ErrWorkflowNotFound when the stream is empty.
	Last(ctx context.Context, workflowID uuid.UUID) (*domain.WorkflowEventRecord, error)
}

// EventPublisher fans appended events out to interested services
// (Redis Pub/Sub). Notification only; the EventStore is the source of truth,
// so publish failures are logged, not propagated.
type EventPublisher interface {
	Publish(ctx context.Context, record *domain.WorkflowEventRecord) error
}
