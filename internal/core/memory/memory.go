// Package memory provides in-memory implementations of the storage ports
// with the same CAS and ordering semantics as the Postgres adapters. They
// back the engine tests and embedded single-process runs.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cartflow/internal/core/ports"
	"cartflow/internal/domain"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Repository struct {
	mu          sync.RWMutex
	instances   map[uuid.UUID]*domain.WorkflowInstance
	definitions map[string]*domain.WorkflowDefinition
	templates   map[string]*domain.WorkflowTemplate
}

var _ ports.WorkflowRepository = (*Repository)(nil)

func NewRepository() *Repository {
	return &Repository{
		instances:   make(map[uuid.UUID]*domain.WorkflowInstance),
		definitions: make(map[string]*domain.WorkflowDefinition),
		templates:   make(map[string]*domain.WorkflowTemplate),
	}
}

func (r *Repository) Create(ctx context.Context, instance *domain.WorkflowInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instances[instance.ID]; ok {
		return fmt.Errorf("workflow %s already exists", instance.ID)
	}
	r.instances[instance.ID] = cloneInstance(instance)
	return nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*domain.WorkflowInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	instance, ok := r.instances[id]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	return cloneInstance(instance), nil
}

// Update mirrors the Postgres CAS: the stored version must equal
// expectedVersion or the write is rejected with a typed conflict.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, fields map[string]any, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	instance, ok := r.instances[id]
	if !ok || instance.Version != expectedVersion {
		return &domain.ConcurrencyConflictError{WorkflowID: id, ExpectedVersion: expectedVersion}
	}

	for k, v := range fields {
		switch k {
		case "current_state":
			instance.CurrentState = v.(string)
		case "status":
			switch s := v.(type) {
			case domain.WorkflowStatus:
				instance.Status = s
			case string:
				instance.Status = domain.WorkflowStatus(s)
			}
		case "context":
			instance.Context = cloneContext(v.(datatypes.JSONMap))
		case "completed_at":
			switch t := v.(type) {
			case time.Time:
				instance.CompletedAt = &t
			case *time.Time:
				instance.CompletedAt = t
			}
		default:
			return fmt.Errorf("unknown instance field %q", k)
		}
	}
	instance.Version = expectedVersion + 1
	instance.UpdatedAt = time.Now()
	return nil
}

func (r *Repository) GetDefinition(ctx context.Context, id string) (*domain.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.definitions[id]
	if !ok {
		return nil, domain.ErrDefinitionNotFound
	}
	return def, nil
}

func (r *Repository) GetTemplate(ctx context.Context, id string) (*domain.WorkflowTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tpl, ok := r.templates[id]
	if !ok {
		return nil, domain.ErrTemplateNotFound
	}
	return tpl, nil
}

func (r *Repository) SaveDefinition(ctx context.Context, def *domain.WorkflowDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.definitions[def.ID] = def
	return nil
}

func (r *Repository) SaveTemplate(ctx context.Context, tpl *domain.WorkflowTemplate) error {
	if err := tpl.Definition.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[tpl.ID] = tpl
	return nil
}

func cloneInstance(in *domain.WorkflowInstance) *domain.WorkflowInstance {
	out := *in
	out.Context = cloneContext(in.Context)
	if in.CompletedAt != nil {
		t := *in.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

func cloneContext(in datatypes.JSONMap) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// EventStore keeps per-workflow append-only slices; Seq is assigned under
// the lock, so appends for one workflow are strictly ordered.
type EventStore struct {
	mu      sync.RWMutex
	streams map[uuid.UUID][]domain.WorkflowEventRecord
}

var _ ports.EventStore = (*EventStore)(nil)

func NewEventStore() *EventStore {
	return &EventStore{streams: make(map[uuid.UUID][]domain.WorkflowEventRecord)}
}

func (s *EventStore) Append(ctx context.Context, record *domain.WorkflowEventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.Seq = len(s.streams[record.WorkflowID]) + 1
	s.streams[record.WorkflowID] = append(s.streams[record.WorkflowID], *record)
	return nil
}

func (s *EventStore) ListByWorkflow(ctx context.Context, workflowID uuid.UUID, afterSeq int) ([]domain.WorkflowEventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stream := s.streams[workflowID]
	if afterSeq >= len(stream) {
		return nil, nil
	}
	out := make([]domain.WorkflowEventRecord, len(stream)-afterSeq)
	copy(out, stream[afterSeq:])
	return out, nil
}

func (s *EventStore) ListByType(ctx context.Context, workflowID uuid.UUID, eventType domain.EventType) ([]domain.WorkflowEventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.WorkflowEventRecord
	for _, record := range s.streams[workflowID] {
		if record.Type == eventType {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *EventStore) Last(ctx context.Context, workflowID uuid.UUID) (*domain.WorkflowEventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stream := s.streams[workflowID]
	if len(stream) == 0 {
		return nil, domain.ErrWorkflowNotFound
	}
	record := stream[len(stream)-1]
	return &record, nil
}
