package eventstore

import (
	"context"
	"errors"

	"cartflow/internal/core/ports"
	"cartflow/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const maxAppendAttempts = 3

// appendSQL assigns the next per-workflow sequence number in the insert
// itself. The unique (workflow_id, seq) index turns a lost race between two
// concurrent appends for the same workflow into a unique violation, which we
// retry; unrelated workflows never contend.
const appendSQL = `
INSERT INTO workflow_event_records (id, workflow_id, seq, type, data, timestamp)
SELECT ?, ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?
FROM workflow_event_records
WHERE workflow_id = ?
RETURNING seq`

type eventStore struct {
	db *gorm.DB
}

// NewEventStore creates the Postgres-backed append-only event log.
func NewEventStore(db *gorm.DB) ports.EventStore {
	return &eventStore{db: db}
}

func (s *eventStore) Append(ctx context.Context, record *domain.WorkflowEventRecord) error {
	var lastErr error
	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		err := s.db.WithContext(ctx).
			Raw(appendSQL,
				record.ID, record.WorkflowID, record.Type, record.Data, record.Timestamp,
				record.WorkflowID).
			Scan(&record.Seq).Error
		if err == nil {
			return nil
		}
		if !isUniqueViolation(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (s *eventStore) ListByWorkflow(ctx context.Context, workflowID uuid.UUID, afterSeq int) ([]domain.WorkflowEventRecord, error) {
	var records []domain.WorkflowEventRecord
	err := s.db.WithContext(ctx).
		Where("workflow_id = ? AND seq > ?", workflowID, afterSeq).
		Order("seq ASC").
		Find(&records).Error
	return records, err
}

func (s *eventStore) ListByType(ctx context.Context, workflowID uuid.UUID, eventType domain.EventType) ([]domain.WorkflowEventRecord, error) {
	var records []domain.WorkflowEventRecord
	err := s.db.WithContext(ctx).
		Where("workflow_id = ? AND type = ?", workflowID, eventType).
		Order("seq ASC").
		Find(&records).Error
	return records, err
}

func (s *eventStore) Last(ctx context.Context, workflowID uuid.UUID) (*domain.WorkflowEventRecord, error) {
	var record domain.WorkflowEventRecord
	err := s.db.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("seq DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrWorkflowNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
