package repository

import (
	"context"
	"errors"

	"cartflow/internal/core/ports"
	"cartflow/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type workflowRepository struct {
	db *gorm.DB
}

// NewWorkflowRepository creates the Postgres-backed instance store.
// Catalog operations live in catalog.go on the same type.
func NewWorkflowRepository(db *gorm.DB) ports.WorkflowRepository {
	return &workflowRepository{db: db}
}

func (r *workflowRepository) Create(ctx context.Context, instance *domain.WorkflowInstance) error {
	return r.db.WithContext(ctx).Create(instance).Error
}

func (r *workflowRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.WorkflowInstance, error) {
	var instance domain.WorkflowInstance
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&instance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrWorkflowNotFound
	}
	if err != nil {
		return nil, err
	}
	return &instance, nil
}

// Update is the compare-and-swap the engine's correctness rests on:
// "UPDATE ... WHERE id=? AND version=?". A concurrent writer that got there
// first leaves RowsAffected at zero, which surfaces as a typed conflict so
// the caller knows no side effect occurred.
func (r *workflowRepository) Update(ctx context.Context, id uuid.UUID, fields map[string]any, expectedVersion int) error {
	updates := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["version"] = expectedVersion + 1

	result := r.db.WithContext(ctx).
		Model(&domain.WorkflowInstance{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &domain.ConcurrencyConflictError{WorkflowID: id, ExpectedVersion: expectedVersion}
	}
	return nil
}
