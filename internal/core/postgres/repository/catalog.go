package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"cartflow/internal/domain"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Catalog rows store the full definition/template as a JSONB document; the
// typed columns exist for listing and indexing only.

type definitionRow struct {
	ID        string         `gorm:"type:varchar(100);primary_key"`
	Name      string         `gorm:"type:varchar(200);not null"`
	Version   int            `gorm:"not null"`
	Document  datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (definitionRow) TableName() string { return "workflow_definitions" }

type templateRow struct {
	ID        string         `gorm:"type:varchar(100);primary_key"`
	Name      string         `gorm:"type:varchar(200);not null"`
	Document  datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (templateRow) TableName() string { return "workflow_templates" }

// CatalogModels are the gorm models the server migrates alongside the
// instance and event tables.
func CatalogModels() []any {
	return []any{&definitionRow{}, &templateRow{}}
}

func (r *workflowRepository) GetDefinition(ctx context.Context, id string) (*domain.WorkflowDefinition, error) {
	var row definitionRow
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrDefinitionNotFound
	}
	if err != nil {
		return nil, err
	}
	var def domain.WorkflowDefinition
	if err := json.Unmarshal(row.Document, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

func (r *workflowRepository) GetTemplate(ctx context.Context, id string) (*domain.WorkflowTemplate, error) {
	var row templateRow
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrTemplateNotFound
	}
	if err != nil {
		return nil, err
	}
	var tpl domain.WorkflowTemplate
	if err := json.Unmarshal(row.Document, &tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// SaveDefinition validates and upserts; definitions are immutable in spirit,
// so re-saving an id is intended for seeding and new versions only.
func (r *workflowRepository) SaveDefinition(ctx context.Context, def *domain.WorkflowDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	doc, err := json.Marshal(def)
	if err != nil {
		return err
	}
	row := definitionRow{ID: def.ID, Name: def.Name, Version: def.Version, Document: doc}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
}

func (r *workflowRepository) SaveTemplate(ctx context.Context, tpl *domain.WorkflowTemplate) error {
	if err := tpl.Definition.Validate(); err != nil {
		return err
	}
	doc, err := json.Marshal(tpl)
	if err != nil {
		return err
	}
	row := templateRow{ID: tpl.ID, Name: tpl.Name, Document: doc}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
}
