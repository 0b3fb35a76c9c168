package dto

import (
	"cartflow/internal/domain"

	"github.com/google/uuid"
)

type CreateWorkflowRequest struct {
	DefinitionID string         `json:"definition_id" binding:"required"`
	Context      map[string]any `json:"context"`
}

type ApplyTemplateRequest struct {
	TemplateID string         `json:"template_id" binding:"required"`
	Parameters map[string]any `json:"parameters"`
}

type TransitionRequest struct {
	Type string         `json:"type" binding:"required"`
	Data map[string]any `json:"data"`
}

type CancelRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type ExecuteSagaRequest struct {
	Steps    []string       `json:"steps" binding:"required,min=1"`
	Strategy string         `json:"strategy"`
	Data     map[string]any `json:"data"`
}

type WorkflowResponse struct {
	ID           uuid.UUID             `json:"id"`
	DefinitionID string                `json:"definition_id"`
	CurrentState string                `json:"current_state"`
	Status       domain.WorkflowStatus `json:"status"`
	Version      int                   `json:"version"`
	Context      map[string]any        `json:"context,omitempty"`
}

func NewWorkflowResponse(instance *domain.WorkflowInstance) WorkflowResponse {
	return WorkflowResponse{
		ID:           instance.ID,
		DefinitionID: instance.DefinitionID,
		CurrentState: instance.CurrentState,
		Status:       instance.Status,
		Version:      instance.Version,
		Context:      instance.Context,
	}
}

type SagaResponse struct {
	Success       bool             `json:"success"`
	Results       []SagaStepResult `json:"results,omitempty"`
	Compensations []Compensation   `json:"compensations,omitempty"`
	Error         string           `json:"error,omitempty"`
}

type SagaStepResult struct {
	Step   string `json:"step"`
	Output any    `json:"output,omitempty"`
}

type Compensation struct {
	Step  string `json:"step"`
	Ok    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
